package service

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/training-admin-api/internal/models"
	appErrors "github.com/noah-isme/training-admin-api/pkg/errors"
)

type sequenceRepository interface {
	Next(ctx context.Context, exec sqlx.ExtContext, name string) (int64, error)
}

// SequenceService issues the human-readable identifiers of enquiries, batches and schedules.
type SequenceService struct {
	repo sequenceRepository
}

// NewSequenceService constructs the sequence service.
func NewSequenceService(repo sequenceRepository) *SequenceService {
	return &SequenceService{repo: repo}
}

// NextValue atomically increments the named counter on exec and returns the new value.
func (s *SequenceService) NextValue(ctx context.Context, exec sqlx.ExtContext, name string) (int64, error) {
	if strings.TrimSpace(name) == "" {
		return 0, appErrors.Clone(appErrors.ErrValidation, "counter name is required")
	}
	value, err := s.repo.Next(ctx, exec, name)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate sequence")
	}
	return value, nil
}

// NextEnquiryID returns the next ENQ number.
func (s *SequenceService) NextEnquiryID(ctx context.Context, exec sqlx.ExtContext) (string, error) {
	seq, err := s.NextValue(ctx, exec, models.CounterEnquiry)
	if err != nil {
		return "", err
	}
	return models.FormatEnquiryID(seq), nil
}

// NextBatchID returns the next batch number for the course's initial.
func (s *SequenceService) NextBatchID(ctx context.Context, exec sqlx.ExtContext, courseName string) (string, error) {
	initial := models.CourseInitial(courseName)
	seq, err := s.NextValue(ctx, exec, models.BatchCounterName(initial))
	if err != nil {
		return "", err
	}
	return models.FormatBatchID(initial, seq), nil
}

// NextScheduleID returns the next SCH number.
func (s *SequenceService) NextScheduleID(ctx context.Context, exec sqlx.ExtContext) (string, error) {
	seq, err := s.NextValue(ctx, exec, models.CounterSchedule)
	if err != nil {
		return "", err
	}
	return models.FormatScheduleID(seq), nil
}
