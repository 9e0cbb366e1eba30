package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/training-admin-api/internal/models"
	"github.com/noah-isme/training-admin-api/pkg/cache"
	appErrors "github.com/noah-isme/training-admin-api/pkg/errors"
)

type enquiryRepository interface {
	FindByID(ctx context.Context, id string) (*models.Enquiry, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Enquiry, error)
	LockByBatch(ctx context.Context, exec sqlx.ExtContext, batchRef string) ([]models.Enquiry, error)
	List(ctx context.Context, filter models.EnquiryFilter) ([]models.Enquiry, int, error)
	Create(ctx context.Context, exec sqlx.ExtContext, enquiry *models.Enquiry) error
	Update(ctx context.Context, exec sqlx.ExtContext, enquiry *models.Enquiry) error
	SoftDelete(ctx context.Context, exec sqlx.ExtContext, id string, actor *string) error
	AppendActivity(ctx context.Context, exec sqlx.ExtContext, activity *models.EnquiryActivity) error
	AppendNote(ctx context.Context, exec sqlx.ExtContext, note *models.EnquiryNote) error
	ListActivities(ctx context.Context, enquiryRef string) ([]models.EnquiryActivity, error)
	ListNotes(ctx context.Context, enquiryRef string) ([]models.EnquiryNote, error)
	Stats(ctx context.Context) (*models.EnquiryStats, error)
}

type courseLookup interface {
	FindByName(ctx context.Context, name string) (*models.Course, error)
}

type idAllocator interface {
	NextEnquiryID(ctx context.Context, exec sqlx.ExtContext) (string, error)
	NextBatchID(ctx context.Context, exec sqlx.ExtContext, courseName string) (string, error)
	NextScheduleID(ctx context.Context, exec sqlx.ExtContext) (string, error)
}

// CreateEnquiryRequest holds payload for registering an enquiry.
type CreateEnquiryRequest struct {
	Client       string   `json:"client" validate:"required"`
	ContactName  string   `json:"contact_name" validate:"required"`
	ContactPhone string   `json:"contact_phone" validate:"required"`
	ContactEmail string   `json:"contact_email" validate:"required,email"`
	Course       string   `json:"course" validate:"required"`
	Cost         *float64 `json:"cost" validate:"omitempty,gte=0"`
	Requested    int      `json:"requested" validate:"required,gte=1"`
	StartDate    string   `json:"start_date" validate:"required"`
	EndDate      string   `json:"end_date" validate:"required"`
	Note         string   `json:"note"`
}

// UpdateEnquiryRequest changes descriptive fields. Status is changed through ChangeStatus only.
type UpdateEnquiryRequest struct {
	Client       *string  `json:"client" validate:"omitempty,min=1"`
	ContactName  *string  `json:"contact_name" validate:"omitempty,min=1"`
	ContactPhone *string  `json:"contact_phone" validate:"omitempty,min=1"`
	ContactEmail *string  `json:"contact_email" validate:"omitempty,email"`
	Course       *string  `json:"course" validate:"omitempty,min=1"`
	Cost         *float64 `json:"cost" validate:"omitempty,gte=0"`
	Requested    *int     `json:"requested" validate:"omitempty,gte=1"`
	StartDate    *string  `json:"start_date"`
	EndDate      *string  `json:"end_date"`
}

// ChangeEnquiryStatusRequest moves an enquiry along its lifecycle.
type ChangeEnquiryStatusRequest struct {
	Status  models.EnquiryStatus `json:"status" validate:"required"`
	Details string               `json:"details"`
	Force   bool                 `json:"force"`
}

// AddNoteRequest appends a free-text note.
type AddNoteRequest struct {
	Content string `json:"content" validate:"required,max=4000"`
}

// AddActivityRequest appends a manual activity entry.
type AddActivityRequest struct {
	Action  string `json:"action" validate:"required,max=120"`
	Details string `json:"details" validate:"max=4000"`
}

// EnquiryService drives the enquiry lifecycle.
type EnquiryService struct {
	tx        txProvider
	repo      enquiryRepository
	courses   courseLookup
	ids       idAllocator
	validator *validator.Validate
	cache     *CacheService
	events    eventSink
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewEnquiryService constructs the enquiry service.
func NewEnquiryService(tx txProvider, repo enquiryRepository, courses courseLookup, ids idAllocator, validate *validator.Validate, cacheSvc *CacheService, events eventSink, metrics *MetricsService, logger *zap.Logger) *EnquiryService {
	if validate == nil {
		validate = validator.New()
	}
	if events == nil {
		events = noopEvents{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnquiryService{
		tx:        tx,
		repo:      repo,
		courses:   courses,
		ids:       ids,
		validator: validate,
		cache:     cacheSvc,
		events:    events,
		metrics:   metrics,
		logger:    logger,
	}
}

// List returns enquiries and pagination metadata.
func (s *EnquiryService) List(ctx context.Context, filter models.EnquiryFilter) ([]models.Enquiry, *models.Pagination, error) {
	if filter.Status != "" && filter.Status != models.EnquiryStatusPendingFilter && !models.EnquiryStatus(filter.Status).Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown enquiry status %q", filter.Status))
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enquiries")
	}
	if items == nil {
		items = []models.Enquiry{}
	}
	return items, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns the enquiry with its activity log and notes.
func (s *EnquiryService) Get(ctx context.Context, id string) (*models.EnquiryDetail, error) {
	enquiry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, loadError(err, "enquiry")
	}
	activities, err := s.repo.ListActivities(ctx, enquiry.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enquiry activity")
	}
	notes, err := s.repo.ListNotes(ctx, enquiry.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enquiry notes")
	}
	if activities == nil {
		activities = []models.EnquiryActivity{}
	}
	if notes == nil {
		notes = []models.EnquiryNote{}
	}
	return &models.EnquiryDetail{Enquiry: *enquiry, Activities: activities, Notes: notes}, nil
}

// Create registers a Draft enquiry with a fresh ENQ number.
func (s *EnquiryService) Create(ctx context.Context, req CreateEnquiryRequest, actor models.Actor) (result *models.Enquiry, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enquiry payload")
	}
	start, err := models.ParseDate(req.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := models.ParseDate(req.EndDate)
	if err != nil {
		return nil, err
	}

	enquiry := &models.Enquiry{
		Client:       strings.TrimSpace(req.Client),
		ContactName:  strings.TrimSpace(req.ContactName),
		ContactPhone: strings.TrimSpace(req.ContactPhone),
		ContactEmail: strings.TrimSpace(req.ContactEmail),
		Course:       strings.TrimSpace(req.Course),
		Requested:    req.Requested,
		StartDate:    start,
		EndDate:      end,
		Status:       models.EnquiryStatusDraft,
		Nominees:     models.Trainees{},
		CreatedBy:    actor.UserIDPtr(),
		UpdatedBy:    actor.UserIDPtr(),
	}
	if req.Cost != nil {
		enquiry.Cost = *req.Cost
	} else if cost, err := s.courseCost(ctx, enquiry.Course); err != nil {
		return nil, err
	} else {
		enquiry.Cost = cost
	}
	if err := enquiry.Validate(); err != nil {
		return nil, err
	}

	tx, err := beginTx(ctx, s.tx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if enquiry.EnquiryID, err = s.ids.NextEnquiryID(ctx, tx); err != nil {
		return nil, err
	}
	if err = s.repo.Create(ctx, tx, enquiry); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enquiry")
		return nil, err
	}
	if err = s.appendActivity(ctx, tx, enquiry.ID, models.ActivityEnquiryCreated, fmt.Sprintf("Enquiry created by %s", actorName(actor)), actor); err != nil {
		return nil, err
	}
	if note := strings.TrimSpace(req.Note); note != "" {
		if err = s.repo.AppendNote(ctx, tx, &models.EnquiryNote{EnquiryID: enquiry.ID, Content: note, UserID: actor.UserIDPtr(), UserName: actor.UserName}); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store enquiry note")
			return nil, err
		}
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit enquiry")
		return nil, err
	}

	s.cache.InvalidateGroup(ctx, cacheGroupEnquiry)
	s.logger.Info("enquiry created", zap.String("enquiry_id", enquiry.EnquiryID), zap.String("client", enquiry.Client))
	return enquiry, nil
}

func (s *EnquiryService) courseCost(ctx context.Context, courseName string) (float64, error) {
	if s.courses == nil {
		return 0, nil
	}
	course, err := s.courses.FindByName(ctx, courseName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course.Cost, nil
}

// Update edits descriptive fields and re-checks the quantity and date invariants.
func (s *EnquiryService) Update(ctx context.Context, id string, req UpdateEnquiryRequest, actor models.Actor) (result *models.Enquiry, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enquiry payload")
	}

	tx, err := beginTx(ctx, s.tx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	enquiry, err := s.repo.LockByID(ctx, tx, id)
	if err != nil {
		err = loadError(err, "enquiry")
		return nil, err
	}
	if enquiry.Status.Terminal() {
		err = appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("enquiry %s is %s and can no longer be edited", enquiry.EnquiryID, enquiry.Status))
		return nil, err
	}

	var changed []string
	setString := func(field string, dst *string, src *string) {
		if src != nil && strings.TrimSpace(*src) != *dst {
			*dst = strings.TrimSpace(*src)
			changed = append(changed, field)
		}
	}
	setString("client", &enquiry.Client, req.Client)
	setString("contact_name", &enquiry.ContactName, req.ContactName)
	setString("contact_phone", &enquiry.ContactPhone, req.ContactPhone)
	setString("contact_email", &enquiry.ContactEmail, req.ContactEmail)
	setString("course", &enquiry.Course, req.Course)
	if req.Cost != nil && *req.Cost != enquiry.Cost {
		enquiry.Cost = *req.Cost
		changed = append(changed, "cost")
	}
	if req.Requested != nil && *req.Requested != enquiry.Requested {
		enquiry.Requested = *req.Requested
		changed = append(changed, "requested")
	}
	if req.StartDate != nil {
		if enquiry.StartDate, err = models.ParseDate(*req.StartDate); err != nil {
			return nil, err
		}
		changed = append(changed, "start_date")
	}
	if req.EndDate != nil {
		if enquiry.EndDate, err = models.ParseDate(*req.EndDate); err != nil {
			return nil, err
		}
		changed = append(changed, "end_date")
	}
	if len(changed) == 0 {
		err = tx.Rollback()
		if err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to release enquiry")
			return nil, err
		}
		return enquiry, nil
	}
	if err = enquiry.Validate(); err != nil {
		return nil, err
	}

	enquiry.UpdatedBy = actor.UserIDPtr()
	if err = s.repo.Update(ctx, tx, enquiry); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enquiry")
		return nil, err
	}
	if err = s.appendActivity(ctx, tx, enquiry.ID, models.ActivityEnquiryUpdated, "Updated "+strings.Join(changed, ", "), actor); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit enquiry update")
		return nil, err
	}

	s.cache.InvalidateGroup(ctx, cacheGroupEnquiry)
	return enquiry, nil
}

// ChangeStatus validates and applies a lifecycle transition. Force skips the transition
// table and is reserved for administrators.
func (s *EnquiryService) ChangeStatus(ctx context.Context, id string, req ChangeEnquiryStatusRequest, actor models.Actor) (result *models.Enquiry, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	if req.Force && !actor.CanOverride() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators may force a status change")
	}

	tx, err := beginTx(ctx, s.tx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	enquiry, err := s.repo.LockByID(ctx, tx, id)
	if err != nil {
		err = loadError(err, "enquiry")
		return nil, err
	}
	from := enquiry.Status
	now := time.Now().UTC()
	if err = enquiry.ApplyStatus(req.Status, req.Force, now); err != nil {
		return nil, err
	}
	enquiry.UpdatedBy = actor.UserIDPtr()
	if err = s.repo.Update(ctx, tx, enquiry); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enquiry status")
		return nil, err
	}

	action := models.ActivityStatusChanged
	if req.Force {
		action = models.ActivityStatusOverride
	}
	details := strings.TrimSpace(req.Details)
	if details == "" {
		details = fmt.Sprintf("Status changed from %s to %s", from, req.Status)
	}
	if err = s.appendActivity(ctx, tx, enquiry.ID, action, details, actor); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit status change")
		return nil, err
	}

	s.metrics.RecordEnquiryTransition(enquiry.Status)
	s.cache.InvalidateGroup(ctx, cacheGroupEnquiry)
	s.events.Dispatch(models.DomainEvent{
		Type:  models.EventEnquiryStatusChanged,
		Actor: actor,
		Payload: map[string]interface{}{
			"enquiry_id": enquiry.EnquiryID,
			"from":       from,
			"to":         enquiry.Status,
			"forced":     req.Force,
		},
	})
	s.logger.Info("enquiry status changed",
		zap.String("enquiry_id", enquiry.EnquiryID),
		zap.String("from", string(from)),
		zap.String("to", string(enquiry.Status)),
		zap.Bool("forced", req.Force))
	return enquiry, nil
}

// AddNote appends a note to an active enquiry.
func (s *EnquiryService) AddNote(ctx context.Context, id string, req AddNoteRequest, actor models.Actor) (*models.EnquiryNote, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid note payload")
	}
	enquiry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, loadError(err, "enquiry")
	}
	note := &models.EnquiryNote{
		EnquiryID: enquiry.ID,
		Content:   strings.TrimSpace(req.Content),
		UserID:    actor.UserIDPtr(),
		UserName:  actor.UserName,
	}
	if err := s.repo.AppendNote(ctx, nil, note); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store enquiry note")
	}
	return note, nil
}

// AddActivity appends a manual activity entry to an active enquiry.
func (s *EnquiryService) AddActivity(ctx context.Context, id string, req AddActivityRequest, actor models.Actor) (*models.EnquiryActivity, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid activity payload")
	}
	enquiry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, loadError(err, "enquiry")
	}
	activity := &models.EnquiryActivity{
		EnquiryID: enquiry.ID,
		Action:    strings.TrimSpace(req.Action),
		Details:   strings.TrimSpace(req.Details),
		UserID:    actor.UserIDPtr(),
		UserName:  actor.UserName,
	}
	if err := s.repo.AppendActivity(ctx, nil, activity); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store enquiry activity")
	}
	return activity, nil
}

// Delete soft-deletes an enquiry.
func (s *EnquiryService) Delete(ctx context.Context, id string, actor models.Actor) error {
	enquiry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return loadError(err, "enquiry")
	}
	if err := s.repo.SoftDelete(ctx, nil, enquiry.ID, actor.UserIDPtr()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enquiry")
	}
	s.cache.InvalidateGroup(ctx, cacheGroupEnquiry)
	s.logger.Info("enquiry deleted", zap.String("enquiry_id", enquiry.EnquiryID))
	return nil
}

// Stats returns pipeline counts, served from cache when available. The bool reports a cache hit.
func (s *EnquiryService) Stats(ctx context.Context) (*models.EnquiryStats, bool, error) {
	key := cache.Key(cacheGroupEnquiry, "stats")
	var cached models.EnquiryStats
	if s.cache.Get(ctx, key, &cached) {
		return &cached, true, nil
	}
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute enquiry stats")
	}
	stats.GeneratedAt = time.Now().UTC()
	s.cache.Set(ctx, key, stats, 0)
	return stats, false, nil
}

// RecordNomination copies the enquiry's batch group onto a locked enquiry inside the caller's transaction.
func (s *EnquiryService) RecordNomination(ctx context.Context, exec sqlx.ExtContext, enquiry *models.Enquiry, batch *models.Batch, trainees []models.Trainee, actor models.Actor) error {
	if err := enquiry.ApplyNomination(batch, trainees, time.Now().UTC()); err != nil {
		return err
	}
	enquiry.UpdatedBy = actor.UserIDPtr()
	if err := s.repo.Update(ctx, exec, enquiry); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record nomination")
	}
	details := fmt.Sprintf("%d trainee(s) nominated to %s", len(trainees), batch.BatchID)
	return s.appendActivity(ctx, exec, enquiry.ID, models.ActivityNominated, details, actor)
}

// MarkScheduled moves a Nominated enquiry to Scheduled inside the caller's transaction.
// Enquiries in any other status are left alone.
func (s *EnquiryService) MarkScheduled(ctx context.Context, exec sqlx.ExtContext, enquiry *models.Enquiry, scheduleID string, actor models.Actor) error {
	if enquiry.Status != models.EnquiryStatusNominated {
		return nil
	}
	if err := enquiry.ApplyStatus(models.EnquiryStatusScheduled, false, time.Now().UTC()); err != nil {
		return err
	}
	enquiry.UpdatedBy = actor.UserIDPtr()
	if err := s.repo.Update(ctx, exec, enquiry); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark enquiry scheduled")
	}
	return s.appendActivity(ctx, exec, enquiry.ID, models.ActivityScheduled, "Class scheduled as "+scheduleID, actor)
}

// LockEnquiry locks an enquiry by row id or enquiry number inside the caller's transaction.
func (s *EnquiryService) LockEnquiry(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Enquiry, error) {
	enquiry, err := s.repo.LockByID(ctx, exec, id)
	if err != nil {
		return nil, loadError(err, "enquiry")
	}
	return enquiry, nil
}

// LockBatchEnquiries locks every enquiry folded into a batch, in id order.
func (s *EnquiryService) LockBatchEnquiries(ctx context.Context, exec sqlx.ExtContext, batchRef string) ([]models.Enquiry, error) {
	enquiries, err := s.repo.LockByBatch(ctx, exec, batchRef)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock batch enquiries")
	}
	return enquiries, nil
}

// InvalidateStats drops cached pipeline counts after writes made by other services.
func (s *EnquiryService) InvalidateStats(ctx context.Context) {
	s.cache.InvalidateGroup(ctx, cacheGroupEnquiry)
}

func (s *EnquiryService) appendActivity(ctx context.Context, exec sqlx.ExtContext, enquiryRef, action, details string, actor models.Actor) error {
	err := s.repo.AppendActivity(ctx, exec, &models.EnquiryActivity{
		EnquiryID: enquiryRef,
		Action:    action,
		Details:   details,
		UserID:    actor.UserIDPtr(),
		UserName:  actorName(actor),
	})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to append enquiry activity")
	}
	return nil
}

func actorName(actor models.Actor) string {
	if actor.UserName != "" {
		return actor.UserName
	}
	if actor.UserID != "" {
		return actor.UserID
	}
	return "system"
}
