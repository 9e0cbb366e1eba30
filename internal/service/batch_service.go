package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/training-admin-api/internal/models"
	appErrors "github.com/noah-isme/training-admin-api/pkg/errors"
	"github.com/noah-isme/training-admin-api/pkg/export"
)

type batchRepository interface {
	FindByID(ctx context.Context, id string) (*models.Batch, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Batch, error)
	FindAvailable(ctx context.Context, courseName string) ([]models.Batch, error)
	List(ctx context.Context, filter models.BatchFilter) ([]models.Batch, int, error)
	Create(ctx context.Context, exec sqlx.ExtContext, batch *models.Batch) error
	Update(ctx context.Context, exec sqlx.ExtContext, batch *models.Batch) error
	SoftDelete(ctx context.Context, exec sqlx.ExtContext, id string, actor *string) error
	LinkEnquiry(ctx context.Context, exec sqlx.ExtContext, batchRef, enquiryRef string) error
	ListEnquiryIDs(ctx context.Context, exec sqlx.ExtContext, batchRef string) ([]string, error)
}

type nominationRecorder interface {
	LockEnquiry(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Enquiry, error)
	RecordNomination(ctx context.Context, exec sqlx.ExtContext, enquiry *models.Enquiry, batch *models.Batch, trainees []models.Trainee, actor models.Actor) error
	InvalidateStats(ctx context.Context)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// NominateRequest replaces one client's trainee group in a batch.
type NominateRequest struct {
	ClientName string            `json:"client_name" validate:"required"`
	ClientType models.ClientType `json:"client_type" validate:"omitempty,oneof=Company Individual"`
	EnquiryID  string            `json:"enquiry_id"`
	Trainees   []models.Trainee  `json:"trainees" validate:"required,min=1,dive"`
}

// CreateBatchRequest opens a new batch, optionally seeded with client groups.
type CreateBatchRequest struct {
	CourseName    string            `json:"course_name" validate:"required"`
	ClassCapacity *int              `json:"class_capacity" validate:"omitempty,gte=1"`
	Date          *string           `json:"date"`
	Session       models.Session    `json:"session"`
	StartTime     *string           `json:"start_time"`
	EndTime       *string           `json:"end_time"`
	Nominees      []NominateRequest `json:"nominees" validate:"omitempty,dive"`
}

// UpdateBatchRequest edits logistics of a batch that is not finished.
type UpdateBatchRequest struct {
	ClassCapacity *int            `json:"class_capacity" validate:"omitempty,gte=1"`
	Date          *string         `json:"date"`
	Session       *models.Session `json:"session"`
	StartTime     *string         `json:"start_time"`
	EndTime       *string         `json:"end_time"`
	Room          *string         `json:"room"`
	RoomRef       *string         `json:"room_ref"`
	Trainer       *string         `json:"trainer"`
	TrainerRef    *string         `json:"trainer_ref"`
}

// ChangeBatchStatusRequest moves a batch along its lifecycle.
type ChangeBatchStatusRequest struct {
	Status models.BatchStatus `json:"status" validate:"required"`
}

// RosterFile is a rendered roster export.
type RosterFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// BatchService allocates trainees into class batches under a capacity ceiling.
type BatchService struct {
	tx              txProvider
	repo            batchRepository
	courses         courseLookup
	ids             idAllocator
	enquiries       nominationRecorder
	validator       *validator.Validate
	csv             datasetRenderer
	pdf             datasetRenderer
	events          eventSink
	metrics         *MetricsService
	logger          *zap.Logger
	defaultCapacity int
}

// NewBatchService constructs the batch service.
func NewBatchService(tx txProvider, repo batchRepository, courses courseLookup, ids idAllocator, enquiries nominationRecorder, validate *validator.Validate, events eventSink, metrics *MetricsService, logger *zap.Logger, defaultCapacity int) *BatchService {
	if validate == nil {
		validate = validator.New()
	}
	if events == nil {
		events = noopEvents{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultCapacity < 1 {
		defaultCapacity = models.DefaultClassCapacity
	}
	return &BatchService{
		tx:              tx,
		repo:            repo,
		courses:         courses,
		ids:             ids,
		enquiries:       enquiries,
		validator:       validate,
		csv:             export.NewCSVExporter(),
		pdf:             export.NewPDFExporter(),
		events:          events,
		metrics:         metrics,
		logger:          logger,
		defaultCapacity: defaultCapacity,
	}
}

// FindAvailable returns open batches of a course with free seats, soonest first.
func (s *BatchService) FindAvailable(ctx context.Context, courseName string) ([]models.Batch, error) {
	courseName = strings.TrimSpace(courseName)
	if courseName == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course name is required")
	}
	batches, err := s.repo.FindAvailable(ctx, courseName)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to find available batches")
	}
	if batches == nil {
		batches = []models.Batch{}
	}
	return batches, nil
}

// List returns batches and pagination metadata.
func (s *BatchService) List(ctx context.Context, filter models.BatchFilter) ([]models.Batch, *models.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown batch status %q", filter.Status))
	}
	batches, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list batches")
	}
	if batches == nil {
		batches = []models.Batch{}
	}
	return batches, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a batch with its linked enquiry numbers.
func (s *BatchService) Get(ctx context.Context, id string) (*models.Batch, error) {
	batch, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, loadError(err, "batch")
	}
	if batch.Enquiries, err = s.repo.ListEnquiryIDs(ctx, nil, batch.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch enquiries")
	}
	return batch, nil
}

// Create opens a Draft batch. Capacity falls back to the course, then to the configured default.
func (s *BatchService) Create(ctx context.Context, req CreateBatchRequest, actor models.Actor) (result *models.Batch, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch payload")
	}

	batch := &models.Batch{
		CourseName: strings.TrimSpace(req.CourseName),
		Session:    models.SessionMorning,
		Status:     models.BatchStatusDraft,
		Nominees:   models.ClientGroups{},
		CreatedBy:  actor.UserIDPtr(),
		UpdatedBy:  actor.UserIDPtr(),
	}
	if req.Session != "" {
		batch.Session = req.Session
	}
	if !batch.Session.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown session %q", batch.Session))
	}
	if err := applyBatchLogistics(batch, req.Date, req.StartTime, req.EndTime); err != nil {
		return nil, err
	}

	course, err := s.lookupCourse(ctx, batch.CourseName)
	if err != nil {
		return nil, err
	}
	batch.ClassCapacity = s.defaultCapacity
	if course != nil {
		batch.CourseRef = &course.ID
		if course.ClassCapacity != nil && *course.ClassCapacity >= 1 {
			batch.ClassCapacity = *course.ClassCapacity
		}
	}
	if req.ClassCapacity != nil {
		batch.ClassCapacity = *req.ClassCapacity
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

	if batch.BatchID, err = s.ids.NextBatchID(ctx, tx, batch.CourseName); err != nil {
		return nil, err
	}
	linked := make([]*models.Enquiry, 0, len(req.Nominees))
	for _, group := range req.Nominees {
		var enquiry *models.Enquiry
		if enquiry, err = s.lockNominatingEnquiry(ctx, tx, group.EnquiryID); err != nil {
			return nil, err
		}
		if err = batch.NominateGroup(nominationGroup(group, enquiry)); err != nil {
			return nil, err
		}
		if enquiry != nil {
			linked = append(linked, enquiry)
		}
	}
	batch.Recalculate()
	if err = s.repo.Create(ctx, tx, batch); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create batch")
		return nil, err
	}
	for _, enquiry := range linked {
		if err = s.linkEnquiry(ctx, tx, batch, enquiry, actor); err != nil {
			return nil, err
		}
	}
	if batch.Enquiries, err = s.repo.ListEnquiryIDs(ctx, tx, batch.ID); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch enquiries")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit batch")
		return nil, err
	}

	if len(batch.Enquiries) > 0 {
		s.enquiries.InvalidateStats(ctx)
	}
	s.logger.Info("batch created",
		zap.String("batch_id", batch.BatchID),
		zap.String("course", batch.CourseName),
		zap.Int("class_capacity", batch.ClassCapacity),
		zap.Int("nominated", batch.Nominated))
	return batch, nil
}

func (s *BatchService) lookupCourse(ctx context.Context, name string) (*models.Course, error) {
	if s.courses == nil {
		return nil, nil
	}
	course, err := s.courses.FindByName(ctx, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Nominate replaces a client's trainees in the batch under the batch row lock. When an
// enquiry is named, its nominee projection is synchronised in the same transaction.
func (s *BatchService) Nominate(ctx context.Context, id string, req NominateRequest, actor models.Actor) (result *models.Batch, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid nomination payload")
	}

	tx, err := beginTx(ctx, s.tx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			s.metrics.RecordNomination(NominationRejected)
		}
	}()

	batch, err := s.repo.LockByID(ctx, tx, id)
	if err != nil {
		err = loadError(err, "batch")
		return nil, err
	}
	if !batch.Status.AcceptsNominations() {
		err = appErrors.WithDetails(appErrors.ErrInvalidTransition,
			fmt.Sprintf("batch %s is %s and no longer accepts nominations", batch.BatchID, batch.Status),
			map[string]interface{}{"batch_id": batch.BatchID, "status": batch.Status})
		return nil, err
	}
	enquiry, err := s.lockNominatingEnquiry(ctx, tx, req.EnquiryID)
	if err != nil {
		return nil, err
	}
	if err = batch.NominateGroup(nominationGroup(req, enquiry)); err != nil {
		return nil, err
	}
	if enquiry != nil {
		if err = s.linkEnquiry(ctx, tx, batch, enquiry, actor); err != nil {
			return nil, err
		}
	}
	batch.UpdatedBy = actor.UserIDPtr()
	if err = s.repo.Update(ctx, tx, batch); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update batch roster")
		return nil, err
	}
	if batch.Enquiries, err = s.repo.ListEnquiryIDs(ctx, tx, batch.ID); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch enquiries")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit nomination")
		return nil, err
	}

	s.metrics.RecordNomination(NominationAccepted)
	if req.EnquiryID != "" {
		s.enquiries.InvalidateStats(ctx)
	}
	s.events.Dispatch(models.DomainEvent{
		Type:  models.EventBatchNominated,
		Actor: actor,
		Payload: map[string]interface{}{
			"batch_id":   batch.BatchID,
			"client":     req.ClientName,
			"enquiry_id": req.EnquiryID,
			"trainees":   len(req.Trainees),
			"nominated":  batch.Nominated,
			"pending":    batch.Pending,
		},
	})
	s.logger.Info("trainees nominated",
		zap.String("batch_id", batch.BatchID),
		zap.String("client", req.ClientName),
		zap.Int("trainees", len(req.Trainees)),
		zap.Int("nominated", batch.Nominated),
		zap.Int("pending", batch.Pending))
	return batch, nil
}

// lockNominatingEnquiry locks the enquiry named by a nomination; it returns nil when none is named.
// The batch row is always locked first.
func (s *BatchService) lockNominatingEnquiry(ctx context.Context, tx sqlx.ExtContext, id string) (*models.Enquiry, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	if s.enquiries == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "enquiry service unavailable")
	}
	return s.enquiries.LockEnquiry(ctx, tx, id)
}

func nominationGroup(req NominateRequest, enquiry *models.Enquiry) models.ClientGroup {
	group := models.ClientGroup{Name: req.ClientName, Type: req.ClientType, Students: req.Trainees}
	if enquiry != nil {
		group.EnquiryRef = enquiry.ID
	}
	return group
}

func (s *BatchService) linkEnquiry(ctx context.Context, tx sqlx.ExtContext, batch *models.Batch, enquiry *models.Enquiry, actor models.Actor) error {
	group, _ := batch.GroupFor(enquiry.ID)
	if err := s.enquiries.RecordNomination(ctx, tx, enquiry, batch, group.Students, actor); err != nil {
		return err
	}
	if err := s.repo.LinkEnquiry(ctx, tx, batch.ID, enquiry.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to link enquiry to batch")
	}
	return nil
}

// Update edits batch logistics. Capacity may not drop below the current roster size.
func (s *BatchService) Update(ctx context.Context, id string, req UpdateBatchRequest, actor models.Actor) (result *models.Batch, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch payload")
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

	batch, err := s.repo.LockByID(ctx, tx, id)
	if err != nil {
		err = loadError(err, "batch")
		return nil, err
	}
	if batch.Status == models.BatchStatusCompleted || batch.Status == models.BatchStatusCancelled {
		err = appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("batch %s is %s and can no longer be edited", batch.BatchID, batch.Status))
		return nil, err
	}

	if req.Session != nil {
		if !req.Session.Valid() {
			err = appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown session %q", *req.Session))
			return nil, err
		}
		batch.Session = *req.Session
	}
	if err = applyBatchLogistics(batch, req.Date, req.StartTime, req.EndTime); err != nil {
		return nil, err
	}
	if req.ClassCapacity != nil {
		if total := batch.TotalStudents(); *req.ClassCapacity < total {
			err = appErrors.WithDetails(appErrors.ErrCapacityExceeded,
				fmt.Sprintf("batch %s already holds %d trainees", batch.BatchID, total),
				models.CapacityDetails{BatchID: batch.BatchID, Capacity: *req.ClassCapacity, Nominated: total, Requested: total})
			return nil, err
		}
		batch.ClassCapacity = *req.ClassCapacity
	}
	if req.Room != nil {
		batch.Room = req.Room
	}
	if req.RoomRef != nil {
		batch.RoomRef = req.RoomRef
	}
	if req.Trainer != nil {
		batch.Trainer = req.Trainer
	}
	if req.TrainerRef != nil {
		batch.TrainerRef = req.TrainerRef
	}
	batch.Recalculate()
	batch.UpdatedBy = actor.UserIDPtr()

	if err = s.repo.Update(ctx, tx, batch); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update batch")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit batch update")
		return nil, err
	}
	return batch, nil
}

// ChangeStatus applies a batch lifecycle transition.
func (s *BatchService) ChangeStatus(ctx context.Context, id string, req ChangeBatchStatusRequest, actor models.Actor) (result *models.Batch, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
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

	batch, err := s.repo.LockByID(ctx, tx, id)
	if err != nil {
		err = loadError(err, "batch")
		return nil, err
	}
	from := batch.Status
	if err = models.ValidateBatchTransition(from, req.Status); err != nil {
		return nil, err
	}
	batch.Status = req.Status
	batch.UpdatedBy = actor.UserIDPtr()
	if err = s.repo.Update(ctx, tx, batch); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update batch status")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit batch status")
		return nil, err
	}
	s.logger.Info("batch status changed", zap.String("batch_id", batch.BatchID), zap.String("from", string(from)), zap.String("to", string(batch.Status)))
	return batch, nil
}

// Delete soft-deletes a batch that holds no trainees, or one already cancelled.
func (s *BatchService) Delete(ctx context.Context, id string, actor models.Actor) error {
	batch, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return loadError(err, "batch")
	}
	if batch.TotalStudents() > 0 && batch.Status != models.BatchStatusCancelled {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("batch %s still holds %d trainees; cancel it first", batch.BatchID, batch.TotalStudents()))
	}
	if err := s.repo.SoftDelete(ctx, nil, batch.ID, actor.UserIDPtr()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete batch")
	}
	return nil
}

// Roster renders the batch roster as CSV or PDF.
func (s *BatchService) Roster(ctx context.Context, id string, rawFormat string) (*RosterFile, error) {
	format, err := export.ParseFormat(strings.ToLower(strings.TrimSpace(rawFormat)))
	if err != nil {
		return nil, appErrors.Validation(err, err.Error())
	}
	batch, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, loadError(err, "batch")
	}

	renderer := s.csv
	if format == export.FormatPDF {
		renderer = s.pdf
	}
	body, err := renderer.Render(rosterDataset(batch))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
	}
	return &RosterFile{
		Filename:    fmt.Sprintf("%s-roster.%s", batch.BatchID, format),
		ContentType: format.ContentType(),
		Body:        body,
	}, nil
}

func rosterDataset(batch *models.Batch) export.Dataset {
	subtitle := []string{batch.CourseName, string(batch.Session)}
	if batch.Date != nil {
		subtitle = append(subtitle, batch.Date.Format(models.DateLayout))
	}
	subtitle = append(subtitle, fmt.Sprintf("%d of %d seats filled", batch.TotalStudents(), batch.ClassCapacity))

	data := export.Dataset{
		Title:    "Batch roster " + batch.BatchID,
		Subtitle: strings.Join(subtitle, " | "),
		Headers:  []string{"#", "Client", "Client Type", "Civil ID", "Name", "Contact Number", "Email", "Language"},
	}
	for i, entry := range batch.Roster() {
		data.Rows = append(data.Rows, []string{
			strconv.Itoa(i + 1),
			entry.Client,
			string(entry.ClientType),
			entry.CivilID,
			entry.Name,
			entry.ContactNumber,
			entry.Email,
			entry.Language,
		})
	}
	return data
}

func applyBatchLogistics(batch *models.Batch, date, start, end *string) error {
	if date != nil {
		if strings.TrimSpace(*date) == "" {
			batch.Date = nil
		} else {
			d, err := models.ParseDate(*date)
			if err != nil {
				return err
			}
			batch.Date = &d
		}
	}
	var err error
	if batch.StartTime, err = batchClock(batch.StartTime, start); err != nil {
		return err
	}
	if batch.EndTime, err = batchClock(batch.EndTime, end); err != nil {
		return err
	}
	if batch.StartTime != nil && batch.EndTime != nil {
		_, _, err = models.ValidateInterval(*batch.StartTime, *batch.EndTime)
	}
	return err
}

// batchClock applies an optional clock edit; an empty value clears it.
func batchClock(current, edit *string) (*string, error) {
	if edit == nil {
		return current, nil
	}
	if strings.TrimSpace(*edit) == "" {
		return nil, nil
	}
	clock, err := models.NormalizeClock(*edit)
	if err != nil {
		return nil, err
	}
	return &clock, nil
}

// scheduleAssignment carries the slot a confirmed schedule gives to its batch.
type scheduleAssignment struct {
	Date      time.Time
	StartTime string
	EndTime   string
	Room      models.Room
	Trainer   models.Trainer
}

func (a scheduleAssignment) apply(batch *models.Batch) {
	date := a.Date
	start, end := a.StartTime, a.EndTime
	room, roomRef := a.Room.Name, a.Room.ID
	trainer, trainerRef := a.Trainer.Name, a.Trainer.ID
	batch.Date = &date
	batch.StartTime = &start
	batch.EndTime = &end
	batch.Room = &room
	batch.RoomRef = &roomRef
	batch.Trainer = &trainer
	batch.TrainerRef = &trainerRef
	if batch.Status == models.BatchStatusDraft {
		batch.Status = models.BatchStatusConfirmed
	}
}
