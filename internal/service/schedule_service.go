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

type scheduleRepository interface {
	List(ctx context.Context, filter models.ScheduleFilter) ([]models.Schedule, int, error)
	ListBetween(ctx context.Context, from, to time.Time, activeOnly bool) ([]models.Schedule, error)
	FindByID(ctx context.Context, id string) (*models.Schedule, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Schedule, error)
	AcquireSlotLocks(ctx context.Context, exec sqlx.ExtContext, slot models.ScheduleSlot) error
	FindRoomConflicts(ctx context.Context, exec sqlx.ExtContext, slot models.ScheduleSlot) ([]models.ScheduleConflict, error)
	FindTrainerConflicts(ctx context.Context, exec sqlx.ExtContext, slot models.ScheduleSlot) ([]models.ScheduleConflict, error)
	Create(ctx context.Context, exec sqlx.ExtContext, sched *models.Schedule) error
	Update(ctx context.Context, exec sqlx.ExtContext, sched *models.Schedule) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.ScheduleStatus, actor *string) error
}

type roomLookup interface {
	FindByID(ctx context.Context, id string) (*models.Room, error)
}

type trainerLookup interface {
	FindByID(ctx context.Context, id string) (*models.Trainer, error)
}

type scheduledBatches interface {
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Batch, error)
	Update(ctx context.Context, exec sqlx.ExtContext, batch *models.Batch) error
}

type scheduledEnquiries interface {
	LockEnquiry(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Enquiry, error)
	LockBatchEnquiries(ctx context.Context, exec sqlx.ExtContext, batchRef string) ([]models.Enquiry, error)
	MarkScheduled(ctx context.Context, exec sqlx.ExtContext, enquiry *models.Enquiry, scheduleID string, actor models.Actor) error
	InvalidateStats(ctx context.Context)
}

// CreateScheduleRequest books a room and trainer for an enquiry or a batch.
type CreateScheduleRequest struct {
	EnquiryID string  `json:"enquiry_id" validate:"required_without=BatchID"`
	BatchID   string  `json:"batch_id" validate:"required_without=EnquiryID"`
	Date      string  `json:"date" validate:"required"`
	StartTime string  `json:"start_time" validate:"required"`
	EndTime   string  `json:"end_time" validate:"required"`
	RoomID    string  `json:"room_id" validate:"required"`
	TrainerID string  `json:"trainer_id" validate:"required"`
	Session   *string `json:"session"`
	Notes     *string `json:"notes"`
}

// UpdateScheduleRequest edits an active schedule in place.
type UpdateScheduleRequest struct {
	Date      *string `json:"date"`
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
	RoomID    *string `json:"room_id"`
	TrainerID *string `json:"trainer_id"`
	Session   *string `json:"session"`
	Notes     *string `json:"notes"`
}

// RescheduleRequest moves an active schedule to a new slot, keeping the old record as history.
type RescheduleRequest struct {
	Date      string  `json:"date" validate:"required"`
	StartTime string  `json:"start_time" validate:"required"`
	EndTime   string  `json:"end_time" validate:"required"`
	RoomID    string  `json:"room_id"`
	TrainerID string  `json:"trainer_id"`
	Reason    *string `json:"reason"`
}

// ChangeScheduleStatusRequest moves a schedule along its lifecycle.
type ChangeScheduleStatusRequest struct {
	Status models.ScheduleStatus `json:"status" validate:"required"`
}

// ScheduleService books rooms and trainers without double-booking either.
type ScheduleService struct {
	tx        txProvider
	repo      scheduleRepository
	rooms     roomLookup
	trainers  trainerLookup
	batches   scheduledBatches
	enquiries scheduledEnquiries
	ids       idAllocator
	validator *validator.Validate
	cache     *CacheService
	events    eventSink
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewScheduleService instantiates ScheduleService.
func NewScheduleService(tx txProvider, repo scheduleRepository, rooms roomLookup, trainers trainerLookup, batches scheduledBatches, enquiries scheduledEnquiries, ids idAllocator, validate *validator.Validate, cacheSvc *CacheService, events eventSink, metrics *MetricsService, logger *zap.Logger) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if events == nil {
		events = noopEvents{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{
		tx:        tx,
		repo:      repo,
		rooms:     rooms,
		trainers:  trainers,
		batches:   batches,
		enquiries: enquiries,
		ids:       ids,
		validator: validate,
		cache:     cacheSvc,
		events:    events,
		metrics:   metrics,
		logger:    logger,
	}
}

// List returns schedules with pagination metadata.
func (s *ScheduleService) List(ctx context.Context, filter models.ScheduleFilter) ([]models.Schedule, *models.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown schedule status %q", filter.Status))
	}
	schedules, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedules")
	}
	if schedules == nil {
		schedules = []models.Schedule{}
	}
	return schedules, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a schedule by row id or schedule number.
func (s *ScheduleService) Get(ctx context.Context, id string) (*models.Schedule, error) {
	sched, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, loadError(err, "schedule")
	}
	return sched, nil
}

// Weekly returns the active schedules of an ISO week laid out per day.
func (s *ScheduleService) Weekly(ctx context.Context, week string) (*models.ScheduleCalendar, bool, error) {
	from, to, err := models.ISOWeekRange(week)
	if err != nil {
		return nil, false, err
	}
	year, num := from.ISOWeek()
	return s.calendar(ctx, "week", fmt.Sprintf("%04d-W%02d", year, num), from, to)
}

// Monthly returns the active schedules of a calendar month laid out per day.
func (s *ScheduleService) Monthly(ctx context.Context, month string) (*models.ScheduleCalendar, bool, error) {
	from, to, err := models.MonthRange(month)
	if err != nil {
		return nil, false, err
	}
	return s.calendar(ctx, "month", from.Format("2006-01"), from, to)
}

func (s *ScheduleService) calendar(ctx context.Context, period, label string, from, to time.Time) (*models.ScheduleCalendar, bool, error) {
	key := cache.Key(cacheGroupSchedule, period, label)
	var cached models.ScheduleCalendar
	if s.cache.Get(ctx, key, &cached) {
		return &cached, true, nil
	}

	schedules, err := s.repo.ListBetween(ctx, from, to, true)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load "+period+" schedules")
	}
	cal := models.BuildCalendar(label, from, to, schedules)
	s.cache.Set(ctx, key, cal, 0)
	return &cal, false, nil
}

// Create validates the slot against room and trainer bookings and persists it. The linked
// batch picks up the slot, and Nominated enquiries behind it move to Scheduled.
func (s *ScheduleService) Create(ctx context.Context, req CreateScheduleRequest, actor models.Actor) (result *models.Schedule, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}
	date, err := models.ParseDate(req.Date)
	if err != nil {
		return nil, err
	}
	if req.StartTime, req.EndTime, err = models.ValidateInterval(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}
	room, trainer, err := s.resources(ctx, req.RoomID, req.TrainerID)
	if err != nil {
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

	slot := models.ScheduleSlot{RoomID: room.ID, TrainerID: trainer.ID, Date: date, StartTime: req.StartTime, EndTime: req.EndTime}
	if err = s.checkSlot(ctx, tx, slot); err != nil {
		return nil, err
	}

	sched := &models.Schedule{
		Date:        date,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		RoomID:      room.ID,
		RoomName:    room.Name,
		TrainerID:   trainer.ID,
		TrainerName: trainer.Name,
		Session:     req.Session,
		Notes:       req.Notes,
		Status:      models.ScheduleStatusScheduled,
		CreatedBy:   actor.UserIDPtr(),
		UpdatedBy:   actor.UserIDPtr(),
	}

	var batch *models.Batch
	if req.BatchID != "" {
		if batch, err = s.batches.LockByID(ctx, tx, req.BatchID); err != nil {
			err = loadError(err, "batch")
			return nil, err
		}
		if batch.Status == models.BatchStatusCompleted || batch.Status == models.BatchStatusCancelled {
			err = appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("batch %s is %s and cannot be scheduled", batch.BatchID, batch.Status))
			return nil, err
		}
		sched.BatchRef = &batch.ID
		sched.BatchNumber = &batch.BatchID
		sched.Course = batch.CourseName
	}

	var affected []models.Enquiry
	if batch != nil {
		if affected, err = s.enquiries.LockBatchEnquiries(ctx, tx, batch.ID); err != nil {
			return nil, err
		}
	}
	if req.EnquiryID != "" {
		var enquiry *models.Enquiry
		if enquiry, err = s.enquiries.LockEnquiry(ctx, tx, req.EnquiryID); err != nil {
			return nil, err
		}
		sched.EnquiryRef = &enquiry.ID
		sched.EnquiryID = &enquiry.EnquiryID
		client := enquiry.Client
		sched.Client = &client
		if sched.Course == "" {
			sched.Course = enquiry.Course
		}
		affected = appendUniqueEnquiry(affected, *enquiry)
	}

	if sched.ScheduleID, err = s.ids.NextScheduleID(ctx, tx); err != nil {
		return nil, err
	}
	if err = s.repo.Create(ctx, tx, sched); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create schedule")
		return nil, err
	}

	if batch != nil {
		scheduleAssignment{Date: date, StartTime: req.StartTime, EndTime: req.EndTime, Room: *room, Trainer: *trainer}.apply(batch)
		batch.UpdatedBy = actor.UserIDPtr()
		if err = s.batches.Update(ctx, tx, batch); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign schedule to batch")
			return nil, err
		}
	}
	for i := range affected {
		if err = s.enquiries.MarkScheduled(ctx, tx, &affected[i], sched.ScheduleID, actor); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit schedule")
		return nil, err
	}

	s.cache.InvalidateGroup(ctx, cacheGroupSchedule)
	if len(affected) > 0 {
		s.enquiries.InvalidateStats(ctx)
	}
	s.events.Dispatch(models.DomainEvent{Type: models.EventScheduleCreated, Actor: actor, Payload: sched})
	s.logger.Info("schedule created",
		zap.String("schedule_id", sched.ScheduleID),
		zap.String("room_id", sched.RoomID),
		zap.String("trainer_id", sched.TrainerID),
		zap.String("date", sched.Date.Format(models.DateLayout)),
		zap.Int("enquiries", len(affected)))
	return sched, nil
}

// Update changes an active schedule's slot or notes, re-checking conflicts against everything but itself.
func (s *ScheduleService) Update(ctx context.Context, id string, req UpdateScheduleRequest, actor models.Actor) (result *models.Schedule, err error) {
	tx, err := beginTx(ctx, s.tx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	sched, err := s.repo.LockByID(ctx, tx, id)
	if err != nil {
		err = loadError(err, "schedule")
		return nil, err
	}
	if !sched.Status.Blocking() {
		err = appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("schedule %s is %s and can no longer be edited", sched.ScheduleID, sched.Status))
		return nil, err
	}

	if req.Date != nil {
		if sched.Date, err = models.ParseDate(*req.Date); err != nil {
			return nil, err
		}
	}
	if req.StartTime != nil {
		sched.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		sched.EndTime = *req.EndTime
	}
	if sched.StartTime, sched.EndTime, err = models.ValidateInterval(sched.StartTime, sched.EndTime); err != nil {
		return nil, err
	}
	if req.RoomID != nil || req.TrainerID != nil {
		roomID, trainerID := sched.RoomID, sched.TrainerID
		if req.RoomID != nil {
			roomID = *req.RoomID
		}
		if req.TrainerID != nil {
			trainerID = *req.TrainerID
		}
		var room *models.Room
		var trainer *models.Trainer
		if room, trainer, err = s.resources(ctx, roomID, trainerID); err != nil {
			return nil, err
		}
		sched.RoomID, sched.RoomName = room.ID, room.Name
		sched.TrainerID, sched.TrainerName = trainer.ID, trainer.Name
	}
	if req.Session != nil {
		sched.Session = req.Session
	}
	if req.Notes != nil {
		sched.Notes = req.Notes
	}

	slot := models.ScheduleSlot{ExcludeID: sched.ID, RoomID: sched.RoomID, TrainerID: sched.TrainerID, Date: sched.Date, StartTime: sched.StartTime, EndTime: sched.EndTime}
	if err = s.checkSlot(ctx, tx, slot); err != nil {
		return nil, err
	}
	sched.UpdatedBy = actor.UserIDPtr()
	if err = s.repo.Update(ctx, tx, sched); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update schedule")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit schedule update")
		return nil, err
	}

	s.cache.InvalidateGroup(ctx, cacheGroupSchedule)
	return sched, nil
}

// Reschedule retires an active schedule as Rescheduled and books its replacement in one transaction.
func (s *ScheduleService) Reschedule(ctx context.Context, id string, req RescheduleRequest, actor models.Actor) (result *models.Schedule, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reschedule payload")
	}
	date, err := models.ParseDate(req.Date)
	if err != nil {
		return nil, err
	}
	if req.StartTime, req.EndTime, err = models.ValidateInterval(req.StartTime, req.EndTime); err != nil {
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

	old, err := s.repo.LockByID(ctx, tx, id)
	if err != nil {
		err = loadError(err, "schedule")
		return nil, err
	}
	if err = models.ValidateScheduleTransition(old.Status, models.ScheduleStatusRescheduled); err != nil {
		return nil, err
	}

	roomID, trainerID := old.RoomID, old.TrainerID
	if req.RoomID != "" {
		roomID = req.RoomID
	}
	if req.TrainerID != "" {
		trainerID = req.TrainerID
	}
	room, trainer, err := s.resources(ctx, roomID, trainerID)
	if err != nil {
		return nil, err
	}

	slot := models.ScheduleSlot{ExcludeID: old.ID, RoomID: room.ID, TrainerID: trainer.ID, Date: date, StartTime: req.StartTime, EndTime: req.EndTime}
	if err = s.checkSlot(ctx, tx, slot); err != nil {
		return nil, err
	}
	if err = s.repo.UpdateStatus(ctx, tx, old.ID, models.ScheduleStatusRescheduled, actor.UserIDPtr()); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to retire schedule")
		return nil, err
	}

	next := *old
	next.ID = ""
	next.Date = date
	next.StartTime = req.StartTime
	next.EndTime = req.EndTime
	next.RoomID, next.RoomName = room.ID, room.Name
	next.TrainerID, next.TrainerName = trainer.ID, trainer.Name
	next.Status = models.ScheduleStatusScheduled
	next.RescheduledFrom = &old.ID
	next.CreatedBy = actor.UserIDPtr()
	next.UpdatedBy = actor.UserIDPtr()
	if req.Reason != nil {
		next.Notes = req.Reason
	}
	if next.ScheduleID, err = s.ids.NextScheduleID(ctx, tx); err != nil {
		return nil, err
	}
	if err = s.repo.Create(ctx, tx, &next); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create replacement schedule")
		return nil, err
	}

	if old.BatchRef != nil {
		var batch *models.Batch
		if batch, err = s.batches.LockByID(ctx, tx, *old.BatchRef); err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				err = loadError(err, "batch")
				return nil, err
			}
			err = nil
		} else {
			scheduleAssignment{Date: date, StartTime: req.StartTime, EndTime: req.EndTime, Room: *room, Trainer: *trainer}.apply(batch)
			batch.UpdatedBy = actor.UserIDPtr()
			if err = s.batches.Update(ctx, tx, batch); err != nil {
				err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to move batch to new slot")
				return nil, err
			}
		}
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit reschedule")
		return nil, err
	}

	s.cache.InvalidateGroup(ctx, cacheGroupSchedule)
	s.events.Dispatch(models.DomainEvent{
		Type:  models.EventScheduleRescheduled,
		Actor: actor,
		Payload: map[string]interface{}{
			"previous_schedule_id": old.ScheduleID,
			"schedule":             next,
		},
	})
	s.logger.Info("schedule rescheduled", zap.String("from", old.ScheduleID), zap.String("to", next.ScheduleID))
	return &next, nil
}

// ChangeStatus applies a schedule lifecycle transition. Records leaving the blocking
// statuses stop taking part in conflict checks.
func (s *ScheduleService) ChangeStatus(ctx context.Context, id string, req ChangeScheduleStatusRequest, actor models.Actor) (result *models.Schedule, err error) {
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

	sched, err := s.repo.LockByID(ctx, tx, id)
	if err != nil {
		err = loadError(err, "schedule")
		return nil, err
	}
	from := sched.Status
	if err = models.ValidateScheduleTransition(from, req.Status); err != nil {
		return nil, err
	}
	if err = s.repo.UpdateStatus(ctx, tx, sched.ID, req.Status, actor.UserIDPtr()); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update schedule status")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit schedule status")
		return nil, err
	}

	sched.Status = req.Status
	sched.UpdatedBy = actor.UserIDPtr()
	s.cache.InvalidateGroup(ctx, cacheGroupSchedule)
	s.logger.Info("schedule status changed", zap.String("schedule_id", sched.ScheduleID), zap.String("from", string(from)), zap.String("to", string(sched.Status)))
	return sched, nil
}

// checkSlot takes the slot's advisory locks and fails on the first room, then trainer, overlap.
func (s *ScheduleService) checkSlot(ctx context.Context, exec sqlx.ExtContext, slot models.ScheduleSlot) error {
	if err := s.repo.AcquireSlotLocks(ctx, exec, slot); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock schedule slot")
	}

	rooms, err := s.repo.FindRoomConflicts(ctx, exec, slot)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check room conflicts")
	}
	if len(rooms) > 0 {
		return s.conflict(models.ConflictDimensionRoom, slot, rooms[0])
	}

	trainers, err := s.repo.FindTrainerConflicts(ctx, exec, slot)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check trainer conflicts")
	}
	if len(trainers) > 0 {
		return s.conflict(models.ConflictDimensionTrainer, slot, trainers[0])
	}
	return nil
}

func (s *ScheduleService) conflict(dimension string, slot models.ScheduleSlot, existing models.ScheduleConflict) error {
	existing.Dimension = dimension
	existing.Date = slot.Date.Format(models.DateLayout)
	s.metrics.RecordScheduleConflict(dimension)
	s.logger.Debug("schedule conflict",
		zap.String("dimension", dimension),
		zap.String("blocking_schedule", existing.ScheduleID),
		zap.String("date", existing.Date))

	if dimension == models.ConflictDimensionRoom {
		return appErrors.WithDetails(appErrors.ErrRoomConflict,
			fmt.Sprintf("room %s is booked %s-%s on %s by %s", existing.RoomName, existing.StartTime, existing.EndTime, existing.Date, existing.ScheduleID),
			existing)
	}
	return appErrors.WithDetails(appErrors.ErrTrainerConflict,
		fmt.Sprintf("trainer %s is scheduled %s-%s on %s by %s", existing.TrainerName, existing.StartTime, existing.EndTime, existing.Date, existing.ScheduleID),
		existing)
}

func (s *ScheduleService) resources(ctx context.Context, roomID, trainerID string) (*models.Room, *models.Trainer, error) {
	room, err := s.rooms.FindByID(ctx, strings.TrimSpace(roomID))
	if err != nil {
		return nil, nil, loadError(err, "room")
	}
	if !room.Bookable() {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("room %s is not available for booking", room.Name))
	}
	trainer, err := s.trainers.FindByID(ctx, strings.TrimSpace(trainerID))
	if err != nil {
		return nil, nil, loadError(err, "trainer")
	}
	if !trainer.Bookable() {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("trainer %s is not available for scheduling", trainer.Name))
	}
	return room, trainer, nil
}

func appendUniqueEnquiry(list []models.Enquiry, enquiry models.Enquiry) []models.Enquiry {
	for _, existing := range list {
		if existing.ID == enquiry.ID {
			return list
		}
	}
	return append(list, enquiry)
}
