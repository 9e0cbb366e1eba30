package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/training-admin-api/internal/models"
)

const scheduleColumns = `id, schedule_id, enquiry_ref, enquiry_id, batch_ref, batch_number, course, client, date,
start_time, end_time, room_id, room_name, trainer_id, trainer_name, session, status, notes, rescheduled_from,
created_by, updated_by, created_at, updated_at`

const conflictColumns = `schedule_id, start_time, end_time, room_id, room_name, trainer_id, trainer_name, course`

var blockingStatusList = fmt.Sprintf("'%s', '%s'", models.ScheduleStatusScheduled, models.ScheduleStatusInProgress)

// ScheduleRepository provides persistence for schedules.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// List returns schedules with optional filtering and pagination.
func (r *ScheduleRepository) List(ctx context.Context, filter models.ScheduleFilter) ([]models.Schedule, int, error) {
	w := scheduleConditions(filter)

	order := sortOrder(filter.SortOrder, "ASC")
	page, size := models.NormalizePage(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s FROM schedules%s ORDER BY date %s, start_time %s, schedule_id ASC LIMIT %d OFFSET %d",
		scheduleColumns, w.clause(), order, order, size, (page-1)*size)
	var schedules []models.Schedule
	if err := r.db.SelectContext(ctx, &schedules, query, w.args...); err != nil {
		return nil, 0, fmt.Errorf("list schedules: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM schedules"+w.clause(), w.args...); err != nil {
		return nil, 0, fmt.Errorf("count schedules: %w", err)
	}
	return schedules, total, nil
}

// ListBetween returns every schedule in the inclusive date range without paging, for calendar views.
func (r *ScheduleRepository) ListBetween(ctx context.Context, from, to time.Time, activeOnly bool) ([]models.Schedule, error) {
	w := scheduleConditions(models.ScheduleFilter{From: &from, To: &to, ActiveOnly: activeOnly})
	query := fmt.Sprintf("SELECT %s FROM schedules%s ORDER BY date ASC, start_time ASC, schedule_id ASC", scheduleColumns, w.clause())
	var schedules []models.Schedule
	if err := r.db.SelectContext(ctx, &schedules, query, w.args...); err != nil {
		return nil, fmt.Errorf("list schedules between: %w", err)
	}
	return schedules, nil
}

func scheduleConditions(filter models.ScheduleFilter) *whereBuilder {
	w := &whereBuilder{}
	if filter.From != nil {
		w.add("date >= $%d", *filter.From)
	}
	if filter.To != nil {
		w.add("date <= $%d", *filter.To)
	}
	if filter.RoomID != "" {
		w.add("room_id = $%d", filter.RoomID)
	}
	if filter.TrainerID != "" {
		w.add("trainer_id = $%d", filter.TrainerID)
	}
	if filter.Status != "" {
		w.add("status = $%d", filter.Status)
	}
	if filter.BatchRef != "" {
		w.add("batch_ref = $%d", filter.BatchRef)
	}
	if filter.EnquiryRef != "" {
		w.add("enquiry_ref = $%d", filter.EnquiryRef)
	}
	if filter.ActiveOnly {
		w.raw("status IN (" + blockingStatusList + ")")
	}
	return w
}

// FindByID loads a schedule by row id or schedule number.
func (r *ScheduleRepository) FindByID(ctx context.Context, id string) (*models.Schedule, error) {
	query := fmt.Sprintf("SELECT %s FROM schedules WHERE id::text = $1 OR schedule_id = $1", scheduleColumns)
	var sched models.Schedule
	if err := r.db.GetContext(ctx, &sched, query, id); err != nil {
		return nil, err
	}
	return &sched, nil
}

// LockByID loads a schedule and holds its row lock until the transaction ends.
func (r *ScheduleRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Schedule, error) {
	query := fmt.Sprintf("SELECT %s FROM schedules WHERE id::text = $1 OR schedule_id = $1 FOR UPDATE", scheduleColumns)
	var sched models.Schedule
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &sched, query, id); err != nil {
		return nil, err
	}
	return &sched, nil
}

// AcquireSlotLocks takes transaction-scoped advisory locks on the slot's room and trainer days.
func (r *ScheduleRepository) AcquireSlotLocks(ctx context.Context, exec sqlx.ExtContext, slot models.ScheduleSlot) error {
	for _, key := range slot.LockKeys() {
		if _, err := pick(r.db, exec).ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", key); err != nil {
			return fmt.Errorf("acquire slot lock %s: %w", key, err)
		}
	}
	return nil
}

// FindRoomConflicts returns blocking schedules in the same room whose interval overlaps the slot.
func (r *ScheduleRepository) FindRoomConflicts(ctx context.Context, exec sqlx.ExtContext, slot models.ScheduleSlot) ([]models.ScheduleConflict, error) {
	return r.findConflicts(ctx, exec, "room_id", slot.RoomID, slot)
}

// FindTrainerConflicts returns blocking schedules for the same trainer whose interval overlaps the slot.
func (r *ScheduleRepository) FindTrainerConflicts(ctx context.Context, exec sqlx.ExtContext, slot models.ScheduleSlot) ([]models.ScheduleConflict, error) {
	return r.findConflicts(ctx, exec, "trainer_id", slot.TrainerID, slot)
}

func (r *ScheduleRepository) findConflicts(ctx context.Context, exec sqlx.ExtContext, column, value string, slot models.ScheduleSlot) ([]models.ScheduleConflict, error) {
	w := &whereBuilder{}
	w.add(column+" = $%d", value)
	w.add("date = $%d", slot.Date)
	w.raw("status IN (" + blockingStatusList + ")")
	w.add("start_time < $%d", slot.EndTime)
	w.add("end_time > $%d", slot.StartTime)
	if slot.ExcludeID != "" {
		w.add("id::text <> $%d", slot.ExcludeID)
	}

	query := fmt.Sprintf("SELECT %s FROM schedules%s ORDER BY start_time ASC, schedule_id ASC", conflictColumns, w.clause())
	var conflicts []models.ScheduleConflict
	if err := sqlx.SelectContext(ctx, pick(r.db, exec), &conflicts, query, w.args...); err != nil {
		return nil, fmt.Errorf("find %s conflicts: %w", column, err)
	}
	return conflicts, nil
}

// Create inserts a new schedule.
func (r *ScheduleRepository) Create(ctx context.Context, exec sqlx.ExtContext, sched *models.Schedule) error {
	if sched.ID == "" {
		sched.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	sched.CreatedAt = now
	sched.UpdatedAt = now

	const query = `INSERT INTO schedules (id, schedule_id, enquiry_ref, enquiry_id, batch_ref, batch_number, course, client,
date, start_time, end_time, room_id, room_name, trainer_id, trainer_name, session, status, notes, rescheduled_from,
created_by, updated_by, created_at, updated_at)
VALUES (:id, :schedule_id, :enquiry_ref, :enquiry_id, :batch_ref, :batch_number, :course, :client,
:date, :start_time, :end_time, :room_id, :room_name, :trainer_id, :trainer_name, :session, :status, :notes, :rescheduled_from,
:created_by, :updated_by, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, sched); err != nil {
		return fmt.Errorf("create schedule: %w", err)
	}
	return nil
}

// Update writes the slot and descriptive columns of a schedule.
func (r *ScheduleRepository) Update(ctx context.Context, exec sqlx.ExtContext, sched *models.Schedule) error {
	sched.UpdatedAt = time.Now().UTC()
	const query = `UPDATE schedules SET date = :date, start_time = :start_time, end_time = :end_time,
room_id = :room_id, room_name = :room_name, trainer_id = :trainer_id, trainer_name = :trainer_name,
session = :session, notes = :notes, status = :status, updated_by = :updated_by, updated_at = :updated_at
WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, sched); err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	return nil
}

// UpdateStatus sets only the status column.
func (r *ScheduleRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.ScheduleStatus, actor *string) error {
	const query = `UPDATE schedules SET status = $2, updated_by = $3, updated_at = $4 WHERE id = $1`
	if _, err := pick(r.db, exec).ExecContext(ctx, query, id, status, actor, time.Now().UTC()); err != nil {
		return fmt.Errorf("update schedule status: %w", err)
	}
	return nil
}
