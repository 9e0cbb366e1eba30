package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/training-admin-api/internal/models"
)

const batchColumns = `id, batch_id, course_name, course_ref, date, session, start_time, end_time, class_capacity,
nominees, nominated, pending, room, room_ref, trainer, trainer_ref, status, is_active,
created_by, updated_by, created_at, updated_at`

const batchByKey = `(id::text = $1 OR batch_id = $1) AND is_active = TRUE`

// BatchRepository persists class batches and their enquiry links.
type BatchRepository struct {
	db *sqlx.DB
}

// NewBatchRepository constructs the repository.
func NewBatchRepository(db *sqlx.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// FindByID loads an active batch by row id or batch number.
func (r *BatchRepository) FindByID(ctx context.Context, id string) (*models.Batch, error) {
	query := fmt.Sprintf("SELECT %s FROM batches WHERE %s", batchColumns, batchByKey)
	var batch models.Batch
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		return nil, err
	}
	return &batch, nil
}

// LockByID loads an active batch and holds its row lock until the transaction ends.
func (r *BatchRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Batch, error) {
	query := fmt.Sprintf("SELECT %s FROM batches WHERE %s FOR UPDATE", batchColumns, batchByKey)
	var batch models.Batch
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &batch, query, id); err != nil {
		return nil, err
	}
	return &batch, nil
}

// FindAvailable lists batches of a course that still have seats and accept nominations.
func (r *BatchRepository) FindAvailable(ctx context.Context, courseName string) ([]models.Batch, error) {
	query := fmt.Sprintf(`SELECT %s FROM batches
WHERE course_name = $1 AND pending > 0 AND status IN ('%s', '%s') AND is_active = TRUE
ORDER BY date ASC NULLS LAST, batch_id ASC`, batchColumns, models.BatchStatusDraft, models.BatchStatusConfirmed)
	var batches []models.Batch
	if err := r.db.SelectContext(ctx, &batches, query, courseName); err != nil {
		return nil, fmt.Errorf("find available batches: %w", err)
	}
	return batches, nil
}

// List returns batches filtered by the provided criteria.
func (r *BatchRepository) List(ctx context.Context, filter models.BatchFilter) ([]models.Batch, int, error) {
	w := &whereBuilder{}
	w.raw("is_active = TRUE")
	if filter.CourseName != "" {
		w.add("course_name = $%d", filter.CourseName)
	}
	if filter.Status != "" {
		w.add("status = $%d", filter.Status)
	}
	if filter.HasSeats != nil {
		if *filter.HasSeats {
			w.raw("pending > 0")
		} else {
			w.raw("pending = 0")
		}
	}
	if filter.From != nil {
		w.add("date >= $%d", *filter.From)
	}
	if filter.To != nil {
		w.add("date <= $%d", *filter.To)
	}

	allowedSorts := map[string]string{
		"created_at": "created_at",
		"date":       "date",
		"batch_id":   "batch_id",
		"pending":    "pending",
	}
	orderBy, ok := allowedSorts[filter.SortBy]
	if !ok {
		orderBy = "created_at"
	}
	order := sortOrder(filter.SortOrder, "DESC")
	page, size := models.NormalizePage(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s FROM batches%s ORDER BY %s %s, batch_id ASC LIMIT %d OFFSET %d",
		batchColumns, w.clause(), orderBy, order, size, (page-1)*size)
	var batches []models.Batch
	if err := r.db.SelectContext(ctx, &batches, query, w.args...); err != nil {
		return nil, 0, fmt.Errorf("list batches: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM batches"+w.clause(), w.args...); err != nil {
		return nil, 0, fmt.Errorf("count batches: %w", err)
	}
	return batches, total, nil
}

// Create inserts a new batch.
func (r *BatchRepository) Create(ctx context.Context, exec sqlx.ExtContext, batch *models.Batch) error {
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	batch.CreatedAt = now
	batch.UpdatedAt = now
	batch.IsActive = true
	if batch.Nominees == nil {
		batch.Nominees = models.ClientGroups{}
	}

	const query = `INSERT INTO batches (id, batch_id, course_name, course_ref, date, session, start_time, end_time,
class_capacity, nominees, nominated, pending, room, room_ref, trainer, trainer_ref, status, is_active,
created_by, updated_by, created_at, updated_at)
VALUES (:id, :batch_id, :course_name, :course_ref, :date, :session, :start_time, :end_time,
:class_capacity, :nominees, :nominated, :pending, :room, :room_ref, :trainer, :trainer_ref, :status, :is_active,
:created_by, :updated_by, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, batch); err != nil {
		return fmt.Errorf("create batch: %w", err)
	}
	return nil
}

// Update writes every mutable column of the batch.
func (r *BatchRepository) Update(ctx context.Context, exec sqlx.ExtContext, batch *models.Batch) error {
	batch.UpdatedAt = time.Now().UTC()
	const query = `UPDATE batches SET date = :date, session = :session, start_time = :start_time, end_time = :end_time,
class_capacity = :class_capacity, nominees = :nominees, nominated = :nominated, pending = :pending,
room = :room, room_ref = :room_ref, trainer = :trainer, trainer_ref = :trainer_ref, status = :status,
updated_by = :updated_by, updated_at = :updated_at
WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, batch); err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	return nil
}

// SoftDelete flags the batch inactive.
func (r *BatchRepository) SoftDelete(ctx context.Context, exec sqlx.ExtContext, id string, actor *string) error {
	const query = `UPDATE batches SET is_active = FALSE, updated_by = $2, updated_at = $3 WHERE id = $1`
	if _, err := pick(r.db, exec).ExecContext(ctx, query, id, actor, time.Now().UTC()); err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}
	return nil
}

// LinkEnquiry records the enquiry as contributing to the batch, once.
func (r *BatchRepository) LinkEnquiry(ctx context.Context, exec sqlx.ExtContext, batchRef, enquiryRef string) error {
	const query = `INSERT INTO batch_enquiries (batch_id, enquiry_id, created_at) VALUES ($1, $2, $3)
ON CONFLICT (batch_id, enquiry_id) DO NOTHING`
	if _, err := pick(r.db, exec).ExecContext(ctx, query, batchRef, enquiryRef, time.Now().UTC()); err != nil {
		return fmt.Errorf("link batch enquiry: %w", err)
	}
	return nil
}

// ListEnquiryIDs returns the human enquiry numbers linked to a batch.
func (r *BatchRepository) ListEnquiryIDs(ctx context.Context, exec sqlx.ExtContext, batchRef string) ([]string, error) {
	const query = `SELECT e.enquiry_id FROM batch_enquiries be
JOIN enquiries e ON e.id = be.enquiry_id
WHERE be.batch_id = $1
ORDER BY be.created_at ASC, e.enquiry_id ASC`
	ids := []string{}
	if err := sqlx.SelectContext(ctx, pick(r.db, exec), &ids, query, batchRef); err != nil {
		return nil, fmt.Errorf("list batch enquiries: %w", err)
	}
	return ids, nil
}
