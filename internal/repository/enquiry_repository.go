package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/training-admin-api/internal/models"
)

const enquiryColumns = `id, enquiry_id, client, contact_name, contact_phone, contact_email, course, cost, requested, nominated,
start_date, end_date, status, batch_number, batch_ref, nominees, quotation_sent_date, agreement_sent_date,
is_active, created_by, updated_by, created_at, updated_at`

const enquiryByKey = `(id::text = $1 OR enquiry_id = $1) AND is_active = TRUE`

// EnquiryRepository persists enquiries and their append-only logs.
type EnquiryRepository struct {
	db *sqlx.DB
}

// NewEnquiryRepository constructs the repository.
func NewEnquiryRepository(db *sqlx.DB) *EnquiryRepository {
	return &EnquiryRepository{db: db}
}

// FindByID loads an active enquiry by row id or ENQ number.
func (r *EnquiryRepository) FindByID(ctx context.Context, id string) (*models.Enquiry, error) {
	query := fmt.Sprintf("SELECT %s FROM enquiries WHERE %s", enquiryColumns, enquiryByKey)
	var enquiry models.Enquiry
	if err := r.db.GetContext(ctx, &enquiry, query, id); err != nil {
		return nil, err
	}
	return &enquiry, nil
}

// LockByID loads an active enquiry and holds its row lock until the transaction ends.
func (r *EnquiryRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Enquiry, error) {
	query := fmt.Sprintf("SELECT %s FROM enquiries WHERE %s FOR UPDATE", enquiryColumns, enquiryByKey)
	var enquiry models.Enquiry
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &enquiry, query, id); err != nil {
		return nil, err
	}
	return &enquiry, nil
}

// LockByBatch locks every active enquiry linked to and still held by a batch, in id order.
func (r *EnquiryRepository) LockByBatch(ctx context.Context, exec sqlx.ExtContext, batchRef string) ([]models.Enquiry, error) {
	query := fmt.Sprintf(`SELECT %s FROM enquiries
WHERE id IN (SELECT enquiry_id FROM batch_enquiries WHERE batch_id = $1) AND batch_ref = $1 AND is_active = TRUE
ORDER BY id FOR UPDATE`, enquiryColumns)
	var enquiries []models.Enquiry
	if err := sqlx.SelectContext(ctx, pick(r.db, exec), &enquiries, query, batchRef); err != nil {
		return nil, fmt.Errorf("lock batch enquiries: %w", err)
	}
	return enquiries, nil
}

// List returns enquiries filtered by the provided criteria.
func (r *EnquiryRepository) List(ctx context.Context, filter models.EnquiryFilter) ([]models.Enquiry, int, error) {
	w := &whereBuilder{}
	w.raw("is_active = TRUE")

	switch filter.Status {
	case "":
	case models.EnquiryStatusPendingFilter:
		w.raw("status IN (" + quoteStatuses(models.PreNominationStatuses) + ")")
	default:
		w.add("status = $%d", filter.Status)
	}
	if filter.Client != "" {
		w.add("client ILIKE $%d", filter.Client)
	}
	if filter.Course != "" {
		w.add("course ILIKE $%d", filter.Course)
	}
	if filter.From != nil {
		w.add("end_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		w.add("start_date <= $%d", *filter.To)
	}
	if filter.Search != "" {
		w.args = append(w.args, "%"+filter.Search+"%")
		n := len(w.args)
		w.raw(fmt.Sprintf("(enquiry_id ILIKE $%d OR client ILIKE $%d OR contact_name ILIKE $%d OR course ILIKE $%d)", n, n, n, n))
	}

	allowedSorts := map[string]string{
		"created_at": "created_at",
		"start_date": "start_date",
		"enquiry_id": "enquiry_id",
		"client":     "client",
		"status":     "status",
	}
	orderBy, ok := allowedSorts[filter.SortBy]
	if !ok {
		orderBy = "created_at"
	}
	order := sortOrder(filter.SortOrder, "DESC")
	page, size := models.NormalizePage(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s FROM enquiries%s ORDER BY %s %s, enquiry_id ASC LIMIT %d OFFSET %d",
		enquiryColumns, w.clause(), orderBy, order, size, (page-1)*size)
	var enquiries []models.Enquiry
	if err := r.db.SelectContext(ctx, &enquiries, query, w.args...); err != nil {
		return nil, 0, fmt.Errorf("list enquiries: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM enquiries"+w.clause(), w.args...); err != nil {
		return nil, 0, fmt.Errorf("count enquiries: %w", err)
	}
	return enquiries, total, nil
}

// Create inserts a new enquiry.
func (r *EnquiryRepository) Create(ctx context.Context, exec sqlx.ExtContext, enquiry *models.Enquiry) error {
	if enquiry.ID == "" {
		enquiry.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enquiry.CreatedAt.IsZero() {
		enquiry.CreatedAt = now
	}
	enquiry.UpdatedAt = now
	enquiry.IsActive = true
	if enquiry.Nominees == nil {
		enquiry.Nominees = models.Trainees{}
	}

	const query = `INSERT INTO enquiries (id, enquiry_id, client, contact_name, contact_phone, contact_email, course, cost,
requested, nominated, start_date, end_date, status, batch_number, batch_ref, nominees, quotation_sent_date,
agreement_sent_date, is_active, created_by, updated_by, created_at, updated_at)
VALUES (:id, :enquiry_id, :client, :contact_name, :contact_phone, :contact_email, :course, :cost,
:requested, :nominated, :start_date, :end_date, :status, :batch_number, :batch_ref, :nominees, :quotation_sent_date,
:agreement_sent_date, :is_active, :created_by, :updated_by, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, enquiry); err != nil {
		return fmt.Errorf("create enquiry: %w", err)
	}
	return nil
}

// Update writes every mutable column of the enquiry.
func (r *EnquiryRepository) Update(ctx context.Context, exec sqlx.ExtContext, enquiry *models.Enquiry) error {
	enquiry.UpdatedAt = time.Now().UTC()
	const query = `UPDATE enquiries SET client = :client, contact_name = :contact_name, contact_phone = :contact_phone,
contact_email = :contact_email, course = :course, cost = :cost, requested = :requested, nominated = :nominated,
start_date = :start_date, end_date = :end_date, status = :status, batch_number = :batch_number, batch_ref = :batch_ref,
nominees = :nominees, quotation_sent_date = :quotation_sent_date, agreement_sent_date = :agreement_sent_date,
updated_by = :updated_by, updated_at = :updated_at
WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, enquiry); err != nil {
		return fmt.Errorf("update enquiry: %w", err)
	}
	return nil
}

// SoftDelete flags the enquiry inactive.
func (r *EnquiryRepository) SoftDelete(ctx context.Context, exec sqlx.ExtContext, id string, actor *string) error {
	const query = `UPDATE enquiries SET is_active = FALSE, updated_by = $2, updated_at = $3 WHERE id = $1`
	if _, err := pick(r.db, exec).ExecContext(ctx, query, id, actor, time.Now().UTC()); err != nil {
		return fmt.Errorf("delete enquiry: %w", err)
	}
	return nil
}

// AppendActivity inserts an activity row.
func (r *EnquiryRepository) AppendActivity(ctx context.Context, exec sqlx.ExtContext, activity *models.EnquiryActivity) error {
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO enquiry_activities (id, enquiry_id, action, details, user_id, user_name, created_at)
VALUES (:id, :enquiry_id, :action, :details, :user_id, :user_name, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, activity); err != nil {
		return fmt.Errorf("append enquiry activity: %w", err)
	}
	return nil
}

// AppendNote inserts a note row.
func (r *EnquiryRepository) AppendNote(ctx context.Context, exec sqlx.ExtContext, note *models.EnquiryNote) error {
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO enquiry_notes (id, enquiry_id, content, user_id, user_name, created_at)
VALUES (:id, :enquiry_id, :content, :user_id, :user_name, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, note); err != nil {
		return fmt.Errorf("append enquiry note: %w", err)
	}
	return nil
}

// ListActivities returns the activity log oldest first.
func (r *EnquiryRepository) ListActivities(ctx context.Context, enquiryRef string) ([]models.EnquiryActivity, error) {
	const query = `SELECT id, enquiry_id, action, details, user_id, user_name, created_at FROM enquiry_activities WHERE enquiry_id = $1 ORDER BY created_at ASC, id ASC`
	var items []models.EnquiryActivity
	if err := r.db.SelectContext(ctx, &items, query, enquiryRef); err != nil {
		return nil, fmt.Errorf("list enquiry activities: %w", err)
	}
	return items, nil
}

// ListNotes returns notes oldest first.
func (r *EnquiryRepository) ListNotes(ctx context.Context, enquiryRef string) ([]models.EnquiryNote, error) {
	const query = `SELECT id, enquiry_id, content, user_id, user_name, created_at FROM enquiry_notes WHERE enquiry_id = $1 ORDER BY created_at ASC, id ASC`
	var items []models.EnquiryNote
	if err := r.db.SelectContext(ctx, &items, query, enquiryRef); err != nil {
		return nil, fmt.Errorf("list enquiry notes: %w", err)
	}
	return items, nil
}

// Stats aggregates active enquiries by pipeline stage.
func (r *EnquiryRepository) Stats(ctx context.Context) (*models.EnquiryStats, error) {
	query := fmt.Sprintf(`SELECT
COUNT(*) AS total,
COUNT(*) FILTER (WHERE status IN (%s)) AS open,
COUNT(*) FILTER (WHERE status IN ('%s', '%s')) AS pending_nominations,
COUNT(*) FILTER (WHERE status = '%s') AS nominated,
COUNT(*) FILTER (WHERE status = '%s') AS scheduled,
COUNT(*) FILTER (WHERE status = '%s') AS completed,
COUNT(*) FILTER (WHERE status = '%s') AS cancelled
FROM enquiries WHERE is_active = TRUE`,
		quoteStatuses(models.PreNominationStatuses),
		models.EnquiryStatusPendingNomination, models.EnquiryStatusNominated,
		models.EnquiryStatusNominated, models.EnquiryStatusScheduled,
		models.EnquiryStatusCompleted, models.EnquiryStatusCancelled)

	var stats models.EnquiryStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("enquiry stats: %w", err)
	}
	return &stats, nil
}

func quoteStatuses(statuses []models.EnquiryStatus) string {
	quoted := make([]string, len(statuses))
	for i, s := range statuses {
		quoted[i] = "'" + string(s) + "'"
	}
	return strings.Join(quoted, ", ")
}
