package service

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/training-admin-api/internal/models"
)

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb, mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

// --- sequences ---

type memorySequenceRepo struct {
	mu       sync.Mutex
	counters map[string]int64
}

func (m *memorySequenceRepo) Next(ctx context.Context, exec sqlx.ExtContext, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = make(map[string]int64)
	}
	m.counters[name]++
	return m.counters[name], nil
}

func newSequences() *SequenceService {
	return NewSequenceService(&memorySequenceRepo{})
}

// --- enquiries ---

type memoryEnquiryRepo struct {
	items      map[string]*models.Enquiry
	activities []models.EnquiryActivity
	notes      []models.EnquiryNote
	stats      *models.EnquiryStats
	statsCalls int
	lastFilter models.EnquiryFilter
	nextID     int
}

func newMemoryEnquiryRepo(seed ...models.Enquiry) *memoryEnquiryRepo {
	repo := &memoryEnquiryRepo{items: make(map[string]*models.Enquiry)}
	for i := range seed {
		e := seed[i]
		e.IsActive = true
		if e.Nominees == nil {
			e.Nominees = models.Trainees{}
		}
		repo.items[e.ID] = &e
	}
	return repo
}

func (m *memoryEnquiryRepo) lookup(id string) (*models.Enquiry, error) {
	for _, e := range m.items {
		if (e.ID == id || e.EnquiryID == id) && e.IsActive {
			copied := *e
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryEnquiryRepo) FindByID(ctx context.Context, id string) (*models.Enquiry, error) {
	return m.lookup(id)
}

func (m *memoryEnquiryRepo) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Enquiry, error) {
	return m.lookup(id)
}

func (m *memoryEnquiryRepo) LockByBatch(ctx context.Context, exec sqlx.ExtContext, batchRef string) ([]models.Enquiry, error) {
	var out []models.Enquiry
	for _, e := range m.items {
		if e.BatchRef != nil && *e.BatchRef == batchRef && e.IsActive {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryEnquiryRepo) List(ctx context.Context, filter models.EnquiryFilter) ([]models.Enquiry, int, error) {
	m.lastFilter = filter
	var out []models.Enquiry
	for _, e := range m.items {
		out = append(out, *e)
	}
	return out, len(out), nil
}

func (m *memoryEnquiryRepo) Create(ctx context.Context, exec sqlx.ExtContext, enquiry *models.Enquiry) error {
	m.nextID++
	enquiry.ID = "enq-row-" + string(rune('0'+m.nextID))
	enquiry.IsActive = true
	copied := *enquiry
	m.items[enquiry.ID] = &copied
	return nil
}

func (m *memoryEnquiryRepo) Update(ctx context.Context, exec sqlx.ExtContext, enquiry *models.Enquiry) error {
	copied := *enquiry
	m.items[enquiry.ID] = &copied
	return nil
}

func (m *memoryEnquiryRepo) SoftDelete(ctx context.Context, exec sqlx.ExtContext, id string, actor *string) error {
	if e, ok := m.items[id]; ok {
		e.IsActive = false
	}
	return nil
}

func (m *memoryEnquiryRepo) AppendActivity(ctx context.Context, exec sqlx.ExtContext, activity *models.EnquiryActivity) error {
	activity.CreatedAt = time.Now().UTC()
	m.activities = append(m.activities, *activity)
	return nil
}

func (m *memoryEnquiryRepo) AppendNote(ctx context.Context, exec sqlx.ExtContext, note *models.EnquiryNote) error {
	note.CreatedAt = time.Now().UTC()
	m.notes = append(m.notes, *note)
	return nil
}

func (m *memoryEnquiryRepo) ListActivities(ctx context.Context, enquiryRef string) ([]models.EnquiryActivity, error) {
	var out []models.EnquiryActivity
	for _, a := range m.activities {
		if a.EnquiryID == enquiryRef {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memoryEnquiryRepo) ListNotes(ctx context.Context, enquiryRef string) ([]models.EnquiryNote, error) {
	var out []models.EnquiryNote
	for _, n := range m.notes {
		if n.EnquiryID == enquiryRef {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memoryEnquiryRepo) Stats(ctx context.Context) (*models.EnquiryStats, error) {
	m.statsCalls++
	if m.stats == nil {
		return &models.EnquiryStats{}, nil
	}
	copied := *m.stats
	return &copied, nil
}

func (m *memoryEnquiryRepo) actions(enquiryRef string) []string {
	var out []string
	for _, a := range m.activities {
		if a.EnquiryID == enquiryRef {
			out = append(out, a.Action)
		}
	}
	return out
}

// --- collaborators ---

type memoryCourses map[string]models.Course

func (m memoryCourses) FindByName(ctx context.Context, name string) (*models.Course, error) {
	if c, ok := m[strings.ToLower(name)]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

type memoryRooms map[string]models.Room

func (m memoryRooms) FindByID(ctx context.Context, id string) (*models.Room, error) {
	if r, ok := m[id]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

type memoryTrainers map[string]models.Trainer

func (m memoryTrainers) FindByID(ctx context.Context, id string) (*models.Trainer, error) {
	if t, ok := m[id]; ok {
		return &t, nil
	}
	return nil, sql.ErrNoRows
}

// --- batches ---

type memoryBatchRepo struct {
	items  map[string]*models.Batch
	links  map[string][]string
	nextID int
}

func newMemoryBatchRepo(seed ...models.Batch) *memoryBatchRepo {
	repo := &memoryBatchRepo{items: make(map[string]*models.Batch), links: make(map[string][]string)}
	for i := range seed {
		b := seed[i]
		b.IsActive = true
		b.Recalculate()
		repo.items[b.ID] = &b
	}
	return repo
}

func (m *memoryBatchRepo) lookup(id string) (*models.Batch, error) {
	for _, b := range m.items {
		if (b.ID == id || b.BatchID == id) && b.IsActive {
			copied := *b
			copied.Nominees = append(models.ClientGroups(nil), b.Nominees...)
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryBatchRepo) FindByID(ctx context.Context, id string) (*models.Batch, error) {
	return m.lookup(id)
}

func (m *memoryBatchRepo) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Batch, error) {
	return m.lookup(id)
}

func (m *memoryBatchRepo) FindAvailable(ctx context.Context, courseName string) ([]models.Batch, error) {
	var out []models.Batch
	for _, b := range m.items {
		if b.CourseName == courseName && b.Pending > 0 && b.Status.AcceptsNominations() && b.IsActive {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BatchID < out[j].BatchID })
	return out, nil
}

func (m *memoryBatchRepo) List(ctx context.Context, filter models.BatchFilter) ([]models.Batch, int, error) {
	var out []models.Batch
	for _, b := range m.items {
		out = append(out, *b)
	}
	return out, len(out), nil
}

func (m *memoryBatchRepo) Create(ctx context.Context, exec sqlx.ExtContext, batch *models.Batch) error {
	m.nextID++
	batch.ID = "batch-row-" + string(rune('0'+m.nextID))
	batch.IsActive = true
	copied := *batch
	m.items[batch.ID] = &copied
	return nil
}

func (m *memoryBatchRepo) Update(ctx context.Context, exec sqlx.ExtContext, batch *models.Batch) error {
	copied := *batch
	m.items[batch.ID] = &copied
	return nil
}

func (m *memoryBatchRepo) SoftDelete(ctx context.Context, exec sqlx.ExtContext, id string, actor *string) error {
	if b, ok := m.items[id]; ok {
		b.IsActive = false
	}
	return nil
}

func (m *memoryBatchRepo) LinkEnquiry(ctx context.Context, exec sqlx.ExtContext, batchRef, enquiryRef string) error {
	for _, existing := range m.links[batchRef] {
		if existing == enquiryRef {
			return nil
		}
	}
	m.links[batchRef] = append(m.links[batchRef], enquiryRef)
	return nil
}

func (m *memoryBatchRepo) ListEnquiryIDs(ctx context.Context, exec sqlx.ExtContext, batchRef string) ([]string, error) {
	return append([]string{}, m.links[batchRef]...), nil
}

// --- schedules ---

type memoryScheduleRepo struct {
	items    map[string]*models.Schedule
	lockKeys []string
	between  int
	nextID   int
}

func newMemoryScheduleRepo(seed ...models.Schedule) *memoryScheduleRepo {
	repo := &memoryScheduleRepo{items: make(map[string]*models.Schedule)}
	for i := range seed {
		s := seed[i]
		repo.items[s.ID] = &s
	}
	return repo
}

func (m *memoryScheduleRepo) List(ctx context.Context, filter models.ScheduleFilter) ([]models.Schedule, int, error) {
	var out []models.Schedule
	for _, s := range m.items {
		out = append(out, *s)
	}
	return out, len(out), nil
}

func (m *memoryScheduleRepo) ListBetween(ctx context.Context, from, to time.Time, activeOnly bool) ([]models.Schedule, error) {
	m.between++
	var out []models.Schedule
	for _, s := range m.items {
		if s.Date.Before(from) || s.Date.After(to) {
			continue
		}
		if activeOnly && !s.Status.Blocking() {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduleID < out[j].ScheduleID })
	return out, nil
}

func (m *memoryScheduleRepo) lookup(id string) (*models.Schedule, error) {
	for _, s := range m.items {
		if s.ID == id || s.ScheduleID == id {
			copied := *s
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryScheduleRepo) FindByID(ctx context.Context, id string) (*models.Schedule, error) {
	return m.lookup(id)
}

func (m *memoryScheduleRepo) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Schedule, error) {
	return m.lookup(id)
}

func (m *memoryScheduleRepo) AcquireSlotLocks(ctx context.Context, exec sqlx.ExtContext, slot models.ScheduleSlot) error {
	m.lockKeys = append(m.lockKeys, slot.LockKeys()...)
	return nil
}

func (m *memoryScheduleRepo) FindRoomConflicts(ctx context.Context, exec sqlx.ExtContext, slot models.ScheduleSlot) ([]models.ScheduleConflict, error) {
	return m.conflicts(slot, func(s *models.Schedule) bool { return s.RoomID == slot.RoomID })
}

func (m *memoryScheduleRepo) FindTrainerConflicts(ctx context.Context, exec sqlx.ExtContext, slot models.ScheduleSlot) ([]models.ScheduleConflict, error) {
	return m.conflicts(slot, func(s *models.Schedule) bool { return s.TrainerID == slot.TrainerID })
}

func (m *memoryScheduleRepo) conflicts(slot models.ScheduleSlot, same func(*models.Schedule) bool) ([]models.ScheduleConflict, error) {
	start, err := models.ParseClock(slot.StartTime)
	if err != nil {
		return nil, err
	}
	end, err := models.ParseClock(slot.EndTime)
	if err != nil {
		return nil, err
	}
	var out []models.ScheduleConflict
	for _, s := range m.items {
		if s.ID == slot.ExcludeID || !same(s) || !s.Status.Blocking() || !s.Date.Equal(slot.Date) {
			continue
		}
		s1, _ := models.ParseClock(s.StartTime)
		e1, _ := models.ParseClock(s.EndTime)
		if models.Overlaps(s1, e1, start, end) {
			out = append(out, models.ScheduleConflict{
				ScheduleID:  s.ScheduleID,
				StartTime:   s.StartTime,
				EndTime:     s.EndTime,
				RoomID:      s.RoomID,
				RoomName:    s.RoomName,
				TrainerID:   s.TrainerID,
				TrainerName: s.TrainerName,
				Course:      s.Course,
			})
		}
	}
	return out, nil
}

func (m *memoryScheduleRepo) Create(ctx context.Context, exec sqlx.ExtContext, sched *models.Schedule) error {
	m.nextID++
	sched.ID = "sched-row-" + string(rune('0'+m.nextID))
	copied := *sched
	m.items[sched.ID] = &copied
	return nil
}

func (m *memoryScheduleRepo) Update(ctx context.Context, exec sqlx.ExtContext, sched *models.Schedule) error {
	copied := *sched
	m.items[sched.ID] = &copied
	return nil
}

func (m *memoryScheduleRepo) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.ScheduleStatus, actor *string) error {
	if s, ok := m.items[id]; ok {
		s.Status = status
		return nil
	}
	return sql.ErrNoRows
}

// --- events ---

type recordingEvents struct {
	events []models.DomainEvent
}

func (r *recordingEvents) Dispatch(evt models.DomainEvent) {
	r.events = append(r.events, evt)
}

func (r *recordingEvents) types() []string {
	out := make([]string, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.Type)
	}
	return out
}

// --- shared fixtures ---

var (
	adminActor       = models.Actor{UserID: "user-admin", UserName: "Admin", Role: models.RoleAdmin}
	coordinatorActor = models.Actor{UserID: "user-coord", UserName: "Coordinator", Role: models.RoleCoordinator}
)

func mustDate(value string) time.Time {
	d, err := models.ParseDate(value)
	if err != nil {
		panic(err)
	}
	return d
}

func sampleTrainees(prefix string, n int) []models.Trainee {
	out := make([]models.Trainee, n)
	for i := range out {
		out[i] = models.Trainee{CivilID: prefix + "-" + string(rune('A'+i)), Name: prefix + " trainee " + string(rune('A'+i))}
	}
	return out
}
