package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/training-admin-api/internal/middleware"
	"github.com/noah-isme/training-admin-api/internal/models"
	"github.com/noah-isme/training-admin-api/internal/service"
	appErrors "github.com/noah-isme/training-admin-api/pkg/errors"
)

var coordinatorClaims = &models.JWTClaims{UserID: "user-coord", Role: models.RoleCoordinator, FullName: "Coordinator"}

func newTestContext(method, target, body string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req, _ := http.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, coordinatorClaims)
	return c, w
}

type envelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *appErrors.Error       `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

type enquiryServiceStub struct {
	lastFilter models.EnquiryFilter
	lastCreate service.CreateEnquiryRequest
	lastStatus service.ChangeEnquiryStatusRequest
	lastActor  models.Actor
	lastID     string
	err        error
	stats      *models.EnquiryStats
	statsHit   bool
}

func (s *enquiryServiceStub) List(ctx context.Context, filter models.EnquiryFilter) ([]models.Enquiry, *models.Pagination, error) {
	s.lastFilter = filter
	return []models.Enquiry{{EnquiryID: "ENQ-001"}}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: 1}, s.err
}

func (s *enquiryServiceStub) Get(ctx context.Context, id string) (*models.EnquiryDetail, error) {
	s.lastID = id
	if s.err != nil {
		return nil, s.err
	}
	return &models.EnquiryDetail{Enquiry: models.Enquiry{EnquiryID: id}}, nil
}

func (s *enquiryServiceStub) Create(ctx context.Context, req service.CreateEnquiryRequest, actor models.Actor) (*models.Enquiry, error) {
	s.lastCreate, s.lastActor = req, actor
	if s.err != nil {
		return nil, s.err
	}
	return &models.Enquiry{EnquiryID: "ENQ-001", Client: req.Client, Status: models.EnquiryStatusDraft}, nil
}

func (s *enquiryServiceStub) Update(ctx context.Context, id string, req service.UpdateEnquiryRequest, actor models.Actor) (*models.Enquiry, error) {
	return &models.Enquiry{EnquiryID: id}, s.err
}

func (s *enquiryServiceStub) ChangeStatus(ctx context.Context, id string, req service.ChangeEnquiryStatusRequest, actor models.Actor) (*models.Enquiry, error) {
	s.lastID, s.lastStatus, s.lastActor = id, req, actor
	if s.err != nil {
		return nil, s.err
	}
	return &models.Enquiry{EnquiryID: id, Status: req.Status}, nil
}

func (s *enquiryServiceStub) AddNote(ctx context.Context, id string, req service.AddNoteRequest, actor models.Actor) (*models.EnquiryNote, error) {
	return &models.EnquiryNote{Content: req.Content}, s.err
}

func (s *enquiryServiceStub) AddActivity(ctx context.Context, id string, req service.AddActivityRequest, actor models.Actor) (*models.EnquiryActivity, error) {
	return &models.EnquiryActivity{Action: req.Action}, s.err
}

func (s *enquiryServiceStub) Delete(ctx context.Context, id string, actor models.Actor) error {
	s.lastID = id
	return s.err
}

func (s *enquiryServiceStub) Stats(ctx context.Context) (*models.EnquiryStats, bool, error) {
	return s.stats, s.statsHit, s.err
}

func TestEnquiryHandlerListParsesFilter(t *testing.T) {
	stub := &enquiryServiceStub{}
	h := NewEnquiryHandler(stub)

	c, w := newTestContext(http.MethodGet, "/enquiries?status=pending&client=%20Acme%20&from=2025-10-01&page=2&limit=5", "")
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pending", stub.lastFilter.Status)
	assert.Equal(t, "Acme", stub.lastFilter.Client)
	require.NotNil(t, stub.lastFilter.From)
	assert.Equal(t, "2025-10-01", stub.lastFilter.From.Format(models.DateLayout))
	assert.Equal(t, 2, stub.lastFilter.Page)
	assert.Equal(t, 5, stub.lastFilter.PageSize)
	env := decode(t, w)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 1, env.Pagination.TotalCount)
}

func TestEnquiryHandlerListRejectsBadDate(t *testing.T) {
	h := NewEnquiryHandler(&enquiryServiceStub{})
	c, w := newTestContext(http.MethodGet, "/enquiries?to=20-10-2025", "")
	h.List(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, appErrors.ErrValidation.Code, decode(t, w).Error.Code)
}

func TestEnquiryHandlerCreatePassesActor(t *testing.T) {
	stub := &enquiryServiceStub{}
	h := NewEnquiryHandler(stub)

	c, w := newTestContext(http.MethodPost, "/enquiries", `{"client":"Acme Oil","requested":3}`)
	h.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Acme Oil", stub.lastCreate.Client)
	assert.Equal(t, 3, stub.lastCreate.Requested)
	assert.Equal(t, models.Actor{UserID: "user-coord", UserName: "Coordinator", Role: models.RoleCoordinator}, stub.lastActor)
}

func TestEnquiryHandlerCreateInvalidBody(t *testing.T) {
	stub := &enquiryServiceStub{}
	h := NewEnquiryHandler(stub)

	c, w := newTestContext(http.MethodPost, "/enquiries", `{"client":`)
	h.Create(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, stub.lastCreate.Client, "service is not reached")
}

func TestEnquiryHandlerChangeStatusMapsConflict(t *testing.T) {
	stub := &enquiryServiceStub{err: appErrors.Clone(appErrors.ErrInvalidTransition, "cannot move from Draft to Completed")}
	h := NewEnquiryHandler(stub)

	c, w := newTestContext(http.MethodPut, "/enquiries/ENQ-001/status", `{"status":"Completed"}`)
	c.Params = gin.Params{{Key: "id", Value: "ENQ-001"}}
	h.ChangeStatus(c)

	require.Equal(t, http.StatusConflict, w.Code)
	env := decode(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_STATUS_TRANSITION", env.Error.Code)
	assert.Equal(t, "ENQ-001", stub.lastID)
	assert.Equal(t, models.EnquiryStatusCompleted, stub.lastStatus.Status)
}

func TestEnquiryHandlerStatsReportsCacheHit(t *testing.T) {
	stub := &enquiryServiceStub{stats: &models.EnquiryStats{Total: 4}, statsHit: true}
	h := NewEnquiryHandler(stub)

	c, w := newTestContext(http.MethodGet, "/enquiries/stats", "")
	h.Stats(c)

	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	assert.Equal(t, true, env.Meta["cache_hit"])
}

func TestEnquiryHandlerDelete(t *testing.T) {
	stub := &enquiryServiceStub{}
	h := NewEnquiryHandler(stub)

	c, w := newTestContext(http.MethodDelete, "/enquiries/ENQ-002", "")
	c.Params = gin.Params{{Key: "id", Value: "ENQ-002"}}
	h.Delete(c)
	c.Writer.WriteHeaderNow()

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "ENQ-002", stub.lastID)
}

type batchServiceStub struct {
	lastCourse   string
	lastFilter   models.BatchFilter
	lastNominate service.NominateRequest
	lastFormat   string
	err          error
	roster       *service.RosterFile
}

func (s *batchServiceStub) FindAvailable(ctx context.Context, courseName string) ([]models.Batch, error) {
	s.lastCourse = courseName
	return []models.Batch{{BatchID: "Batch-F-001"}}, s.err
}

func (s *batchServiceStub) List(ctx context.Context, filter models.BatchFilter) ([]models.Batch, *models.Pagination, error) {
	s.lastFilter = filter
	return nil, &models.Pagination{}, s.err
}

func (s *batchServiceStub) Get(ctx context.Context, id string) (*models.Batch, error) {
	return &models.Batch{BatchID: id}, s.err
}

func (s *batchServiceStub) Create(ctx context.Context, req service.CreateBatchRequest, actor models.Actor) (*models.Batch, error) {
	return &models.Batch{BatchID: "Batch-F-001", CourseName: req.CourseName}, s.err
}

func (s *batchServiceStub) Nominate(ctx context.Context, id string, req service.NominateRequest, actor models.Actor) (*models.Batch, error) {
	s.lastNominate = req
	if s.err != nil {
		return nil, s.err
	}
	return &models.Batch{BatchID: id}, nil
}

func (s *batchServiceStub) Update(ctx context.Context, id string, req service.UpdateBatchRequest, actor models.Actor) (*models.Batch, error) {
	return &models.Batch{BatchID: id}, s.err
}

func (s *batchServiceStub) ChangeStatus(ctx context.Context, id string, req service.ChangeBatchStatusRequest, actor models.Actor) (*models.Batch, error) {
	return &models.Batch{BatchID: id, Status: req.Status}, s.err
}

func (s *batchServiceStub) Delete(ctx context.Context, id string, actor models.Actor) error {
	return s.err
}

func (s *batchServiceStub) Roster(ctx context.Context, id string, format string) (*service.RosterFile, error) {
	s.lastFormat = format
	if s.err != nil {
		return nil, s.err
	}
	return s.roster, nil
}

func TestBatchHandlerAvailable(t *testing.T) {
	stub := &batchServiceStub{}
	h := NewBatchHandler(stub)

	c, w := newTestContext(http.MethodGet, "/batches/available?courseName=Fire%20Safety", "")
	h.Available(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Fire Safety", stub.lastCourse)
}

func TestBatchHandlerListHasSeats(t *testing.T) {
	stub := &batchServiceStub{}
	h := NewBatchHandler(stub)

	c, w := newTestContext(http.MethodGet, "/batches?hasSeats=true&status=Open", "")
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, stub.lastFilter.HasSeats)
	assert.True(t, *stub.lastFilter.HasSeats)
	assert.Equal(t, models.BatchStatus("Open"), stub.lastFilter.Status)
}

func TestBatchHandlerNominateCapacityExceeded(t *testing.T) {
	details := models.CapacityDetails{Capacity: 3, Requested: 4}
	stub := &batchServiceStub{err: appErrors.WithDetails(appErrors.ErrCapacityExceeded, "batch Batch-F-001 is full", details)}
	h := NewBatchHandler(stub)

	body := `{"client_name":"Acme Oil","trainees":[{"civil_id":"1","name":"A"}]}`
	c, w := newTestContext(http.MethodPost, "/batches/Batch-F-001/nominees", body)
	c.Params = gin.Params{{Key: "id", Value: "Batch-F-001"}}
	h.Nominate(c)

	require.Equal(t, http.StatusConflict, w.Code)
	env := decode(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, "CAPACITY_EXCEEDED", env.Error.Code)
	assert.NotNil(t, env.Error.Details)
	assert.Equal(t, "Acme Oil", stub.lastNominate.ClientName)
	require.Len(t, stub.lastNominate.Trainees, 1)
}

func TestBatchHandlerRosterDownload(t *testing.T) {
	stub := &batchServiceStub{roster: &service.RosterFile{Filename: "Batch-F-001-roster.csv", ContentType: "text/csv; charset=utf-8", Body: []byte("#,Client\n")}}
	h := NewBatchHandler(stub)

	c, w := newTestContext(http.MethodGet, "/batches/Batch-F-001/roster", "")
	c.Params = gin.Params{{Key: "id", Value: "Batch-F-001"}}
	h.Roster(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "csv", stub.lastFormat)
	assert.Equal(t, `attachment; filename="Batch-F-001-roster.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "#,Client\n", w.Body.String())
}

type scheduleServiceStub struct {
	lastWeek   string
	lastMonth  string
	lastFilter models.ScheduleFilter
	err        error
}

func (s *scheduleServiceStub) List(ctx context.Context, filter models.ScheduleFilter) ([]models.Schedule, *models.Pagination, error) {
	s.lastFilter = filter
	return nil, &models.Pagination{}, s.err
}

func (s *scheduleServiceStub) Get(ctx context.Context, id string) (*models.Schedule, error) {
	return &models.Schedule{ScheduleID: id}, s.err
}

func (s *scheduleServiceStub) Weekly(ctx context.Context, week string) (*models.ScheduleCalendar, bool, error) {
	s.lastWeek = week
	return &models.ScheduleCalendar{Period: week}, false, s.err
}

func (s *scheduleServiceStub) Monthly(ctx context.Context, month string) (*models.ScheduleCalendar, bool, error) {
	s.lastMonth = month
	return &models.ScheduleCalendar{Period: month}, true, s.err
}

func (s *scheduleServiceStub) Create(ctx context.Context, req service.CreateScheduleRequest, actor models.Actor) (*models.Schedule, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Schedule{ScheduleID: "SCH-00001"}, nil
}

func (s *scheduleServiceStub) Update(ctx context.Context, id string, req service.UpdateScheduleRequest, actor models.Actor) (*models.Schedule, error) {
	return &models.Schedule{ScheduleID: id}, s.err
}

func (s *scheduleServiceStub) Reschedule(ctx context.Context, id string, req service.RescheduleRequest, actor models.Actor) (*models.Schedule, error) {
	return &models.Schedule{ScheduleID: "SCH-00002"}, s.err
}

func (s *scheduleServiceStub) ChangeStatus(ctx context.Context, id string, req service.ChangeScheduleStatusRequest, actor models.Actor) (*models.Schedule, error) {
	return &models.Schedule{ScheduleID: id, Status: req.Status}, s.err
}

func TestScheduleHandlerWeeklyDefaultsToCurrentWeek(t *testing.T) {
	stub := &scheduleServiceStub{}
	h := NewScheduleHandler(stub)
	h.now = func() time.Time { return time.Date(2025, 10, 22, 9, 0, 0, 0, time.UTC) }

	c, w := newTestContext(http.MethodGet, "/schedules/weekly", "")
	h.Weekly(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2025-W43", stub.lastWeek)

	c, w = newTestContext(http.MethodGet, "/schedules/monthly", "")
	h.Monthly(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2025-10", stub.lastMonth)
	assert.Equal(t, true, decode(t, w).Meta["cache_hit"])
}

func TestScheduleHandlerCreateRoomConflict(t *testing.T) {
	blocking := models.ScheduleConflict{Dimension: "room", ScheduleID: "SCH-00007", StartTime: "09:00", EndTime: "10:00"}
	stub := &scheduleServiceStub{err: appErrors.WithDetails(appErrors.ErrRoomConflict, "room Lab 1 is booked", blocking)}
	h := NewScheduleHandler(stub)

	c, w := newTestContext(http.MethodPost, "/schedules", `{"batch_id":"Batch-F-001","date":"2025-10-20","start_time":"09:30","end_time":"10:30","room_id":"room-a","trainer_id":"tr-1"}`)
	h.Create(c)

	require.Equal(t, http.StatusConflict, w.Code)
	env := decode(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, "ROOM_CONFLICT", env.Error.Code)
	details, ok := env.Error.Details.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "SCH-00007", details["schedule_id"])
}

func TestScheduleHandlerListFilters(t *testing.T) {
	stub := &scheduleServiceStub{}
	h := NewScheduleHandler(stub)

	c, w := newTestContext(http.MethodGet, "/schedules?roomId=room-a&active=true&from=2025-10-20", "")
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "room-a", stub.lastFilter.RoomID)
	assert.True(t, stub.lastFilter.ActiveOnly)
	require.NotNil(t, stub.lastFilter.From)
}

func TestMetricsHandlerReady(t *testing.T) {
	h := NewMetricsHandler(nil, map[string]ReadinessCheck{
		"database": func(ctx context.Context) error { return nil },
		"redis":    func(ctx context.Context) error { return errors.New("connection refused") },
	})

	c, w := newTestContext(http.MethodGet, "/ready", "")
	h.Ready(c)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Checks["database"])
	assert.Equal(t, "connection refused", body.Checks["redis"])

	c, w = newTestContext(http.MethodGet, "/metrics", "")
	h.Prometheus(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, "nil metrics service answers 503")
}
