package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/training-admin-api/internal/models"
	"github.com/noah-isme/training-admin-api/internal/service"
	"github.com/noah-isme/training-admin-api/pkg/response"
)

type scheduleService interface {
	List(ctx context.Context, filter models.ScheduleFilter) ([]models.Schedule, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Schedule, error)
	Weekly(ctx context.Context, week string) (*models.ScheduleCalendar, bool, error)
	Monthly(ctx context.Context, month string) (*models.ScheduleCalendar, bool, error)
	Create(ctx context.Context, req service.CreateScheduleRequest, actor models.Actor) (*models.Schedule, error)
	Update(ctx context.Context, id string, req service.UpdateScheduleRequest, actor models.Actor) (*models.Schedule, error)
	Reschedule(ctx context.Context, id string, req service.RescheduleRequest, actor models.Actor) (*models.Schedule, error)
	ChangeStatus(ctx context.Context, id string, req service.ChangeScheduleStatusRequest, actor models.Actor) (*models.Schedule, error)
}

// ScheduleHandler exposes room and trainer booking endpoints.
type ScheduleHandler struct {
	schedules scheduleService
	now       func() time.Time
}

// NewScheduleHandler constructs ScheduleHandler.
func NewScheduleHandler(schedules scheduleService) *ScheduleHandler {
	return &ScheduleHandler{schedules: schedules, now: time.Now}
}

// List godoc
// @Summary List schedules
// @Tags Schedules
// @Produce json
// @Param from query string false "Date lower bound (YYYY-MM-DD)"
// @Param to query string false "Date upper bound (YYYY-MM-DD)"
// @Param roomId query string false "Room"
// @Param trainerId query string false "Trainer"
// @Param status query string false "Schedule status"
// @Param batchId query string false "Batch"
// @Param enquiryId query string false "Enquiry"
// @Param active query bool false "Only room-blocking statuses"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /schedules [get]
func (h *ScheduleHandler) List(c *gin.Context) {
	filter := models.ScheduleFilter{
		RoomID:     strings.TrimSpace(c.Query("roomId")),
		TrainerID:  strings.TrimSpace(c.Query("trainerId")),
		Status:     models.ScheduleStatus(strings.TrimSpace(c.Query("status"))),
		BatchRef:   strings.TrimSpace(c.Query("batchId")),
		EnquiryRef: strings.TrimSpace(c.Query("enquiryId")),
		ActiveOnly: c.Query("active") == "true",
		SortOrder:  c.Query("order"),
	}
	filter.Page, filter.PageSize = paging(c)
	var err error
	if filter.From, err = dateQuery(c, "from"); err != nil {
		response.Error(c, err)
		return
	}
	if filter.To, err = dateQuery(c, "to"); err != nil {
		response.Error(c, err)
		return
	}

	schedules, pagination, err := h.schedules.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedules, pagination)
}

// Weekly godoc
// @Summary Calendar view of an ISO week
// @Tags Schedules
// @Produce json
// @Param week query string false "ISO week (YYYY-Www), defaults to the current week"
// @Success 200 {object} response.Envelope
// @Router /schedules/weekly [get]
func (h *ScheduleHandler) Weekly(c *gin.Context) {
	week := strings.TrimSpace(c.Query("week"))
	if week == "" {
		year, num := h.now().ISOWeek()
		week = isoWeekLabel(year, num)
	}
	cal, hit, err := h.schedules.Weekly(c.Request.Context(), week)
	if err != nil {
		response.Error(c, err)
		return
	}
	cachedJSON(c, cal, hit)
}

// Monthly godoc
// @Summary Calendar view of a month
// @Tags Schedules
// @Produce json
// @Param month query string false "Month (YYYY-MM), defaults to the current month"
// @Success 200 {object} response.Envelope
// @Router /schedules/monthly [get]
func (h *ScheduleHandler) Monthly(c *gin.Context) {
	month := strings.TrimSpace(c.Query("month"))
	if month == "" {
		month = h.now().Format("2006-01")
	}
	cal, hit, err := h.schedules.Monthly(c.Request.Context(), month)
	if err != nil {
		response.Error(c, err)
		return
	}
	cachedJSON(c, cal, hit)
}

// Get godoc
// @Summary Get schedule
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule row id or SCH number"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id} [get]
func (h *ScheduleHandler) Get(c *gin.Context) {
	sched, err := h.schedules.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sched)
}

// Create godoc
// @Summary Book a room and trainer
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body service.CreateScheduleRequest true "Slot"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope "ROOM_CONFLICT or TRAINER_CONFLICT with the blocking schedule in details"
// @Router /schedules [post]
func (h *ScheduleHandler) Create(c *gin.Context) {
	var req service.CreateScheduleRequest
	if !bindJSON(c, &req) {
		return
	}
	sched, err := h.schedules.Create(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, sched)
}

// Update godoc
// @Summary Edit an active schedule
// @Tags Schedules
// @Accept json
// @Produce json
// @Param id path string true "Schedule id"
// @Param payload body service.UpdateScheduleRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id} [put]
func (h *ScheduleHandler) Update(c *gin.Context) {
	var req service.UpdateScheduleRequest
	if !bindJSON(c, &req) {
		return
	}
	sched, err := h.schedules.Update(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sched)
}

// Reschedule godoc
// @Summary Move a schedule to a new slot
// @Tags Schedules
// @Accept json
// @Produce json
// @Param id path string true "Schedule id"
// @Param payload body service.RescheduleRequest true "New slot"
// @Success 201 {object} response.Envelope
// @Router /schedules/{id}/reschedule [post]
func (h *ScheduleHandler) Reschedule(c *gin.Context) {
	var req service.RescheduleRequest
	if !bindJSON(c, &req) {
		return
	}
	sched, err := h.schedules.Reschedule(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, sched)
}

// ChangeStatus godoc
// @Summary Move a schedule to another status
// @Tags Schedules
// @Accept json
// @Produce json
// @Param id path string true "Schedule id"
// @Param payload body service.ChangeScheduleStatusRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/status [put]
func (h *ScheduleHandler) ChangeStatus(c *gin.Context) {
	var req service.ChangeScheduleStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	sched, err := h.schedules.ChangeStatus(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sched)
}

func isoWeekLabel(year, week int) string {
	return fmt.Sprintf("%04d-W%02d", year, week)
}
