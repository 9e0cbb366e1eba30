package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/training-admin-api/internal/models"
	"github.com/noah-isme/training-admin-api/internal/service"
	"github.com/noah-isme/training-admin-api/pkg/response"
)

type batchService interface {
	FindAvailable(ctx context.Context, courseName string) ([]models.Batch, error)
	List(ctx context.Context, filter models.BatchFilter) ([]models.Batch, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Batch, error)
	Create(ctx context.Context, req service.CreateBatchRequest, actor models.Actor) (*models.Batch, error)
	Nominate(ctx context.Context, id string, req service.NominateRequest, actor models.Actor) (*models.Batch, error)
	Update(ctx context.Context, id string, req service.UpdateBatchRequest, actor models.Actor) (*models.Batch, error)
	ChangeStatus(ctx context.Context, id string, req service.ChangeBatchStatusRequest, actor models.Actor) (*models.Batch, error)
	Delete(ctx context.Context, id string, actor models.Actor) error
	Roster(ctx context.Context, id string, format string) (*service.RosterFile, error)
}

// BatchHandler exposes batch allocation endpoints.
type BatchHandler struct {
	batches batchService
}

// NewBatchHandler constructs BatchHandler.
func NewBatchHandler(batches batchService) *BatchHandler {
	return &BatchHandler{batches: batches}
}

// Available godoc
// @Summary Batches of a course that still have free seats
// @Tags Batches
// @Produce json
// @Param courseName query string true "Course name"
// @Success 200 {object} response.Envelope
// @Router /batches/available [get]
func (h *BatchHandler) Available(c *gin.Context) {
	batches, err := h.batches.FindAvailable(c.Request.Context(), c.Query("courseName"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, batches)
}

// List godoc
// @Summary List batches
// @Tags Batches
// @Produce json
// @Param courseName query string false "Course name"
// @Param status query string false "Batch status"
// @Param hasSeats query bool false "Only batches with free seats"
// @Param from query string false "Date lower bound (YYYY-MM-DD)"
// @Param to query string false "Date upper bound (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /batches [get]
func (h *BatchHandler) List(c *gin.Context) {
	filter := models.BatchFilter{
		CourseName: strings.TrimSpace(c.Query("courseName")),
		Status:     models.BatchStatus(strings.TrimSpace(c.Query("status"))),
		SortBy:     c.Query("sort"),
		SortOrder:  c.Query("order"),
	}
	switch c.Query("hasSeats") {
	case "true":
		v := true
		filter.HasSeats = &v
	case "false":
		v := false
		filter.HasSeats = &v
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

	batches, pagination, err := h.batches.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batches, pagination)
}

// Get godoc
// @Summary Get batch with roster
// @Tags Batches
// @Produce json
// @Param id path string true "Batch row id or Batch-X-NNN number"
// @Success 200 {object} response.Envelope
// @Router /batches/{id} [get]
func (h *BatchHandler) Get(c *gin.Context) {
	batch, err := h.batches.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, batch)
}

// Create godoc
// @Summary Open a batch
// @Tags Batches
// @Accept json
// @Produce json
// @Param payload body service.CreateBatchRequest true "Batch payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /batches [post]
func (h *BatchHandler) Create(c *gin.Context) {
	var req service.CreateBatchRequest
	if !bindJSON(c, &req) {
		return
	}
	batch, err := h.batches.Create(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, batch)
}

// Nominate godoc
// @Summary Add or replace a client's trainees in a batch
// @Tags Batches
// @Accept json
// @Produce json
// @Param id path string true "Batch id"
// @Param payload body service.NominateRequest true "Client group"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /batches/{id}/nominees [post]
func (h *BatchHandler) Nominate(c *gin.Context) {
	var req service.NominateRequest
	if !bindJSON(c, &req) {
		return
	}
	batch, err := h.batches.Nominate(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, batch)
}

// Update godoc
// @Summary Update batch logistics
// @Tags Batches
// @Accept json
// @Produce json
// @Param id path string true "Batch id"
// @Param payload body service.UpdateBatchRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Router /batches/{id} [put]
func (h *BatchHandler) Update(c *gin.Context) {
	var req service.UpdateBatchRequest
	if !bindJSON(c, &req) {
		return
	}
	batch, err := h.batches.Update(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, batch)
}

// ChangeStatus godoc
// @Summary Move a batch to another status
// @Tags Batches
// @Accept json
// @Produce json
// @Param id path string true "Batch id"
// @Param payload body service.ChangeBatchStatusRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Router /batches/{id}/status [put]
func (h *BatchHandler) ChangeStatus(c *gin.Context) {
	var req service.ChangeBatchStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	batch, err := h.batches.ChangeStatus(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, batch)
}

// Roster godoc
// @Summary Download the batch roster
// @Tags Batches
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Batch id"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /batches/{id}/roster [get]
func (h *BatchHandler) Roster(c *gin.Context) {
	file, err := h.batches.Roster(c.Request.Context(), c.Param("id"), c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.Filename, file.ContentType, file.Body)
}

// Delete godoc
// @Summary Soft delete a batch
// @Tags Batches
// @Param id path string true "Batch id"
// @Success 204
// @Router /batches/{id} [delete]
func (h *BatchHandler) Delete(c *gin.Context) {
	if err := h.batches.Delete(c.Request.Context(), c.Param("id"), actorFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
