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

type enquiryService interface {
	List(ctx context.Context, filter models.EnquiryFilter) ([]models.Enquiry, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.EnquiryDetail, error)
	Create(ctx context.Context, req service.CreateEnquiryRequest, actor models.Actor) (*models.Enquiry, error)
	Update(ctx context.Context, id string, req service.UpdateEnquiryRequest, actor models.Actor) (*models.Enquiry, error)
	ChangeStatus(ctx context.Context, id string, req service.ChangeEnquiryStatusRequest, actor models.Actor) (*models.Enquiry, error)
	AddNote(ctx context.Context, id string, req service.AddNoteRequest, actor models.Actor) (*models.EnquiryNote, error)
	AddActivity(ctx context.Context, id string, req service.AddActivityRequest, actor models.Actor) (*models.EnquiryActivity, error)
	Delete(ctx context.Context, id string, actor models.Actor) error
	Stats(ctx context.Context) (*models.EnquiryStats, bool, error)
}

// EnquiryHandler exposes enquiry endpoints.
type EnquiryHandler struct {
	enquiries enquiryService
}

// NewEnquiryHandler constructs EnquiryHandler.
func NewEnquiryHandler(enquiries enquiryService) *EnquiryHandler {
	return &EnquiryHandler{enquiries: enquiries}
}

// List godoc
// @Summary List enquiries
// @Tags Enquiries
// @Produce json
// @Param status query string false "Status, or 'pending' for every pre-nomination status"
// @Param client query string false "Client name"
// @Param course query string false "Course name"
// @Param from query string false "Start date lower bound (YYYY-MM-DD)"
// @Param to query string false "Start date upper bound (YYYY-MM-DD)"
// @Param search query string false "Free text over enquiry id, client and contact"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /enquiries [get]
func (h *EnquiryHandler) List(c *gin.Context) {
	filter := models.EnquiryFilter{
		Status:    strings.TrimSpace(c.Query("status")),
		Client:    strings.TrimSpace(c.Query("client")),
		Course:    strings.TrimSpace(c.Query("course")),
		Search:    strings.TrimSpace(c.Query("search")),
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
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

	items, pagination, err := h.enquiries.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Stats godoc
// @Summary Enquiry pipeline counters
// @Tags Enquiries
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /enquiries/stats [get]
func (h *EnquiryHandler) Stats(c *gin.Context) {
	stats, hit, err := h.enquiries.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	cachedJSON(c, stats, hit)
}

// Get godoc
// @Summary Get enquiry with notes and activities
// @Tags Enquiries
// @Produce json
// @Param id path string true "Enquiry row id or ENQ number"
// @Success 200 {object} response.Envelope
// @Router /enquiries/{id} [get]
func (h *EnquiryHandler) Get(c *gin.Context) {
	detail, err := h.enquiries.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, detail)
}

// Create godoc
// @Summary Register an enquiry
// @Tags Enquiries
// @Accept json
// @Produce json
// @Param payload body service.CreateEnquiryRequest true "Enquiry payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /enquiries [post]
func (h *EnquiryHandler) Create(c *gin.Context) {
	var req service.CreateEnquiryRequest
	if !bindJSON(c, &req) {
		return
	}
	enquiry, err := h.enquiries.Create(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enquiry)
}

// Update godoc
// @Summary Update enquiry details
// @Tags Enquiries
// @Accept json
// @Produce json
// @Param id path string true "Enquiry id"
// @Param payload body service.UpdateEnquiryRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Router /enquiries/{id} [put]
func (h *EnquiryHandler) Update(c *gin.Context) {
	var req service.UpdateEnquiryRequest
	if !bindJSON(c, &req) {
		return
	}
	enquiry, err := h.enquiries.Update(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, enquiry)
}

// ChangeStatus godoc
// @Summary Move an enquiry to another status
// @Tags Enquiries
// @Accept json
// @Produce json
// @Param id path string true "Enquiry id"
// @Param payload body service.ChangeEnquiryStatusRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enquiries/{id}/status [put]
func (h *EnquiryHandler) ChangeStatus(c *gin.Context) {
	var req service.ChangeEnquiryStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	enquiry, err := h.enquiries.ChangeStatus(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, enquiry)
}

// AddNote godoc
// @Summary Add a note
// @Tags Enquiries
// @Accept json
// @Produce json
// @Param id path string true "Enquiry id"
// @Param payload body service.AddNoteRequest true "Note"
// @Success 201 {object} response.Envelope
// @Router /enquiries/{id}/notes [post]
func (h *EnquiryHandler) AddNote(c *gin.Context) {
	var req service.AddNoteRequest
	if !bindJSON(c, &req) {
		return
	}
	note, err := h.enquiries.AddNote(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, note)
}

// AddActivity godoc
// @Summary Log a manual activity
// @Tags Enquiries
// @Accept json
// @Produce json
// @Param id path string true "Enquiry id"
// @Param payload body service.AddActivityRequest true "Activity"
// @Success 201 {object} response.Envelope
// @Router /enquiries/{id}/activities [post]
func (h *EnquiryHandler) AddActivity(c *gin.Context) {
	var req service.AddActivityRequest
	if !bindJSON(c, &req) {
		return
	}
	activity, err := h.enquiries.AddActivity(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, activity)
}

// Delete godoc
// @Summary Soft delete an enquiry
// @Tags Enquiries
// @Param id path string true "Enquiry id"
// @Success 204
// @Router /enquiries/{id} [delete]
func (h *EnquiryHandler) Delete(c *gin.Context) {
	if err := h.enquiries.Delete(c.Request.Context(), c.Param("id"), actorFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
