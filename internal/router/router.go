package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/training-admin-api/internal/handler"
	"github.com/noah-isme/training-admin-api/internal/middleware"
	"github.com/noah-isme/training-admin-api/internal/models"
	"github.com/noah-isme/training-admin-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/training-admin-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/training-admin-api/pkg/middleware/requestid"
)

// Options carries everything the HTTP surface needs.
type Options struct {
	APIPrefix      string
	AllowedOrigins []string
	EnableDocs     bool
	Logger         *zap.Logger

	Auth     middleware.TokenValidator
	Audit    middleware.AuditWriter
	Observer middleware.RequestObserver

	Enquiries *handler.EnquiryHandler
	Batches   *handler.BatchHandler
	Schedules *handler.ScheduleHandler
	Metrics   *handler.MetricsHandler
}

// New builds the gin engine with every route mounted.
func New(opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(opts.Logger))
	r.Use(corsmiddleware.New(opts.AllowedOrigins))
	r.Use(middleware.Metrics(opts.Observer))

	r.GET("/health", opts.Metrics.Health)
	r.GET("/ready", opts.Metrics.Ready)
	r.GET("/metrics", opts.Metrics.Prometheus)
	if opts.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(opts.APIPrefix)
	api.Use(middleware.JWT(opts.Auth), middleware.WithResponseMeta())

	writers := middleware.RequireRoles(middleware.Writers...)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(opts.Audit, opts.Logger, action, resource)
	}

	enquiries := api.Group("/enquiries")
	{
		h := opts.Enquiries
		enquiries.GET("", h.List)
		enquiries.GET("/stats", h.Stats)
		enquiries.GET("/:id", h.Get)
		enquiries.POST("", writers, audit(models.AuditActionEnquiryCreate, "enquiry"), h.Create)
		enquiries.PUT("/:id", writers, audit(models.AuditActionEnquiryUpdate, "enquiry"), h.Update)
		enquiries.PUT("/:id/status", writers, audit(models.AuditActionEnquiryStatus, "enquiry"), h.ChangeStatus)
		enquiries.POST("/:id/notes", h.AddNote)
		enquiries.POST("/:id/activities", writers, h.AddActivity)
		enquiries.DELETE("/:id", adminOnly, audit(models.AuditActionEnquiryDelete, "enquiry"), h.Delete)
	}

	batches := api.Group("/batches")
	{
		h := opts.Batches
		batches.GET("", h.List)
		batches.GET("/available", h.Available)
		batches.GET("/:id", h.Get)
		batches.GET("/:id/roster", h.Roster)
		batches.POST("", writers, audit(models.AuditActionBatchCreate, "batch"), h.Create)
		batches.PUT("/:id", writers, audit(models.AuditActionBatchUpdate, "batch"), h.Update)
		batches.PUT("/:id/status", writers, audit(models.AuditActionBatchStatus, "batch"), h.ChangeStatus)
		batches.POST("/:id/nominees", writers, audit(models.AuditActionBatchNominate, "batch"), h.Nominate)
		batches.DELETE("/:id", adminOnly, audit(models.AuditActionBatchDelete, "batch"), h.Delete)
	}

	schedules := api.Group("/schedules")
	{
		h := opts.Schedules
		schedules.GET("", h.List)
		schedules.GET("/weekly", h.Weekly)
		schedules.GET("/monthly", h.Monthly)
		schedules.GET("/:id", h.Get)
		schedules.POST("", writers, audit(models.AuditActionScheduleCreate, "schedule"), h.Create)
		schedules.PUT("/:id", writers, audit(models.AuditActionScheduleUpdate, "schedule"), h.Update)
		schedules.POST("/:id/reschedule", writers, audit(models.AuditActionScheduleMove, "schedule"), h.Reschedule)
		schedules.PUT("/:id/status", writers, audit(models.AuditActionScheduleStatus, "schedule"), h.ChangeStatus)
	}

	return r
}
