package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/training-admin-api/api/swagger"
	"github.com/noah-isme/training-admin-api/internal/handler"
	"github.com/noah-isme/training-admin-api/internal/repository"
	"github.com/noah-isme/training-admin-api/internal/router"
	"github.com/noah-isme/training-admin-api/internal/service"
	"github.com/noah-isme/training-admin-api/pkg/cache"
	"github.com/noah-isme/training-admin-api/pkg/config"
	"github.com/noah-isme/training-admin-api/pkg/database"
	"github.com/noah-isme/training-admin-api/pkg/events"
	"github.com/noah-isme/training-admin-api/pkg/jobs"
	"github.com/noah-isme/training-admin-api/pkg/logger"
)

// @title Training Admin API
// @version 1.0.0
// @description Enquiry, batch allocation and schedule booking for a training institute.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			// reads fall back to postgres
			logr.Warn("redis unavailable, caching disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(repository.NewCacheRepository(redisClient, logr), metricsSvc, cfg.Cache.TTL, logr, redisClient != nil)

	var publisher service.EventPublisher
	if cfg.Events.Enabled {
		amqpPublisher := events.NewAMQPPublisher(cfg.Events.URL, cfg.Events.Exchange, logr)
		defer amqpPublisher.Close() //nolint:errcheck
		publisher = amqpPublisher
	}
	dispatcher := service.NewEventDispatcher(publisher, jobs.QueueConfig{
		Workers:    cfg.Events.Workers,
		BufferSize: cfg.Events.BufferSize,
		MaxRetries: cfg.Events.MaxRetries,
		RetryDelay: cfg.Events.RetryDelay,
	}, metricsSvc, logr)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	validate := validator.New()
	sequences := service.NewSequenceService(repository.NewSequenceRepository(db))
	courses := repository.NewCourseRepository(db)
	batchRepo := repository.NewBatchRepository(db)

	enquirySvc := service.NewEnquiryService(db, repository.NewEnquiryRepository(db), courses, sequences, validate, cacheSvc, dispatcher, metricsSvc, logr)
	batchSvc := service.NewBatchService(db, batchRepo, courses, sequences, enquirySvc, validate, dispatcher, metricsSvc, logr, cfg.Batches.DefaultClassCapacity)
	scheduleSvc := service.NewScheduleService(db, repository.NewScheduleRepository(db),
		repository.NewRoomRepository(db), repository.NewTrainerRepository(db),
		batchRepo, enquirySvc, sequences, validate, cacheSvc, dispatcher, metricsSvc, logr)

	authSvc := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
		Audience:          firstOrEmpty(cfg.JWT.Audience),
	})

	checks := map[string]handler.ReadinessCheck{"database": db.PingContext}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	engine := router.New(router.Options{
		APIPrefix:      cfg.APIPrefix,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		EnableDocs:     cfg.Env != config.EnvProduction,
		Logger:         logr,
		Auth:           authSvc,
		Audit:          repository.NewAuditRepository(db),
		Observer:       metricsSvc,
		Enquiries:      handler.NewEnquiryHandler(enquirySvc),
		Batches:        handler.NewBatchHandler(batchSvc),
		Schedules:      handler.NewScheduleHandler(scheduleSvc),
		Metrics:        handler.NewMetricsHandler(metricsSvc, checks),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func firstOrEmpty(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
