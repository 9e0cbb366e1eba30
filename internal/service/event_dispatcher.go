package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/training-admin-api/internal/models"
	"github.com/noah-isme/training-admin-api/pkg/events"
	"github.com/noah-isme/training-admin-api/pkg/jobs"
)

// EventPublisher delivers a message to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, msg events.Message) error
}

type eventSink interface {
	Dispatch(evt models.DomainEvent)
}

type noopEvents struct{}

func (noopEvents) Dispatch(models.DomainEvent) {}

// EventDispatcher hands committed domain events to a background queue that publishes them.
type EventDispatcher struct {
	queue     *jobs.Queue
	publisher EventPublisher
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewEventDispatcher wires publisher behind a worker queue. A nil publisher disables dispatch.
func NewEventDispatcher(publisher EventPublisher, cfg jobs.QueueConfig, metrics *MetricsService, logger *zap.Logger) *EventDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &EventDispatcher{publisher: publisher, metrics: metrics, logger: logger}
	if publisher != nil {
		cfg.Logger = logger
		d.queue = jobs.NewQueue("domain-events", d.handle, cfg)
	}
	return d
}

// Start launches the publishing workers.
func (d *EventDispatcher) Start(ctx context.Context) {
	if d.queue != nil {
		d.queue.Start(ctx)
	}
}

// Stop drains the workers.
func (d *EventDispatcher) Stop() {
	if d.queue != nil {
		d.queue.Stop()
	}
}

// Stats exposes the queue counters.
func (d *EventDispatcher) Stats() jobs.Stats {
	if d.queue == nil {
		return jobs.Stats{}
	}
	return d.queue.Stats()
}

// Dispatch enqueues evt without blocking; a full queue drops the event with a warning.
func (d *EventDispatcher) Dispatch(evt models.DomainEvent) {
	if d == nil || d.queue == nil {
		return
	}
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	err := d.queue.Enqueue(jobs.Job{ID: evt.ID, Type: evt.Type, Payload: evt, Enqueued: time.Now().UTC()})
	if err != nil {
		level := d.logger.Error
		if errors.Is(err, jobs.ErrQueueFull) {
			level = d.logger.Warn
		}
		level("domain event dropped", zap.String("type", evt.Type), zap.String("event_id", evt.ID), zap.Error(err))
	}
}

func (d *EventDispatcher) handle(ctx context.Context, job jobs.Job) error {
	evt, ok := job.Payload.(models.DomainEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", job.Payload)
	}
	err := d.publisher.Publish(ctx, events.Message{
		ID:         evt.ID,
		RoutingKey: evt.Type,
		OccurredAt: evt.OccurredAt,
		Body:       evt,
	})
	d.metrics.RecordEventPublished(evt.Type, err)
	return err
}
