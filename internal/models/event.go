package models

import "time"

// Domain event types published after commit.
const (
	EventEnquiryStatusChanged = "enquiry.status_changed"
	EventBatchNominated       = "batch.nominated"
	EventScheduleCreated      = "schedule.created"
	EventScheduleRescheduled  = "schedule.rescheduled"
)

// DomainEvent is the envelope published to the message broker.
type DomainEvent struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Actor      Actor       `json:"actor"`
	Payload    interface{} `json:"payload"`
}
