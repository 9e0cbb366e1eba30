package models

import "time"

// Audit actions recorded by the audit middleware.
const (
	AuditActionEnquiryCreate  = "ENQUIRY_CREATE"
	AuditActionEnquiryUpdate  = "ENQUIRY_UPDATE"
	AuditActionEnquiryStatus  = "ENQUIRY_STATUS_CHANGE"
	AuditActionEnquiryDelete  = "ENQUIRY_DELETE"
	AuditActionBatchCreate    = "BATCH_CREATE"
	AuditActionBatchUpdate    = "BATCH_UPDATE"
	AuditActionBatchStatus    = "BATCH_STATUS_CHANGE"
	AuditActionBatchNominate  = "BATCH_NOMINATE"
	AuditActionBatchDelete    = "BATCH_DELETE"
	AuditActionScheduleCreate = "SCHEDULE_CREATE"
	AuditActionScheduleUpdate = "SCHEDULE_UPDATE"
	AuditActionScheduleMove   = "SCHEDULE_RESCHEDULE"
	AuditActionScheduleStatus = "SCHEDULE_STATUS_CHANGE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
