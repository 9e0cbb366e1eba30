package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	appErrors "github.com/noah-isme/training-admin-api/pkg/errors"
)

// EnquiryStatus represents the lifecycle of a sales enquiry.
type EnquiryStatus string

const (
	EnquiryStatusDraft             EnquiryStatus = "Draft"
	EnquiryStatusQuotationSent     EnquiryStatus = "Quotation Sent"
	EnquiryStatusAgreementPending  EnquiryStatus = "Agreement Pending"
	EnquiryStatusAgreementSent     EnquiryStatus = "Agreement Sent"
	EnquiryStatusPendingNomination EnquiryStatus = "Pending Nomination"
	EnquiryStatusNominated         EnquiryStatus = "Nominated"
	EnquiryStatusScheduled         EnquiryStatus = "Scheduled"
	EnquiryStatusCompleted         EnquiryStatus = "Completed"
	EnquiryStatusCancelled         EnquiryStatus = "Cancelled"
)

// EnquiryStatusPendingFilter is a list-only pseudo status matching enquiries not yet at nomination.
const EnquiryStatusPendingFilter = "pending"

// PreNominationStatuses are the open, pre-nomination stages.
var PreNominationStatuses = []EnquiryStatus{
	EnquiryStatusDraft,
	EnquiryStatusQuotationSent,
	EnquiryStatusAgreementPending,
	EnquiryStatusAgreementSent,
}

// Activity actions appended by the workflow.
const (
	ActivityEnquiryCreated = "Enquiry Created"
	ActivityEnquiryUpdated = "Enquiry Updated"
	ActivityStatusChanged  = "Status Changed"
	ActivityStatusOverride = "Status Override"
	ActivityNominated      = "Nominated"
	ActivityScheduled      = "Scheduled"
)

var enquiryTransitions = map[EnquiryStatus][]EnquiryStatus{
	EnquiryStatusDraft:             {EnquiryStatusQuotationSent, EnquiryStatusCancelled},
	EnquiryStatusQuotationSent:     {EnquiryStatusAgreementPending, EnquiryStatusCancelled},
	EnquiryStatusAgreementPending:  {EnquiryStatusAgreementSent, EnquiryStatusCancelled},
	EnquiryStatusAgreementSent:     {EnquiryStatusPendingNomination, EnquiryStatusCancelled},
	EnquiryStatusPendingNomination: {EnquiryStatusNominated, EnquiryStatusCancelled},
	EnquiryStatusNominated:         {EnquiryStatusScheduled, EnquiryStatusPendingNomination, EnquiryStatusCancelled},
	EnquiryStatusScheduled:         {EnquiryStatusCompleted, EnquiryStatusCancelled},
	EnquiryStatusCompleted:         nil,
	EnquiryStatusCancelled:         nil,
}

// Valid reports whether s is a known status.
func (s EnquiryStatus) Valid() bool {
	_, ok := enquiryTransitions[s]
	return ok
}

// Terminal reports whether no further transitions are possible.
func (s EnquiryStatus) Terminal() bool {
	return s.Valid() && len(enquiryTransitions[s]) == 0
}

// CanTransitionTo reports whether the table allows s -> next.
func (s EnquiryStatus) CanTransitionTo(next EnquiryStatus) bool {
	for _, allowed := range enquiryTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AllowedTransitions lists the statuses reachable from s.
func (s EnquiryStatus) AllowedTransitions() []EnquiryStatus {
	out := make([]EnquiryStatus, len(enquiryTransitions[s]))
	copy(out, enquiryTransitions[s])
	return out
}

// ValidateEnquiryTransition returns an INVALID_STATUS_TRANSITION error for disallowed pairs.
func ValidateEnquiryTransition(from, to EnquiryStatus) error {
	if !to.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown enquiry status %q", to))
	}
	if from.CanTransitionTo(to) {
		return nil
	}
	return invalidTransition("enquiry", string(from), string(to), statusStrings(from.AllowedTransitions()))
}

// Trainee is a single nominated learner.
type Trainee struct {
	CivilID       string `json:"civil_id" validate:"required"`
	Name          string `json:"name" validate:"required"`
	ContactNumber string `json:"contact_number,omitempty"`
	Email         string `json:"email,omitempty" validate:"omitempty,email"`
	Language      string `json:"language,omitempty" validate:"omitempty,oneof=English Arabic Hindi Urdu Bengali Filipino"`
}

// Trainees is stored as a JSONB array.
type Trainees []Trainee

// Value implements driver.Valuer.
func (t Trainees) Value() (driver.Value, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(t)
}

// Scan implements sql.Scanner.
func (t *Trainees) Scan(src interface{}) error {
	return scanJSON(src, t)
}

// Enquiry is a sales enquiry progressing toward a scheduled course.
type Enquiry struct {
	ID                string        `db:"id" json:"id"`
	EnquiryID         string        `db:"enquiry_id" json:"enquiry_id"`
	Client            string        `db:"client" json:"client"`
	ContactName       string        `db:"contact_name" json:"contact_name"`
	ContactPhone      string        `db:"contact_phone" json:"contact_phone"`
	ContactEmail      string        `db:"contact_email" json:"contact_email"`
	Course            string        `db:"course" json:"course"`
	Cost              float64       `db:"cost" json:"cost"`
	Requested         int           `db:"requested" json:"requested"`
	Nominated         int           `db:"nominated" json:"nominated"`
	StartDate         time.Time     `db:"start_date" json:"start_date"`
	EndDate           time.Time     `db:"end_date" json:"end_date"`
	Status            EnquiryStatus `db:"status" json:"status"`
	BatchNumber       *string       `db:"batch_number" json:"batch_number,omitempty"`
	BatchRef          *string       `db:"batch_ref" json:"batch_ref,omitempty"`
	Nominees          Trainees      `db:"nominees" json:"nominees"`
	QuotationSentDate *time.Time    `db:"quotation_sent_date" json:"quotation_sent_date,omitempty"`
	AgreementSentDate *time.Time    `db:"agreement_sent_date" json:"agreement_sent_date,omitempty"`
	IsActive          bool          `db:"is_active" json:"is_active"`
	CreatedBy         *string       `db:"created_by" json:"created_by,omitempty"`
	UpdatedBy         *string       `db:"updated_by" json:"updated_by,omitempty"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updated_at"`
}

// Pending returns the number of seats still to be nominated.
func (e Enquiry) Pending() int {
	if p := e.Requested - e.Nominated; p > 0 {
		return p
	}
	return 0
}

// MarshalJSON adds the derived pending count.
func (e Enquiry) MarshalJSON() ([]byte, error) {
	type alias Enquiry
	return json.Marshal(struct {
		alias
		Pending int `json:"pending"`
	}{alias: alias(e), Pending: e.Pending()})
}

// Validate checks the quantity and date invariants.
func (e Enquiry) Validate() error {
	switch {
	case e.Requested < 1:
		return appErrors.Clone(appErrors.ErrValidation, "requested must be at least 1")
	case e.Nominated < 0 || e.Nominated > e.Requested:
		return appErrors.Clone(appErrors.ErrValidation, "nominated must be between 0 and requested")
	case e.Cost < 0:
		return appErrors.Clone(appErrors.ErrValidation, "cost must not be negative")
	case e.EndDate.Before(e.StartDate):
		return appErrors.Clone(appErrors.ErrValidation, "start date must not be after end date")
	}
	return nil
}

// ApplyStatus moves the enquiry to next, stamping quotation and agreement dates.
// With force the transition table is bypassed; a move to the current status is still rejected.
func (e *Enquiry) ApplyStatus(next EnquiryStatus, force bool, at time.Time) error {
	if !next.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown enquiry status %q", next))
	}
	if !force {
		if err := ValidateEnquiryTransition(e.Status, next); err != nil {
			return err
		}
	} else if e.Status == next {
		return invalidTransition("enquiry", string(e.Status), string(next), nil)
	}

	switch next {
	case EnquiryStatusQuotationSent:
		e.QuotationSentDate = &at
	case EnquiryStatusAgreementSent:
		e.AgreementSentDate = &at
	}
	e.Status = next
	e.UpdatedAt = at
	return nil
}

// ApplyNomination syncs the enquiry's nominee projection from its group in batch.
// An enquiry belongs to at most one batch, and only to a batch of its own course.
func (e *Enquiry) ApplyNomination(batch *Batch, trainees []Trainee, at time.Time) error {
	if e.Status != EnquiryStatusPendingNomination && e.Status != EnquiryStatusNominated {
		return invalidTransition("enquiry", string(e.Status), string(EnquiryStatusNominated),
			statusStrings([]EnquiryStatus{EnquiryStatusPendingNomination, EnquiryStatusNominated}))
	}
	if e.BatchRef != nil && *e.BatchRef != "" && *e.BatchRef != batch.ID {
		current := *e.BatchRef
		if e.BatchNumber != nil {
			current = *e.BatchNumber
		}
		return appErrors.WithDetails(appErrors.ErrInvalidTransition,
			fmt.Sprintf("enquiry %s is already nominated to %s", e.EnquiryID, current),
			map[string]string{"enquiry_id": e.EnquiryID, "batch_id": current, "requested_batch": batch.BatchID})
	}
	if !strings.EqualFold(strings.TrimSpace(e.Course), strings.TrimSpace(batch.CourseName)) {
		return appErrors.WithDetails(appErrors.ErrValidation,
			fmt.Sprintf("enquiry %s is for %s, batch %s runs %s", e.EnquiryID, e.Course, batch.BatchID, batch.CourseName),
			map[string]string{"enquiry_course": e.Course, "batch_course": batch.CourseName})
	}
	if len(trainees) > e.Requested {
		return appErrors.WithDetails(appErrors.ErrValidation,
			fmt.Sprintf("%d trainees exceed the %d seats requested by %s", len(trainees), e.Requested, e.EnquiryID),
			map[string]int{"requested": e.Requested, "submitted": len(trainees)})
	}

	batchRef, batchNumber := batch.ID, batch.BatchID
	e.Nominees = append(Trainees(nil), trainees...)
	e.Nominated = len(trainees)
	e.BatchRef = &batchRef
	e.BatchNumber = &batchNumber
	e.Status = EnquiryStatusNominated
	e.UpdatedAt = at
	return nil
}

// EnquiryActivity is an append-only audit entry on an enquiry.
type EnquiryActivity struct {
	ID        string    `db:"id" json:"id"`
	EnquiryID string    `db:"enquiry_id" json:"-"`
	Action    string    `db:"action" json:"action"`
	Details   string    `db:"details" json:"details"`
	UserID    *string   `db:"user_id" json:"user_id,omitempty"`
	UserName  string    `db:"user_name" json:"user_name"`
	CreatedAt time.Time `db:"created_at" json:"timestamp"`
}

// EnquiryNote is an append-only free-text note.
type EnquiryNote struct {
	ID        string    `db:"id" json:"id"`
	EnquiryID string    `db:"enquiry_id" json:"-"`
	Content   string    `db:"content" json:"content"`
	UserID    *string   `db:"user_id" json:"user_id,omitempty"`
	UserName  string    `db:"user_name" json:"user_name"`
	CreatedAt time.Time `db:"created_at" json:"timestamp"`
}

// EnquiryDetail bundles an enquiry with its logs.
type EnquiryDetail struct {
	Enquiry    Enquiry           `json:"enquiry"`
	Activities []EnquiryActivity `json:"activity_log"`
	Notes      []EnquiryNote     `json:"notes"`
}

// EnquiryFilter captures list criteria.
type EnquiryFilter struct {
	Status    string
	Client    string
	Course    string
	From      *time.Time
	To        *time.Time
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// EnquiryStats summarises the enquiry pipeline.
type EnquiryStats struct {
	Total              int       `db:"total" json:"total"`
	Open               int       `db:"open" json:"open"`
	PendingNominations int       `db:"pending_nominations" json:"pending_nominations"`
	Nominated          int       `db:"nominated" json:"nominated"`
	Scheduled          int       `db:"scheduled" json:"scheduled"`
	Completed          int       `db:"completed" json:"completed"`
	Cancelled          int       `db:"cancelled" json:"cancelled"`
	GeneratedAt        time.Time `db:"-" json:"generated_at"`
}

func invalidTransition(entity, from, to string, allowed []string) error {
	return appErrors.WithDetails(appErrors.ErrInvalidTransition,
		fmt.Sprintf("%s cannot move from %s to %s", entity, from, to),
		map[string]interface{}{"from": from, "to": to, "allowed": allowed})
}

func statusStrings[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func scanJSON(src interface{}, dest interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported json source %T", src)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}
