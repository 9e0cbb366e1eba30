package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	appErrors "github.com/noah-isme/training-admin-api/pkg/errors"
)

// BatchStatus represents the lifecycle of a class batch.
type BatchStatus string

const (
	BatchStatusDraft      BatchStatus = "Draft"
	BatchStatusConfirmed  BatchStatus = "Confirmed"
	BatchStatusInProgress BatchStatus = "In Progress"
	BatchStatusCompleted  BatchStatus = "Completed"
	BatchStatusCancelled  BatchStatus = "Cancelled"
)

// DefaultClassCapacity applies when neither the request nor the course defines a capacity.
const DefaultClassCapacity = 15

var batchTransitions = map[BatchStatus][]BatchStatus{
	BatchStatusDraft:      {BatchStatusConfirmed, BatchStatusCancelled},
	BatchStatusConfirmed:  {BatchStatusInProgress, BatchStatusCancelled},
	BatchStatusInProgress: {BatchStatusCompleted, BatchStatusCancelled},
	BatchStatusCompleted:  nil,
	BatchStatusCancelled:  nil,
}

// Valid reports whether s is a known batch status.
func (s BatchStatus) Valid() bool {
	_, ok := batchTransitions[s]
	return ok
}

// AcceptsNominations reports whether trainees may still be added.
func (s BatchStatus) AcceptsNominations() bool {
	return s == BatchStatusDraft || s == BatchStatusConfirmed
}

// ValidateBatchTransition returns an INVALID_STATUS_TRANSITION error for disallowed pairs.
func ValidateBatchTransition(from, to BatchStatus) error {
	if !to.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown batch status %q", to))
	}
	for _, allowed := range batchTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return invalidTransition("batch", string(from), string(to), statusStrings(batchTransitions[from]))
}

// Session is the time-of-day band of a batch.
type Session string

const (
	SessionMorning   Session = "Morning"
	SessionAfternoon Session = "Afternoon"
	SessionEvening   Session = "Evening"
	SessionFullDay   Session = "Full Day"
)

// Valid reports whether s is a known session band.
func (s Session) Valid() bool {
	switch s {
	case SessionMorning, SessionAfternoon, SessionEvening, SessionFullDay:
		return true
	}
	return false
}

// ClientType distinguishes corporate from walk-in nominations.
type ClientType string

const (
	ClientTypeCompany    ClientType = "Company"
	ClientTypeIndividual ClientType = "Individual"
)

// ClientGroup holds one client's trainees within a batch. EnquiryRef is set when
// the group was nominated through an enquiry; such a group is owned by it.
type ClientGroup struct {
	Name       string     `json:"name"`
	Type       ClientType `json:"type"`
	EnquiryRef string     `json:"enquiry_ref,omitempty"`
	Students   []Trainee  `json:"students"`
}

// ClientGroups is stored as a JSONB array.
type ClientGroups []ClientGroup

// Value implements driver.Valuer.
func (g ClientGroups) Value() (driver.Value, error) {
	if g == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(g)
}

// Scan implements sql.Scanner.
func (g *ClientGroups) Scan(src interface{}) error {
	return scanJSON(src, g)
}

// Batch is a class instance that pools trainees from several clients.
type Batch struct {
	ID            string       `db:"id" json:"id"`
	BatchID       string       `db:"batch_id" json:"batch_id"`
	CourseName    string       `db:"course_name" json:"course_name"`
	CourseRef     *string      `db:"course_ref" json:"course_ref,omitempty"`
	Date          *time.Time   `db:"date" json:"date,omitempty"`
	Session       Session      `db:"session" json:"session"`
	StartTime     *string      `db:"start_time" json:"start_time,omitempty"`
	EndTime       *string      `db:"end_time" json:"end_time,omitempty"`
	ClassCapacity int          `db:"class_capacity" json:"class_capacity"`
	Nominees      ClientGroups `db:"nominees" json:"nominees"`
	Nominated     int          `db:"nominated" json:"nominated"`
	Pending       int          `db:"pending" json:"pending"`
	Room          *string      `db:"room" json:"room,omitempty"`
	RoomRef       *string      `db:"room_ref" json:"room_ref,omitempty"`
	Trainer       *string      `db:"trainer" json:"trainer,omitempty"`
	TrainerRef    *string      `db:"trainer_ref" json:"trainer_ref,omitempty"`
	Status        BatchStatus  `db:"status" json:"status"`
	IsActive      bool         `db:"is_active" json:"is_active"`
	CreatedBy     *string      `db:"created_by" json:"created_by,omitempty"`
	UpdatedBy     *string      `db:"updated_by" json:"updated_by,omitempty"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`

	Enquiries []string `db:"-" json:"enquiries"`
}

// TotalStudents sums the roster; it is never read from a stored counter.
func (b Batch) TotalStudents() int {
	total := 0
	for _, group := range b.Nominees {
		total += len(group.Students)
	}
	return total
}

// Recalculate derives nominated and pending from the roster.
func (b *Batch) Recalculate() {
	b.Nominated = b.TotalStudents()
	b.Pending = b.ClassCapacity - b.Nominated
	if b.Pending < 0 {
		b.Pending = 0
	}
}

// Group returns the client's group, if present.
func (b Batch) Group(clientName string) (ClientGroup, bool) {
	for _, group := range b.Nominees {
		if strings.EqualFold(group.Name, clientName) {
			return group, true
		}
	}
	return ClientGroup{}, false
}

// GroupFor returns the group owned by an enquiry, if present.
func (b Batch) GroupFor(enquiryRef string) (ClientGroup, bool) {
	if enquiryRef == "" {
		return ClientGroup{}, false
	}
	for _, group := range b.Nominees {
		if group.EnquiryRef == enquiryRef {
			return group, true
		}
	}
	return ClientGroup{}, false
}

// Nominate replaces clientName's unowned group with trainees and recomputes the counters.
func (b *Batch) Nominate(clientName string, clientType ClientType, trainees []Trainee) error {
	return b.NominateGroup(ClientGroup{Name: clientName, Type: clientType, Students: trainees})
}

// NominateGroup places group on the roster. A group carrying an EnquiryRef replaces the
// group owned by that enquiry, or adopts an unowned group of the same client. Without an
// EnquiryRef only an unowned group of the same client is replaced.
// The batch is left untouched when validation or the capacity check fails.
func (b *Batch) NominateGroup(group ClientGroup) error {
	group.Name = strings.TrimSpace(group.Name)
	if group.Name == "" {
		return appErrors.Clone(appErrors.ErrValidation, "client name is required")
	}
	if group.Type == "" {
		group.Type = ClientTypeCompany
	}
	if group.Type != ClientTypeCompany && group.Type != ClientTypeIndividual {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown client type %q", group.Type))
	}
	if err := ValidateTrainees(group.Students); err != nil {
		return err
	}

	target, err := b.replaceTarget(group)
	if err != nil {
		return err
	}

	next := make(ClientGroups, 0, len(b.Nominees)+1)
	for i, existing := range b.Nominees {
		if i == target {
			next = append(next, ClientGroup{Name: existing.Name, Type: group.Type, EnquiryRef: group.EnquiryRef, Students: group.Students})
			continue
		}
		for _, held := range existing.Students {
			for _, t := range group.Students {
				if strings.EqualFold(strings.TrimSpace(held.CivilID), strings.TrimSpace(t.CivilID)) {
					return appErrors.WithDetails(appErrors.ErrValidation,
						fmt.Sprintf("trainee %s is already nominated by %s", t.CivilID, existing.Name),
						map[string]string{"civil_id": t.CivilID, "client": existing.Name})
				}
			}
		}
		next = append(next, existing)
	}
	if target < 0 {
		next = append(next, group)
	}

	candidate := *b
	candidate.Nominees = next
	candidate.Recalculate()
	if candidate.Nominated > candidate.ClassCapacity {
		return capacityExceeded(b, candidate.Nominated)
	}

	*b = candidate
	return nil
}

// replaceTarget returns the index of the group that group replaces, or -1 to append.
func (b Batch) replaceTarget(group ClientGroup) (int, error) {
	if group.EnquiryRef != "" {
		for i, existing := range b.Nominees {
			if existing.EnquiryRef == group.EnquiryRef {
				return i, nil
			}
		}
	}
	owned := ""
	for i, existing := range b.Nominees {
		if !strings.EqualFold(existing.Name, group.Name) {
			continue
		}
		if existing.EnquiryRef == "" {
			return i, nil
		}
		owned = existing.EnquiryRef
	}
	if owned != "" && group.EnquiryRef == "" {
		return -1, appErrors.WithDetails(appErrors.ErrConflict,
			fmt.Sprintf("trainees of %s in batch %s are managed through their enquiry", group.Name, b.BatchID),
			map[string]string{"client": group.Name, "enquiry_ref": owned})
	}
	return -1, nil
}

// ValidateTrainees checks required fields and civil ID uniqueness within the list.
func ValidateTrainees(trainees []Trainee) error {
	if len(trainees) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "at least one trainee is required")
	}
	seen := make(map[string]struct{}, len(trainees))
	for i, t := range trainees {
		civilID := strings.ToUpper(strings.TrimSpace(t.CivilID))
		if civilID == "" || strings.TrimSpace(t.Name) == "" {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("trainee %d requires civil id and name", i+1))
		}
		if _, dup := seen[civilID]; dup {
			return appErrors.WithDetails(appErrors.ErrValidation,
				fmt.Sprintf("civil id %s appears more than once", t.CivilID),
				map[string]string{"civil_id": t.CivilID})
		}
		seen[civilID] = struct{}{}
	}
	return nil
}

// CapacityDetails is attached to CAPACITY_EXCEEDED errors.
type CapacityDetails struct {
	BatchID   string `json:"batch_id"`
	Capacity  int    `json:"class_capacity"`
	Nominated int    `json:"nominated"`
	Requested int    `json:"requested_total"`
}

func capacityExceeded(b *Batch, requestedTotal int) error {
	return appErrors.WithDetails(appErrors.ErrCapacityExceeded,
		fmt.Sprintf("batch %s has %d seats, nomination would fill %d", b.BatchID, b.ClassCapacity, requestedTotal),
		CapacityDetails{BatchID: b.BatchID, Capacity: b.ClassCapacity, Nominated: b.Nominated, Requested: requestedTotal})
}

// BatchFilter captures list criteria.
type BatchFilter struct {
	CourseName string
	Status     BatchStatus
	HasSeats   *bool
	From       *time.Time
	To         *time.Time
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// RosterEntry is a flattened roster line used by exports.
type RosterEntry struct {
	Client        string
	ClientType    ClientType
	CivilID       string
	Name          string
	ContactNumber string
	Email         string
	Language      string
}

// Roster flattens the client groups in roster order.
func (b Batch) Roster() []RosterEntry {
	entries := make([]RosterEntry, 0, b.TotalStudents())
	for _, group := range b.Nominees {
		for _, s := range group.Students {
			entries = append(entries, RosterEntry{
				Client:        group.Name,
				ClientType:    group.Type,
				CivilID:       s.CivilID,
				Name:          s.Name,
				ContactNumber: s.ContactNumber,
				Email:         s.Email,
				Language:      s.Language,
			})
		}
	}
	return entries
}
