package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	appErrors "github.com/noah-isme/training-admin-api/pkg/errors"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// ScheduleStatus represents the lifecycle of a booked session.
type ScheduleStatus string

const (
	ScheduleStatusScheduled   ScheduleStatus = "Scheduled"
	ScheduleStatusInProgress  ScheduleStatus = "In Progress"
	ScheduleStatusCompleted   ScheduleStatus = "Completed"
	ScheduleStatusCancelled   ScheduleStatus = "Cancelled"
	ScheduleStatusRescheduled ScheduleStatus = "Rescheduled"
)

var scheduleTransitions = map[ScheduleStatus][]ScheduleStatus{
	ScheduleStatusScheduled:   {ScheduleStatusInProgress, ScheduleStatusCancelled, ScheduleStatusRescheduled},
	ScheduleStatusInProgress:  {ScheduleStatusCompleted, ScheduleStatusCancelled, ScheduleStatusRescheduled},
	ScheduleStatusCompleted:   nil,
	ScheduleStatusCancelled:   nil,
	ScheduleStatusRescheduled: nil,
}

// BlockingScheduleStatuses are the statuses that occupy a room or trainer.
var BlockingScheduleStatuses = []ScheduleStatus{ScheduleStatusScheduled, ScheduleStatusInProgress}

// Valid reports whether s is a known schedule status.
func (s ScheduleStatus) Valid() bool {
	_, ok := scheduleTransitions[s]
	return ok
}

// Blocking reports whether a record in this status participates in conflict checks.
func (s ScheduleStatus) Blocking() bool {
	return s == ScheduleStatusScheduled || s == ScheduleStatusInProgress
}

// ValidateScheduleTransition returns an INVALID_STATUS_TRANSITION error for disallowed pairs.
func ValidateScheduleTransition(from, to ScheduleStatus) error {
	if !to.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown schedule status %q", to))
	}
	for _, allowed := range scheduleTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return invalidTransition("schedule", string(from), string(to), statusStrings(scheduleTransitions[from]))
}

// Schedule is a booked room and trainer slot on a single date.
type Schedule struct {
	ID              string         `db:"id" json:"id"`
	ScheduleID      string         `db:"schedule_id" json:"schedule_id"`
	EnquiryRef      *string        `db:"enquiry_ref" json:"enquiry_ref,omitempty"`
	EnquiryID       *string        `db:"enquiry_id" json:"enquiry_id,omitempty"`
	BatchRef        *string        `db:"batch_ref" json:"batch_ref,omitempty"`
	BatchNumber     *string        `db:"batch_number" json:"batch_number,omitempty"`
	Course          string         `db:"course" json:"course"`
	Client          *string        `db:"client" json:"client,omitempty"`
	Date            time.Time      `db:"date" json:"date"`
	StartTime       string         `db:"start_time" json:"start_time"`
	EndTime         string         `db:"end_time" json:"end_time"`
	RoomID          string         `db:"room_id" json:"room_id"`
	RoomName        string         `db:"room_name" json:"room_name"`
	TrainerID       string         `db:"trainer_id" json:"trainer_id"`
	TrainerName     string         `db:"trainer_name" json:"trainer_name"`
	Session         *string        `db:"session" json:"session,omitempty"`
	Status          ScheduleStatus `db:"status" json:"status"`
	Notes           *string        `db:"notes" json:"notes,omitempty"`
	RescheduledFrom *string        `db:"rescheduled_from" json:"rescheduled_from,omitempty"`
	CreatedBy       *string        `db:"created_by" json:"created_by,omitempty"`
	UpdatedBy       *string        `db:"updated_by" json:"updated_by,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// ScheduleFilter describes query params for listing schedules.
type ScheduleFilter struct {
	From       *time.Time
	To         *time.Time
	RoomID     string
	TrainerID  string
	Status     ScheduleStatus
	BatchRef   string
	EnquiryRef string
	ActiveOnly bool
	Page       int
	PageSize   int
	SortOrder  string
}

// ScheduleConflict describes an existing schedule that blocks a candidate.
type ScheduleConflict struct {
	ScheduleID  string `db:"schedule_id" json:"schedule_id"`
	Dimension   string `db:"-" json:"dimension"`
	Date        string `db:"-" json:"date"`
	StartTime   string `db:"start_time" json:"start_time"`
	EndTime     string `db:"end_time" json:"end_time"`
	RoomID      string `db:"room_id" json:"room_id"`
	RoomName    string `db:"room_name" json:"room_name"`
	TrainerID   string `db:"trainer_id" json:"trainer_id"`
	TrainerName string `db:"trainer_name" json:"trainer_name"`
	Course      string `db:"course" json:"course"`
}

// Conflict dimensions.
const (
	ConflictDimensionRoom    = "ROOM"
	ConflictDimensionTrainer = "TRAINER"
)

// ScheduleSlot is the room, trainer and interval a booking wants to occupy.
type ScheduleSlot struct {
	ExcludeID string
	RoomID    string
	TrainerID string
	Date      time.Time
	StartTime string
	EndTime   string
}

// LockKeys returns the advisory lock keys for the slot in acquisition order.
func (s ScheduleSlot) LockKeys() []string {
	day := s.Date.Format(DateLayout)
	keys := []string{
		fmt.Sprintf("room:%s:%s", s.RoomID, day),
		fmt.Sprintf("trainer:%s:%s", s.TrainerID, day),
	}
	if keys[1] < keys[0] {
		keys[0], keys[1] = keys[1], keys[0]
	}
	return keys
}

// ParseClock parses an HH:MM time of day into minutes after midnight.
func ParseClock(value string) (int, error) {
	value = strings.TrimSpace(value)
	parts := strings.Split(value, ":")
	if len(parts) != 2 || !twoDigits(parts[0]) || !twoDigits(parts[1]) {
		return 0, fmt.Errorf("time %q must use HH:MM", value)
	}
	hours, _ := strconv.Atoi(parts[0])
	if hours > 23 {
		return 0, fmt.Errorf("time %q has an invalid hour", value)
	}
	minutes, _ := strconv.Atoi(parts[1])
	if minutes > 59 {
		return 0, fmt.Errorf("time %q has invalid minutes", value)
	}
	return hours*60 + minutes, nil
}

func twoDigits(v string) bool {
	return len(v) == 2 && v[0] >= '0' && v[0] <= '9' && v[1] >= '0' && v[1] <= '9'
}

// FormatClock renders minutes after midnight as HH:MM.
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// NormalizeClock returns value in the canonical HH:MM form that is stored and compared.
func NormalizeClock(value string) (string, error) {
	m, err := ParseClock(value)
	if err != nil {
		return "", appErrors.Validation(err, err.Error())
	}
	return FormatClock(m), nil
}

// ValidateInterval checks both clocks and that start precedes end on the same day.
// It returns both clocks normalized.
func ValidateInterval(start, end string) (string, string, error) {
	s, err := ParseClock(start)
	if err != nil {
		return "", "", appErrors.Validation(err, err.Error())
	}
	e, err := ParseClock(end)
	if err != nil {
		return "", "", appErrors.Validation(err, err.Error())
	}
	if s >= e {
		return "", "", appErrors.Clone(appErrors.ErrValidation, "start time must be before end time")
	}
	return FormatClock(s), FormatClock(e), nil
}

// Overlaps reports whether [s1,e1) and [s2,e2) intersect.
func Overlaps(s1, e1, s2, e2 int) bool {
	return s1 < e2 && s2 < e1
}

// ParseDate parses a YYYY-MM-DD calendar date in UTC.
func ParseDate(value string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, appErrors.Validation(err, fmt.Sprintf("date %q must use YYYY-MM-DD", value))
	}
	return d, nil
}

// CalendarDay groups schedules on one date.
type CalendarDay struct {
	Date      string     `json:"date"`
	Weekday   string     `json:"weekday"`
	Schedules []Schedule `json:"schedules"`
}

// ScheduleCalendar is the weekly or monthly calendar view.
type ScheduleCalendar struct {
	Period string        `json:"period"`
	From   string        `json:"from"`
	To     string        `json:"to"`
	Days   []CalendarDay `json:"days"`
	Total  int           `json:"total"`
}

// BuildCalendar lays out every date in [from, to] and places schedules on their day.
func BuildCalendar(period string, from, to time.Time, schedules []Schedule) ScheduleCalendar {
	byDay := make(map[string][]Schedule)
	for _, s := range schedules {
		key := s.Date.Format(DateLayout)
		byDay[key] = append(byDay[key], s)
	}

	cal := ScheduleCalendar{
		Period: period,
		From:   from.Format(DateLayout),
		To:     to.Format(DateLayout),
		Total:  len(schedules),
	}
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		key := d.Format(DateLayout)
		items := byDay[key]
		if items == nil {
			items = []Schedule{}
		}
		cal.Days = append(cal.Days, CalendarDay{Date: key, Weekday: d.Weekday().String(), Schedules: items})
	}
	return cal
}

// ISOWeekRange resolves "YYYY-Www" into its Monday and Sunday.
func ISOWeekRange(week string) (time.Time, time.Time, error) {
	var year, num int
	if _, err := fmt.Sscanf(strings.ToUpper(strings.TrimSpace(week)), "%4d-W%2d", &year, &num); err != nil {
		return time.Time{}, time.Time{}, appErrors.Validation(err, fmt.Sprintf("week %q must use YYYY-Www", week))
	}
	if num < 1 || num > 53 {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("week %q is out of range", week))
	}

	// Jan 4th always falls in ISO week 1.
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7
	monday := jan4.AddDate(0, 0, -offset+(num-1)*7)
	if y, w := monday.ISOWeek(); y != year || w != num {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("week %q does not exist", week))
	}
	return monday, monday.AddDate(0, 0, 6), nil
}

// MonthRange resolves "YYYY-MM" into its first and last day.
func MonthRange(month string) (time.Time, time.Time, error) {
	first, err := time.Parse("2006-01", strings.TrimSpace(month))
	if err != nil {
		return time.Time{}, time.Time{}, appErrors.Validation(err, fmt.Sprintf("month %q must use YYYY-MM", month))
	}
	return first, first.AddDate(0, 1, -1), nil
}
