package models

import (
	"strings"
	"time"
)

// Course is the read-only course catalogue entry.
type Course struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Code          *string   `db:"code" json:"code,omitempty"`
	Cost          float64   `db:"cost" json:"cost"`
	ClassCapacity *int      `db:"class_capacity" json:"class_capacity,omitempty"`
	IsActive      bool      `db:"is_active" json:"is_active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Room is a bookable training room.
type Room struct {
	ID       string  `db:"id" json:"id"`
	Name     string  `db:"name" json:"name"`
	Code     *string `db:"code" json:"code,omitempty"`
	Capacity int     `db:"capacity" json:"capacity"`
	Status   string  `db:"status" json:"status"`
	IsActive bool    `db:"is_active" json:"is_active"`
}

// Bookable reports whether the room may receive new schedules.
func (r Room) Bookable() bool {
	return r.IsActive && strings.EqualFold(r.Status, "Available")
}

// Trainer is an instructor that can be assigned to a schedule.
type Trainer struct {
	ID       string  `db:"id" json:"id"`
	Name     string  `db:"name" json:"name"`
	Email    *string `db:"email" json:"email,omitempty"`
	Status   string  `db:"status" json:"status"`
	IsActive bool    `db:"is_active" json:"is_active"`
}

// Bookable reports whether the trainer may be scheduled.
func (t Trainer) Bookable() bool {
	return t.IsActive && strings.EqualFold(t.Status, "Active")
}
