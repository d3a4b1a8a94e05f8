// Package models contains data structures for the application
package models

import (
	"time"
)

// Shift status values stored in shift_records.status
const (
	ShiftOpen   = "open"
	ShiftClosed = "closed"
	ShiftVoid   = "void"
)

// Shift event types stored in shift_events.event_type
const (
	EventClockIn  = "clock_in"
	EventClockOut = "clock_out"
)

// Location source tags
const (
	SourceLastKnown      = "last_known"
	SourceCurrentLowest  = "current_lowest"
	SourceWatchBalanced  = "watch_balanced"
	SourceWatchHigh      = "watch_high"
	SourceFallbackCenter = "fallback_center"
)

// WorkDateLayout is the date-only layout of shift_records.work_date
const WorkDateLayout = "2006-01-02"

// ShiftRecord is the daily attendance summary, one per (user, work date)
type ShiftRecord struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	WorkDate string `json:"work_date"`
	Status   string `json:"status"`

	ClockInAt        *time.Time `json:"clock_in_at,omitempty"`
	ClockInLat       *float64   `json:"clock_in_lat,omitempty"`
	ClockInLng       *float64   `json:"clock_in_lng,omitempty"`
	ClockInAccuracyM *float64   `json:"clock_in_accuracy_m,omitempty"`
	ClockInSource    string     `json:"clock_in_source,omitempty"`

	ClockOutAt        *time.Time `json:"clock_out_at,omitempty"`
	ClockOutLat       *float64   `json:"clock_out_lat,omitempty"`
	ClockOutLng       *float64   `json:"clock_out_lng,omitempty"`
	ClockOutAccuracyM *float64   `json:"clock_out_accuracy_m,omitempty"`
	ClockOutSource    string     `json:"clock_out_source,omitempty"`

	CreatedAt time.Time `json:"created"`
	UpdatedAt time.Time `json:"updated"`
}

// HasClockIn reports whether the record carries a clock-in timestamp
func (r *ShiftRecord) HasClockIn() bool {
	return r != nil && r.ClockInAt != nil
}

// HasClockOut reports whether the record carries a clock-out timestamp
func (r *ShiftRecord) HasClockOut() bool {
	return r != nil && r.ClockOutAt != nil
}

// ShiftPatch holds the fields written by one upsert. Nil fields are left untouched.
type ShiftPatch struct {
	Status string

	ClockInAt        *time.Time
	ClockInLat       *float64
	ClockInLng       *float64
	ClockInAccuracyM *float64
	ClockInSource    string

	ClockOutAt        *time.Time
	ClockOutLat       *float64
	ClockOutLng       *float64
	ClockOutAccuracyM *float64
	ClockOutSource    string
}

// ShiftEvent is an append-only audit entry for one clock action
type ShiftEvent struct {
	ID         string
	ShiftID    string
	UserID     string
	EventType  string
	OccurredAt time.Time
	Lat        float64
	Lng        float64
	AccuracyM  *float64
	Source     string
	Payload    map[string]any
}

// Position is a raw device reading
type Position struct {
	Latitude  float64
	Longitude float64
	AccuracyM *float64
	Timestamp time.Time
}

// LocationFix is the outcome of location acquisition, never persisted as is
type LocationFix struct {
	Latitude       float64  `json:"latitude"`
	Longitude      float64  `json:"longitude"`
	DistanceMeters float64  `json:"distance_m"`
	AccuracyM      *float64 `json:"accuracy_m,omitempty"`
	Fallback       bool     `json:"fallback"`
	Source         string   `json:"source"`
}

// User is the subset of a backend user the service needs
type User struct {
	ID             string
	Name           string
	TelegramChatID int64
	IsAdmin        bool
	PushToken      string
}

// HazardReport is the body accepted by the push relay
type HazardReport struct {
	ReportID  string `json:"report_id"`
	Comment   string `json:"comment"`
	PhotoURL  string `json:"photo_url"`
	CreatedBy string `json:"created_by"`
}
