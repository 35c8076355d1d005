package model

import (
	"errors"
	"time"
)

// ErrSlotTaken is returned by the appointment store when a requested interval
// is already held by an active appointment. The storage layer maps the
// database conflict signal to this sentinel.
var ErrSlotTaken = errors.New("slot already taken")

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusNoShow    AppointmentStatus = "no-show"
)

// Active reports whether an appointment in this status holds its time slot.
// Completed, cancelled and no-show appointments free the slot.
func (s AppointmentStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Appointment stores business-local wall-clock times. By convention all
// wall-clock values are represented in time.UTC as a neutral location and
// persisted without a zone; the caller interprets them in business-local time.
type Appointment struct {
	ID             string
	ServiceID      string
	StaffID        string // empty = unassigned (business-wide resource)
	StaffRequested bool   // whether the customer asked for this staff member
	CustomerName   string
	CustomerEmail  string
	CustomerPhone  string
	Day            time.Time // midnight of the calendar day
	StartAt        time.Time
	// DurationMinutes is snapshotted from the service at booking time so that
	// later edits to the service definition never reshape existing bookings.
	DurationMinutes int
	// BlockedUntil is EndAt plus the buffer in effect at booking time. It is
	// the end bound of the stored busy interval, so the overlap constraint
	// also closes buffer races.
	BlockedUntil time.Time
	Status       AppointmentStatus
	CancelledAt  *time.Time
	CancelReason string
	CreatedAt    time.Time
}

func (a Appointment) EndAt() time.Time {
	return a.StartAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

type Service struct {
	ID              string
	Name            string
	DurationMinutes int
	Active          bool
}

// DayHours is an open window expressed as minutes from midnight.
type DayHours struct {
	StartMinute int
	EndMinute   int
}

// WeeklyHours maps time.Weekday (Sunday = 0) to that day's window.
// A nil entry means closed that day; the zero value means closed every day.
type WeeklyHours [7]*DayHours

// StaffDay is one weekday entry in a staff member's personal schedule.
type StaffDay struct {
	Working     bool
	StartMinute int
	EndMinute   int
}

type Staff struct {
	ID     string
	Name   string
	Active bool
	// ServiceIDs restricts which services this staff member performs.
	// Empty means all services.
	ServiceIDs []string
	// Schedule holds explicit weekday entries. A weekday with no entry defers
	// to business hours; an entry with Working=false is a day off.
	Schedule map[time.Weekday]StaffDay
}

// CanPerform reports whether the staff member may perform the given service.
func (s Staff) CanPerform(serviceID string) bool {
	if len(s.ServiceIDs) == 0 {
		return true
	}
	for _, id := range s.ServiceIDs {
		if id == serviceID {
			return true
		}
	}
	return false
}

// Holiday overrides business hours and staff schedules for one calendar day.
type Holiday struct {
	Day    time.Time
	Name   string
	Closed bool
	// Hours carries a custom open window for partially open holidays.
	// Nil with Closed=false means regular weekly hours apply.
	Hours *DayHours
}
