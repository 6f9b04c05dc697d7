package schedule

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Recurrence string

const (
	RecurrenceWeekly   Recurrence = "weekly"
	RecurrenceDaily    Recurrence = "daily"
	RecurrenceBiweekly Recurrence = "biweekly"
	RecurrenceMonthly  Recurrence = "monthly"
	RecurrenceCustom   Recurrence = "custom"
)

type OverrideKind string

const (
	OverrideLeave                OverrideKind = "leave"
	OverrideEmergencyUnavailable OverrideKind = "emergency_unavailable"
	OverrideTemporaryUnavailable OverrideKind = "temporary_unavailable"
	OverrideCapacityUpdate       OverrideKind = "capacity_update"
)

type OverrideStatus string

const (
	OverridePending   OverrideStatus = "pending"
	OverrideApproved  OverrideStatus = "approved"
	OverrideRejected  OverrideStatus = "rejected"
	OverrideCancelled OverrideStatus = "cancelled"
)

// WorkingDayTemplate is one row of a doctor's weekly recurring schedule.
// Wall-clock fields use "HH:MM" in the doctor's local timezone; exactly one
// active template exists per (doctor, weekday), new writes supersede.
type WorkingDayTemplate struct {
	ID                  uuid.UUID
	DoctorID            uuid.UUID
	DayOfWeek           time.Weekday
	IsWorking           bool
	StartTime           string
	EndTime             string
	BreakStart          *string
	BreakEnd            *string
	AppointmentDuration int // minutes
	BufferTime          int // minutes between consecutive slots
	MaxAppointments     int // per day, 0 means unlimited
	Timezone            string
	Recurrence          Recurrence
	EffectiveFrom       *time.Time
	EffectiveUntil      *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ScheduleOverride is a dated exception superseding the weekly template:
// leave, emergency/temporary unavailability, or a capacity change.
// Only approved, in-range overrides affect slot generation.
type ScheduleOverride struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	StartDate time.Time
	EndDate   time.Time
	Kind      OverrideKind
	Status    OverrideStatus
	Reason    *string

	// Custom hours for temporary_unavailable overrides that reduce rather
	// than erase the day; nil means the day is fully unavailable.
	StartTime *string
	EndTime   *string

	// Replacement daily cap for capacity_update overrides.
	MaxAppointments *int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MarksUnavailable reports whether the override removes the whole day.
func (o *ScheduleOverride) MarksUnavailable() bool {
	switch o.Kind {
	case OverrideLeave, OverrideEmergencyUnavailable:
		return true
	case OverrideTemporaryUnavailable:
		return o.StartTime == nil || o.EndTime == nil
	default:
		return false
	}
}

// Covers reports whether date falls inside the override's date range.
func (o *ScheduleOverride) Covers(date time.Time) bool {
	d := DateOnly(date)
	return !d.Before(DateOnly(o.StartDate)) && !d.After(DateOnly(o.EndDate))
}

// DaySource tags how an effective day was resolved.
type DaySource string

const (
	SourceNoConfig DaySource = "no_config"
	SourceLeave    DaySource = "leave"
	SourceOverride DaySource = "override"
	SourceTemplate DaySource = "template"
)

// EffectiveDay is the winning working-hours configuration for one doctor on
// one concrete date, after override/leave precedence. Times are minutes from
// midnight so interval math stays integral.
type EffectiveDay struct {
	DoctorID        uuid.UUID
	Date            time.Time
	Source          DaySource
	Working         bool
	StartMin        int
	EndMin          int
	BreakStartMin   int // -1 when the day has no break
	BreakEndMin     int // -1 when the day has no break
	SlotMinutes     int
	BufferMinutes   int
	MaxAppointments int // 0 means unlimited
	Timezone        string
}

// HasBreak reports whether the day carries a break window.
func (d EffectiveDay) HasBreak() bool {
	return d.BreakStartMin >= 0 && d.BreakEndMin > d.BreakStartMin
}

// TimeSlot is a derived candidate appointment interval. Slots are computed
// on demand and go stale the moment any appointment for the doctor/date
// changes; callers must not cache them across a booking attempt.
type TimeSlot struct {
	StartMin      int        `json:"-"`
	EndMin        int        `json:"-"`
	Start         string     `json:"start_time"`
	End           string     `json:"end_time"`
	Available     bool       `json:"is_available"`
	Booked        bool       `json:"is_booked"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
}

// ParseClock parses "HH:MM" into minutes from midnight. Trailing input is
// rejected, not ignored.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatClock renders minutes from midnight as "HH:MM".
func FormatClock(min int) string {
	return fmt.Sprintf("%02d:%02d", min/60, min%60)
}

// DateOnly truncates t to a UTC calendar date.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
