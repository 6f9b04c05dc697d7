package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/careslot/scheduling/internal/schedule"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

// Terminal reports whether no further transition is permitted from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// NonTerminalStatuses are the statuses that occupy a slot. At most one of
// these may cover a given doctor+date+time window.
var NonTerminalStatuses = []Status{StatusPending, StatusScheduled, StatusInProgress}

type Type string

const (
	TypeConsultation Type = "consultation"
	TypeFollowUp     Type = "follow_up"
	TypeCheckup      Type = "checkup"
	TypeEmergency    Type = "emergency"
)

// Appointment occupies one doctor time window on one date. StartMinute is
// minutes from midnight in the doctor's local day; Duration is minutes.
type Appointment struct {
	ID          uuid.UUID
	DoctorID    uuid.UUID
	PatientID   uuid.UUID
	Date        time.Time
	StartMinute int
	Duration    int
	Type        Type
	Status      Status
	Reason      *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EndMinute is the exclusive end of the occupied window.
func (a *Appointment) EndMinute() int {
	return a.StartMinute + a.Duration
}

// StartClock renders the start as "HH:MM".
func (a *Appointment) StartClock() string {
	return schedule.FormatClock(a.StartMinute)
}

// Interval returns the occupied window as a booked interval for the slot
// generator.
func (a *Appointment) Interval() schedule.BookedInterval {
	return schedule.BookedInterval{
		AppointmentID: a.ID,
		StartMin:      a.StartMinute,
		EndMin:        a.EndMinute(),
	}
}

// Doctor and Patient are directory records owned by the persistence
// collaborator; the engine reads them for validation only.
type Doctor struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EventLog is an audit record written on every lifecycle change.
type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
