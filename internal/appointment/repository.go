package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrSlotTaken is returned when the commit-time uniqueness guard fires:
	// another booking won the same window between check and commit.
	ErrSlotTaken = errors.New("time window already taken")
)

// Repository contains all DB interactions needed by the engine.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// ListActiveByDoctorDate returns every non-terminal appointment for the
	// doctor on the date, ordered by start minute. Used for conflict checks
	// and slot marking.
	ListActiveByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error)

	// Create inserts the appointment. The backing store must enforce
	// uniqueness of (doctor, date, start) across non-terminal statuses and
	// return ErrSlotTaken on violation.
	Create(ctx context.Context, appt *Appointment) (*Appointment, error)

	// UpdateStatus is a compare-and-set move from one status to another;
	// ErrAppointmentNotFound when the appointment is missing or no longer
	// in the expected status.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, reason *string) (*Appointment, error)

	// UpdateSchedule moves a non-terminal appointment to a new date/time
	// atomically, leaving the status unchanged. Returns ErrSlotTaken on a
	// uniqueness violation at the new window.
	UpdateSchedule(ctx context.Context, id uuid.UUID, newDate time.Time, newStartMin int) (*Appointment, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error)

	// FindOverdueScheduled returns scheduled appointments whose window ended
	// before the cutoff. Used by the no-show worker.
	FindOverdueScheduled(ctx context.Context, cutoff time.Time) ([]Appointment, error)

	// InsertEvent appends to the audit event log.
	InsertEvent(ctx context.Context, ev EventLog) error
}
