package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careslot/scheduling/internal/appointment"
	redisclient "github.com/careslot/scheduling/internal/redis"
	"github.com/careslot/scheduling/internal/schedule"
)

const (
	EventBookingCreated     = "APPOINTMENT_BOOKED"
	EventBookingConfirmed   = "APPOINTMENT_CONFIRMED"
	EventBookingStarted     = "APPOINTMENT_STARTED"
	EventBookingCompleted   = "APPOINTMENT_COMPLETED"
	EventBookingCancelled   = "APPOINTMENT_CANCELLED"
	EventBookingRescheduled = "APPOINTMENT_RESCHEDULED"
	EventBookingNoShow      = "APPOINTMENT_NO_SHOW"
)

var (
	// ErrDoctorDayBusy means another booking for the same doctor/day holds
	// the critical section; the caller should retry shortly.
	ErrDoctorDayBusy = errors.New("doctor's day is currently being booked, please retry")

	// ErrNotReschedulable is returned when an appointment's status does not
	// permit a date/time change.
	ErrNotReschedulable = errors.New("appointment cannot be rescheduled in its current status")
)

// BookingRequest describes a proposed booking. StartMinute is minutes from
// midnight of Date.
type BookingRequest struct {
	DoctorID    uuid.UUID
	PatientID   uuid.UUID
	Date        time.Time
	StartMinute int
	Type        appointment.Type
	Reason      *string

	// DirectSchedule marks a doctor/staff-initiated booking, which enters
	// the lifecycle as scheduled instead of pending.
	DirectSchedule bool
}

// Service is the availability facade: the only component other subsystems
// call. It composes the registry, slot generator, conflict detector and the
// lifecycle state machine, and serializes check-then-commit per doctor-day.
type Service struct {
	registry  *schedule.Registry
	detector  *appointment.Detector
	repo      appointment.Repository
	locker    redisclient.Locker
	audit     AuditLogger
	notifier  Notifier
	reminders ReminderScheduler
	log       zerolog.Logger
}

func NewService(
	registry *schedule.Registry,
	detector *appointment.Detector,
	repo appointment.Repository,
	locker redisclient.Locker,
	audit AuditLogger,
	notifier Notifier,
	reminders ReminderScheduler,
	log zerolog.Logger,
) *Service {
	return &Service{
		registry:  registry,
		detector:  detector,
		repo:      repo,
		locker:    locker,
		audit:     audit,
		notifier:  notifier,
		reminders: reminders,
		log:       log,
	}
}

// GetAvailableSlots resolves effective hours for the date and generates the
// candidate slots, marking those occupied by non-terminal appointments.
// durationOverride of 0 uses the template duration; otherwise it must be
// positive and no longer than the configured duration.
func (s *Service) GetAvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time, durationOverride int) ([]schedule.TimeSlot, error) {
	day, err := s.registry.EffectiveHours(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}

	if durationOverride != 0 {
		if durationOverride < 0 || (day.Working && durationOverride > day.SlotMinutes) {
			return nil, fmt.Errorf("%w: duration override %d outside (0, %d]",
				schedule.ErrInvalidConfig, durationOverride, day.SlotMinutes)
		}
		day.SlotMinutes = durationOverride
	}

	active, err := s.repo.ListActiveByDoctorDate(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("list active appointments: %w", err)
	}

	booked := make([]schedule.BookedInterval, 0, len(active))
	for i := range active {
		booked = append(booked, active[i].Interval())
	}

	return schedule.GenerateSlots(day, booked)
}

// CheckConflicts is the read-only pre-flight validation used by UI layers.
// It never commits anything.
func (s *Service) CheckConflicts(ctx context.Context, doctorID uuid.UUID, date time.Time, startMin, duration int, excludeID *uuid.UUID) ([]appointment.Conflict, error) {
	return s.detector.Check(ctx, doctorID, date, startMin, duration, excludeID)
}

// Book validates the request and commits an appointment inside the
// doctor-day critical section. Every conflict kind rejects; a uniqueness
// violation on the insert is reported as an overlap conflict, not a fault.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*appointment.Appointment, error) {
	if _, err := s.repo.GetPatientByID(ctx, req.PatientID); err != nil {
		if errors.Is(err, appointment.ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if _, err := s.repo.GetDoctorByID(ctx, req.DoctorID); err != nil {
		if errors.Is(err, appointment.ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	day, err := s.registry.EffectiveHours(ctx, req.DoctorID, req.Date)
	if err != nil {
		return nil, err
	}
	duration := day.SlotMinutes
	if duration <= 0 && day.Working {
		return nil, fmt.Errorf("%w: template slot duration must be positive", schedule.ErrInvalidConfig)
	}
	if duration <= 0 {
		// Unavailable day: run the detector anyway so the caller gets the
		// leave/working-hours conflicts instead of a config error.
		duration = 1
	}

	status := appointment.StatusPending
	if req.DirectSchedule {
		status = appointment.StatusScheduled
	}

	var created *appointment.Appointment

	err = s.locker.WithDayLock(ctx, req.DoctorID, schedule.DateOnly(req.Date), func(lockCtx context.Context) error {
		conflicts, err := s.detector.Check(lockCtx, req.DoctorID, req.Date, req.StartMinute, duration, nil)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return &appointment.ConflictError{Conflicts: conflicts}
		}

		appt := &appointment.Appointment{
			DoctorID:    req.DoctorID,
			PatientID:   req.PatientID,
			Date:        schedule.DateOnly(req.Date),
			StartMinute: req.StartMinute,
			Duration:    duration,
			Type:        req.Type,
			Status:      status,
			Reason:      req.Reason,
		}

		created, err = s.repo.Create(lockCtx, appt)
		if err != nil {
			if errors.Is(err, appointment.ErrSlotTaken) {
				// The unique index won a race the lock did not cover.
				return &appointment.ConflictError{Conflicts: []appointment.Conflict{{
					Kind:     appointment.ConflictOverlap,
					Severity: appointment.SeverityHigh,
					Message:  "time window was taken while committing",
				}}}
			}
			return fmt.Errorf("create appointment: %w", err)
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrDoctorDayBusy
		}
		return nil, err
	}

	s.audit.Event(ctx, EventBookingCreated, created.ID, map[string]any{
		"doctor_id":  created.DoctorID.String(),
		"patient_id": created.PatientID.String(),
		"date":       created.Date.Format("2006-01-02"),
		"time":       created.StartClock(),
		"status":     string(created.Status),
	})
	s.notifier.BookingCreated(ctx, created)
	if err := s.reminders.ScheduleReminder(ctx, created); err != nil {
		s.log.Warn().Err(err).Str("appointment_id", created.ID.String()).Msg("schedule reminder")
	}

	return created, nil
}

// Reschedule moves a pending or scheduled appointment to a new date/time,
// leaving the status unchanged. The new window is validated with the
// appointment itself excluded, so it never conflicts with its own old
// reservation; the update either fully succeeds or the old window stays
// occupied.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newDate time.Time, newStartMin int) (*appointment.Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != appointment.StatusPending && appt.Status != appointment.StatusScheduled {
		return nil, fmt.Errorf("%w: status %s", ErrNotReschedulable, appt.Status)
	}

	oldDate, oldStart := appt.Date, appt.StartMinute

	var updated *appointment.Appointment

	err = s.locker.WithDayLock(ctx, appt.DoctorID, schedule.DateOnly(newDate), func(lockCtx context.Context) error {
		conflicts, err := s.detector.Check(lockCtx, appt.DoctorID, newDate, newStartMin, appt.Duration, &appt.ID)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return &appointment.ConflictError{Conflicts: conflicts}
		}

		updated, err = s.repo.UpdateSchedule(lockCtx, appt.ID, newDate, newStartMin)
		if err != nil {
			if errors.Is(err, appointment.ErrSlotTaken) {
				return &appointment.ConflictError{Conflicts: []appointment.Conflict{{
					Kind:     appointment.ConflictOverlap,
					Severity: appointment.SeverityHigh,
					Message:  "new time window was taken while committing",
				}}}
			}
			return fmt.Errorf("update schedule: %w", err)
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrDoctorDayBusy
		}
		return nil, err
	}

	s.audit.Event(ctx, EventBookingRescheduled, updated.ID, map[string]any{
		"old_date": oldDate.Format("2006-01-02"),
		"old_time": schedule.FormatClock(oldStart),
		"new_date": updated.Date.Format("2006-01-02"),
		"new_time": updated.StartClock(),
	})
	s.notifier.BookingRescheduled(ctx, updated, oldDate, oldStart)
	if err := s.reminders.CancelReminder(ctx, updated.ID); err != nil {
		s.log.Warn().Err(err).Str("appointment_id", updated.ID.String()).Msg("cancel reminder")
	}
	if err := s.reminders.ScheduleReminder(ctx, updated); err != nil {
		s.log.Warn().Err(err).Str("appointment_id", updated.ID.String()).Msg("reschedule reminder")
	}

	return updated, nil
}

// Cancel moves the appointment to cancelled from any non-terminal state.
// Cancelling an already-cancelled appointment is a no-op returning the same
// terminal record. Once started the cancellation runs to completion.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*appointment.Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if appt.Status == appointment.StatusCancelled {
		return appt, nil
	}
	if _, err := appointment.Transition(appt.Status, appointment.StatusCancelled); err != nil {
		return nil, err
	}

	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}

	updated, err := s.repo.UpdateStatus(ctx, appt.ID, appt.Status, appointment.StatusCancelled, reasonPtr)
	if err != nil {
		if errors.Is(err, appointment.ErrAppointmentNotFound) {
			// Lost a status race; re-read and treat an observed cancel as
			// success so Cancel stays idempotent.
			current, readErr := s.repo.GetByID(ctx, id)
			if readErr == nil && current.Status == appointment.StatusCancelled {
				return current, nil
			}
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.audit.Event(ctx, EventBookingCancelled, updated.ID, map[string]any{
		"reason": reason,
		"from":   string(appt.Status),
	})
	s.notifier.BookingCancelled(ctx, updated, reason)
	if err := s.reminders.CancelReminder(ctx, updated.ID); err != nil {
		s.log.Warn().Err(err).Str("appointment_id", updated.ID.String()).Msg("cancel reminder")
	}

	return updated, nil
}

// Confirm moves a pending appointment to scheduled.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return s.transition(ctx, id, appointment.StatusScheduled, EventBookingConfirmed)
}

// Start moves a scheduled appointment to in-progress.
func (s *Service) Start(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return s.transition(ctx, id, appointment.StatusInProgress, EventBookingStarted)
}

// Complete moves an in-progress appointment to its terminal completed state.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return s.transition(ctx, id, appointment.StatusCompleted, EventBookingCompleted)
}

// MarkNoShow moves a scheduled appointment to no-show.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	appt, err := s.transition(ctx, id, appointment.StatusNoShow, EventBookingNoShow)
	if err != nil {
		return nil, err
	}
	if err := s.reminders.CancelReminder(ctx, appt.ID); err != nil {
		s.log.Warn().Err(err).Str("appointment_id", appt.ID.String()).Msg("cancel reminder")
	}
	return appt, nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to appointment.Status, eventType string) (*appointment.Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, err := appointment.Transition(appt.Status, to); err != nil {
		var illegal *appointment.IllegalTransitionError
		if errors.As(err, &illegal) {
			s.log.Error().
				Str("appointment_id", id.String()).
				Str("from", string(illegal.From)).
				Str("to", string(illegal.To)).
				Msg("illegal appointment transition attempted")
		}
		return nil, err
	}

	updated, err := s.repo.UpdateStatus(ctx, appt.ID, appt.Status, to, nil)
	if err != nil {
		return nil, fmt.Errorf("transition to %s: %w", to, err)
	}

	s.audit.Event(ctx, eventType, updated.ID, map[string]any{
		"from": string(appt.Status),
		"to":   string(to),
	})

	return updated, nil
}

// GetAppointment returns one appointment by id.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

// ListDoctorAppointments returns the doctor's full day agenda, terminal
// statuses included.
func (s *Service) ListDoctorAppointments(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]appointment.Appointment, error) {
	return s.repo.ListByDoctorDate(ctx, doctorID, schedule.DateOnly(date))
}

// ListPatientAppointments pages a patient's appointment history.
func (s *Service) ListPatientAppointments(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]appointment.Appointment, error) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// MarkOverdueNoShows is called by the worker periodically: every scheduled
// appointment whose window ended more than the grace period ago becomes a
// no-show.
func (s *Service) MarkOverdueNoShows(ctx context.Context, now time.Time, grace time.Duration) (int, error) {
	overdue, err := s.repo.FindOverdueScheduled(ctx, now.Add(-grace))
	if err != nil {
		return 0, fmt.Errorf("find overdue scheduled appointments: %w", err)
	}

	marked := 0
	for i := range overdue {
		appt := &overdue[i]
		if _, err := s.repo.UpdateStatus(ctx, appt.ID, appointment.StatusScheduled, appointment.StatusNoShow, nil); err != nil {
			if !errors.Is(err, appointment.ErrAppointmentNotFound) {
				s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("mark no-show")
			}
			continue
		}
		marked++
		s.audit.Event(ctx, EventBookingNoShow, appt.ID, map[string]any{
			"reason": "worker",
		})
		if err := s.reminders.CancelReminder(ctx, appt.ID); err != nil {
			s.log.Warn().Err(err).Str("appointment_id", appt.ID.String()).Msg("cancel reminder")
		}
	}

	return marked, nil
}
