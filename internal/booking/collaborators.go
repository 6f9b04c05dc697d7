package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/careslot/scheduling/internal/appointment"
)

// Collaborators are fire-and-forget: a failure in any of them is logged and
// never blocks or fails the primary booking operation.

// AuditLogger records a lifecycle event for every create/update/cancel.
type AuditLogger interface {
	Event(ctx context.Context, eventType string, appointmentID uuid.UUID, payload map[string]any)
}

// Notifier dispatches outbound notifications on lifecycle changes. Delivery
// itself is an external concern.
type Notifier interface {
	BookingCreated(ctx context.Context, appt *appointment.Appointment)
	BookingCancelled(ctx context.Context, appt *appointment.Appointment, reason string)
	BookingRescheduled(ctx context.Context, appt *appointment.Appointment, oldDate time.Time, oldStartMin int)
}

// ReminderScheduler maintains reminder entries keyed by appointment.
type ReminderScheduler interface {
	ScheduleReminder(ctx context.Context, appt *appointment.Appointment) error
	CancelReminder(ctx context.Context, appointmentID uuid.UUID) error
}

// repoAuditLogger writes audit events through the appointment event log.
type repoAuditLogger struct {
	repo appointment.Repository
	log  zerolog.Logger
}

func NewRepoAuditLogger(repo appointment.Repository, log zerolog.Logger) AuditLogger {
	return &repoAuditLogger{repo: repo, log: log}
}

func (l *repoAuditLogger) Event(ctx context.Context, eventType string, appointmentID uuid.UUID, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		l.log.Error().Err(err).Str("event", eventType).Msg("marshal audit payload")
		data = nil
	}

	apptID := appointmentID
	ev := appointment.EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := l.repo.InsertEvent(ctx, ev); err != nil {
		l.log.Error().Err(err).
			Str("event", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("insert audit event")
	}
}

// logNotifier stands in for the external notification dispatcher: it records
// the dispatch intent so a delivery pipeline can be attached later.
type logNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) Notifier {
	return &logNotifier{log: log}
}

func (n *logNotifier) BookingCreated(_ context.Context, appt *appointment.Appointment) {
	n.log.Info().
		Str("appointment_id", appt.ID.String()).
		Str("doctor_id", appt.DoctorID.String()).
		Str("date", appt.Date.Format("2006-01-02")).
		Str("time", appt.StartClock()).
		Msg("notify: booking created")
}

func (n *logNotifier) BookingCancelled(_ context.Context, appt *appointment.Appointment, reason string) {
	n.log.Info().
		Str("appointment_id", appt.ID.String()).
		Str("reason", reason).
		Msg("notify: booking cancelled")
}

func (n *logNotifier) BookingRescheduled(_ context.Context, appt *appointment.Appointment, oldDate time.Time, oldStartMin int) {
	n.log.Info().
		Str("appointment_id", appt.ID.String()).
		Str("old_date", oldDate.Format("2006-01-02")).
		Int("old_start_minute", oldStartMin).
		Str("new_date", appt.Date.Format("2006-01-02")).
		Str("new_time", appt.StartClock()).
		Msg("notify: booking rescheduled")
}

const reminderSetKey = "reminders:due"

// redisReminderScheduler keeps one sorted-set entry per appointment, scored
// by the reminder due time, for a delivery worker to drain.
type redisReminderScheduler struct {
	client *redis.Client
	lead   time.Duration
}

func NewRedisReminderScheduler(client *redis.Client, lead time.Duration) ReminderScheduler {
	if lead <= 0 {
		lead = 24 * time.Hour
	}
	return &redisReminderScheduler{client: client, lead: lead}
}

func (s *redisReminderScheduler) ScheduleReminder(ctx context.Context, appt *appointment.Appointment) error {
	due := appt.Date.Add(time.Duration(appt.StartMinute) * time.Minute).Add(-s.lead)
	err := s.client.ZAdd(ctx, reminderSetKey, redis.Z{
		Score:  float64(due.Unix()),
		Member: appt.ID.String(),
	}).Err()
	if err != nil {
		return fmt.Errorf("schedule reminder: %w", err)
	}
	return nil
}

func (s *redisReminderScheduler) CancelReminder(ctx context.Context, appointmentID uuid.UUID) error {
	if err := s.client.ZRem(ctx, reminderSetKey, appointmentID.String()).Err(); err != nil {
		return fmt.Errorf("cancel reminder: %w", err)
	}
	return nil
}
