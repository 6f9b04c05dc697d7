package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careslot/scheduling/internal/schedule"
)

// stubHours returns one canned effective day, and optionally an approved
// unavailability override, for every lookup.
type stubHours struct {
	day   schedule.EffectiveDay
	leave *schedule.ScheduleOverride
	err   error
}

func (s *stubHours) EffectiveHours(_ context.Context, doctorID uuid.UUID, date time.Time) (schedule.EffectiveDay, error) {
	if s.err != nil {
		return schedule.EffectiveDay{}, s.err
	}
	day := s.day
	day.DoctorID = doctorID
	day.Date = schedule.DateOnly(date)
	return day, nil
}

func (s *stubHours) ApprovedLeaveFor(context.Context, uuid.UUID, time.Time) (*schedule.ScheduleOverride, error) {
	return s.leave, nil
}

// stubApptRepo serves a fixed set of active appointments; everything else is
// unused by the detector.
type stubApptRepo struct {
	active []Appointment
}

func (s *stubApptRepo) GetDoctorByID(context.Context, uuid.UUID) (*Doctor, error) {
	return nil, ErrDoctorNotFound
}
func (s *stubApptRepo) GetPatientByID(context.Context, uuid.UUID) (*Patient, error) {
	return nil, ErrPatientNotFound
}
func (s *stubApptRepo) GetByID(context.Context, uuid.UUID) (*Appointment, error) {
	return nil, ErrAppointmentNotFound
}
func (s *stubApptRepo) ListActiveByDoctorDate(context.Context, uuid.UUID, time.Time) ([]Appointment, error) {
	return s.active, nil
}
func (s *stubApptRepo) Create(context.Context, *Appointment) (*Appointment, error) {
	return nil, errors.New("not implemented")
}
func (s *stubApptRepo) UpdateStatus(context.Context, uuid.UUID, Status, Status, *string) (*Appointment, error) {
	return nil, errors.New("not implemented")
}
func (s *stubApptRepo) UpdateSchedule(context.Context, uuid.UUID, time.Time, int) (*Appointment, error) {
	return nil, errors.New("not implemented")
}
func (s *stubApptRepo) ListByPatient(context.Context, uuid.UUID, int, int) ([]Appointment, error) {
	return nil, nil
}
func (s *stubApptRepo) ListByDoctorDate(context.Context, uuid.UUID, time.Time) ([]Appointment, error) {
	return s.active, nil
}
func (s *stubApptRepo) FindOverdueScheduled(context.Context, time.Time) ([]Appointment, error) {
	return nil, nil
}
func (s *stubApptRepo) InsertEvent(context.Context, EventLog) error { return nil }

func standardDay() schedule.EffectiveDay {
	return schedule.EffectiveDay{
		Source:        schedule.SourceTemplate,
		Working:       true,
		StartMin:      9 * 60,
		EndMin:        17 * 60,
		BreakStartMin: 12 * 60,
		BreakEndMin:   13 * 60,
		SlotMinutes:   30,
	}
}

var testDate = time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

func kinds(conflicts []Conflict) []ConflictKind {
	out := make([]ConflictKind, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, c.Kind)
	}
	return out
}

func TestDetector_CleanWindow(t *testing.T) {
	d := NewDetector(&stubHours{day: standardDay()}, &stubApptRepo{})

	conflicts, err := d.Check(context.Background(), uuid.New(), testDate, 9*60, 30, nil)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestDetector_OutsideWorkingHours(t *testing.T) {
	d := NewDetector(&stubHours{day: standardDay()}, &stubApptRepo{})

	// 08:30 starts before the 09:00 opening.
	conflicts, err := d.Check(context.Background(), uuid.New(), testDate, 8*60+30, 30, nil)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, ConflictWorkingHours, conflicts[0].Kind)
	assert.Equal(t, SeverityHigh, conflicts[0].Severity)

	// 16:45 + 30min spills past the 17:00 close.
	conflicts, err = d.Check(context.Background(), uuid.New(), testDate, 16*60+45, 30, nil)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, ConflictWorkingHours, conflicts[0].Kind)
}

func TestDetector_BreakViolation(t *testing.T) {
	d := NewDetector(&stubHours{day: standardDay()}, &stubApptRepo{})

	conflicts, err := d.Check(context.Background(), uuid.New(), testDate, 12*60+15, 30, nil)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, ConflictBreakViolation, conflicts[0].Kind)
	assert.Equal(t, SeverityMedium, conflicts[0].Severity)

	// Touching the break boundary is not a violation.
	conflicts, err = d.Check(context.Background(), uuid.New(), testDate, 11*60+30, 30, nil)
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	conflicts, err = d.Check(context.Background(), uuid.New(), testDate, 13*60, 30, nil)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestDetector_LeaveDay(t *testing.T) {
	day := schedule.EffectiveDay{
		Source:        schedule.SourceLeave,
		Working:       false,
		BreakStartMin: -1,
		BreakEndMin:   -1,
	}
	leave := &schedule.ScheduleOverride{
		ID:     uuid.New(),
		Kind:   schedule.OverrideLeave,
		Status: schedule.OverrideApproved,
	}
	d := NewDetector(&stubHours{day: day, leave: leave}, &stubApptRepo{})

	conflicts, err := d.Check(context.Background(), uuid.New(), testDate, 10*60, 30, nil)
	require.NoError(t, err)
	require.Len(t, conflicts, 2)
	assert.Equal(t, ConflictLeave, conflicts[0].Kind, "leave must sort first")
	assert.Equal(t, SeverityCritical, conflicts[0].Severity)
	assert.Equal(t, ConflictWorkingHours, conflicts[1].Kind)
}

func TestDetector_NonWorkingDayWithoutLeaveIsNotLeave(t *testing.T) {
	// A capacity override can stamp the day with an override source without
	// making the doctor unavailable; an unconfigured weekday under it must
	// report out-of-hours only.
	day := schedule.EffectiveDay{
		Source:        schedule.SourceOverride,
		Working:       false,
		BreakStartMin: -1,
		BreakEndMin:   -1,
	}
	d := NewDetector(&stubHours{day: day}, &stubApptRepo{})

	conflicts, err := d.Check(context.Background(), uuid.New(), testDate, 10*60, 30, nil)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, ConflictWorkingHours, conflicts[0].Kind)
}

func TestDetector_Overlap(t *testing.T) {
	doctorID := uuid.New()
	existing := Appointment{
		ID:          uuid.New(),
		DoctorID:    doctorID,
		Date:        testDate,
		StartMinute: 10 * 60,
		Duration:    30,
		Status:      StatusScheduled,
	}
	d := NewDetector(&stubHours{day: standardDay()}, &stubApptRepo{active: []Appointment{existing}})

	// Same window.
	conflicts, err := d.Check(context.Background(), doctorID, testDate, 10*60, 30, nil)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, ConflictOverlap, conflicts[0].Kind)
	require.NotNil(t, conflicts[0].AppointmentID)
	assert.Equal(t, existing.ID, *conflicts[0].AppointmentID)

	// Partial overlap from the left.
	conflicts, err = d.Check(context.Background(), doctorID, testDate, 9*60+45, 30, nil)
	require.NoError(t, err)
	assert.Equal(t, []ConflictKind{ConflictOverlap}, kinds(conflicts))

	// Back to back is fine.
	conflicts, err = d.Check(context.Background(), doctorID, testDate, 10*60+30, 30, nil)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestDetector_ExcludeIDSkipsOwnReservation(t *testing.T) {
	doctorID := uuid.New()
	mine := Appointment{
		ID:          uuid.New(),
		DoctorID:    doctorID,
		Date:        testDate,
		StartMinute: 10 * 60,
		Duration:    30,
		Status:      StatusScheduled,
	}
	d := NewDetector(&stubHours{day: standardDay()}, &stubApptRepo{active: []Appointment{mine}})

	conflicts, err := d.Check(context.Background(), doctorID, testDate, 10*60, 30, &mine.ID)
	require.NoError(t, err)
	assert.Empty(t, conflicts, "a reschedule must not conflict with its own old window")
}

func TestDetector_CapacityExceeded(t *testing.T) {
	doctorID := uuid.New()
	day := standardDay()
	day.MaxAppointments = 2

	active := []Appointment{
		{ID: uuid.New(), DoctorID: doctorID, Date: testDate, StartMinute: 9 * 60, Duration: 30, Status: StatusScheduled},
		{ID: uuid.New(), DoctorID: doctorID, Date: testDate, StartMinute: 10 * 60, Duration: 30, Status: StatusPending},
	}
	d := NewDetector(&stubHours{day: day}, &stubApptRepo{active: active})

	conflicts, err := d.Check(context.Background(), doctorID, testDate, 11*60, 30, nil)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, ConflictCapacityExceeded, conflicts[0].Kind)

	// Excluding one active appointment frees capacity again.
	conflicts, err = d.Check(context.Background(), doctorID, testDate, 11*60, 30, &active[0].ID)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestDetector_MultipleConflictsSortedBySeverityRank(t *testing.T) {
	doctorID := uuid.New()
	existing := Appointment{
		ID:          uuid.New(),
		DoctorID:    doctorID,
		Date:        testDate,
		StartMinute: 8 * 60,
		Duration:    60,
		Status:      StatusScheduled,
	}
	d := NewDetector(&stubHours{day: standardDay()}, &stubApptRepo{active: []Appointment{existing}})

	// 08:30 is out of hours and overlaps the 08:00-09:00 appointment.
	conflicts, err := d.Check(context.Background(), doctorID, testDate, 8*60+30, 30, nil)
	require.NoError(t, err)
	assert.Equal(t, []ConflictKind{ConflictWorkingHours, ConflictOverlap}, kinds(conflicts))
}

func TestDetector_NonPositiveDuration(t *testing.T) {
	d := NewDetector(&stubHours{day: standardDay()}, &stubApptRepo{})

	_, err := d.Check(context.Background(), uuid.New(), testDate, 10*60, 0, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, schedule.ErrInvalidConfig))
}

func TestDetector_PropagatesResolverErrors(t *testing.T) {
	d := NewDetector(&stubHours{err: schedule.ErrNotConfigured}, &stubApptRepo{})

	_, err := d.Check(context.Background(), uuid.New(), testDate, 10*60, 30, nil)
	assert.True(t, errors.Is(err, schedule.ErrNotConfigured))
}

func TestConflictError(t *testing.T) {
	err := &ConflictError{Conflicts: []Conflict{
		newConflict(ConflictLeave, "leave"),
		newConflict(ConflictOverlap, "overlap"),
	}}
	assert.True(t, err.Has(ConflictLeave))
	assert.False(t, err.Has(ConflictBreakViolation))
	assert.Contains(t, err.Error(), "leave_conflict")
}
