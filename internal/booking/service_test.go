package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careslot/scheduling/internal/appointment"
	redisclient "github.com/careslot/scheduling/internal/redis"
	"github.com/careslot/scheduling/internal/schedule"
)

// memApptRepo is a thread-safe in-memory appointment.Repository enforcing the
// same non-terminal uniqueness guard as the partial unique index.
type memApptRepo struct {
	mu           sync.Mutex
	doctors      map[uuid.UUID]*appointment.Doctor
	patients     map[uuid.UUID]*appointment.Patient
	appointments map[uuid.UUID]*appointment.Appointment
	events       []appointment.EventLog

	failCreateWith error
}

func newMemApptRepo() *memApptRepo {
	return &memApptRepo{
		doctors:      make(map[uuid.UUID]*appointment.Doctor),
		patients:     make(map[uuid.UUID]*appointment.Patient),
		appointments: make(map[uuid.UUID]*appointment.Appointment),
	}
}

func (m *memApptRepo) GetDoctorByID(_ context.Context, id uuid.UUID) (*appointment.Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, appointment.ErrDoctorNotFound
	}
	return d, nil
}

func (m *memApptRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*appointment.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, appointment.ErrPatientNotFound
	}
	return p, nil
}

func (m *memApptRepo) GetByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memApptRepo) ListActiveByDoctorDate(_ context.Context, doctorID uuid.UUID, date time.Time) ([]appointment.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	date = schedule.DateOnly(date)
	var out []appointment.Appointment
	for _, a := range m.appointments {
		if a.DoctorID == doctorID && a.Date.Equal(date) && !a.Status.Terminal() {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memApptRepo) Create(_ context.Context, appt *appointment.Appointment) (*appointment.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreateWith != nil {
		return nil, m.failCreateWith
	}
	for _, a := range m.appointments {
		if a.DoctorID == appt.DoctorID && a.Date.Equal(appt.Date) &&
			a.StartMinute == appt.StartMinute && !a.Status.Terminal() {
			return nil, appointment.ErrSlotTaken
		}
	}
	cp := *appt
	cp.ID = uuid.New()
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.appointments[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memApptRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to appointment.Status, reason *string) (*appointment.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok || a.Status != from {
		return nil, appointment.ErrAppointmentNotFound
	}
	a.Status = to
	if reason != nil {
		a.Reason = reason
	}
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (m *memApptRepo) UpdateSchedule(_ context.Context, id uuid.UUID, newDate time.Time, newStartMin int) (*appointment.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok || a.Status.Terminal() {
		return nil, appointment.ErrAppointmentNotFound
	}
	newDate = schedule.DateOnly(newDate)
	for _, other := range m.appointments {
		if other.ID != id && other.DoctorID == a.DoctorID && other.Date.Equal(newDate) &&
			other.StartMinute == newStartMin && !other.Status.Terminal() {
			return nil, appointment.ErrSlotTaken
		}
	}
	a.Date = newDate
	a.StartMinute = newStartMin
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (m *memApptRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]appointment.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []appointment.Appointment
	for _, a := range m.appointments {
		if a.PatientID == patientID {
			out = append(out, *a)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memApptRepo) ListByDoctorDate(_ context.Context, doctorID uuid.UUID, date time.Time) ([]appointment.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	date = schedule.DateOnly(date)
	var out []appointment.Appointment
	for _, a := range m.appointments {
		if a.DoctorID == doctorID && a.Date.Equal(date) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memApptRepo) FindOverdueScheduled(_ context.Context, cutoff time.Time) ([]appointment.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []appointment.Appointment
	for _, a := range m.appointments {
		end := a.Date.Add(time.Duration(a.StartMinute+a.Duration) * time.Minute)
		if a.Status == appointment.StatusScheduled && end.Before(cutoff) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memApptRepo) InsertEvent(_ context.Context, ev appointment.EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memApptRepo) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.EventType)
	}
	return out
}

// memScheduleRepo backs the registry with template rows only.
type memScheduleRepo struct {
	mu        sync.Mutex
	templates map[uuid.UUID][]schedule.WorkingDayTemplate
	overrides map[uuid.UUID]*schedule.ScheduleOverride
}

func newMemScheduleRepo() *memScheduleRepo {
	return &memScheduleRepo{
		templates: make(map[uuid.UUID][]schedule.WorkingDayTemplate),
		overrides: make(map[uuid.UUID]*schedule.ScheduleOverride),
	}
}

func (m *memScheduleRepo) ListTemplates(_ context.Context, doctorID uuid.UUID) ([]schedule.WorkingDayTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.templates[doctorID], nil
}

func (m *memScheduleRepo) UpsertTemplate(_ context.Context, tpl *schedule.WorkingDayTemplate) (*schedule.WorkingDayTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tpl.ID == uuid.Nil {
		tpl.ID = uuid.New()
	}
	m.templates[tpl.DoctorID] = append(m.templates[tpl.DoctorID], *tpl)
	return tpl, nil
}

func (m *memScheduleRepo) ApprovedOverrideForDate(_ context.Context, doctorID uuid.UUID, date time.Time) (*schedule.ScheduleOverride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ov := range m.overrides {
		if ov.DoctorID == doctorID && ov.Status == schedule.OverrideApproved && ov.Covers(date) {
			cp := *ov
			return &cp, nil
		}
	}
	return nil, schedule.ErrOverrideNotFound
}

func (m *memScheduleRepo) CreateOverride(_ context.Context, ov *schedule.ScheduleOverride) (*schedule.ScheduleOverride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ov.ID == uuid.Nil {
		ov.ID = uuid.New()
	}
	cp := *ov
	m.overrides[ov.ID] = &cp
	return ov, nil
}

func (m *memScheduleRepo) UpdateOverrideStatus(_ context.Context, id uuid.UUID, from, to schedule.OverrideStatus) (*schedule.ScheduleOverride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ov, ok := m.overrides[id]
	if !ok || ov.Status != from {
		return nil, schedule.ErrOverrideNotFound
	}
	ov.Status = to
	cp := *ov
	return &cp, nil
}

// memLocker serializes callbacks per doctor-day with plain mutexes, so
// concurrent bookings block instead of failing fast.
type memLocker struct {
	locks sync.Map
}

func (l *memLocker) WithDayLock(_ context.Context, doctorID uuid.UUID, date time.Time, fn func(ctx context.Context) error) error {
	key := doctorID.String() + ":" + date.Format("2006-01-02")
	muAny, _ := l.locks.LoadOrStore(key, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()
	return fn(context.Background())
}

// busyLocker simulates a held lock.
type busyLocker struct{}

func (busyLocker) WithDayLock(context.Context, uuid.UUID, time.Time, func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

// memReminders tracks scheduled reminders by appointment id.
type memReminders struct {
	mu        sync.Mutex
	scheduled map[uuid.UUID]bool
}

func newMemReminders() *memReminders {
	return &memReminders{scheduled: make(map[uuid.UUID]bool)}
}

func (r *memReminders) ScheduleReminder(_ context.Context, appt *appointment.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduled[appt.ID] = true
	return nil
}

func (r *memReminders) CancelReminder(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.scheduled, id)
	return nil
}

func (r *memReminders) has(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scheduled[id]
}

type fixture struct {
	svc       *Service
	repo      *memApptRepo
	schedRepo *memScheduleRepo
	registry  *schedule.Registry
	reminders *memReminders
	doctorID  uuid.UUID
	patientID uuid.UUID
}

func strPtr(s string) *string { return &s }

// 2026-09-07 is a Monday.
var monday = time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, locker redisclient.Locker) *fixture {
	t.Helper()

	repo := newMemApptRepo()
	schedRepo := newMemScheduleRepo()
	registry := schedule.NewRegistry(schedRepo)
	detector := appointment.NewDetector(registry, repo)
	reminders := newMemReminders()
	log := zerolog.Nop()

	if locker == nil {
		locker = &memLocker{}
	}

	svc := NewService(registry, detector, repo, locker,
		NewRepoAuditLogger(repo, log), NewLogNotifier(log), reminders, log)

	doctorID := uuid.New()
	patientID := uuid.New()
	repo.doctors[doctorID] = &appointment.Doctor{ID: doctorID, Name: "Dr. Adams"}
	repo.patients[patientID] = &appointment.Patient{ID: patientID, Name: "Pat Lee"}

	// Mon and Tue, 09:00-17:00, break 12:00-13:00, 30 minute slots.
	for _, dow := range []time.Weekday{time.Monday, time.Tuesday} {
		_, err := registry.SaveTemplate(context.Background(), &schedule.WorkingDayTemplate{
			DoctorID:            doctorID,
			DayOfWeek:           dow,
			IsWorking:           true,
			StartTime:           "09:00",
			EndTime:             "17:00",
			BreakStart:          strPtr("12:00"),
			BreakEnd:            strPtr("13:00"),
			AppointmentDuration: 30,
			Recurrence:          schedule.RecurrenceWeekly,
			Timezone:            "UTC",
		})
		require.NoError(t, err)
	}

	return &fixture{
		svc:       svc,
		repo:      repo,
		schedRepo: schedRepo,
		registry:  registry,
		reminders: reminders,
		doctorID:  doctorID,
		patientID: patientID,
	}
}

func (f *fixture) bookingAt(startMin int) BookingRequest {
	return BookingRequest{
		DoctorID:    f.doctorID,
		PatientID:   f.patientID,
		Date:        monday,
		StartMinute: startMin,
		Type:        appointment.TypeConsultation,
	}
}

func TestBook_CreatesPendingAppointment(t *testing.T) {
	f := newFixture(t, nil)

	appt, err := f.svc.Book(context.Background(), f.bookingAt(10*60))
	require.NoError(t, err)

	assert.Equal(t, appointment.StatusPending, appt.Status)
	assert.Equal(t, 30, appt.Duration, "duration comes from the template")
	assert.Equal(t, 10*60, appt.StartMinute)
	assert.True(t, f.reminders.has(appt.ID))
	assert.Contains(t, f.repo.eventTypes(), EventBookingCreated)
}

func TestBook_DirectScheduleEntersScheduled(t *testing.T) {
	f := newFixture(t, nil)

	req := f.bookingAt(10 * 60)
	req.DirectSchedule = true

	appt, err := f.svc.Book(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusScheduled, appt.Status)
}

func TestBook_UnknownDoctorOrPatient(t *testing.T) {
	f := newFixture(t, nil)

	req := f.bookingAt(10 * 60)
	req.PatientID = uuid.New()
	_, err := f.svc.Book(context.Background(), req)
	assert.True(t, errors.Is(err, appointment.ErrPatientNotFound))

	req = f.bookingAt(10 * 60)
	req.DoctorID = uuid.New()
	_, err = f.svc.Book(context.Background(), req)
	assert.True(t, errors.Is(err, appointment.ErrDoctorNotFound))
}

func TestBook_DoubleBookingRejected(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Book(context.Background(), f.bookingAt(10*60))
	require.NoError(t, err)

	_, err = f.svc.Book(context.Background(), f.bookingAt(10*60))
	require.Error(t, err)

	var conflict *appointment.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.True(t, conflict.Has(appointment.ConflictOverlap))
}

func TestBook_OutsideHoursAndBreakRejected(t *testing.T) {
	f := newFixture(t, nil)

	var conflict *appointment.ConflictError

	_, err := f.svc.Book(context.Background(), f.bookingAt(8*60+30))
	require.True(t, errors.As(err, &conflict))
	assert.True(t, conflict.Has(appointment.ConflictWorkingHours))

	_, err = f.svc.Book(context.Background(), f.bookingAt(12*60+15))
	require.True(t, errors.As(err, &conflict))
	assert.True(t, conflict.Has(appointment.ConflictBreakViolation))
}

func TestBook_ApprovedLeaveRejected(t *testing.T) {
	f := newFixture(t, nil)

	ov, err := f.registry.RequestOverride(context.Background(), &schedule.ScheduleOverride{
		DoctorID:  f.doctorID,
		StartDate: monday,
		EndDate:   monday,
		Kind:      schedule.OverrideLeave,
	})
	require.NoError(t, err)
	_, err = f.registry.ApproveOverride(context.Background(), ov.ID)
	require.NoError(t, err)

	_, err = f.svc.Book(context.Background(), f.bookingAt(10*60))
	var conflict *appointment.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.True(t, conflict.Has(appointment.ConflictLeave))
}

func TestBook_CapacityOverrideOnNonWorkingDayIsNotLeave(t *testing.T) {
	f := newFixture(t, nil)

	// No Wednesday template; the approved capacity update covering it must
	// not turn the day into a leave conflict.
	wednesday := monday.AddDate(0, 0, 2)
	maxAppts := 4
	ov, err := f.registry.RequestOverride(context.Background(), &schedule.ScheduleOverride{
		DoctorID:        f.doctorID,
		StartDate:       wednesday,
		EndDate:         wednesday,
		Kind:            schedule.OverrideCapacityUpdate,
		MaxAppointments: &maxAppts,
	})
	require.NoError(t, err)
	_, err = f.registry.ApproveOverride(context.Background(), ov.ID)
	require.NoError(t, err)

	req := f.bookingAt(10 * 60)
	req.Date = wednesday
	_, err = f.svc.Book(context.Background(), req)

	var conflict *appointment.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.True(t, conflict.Has(appointment.ConflictWorkingHours))
	assert.False(t, conflict.Has(appointment.ConflictLeave))
}

func TestBook_CommitRaceMapsToOverlapConflict(t *testing.T) {
	f := newFixture(t, nil)
	f.repo.failCreateWith = appointment.ErrSlotTaken

	_, err := f.svc.Book(context.Background(), f.bookingAt(10*60))
	var conflict *appointment.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.True(t, conflict.Has(appointment.ConflictOverlap))
}

func TestBook_LockBusy(t *testing.T) {
	f := newFixture(t, busyLocker{})

	_, err := f.svc.Book(context.Background(), f.bookingAt(10*60))
	assert.True(t, errors.Is(err, ErrDoctorDayBusy))
}

func TestBook_ConcurrentSameWindowOneWinner(t *testing.T) {
	f := newFixture(t, nil)

	const workers = 8
	patients := make([]uuid.UUID, workers)
	for i := range patients {
		id := uuid.New()
		f.repo.patients[id] = &appointment.Patient{ID: id, Name: "Concurrent"}
		patients[i] = id
	}

	var wg sync.WaitGroup
	results := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := f.bookingAt(14 * 60)
			req.PatientID = patients[i]
			_, err := f.svc.Book(context.Background(), req)
			results[i] = err
		}(i)
	}
	wg.Wait()

	wins, conflicts := 0, 0
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		var conflict *appointment.ConflictError
		require.True(t, errors.As(err, &conflict), "unexpected error: %v", err)
		conflicts++
	}
	assert.Equal(t, 1, wins, "exactly one booking may win the window")
	assert.Equal(t, workers-1, conflicts)
}

func TestGetAvailableSlots_ReflectsBookings(t *testing.T) {
	f := newFixture(t, nil)

	slots, err := f.svc.GetAvailableSlots(context.Background(), f.doctorID, monday, 0)
	require.NoError(t, err)
	require.Len(t, slots, 14)

	appt, err := f.svc.Book(context.Background(), f.bookingAt(9*60))
	require.NoError(t, err)

	slots, err = f.svc.GetAvailableSlots(context.Background(), f.doctorID, monday, 0)
	require.NoError(t, err)
	require.Len(t, slots, 14)
	assert.False(t, slots[0].Available)
	assert.True(t, slots[0].Booked)
	require.NotNil(t, slots[0].AppointmentID)
	assert.Equal(t, appt.ID, *slots[0].AppointmentID)
	assert.True(t, slots[1].Available)
}

func TestGetAvailableSlots_DurationOverride(t *testing.T) {
	f := newFixture(t, nil)

	slots, err := f.svc.GetAvailableSlots(context.Background(), f.doctorID, monday, 15)
	require.NoError(t, err)
	assert.Len(t, slots, 28)

	_, err = f.svc.GetAvailableSlots(context.Background(), f.doctorID, monday, 45)
	assert.True(t, errors.Is(err, schedule.ErrInvalidConfig), "override above the template duration is rejected")

	_, err = f.svc.GetAvailableSlots(context.Background(), f.doctorID, monday, -5)
	assert.True(t, errors.Is(err, schedule.ErrInvalidConfig))
}

func TestGetAvailableSlots_UnconfiguredDoctor(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.GetAvailableSlots(context.Background(), uuid.New(), monday, 0)
	assert.True(t, errors.Is(err, schedule.ErrNotConfigured))
}

func TestReschedule_MovesWindowKeepsStatus(t *testing.T) {
	f := newFixture(t, nil)

	appt, err := f.svc.Book(context.Background(), f.bookingAt(10*60))
	require.NoError(t, err)

	tuesday := monday.AddDate(0, 0, 1)
	moved, err := f.svc.Reschedule(context.Background(), appt.ID, tuesday, 14*60)
	require.NoError(t, err)

	assert.Equal(t, appointment.StatusPending, moved.Status, "reschedule never changes status")
	assert.True(t, moved.Date.Equal(tuesday))
	assert.Equal(t, 14*60, moved.StartMinute)

	// The old window is free again, the new one is occupied.
	slots, err := f.svc.GetAvailableSlots(context.Background(), f.doctorID, monday, 0)
	require.NoError(t, err)
	for _, s := range slots {
		assert.True(t, s.Available)
	}
	conflicts, err := f.svc.CheckConflicts(context.Background(), f.doctorID, tuesday, 14*60, 30, nil)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, appointment.ConflictOverlap, conflicts[0].Kind)
}

func TestReschedule_SameDayShiftDoesNotSelfConflict(t *testing.T) {
	f := newFixture(t, nil)

	appt, err := f.svc.Book(context.Background(), f.bookingAt(10*60))
	require.NoError(t, err)

	// 10:15 overlaps the old 10:00-10:30 window; excluding itself makes it legal.
	moved, err := f.svc.Reschedule(context.Background(), appt.ID, monday, 10*60+15)
	require.NoError(t, err)
	assert.Equal(t, 10*60+15, moved.StartMinute)
}

func TestReschedule_ConflictLeavesOldWindowOccupied(t *testing.T) {
	f := newFixture(t, nil)

	first, err := f.svc.Book(context.Background(), f.bookingAt(10*60))
	require.NoError(t, err)

	other := f.bookingAt(11 * 60)
	other.PatientID = f.patientID
	_, err = f.svc.Book(context.Background(), other)
	require.NoError(t, err)

	_, err = f.svc.Reschedule(context.Background(), first.ID, monday, 11*60)
	var conflict *appointment.ConflictError
	require.True(t, errors.As(err, &conflict))

	current, err := f.svc.GetAppointment(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, 10*60, current.StartMinute, "failed reschedule must leave the original window")
	assert.True(t, current.Date.Equal(monday))
}

func TestReschedule_TerminalStatusRejected(t *testing.T) {
	f := newFixture(t, nil)

	appt, err := f.svc.Book(context.Background(), f.bookingAt(10*60))
	require.NoError(t, err)
	_, err = f.svc.Cancel(context.Background(), appt.ID, "patient request")
	require.NoError(t, err)

	_, err = f.svc.Reschedule(context.Background(), appt.ID, monday, 11*60)
	assert.True(t, errors.Is(err, ErrNotReschedulable))
}

func TestCancel_IsIdempotent(t *testing.T) {
	f := newFixture(t, nil)

	appt, err := f.svc.Book(context.Background(), f.bookingAt(10*60))
	require.NoError(t, err)
	require.True(t, f.reminders.has(appt.ID))

	first, err := f.svc.Cancel(context.Background(), appt.ID, "patient request")
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelled, first.Status)
	require.NotNil(t, first.Reason)
	assert.Equal(t, "patient request", *first.Reason)
	assert.False(t, f.reminders.has(appt.ID))

	second, err := f.svc.Cancel(context.Background(), appt.ID, "again")
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelled, second.Status)
}

func TestCancel_CompletedRejected(t *testing.T) {
	f := newFixture(t, nil)

	req := f.bookingAt(10 * 60)
	req.DirectSchedule = true
	appt, err := f.svc.Book(context.Background(), req)
	require.NoError(t, err)

	_, err = f.svc.Start(context.Background(), appt.ID)
	require.NoError(t, err)
	_, err = f.svc.Complete(context.Background(), appt.ID)
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), appt.ID, "too late")
	var illegal *appointment.IllegalTransitionError
	require.True(t, errors.As(err, &illegal))
	assert.Equal(t, appointment.StatusCompleted, illegal.From)
}

func TestLifecycle_ConfirmStartComplete(t *testing.T) {
	f := newFixture(t, nil)

	appt, err := f.svc.Book(context.Background(), f.bookingAt(10*60))
	require.NoError(t, err)

	confirmed, err := f.svc.Confirm(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusScheduled, confirmed.Status)

	started, err := f.svc.Start(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusInProgress, started.Status)

	completed, err := f.svc.Complete(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCompleted, completed.Status)

	types := f.repo.eventTypes()
	assert.Contains(t, types, EventBookingConfirmed)
	assert.Contains(t, types, EventBookingStarted)
	assert.Contains(t, types, EventBookingCompleted)
}

func TestLifecycle_IllegalSkipRejected(t *testing.T) {
	f := newFixture(t, nil)

	appt, err := f.svc.Book(context.Background(), f.bookingAt(10*60))
	require.NoError(t, err)

	// pending -> completed skips scheduled and in-progress.
	_, err = f.svc.Complete(context.Background(), appt.ID)
	var illegal *appointment.IllegalTransitionError
	require.True(t, errors.As(err, &illegal))
}

func TestMarkNoShow(t *testing.T) {
	f := newFixture(t, nil)

	req := f.bookingAt(10 * 60)
	req.DirectSchedule = true
	appt, err := f.svc.Book(context.Background(), req)
	require.NoError(t, err)

	marked, err := f.svc.MarkNoShow(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusNoShow, marked.Status)
	assert.False(t, f.reminders.has(appt.ID))
}

func TestMarkOverdueNoShows(t *testing.T) {
	f := newFixture(t, nil)

	req := f.bookingAt(10 * 60)
	req.DirectSchedule = true
	stale, err := f.svc.Book(context.Background(), req)
	require.NoError(t, err)

	pending, err := f.svc.Book(context.Background(), f.bookingAt(11*60))
	require.NoError(t, err)

	// Well past the stale appointment's window plus grace.
	now := monday.AddDate(0, 0, 2)
	marked, err := f.svc.MarkOverdueNoShows(context.Background(), now, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, marked, "only scheduled appointments become no-shows")

	got, err := f.svc.GetAppointment(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusNoShow, got.Status)

	got, err = f.svc.GetAppointment(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusPending, got.Status)
}

func TestListDoctorAppointments_IncludesTerminal(t *testing.T) {
	f := newFixture(t, nil)

	kept, err := f.svc.Book(context.Background(), f.bookingAt(9*60))
	require.NoError(t, err)
	dropped, err := f.svc.Book(context.Background(), f.bookingAt(10*60))
	require.NoError(t, err)
	_, err = f.svc.Cancel(context.Background(), dropped.ID, "patient request")
	require.NoError(t, err)

	agenda, err := f.svc.ListDoctorAppointments(context.Background(), f.doctorID, monday)
	require.NoError(t, err)
	require.Len(t, agenda, 2, "the day agenda keeps cancelled entries")

	statuses := map[uuid.UUID]appointment.Status{}
	for _, a := range agenda {
		statuses[a.ID] = a.Status
	}
	assert.Equal(t, appointment.StatusPending, statuses[kept.ID])
	assert.Equal(t, appointment.StatusCancelled, statuses[dropped.ID])
}

func TestListPatientAppointments_Paging(t *testing.T) {
	f := newFixture(t, nil)

	for i := 0; i < 3; i++ {
		_, err := f.svc.Book(context.Background(), f.bookingAt(9*60+i*60))
		require.NoError(t, err)
	}

	got, err := f.svc.ListPatientAppointments(context.Background(), f.patientID, 2, 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = f.svc.ListPatientAppointments(context.Background(), f.patientID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, got, 3, "non-positive limit falls back to the default")
}
