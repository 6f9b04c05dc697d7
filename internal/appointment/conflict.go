package appointment

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/careslot/scheduling/internal/schedule"
)

type ConflictKind string

const (
	ConflictOverlap          ConflictKind = "overlap"
	ConflictBreakViolation   ConflictKind = "break_violation"
	ConflictWorkingHours     ConflictKind = "working_hours_violation"
	ConflictLeave            ConflictKind = "leave_conflict"
	ConflictCapacityExceeded ConflictKind = "capacity_exceeded"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
)

// rank orders conflicts for reporting: leave > working hours > capacity >
// overlap > break. Every kind rejects a booking; the ordering exists for
// operator-facing diagnostics when editing templates.
func (k ConflictKind) rank() int {
	switch k {
	case ConflictLeave:
		return 0
	case ConflictWorkingHours:
		return 1
	case ConflictCapacityExceeded:
		return 2
	case ConflictOverlap:
		return 3
	case ConflictBreakViolation:
		return 4
	}
	return 5
}

func (k ConflictKind) severity() Severity {
	switch k {
	case ConflictLeave:
		return SeverityCritical
	case ConflictBreakViolation:
		return SeverityMedium
	default:
		return SeverityHigh
	}
}

// Conflict is one reason a proposed booking cannot occupy its window.
type Conflict struct {
	Kind          ConflictKind `json:"kind"`
	Severity      Severity     `json:"severity"`
	Message       string       `json:"message"`
	AppointmentID *uuid.UUID   `json:"appointment_id,omitempty"`
}

func newConflict(kind ConflictKind, msg string) Conflict {
	return Conflict{Kind: kind, Severity: kind.severity(), Message: msg}
}

// ConflictError carries every conflict found for a proposed booking. It is
// returned as a value from the facade so API layers can map each kind to
// user feedback.
type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	kinds := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		kinds = append(kinds, string(c.Kind))
	}
	return "booking conflicts: " + strings.Join(kinds, ", ")
}

// Has reports whether the error contains a conflict of the given kind.
func (e *ConflictError) Has(kind ConflictKind) bool {
	for _, c := range e.Conflicts {
		if c.Kind == kind {
			return true
		}
	}
	return false
}

// HoursResolver is the slice of the working-hours registry the detector
// needs: the effective day, plus the approved override marking the doctor
// fully unavailable, if one exists. The latter distinguishes leave from a
// day that is merely unconfigured.
type HoursResolver interface {
	EffectiveHours(ctx context.Context, doctorID uuid.UUID, date time.Time) (schedule.EffectiveDay, error)
	ApprovedLeaveFor(ctx context.Context, doctorID uuid.UUID, date time.Time) (*schedule.ScheduleOverride, error)
}

// Detector classifies a proposed booking against the doctor's current
// commitments. All checks run independently; a booking can carry several
// conflicts at once.
type Detector struct {
	hours HoursResolver
	repo  Repository
}

func NewDetector(hours HoursResolver, repo Repository) *Detector {
	return &Detector{hours: hours, repo: repo}
}

// Check runs the five conflict checks for the proposed window. excludeID
// removes one appointment from overlap and capacity counting, used when
// re-validating during a reschedule so the appointment never conflicts with
// its own old reservation.
func (d *Detector) Check(ctx context.Context, doctorID uuid.UUID, date time.Time, startMin, duration int, excludeID *uuid.UUID) ([]Conflict, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("%w: booking duration must be positive", schedule.ErrInvalidConfig)
	}
	endMin := startMin + duration

	day, err := d.hours.EffectiveHours(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}

	var conflicts []Conflict

	unavailable := !day.Working
	if unavailable {
		// Source alone cannot distinguish leave from, say, a capacity
		// override on a day with no template; ask for the unavailability
		// override explicitly.
		leave, err := d.hours.ApprovedLeaveFor(ctx, doctorID, date)
		if err != nil {
			return nil, fmt.Errorf("load leave override: %w", err)
		}
		if leave != nil {
			conflicts = append(conflicts, newConflict(ConflictLeave,
				fmt.Sprintf("doctor is on approved leave/override on %s", day.Date.Format("2006-01-02"))))
		}
	}

	if unavailable {
		conflicts = append(conflicts, newConflict(ConflictWorkingHours,
			fmt.Sprintf("doctor is not working on %s", day.Date.Format("2006-01-02"))))
	} else if startMin < day.StartMin || endMin > day.EndMin {
		conflicts = append(conflicts, newConflict(ConflictWorkingHours,
			fmt.Sprintf("requested %s-%s is outside working hours %s-%s",
				schedule.FormatClock(startMin), schedule.FormatClock(endMin),
				schedule.FormatClock(day.StartMin), schedule.FormatClock(day.EndMin))))
	}

	if day.Working && day.HasBreak() && schedule.Overlaps(startMin, endMin, day.BreakStartMin, day.BreakEndMin) {
		conflicts = append(conflicts, newConflict(ConflictBreakViolation,
			fmt.Sprintf("requested %s-%s falls inside the break %s-%s",
				schedule.FormatClock(startMin), schedule.FormatClock(endMin),
				schedule.FormatClock(day.BreakStartMin), schedule.FormatClock(day.BreakEndMin))))
	}

	active, err := d.repo.ListActiveByDoctorDate(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("list active appointments: %w", err)
	}

	occupied := 0
	for i := range active {
		a := &active[i]
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		occupied++
		if schedule.Overlaps(startMin, endMin, a.StartMinute, a.EndMinute()) {
			c := newConflict(ConflictOverlap,
				fmt.Sprintf("overlaps existing appointment %s-%s",
					schedule.FormatClock(a.StartMinute), schedule.FormatClock(a.EndMinute())))
			id := a.ID
			c.AppointmentID = &id
			conflicts = append(conflicts, c)
		}
	}

	if day.Working && day.MaxAppointments > 0 && occupied >= day.MaxAppointments {
		conflicts = append(conflicts, newConflict(ConflictCapacityExceeded,
			fmt.Sprintf("daily capacity of %d appointments reached", day.MaxAppointments)))
	}

	sort.SliceStable(conflicts, func(i, j int) bool {
		return conflicts[i].Kind.rank() < conflicts[j].Kind.rank()
	})

	return conflicts, nil
}
