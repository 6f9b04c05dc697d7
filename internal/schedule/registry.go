package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Registry resolves a doctor's recurring weekly template and dated overrides
// into one EffectiveDay per concrete date. Precedence: approved override >
// template constrained by its effective window > unavailable.
type Registry struct {
	repo Repository
}

func NewRegistry(repo Repository) *Registry {
	return &Registry{repo: repo}
}

// EffectiveHours resolves the winning configuration for one date.
// A doctor with no template rows at all yields ErrNotConfigured, which is
// distinct from "configured but not working that day".
func (r *Registry) EffectiveHours(ctx context.Context, doctorID uuid.UUID, date time.Time) (EffectiveDay, error) {
	date = DateOnly(date)

	templates, err := r.repo.ListTemplates(ctx, doctorID)
	if err != nil {
		return EffectiveDay{}, fmt.Errorf("list templates: %w", err)
	}
	if len(templates) == 0 {
		return EffectiveDay{}, ErrNotConfigured
	}

	day := EffectiveDay{
		DoctorID:      doctorID,
		Date:          date,
		Source:        SourceNoConfig,
		BreakStartMin: -1,
		BreakEndMin:   -1,
	}

	var tpl *WorkingDayTemplate
	for i := range templates {
		if templates[i].DayOfWeek == date.Weekday() && templateInEffect(&templates[i], date) {
			tpl = &templates[i]
			break
		}
	}
	if tpl != nil {
		if err := applyTemplate(&day, tpl); err != nil {
			return EffectiveDay{}, err
		}
	}

	ov, err := r.repo.ApprovedOverrideForDate(ctx, doctorID, date)
	if err != nil {
		if errors.Is(err, ErrOverrideNotFound) {
			return day, nil
		}
		return EffectiveDay{}, fmt.Errorf("load override: %w", err)
	}

	if err := applyOverride(&day, ov); err != nil {
		return EffectiveDay{}, err
	}
	return day, nil
}

// ApprovedLeaveFor returns the approved override marking the doctor fully
// unavailable on date, if any. Used by conflict checks that report leave
// distinctly from plain out-of-hours violations.
func (r *Registry) ApprovedLeaveFor(ctx context.Context, doctorID uuid.UUID, date time.Time) (*ScheduleOverride, error) {
	ov, err := r.repo.ApprovedOverrideForDate(ctx, doctorID, DateOnly(date))
	if err != nil {
		if errors.Is(err, ErrOverrideNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !ov.MarksUnavailable() {
		return nil, nil
	}
	return ov, nil
}

// SaveTemplate validates and persists a weekly template row, superseding any
// previous row for the same (doctor, weekday).
func (r *Registry) SaveTemplate(ctx context.Context, tpl *WorkingDayTemplate) (*WorkingDayTemplate, error) {
	if err := ValidateTemplate(tpl); err != nil {
		return nil, err
	}
	return r.repo.UpsertTemplate(ctx, tpl)
}

// RequestOverride records a new override in pending status.
func (r *Registry) RequestOverride(ctx context.Context, ov *ScheduleOverride) (*ScheduleOverride, error) {
	if ov.DoctorID == uuid.Nil {
		return nil, fmt.Errorf("%w: doctor id is required", ErrInvalidConfig)
	}
	if DateOnly(ov.EndDate).Before(DateOnly(ov.StartDate)) {
		return nil, fmt.Errorf("%w: override end date before start date", ErrInvalidConfig)
	}
	ov.Status = OverridePending
	return r.repo.CreateOverride(ctx, ov)
}

// ApproveOverride moves a pending override to approved.
func (r *Registry) ApproveOverride(ctx context.Context, id uuid.UUID) (*ScheduleOverride, error) {
	return r.repo.UpdateOverrideStatus(ctx, id, OverridePending, OverrideApproved)
}

// RejectOverride moves a pending override to rejected.
func (r *Registry) RejectOverride(ctx context.Context, id uuid.UUID) (*ScheduleOverride, error) {
	return r.repo.UpdateOverrideStatus(ctx, id, OverridePending, OverrideRejected)
}

// ValidateTemplate enforces the template invariants: start < end, a break
// window contained in the working window, positive slot duration and
// non-negative buffer.
func ValidateTemplate(tpl *WorkingDayTemplate) error {
	if tpl.DoctorID == uuid.Nil {
		return fmt.Errorf("%w: doctor id is required", ErrInvalidConfig)
	}
	if !tpl.IsWorking {
		return nil
	}
	start, err := ParseClock(tpl.StartTime)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	end, err := ParseClock(tpl.EndTime)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if start >= end {
		return fmt.Errorf("%w: start_time %s not before end_time %s", ErrInvalidConfig, tpl.StartTime, tpl.EndTime)
	}
	if tpl.AppointmentDuration <= 0 {
		return fmt.Errorf("%w: appointment_duration must be positive", ErrInvalidConfig)
	}
	if tpl.BufferTime < 0 {
		return fmt.Errorf("%w: buffer_time must not be negative", ErrInvalidConfig)
	}
	if (tpl.BreakStart == nil) != (tpl.BreakEnd == nil) {
		return fmt.Errorf("%w: break window requires both break_start and break_end", ErrInvalidConfig)
	}
	if tpl.BreakStart != nil {
		bs, err := ParseClock(*tpl.BreakStart)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		be, err := ParseClock(*tpl.BreakEnd)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		if bs >= be || bs < start || be > end {
			return fmt.Errorf("%w: break %s-%s outside working window %s-%s",
				ErrInvalidConfig, *tpl.BreakStart, *tpl.BreakEnd, tpl.StartTime, tpl.EndTime)
		}
	}
	return nil
}

func templateInEffect(tpl *WorkingDayTemplate, date time.Time) bool {
	if tpl.EffectiveFrom != nil && date.Before(DateOnly(*tpl.EffectiveFrom)) {
		return false
	}
	if tpl.EffectiveUntil != nil && date.After(DateOnly(*tpl.EffectiveUntil)) {
		return false
	}
	return true
}

func applyTemplate(day *EffectiveDay, tpl *WorkingDayTemplate) error {
	day.Source = SourceTemplate
	day.Timezone = tpl.Timezone
	day.MaxAppointments = tpl.MaxAppointments
	if !tpl.IsWorking {
		return nil
	}

	start, err := ParseClock(tpl.StartTime)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	end, err := ParseClock(tpl.EndTime)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if tpl.AppointmentDuration <= 0 {
		return fmt.Errorf("%w: appointment_duration must be positive", ErrInvalidConfig)
	}

	day.Working = true
	day.StartMin = start
	day.EndMin = end
	day.SlotMinutes = tpl.AppointmentDuration
	day.BufferMinutes = tpl.BufferTime

	if tpl.BreakStart != nil && tpl.BreakEnd != nil {
		bs, err := ParseClock(*tpl.BreakStart)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		be, err := ParseClock(*tpl.BreakEnd)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		day.BreakStartMin = bs
		day.BreakEndMin = be
	}
	return nil
}

func applyOverride(day *EffectiveDay, ov *ScheduleOverride) error {
	switch {
	case ov.MarksUnavailable():
		day.Working = false
		day.StartMin, day.EndMin = 0, 0
		day.BreakStartMin, day.BreakEndMin = -1, -1
		if ov.Kind == OverrideLeave {
			day.Source = SourceLeave
		} else {
			day.Source = SourceOverride
		}

	case ov.Kind == OverrideCapacityUpdate:
		day.Source = SourceOverride
		if ov.MaxAppointments != nil {
			day.MaxAppointments = *ov.MaxAppointments
		}

	case ov.Kind == OverrideTemporaryUnavailable:
		// Custom hours replace the template window; break does not survive
		// a rewritten window unless still contained in it.
		start, err := ParseClock(*ov.StartTime)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		end, err := ParseClock(*ov.EndTime)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		if start >= end {
			return fmt.Errorf("%w: override window %s-%s is empty", ErrInvalidConfig, *ov.StartTime, *ov.EndTime)
		}
		day.Source = SourceOverride
		day.Working = true
		day.StartMin = start
		day.EndMin = end
		if day.SlotMinutes <= 0 {
			return fmt.Errorf("%w: override requires a template slot duration", ErrInvalidConfig)
		}
		if day.HasBreak() && (day.BreakStartMin < start || day.BreakEndMin > end) {
			day.BreakStartMin, day.BreakEndMin = -1, -1
		}
	}
	return nil
}
