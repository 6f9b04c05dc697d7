package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotConfigured    = errors.New("doctor has no working-hours template")
	ErrInvalidConfig    = errors.New("invalid working-hours configuration")
	ErrOverrideNotFound = errors.New("schedule override not found")
)

// Repository contains all DB interactions needed by the registry.
type Repository interface {
	// ListTemplates returns every active template row for the doctor, one
	// per weekday at most. An empty result means the doctor is not
	// configured at all.
	ListTemplates(ctx context.Context, doctorID uuid.UUID) ([]WorkingDayTemplate, error)

	// UpsertTemplate replaces the active template for its (doctor, weekday).
	UpsertTemplate(ctx context.Context, tpl *WorkingDayTemplate) (*WorkingDayTemplate, error)

	// ApprovedOverrideForDate returns the approved override covering the
	// date, or ErrOverrideNotFound.
	ApprovedOverrideForDate(ctx context.Context, doctorID uuid.UUID, date time.Time) (*ScheduleOverride, error)

	CreateOverride(ctx context.Context, ov *ScheduleOverride) (*ScheduleOverride, error)
	UpdateOverrideStatus(ctx context.Context, id uuid.UUID, from, to OverrideStatus) (*ScheduleOverride, error)
}
