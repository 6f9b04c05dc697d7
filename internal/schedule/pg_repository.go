package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanTemplate(row pgx.Row) (*WorkingDayTemplate, error) {
	var t WorkingDayTemplate
	var dow int

	err := row.Scan(
		&t.ID,
		&t.DoctorID,
		&dow,
		&t.IsWorking,
		&t.StartTime,
		&t.EndTime,
		&t.BreakStart,
		&t.BreakEnd,
		&t.AppointmentDuration,
		&t.BufferTime,
		&t.MaxAppointments,
		&t.Timezone,
		&t.Recurrence,
		&t.EffectiveFrom,
		&t.EffectiveUntil,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotConfigured
		}
		return nil, err
	}

	t.DayOfWeek = time.Weekday(dow)
	return &t, nil
}

func scanOverride(row pgx.Row) (*ScheduleOverride, error) {
	var o ScheduleOverride

	err := row.Scan(
		&o.ID,
		&o.DoctorID,
		&o.StartDate,
		&o.EndDate,
		&o.Kind,
		&o.Status,
		&o.Reason,
		&o.StartTime,
		&o.EndTime,
		&o.MaxAppointments,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOverrideNotFound
		}
		return nil, err
	}

	return &o, nil
}

func (r *PgRepository) ListTemplates(ctx context.Context, doctorID uuid.UUID) ([]WorkingDayTemplate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, day_of_week, is_working, start_time, end_time,
		       break_start, break_end, appointment_duration, buffer_time,
		       max_appointments, timezone, recurrence, effective_from, effective_until,
		       created_at, updated_at
		FROM working_day_templates
		WHERE doctor_id = $1
		ORDER BY day_of_week
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []WorkingDayTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// UpsertTemplate keeps one active row per (doctor, weekday): new writes
// supersede, they do not accumulate.
func (r *PgRepository) UpsertTemplate(ctx context.Context, tpl *WorkingDayTemplate) (*WorkingDayTemplate, error) {
	id := tpl.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO working_day_templates (
			id, doctor_id, day_of_week, is_working, start_time, end_time,
			break_start, break_end, appointment_duration, buffer_time,
			max_appointments, timezone, recurrence, effective_from, effective_until,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, now(), now())
		ON CONFLICT (doctor_id, day_of_week) DO UPDATE SET
			is_working = EXCLUDED.is_working,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			break_start = EXCLUDED.break_start,
			break_end = EXCLUDED.break_end,
			appointment_duration = EXCLUDED.appointment_duration,
			buffer_time = EXCLUDED.buffer_time,
			max_appointments = EXCLUDED.max_appointments,
			timezone = EXCLUDED.timezone,
			recurrence = EXCLUDED.recurrence,
			effective_from = EXCLUDED.effective_from,
			effective_until = EXCLUDED.effective_until,
			updated_at = now()
		RETURNING id, doctor_id, day_of_week, is_working, start_time, end_time,
		          break_start, break_end, appointment_duration, buffer_time,
		          max_appointments, timezone, recurrence, effective_from, effective_until,
		          created_at, updated_at
	`, id, tpl.DoctorID, int(tpl.DayOfWeek), tpl.IsWorking, tpl.StartTime, tpl.EndTime,
		tpl.BreakStart, tpl.BreakEnd, tpl.AppointmentDuration, tpl.BufferTime,
		tpl.MaxAppointments, tpl.Timezone, tpl.Recurrence, tpl.EffectiveFrom, tpl.EffectiveUntil)

	return scanTemplate(row)
}

func (r *PgRepository) ApprovedOverrideForDate(ctx context.Context, doctorID uuid.UUID, date time.Time) (*ScheduleOverride, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, doctor_id, start_date, end_date, kind, status, reason,
		       start_time, end_time, max_appointments, created_at, updated_at
		FROM schedule_overrides
		WHERE doctor_id = $1
		  AND status = 'approved'
		  AND start_date <= $2
		  AND end_date >= $2
		ORDER BY created_at DESC
		LIMIT 1
	`, doctorID, DateOnly(date))
	return scanOverride(row)
}

func (r *PgRepository) CreateOverride(ctx context.Context, ov *ScheduleOverride) (*ScheduleOverride, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO schedule_overrides (
			id, doctor_id, start_date, end_date, kind, status, reason,
			start_time, end_time, max_appointments, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING id, doctor_id, start_date, end_date, kind, status, reason,
		          start_time, end_time, max_appointments, created_at, updated_at
	`, id, ov.DoctorID, DateOnly(ov.StartDate), DateOnly(ov.EndDate), ov.Kind, ov.Status,
		ov.Reason, ov.StartTime, ov.EndTime, ov.MaxAppointments)

	return scanOverride(row)
}

func (r *PgRepository) UpdateOverrideStatus(ctx context.Context, id uuid.UUID, from, to OverrideStatus) (*ScheduleOverride, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE schedule_overrides
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING id, doctor_id, start_date, end_date, kind, status, reason,
		          start_time, end_time, max_appointments, created_at, updated_at
	`, id, to, from)

	return scanOverride(row)
}
