package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careslot/scheduling/internal/db"
	"github.com/careslot/scheduling/internal/schedule"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	doctorIDs, err := seedDoctors(context.Background(), pool, 50)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedTemplates(context.Background(), pool, doctorIDs); err != nil {
		log.Fatalf("seed templates: %v", err)
	}
	if err := seedOverrides(context.Background(), pool, doctorIDs); err != nil {
		log.Fatalf("seed overrides: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 5000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d doctors", count)

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, spec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("doctors seeded")
	return ids, nil
}

// seedTemplates gives every doctor a Monday-Friday week with a lunch break
// and a mix of slot durations and buffers.
func seedTemplates(ctx context.Context, pool *pgxpool.Pool, doctorIDs []uuid.UUID) error {
	log.Printf("seeding weekly templates for %d doctors", len(doctorIDs))

	durations := []int{15, 20, 30, 45}
	buffers := []int{0, 5, 10}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, doctorID := range doctorIDs {
		duration := durations[gofakeit.Number(0, len(durations)-1)]
		buffer := buffers[gofakeit.Number(0, len(buffers)-1)]
		breakStart, breakEnd := "12:00", "13:00"

		for dow := int(time.Monday); dow <= int(time.Friday); dow++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO working_day_templates (
					id, doctor_id, day_of_week, is_working, start_time, end_time,
					break_start, break_end, appointment_duration, buffer_time,
					max_appointments, timezone, recurrence, created_at, updated_at
				)
				VALUES ($1, $2, $3, true, '09:00', '17:00', $4, $5, $6, $7, $8, 'UTC', $9, now(), now())
			`, uuid.New(), doctorID, dow, breakStart, breakEnd, duration, buffer,
				gofakeit.Number(8, 20), schedule.RecurrenceWeekly)
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("templates seeded")
	return nil
}

// seedOverrides gives roughly one doctor in five an upcoming override: a
// leave block, a shortened day, or a capacity change. Half arrive approved,
// half stay pending for the approval endpoints to exercise.
func seedOverrides(ctx context.Context, pool *pgxpool.Pool, doctorIDs []uuid.UUID) error {
	log.Println("seeding schedule overrides")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	seeded := 0
	for _, doctorID := range doctorIDs {
		if gofakeit.Number(0, 4) != 0 {
			continue
		}

		start := time.Now().UTC().AddDate(0, 0, gofakeit.Number(3, 30))
		end := start.AddDate(0, 0, gofakeit.Number(0, 4))

		kind := schedule.OverrideLeave
		var startTime, endTime *string
		var maxAppts *int
		switch gofakeit.Number(0, 2) {
		case 1:
			kind = schedule.OverrideTemporaryUnavailable
			st, et := "09:00", "13:00"
			startTime, endTime = &st, &et
			end = start
		case 2:
			kind = schedule.OverrideCapacityUpdate
			n := gofakeit.Number(2, 6)
			maxAppts = &n
			end = start
		}

		status := schedule.OverridePending
		if gofakeit.Bool() {
			status = schedule.OverrideApproved
		}
		reason := gofakeit.Sentence(6)

		_, err := tx.Exec(ctx, `
			INSERT INTO schedule_overrides (
				id, doctor_id, start_date, end_date, kind, status, reason,
				start_time, end_time, max_appointments, created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		`, uuid.New(), doctorID, start.Format("2006-01-02"), end.Format("2006-01-02"),
			kind, status, reason, startTime, endTime, maxAppts)
		if err != nil {
			return err
		}
		seeded++
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Printf("overrides seeded: %d", seeded)
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, name, email)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}
