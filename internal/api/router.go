package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/careslot/scheduling/internal/appointment"
	"github.com/careslot/scheduling/internal/booking"
	"github.com/careslot/scheduling/internal/schedule"
)

type RouterConfig struct {
	Service         *booking.Service
	Chain           *booking.Chain
	Registry        *schedule.Registry
	PgPool          *pgxpool.Pool
	Redis           *redis.Client
	Env             string
	Version         string
	AdvisoryEnabled bool
	Logger          zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Availability
	r.Get("/doctors/{doctorID}/slots", getSlotsHandler(cfg.Service))
	r.Get("/doctors/{doctorID}/appointments", listDoctorAppointmentsHandler(cfg.Service))
	r.Post("/doctors/{doctorID}/templates", saveTemplateHandler(cfg.Registry))
	r.Post("/doctors/{doctorID}/overrides", requestOverrideHandler(cfg.Registry))
	r.Post("/overrides/{id}/approve", overrideDecisionHandler(func(r *http.Request, id uuid.UUID) (*schedule.ScheduleOverride, error) {
		return cfg.Registry.ApproveOverride(r.Context(), id)
	}))
	r.Post("/overrides/{id}/reject", overrideDecisionHandler(func(r *http.Request, id uuid.UUID) (*schedule.ScheduleOverride, error) {
		return cfg.Registry.RejectOverride(r.Context(), id)
	}))

	// Booking lifecycle
	r.Post("/appointments", bookAppointmentHandler(cfg.Service, cfg.Chain, cfg.AdvisoryEnabled))
	r.Post("/appointments/check", checkConflictsHandler(cfg.Service))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
	r.Get("/patients/{patientID}/appointments", listPatientAppointmentsHandler(cfg.Service))
	r.Post("/appointments/{id}/reschedule", rescheduleHandler(cfg.Service))
	r.Post("/appointments/{id}/cancel", cancelHandler(cfg.Service))
	r.Post("/appointments/{id}/confirm", transitionHandler(func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
		return cfg.Service.Confirm(r.Context(), id)
	}))
	r.Post("/appointments/{id}/start", transitionHandler(func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
		return cfg.Service.Start(r.Context(), id)
	}))
	r.Post("/appointments/{id}/complete", transitionHandler(func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
		return cfg.Service.Complete(r.Context(), id)
	}))
	r.Post("/appointments/{id}/no-show", transitionHandler(func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
		return cfg.Service.MarkNoShow(r.Context(), id)
	}))

	return r
}
