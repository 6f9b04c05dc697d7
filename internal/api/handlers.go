package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/careslot/scheduling/internal/appointment"
	"github.com/careslot/scheduling/internal/booking"
	"github.com/careslot/scheduling/internal/schedule"
)

func getSlotsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor id must be a valid UUID")
			return
		}

		date, err := parseDate(r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		duration := 0
		if d := r.URL.Query().Get("duration"); d != "" {
			if _, err := parseInt(d, &duration); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_duration", "duration must be an integer")
				return
			}
		}

		slots, err := svc.GetAvailableSlots(r.Context(), doctorID, date, duration)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"doctor_id": doctorID,
			"date":      date.Format("2006-01-02"),
			"slots":     slots,
		})
	}
}

func bookAppointmentHandler(svc *booking.Service, chain *booking.Chain, advisoryEnabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		bookingReq, err := toBookingRequest(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		// The advisory pass runs only when both the deployment and the
		// caller ask for it; the chain falls back to the deterministic
		// path on any advisory failure.
		var appt *appointment.Appointment
		if advisoryEnabled && req.UseAdvisory {
			appt, err = chain.Book(r.Context(), bookingReq)
		} else {
			appt, err = svc.Book(r.Context(), bookingReq)
		}
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func checkConflictsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CheckConflictsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}
		date, err := parseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		startMin, err := schedule.ParseClock(req.Time)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time", "time must be HH:MM")
			return
		}

		var excludeID *uuid.UUID
		if req.ExcludeAppointmentID != "" {
			id, err := uuid.Parse(req.ExcludeAppointmentID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_exclude_id", "exclude_appointment_id must be a valid UUID")
				return
			}
			excludeID = &id
		}

		conflicts, err := svc.CheckConflicts(r.Context(), doctorID, date, startMin, req.Duration, excludeID)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, ConflictsResponse{Conflicts: conflicts})
	}
}

func getAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listDoctorAppointmentsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor id must be a valid UUID")
			return
		}

		date, err := parseDate(r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		appts, err := svc.ListDoctorAppointments(r.Context(), doctorID, date)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listPatientAppointmentsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, err := uuid.Parse(chi.URLParam(r, "patientID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient id must be a valid UUID")
			return
		}

		limit, offset := 0, 0
		if v := r.URL.Query().Get("limit"); v != "" {
			_, _ = parseInt(v, &limit)
		}
		if v := r.URL.Query().Get("offset"); v != "" {
			_, _ = parseInt(v, &offset)
		}

		appts, err := svc.ListPatientAppointments(r.Context(), patientID, limit, offset)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func rescheduleHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		date, err := parseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		startMin, err := schedule.ParseClock(req.Time)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time", "time must be HH:MM")
			return
		}

		appt, err := svc.Reschedule(r.Context(), id, date, startMin)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req CancelRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		appt, err := svc.Cancel(r.Context(), id, req.Reason)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func transitionHandler(fn func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := fn(r, id)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func saveTemplateHandler(registry *schedule.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor id must be a valid UUID")
			return
		}

		var req SaveTemplateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.DayOfWeek < 0 || req.DayOfWeek > 6 {
			writeError(w, http.StatusBadRequest, "invalid_day_of_week", "day_of_week must be 0 (Sunday) through 6 (Saturday)")
			return
		}

		recurrence := schedule.Recurrence(req.Recurrence)
		if req.Recurrence == "" {
			recurrence = schedule.RecurrenceWeekly
		}

		tpl := &schedule.WorkingDayTemplate{
			DoctorID:            doctorID,
			DayOfWeek:           time.Weekday(req.DayOfWeek),
			IsWorking:           req.IsWorking,
			StartTime:           req.StartTime,
			EndTime:             req.EndTime,
			BreakStart:          req.BreakStart,
			BreakEnd:            req.BreakEnd,
			AppointmentDuration: req.AppointmentDuration,
			BufferTime:          req.BufferTime,
			MaxAppointments:     req.MaxAppointments,
			Timezone:            req.Timezone,
			Recurrence:          recurrence,
		}

		saved, err := registry.SaveTemplate(r.Context(), tpl)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, saved)
	}
}

func requestOverrideHandler(registry *schedule.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor id must be a valid UUID")
			return
		}

		var req RequestOverrideRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		startDate, err := parseDate(req.StartDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_date", "start_date must be YYYY-MM-DD")
			return
		}
		endDate, err := parseDate(req.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end_date", "end_date must be YYYY-MM-DD")
			return
		}

		ov := &schedule.ScheduleOverride{
			DoctorID:        doctorID,
			StartDate:       startDate,
			EndDate:         endDate,
			Kind:            schedule.OverrideKind(req.Kind),
			Reason:          req.Reason,
			StartTime:       req.StartTime,
			EndTime:         req.EndTime,
			MaxAppointments: req.MaxAppointments,
		}

		created, err := registry.RequestOverride(r.Context(), ov)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, created)
	}
}

func overrideDecisionHandler(fn func(r *http.Request, id uuid.UUID) (*schedule.ScheduleOverride, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_override_id", "id must be a valid UUID")
			return
		}

		ov, err := fn(r, id)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, ov)
	}
}

func handleBookingError(w http.ResponseWriter, err error) {
	var conflictErr *appointment.ConflictError
	var illegalErr *appointment.IllegalTransitionError

	switch {
	case errors.As(err, &conflictErr):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:     "booking_conflict",
			Details:   conflictErr.Error(),
			Conflicts: conflictErr.Conflicts,
		})
	case errors.As(err, &illegalErr):
		writeError(w, http.StatusConflict, "illegal_transition", illegalErr.Error())
	case errors.Is(err, booking.ErrDoctorDayBusy):
		writeError(w, http.StatusConflict, "doctor_day_busy", "another booking is in progress for this doctor and day, please retry shortly")
	case errors.Is(err, booking.ErrNotReschedulable):
		writeError(w, http.StatusConflict, "not_reschedulable", err.Error())
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, appointment.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, schedule.ErrNotConfigured):
		writeError(w, http.StatusUnprocessableEntity, "doctor_not_configured", err.Error())
	case errors.Is(err, schedule.ErrInvalidConfig):
		writeError(w, http.StatusUnprocessableEntity, "invalid_config", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleScheduleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrNotConfigured):
		writeError(w, http.StatusUnprocessableEntity, "doctor_not_configured", err.Error())
	case errors.Is(err, schedule.ErrInvalidConfig):
		writeError(w, http.StatusUnprocessableEntity, "invalid_config", err.Error())
	case errors.Is(err, schedule.ErrOverrideNotFound):
		writeError(w, http.StatusNotFound, "override_not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func toBookingRequest(req BookAppointmentRequest) (booking.BookingRequest, error) {
	var out booking.BookingRequest

	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		return out, errors.New("doctor_id must be a valid UUID")
	}
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		return out, errors.New("patient_id must be a valid UUID")
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return out, errors.New("date must be YYYY-MM-DD")
	}
	startMin, err := schedule.ParseClock(req.Time)
	if err != nil {
		return out, errors.New("time must be HH:MM")
	}

	apptType := appointment.Type(req.Type)
	if req.Type == "" {
		apptType = appointment.TypeConsultation
	}

	return booking.BookingRequest{
		DoctorID:       doctorID,
		PatientID:      patientID,
		Date:           date,
		StartMinute:    startMin,
		Type:           apptType,
		Reason:         req.Reason,
		DirectSchedule: req.DirectSchedule,
	}, nil
}

func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

func parseInt(s string, out *int) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	*out = n
	return n, nil
}
