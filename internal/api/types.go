package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/careslot/scheduling/internal/appointment"
)

type BookAppointmentRequest struct {
	DoctorID       string  `json:"doctor_id"`
	PatientID      string  `json:"patient_id"`
	Date           string  `json:"date"` // YYYY-MM-DD
	Time           string  `json:"time"` // HH:MM
	Type           string  `json:"type"`
	Reason         *string `json:"reason,omitempty"`
	DirectSchedule bool    `json:"direct_schedule,omitempty"`
	UseAdvisory    bool    `json:"use_advisory,omitempty"`
}

type RescheduleRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type CheckConflictsRequest struct {
	DoctorID             string `json:"doctor_id"`
	Date                 string `json:"date"`
	Time                 string `json:"time"`
	Duration             int    `json:"duration"`
	ExcludeAppointmentID string `json:"exclude_appointment_id,omitempty"`
}

type ConflictsResponse struct {
	Conflicts []appointment.Conflict `json:"conflicts"`
}

type SaveTemplateRequest struct {
	DayOfWeek           int     `json:"day_of_week"` // 0=Sunday .. 6=Saturday
	IsWorking           bool    `json:"is_working"`
	StartTime           string  `json:"start_time"`
	EndTime             string  `json:"end_time"`
	BreakStart          *string `json:"break_start,omitempty"`
	BreakEnd            *string `json:"break_end,omitempty"`
	AppointmentDuration int     `json:"appointment_duration"`
	BufferTime          int     `json:"buffer_time"`
	MaxAppointments     int     `json:"max_appointments"`
	Timezone            string  `json:"timezone"`
	Recurrence          string  `json:"recurrence"`
}

type RequestOverrideRequest struct {
	StartDate       string  `json:"start_date"`
	EndDate         string  `json:"end_date"`
	Kind            string  `json:"kind"`
	Reason          *string `json:"reason,omitempty"`
	StartTime       *string `json:"start_time,omitempty"`
	EndTime         *string `json:"end_time,omitempty"`
	MaxAppointments *int    `json:"max_appointments,omitempty"`
}

type AppointmentResponse struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	PatientID uuid.UUID `json:"patient_id"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	Duration  int       `json:"duration"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Reason    *string   `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		DoctorID:  a.DoctorID,
		PatientID: a.PatientID,
		Date:      a.Date.Format("2006-01-02"),
		Time:      a.StartClock(),
		Duration:  a.Duration,
		Type:      string(a.Type),
		Status:    string(a.Status),
		Reason:    a.Reason,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

type ErrorResponse struct {
	Error     string                 `json:"error"`
	Details   string                 `json:"details,omitempty"`
	Conflicts []appointment.Conflict `json:"conflicts,omitempty"`
}
