package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/scheduler/internal/schedule"
)

type BookAppointmentRequest struct {
	ProviderID string `json:"provider_id"`
	Start      string `json:"start"` // RFC 3339
	Reason     string `json:"reason,omitempty"`
}

type RecordVisitRequest struct {
	ActualStart *string `json:"actual_start,omitempty"` // RFC 3339
	ActualEnd   *string `json:"actual_end,omitempty"`   // RFC 3339
}

type ExtendAppointmentRequest struct {
	ExtraMinutes int `json:"extra_minutes"`
}

type AppointmentResponse struct {
	ID              uuid.UUID  `json:"id"`
	ProviderID      uuid.UUID  `json:"provider_id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	ScheduledStart  time.Time  `json:"scheduled_start"`
	ScheduledEnd    time.Time  `json:"scheduled_end"`
	Status          string     `json:"status"`
	Reason          string     `json:"reason,omitempty"`
	RescheduledFrom *time.Time `json:"rescheduled_from,omitempty"`
	ProposedStart   *time.Time `json:"proposed_start,omitempty"`
	ProposedEnd     *time.Time `json:"proposed_end,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toAppointmentResponse(a *schedule.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		ProviderID:      a.ProviderID,
		PatientID:       a.PatientID,
		ScheduledStart:  a.ScheduledStart,
		ScheduledEnd:    a.ScheduledEnd,
		Status:          string(a.Status),
		Reason:          a.Reason,
		RescheduledFrom: a.RescheduledFrom,
		ProposedStart:   a.ProposedStart,
		ProposedEnd:     a.ProposedEnd,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func toAppointmentResponses(as []schedule.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(as))
	for i := range as {
		out = append(out, toAppointmentResponse(&as[i]))
	}
	return out
}

type SlotsResponse struct {
	ProviderID uuid.UUID   `json:"provider_id"`
	Date       string      `json:"date"`
	Slots      []time.Time `json:"slots"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
