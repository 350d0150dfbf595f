package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	redisclient "github.com/clinicore/scheduler/internal/redis"
	"github.com/clinicore/scheduler/internal/schedule"
)

// Acting identities arrive pre-resolved from the identity collaborator; the
// gateway in front of this service maps the caller's account to one of these
// headers.
const (
	headerProviderID = "X-Provider-ID"
	headerPatientID  = "X-Patient-ID"
)

func listSlotsHandler(svc *schedule.Service, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
			return
		}

		dateStr := r.URL.Query().Get("date")
		day, err := time.ParseInLocation("2006-01-02", dateStr, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		slots, err := svc.Slots().AvailableSlots(r.Context(), providerID, day)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		if slots == nil {
			slots = []time.Time{}
		}

		writeJSON(w, http.StatusOK, SlotsResponse{
			ProviderID: providerID,
			Date:       dateStr,
			Slots:      slots,
		})
	}
}

func bookAppointmentHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := actorID(w, r, headerPatientID)
		if !ok {
			return
		}

		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}
		start, err := time.Parse(time.RFC3339, req.Start)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start", "start must be RFC 3339")
			return
		}

		appt, err := svc.Book(r.Context(), patientID, providerID, start.UTC(), req.Reason)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}
		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

// providerAction wraps the provider-scoped lifecycle operations that need no
// request body.
func providerAction(fn func(r *http.Request, providerID, appointmentID uuid.UUID) (*schedule.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := actorID(w, r, headerProviderID)
		if !ok {
			return
		}
		appointmentID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}
		appt, err := fn(r, providerID, appointmentID)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func recordVisitHandler(svc *schedule.Service) http.HandlerFunc {
	return providerAction(func(r *http.Request, providerID, appointmentID uuid.UUID) (*schedule.Appointment, error) {
		var req RecordVisitRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				return nil, errBadRequest("invalid_request_body", "could not parse JSON")
			}
		}

		actualStart, err := parseOptionalInstant(req.ActualStart)
		if err != nil {
			return nil, errBadRequest("invalid_actual_start", "actual_start must be RFC 3339")
		}
		actualEnd, err := parseOptionalInstant(req.ActualEnd)
		if err != nil {
			return nil, errBadRequest("invalid_actual_end", "actual_end must be RFC 3339")
		}

		return svc.RecordVisit(r.Context(), providerID, appointmentID, actualStart, actualEnd)
	})
}

func extendAppointmentHandler(svc *schedule.Service) http.HandlerFunc {
	return providerAction(func(r *http.Request, providerID, appointmentID uuid.UUID) (*schedule.Appointment, error) {
		var req ExtendAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, errBadRequest("invalid_request_body", "could not parse JSON")
		}
		return svc.Extend(r.Context(), providerID, appointmentID, req.ExtraMinutes)
	})
}

// patientAction wraps the patient-scoped proposal operations.
func patientAction(fn func(r *http.Request, patientID, appointmentID uuid.UUID) (*schedule.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := actorID(w, r, headerPatientID)
		if !ok {
			return
		}
		appointmentID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}
		appt, err := fn(r, patientID, appointmentID)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listPatientAppointmentsHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "id must be a valid UUID")
			return
		}

		var statuses []schedule.Status
		if raw := r.URL.Query().Get("status"); raw != "" {
			for _, s := range strings.Split(raw, ",") {
				statuses = append(statuses, schedule.Status(strings.TrimSpace(s)))
			}
		}

		appts, err := svc.ListPatientAppointments(r.Context(), patientID, statuses)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponses(appts))
	}
}

func listProviderDayHandler(svc *schedule.Service, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
			return
		}
		day, err := time.ParseInLocation("2006-01-02", r.URL.Query().Get("date"), loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		appts, err := svc.ListProviderDay(r.Context(), providerID, day)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponses(appts))
	}
}

func actorID(w http.ResponseWriter, r *http.Request, header string) (uuid.UUID, bool) {
	raw := r.Header.Get(header)
	if raw == "" {
		writeError(w, http.StatusUnauthorized, "missing_actor", header+" header is required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_actor", header+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseOptionalInstant(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil, err
	}
	u := t.UTC()
	return &u, nil
}

// badRequestError carries a handler-level validation failure through the
// shared action wrappers.
type badRequestError struct {
	code    string
	details string
}

func (e *badRequestError) Error() string { return e.code }

func errBadRequest(code, details string) error {
	return &badRequestError{code: code, details: details}
}

func handleServiceError(w http.ResponseWriter, err error) {
	var badReq *badRequestError
	switch {
	case errors.As(err, &badReq):
		writeError(w, http.StatusBadRequest, badReq.code, badReq.details)
	case errors.Is(err, schedule.ErrProviderNotFound):
		writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
	case errors.Is(err, schedule.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, schedule.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, schedule.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, schedule.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, schedule.ErrConflict):
		writeError(w, http.StatusConflict, "schedule_conflict", err.Error())
	case errors.Is(err, schedule.ErrInvalidState):
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, schedule.ErrStaleAppointment):
		writeError(w, http.StatusConflict, "stale_write", "appointment changed concurrently, retry")
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "provider_busy", "provider schedule is being modified, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
