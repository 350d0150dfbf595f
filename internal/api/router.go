package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinicore/scheduler/internal/schedule"
)

type RouterConfig struct {
	Service     *schedule.Service
	ReferenceTZ *time.Location
	PgPool      *pgxpool.Pool
	Redis       *redis.Client
	Logger      zerolog.Logger
	Env         string
	Version     string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	loc := cfg.ReferenceTZ
	if loc == nil {
		loc = time.UTC
	}
	svc := cfg.Service

	r.Get("/providers/{id}/slots", listSlotsHandler(svc, loc))
	r.Get("/providers/{id}/appointments", listProviderDayHandler(svc, loc))

	r.Post("/appointments", bookAppointmentHandler(svc))
	r.Get("/appointments/{id}", getAppointmentHandler(svc))

	r.Post("/appointments/{id}/confirm", providerAction(func(req *http.Request, providerID, appointmentID uuid.UUID) (*schedule.Appointment, error) {
		return svc.Confirm(req.Context(), providerID, appointmentID)
	}))
	r.Post("/appointments/{id}/confirm-override", providerAction(func(req *http.Request, providerID, appointmentID uuid.UUID) (*schedule.Appointment, error) {
		return svc.ConfirmOverride(req.Context(), providerID, appointmentID)
	}))
	r.Post("/appointments/{id}/reject", providerAction(func(req *http.Request, providerID, appointmentID uuid.UUID) (*schedule.Appointment, error) {
		return svc.Reject(req.Context(), providerID, appointmentID)
	}))
	r.Post("/appointments/{id}/visit", recordVisitHandler(svc))
	r.Post("/appointments/{id}/extend", extendAppointmentHandler(svc))

	r.Post("/appointments/{id}/proposal/accept", patientAction(func(req *http.Request, patientID, appointmentID uuid.UUID) (*schedule.Appointment, error) {
		return svc.AcceptProposal(req.Context(), patientID, appointmentID)
	}))
	r.Post("/appointments/{id}/proposal/reject", patientAction(func(req *http.Request, patientID, appointmentID uuid.UUID) (*schedule.Appointment, error) {
		return svc.RejectProposal(req.Context(), patientID, appointmentID)
	}))

	r.Get("/patients/{id}/appointments", listPatientAppointmentsHandler(svc))

	return r
}
