package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/clinicore/scheduler/internal/redis"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventConfirmedOverride    = "APPOINTMENT_CONFIRMED_OVERRIDE"
	EventAppointmentRejected  = "APPOINTMENT_REJECTED"
	EventVisitRecorded        = "VISIT_RECORDED"
	EventAppointmentExtended  = "APPOINTMENT_EXTENDED"
	EventRescheduleProposed   = "RESCHEDULE_PROPOSED"
	EventProposalAccepted     = "PROPOSAL_ACCEPTED"
	EventProposalRejected     = "PROPOSAL_REJECTED"
)

// Service arbitrates bookings and drives the appointment lifecycle. Every
// mutating operation runs under the per-provider lock so that conflict
// checks and their writes are serialized per provider.
type Service struct {
	repo   Repository
	locker redisclient.Locker
	slots  *SlotCalculator
	log    zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, slots *SlotCalculator, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		slots:  slots,
		log:    log,
	}
}

// Slots returns the calculator, for callers that only read availability.
func (s *Service) Slots() *SlotCalculator {
	return s.slots
}

// Book validates a booking request against the provider's working hours and
// confirmed appointments, then records it as PENDING. A pending appointment
// is a request, not a hold: several patients may hold pending requests for
// the same slot, and arbitration happens at confirmation time.
func (s *Service) Book(ctx context.Context, patientID, providerID uuid.UUID, start time.Time, reason string) (*Appointment, error) {
	if _, err := s.repo.GetPatientByID(ctx, patientID); err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}
	provider, err := s.repo.GetProviderByID(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}

	end := start.Add(provider.SlotDuration())

	var created *Appointment
	err = s.locker.WithProviderLock(ctx, providerID, func(lockCtx context.Context) error {
		if !s.slots.WithinWorkingHours(provider, start, end) {
			return ErrSlotUnavailable
		}

		confirmed, err := s.repo.ListConfirmedOverlapping(lockCtx, providerID, start, end)
		if err != nil {
			return fmt.Errorf("check confirmed appointments: %w", err)
		}
		if len(confirmed) > 0 {
			return ErrSlotUnavailable
		}

		now := time.Now().UTC()
		a := &Appointment{
			ID:             uuid.New(),
			ProviderID:     providerID,
			PatientID:      patientID,
			ScheduledStart: start,
			ScheduledEnd:   end,
			Status:         StatusPending,
			Reason:         reason,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.repo.CreateAppointment(lockCtx, a); err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		created = a

		s.logEvent(lockCtx, a.ID, EventAppointmentBooked, map[string]any{
			"provider_id": providerID.String(),
			"patient_id":  patientID.String(),
			"start":       start,
			"end":         end,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Confirm moves a pending appointment to CONFIRMED unless another confirmed
// appointment for the provider overlaps it, in which case the appointment
// stays pending and ErrConflict is returned. The caller may retry with
// ConfirmOverride.
func (s *Service) Confirm(ctx context.Context, providerID, appointmentID uuid.UUID) (*Appointment, error) {
	var confirmed *Appointment
	err := s.locker.WithProviderLock(ctx, providerID, func(lockCtx context.Context) error {
		a, err := s.ownedByProvider(lockCtx, providerID, appointmentID)
		if err != nil {
			return err
		}

		if a.Status != StatusPending {
			return ErrInvalidState
		}

		others, err := s.repo.ListByProviderAndStatus(lockCtx, providerID, StatusConfirmed)
		if err != nil {
			return fmt.Errorf("load confirmed appointments: %w", err)
		}
		for _, other := range others {
			if Overlaps(a.ScheduledStart, a.ScheduledEnd, other.ScheduledStart, other.ScheduledEnd) {
				return ErrConflict
			}
		}

		if err := a.transition(StatusConfirmed, time.Now().UTC()); err != nil {
			return err
		}
		if err := s.repo.UpdateAppointment(lockCtx, a); err != nil {
			return fmt.Errorf("confirm appointment: %w", err)
		}
		confirmed = a

		s.logEvent(lockCtx, a.ID, EventAppointmentConfirmed, map[string]any{})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return confirmed, nil
}

// ConfirmOverride confirms a pending appointment unconditionally, then offers
// every now-conflicting pending appointment a single proposal at the next
// free slot after the confirmed appointment's end.
func (s *Service) ConfirmOverride(ctx context.Context, providerID, appointmentID uuid.UUID) (*Appointment, error) {
	provider, err := s.repo.GetProviderByID(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}

	var confirmed *Appointment
	err = s.locker.WithProviderLock(ctx, providerID, func(lockCtx context.Context) error {
		a, err := s.ownedByProvider(lockCtx, providerID, appointmentID)
		if err != nil {
			return err
		}

		if err := a.transition(StatusConfirmed, time.Now().UTC()); err != nil {
			return err
		}
		if err := s.repo.UpdateAppointment(lockCtx, a); err != nil {
			return fmt.Errorf("confirm appointment: %w", err)
		}
		confirmed = a

		s.logEvent(lockCtx, a.ID, EventConfirmedOverride, map[string]any{})

		return s.proposeNextFreeForConflicts(lockCtx, provider, a)
	})
	if err != nil {
		return nil, err
	}
	return confirmed, nil
}

// Reject moves a pending appointment to REJECTED.
func (s *Service) Reject(ctx context.Context, providerID, appointmentID uuid.UUID) (*Appointment, error) {
	var rejected *Appointment
	err := s.locker.WithProviderLock(ctx, providerID, func(lockCtx context.Context) error {
		a, err := s.ownedByProvider(lockCtx, providerID, appointmentID)
		if err != nil {
			return err
		}
		if err := a.transition(StatusRejected, time.Now().UTC()); err != nil {
			return err
		}
		if err := s.repo.UpdateAppointment(lockCtx, a); err != nil {
			return fmt.Errorf("reject appointment: %w", err)
		}
		rejected = a

		s.logEvent(lockCtx, a.ID, EventAppointmentRejected, map[string]any{})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rejected, nil
}

// RecordVisit overwrites the scheduled interval with the actual visit times
// when supplied, marks the appointment VISITED, and cascades the revised end
// onto every later appointment of the provider.
func (s *Service) RecordVisit(ctx context.Context, providerID, appointmentID uuid.UUID, actualStart, actualEnd *time.Time) (*Appointment, error) {
	provider, err := s.repo.GetProviderByID(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}

	var visited *Appointment
	err = s.locker.WithProviderLock(ctx, providerID, func(lockCtx context.Context) error {
		a, err := s.ownedByProvider(lockCtx, providerID, appointmentID)
		if err != nil {
			return err
		}

		if actualStart != nil {
			a.ScheduledStart = *actualStart
		}
		if actualEnd != nil {
			a.ScheduledEnd = *actualEnd
		}
		if !a.ScheduledEnd.After(a.ScheduledStart) {
			return fmt.Errorf("actual end must follow actual start: %w", ErrInvalidState)
		}

		if err := a.transition(StatusVisited, time.Now().UTC()); err != nil {
			return err
		}
		if err := s.repo.UpdateAppointment(lockCtx, a); err != nil {
			return fmt.Errorf("record visit: %w", err)
		}
		visited = a

		s.logEvent(lockCtx, a.ID, EventVisitRecorded, map[string]any{
			"start": a.ScheduledStart,
			"end":   a.ScheduledEnd,
		})

		return s.propagateDelay(lockCtx, provider, a.ScheduledEnd)
	})
	if err != nil {
		return nil, err
	}
	return visited, nil
}

// Extend lengthens an appointment by extraMinutes without changing its
// status, then cascades the new end onto every later appointment.
func (s *Service) Extend(ctx context.Context, providerID, appointmentID uuid.UUID, extraMinutes int) (*Appointment, error) {
	provider, err := s.repo.GetProviderByID(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}

	var extended *Appointment
	err = s.locker.WithProviderLock(ctx, providerID, func(lockCtx context.Context) error {
		a, err := s.ownedByProvider(lockCtx, providerID, appointmentID)
		if err != nil {
			return err
		}

		newEnd := a.ScheduledEnd.Add(time.Duration(extraMinutes) * time.Minute)
		if !newEnd.After(a.ScheduledStart) {
			return fmt.Errorf("extension would invert the interval: %w", ErrInvalidState)
		}
		a.ScheduledEnd = newEnd
		a.UpdatedAt = time.Now().UTC()

		if err := s.repo.UpdateAppointment(lockCtx, a); err != nil {
			return fmt.Errorf("extend appointment: %w", err)
		}
		extended = a

		s.logEvent(lockCtx, a.ID, EventAppointmentExtended, map[string]any{
			"extra_minutes": extraMinutes,
			"end":           a.ScheduledEnd,
		})

		return s.propagateDelay(lockCtx, provider, a.ScheduledEnd)
	})
	if err != nil {
		return nil, err
	}
	return extended, nil
}

// AcceptProposal commits a reschedule proposal: the proposed interval becomes
// the scheduled one and the appointment returns to CONFIRMED.
func (s *Service) AcceptProposal(ctx context.Context, patientID, appointmentID uuid.UUID) (*Appointment, error) {
	a, err := s.ownedByPatient(ctx, patientID, appointmentID)
	if err != nil {
		return nil, err
	}

	var accepted *Appointment
	err = s.locker.WithProviderLock(ctx, a.ProviderID, func(lockCtx context.Context) error {
		a, err := s.ownedByPatient(lockCtx, patientID, appointmentID)
		if err != nil {
			return err
		}
		if a.Status != StatusRescheduleProposed || a.ProposedStart == nil || a.ProposedEnd == nil {
			return ErrInvalidState
		}

		a.ScheduledStart = *a.ProposedStart
		a.ScheduledEnd = *a.ProposedEnd
		a.clearProposal()
		a.Status = StatusConfirmed
		a.UpdatedAt = time.Now().UTC()

		if err := s.repo.UpdateAppointment(lockCtx, a); err != nil {
			return fmt.Errorf("accept proposal: %w", err)
		}
		accepted = a

		s.logEvent(lockCtx, a.ID, EventProposalAccepted, map[string]any{
			"start": a.ScheduledStart,
			"end":   a.ScheduledEnd,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return accepted, nil
}

// RejectProposal declines a reschedule proposal; the appointment is cancelled.
func (s *Service) RejectProposal(ctx context.Context, patientID, appointmentID uuid.UUID) (*Appointment, error) {
	a, err := s.ownedByPatient(ctx, patientID, appointmentID)
	if err != nil {
		return nil, err
	}

	var cancelled *Appointment
	err = s.locker.WithProviderLock(ctx, a.ProviderID, func(lockCtx context.Context) error {
		a, err := s.ownedByPatient(lockCtx, patientID, appointmentID)
		if err != nil {
			return err
		}
		if a.Status != StatusRescheduleProposed {
			return ErrInvalidState
		}

		a.clearProposal()
		a.Status = StatusCancelled
		a.UpdatedAt = time.Now().UTC()

		if err := s.repo.UpdateAppointment(lockCtx, a); err != nil {
			return fmt.Errorf("reject proposal: %w", err)
		}
		cancelled = a

		s.logEvent(lockCtx, a.ID, EventProposalRejected, map[string]any{})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// GetAppointment returns an appointment by id.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

// ListPatientAppointments returns a patient's appointments, optionally
// filtered to a status set.
func (s *Service) ListPatientAppointments(ctx context.Context, patientID uuid.UUID, statuses []Status) ([]Appointment, error) {
	if _, err := s.repo.GetPatientByID(ctx, patientID); err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}
	return s.repo.ListByPatient(ctx, patientID, statuses)
}

// ListProviderDay returns every appointment touching the provider's calendar
// day, for the provider dashboard.
func (s *Service) ListProviderDay(ctx context.Context, providerID uuid.UUID, day time.Time) ([]Appointment, error) {
	if _, err := s.repo.GetProviderByID(ctx, providerID); err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}
	y, m, d := day.In(s.slots.loc).Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, s.slots.loc).UTC()
	return s.repo.ListByProviderBetween(ctx, providerID, from, from.Add(24*time.Hour))
}

func (s *Service) ownedByProvider(ctx context.Context, providerID, appointmentID uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if a.ProviderID != providerID {
		return nil, ErrForbidden
	}
	return a, nil
}

func (s *Service) ownedByPatient(ctx context.Context, patientID, appointmentID uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if a.PatientID != patientID {
		return nil, ErrForbidden
	}
	return a, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn().Err(err).Str("event_type", eventType).Msg("marshal event payload")
		data = nil
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("insert event log")
	}
}
