package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrProviderNotFound    = errors.New("provider not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrStaleAppointment is returned by version-checked writes when the row
	// changed underneath the caller. Mutating operations run under the
	// per-provider lock, so hitting this indicates an out-of-band write.
	ErrStaleAppointment = errors.New("appointment was modified concurrently")

	ErrForbidden       = errors.New("appointment is owned by a different party")
	ErrSlotUnavailable = errors.New("slot not available")
	ErrConflict        = errors.New("conflicting confirmed appointment exists")
	ErrInvalidState    = errors.New("operation not valid in current appointment state")
)

// Repository contains all storage interactions needed by the scheduling
// service. Appointment writes are optimistic: UpdateAppointment succeeds only
// when the stored version matches the one on the passed record.
type Repository interface {
	GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	CreateAppointment(ctx context.Context, a *Appointment) error
	UpdateAppointment(ctx context.Context, a *Appointment) error

	// ListConfirmedOverlapping returns the provider's confirmed appointments
	// whose [start, end) intersects [from, to), ascending by start.
	ListConfirmedOverlapping(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error)

	ListByProviderAndStatus(ctx context.Context, providerID uuid.UUID, status Status) ([]Appointment, error)

	// ListStartingAfter returns all of the provider's appointments, whatever
	// their status, whose scheduled start is strictly after the given
	// instant, ascending by start. Feeds the reschedule propagator.
	ListStartingAfter(ctx context.Context, providerID uuid.UUID, after time.Time) ([]Appointment, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID, statuses []Status) ([]Appointment, error)
	ListByProviderBetween(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
