package schedule

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an appointment. PENDING is the initial
// state; REJECTED, VISITED and CANCELLED accept no further transitions
// except ForcePropose (see lifecycle.go).
type Status string

const (
	StatusPending            Status = "pending"
	StatusConfirmed          Status = "confirmed"
	StatusRejected           Status = "rejected"
	StatusVisited            Status = "visited"
	StatusRescheduleProposed Status = "reschedule_proposed"
	StatusCancelled          Status = "cancelled"
)

const DefaultSlotMinutes = 30

// WeeklyWindow is a recurring availability interval for a provider.
// Start and end are minutes from local midnight in the reference timezone.
type WeeklyWindow struct {
	Day         time.Weekday
	StartMinute int
	EndMinute   int
}

// Valid reports whether the window's start strictly precedes its end.
// Malformed windows are skipped by the slot calculator, never fatal.
func (w WeeklyWindow) Valid() bool {
	return w.StartMinute < w.EndMinute
}

type Provider struct {
	ID                  uuid.UUID
	Name                string
	Specialty           *string
	SlotDurationMinutes int
	WeeklyWindows       []WeeklyWindow
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// SlotDuration returns the provider's configured slot length, falling back
// to DefaultSlotMinutes when unset.
func (p *Provider) SlotDuration() time.Duration {
	if p.SlotDurationMinutes <= 0 {
		return DefaultSlotMinutes * time.Minute
	}
	return time.Duration(p.SlotDurationMinutes) * time.Minute
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Appointment is the unit of booking. It is never deleted; cancellation is a
// terminal status. ProposedStart/ProposedEnd are populated exactly while the
// status is StatusRescheduleProposed.
type Appointment struct {
	ID              uuid.UUID
	ProviderID      uuid.UUID
	PatientID       uuid.UUID
	ScheduledStart  time.Time
	ScheduledEnd    time.Time
	Status          Status
	Reason          string
	RescheduledFrom *time.Time
	ProposedStart   *time.Time
	ProposedEnd     *time.Time
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
