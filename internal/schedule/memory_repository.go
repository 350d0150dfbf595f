package schedule

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-memory Repository used by tests and the load
// simulator. It honors the same optimistic-versioning contract as the
// Postgres implementation.
type MemoryRepository struct {
	mu           sync.RWMutex
	providers    map[uuid.UUID]Provider
	patients     map[uuid.UUID]Patient
	appointments map[uuid.UUID]Appointment
	events       []EventLog
	nextEventID  int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		providers:    make(map[uuid.UUID]Provider),
		patients:     make(map[uuid.UUID]Patient),
		appointments: make(map[uuid.UUID]Appointment),
	}
}

// AddProvider registers a provider, for fixture setup.
func (r *MemoryRepository) AddProvider(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID] = p
}

// AddPatient registers a patient, for fixture setup.
func (r *MemoryRepository) AddPatient(p Patient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patients[p.ID] = p
}

func (r *MemoryRepository) GetProviderByID(_ context.Context, id uuid.UUID) (*Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	cp := p
	cp.WeeklyWindows = append([]WeeklyWindow(nil), p.WeeklyWindows...)
	return &cp, nil
}

func (r *MemoryRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := p
	return &cp, nil
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := a
	return &cp, nil
}

func (r *MemoryRepository) CreateAppointment(_ context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a.Version = 1
	r.appointments[a.ID] = *a
	return nil
}

func (r *MemoryRepository) UpdateAppointment(_ context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.appointments[a.ID]
	if !ok {
		return ErrAppointmentNotFound
	}
	if stored.Version != a.Version {
		return ErrStaleAppointment
	}
	a.Version++
	r.appointments[a.ID] = *a
	return nil
}

func (r *MemoryRepository) ListConfirmedOverlapping(_ context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	return r.list(func(a Appointment) bool {
		return a.ProviderID == providerID &&
			a.Status == StatusConfirmed &&
			Overlaps(a.ScheduledStart, a.ScheduledEnd, from, to)
	}), nil
}

func (r *MemoryRepository) ListByProviderAndStatus(_ context.Context, providerID uuid.UUID, status Status) ([]Appointment, error) {
	return r.list(func(a Appointment) bool {
		return a.ProviderID == providerID && a.Status == status
	}), nil
}

func (r *MemoryRepository) ListStartingAfter(_ context.Context, providerID uuid.UUID, after time.Time) ([]Appointment, error) {
	return r.list(func(a Appointment) bool {
		return a.ProviderID == providerID && a.ScheduledStart.After(after)
	}), nil
}

func (r *MemoryRepository) ListByPatient(_ context.Context, patientID uuid.UUID, statuses []Status) ([]Appointment, error) {
	return r.list(func(a Appointment) bool {
		if a.PatientID != patientID {
			return false
		}
		if len(statuses) == 0 {
			return true
		}
		for _, s := range statuses {
			if a.Status == s {
				return true
			}
		}
		return false
	}), nil
}

func (r *MemoryRepository) ListByProviderBetween(_ context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	return r.list(func(a Appointment) bool {
		return a.ProviderID == providerID && Overlaps(a.ScheduledStart, a.ScheduledEnd, from, to)
	}), nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextEventID++
	ev.ID = r.nextEventID
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded event log, for assertions.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]EventLog(nil), r.events...)
}

func (r *MemoryRepository) list(keep func(Appointment) bool) []Appointment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Appointment
	for _, a := range r.appointments {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ScheduledStart.Before(out[j].ScheduledStart)
	})
	return out
}
