package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `
	id, provider_id, patient_id, scheduled_start, scheduled_end, status,
	reason, rescheduled_from, proposed_start, proposed_end, version,
	created_at, updated_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var rescheduledFrom, proposedStart, proposedEnd *time.Time

	err := row.Scan(
		&a.ID,
		&a.ProviderID,
		&a.PatientID,
		&a.ScheduledStart,
		&a.ScheduledEnd,
		&a.Status,
		&a.Reason,
		&rescheduledFrom,
		&proposedStart,
		&proposedEnd,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.RescheduledFrom = rescheduledFrom
	a.ProposedStart = proposedStart
	a.ProposedEnd = proposedEnd
	return &a, nil
}

func (r *PgRepository) listAppointments(ctx context.Context, query string, args ...any) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Interface methods

func (r *PgRepository) GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, slot_duration_minutes, created_at, updated_at
		FROM providers
		WHERE id = $1
	`, id)

	var p Provider
	var specialty *string
	err := row.Scan(&p.ID, &p.Name, &specialty, &p.SlotDurationMinutes, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}
	p.Specialty = specialty

	rows, err := r.pool.Query(ctx, `
		SELECT day_of_week, start_minute, end_minute
		FROM provider_windows
		WHERE provider_id = $1
		ORDER BY day_of_week, start_minute
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var w WeeklyWindow
		var day int
		if err := rows.Scan(&day, &w.StartMinute, &w.EndMinute); err != nil {
			return nil, err
		}
		w.Day = time.Weekday(day)
		p.WeeklyWindows = append(p.WeeklyWindows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &p, nil
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)

	var p Patient
	var email *string
	err := row.Scan(&p.ID, &p.Name, &email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	p.Email = email
	return &p, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (
			id, provider_id, patient_id, scheduled_start, scheduled_end, status,
			reason, rescheduled_from, proposed_start, proposed_end, version,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1, now(), now())
		RETURNING version, created_at, updated_at
	`, a.ID, a.ProviderID, a.PatientID, a.ScheduledStart, a.ScheduledEnd, a.Status,
		a.Reason, a.RescheduledFrom, a.ProposedStart, a.ProposedEnd)

	if err := row.Scan(&a.Version, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

// UpdateAppointment writes all mutable fields behind a version check. A
// mismatched version leaves the row untouched and reports
// ErrStaleAppointment.
func (r *PgRepository) UpdateAppointment(ctx context.Context, a *Appointment) error {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET scheduled_start  = $3,
		    scheduled_end    = $4,
		    status           = $5,
		    reason           = $6,
		    rescheduled_from = $7,
		    proposed_start   = $8,
		    proposed_end     = $9,
		    version          = version + 1,
		    updated_at       = now()
		WHERE id = $1
		  AND version = $2
		RETURNING version, updated_at
	`, a.ID, a.Version, a.ScheduledStart, a.ScheduledEnd, a.Status,
		a.Reason, a.RescheduledFrom, a.ProposedStart, a.ProposedEnd)

	if err := row.Scan(&a.Version, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrStaleAppointment
		}
		return err
	}
	return nil
}

func (r *PgRepository) ListConfirmedOverlapping(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	return r.listAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
		  AND status = 'confirmed'
		  AND scheduled_start < $3
		  AND scheduled_end > $2
		ORDER BY scheduled_start
	`, providerID, from, to)
}

func (r *PgRepository) ListByProviderAndStatus(ctx context.Context, providerID uuid.UUID, status Status) ([]Appointment, error) {
	return r.listAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
		  AND status = $2
		ORDER BY scheduled_start
	`, providerID, status)
}

func (r *PgRepository) ListStartingAfter(ctx context.Context, providerID uuid.UUID, after time.Time) ([]Appointment, error) {
	return r.listAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
		  AND scheduled_start > $2
		ORDER BY scheduled_start
	`, providerID, after)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, statuses []Status) ([]Appointment, error) {
	if len(statuses) == 0 {
		return r.listAppointments(ctx, `
			SELECT `+appointmentColumns+`
			FROM appointments
			WHERE patient_id = $1
			ORDER BY scheduled_start
		`, patientID)
	}
	ss := make([]string, len(statuses))
	for i, st := range statuses {
		ss[i] = string(st)
	}
	return r.listAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		  AND status = ANY($2)
		ORDER BY scheduled_start
	`, patientID, ss)
}

func (r *PgRepository) ListByProviderBetween(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	return r.listAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
		  AND scheduled_start < $3
		  AND scheduled_end > $2
		ORDER BY scheduled_start
	`, providerID, from, to)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
