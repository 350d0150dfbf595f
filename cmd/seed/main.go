package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/clinicore/scheduler/internal/db"
	"github.com/clinicore/scheduler/internal/schedule"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "seed").Logger()
	log.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	providerIDs, err := seedProviders(context.Background(), pool, 40, log)
	if err != nil {
		log.Fatal().Err(err).Msg("seed providers")
	}
	patientIDs, err := seedPatients(context.Background(), pool, 2000, log)
	if err != nil {
		log.Fatal().Err(err).Msg("seed patients")
	}
	if err := seedAppointments(context.Background(), pool, providerIDs, patientIDs, log); err != nil {
		log.Fatal().Err(err).Msg("seed appointments")
	}

	log.Info().Msg("seed complete")
}

func seedProviders(ctx context.Context, pool *pgxpool.Pool, count int, log zerolog.Logger) ([]uuid.UUID, error) {
	log.Info().Int("count", count).Msg("seeding providers")

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}
	durations := []int{15, 20, 30, 45, 60}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]
		dur := durations[gofakeit.Number(0, len(durations)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO providers (id, name, specialty, slot_duration_minutes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, id, name, spec, dur)
		if err != nil {
			return nil, err
		}

		// Weekday windows: morning block always, afternoon block most days.
		for day := int(time.Monday); day <= int(time.Friday); day++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO provider_windows (provider_id, day_of_week, start_minute, end_minute)
				VALUES ($1, $2, $3, $4)
			`, id, day, 9*60, 12*60)
			if err != nil {
				return nil, err
			}
			if gofakeit.Bool() {
				_, err := tx.Exec(ctx, `
					INSERT INTO provider_windows (provider_id, day_of_week, start_minute, end_minute)
					VALUES ($1, $2, $3, $4)
				`, id, day, 14*60, 17*60)
				if err != nil {
					return nil, err
				}
			}
		}

		ids = append(ids, id)
	}

	return ids, tx.Commit(ctx)
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int, log zerolog.Logger) ([]uuid.UUID, error) {
	log.Info().Int("count", count).Msg("seeding patients")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO patients (id, name, email, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, gofakeit.Name(), gofakeit.Email())
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, tx.Commit(ctx)
}

// seedAppointments creates a confirmed morning appointment per provider for
// the next business day, giving the simulator some occupied slots to collide
// with.
func seedAppointments(ctx context.Context, pool *pgxpool.Pool, providerIDs, patientIDs []uuid.UUID, log zerolog.Logger) error {
	if len(patientIDs) == 0 {
		return nil
	}
	log.Info().Int("count", len(providerIDs)).Msg("seeding appointments")

	day := nextBusinessDay(time.Now().UTC())

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, providerID := range providerIDs {
		var dur int
		if err := tx.QueryRow(ctx, `SELECT slot_duration_minutes FROM providers WHERE id = $1`, providerID).Scan(&dur); err != nil {
			return err
		}

		patientID := patientIDs[gofakeit.Number(0, len(patientIDs)-1)]
		start := time.Date(day.Year(), day.Month(), day.Day(), 9, 0, 0, 0, time.UTC)
		end := start.Add(time.Duration(dur) * time.Minute)

		_, err := tx.Exec(ctx, `
			INSERT INTO appointments (
				id, provider_id, patient_id, scheduled_start, scheduled_end,
				status, reason, version, created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 1, now(), now())
		`, uuid.New(), providerID, patientID, start, end,
			schedule.StatusConfirmed, gofakeit.Sentence(6))
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func nextBusinessDay(t time.Time) time.Time {
	d := t.AddDate(0, 0, 1)
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}
