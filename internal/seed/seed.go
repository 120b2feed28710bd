// Package seed generates demo doctors and patients and loads them into
// Postgres or the in-memory repository.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hackgods/doctor-slot-booking/internal/appointment"
	"github.com/hackgods/doctor-slot-booking/internal/availability"
	"github.com/hackgods/doctor-slot-booking/internal/slot"
)

var specialities = []string{
	"General physician",
	"Gynecologist",
	"Dermatologist",
	"Pediatricians",
	"Neurologist",
	"Gastroenterologist",
}

// windows are the working hours doctors are given, as [start, end) minutes.
var windows = [][2]slot.Clock{
	{10 * 60, 21 * 60},
	{9 * 60, 17 * 60},
	{14 * 60, 20 * 60},
	{8 * 60, 13 * 60},
}

var granularities = []time.Duration{30 * time.Minute, 30 * time.Minute, 20 * time.Minute, 15 * time.Minute}

type Data struct {
	Doctors  []availability.Profile
	Patients []appointment.Patient
}

// Generate builds doctors and patients from f. The same seed gives the same data.
func Generate(f *gofakeit.Faker, doctors, patients int) Data {
	var d Data

	for range doctors {
		w := windows[f.Number(0, len(windows)-1)]
		fee := decimal.NewFromInt(int64(f.Number(4, 20) * 50))

		d.Doctors = append(d.Doctors, availability.Profile{
			DoctorID:    uuid.New(),
			Name:        "Dr. " + f.Name(),
			Speciality:  f.RandomString(specialities),
			WorkStart:   w[0],
			WorkEnd:     w[1],
			Granularity: granularities[f.Number(0, len(granularities)-1)],
			Accepting:   f.Number(1, 10) > 1,
			Fee:         fee,
			Currency:    "INR",
		})
	}

	for range patients {
		email := f.Email()
		d.Patients = append(d.Patients, appointment.Patient{
			ID:    uuid.New(),
			Name:  f.Name(),
			Email: &email,
		})
	}

	return d
}

// IntoMemory loads d into repo.
func IntoMemory(repo *appointment.MemoryRepository, d Data) {
	for _, p := range d.Doctors {
		repo.AddDoctor(p)
	}
	now := time.Now().UTC()
	for _, p := range d.Patients {
		p.CreatedAt, p.UpdatedAt = now, now
		repo.AddPatient(p)
	}
}

// IntoPostgres inserts d in batches, one transaction per batch.
func IntoPostgres(ctx context.Context, pool *pgxpool.Pool, d Data, logger zerolog.Logger) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, p := range d.Doctors {
		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, speciality, work_start, work_end, slot_minutes, accepting, fee, currency, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9, now(), now())
		`, p.DoctorID, p.Name, p.Speciality, int(p.WorkStart), int(p.WorkEnd), int(p.Granularity/time.Minute),
			p.Accepting, p.Fee.String(), p.Currency)
		if err != nil {
			return fmt.Errorf("insert doctor %s: %w", p.DoctorID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	logger.Info().Int("count", len(d.Doctors)).Msg("doctors seeded")

	const batchSize = 500

	for offset := 0; offset < len(d.Patients); offset += batchSize {
		end := min(offset+batchSize, len(d.Patients))

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for _, p := range d.Patients[offset:end] {
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, p.ID, p.Name, p.Email)
			if err != nil {
				_ = tx.Rollback(ctx)
				return fmt.Errorf("insert patient %s: %w", p.ID, err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		logger.Info().Int("done", end).Int("total", len(d.Patients)).Msg("patients seeded")
	}

	return nil
}
