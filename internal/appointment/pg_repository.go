package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/hackgods/doctor-slot-booking/internal/availability"
	"github.com/hackgods/doctor-slot-booking/internal/db"
	"github.com/hackgods/doctor-slot-booking/internal/payment"
	"github.com/hackgods/doctor-slot-booking/internal/slot"
)

const uniqueViolation = "23505"

const appointmentColumns = `
	id, patient_id, doctor_id, slot_date, slot_time, status, payment_status,
	payment_method, payment_reference, amount::text, currency, cancelled_by,
	feedback_rating, feedback_comment, feedback_at, history, version,
	created_at, updated_at`

type PgRepository struct {
	pool db.DBTX
}

func NewPgRepository(pool db.DBTX) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func scanProfile(row pgx.Row) (*availability.Profile, error) {
	var (
		p                      availability.Profile
		start, end, slotMinute int
		fee                    string
	)

	err := row.Scan(
		&p.DoctorID,
		&p.Name,
		&p.Speciality,
		&start,
		&end,
		&slotMinute,
		&p.Accepting,
		&fee,
		&p.Currency,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	p.WorkStart = slot.Clock(start)
	p.WorkEnd = slot.Clock(end)
	p.Granularity = time.Duration(slotMinute) * time.Minute
	if p.Fee, err = decimal.NewFromString(fee); err != nil {
		return nil, fmt.Errorf("doctor %s fee %q: %w", p.DoctorID, fee, err)
	}
	return &p, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a           Appointment
		date        time.Time
		minute      int
		method, ref *string
		amount      string
		cancelledBy *string
		rating      *int
		comment     *string
		feedbackAt  *time.Time
		history     []byte
	)

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&date,
		&minute,
		&a.Status,
		&a.PaymentStatus,
		&method,
		&ref,
		&amount,
		&a.Currency,
		&cancelledBy,
		&rating,
		&comment,
		&feedbackAt,
		&history,
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

	a.Date = slot.Date(date.Format(slot.DateLayout))
	a.Time = slot.Clock(minute)
	if method != nil {
		a.PaymentMethod = payment.Method(*method)
	}
	if ref != nil {
		a.PaymentReference = *ref
	}
	if cancelledBy != nil {
		a.CancelledBy = Role(*cancelledBy)
	}
	if a.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("appointment %s amount %q: %w", a.ID, amount, err)
	}
	if rating != nil {
		a.Feedback = &Feedback{Rating: *rating}
		if comment != nil {
			a.Feedback.Comment = *comment
		}
		if feedbackAt != nil {
			a.Feedback.SubmittedAt = *feedbackAt
		}
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &a.History); err != nil {
			return nil, fmt.Errorf("appointment %s history: %w", a.ID, err)
		}
	}

	return &a, nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
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

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

type feedbackColumns struct {
	rating  *int
	comment *string
	at      *time.Time
}

func feedbackParams(fb *Feedback) feedbackColumns {
	if fb == nil {
		return feedbackColumns{}
	}
	return feedbackColumns{rating: &fb.Rating, comment: &fb.Comment, at: &fb.SubmittedAt}
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetDoctorProfile(ctx context.Context, id uuid.UUID) (*availability.Profile, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, COALESCE(speciality, ''), work_start, work_end, slot_minutes,
		       accepting, fee::text, currency
		FROM doctors
		WHERE id = $1
	`, id)
	return scanProfile(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY slot_date DESC, slot_time DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *PgRepository) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		ORDER BY slot_date, slot_time
		LIMIT $2 OFFSET $3
	`, doctorID, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	history, err := json.Marshal(a.History)
	if err != nil {
		return nil, fmt.Errorf("marshal history: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (
			id, patient_id, doctor_id, slot_date, slot_time, status, payment_status,
			amount, currency, history, version, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9, $10::jsonb, 1, $11, $11)
		RETURNING `+appointmentColumns,
		a.ID, a.PatientID, a.DoctorID, a.Date.Midnight(time.UTC), int(a.Time), a.Status, a.PaymentStatus,
		a.Amount.String(), a.Currency, string(history), a.CreatedAt,
	)

	created, err := scanAppointment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) UpdateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	history, err := json.Marshal(a.History)
	if err != nil {
		return nil, fmt.Errorf("marshal history: %w", err)
	}
	fb := feedbackParams(a.Feedback)

	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET slot_date = $3,
		    slot_time = $4,
		    status = $5,
		    payment_status = $6,
		    payment_method = $7,
		    payment_reference = $8,
		    cancelled_by = $9,
		    feedback_rating = $10,
		    feedback_comment = $11,
		    feedback_at = $12,
		    history = $13::jsonb,
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1
		  AND version = $2
		RETURNING `+appointmentColumns,
		a.ID, a.Version, a.Date.Midnight(time.UTC), int(a.Time), a.Status, a.PaymentStatus,
		nullableString(string(a.PaymentMethod)), nullableString(a.PaymentReference), nullableString(string(a.CancelledBy)),
		fb.rating, fb.comment, fb.at, string(history),
	)

	updated, err := scanAppointment(row)
	switch {
	case err == nil:
		return updated, nil
	case isUniqueViolation(err):
		return nil, ErrSlotTaken
	case errors.Is(err, ErrAppointmentNotFound):
		// either gone or a newer version exists
		if _, getErr := r.GetAppointmentByID(ctx, a.ID); getErr == nil {
			return nil, ErrStaleAppointment
		}
		return nil, ErrAppointmentNotFound
	default:
		return nil, err
	}
}

func (r *PgRepository) ListActiveFrom(ctx context.Context, from slot.Date) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status <> 'cancelled'
		  AND slot_date >= $1
		ORDER BY doctor_id, slot_date, slot_time
	`, from.Midnight(time.UTC))
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *PgRepository) FindAwaitingPayment(ctx context.Context, limit int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'booked'
		  AND payment_status = 'unpaid'
		  AND payment_reference IS NOT NULL
		ORDER BY updated_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	var appID *uuid.UUID
	if ev.AppointmentID != nil {
		appID = ev.AppointmentID
	}

	var payload *string
	if len(ev.Payload) > 0 {
		s := string(ev.Payload)
		payload = &s
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3::jsonb, COALESCE($4, now()))
	`, ev.EventType, appID, payload, nullableTime(ev.CreatedAt))
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
