package appointment

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/doctor-slot-booking/internal/payment"
	"github.com/hackgods/doctor-slot-booking/internal/slot"
)

var appointmentColumnNames = []string{
	"id", "patient_id", "doctor_id", "slot_date", "slot_time", "status", "payment_status",
	"payment_method", "payment_reference", "amount", "currency", "cancelled_by",
	"feedback_rating", "feedback_comment", "feedback_at", "history", "version",
	"created_at", "updated_at",
}

func setupPgRepository(t *testing.T) (*PgRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return NewPgRepository(mock), mock
}

func strPtr(s string) *string { return &s }

// storedAppointment is a row as Postgres hands it back, typed the way the
// scanner reads it.
type storedAppointment struct {
	id, patient, doctor uuid.UUID
	date                time.Time
	minute              int
	status              State
	paymentStatus       PaymentState
	method, reference   *string
	amount, currency    string
	cancelledBy         *string
	rating              *int
	comment             *string
	feedbackAt          *time.Time
	history             []byte
	version             int
	created, updated    time.Time
}

func newStoredAppointment(t *testing.T) storedAppointment {
	t.Helper()
	created := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	history, err := json.Marshal([]Transition{{To: StateBooked, Actor: RolePatient, At: created}})
	require.NoError(t, err)

	return storedAppointment{
		id:            uuid.New(),
		patient:       uuid.New(),
		doctor:        uuid.New(),
		date:          time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		minute:        10 * 60,
		status:        StateBooked,
		paymentStatus: PaymentUnpaid,
		amount:        "500.00",
		currency:      "INR",
		history:       history,
		version:       1,
		created:       created,
		updated:       created,
	}
}

func (s storedAppointment) rows() *pgxmock.Rows {
	return pgxmock.NewRows(appointmentColumnNames).AddRow(
		s.id, s.patient, s.doctor, s.date, s.minute, s.status, s.paymentStatus,
		s.method, s.reference, s.amount, s.currency, s.cancelledBy,
		s.rating, s.comment, s.feedbackAt, s.history, s.version,
		s.created, s.updated,
	)
}

func TestPgRepositoryScansAppointment(t *testing.T) {
	repo, mock := setupPgRepository(t)

	row := newStoredAppointment(t)
	rating := 4
	submitted := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	row.status = StateCompleted
	row.paymentStatus = PaymentPaid
	row.method = strPtr("stripe")
	row.reference = strPtr("cs_test_1")
	row.rating = &rating
	row.comment = strPtr("Very thorough.")
	row.feedbackAt = &submitted
	row.version = 4

	mock.ExpectQuery("FROM appointments").
		WithArgs(row.id).
		WillReturnRows(row.rows())

	a, err := repo.GetAppointmentByID(context.Background(), row.id)
	require.NoError(t, err)

	assert.Equal(t, slot.Date("2024-06-01"), a.Date)
	assert.Equal(t, "10:00", a.Time.String())
	assert.Equal(t, StateCompleted, a.Status)
	assert.Equal(t, payment.MethodStripe, a.PaymentMethod)
	assert.Equal(t, "cs_test_1", a.PaymentReference)
	assert.True(t, decimal.RequireFromString("500").Equal(a.Amount))
	assert.Empty(t, a.CancelledBy)
	require.NotNil(t, a.Feedback)
	assert.Equal(t, 4, a.Feedback.Rating)
	assert.Equal(t, "Very thorough.", a.Feedback.Comment)
	assert.Equal(t, submitted, a.Feedback.SubmittedAt)
	require.Len(t, a.History, 1)
	assert.Equal(t, StateBooked, a.History[0].To)
	assert.Equal(t, 4, a.Version)
}

func TestPgRepositoryAppointmentNotFound(t *testing.T) {
	repo, mock := setupPgRepository(t)
	id := uuid.New()

	mock.ExpectQuery("FROM appointments").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(appointmentColumnNames))

	_, err := repo.GetAppointmentByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestPgRepositoryCreateMapsUniqueViolation(t *testing.T) {
	repo, mock := setupPgRepository(t)
	row := newStoredAppointment(t)

	a := &Appointment{
		ID:            row.id,
		PatientID:     row.patient,
		DoctorID:      row.doctor,
		Date:          "2024-06-01",
		Time:          600,
		Status:        StateBooked,
		PaymentStatus: PaymentUnpaid,
		Amount:        decimal.RequireFromString("500.00"),
		Currency:      "INR",
		CreatedAt:     row.created,
	}

	mock.ExpectQuery("INSERT INTO appointments").
		WillReturnRows(row.rows())
	mock.ExpectQuery("INSERT INTO appointments").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "appointments_active_slot_uniq"})

	created, err := repo.CreateAppointment(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, 1, created.Version)

	_, err = repo.CreateAppointment(context.Background(), a)
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestPgRepositoryUpdateIsVersionGuarded(t *testing.T) {
	ctx := context.Background()

	t.Run("applies", func(t *testing.T) {
		repo, mock := setupPgRepository(t)
		row := newStoredAppointment(t)
		row.version = 2
		row.status = StateCancelled
		row.cancelledBy = strPtr("patient")

		mock.ExpectQuery("UPDATE appointments").
			WillReturnRows(row.rows())

		updated, err := repo.UpdateAppointment(ctx, &Appointment{ID: row.id, Version: 1, Date: "2024-06-01", Time: 600})
		require.NoError(t, err)
		assert.Equal(t, 2, updated.Version)
		assert.Equal(t, RolePatient, updated.CancelledBy)
	})

	t.Run("stale", func(t *testing.T) {
		repo, mock := setupPgRepository(t)
		row := newStoredAppointment(t)
		row.version = 3

		mock.ExpectQuery("UPDATE appointments").
			WillReturnRows(pgxmock.NewRows(appointmentColumnNames))
		mock.ExpectQuery("FROM appointments").
			WithArgs(row.id).
			WillReturnRows(row.rows())

		_, err := repo.UpdateAppointment(ctx, &Appointment{ID: row.id, Version: 1, Date: "2024-06-01", Time: 600})
		assert.ErrorIs(t, err, ErrStaleAppointment)
	})

	t.Run("missing", func(t *testing.T) {
		repo, mock := setupPgRepository(t)
		id := uuid.New()

		mock.ExpectQuery("UPDATE appointments").
			WillReturnRows(pgxmock.NewRows(appointmentColumnNames))
		mock.ExpectQuery("FROM appointments").
			WithArgs(id).
			WillReturnRows(pgxmock.NewRows(appointmentColumnNames))

		_, err := repo.UpdateAppointment(ctx, &Appointment{ID: id, Version: 1, Date: "2024-06-01", Time: 600})
		assert.ErrorIs(t, err, ErrAppointmentNotFound)
	})

	t.Run("slot taken", func(t *testing.T) {
		repo, mock := setupPgRepository(t)

		mock.ExpectQuery("UPDATE appointments").
			WillReturnError(&pgconn.PgError{Code: "23505"})

		_, err := repo.UpdateAppointment(ctx, &Appointment{ID: uuid.New(), Version: 1, Date: "2024-06-02", Time: 660})
		assert.ErrorIs(t, err, ErrSlotTaken)
	})
}

func TestPgRepositoryDoctorProfile(t *testing.T) {
	repo, mock := setupPgRepository(t)
	id := uuid.New()

	mock.ExpectQuery("FROM doctors").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "speciality", "work_start", "work_end", "slot_minutes", "accepting", "fee", "currency",
		}).AddRow(id, "Dr. Asha Rao", "Dermatologist", 600, 1260, 20, true, "750.50", "INR"))

	p, err := repo.GetDoctorProfile(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "10:00", p.WorkStart.String())
	assert.Equal(t, "21:00", p.WorkEnd.String())
	assert.Equal(t, 20*time.Minute, p.Granularity)
	assert.True(t, decimal.RequireFromString("750.5").Equal(p.Fee))

	missing := uuid.New()
	mock.ExpectQuery("FROM doctors").
		WithArgs(missing).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, err = repo.GetDoctorProfile(context.Background(), missing)
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestPgRepositoryListActiveFrom(t *testing.T) {
	repo, mock := setupPgRepository(t)
	first, second := newStoredAppointment(t), newStoredAppointment(t)
	second.minute = 630

	rows := pgxmock.NewRows(appointmentColumnNames)
	for _, r := range []storedAppointment{first, second} {
		rows.AddRow(
			r.id, r.patient, r.doctor, r.date, r.minute, r.status, r.paymentStatus,
			r.method, r.reference, r.amount, r.currency, r.cancelledBy,
			r.rating, r.comment, r.feedbackAt, r.history, r.version,
			r.created, r.updated,
		)
	}

	mock.ExpectQuery("status <> 'cancelled'").
		WithArgs(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)).
		WillReturnRows(rows)

	got, err := repo.ListActiveFrom(context.Background(), "2024-06-01")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "10:30", got[1].Time.String())
}

func TestPgRepositoryInsertEvent(t *testing.T) {
	repo, mock := setupPgRepository(t)
	id := uuid.New()

	mock.ExpectExec("INSERT INTO event_logs").
		WithArgs(EventAppointmentBooked, &id, strPtr(`{"time":"10:00"}`), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.InsertEvent(context.Background(), EventLog{
		EventType:     EventAppointmentBooked,
		AppointmentID: &id,
		Payload:       []byte(`{"time":"10:00"}`),
	})
	assert.NoError(t, err)
}
