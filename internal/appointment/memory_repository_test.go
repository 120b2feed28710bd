package appointment

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/doctor-slot-booking/internal/slot"
)

func TestMemoryRepositoryVersionGuard(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	created, err := repo.CreateAppointment(ctx, &Appointment{
		ID: uuid.New(), DoctorID: uuid.New(), PatientID: uuid.New(),
		Date: today, Time: 600, Status: StateBooked, PaymentStatus: PaymentUnpaid,
	})
	require.NoError(t, err)
	require.Equal(t, 1, created.Version)

	first := created.clone()
	first.PaymentReference = "cs_1"
	updated, err := repo.UpdateAppointment(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	// a writer still holding version 1 loses
	stale := created.clone()
	stale.PaymentReference = "cs_2"
	_, err = repo.UpdateAppointment(ctx, stale)
	assert.ErrorIs(t, err, ErrStaleAppointment)

	missing := created.clone()
	missing.ID = uuid.New()
	_, err = repo.UpdateAppointment(ctx, missing)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestMemoryRepositoryOneLiveAppointmentPerSlot(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	doctor := uuid.New()

	newAppt := func(at slot.Clock) *Appointment {
		return &Appointment{
			ID: uuid.New(), DoctorID: doctor, PatientID: uuid.New(),
			Date: today, Time: at, Status: StateBooked, PaymentStatus: PaymentUnpaid,
		}
	}

	a, err := repo.CreateAppointment(ctx, newAppt(600))
	require.NoError(t, err)

	_, err = repo.CreateAppointment(ctx, newAppt(600))
	require.ErrorIs(t, err, ErrSlotTaken)

	b, err := repo.CreateAppointment(ctx, newAppt(630))
	require.NoError(t, err)

	// moving b onto a's live slot is rejected
	move := b.clone()
	move.Time = 600
	_, err = repo.UpdateAppointment(ctx, move)
	require.ErrorIs(t, err, ErrSlotTaken)

	cancel := a.clone()
	cancel.Status = StateCancelled
	_, err = repo.UpdateAppointment(ctx, cancel)
	require.NoError(t, err)

	_, err = repo.CreateAppointment(ctx, newAppt(600))
	assert.NoError(t, err)
}

func TestMemoryRepositoryReturnsCopies(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	created, err := repo.CreateAppointment(ctx, &Appointment{
		ID: uuid.New(), DoctorID: uuid.New(), PatientID: uuid.New(),
		Date: today, Time: 600, Status: StateBooked, PaymentStatus: PaymentUnpaid,
		History: []Transition{{To: StateBooked, Actor: RolePatient}},
	})
	require.NoError(t, err)

	created.History[0].Note = "mutated"
	created.Status = StateCancelled

	got, err := repo.GetAppointmentByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, StateBooked, got.Status)
	assert.Empty(t, got.History[0].Note)
}
