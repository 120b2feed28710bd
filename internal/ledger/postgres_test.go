package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/doctor-slot-booking/internal/slot"
)

func setupPostgresLedger(t *testing.T) (*Postgres, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return NewPostgres(mock), mock
}

func testKey() slot.Key {
	return slot.Key{DoctorID: uuid.New(), Date: "2024-06-01", Time: 600}
}

func TestPostgresClaim(t *testing.T) {
	l, mock := setupPostgresLedger(t)
	ctx := context.Background()
	key := testKey()
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO claimed_slots").
		WithArgs(key.DoctorID, day, 600).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO claimed_slots").
		WithArgs(key.DoctorID, day, 600).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	require.NoError(t, l.Claim(ctx, key))
	assert.ErrorIs(t, l.Claim(ctx, key), ErrSlotConflict)
}

func TestPostgresClaimError(t *testing.T) {
	l, mock := setupPostgresLedger(t)
	boom := errors.New("connection reset")

	mock.ExpectExec("INSERT INTO claimed_slots").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(boom)

	err := l.Claim(context.Background(), testKey())
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrSlotConflict)
}

func TestPostgresRelease(t *testing.T) {
	l, mock := setupPostgresLedger(t)
	key := testKey()

	mock.ExpectExec("DELETE FROM claimed_slots").
		WithArgs(key.DoctorID, pgxmock.AnyArg(), 600).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	assert.NoError(t, l.Release(context.Background(), key))
}

func TestPostgresIsClaimed(t *testing.T) {
	l, mock := setupPostgresLedger(t)
	key := testKey()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(key.DoctorID, pgxmock.AnyArg(), 600).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	claimed, err := l.IsClaimed(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestPostgresClaimed(t *testing.T) {
	l, mock := setupPostgresLedger(t)
	doctor := uuid.New()

	mock.ExpectQuery("SELECT slot_time FROM claimed_slots").
		WithArgs(doctor, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"slot_time"}).AddRow(600).AddRow(630))

	got, err := l.Claimed(context.Background(), doctor, "2024-06-01")
	require.NoError(t, err)
	assert.Equal(t, map[slot.Clock]struct{}{600: {}, 630: {}}, got)
}
