package redisclient

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/doctor-slot-booking/internal/ledger"
	"github.com/hackgods/doctor-slot-booking/internal/lock"
	"github.com/hackgods/doctor-slot-booking/internal/payment"
	"github.com/hackgods/doctor-slot-booking/internal/slot"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := NewRedisClient(context.Background(), Options{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestSlotLedger(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()
	l := NewSlotLedger(rdb)

	doc := uuid.New()
	date := slot.DateOf(time.Now(), time.UTC)
	key := slot.Key{DoctorID: doc, Date: date, Time: 600}

	require.NoError(t, l.Claim(ctx, key))
	assert.ErrorIs(t, l.Claim(ctx, key), ledger.ErrSlotConflict)

	claimed, err := l.IsClaimed(ctx, key)
	require.NoError(t, err)
	assert.True(t, claimed)

	require.NoError(t, l.Claim(ctx, slot.Key{DoctorID: doc, Date: date, Time: 630}))
	set, err := l.Claimed(ctx, doc, date)
	require.NoError(t, err)
	assert.Equal(t, map[slot.Clock]struct{}{600: {}, 630: {}}, set)

	require.NoError(t, l.Release(ctx, key))
	require.NoError(t, l.Release(ctx, key))
	claimed, err = l.IsClaimed(ctx, key)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestSlotLedgerConcurrentClaim(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()
	l := NewSlotLedger(rdb)
	key := slot.Key{DoctorID: uuid.New(), Date: slot.DateOf(time.Now(), time.UTC), Time: 600}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Claim(ctx, key) == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestRedisLocker(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()
	l := NewRedisLocker(rdb, time.Second)

	err := l.WithLock(ctx, []string{"appointment:b", "appointment:a"}, func(ctx context.Context) error {
		assert.True(t, mr.Exists("lock:appointment:a"))
		assert.True(t, mr.Exists("lock:appointment:b"))

		inner := l.WithLock(ctx, []string{"appointment:a"}, func(context.Context) error { return nil })
		assert.ErrorIs(t, inner, lock.ErrNotAcquired)
		return nil
	})
	require.NoError(t, err)

	assert.False(t, mr.Exists("lock:appointment:a"))
	assert.False(t, mr.Exists("lock:appointment:b"))
}

func TestRedisLockerReleasesPartialAcquisition(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewRedisLocker(rdb, time.Second)

	require.NoError(t, mr.Set("lock:b", "someone-else"))

	called := false
	err := l.WithLock(context.Background(), []string{"a", "b"}, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, lock.ErrNotAcquired)
	assert.False(t, called)
	assert.False(t, mr.Exists("lock:a"), "a is released when b cannot be taken")

	v, err := mr.Get("lock:b")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", v, "foreign lock untouched")
}

func TestRefundStream(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()
	s := NewRefundStream(rdb, "")

	intent := payment.RefundIntent{
		AppointmentID: uuid.New(),
		Method:        payment.MethodStripe,
		Reference:     "cs_test_1",
		Amount:        decimal.NewFromInt(50),
		Currency:      "USD",
		CancelledBy:   "patient",
		RequestedAt:   time.Now().UTC(),
	}
	require.NoError(t, s.RefundRequested(ctx, intent))

	msgs, err := rdb.XRange(ctx, DefaultRefundStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, intent.AppointmentID.String(), msgs[0].Values["appointment_id"])

	var got payment.RefundIntent
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["payload"].(string)), &got))
	assert.Equal(t, intent.Reference, got.Reference)
	assert.True(t, intent.Amount.Equal(got.Amount))
}
