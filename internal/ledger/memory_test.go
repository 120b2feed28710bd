package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/doctor-slot-booking/internal/slot"
)

func TestMemoryClaimRelease(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()
	key := slot.Key{DoctorID: uuid.New(), Date: "2024-06-01", Time: 600}

	claimed, err := l.IsClaimed(ctx, key)
	require.NoError(t, err)
	assert.False(t, claimed)

	require.NoError(t, l.Claim(ctx, key))
	assert.ErrorIs(t, l.Claim(ctx, key), ErrSlotConflict)

	claimed, err = l.IsClaimed(ctx, key)
	require.NoError(t, err)
	assert.True(t, claimed)

	require.NoError(t, l.Release(ctx, key))
	require.NoError(t, l.Release(ctx, key), "release is idempotent")

	claimed, err = l.IsClaimed(ctx, key)
	require.NoError(t, err)
	assert.False(t, claimed)

	require.NoError(t, l.Claim(ctx, key), "released slot can be claimed again")
}

func TestMemoryClaimedSnapshot(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()
	doc := uuid.New()

	require.NoError(t, l.Claim(ctx, slot.Key{DoctorID: doc, Date: "2024-06-01", Time: 600}))
	require.NoError(t, l.Claim(ctx, slot.Key{DoctorID: doc, Date: "2024-06-01", Time: 630}))
	require.NoError(t, l.Claim(ctx, slot.Key{DoctorID: doc, Date: "2024-06-02", Time: 600}))
	require.NoError(t, l.Claim(ctx, slot.Key{DoctorID: uuid.New(), Date: "2024-06-01", Time: 660}))

	got, err := l.Claimed(ctx, doc, "2024-06-01")
	require.NoError(t, err)
	assert.Equal(t, map[slot.Clock]struct{}{600: {}, 630: {}}, got)

	// the snapshot is a copy
	got[900] = struct{}{}
	claimed, err := l.IsClaimed(ctx, slot.Key{DoctorID: doc, Date: "2024-06-01", Time: 900})
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestMemoryConcurrentClaimHasSingleWinner(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()
	key := slot.Key{DoctorID: uuid.New(), Date: "2024-06-01", Time: 600}

	const callers = 64
	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := l.Claim(ctx, key)
			switch {
			case err == nil:
				wins.Add(1)
			case err == ErrSlotConflict:
				conflicts.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(callers-1), conflicts.Load())
}

func TestMemoryClaimHonoursCancelledContext(t *testing.T) {
	l := NewMemory()
	key := slot.Key{DoctorID: uuid.New(), Date: "2024-06-01", Time: 600}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, l.Claim(ctx, key), context.Canceled)

	claimed, err := l.IsClaimed(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, claimed)

	require.NoError(t, l.Claim(context.Background(), key))
	require.NoError(t, l.Release(ctx, key), "release runs even when ctx is done")
}

func TestMemoryDoesNotRetainEmptyDays(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()
	doc := uuid.New()

	for d := range 30 {
		date := slot.Date("2024-06-01").AddDays(d)
		claimed, err := l.IsClaimed(ctx, slot.Key{DoctorID: doc, Date: date, Time: 600})
		require.NoError(t, err)
		assert.False(t, claimed)
		_, err = l.Claimed(ctx, doc, date)
		require.NoError(t, err)
	}
	assert.Zero(t, l.partitions(), "reads leave nothing behind")

	key := slot.Key{DoctorID: doc, Date: "2024-06-01", Time: 600}
	require.NoError(t, l.Claim(ctx, key))
	assert.Equal(t, 1, l.partitions())
	require.NoError(t, l.Release(ctx, key))
	assert.Zero(t, l.partitions())
}

func TestMemoryPrune(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()
	doc := uuid.New()

	require.NoError(t, l.Claim(ctx, slot.Key{DoctorID: doc, Date: "2024-05-30", Time: 600}))
	require.NoError(t, l.Claim(ctx, slot.Key{DoctorID: doc, Date: "2024-05-31", Time: 600}))
	require.NoError(t, l.Claim(ctx, slot.Key{DoctorID: doc, Date: "2024-06-01", Time: 600}))

	assert.Equal(t, 2, l.Prune("2024-06-01"))
	assert.Equal(t, 1, l.partitions())

	claimed, err := l.IsClaimed(ctx, slot.Key{DoctorID: doc, Date: "2024-06-01", Time: 600})
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Zero(t, l.Prune("2024-06-01"))
}
