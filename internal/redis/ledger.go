package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/doctor-slot-booking/internal/ledger"
	"github.com/hackgods/doctor-slot-booking/internal/slot"
)

// SlotLedger stores each doctor/day ledger entry as a Redis set of HH:MM
// markers. SADD reports whether the member was new, which makes it the
// atomic claim.
type SlotLedger struct {
	client *redis.Client
	// retain keeps a day's set around after the day ends
	retain time.Duration
}

func NewSlotLedger(client *redis.Client) *SlotLedger {
	return &SlotLedger{client: client, retain: 48 * time.Hour}
}

func ledgerKey(doctorID uuid.UUID, date slot.Date) string {
	return fmt.Sprintf("ledger:%s:%s", doctorID, date)
}

func (l *SlotLedger) IsClaimed(ctx context.Context, key slot.Key) (bool, error) {
	ok, err := l.client.SIsMember(ctx, ledgerKey(key.DoctorID, key.Date), key.Time.String()).Result()
	if err != nil {
		return false, fmt.Errorf("check claimed slot: %w", err)
	}
	return ok, nil
}

func (l *SlotLedger) Claim(ctx context.Context, key slot.Key) error {
	rkey := ledgerKey(key.DoctorID, key.Date)

	var added *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		added = pipe.SAdd(ctx, rkey, key.Time.String())
		pipe.ExpireAt(ctx, rkey, key.Date.Midnight(time.UTC).Add(l.retain))
		return nil
	})
	if err != nil {
		return fmt.Errorf("claim slot: %w", err)
	}
	if added.Val() == 0 {
		return ledger.ErrSlotConflict
	}
	return nil
}

func (l *SlotLedger) Release(ctx context.Context, key slot.Key) error {
	if err := l.client.SRem(ctx, ledgerKey(key.DoctorID, key.Date), key.Time.String()).Err(); err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	return nil
}

func (l *SlotLedger) Claimed(ctx context.Context, doctorID uuid.UUID, date slot.Date) (map[slot.Clock]struct{}, error) {
	members, err := l.client.SMembers(ctx, ledgerKey(doctorID, date)).Result()
	if err != nil {
		return nil, fmt.Errorf("list claimed slots: %w", err)
	}

	out := make(map[slot.Clock]struct{}, len(members))
	for _, m := range members {
		t, err := slot.ParseClock(m)
		if err != nil {
			return nil, fmt.Errorf("ledger %s holds %q: %w", ledgerKey(doctorID, date), m, err)
		}
		out[t] = struct{}{}
	}
	return out, nil
}
