// Package ledger records which slots of a doctor's day are claimed. It is
// the single source of truth consulted by availability listing and mutated by
// booking and the appointment lifecycle.
package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-slot-booking/internal/slot"
)

var ErrSlotConflict = errors.New("slot no longer available, please choose another")

// Ledger is implemented by the in-memory, Postgres and Redis backends.
//
// Claim must be atomic per key: of two concurrent claims for the same slot
// exactly one succeeds and the other gets ErrSlotConflict. Release is
// idempotent.
type Ledger interface {
	IsClaimed(ctx context.Context, key slot.Key) (bool, error)
	Claim(ctx context.Context, key slot.Key) error
	Release(ctx context.Context, key slot.Key) error
	Claimed(ctx context.Context, doctorID uuid.UUID, date slot.Date) (map[slot.Clock]struct{}, error)
}

// Pruner is implemented by ledgers that keep claims in process memory and
// have to forget past days themselves.
type Pruner interface {
	Prune(before slot.Date) int
}
