package ledger

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-slot-booking/internal/slot"
)

type dayKey struct {
	doctorID uuid.UUID
	date     slot.Date
}

// Memory is an in-process ledger. Claims are grouped per doctor/day and a
// group is dropped as soon as its last claim is released.
type Memory struct {
	mu   sync.Mutex
	days map[dayKey]map[slot.Clock]struct{}
}

func NewMemory() *Memory {
	return &Memory{days: make(map[dayKey]map[slot.Clock]struct{})}
}

func (m *Memory) IsClaimed(ctx context.Context, key slot.Key) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.days[dayKey{key.DoctorID, key.Date}][key.Time]
	return ok, nil
}

func (m *Memory) Claim(ctx context.Context, key slot.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k := dayKey{key.DoctorID, key.Date}

	m.mu.Lock()
	defer m.mu.Unlock()
	claimed, ok := m.days[k]
	if !ok {
		claimed = make(map[slot.Clock]struct{})
		m.days[k] = claimed
	}
	if _, taken := claimed[key.Time]; taken {
		return ErrSlotConflict
	}
	claimed[key.Time] = struct{}{}
	return nil
}

// Release ignores ctx cancellation so compensating releases always land.
func (m *Memory) Release(_ context.Context, key slot.Key) error {
	k := dayKey{key.DoctorID, key.Date}

	m.mu.Lock()
	defer m.mu.Unlock()
	claimed, ok := m.days[k]
	if !ok {
		return nil
	}
	delete(claimed, key.Time)
	if len(claimed) == 0 {
		delete(m.days, k)
	}
	return nil
}

func (m *Memory) Claimed(ctx context.Context, doctorID uuid.UUID, date slot.Date) (map[slot.Clock]struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	claimed := m.days[dayKey{doctorID, date}]
	out := make(map[slot.Clock]struct{}, len(claimed))
	for t := range claimed {
		out[t] = struct{}{}
	}
	return out, nil
}

// Prune forgets every claim dated before the given day and reports how many
// doctor/day groups it dropped.
func (m *Memory) Prune(before slot.Date) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for k := range m.days {
		if k.date < before {
			delete(m.days, k)
			n++
		}
	}
	return n
}

// partitions is the number of doctor/day groups currently held.
func (m *Memory) partitions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.days)
}
