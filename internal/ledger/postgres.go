package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-slot-booking/internal/db"
	"github.com/hackgods/doctor-slot-booking/internal/slot"
)

// Postgres keeps claims in the claimed_slots table. The primary key over
// (doctor_id, slot_date, slot_time) makes the conditional insert the claim.
type Postgres struct {
	pool db.DBTX
}

func NewPostgres(pool db.DBTX) *Postgres {
	return &Postgres{pool: pool}
}

func (l *Postgres) IsClaimed(ctx context.Context, key slot.Key) (bool, error) {
	var exists bool
	err := l.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM claimed_slots
			WHERE doctor_id = $1 AND slot_date = $2 AND slot_time = $3
		)
	`, key.DoctorID, key.Date.Midnight(time.UTC), int(key.Time)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check claimed slot: %w", err)
	}
	return exists, nil
}

func (l *Postgres) Claim(ctx context.Context, key slot.Key) error {
	tag, err := l.pool.Exec(ctx, `
		INSERT INTO claimed_slots (doctor_id, slot_date, slot_time, claimed_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (doctor_id, slot_date, slot_time) DO NOTHING
	`, key.DoctorID, key.Date.Midnight(time.UTC), int(key.Time))
	if err != nil {
		return fmt.Errorf("claim slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotConflict
	}
	return nil
}

func (l *Postgres) Release(ctx context.Context, key slot.Key) error {
	_, err := l.pool.Exec(ctx, `
		DELETE FROM claimed_slots
		WHERE doctor_id = $1 AND slot_date = $2 AND slot_time = $3
	`, key.DoctorID, key.Date.Midnight(time.UTC), int(key.Time))
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	return nil
}

func (l *Postgres) Claimed(ctx context.Context, doctorID uuid.UUID, date slot.Date) (map[slot.Clock]struct{}, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT slot_time FROM claimed_slots
		WHERE doctor_id = $1 AND slot_date = $2
	`, doctorID, date.Midnight(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("list claimed slots: %w", err)
	}
	defer rows.Close()

	out := make(map[slot.Clock]struct{})
	for rows.Next() {
		var minute int
		if err := rows.Scan(&minute); err != nil {
			return nil, err
		}
		out[slot.Clock(minute)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
