package appointment

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-slot-booking/internal/availability"
	"github.com/hackgods/doctor-slot-booking/internal/ledger"
	"github.com/hackgods/doctor-slot-booking/internal/lock"
	"github.com/hackgods/doctor-slot-booking/internal/slot"
)

var transitions = map[State][]State{
	StateBooked: {StatePaid, StateCancelled},
	StatePaid:   {StateCompleted, StateCancelled},
}

func CanTransition(from, to State) bool {
	return slices.Contains(transitions[from], to)
}

// Terminal reports whether no state change can leave s.
func Terminal(s State) bool {
	return len(transitions[s]) == 0
}

func transitionError(from, to State) error {
	return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
}

// authorize lets privileged actors through and otherwise requires actor to
// hold one of roles and be the patient or doctor of a.
func authorize(actor Actor, a *Appointment, roles ...Role) error {
	if actor.privileged() {
		return nil
	}
	if !slices.Contains(roles, actor.Role) {
		return ErrForbidden
	}
	switch actor.Role {
	case RolePatient:
		if actor.ID == a.PatientID {
			return nil
		}
	case RoleDoctor:
		if actor.ID == a.DoctorID {
			return nil
		}
	}
	return ErrForbidden
}

func lockKey(id uuid.UUID) string {
	return "appointment:" + id.String()
}

// withAppointment runs fn on a fresh read of the appointment while holding
// its lock. fn returns the appointment to hand back to the caller.
func (s *Service) withAppointment(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, a *Appointment) (*Appointment, error)) (*Appointment, error) {
	var out *Appointment

	err := s.locker.WithLock(ctx, []string{lockKey(id)}, func(lockCtx context.Context) error {
		a, err := s.repo.GetAppointmentByID(lockCtx, id)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				return err
			}
			return fmt.Errorf("load appointment: %w", err)
		}

		out, err = fn(lockCtx, a)
		return err
	})
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, ErrAppointmentBusy
		}
		return nil, err
	}

	return out, nil
}

// Busy appointments are retried this many times by idempotent callers.
const (
	busyAttempts = 3
	busyBackoff  = 50 * time.Millisecond
)

// withAppointmentRetry is withAppointment for callers that may safely run
// again, such as a provider confirming the same payment twice. Lock
// contention is retried with a growing pause while ctx allows.
func (s *Service) withAppointmentRetry(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, a *Appointment) (*Appointment, error)) (*Appointment, error) {
	for attempt := 1; ; attempt++ {
		out, err := s.withAppointment(ctx, id, fn)
		if !errors.Is(err, ErrAppointmentBusy) || attempt == busyAttempts {
			return out, err
		}

		timer := time.NewTimer(time.Duration(attempt) * busyBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, err
		case <-timer.C:
		}
	}
}

// save persists a under its version guard.
func (s *Service) save(ctx context.Context, a *Appointment) (*Appointment, error) {
	saved, err := s.repo.UpdateAppointment(ctx, a)
	switch {
	case err == nil:
		return saved, nil
	case errors.Is(err, ErrSlotTaken):
		return nil, ErrSlotConflict
	case errors.Is(err, ErrStaleAppointment):
		return nil, ErrAppointmentBusy
	case errors.Is(err, ErrAppointmentNotFound):
		return nil, err
	default:
		return nil, fmt.Errorf("update appointment: %w", err)
	}
}

// Cancel moves a booked or paid appointment to cancelled and gives its slot
// back. Cancelling a paid appointment emits a refund intent.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	var wasPaid bool

	cancelled, err := s.withAppointment(ctx, id, func(lockCtx context.Context, a *Appointment) (*Appointment, error) {
		if err := authorize(actor, a, RolePatient, RoleDoctor); err != nil {
			return nil, err
		}
		if !CanTransition(a.Status, StateCancelled) {
			return nil, transitionError(a.Status, StateCancelled)
		}

		next := a.clone()
		next.record(StateCancelled, actor.Role, s.now().UTC(), "")
		next.CancelledBy = actor.Role

		saved, err := s.save(lockCtx, next)
		if err != nil {
			return nil, err
		}
		wasPaid = saved.PaymentStatus == PaymentPaid
		return saved, nil
	})
	if err != nil {
		return nil, err
	}

	afterCtx, cancel := detached(ctx)
	defer cancel()

	s.release(afterCtx, cancelled.Key(), cancelled.ID, "cancelled")
	s.logEvent(afterCtx, cancelled.ID, EventAppointmentCancelled, map[string]any{
		"cancelled_by": string(actor.Role),
		"was_paid":     wasPaid,
	})
	if wasPaid {
		s.requestRefund(afterCtx, cancelled, cancelled.PaymentMethod, cancelled.PaymentReference)
	}

	return cancelled, nil
}

// Reschedule moves an active appointment to another slot of the same doctor.
// The new slot is claimed first; when that fails the appointment and its
// current slot are left as they were.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, actor Actor, date slot.Date, at slot.Clock) (*Appointment, error) {
	var oldKey slot.Key

	moved, err := s.withAppointment(ctx, id, func(lockCtx context.Context, a *Appointment) (*Appointment, error) {
		if err := authorize(actor, a, RolePatient); err != nil {
			return nil, err
		}
		if Terminal(a.Status) {
			return nil, fmt.Errorf("%w: cannot reschedule a %s appointment", ErrInvalidTransition, a.Status)
		}

		oldKey = a.Key()
		newKey := slot.Key{DoctorID: a.DoctorID, Date: date, Time: at}
		if newKey == oldKey {
			return a, nil
		}

		p, err := s.profile(lockCtx, a.DoctorID)
		if err != nil {
			return nil, err
		}
		if !availability.Offers(*p, s.now(), s.avail, date, at) {
			return nil, ErrInvalidSlot
		}

		if err := s.ledger.Claim(lockCtx, newKey); err != nil {
			if errors.Is(err, ledger.ErrSlotConflict) {
				return nil, ErrSlotConflict
			}
			return nil, fmt.Errorf("claim slot: %w", err)
		}

		next := a.clone()
		next.Date, next.Time = date, at
		note := fmt.Sprintf("rescheduled from %s %s", oldKey.Date, oldKey.Time)
		next.record(a.Status, actor.Role, s.now().UTC(), note)

		saved, err := s.save(lockCtx, next)
		if err != nil {
			if !errors.Is(err, ErrSlotConflict) {
				undoCtx, cancel := detached(lockCtx)
				defer cancel()
				s.release(undoCtx, newKey, a.ID, "reschedule_failed")
			}
			return nil, err
		}
		return saved, nil
	})
	if err != nil {
		return nil, err
	}
	if moved.Key() == oldKey {
		return moved, nil
	}

	afterCtx, cancel := detached(ctx)
	defer cancel()

	s.release(afterCtx, oldKey, moved.ID, "rescheduled_away")
	s.logEvent(afterCtx, moved.ID, EventAppointmentRescheduled, map[string]any{
		"from_date": oldKey.Date.String(),
		"from_time": oldKey.Time.String(),
		"to_date":   moved.Date.String(),
		"to_time":   moved.Time.String(),
		"actor":     string(actor.Role),
	})

	return moved, nil
}

// Complete marks a paid appointment as attended. Patients cannot complete.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	completed, err := s.withAppointment(ctx, id, func(lockCtx context.Context, a *Appointment) (*Appointment, error) {
		if err := authorize(actor, a, RoleDoctor); err != nil {
			return nil, err
		}
		if !CanTransition(a.Status, StateCompleted) {
			return nil, transitionError(a.Status, StateCompleted)
		}

		next := a.clone()
		next.record(StateCompleted, actor.Role, s.now().UTC(), "")
		return s.save(lockCtx, next)
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, completed.ID, EventAppointmentCompleted, map[string]any{
		"actor": string(actor.Role),
	})
	return completed, nil
}

// AttachFeedback stores the patient's rating of a completed visit. It can be
// given once.
func (s *Service) AttachFeedback(ctx context.Context, id uuid.UUID, actor Actor, rating int, comment string) (*Appointment, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}
	comment = strings.TrimSpace(comment)

	rated, err := s.withAppointment(ctx, id, func(lockCtx context.Context, a *Appointment) (*Appointment, error) {
		if err := authorize(actor, a, RolePatient); err != nil {
			return nil, err
		}
		if a.Status != StateCompleted {
			return nil, fmt.Errorf("%w: feedback needs a completed appointment, this one is %s", ErrInvalidTransition, a.Status)
		}
		if a.Feedback != nil {
			return nil, ErrFeedbackAlreadySubmitted
		}

		now := s.now().UTC()
		next := a.clone()
		next.Feedback = &Feedback{Rating: rating, Comment: comment, SubmittedAt: now}
		next.UpdatedAt = now
		return s.save(lockCtx, next)
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, rated.ID, EventFeedbackSubmitted, map[string]any{
		"rating": rating,
	})
	return rated, nil
}
