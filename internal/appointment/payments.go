package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-slot-booking/internal/payment"
)

// CreatePaymentSession opens a payable at the chosen provider for a booked,
// unpaid appointment and remembers the provider reference on it.
func (s *Service) CreatePaymentSession(ctx context.Context, id uuid.UUID, actor Actor, method payment.Method) (*payment.Session, error) {
	a, err := s.GetAppointment(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, a, RolePatient); err != nil {
		return nil, err
	}
	if a.Status != StateBooked || a.PaymentStatus != PaymentUnpaid {
		return nil, fmt.Errorf("%w: payment needs a booked, unpaid appointment, this one is %s", ErrInvalidTransition, a.Status)
	}

	// The provider call happens outside the appointment lock; it can take
	// longer than the lock lives.
	sess, err := s.payments.CreatePayable(ctx, method, payment.Payable{
		AppointmentID: a.ID,
		Amount:        a.Amount,
		Currency:      a.Currency,
		Description:   fmt.Sprintf("Appointment on %s at %s", a.Date, a.Time),
	})
	if err != nil {
		return nil, err
	}

	_, err = s.withAppointment(ctx, id, func(lockCtx context.Context, cur *Appointment) (*Appointment, error) {
		if cur.Status != StateBooked || cur.PaymentStatus != PaymentUnpaid {
			return nil, transitionError(cur.Status, StatePaid)
		}
		next := cur.clone()
		next.PaymentMethod = sess.Method
		next.PaymentReference = sess.Reference
		next.UpdatedAt = s.now().UTC()
		return s.save(lockCtx, next)
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, id, EventPaymentSessionCreated, map[string]any{
		"method":    string(sess.Method),
		"reference": sess.Reference,
		"amount":    sess.Amount.String(),
		"currency":  sess.Currency,
	})
	return sess, nil
}

// ConfirmPayment verifies proof with the provider and moves a booked
// appointment to paid. A repeated confirmation of a paid appointment returns
// it unchanged. A rejected proof leaves the appointment booked and unpaid.
func (s *Service) ConfirmPayment(ctx context.Context, id uuid.UUID, proof payment.Proof) (*Appointment, error) {
	return s.confirmPayment(ctx, id, proof, true)
}

func (s *Service) confirmPayment(ctx context.Context, id uuid.UUID, proof payment.Proof, recordRejection bool) (*Appointment, error) {
	a, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	switch a.Status {
	case StatePaid:
		return a, nil
	case StateBooked:
	default:
		return nil, transitionError(a.Status, StatePaid)
	}

	if proof.Method == "" {
		proof.Method = a.PaymentMethod
	}
	if proof.Reference == "" {
		proof.Reference = a.PaymentReference
	}

	outcome := s.payments.Verify(ctx, proof, payment.Expectation{
		AppointmentID: a.ID,
		Amount:        a.Amount,
		Currency:      a.Currency,
	})
	if !outcome.Confirmed() {
		if recordRejection {
			s.logEvent(ctx, a.ID, EventPaymentRejected, map[string]any{
				"method":    string(proof.Method),
				"reference": proof.Reference,
				"reason":    outcome.Reason,
			})
		}
		return nil, fmt.Errorf("%w: %s", ErrPaymentVerificationFailed, outcome.Reason)
	}

	var (
		transitioned bool
		cancelled    *Appointment
	)

	paid, err := s.withAppointmentRetry(ctx, id, func(lockCtx context.Context, cur *Appointment) (*Appointment, error) {
		switch cur.Status {
		case StatePaid:
			return cur, nil
		case StateBooked:
		case StateCancelled:
			// cancelled while the provider was being asked
			cancelled = cur
			return nil, transitionError(cur.Status, StatePaid)
		default:
			return nil, transitionError(cur.Status, StatePaid)
		}

		next := cur.clone()
		next.PaymentStatus = PaymentPaid
		next.PaymentMethod = proof.Method
		next.PaymentReference = proof.Reference
		next.record(StatePaid, RoleSystem, s.now().UTC(), "")

		saved, err := s.save(lockCtx, next)
		if err != nil {
			return nil, err
		}
		transitioned = true
		return saved, nil
	})
	if err != nil {
		if cancelled != nil {
			afterCtx, cancel := detached(ctx)
			defer cancel()
			s.requestRefund(afterCtx, cancelled, proof.Method, proof.Reference)
		}
		return nil, err
	}

	if transitioned {
		s.logEvent(ctx, paid.ID, EventPaymentConfirmed, map[string]any{
			"method":    string(proof.Method),
			"reference": proof.Reference,
			"amount":    outcome.Transaction.Amount.String(),
			"currency":  outcome.Transaction.Currency,
		})
	}
	return paid, nil
}

// ReconcilePayments re-verifies booked appointments that already have a
// provider reference and confirms the ones the provider reports as paid.
// It covers lost redirects and webhooks. Returns how many were confirmed.
func (s *Service) ReconcilePayments(ctx context.Context, limit int) (int, error) {
	pending, err := s.repo.FindAwaitingPayment(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("find appointments awaiting payment: %w", err)
	}

	confirmed := 0
	for _, a := range pending {
		if ctx.Err() != nil {
			return confirmed, ctx.Err()
		}

		log := s.logger.With().Str("appointment_id", a.ID.String()).Logger()

		proof := payment.Proof{Method: a.PaymentMethod, Reference: a.PaymentReference}
		_, err := s.confirmPayment(ctx, a.ID, proof, false)
		switch {
		case err == nil:
			confirmed++
			log.Info().Msg("payment reconciled")
		case errors.Is(err, ErrPaymentVerificationFailed):
			log.Debug().Err(err).Msg("payment still outstanding")
		default:
			log.Warn().Err(err).Msg("payment reconciliation failed")
		}
	}

	return confirmed, nil
}

func (s *Service) requestRefund(ctx context.Context, a *Appointment, method payment.Method, reference string) {
	intent := payment.RefundIntent{
		AppointmentID: a.ID,
		Method:        method,
		Reference:     reference,
		Amount:        a.Amount,
		Currency:      a.Currency,
		CancelledBy:   string(a.CancelledBy),
		RequestedAt:   s.now().UTC(),
	}

	s.logEvent(ctx, a.ID, EventRefundRequested, intent)

	if err := s.refunds.RefundRequested(ctx, intent); err != nil {
		s.logger.Error().
			Err(err).
			Str("appointment_id", a.ID.String()).
			Msg("failed to publish refund intent")
	}
}
