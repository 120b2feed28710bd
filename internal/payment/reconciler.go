package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
)

type Outcome struct {
	Status      Status
	Transaction *Transaction
	Reason      string
}

func (o Outcome) Confirmed() bool { return o.Status == StatusConfirmed }

func rejected(reason string, tx *Transaction) Outcome {
	return Outcome{Status: StatusRejected, Transaction: tx, Reason: reason}
}

// Expectation is what the engine knows the transaction must match.
type Expectation struct {
	AppointmentID uuid.UUID
	Amount        decimal.Decimal
	Currency      string
}

// Reconciler routes payment calls to the configured providers and turns
// their answers into confirmed/rejected outcomes.
type Reconciler struct {
	providers map[Method]Provider
	timeout   time.Duration
	logger    zerolog.Logger
}

func NewReconciler(timeout time.Duration, logger zerolog.Logger, providers ...Provider) *Reconciler {
	r := &Reconciler{
		providers: make(map[Method]Provider, len(providers)),
		timeout:   timeout,
		logger:    logger.With().Str("component", "payment_reconciler").Logger(),
	}
	for _, p := range providers {
		r.providers[p.Method()] = p
	}
	return r
}

func (r *Reconciler) provider(m Method) (Provider, error) {
	p, ok := r.providers[m]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotEnabled, m)
	}
	return p, nil
}

func (r *Reconciler) CreatePayable(ctx context.Context, m Method, p Payable) (*Session, error) {
	provider, err := r.provider(m)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	sess, err := provider.CreatePayable(callCtx, p)
	if err != nil {
		return nil, fmt.Errorf("create %s payable: %w", m, err)
	}
	return sess, nil
}

// Verify asks the provider for the transaction behind proof and checks it
// against want. Errors, timeouts and mismatches all come back as a rejected
// outcome; the caller may retry later.
func (r *Reconciler) Verify(ctx context.Context, proof Proof, want Expectation) Outcome {
	log := r.logger.With().
		Str("method", string(proof.Method)).
		Str("reference", proof.Reference).
		Str("appointment_id", want.AppointmentID.String()).
		Logger()

	if proof.Reference == "" {
		return rejected(ErrMissingReference.Error(), nil)
	}

	provider, err := r.provider(proof.Method)
	if err != nil {
		return rejected(err.Error(), nil)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := provider.VerifyTransaction(callCtx, proof)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			reason = "payment verification timed out"
		}
		log.Warn().Err(err).Msg("payment verification failed")
		return rejected(reason, nil)
	}

	switch {
	case !tx.Paid:
		return rejected(fmt.Sprintf("transaction is not paid (status %q)", tx.Status), tx)
	case tx.AppointmentID != want.AppointmentID:
		log.Warn().Str("tx_appointment_id", tx.AppointmentID.String()).Msg("transaction belongs to another appointment")
		return rejected("transaction belongs to another appointment", tx)
	case tx.Amount.LessThan(want.Amount):
		return rejected(fmt.Sprintf("paid amount %s is less than %s", tx.Amount, want.Amount), tx)
	case want.Currency != "" && !strings.EqualFold(tx.Currency, want.Currency):
		return rejected(fmt.Sprintf("paid in %s, expected %s", tx.Currency, want.Currency), tx)
	}

	log.Info().Msg("payment verified")
	return Outcome{Status: StatusConfirmed, Transaction: tx}
}
