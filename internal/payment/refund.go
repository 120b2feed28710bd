package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// RefundIntent asks the payment side to refund a cancelled, paid
// appointment. The engine never issues refunds itself.
type RefundIntent struct {
	AppointmentID uuid.UUID       `json:"appointment_id"`
	Method        Method          `json:"method"`
	Reference     string          `json:"reference"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	CancelledBy   string          `json:"cancelled_by"`
	RequestedAt   time.Time       `json:"requested_at"`
}

type RefundSink interface {
	RefundRequested(ctx context.Context, intent RefundIntent) error
}

// LogRefundSink only records intents in the service log. Used when no
// broker is configured; the event log still carries every intent.
type LogRefundSink struct {
	Logger zerolog.Logger
}

func (s LogRefundSink) RefundRequested(_ context.Context, intent RefundIntent) error {
	s.Logger.Info().
		Str("appointment_id", intent.AppointmentID.String()).
		Str("method", string(intent.Method)).
		Str("reference", intent.Reference).
		Str("amount", intent.Amount.String()).
		Str("currency", intent.Currency).
		Msg("refund requested")
	return nil
}
