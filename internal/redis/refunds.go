package redisclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/hackgods/doctor-slot-booking/internal/payment"
)

const DefaultRefundStream = "payments:refund-intents"

// RefundStream publishes refund intents to a Redis stream consumed by the
// payment side.
type RefundStream struct {
	client *redis.Client
	stream string
}

func NewRefundStream(client *redis.Client, stream string) *RefundStream {
	if stream == "" {
		stream = DefaultRefundStream
	}
	return &RefundStream{client: client, stream: stream}
}

func (s *RefundStream) RefundRequested(ctx context.Context, intent payment.RefundIntent) error {
	payload, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("marshal refund intent: %w", err)
	}

	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"appointment_id": intent.AppointmentID.String(),
			"payload":        string(payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("publish refund intent: %w", err)
	}
	return nil
}
