package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/clickcart-checkout/internal/kafka"
	"github.com/ariefcatur/clickcart-checkout/internal/orders"
)

// KafkaPublisher writes notification envelopes to the notifications topic.
type KafkaPublisher struct {
	Producer *kafkax.Producer
	Service  string
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	env := Envelope(ev, p.Service)
	return p.Producer.Publish(ctx, orders.PartitionKey(ev.Order.ID), kafkax.MustMarshal(env),
		kafkax.EventHeaders(env.EventType, env.EventVersion)...)
}

// Envelope wraps ev in the v1 event envelope.
func Envelope(ev Event, producer string) orders.Envelope {
	return orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     ev.Type,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       ev.TraceID,
		CorrelationID: ev.Order.ID,
		Payload:       kafkax.MustMarshal(orders.NewNotificationPayload(ev.Order, ev.Previous)),
	}
}

// LogPublisher writes events to the log instead of a broker. It backs the
// self-contained sandbox mode.
type LogPublisher struct{ Log *zap.Logger }

func (p LogPublisher) Publish(_ context.Context, ev Event) error {
	p.Log.Info("notification",
		zap.String("event", ev.Type), zap.String("order_id", ev.Order.ID),
		zap.String("user_id", ev.Order.UserID), zap.String("status", string(ev.Order.Status)),
		zap.String("previous", string(ev.Previous)))
	return nil
}
