package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/clickcart-checkout/internal/identity"
	kafkax "github.com/ariefcatur/clickcart-checkout/internal/kafka"
	"github.com/ariefcatur/clickcart-checkout/internal/orders"
	"github.com/ariefcatur/clickcart-checkout/internal/redisx"
)

// Claimer dedups event ids across notifier instances.
type Claimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Forget(ctx context.Context, key string) error
}

// Service is the consuming side: it turns notification events into
// messages on every configured channel.
type Service struct {
	Users    identity.Directory
	Claims   Claimer
	Channels []Channel
	Log      *zap.Logger
	Name     string
}

// HandleMessage is installed as the kafka consumer handler.
func (s *Service) HandleMessage(ctx context.Context, m kafkago.Message) error {
	if t := kafkax.Header(m, kafkax.HeaderEventType); t != "" && !notifiable(t) {
		return nil
	}
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		s.Log.Warn("undecodable envelope dropped", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if !notifiable(env.EventType) {
		return nil
	}

	key := fmt.Sprintf(redisx.KeyDedup, s.Name, env.EventID)
	if s.Claims != nil {
		fresh, err := s.Claims.Claim(ctx, key, redisx.TTLDedup)
		if err != nil {
			return fmt.Errorf("dedup claim: %w", err)
		}
		if !fresh {
			return nil
		}
	}

	if err := s.handle(ctx, env); err != nil {
		if s.Claims != nil {
			_ = s.Claims.Forget(ctx, key)
		}
		return err
	}
	return nil
}

func (s *Service) handle(ctx context.Context, env orders.Envelope) error {
	p, err := kafkax.UnwrapPayload[orders.NotificationPayload](env.Payload)
	if err != nil {
		s.Log.Warn("bad payload dropped", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	log := s.Log.With(zap.String("event", env.EventType), zap.String("order_id", p.OrderID))

	u, err := s.Users.Lookup(ctx, p.UserID)
	if errors.Is(err, identity.ErrUserNotFound) {
		log.Warn("recipient unknown, notification dropped", zap.String("user_id", p.UserID))
		return nil
	}
	if err != nil {
		return err
	}

	msg, err := Render(env.EventType, u, p)
	if err != nil {
		log.Warn("render failed", zap.Error(err))
		return nil
	}
	for _, ch := range s.Channels {
		if err := ch.Deliver(ctx, u, msg); err != nil {
			log.Warn("delivery failed", zap.String("channel", ch.Name()), zap.Error(err))
		}
	}
	return nil
}

func notifiable(eventType string) bool {
	return eventType == orders.EventOrderConfirmed || eventType == orders.EventOrderStatusUpdated
}
