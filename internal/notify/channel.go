package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/ariefcatur/clickcart-checkout/internal/identity"
)

// Channel delivers a rendered message to one user over one medium.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, u identity.User, m Message) error
}

// EmailLog records emails in the structured log instead of sending them.
type EmailLog struct{ Log *zap.Logger }

func (EmailLog) Name() string { return "email" }

func (c EmailLog) Deliver(_ context.Context, u identity.User, m Message) error {
	c.Log.Info("email",
		zap.String("to", u.Email), zap.String("subject", m.Subject), zap.String("body", m.Body))
	return nil
}

// SMSLog records text messages in the structured log. Users without a phone
// number are skipped.
type SMSLog struct{ Log *zap.Logger }

func (SMSLog) Name() string { return "sms" }

func (c SMSLog) Deliver(_ context.Context, u identity.User, m Message) error {
	if u.PhoneNumber == "" {
		c.Log.Info("no phone number, sms skipped", zap.String("user", u.Username))
		return nil
	}
	c.Log.Info("sms", zap.String("to", u.PhoneNumber), zap.String("body", m.Short))
	return nil
}
