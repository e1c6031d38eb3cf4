package payment

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
)

var ErrInvalidSecretKey = errors.New("stripe secret key must start with sk_test_ or sk_live_")

type StripeConfig struct {
	SecretKey string
	Timeout   time.Duration
	// BaseURL overrides the API endpoint; empty means api.stripe.com.
	BaseURL string
}

// Stripe is a Gateway backed by Stripe PaymentIntents.
type Stripe struct {
	pi *paymentintent.Client
}

var _ Gateway = (*Stripe)(nil)

func NewStripe(cfg StripeConfig) (*Stripe, error) {
	key := strings.TrimSpace(cfg.SecretKey)
	if !strings.HasPrefix(key, "sk_test_") && !strings.HasPrefix(key, "sk_live_") {
		return nil, ErrInvalidSecretKey
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	bc := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		MaxNetworkRetries: stripe.Int64(0),
	}
	if cfg.BaseURL != "" {
		bc.URL = stripe.String(cfg.BaseURL)
	}
	return &Stripe{
		pi: &paymentintent.Client{B: stripe.GetBackendWithConfig(stripe.APIBackend, bc), Key: key},
	}, nil
}

func (s *Stripe) CreateAuthorization(ctx context.Context, amountMinor int64, currency, description string) (Authorization, error) {
	if amountMinor <= 0 {
		return Authorization{}, fmt.Errorf("%w: %w: %d", ErrGateway, ErrInvalidAmount, amountMinor)
	}
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(amountMinor),
		Currency:    stripe.String(strings.ToLower(currency)),
		Description: stripe.String(description),
	}
	params.Context = ctx

	pi, err := s.pi.New(params)
	if err != nil {
		return Authorization{}, classify("create payment intent", err)
	}
	return toAuthorization(pi), nil
}

func (s *Stripe) Confirm(ctx context.Context, id string) (Authorization, error) {
	params := &stripe.PaymentIntentConfirmParams{}
	params.Context = ctx

	pi, err := s.pi.Confirm(id, params)
	if err != nil {
		return Authorization{}, classify("confirm payment intent "+id, err)
	}
	return toAuthorization(pi), nil
}

func (s *Stripe) Retrieve(ctx context.Context, id string) (Authorization, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := s.pi.Get(id, params)
	if err != nil {
		return Authorization{}, classify("retrieve payment intent "+id, err)
	}
	a := toAuthorization(pi)
	a.ClientSecret = ""
	return a, nil
}

func toAuthorization(pi *stripe.PaymentIntent) Authorization {
	return Authorization{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		AmountMinor:  pi.Amount,
		Currency:     string(pi.Currency),
		Status:       Status(pi.Status),
	}
}

// classify maps transport and API failures onto the package sentinels.
func classify(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		switch {
		case se.Type == stripe.ErrorTypeCard:
			return fmt.Errorf("%w: %w: %s: %s", ErrGateway, ErrPaymentDeclined, op, se.Msg)
		case se.Code == stripe.ErrorCodeResourceMissing:
			return fmt.Errorf("%w: %w: %s", ErrGateway, ErrAuthorizationNotFound, op)
		}
		return fmt.Errorf("%w: %s: %s", ErrGateway, op, se.Msg)
	}

	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %w: %s: %v", ErrGateway, ErrGatewayTimeout, op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrGateway, op, err)
}
