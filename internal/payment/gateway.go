package payment

import (
	"context"
	"errors"
)

type Status string

const (
	StatusRequiresPaymentMethod Status = "requires_payment_method"
	StatusRequiresConfirmation  Status = "requires_confirmation"
	StatusRequiresAction        Status = "requires_action"
	StatusProcessing            Status = "processing"
	StatusSucceeded             Status = "succeeded"
	StatusCanceled              Status = "canceled"
	StatusFailed                Status = "failed"
)

// Paid reports whether funds for the authorization are secured.
func (s Status) Paid() bool { return s == StatusSucceeded }

var (
	// ErrGateway is wrapped by every failure coming out of a Gateway.
	ErrGateway = errors.New("payment gateway error")
	// ErrGatewayTimeout means the gateway could not be reached in time; the
	// authorization state is unknown rather than failed.
	ErrGatewayTimeout = errors.New("payment gateway timeout")
	// ErrPaymentDeclined is an explicit refusal by the gateway.
	ErrPaymentDeclined       = errors.New("payment declined")
	ErrAuthorizationNotFound = errors.New("payment authorization not found")
	ErrInvalidAmount         = errors.New("invalid payment amount")
)

type Authorization struct {
	ID           string `json:"id"`
	ClientSecret string `json:"clientSecret,omitempty"`
	AmountMinor  int64  `json:"amount"`
	Currency     string `json:"currency"`
	Status       Status `json:"status"`
}

// Gateway wraps the external payment API. It is the only source of truth
// for whether an authorization is paid.
type Gateway interface {
	CreateAuthorization(ctx context.Context, amountMinor int64, currency, description string) (Authorization, error)
	Confirm(ctx context.Context, id string) (Authorization, error)
	// Retrieve is read-only; it reports the gateway's current view of the
	// authorization, status and amount included.
	Retrieve(ctx context.Context, id string) (Authorization, error)
}
