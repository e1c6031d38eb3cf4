package checkout

import (
	"errors"
	"fmt"

	"github.com/ariefcatur/clickcart-checkout/internal/identity"
	"github.com/ariefcatur/clickcart-checkout/internal/inventory"
	"github.com/ariefcatur/clickcart-checkout/internal/orders"
	"github.com/ariefcatur/clickcart-checkout/internal/payment"
)

var (
	ErrInvalidRequest = errors.New("invalid checkout request")
	// ErrPaymentNotConfirmed means the gateway reports the authorization as
	// anything other than succeeded.
	ErrPaymentNotConfirmed = errors.New("payment not confirmed")
	// ErrPersistence is a storage failure after stock was reserved. The
	// reservation has been released by the time it is returned.
	ErrPersistence = errors.New("order persistence failed")
	// ErrAuthorizationMismatch means the authorization is already bound to an
	// order for a different user, product or quantity.
	ErrAuthorizationMismatch = errors.New("authorization bound to a different order")
	ErrAmountMismatch        = errors.New("authorized amount does not match order total")
)

// FinalizeError carries the authorization id of a failed finalize so the
// payment can be reconciled.
type FinalizeError struct {
	AuthorizationID string
	Err             error
}

func (e *FinalizeError) Error() string {
	return fmt.Sprintf("finalize authorization %s: %v", e.AuthorizationID, e.Err)
}

func (e *FinalizeError) Unwrap() error { return e.Err }

// AuthorizationID extracts the authorization id from a FinalizeError in
// err's chain.
func AuthorizationID(err error) string {
	var fe *FinalizeError
	if errors.As(err, &fe) {
		return fe.AuthorizationID
	}
	return ""
}

// Code maps err to a stable machine-readable code. Order matters: the more
// specific sentinels are checked before the ones that wrap them.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPersistence):
		return "PERSISTENCE_ERROR"
	case errors.Is(err, ErrInvalidRequest):
		return "INVALID_REQUEST"
	case errors.Is(err, inventory.ErrInvalidQuantity):
		return "INVALID_QUANTITY"
	case errors.Is(err, payment.ErrInvalidAmount):
		return "INVALID_AMOUNT"
	case errors.Is(err, inventory.ErrProductNotFound):
		return "PRODUCT_NOT_FOUND"
	case errors.Is(err, inventory.ErrReservationInFlight):
		return "RESERVATION_IN_FLIGHT"
	case errors.Is(err, inventory.ErrInsufficientStock):
		return "INSUFFICIENT_STOCK"
	case errors.Is(err, identity.ErrUserNotFound):
		return "USER_NOT_FOUND"
	case errors.Is(err, orders.ErrOrderNotFound):
		return "ORDER_NOT_FOUND"
	case errors.Is(err, orders.ErrUnknownStatus):
		return "UNKNOWN_STATUS"
	case errors.Is(err, orders.ErrIllegalTransition):
		return "ILLEGAL_TRANSITION"
	case errors.Is(err, orders.ErrStatusConflict):
		return "STATUS_CONFLICT"
	case errors.Is(err, ErrPaymentNotConfirmed):
		return "PAYMENT_NOT_CONFIRMED"
	case errors.Is(err, ErrAuthorizationMismatch):
		return "AUTHORIZATION_MISMATCH"
	case errors.Is(err, ErrAmountMismatch):
		return "AMOUNT_MISMATCH"
	case errors.Is(err, payment.ErrPaymentDeclined):
		return "PAYMENT_DECLINED"
	case errors.Is(err, payment.ErrAuthorizationNotFound):
		return "AUTHORIZATION_NOT_FOUND"
	case errors.Is(err, payment.ErrGatewayTimeout):
		return "GATEWAY_TIMEOUT"
	case errors.Is(err, payment.ErrGateway):
		return "GATEWAY_ERROR"
	default:
		return "INTERNAL"
	}
}
