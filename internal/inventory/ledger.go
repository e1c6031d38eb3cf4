package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	// ErrReservationInFlight means ref already holds a reservation that is
	// neither released nor abandoned. No stock was taken.
	ErrReservationInFlight = errors.New("reservation already held for reference")
)

type Product struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stockQuantity"`
}

// Reservation is stock already taken off the counter for ref (the payment
// authorization id). It carries the price seen at reservation time so the
// order line can snapshot it.
type Reservation struct {
	ID          string
	Ref         string
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	CreatedAt   time.Time
}

// Ledger is the only writer of product stock counters.
type Ledger interface {
	Product(ctx context.Context, productID string) (Product, error)
	// Reserve decrements stock by qty or fails with ErrInsufficientStock
	// without touching the counter. A ref holds at most one live
	// (reserved or committed) reservation; a second fails with
	// ErrReservationInFlight.
	Reserve(ctx context.Context, ref, productID string, qty int) (Reservation, error)
	// Release gives a reservation's quantity back. Releasing twice, or
	// releasing a reservation already committed with an order, is a no-op.
	Release(ctx context.Context, r Reservation) error
}
