package orders

import (
	"context"

	"github.com/ariefcatur/clickcart-checkout/internal/inventory"
)

// Store persists orders with their items. Create commits the order, its
// items and the given stock reservations as one unit.
type Store interface {
	Create(ctx context.Context, o *Order, reservations ...inventory.Reservation) error
	ByID(ctx context.Context, id string) (Order, error)
	ByUser(ctx context.Context, userID string) ([]Order, error)
	ByPaymentReference(ctx context.Context, ref string) (Order, error)
	All(ctx context.Context) ([]Order, error)
	// UpdateStatus moves the order from -> to only if it is still in from.
	UpdateStatus(ctx context.Context, id string, from, to Status) (Order, error)
}
