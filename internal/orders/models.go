package orders

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrDuplicatePayment means an order is already bound to the payment
	// reference; callers load that order instead of creating another.
	ErrDuplicatePayment = errors.New("order already exists for payment reference")
	ErrInvalidOrder     = errors.New("invalid order")
)

type Order struct {
	ID               string          `json:"id"`
	UserID           string          `json:"userId"`
	Items            []OrderItem     `json:"orderItems"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	Status           Status          `json:"status"`
	PaymentReference string          `json:"stripePaymentIntentId"`
	ShippingAddress  string          `json:"shippingAddress"`
	BillingAddress   string          `json:"billingAddress"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// OrderItem belongs to exactly one order. UnitPrice is the catalog price at
// order time and never changes afterwards.
type OrderItem struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"orderId"`
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	TotalPrice  decimal.Decimal `json:"totalPrice"`
}

func NewItem(productID, productName string, qty int, unitPrice decimal.Decimal) OrderItem {
	return OrderItem{
		ProductID:   productID,
		ProductName: productName,
		Quantity:    qty,
		UnitPrice:   unitPrice,
		TotalPrice:  unitPrice.Mul(decimal.NewFromInt(int64(qty))),
	}
}

// New builds a PROCESSING order whose total is the sum of its items.
func New(userID, paymentRef, shipping, billing string, items ...OrderItem) Order {
	o := Order{
		UserID:           userID,
		Items:            items,
		Status:           StatusProcessing,
		PaymentReference: paymentRef,
		ShippingAddress:  shipping,
		BillingAddress:   billing,
	}
	o.TotalAmount = o.itemsTotal()
	return o
}

func (o Order) itemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.TotalPrice)
	}
	return total
}

// Validate checks the invariants every committed order must hold.
func (o Order) Validate() error {
	if o.UserID == "" {
		return fmt.Errorf("%w: missing user", ErrInvalidOrder)
	}
	if o.PaymentReference == "" {
		return fmt.Errorf("%w: missing payment reference", ErrInvalidOrder)
	}
	if len(o.Items) == 0 {
		return fmt.Errorf("%w: no items", ErrInvalidOrder)
	}
	for _, it := range o.Items {
		if it.Quantity <= 0 {
			return fmt.Errorf("%w: quantity %d for product %s", ErrInvalidOrder, it.Quantity, it.ProductID)
		}
		if !it.TotalPrice.Equal(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))) {
			return fmt.Errorf("%w: line total mismatch for product %s", ErrInvalidOrder, it.ProductID)
		}
	}
	if !o.TotalAmount.Equal(o.itemsTotal()) {
		return fmt.Errorf("%w: total %s != sum of items %s", ErrInvalidOrder, o.TotalAmount, o.itemsTotal())
	}
	return nil
}

func (o Order) clone() Order {
	c := o
	c.Items = append([]OrderItem(nil), o.Items...)
	return c
}
