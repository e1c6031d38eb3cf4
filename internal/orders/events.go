package orders

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderConfirmed     = "OrderConfirmed"
	EventOrderStatusUpdated = "OrderStatusUpdated"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // one of the Event* consts
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"` // e.g. "checkout-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type NotificationItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// NotificationPayload is a self-contained snapshot of the order so the
// notifier never has to read the order tables.
type NotificationPayload struct {
	OrderID         string             `json:"order_id"`
	UserID          string             `json:"user_id"`
	Status          Status             `json:"status"`
	PreviousStatus  Status             `json:"previous_status,omitempty"`
	TotalAmount     decimal.Decimal    `json:"total_amount"`
	ShippingAddress string             `json:"shipping_address,omitempty"`
	Items           []NotificationItem `json:"items,omitempty"`
}

func NewNotificationPayload(o Order, previous Status) NotificationPayload {
	p := NotificationPayload{
		OrderID:         o.ID,
		UserID:          o.UserID,
		Status:          o.Status,
		PreviousStatus:  previous,
		TotalAmount:     o.TotalAmount,
		ShippingAddress: o.ShippingAddress,
	}
	for _, it := range o.Items {
		p.Items = append(p.Items, NotificationItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		})
	}
	return p
}
