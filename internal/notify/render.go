package notify

import (
	"fmt"
	"strings"

	"github.com/ariefcatur/clickcart-checkout/internal/identity"
	"github.com/ariefcatur/clickcart-checkout/internal/orders"
)

// Message is channel-neutral notification content.
type Message struct {
	Subject string
	Body    string // long form, email
	Short   string // one line, SMS
}

func Render(eventType string, u identity.User, p orders.NotificationPayload) (Message, error) {
	switch eventType {
	case orders.EventOrderConfirmed:
		return renderConfirmation(u, p), nil
	case orders.EventOrderStatusUpdated:
		return renderStatusUpdate(u, p), nil
	}
	return Message{}, fmt.Errorf("no template for event %q", eventType)
}

func renderConfirmation(u identity.User, p orders.NotificationPayload) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", fullName(u))
	b.WriteString("Thank you for your order! Your order has been confirmed.\n\n")
	b.WriteString("Order Details:\n")
	fmt.Fprintf(&b, "Order ID: %s\n", p.OrderID)
	fmt.Fprintf(&b, "Total Amount: $%s\n", p.TotalAmount.StringFixed(2))
	fmt.Fprintf(&b, "Status: %s\n\n", p.Status)
	b.WriteString("Items Ordered:\n")
	for _, it := range p.Items {
		fmt.Fprintf(&b, "- %s (Qty: %d, Price: $%s)\n", it.ProductName, it.Quantity, it.UnitPrice.StringFixed(2))
	}
	if p.ShippingAddress != "" {
		fmt.Fprintf(&b, "\nShipping Address:\n%s\n", p.ShippingAddress)
	}
	b.WriteString("\nThank you for shopping with ClickCart!\n\nBest regards,\nClickCart Team")

	return Message{
		Subject: "Order Confirmation - ClickCart",
		Body:    b.String(),
		Short: fmt.Sprintf("Hi %s! Your ClickCart order #%s has been confirmed. Total: $%s. Thank you for shopping with us!",
			u.FirstName, p.OrderID, p.TotalAmount.StringFixed(2)),
	}
}

func renderStatusUpdate(u identity.User, p orders.NotificationPayload) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", fullName(u))
	b.WriteString("Your order status has been updated.\n\n")
	fmt.Fprintf(&b, "Order ID: %s\n", p.OrderID)
	fmt.Fprintf(&b, "New Status: %s\n\n", p.Status)
	switch p.Status {
	case orders.StatusShipped:
		b.WriteString("Your order has been shipped and is on its way to you!\n")
	case orders.StatusDelivered:
		b.WriteString("Your order has been delivered. Thank you for your purchase!\n")
	case orders.StatusCancelled:
		b.WriteString("Your order has been cancelled.\n")
	}
	b.WriteString("\nThank you for shopping with ClickCart!\n\nBest regards,\nClickCart Team")

	return Message{
		Subject: "Order Status Update - ClickCart",
		Body:    b.String(),
		Short: fmt.Sprintf("Hi %s! Your ClickCart order #%s status has been updated to: %s. Thank you for shopping with us!",
			u.FirstName, p.OrderID, p.Status),
	}
}

func fullName(u identity.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}
