package checkout

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/clickcart-checkout/internal/identity"
	"github.com/ariefcatur/clickcart-checkout/internal/inventory"
	"github.com/ariefcatur/clickcart-checkout/internal/logx"
	"github.com/ariefcatur/clickcart-checkout/internal/metrics"
	"github.com/ariefcatur/clickcart-checkout/internal/notify"
	"github.com/ariefcatur/clickcart-checkout/internal/orders"
	"github.com/ariefcatur/clickcart-checkout/internal/payment"
)

var tracer = otel.Tracer("github.com/ariefcatur/clickcart-checkout/internal/checkout")

var unregistered = metrics.NewCheckout(nil)

// Notifier accepts notification events without blocking.
type Notifier interface {
	Notify(ev notify.Event)
}

// Service coordinates the gateway, the inventory ledger and the order
// store. Every order it creates has a verified payment behind it.
type Service struct {
	Ledger   inventory.Ledger
	Gateway  payment.Gateway
	Store    orders.Store
	Users    identity.Directory
	Notifier Notifier
	Log      *zap.Logger
	Metrics  *metrics.Checkout
	Currency string
}

type CheckoutRequest struct {
	UserID          string `json:"-"`
	ProductID       string `json:"productId"`
	Quantity        int    `json:"quantity"`
	ShippingAddress string `json:"shippingAddress,omitempty"`
	BillingAddress  string `json:"billingAddress,omitempty"`
}

// Draft is what the client needs to complete payment. Order is a preview:
// it has no id and nothing has been stored or reserved for it.
type Draft struct {
	Authorization payment.Authorization `json:"authorization"`
	Order         orders.Order          `json:"pendingOrder"`
}

// InitiateCheckout authorizes payment for quantity units of a product at
// its current price. Stock is checked but not reserved.
func (s *Service) InitiateCheckout(ctx context.Context, req CheckoutRequest) (d Draft, err error) {
	ctx, span := tracer.Start(ctx, "checkout.InitiateCheckout", trace.WithAttributes(
		attribute.String("product.id", req.ProductID),
		attribute.Int("quantity", req.Quantity),
	))
	defer func() { s.end(span, "initiate", "ok", err) }()

	if req.UserID == "" || strings.TrimSpace(req.ProductID) == "" {
		return Draft{}, fmt.Errorf("%w: user and product are required", ErrInvalidRequest)
	}
	if req.Quantity <= 0 {
		return Draft{}, fmt.Errorf("%w: %d", inventory.ErrInvalidQuantity, req.Quantity)
	}
	if _, err := s.Users.Lookup(ctx, req.UserID); err != nil {
		return Draft{}, err
	}
	p, err := s.Ledger.Product(ctx, req.ProductID)
	if err != nil {
		return Draft{}, err
	}
	if p.StockQuantity < req.Quantity {
		return Draft{}, fmt.Errorf("%w: product %s has %d, requested %d",
			inventory.ErrInsufficientStock, p.ID, p.StockQuantity, req.Quantity)
	}

	amount, err := payment.AmountMinor(p.Price, req.Quantity, s.currency())
	if err != nil {
		return Draft{}, err
	}
	auth, err := s.Gateway.CreateAuthorization(ctx, amount, s.currency(), "Payment for "+p.Name)
	if err != nil {
		return Draft{}, err
	}
	span.SetAttributes(attribute.String("authorization.id", auth.ID))

	d = Draft{
		Authorization: auth,
		Order: orders.New(req.UserID, auth.ID, req.ShippingAddress, req.BillingAddress,
			orders.NewItem(p.ID, p.Name, req.Quantity, p.Price)),
	}
	s.log().Info("checkout initiated",
		zap.String("user_id", req.UserID), zap.String("product_id", p.ID),
		zap.Int("quantity", req.Quantity), zap.String("authorization_id", auth.ID),
		zap.Int64("amount", amount))
	return d, nil
}

// ConfirmPayment confirms an authorization with the gateway.
func (s *Service) ConfirmPayment(ctx context.Context, authorizationID string) (a payment.Authorization, err error) {
	ctx, span := tracer.Start(ctx, "checkout.ConfirmPayment",
		trace.WithAttributes(attribute.String("authorization.id", authorizationID)))
	defer func() { s.end(span, "confirm", "ok", err) }()

	if strings.TrimSpace(authorizationID) == "" {
		return payment.Authorization{}, fmt.Errorf("%w: authorization id is required", ErrInvalidRequest)
	}
	return s.Gateway.Confirm(ctx, authorizationID)
}

func (s *Service) currency() string {
	if s.Currency == "" {
		return "usd"
	}
	return strings.ToLower(s.Currency)
}

func (s *Service) log() *zap.Logger { return logx.OrNop(s.Log) }

func (s *Service) metrics() *metrics.Checkout {
	if s.Metrics == nil {
		return unregistered
	}
	return s.Metrics
}

// end closes span and counts the operation. outcome is used when err is nil.
func (s *Service) end(span trace.Span, op, outcome string, err error) {
	if err != nil {
		outcome = strings.ToLower(Code(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	s.metrics().Outcomes.WithLabelValues(op, outcome).Inc()
	span.End()
}

func (s *Service) notify(ctx context.Context, eventType string, o orders.Order, previous orders.Status) {
	if s.Notifier == nil {
		return
	}
	ev := notify.Event{Type: eventType, Order: o, Previous: previous}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		ev.TraceID = sc.TraceID().String()
	}
	s.Notifier.Notify(ev)
}
