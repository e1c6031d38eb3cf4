package checkout

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/clickcart-checkout/internal/identity"
	"github.com/ariefcatur/clickcart-checkout/internal/orders"
)

// UserSummary is the part of a user shown next to an order in admin views.
type UserSummary struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type OrderWithUser struct {
	orders.Order
	User *UserSummary `json:"user,omitempty"`
}

// UpdateStatus moves an order along the status machine. Exactly one
// status-update notification is sent per applied transition.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, to orders.Status) (o orders.Order, err error) {
	ctx, span := tracer.Start(ctx, "checkout.UpdateStatus", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("status", string(to)),
	))
	defer func() { s.end(span, "update_status", "ok", err) }()

	cur, err := s.Store.ByID(ctx, orderID)
	if err != nil {
		return orders.Order{}, err
	}
	if err := orders.Transition(cur.Status, to); err != nil {
		return orders.Order{}, err
	}
	o, err = s.Store.UpdateStatus(ctx, orderID, cur.Status, to)
	if err != nil {
		return orders.Order{}, err
	}

	s.log().Info("order status updated",
		zap.String("order_id", o.ID), zap.String("from", string(cur.Status)), zap.String("to", string(o.Status)))
	s.notify(ctx, orders.EventOrderStatusUpdated, o, cur.Status)
	return o, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (orders.Order, error) {
	return s.Store.ByID(ctx, orderID)
}

func (s *Service) UserOrders(ctx context.Context, userID string) ([]orders.Order, error) {
	return s.Store.ByUser(ctx, userID)
}

// AllOrders lists every order with its owner. An owner that cannot be
// resolved leaves User nil instead of failing the listing.
func (s *Service) AllOrders(ctx context.Context) ([]OrderWithUser, error) {
	list, err := s.Store.All(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]*UserSummary)
	out := make([]OrderWithUser, 0, len(list))
	for _, o := range list {
		sum, ok := seen[o.UserID]
		if !ok {
			sum = s.summary(ctx, o.UserID)
			seen[o.UserID] = sum
		}
		out = append(out, OrderWithUser{Order: o, User: sum})
	}
	return out, nil
}

func (s *Service) summary(ctx context.Context, userID string) *UserSummary {
	u, err := s.Users.Lookup(ctx, userID)
	if err != nil {
		if !errors.Is(err, identity.ErrUserNotFound) {
			s.log().Warn("user lookup failed", zap.String("user_id", userID), zap.Error(err))
		}
		return nil
	}
	return &UserSummary{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}
