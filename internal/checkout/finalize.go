package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/clickcart-checkout/internal/inventory"
	"github.com/ariefcatur/clickcart-checkout/internal/orders"
	"github.com/ariefcatur/clickcart-checkout/internal/payment"
)

const (
	releaseTimeout = 5 * time.Second

	// how long a finalize waits on another call holding a reservation for
	// the same authorization, and how often it looks
	inFlightWait = 3 * time.Second
	inFlightPoll = 20 * time.Millisecond
)

type FinalizeRequest struct {
	UserID          string `json:"-"`
	AuthorizationID string `json:"paymentIntentId"`
	ProductID       string `json:"productId"`
	Quantity        int    `json:"quantity"`
	ShippingAddress string `json:"shippingAddress"`
	BillingAddress  string `json:"billingAddress"`
}

func (r FinalizeRequest) validate() error {
	switch {
	case r.UserID == "":
		return fmt.Errorf("%w: user is required", ErrInvalidRequest)
	case strings.TrimSpace(r.AuthorizationID) == "":
		return fmt.Errorf("%w: paymentIntentId is required", ErrInvalidRequest)
	case strings.TrimSpace(r.ProductID) == "":
		return fmt.Errorf("%w: productId is required", ErrInvalidRequest)
	case r.Quantity <= 0:
		return fmt.Errorf("%w: %d", inventory.ErrInvalidQuantity, r.Quantity)
	case strings.TrimSpace(r.ShippingAddress) == "":
		return fmt.Errorf("%w: shippingAddress is required", ErrInvalidRequest)
	case strings.TrimSpace(r.BillingAddress) == "":
		return fmt.Errorf("%w: billingAddress is required", ErrInvalidRequest)
	}
	return nil
}

// FinalizeOrder turns a paid authorization into an order. The gateway is
// asked for the authorization's state; the caller's word is never taken.
//
// Calling it again for the same authorization returns the order created by
// the first call. Failures after validation are *FinalizeError values.
func (s *Service) FinalizeOrder(ctx context.Context, req FinalizeRequest) (o orders.Order, err error) {
	ctx, span := tracer.Start(ctx, "checkout.FinalizeOrder", trace.WithAttributes(
		attribute.String("authorization.id", req.AuthorizationID),
		attribute.String("product.id", req.ProductID),
		attribute.Int("quantity", req.Quantity),
	))
	start := time.Now()
	outcome := "created"
	defer func() {
		s.metrics().FinalizeMS.Observe(float64(time.Since(start).Milliseconds()))
		s.end(span, "finalize", outcome, err)
	}()

	if err := req.validate(); err != nil {
		return orders.Order{}, err
	}

	o, replayed, err := s.finalize(ctx, req)
	if err != nil {
		s.log().Warn("finalize failed",
			zap.String("authorization_id", req.AuthorizationID), zap.String("user_id", req.UserID),
			zap.String("code", Code(err)), zap.Error(err))
		return orders.Order{}, &FinalizeError{AuthorizationID: req.AuthorizationID, Err: err}
	}
	span.SetAttributes(attribute.String("order.id", o.ID), attribute.Bool("replayed", replayed))
	if replayed {
		outcome = "replayed"
		s.log().Info("finalize replayed",
			zap.String("authorization_id", req.AuthorizationID), zap.String("order_id", o.ID))
		return o, nil
	}

	s.log().Info("order created",
		zap.String("order_id", o.ID), zap.String("authorization_id", req.AuthorizationID),
		zap.String("user_id", o.UserID), zap.String("total", o.TotalAmount.StringFixed(2)))
	s.notify(ctx, orders.EventOrderConfirmed, o, "")
	return o, nil
}

func (s *Service) finalize(ctx context.Context, req FinalizeRequest) (orders.Order, bool, error) {
	if o, ok, err := s.existing(ctx, req); err != nil || ok {
		return o, ok, err
	}

	auth, err := s.Gateway.Retrieve(ctx, req.AuthorizationID)
	if err != nil {
		return orders.Order{}, false, fmt.Errorf("verify authorization: %w", err)
	}
	if !auth.Status.Paid() {
		return orders.Order{}, false, fmt.Errorf("%w: status %s", ErrPaymentNotConfirmed, auth.Status)
	}
	if _, err := s.Users.Lookup(ctx, req.UserID); err != nil {
		return orders.Order{}, false, err
	}

	res, done, replayed, err := s.reserve(ctx, req)
	if err != nil || replayed {
		return done, replayed, err
	}

	if err := s.checkAmount(auth, res); err != nil {
		s.release(ctx, res)
		return orders.Order{}, false, err
	}

	o := orders.New(req.UserID, req.AuthorizationID, req.ShippingAddress, req.BillingAddress,
		orders.NewItem(res.ProductID, res.ProductName, res.Quantity, res.UnitPrice))
	if err := s.Store.Create(ctx, &o, res); err != nil {
		s.release(ctx, res)
		if errors.Is(err, orders.ErrDuplicatePayment) {
			existing, ok, lerr := s.existing(ctx, req)
			if lerr != nil {
				return orders.Order{}, false, lerr
			}
			if ok {
				return existing, true, nil
			}
		}
		return orders.Order{}, false, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return o, false, nil
}

// reserve takes stock for req. While another call holds the reservation for
// the same authorization it waits until that call has either stored its
// order, which is returned for replay, or given the stock back.
func (s *Service) reserve(ctx context.Context, req FinalizeRequest) (inventory.Reservation, orders.Order, bool, error) {
	deadline := time.Now().Add(inFlightWait)
	for {
		res, err := s.Ledger.Reserve(ctx, req.AuthorizationID, req.ProductID, req.Quantity)
		if !errors.Is(err, inventory.ErrReservationInFlight) {
			return res, orders.Order{}, false, err
		}
		o, ok, lerr := s.existing(ctx, req)
		if lerr != nil || ok {
			return inventory.Reservation{}, o, ok, lerr
		}
		if time.Now().After(deadline) {
			return inventory.Reservation{}, orders.Order{}, false, err
		}

		t := time.NewTimer(inFlightPoll)
		select {
		case <-ctx.Done():
			t.Stop()
			return inventory.Reservation{}, orders.Order{}, false, ctx.Err()
		case <-t.C:
		}
	}
}

// existing returns the order already bound to the request's authorization.
func (s *Service) existing(ctx context.Context, req FinalizeRequest) (orders.Order, bool, error) {
	o, err := s.Store.ByPaymentReference(ctx, req.AuthorizationID)
	if errors.Is(err, orders.ErrOrderNotFound) {
		return orders.Order{}, false, nil
	}
	if err != nil {
		return orders.Order{}, false, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if o.UserID != req.UserID || len(o.Items) != 1 ||
		o.Items[0].ProductID != req.ProductID || o.Items[0].Quantity != req.Quantity {
		s.log().Warn("authorization bound to a different order",
			zap.String("authorization_id", req.AuthorizationID), zap.String("order_id", o.ID),
			zap.String("order_user_id", o.UserID), zap.String("user_id", req.UserID))
		return orders.Order{}, false, ErrAuthorizationMismatch
	}
	return o, true, nil
}

func (s *Service) checkAmount(auth payment.Authorization, res inventory.Reservation) error {
	want, err := payment.AmountMinor(res.UnitPrice, res.Quantity, s.currency())
	if err != nil {
		return err
	}
	if auth.AmountMinor != want || !strings.EqualFold(auth.Currency, s.currency()) {
		return fmt.Errorf("%w: authorized %d %s, order is %d %s",
			ErrAmountMismatch, auth.AmountMinor, auth.Currency, want, s.currency())
	}
	return nil
}

// release gives back stock for a reservation that will not become an order.
// It runs even when ctx is already cancelled.
func (s *Service) release(ctx context.Context, res inventory.Reservation) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	if err := s.Ledger.Release(ctx, res); err != nil {
		s.metrics().Releases.WithLabelValues("failed").Inc()
		s.log().Error("release reservation failed",
			zap.String("reservation_id", res.ID), zap.String("authorization_id", res.Ref),
			zap.String("product_id", res.ProductID), zap.Int("quantity", res.Quantity), zap.Error(err))
		return
	}
	s.metrics().Releases.WithLabelValues("ok").Inc()
}
