package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/clickcart-checkout/internal/checkout"
	"github.com/ariefcatur/clickcart-checkout/internal/logx"
	"github.com/ariefcatur/clickcart-checkout/internal/orders"
)

const maxBody = 1 << 20

type CheckoutHandler struct {
	Svc *checkout.Service
	// Limiter guards the payment routes; nil disables it.
	Limiter *RateLimiter
	Log     *zap.Logger
	// Timeout bounds each request's work; it should exceed the gateway
	// timeout so gateway failures are reported as such.
	Timeout time.Duration
}

type createIntentReq struct {
	ProductID       string `json:"productId"`
	Quantity        int    `json:"quantity"`
	ShippingAddress string `json:"shippingAddress"`
	BillingAddress  string `json:"billingAddress"`
}

type createIntentResp struct {
	ClientSecret    string       `json:"clientSecret"`
	AuthorizationID string       `json:"authorizationId"`
	Amount          int64        `json:"amount"`
	Currency        string       `json:"currency"`
	Status          string       `json:"status"`
	PendingOrder    orders.Order `json:"pendingOrder"`
}

type confirmResp struct {
	AuthorizationID string `json:"authorizationId"`
	Status          string `json:"status"`
}

type updateStatusReq struct {
	Status string `json:"status"`
}

func (h *CheckoutHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(RequireCaller)
		r.Route("/payment", func(r chi.Router) {
			if h.Limiter != nil {
				r.Use(h.Limiter.Middleware)
			}
			r.Post("/create-intent", h.createIntent)
			r.Post("/confirm/{authorizationId}", h.confirm)
		})
		r.Route("/orders", func(r chi.Router) {
			r.Post("/create-from-payment", h.createFromPayment)
			r.Get("/my-orders", h.myOrders)
			r.Get("/admin/all", h.allOrders)
			r.Get("/{id}", h.getOrder)
			r.Put("/{id}/status", h.updateStatus)
		})
	})
}

func (h *CheckoutHandler) log() *zap.Logger { return logx.OrNop(h.Log) }

func (h *CheckoutHandler) ctx(r *http.Request) (context.Context, context.CancelFunc) {
	t := h.Timeout
	if t <= 0 {
		t = 12 * time.Second
	}
	return context.WithTimeout(r.Context(), t)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid json: %v", checkout.ErrInvalidRequest, err)
	}
	return nil
}

func (h *CheckoutHandler) createIntent(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	var req createIntentReq
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx, cancel := h.ctx(r)
	defer cancel()

	d, err := h.Svc.InitiateCheckout(ctx, checkout.CheckoutRequest{
		UserID:          caller.ID,
		ProductID:       req.ProductID,
		Quantity:        req.Quantity,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, createIntentResp{
		ClientSecret:    d.Authorization.ClientSecret,
		AuthorizationID: d.Authorization.ID,
		Amount:          d.Authorization.AmountMinor,
		Currency:        d.Authorization.Currency,
		Status:          string(d.Authorization.Status),
		PendingOrder:    d.Order,
	})
}

func (h *CheckoutHandler) confirm(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r)
	defer cancel()

	a, err := h.Svc.ConfirmPayment(ctx, chi.URLParam(r, "authorizationId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmResp{AuthorizationID: a.ID, Status: string(a.Status)})
}

func (h *CheckoutHandler) createFromPayment(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	var req checkout.FinalizeRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	req.UserID = caller.ID

	ctx, cancel := h.ctx(r)
	defer cancel()

	o, err := h.Svc.FinalizeOrder(ctx, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *CheckoutHandler) myOrders(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	ctx, cancel := h.ctx(r)
	defer cancel()

	list, err := h.Svc.UserOrders(ctx, caller.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *CheckoutHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	ctx, cancel := h.ctx(r)
	defer cancel()

	o, err := h.Svc.GetOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if o.UserID != caller.ID && !caller.IsAdmin() {
		h.writeError(w, r, fmt.Errorf("%w: order belongs to another user", errForbidden))
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *CheckoutHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	if !caller.IsAdmin() {
		h.writeError(w, r, fmt.Errorf("%w: admin only", errForbidden))
		return
	}
	var req updateStatusReq
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	to, err := orders.ParseStatus(req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx, cancel := h.ctx(r)
	defer cancel()

	o, err := h.Svc.UpdateStatus(ctx, chi.URLParam(r, "id"), to)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *CheckoutHandler) allOrders(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	if !caller.IsAdmin() {
		h.writeError(w, r, fmt.Errorf("%w: admin only", errForbidden))
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()

	list, err := h.Svc.AllOrders(ctx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
