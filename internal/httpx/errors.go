package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ariefcatur/clickcart-checkout/internal/checkout"
)

var errForbidden = errors.New("forbidden")

type errorBody struct {
	Error           string `json:"error"`
	Code            string `json:"code"`
	AuthorizationID string `json:"authorizationId,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(code string) int {
	switch code {
	case "INVALID_REQUEST", "INVALID_QUANTITY", "INVALID_AMOUNT", "UNKNOWN_STATUS":
		return http.StatusBadRequest
	case "FORBIDDEN":
		return http.StatusForbidden
	case "PRODUCT_NOT_FOUND", "USER_NOT_FOUND", "ORDER_NOT_FOUND", "AUTHORIZATION_NOT_FOUND":
		return http.StatusNotFound
	case "INSUFFICIENT_STOCK", "RESERVATION_IN_FLIGHT", "ILLEGAL_TRANSITION", "STATUS_CONFLICT",
		"AUTHORIZATION_MISMATCH", "AMOUNT_MISMATCH":
		return http.StatusConflict
	case "PAYMENT_NOT_CONFIRMED", "PAYMENT_DECLINED":
		return http.StatusPaymentRequired
	case "GATEWAY_ERROR":
		return http.StatusBadGateway
	case "GATEWAY_TIMEOUT":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *CheckoutHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := checkout.Code(err)
	if errors.Is(err, errForbidden) {
		code = "FORBIDDEN"
	}
	status := statusFor(code)
	body := errorBody{Error: err.Error(), Code: code, AuthorizationID: checkout.AuthorizationID(err)}
	if status >= http.StatusInternalServerError {
		h.log().Error("request failed",
			zap.String("path", r.URL.Path), zap.String("code", code),
			zap.String("authorization_id", body.AuthorizationID), zap.Error(err))
		if code == "INTERNAL" {
			body.Error = "internal error"
		}
	}
	writeJSON(w, status, body)
}
