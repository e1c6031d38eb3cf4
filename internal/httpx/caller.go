package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/ariefcatur/clickcart-checkout/internal/identity"
)

// Headers set by the upstream auth gateway after it validated the token.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

type Caller struct {
	ID    string
	Roles []string
}

func (c Caller) IsAdmin() bool {
	for _, r := range c.Roles {
		if strings.EqualFold(strings.TrimPrefix(strings.ToUpper(r), "ROLE_"), identity.RoleAdmin) {
			return true
		}
	}
	return false
}

type callerKey struct{}

func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}

// RequireCaller rejects requests without a user id header with 401.
func RequireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if id == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing " + HeaderUserID, Code: "UNAUTHORIZED"})
			return
		}
		c := Caller{ID: id}
		for _, role := range strings.Split(r.Header.Get(HeaderUserRole), ",") {
			if role = strings.TrimSpace(role); role != "" {
				c.Roles = append(c.Roles, role)
			}
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, c)))
	})
}
