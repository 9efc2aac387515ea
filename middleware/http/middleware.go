// Package http provides HTTP middleware that enforces the route guard:
// token verification, then the auth/entitlement decision for the guarded
// route. Works with any router that accepts standard net/http middleware
// (chi, gorilla/mux, the stdlib mux).
package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/servilista/servilista/pkg/market"
)

type contextKey struct{ name string }

var userContextKey = &contextKey{"market-user"}

// UserFromContext returns the authenticated user injected by the middleware.
func UserFromContext(ctx context.Context) (*market.User, bool) {
	user, ok := ctx.Value(userContextKey).(*market.User)
	return user, ok && user != nil
}

// WithUser injects a user into the context. Exposed for tests and for
// handlers composed outside this middleware.
func WithUser(ctx context.Context, user *market.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// TokenExtractor pulls the presented credential from a request.
// Return empty string if none is present.
type TokenExtractor func(r *http.Request) string

// Config holds middleware configuration.
type Config struct {
	// Guard evaluates navigation decisions (required).
	Guard *market.Guard

	// Verify validates the presented token (required). Usually
	// Gateway.Verify.
	Verify func(ctx context.Context, token string) (*market.User, error)

	// GetToken extracts the credential. Default: Authorization bearer header.
	GetToken TokenExtractor

	// OnDenied is called when the guard denies the route. If nil, the
	// default answers 401 for login redirects and 402 for upsell
	// redirects, with the redirect target in a Location header so
	// browser-driven clients can follow it.
	OnDenied func(w http.ResponseWriter, r *http.Request, decision market.Decision)
}

// BearerToken extracts a token from "Authorization: Bearer <token>".
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Middleware guards a single route: it verifies the caller, evaluates the
// guard, and either injects the user into the request context or denies.
func Middleware(config Config, route market.Route) func(http.Handler) http.Handler {
	if config.GetToken == nil {
		config.GetToken = BearerToken
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var user *market.User
			if token := config.GetToken(r); token != "" {
				if u, err := config.Verify(ctx, token); err == nil {
					user = u
				}
			}

			decision := config.Guard.CanActivateUser(ctx, user, route)
			if !decision.Allow {
				deny(config, w, r, decision)
				return
			}

			if user != nil {
				r = r.WithContext(WithUser(ctx, user))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func deny(config Config, w http.ResponseWriter, r *http.Request, decision market.Decision) {
	if config.OnDenied != nil {
		config.OnDenied(w, r, decision)
		return
	}
	status := http.StatusUnauthorized
	if decision.Redirect == config.Guard.UpsellRoute {
		status = http.StatusPaymentRequired
	}
	if decision.Redirect != "" {
		w.Header().Set("Location", decision.Redirect)
	}
	http.Error(w, http.StatusText(status), status)
}
