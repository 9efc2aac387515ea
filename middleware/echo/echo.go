// Package echo provides Echo middleware for route-guard enforcement.
package echo

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/servilista/servilista/pkg/market"
)

// ContextUserKey is the echo context key the authenticated user is stored
// under.
const ContextUserKey = "market-user"

// TokenExtractor pulls the presented credential from an Echo context.
// Return empty string if none is present.
type TokenExtractor func(c echo.Context) string

// Config holds middleware configuration.
type Config struct {
	// Guard evaluates navigation decisions (required).
	Guard *market.Guard

	// Verify validates the presented token (required).
	Verify func(c echo.Context, token string) (*market.User, error)

	// GetToken extracts the credential. Default: Authorization bearer header.
	GetToken TokenExtractor

	// OnDenied is called when the guard denies the route. If nil, answers
	// 401/402 JSON with the redirect target.
	OnDenied func(c echo.Context, decision market.Decision) error
}

// UserFromContext returns the authenticated user set by the middleware.
func UserFromContext(c echo.Context) (*market.User, bool) {
	user, ok := c.Get(ContextUserKey).(*market.User)
	return user, ok && user != nil
}

// Middleware guards a single route.
func Middleware(config Config, route market.Route) echo.MiddlewareFunc {
	if config.GetToken == nil {
		config.GetToken = func(c echo.Context) string {
			h := c.Request().Header.Get("Authorization")
			parts := strings.SplitN(h, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return ""
			}
			return strings.TrimSpace(parts[1])
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var user *market.User
			if token := config.GetToken(c); token != "" {
				if u, err := config.Verify(c, token); err == nil {
					user = u
				}
			}

			decision := config.Guard.CanActivateUser(c.Request().Context(), user, route)
			if !decision.Allow {
				if config.OnDenied != nil {
					return config.OnDenied(c, decision)
				}
				status := http.StatusUnauthorized
				if decision.Redirect == config.Guard.UpsellRoute {
					status = http.StatusPaymentRequired
				}
				return c.JSON(status, map[string]string{
					"error":    http.StatusText(status),
					"redirect": decision.Redirect,
				})
			}

			if user != nil {
				c.Set(ContextUserKey, user)
			}
			return next(c)
		}
	}
}
