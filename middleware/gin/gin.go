// Package gin provides Gin middleware for route-guard enforcement.
package gin

import (
	"net/http"
	"strings"

	gongin "github.com/gin-gonic/gin"

	"github.com/servilista/servilista/pkg/market"
)

// ContextUserKey is the gin context key the authenticated user is stored
// under.
const ContextUserKey = "market-user"

// TokenExtractor pulls the presented credential from a Gin context.
// Return empty string if none is present.
type TokenExtractor func(c *gongin.Context) string

// Config holds middleware configuration.
type Config struct {
	// Guard evaluates navigation decisions (required).
	Guard *market.Guard

	// Verify validates the presented token (required).
	Verify func(c *gongin.Context, token string) (*market.User, error)

	// GetToken extracts the credential. Default: Authorization bearer header.
	GetToken TokenExtractor

	// OnDenied is called when the guard denies the route. If nil, answers
	// 401/402 JSON with the redirect target.
	OnDenied func(c *gongin.Context, decision market.Decision)
}

// UserFromContext returns the authenticated user set by the middleware.
func UserFromContext(c *gongin.Context) (*market.User, bool) {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*market.User)
	return user, ok && user != nil
}

// Middleware guards a single route.
func Middleware(config Config, route market.Route) gongin.HandlerFunc {
	if config.GetToken == nil {
		config.GetToken = func(c *gongin.Context) string {
			h := c.GetHeader("Authorization")
			parts := strings.SplitN(h, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return ""
			}
			return strings.TrimSpace(parts[1])
		}
	}

	return func(c *gongin.Context) {
		var user *market.User
		if token := config.GetToken(c); token != "" {
			if u, err := config.Verify(c, token); err == nil {
				user = u
			}
		}

		decision := config.Guard.CanActivateUser(c.Request.Context(), user, route)
		if !decision.Allow {
			if config.OnDenied != nil {
				config.OnDenied(c, decision)
				c.Abort()
				return
			}
			status := http.StatusUnauthorized
			if decision.Redirect == config.Guard.UpsellRoute {
				status = http.StatusPaymentRequired
			}
			c.AbortWithStatusJSON(status, gongin.H{
				"error":    http.StatusText(status),
				"redirect": decision.Redirect,
			})
			return
		}

		if user != nil {
			c.Set(ContextUserKey, user)
		}
		c.Next()
	}
}
