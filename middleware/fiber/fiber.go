// Package fiber provides Fiber middleware for route-guard enforcement.
package fiber

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/servilista/servilista/pkg/market"
)

// ContextUserKey is the fiber locals key the authenticated user is stored
// under.
const ContextUserKey = "market-user"

// TokenExtractor pulls the presented credential from a Fiber context.
// Return empty string if none is present.
type TokenExtractor func(c *fiber.Ctx) string

// Config holds middleware configuration.
type Config struct {
	// Guard evaluates navigation decisions (required).
	Guard *market.Guard

	// Verify validates the presented token (required).
	Verify func(c *fiber.Ctx, token string) (*market.User, error)

	// GetToken extracts the credential. Default: Authorization bearer header.
	GetToken TokenExtractor

	// OnDenied is called when the guard denies the route. If nil, answers
	// 401/402 JSON with the redirect target.
	OnDenied func(c *fiber.Ctx, decision market.Decision) error
}

// UserFromContext returns the authenticated user set by the middleware.
func UserFromContext(c *fiber.Ctx) (*market.User, bool) {
	user, ok := c.Locals(ContextUserKey).(*market.User)
	return user, ok && user != nil
}

// Middleware guards a single route.
func Middleware(config Config, route market.Route) fiber.Handler {
	if config.GetToken == nil {
		config.GetToken = func(c *fiber.Ctx) string {
			h := c.Get("Authorization")
			parts := strings.SplitN(h, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return ""
			}
			return strings.TrimSpace(parts[1])
		}
	}

	return func(c *fiber.Ctx) error {
		var user *market.User
		if token := config.GetToken(c); token != "" {
			if u, err := config.Verify(c, token); err == nil {
				user = u
			}
		}

		decision := config.Guard.CanActivateUser(c.UserContext(), user, route)
		if !decision.Allow {
			if config.OnDenied != nil {
				return config.OnDenied(c, decision)
			}
			status := fiber.StatusUnauthorized
			if decision.Redirect == config.Guard.UpsellRoute {
				status = fiber.StatusPaymentRequired
			}
			return c.Status(status).JSON(fiber.Map{
				"error":    "denied",
				"redirect": decision.Redirect,
			})
		}

		if user != nil {
			c.Locals(ContextUserKey, user)
		}
		return c.Next()
	}
}
