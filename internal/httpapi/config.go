package httpapi

import (
	"errors"
	"net/http"

	"github.com/servilista/servilista/pkg/market"
	"github.com/servilista/servilista/pkg/payments"
)

// Config holds the wiring for the HTTP API.
type Config struct {
	// Gateway performs registration, sign-in and token verification (required).
	Gateway *market.Gateway

	// Catalog is the owner-scoped listing store facade (required).
	Catalog *market.Catalog

	// Guard evaluates the auth/premium decision for guarded routes (required).
	Guard *market.Guard

	// Payments creates checkout sessions and serves the webhook. Optional;
	// without it the checkout and webhook routes answer 503.
	Payments payments.Provider

	// Logger for request-level events. Defaults to NoopLogger.
	Logger market.Logger

	// MetricsHandler serves GET /metrics when set (usually promhttp over
	// the process registry).
	MetricsHandler http.Handler
}

// Validate checks that required dependencies are set.
func (c *Config) Validate() error {
	if c.Gateway == nil {
		return errors.New("httpapi: Gateway is required")
	}
	if c.Catalog == nil {
		return errors.New("httpapi: Catalog is required")
	}
	if c.Guard == nil {
		return errors.New("httpapi: Guard is required")
	}
	if c.Logger == nil {
		c.Logger = &market.NoopLogger{}
	}
	return nil
}
