// Package payments defines the payment-processor boundary: checkout session
// creation and webhook handling. Entitlement state is only ever granted by a
// verified webhook, never by the checkout path.
package payments

import (
	"context"
	"net/http"
)

// Provider is the generic interface a payment backend must implement.
type Provider interface {
	// Name returns the provider name (e.g., "stripe").
	Name() string

	// CheckoutSession creates a subscription-mode checkout session tagged
	// with the caller's uid and returns the session id. It performs no
	// local state mutation.
	CheckoutSession(ctx context.Context, userID, email string) (string, error)

	// WebhookHandler returns the HTTP handler that verifies and processes
	// processor events. Signature verification happens against the raw
	// body before anything else.
	WebhookHandler() http.Handler
}
