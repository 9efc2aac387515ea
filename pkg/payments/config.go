package payments

import (
	"github.com/servilista/servilista/pkg/market"
)

// Config defines the standard configuration all providers accept.
type Config struct {
	// Entitlements is the store the webhook receiver flips premium flags in.
	Entitlements market.EntitlementStore

	// PriceID is the fixed processor price/plan identifier for the paid tier.
	PriceID string

	// SuccessURL and CancelURL are the fixed, environment-specific client
	// redirect targets for completed and abandoned checkouts.
	SuccessURL string
	CancelURL  string

	// Deduper optionally short-circuits replayed webhook events by id.
	// The entitlement write is an idempotent overwrite either way; the
	// deduper just avoids re-processing. If nil, every delivery is processed.
	Deduper EventDeduper

	// Metrics is an optional metrics collector. If nil, metrics are
	// silently ignored (no-op).
	Metrics Metrics

	// Logger is optional. If nil, logging is a no-op.
	Logger market.Logger
}
