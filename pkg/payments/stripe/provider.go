// Package stripe implements the payments.Provider interface for Stripe:
// subscription-mode checkout sessions and signature-verified webhooks that
// flip the per-user premium entitlement.
package stripe

import (
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/servilista/servilista/pkg/market"
	"github.com/servilista/servilista/pkg/payments"
	"github.com/servilista/servilista/pkg/payments/internal"
)

const (
	providerName             = "stripe"
	defaultRateLimitWindow   = time.Minute
	defaultRateLimitRequests = 100
	maxWebhookBodyBytes      = 256 * 1024

	// metadataUserIDKey links checkout sessions back to the entitlement
	// record; the webhook reads it from the completed session.
	metadataUserIDKey = "userId"
)

// Config extends payments.Config with Stripe-specific options.
type Config struct {
	payments.Config

	StripeAPIKey        string
	StripeWebhookSecret string
}

// Provider implements payments.Provider for Stripe.
type Provider struct {
	entitlements  market.EntitlementStore
	priceID       string
	successURL    string
	cancelURL     string
	webhookSecret []byte
	stripeClient  *stripe.Client
	rateLimiter   *internal.RateLimiter
	deduper       payments.EventDeduper
	metrics       payments.Metrics
	log           market.Logger
}

// NewProvider creates a new Stripe payments provider.
func NewProvider(config Config) (*Provider, error) {
	if config.Entitlements == nil {
		return nil, payments.ErrProviderNotConfigured
	}

	apiKey := strings.TrimSpace(config.StripeAPIKey)
	if apiKey == "" {
		return nil, payments.ErrProviderNotConfigured
	}
	if config.PriceID == "" {
		return nil, payments.ErrProviderNotConfigured
	}

	metrics := config.Metrics
	if metrics == nil {
		metrics = &payments.NoopMetrics{}
	}
	logger := config.Logger
	if logger == nil {
		logger = &market.NoopLogger{}
	}

	return &Provider{
		entitlements:  config.Entitlements,
		priceID:       config.PriceID,
		successURL:    config.SuccessURL,
		cancelURL:     config.CancelURL,
		webhookSecret: []byte(strings.TrimSpace(config.StripeWebhookSecret)),
		stripeClient:  stripe.NewClient(apiKey),
		rateLimiter:   internal.NewRateLimiter(defaultRateLimitRequests, defaultRateLimitWindow),
		deduper:       config.Deduper,
		metrics:       metrics,
		log:           logger,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return providerName
}

// WebhookHandler returns the HTTP handler for Stripe webhooks, wrapped with
// per-IP rate limiting.
func (p *Provider) WebhookHandler() http.Handler {
	return p.rateLimiter.Middleware(http.HandlerFunc(p.handleWebhook))
}
