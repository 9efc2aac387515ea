package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/servilista/servilista/pkg/market"
	"github.com/servilista/servilista/pkg/payments/internal"
)

// handleWebhook processes incoming Stripe webhook events. The signature is
// verified against the raw body before anything is parsed or mutated; a
// failed check answers 400 and touches no state.
func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	setSecurityHeaders(w)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if len(p.webhookSecret) == 0 {
		http.Error(w, "webhook not configured", http.StatusServiceUnavailable)
		return
	}

	body, err := internal.ReadBodyStrict(w, r, maxWebhookBodyBytes)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			p.metrics.RecordWebhookError(providerName, "payload_too_large")
		} else {
			http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
			p.metrics.RecordWebhookError(providerName, "invalid_payload")
		}
		return
	}

	sig := r.Header.Get("Stripe-Signature")

	event, err := stripe.ConstructEvent(body, sig, string(p.webhookSecret))
	if err != nil {
		http.Error(w, fmt.Sprintf("webhook signature verification failed: %v", err), http.StatusBadRequest)
		p.metrics.RecordWebhookError(providerName, "auth_failed")
		return
	}

	eventType := string(event.Type)
	if eventType == "" {
		eventType = "UNKNOWN"
	}

	replayed, err := p.consumeEvent(r.Context(), &event)
	if err != nil {
		http.Error(w, "failed to process webhook", http.StatusInternalServerError)
		p.metrics.RecordWebhookEvent(providerName, eventType, "error")
		p.metrics.RecordWebhookError(providerName, "processing_error")
		p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
		return
	}

	writeAck(w)
	if replayed {
		p.metrics.RecordWebhookEvent(providerName, eventType, "ignored")
	} else {
		p.metrics.RecordWebhookEvent(providerName, eventType, "success")
	}
	p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
}

// consumeEvent runs dedup and processing for a signature-verified event.
// Stripe delivers at-least-once; an event id is marked processed only after
// processing succeeds, so a failed delivery answers 500 and the retry of the
// same id is processed rather than acknowledged as a replay. The entitlement
// write is an idempotent overwrite, so the mark is an optimization and a
// failure to record it is harmless.
func (p *Provider) consumeEvent(ctx context.Context, event *stripe.Event) (replayed bool, err error) {
	if p.deduper != nil && event.ID != "" {
		if seen, err := p.deduper.Seen(ctx, event.ID); err == nil && seen {
			return true, nil
		}
	}

	if err := p.processWebhookEvent(ctx, event); err != nil {
		return false, err
	}

	if p.deduper != nil && event.ID != "" {
		if err := p.deduper.MarkProcessed(ctx, event.ID); err != nil {
			p.log.Warn("failed to record processed event id",
				market.F("event", event.ID), market.Err(err))
		}
	}
	return false, nil
}

func (p *Provider) processWebhookEvent(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		return p.handleCheckoutSessionCompleted(ctx, event)
	case "customer.subscription.deleted":
		return p.handleSubscriptionDeleted(ctx, event)
	default:
		// Unrecognized event types are acknowledged and ignored.
		return nil
	}
}

// handleCheckoutSessionCompleted grants premium to the user the session's
// metadata points at, recording the processor's customer and subscription
// ids on the entitlement record.
func (p *Provider) handleCheckoutSessionCompleted(ctx context.Context, event *stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("failed to unmarshal checkout session: %w", err)
	}

	userID := ""
	if session.Metadata != nil {
		userID = session.Metadata[metadataUserIDKey]
	}
	if userID == "" {
		// A session created outside the checkout flow carries no uid, and
		// a retry can never supply one. Acknowledge instead of failing so
		// the processor does not redeliver an unprocessable event.
		p.log.Warn("checkout session completed without uid metadata",
			market.F("session", session.ID))
		return nil
	}

	customerID := ""
	if session.Customer != nil {
		customerID = session.Customer.ID
	}
	subscriptionID := ""
	if session.Subscription != nil {
		subscriptionID = session.Subscription.ID
	}

	if err := p.entitlements.SetPremium(ctx, userID, true, customerID, subscriptionID); err != nil {
		return fmt.Errorf("failed to grant entitlement: %w", err)
	}

	p.metrics.RecordEntitlementChange(providerName, true)
	p.log.Info("entitlement granted",
		market.F("uid", userID),
		market.F("subscription", subscriptionID))
	return nil
}

// handleSubscriptionDeleted revokes premium when the subscription ends. The
// customer id is kept (the Stripe customer still exists); the subscription
// id is cleared.
func (p *Provider) handleSubscriptionDeleted(ctx context.Context, event *stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to unmarshal subscription: %w", err)
	}

	userID := ""
	if sub.Metadata != nil {
		userID = sub.Metadata[metadataUserIDKey]
	}
	if userID == "" {
		// Older subscriptions may lack metadata; fall back to the
		// entitlement record keyed by customer id is not possible here,
		// so acknowledge and ignore.
		p.log.Warn("subscription deleted without uid metadata",
			market.F("subscription", sub.ID))
		return nil
	}

	customerID := ""
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}

	if err := p.entitlements.SetPremium(ctx, userID, false, customerID, ""); err != nil {
		return fmt.Errorf("failed to revoke entitlement: %w", err)
	}

	p.metrics.RecordEntitlementChange(providerName, false)
	p.log.Info("entitlement revoked", market.F("uid", userID))
	return nil
}

func writeAck(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
