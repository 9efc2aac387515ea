package stripe

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/servilista/servilista/pkg/market"
	"github.com/servilista/servilista/pkg/payments"
)

// CheckoutSession creates a subscription-mode Stripe Checkout Session for the
// given user and returns the session id. The session metadata carries the uid
// so the webhook can route the completion event back to the entitlement
// record; entitlement itself is only granted by the webhook.
func (p *Provider) CheckoutSession(ctx context.Context, userID, email string) (string, error) {
	startTime := time.Now()

	session, err := p.stripeClient.V1CheckoutSessions.Create(ctx, p.checkoutParams(userID, email))
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/checkout/sessions", "error")
		p.metrics.RecordAPICallDuration(providerName, "/checkout/sessions", time.Since(startTime))
		p.log.Error("checkout session creation failed",
			market.F("uid", userID), market.Err(err))
		return "", fmt.Errorf("%w: %v", payments.ErrProviderAPIError, err)
	}

	p.metrics.RecordAPICall(providerName, "/checkout/sessions", "success")
	p.metrics.RecordAPICallDuration(providerName, "/checkout/sessions", time.Since(startTime))
	p.log.Info("checkout session created",
		market.F("uid", userID), market.F("session", session.ID))

	return session.ID, nil
}

// checkoutParams builds the session request: subscription mode, one line item
// at the fixed price, the uid in metadata for the webhook to read back.
func (p *Provider) checkoutParams(userID, email string) *stripe.CheckoutSessionCreateParams {
	params := &stripe.CheckoutSessionCreateParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(p.priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(p.successURL),
		CancelURL:  stripe.String(p.cancelURL),
		Metadata: map[string]string{
			metadataUserIDKey: userID,
		},
	}

	if email != "" {
		params.CustomerEmail = stripe.String(email)
	}

	// ClientReferenceID links the customer Stripe creates during checkout
	// back to our uid.
	params.ClientReferenceID = stripe.String(userID)
	return params
}
