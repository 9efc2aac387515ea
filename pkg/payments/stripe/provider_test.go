package stripe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/servilista/servilista/pkg/payments"
	"github.com/servilista/servilista/storage/memory"
)

const (
	testStripeAPIKey        = "sk_test_1234567890"
	testStripeWebhookSecret = "whsec_test_secret"
	testUserID              = "uid-test-123"
	testCustomerID          = "cus_test_123"
	testSubscriptionID      = "sub_test_123"
	testPriceID             = "price_premium_monthly"
)

func newTestProvider(t *testing.T) (*Provider, *memory.Storage) {
	t.Helper()
	storage := memory.New()
	provider, err := NewProvider(Config{
		Config: payments.Config{
			Entitlements: storage,
			PriceID:      testPriceID,
			SuccessURL:   "http://localhost:4200/success",
			CancelURL:    "http://localhost:4200/cancel",
		},
		StripeAPIKey:        testStripeAPIKey,
		StripeWebhookSecret: testStripeWebhookSecret,
	})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}
	return provider, storage
}

func TestNewProvider_Validation(t *testing.T) {
	storage := memory.New()

	tests := []struct {
		name   string
		config Config
	}{
		{
			name: "missing entitlement store",
			config: Config{
				Config:       payments.Config{PriceID: testPriceID},
				StripeAPIKey: testStripeAPIKey,
			},
		},
		{
			name: "missing api key",
			config: Config{
				Config: payments.Config{Entitlements: storage, PriceID: testPriceID},
			},
		},
		{
			name: "blank api key",
			config: Config{
				Config:       payments.Config{Entitlements: storage, PriceID: testPriceID},
				StripeAPIKey: "   ",
			},
		},
		{
			name: "missing price id",
			config: Config{
				Config:       payments.Config{Entitlements: storage},
				StripeAPIKey: testStripeAPIKey,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewProvider(tt.config); !errors.Is(err, payments.ErrProviderNotConfigured) {
				t.Errorf("expected ErrProviderNotConfigured, got %v", err)
			}
		})
	}
}

func TestProvider_Name(t *testing.T) {
	provider, _ := newTestProvider(t)
	if provider.Name() != providerName {
		t.Errorf("Expected name %s, got %s", providerName, provider.Name())
	}
}

func TestProvider_WebhookHandler(t *testing.T) {
	provider, _ := newTestProvider(t)
	if provider.WebhookHandler() == nil {
		t.Error("Expected webhook handler, got nil")
	}
}

func TestHandleWebhook_MethodNotAllowed(t *testing.T) {
	provider, _ := newTestProvider(t)

	req := httptest.NewRequest(http.MethodGet, "/stripeWebhook", http.NoBody)
	w := httptest.NewRecorder()
	provider.handleWebhook(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status %d, got %d", http.StatusMethodNotAllowed, w.Code)
	}
}

func TestHandleWebhook_NoSecretConfigured(t *testing.T) {
	storage := memory.New()
	provider, err := NewProvider(Config{
		Config: payments.Config{
			Entitlements: storage,
			PriceID:      testPriceID,
		},
		StripeAPIKey:        testStripeAPIKey,
		StripeWebhookSecret: "",
	})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/stripeWebhook", strings.NewReader("{}"))
	w := httptest.NewRecorder()
	provider.handleWebhook(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
}

func TestHandleWebhook_EmptyBody(t *testing.T) {
	provider, _ := newTestProvider(t)

	req := httptest.NewRequest(http.MethodPost, "/stripeWebhook", http.NoBody)
	w := httptest.NewRecorder()
	provider.handleWebhook(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

// An unverifiable signature answers 400 and must not touch entitlement state.
func TestHandleWebhook_InvalidSignature(t *testing.T) {
	provider, storage := newTestProvider(t)
	ctx := context.Background()

	payload := `{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"metadata":{"userId":"` + testUserID + `"}}}}`

	tests := []struct {
		name      string
		signature string
	}{
		{"missing header", ""},
		{"garbage header", "not-a-signature"},
		{"well-formed but wrong", "t=1700000000,v1=deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/stripeWebhook", strings.NewReader(payload))
			if tt.signature != "" {
				req.Header.Set("Stripe-Signature", tt.signature)
			}
			w := httptest.NewRecorder()
			provider.handleWebhook(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
			}
		})
	}

	if _, err := storage.GetEntitlement(ctx, testUserID); err == nil {
		t.Error("rejected webhook must not create entitlement state")
	}
}

func TestHandleWebhook_PayloadTooLarge(t *testing.T) {
	provider, _ := newTestProvider(t)

	big := strings.Repeat("a", maxWebhookBodyBytes+1)
	req := httptest.NewRequest(http.MethodPost, "/stripeWebhook", strings.NewReader(big))
	w := httptest.NewRecorder()
	provider.handleWebhook(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status %d, got %d", http.StatusRequestEntityTooLarge, w.Code)
	}
}
