package http_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	mw "github.com/servilista/servilista/middleware/http"
	"github.com/servilista/servilista/pkg/market"
	"github.com/servilista/servilista/storage/memory"
)

type tokenIdentity struct{}

func (tokenIdentity) Register(_ context.Context, email, _ string) (*market.User, error) {
	return &market.User{UID: "uid-" + email, Email: email}, nil
}

func (tokenIdentity) SignIn(_ context.Context, email, _ string) (string, error) {
	return "token-" + email, nil
}

func (tokenIdentity) Verify(_ context.Context, token string) (*market.User, error) {
	if len(token) > 6 && token[:6] == "token-" {
		email := token[6:]
		return &market.User{UID: "uid-" + email, Email: email}, nil
	}
	return nil, market.ErrInvalidCredentials
}

func newTestStack(t *testing.T) (*market.Guard, *market.Gateway, *memory.Storage) {
	t.Helper()
	storage := memory.New()
	gateway := market.NewGateway(tokenIdentity{}, storage, nil)
	resolver := market.NewResolver(storage, gateway.Users(), nil)
	t.Cleanup(resolver.Close)
	return market.NewGuard(gateway, resolver), gateway, storage
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_AllowsAuthenticated(t *testing.T) {
	guard, gateway, _ := newTestStack(t)
	route := market.Route{Path: "/services", RequiresAuth: true}

	var seenUser *market.User
	handler := mw.Middleware(mw.Config{Guard: guard, Verify: gateway.Verify}, route)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seenUser, _ = mw.UserFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

	req := httptest.NewRequest(http.MethodGet, "/services", http.NoBody)
	req.Header.Set("Authorization", "Bearer token-a@example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if seenUser == nil || seenUser.UID != "uid-a@example.com" {
		t.Errorf("expected the verified user in context, got %+v", seenUser)
	}
}

func TestMiddleware_DeniesAnonymousWithLoginRedirect(t *testing.T) {
	guard, gateway, _ := newTestStack(t)
	route := market.Route{Path: "/services", RequiresAuth: true}
	handler := mw.Middleware(mw.Config{Guard: guard, Verify: gateway.Verify}, route)(okHandler())

	tests := []struct {
		name   string
		header string
	}{
		{"no credential", ""},
		{"bad token", "Bearer garbage"},
		{"malformed header", "token-a@example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/services", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", w.Code)
			}
			if loc := w.Header().Get("Location"); loc != market.DefaultLoginRoute {
				t.Errorf("expected login redirect, got %q", loc)
			}
		})
	}
}

func TestMiddleware_PremiumGate(t *testing.T) {
	guard, gateway, storage := newTestStack(t)
	route := market.Route{Path: "/services/price", RequiresAuth: true, RequiresPremium: true}
	handler := mw.Middleware(mw.Config{Guard: guard, Verify: gateway.Verify}, route)(okHandler())

	req := func() *http.Request {
		r := httptest.NewRequest(http.MethodPatch, "/services/price", http.NoBody)
		r.Header.Set("Authorization", "Bearer token-p@example.com")
		return r
	}

	// Not premium yet: 402 with the upsell target.
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req())
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != market.DefaultUpsellRoute {
		t.Errorf("expected upsell redirect, got %q", loc)
	}

	// Grant premium; the same request now passes.
	if err := storage.SetPremium(context.Background(), "uid-p@example.com", true, "cus_1", "sub_1"); err != nil {
		t.Fatalf("SetPremium failed: %v", err)
	}
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req())
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 after grant, got %d", w.Code)
	}
}

func TestMiddleware_CustomTokenExtractorAndDenyHook(t *testing.T) {
	guard, gateway, _ := newTestStack(t)
	route := market.Route{Path: "/services", RequiresAuth: true}

	denied := 0
	handler := mw.Middleware(mw.Config{
		Guard:  guard,
		Verify: gateway.Verify,
		GetToken: func(r *http.Request) string {
			return r.URL.Query().Get("token")
		},
		OnDenied: func(w http.ResponseWriter, r *http.Request, d market.Decision) {
			denied++
			w.WriteHeader(http.StatusTeapot)
		},
	}, route)(okHandler())

	// Query-param credential accepted.
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/services?token=token-q@example.com", http.NoBody))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 via query token, got %d", w.Code)
	}

	// Custom deny hook invoked.
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/services", http.NoBody))
	if w.Code != http.StatusTeapot || denied != 1 {
		t.Errorf("expected custom deny hook, got code=%d denied=%d", w.Code, denied)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"standard", "Bearer abc123", "abc123"},
		{"case insensitive scheme", "bearer abc123", "abc123"},
		{"missing header", "", ""},
		{"wrong scheme", "Basic abc123", ""},
		{"scheme only", "Bearer", ""},
		{"padded token", "Bearer  abc123 ", "abc123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			if got := mw.BearerToken(r); got != tt.want {
				t.Errorf("BearerToken() = %q, want %q", got, tt.want)
			}
		})
	}
}
