package gin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	gongin "github.com/gin-gonic/gin"

	"github.com/servilista/servilista/pkg/market"
	"github.com/servilista/servilista/storage/memory"
)

type stubIdentity struct{}

func (stubIdentity) Register(_ context.Context, email, _ string) (*market.User, error) {
	return &market.User{UID: "uid-" + email, Email: email}, nil
}

func (stubIdentity) SignIn(_ context.Context, email, _ string) (string, error) {
	return "token-" + email, nil
}

func (stubIdentity) Verify(_ context.Context, token string) (*market.User, error) {
	if len(token) > 6 && token[:6] == "token-" {
		email := token[6:]
		return &market.User{UID: "uid-" + email, Email: email}, nil
	}
	return nil, market.ErrInvalidCredentials
}

func setupRouter(t *testing.T, route market.Route) (*gongin.Engine, *memory.Storage) {
	t.Helper()
	gongin.SetMode(gongin.TestMode)

	storage := memory.New()
	gateway := market.NewGateway(stubIdentity{}, storage, nil)
	resolver := market.NewResolver(storage, gateway.Users(), nil)
	t.Cleanup(resolver.Close)
	guard := market.NewGuard(gateway, resolver)

	verify := func(c *gongin.Context, token string) (*market.User, error) {
		return gateway.Verify(c.Request.Context(), token)
	}

	r := gongin.New()
	r.GET("/guarded", Middleware(Config{Guard: guard, Verify: verify}, route),
		func(c *gongin.Context) {
			user, _ := UserFromContext(c)
			uid := ""
			if user != nil {
				uid = user.UID
			}
			c.String(http.StatusOK, uid)
		})
	return r, storage
}

func TestMiddleware_Allows(t *testing.T) {
	r, _ := setupRouter(t, market.Route{RequiresAuth: true})

	req := httptest.NewRequest(http.MethodGet, "/guarded", http.NoBody)
	req.Header.Set("Authorization", "Bearer token-a@example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "uid-a@example.com" {
		t.Errorf("expected user injected into context, got %q", w.Body.String())
	}
}

func TestMiddleware_DeniesAnonymous(t *testing.T) {
	r, _ := setupRouter(t, market.Route{RequiresAuth: true})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/guarded", http.NoBody))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestMiddleware_PremiumGate(t *testing.T) {
	r, storage := setupRouter(t, market.Route{RequiresAuth: true, RequiresPremium: true})

	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/guarded", http.NoBody)
		req.Header.Set("Authorization", "Bearer token-p@example.com")
		return req
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, newReq())
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", w.Code)
	}

	if err := storage.SetPremium(context.Background(), "uid-p@example.com", true, "cus_1", "sub_1"); err != nil {
		t.Fatalf("SetPremium failed: %v", err)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, newReq())
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 after grant, got %d", w.Code)
	}
}
