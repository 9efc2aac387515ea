package echo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

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

func setupGuard(t *testing.T) (*market.Guard, *market.Gateway, *memory.Storage) {
	t.Helper()
	storage := memory.New()
	gateway := market.NewGateway(stubIdentity{}, storage, nil)
	resolver := market.NewResolver(storage, gateway.Users(), nil)
	t.Cleanup(resolver.Close)
	return market.NewGuard(gateway, resolver), gateway, storage
}

func setupEcho(guard *market.Guard, gateway *market.Gateway, route market.Route) *echo.Echo {
	e := echo.New()
	verify := func(c echo.Context, token string) (*market.User, error) {
		return gateway.Verify(c.Request().Context(), token)
	}
	e.GET("/guarded", func(c echo.Context) error {
		user, _ := UserFromContext(c)
		uid := ""
		if user != nil {
			uid = user.UID
		}
		return c.String(http.StatusOK, uid)
	}, Middleware(Config{Guard: guard, Verify: verify}, route))
	return e
}

func TestMiddleware_Allows(t *testing.T) {
	guard, gateway, _ := setupGuard(t)
	e := setupEcho(guard, gateway, market.Route{RequiresAuth: true})

	req := httptest.NewRequest(http.MethodGet, "/guarded", http.NoBody)
	req.Header.Set("Authorization", "Bearer token-a@example.com")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "uid-a@example.com" {
		t.Errorf("expected user injected into context, got %q", rec.Body.String())
	}
}

func TestMiddleware_DeniesAnonymous(t *testing.T) {
	guard, gateway, _ := setupGuard(t)
	e := setupEcho(guard, gateway, market.Route{RequiresAuth: true})

	req := httptest.NewRequest(http.MethodGet, "/guarded", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestMiddleware_PremiumGate(t *testing.T) {
	guard, gateway, storage := setupGuard(t)
	e := setupEcho(guard, gateway, market.Route{RequiresAuth: true, RequiresPremium: true})

	req := httptest.NewRequest(http.MethodGet, "/guarded", http.NoBody)
	req.Header.Set("Authorization", "Bearer token-p@example.com")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", rec.Code)
	}

	if err := storage.SetPremium(context.Background(), "uid-p@example.com", true, "cus_1", "sub_1"); err != nil {
		t.Fatalf("SetPremium failed: %v", err)
	}
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/guarded", http.NoBody)
	req.Header.Set("Authorization", "Bearer token-p@example.com")
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 after grant, got %d", rec.Code)
	}
}
