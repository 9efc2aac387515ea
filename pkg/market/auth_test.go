package market_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/servilista/servilista/pkg/market"
	"github.com/servilista/servilista/storage/memory"
)

// staticIdentity is a deterministic identity stub: registration always
// succeeds, the token is "token:<uid>", verification reverses it.
type staticIdentity struct {
	registered int
}

func (s *staticIdentity) Register(_ context.Context, email, _ string) (*market.User, error) {
	s.registered++
	uid := fmt.Sprintf("uid-%d", s.registered)
	return &market.User{UID: uid, Email: email}, nil
}

func (s *staticIdentity) SignIn(_ context.Context, email, _ string) (string, error) {
	return "token:" + email, nil
}

func (s *staticIdentity) Verify(_ context.Context, token string) (*market.User, error) {
	if len(token) < 7 || token[:6] != "token:" {
		return nil, market.ErrInvalidCredentials
	}
	email := token[6:]
	return &market.User{UID: "uid-" + email, Email: email}, nil
}

// failingStore rejects every entitlement write.
type failingStore struct {
	market.Storage
}

func (f *failingStore) UpsertEntitlement(context.Context, *market.Entitlement) error {
	return market.ErrStorageUnavailable
}

func TestGateway_RegisterCreatesEntitlementRecord(t *testing.T) {
	ctx := context.Background()
	storage := memory.New()
	gateway := market.NewGateway(&staticIdentity{}, storage, nil)

	user, err := gateway.Register(ctx, "a@example.com", "password123")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	ent, err := storage.GetEntitlement(ctx, user.UID)
	if err != nil {
		t.Fatalf("expected entitlement record for %s: %v", user.UID, err)
	}
	if ent.IsPremium {
		t.Error("new accounts must start without premium")
	}
	if ent.Email != "a@example.com" {
		t.Errorf("entitlement email = %q, want %q", ent.Email, "a@example.com")
	}
}

func TestGateway_RegisterFailsWhenEntitlementWriteFails(t *testing.T) {
	gateway := market.NewGateway(&staticIdentity{}, &failingStore{Storage: memory.New()}, nil)

	_, err := gateway.Register(context.Background(), "a@example.com", "password123")
	if !errors.Is(err, market.ErrStorageUnavailable) {
		t.Errorf("expected storage error to surface, got %v", err)
	}
}

func TestGateway_SignInPublishesUser(t *testing.T) {
	gateway := market.NewGateway(&staticIdentity{}, memory.New(), nil)

	sub := gateway.Users().Subscribe(2)
	defer sub.Cancel()

	// Seed value: signed out.
	if u, ok := sub.Next(); !ok || u != nil {
		t.Fatalf("expected nil seed value, got %v (ok=%v)", u, ok)
	}

	if _, err := gateway.SignIn(context.Background(), "a@example.com", "pw"); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}

	u, ok := sub.Next()
	if !ok || u == nil || u.Email != "a@example.com" {
		t.Fatalf("expected signed-in user on the stream, got %v", u)
	}
	if gateway.Current() == nil {
		t.Error("expected Current to reflect the signed-in user")
	}
}

func TestGateway_SignOutPublishesNil(t *testing.T) {
	gateway := market.NewGateway(&staticIdentity{}, memory.New(), nil)
	ctx := context.Background()

	if _, err := gateway.SignIn(ctx, "a@example.com", "pw"); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	gateway.SignOut()

	if gateway.Current() != nil {
		t.Error("expected nil current user after sign-out")
	}
	if u, ok := gateway.Users().Latest(); !ok || u != nil {
		t.Errorf("expected nil latest stream value, got %v (ok=%v)", u, ok)
	}
}

func TestGateway_SignInWithToken(t *testing.T) {
	gateway := market.NewGateway(&staticIdentity{}, memory.New(), nil)

	user, err := gateway.SignInWithToken(context.Background(), "token:b@example.com")
	if err != nil {
		t.Fatalf("SignInWithToken failed: %v", err)
	}
	if user.Email != "b@example.com" {
		t.Errorf("unexpected user %+v", user)
	}

	if _, err := gateway.SignInWithToken(context.Background(), "garbage"); !errors.Is(err, market.ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestGateway_VerifyDoesNotTouchSession(t *testing.T) {
	gateway := market.NewGateway(&staticIdentity{}, memory.New(), nil)

	if _, err := gateway.Verify(context.Background(), "token:c@example.com"); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if gateway.Current() != nil {
		t.Error("Verify must not establish a session")
	}
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
