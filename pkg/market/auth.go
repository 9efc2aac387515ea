package market

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Identity is the identity-platform capability the gateway wraps.
// identity/firebase adapts the Firebase Admin SDK; identity/memory is a
// self-contained implementation for tests and local development.
type Identity interface {
	// Register creates a new account. Returns ErrEmailInUse for duplicates.
	Register(ctx context.Context, email, password string) (*User, error)

	// SignIn exchanges email/password for an opaque session token.
	// Adapters whose platform performs password sign-in client-side
	// (Firebase) return ErrNotSupported; callers then present a platform
	// token to Verify instead.
	SignIn(ctx context.Context, email, password string) (string, error)

	// Verify validates a token and returns the user it identifies.
	Verify(ctx context.Context, token string) (*User, error)
}

// Gateway wraps the identity platform and exposes the current-user stream
// consumed by the entitlement resolver, the route guard, and the catalog.
type Gateway struct {
	identity Identity
	store    EntitlementStore
	users    *Stream[*User]
	log      Logger

	mu      sync.Mutex
	current *User
}

// NewGateway creates an auth gateway. logger may be nil.
func NewGateway(identity Identity, store EntitlementStore, logger Logger) *Gateway {
	if logger == nil {
		logger = &NoopLogger{}
	}
	g := &Gateway{
		identity: identity,
		store:    store,
		users:    NewStream[*User](),
		log:      logger,
	}
	// Seed the stream so subscribers observe the signed-out state
	// instead of blocking on first read.
	g.users.Publish(nil)
	return g
}

// Users returns the current-user stream. nil means signed out.
func (g *Gateway) Users() *Stream[*User] {
	return g.users
}

// Current returns a snapshot of the signed-in user, or nil.
func (g *Gateway) Current() *User {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// Register creates the account and its entitlement record with
// IsPremium=false. The record is the join target for the entitlement
// resolver; at most one exists per UID.
func (g *Gateway) Register(ctx context.Context, email, password string) (*User, error) {
	user, err := g.identity.Register(ctx, email, password)
	if err != nil {
		return nil, err
	}

	ent := &Entitlement{
		UserID:    user.UID,
		Email:     user.Email,
		IsPremium: false,
		UpdatedAt: time.Now().UTC(),
	}
	if err := g.store.UpsertEntitlement(ctx, ent); err != nil {
		g.log.Error("failed to create entitlement record",
			F("uid", user.UID), Err(err))
		return nil, fmt.Errorf("failed to create entitlement record: %w", err)
	}

	g.log.Info("user registered", F("uid", user.UID))
	return user, nil
}

// SignIn authenticates with email/password and publishes the user.
func (g *Gateway) SignIn(ctx context.Context, email, password string) (string, error) {
	token, err := g.identity.SignIn(ctx, email, password)
	if err != nil {
		return "", err
	}
	user, err := g.identity.Verify(ctx, token)
	if err != nil {
		return "", err
	}
	g.publish(user)
	return token, nil
}

// SignInWithToken verifies a platform-issued token and publishes the user.
func (g *Gateway) SignInWithToken(ctx context.Context, token string) (*User, error) {
	user, err := g.identity.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	g.publish(user)
	return user, nil
}

// Verify validates a token without touching the session stream. Request
// middleware uses this; the stream is for the in-process reactive consumers.
func (g *Gateway) Verify(ctx context.Context, token string) (*User, error) {
	return g.identity.Verify(ctx, token)
}

// SignOut clears the session and publishes nil.
func (g *Gateway) SignOut() {
	g.publish(nil)
	g.log.Info("user signed out")
}

func (g *Gateway) publish(user *User) {
	g.mu.Lock()
	g.current = user
	g.mu.Unlock()
	g.users.Publish(user)
}
