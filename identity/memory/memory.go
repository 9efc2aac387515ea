// Package memory provides an in-memory implementation of the market.Identity
// interface for tests and local development. Passwords are stored as bcrypt
// hashes; sign-in issues opaque random session tokens.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/servilista/servilista/pkg/market"
)

type account struct {
	uid          string
	email        string
	passwordHash []byte
}

// Identity implements market.Identity using in-memory maps.
type Identity struct {
	mu       sync.RWMutex
	byEmail  map[string]*account
	byUID    map[string]*account
	sessions map[string]string // token -> uid
	nextUID  int
}

// New creates a new in-memory identity adapter.
func New() *Identity {
	return &Identity{
		byEmail:  make(map[string]*account),
		byUID:    make(map[string]*account),
		sessions: make(map[string]string),
	}
}

// Register implements market.Identity.
func (i *Identity) Register(ctx context.Context, email, password string) (*market.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, market.ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if _, exists := i.byEmail[email]; exists {
		return nil, market.ErrEmailInUse
	}

	i.nextUID++
	acc := &account{
		uid:          fmt.Sprintf("uid-%04d", i.nextUID),
		email:        email,
		passwordHash: hash,
	}
	i.byEmail[email] = acc
	i.byUID[acc.uid] = acc

	return &market.User{UID: acc.uid, Email: acc.email}, nil
}

// SignIn implements market.Identity.
func (i *Identity) SignIn(ctx context.Context, email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	i.mu.RLock()
	acc, ok := i.byEmail[email]
	i.mu.RUnlock()
	if !ok {
		return "", market.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(password)); err != nil {
		return "", market.ErrInvalidCredentials
	}

	token, err := newToken()
	if err != nil {
		return "", err
	}

	i.mu.Lock()
	i.sessions[token] = acc.uid
	i.mu.Unlock()
	return token, nil
}

// Verify implements market.Identity.
func (i *Identity) Verify(ctx context.Context, token string) (*market.User, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	uid, ok := i.sessions[token]
	if !ok {
		return nil, market.ErrInvalidCredentials
	}
	acc := i.byUID[uid]
	if acc == nil {
		return nil, market.ErrInvalidCredentials
	}
	return &market.User{UID: acc.uid, Email: acc.email}, nil
}

// Revoke invalidates a session token.
func (i *Identity) Revoke(token string) {
	i.mu.Lock()
	delete(i.sessions, token)
	i.mu.Unlock()
}

func newToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
