// Package firebase adapts the Firebase Admin SDK to the market.Identity
// interface. Account creation and ID-token verification run server-side;
// password sign-in happens client-side against Firebase, so SignIn reports
// market.ErrNotSupported and callers present the resulting ID token instead.
package firebase

import (
	"context"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/servilista/servilista/pkg/market"
)

// Identity implements market.Identity using Firebase Auth.
type Identity struct {
	client *auth.Client
}

// Config holds Firebase identity configuration.
type Config struct {
	// ProjectID is the Firebase project id.
	ProjectID string

	// CredentialsFile is an optional path to a service-account key file.
	// When empty, application default credentials are used.
	CredentialsFile string
}

// New initializes the Firebase app and its Auth client.
func New(ctx context.Context, config Config) (*Identity, error) {
	var opts []option.ClientOption
	if config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: config.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase auth client: %w", err)
	}
	return &Identity{client: client}, nil
}

// NewWithClient wraps an existing Auth client. Useful for tests against the
// Auth emulator.
func NewWithClient(client *auth.Client) *Identity {
	return &Identity{client: client}
}

// Register implements market.Identity.
func (i *Identity) Register(ctx context.Context, email, password string) (*market.User, error) {
	params := (&auth.UserToCreate{}).
		Email(strings.TrimSpace(email)).
		Password(password)

	record, err := i.client.CreateUser(ctx, params)
	if err != nil {
		if auth.IsEmailAlreadyExists(err) {
			return nil, market.ErrEmailInUse
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return &market.User{UID: record.UID, Email: record.Email}, nil
}

// SignIn implements market.Identity. The Admin SDK cannot exchange passwords
// for tokens; clients authenticate against Firebase directly.
func (i *Identity) SignIn(ctx context.Context, email, password string) (string, error) {
	return "", market.ErrNotSupported
}

// Verify implements market.Identity by validating a Firebase ID token.
func (i *Identity) Verify(ctx context.Context, token string) (*market.User, error) {
	decoded, err := i.client.VerifyIDToken(ctx, token)
	if err != nil {
		return nil, market.ErrInvalidCredentials
	}

	email := ""
	if v, ok := decoded.Claims["email"].(string); ok {
		email = v
	}
	return &market.User{UID: decoded.UID, Email: email}, nil
}
