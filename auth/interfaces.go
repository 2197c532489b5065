package auth

import (
	"context"

	"github.com/lectio/lectio/client"
)

// TokenStore holds the current credential pair. Both tokens are replaced
// and removed together; a reader never observes half a pair.
type TokenStore interface {
	// Get returns the stored pair, or nil when no session exists.
	Get(ctx context.Context) (*Credential, error)
	// Set atomically replaces the pair.
	Set(ctx context.Context, accessToken, refreshToken string) error
	// Clear atomically removes both tokens.
	Clear(ctx context.Context) error
}

// Refresher exchanges a refresh token for a new credential pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*client.TokenResponse, error)
}

// Authenticator is the subset of the API client used for account flows.
type Authenticator interface {
	Refresher
	Login(ctx context.Context, username, password string) (*client.TokenResponse, error)
	Register(ctx context.Context, in client.RegisterRequest) (*client.User, error)
}
