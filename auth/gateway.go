package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/lectio/lectio/client"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Gateway attaches a valid access token to outgoing requests and refreshes
// an expired one. Concurrent callers share a single refresh exchange.
type Gateway struct {
	store     TokenStore
	refresher Refresher
	leeway    time.Duration
	// keepOnTransient keeps the pair when a refresh fails transiently.
	keepOnTransient bool
	group           singleflight.Group
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithLeeway treats access tokens expiring within d as already expired.
func WithLeeway(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d >= 0 {
			g.leeway = d
		}
	}
}

// WithKeepOnTransientFailure keeps the stored pair when a refresh fails
// with a network error, 5xx, 429 or a deadline, and returns that error
// instead of ErrSessionExpired. Off by default: any failed refresh ends
// the session.
func WithKeepOnTransientFailure() GatewayOption {
	return func(g *Gateway) { g.keepOnTransient = true }
}

// NewGateway creates a Gateway over store that refreshes through refresher.
func NewGateway(store TokenStore, refresher Refresher, opts ...GatewayOption) *Gateway {
	g := &Gateway{store: store, refresher: refresher}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authorize implements client.Authorizer. Requests go out unauthenticated
// when no session exists.
func (g *Gateway) Authorize(ctx context.Context, req *http.Request) (*http.Request, error) {
	token, err := g.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// AccessToken returns a usable access token, refreshing if needed.
// It returns "" and no error when there is no session.
func (g *Gateway) AccessToken(ctx context.Context) (string, error) {
	if g.store == nil {
		return "", ErrSessionExpired
	}
	cred, err := g.store.Get(ctx)
	if err != nil {
		return "", err
	}
	if !cred.Complete() {
		return "", nil
	}
	if !ExpiresWithin(cred.AccessToken, g.leeway) {
		return cred.AccessToken, nil
	}
	return g.refresh(ctx, cred.RefreshToken)
}

// refresh joins or starts the exchange keyed by the refresh token the
// caller saw. The exchange runs detached from the caller's cancellation so
// one impatient caller cannot fail the others.
func (g *Gateway) refresh(ctx context.Context, seen string) (string, error) {
	flightCtx := context.WithoutCancel(ctx)
	ch := g.group.DoChan(seen, func() (any, error) {
		return g.exchange(flightCtx, seen)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (g *Gateway) exchange(ctx context.Context, seen string) (string, error) {
	// A previous flight may already have rotated the pair.
	cred, err := g.store.Get(ctx)
	if err != nil {
		return "", err
	}
	if !cred.Complete() {
		return "", ErrSessionExpired
	}
	if cred.RefreshToken != seen && !ExpiresWithin(cred.AccessToken, g.leeway) {
		log.Debug().Msg("Reusing credentials rotated by a concurrent refresh")
		return cred.AccessToken, nil
	}

	log.Info().Msg("Access token expired, refreshing session")
	tokens, err := g.refresher.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		if g.keepOnTransient && (client.IsTransient(err) || errors.Is(err, context.DeadlineExceeded)) {
			log.Warn().Err(err).Msg("Session refresh failed, keeping stored credentials")
			return "", fmt.Errorf("failed to refresh session: %w", err)
		}
		log.Warn().Err(err).Msg("Session refresh failed, clearing stored credentials")
		if clearErr := g.store.Clear(ctx); clearErr != nil {
			log.Error().Err(clearErr).Msg("Failed to clear credentials after failed refresh")
		}
		return "", fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}

	if err := g.store.Set(ctx, tokens.AccessToken, tokens.RefreshToken); err != nil {
		return "", fmt.Errorf("failed to save refreshed credentials: %w", err)
	}
	if exp, err := ExpiresAt(tokens.AccessToken); err == nil {
		log.Info().Time("expires_at", exp).Msg("Session refreshed")
	}
	return tokens.AccessToken, nil
}
