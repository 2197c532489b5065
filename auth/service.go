package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/lectio/lectio/client"
	"github.com/rs/zerolog/log"
)

// Service runs the account flows and owns the gateway for a session.
type Service struct {
	store   TokenStore
	api     Authenticator
	gateway *Gateway
}

// NewService wires a store and the API client into a session service.
func NewService(store TokenStore, api Authenticator, opts ...GatewayOption) *Service {
	return &Service{
		store:   store,
		api:     api,
		gateway: NewGateway(store, api, opts...),
	}
}

// Gateway returns the authorizer to install on the API client.
func (s *Service) Gateway() *Gateway { return s.gateway }

// SignIn exchanges a username and password for a session.
func (s *Service) SignIn(ctx context.Context, username, password string) error {
	tokens, err := s.api.Login(ctx, username, password)
	if err != nil {
		if rejected(err) {
			return fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
		}
		return fmt.Errorf("failed to sign in: %w", err)
	}
	if err := s.store.Set(ctx, tokens.AccessToken, tokens.RefreshToken); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	log.Info().Str("username", username).Msg("Signed in")
	return nil
}

// SignUp registers an account and then signs in with it.
func (s *Service) SignUp(ctx context.Context, in client.RegisterRequest) error {
	if _, err := s.api.Register(ctx, in); err != nil {
		if rejected(err) {
			return fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
		}
		return fmt.Errorf("failed to sign up: %w", err)
	}
	return s.SignIn(ctx, in.Email, in.Password)
}

// Logout drops the stored session.
func (s *Service) Logout(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return err
	}
	log.Info().Msg("Signed out")
	return nil
}

// SessionState is the session as derived from the stored tokens.
type SessionState struct {
	Authenticated    bool
	HasAccessToken   bool
	AccessExpired    bool
	AccessExpiresAt  time.Time
	HasRefreshToken  bool
	RefreshExpiresAt time.Time
}

// State derives the session state. Nothing is fetched from the backend.
func (s *Service) State(ctx context.Context) (SessionState, error) {
	var st SessionState
	cred, err := s.store.Get(ctx)
	if err != nil {
		return st, err
	}
	if cred == nil {
		return st, nil
	}
	if cred.AccessToken != "" {
		st.HasAccessToken = true
		st.AccessExpired = IsExpired(cred.AccessToken)
		st.AccessExpiresAt, _ = ExpiresAt(cred.AccessToken)
	}
	if cred.RefreshToken != "" {
		st.HasRefreshToken = true
		st.RefreshExpiresAt, _ = ExpiresAt(cred.RefreshToken)
	}
	st.Authenticated = (st.HasAccessToken && !st.AccessExpired) || st.HasRefreshToken
	return st, nil
}

// Authenticated reports whether a usable session exists.
func (s *Service) Authenticated(ctx context.Context) bool {
	st, err := s.State(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read session state")
		return false
	}
	return st.Authenticated
}

// rejected reports whether the backend refused the submitted credentials.
func rejected(err error) bool {
	switch client.StatusCode(err) {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden,
		http.StatusConflict, http.StatusUnprocessableEntity:
		return true
	}
	return false
}
