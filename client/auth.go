package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

// errIncompleteTokens is returned when the backend omits one of the tokens.
var errIncompleteTokens = errors.New("token response is missing access or refresh token")

// Login exchanges a username and password for a credential pair.
// Token endpoints never go through the authorizer.
func (c *Client) Login(ctx context.Context, username, password string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	req, err := c.newRequest(ctx, http.MethodPost, "/token/get-token", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return nil, err
	}
	log.Info().Str("username", username).Msg("Requesting access token")
	return c.tokenRequest(req)
}

// Refresh exchanges a refresh token for a new credential pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	payload, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/token/refresh", bytes.NewReader(payload), "application/json")
	if err != nil {
		return nil, err
	}
	log.Debug().Msg("Refreshing access token")
	return c.tokenRequest(req)
}

func (c *Client) tokenRequest(req *http.Request) (*TokenResponse, error) {
	resp, err := c.sendRequest(req)
	if err != nil {
		return nil, err
	}
	var tokens TokenResponse
	if err := decodeJSON(resp, &tokens); err != nil {
		return nil, err
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		return nil, errIncompleteTokens
	}
	return &tokens, nil
}

// Register creates a new account. It does not sign the user in.
func (c *Client) Register(ctx context.Context, in RegisterRequest) (*User, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to encode registration: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/auth/register", bytes.NewReader(payload), "application/json")
	if err != nil {
		return nil, err
	}
	resp, err := c.sendRequest(req)
	if err != nil {
		return nil, err
	}
	var user User
	if err := decodeJSON(resp, &user); err != nil {
		return nil, err
	}
	log.Info().Str("email", user.Email).Msg("Registered new account")
	return &user, nil
}
