package devserver

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type tokenType string

const (
	tokenTypeAccess  tokenType = "access"
	tokenTypeRefresh tokenType = "refresh"
)

const issuer = "lectio-devserver"

type claims struct {
	jwt.RegisteredClaims
	TokenType tokenType `json:"token_type"`
}

// tokenManager signs and validates HS256 tokens.
type tokenManager struct {
	signingKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func (m *tokenManager) issue(userID string, typ tokenType) (string, *claims, error) {
	ttl := m.accessTTL
	if typ == tokenTypeRefresh {
		ttl = m.refreshTTL
	}
	now := time.Now()
	c := &claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		TokenType: typ,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.signingKey)
	if err != nil {
		return "", nil, err
	}
	return signed, c, nil
}

func (m *tokenManager) validate(tokenStr string, want tokenType) (*claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.signingKey, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, err
	}
	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if c.TokenType != want {
		return nil, errors.New("invalid token type")
	}
	return c, nil
}
