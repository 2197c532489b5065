package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiresAt returns the exp claim of a JWT. The signature is not verified;
// the backend does that. Tokens without exp are malformed.
func ExpiresAt(token string) (time.Time, error) {
	if token == "" {
		return time.Time{}, fmt.Errorf("%w: empty token", ErrMalformedCredential)
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrMalformedCredential, err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("%w: missing exp claim", ErrMalformedCredential)
	}
	return claims.ExpiresAt.Time, nil
}

// IsExpired reports whether token is expired. Undecodable tokens count as expired.
func IsExpired(token string) bool {
	return ExpiresWithin(token, 0)
}

// ExpiresWithin reports whether token expires before now+leeway.
func ExpiresWithin(token string, leeway time.Duration) bool {
	exp, err := ExpiresAt(token)
	if err != nil {
		return true
	}
	return !time.Now().Add(leeway).Before(exp)
}
