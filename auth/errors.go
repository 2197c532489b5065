package auth

import "errors"

var (
	// ErrInvalidCredentials means the backend rejected a sign-in or sign-up.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionExpired means the refresh exchange failed definitively and
	// the stored session was cleared. The user has to sign in again.
	ErrSessionExpired = errors.New("session expired, please sign in again")
	// ErrMalformedCredential means a token could not be decoded or carries no exp claim.
	ErrMalformedCredential = errors.New("malformed credential")
	// ErrIncompleteCredential is returned by Set when either token is empty.
	ErrIncompleteCredential = errors.New("credential pair requires both access and refresh token")
)
