package auth_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lectio/lectio/client"
	"github.com/stretchr/testify/require"
)

// Literal tokens with exp in 2020 and 2099.
const (
	expiredToken = "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.eyJleHAiOjE2MDAwMDAwMDB9.test"
	validToken   = "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.eyJleHAiOjQwNzA5MDg4MDB9.test"
)

func makeToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	signed, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

// fakeRefresher hands out a new pair per call.
type fakeRefresher struct {
	t       *testing.T
	calls   atomic.Int32
	err     error
	delay   time.Duration
	release chan struct{}

	mu   sync.Mutex
	seen []string
	last *client.TokenResponse
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (*client.TokenResponse, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.seen = append(f.seen, refreshToken)
	f.mu.Unlock()

	if f.release != nil {
		<-f.release
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	resp := &client.TokenResponse{
		AccessToken:  makeToken(f.t, time.Now().Add(time.Hour)),
		RefreshToken: makeToken(f.t, time.Now().Add(24*time.Hour)),
	}
	f.mu.Lock()
	f.last = resp
	f.mu.Unlock()
	return resp, nil
}

func (f *fakeRefresher) issued() *client.TokenResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

// fakeAPI adds account endpoints on top of fakeRefresher.
type fakeAPI struct {
	fakeRefresher
	loginErr    error
	registerErr error
	registered  []client.RegisterRequest
	logins      []string
}

func (f *fakeAPI) Login(ctx context.Context, username, password string) (*client.TokenResponse, error) {
	f.logins = append(f.logins, username)
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &client.TokenResponse{
		AccessToken:  makeToken(f.t, time.Now().Add(time.Hour)),
		RefreshToken: makeToken(f.t, time.Now().Add(24*time.Hour)),
	}, nil
}

func (f *fakeAPI) Register(ctx context.Context, in client.RegisterRequest) (*client.User, error) {
	f.registered = append(f.registered, in)
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	return &client.User{ID: uuid.NewString(), Email: in.Email}, nil
}
