package auth_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/lectio/lectio/auth"
	"github.com/lectio/lectio/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRequest(t *testing.T) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, "http://backend/api/lectures", nil)
	require.NoError(t, err)
	return req
}

func TestGateway_FreshTokenIsAttached(t *testing.T) {
	ctx := context.Background()
	store := auth.NewMemoryStore()
	access := makeToken(t, time.Now().Add(time.Hour))
	require.NoError(t, store.Set(ctx, access, "R"))
	refresher := &fakeRefresher{t: t}

	req, err := auth.NewGateway(store, refresher).Authorize(ctx, newRequest(t))
	require.NoError(t, err)
	assert.Equal(t, "Bearer "+access, req.Header.Get("Authorization"))
	assert.Equal(t, int32(0), refresher.calls.Load())
}

func TestGateway_NoSessionSendsUnauthenticated(t *testing.T) {
	refresher := &fakeRefresher{t: t}
	req, err := auth.NewGateway(auth.NewMemoryStore(), refresher).Authorize(context.Background(), newRequest(t))
	require.NoError(t, err)
	assert.Empty(t, req.Header.Get("Authorization"))
	assert.Equal(t, int32(0), refresher.calls.Load())
}

func TestGateway_NilStore(t *testing.T) {
	_, err := auth.NewGateway(nil, &fakeRefresher{t: t}).Authorize(context.Background(), newRequest(t))
	assert.ErrorIs(t, err, auth.ErrSessionExpired)
}

func TestGateway_RefreshRotatesPair(t *testing.T) {
	ctx := context.Background()
	store := auth.NewMemoryStore()
	require.NoError(t, store.Set(ctx, expiredToken, "R1"))
	refresher := &fakeRefresher{t: t}

	req, err := auth.NewGateway(store, refresher).Authorize(ctx, newRequest(t))
	require.NoError(t, err)

	issued := refresher.issued()
	require.NotNil(t, issued)
	assert.Equal(t, "Bearer "+issued.AccessToken, req.Header.Get("Authorization"))
	assert.Equal(t, []string{"R1"}, refresher.seen)

	cred, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, issued.AccessToken, cred.AccessToken)
	assert.Equal(t, issued.RefreshToken, cred.RefreshToken)
}

func TestGateway_ConcurrentCallersShareOneRefresh(t *testing.T) {
	ctx := context.Background()
	store := auth.NewMemoryStore()
	require.NoError(t, store.Set(ctx, expiredToken, "R1"))
	refresher := &fakeRefresher{t: t, delay: 50 * time.Millisecond}
	gw := auth.NewGateway(store, refresher)

	const callers = 10
	tokens := make([]string, callers)
	errs := make([]error, callers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			tokens[i], errs[i] = gw.AccessToken(ctx)
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), refresher.calls.Load())
	issued := refresher.issued()
	require.NotNil(t, issued)
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, issued.AccessToken, tokens[i])
	}

	cred, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, issued.AccessToken, cred.AccessToken)
	assert.Equal(t, issued.RefreshToken, cred.RefreshToken)
}

func TestGateway_StaleCallerReusesRotatedPair(t *testing.T) {
	ctx := context.Background()
	store := auth.NewMemoryStore()
	fresh := makeToken(t, time.Now().Add(time.Hour))
	require.NoError(t, store.Set(ctx, fresh, "R2"))
	refresher := &fakeRefresher{t: t}

	// The caller saw R1 before another flight rotated it to R2.
	gw := auth.NewGateway(store, refresher)
	tok, err := auth.RefreshForTest(ctx, gw, "R1")
	require.NoError(t, err)
	assert.Equal(t, fresh, tok)
	assert.Equal(t, int32(0), refresher.calls.Load())
}

func TestGateway_CancelledWaiterDoesNotCancelRefresh(t *testing.T) {
	store := auth.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), expiredToken, "R1"))
	refresher := &fakeRefresher{t: t, release: make(chan struct{})}
	gw := auth.NewGateway(store, refresher)

	ctx, cancel := context.WithCancel(context.Background())
	impatient := make(chan error, 1)
	go func() {
		_, err := gw.AccessToken(ctx)
		impatient <- err
	}()

	require.Eventually(t, func() bool { return refresher.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-impatient, context.Canceled)

	patient := make(chan string, 1)
	go func() {
		tok, _ := gw.AccessToken(context.Background())
		patient <- tok
	}()
	close(refresher.release)

	tok := <-patient
	issued := refresher.issued()
	require.NotNil(t, issued)
	assert.Equal(t, issued.AccessToken, tok)
	assert.Equal(t, int32(1), refresher.calls.Load())
}

func TestGateway_RejectedRefreshClearsStore(t *testing.T) {
	ctx := context.Background()
	store := auth.NewMemoryStore()
	require.NoError(t, store.Set(ctx, expiredToken, "R1"))
	refresher := &fakeRefresher{t: t, err: &client.HTTPError{StatusCode: http.StatusUnauthorized, Detail: "Invalid refresh token"}}

	_, err := auth.NewGateway(store, refresher).Authorize(ctx, newRequest(t))
	require.ErrorIs(t, err, auth.ErrSessionExpired)
	assert.Equal(t, http.StatusUnauthorized, client.StatusCode(err))

	cred, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestGateway_TransientRefreshFailureClearsStore(t *testing.T) {
	failures := []error{
		&client.NetworkError{Method: "POST", URL: "http://backend", Err: errors.New("connection refused")},
		&client.HTTPError{StatusCode: http.StatusBadGateway},
		&client.HTTPError{StatusCode: http.StatusTooManyRequests},
	}
	for _, failure := range failures {
		t.Run(failure.Error(), func(t *testing.T) {
			ctx := context.Background()
			store := auth.NewMemoryStore()
			require.NoError(t, store.Set(ctx, expiredToken, "R1"))
			refresher := &fakeRefresher{t: t, err: failure}

			_, err := auth.NewGateway(store, refresher).Authorize(ctx, newRequest(t))
			require.ErrorIs(t, err, auth.ErrSessionExpired)
			assert.ErrorIs(t, err, failure)

			cred, err := store.Get(ctx)
			require.NoError(t, err)
			assert.Nil(t, cred)
		})
	}
}

func TestGateway_KeepOnTransientFailureOption(t *testing.T) {
	ctx := context.Background()
	store := auth.NewMemoryStore()
	require.NoError(t, store.Set(ctx, expiredToken, "R1"))
	refresher := &fakeRefresher{t: t, err: &client.HTTPError{StatusCode: http.StatusBadGateway}}
	gw := auth.NewGateway(store, refresher, auth.WithKeepOnTransientFailure())

	_, err := gw.Authorize(ctx, newRequest(t))
	require.Error(t, err)
	assert.NotErrorIs(t, err, auth.ErrSessionExpired)
	assert.True(t, client.IsTransient(err))

	cred, err := store.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "R1", cred.RefreshToken)

	// Rejections still end the session with the option set.
	refresher.err = &client.HTTPError{StatusCode: http.StatusUnauthorized}
	_, err = gw.Authorize(ctx, newRequest(t))
	require.ErrorIs(t, err, auth.ErrSessionExpired)
	cred, err = store.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestGateway_LeewayRefreshesEarly(t *testing.T) {
	ctx := context.Background()
	store := auth.NewMemoryStore()
	require.NoError(t, store.Set(ctx, makeToken(t, time.Now().Add(10*time.Second)), "R1"))
	refresher := &fakeRefresher{t: t}

	_, err := auth.NewGateway(store, refresher, auth.WithLeeway(time.Minute)).AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), refresher.calls.Load())
}
