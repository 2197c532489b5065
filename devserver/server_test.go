package devserver_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/lectio/lectio/auth"
	"github.com/lectio/lectio/client"
	"github.com/lectio/lectio/devserver"
	"github.com/lectio/lectio/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Past exp, so the gateway must refresh before its first request.
const expiredAccess = "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.eyJleHAiOjE2MDAwMDAwMDB9.test"

type env struct {
	srv     *devserver.Server
	api     *client.Client
	store   *auth.MemoryStore
	service *auth.Service
}

func newEnv(t *testing.T, opts ...devserver.Option) *env {
	t.Helper()
	srv := devserver.New(opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	api := client.New(ts.URL + "/api")
	store := auth.NewMemoryStore()
	service := auth.NewService(store, api)
	api.SetAuthorizer(service.Gateway())
	return &env{srv: srv, api: api, store: store, service: service}
}

func (e *env) signIn(t *testing.T) {
	t.Helper()
	_, err := e.srv.AddUser("ada@example.com", "secret")
	require.NoError(t, err)
	require.NoError(t, e.service.SignIn(context.Background(), "ada@example.com", "secret"))
}

func TestSignInAndListLectures(t *testing.T) {
	e := newEnv(t)
	e.signIn(t)
	_, err := e.srv.AddLecture("ada@example.com", "Intro")
	require.NoError(t, err)

	lectures, err := e.api.ListLectures(context.Background())
	require.NoError(t, err)
	require.Len(t, lectures, 1)
	assert.Equal(t, "Intro", lectures[0].Title)
	assert.Equal(t, client.StatusPending, lectures[0].Status)
}

func TestSignInWrongPassword(t *testing.T) {
	e := newEnv(t)
	_, err := e.srv.AddUser("ada@example.com", "secret")
	require.NoError(t, err)

	err = e.service.SignIn(context.Background(), "ada@example.com", "nope")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestSignUpDuplicateEmail(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	in := client.RegisterRequest{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Password: "secret"}
	require.NoError(t, e.service.SignUp(ctx, in))
	assert.True(t, e.service.Authenticated(ctx))

	err := e.service.SignUp(ctx, in)
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	assert.Contains(t, err.Error(), "Email already registered")
}

func TestUnauthenticatedRequestIsRejected(t *testing.T) {
	e := newEnv(t)
	_, err := e.api.ListLectures(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrUnauthorized)
}

func TestConcurrentExpiredCallsRefreshOnce(t *testing.T) {
	e := newEnv(t)
	e.signIn(t)
	ctx := context.Background()

	cred, err := e.store.Get(ctx)
	require.NoError(t, err)
	r1 := cred.RefreshToken
	require.NoError(t, e.store.Set(ctx, expiredAccess, r1))

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.api.ListLectures(ctx)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, e.srv.RefreshCount())

	cred, err = e.store.Get(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, r1, cred.RefreshToken)
	assert.False(t, auth.IsExpired(cred.AccessToken))
}

func TestReusedRefreshTokenExpiresSession(t *testing.T) {
	e := newEnv(t)
	e.signIn(t)
	ctx := context.Background()

	cred, err := e.store.Get(ctx)
	require.NoError(t, err)
	_, err = e.api.Refresh(ctx, cred.RefreshToken)
	require.NoError(t, err)

	// The stored refresh token was consumed above.
	require.NoError(t, e.store.Set(ctx, expiredAccess, cred.RefreshToken))
	_, err = e.api.ListLectures(ctx)
	require.ErrorIs(t, err, auth.ErrSessionExpired)

	stored, err := e.store.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)
	assert.False(t, e.service.Authenticated(ctx))
}

func TestTrackUploadedLectureToDone(t *testing.T) {
	e := newEnv(t, devserver.WithAnalysisLag(1))
	e.signIn(t)
	ctx := context.Background()

	lecture, err := e.api.UploadLecture(ctx, client.Upload{
		Title: "Intro", Subject: "Math", Filename: "intro.mp4", Body: bytes.NewReader([]byte("video")),
	})
	require.NoError(t, err)
	assert.Equal(t, "Math", *lecture.Subject)

	h, err := tracker.New(e.api, tracker.WithInterval(5*time.Millisecond)).Track(ctx, lecture.ID)
	require.NoError(t, err)
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	st, err := h.Wait(waitCtx)
	require.NoError(t, err)
	assert.Equal(t, client.StatusDone, st.Lecture.Status)
	require.NotNil(t, st.Analysis)
	// pending, processing, done without analysis, done with analysis
	assert.Equal(t, 4, st.Ticks)

	summary, err := st.Analysis.Summary()
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, 1800, summary.FramesAnalyzed)
}

func TestTrackFailedLecture(t *testing.T) {
	e := newEnv(t, devserver.WithScript(
		devserver.Stage{Status: client.StatusProcessing, Progress: 20},
		devserver.Stage{Status: client.StatusError, Progress: 20, Error: "video has no audio track"},
	))
	e.signIn(t)
	lecture, err := e.srv.AddLecture("ada@example.com", "Broken")
	require.NoError(t, err)

	h, err := tracker.New(e.api, tracker.WithInterval(5*time.Millisecond)).Track(context.Background(), lecture.ID)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := h.Wait(ctx)
	require.ErrorIs(t, err, tracker.ErrProcessingFailed)
	assert.Contains(t, err.Error(), "video has no audio track")
	assert.Equal(t, 2, st.Ticks)
}

func TestTrackUnknownLecture(t *testing.T) {
	e := newEnv(t)
	e.signIn(t)

	h, err := tracker.New(e.api, tracker.WithInterval(5*time.Millisecond)).Track(context.Background(), "7f0c7f8e-3c51-4a57-9b11-2a3c4d5e6f70")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = h.Wait(ctx)
	assert.ErrorIs(t, err, tracker.ErrResourceNotFound)
}

func TestHealthz(t *testing.T) {
	ts := httptest.NewServer(devserver.New().Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- devserver.New().ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
