// Package devserver is an in-memory stand-in for the lecture analytics
// backend. It issues rotating JWT pairs, accepts uploads and walks each
// lecture through a scripted processing progression.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lectio/lectio/client"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// Server holds all backend state in memory.
type Server struct {
	tokens *tokenManager
	script []Stage
	lag    int

	mu       sync.Mutex
	users    map[string]*user // by email
	refresh  map[string]bool  // active refresh token ids
	lectures map[string]*lecture

	refreshCount atomic.Int32
	engine       *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithTokenTTL sets access and refresh token lifetimes.
func WithTokenTTL(access, refresh time.Duration) Option {
	return func(s *Server) {
		if access > 0 {
			s.tokens.accessTTL = access
		}
		if refresh > 0 {
			s.tokens.refreshTTL = refresh
		}
	}
}

// WithScript replaces the progression given to new lectures.
func WithScript(stages ...Stage) Option {
	return func(s *Server) {
		if len(stages) > 0 {
			s.script = stages
		}
	}
}

// WithAnalysisLag makes the analysis endpoint answer 404 for n requests
// after the lecture is done.
func WithAnalysisLag(n int) Option {
	return func(s *Server) {
		if n >= 0 {
			s.lag = n
		}
	}
}

// WithSigningKey sets the HS256 key.
func WithSigningKey(key string) Option {
	return func(s *Server) {
		if key != "" {
			s.tokens.signingKey = []byte(key)
		}
	}
}

// New creates a Server with the default script.
func New(opts ...Option) *Server {
	s := &Server{
		tokens: &tokenManager{
			signingKey: []byte(uuid.NewString()),
			accessTTL:  15 * time.Minute,
			refreshTTL: 7 * 24 * time.Hour,
		},
		script:   DefaultScript,
		users:    make(map[string]*user),
		refresh:  make(map[string]bool),
		lectures: make(map[string]*lecture),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = s.setupRouter()
	return s
}

// Handler returns the HTTP handler serving /api.
func (s *Server) Handler() http.Handler { return s.engine }

// RefreshCount returns how many refresh exchanges succeeded.
func (s *Server) RefreshCount() int { return int(s.refreshCount.Load()) }

// AddUser registers an account directly.
func (s *Server) AddUser(email, password string) (*client.User, error) {
	return s.register(client.RegisterRequest{Email: email, Password: password, Role: "lecturer"})
}

// AddLecture creates a lecture owned by the account with email.
func (s *Server) AddLecture(email, title string) (*client.Lecture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[email]
	if !ok {
		return nil, fmt.Errorf("unknown user %s", email)
	}
	l := s.newLectureLocked(u.ID, title, nil)
	rec := l.record
	return &rec, nil
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Dev backend listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Info().Msg("Shutting down dev backend")
		return srv.Shutdown(shutdownCtx)
	}
}

var errEmailTaken = errors.New("email already registered")

func (s *Server) register(in client.RegisterRequest) (*client.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[in.Email]; exists {
		return nil, errEmailTaken
	}
	role := in.Role
	if role == "" {
		role = "lecturer"
	}
	u := &user{
		User: client.User{
			ID:        uuid.NewString(),
			FirstName: in.FirstName,
			LastName:  in.LastName,
			Email:     in.Email,
			Role:      role,
			CreatedAt: now(),
		},
		passwordHash: hash,
	}
	s.users[in.Email] = u
	return &u.User, nil
}

func (s *Server) authenticate(email, password string) (*user, bool) {
	s.mu.Lock()
	u, ok := s.users[email]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	if bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)) != nil {
		return nil, false
	}
	return u, true
}

// issuePair signs a new pair and records the refresh token as usable.
func (s *Server) issuePair(userID string) (*client.TokenResponse, error) {
	access, _, err := s.tokens.issue(userID, tokenTypeAccess)
	if err != nil {
		return nil, err
	}
	refresh, rc, err := s.tokens.issue(userID, tokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.refresh[rc.ID] = true
	s.mu.Unlock()
	return &client.TokenResponse{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"}, nil
}

// rotate exchanges a refresh token exactly once.
func (s *Server) rotate(refreshToken string) (*client.TokenResponse, error) {
	c, err := s.tokens.validate(refreshToken, tokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	active := s.refresh[c.ID]
	delete(s.refresh, c.ID)
	s.mu.Unlock()
	if !active {
		return nil, errors.New("refresh token already used")
	}
	pair, err := s.issuePair(c.Subject)
	if err != nil {
		return nil, err
	}
	s.refreshCount.Add(1)
	return pair, nil
}

func (s *Server) newLectureLocked(ownerID, title string, subject *string) *lecture {
	id := uuid.NewString()
	l := &lecture{
		ownerID: ownerID,
		script:  s.script,
		lag:     s.lag,
		record: client.Lecture{
			ID:        id,
			Title:     title,
			Subject:   subject,
			Status:    s.script[0].Status,
			Progress:  s.script[0].Progress,
			CreatedAt: now(),
		},
	}
	s.lectures[id] = l
	return l
}
