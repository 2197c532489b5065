package client

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is where a locally running backend serves its API.
const DefaultBaseURL = "http://localhost:8000/api"

// Authorizer attaches credentials to an outgoing request. It may replace
// the request, refresh tokens or fail when no session exists.
type Authorizer interface {
	Authorize(ctx context.Context, req *http.Request) (*http.Request, error)
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, req *http.Request) (*http.Request, error)

func (f AuthorizerFunc) Authorize(ctx context.Context, req *http.Request) (*http.Request, error) {
	return f(ctx, req)
}

// Client talks to the lecture analytics backend.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	retries      int
	retryBackoff time.Duration
	limiter      *rate.Limiter
	uploadLimit  *rate.Limiter

	mu         sync.RWMutex
	authorizer Authorizer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRetries sets how many times a failed GET is retried on transient errors.
// Other methods are never retried.
func WithRetries(n int, backoff time.Duration) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retries = n
		}
		if backoff > 0 {
			c.retryBackoff = backoff
		}
	}
}

// WithRateLimit caps outgoing requests per second. Zero disables the limiter.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithUploadRateLimit caps upload bandwidth in bytes per second.
func WithUploadRateLimit(bytesPerSecond int) Option {
	return func(c *Client) {
		if bytesPerSecond > 0 {
			c.uploadLimit = rate.NewLimiter(rate.Limit(bytesPerSecond), bytesPerSecond)
		}
	}
}

// WithAuthorizer sets the authorizer used for resource endpoints.
func WithAuthorizer(a Authorizer) Option {
	return func(c *Client) { c.authorizer = a }
}

// New creates a Client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		retryBackoff: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// SetAuthorizer installs the authorizer after construction. The gateway
// needs the client for refreshing, so the two are wired in this order.
func (c *Client) SetAuthorizer(a Authorizer) {
	c.mu.Lock()
	c.authorizer = a
	c.mu.Unlock()
}

func (c *Client) currentAuthorizer() Authorizer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authorizer
}
