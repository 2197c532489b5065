package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// maxErrorBody bounds how much of a failed response is read for its detail.
const maxErrorBody = 64 << 10

// newRequest builds a request against the API root.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	urlStr := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		log.Error().Err(err).Str("method", method).Str("url", urlStr).Msg("Failed to create HTTP request object")
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

// sendAuthorized lets the authorizer decorate req, then sends it.
func (c *Client) sendAuthorized(req *http.Request) (*http.Response, error) {
	if a := c.currentAuthorizer(); a != nil {
		authorized, err := a.Authorize(req.Context(), req)
		if err != nil {
			return nil, err
		}
		req = authorized
	}
	return c.sendRequest(req)
}

// sendRequest sends req and converts any non-2xx status into an *HTTPError.
// GET requests are retried with exponential backoff on transient failures.
func (c *Client) sendRequest(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	attempts := 1
	if req.Method == http.MethodGet {
		attempts += c.retries
	}
	backoff := c.retryBackoff

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			log.Warn().Err(lastErr).Str("url", req.URL.String()).Int("attempt", attempt).Dur("backoff", backoff).Msg("Retrying HTTP request")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		log.Debug().Str("method", req.Method).Str("url", req.URL.String()).Msg("Sending HTTP request")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			lastErr = &NetworkError{Method: req.Method, URL: req.URL.String(), Err: err}
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			log.Debug().Str("method", req.Method).Str("url", req.URL.String()).Int("status", resp.StatusCode).Msg("HTTP request successful")
			return resp, nil
		}

		httpErr := newHTTPError(req, resp)
		lastErr = httpErr
		if !httpErr.Transient() {
			break
		}
	}

	var httpErr *HTTPError
	if errors.As(lastErr, &httpErr) {
		log.Debug().Str("method", req.Method).Str("url", req.URL.String()).Int("status", httpErr.StatusCode).Str("detail", httpErr.Detail).Msg("HTTP request returned non-OK status")
	} else {
		log.Error().Err(lastErr).Str("method", req.Method).Str("url", req.URL.String()).Msg("HTTP request failed")
	}
	return nil, lastErr
}

// newHTTPError drains and closes resp, keeping the backend's detail message.
func newHTTPError(req *http.Request, resp *http.Response) *HTTPError {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &HTTPError{
		StatusCode: resp.StatusCode,
		Detail:     parseDetail(body),
		Method:     req.Method,
		URL:        req.URL.String(),
	}
}

// readResponseBody reads and closes the response body.
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error().Err(err).Str("url", resp.Request.URL.String()).Msg("Failed to read response body")
		return nil, err
	}
	return body, nil
}

// decodeJSON reads resp and unmarshals it into v.
func decodeJSON(resp *http.Response, v any) error {
	body, err := readResponseBody(resp)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		log.Error().Err(err).Str("body_preview", string(body[:min(len(body), 200)])).Msg("Failed to parse response JSON")
		return fmt.Errorf("failed to parse response JSON: %w", err)
	}
	return nil
}

// getJSON performs an authorized GET and decodes the result into v.
func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return err
	}
	resp, err := c.sendAuthorized(req)
	if err != nil {
		return err
	}
	return decodeJSON(resp, v)
}
