// Package upstream implements the HTTP side of the bridge: it forwards a
// JSON-RPC payload to the docs endpoint, reads the SSE (or plain JSON) reply,
// and extracts the single terminal JSON-RPC payload from the stream.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gaspardpetit/bundocs-mcp/internal/logx"
	"github.com/gaspardpetit/bundocs-mcp/internal/metrics"
)

// DefaultBaseURL is the production docs MCP endpoint.
const DefaultBaseURL = "https://bun.com/docs/mcp"

const (
	defaultAttemptTimeout = 5 * time.Second
	defaultMaxAttempts    = 3
	backoffBase           = 200 * time.Millisecond
	backoffMax            = time.Second

	// caps applied when reading error bodies for diagnostics
	maxErrorBody = 100_000
	maxSnippet   = 2048
)

// RetryPolicy bounds the retry behavior of one forwarded request. The zero
// value is replaced by defaults field-by-field.
type RetryPolicy struct {
	MaxAttempts       int
	PerAttemptTimeout time.Duration
	// Backoff returns the pause before the next attempt; attempt starts at 1.
	Backoff func(attempt int) time.Duration
}

// DefaultRetryPolicy returns the production policy: 3 attempts, 5 s per
// attempt, exponential backoff 200/400/800 ms capped at 1 s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       defaultMaxAttempts,
		PerAttemptTimeout: defaultAttemptTimeout,
		Backoff:           defaultBackoff,
	}
}

func defaultBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := backoffBase << (attempt - 1)
	if d > backoffMax {
		d = backoffMax
	}
	return d
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.PerAttemptTimeout <= 0 {
		p.PerAttemptTimeout = defaultAttemptTimeout
	}
	if p.Backoff == nil {
		p.Backoff = defaultBackoff
	}
	return p
}

// StatusError reports a non-2xx upstream HTTP status.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d", e.Status)
}

// ErrNoResponse indicates the SSE stream ended without a terminal payload.
var ErrNoResponse = errors.New("no JSON-RPC response in stream")

// Client forwards JSON-RPC payloads to the docs endpoint.
type Client struct {
	hc      *http.Client
	baseURL string
	policy  RetryPolicy
}

// New returns a Client for the given endpoint. An empty url selects the
// production endpoint.
func New(baseURL string, policy RetryPolicy) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	return &Client{hc: &http.Client{}, baseURL: baseURL, policy: policy.withDefaults()}, nil
}

// Forward POSTs the payload and returns the terminal JSON-RPC payload object
// extracted from the response. Transient failures (connection errors,
// per-attempt timeouts, retryable HTTP statuses) are retried per the policy;
// any other failure is returned immediately.
func (c *Client) Forward(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var lastErr error
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		out, err := c.attempt(ctx, payload)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, fmt.Errorf("forward request: %w", ctx.Err())
		}
		if !isTransient(err) || attempt == c.policy.MaxAttempts {
			break
		}
		delay := c.policy.Backoff(attempt)
		metrics.UpstreamRetries.Inc()
		logx.Log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", delay).Msg("upstream attempt failed; retrying")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("forward request: %w", ctx.Err())
		}
	}
	metrics.UpstreamFailures.Inc()
	return nil, fmt.Errorf("forward request: %w", lastErr)
}

// attempt performs one POST and stream read under the per-attempt deadline.
func (c *Client) attempt(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.policy.PerAttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	metrics.UpstreamAttempts.Inc()
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	logx.Log.Debug().Int("status", resp.StatusCode).Str("content_type", mainContentType(resp.Header)).Msg("upstream response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		logx.Log.Warn().Int("status", resp.StatusCode).Str("body", snippet(body)).Msg("upstream error status")
		return nil, &StatusError{Status: resp.StatusCode}
	}

	if mainContentType(resp.Header) == "text/event-stream" {
		return extractResponse(resp.Body)
	}

	// upstream may answer plain JSON when it does not stream
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("upstream returned invalid JSON")
	}
	return body, nil
}

// isTransient reports whether the failure is worth another attempt:
// connection errors, attempt timeouts, and retryable HTTP statuses.
func isTransient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		switch se.Status {
		case http.StatusRequestTimeout, // 408
			http.StatusTooEarly,            // 425
			http.StatusTooManyRequests,     // 429
			http.StatusInternalServerError, // 500
			http.StatusBadGateway,          // 502
			http.StatusServiceUnavailable,  // 503
			http.StatusGatewayTimeout:      // 504
			return true
		}
		return false
	}
	if errors.Is(err, ErrNoResponse) {
		// the stream completed; asking again will not change the answer
		return false
	}
	// connection refused, reset, attempt deadline, truncated stream
	return true
}

// FetchMarkdown retrieves a documentation page as raw Markdown/MDX using an
// Accept: text/markdown GET. Used by the CLI markdown formatter, not by the
// bridging path.
func (c *Client) FetchMarkdown(ctx context.Context, pageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.policy.PerAttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/markdown")

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch markdown: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch markdown: %w", &StatusError{Status: resp.StatusCode})
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("fetch markdown: %w", err)
	}
	logx.Log.Debug().Str("url", pageURL).Int("bytes", len(body)).Msg("fetched markdown")
	return string(body), nil
}

func mainContentType(h http.Header) string {
	ct := h.Get("Content-Type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

func snippet(body []byte) string {
	if len(body) > maxSnippet {
		body = body[:maxSnippet]
	}
	return string(body)
}
