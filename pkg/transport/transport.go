// Package transport provides the retrying HTTP client shared by all upstream
// adapters. Transient failures (connection errors, 429 and most 5xx statuses)
// are retried with exponential backoff inside a bounded budget; everything
// else surfaces immediately.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultMaxRetries  = 3
	defaultBackoffBase = 150 * time.Millisecond
)

// ErrRateLimited is wrapped into the final error when the retry budget is
// spent on HTTP 429 responses.
var ErrRateLimited = errors.New("transport: rate limited")

// StatusError reports a non-2xx terminal response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transport: http status %d: %s", e.Code, e.Body)
}

// RetryAfter extracts a Retry-After hint from err when present.
func RetryAfter(err error) time.Duration {
	var re *retryAfterError
	if errors.As(err, &re) {
		return re.after
	}
	return 0
}

type retryAfterError struct {
	after time.Duration
}

func (e *retryAfterError) Error() string {
	return fmt.Sprintf("transport: rate limited, retry after %s", e.after)
}

func (e *retryAfterError) Unwrap() error { return ErrRateLimited }

// Client wraps http.Client with a retry budget and sane transport defaults.
type Client struct {
	httpClient  *http.Client
	maxRetries  int
	backoffBase time.Duration
	userAgent   string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient injects a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithMaxRetries adjusts the retry budget.
func WithMaxRetries(max int) Option {
	return func(c *Client) {
		if max >= 0 {
			c.maxRetries = max
		}
	}
}

// WithBackoffBase overrides the initial backoff delay.
func WithBackoffBase(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.backoffBase = d
		}
	}
}

// WithUserAgent sets the User-Agent header on outgoing requests.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New constructs a retrying client.
func New(opts ...Option) *Client {
	httpTransport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 3 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		ForceAttemptHTTP2:     true,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   3 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	client := &Client{
		httpClient:  &http.Client{Timeout: defaultTimeout, Transport: httpTransport},
		maxRetries:  defaultMaxRetries,
		backoffBase: defaultBackoffBase,
		userAgent:   "dataengine/1.0",
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Do issues the request, retrying transient failures. The request body, when
// present, must be replayable via GetBody. The response body is fully read
// and returned; the caller never sees a live connection.
func (c *Client) Do(ctx context.Context, req *http.Request) ([]byte, error) {
	if c.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	var lastErr error
	backoff := c.backoffBase
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		attemptReq := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("transport: rewind request body: %w", err)
			}
			attemptReq.Body = body
		}

		resp, err := c.httpClient.Do(attemptReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
		} else {
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			switch {
			case readErr != nil:
				lastErr = fmt.Errorf("transport: read response: %w", readErr)
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				return body, nil
			case resp.StatusCode == http.StatusTooManyRequests:
				lastErr = &retryAfterError{after: retryAfterHeader(resp)}
			case retryableStatus(resp.StatusCode):
				lastErr = &StatusError{Code: resp.StatusCode, Body: truncate(body)}
			default:
				return nil, &StatusError{Code: resp.StatusCode, Body: truncate(body)}
			}
		}

		if attempt < c.maxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}
	}
	return nil, lastErr
}

// GetJSON fetches url and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, url string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("transport: build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	body, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("transport: decode response: %w", err)
	}
	return nil
}

// PostJSON posts in as JSON to url and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, url string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("transport: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("transport: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	body, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("transport: decode response: %w", err)
	}
	return nil
}

func retryAfterHeader(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func truncate(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
