// Package ashare adapts a China A-share market data gateway to the uniform
// data source contract. The gateway is session-based: a batch of requests is
// bracketed by login/logout, and every data call carries the session token.
// The same gateway serves the convertible bond board under a separate market
// segment, so one adapter covers both the equity and bond asset classes.
package ashare

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"dataengine/pkg/transport"
)

const (
	defaultBaseURL = "https://gw.ashare-data.cn"
	dateLayout     = "2006-01-02"

	// MarketStock selects the A-share equity segment.
	MarketStock = "stock"
	// MarketBond selects the convertible bond segment.
	MarketBond = "bond"
)

// Client wraps the gateway HTTP API.
type Client struct {
	baseURL   string
	market    string
	appKey    string
	secret    string
	transport *transport.Client

	tokenMu sync.RWMutex
	token   string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the gateway endpoint.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithTransport injects a custom retrying transport.
func WithTransport(t *transport.Client) ClientOption {
	return func(c *Client) {
		if t != nil {
			c.transport = t
		}
	}
}

// WithCredentials sets the gateway application credentials.
func WithCredentials(appKey, secret string) ClientOption {
	return func(c *Client) {
		c.appKey = appKey
		c.secret = secret
	}
}

// WithMarket selects the market segment (stock or bond).
func WithMarket(market string) ClientOption {
	return func(c *Client) {
		if market != "" {
			c.market = market
		}
	}
}

// NewClient constructs a gateway client.
func NewClient(opts ...ClientOption) *Client {
	client := &Client{
		baseURL:   defaultBaseURL,
		market:    MarketStock,
		transport: transport.New(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Login opens a gateway session and stores the token for subsequent calls.
func (c *Client) Login(ctx context.Context) error {
	var resp loginResponse
	err := c.transport.PostJSON(ctx, c.baseURL+"/api/login", loginRequest{AppKey: c.appKey, Secret: c.secret}, &resp)
	if err != nil {
		return fmt.Errorf("ashare: login: %w", err)
	}
	if resp.Token == "" {
		return fmt.Errorf("ashare: login: empty token in response")
	}
	c.tokenMu.Lock()
	c.token = resp.Token
	c.tokenMu.Unlock()
	return nil
}

// Logout closes the gateway session. Safe to call without an open session.
func (c *Client) Logout(ctx context.Context) error {
	c.tokenMu.Lock()
	token := c.token
	c.token = ""
	c.tokenMu.Unlock()
	if token == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/logout", nil)
	if err != nil {
		return fmt.Errorf("ashare: logout: %w", err)
	}
	req.Header.Set("X-Auth-Token", token)
	if _, err := c.transport.Do(ctx, req); err != nil {
		return fmt.Errorf("ashare: logout: %w", err)
	}
	return nil
}

func (c *Client) authHeader() http.Header {
	c.tokenMu.RLock()
	token := c.token
	c.tokenMu.RUnlock()
	h := http.Header{}
	if token != "" {
		h.Set("X-Auth-Token", token)
	}
	return h
}

// ListInstruments pulls the full directory for the configured market segment.
func (c *Client) ListInstruments(ctx context.Context) ([]listItem, error) {
	var resp listResponse
	u := fmt.Sprintf("%s/api/%s/list", c.baseURL, c.market)
	if err := c.transport.GetJSON(ctx, u, c.authHeader(), &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// DailyHistory pulls daily bars for one code over a closed date range.
func (c *Client) DailyHistory(ctx context.Context, code string, start, end time.Time) (*dailyResponse, error) {
	q := url.Values{}
	q.Set("code", code)
	q.Set("start", start.Format(dateLayout))
	q.Set("end", end.Format(dateLayout))
	u := fmt.Sprintf("%s/api/%s/daily?%s", c.baseURL, c.market, q.Encode())
	var resp dailyResponse
	if err := c.transport.GetJSON(ctx, u, c.authHeader(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Quote pulls the latest quote for one code.
func (c *Client) Quote(ctx context.Context, code string) (*quoteResponse, error) {
	q := url.Values{}
	q.Set("code", code)
	u := fmt.Sprintf("%s/api/%s/quote?%s", c.baseURL, c.market, q.Encode())
	var resp quoteResponse
	if err := c.transport.GetJSON(ctx, u, c.authHeader(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
