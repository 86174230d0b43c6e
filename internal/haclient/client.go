// Package haclient is a small REST client for a Home Assistant-shaped
// smart-home API: fetching entity states and calling services.
package haclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/voicegate/gateway/internal/entitycontext"
)

// Client talks to a Home Assistant-shaped REST API. It performs no
// retries: the Gemini Live dialog is the retry boundary, not this client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default http.Client (e.g. for tests).
func WithHTTPClient(c *http.Client) Option {
	return func(hc *Client) { hc.httpClient = c }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(hc *Client) { hc.logger = l }
}

// New builds a Client for baseURL using token as the long-lived access
// token. baseURL and token may be empty; IsConfigured reports false in
// that case and CallService refuses to run.
func New(baseURL, token string, opts ...Option) *Client {
	hc := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      strings.TrimSpace(token),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(hc)
	}
	return hc
}

// IsConfigured reports whether both a base URL and a token are set.
func (c *Client) IsConfigured() bool {
	return c.baseURL != "" && c.token != ""
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
}

// GetStates fetches /api/states. A 401 is treated as "not authorized yet"
// and logged as a warning rather than an error, returning an empty list so
// callers degrade gracefully instead of failing the whole session.
func (c *Client) GetStates(ctx context.Context) ([]entitycontext.RawState, error) {
	url := c.baseURL + "/api/states"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("haclient: get states: build request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("haclient: get states: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.Warn("home assistant not authorized (401); check the configured token")
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("haclient: get states failed: %d %s", resp.StatusCode, truncate(string(body), 500))
	}

	var states []entitycontext.RawState
	if err := json.NewDecoder(resp.Body).Decode(&states); err != nil {
		return nil, fmt.Errorf("haclient: get states: decode: %w", err)
	}
	return states, nil
}

// CallService calls /api/services/{domain}/{service} with data as the JSON
// body. It returns (ok, message) rather than an error so the session
// controller can report a clean natural-language result back to the model.
func (c *Client) CallService(ctx context.Context, domain, service string, data map[string]any) (bool, string) {
	if !c.IsConfigured() {
		return false, "Home Assistant token/URL not configured"
	}

	domain = strings.TrimSpace(domain)
	service = strings.TrimSpace(service)
	if domain == "" || service == "" {
		return false, "domain/service missing"
	}

	if data == nil {
		data = map[string]any{}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return false, fmt.Sprintf("encode service data: %v", err)
	}

	url := fmt.Sprintf("%s/api/services/%s/%s", c.baseURL, domain, service)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Sprintf("build request: %v", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Sprintf("request failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusOK {
		return true, "ok"
	}
	return false, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(string(body), 500))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
