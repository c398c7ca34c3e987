// Package api is the HTTP client for the expense backend. Every call except
// Register and Login takes the caller's bearer token.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	applog "expensedash/internal/log"
)

const maxErrorBody = 64 << 10

// Client talks to the backend REST API rooted at BaseURL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *applog.Logger

	// OnError is called for every failed backend call with the endpoint and
	// the status code (0 for transport failures). It may be nil.
	OnError func(endpoint string, status int)
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *applog.Logger) Option {
	return func(c *Client) { c.logger = l.WithComponent(applog.ComponentAPI) }
}

// New creates a client. A trailing slash on baseURL is ignored.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     applog.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the root every path is resolved against.
func (c *Client) BaseURL() string { return c.baseURL }

type request struct {
	method      string
	path        string
	token       string
	body        io.Reader
	contentType string
}

func (c *Client) jsonRequest(method, path, token string, payload any) (request, error) {
	req := request{method: method, path: path, token: token}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return req, fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		req.body = bytes.NewReader(b)
		req.contentType = "application/json"
	}
	return req, nil
}

// do performs the request and decodes a 2xx JSON body into out (when non-nil).
func (c *Client) do(ctx context.Context, r request, out any) error {
	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, r.body)
	if err != nil {
		return fmt.Errorf("build request %s %s: %w", r.method, r.path, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		httpReq.Header.Set("Content-Type", r.contentType)
	}
	if r.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.failed(r.path, 0)
		c.logger.WarnContext(ctx, "Backend request failed",
			applog.FieldMethod, r.method,
			applog.FieldEndpoint, r.path,
			applog.FieldError, err)
		return fmt.Errorf("%s %s: %w", r.method, r.path, err)
	}
	defer resp.Body.Close()

	c.logger.DebugContext(ctx, "Backend request completed",
		applog.FieldMethod, r.method,
		applog.FieldEndpoint, r.path,
		applog.FieldStatusCode, resp.StatusCode,
		applog.FieldDuration, time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.failed(r.path, resp.StatusCode)
		return &Error{StatusCode: resp.StatusCode, Detail: parseDetail(body)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if err == io.EOF {
			return nil
		}
		c.failed(r.path, resp.StatusCode)
		return fmt.Errorf("decode %s %s response: %w", r.method, r.path, err)
	}
	return nil
}

func (c *Client) failed(endpoint string, status int) {
	if c.OnError != nil {
		c.OnError(endpoint, status)
	}
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, payload, out any) error {
	req, err := c.jsonRequest(method, path, token, payload)
	if err != nil {
		return err
	}
	return c.do(ctx, req, out)
}

func formBody(values url.Values) io.Reader {
	return strings.NewReader(values.Encode())
}
