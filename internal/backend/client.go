// Package backend is the HTTP client for the backtesting service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/tradedesk/internal/core"
	"go.uber.org/zap"
)

const (
	defaultBaseURL = "http://127.0.0.1:8000"

	// Bodies beyond this are not read; backtest output is the largest payload.
	maxBodySize = 32 << 20
)

// Client talks to the backtesting service.
type Client struct {
	client    *http.Client
	transport http.RoundTripper
	timeout   time.Duration
	baseURL   string
	logger    *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTransport sets the round tripper, e.g. an instrumented one. Nil means
// http.DefaultTransport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.transport = rt }
}

// WithTimeout bounds every request. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	// Built once options are applied so each Client owns its http.Client.
	c.client = &http.Client{Transport: c.transport, Timeout: c.timeout}
	return c
}

// BaseURL returns the service root.
func (c *Client) BaseURL() string { return c.baseURL }

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type strategiesResponse struct {
	Strategies *string `json:"strategies"`
}

type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

// Health is the service health report.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Signup registers a new account. The response body is ignored.
func (c *Client) Signup(ctx context.Context, creds core.Credentials) error {
	body := signupRequest{Username: creds.Username, Email: creds.Email, Password: creds.Password}
	_, err := c.do(ctx, http.MethodPost, "/signup", "", body, core.ErrAuthRejected)
	return err
}

// Login exchanges username and password for a bearer token.
func (c *Client) Login(ctx context.Context, creds core.Credentials) (string, error) {
	body := loginRequest{Username: creds.Username, Password: creds.Password}
	data, err := c.do(ctx, http.MethodPost, "/login", "", body, core.ErrAuthRejected)
	if err != nil {
		return "", err
	}

	var resp loginResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", core.WrapError(core.ErrTransport, fmt.Errorf("decoding login response: %w", err))
	}
	if resp.AccessToken == "" {
		return "", core.WrapError(core.ErrTransport, fmt.Errorf("login response carried no access_token"))
	}
	return resp.AccessToken, nil
}

// Strategies returns the raw newline-delimited strategy listing.
func (c *Client) Strategies(ctx context.Context, token string) (string, error) {
	data, err := c.do(ctx, http.MethodGet, "/strategies", token, nil, core.ErrCatalogFetch)
	if err != nil {
		return "", asCatalogError(err)
	}

	var resp strategiesResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", core.WrapError(core.ErrCatalogFetch, fmt.Errorf("decoding strategies: %w", err))
	}
	if resp.Strategies == nil {
		return "", core.WrapError(core.ErrCatalogFetch, fmt.Errorf("response has no strategies field"))
	}
	return *resp.Strategies, nil
}

// Backtest runs a backtest and returns the response body untouched.
func (c *Client) Backtest(ctx context.Context, token string, req core.BacktestRequest) (json.RawMessage, error) {
	data, err := c.do(ctx, http.MethodPost, "/backtest", token, req, core.ErrBacktestFailed)
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, core.WrapError(core.ErrTransport, fmt.Errorf("backtest response is not valid JSON"))
	}
	return json.RawMessage(data), nil
}

// Health checks the service.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	data, err := c.do(ctx, http.MethodGet, "/health", "", nil, core.ErrTransport)
	if err != nil {
		return nil, err
	}
	var h Health
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, core.WrapError(core.ErrTransport, fmt.Errorf("decoding health: %w", err))
	}
	return &h, nil
}

// do sends one request. Non-2xx answers are wrapped in rejected; anything
// that prevents reading a response is a transport failure.
func (c *Client) do(ctx context.Context, method, path, token string, payload any, rejected *core.Error) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, core.WrapError(core.ErrTransport, fmt.Errorf("marshaling request: %w", err))
		}
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, core.WrapError(core.ErrTransport, fmt.Errorf("creating request: %w", err))
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	log := c.logger.With(
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID),
	)
	start := time.Now()

	resp, err := c.client.Do(req)
	if err != nil {
		log.Debug("request failed", zap.Error(err))
		return nil, core.WrapError(core.ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, core.WrapError(core.ErrTransport, fmt.Errorf("reading response: %w", err))
	}

	log.Debug("request done",
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, core.WrapError(rejected, &core.RemoteError{
			Status: resp.StatusCode,
			Detail: parseDetail(data),
		})
	}

	return data, nil
}

// parseDetail extracts the "detail" field of an error body. Strings are
// returned as is; other JSON values (validation error lists) as raw text.
func parseDetail(body []byte) string {
	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(resp.Detail, &s); err == nil {
		return s
	}
	if string(resp.Detail) == "null" {
		return ""
	}
	return string(resp.Detail)
}

// asCatalogError folds transport failures on /strategies into the catalog
// error code, keeping the transport cause.
func asCatalogError(err error) error {
	if coded, ok := err.(*core.Error); ok && coded.Code == core.ErrTransport.Code {
		return core.WrapError(core.ErrCatalogFetch, coded)
	}
	return err
}
