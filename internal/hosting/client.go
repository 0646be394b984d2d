package hosting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"bidsmirror/internal/config"
	"bidsmirror/internal/services"
)

const (
	defaultHTTPTimeout    = 30 * time.Second
	defaultRetryMaxDelay  = 30 * time.Second
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryAttempts  = 4
	maxErrorBody          = 512
)

// Config captures the settings required to talk to the hosting API.
type Config struct {
	APIURL         string
	RawURL         string
	GitURL         string
	Token          string
	Organization   string
	UpstreamOwner  string
	TimeoutSeconds int
	RetryAttempts  int
}

// ConfigFrom extracts the hosting settings from the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		APIURL:         cfg.Hosting.APIURL,
		RawURL:         cfg.Hosting.RawURL,
		GitURL:         cfg.Hosting.GitURL,
		Token:          cfg.Hosting.Token,
		Organization:   cfg.Hosting.Organization,
		UpstreamOwner:  cfg.Hosting.UpstreamOwner,
		TimeoutSeconds: cfg.Hosting.RequestTimeout,
		RetryAttempts:  cfg.Hosting.RetryAttempts + 1,
	}
}

// Client wraps the repository-hosting REST API and its raw-content host.
type Client struct {
	cfg        Config
	httpClient *http.Client

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// NewClient constructs a hosting client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}
	client := &Client{
		cfg: Config{
			APIURL:         strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"),
			RawURL:         strings.TrimRight(strings.TrimSpace(cfg.RawURL), "/"),
			GitURL:         strings.TrimRight(strings.TrimSpace(cfg.GitURL), "/"),
			Token:          strings.TrimSpace(cfg.Token),
			Organization:   strings.TrimSpace(cfg.Organization),
			UpstreamOwner:  strings.TrimSpace(cfg.UpstreamOwner),
			TimeoutSeconds: cfg.TimeoutSeconds,
			RetryAttempts:  attempts,
		},
		httpClient:       &http.Client{Timeout: timeout},
		retryMaxAttempts: attempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Organization returns the namespace that owns mirror repositories.
func (c *Client) Organization() string { return c.cfg.Organization }

// StatusError reports a non-success HTTP response.
type StatusError struct {
	Method      string
	URL         string
	StatusCode  int
	Body        string
	RetryAfter  time.Duration
	RateLimited bool
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody] + "..."
	}
	return fmt.Sprintf("%s %s: http %d: %s", e.Method, e.URL, e.StatusCode, body)
}

// Unwrap exposes the classification markers so callers can use errors.Is
// against services.ErrAccessDenied and services.ErrNotFound.
func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusForbidden && !e.RateLimited:
		return services.ErrAccessDenied
	case e.StatusCode == http.StatusNotFound:
		return services.ErrNotFound
	case e.retryable():
		return services.ErrTransient
	default:
		return nil
	}
}

func (e *StatusError) retryable() bool {
	return e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError ||
		(e.StatusCode == http.StatusForbidden && e.RateLimited)
}

type response struct {
	StatusCode int
	Body       []byte
}

// do issues the request, retrying transient failures. Any non-2xx status is
// returned as a *StatusError.
func (c *Client) do(ctx context.Context, method, endpoint string, payload any) (response, error) {
	var body []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return response{}, fmt.Errorf("hosting request: encode body: %w", err)
		}
		body = encoded
	}

	attempts := max(c.retryMaxAttempts, 1)
	for attempt := 1; ; attempt++ {
		resp, err := c.doOnce(ctx, method, endpoint, body)
		if err == nil {
			return resp, nil
		}
		delay, retry := c.retryDelay(ctx, err, attempt)
		if !retry {
			return resp, err
		}
		if attempt == attempts {
			return response{}, fmt.Errorf("%s %s: failed after %d attempts: %w", method, endpoint, attempts, err)
		}
		if err := Sleep(ctx, c.sleeper, delay); err != nil {
			return resp, err
		}
	}
}

func (c *Client) doOnce(ctx context.Context, method, endpoint string, body []byte) (response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return response{}, fmt.Errorf("hosting request: new request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return response{}, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return response{}, fmt.Errorf("%s %s: read body: %w", method, endpoint, err)
	}
	out := response{StatusCode: resp.StatusCode, Body: data}
	if resp.StatusCode < http.StatusMultipleChoices {
		return out, nil
	}
	return out, &StatusError{
		Method:      method,
		URL:         endpoint,
		StatusCode:  resp.StatusCode,
		Body:        string(data),
		RetryAfter:  serverDelay(resp.Header, time.Now()),
		RateLimited: resp.Header.Get("X-RateLimit-Remaining") == "0",
	}
}

// retryDelay decides whether err is worth another attempt and how long to
// wait first. Server-requested waits are capped at the maximum backoff.
func (c *Client) retryDelay(ctx context.Context, err error, attempt int) (time.Duration, bool) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}
	backoff := Backoff(c.retryBaseDelay, c.retryMaxDelay, attempt)

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case !statusErr.retryable():
			return 0, false
		case statusErr.RetryAfter <= 0:
			return backoff, true
		case c.retryMaxDelay > 0:
			return min(statusErr.RetryAfter, c.retryMaxDelay), true
		default:
			return statusErr.RetryAfter, true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return backoff, true
	}
	return 0, false
}
