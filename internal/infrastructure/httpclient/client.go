// Package httpclient wraps net/http with the bounded exponential-backoff retry
// used for every call to the carrier API and the label renderer.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultMaxRetries is the total number of attempts made by Post.
	DefaultMaxRetries = 3
	// DefaultBaseDelay is the wait before the first retry; it doubles per attempt.
	DefaultBaseDelay = 3 * time.Second

	defaultMaxResponseSize = 32 << 20
	maxErrorBody           = 512
)

// RetryPolicy bounds retries of transient failures.
type RetryPolicy struct {
	MaxRetries int // total attempts, including the first
	BaseDelay  time.Duration
}

// Delay returns the wait before the given attempt (attempt >= 2):
// BaseDelay * 2^(attempt-2), i.e. base, 2*base, 4*base...
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 2 {
		return 0
	}
	return p.BaseDelay * time.Duration(1<<uint(attempt-2))
}

// SingleAttempt is the policy used by Get unless the caller passes another.
var SingleAttempt = RetryPolicy{MaxRetries: 1}

// Config configures a Client
type Config struct {
	Timeout         time.Duration
	MaxRetries      int
	BaseDelay       time.Duration
	MaxResponseSize int64
	Logger          *zap.Logger
}

// Options are per-request settings
type Options struct {
	Headers map[string]string
	// Retry overrides the retry policy of the request. Nil means the client
	// policy for Post and SingleAttempt for Get.
	Retry *RetryPolicy
}

// Response is a fully read HTTP response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Attempts   int
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Client performs HTTP requests with retry on 429 and 5xx responses.
type Client struct {
	http    *http.Client
	policy  RetryPolicy
	maxBody int64
	sleep   Sleeper
	logger  *zap.Logger
}

// Option customizes a Client
type Option func(*Client)

// WithSleeper replaces the backoff wait, mainly for tests
func WithSleeper(s Sleeper) Option {
	return func(c *Client) { c.sleep = s }
}

// New creates a Client. Zero config values fall back to the defaults.
func New(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxResponseSize <= 0 {
		cfg.MaxResponseSize = defaultMaxResponseSize
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	c := &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		policy:  RetryPolicy{MaxRetries: cfg.MaxRetries, BaseDelay: cfg.BaseDelay},
		maxBody: cfg.MaxResponseSize,
		sleep:   sleepContext,
		logger:  cfg.Logger.Named("httpclient"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Post sends body with the client retry policy.
func (c *Client) Post(ctx context.Context, url string, body []byte, opts Options) (*Response, error) {
	policy := c.policy
	if opts.Retry != nil {
		policy = *opts.Retry
	}
	return c.do(ctx, http.MethodPost, url, body, opts.Headers, policy)
}

// Get fetches url, by default in a single attempt.
func (c *Client) Get(ctx context.Context, url string, opts Options) (*Response, error) {
	policy := SingleAttempt
	if opts.Retry != nil {
		policy = *opts.Retry
	}
	return c.do(ctx, http.MethodGet, url, nil, opts.Headers, policy)
}

// Retryable reports whether a response status is worth another attempt.
func Retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, headers map[string]string, policy RetryPolicy) (*Response, error) {
	if policy.MaxRetries < 1 {
		policy.MaxRetries = 1
	}

	var last *Response
	for attempt := 1; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 1 {
			delay := policy.Delay(attempt)
			c.logger.Warn("retrying request",
				zap.String("method", method),
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Int("last_status", last.StatusCode),
				zap.Duration("delay", delay),
			)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, &ResponseError{Method: method, URL: url, StatusCode: last.StatusCode,
					Attempts: attempt - 1, Kind: ErrRetriesExhausted, Cause: err}
			}
		}

		resp, err := c.once(ctx, method, url, body, headers)
		if err != nil {
			return nil, &ResponseError{Method: method, URL: url, Attempts: attempt, Kind: ErrNonRetryable, Cause: err}
		}
		resp.Attempts = attempt

		switch {
		case resp.StatusCode < 400:
			return resp, nil
		case !Retryable(resp.StatusCode):
			return nil, newStatusError(method, url, resp, ErrNonRetryable)
		}
		last = resp
	}

	return nil, newStatusError(method, url, last, ErrRetriesExhausted)
}

func (c *Client) once(ctx context.Context, method, url string, body []byte, headers map[string]string) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func newStatusError(method, url string, resp *Response, kind error) *ResponseError {
	body := resp.Body
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &ResponseError{
		Method:     method,
		URL:        url,
		StatusCode: resp.StatusCode,
		Attempts:   resp.Attempts,
		Body:       string(body),
		Kind:       kind,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
