package expense

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"golang.org/x/time/rate"
)

// TokenProvider supplies the bearer token for each request, so rotation
// happens without rebuilding the client.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenProvider returning a fixed token.
type StaticToken string

func (t StaticToken) Token(ctx context.Context) (string, error) {
	return string(t), nil
}

const (
	defaultTimeout      = 30 * time.Second
	defaultAttempts     = 3
	defaultInitialDelay = time.Second
	defaultMaxDelay     = 10 * time.Second
	defaultRPS          = 5
	defaultBurst        = 10
)

// Client submits expenses over HTTP with bounded retries. Only transient
// failures are retried; auth and validation failures surface immediately.
type Client struct {
	baseURL  string
	http     *http.Client
	tokens   TokenProvider
	limiter  *rate.Limiter
	attempts uint
	initial  time.Duration
	maxDelay time.Duration
	logger   *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithRetry overrides attempt count and backoff bounds.
func WithRetry(attempts uint, initial, max time.Duration) ClientOption {
	return func(c *Client) {
		c.attempts = attempts
		c.initial = initial
		c.maxDelay = max
	}
}

// WithRateLimit overrides the request rate limit.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithClientLogger sets the logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Client for the expense service at baseURL.
func NewClient(baseURL string, tokens TokenProvider, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: defaultTimeout},
		tokens:   tokens,
		limiter:  rate.NewLimiter(rate.Limit(defaultRPS), defaultBurst),
		attempts: defaultAttempts,
		initial:  defaultInitialDelay,
		maxDelay: defaultMaxDelay,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateExpense submits a payload, retrying transient failures with
// exponential backoff.
func (c *Client) CreateExpense(ctx context.Context, p Payload) (*Result, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal expense payload: %w", err)
	}

	var result *Result
	err = retry.Do(
		func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return &NetworkError{Err: err}
			}
			res, err := c.submit(ctx, body)
			if err != nil {
				return err
			}
			result = res
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.initial),
		retry.MaxDelay(c.maxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(Retryable),
		retry.OnRetry(func(n uint, err error) {
			c.logger.WarnContext(ctx, "expense submission retry",
				slog.Uint64("attempt", uint64(n+1)),
				slog.String("error", err.Error()))
		}),
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) submit(ctx context.Context, body []byte) (*Result, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, &AuthError{Status: 0}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/expenses", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var result Result
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, &APIError{Status: resp.StatusCode, Message: "unparseable response body"}
		}
		if result.ExpenseID == "" {
			return nil, &APIError{Status: resp.StatusCode, Message: "response missing expense identifier"}
		}
		return &result, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &AuthError{Status: resp.StatusCode}
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, &ValidationError{Status: resp.StatusCode, Message: errorMessage(raw)}
	default:
		return nil, &APIError{Status: resp.StatusCode, Message: errorMessage(raw)}
	}
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Err: err}
	}
	return &NetworkError{Err: err}
}

// errorMessage pulls a human-readable message out of an error body, falling
// back to the raw text.
func errorMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	if len(raw) > 200 {
		raw = raw[:200]
	}
	return string(raw)
}
