package papersources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/dport96/ISERN-Graph/internal/domain"
)

// minRate is the floor the client backs off to after repeated 429 responses.
const minRate = 0.1

// maxBodyBytes caps how much of a response body Get reads.
const maxBodyBytes = 32 << 20

// RequestObserver receives per-request telemetry. *observability.Metrics implements it.
type RequestObserver interface {
	RecordSourceRequest(source, endpoint string, durationSeconds float64)
	RecordSourceRequestFailed(source, endpoint, errorType string)
	RecordSourceRateLimited(source string)
}

// HTTPClientConfig configures the HTTP client.
type HTTPClientConfig struct {
	// Source names the API for errors and metrics (e.g., "dblp").
	Source string

	// Timeout is the request timeout for HTTP operations.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxRetries is the maximum number of retry attempts.
	MaxRetries int

	// RetryDelay is the base delay between retries.
	RetryDelay time.Duration

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// APIKey is an optional API key for authentication.
	APIKey string

	// APIKeyHeader is the header name for the API key.
	APIKeyHeader string

	// BreakerThreshold is the number of consecutive failed requests that opens the circuit.
	BreakerThreshold uint32

	// BreakerCooldown is how long an open circuit rejects requests before a trial request.
	BreakerCooldown time.Duration

	// Observer receives request telemetry. Optional.
	Observer RequestObserver
}

// HTTPClient wraps http.Client with rate limiting, retries and a circuit breaker.
// It is safe for concurrent use.
type HTTPClient struct {
	client      *http.Client
	rateLimiter *RateLimiter
	breaker     *gobreaker.CircuitBreaker
	config      HTTPClientConfig
}

// NewHTTPClient creates a new HTTP client with rate limiting.
// The client applies rate limiting before each request and automatically
// retries on 429 (Too Many Requests) and 5xx server errors.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 1
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = 1
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "ISERN-Graph/1.0"
	}
	if cfg.Source == "" {
		cfg.Source = "http"
	}
	if cfg.BreakerThreshold == 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerCooldown == 0 {
		cfg.BreakerCooldown = time.Minute
	}

	threshold := cfg.BreakerThreshold
	return &HTTPClient{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: NewRateLimiter(cfg.RateLimit, cfg.BurstSize),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        cfg.Source,
			MaxRequests: 1,
			Timeout:     cfg.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			IsSuccessful: sourceHealthy,
		}),
		config: cfg,
	}
}

// sourceHealthy reports whether err leaves the source's circuit closed. Cancellation and
// client errors such as 404 say nothing about the source's health; timeouts do.
func sourceHealthy(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var apiErr *domain.ExternalAPIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode < 500 && apiErr.StatusCode != http.StatusTooManyRequests
	}
	return false
}

// BreakerState reports the circuit state ("closed", "half-open" or "open").
func (c *HTTPClient) BreakerState() string {
	return c.breaker.State().String()
}

// Do executes an HTTP request with rate limiting and retries.
// It waits for the rate limiter before each attempt, sets the User-Agent and optional
// API key headers, and retries on 429 with Retry-After support and on 5xx errors.
// A 429 also halves the client's sustained rate.
//
// The request body is not preserved across retries; callers must provide
// requests with GetBody set if the body needs to be resent on retry.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.APIKey != "" && c.config.APIKeyHeader != "" {
		req.Header.Set(c.config.APIKeyHeader, c.config.APIKey)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if err := c.rateLimiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			if attempt < c.config.MaxRetries {
				if err := c.waitForRetry(req.Context(), c.config.RetryDelay); err != nil {
					return nil, err
				}
				if err := c.resetRequestBody(req); err != nil {
					return nil, fmt.Errorf("cannot retry request: %w", err)
				}
				continue
			}
			return nil, lastErr
		}

		if c.shouldRetry(resp.StatusCode) {
			retryDelay := c.getRetryDelay(resp)
			if resp.StatusCode == http.StatusTooManyRequests {
				c.backoffRate()
			}

			if resp.Body != nil {
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}

			if attempt < c.config.MaxRetries {
				lastErr = fmt.Errorf("server returned status %d", resp.StatusCode)
				if err := c.waitForRetry(req.Context(), retryDelay); err != nil {
					return nil, err
				}
				if err := c.resetRequestBody(req); err != nil {
					return nil, fmt.Errorf("cannot retry request: %w", err)
				}
				continue
			}

			if resp.StatusCode == http.StatusTooManyRequests {
				return nil, domain.NewRateLimitError(c.config.Source, retryDelay)
			}
			return nil, fmt.Errorf("max retries exhausted after %d attempts, last status: %d", c.config.MaxRetries+1, resp.StatusCode)
		}

		return resp, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("unexpected error: no response received")
}

// Get fetches rawURL and returns the body. endpoint labels the request in metrics.
// Non-2xx responses become *domain.ExternalAPIError; a 404 also matches domain.ErrNotFound.
// While the source's circuit is open Get fails fast with domain.ErrServiceUnavailable.
func (c *HTTPClient) Get(ctx context.Context, endpoint, rawURL string, header http.Header) ([]byte, error) {
	out, err := c.breaker.Execute(func() (any, error) {
		return c.get(ctx, endpoint, rawURL, header)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%s circuit %s: %w", c.config.Source, c.breaker.State(), domain.ErrServiceUnavailable)
		c.observeFailure(endpoint, err)
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

func (c *HTTPClient) get(ctx context.Context, endpoint, rawURL string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", c.config.Source, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.Do(req)
	if err != nil {
		c.observeFailure(endpoint, err)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.observeFailure(endpoint, err)
		return nil, fmt.Errorf("read %s response: %w", c.config.Source, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var cause error
		if resp.StatusCode == http.StatusNotFound {
			cause = domain.ErrNotFound
		}
		apiErr := domain.NewExternalAPIError(c.config.Source, resp.StatusCode, truncate(string(body), 200), cause)
		c.observeFailure(endpoint, apiErr)
		return nil, apiErr
	}

	if c.config.Observer != nil {
		c.config.Observer.RecordSourceRequest(c.config.Source, endpoint, time.Since(start).Seconds())
	}
	return body, nil
}

func (c *HTTPClient) observeFailure(endpoint string, err error) {
	if c.config.Observer == nil {
		return
	}
	errorType := "transport"
	var apiErr *domain.ExternalAPIError
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		errorType = "rate_limited"
		c.config.Observer.RecordSourceRateLimited(c.config.Source)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		errorType = "canceled"
	case errors.Is(err, domain.ErrServiceUnavailable):
		errorType = "circuit_open"
	case errors.As(err, &apiErr):
		errorType = "status_" + strconv.Itoa(apiErr.StatusCode)
	}
	c.config.Observer.RecordSourceRequestFailed(c.config.Source, endpoint, errorType)
}

// backoffRate halves the sustained rate down to minRate.
func (c *HTTPClient) backoffRate() {
	c.rateLimiter.SetRate(max(c.rateLimiter.Rate()/2, minRate))
}

// shouldRetry returns true if the status code indicates we should retry.
func (c *HTTPClient) shouldRetry(statusCode int) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	return statusCode >= 500 && statusCode < 600
}

// getRetryDelay respects the Retry-After header if present, otherwise uses the configured
// retry delay.
func (c *HTTPClient) getRetryDelay(resp *http.Response) time.Duration {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return c.config.RetryDelay
	}

	if seconds, err := strconv.ParseInt(retryAfter, 10, 64); err == nil {
		if seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
		return c.config.RetryDelay
	}

	if t, err := http.ParseTime(retryAfter); err == nil {
		delay := time.Until(t)
		if delay > 0 {
			return delay
		}
	}

	return c.config.RetryDelay
}

// waitForRetry waits for the specified duration, respecting context cancellation.
func (c *HTTPClient) waitForRetry(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// resetRequestBody resets the request body for retry if possible.
func (c *HTTPClient) resetRequestBody(req *http.Request) error {
	if req.Body == nil || req.GetBody == nil {
		return nil
	}

	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("failed to get request body for retry: %w", err)
	}
	req.Body = body
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
