package papersources

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dport96/ISERN-Graph/internal/domain"
)

type recordingObserver struct {
	mu          sync.Mutex
	requests    []string
	failures    []string
	rateLimited int
}

func (o *recordingObserver) RecordSourceRequest(source, endpoint string, _ float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requests = append(o.requests, source+"/"+endpoint)
}

func (o *recordingObserver) RecordSourceRequestFailed(source, endpoint, errorType string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, source+"/"+endpoint+"/"+errorType)
}

func (o *recordingObserver) RecordSourceRateLimited(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rateLimited++
}

func fastClient(extra HTTPClientConfig) *HTTPClient {
	extra.RateLimit = 1000
	extra.BurstSize = 100
	if extra.RetryDelay == 0 {
		extra.RetryDelay = time.Millisecond
	}
	return NewHTTPClient(extra)
}

func TestNewHTTPClient(t *testing.T) {
	t.Run("creates client with custom config", func(t *testing.T) {
		cfg := HTTPClientConfig{
			Source:       "dblp",
			Timeout:      15 * time.Second,
			RateLimit:    5,
			BurstSize:    3,
			MaxRetries:   2,
			RetryDelay:   500 * time.Millisecond,
			UserAgent:    "TestAgent/1.0",
			APIKey:       "test-key",
			APIKeyHeader: "X-API-Key",
		}

		client := NewHTTPClient(cfg)

		require.NotNil(t, client)
		assert.Equal(t, 15*time.Second, client.client.Timeout)
		assert.Equal(t, cfg.UserAgent, client.config.UserAgent)
		assert.Equal(t, cfg.MaxRetries, client.config.MaxRetries)
		assert.InDelta(t, 5.0, client.rateLimiter.Rate(), 1e-9)
	})

	t.Run("applies default values", func(t *testing.T) {
		client := NewHTTPClient(HTTPClientConfig{})

		assert.Equal(t, 30*time.Second, client.client.Timeout)
		assert.Equal(t, "ISERN-Graph/1.0", client.config.UserAgent)
		assert.Equal(t, 3, client.config.MaxRetries)
		assert.Equal(t, time.Second, client.config.RetryDelay)
		assert.Equal(t, float64(1), client.config.RateLimit)
		assert.Equal(t, "http", client.config.Source)
	})
}

func TestHTTPClient_Do(t *testing.T) {
	t.Run("sets User-Agent and API key", func(t *testing.T) {
		var ua, key string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ua = r.Header.Get("User-Agent")
			key = r.Header.Get("X-API-Key")
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := fastClient(HTTPClientConfig{UserAgent: "TestAgent/2.0", APIKey: "k", APIKeyHeader: "X-API-Key"})
		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
		require.NoError(t, err)

		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, "TestAgent/2.0", ua)
		assert.Equal(t, "k", key)
	})

	t.Run("retries on 5xx then succeeds", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte("ok"))
		}))
		defer server.Close()

		client := fastClient(HTTPClientConfig{MaxRetries: 3})
		req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
		resp, err := client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, "ok", string(body))
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("exhausted 429 returns rate limit error and lowers rate", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		client := fastClient(HTTPClientConfig{Source: "dblp", MaxRetries: 1})
		before := client.rateLimiter.Rate()

		req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
		_, err := client.Do(req)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrRateLimited)
		assert.Equal(t, int32(2), calls.Load())
		assert.Less(t, client.rateLimiter.Rate(), before)
	})

	t.Run("does not retry on 4xx", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer server.Close()

		client := fastClient(HTTPClientConfig{MaxRetries: 3})
		req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("context canceled during retry wait", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client := fastClient(HTTPClientConfig{MaxRetries: 5, RetryDelay: time.Second})
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
		_, err := client.Do(req)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("resends body on retry", func(t *testing.T) {
		var bodies []string
		var mu sync.Mutex
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b, _ := io.ReadAll(r.Body)
			mu.Lock()
			bodies = append(bodies, string(b))
			n := len(bodies)
			mu.Unlock()
			if n == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := fastClient(HTTPClientConfig{MaxRetries: 2})
		req, _ := http.NewRequestWithContext(context.Background(), http.MethodPost, server.URL, strings.NewReader("payload"))
		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, []string{"payload", "payload"}, bodies)
	})
}

func TestHTTPClient_Get(t *testing.T) {
	t.Run("returns body and records request", func(t *testing.T) {
		var accept string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accept = r.Header.Get("Accept")
			w.Write([]byte("<result/>"))
		}))
		defer server.Close()

		obs := &recordingObserver{}
		client := fastClient(HTTPClientConfig{Source: "dblp", Observer: obs})
		body, err := client.Get(context.Background(), "search", server.URL, http.Header{"Accept": {"application/xml"}})
		require.NoError(t, err)

		assert.Equal(t, "<result/>", string(body))
		assert.Equal(t, "application/xml", accept)
		assert.Equal(t, []string{"dblp/search"}, obs.requests)
		assert.Empty(t, obs.failures)
	})

	t.Run("404 maps to not found", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte("missing"))
		}))
		defer server.Close()

		obs := &recordingObserver{}
		client := fastClient(HTTPClientConfig{Source: "openalex", Observer: obs})
		_, err := client.Get(context.Background(), "works", server.URL, nil)
		require.Error(t, err)

		var apiErr *domain.ExternalAPIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Equal(t, []string{"openalex/works/status_404"}, obs.failures)
	})

	t.Run("rate limited is observed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		obs := &recordingObserver{}
		client := fastClient(HTTPClientConfig{Source: "dblp", Observer: obs, MaxRetries: 1})
		_, err := client.Get(context.Background(), "search", server.URL, nil)
		require.ErrorIs(t, err, domain.ErrRateLimited)
		assert.Equal(t, 1, obs.rateLimited)
		assert.Equal(t, []string{"dblp/search/rate_limited"}, obs.failures)
	})
}

func TestHTTPClient_getRetryDelay(t *testing.T) {
	client := NewHTTPClient(HTTPClientConfig{RetryDelay: 2 * time.Second})

	tests := []struct {
		name       string
		retryAfter string
		want       time.Duration
	}{
		{name: "no header", retryAfter: "", want: 2 * time.Second},
		{name: "seconds", retryAfter: "5", want: 5 * time.Second},
		{name: "zero seconds", retryAfter: "0", want: 2 * time.Second},
		{name: "garbage", retryAfter: "soon", want: 2 * time.Second},
		{name: "past date", retryAfter: "Mon, 02 Jan 2006 15:04:05 GMT", want: 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{Header: http.Header{}}
			if tt.retryAfter != "" {
				resp.Header.Set("Retry-After", tt.retryAfter)
			}
			assert.Equal(t, tt.want, client.getRetryDelay(resp))
		})
	}

	t.Run("future date", func(t *testing.T) {
		resp := &http.Response{Header: http.Header{}}
		resp.Header.Set("Retry-After", time.Now().Add(10*time.Second).UTC().Format(http.TimeFormat))
		delay := client.getRetryDelay(resp)
		assert.Greater(t, delay, 5*time.Second)
		assert.LessOrEqual(t, delay, 10*time.Second)
	})
}

func TestHTTPClient_shouldRetry(t *testing.T) {
	client := NewHTTPClient(HTTPClientConfig{})
	for code, want := range map[int]bool{
		200: false, 400: false, 404: false, 429: true, 500: true, 502: true, 503: true, 599: true,
	} {
		assert.Equal(t, want, client.shouldRetry(code), "status %d", code)
	}
}

func TestHTTPClient_backoffRate(t *testing.T) {
	client := NewHTTPClient(HTTPClientConfig{RateLimit: 0.3})
	client.backoffRate()
	assert.InDelta(t, 0.15, client.rateLimiter.Rate(), 1e-9)
	client.backoffRate()
	assert.InDelta(t, minRate, client.rateLimiter.Rate(), 1e-9)
}

func TestHTTPClient_CircuitBreaker(t *testing.T) {
	t.Run("opens after consecutive failures and fails fast", func(t *testing.T) {
		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		obs := &recordingObserver{}
		client := fastClient(HTTPClientConfig{Source: "dblp", Observer: obs, MaxRetries: 1, BreakerThreshold: 2, BreakerCooldown: time.Hour})

		for range 2 {
			_, err := client.Get(context.Background(), "search", server.URL, nil)
			require.Error(t, err)
			assert.NotErrorIs(t, err, domain.ErrServiceUnavailable)
		}
		assert.Equal(t, "open", client.BreakerState())
		before := hits.Load()

		_, err := client.Get(context.Background(), "search", server.URL, nil)
		require.ErrorIs(t, err, domain.ErrServiceUnavailable)
		assert.Equal(t, before, hits.Load(), "an open circuit must not reach the server")
		assert.Contains(t, obs.failures, "dblp/search/circuit_open")
	})

	t.Run("client errors keep the circuit closed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		client := fastClient(HTTPClientConfig{Source: "openalex", BreakerThreshold: 1})
		for range 3 {
			_, err := client.Get(context.Background(), "works", server.URL, nil)
			require.ErrorIs(t, err, domain.ErrNotFound)
		}
		assert.Equal(t, "closed", client.BreakerState())
	})

	t.Run("half-open trial request closes the circuit on success", func(t *testing.T) {
		var fail atomic.Bool
		fail.Store(true)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if fail.Load() {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte("ok"))
		}))
		defer server.Close()

		client := fastClient(HTTPClientConfig{Source: "dblp", MaxRetries: 1, BreakerThreshold: 1, BreakerCooldown: 20 * time.Millisecond})
		_, err := client.Get(context.Background(), "search", server.URL, nil)
		require.Error(t, err)
		assert.Equal(t, "open", client.BreakerState())

		fail.Store(false)
		time.Sleep(40 * time.Millisecond)
		body, err := client.Get(context.Background(), "search", server.URL, nil)
		require.NoError(t, err)
		assert.Equal(t, "ok", string(body))
		assert.Equal(t, "closed", client.BreakerState())
	})
}

func TestSourceHealthy(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, true},
		{"canceled", context.Canceled, true},
		{"deadline", context.DeadlineExceeded, false},
		{"not found", domain.NewExternalAPIError("dblp", http.StatusNotFound, "", domain.ErrNotFound), true},
		{"bad request", domain.NewExternalAPIError("dblp", http.StatusBadRequest, "", nil), true},
		{"too many requests", domain.NewExternalAPIError("dblp", http.StatusTooManyRequests, "", nil), false},
		{"server error", domain.NewExternalAPIError("dblp", http.StatusInternalServerError, "", nil), false},
		{"rate limited", domain.NewRateLimitError("dblp", time.Second), false},
		{"transport", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sourceHealthy(tt.err))
		})
	}
}
