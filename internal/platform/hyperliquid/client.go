// Package hyperliquid is an HTTP client for the Hyperliquid info API and the
// public leaderboard feed.
package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/whalewatch/internal/domain"
	"github.com/alanyoungcy/whalewatch/internal/metrics"
)

const sharedLimiterKey = "hyperliquid:info"

// APIError is returned for non-2xx responses that survive the retry policy.
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hyperliquid: api error: status=%d body=%s", e.StatusCode, string(e.Body))
}

// Config holds endpoint and resilience settings for the client.
type Config struct {
	APIURL            string
	LeaderboardURL    string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	MaxRetries        int
	RetryBackoff      time.Duration
	MaxRetryBackoff   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 2
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 100 * time.Millisecond
	}
	if c.MaxRetryBackoff < c.RetryBackoff {
		c.MaxRetryBackoff = 2 * time.Second
		if c.MaxRetryBackoff < c.RetryBackoff {
			c.MaxRetryBackoff = c.RetryBackoff
		}
	}
	return c
}

// Option customises a Client.
type Option func(*Client)

// WithSharedLimiter makes every request also wait on a process-external
// limiter, so several replicas share one request budget.
func WithSharedLimiter(rl domain.RateLimiter) Option {
	return func(c *Client) { c.shared = rl }
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// Client talks to the Hyperliquid REST endpoints.
type Client struct {
	cfg        Config
	httpClient *http.Client
	pipeline   failsafe.Executor[*http.Response]
	pacer      *rate.Limiter
	shared     domain.RateLimiter
	logger     *slog.Logger
}

// NewClient creates a client with retry, circuit breaking and request pacing.
func NewClient(cfg Config, logger *slog.Logger, opts ...Option) *Client {
	cfg = cfg.withDefaults()

	retryPolicy := retrypolicy.NewBuilder[*http.Response]().
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled)
			}
			return resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		}).
		WithBackoff(cfg.RetryBackoff, cfg.MaxRetryBackoff).
		WithMaxRetries(cfg.MaxRetries).
		OnRetry(func(e failsafe.ExecutionEvent[*http.Response]) {
			if resp := e.LastResult(); resp != nil {
				resp.Body.Close()
			}
		}).
		Build()

	breaker := circuitbreaker.NewBuilder[*http.Response]().
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode >= 500
		}).
		WithFailureThresholdRatio(5, 10).
		WithDelay(10 * time.Second).
		Build()

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		pipeline:   failsafe.With[*http.Response](retryPolicy, breaker),
		pacer:      rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:     logger.With(slog.String("component", "hyperliquid")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// postInfo sends an /info request and decodes the JSON response into out.
func (c *Client) postInfo(ctx context.Context, req infoRequest, out any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", req.Type, err)
	}
	return c.do(ctx, req.Type, func() (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", "application/json")
		return r, nil
	}, out)
}

func (c *Client) get(ctx context.Context, kind, url string, out any) error {
	return c.do(ctx, kind, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}, out)
}

// do paces, executes and decodes one logical request. The request is rebuilt
// for every attempt so POST bodies survive retries.
func (c *Client) do(ctx context.Context, kind string, build func() (*http.Request, error), out any) error {
	if err := c.pacer.Wait(ctx); err != nil {
		return fmt.Errorf("pace %s: %w", kind, err)
	}
	if c.shared != nil {
		if err := c.shared.Wait(ctx, sharedLimiterKey); err != nil {
			return fmt.Errorf("shared limiter %s: %w", kind, err)
		}
	}

	start := time.Now()
	resp, err := c.pipeline.WithContext(ctx).GetWithExecution(func(exec failsafe.Execution[*http.Response]) (*http.Response, error) {
		req, err := build()
		if err != nil {
			return nil, err
		}
		if exec.Attempts() > 1 {
			c.logger.DebugContext(ctx, "retrying request",
				slog.String("type", kind),
				slog.Int("attempt", exec.Attempts()),
			)
		}
		return c.httpClient.Do(req)
	})
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		metrics.ExchangeRequests.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("%s request failed: %w", kind, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ExchangeRequests.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("read %s response: %w", kind, err)
	}
	if resp.StatusCode >= 400 {
		metrics.ExchangeRequests.WithLabelValues(kind, "error").Inc()
		return &APIError{StatusCode: resp.StatusCode, Body: data}
	}

	metrics.ExchangeRequests.WithLabelValues(kind, "ok").Inc()
	c.logger.DebugContext(ctx, "request complete",
		slog.String("type", kind),
		slog.Duration("elapsed", time.Since(start)),
		slog.Int("bytes", len(data)),
	)

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", kind, err)
	}
	return nil
}
