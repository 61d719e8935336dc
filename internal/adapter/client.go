// Package adapter contains the upstream provider clients and the
// translation of raw provider payloads into canonical Activity records.
package adapter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/collection-watcher/internal/retry"
	"github.com/collection-watcher/internal/watcherrors"
)

// RateLimitedClient wraps outbound HTTP calls to one upstream provider.
// It paces requests with a token bucket, retries transient failures with
// bounded exponential backoff, and honors Retry-After hints on 429.
// Stateless beyond the limiter; safe for concurrent use.
type RateLimitedClient struct {
	provider    string
	httpClient  *http.Client
	limiter     *rate.Limiter
	retryConfig *retry.Config
	headers     map[string]string
}

// ClientConfig configures a rate-limited provider client
type ClientConfig struct {
	Provider          string
	RequestsPerSecond float64
	RequestTimeout    time.Duration
	// Headers are attached to every request (e.g. an API key header).
	Headers map[string]string
	Retry   *retry.Config
}

// NewRateLimitedClient creates a client for one provider
func NewRateLimitedClient(cfg *ClientConfig) *RateLimitedClient {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1.0
	}
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	retryConfig := cfg.Retry
	if retryConfig == nil {
		retryConfig = retry.DefaultConfig()
	}

	return &RateLimitedClient{
		provider:    cfg.Provider,
		httpClient:  &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(rate.Limit(rps), 1),
		retryConfig: retryConfig,
		headers:     cfg.Headers,
	}
}

// Get fetches url and returns the response body. Transient failures
// (network errors, 5xx, 429) are retried within the call; permanent
// failures (other 4xx) surface immediately and the caller skips the
// source for the current cycle.
func (c *RateLimitedClient) Get(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := retry.WithExponentialBackoff(ctx, c.retryConfig, func(ctx context.Context, attempt int) error {
		var err error
		body, err = c.doRequest(ctx, url)
		return err
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *RateLimitedClient) doRequest(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, watcherrors.NewPermanent(c.provider, "failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, watcherrors.NewTransient(c.provider, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, watcherrors.NewTransient(c.provider, "failed to read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, watcherrors.NewRateLimited(c.provider, parseRetryAfter(resp))
	case resp.StatusCode >= 500:
		return nil, watcherrors.NewTransient(c.provider,
			fmt.Sprintf("server error: %d", resp.StatusCode), nil)
	default:
		return nil, watcherrors.NewPermanent(c.provider,
			fmt.Sprintf("HTTP error: %d - %s", resp.StatusCode, truncate(string(body), 200)), nil)
	}
}

// parseRetryAfter reads a Retry-After header in either of its two forms,
// delay-seconds or an HTTP-date. Absent, malformed, or already-elapsed
// values return 0 and the caller falls back to computed backoff.
func parseRetryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		if seconds <= 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
