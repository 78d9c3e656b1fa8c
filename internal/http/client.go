// Package http wraps net/http with the rate limiting and retry behavior all
// outbound collaborator calls share. Retries here cover transport-level
// failures only; callers decide what a failed call means for their own state.
package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/channelsync/inventory-service/internal/http/ratelimit"
)

// Client is an HTTP client with rate limiting and bounded retry
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.RateLimiter
	config      ratelimit.Config
	headers     map[string]string
}

// NewClient creates a new HTTP client with the given rate limiting config.
// Extra headers (auth tokens, etc.) are sent on every request.
func NewClient(config ratelimit.Config, headers map[string]string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		rateLimiter: ratelimit.NewRateLimiter(config),
		config:      config,
		headers:     headers,
	}
}

// NewClientDefault creates a new HTTP client with default rate limiting
func NewClientDefault() *Client {
	return NewClient(ratelimit.DefaultConfig(), nil)
}

// GetJSON performs a GET request and returns the response body
func (c *Client) GetJSON(ctx context.Context, url string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, url, nil)
}

// PostJSON performs a POST request with a JSON body and returns the response body
func (c *Client) PostJSON(ctx context.Context, url string, body []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, url, body)
}

func (c *Client) do(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	var lastStatus int
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if err := c.rateLimiter.Throttle(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", "ChannelSync-InventoryService/1.0")
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range c.headers {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if attempt < c.config.MaxRetries {
				sleep(ctx, ratelimit.CalculateBackoff(attempt, c.config))
				continue
			}
			break
		}

		lastStatus = resp.StatusCode

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			data, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("failed to read response body: %w", err)
			}
			return data, nil
		}

		resp.Body.Close()

		// Non-retryable status - fail immediately
		if !ratelimit.IsRetryableStatus(resp.StatusCode) {
			return nil, &ratelimit.FetchRetryError{
				URL:        url,
				Attempts:   attempt + 1,
				LastStatus: resp.StatusCode,
			}
		}

		if attempt == c.config.MaxRetries {
			break
		}

		var backoff time.Duration
		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := resp.Header.Get("Retry-After")
			var retryAfterPtr *string
			if retryAfter != "" {
				retryAfterPtr = &retryAfter
			}
			backoff = ratelimit.CalculateRateLimitBackoff(attempt, c.config, retryAfterPtr)
		} else {
			backoff = ratelimit.CalculateBackoff(attempt, c.config)
		}
		sleep(ctx, backoff)
	}

	return nil, &ratelimit.FetchRetryError{
		URL:        url,
		Attempts:   c.config.MaxRetries + 1,
		LastStatus: lastStatus,
		LastError:  lastErr,
	}
}

// sleep waits for the duration or until the context is cancelled
func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
