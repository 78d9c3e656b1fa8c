package ratelimit

import (
	"math"
	"math/rand"
	"strconv"
	"time"
)

// FetchRetryError represents an error when all retry attempts are exhausted
type FetchRetryError struct {
	URL        string
	Attempts   int
	LastStatus int
	LastError  error
}

func (e *FetchRetryError) Error() string {
	msg := "failed to fetch " + e.URL + " after " + strconv.Itoa(e.Attempts) + " attempts"
	if e.LastStatus != 0 {
		msg += " (HTTP " + strconv.Itoa(e.LastStatus) + ")"
	}
	if e.LastError != nil {
		msg += ": " + e.LastError.Error()
	}
	return msg
}

func (e *FetchRetryError) Unwrap() error {
	return e.LastError
}

// IsRetryableStatus checks if an HTTP status code is retryable.
// Retryable: 429, 500-599
func IsRetryableStatus(status int) bool {
	return status == 429 || (status >= 500 && status < 600)
}

// CalculateBackoff calculates exponential backoff delay for a given attempt,
// with 0-25% jitter to prevent thundering herd.
func CalculateBackoff(attempt int, config Config) time.Duration {
	exponentialDelay := float64(config.InitialBackoffMs) * math.Pow(2.0, float64(attempt))
	cappedDelay := math.Min(exponentialDelay, float64(config.MaxBackoffMs))
	jitter := rand.Float64() * 0.25 * cappedDelay
	return time.Duration(cappedDelay+jitter) * time.Millisecond
}

// CalculateRateLimitBackoff calculates backoff for HTTP 429 responses. Uses a
// 3x multiplier instead of 2x, and respects a server-provided Retry-After.
func CalculateRateLimitBackoff(attempt int, config Config, retryAfterHeader *string) time.Duration {
	if retryAfterHeader != nil {
		if seconds, err := strconv.Atoi(*retryAfterHeader); err == nil && seconds > 0 {
			jitter := time.Duration(rand.Intn(1000)) * time.Millisecond
			return time.Duration(seconds)*time.Second + jitter
		}
	}

	exponentialDelay := float64(config.InitialBackoffMs) * math.Pow(3.0, float64(attempt))
	cappedDelay := math.Min(exponentialDelay, float64(config.MaxBackoffMs))
	jitter := rand.Float64() * 0.25 * cappedDelay
	return time.Duration(cappedDelay+jitter) * time.Millisecond
}
