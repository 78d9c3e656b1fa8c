package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Config holds rate limiting and retry configuration for outbound calls
type Config struct {
	RequestsPerSecond int
	MaxRetries        int
	InitialBackoffMs  int
	MaxBackoffMs      int
}

// DefaultConfig returns conservative defaults for external channel APIs,
// which throttle report endpoints aggressively.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 2,
		MaxRetries:        3,
		InitialBackoffMs:  200,
		MaxBackoffMs:      30000,
	}
}

// RateLimiter throttles outbound requests to a fixed rate
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a rate limiter from the given config
func NewRateLimiter(config Config) *RateLimiter {
	rps := config.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}
}

// Throttle blocks until a request may proceed or the context is cancelled
func (r *RateLimiter) Throttle(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// SetConfig replaces the limiter's rate
func (r *RateLimiter) SetConfig(config Config) {
	rps := config.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	r.limiter.SetLimit(rate.Limit(rps))
	r.limiter.SetBurst(rps)
}
