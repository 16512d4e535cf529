// Package ratelimiter throttles the requests a storage sends to its backend.
//
// Object stores bill and throttle per request, so a storage can be given a
// sustained request rate in its configuration. Every adapter call then takes
// one token from a token bucket before reaching the backend.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter provides request rate limiting using the token bucket algorithm.
//
// Tokens are added to the bucket at a constant rate. Each request consumes
// one token. The burst is the bucket capacity, so short spikes above the
// sustained rate are served immediately.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter with the given sustained rate and burst.
//
// A zero requestsPerSecond disables limiting. A zero burst defaults to
// requestsPerSecond so at least one request can always proceed.
//
// Example:
//
//	// Allow 100 req/s sustained, bursts of 200
//	limiter := ratelimiter.New(100, 200)
func New(requestsPerSecond, burst uint) *RateLimiter {
	if requestsPerSecond == 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst == 0 {
		burst = requestsPerSecond
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst)),
	}
}

// Allow reports whether a request may proceed now, consuming a token if so.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Tokens returns the number of tokens currently available.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}
