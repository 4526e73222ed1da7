// Package providerutil holds retry/backoff and rate-limiting plumbing
// shared by the provider/anthropic, provider/openai, and provider/bedrock
// adapters. Retry is grounded on the teacher's providers.BaseProvider
// (providers/base.go); the limiter is grounded on the per-tier
// golang.org/x/time/rate use in the kubilitics-backend rate-limit
// middleware, applied here per-provider instead of per-IP.
package providerutil

import (
	"context"
	"math"
	"time"

	"golang.org/x/time/rate"
)

// Retrier runs an operation with exponential backoff when isRetryable says
// the failure is transient. Embed it in a provider struct the same way the
// teacher embeds BaseProvider.
type Retrier struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// NewRetrier applies the teacher's defaults (3 retries, 1s base delay) when
// either argument is non-positive.
func NewRetrier(maxRetries int, baseDelay time.Duration) Retrier {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return Retrier{MaxRetries: maxRetries, BaseDelay: baseDelay}
}

// Do calls op, retrying with exponential backoff (baseDelay * 2^attempt)
// while isRetryable(err) holds, up to MaxRetries retries after the first
// attempt (MaxRetries+1 calls of op in all).
func (r Retrier) Do(ctx context.Context, isRetryable func(error) bool, op func(attempt int) error) error {
	var lastErr error
	for attempt := 0; attempt <= r.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := op(attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if isRetryable == nil || !isRetryable(err) || attempt >= r.MaxRetries {
			return err
		}
		backoff := time.Duration(float64(r.BaseDelay) * math.Pow(2, float64(attempt)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return lastErr
}

// NewLimiter builds a token-bucket limiter admitting requestsPerMinute
// requests per minute, bursting up to burst at once. A non-positive
// requestsPerMinute disables limiting (Wait always returns immediately).
func NewLimiter(requestsPerMinute, burst int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst)
}
