package telegram

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter spaces outbound protocol calls. With a burst of one the
// limiter admits at most one call per spacing interval, so consecutive calls
// start at least spacing apart.
type RateLimiter struct {
	limiter *rate.Limiter
	spacing time.Duration
}

// NewRateLimiter creates a limiter with a fixed spacing between calls.
// A non-positive spacing disables waiting.
func NewRateLimiter(spacing time.Duration) *RateLimiter {
	limit := rate.Inf
	if spacing > 0 {
		limit = rate.Every(spacing)
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(limit, 1),
		spacing: spacing,
	}
}

// DefaultRateLimiter returns a limiter with one second spacing.
func DefaultRateLimiter() *RateLimiter {
	return NewRateLimiter(time.Second)
}

// Wait blocks until the next call is allowed.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Spacing returns the configured interval.
func (r *RateLimiter) Spacing() time.Duration {
	return r.spacing
}
