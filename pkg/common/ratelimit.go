package common

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter caps outbound requests to the protection service. One limiter
// is shared by submissions, status polls and downloads, so a tight poll loop
// cannot crowd out an in-flight upload.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a limiter allowing rps requests per second with the
// given burst headroom.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until the next request may proceed or ctx is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.limiter.Wait(ctx)
}
