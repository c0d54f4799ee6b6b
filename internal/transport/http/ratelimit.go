package http

import (
	"time"

	"golang.org/x/time/rate"
)

// rateLimiter bounds inbound frames per connection. A nil limiter admits
// everything.
type rateLimiter struct {
	limiter *rate.Limiter
	now     func() time.Time
}

// newRateLimiter allows limit frames per minute with a burst of limit.
// It returns nil when limit is not positive.
func newRateLimiter(limit int) *rateLimiter {
	if limit <= 0 {
		return nil
	}
	return &rateLimiter{
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(limit)), limit),
		now:     time.Now,
	}
}

func (r *rateLimiter) allow() bool {
	if r == nil {
		return true
	}
	return r.limiter.AllowN(r.now(), 1)
}
