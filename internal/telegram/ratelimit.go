package telegram

import (
	"context"
	"sync"
	"time"

	"github.com/gotd/td/tgerr"
	"golang.org/x/time/rate"
)

// RateLimiter paces requests to the Telegram API and honours FLOOD_WAIT.
type RateLimiter struct {
	limiter *rate.Limiter

	mu             sync.Mutex
	floodWaitUntil time.Time
}

// NewRateLimiter creates a limiter allowing rps requests per second.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// DefaultRateLimiter returns a limiter safe for a user account posting
// into a handful of channels.
func DefaultRateLimiter() *RateLimiter {
	return NewRateLimiter(2.0, 3)
}

// Wait blocks until the next request is allowed.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	until := r.floodWaitUntil
	r.mu.Unlock()

	if d := time.Until(until); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return r.limiter.Wait(ctx)
}

// SetFloodWait pauses all requests for d. A shorter pause never
// overrides a pending longer one.
func (r *RateLimiter) SetFloodWait(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if until := time.Now().Add(d); until.After(r.floodWaitUntil) {
		r.floodWaitUntil = until
	}
}

// Observe inspects an API error and applies a FLOOD_WAIT pause if it
// carries one.
func (r *RateLimiter) Observe(err error) (time.Duration, bool) {
	d, ok := tgerr.AsFloodWait(err)
	if !ok {
		return 0, false
	}
	r.SetFloodWait(d)
	return d, true
}
