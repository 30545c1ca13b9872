package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/signalnine/toolsgen/internal/metrics"
)

// Bucket is a token bucket shared by every worker of a run. Capacity is the
// burst size and refill is tokens per second. Reservations are served in
// arrival order, so no caller waits while tokens are available.
type Bucket struct {
	limiter  *rate.Limiter
	capacity int
}

// New creates a bucket that starts full. A non-positive capacity or refill
// rate disables limiting.
func New(capacity int, refillPerSecond float64) *Bucket {
	if capacity <= 0 || refillPerSecond <= 0 {
		return &Bucket{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	return &Bucket{
		limiter:  rate.NewLimiter(rate.Limit(refillPerSecond), capacity),
		capacity: capacity,
	}
}

// Acquire blocks until n tokens are available and deducts them. It fails only
// when ctx ends first; a deadline shorter than the wait is simply reached,
// and the reservation is handed back.
func (b *Bucket) Acquire(ctx context.Context, n int) error {
	if n < 1 {
		return nil
	}
	if b.capacity > 0 && n > b.capacity {
		return fmt.Errorf("requested %d tokens exceeds bucket capacity %d", n, b.capacity)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	r := b.limiter.ReserveN(start, n)
	if !r.OK() {
		return fmt.Errorf("rate limiter cannot grant %d tokens", n)
	}
	if d := r.DelayFrom(start); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			r.Cancel()
			return ctx.Err()
		}
	}
	metrics.RateLimitWaitSeconds.Observe(time.Since(start).Seconds())
	return nil
}

// Tokens reports the tokens currently available.
func (b *Bucket) Tokens() float64 {
	if b.capacity == 0 {
		return float64(rate.Inf)
	}
	return b.limiter.Tokens()
}

// Capacity is the burst size, zero when unlimited.
func (b *Bucket) Capacity() int { return b.capacity }
