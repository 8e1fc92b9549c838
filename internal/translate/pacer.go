package translate

import (
	"context"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Pacer enforces a minimum delay between backend calls. A single Pacer is
// shared by every engine that talks to the same rate-limited backend.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer returns a pacer allowing one call per delay; delay <= 0 disables pacing.
func NewPacer(delay time.Duration) *Pacer {
	if delay <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(delay), 1)}
}

// Wait blocks until the next call may start.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

// RetryPolicy is exponential backoff with full jitter.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Factor      float64
}

// DefaultRetryPolicy is 3 attempts, 500ms base, factor 2.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Base: 500 * time.Millisecond, Factor: 2}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Backoff returns a random wait in [0, base*factor^retry).
func (p RetryPolicy) Backoff(retry int) time.Duration {
	ceiling := float64(p.Base)
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}
	for i := 0; i < retry; i++ {
		ceiling *= factor
	}
	if ceiling < 1 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(ceiling)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CancelFlag is a cooperative cancel request checked between cues.
type CancelFlag struct {
	set atomic.Bool
}

func (f *CancelFlag) Cancel() {
	f.set.Store(true)
}

func (f *CancelFlag) Cancelled() bool {
	return f != nil && f.set.Load()
}
