// Package throttle spaces out calls to external services by a fixed delay.
package throttle

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttle lets the first call through immediately and holds each later call
// until delay has passed since the previous one. A nil Throttle never waits.
type Throttle struct {
	limiter *rate.Limiter
}

func New(delay time.Duration) *Throttle {
	if delay <= 0 {
		return &Throttle{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Throttle{limiter: rate.NewLimiter(rate.Every(delay), 1)}
}

// Wait blocks until the next call may proceed or ctx is done.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil || t.limiter == nil {
		return ctx.Err()
	}
	return t.limiter.Wait(ctx)
}
