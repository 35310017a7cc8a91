package harvest

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateThrottle spaces remote calls with a token bucket. The remote
// repository expects a polite delay between consecutive requests, so the
// wait is mandatory rather than best-effort.
type RateThrottle struct {
	limiter *rate.Limiter
}

// NewRateThrottle builds a throttle allowing rps requests per second.
// A non-positive rps disables throttling.
func NewRateThrottle(rps float64, burst int) *RateThrottle {
	r := rate.Limit(rps)
	if rps <= 0 {
		r = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateThrottle{limiter: rate.NewLimiter(r, burst)}
}

// Wait blocks until the next request is allowed, respecting the context.
func (t *RateThrottle) Wait(ctx context.Context) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("throttle wait: %w", err)
	}
	return nil
}
