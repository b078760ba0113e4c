// Package ratelimit paces outbound API requests against a single shared budget.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/hillwatch/internal/metrics"
)

// MinQPS is the slowest cadence the limiter accepts; lower values are raised to it.
const MinQPS = 0.1

// Limiter spaces requests evenly at a fixed rate across every caller that shares it.
// The underlying rate.Limiter keeps one mutex-guarded "next permissible time"; a
// burst of one means there is never more than a single request in the budget, so
// calls are serialized at exactly 1/qps intervals no matter how many goroutines wait.
type Limiter struct {
	limiter *rate.Limiter
	qps     float64
}

// New builds a Limiter for qps requests per second.
func New(qps float64) *Limiter {
	if qps < MinQPS {
		qps = MinQPS
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(qps), 1),
		qps:     qps,
	}
}

// QPS reports the effective request rate.
func (l *Limiter) QPS() float64 {
	return l.qps
}

// Interval is the spacing enforced between two consecutive requests.
func (l *Limiter) Interval() time.Duration {
	return time.Duration(float64(time.Second) / l.qps)
}

// Acquire blocks until one more request may be issued or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(waited)
	}
	return nil
}
