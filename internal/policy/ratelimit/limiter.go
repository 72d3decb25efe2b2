// Package ratelimit implements a token bucket politeness limiter keyed by host.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

// waitDelay records the stall a caller absorbed before receiving a token.
// Sub-millisecond waits are noise and skipped.
var waitDelay = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "harvest_ratelimit_wait_seconds",
	Help:    "Delay introduced by the per-host politeness limiter.",
	Buckets: prometheus.DefBuckets,
}, []string{"host"})

// Config holds rate limiter settings shared by every host bucket.
type Config struct {
	// HostQPS is the sustained request rate per host; zero or negative
	// disables limiting.
	HostQPS float64
	// HostBurst is the token bucket depth per host (minimum 1).
	HostBurst int
}

// Limiter spaces outbound requests per host. The content phase fans out
// across many hosts at once, so each host gets its own token bucket and an
// unknown host never waits behind a busy one.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	qps      rate.Limit
	burst    int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	qps := rate.Limit(cfg.HostQPS)
	if cfg.HostQPS <= 0 {
		qps = rate.Inf
	}
	burst := cfg.HostBurst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		qps:      qps,
		burst:    burst,
	}
}

// Wait blocks until a token is available for the given host, respecting the
// context. An empty host shares one bucket under "unknown".
func (l *Limiter) Wait(ctx context.Context, host string) error {
	if host == "" {
		host = "unknown"
	}
	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.qps, l.burst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if delay := time.Since(start); delay > time.Millisecond {
		waitDelay.WithLabelValues(host).Observe(delay.Seconds())
	}
	return nil
}
