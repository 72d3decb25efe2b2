package harvest

import (
	"errors"
	"time"
)

// LinearRetryPolicy implements RetryPolicy with a linear schedule: the wait
// after failed attempt n is base*n. Content fetches hit many unrelated hosts
// once each, so a predictable ramp beats exponential growth here.
type LinearRetryPolicy struct {
	maxAttempts int
	base        time.Duration
}

// NewLinearRetryPolicy builds a policy. Non-positive arguments fall back to
// 3 attempts spaced from a 5s base.
func NewLinearRetryPolicy(maxAttempts int, base time.Duration) *LinearRetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if base <= 0 {
		base = 5 * time.Second
	}
	return &LinearRetryPolicy{maxAttempts: maxAttempts, base: base}
}

// MaxAttempts reports the attempt ceiling.
func (p *LinearRetryPolicy) MaxAttempts() int { return p.maxAttempts }

// ShouldRetry decides whether the error from the given 1-based attempt
// deserves another try. Empty pages and robots denials are terminal;
// network and timeout failures are not.
func (p *LinearRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.maxAttempts {
		return false
	}
	if errors.Is(err, ErrEmptyContent) {
		return false
	}
	var cerr *ContentError
	if errors.As(err, &cerr) && cerr.Terminal() {
		return false
	}
	return true
}

// Backoff returns the wait duration after the given 1-based attempt.
func (p *LinearRetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(attempt) * p.base
}
