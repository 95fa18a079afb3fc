package crawler

import (
	"context"
	"errors"
	"time"
)

// Default retry bounds.
const (
	DefaultFetchAttempts = 3
	DefaultStoreAttempts = 5
	DefaultBackoffUnit   = 2 * time.Second
)

// LinearRetryPolicy bounds attempts and waits attempt*unit between them.
type LinearRetryPolicy struct {
	maxAttempts int
	unit        time.Duration
	retryable   func(error) bool
}

// NewLinearRetryPolicy builds a policy. A nil retryable retries every error.
func NewLinearRetryPolicy(maxAttempts int, unit time.Duration, retryable func(error) bool) *LinearRetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if unit < 0 {
		unit = 0
	}
	return &LinearRetryPolicy{
		maxAttempts: maxAttempts,
		unit:        unit,
		retryable:   retryable,
	}
}

// MaxAttempts returns the attempt bound.
func (p *LinearRetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry decides whether another attempt follows attempt (1-based) failing with err.
func (p *LinearRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if p.retryable != nil {
		return p.retryable(err)
	}
	return true
}

// Backoff returns the wait after the given failed attempt (1-based).
func (p *LinearRetryPolicy) Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return time.Duration(attempt) * p.unit
}
