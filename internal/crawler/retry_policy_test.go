package crawler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLinearRetryPolicy(t *testing.T) {
	p := NewLinearRetryPolicy(3, 2*time.Second, nil)
	boom := errors.New("boom")

	assert.Equal(t, 3, p.MaxAttempts())
	assert.True(t, p.ShouldRetry(boom, 1))
	assert.True(t, p.ShouldRetry(boom, 2))
	assert.False(t, p.ShouldRetry(boom, 3))
	assert.False(t, p.ShouldRetry(nil, 1))
	assert.False(t, p.ShouldRetry(fmt.Errorf("wrapped: %w", context.Canceled), 1))

	assert.Equal(t, time.Duration(0), p.Backoff(0))
	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 4*time.Second, p.Backoff(2))
	assert.Equal(t, 8*time.Second, p.Backoff(4))
}

func TestLinearRetryPolicyRetryableFilter(t *testing.T) {
	p := NewLinearRetryPolicy(5, time.Second, func(err error) bool {
		return errors.Is(err, ErrStoreLocked)
	})
	assert.True(t, p.ShouldRetry(fmt.Errorf("x: %w", ErrStoreLocked), 1))
	assert.False(t, p.ShouldRetry(errors.New("constraint"), 1))
}

func TestLinearRetryPolicyClampsBounds(t *testing.T) {
	p := NewLinearRetryPolicy(0, -time.Second, nil)
	assert.Equal(t, 1, p.MaxAttempts())
	assert.False(t, p.ShouldRetry(errors.New("boom"), 1))
	assert.Equal(t, time.Duration(0), p.Backoff(3))
}
