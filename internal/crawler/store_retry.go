package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/rcw-statute-crawler/internal/metrics"
)

// LockRetryStore retries upserts that fail with ErrStoreLocked.
type LockRetryStore struct {
	next   StatuteStore
	policy *LinearRetryPolicy
	pauser Pauser
	logger *zap.Logger
}

// NewLockRetryStore wraps next with a bounded, linearly backed-off lock retry.
func NewLockRetryStore(next StatuteStore, maxAttempts int, unit time.Duration, pauser Pauser, logger *zap.Logger) *LockRetryStore {
	if maxAttempts <= 0 {
		maxAttempts = DefaultStoreAttempts
	}
	if pauser == nil {
		pauser = TimerPauser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LockRetryStore{
		next: next,
		policy: NewLinearRetryPolicy(maxAttempts, unit, func(err error) bool {
			return errors.Is(err, ErrStoreLocked)
		}),
		pauser: pauser,
		logger: logger,
	}
}

// Exists delegates to the wrapped store without retrying.
func (s *LockRetryStore) Exists(ctx context.Context, citation string) (bool, error) {
	return s.next.Exists(ctx, citation)
}

// Upsert writes the statute, retrying while the store reports lock contention.
func (s *LockRetryStore) Upsert(ctx context.Context, statute Statute) error {
	for attempt := 1; ; attempt++ {
		err := s.next.Upsert(ctx, statute)
		if err == nil {
			return nil
		}
		if !s.policy.ShouldRetry(err, attempt) {
			if errors.Is(err, ErrStoreLocked) {
				return fmt.Errorf("upsert %s: still locked after %d attempts: %w", statute.Citation, attempt, err)
			}
			return fmt.Errorf("upsert %s: %w", statute.Citation, err)
		}
		wait := s.policy.Backoff(attempt)
		metrics.ObserveStoreLockRetry()
		s.logger.Warn(fmt.Sprintf("Database locked. Retrying %s in %s...", statute.Citation, wait))
		s.pauser.Pause(ctx, wait)
	}
}
