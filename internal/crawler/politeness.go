package crawler

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/rcw-statute-crawler/internal/metrics"
)

// Pauser abstracts how the crawler sleeps so tests can skip real waits.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}

// TimerPauser waits on a timer and returns early when ctx is done.
type TimerPauser struct{}

// Pause blocks for delay or until ctx is done.
func (TimerPauser) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// RateLimiter caps outbound request rates.
type RateLimiter interface {
	Wait(ctx context.Context, url string) error
}

// PoliteConfig tunes the pre-request delay and retry discipline.
type PoliteConfig struct {
	MinDelay    time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
	BackoffUnit time.Duration
	// Limiter is consulted before every attempt when set.
	Limiter RateLimiter
}

// PoliteFetcher throttles and retries an underlying Fetcher.
type PoliteFetcher struct {
	next    Fetcher
	cfg     PoliteConfig
	policy  *LinearRetryPolicy
	pauser  Pauser
	limiter RateLimiter
	jitter  func(lo, hi time.Duration) time.Duration
	logger  *zap.Logger
}

// NewPoliteFetcher wraps next with a random pre-request delay and bounded retries.
func NewPoliteFetcher(next Fetcher, cfg PoliteConfig, pauser Pauser, logger *zap.Logger) *PoliteFetcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultFetchAttempts
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	if pauser == nil {
		pauser = TimerPauser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PoliteFetcher{
		next:    next,
		cfg:     cfg,
		policy:  NewLinearRetryPolicy(cfg.MaxAttempts, cfg.BackoffUnit, nil),
		pauser:  pauser,
		limiter: cfg.Limiter,
		jitter:  uniformDelay,
		logger:  logger,
	}
}

// Fetch sleeps a random delay, then tries the URL up to MaxAttempts times.
// Exhaustion returns an error wrapping ErrFetchFailed.
func (f *PoliteFetcher) Fetch(ctx context.Context, url string) (Page, error) {
	f.pauser.Pause(ctx, f.jitter(f.cfg.MinDelay, f.cfg.MaxDelay))

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return Page{}, fmt.Errorf("fetch %s: %w", url, err)
		}
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, url); err != nil {
				return Page{}, fmt.Errorf("fetch %s: %w", url, err)
			}
		}
		page, err := f.next.Fetch(ctx, url)
		if err == nil {
			metrics.ObserveFetch(metrics.FetchOK)
			return page, nil
		}
		lastErr = err
		metrics.ObserveFetch(metrics.FetchRetry)
		f.logger.Warn(fmt.Sprintf("Fetch attempt %d failed for %s", attempt, url), zap.Error(err))
		if !f.policy.ShouldRetry(err, attempt) {
			break
		}
		f.pauser.Pause(ctx, f.policy.Backoff(attempt))
	}
	if ctx.Err() != nil {
		return Page{}, fmt.Errorf("fetch %s: %w", url, ctx.Err())
	}
	metrics.ObserveFetch(metrics.FetchFailed)
	f.logger.Error(fmt.Sprintf("Failed to fetch %s after %d attempts.", url, f.policy.MaxAttempts()), zap.Error(lastErr))
	return Page{}, fmt.Errorf("%w: %s: %w", ErrFetchFailed, url, lastErr)
}

func uniformDelay(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo)
}
