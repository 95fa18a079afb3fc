package crawler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordingPauser struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (p *recordingPauser) Pause(_ context.Context, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delays = append(p.delays, d)
}

type scriptedFetcher struct {
	calls int
	errs  []error
}

func (f *scriptedFetcher) Fetch(_ context.Context, url string) (Page, error) {
	f.calls++
	if f.calls <= len(f.errs) && f.errs[f.calls-1] != nil {
		return Page{}, f.errs[f.calls-1]
	}
	return Page{URL: url, StatusCode: 200, Body: []byte("ok")}, nil
}

func newTestPoliteFetcher(next Fetcher, pauser Pauser, logger *zap.Logger) *PoliteFetcher {
	f := NewPoliteFetcher(next, PoliteConfig{
		MinDelay:    500 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		MaxAttempts: 3,
		BackoffUnit: 2 * time.Second,
	}, pauser, logger)
	f.jitter = func(lo, _ time.Duration) time.Duration { return lo }
	return f
}

func TestPoliteFetcherExhaustsAfterThreeAttempts(t *testing.T) {
	boom := errors.New("connection reset")
	next := &scriptedFetcher{errs: []error{boom, boom, boom, boom}}
	pauser := &recordingPauser{}
	core, logs := observer.New(zap.InfoLevel)

	_, err := newTestPoliteFetcher(next, pauser, zap.New(core)).Fetch(context.Background(), "https://x/?cite=1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, next.calls)
	// One politeness delay, then a linear backoff between attempts only.
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 2 * time.Second, 4 * time.Second}, pauser.delays)

	assert.Equal(t, 3, logs.FilterMessageSnippet("Fetch attempt").Len())
	assert.Equal(t, 1, logs.FilterMessage("Failed to fetch https://x/?cite=1 after 3 attempts.").Len())
}

func TestPoliteFetcherRecoversOnSecondAttempt(t *testing.T) {
	next := &scriptedFetcher{errs: []error{errors.New("timeout")}}
	pauser := &recordingPauser{}

	page, err := newTestPoliteFetcher(next, pauser, nil).Fetch(context.Background(), "https://x/")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(page.Body))
	assert.Equal(t, 2, next.calls)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 2 * time.Second}, pauser.delays)
}

func TestPoliteFetcherStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	next := &scriptedFetcher{}

	_, err := newTestPoliteFetcher(next, &recordingPauser{}, nil).Fetch(ctx, "https://x/")
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrFetchFailed)
	assert.Zero(t, next.calls)
}

func TestUniformDelayStaysInRange(t *testing.T) {
	lo, hi := 500*time.Millisecond, 2*time.Second
	for i := 0; i < 100; i++ {
		d := uniformDelay(lo, hi)
		assert.GreaterOrEqual(t, d, lo)
		assert.Less(t, d, hi)
	}
	assert.Equal(t, lo, uniformDelay(lo, lo))
}

func TestTimerPauserHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	TimerPauser{}.Pause(ctx, time.Minute)
	assert.Less(t, time.Since(start), time.Second)
}

type countingLimiter struct{ waits []string }

func (l *countingLimiter) Wait(_ context.Context, url string) error {
	l.waits = append(l.waits, url)
	return nil
}

func TestPoliteFetcherConsultsLimiterPerAttempt(t *testing.T) {
	boom := errors.New("reset")
	next := &scriptedFetcher{errs: []error{boom}}
	limiter := &countingLimiter{}
	f := NewPoliteFetcher(next, PoliteConfig{MaxAttempts: 3, Limiter: limiter}, &recordingPauser{}, nil)

	_, err := f.Fetch(context.Background(), "https://x/?cite=2")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://x/?cite=2", "https://x/?cite=2"}, limiter.waits)
}
