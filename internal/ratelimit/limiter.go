// Package ratelimit paces outbound calls to external data providers.
//
// Each source gets an independent budget: a requests-per-minute token
// bucket, a minimum spacing between consecutive calls, and an exponential
// backoff that kicks in after failures. Unknown sources pass through
// unthrottled.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SourceConfig is the pacing budget for one source.
type SourceConfig struct {
	RPM         int
	MinInterval time.Duration
}

// maxBackoff caps the failure backoff.
const maxBackoff = 300 * time.Second

type sourceState struct {
	limiter     *rate.Limiter
	minInterval time.Duration

	mu           sync.Mutex
	lastCall     time.Time
	failures     int
	backoffUntil time.Time
}

// Limiter coordinates call pacing across all configured sources. It is
// safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	sources map[string]*sourceState

	// injected for tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a Limiter from per-source budgets.
func New(cfgs map[string]SourceConfig) *Limiter {
	l := &Limiter{
		sources: make(map[string]*sourceState, len(cfgs)),
		now:     time.Now,
		sleep:   sleepCtx,
	}
	for name, cfg := range cfgs {
		rpm := cfg.RPM
		if rpm <= 0 {
			rpm = 60
		}
		l.sources[name] = &sourceState{
			limiter:     rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
			minInterval: cfg.MinInterval,
		}
	}
	return l
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (l *Limiter) state(source string) *sourceState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sources[source]
}

// Acquire blocks until a call to source is permitted, or ctx is canceled.
// The wait covers the per-minute token bucket, any active failure
// backoff, and the minimum inter-call spacing.
func (l *Limiter) Acquire(ctx context.Context, source string) error {
	st := l.state(source)
	if st == nil {
		return nil
	}

	if err := st.limiter.Wait(ctx); err != nil {
		return err
	}

	// The slot is claimed under the lock: spacing is recomputed after
	// every sleep, so concurrent acquirers of the same source cannot both
	// observe the old lastCall and proceed inside the minimum interval.
	for {
		st.mu.Lock()
		now := l.now()
		var wait time.Duration
		if until := st.backoffUntil; until.After(now) {
			wait = until.Sub(now)
		}
		if !st.lastCall.IsZero() {
			if gap := st.minInterval - now.Sub(st.lastCall); gap > wait {
				wait = gap
			}
		}
		if wait <= 0 {
			st.lastCall = now
			st.mu.Unlock()
			return nil
		}
		st.mu.Unlock()

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// RecordSuccess clears the failure backoff for source.
func (l *Limiter) RecordSuccess(source string) {
	st := l.state(source)
	if st == nil {
		return
	}
	st.mu.Lock()
	st.failures = 0
	st.backoffUntil = time.Time{}
	st.mu.Unlock()
}

// RecordFailure advances the failure backoff: min(2^n, 300) seconds after
// the n-th consecutive failure.
func (l *Limiter) RecordFailure(source string) {
	st := l.state(source)
	if st == nil {
		return
	}
	st.mu.Lock()
	st.failures++
	st.backoffUntil = l.now().Add(Backoff(st.failures))
	st.mu.Unlock()
}

// Failures returns the consecutive failure count for source.
func (l *Limiter) Failures(source string) int {
	st := l.state(source)
	if st == nil {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.failures
}

// Backoff returns the delay applied after n consecutive failures.
func Backoff(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	if n > 8 {
		return maxBackoff
	}
	d := time.Duration(math.Pow(2, float64(n))) * time.Second
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}
