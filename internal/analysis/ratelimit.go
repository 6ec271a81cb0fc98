package analysis

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/tanshuai2008/HouSmart-test/internal/resilience"
)

// Rate limiter defaults.
const (
	DefaultWindow    = 60 * time.Second
	DefaultMaxCalls  = 15
	DefaultFullWait  = 5 * time.Second
	DefaultMinGap    = 2500 * time.Millisecond
	DefaultMaxJitter = 500 * time.Millisecond
)

// RateLimiter paces model calls. It keeps at most MaxCalls call times in a
// sliding window and spaces consecutive calls by at least MinGap plus
// jitter. Slots are reserved under the mutex; sleeping happens outside it.
type RateLimiter struct {
	mu     sync.Mutex
	last   time.Time
	recent []time.Time

	window    time.Duration
	maxCalls  int
	fullWait  time.Duration
	minGap    time.Duration
	maxJitter time.Duration

	now    func() time.Time
	sleep  resilience.SleepFunc
	jitter func(max time.Duration) time.Duration
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithWindow sets the sliding window length and call cap.
func WithWindow(window time.Duration, maxCalls int) RateLimiterOption {
	return func(l *RateLimiter) {
		if window > 0 {
			l.window = window
		}
		if maxCalls > 0 {
			l.maxCalls = maxCalls
		}
	}
}

// WithSpacing sets the minimum gap between calls and the jitter bound.
func WithSpacing(minGap, maxJitter time.Duration) RateLimiterOption {
	return func(l *RateLimiter) {
		l.minGap = max(0, minGap)
		l.maxJitter = max(0, maxJitter)
	}
}

// WithFullWait sets how long to wait before re-checking a full window.
func WithFullWait(d time.Duration) RateLimiterOption {
	return func(l *RateLimiter) {
		if d > 0 {
			l.fullWait = d
		}
	}
}

// WithLimiterClock replaces the time source and sleep function.
func WithLimiterClock(now func() time.Time, sleep resilience.SleepFunc) RateLimiterOption {
	return func(l *RateLimiter) {
		l.now = now
		l.sleep = sleep
	}
}

// WithJitter replaces the jitter source.
func WithJitter(fn func(max time.Duration) time.Duration) RateLimiterOption {
	return func(l *RateLimiter) { l.jitter = fn }
}

// NewRateLimiter creates a RateLimiter with the default limits.
func NewRateLimiter(opts ...RateLimiterOption) *RateLimiter {
	l := &RateLimiter{
		window:    DefaultWindow,
		maxCalls:  DefaultMaxCalls,
		fullWait:  DefaultFullWait,
		minGap:    DefaultMinGap,
		maxJitter: DefaultMaxJitter,
		now:       time.Now,
		sleep:     resilience.SleepContext,
		jitter:    randomJitter,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(limit) + 1))
}

// Wait blocks until a call may proceed and returns how long it waited.
func (l *RateLimiter) Wait(ctx context.Context) (time.Duration, error) {
	var waited time.Duration
	for {
		if err := ctx.Err(); err != nil {
			return waited, err
		}

		delay, ok := l.reserve()
		if !ok {
			if err := l.sleep(ctx, l.fullWait); err != nil {
				return waited, err
			}
			waited += l.fullWait
			continue
		}

		if err := l.sleep(ctx, delay); err != nil {
			return waited, err
		}
		return waited + delay, nil
	}
}

// reserve books the next slot and returns the delay until it. It reports
// false when the window is full.
func (l *RateLimiter) reserve() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	kept := l.recent[:0]
	for _, t := range l.recent {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.recent = kept
	if len(l.recent) >= l.maxCalls {
		return 0, false
	}

	slot := now
	if !l.last.IsZero() {
		if next := l.last.Add(l.minGap + l.jitter(l.maxJitter)); next.After(slot) {
			slot = next
		}
	}
	l.last = slot
	l.recent = append(l.recent, slot)
	return slot.Sub(now), true
}

// InWindow returns how many reserved calls fall inside the window ending
// now.
func (l *RateLimiter) InWindow() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.window)
	n := 0
	for _, t := range l.recent {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}
