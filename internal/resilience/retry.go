package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// BackoffFunc returns the pause after the given failed attempt (0-based).
type BackoffFunc func(attempt int) time.Duration

// SleepFunc pauses for d or until ctx is done, returning ctx.Err() in the
// latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryConfig controls how many times an operation runs and how long to
// pause between runs.
type RetryConfig struct {
	// MaxAttempts is the total number of runs including the first.
	// Default: 3.
	MaxAttempts int

	// Backoff computes the pause after a failed attempt. Default:
	// Exponential(500ms, 30s, 0.25).
	Backoff BackoffFunc

	// Sleep performs the pause. Default: SleepContext.
	Sleep SleepFunc

	// ShouldRetry decides whether an error is retryable. Default:
	// IsTransient.
	ShouldRetry func(err error) bool

	// OnRetry runs before each pause with the 1-based number of the
	// attempt that failed.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig returns the configuration used for plain HTTP APIs.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		Backoff:     Exponential(500*time.Millisecond, 30*time.Second, 0.25),
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, exhausts
// MaxAttempts, or ctx is done.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for operations that produce a value.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = applyDefaults(cfg)

	var zero T
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, err
		}

		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !cfg.ShouldRetry(err) {
			return zero, err
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err)
		}
		if cfg.Sleep(ctx, cfg.Backoff(attempt)) != nil {
			return zero, lastErr
		}
	}
	return zero, lastErr
}

func applyDefaults(cfg RetryConfig) RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff == nil {
		cfg.Backoff = Exponential(500*time.Millisecond, 30*time.Second, 0.25)
	}
	if cfg.Sleep == nil {
		cfg.Sleep = SleepContext
	}
	if cfg.ShouldRetry == nil {
		cfg.ShouldRetry = IsTransient
	}
	return cfg
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Exponential doubles initial per attempt up to maxDelay, then applies
// ±jitterFraction of random jitter.
func Exponential(initial, maxDelay time.Duration, jitterFraction float64) BackoffFunc {
	return func(attempt int) time.Duration {
		delay := float64(initial) * math.Pow(2, float64(attempt))
		if delay > float64(maxDelay) {
			delay = float64(maxDelay)
		}
		if jitterFraction > 0 {
			delay += (rand.Float64()*2 - 1) * delay * jitterFraction
		}
		return time.Duration(max(delay, 0))
	}
}

// QuotaBackoff waits base plus 2^attempt seconds plus up to maxJitter of
// random jitter. Quota windows are measured in seconds, so the growth is
// additive on top of a fixed floor.
func QuotaBackoff(base, maxJitter time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		d := base + time.Duration(math.Pow(2, float64(attempt)))*time.Second
		if maxJitter > 0 {
			d += time.Duration(rand.Int64N(int64(maxJitter) + 1))
		}
		return d
	}
}

// RetryLogger returns an OnRetry callback that logs each retry at warn.
func RetryLogger(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
