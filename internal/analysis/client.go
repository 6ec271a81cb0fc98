// Package analysis asks a generative model to score a location, with
// result caching, request pacing, quota retries and credential rotation.
package analysis

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tanshuai2008/HouSmart-test/internal/cache"
	"github.com/tanshuai2008/HouSmart-test/internal/monitoring"
	"github.com/tanshuai2008/HouSmart-test/internal/resilience"
)

// Client defaults.
const (
	DefaultAttemptsPerKey = 6
	DefaultCallTimeout    = 60 * time.Second
	DefaultTotalBudget    = 3 * time.Minute
	DefaultTemperature    = 0.7
	DefaultMaxTokens      = 2048
)

// Client runs analyses. It is safe for concurrent use.
type Client struct {
	model   Model
	pool    *CredentialPool
	limiter *RateLimiter
	cache   *cache.Cache
	metrics *monitoring.Metrics

	settings    Settings
	settingsFn  func() Settings
	attempts    int
	backoff     resilience.BackoffFunc
	sleep       resilience.SleepFunc
	callTimeout time.Duration
	budget      time.Duration
}

// Settings are the knobs read on every Analyze call.
type Settings struct {
	Disabled    bool
	Temperature float64
	MaxTokens   int
}

// Option configures a Client.
type Option func(*Client)

// WithCache enables result caching.
func WithCache(c *cache.Cache) Option {
	return func(cl *Client) { cl.cache = c }
}

// WithMetrics records attempts, rotations and limiter waits.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(cl *Client) { cl.metrics = m }
}

// WithDisabled turns the model off; Analyze then returns DisabledResult.
func WithDisabled(disabled bool) Option {
	return func(cl *Client) { cl.settings.Disabled = disabled }
}

// WithAttemptsPerKey sets how many calls a key gets before it is abandoned.
func WithAttemptsPerKey(n int) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.attempts = n
		}
	}
}

// WithBackoff sets the pause after a quota failure.
func WithBackoff(b resilience.BackoffFunc) Option {
	return func(cl *Client) { cl.backoff = b }
}

// WithSleep replaces the retry sleep.
func WithSleep(s resilience.SleepFunc) Option {
	return func(cl *Client) { cl.sleep = s }
}

// WithTimeouts bounds each model call and the whole analysis.
func WithTimeouts(call, total time.Duration) Option {
	return func(cl *Client) {
		if call > 0 {
			cl.callTimeout = call
		}
		if total > 0 {
			cl.budget = total
		}
	}
}

// WithGeneration sets sampling temperature and the output token cap.
func WithGeneration(temperature float64, maxTokens int) Option {
	return func(cl *Client) {
		cl.settings.Temperature = temperature
		if maxTokens > 0 {
			cl.settings.MaxTokens = maxTokens
		}
	}
}

// WithSettingsSource makes every Analyze call read its settings from fn,
// overriding WithDisabled and WithGeneration. A non-positive MaxTokens
// keeps the static cap.
func WithSettingsSource(fn func() Settings) Option {
	return func(cl *Client) { cl.settingsFn = fn }
}

// New creates a Client. A nil limiter gets the default limits.
func New(model Model, pool *CredentialPool, limiter *RateLimiter, opts ...Option) *Client {
	if limiter == nil {
		limiter = NewRateLimiter()
	}
	c := &Client{
		model:       model,
		pool:        pool,
		limiter:     limiter,
		attempts:    DefaultAttemptsPerKey,
		backoff:     resilience.QuotaBackoff(5*time.Second, time.Second),
		sleep:       resilience.SleepContext,
		callTimeout: DefaultCallTimeout,
		budget:      DefaultTotalBudget,
		settings:    Settings{Temperature: DefaultTemperature, MaxTokens: DefaultMaxTokens},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) current() Settings {
	if c.settingsFn == nil {
		return c.settings
	}
	s := c.settingsFn()
	if s.MaxTokens <= 0 {
		s.MaxTokens = c.settings.MaxTokens
	}
	return s
}

// Analyze returns the model's assessment for in. Cached results are
// returned with CacheMeta set; requests with user preferences never touch
// the cache. On failure Analyze returns a degraded Result together with
// the error. When the model is disabled it returns DisabledResult and
// ErrConfigurationDisabled.
func (c *Client) Analyze(ctx context.Context, in Input) (*Result, error) {
	if err := in.Request.Validate(); err != nil {
		return nil, err
	}
	set := c.current()
	if set.Disabled {
		return DisabledResult(), ErrConfigurationDisabled
	}

	log := zap.L().With(zap.String("address", in.Request.Address))
	cacheable := c.cache != nil && in.Cacheable()
	params := in.Request.cacheParams()

	if cacheable {
		var cached Result
		meta, ok, err := c.cache.Get(ctx, cache.NamespaceAnalysis, params, &cached)
		if err != nil {
			log.Warn("analysis: cache read failed", zap.Error(err))
		}
		if ok {
			log.Debug("analysis: cache hit", zap.Time("created_at", meta.Timestamp))
			cached.CacheMeta = &CacheMeta{Timestamp: meta.Timestamp}
			return &cached, nil
		}
	} else if !in.Request.Cacheable() {
		log.Debug("analysis: preferences supplied, bypassing cache")
	} else if in.Approximate {
		log.Debug("analysis: approximate location, bypassing cache")
	}

	var res *Result
	var err error
	if cacheable {
		res, err = cache.Compute(ctx, c.cache, cache.NamespaceAnalysis, params, func(ctx context.Context) (*Result, error) {
			return c.generate(ctx, in, set)
		})
	} else {
		res, err = c.generate(ctx, in, set)
	}
	if err != nil {
		log.Error("analysis: failed", zap.Error(err))
		return DegradedResult(failureMessage(err)), err
	}

	out := *res
	if cacheable {
		if err := c.cache.Put(ctx, cache.NamespaceAnalysis, params, &out); err != nil {
			log.Warn("analysis: cache write failed", zap.Error(err))
		}
	}
	return &out, nil
}

// generate walks the credential pool. A key whose retries all end in quota
// errors is abandoned and the next key starts fresh.
func (c *Client) generate(ctx context.Context, in Input, set Settings) (*Result, error) {
	if c.pool.Len() == 0 {
		return nil, ErrNoCredentials
	}

	ctx, cancel := context.WithTimeout(ctx, c.budget)
	defer cancel()

	req := ModelRequest{Prompt: BuildPrompt(in), Temperature: set.Temperature, MaxTokens: set.MaxTokens}
	rot := c.pool.Rotation()
	for {
		idx, key, ok := rot.Next()
		if !ok {
			return nil, eris.Wrapf(ErrQuotaExceeded, "analysis: %d credentials exhausted", c.pool.Len())
		}

		res, err := c.withKey(ctx, idx, key, req)
		switch {
		case err == nil:
			return res, nil
		case ctx.Err() != nil:
			return nil, eris.Wrap(ctx.Err(), "analysis: generate")
		case resilience.IsQuota(err):
			c.metrics.KeyRotation()
			zap.L().Warn("analysis: credential exhausted, rotating",
				zap.String("credential", c.pool.Label(idx)),
				zap.Int("remaining", rot.Remaining()),
				zap.Error(err),
			)
		case errors.Is(err, ErrSchemaViolation):
			return nil, eris.Wrapf(err, "analysis: %d attempts", c.attempts)
		default:
			return nil, eris.Wrap(err, "analysis: generate")
		}
	}
}

// withKey retries quota and schema failures on one credential.
func (c *Client) withKey(ctx context.Context, idx int, key string, req ModelRequest) (*Result, error) {
	var last error
	return resilience.DoVal(ctx, resilience.RetryConfig{
		MaxAttempts: c.attempts,
		Backoff: func(attempt int) time.Duration {
			if resilience.IsQuota(last) {
				return c.backoff(attempt)
			}
			return 0
		},
		Sleep: c.sleep,
		ShouldRetry: func(err error) bool {
			return resilience.IsQuota(err) || errors.Is(err, ErrSchemaViolation)
		},
		OnRetry: func(attempt int, err error) {
			zap.L().Warn("analysis: retrying model call",
				zap.String("credential", c.pool.Label(idx)),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		},
	}, func(ctx context.Context) (*Result, error) {
		res, err := c.attempt(ctx, key, req)
		last = err
		return res, err
	})
}

func (c *Client) attempt(ctx context.Context, key string, req ModelRequest) (*Result, error) {
	waited, err := c.limiter.Wait(ctx)
	c.metrics.RateLimitWait(waited)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: rate limiter")
	}

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	raw, err := c.model.Generate(callCtx, key, req)
	if err == nil {
		var res *Result
		if res, err = Decode(raw); err == nil {
			c.metrics.ModelAttempt(monitoring.OutcomeSuccess)
			return res, nil
		}
	}

	switch {
	case resilience.IsQuota(err):
		c.metrics.ModelAttempt(monitoring.OutcomeQuota)
	case errors.Is(err, ErrSchemaViolation):
		c.metrics.ModelAttempt(monitoring.OutcomeSchema)
	default:
		c.metrics.ModelAttempt(monitoring.OutcomeFatal)
	}
	return nil, err
}

// failureMessage is the user-facing explanation placed in a degraded
// result.
func failureMessage(err error) string {
	switch {
	case errors.Is(err, ErrQuotaExceeded):
		return "AI analysis is temporarily unavailable: every API key has exceeded its quota. Please try again later."
	case errors.Is(err, ErrSchemaViolation):
		return "AI analysis returned an invalid response. Please try again."
	case errors.Is(err, ErrNoCredentials):
		return "AI analysis is not configured: no API key is available."
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "AI analysis timed out. Please try again."
	default:
		return "AI analysis failed. Please check the API key or model selection."
	}
}
