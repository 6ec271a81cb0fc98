package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tanshuai2008/HouSmart-test/internal/analysis"
	"github.com/tanshuai2008/HouSmart-test/internal/benchmark"
	"github.com/tanshuai2008/HouSmart-test/internal/cache"
	"github.com/tanshuai2008/HouSmart-test/internal/census"
	"github.com/tanshuai2008/HouSmart-test/internal/config"
	"github.com/tanshuai2008/HouSmart-test/internal/market"
	"github.com/tanshuai2008/HouSmart-test/internal/monitoring"
	"github.com/tanshuai2008/HouSmart-test/internal/pipeline"
	"github.com/tanshuai2008/HouSmart-test/internal/store"
	"github.com/tanshuai2008/HouSmart-test/pkg/acs"
	"github.com/tanshuai2008/HouSmart-test/pkg/anthropic"
	"github.com/tanshuai2008/HouSmart-test/pkg/geoapify"
	"github.com/tanshuai2008/HouSmart-test/pkg/geocode"
	"github.com/tanshuai2008/HouSmart-test/pkg/openai"
	"github.com/tanshuai2008/HouSmart-test/pkg/rentcast"
)

// appEnv holds the initialized backends and the pipeline needed by the
// analyze and serve commands.
type appEnv struct {
	Store      store.KeyValueStore
	Cache      *cache.Cache
	Benchmarks *benchmark.Store
	Resolver   geocode.Resolver
	Pipeline   *pipeline.Pipeline
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close cache store", zap.Error(err))
		}
	}
}

// initEnv opens the cache backend, builds every client and wires the
// pipeline. Backends, credentials and limits come from the config current
// at startup; feature switches, generation settings and the cache TTL are
// read from current on every request. metrics may be nil. Callers should
// defer env.Close().
func initEnv(ctx context.Context, current func() *config.Config, metrics *monitoring.Metrics) (*appEnv, error) {
	c := current()
	bm, err := benchmark.Default()
	if err != nil {
		return nil, eris.Wrap(err, "load benchmarks")
	}

	st, err := store.Open(ctx, c.Cache.Options)
	if err != nil {
		return nil, eris.Wrap(err, "open cache store")
	}
	rc := cache.New(st,
		cache.WithTTL(c.Cache.TTL()),
		cache.WithTTLSource(func() time.Duration { return current().Cache.TTL() }),
		cache.WithMetrics(metrics),
		cache.WithCoalescing(c.Cache.Coalesce),
	)

	geoapifyClient := geoapify.NewClient(c.Geocode.GeoapifyKey)
	resolver := geocode.NewResolver(
		geocode.WithCoordinateClient(geoapifyClient),
		geocode.WithTimeout(seconds(c.Geocode.TimeoutSecs)),
		geocode.WithRateLimit(c.Geocode.RateLimit),
	)

	acsOpts := []acs.Option{
		acs.WithAPIKey(c.Census.APIKey),
		acs.WithTimeout(seconds(c.Census.TimeoutSecs)),
		acs.WithRateLimit(c.Census.RateLimit),
	}
	if c.Census.BaseURL != "" {
		acsOpts = append(acsOpts, acs.WithBaseURL(c.Census.BaseURL))
	}
	var normOpts []census.NormalizerOption
	if c.Census.KeepRaw {
		normOpts = append(normOpts, census.WithRawMetrics())
	}
	normalizer := census.NewNormalizer(acs.NewClient(acsOpts...), bm, normOpts...)

	mkt := market.NewService(geoapifyClient, rentcast.NewClient(c.Market.RentcastKey),
		market.WithCache(rc),
		market.WithTimeout(seconds(c.Market.TimeoutSecs)),
	)

	keys := c.Model.Keys()
	if c.Features.EnableModel && len(keys) == 0 {
		zap.L().Warn("no model API keys configured; analyses will be degraded")
	}
	analyzer := analysis.New(buildModel(c.Model), analysis.NewCredentialPool(keys...), buildLimiter(c.RateLimit),
		analysis.WithCache(rc),
		analysis.WithMetrics(metrics),
		analysis.WithAttemptsPerKey(c.Model.AttemptsPerKey),
		analysis.WithTimeouts(c.Model.CallTimeout(), c.Model.TotalBudget()),
		analysis.WithSettingsSource(func() analysis.Settings { return settings(current()) }),
	)

	p := pipeline.New(resolver, normalizer, analyzer, bm,
		pipeline.WithMarket(mkt),
		pipeline.WithFeatureSource(func() pipeline.Features { return features(current().Features) }),
		pipeline.WithMetrics(metrics),
	)

	return &appEnv{Store: st, Cache: rc, Benchmarks: bm, Resolver: resolver, Pipeline: p}, nil
}

func buildModel(m config.ModelConfig) analysis.Model {
	if m.Provider == config.ProviderOpenAI {
		var opts []openai.Option
		if m.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(m.BaseURL))
		}
		return analysis.NewOpenAIModel(m.Name, opts...)
	}
	var opts []anthropic.Option
	if m.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(m.BaseURL))
	}
	return analysis.NewAnthropicModel(m.Name, opts...)
}

func buildLimiter(r config.RateLimitConfig) *analysis.RateLimiter {
	return analysis.NewRateLimiter(
		analysis.WithWindow(r.Window(), r.MaxCalls),
		analysis.WithSpacing(r.MinGap(), r.MaxJitter()),
		analysis.WithFullWait(r.FullWait()),
	)
}

func settings(c *config.Config) analysis.Settings {
	return analysis.Settings{
		Disabled:    !c.Features.EnableModel,
		Temperature: c.Model.Temperature,
		MaxTokens:   c.Model.MaxTokens,
	}
}

func features(f config.FeaturesConfig) pipeline.Features {
	return pipeline.Features{
		Geocoding:  f.EnableGeocoding,
		Statistics: f.EnableStatistics,
		MarketData: f.EnableMarketData,
		Model:      f.EnableModel,
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
