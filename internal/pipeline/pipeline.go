// Package pipeline runs one address through geography resolution, census
// normalization, market data and model analysis.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tanshuai2008/HouSmart-test/internal/analysis"
	"github.com/tanshuai2008/HouSmart-test/internal/benchmark"
	"github.com/tanshuai2008/HouSmart-test/internal/census"
	"github.com/tanshuai2008/HouSmart-test/internal/market"
	"github.com/tanshuai2008/HouSmart-test/internal/monitoring"
	"github.com/tanshuai2008/HouSmart-test/pkg/geocode"
)

// Stage names used for timing metrics.
const (
	StageGeocode    = "geocode"
	StageStatistics = "statistics"
	StageMarket     = "market"
	StageAnalysis   = "analysis"
)

// Report warnings.
const (
	WarnStatisticsDisabled = "statistics disabled; using model estimates"
	WarnGeocodeFailed      = "geocode failed; using model estimates"
	WarnApproximate        = "geocode: approximate location used"
	WarnNoStatistics       = "statistics unavailable; using model estimates"
	WarnMarketFailed       = "market data unavailable"
	WarnModelDisabled      = "model disabled by configuration"
	WarnSchemaViolation    = "model output failed validation"
)

// Features switches pipeline stages on and off.
type Features struct {
	Geocoding  bool `json:"geocoding"`
	Statistics bool `json:"statistics"`
	MarketData bool `json:"marketData"`
	Model      bool `json:"model"`
}

// AllFeatures enables every stage.
func AllFeatures() Features {
	return Features{Geocoding: true, Statistics: true, MarketData: true, Model: true}
}

// Normalizer builds a census profile for a geography.
type Normalizer interface {
	Normalize(ctx context.Context, geo *geocode.GeoIdentifier) (*census.Profile, error)
}

// MarketFetcher loads market data for an address.
type MarketFetcher interface {
	Fetch(ctx context.Context, req market.Request) (*market.Data, error)
}

// Analyzer scores a location.
type Analyzer interface {
	Analyze(ctx context.Context, in analysis.Input) (*analysis.Result, error)
}

// Report is the outcome of one Run.
type Report struct {
	Address  string                 `json:"address"`
	Geo      *geocode.GeoIdentifier `json:"locationIdentifiers,omitempty"`
	Profile  *census.Profile        `json:"census,omitempty"`
	Market   *market.Data           `json:"market,omitempty"`
	Analysis *analysis.Result       `json:"analysis"`
	Warnings []string               `json:"warnings,omitempty"`
}

func (r *Report) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Pipeline wires the stages together.
type Pipeline struct {
	resolver   geocode.Resolver
	normalizer Normalizer
	market     MarketFetcher
	analyzer   Analyzer
	benchmarks *benchmark.Store
	features   func() Features
	metrics    *monitoring.Metrics
	now        func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithFeatures sets the stage switches. Default AllFeatures.
func WithFeatures(f Features) Option {
	return func(p *Pipeline) { p.features = func() Features { return f } }
}

// WithFeatureSource reads the stage switches at the start of every Run.
func WithFeatureSource(fn func() Features) Option {
	return func(p *Pipeline) { p.features = fn }
}

// WithMarket enables the market data stage.
func WithMarket(m MarketFetcher) Option {
	return func(p *Pipeline) { p.market = m }
}

// WithMetrics records stage timings and geocode outcomes.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithClock overrides the time source used for stage timings.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a Pipeline. benchmarks may be nil to use the embedded table.
func New(resolver geocode.Resolver, normalizer Normalizer, analyzer Analyzer, benchmarks *benchmark.Store, opts ...Option) *Pipeline {
	if benchmarks == nil {
		benchmarks = benchmark.MustDefault()
	}
	p := &Pipeline{
		resolver:   resolver,
		normalizer: normalizer,
		analyzer:   analyzer,
		benchmarks: benchmarks,
		features:   AllFeatures,
		now:        time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run processes req. Missing geography, statistics or market data become
// warnings. Only cancellation and quota or fatal model failures are
// returned as errors; the report then still carries the degraded result.
func (p *Pipeline) Run(ctx context.Context, req analysis.Request) (*Report, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("address", req.Address))
	log.Info("pipeline: starting")
	start := p.now()

	rep := &Report{Address: req.Address}
	f := p.features()

	var err error
	p.timed(StageGeocode, func() { rep.Geo, err = p.resolve(ctx, f, req.Address, rep) })
	if err != nil {
		return rep, err
	}
	p.timed(StageStatistics, func() { rep.Profile, err = p.normalize(ctx, rep.Geo, rep) })
	if err != nil {
		return rep, err
	}
	p.timed(StageMarket, func() { rep.Market, err = p.fetchMarket(ctx, f, req.Address, rep.Geo, rep) })
	if err != nil {
		return rep, err
	}
	p.timed(StageAnalysis, func() { rep.Analysis, err = p.analyze(ctx, f, req, rep) })

	log.Info("pipeline: complete",
		zap.Duration("elapsed", p.now().Sub(start)),
		zap.Int("warnings", len(rep.Warnings)),
		zap.Error(err),
	)
	return rep, err
}

func (p *Pipeline) timed(stage string, fn func()) {
	start := p.now()
	fn()
	p.metrics.ObserveStage(stage, p.now().Sub(start))
}

func (p *Pipeline) resolve(ctx context.Context, f Features, address string, rep *Report) (*geocode.GeoIdentifier, error) {
	if !f.Statistics || p.resolver == nil {
		rep.warn(WarnStatisticsDisabled)
		return nil, nil
	}

	var opts []geocode.ResolveOption
	if !f.Geocoding {
		opts = append(opts, geocode.WithoutCoordinateLookup())
	}
	geo, err := p.resolver.Resolve(ctx, address, opts...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "pipeline: resolve")
		}
		zap.L().Warn("pipeline: geocode failed", zap.String("address", address), zap.Error(err))
		p.metrics.GeocodeResult("", false)
		rep.warn(WarnGeocodeFailed)
		return nil, nil
	}

	p.metrics.GeocodeResult(geo.Source, geo.Approximate)
	if geo.Approximate {
		rep.warn(WarnApproximate)
	}
	return geo, nil
}

// normalize skips approximate geographies: their block group describes the
// fallback point, not the address.
func (p *Pipeline) normalize(ctx context.Context, geo *geocode.GeoIdentifier, rep *Report) (*census.Profile, error) {
	if geo == nil || geo.Approximate || p.normalizer == nil {
		return nil, nil
	}
	profile, err := p.normalizer.Normalize(ctx, geo)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "pipeline: normalize")
		}
		if !errors.Is(err, census.ErrStatisticsUnavailable) {
			zap.L().Warn("pipeline: normalize failed", zap.String("geoid", geo.FullGeoID), zap.Error(err))
		}
		rep.warn(WarnNoStatistics)
		return nil, nil
	}
	return profile, nil
}

func (p *Pipeline) fetchMarket(ctx context.Context, f Features, address string, geo *geocode.GeoIdentifier, rep *Report) (*market.Data, error) {
	if !f.MarketData || p.market == nil {
		return nil, nil
	}

	req := market.Request{Address: address}
	if geo != nil && !geo.Approximate && (geo.Latitude != 0 || geo.Longitude != 0) {
		req.Latitude, req.Longitude, req.HasCoordinates = geo.Latitude, geo.Longitude, true
	}
	data, err := p.market.Fetch(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "pipeline: market")
		}
		zap.L().Warn("pipeline: market data failed", zap.String("address", address), zap.Error(err))
		rep.warn(WarnMarketFailed)
		return nil, nil
	}
	rep.Warnings = append(rep.Warnings, data.Warnings...)
	return data, nil
}

func (p *Pipeline) analyze(ctx context.Context, f Features, req analysis.Request, rep *Report) (*analysis.Result, error) {
	if !f.Model || p.analyzer == nil {
		rep.warn(WarnModelDisabled)
		return analysis.DisabledResult(), nil
	}

	in := analysis.Input{
		Request:     req,
		Profile:     rep.Profile,
		Market:      rep.Market,
		Approximate: rep.Geo != nil && rep.Geo.Approximate,
	}
	if rep.Profile == nil {
		bm := p.benchmarkFor(req.Address, rep.Geo)
		in.Benchmark = &bm
	}

	res, err := p.analyzer.Analyze(ctx, in)
	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, analysis.ErrConfigurationDisabled):
		rep.warn(WarnModelDisabled)
		if res == nil {
			res = analysis.DisabledResult()
		}
		return res, nil
	case ctx.Err() != nil:
		return res, eris.Wrap(ctx.Err(), "pipeline: analyze")
	case errors.Is(err, analysis.ErrSchemaViolation):
		rep.warn(WarnSchemaViolation)
		return res, nil
	default:
		return res, eris.Wrap(err, "pipeline: analyze")
	}
}

// benchmarkFor picks the state benchmark when no profile carries one: the
// resolved state FIPS first, then a state name found in the address.
func (p *Pipeline) benchmarkFor(address string, geo *geocode.GeoIdentifier) benchmark.Benchmark {
	if geo != nil && !geo.Approximate {
		if name := p.benchmarks.StateNameForFIPS(geo.State); name != benchmark.National {
			return p.benchmarks.Lookup(name)
		}
	}
	return p.benchmarks.Lookup(p.benchmarks.DetectState(address))
}
