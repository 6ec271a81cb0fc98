package census

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tanshuai2008/HouSmart-test/internal/benchmark"
	"github.com/tanshuai2008/HouSmart-test/pkg/acs"
	"github.com/tanshuai2008/HouSmart-test/pkg/geocode"
)

// ErrStatisticsUnavailable means no profile could be built. Callers fall
// back to model estimates.
var ErrStatisticsUnavailable = eris.New("census: statistics unavailable")

// Normalizer fetches and normalizes block-group statistics.
type Normalizer struct {
	client  acs.Client
	store   *benchmark.Store
	keepRaw bool
}

// NormalizerOption configures a Normalizer.
type NormalizerOption func(*Normalizer)

// WithRawMetrics keeps the fetched values on the profile.
func WithRawMetrics() NormalizerOption {
	return func(n *Normalizer) { n.keepRaw = true }
}

// NewNormalizer creates a Normalizer.
func NewNormalizer(client acs.Client, store *benchmark.Store, opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{client: client, store: store}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Normalize builds the profile for geo. It returns ErrStatisticsUnavailable
// when geo is nil or the statistics API yields nothing.
func (n *Normalizer) Normalize(ctx context.Context, geo *geocode.GeoIdentifier) (*Profile, error) {
	if geo == nil {
		return nil, eris.Wrap(ErrStatisticsUnavailable, "census: no geography")
	}

	log := zap.L().With(zap.String("geoid", geo.FullGeoID))

	raw, err := n.client.BlockGroup(ctx, acs.Geography{
		State:      geo.State,
		County:     geo.County,
		Tract:      geo.Tract,
		BlockGroup: geo.BlockGroup,
	}, Variables())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, eris.Wrap(err, "census: fetch")
		}
		if !errors.Is(err, acs.ErrNoData) {
			log.Warn("census: statistics fetch failed", zap.Error(err))
		}
		return nil, eris.Wrapf(ErrStatisticsUnavailable, "census: fetch %s", geo.FullGeoID)
	}
	if len(raw) == 0 {
		return nil, eris.Wrapf(ErrStatisticsUnavailable, "census: empty row for %s", geo.FullGeoID)
	}

	stateName := n.store.StateNameForFIPS(geo.State)
	p := &Profile{
		Geo:       *geo,
		StateName: stateName,
		Metrics:   Derive(raw),
		Benchmark: n.store.Lookup(stateName),
	}
	if n.keepRaw {
		p.Raw = raw
	}

	log.Debug("census: profile built",
		zap.String("state", stateName),
		zap.Int("raw_values", len(raw)),
	)
	return p, nil
}
