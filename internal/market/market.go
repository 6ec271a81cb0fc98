// Package market gathers the neighborhood sample and rent estimate that
// accompany a demographic profile into the analysis prompt.
package market

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tanshuai2008/HouSmart-test/internal/cache"
	"github.com/tanshuai2008/HouSmart-test/pkg/geoapify"
	"github.com/tanshuai2008/HouSmart-test/pkg/rentcast"
)

// Request identifies the property whose surroundings are sampled. Latitude
// and Longitude are used when HasCoordinates is true; otherwise the address
// is geocoded first.
type Request struct {
	Address        string          `json:"address"`
	Latitude       float64         `json:"lat,omitempty"`
	Longitude      float64         `json:"lon,omitempty"`
	HasCoordinates bool            `json:"hasCoordinates,omitempty"`
	Property       *rentcast.Query `json:"property,omitempty"`
}

// Data is the market context for one address. Missing parts are left
// empty; Warnings say why.
type Data struct {
	Latitude  float64            `json:"lat,omitempty"`
	Longitude float64            `json:"lon,omitempty"`
	Places    []geoapify.Place   `json:"places"`
	Rent      *rentcast.Estimate `json:"rent,omitempty"`
	Warnings  []string           `json:"warnings,omitempty"`
	FetchedAt time.Time          `json:"fetchedAt"`

	// partial is set when an upstream call failed; such data is not cached.
	partial bool
}

// Service fetches market data, caching results in the market namespace.
type Service struct {
	places  geoapify.Client
	rent    rentcast.Client
	cache   *cache.Cache
	timeout time.Duration
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithCache caches fetched data.
func WithCache(c *cache.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithTimeout bounds each upstream call. Default 10s.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service. Either client may be nil or unconfigured;
// that part of Data is then left empty.
func NewService(places geoapify.Client, rent rentcast.Client, opts ...Option) *Service {
	s := &Service{places: places, rent: rent, timeout: 10 * time.Second, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// cacheParams is the cache identity of a Request.
type cacheParams struct {
	Address  string          `json:"address"`
	Property *rentcast.Query `json:"property,omitempty"`
}

// Fetch returns market data for req. Upstream failures are logged and
// recorded as warnings; only cancellation is returned as an error.
func (s *Service) Fetch(ctx context.Context, req Request) (*Data, error) {
	if req.Address == "" {
		return nil, eris.New("market: address is required")
	}
	log := zap.L().With(zap.String("address", req.Address))
	params := cacheParams{Address: cache.NormalizeAddress(req.Address), Property: req.Property}

	if s.cache != nil {
		var cached Data
		_, ok, err := s.cache.Get(ctx, cache.NamespaceMarket, params, &cached)
		if err != nil {
			log.Warn("market: cache read failed", zap.Error(err))
		}
		if ok {
			log.Debug("market: cache hit")
			return &cached, nil
		}
	}

	d := &Data{Places: []geoapify.Place{}, FetchedAt: s.now()}
	s.fetchPlaces(ctx, req, d)
	s.fetchRent(ctx, req, d)
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "market: fetch")
	}

	if s.cache != nil && !d.partial {
		if err := s.cache.Put(ctx, cache.NamespaceMarket, params, d); err != nil {
			log.Warn("market: cache write failed", zap.Error(err))
		}
	}
	return d, nil
}

func (s *Service) fetchPlaces(ctx context.Context, req Request, d *Data) {
	if s.places == nil || !s.places.Available() {
		d.Warnings = append(d.Warnings, "places: not configured")
		return
	}

	lat, lon := req.Latitude, req.Longitude
	if !req.HasCoordinates {
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		loc, err := s.places.Geocode(cctx, req.Address)
		cancel()
		if err != nil {
			zap.L().Warn("market: geocode failed", zap.String("address", req.Address), zap.Error(err))
			d.Warnings = append(d.Warnings, "places: address could not be located")
			d.partial = true
			return
		}
		lat, lon = loc.Latitude, loc.Longitude
	}
	d.Latitude, d.Longitude = lat, lon

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	places, err := s.places.Places(cctx, geoapify.PlacesQuery{Latitude: lat, Longitude: lon})
	if err != nil {
		zap.L().Warn("market: places lookup failed", zap.String("address", req.Address), zap.Error(err))
		d.Warnings = append(d.Warnings, "places: lookup failed")
		d.partial = true
		return
	}
	d.Places = places
}

func (s *Service) fetchRent(ctx context.Context, req Request, d *Data) {
	if s.rent == nil || !s.rent.Available() {
		return
	}

	q := rentcast.Query{Address: req.Address}
	if req.Property != nil {
		q = *req.Property
		q.Address = req.Address
	}

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	est, err := s.rent.RentEstimate(cctx, q)
	if err != nil {
		zap.L().Warn("market: rent estimate failed", zap.String("address", req.Address), zap.Error(err))
		d.Warnings = append(d.Warnings, "rent: estimate unavailable")
		d.partial = true
		return
	}
	d.Rent = est
}
