// Package geocode resolves free-text addresses to census block-group
// geographies, using the Census geographies geocoder first and a
// coordinate lookup plus the FCC block API as fallback.
package geocode

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tanshuai2008/HouSmart-test/pkg/geoapify"
)

// Provider sources reported on a GeoIdentifier.
const (
	SourceCensus = "census"
	SourceFCC    = "fcc"
)

// Sentinel is the fixed coordinate (Central Park, NYC) used by the fallback
// path when no coordinate lookup is available. Results derived from it are
// marked Approximate.
var Sentinel = Coordinates{Latitude: 40.785091, Longitude: -73.968285}

// ErrGeocodeFailure is returned when no strategy produced a geography.
var ErrGeocodeFailure = eris.New("geocode: address could not be resolved")

// GeoIdentifier locates a census block group. Components are zero-padded
// to fixed widths (2/3/6/1) and FullGeoID is their 12-digit concatenation.
type GeoIdentifier struct {
	State       string  `json:"state"`
	County      string  `json:"county"`
	Tract       string  `json:"tract"`
	BlockGroup  string  `json:"blockGroup"`
	FullGeoID   string  `json:"fullGeoId"`
	Source      string  `json:"source"`
	Approximate bool    `json:"approximate,omitempty"`
	Latitude    float64 `json:"latitude,omitempty"`
	Longitude   float64 `json:"longitude,omitempty"`
}

// Coordinates is a WGS84 point.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Resolver turns an address into a GeoIdentifier.
type Resolver interface {
	Resolve(ctx context.Context, address string, opts ...ResolveOption) (*GeoIdentifier, error)
}

// Provider is one resolution strategy. Providers return an error when they
// cannot produce a geography; the cascade moves on to the next one.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, address string, o ResolveOptions) (*GeoIdentifier, error)
}

// ResolveOption adjusts a single Resolve call.
type ResolveOption func(*ResolveOptions)

// ResolveOptions holds per-call settings passed to each Provider.
type ResolveOptions struct {
	SkipCoordinateLookup bool
}

// WithoutCoordinateLookup makes the fallback use the Sentinel coordinate
// instead of calling the coordinate geocoder.
func WithoutCoordinateLookup() ResolveOption {
	return func(o *ResolveOptions) {
		o.SkipCoordinateLookup = true
	}
}

// Option configures the resolver.
type Option func(*resolver)

// WithHTTPClient sets the HTTP client used for Census and FCC requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(r *resolver) {
		r.httpClient = hc
	}
}

// WithRateLimit sets requests per second shared by the Census and FCC calls.
func WithRateLimit(rps float64) Option {
	return func(r *resolver) {
		r.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
}

// WithTimeout bounds each upstream request. Default 5s.
func WithTimeout(d time.Duration) Option {
	return func(r *resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithCoordinateClient enables coordinate lookup for the fallback path.
func WithCoordinateClient(c geoapify.Client) Option {
	return func(r *resolver) {
		r.coords = c
	}
}

// WithProviders replaces the default Census-then-FCC cascade.
func WithProviders(providers ...Provider) Option {
	return func(r *resolver) {
		r.providers = providers
	}
}

type resolver struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	timeout    time.Duration
	coords     geoapify.Client
	providers  []Provider
}

// NewResolver returns a Resolver that tries the Census geographies geocoder
// and then the coordinate + FCC fallback.
func NewResolver(opts ...Option) Resolver {
	r := &resolver{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(10, 10),
		timeout:    5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.providers == nil {
		r.providers = []Provider{
			&censusProvider{r: r, baseURL: censusGeographiesURL},
			&fccProvider{r: r, baseURL: fccBlockURL},
		}
	}
	return r
}

// Resolve tries each provider in order and returns the first geography.
func (r *resolver) Resolve(ctx context.Context, address string, opts ...ResolveOption) (*GeoIdentifier, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, eris.Wrap(ErrGeocodeFailure, "geocode: empty address")
	}

	var o ResolveOptions
	for _, opt := range opts {
		opt(&o)
	}

	for _, p := range r.providers {
		geo, err := p.Resolve(ctx, address, o)
		if err == nil && geo != nil {
			zap.L().Debug("geocode: resolved",
				zap.String("provider", p.Name()),
				zap.String("geoid", geo.FullGeoID),
				zap.Bool("approximate", geo.Approximate),
			)
			return geo, nil
		}
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "geocode: resolve")
		}
		zap.L().Debug("geocode: provider failed, trying next",
			zap.String("provider", p.Name()),
			zap.Error(err),
		)
	}
	return nil, eris.Wrapf(ErrGeocodeFailure, "geocode: %d providers exhausted", len(r.providers))
}

// coordinates finds a point for the fallback path. It never fails: any
// lookup problem degrades to the Sentinel.
func (r *resolver) coordinates(ctx context.Context, address string, o ResolveOptions) (Coordinates, bool) {
	if o.SkipCoordinateLookup || r.coords == nil || !r.coords.Available() {
		zap.L().Warn("geocode: no coordinate lookup configured, using sentinel coordinate",
			zap.String("address", address))
		return Sentinel, true
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	loc, err := r.coords.Geocode(ctx, address)
	if err != nil {
		zap.L().Warn("geocode: coordinate lookup failed, using sentinel coordinate",
			zap.String("address", address), zap.Error(err))
		return Sentinel, true
	}
	return Coordinates{Latitude: loc.Latitude, Longitude: loc.Longitude}, false
}
