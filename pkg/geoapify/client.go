// Package geoapify is a small client for the Geoapify forward geocoding and
// Places APIs.
package geoapify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/tanshuai2008/HouSmart-test/internal/resilience"
)

const defaultBaseURL = "https://api.geoapify.com"

// DefaultCategories is the POI category set sampled around a property.
var DefaultCategories = []string{"commercial", "education", "leisure", "catering", "healthcare"}

// ErrNoMatch is returned when geocoding finds no candidate.
var ErrNoMatch = eris.New("geoapify: no match")

// Client talks to Geoapify.
type Client interface {
	// Available reports whether an API key is configured.
	Available() bool
	// Geocode returns the best coordinate match for a free-text address.
	Geocode(ctx context.Context, text string) (*Location, error)
	// Places lists points of interest around a coordinate.
	Places(ctx context.Context, q PlacesQuery) ([]Place, error)
}

// Location is a geocoding match.
type Location struct {
	Latitude   float64 `json:"lat"`
	Longitude  float64 `json:"lon"`
	Formatted  string  `json:"formatted"`
	Confidence float64 `json:"confidence"`
}

// PlacesQuery selects POIs within RadiusMeters of a point.
type PlacesQuery struct {
	Latitude     float64
	Longitude    float64
	RadiusMeters int
	Limit        int
	Categories   []string
}

// Place is a simplified POI.
type Place struct {
	Name       string   `json:"name,omitempty"`
	Categories []string `json:"categories"`
	Address    string   `json:"address,omitempty"`
	Distance   float64  `json:"distance"`
	Latitude   float64  `json:"lat"`
	Longitude  float64  `json:"lon"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps requests per second. The free tier allows 5.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Geoapify client. An empty apiKey yields a client
// whose Available reports false and whose calls fail fast.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(5, 5),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Available() bool { return c.apiKey != "" }

type featureCollection struct {
	Features []struct {
		Properties struct {
			Name       string   `json:"name"`
			Formatted  string   `json:"formatted"`
			Categories []string `json:"categories"`
			Distance   float64  `json:"distance"`
			Lat        float64  `json:"lat"`
			Lon        float64  `json:"lon"`
			Rank       struct {
				Confidence float64 `json:"confidence"`
			} `json:"rank"`
		} `json:"properties"`
	} `json:"features"`
}

func (c *httpClient) Geocode(ctx context.Context, text string) (*Location, error) {
	if !c.Available() {
		return nil, eris.New("geoapify: no api key configured")
	}
	params := url.Values{
		"text":   {text},
		"limit":  {"1"},
		"format": {"geojson"},
	}

	var fc featureCollection
	if err := c.get(ctx, "/v1/geocode/search", params, &fc); err != nil {
		return nil, err
	}
	if len(fc.Features) == 0 {
		return nil, ErrNoMatch
	}

	p := fc.Features[0].Properties
	return &Location{
		Latitude:   p.Lat,
		Longitude:  p.Lon,
		Formatted:  p.Formatted,
		Confidence: p.Rank.Confidence,
	}, nil
}

func (c *httpClient) Places(ctx context.Context, q PlacesQuery) ([]Place, error) {
	if !c.Available() {
		return nil, eris.New("geoapify: no api key configured")
	}
	if len(q.Categories) == 0 {
		q.Categories = DefaultCategories
	}
	if q.RadiusMeters <= 0 {
		q.RadiusMeters = 1000
	}
	if q.Limit <= 0 {
		q.Limit = 30
	}

	lon := strconv.FormatFloat(q.Longitude, 'f', -1, 64)
	lat := strconv.FormatFloat(q.Latitude, 'f', -1, 64)
	params := url.Values{
		"categories": {strings.Join(q.Categories, ",")},
		"filter":     {fmt.Sprintf("circle:%s,%s,%d", lon, lat, q.RadiusMeters)},
		"bias":       {fmt.Sprintf("proximity:%s,%s", lon, lat)},
		"limit":      {strconv.Itoa(q.Limit)},
	}

	var fc featureCollection
	if err := c.get(ctx, "/v2/places", params, &fc); err != nil {
		return nil, err
	}

	places := make([]Place, 0, len(fc.Features))
	for _, f := range fc.Features {
		p := f.Properties
		places = append(places, Place{
			Name:       p.Name,
			Categories: p.Categories,
			Address:    p.Formatted,
			Distance:   p.Distance,
			Latitude:   p.Lat,
			Longitude:  p.Lon,
		})
	}
	return places, nil
}

func (c *httpClient) get(ctx context.Context, path string, params url.Values, dest any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "geoapify: rate limit")
	}

	params.Set("apiKey", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "geoapify: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "geoapify: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "geoapify: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return resilience.ClassifyHTTPStatus("geoapify", resp.StatusCode,
			eris.Errorf("geoapify: unexpected status %d: %s", resp.StatusCode, truncate(body, 200)))
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return eris.Wrap(err, "geoapify: unmarshal response")
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}
