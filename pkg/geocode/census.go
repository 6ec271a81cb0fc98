package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/rotisserie/eris"

	"github.com/tanshuai2008/HouSmart-test/internal/resilience"
)

const (
	censusGeographiesURL = "https://geocoding.geo.census.gov/geocoder/geographies/onelineaddress"
	censusBenchmark      = "Public_AR_Current"
	censusVintage        = "Current_Current"
	censusBlockGroupLyr  = "10"
)

// censusGeographiesResponse is the subset of the geographies response we
// read. Layer 10 is reported under the "Census Block Groups" key.
type censusGeographiesResponse struct {
	Result struct {
		AddressMatches []struct {
			MatchedAddress string `json:"matchedAddress"`
			Coordinates    struct {
				X float64 `json:"x"` // longitude
				Y float64 `json:"y"` // latitude
			} `json:"coordinates"`
			Geographies map[string][]censusGeography `json:"geographies"`
		} `json:"addressMatches"`
	} `json:"result"`
}

type censusGeography struct {
	State  string `json:"STATE"`
	County string `json:"COUNTY"`
	Tract  string `json:"TRACT"`
	BlkGrp string `json:"BLKGRP"`
	GeoID  string `json:"GEOID"`
}

// censusProvider resolves an address directly to a block group via the
// Census geographies geocoder.
type censusProvider struct {
	r       *resolver
	baseURL string
}

func (p *censusProvider) Name() string { return SourceCensus }

func (p *censusProvider) Resolve(ctx context.Context, address string, _ ResolveOptions) (*GeoIdentifier, error) {
	if err := p.r.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: census rate limit")
	}

	ctx, cancel := context.WithTimeout(ctx, p.r.timeout)
	defer cancel()

	params := url.Values{
		"address":   {address},
		"benchmark": {censusBenchmark},
		"vintage":   {censusVintage},
		"layers":    {censusBlockGroupLyr},
		"format":    {"json"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census build request")
	}

	resp, err := p.r.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.ClassifyHTTPStatus("census", resp.StatusCode,
			eris.Errorf("geocode: census returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census read body")
	}

	var parsed censusGeographiesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "geocode: census parse response")
	}
	if len(parsed.Result.AddressMatches) == 0 {
		return nil, eris.New("geocode: census found no address match")
	}

	match := parsed.Result.AddressMatches[0]
	groups := match.Geographies["Census Block Groups"]
	if len(groups) == 0 {
		return nil, eris.New("geocode: census match has no block group")
	}

	bg := groups[0]
	geo, err := newGeoIdentifier(bg.State, bg.County, bg.Tract, bg.BlkGrp)
	if err != nil {
		return nil, err
	}
	geo.Source = SourceCensus
	geo.Latitude = match.Coordinates.Y
	geo.Longitude = match.Coordinates.X
	return geo, nil
}
