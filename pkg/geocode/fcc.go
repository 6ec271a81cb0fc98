package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/tanshuai2008/HouSmart-test/internal/resilience"
)

const fccBlockURL = "https://geo.fcc.gov/api/census/block/find"

type fccBlockResponse struct {
	Block struct {
		FIPS string `json:"FIPS"`
	} `json:"Block"`
	Status string `json:"status"`
}

// fccProvider finds coordinates for the address and maps them to a census
// block with the FCC Area API.
type fccProvider struct {
	r       *resolver
	baseURL string
}

func (p *fccProvider) Name() string { return SourceFCC }

func (p *fccProvider) Resolve(ctx context.Context, address string, o ResolveOptions) (*GeoIdentifier, error) {
	coords, approximate := p.r.coordinates(ctx, address, o)

	fips, err := p.blockFIPS(ctx, coords)
	if err != nil {
		return nil, err
	}

	geo, err := fromBlockFIPS(fips)
	if err != nil {
		return nil, err
	}
	geo.Source = SourceFCC
	geo.Approximate = approximate
	geo.Latitude = coords.Latitude
	geo.Longitude = coords.Longitude
	return geo, nil
}

func (p *fccProvider) blockFIPS(ctx context.Context, c Coordinates) (string, error) {
	if err := p.r.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "geocode: fcc rate limit")
	}

	ctx, cancel := context.WithTimeout(ctx, p.r.timeout)
	defer cancel()

	params := url.Values{
		"latitude":  {strconv.FormatFloat(c.Latitude, 'f', -1, 64)},
		"longitude": {strconv.FormatFloat(c.Longitude, 'f', -1, 64)},
		"showall":   {"false"},
		"format":    {"json"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", eris.Wrap(err, "geocode: fcc build request")
	}

	resp, err := p.r.httpClient.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "geocode: fcc request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return "", resilience.ClassifyHTTPStatus("fcc", resp.StatusCode,
			eris.Errorf("geocode: fcc returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "geocode: fcc read body")
	}

	var parsed fccBlockResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", eris.Wrap(err, "geocode: fcc parse response")
	}
	if parsed.Block.FIPS == "" {
		return "", eris.Errorf("geocode: fcc returned no block (status %q)", parsed.Status)
	}
	return parsed.Block.FIPS, nil
}
