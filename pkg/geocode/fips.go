package geocode

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Component widths of a block-group GEOID.
const (
	stateWidth      = 2
	countyWidth     = 3
	tractWidth      = 6
	blockGroupWidth = 1
	geoIDWidth      = stateWidth + countyWidth + tractWidth + blockGroupWidth
	blockFIPSWidth  = 15
)

// padFIPS left-pads a numeric code with zeros to width. Codes already at or
// beyond width are returned trimmed but otherwise unchanged.
func padFIPS(code string, width int) string {
	code = strings.TrimSpace(code)
	if code == "" || len(code) >= width {
		return code
	}
	return strings.Repeat("0", width-len(code)) + code
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// newGeoIdentifier pads and validates block-group components.
func newGeoIdentifier(state, county, tract, blockGroup string) (*GeoIdentifier, error) {
	g := &GeoIdentifier{
		State:      padFIPS(state, stateWidth),
		County:     padFIPS(county, countyWidth),
		Tract:      padFIPS(tract, tractWidth),
		BlockGroup: strings.TrimSpace(blockGroup),
	}
	g.FullGeoID = g.State + g.County + g.Tract + g.BlockGroup
	if len(g.FullGeoID) != geoIDWidth || !isDigits(g.FullGeoID) {
		return nil, eris.Errorf("geocode: malformed geography %q", g.FullGeoID)
	}
	return g, nil
}

// fromBlockFIPS splits a 15-digit census block FIPS into its block-group
// components. The 12th digit is the block group.
func fromBlockFIPS(fips string) (*GeoIdentifier, error) {
	fips = strings.TrimSpace(fips)
	if len(fips) != blockFIPSWidth || !isDigits(fips) {
		return nil, eris.Errorf("geocode: malformed block fips %q", fips)
	}
	return newGeoIdentifier(fips[0:2], fips[2:5], fips[5:11], fips[11:12])
}
