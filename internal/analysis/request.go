package analysis

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/tanshuai2008/HouSmart-test/internal/cache"
)

// Factors are the priority weights the UI exposes. Other keys are accepted
// and passed through to the prompt.
var Factors = []string{"Amenities", "Transit", "Schools", "Crime", "Appreciation"}

// CanonicalFactor returns the Factors spelling of name, matched without
// regard to case. Unknown names come back trimmed but otherwise unchanged.
func CanonicalFactor(name string) string {
	name = strings.TrimSpace(name)
	for _, f := range Factors {
		if strings.EqualFold(f, name) {
			return f
		}
	}
	return name
}

// Request is one analysis request.
type Request struct {
	Address string `json:"address"`
	// Weights maps factor names to priorities in 0..100. Nil means use
	// default weighting.
	Weights map[string]int `json:"weights,omitempty"`
	// UserPreferences is free text. When set the cache is bypassed.
	UserPreferences string `json:"userPreferences,omitempty"`
}

// Validate checks the address and weight ranges.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Address) == "" {
		return eris.Wrap(ErrInvalidRequest, "analysis: address is required")
	}
	for k, v := range r.Weights {
		if strings.TrimSpace(k) == "" {
			return eris.Wrap(ErrInvalidRequest, "analysis: empty weight name")
		}
		if v < 0 || v > 100 {
			return eris.Wrapf(ErrInvalidRequest, "analysis: weight %s=%d outside 0..100", k, v)
		}
	}
	return nil
}

// Cacheable reports whether results for r may be read from or written to
// the cache.
func (r Request) Cacheable() bool {
	return strings.TrimSpace(r.UserPreferences) == ""
}

// cacheParams is the cache identity of r. Map keys are sorted by the
// encoder, so weight order never matters. An empty weight map means the
// same as none.
func (r Request) cacheParams() any {
	weights := r.Weights
	if len(weights) == 0 {
		weights = nil
	}
	return struct {
		Address string         `json:"address"`
		Weights map[string]int `json:"weights"`
	}{cache.NormalizeAddress(r.Address), weights}
}
