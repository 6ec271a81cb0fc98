// Package rentcast fetches long-term rent estimates and comparable listings
// from the RentCast AVM API.
package rentcast

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/tanshuai2008/HouSmart-test/internal/resilience"
)

const (
	defaultBaseURL = "https://api.rentcast.io"
	// DefaultRadiusMiles is the comparable search radius.
	DefaultRadiusMiles = 3.0
	// candidateLimit is how many comparables are requested before ranking.
	candidateLimit = 10
	// TopComparables is how many ranked comparables are kept.
	TopComparables = 3
)

// Client fetches rent estimates.
type Client interface {
	Available() bool
	RentEstimate(ctx context.Context, q Query) (*Estimate, error)
}

// Query describes the subject property. Zero fields are omitted.
type Query struct {
	Address       string  `json:"address"`
	Bedrooms      float64 `json:"bedrooms,omitempty"`
	Bathrooms     float64 `json:"bathrooms,omitempty"`
	SquareFootage int     `json:"squareFootage,omitempty"`
	PropertyType  string  `json:"propertyType,omitempty"`
}

// Estimate is a rent estimate with its best comparables.
type Estimate struct {
	Rent        float64      `json:"rent"`
	RangeLow    float64      `json:"rentRangeLow"`
	RangeHigh   float64      `json:"rentRangeHigh"`
	Currency    string       `json:"currency"`
	Comparables []Comparable `json:"comparables"`
}

// Comparable is one nearby rental listing.
type Comparable struct {
	AddressLine1  string  `json:"addressLine1"`
	AddressLine2  string  `json:"addressLine2,omitempty"`
	Price         float64 `json:"price"`
	PricePerSqft  float64 `json:"pricePerSqft"`
	Similarity    float64 `json:"similarity"`
	Bedrooms      float64 `json:"bedrooms,omitempty"`
	Bathrooms     float64 `json:"bathrooms,omitempty"`
	SquareFootage float64 `json:"squareFootage,omitempty"`
	DistanceMiles float64 `json:"distanceMiles"`
	LastSeen      string  `json:"lastSeen,omitempty"`
	DaysOld       *int    `json:"daysOld,omitempty"`
	PropertyType  string  `json:"propertyType,omitempty"`
	YearBuilt     int     `json:"yearBuilt,omitempty"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithClock sets the time used to age comparables.
func WithClock(now func() time.Time) Option {
	return func(c *httpClient) { c.now = now }
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

// NewClient creates a RentCast client. An empty apiKey yields a client
// whose Available reports false.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Every(time.Second), 2),
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Available() bool { return c.apiKey != "" }

type rawComparable struct {
	FormattedAddress string   `json:"formattedAddress"`
	AddressLine1     string   `json:"addressLine1"`
	AddressLine2     string   `json:"addressLine2"`
	Price            *float64 `json:"price"`
	SquareFootage    *float64 `json:"squareFootage"`
	Correlation      *float64 `json:"correlation"`
	Similarity       *float64 `json:"similarityScore"`
	Bedrooms         float64  `json:"bedrooms"`
	Bathrooms        float64  `json:"bathrooms"`
	Distance         float64  `json:"distance"`
	LastSeenDate     string   `json:"lastSeenDate"`
	LastSeen         string   `json:"lastSeen"`
	PropertyType     string   `json:"propertyType"`
	YearBuilt        int      `json:"yearBuilt"`
}

type rentResponse struct {
	Rent          float64         `json:"rent"`
	RentRangeLow  float64         `json:"rentRangeLow"`
	RentRangeHigh float64         `json:"rentRangeHigh"`
	Currency      string          `json:"currency"`
	Comparables   []rawComparable `json:"comparables"`
}

func (c *httpClient) RentEstimate(ctx context.Context, q Query) (*Estimate, error) {
	if !c.Available() {
		return nil, eris.New("rentcast: no api key configured")
	}
	if strings.TrimSpace(q.Address) == "" {
		return nil, eris.New("rentcast: address is required")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "rentcast: rate limit")
	}

	params := url.Values{
		"address": {q.Address},
		"radius":  {strconv.FormatFloat(DefaultRadiusMiles, 'f', 1, 64)},
		"limit":   {strconv.Itoa(candidateLimit)},
	}
	if q.Bedrooms > 0 {
		params.Set("bedrooms", strconv.FormatFloat(q.Bedrooms, 'f', -1, 64))
	}
	if q.Bathrooms > 0 {
		params.Set("bathrooms", strconv.FormatFloat(q.Bathrooms, 'f', -1, 64))
	}
	if q.SquareFootage > 0 {
		params.Set("squareFootage", strconv.Itoa(q.SquareFootage))
	}
	if q.PropertyType != "" {
		params.Set("propertyType", q.PropertyType)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/avm/rent/long-term?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "rentcast: create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "rentcast: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "rentcast: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.ClassifyHTTPStatus("rentcast", resp.StatusCode,
			eris.Errorf("rentcast: unexpected status %d: %s", resp.StatusCode, truncate(body, 200)))
	}

	var rr rentResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		return nil, eris.Wrap(err, "rentcast: unmarshal response")
	}

	currency := rr.Currency
	if currency == "" {
		currency = "USD"
	}
	return &Estimate{
		Rent:        rr.Rent,
		RangeLow:    rr.RentRangeLow,
		RangeHigh:   rr.RentRangeHigh,
		Currency:    currency,
		Comparables: c.rank(rr.Comparables),
	}, nil
}

// rank keeps the TopComparables most similar listings, highest first.
func (c *httpClient) rank(raw []rawComparable) []Comparable {
	out := make([]Comparable, 0, len(raw))
	for _, r := range raw {
		out = append(out, c.toComparable(r))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if len(out) > TopComparables {
		out = out[:TopComparables]
	}
	return out
}

func (c *httpClient) toComparable(r rawComparable) Comparable {
	price := deref(r.Price)
	sqft := deref(r.SquareFootage)
	similarity := deref(r.Similarity)
	if similarity == 0 {
		similarity = deref(r.Correlation)
	}

	line1, line2 := r.AddressLine1, r.AddressLine2
	if line1 == "" {
		line1, line2 = splitAddress(r.FormattedAddress)
	}

	lastSeen := r.LastSeenDate
	if lastSeen == "" {
		lastSeen = r.LastSeen
	}

	cmp := Comparable{
		AddressLine1:  line1,
		AddressLine2:  line2,
		Price:         price,
		PricePerSqft:  PricePerSqft(price, sqft),
		Similarity:    similarity,
		Bedrooms:      r.Bedrooms,
		Bathrooms:     r.Bathrooms,
		SquareFootage: sqft,
		DistanceMiles: r.Distance,
		PropertyType:  r.PropertyType,
		YearBuilt:     r.YearBuilt,
	}
	if lastSeen != "" {
		if t, err := time.Parse(time.RFC3339, lastSeen); err == nil {
			days := int(c.now().Sub(t).Hours() / 24)
			cmp.DaysOld = &days
		}
		if len(lastSeen) >= 10 {
			lastSeen = lastSeen[:10]
		}
		cmp.LastSeen = lastSeen
	}
	return cmp
}

// PricePerSqft returns price/sqft rounded to cents, or 0 when either
// input is not positive.
func PricePerSqft(price, sqft float64) float64 {
	if price <= 0 || sqft <= 0 {
		return 0
	}
	return math.Round(price/sqft*100) / 100
}

func splitAddress(formatted string) (string, string) {
	if formatted == "" {
		return "Unknown", ""
	}
	first, rest, found := strings.Cut(formatted, ",")
	if !found {
		return formatted, ""
	}
	return strings.TrimSpace(first), strings.TrimSpace(rest)
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return fmt.Sprintf("%s...", b[:n])
}
