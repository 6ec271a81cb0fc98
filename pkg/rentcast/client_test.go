package rentcast

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanshuai2008/HouSmart-test/internal/resilience"
)

var fixedNow = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, h http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient("rc-key",
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
		WithClock(func() time.Time { return fixedNow }),
	)
}

const rentBody = `{
  "rent": 3150,
  "rentRangeLow": 2900,
  "rentRangeHigh": 3400,
  "comparables": [
    {"formattedAddress": "12 Oak St, Austin, TX 78701", "price": 3000, "squareFootage": 1200, "similarityScore": 0.81, "distance": 0.4, "lastSeenDate": "2025-05-22T00:00:00.000Z"},
    {"addressLine1": "40 Elm Ave", "addressLine2": "Austin, TX 78702", "price": 3300, "squareFootage": 0, "similarityScore": 0.95, "distance": 1.2},
    {"formattedAddress": "9 Pine Rd", "price": null, "squareFootage": 900, "similarityScore": 0.60},
    {"formattedAddress": "1 Cedar Ct, Austin, TX", "price": 2800, "squareFootage": 1000, "similarityScore": 0.88}
  ]
}`

func TestRentEstimate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/avm/rent/long-term", r.URL.Path)
		assert.Equal(t, "rc-key", r.Header.Get("X-Api-Key"))
		q := r.URL.Query()
		assert.Equal(t, "100 Congress Ave, Austin, TX", q.Get("address"))
		assert.Equal(t, "3", q.Get("bedrooms"))
		assert.Equal(t, "1400", q.Get("squareFootage"))
		assert.Equal(t, "3.0", q.Get("radius"))
		assert.Equal(t, "10", q.Get("limit"))
		assert.Empty(t, q.Get("bathrooms"))
		_, _ = w.Write([]byte(rentBody))
	})

	est, err := c.RentEstimate(context.Background(), Query{
		Address:       "100 Congress Ave, Austin, TX",
		Bedrooms:      3,
		SquareFootage: 1400,
	})
	require.NoError(t, err)
	assert.Equal(t, 3150.0, est.Rent)
	assert.Equal(t, "USD", est.Currency)
	require.Len(t, est.Comparables, TopComparables)

	first, second, third := est.Comparables[0], est.Comparables[1], est.Comparables[2]
	assert.Equal(t, "40 Elm Ave", first.AddressLine1)
	assert.Equal(t, 0.0, first.PricePerSqft)
	assert.Nil(t, first.DaysOld)

	assert.Equal(t, "1 Cedar Ct", second.AddressLine1)
	assert.Equal(t, "Austin, TX", second.AddressLine2)
	assert.Equal(t, 2.8, second.PricePerSqft)

	assert.Equal(t, "12 Oak St", third.AddressLine1)
	assert.Equal(t, 2.5, third.PricePerSqft)
	assert.Equal(t, "2025-05-22", third.LastSeen)
	require.NotNil(t, third.DaysOld)
	assert.Equal(t, 10, *third.DaysOld)
}

func TestRentEstimate_Errors(t *testing.T) {
	assert.False(t, NewClient("").Available())
	_, err := NewClient("").RentEstimate(context.Background(), Query{Address: "x"})
	assert.Error(t, err)

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err = c.RentEstimate(context.Background(), Query{Address: " "})
	assert.ErrorContains(t, err, "address is required")

	_, err = c.RentEstimate(context.Background(), Query{Address: "1 Main St"})
	require.Error(t, err)
	assert.True(t, resilience.IsQuota(err))
}

func TestPricePerSqft(t *testing.T) {
	assert.Equal(t, 2.33, PricePerSqft(7, 3))
	assert.Equal(t, 0.0, PricePerSqft(1000, 0))
	assert.Equal(t, 0.0, PricePerSqft(0, 1000))
	assert.Equal(t, 0.0, PricePerSqft(-5, 10))
}
