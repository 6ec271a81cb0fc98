package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanshuai2008/HouSmart-test/internal/cache"
	"github.com/tanshuai2008/HouSmart-test/internal/store"
	"github.com/tanshuai2008/HouSmart-test/pkg/geoapify"
	"github.com/tanshuai2008/HouSmart-test/pkg/rentcast"
)

type fakePlaces struct {
	key        bool
	loc        *geoapify.Location
	geoErr     error
	places     []geoapify.Place
	placesErr  error
	geocodes   int
	lastQuery  geoapify.PlacesQuery
	placeCalls int
}

func (f *fakePlaces) Available() bool { return f.key }

func (f *fakePlaces) Geocode(context.Context, string) (*geoapify.Location, error) {
	f.geocodes++
	return f.loc, f.geoErr
}

func (f *fakePlaces) Places(_ context.Context, q geoapify.PlacesQuery) ([]geoapify.Place, error) {
	f.placeCalls++
	f.lastQuery = q
	return f.places, f.placesErr
}

type fakeRent struct {
	est   *rentcast.Estimate
	err   error
	query rentcast.Query
	calls int
}

func (f *fakeRent) Available() bool { return true }

func (f *fakeRent) RentEstimate(_ context.Context, q rentcast.Query) (*rentcast.Estimate, error) {
	f.calls++
	f.query = q
	return f.est, f.err
}

var cafe = geoapify.Place{Name: "Blue Bottle", Categories: []string{"catering.cafe"}, Distance: 120}

func TestFetch_WithCoordinates(t *testing.T) {
	places := &fakePlaces{key: true, places: []geoapify.Place{cafe}}
	rent := &fakeRent{est: &rentcast.Estimate{Rent: 2500}}
	s := NewService(places, rent)

	d, err := s.Fetch(context.Background(), Request{
		Address: "1 Main St", Latitude: 30.1, Longitude: -97.7, HasCoordinates: true,
		Property: &rentcast.Query{Bedrooms: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, places.geocodes)
	assert.Equal(t, 30.1, places.lastQuery.Latitude)
	assert.Equal(t, []geoapify.Place{cafe}, d.Places)
	assert.Equal(t, 2500.0, d.Rent.Rent)
	assert.Equal(t, "1 Main St", rent.query.Address)
	assert.Equal(t, 2.0, rent.query.Bedrooms)
	assert.Empty(t, d.Warnings)
}

func TestFetch_GeocodesWithoutCoordinates(t *testing.T) {
	places := &fakePlaces{key: true, loc: &geoapify.Location{Latitude: 40.7, Longitude: -74}}
	s := NewService(places, nil)

	d, err := s.Fetch(context.Background(), Request{Address: "350 5th Ave"})
	require.NoError(t, err)
	assert.Equal(t, 1, places.geocodes)
	assert.Equal(t, 40.7, d.Latitude)
	assert.NotNil(t, d.Places)
	assert.Nil(t, d.Rent)
}

func TestFetch_DegradesOnFailures(t *testing.T) {
	tests := []struct {
		name    string
		places  geoapify.Client
		rent    rentcast.Client
		warning string
	}{
		{"no places key", &fakePlaces{}, nil, "places: not configured"},
		{"nil places", nil, nil, "places: not configured"},
		{"geocode fails", &fakePlaces{key: true, geoErr: geoapify.ErrNoMatch}, nil, "places: address could not be located"},
		{"places fails", &fakePlaces{key: true, loc: &geoapify.Location{}, placesErr: errors.New("boom")}, nil, "places: lookup failed"},
		{"rent fails", &fakePlaces{key: true, loc: &geoapify.Location{}}, &fakeRent{err: errors.New("boom")}, "rent: estimate unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewService(tt.places, tt.rent).Fetch(context.Background(), Request{Address: "x"})
			require.NoError(t, err)
			assert.Contains(t, d.Warnings, tt.warning)
			assert.NotNil(t, d.Places)
		})
	}
}

func TestFetch_RequiresAddress(t *testing.T) {
	_, err := NewService(nil, nil).Fetch(context.Background(), Request{})
	assert.Error(t, err)
}

func TestFetch_Cached(t *testing.T) {
	c := cache.New(store.NewMemory())
	places := &fakePlaces{key: true, places: []geoapify.Place{cafe}, loc: &geoapify.Location{}}
	s := NewService(places, nil, WithCache(c), WithClock(func() time.Time {
		return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	}))

	first, err := s.Fetch(context.Background(), Request{Address: "1 Main St"})
	require.NoError(t, err)
	second, err := s.Fetch(context.Background(), Request{Address: " 1 Main St "})
	require.NoError(t, err)

	assert.Equal(t, 1, places.placeCalls)
	assert.Equal(t, first.Places, second.Places)
	assert.True(t, first.FetchedAt.Equal(second.FetchedAt))
}

func TestFetch_PartialResultsNotCached(t *testing.T) {
	c := cache.New(store.NewMemory())
	places := &fakePlaces{key: true, loc: &geoapify.Location{}, placesErr: errors.New("boom")}
	s := NewService(places, nil, WithCache(c))

	for range 2 {
		_, err := s.Fetch(context.Background(), Request{Address: "1 Main St"})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, places.placeCalls)
}

func TestFetch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewService(&fakePlaces{key: true, loc: &geoapify.Location{}}, nil).Fetch(ctx, Request{Address: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetch_UnconfiguredPlacesStillCached(t *testing.T) {
	c := cache.New(store.NewMemory())
	rent := &fakeRent{est: &rentcast.Estimate{Rent: 1800}}
	s := NewService(nil, rent, WithCache(c))

	for range 2 {
		d, err := s.Fetch(context.Background(), Request{Address: "1 Main St"})
		require.NoError(t, err)
		assert.Equal(t, 1800.0, d.Rent.Rent)
	}
	assert.Equal(t, 1, rent.calls)
}
