package geocode

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/tanshuai2008/HouSmart-test/pkg/geoapify"
)

// newTestLimiter creates a rate limiter that effectively does not limit for tests.
func newTestLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Inf, 1)
}

// newRewriteClient returns an HTTP client that sends requests whose URL
// starts with one of the routes' keys to the mapped test server URL.
func newRewriteClient(routes map[string]string) *http.Client {
	return &http.Client{
		Transport: &rewriteTransport{base: http.DefaultTransport, routes: routes},
	}
}

type rewriteTransport struct {
	base   http.RoundTripper
	routes map[string]string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	origURL := req.URL.String()
	for prefix, target := range t.routes {
		if !strings.HasPrefix(origURL, prefix) {
			continue
		}
		parsed, err := req.URL.Parse(target + origURL[len(prefix):])
		if err != nil {
			return nil, err
		}
		newReq := req.Clone(req.Context())
		newReq.URL = parsed
		newReq.Host = parsed.Host
		return t.base.RoundTrip(newReq)
	}
	return t.base.RoundTrip(req)
}

// fakeCoords is a geoapify.Client that only answers Geocode.
type fakeCoords struct {
	loc   *geoapify.Location
	err   error
	calls int
}

func (f *fakeCoords) Available() bool { return true }

func (f *fakeCoords) Geocode(_ context.Context, _ string) (*geoapify.Location, error) {
	f.calls++
	return f.loc, f.err
}

func (f *fakeCoords) Places(context.Context, geoapify.PlacesQuery) ([]geoapify.Place, error) {
	return nil, nil
}
