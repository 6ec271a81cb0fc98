package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanshuai2008/HouSmart-test/internal/analysis"
	"github.com/tanshuai2008/HouSmart-test/internal/monitoring"
	"github.com/tanshuai2008/HouSmart-test/internal/pipeline"
	"github.com/tanshuai2008/HouSmart-test/pkg/geocode"
)

type fakeRunner struct {
	rep *pipeline.Report
	err error
	req analysis.Request
}

func (f *fakeRunner) Run(_ context.Context, req analysis.Request) (*pipeline.Report, error) {
	f.req = req
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return f.rep, f.err
}

type fakeResolver struct {
	geo *geocode.GeoIdentifier
	err error
}

func (f *fakeResolver) Resolve(context.Context, string, ...geocode.ResolveOption) (*geocode.GeoIdentifier, error) {
	return f.geo, f.err
}

func serve(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouter_Health(t *testing.T) {
	h := buildRouter(nil, nil, nil, nil, nil)
	rr := serve(t, h, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_RequestIDEchoed(t *testing.T) {
	h := buildRouter(nil, nil, nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "abc-123", rr.Header().Get("X-Request-ID"))
}

func TestRouter_Analyze(t *testing.T) {
	runner := &fakeRunner{rep: &pipeline.Report{
		Address:  "1 Main St",
		Analysis: &analysis.Result{Score: 70, Highlights: []string{"Parks"}, Risks: []string{}},
	}}
	h := buildRouter(runner, nil, nil, nil, nil)

	rr := serve(t, h, http.MethodPost, "/v1/analyze",
		`{"address":"1 Main St","weights":{"Schools":80},"userPreferences":"quiet street"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, map[string]int{"Schools": 80}, runner.req.Weights)
	assert.Equal(t, "quiet street", runner.req.UserPreferences)

	var rep pipeline.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rep))
	assert.Equal(t, 70, rep.Analysis.Score)
}

func TestRouter_AnalyzeErrors(t *testing.T) {
	degraded := &pipeline.Report{Address: "1 Main St", Analysis: analysis.DegradedResult("busy")}
	tests := []struct {
		name   string
		runner *fakeRunner
		body   string
		status int
	}{
		{"bad json", &fakeRunner{}, `{`, http.StatusBadRequest},
		{"missing address", &fakeRunner{}, `{"address":""}`, http.StatusBadRequest},
		{"bad weight", &fakeRunner{}, `{"address":"x","weights":{"Schools":101}}`, http.StatusBadRequest},
		{"quota", &fakeRunner{rep: degraded, err: analysis.ErrQuotaExceeded}, `{"address":"x"}`, http.StatusServiceUnavailable},
		{"timeout", &fakeRunner{rep: degraded, err: context.DeadlineExceeded}, `{"address":"x"}`, http.StatusGatewayTimeout},
		{"fatal", &fakeRunner{rep: degraded, err: assert.AnError}, `{"address":"x"}`, http.StatusBadGateway},
		{"no report", &fakeRunner{err: assert.AnError}, `{"address":"x"}`, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(t, buildRouter(tt.runner, nil, nil, nil, nil), http.MethodPost, "/v1/analyze", tt.body)
			assert.Equal(t, tt.status, rr.Code)
		})
	}

	rr := serve(t, buildRouter(nil, nil, nil, nil, nil), http.MethodPost, "/v1/analyze", `{"address":"x"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRouter_Geocode(t *testing.T) {
	geo := &geocode.GeoIdentifier{State: "36", County: "061", Tract: "007600", BlockGroup: "1", FullGeoID: "360610076001", Source: "census"}
	h := buildRouter(nil, &fakeResolver{geo: geo}, nil, nil, nil)

	rr := serve(t, h, http.MethodGet, "/v1/geocode?address=350+5th+Ave", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var got geocode.GeoIdentifier
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "360610076001", got.FullGeoID)

	rr = serve(t, h, http.MethodGet, "/v1/geocode", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	h = buildRouter(nil, &fakeResolver{err: geocode.ErrGeocodeFailure}, nil, nil, nil)
	rr = serve(t, h, http.MethodGet, "/v1/geocode?address=nowhere", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouter_Benchmarks(t *testing.T) {
	h := buildRouter(nil, nil, nil, nil, nil)

	rr := serve(t, h, http.MethodGet, "/v1/benchmarks/New%20York", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		StateName string `json:"stateName"`
		State     struct {
			MedianIncome int `json:"medianIncome"`
		} `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "New York", body.StateName)
	assert.Equal(t, 81386, body.State.MedianIncome)

	rr = serve(t, h, http.MethodGet, "/v1/benchmarks/Atlantis", "")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "United States", body.StateName)
}

func TestRouter_Metrics(t *testing.T) {
	m := monitoring.New()
	m.KeyRotation()
	rr := serve(t, buildRouter(nil, nil, nil, m, nil), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "housmart_model_key_rotations_total 1")

	rr = serve(t, buildRouter(nil, nil, nil, nil, nil), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouter_CORS(t *testing.T) {
	h := buildRouter(nil, nil, nil, nil, []string{"https://app.example.com"})
	req := httptest.NewRequest(http.MethodOptions, "/v1/analyze", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "https://app.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}
