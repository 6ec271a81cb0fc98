package acs

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/tanshuai2008/HouSmart-test/internal/resilience"
)

var nyc = Geography{State: "36", County: "061", Tract: "007600", BlockGroup: "1"}

func newTestClient(t *testing.T, h http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewClient(
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
		WithAPIKey("census-key"),
		WithRetry(resilience.RetryConfig{MaxAttempts: 2, Backoff: func(int) time.Duration { return 0 }}),
	)
	c.(*httpClient).limiter = rate.NewLimiter(rate.Inf, 1)
	return c
}

// echoHandler answers every requested variable with value(name).
func echoHandler(t *testing.T, calls *atomic.Int32, value func(string) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		q := r.URL.Query()
		assert.Equal(t, "block group:1", q.Get("for"))
		assert.Equal(t, "state:36 county:061 tract:007600", q.Get("in"))
		assert.Equal(t, "census-key", q.Get("key"))

		names := strings.Split(q.Get("get"), ",")
		assert.LessOrEqual(t, len(names), 50)
		assert.Equal(t, "NAME", names[0])

		header := append(append([]string{}, names...), "state", "county", "tract", "block group")
		row := []string{"Block Group 1"}
		for _, n := range names[1:] {
			row = append(row, value(n))
		}
		row = append(row, "36", "061", "007600", "1")

		quote := func(xs []string) string {
			parts := make([]string, len(xs))
			for i, x := range xs {
				if x == "null" {
					parts[i] = x
				} else {
					parts[i] = fmt.Sprintf("%q", x)
				}
			}
			return "[" + strings.Join(parts, ",") + "]"
		}
		_, _ = fmt.Fprintf(w, "[%s,%s]", quote(header), quote(row))
	}
}

func TestBlockGroup_ChunksAndMerges(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, echoHandler(t, &calls, func(string) string { return "10" }))

	vars := make([]string, 120)
	for i := range vars {
		vars[i] = fmt.Sprintf("B01001_%03dE", i+1)
	}

	got, err := c.BlockGroup(context.Background(), nyc, vars)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, got, 120)
	assert.Equal(t, 10.0, got["B01001_120E"])
	assert.NotContains(t, got, "NAME")
	assert.NotContains(t, got, "state")
}

func TestBlockGroup_DropsSuppressedValues(t *testing.T) {
	var calls atomic.Int32
	values := map[string]string{
		"B19013_001E": "85000",
		"B25077_001E": "-666666666",
		"B25064_001E": "0",
		"B01002_001E": "null",
		"B01003_001E": "abc",
	}
	c := newTestClient(t, echoHandler(t, &calls, func(n string) string { return values[n] }))

	got, err := c.BlockGroup(context.Background(), nyc, []string{"B19013_001E", "B25077_001E", "B25064_001E", "B01002_001E", "B01003_001E"})
	require.NoError(t, err)
	assert.Equal(t, Values{"B19013_001E": 85000}, got)
}

func TestBlockGroup_NoContent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	_, err := c.BlockGroup(context.Background(), nyc, []string{"B19013_001E"})
	assert.ErrorIs(t, err, ErrNoData)
}

func TestBlockGroup_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[["NAME","B19013_001E"],["BG 1","72000"]]`))
	})

	got, err := c.BlockGroup(context.Background(), nyc, []string{"B19013_001E"})
	require.NoError(t, err)
	assert.Equal(t, 72000.0, got["B19013_001E"])
	assert.Equal(t, int32(2), calls.Load())
}

func TestBlockGroup_BadRequestFails(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	_, err := c.BlockGroup(context.Background(), nyc, []string{"B19013_001E"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "status 400")
}

func TestBlockGroup_EmptyVariables(t *testing.T) {
	c := NewClient()
	got, err := c.BlockGroup(context.Background(), nyc, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParse(t *testing.T) {
	vals, ok, err := Parse([]byte(`[["NAME","B01003_001E","B19013_001E","state"],["x",1520,"64000","36"]]`))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Values{"B01003_001E": 1520, "B19013_001E": 64000}, vals)

	vals, ok, err = Parse([]byte(`[["NAME","B01003_001E"]]`))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, vals)

	_, _, err = Parse([]byte(`{"error":"bad"}`))
	assert.Error(t, err)
}

func TestChunk(t *testing.T) {
	vars := make([]string, 100)
	chunks := Chunk(vars, 49)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 49)
	assert.Len(t, chunks[2], 2)
	assert.Nil(t, Chunk(nil, 10))
}
