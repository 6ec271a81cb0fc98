// Package acs fetches American Community Survey 5-year estimates for a
// single census block group.
package acs

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tanshuai2008/HouSmart-test/internal/resilience"
)

const (
	defaultBaseURL = "https://api.census.gov/data/2022/acs/acs5"

	// MaxVariables is the most variables one request may name. The API cap
	// is 50 and NAME is always requested alongside.
	MaxVariables = 49
)

// ErrNoData is returned when the API has no row for the block group.
var ErrNoData = eris.New("acs: no data for geography")

// Geography addresses one block group.
type Geography struct {
	State      string
	County     string
	Tract      string
	BlockGroup string
}

// Values maps variable codes to estimates. Suppressed, missing and
// non-positive estimates are omitted.
type Values map[string]float64

// Client fetches block-group estimates.
type Client interface {
	BlockGroup(ctx context.Context, geo Geography, variables []string) (Values, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the dataset endpoint (e.g. another ACS vintage).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithAPIKey sets the Census API key. Keyless access is allowed at a lower
// daily quota.
func WithAPIKey(key string) Option {
	return func(c *httpClient) {
		c.apiKey = key
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout bounds the whole BlockGroup call. Default 5s.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit caps requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
}

// WithRetry overrides the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	timeout time.Duration
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates an ACS client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		timeout: 5 * time.Second,
		limiter: rate.NewLimiter(10, 10),
		retry: resilience.RetryConfig{
			MaxAttempts: 2,
			Backoff:     resilience.Exponential(250*time.Millisecond, time.Second, 0.25),
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BlockGroup fetches variables for geo. Variables are split into chunks of
// MaxVariables and fetched concurrently; results are merged.
func (c *httpClient) BlockGroup(ctx context.Context, geo Geography, variables []string) (Values, error) {
	if len(variables) == 0 {
		return Values{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	chunks := Chunk(variables, MaxVariables)
	out := make(Values, len(variables))
	var mu sync.Mutex
	var rows int

	g, gctx := errgroup.WithContext(ctx)
	for _, chunk := range chunks {
		g.Go(func() error {
			res, err := resilience.DoVal(gctx, c.retry, func(ctx context.Context) (chunkResult, error) {
				v, ok, err := c.fetch(ctx, geo, chunk)
				return chunkResult{v, ok}, err
			})
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if res.ok {
				rows++
			}
			for k, v := range res.values {
				out[k] = v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if rows == 0 {
		return nil, ErrNoData
	}

	zap.L().Debug("acs: fetched block group",
		zap.String("state", geo.State),
		zap.String("county", geo.County),
		zap.String("tract", geo.Tract),
		zap.String("block_group", geo.BlockGroup),
		zap.Int("chunks", len(chunks)),
		zap.Int("values", len(out)),
	)
	return out, nil
}

type chunkResult struct {
	values Values
	ok     bool
}

func (c *httpClient) fetch(ctx context.Context, geo Geography, variables []string) (Values, bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, false, eris.Wrap(err, "acs: rate limit")
	}

	params := url.Values{
		"get": {"NAME," + strings.Join(variables, ",")},
		"for": {"block group:" + geo.BlockGroup},
		"in":  {"state:" + geo.State + " county:" + geo.County + " tract:" + geo.Tract},
	}
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, false, eris.Wrap(err, "acs: build request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, eris.Wrap(err, "acs: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	// The API answers 204 with an empty body when the geography has no row.
	if resp.StatusCode == http.StatusNoContent {
		return Values{}, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, resilience.ClassifyHTTPStatus("census", resp.StatusCode,
			eris.Errorf("acs: unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, eris.Wrap(err, "acs: read body")
	}
	return Parse(body)
}

// Parse reads an API response: a header row followed by data rows. Only
// the first data row is used. The bool result is false when there is no
// data row.
func Parse(body []byte) (Values, bool, error) {
	var table [][]any
	if err := json.Unmarshal(body, &table); err != nil {
		return nil, false, eris.Wrap(err, "acs: parse json")
	}
	if len(table) < 2 {
		return Values{}, false, nil
	}

	header, row := table[0], table[1]
	out := make(Values, len(header))
	for i, h := range header {
		name, ok := h.(string)
		if !ok || i >= len(row) || !isEstimate(name) {
			continue
		}
		if v, ok := number(row[i]); ok && v > 0 {
			out[name] = v
		}
	}
	return out, true, nil
}

// isEstimate skips NAME and the geography columns echoed back.
func isEstimate(name string) bool {
	return strings.Contains(name, "_")
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	case float64:
		return t, true
	default:
		return 0, false
	}
}

// Chunk splits vars into slices of at most size elements.
func Chunk(vars []string, size int) [][]string {
	if size <= 0 {
		size = MaxVariables
	}
	var out [][]string
	for start := 0; start < len(vars); start += size {
		end := min(start+size, len(vars))
		out = append(out, vars[start:end])
	}
	return out
}
