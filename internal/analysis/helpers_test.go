package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/tanshuai2008/HouSmart-test/internal/resilience"
)

const validJSON = `{"highlights":["Dense transit","Strong incomes"],"risks":["High prices"],"score":78,"investmentStrategy":"Buy and hold a **2**-bed unit."}`

// fakeClock is a manual clock whose sleep advances time.
type fakeClock struct {
	mu    sync.Mutex
	t     time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	c.slept = append(c.slept, d)
	return nil
}

func (c *fakeClock) Slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.slept...)
}

func noJitter(time.Duration) time.Duration { return 0 }

// instantLimiter never blocks.
func instantLimiter() *RateLimiter {
	return NewRateLimiter(
		WithSpacing(0, 0),
		WithWindow(time.Minute, 1_000_000),
		WithLimiterClock(time.Now, func(ctx context.Context, _ time.Duration) error { return ctx.Err() }),
	)
}

// scriptedModel answers per key from a queue; once a key's queue is empty
// it repeats the last reply.
type scriptedModel struct {
	mu      sync.Mutex
	replies map[string][]reply
	calls   []string
	prompts []Prompt
	reqs    []ModelRequest
}

type reply struct {
	raw string
	err error
}

func (m *scriptedModel) Name() string { return "scripted" }

func (m *scriptedModel) Generate(_ context.Context, key string, req ModelRequest) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, key)
	m.prompts = append(m.prompts, req.Prompt)
	m.reqs = append(m.reqs, req)

	q := m.replies[key]
	if len(q) == 0 {
		return nil, quotaErr()
	}
	r := q[0]
	if len(q) > 1 {
		m.replies[key] = q[1:]
	}
	if r.err != nil {
		return nil, r.err
	}
	return json.RawMessage(r.raw), nil
}

func (m *scriptedModel) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func quotaErr() error {
	return resilience.NewQuotaError("test", 429, errors.New("resource exhausted"))
}

func ok(raw string) reply { return reply{raw: raw} }

func fail(err error) reply { return reply{err: err} }

func repeat(r reply, n int) []reply {
	out := make([]reply, n)
	for i := range out {
		out[i] = r
	}
	return out
}
