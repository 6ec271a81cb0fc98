// Package cache is the content-addressed result cache. Entries expire
// lazily: an entry older than the TTL reads as a miss and is left in place
// until the next write overwrites it.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/tanshuai2008/HouSmart-test/internal/monitoring"
	"github.com/tanshuai2008/HouSmart-test/internal/store"
)

// DefaultTTL is how long an entry stays fresh.
const DefaultTTL = 240 * time.Hour

// Meta describes a cache hit.
type Meta struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
}

// Cache reads and writes JSON values through a KeyValueStore.
type Cache struct {
	store    store.KeyValueStore
	ttl      time.Duration
	ttlFn    func() time.Duration
	now      func() time.Time
	metrics  *monitoring.Metrics
	coalesce bool
	group    singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the freshness window. Non-positive values are ignored.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithTTLSource reads the freshness window on every lookup, so a reloaded
// setting applies to entries already stored. Non-positive values fall back
// to the static TTL.
func WithTTLSource(fn func() time.Duration) Option {
	return func(c *Cache) { c.ttlFn = fn }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithMetrics records hits and misses.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithCoalescing makes concurrent Compute calls for the same key share a
// single computation.
func WithCoalescing(on bool) Option {
	return func(c *Cache) { c.coalesce = on }
}

// New creates a Cache over s.
func New(s store.KeyValueStore, opts ...Option) *Cache {
	c := &Cache{store: s, ttl: DefaultTTL, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// TTL returns the freshness window.
func (c *Cache) TTL() time.Duration {
	if c.ttlFn != nil {
		if d := c.ttlFn(); d > 0 {
			return d
		}
	}
	return c.ttl
}

// Get decodes a fresh entry into dest. It reports false on a miss, on an
// expired entry and on an entry that no longer decodes.
func (c *Cache) Get(ctx context.Context, ns string, params, dest any) (*Meta, bool, error) {
	key, err := Key(ns, params)
	if err != nil {
		return nil, false, err
	}

	e, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, false, eris.Wrapf(err, "cache: get %s", ns)
	}
	if e == nil || c.now().Sub(e.CreatedAt) > c.TTL() {
		c.metrics.CacheLookup(ns, false)
		return nil, false, nil
	}
	if err := json.Unmarshal(e.Payload, dest); err != nil {
		zap.L().Warn("cache: discarding undecodable entry",
			zap.String("namespace", ns),
			zap.String("key", key),
			zap.Error(err),
		)
		c.metrics.CacheLookup(ns, false)
		return nil, false, nil
	}

	c.metrics.CacheLookup(ns, true)
	return &Meta{Key: key, Timestamp: e.CreatedAt}, true, nil
}

// Put stores value under (ns, params), replacing any previous entry.
func (c *Cache) Put(ctx context.Context, ns string, params, value any) error {
	key, err := Key(ns, params)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return eris.Wrapf(err, "cache: encode %s value", ns)
	}
	if err := c.store.Put(ctx, key, store.Entry{Payload: payload, CreatedAt: c.now()}, c.TTL()); err != nil {
		return eris.Wrapf(err, "cache: put %s", ns)
	}
	return nil
}

// Compute runs fn under the key for (ns, params). With coalescing enabled,
// concurrent callers for the same key wait for one fn and share its result;
// otherwise fn runs for every caller.
func Compute[T any](ctx context.Context, c *Cache, ns string, params any, fn func(context.Context) (T, error)) (T, error) {
	if !c.coalesce {
		return fn(ctx)
	}
	var zero T
	key, err := Key(ns, params)
	if err != nil {
		return zero, err
	}
	v, err, shared := c.group.Do(key, func() (any, error) {
		return fn(ctx)
	})
	if shared {
		zap.L().Debug("cache: coalesced computation", zap.String("namespace", ns))
	}
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}
