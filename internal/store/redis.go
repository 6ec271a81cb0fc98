package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// RedisOptions configures a Redis connection.
type RedisOptions struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
	Prefix   string `yaml:"prefix" mapstructure:"prefix"`
}

// RedisStore keeps entries as JSON strings without a key expiry. Stale
// entries stay until overwritten; the cache decides freshness on read.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis connects and pings.
func NewRedis(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck
		return nil, eris.Wrapf(err, "redis: ping %s", opts.Addr)
	}
	return NewRedisWithClient(client, opts.Prefix), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "redis: get cache entry")
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, eris.Wrap(err, "redis: decode cache entry")
	}
	return &e, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, e Entry, _ time.Duration) error {
	data, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "redis: encode cache entry")
	}
	return eris.Wrap(s.client.Set(ctx, s.key(key), data, 0).Err(), "redis: put cache entry")
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
