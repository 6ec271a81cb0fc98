// Package store provides key-value backends for the result cache.
package store

import (
	"context"
	"time"
)

// Entry is one cached payload. CreatedAt is set by the writer and is the
// only input to expiry decisions.
type Entry struct {
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"createdAt"`
}

// KeyValueStore persists entries by key. Get returns (nil, nil) on a miss.
// Put overwrites any existing entry. ttl is a storage-expiry hint that
// backends may ignore; zero means keep indefinitely.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, key string, e Entry, ttl time.Duration) error
	Close() error
}
