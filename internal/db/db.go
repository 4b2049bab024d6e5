package db

import (
	"context"
	"time"
)

// Store is the database facade combining all sub-interfaces.
type Store interface {
	Pinger
	WindowStore
	KVStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// WindowSnapshot is the state of a sorted-set window right after an insert.
type WindowSnapshot struct {
	Count  int64
	Oldest time.Time // zero when the window is empty
}

// WindowStore provides sorted-set sliding-window operations keyed by timestamp.
type WindowStore interface {
	// WindowAdd drops members at or before now-window, inserts member at now,
	// refreshes the key TTL and returns the resulting window.
	WindowAdd(ctx context.Context, key, member string, now time.Time, window time.Duration) (WindowSnapshot, error)
	// WindowRemove deletes a single member from the window.
	WindowRemove(ctx context.Context, key, member string) error
}

// KVStore provides simple key-value operations.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// GetMulti pipelines GETs; missing keys yield nil entries.
	GetMulti(ctx context.Context, keys []string) ([][]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}
