package engine

import (
	"context"
	"errors"
	"time"

	"github.com/krisalay/tlru/clock"
	"github.com/krisalay/tlru/expiration"
	"github.com/krisalay/tlru/refresh"
	"github.com/krisalay/tlru/shard"
	"github.com/krisalay/tlru/types"
	"github.com/krisalay/tlru/writepolicy"
	"github.com/sirupsen/logrus"
)

// ErrNoLoader is returned by Load when no Loader is configured.
var ErrNoLoader = errors.New("cache has no loader")

/*
CacheEngine is the "brain" of the cache system.
It is responsible for the "behavior" of the cache, NOT storage.
This acts as the policy layer.

It decides:
- Which TTL a write gets when the caller gives none
- Whether reads slide the deadline forward
- When refresh hooks are triggered
- How data is loaded on cache miss
- How writes are propagated to backing store
- How metrics are recorded

It does NOT:
- Store data
- Handle sharding
- Handle locking
- Decide eviction order or find expired entries (the shards do that)
*/
type CacheEngine[K comparable, V any] struct {

	// Expiration controls when a cache entry should be considered “too old”.
	// If this is nil, entries written without a TTL never expire.
	Expiration expiration.Strategy

	// Refresh is an optional hook that runs when data is read.
	// This is used when we want to refresh data in the background
	// without blocking the current request.
	Refresh refresh.Hook[K, V]

	// Loader is how the cache talks to the outside world when it does NOT have the data.
	// This enables “read-through caching”.
	Loader types.Loader[K, V]

	// WritePolicy decides what happens when data is written to the cache.
	// If nil, cache writes stay only in memory.
	WritePolicy writepolicy.WritePolicy[K, V]

	// Metrics is how we keep track of what the cache is doing.
	Metrics types.Metrics

	// Clock is the source of every timestamp the shards see.
	Clock clock.Clock

	// Log receives reclaim and sweep events; sweeps that find nothing log at Trace.
	Log logrus.Ext1FieldLogger
}

/*
NewCacheEngine creates a CacheEngine with the system clock and the standard logger.
Set Clock or Log afterwards to override them.
*/
func NewCacheEngine[K comparable, V any](
	exp expiration.Strategy,
	refresh refresh.Hook[K, V],
	loader types.Loader[K, V],
	writePolicy writepolicy.WritePolicy[K, V],
	metrics types.Metrics,
) *CacheEngine[K, V] {

	// Ensure metrics is always non-nil
	// This avoids nil checks throughout the codebase
	if metrics == nil {
		metrics = types.NoopMetrics{}
	}

	return &CacheEngine[K, V]{
		Expiration:  exp,
		Refresh:     refresh,
		Loader:      loader,
		WritePolicy: writePolicy,
		Metrics:     metrics,
		Clock:       clock.System(),
		Log:         logrus.StandardLogger(),
	}
}

// Now reads the engine clock.
func (e *CacheEngine[K, V]) Now() int64 {
	return e.Clock.Now()
}

// DefaultTTL is the TTL given to writes that do not name one.
func (e *CacheEngine[K, V]) DefaultTTL() time.Duration {
	return expiration.DefaultTTL(e.Expiration)
}

// RefreshOnRead reports whether hits slide the entry deadline.
func (e *CacheEngine[K, V]) RefreshOnRead() bool {
	return expiration.RefreshOnRead(e.Expiration)
}

/*
OnLookup records the outcome of a read. On a hit the refresh hook sees the
time the entry has left. It runs after the shard lock was released.
*/
func (e *CacheEngine[K, V]) OnLookup(key K, value V, expiresAt, now int64, st shard.Status) {
	switch st {
	case shard.Hit:
		e.Metrics.Hit()
		if e.Refresh != nil {
			e.Metrics.Refresh()
			e.Refresh.OnRead(key, value, remaining(expiresAt, now))
		}
		return
	case shard.Expired:
		e.Metrics.Expire()
	}
	e.Metrics.Miss()
}

// OnReclaim records entries a write or sweep removed.
func (e *CacheEngine[K, V]) OnReclaim(evicted, expired int) {
	for range evicted {
		e.Metrics.Eviction()
	}
	for range expired {
		e.Metrics.Expire()
	}
}

/*
OnWrite is called after a value was stored in the cache.
Write propagation depends entirely on the configured WritePolicy, and only
writes that left a value behind (ttl > 0) are propagated.
*/
func (e *CacheEngine[K, V]) OnWrite(ctx context.Context, key K, value V, ttl time.Duration) {
	if ttl <= 0 || e.WritePolicy == nil {
		return
	}
	e.WritePolicy.OnWrite(ctx, key, value)
}

/*
Load is used when the cache does NOT have the data.

This usually means:
- A database call
- A network request
*/
func (e *CacheEngine[K, V]) Load(ctx context.Context, key K) (V, error) {
	if e.Loader == nil {
		var zero V
		return zero, ErrNoLoader
	}
	return e.Loader.Load(ctx, key)
}

// Close flushes the write policy.
func (e *CacheEngine[K, V]) Close() {
	if e.WritePolicy != nil {
		e.WritePolicy.Close()
	}
}

func remaining(expiresAt, now int64) time.Duration {
	if expiresAt == types.Never {
		return types.Forever
	}
	return time.Duration(expiresAt - now)
}
