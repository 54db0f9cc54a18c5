package cache

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"time"

	"github.com/krisalay/tlru/api"
	"github.com/krisalay/tlru/engine"
	evict "github.com/krisalay/tlru/eviction"
	"github.com/krisalay/tlru/shard"
	"github.com/krisalay/tlru/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrInvalidCapacity is returned when the configured capacity is not positive.
	ErrInvalidCapacity = errors.New("cache capacity must be positive")

	// ErrInvalidOptions is returned for any other unusable Options field.
	ErrInvalidOptions = errors.New("invalid cache options")

	// ErrNoLoader is returned by GetOrLoad when the engine has no Loader.
	ErrNoLoader = engine.ErrNoLoader
)

const (
	DefaultShards = 16
	// MinShardCapacity is the smallest shard the default shard count produces.
	MinShardCapacity   = 64
	DefaultGranularity = time.Second
	DefaultWheelSlots  = 512
)

// Options sizes a ShardedCache. Zero values select the defaults.
type Options[K comparable] struct {
	// Capacity is the maximum number of entries across all shards. Required.
	Capacity int

	// Shards is rounded up to a power of two, then halved until no shard
	// would be empty. Zero picks up to DefaultShards while keeping every
	// shard at MinShardCapacity or more, so small caches get a single shard
	// and a global recency order.
	Shards int

	Policy evict.PolicyType

	// Granularity is the width of one expiration wheel slot. Expired entries
	// are still never returned; the width only bounds how much a sweep scans.
	Granularity time.Duration

	// WheelSlots is the number of slots per wheel, a power of two.
	WheelSlots int

	// Hasher maps keys to shards. Defaults to hash/maphash with a per-cache seed.
	Hasher shard.Hasher[K]
}

func (o *Options[K]) withDefaults() error {
	if o.Capacity <= 0 {
		return ErrInvalidCapacity
	}
	if o.Shards < 0 || o.Granularity < 0 || o.WheelSlots < 0 {
		return fmt.Errorf("%w: negative shards, granularity or wheel slots", ErrInvalidOptions)
	}
	if o.Policy == "" {
		o.Policy = evict.LRU
	}
	if !o.Policy.Valid() {
		return fmt.Errorf("%w: unknown eviction policy %q", ErrInvalidOptions, o.Policy)
	}
	if o.Granularity == 0 {
		o.Granularity = DefaultGranularity
	}
	if o.WheelSlots == 0 {
		o.WheelSlots = DefaultWheelSlots
	}
	if o.WheelSlots&(o.WheelSlots-1) != 0 {
		return fmt.Errorf("%w: wheel slots %d is not a power of two", ErrInvalidOptions, o.WheelSlots)
	}
	if o.Hasher == nil {
		o.Hasher = shard.NewMapHasher[K]()
	}

	if o.Shards == 0 {
		o.Shards = defaultShards(o.Capacity)
		return nil
	}
	n := 1 << bits.Len(uint(o.Shards-1))
	for n > o.Capacity {
		n >>= 1
	}
	o.Shards = n
	return nil
}

func defaultShards(capacity int) int {
	n := DefaultShards
	for n > 1 && capacity < n*MinShardCapacity {
		n >>= 1
	}
	return n
}

/*
ShardedCache is the main cache implementation.
This struct is the orchestrator that connects:
- shards (each one a complete eviction engine behind its own lock)
- the policy engine (default TTL, loading, write policies, metrics)

No operation holds more than one shard lock at a time. Cache-wide calls
(Sweep, Len, Items, Purge) visit the shards one after another, so under
concurrent writes their result is not a single atomic cut.
*/
type ShardedCache[K comparable, V any] struct {
	// shards are the actual storage units. Each shard is an independent mini-cache.
	shards []*shard.Shard[K, V]

	// engine contains the "rules" of the cache: TTL, refresh, loader, write policy, metrics, etc.
	engine *engine.CacheEngine[K, V]

	// selector decides which shard a key should go to.
	selector shard.Selector
	hasher   shard.Hasher[K]

	// capacity is the maximum number of entries in the cache. This is divided across shards.
	capacity int

	// sf prevents multiple goroutines from loading the same key from the backing store simultaneously.
	sf singleflight.Group
}

var _ api.Cache[string, any] = (*ShardedCache[string, any])(nil)

// NewShardedCache creates a cache. A nil engine gets NewCacheEngine's defaults.
func NewShardedCache[K comparable, V any](opts Options[K], eng *engine.CacheEngine[K, V]) (*ShardedCache[K, V], error) {
	if err := opts.withDefaults(); err != nil {
		return nil, err
	}
	if eng == nil {
		eng = engine.NewCacheEngine[K, V](nil, nil, nil, nil, nil)
	}

	wc := shard.WheelConfig{Slots: opts.WheelSlots, Granularity: opts.Granularity}
	now := eng.Now()

	// Split the capacity so shard capacities add up to exactly opts.Capacity.
	base, extra := opts.Capacity/opts.Shards, opts.Capacity%opts.Shards
	s := make([]*shard.Shard[K, V], opts.Shards)
	for i := range s {
		size := base
		if i < extra {
			size++
		}
		s[i] = shard.NewShard[K, V](size, opts.Policy, wc, now)
	}

	eng.Log.WithFields(logrus.Fields{
		"capacity": opts.Capacity,
		"shards":   opts.Shards,
		"policy":   opts.Policy,
	}).Debug("cache created")

	return &ShardedCache[K, V]{
		shards:   s,
		engine:   eng,
		selector: shard.MaskSelector{},
		hasher:   opts.Hasher,
		capacity: opts.Capacity,
	}, nil
}

func (c *ShardedCache[K, V]) shardFor(key K) *shard.Shard[K, V] {
	return c.shards[c.selector.Select(c.hasher(key), len(c.shards))]
}

// Engine returns the policy engine the cache was built with.
func (c *ShardedCache[K, V]) Engine() *engine.CacheEngine[K, V] {
	return c.engine
}

/*
Get retrieves a value from the cache.
A hit marks the entry most recently used. An entry whose deadline has passed
is removed and reported as a miss.
*/
func (c *ShardedCache[K, V]) Get(key K) (V, bool) {
	now := c.engine.Now()
	v, expiresAt, st := c.shardFor(key).Get(key, now, c.engine.RefreshOnRead())
	c.engine.OnLookup(key, v, expiresAt, now, st)
	return v, st == shard.Hit
}

/*
GetOrLoad is Get with read-through.

singleflight ensures that:
  - If 100 goroutines request the same missing key,
    only ONE of them loads it from the backing store.
  - Others wait for the result.

The shared load keeps the first caller's context values but not its
cancellation. A caller whose ctx ends stops waiting with ctx.Err(); the load
carries on for the others.

Keys are grouped by their fmt representation, so K should print uniquely.
*/
func (c *ShardedCache[K, V]) GetOrLoad(ctx context.Context, key K) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	var zero V
	loadCtx := context.WithoutCancel(ctx)
	ch := c.sf.DoChan(fmt.Sprint(key), func() (any, error) {
		v, err := c.engine.Load(loadCtx, key)
		if err != nil {
			return nil, err
		}
		c.PutWithTTL(key, v, c.engine.DefaultTTL())
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, fmt.Errorf("load %v: %w", key, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return zero, fmt.Errorf("load %v: %w", key, res.Err)
		}
		v, _ := res.Val.(V)
		return v, nil
	}
}

// Peek reads a live value without promoting it.
func (c *ShardedCache[K, V]) Peek(key K) (V, bool) {
	v, _, ok := c.shardFor(key).Peek(key, c.engine.Now())
	return v, ok
}

// Contains reports whether key holds a live entry, without promoting it.
func (c *ShardedCache[K, V]) Contains(key K) bool {
	_, ok := c.Peek(key)
	return ok
}

// Put stores a value with the engine's default TTL.
func (c *ShardedCache[K, V]) Put(key K, value V) (V, bool) {
	return c.PutWithTTL(key, value, c.engine.DefaultTTL())
}

/*
PutWithTTL stores a value with an explicit TTL and returns the live value it
replaced, if any. A ttl <= 0 stores nothing and removes the key.
*/
func (c *ShardedCache[K, V]) PutWithTTL(key K, value V, ttl time.Duration) (V, bool) {
	res := c.shardFor(key).Put(key, value, ttl, c.engine.Now())
	c.engine.OnReclaim(res.Evicted, res.Expired)
	c.engine.OnWrite(context.Background(), key, value, ttl)
	return res.Previous, res.Replaced
}

/*
Compute atomically replaces the value of key with fn(old, found).
A live entry keeps its deadline and is promoted; a new entry gets the default TTL.
fn runs under the shard lock and must not call back into the cache.
*/
func (c *ShardedCache[K, V]) Compute(key K, fn func(old V, found bool) V) V {
	ttl := c.engine.DefaultTTL()
	v, res := c.shardFor(key).Compute(key, ttl, c.engine.Now(), fn)
	c.engine.OnReclaim(res.Evicted, res.Expired)
	c.engine.OnWrite(context.Background(), key, v, ttl)
	return v
}

// Delete removes a key from the cache immediately. It reports whether a live entry was removed.
func (c *ShardedCache[K, V]) Delete(key K) bool {
	st := c.shardFor(key).Delete(key, c.engine.Now())
	if st == shard.Expired {
		c.engine.Metrics.Expire()
	}
	return st == shard.Hit
}

// Expire updates the TTL of a live key, measured from now.
func (c *ShardedCache[K, V]) Expire(key K, ttl time.Duration) bool {
	return c.shardFor(key).Expire(key, ttl, c.engine.Now())
}

// TTL returns the remaining time-to-live of a key, -1 if it never expires and -2 if it is absent.
func (c *ShardedCache[K, V]) TTL(key K) time.Duration {
	now := c.engine.Now()
	_, expiresAt, ok := c.shardFor(key).Peek(key, now)
	switch {
	case !ok:
		return -2
	case expiresAt == types.Never:
		return -1
	}
	return time.Duration(expiresAt - now)
}

// Sweep removes every entry expired as of the engine clock.
func (c *ShardedCache[K, V]) Sweep() int {
	return c.SweepAt(c.engine.Now())
}

// SweepAt removes every entry whose deadline is <= now and returns how many.
func (c *ShardedCache[K, V]) SweepAt(now int64) int {
	total := 0
	for i := range c.shards {
		total += c.sweepShard(i, now)
	}
	if total == 0 {
		c.engine.Log.Trace("sweep found nothing to reclaim")
	}
	return total
}

func (c *ShardedCache[K, V]) sweepShard(i int, now int64) int {
	n := c.shards[i].Sweep(now)
	if n > 0 {
		c.engine.OnReclaim(0, n)
		c.engine.Log.WithFields(logrus.Fields{"shard": i, "reclaimed": n}).Debug("swept expired entries")
	}
	return n
}

// Len returns the number of stored entries, including expired ones not yet reclaimed.
func (c *ShardedCache[K, V]) Len() int {
	n := 0
	for _, s := range c.shards {
		n += s.Len()
	}
	return n
}

// Capacity returns the configured capacity.
func (c *ShardedCache[K, V]) Capacity() int {
	return c.capacity
}

// Shards returns the number of shards the capacity is split into.
func (c *ShardedCache[K, V]) Shards() int {
	return len(c.shards)
}

/*
Items returns a copy of every live entry without touching recency.
Entries of one shard are ordered most to least recently used; shards follow
one another.
*/
func (c *ShardedCache[K, V]) Items() []types.Entry[K, V] {
	now := c.engine.Now()
	out := make([]types.Entry[K, V], 0, c.Len())
	for _, s := range c.shards {
		out = append(out, s.Items(now)...)
	}
	return out
}

// Keys returns the keys of Items.
func (c *ShardedCache[K, V]) Keys() []K {
	items := c.Items()
	keys := make([]K, len(items))
	for i, it := range items {
		keys[i] = it.Key
	}
	return keys
}

// Purge removes every entry and returns how many were dropped.
func (c *ShardedCache[K, V]) Purge() int {
	now := c.engine.Now()
	n := 0
	for _, s := range c.shards {
		n += s.Purge(now)
	}
	c.engine.Log.WithField("purged", n).Debug("cache purged")
	return n
}

/*
Close gracefully shuts down the cache.
This is important for write-back policies, so pending writes are flushed.
*/
func (c *ShardedCache[K, V]) Close() {
	c.engine.Close()
}
