package composite

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	cache "github.com/krisalay/tlru"
	"github.com/krisalay/tlru/clock"
	"github.com/krisalay/tlru/engine"
	"github.com/krisalay/tlru/expiration"
	"github.com/krisalay/tlru/types"
)

// maxTries bounds every level 2 call, first attempt included.
const maxTries = 5

// Options configures a Cache or a Counter. Zero values select the defaults.
type Options struct {
	// Namespace separates the keys of caches sharing one level 2.
	Namespace string

	// MaxTTL is the time slot length mixed into every key. Required.
	MaxTTL time.Duration

	// Level1MaxTTL caps how long level 1 keeps an item. Must be below MaxTTL
	// when set; defaults to MaxTTL.
	Level1MaxTTL time.Duration

	Level1MaxItems    int // default 256
	Level1MaxItemSize int // bytes, default 4 KiB
	Level2MaxItemSize int // bytes, default 1 MiB

	// CompressionThreshold is the packed size from which records are
	// compressed. Default 4 KiB.
	CompressionThreshold int
	DisableCompression   bool

	// NegativeTTL, when set, remembers misses for that long so repeated
	// lookups of absent keys skip level 2.
	NegativeTTL time.Duration

	// Now is the wall clock used for time slots. Defaults to time.Now.
	Now func() time.Time

	// RetryBackOff builds the backoff between level 2 attempts.
	RetryBackOff func() backoff.BackOff

	Log logrus.FieldLogger
}

func (o *Options) withDefaults() error {
	if o.MaxTTL <= 0 {
		return errors.New("composite: max ttl must be positive")
	}
	if o.Level1MaxTTL < 0 || (o.Level1MaxTTL > 0 && o.Level1MaxTTL >= o.MaxTTL) {
		return errors.New("composite: level1 max ttl must be less than max ttl")
	}
	if o.Level1MaxTTL == 0 {
		o.Level1MaxTTL = o.MaxTTL
	}
	if o.Level1MaxItems == 0 {
		o.Level1MaxItems = 256
	}
	if o.Level1MaxItemSize == 0 {
		o.Level1MaxItemSize = 4 << 10
	}
	if o.Level2MaxItemSize == 0 {
		o.Level2MaxItemSize = 1 << 20
	}
	if o.CompressionThreshold == 0 {
		o.CompressionThreshold = 4 << 10
	}
	if o.RetryBackOff == nil {
		o.RetryBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = time.Second
			return b
		}
	}
	if o.Log == nil {
		o.Log = logrus.StandardLogger()
	}
	return nil
}

func (o *Options) keyHasher() keyHasher {
	now := o.Now
	if now == nil {
		now = time.Now
	}
	return keyHasher{namespace: []byte(o.Namespace), maxTTL: o.MaxTTL, now: now}
}

// level1Clock follows Now when it was overridden, the monotonic clock otherwise.
func (o *Options) level1Clock() clock.Clock {
	if o.Now == nil {
		return clock.System()
	}
	return wallClock(o.Now)
}

type wallClock func() time.Time

func (f wallClock) Now() int64 { return f().UnixNano() }

/*
Cache is a two-level cache of documents of type T.

Level 1 is an in-process ShardedCache holding encoded records; level 2 is a
shared Level2 store. Reads fall through to level 2 on a level 1 miss and
fill level 1 from it. Level 2 failures are retried, then logged and
treated as misses, never returned: the cache degrades to level 1 only.
*/
type Cache[T any] struct {
	keys   keyHasher
	level1 *cache.ShardedCache[string, []byte]
	// negative remembers recent misses; nil when disabled.
	negative *cache.ShardedCache[string, struct{}]
	level2   Level2RW

	compress          bool
	thresholds        []int
	level1MaxItemSize int
	level2MaxItemSize int

	newBackOff func() backoff.BackOff
	log        logrus.FieldLogger
}

func New[T any](opts Options, level2 Level2RW) (*Cache[T], error) {
	if err := opts.withDefaults(); err != nil {
		return nil, err
	}
	if level2.R == nil || level2.W == nil {
		return nil, errors.New("composite: level2 reader and writer are required")
	}

	level1, err := newLevel1[[]byte](&opts, opts.Level1MaxTTL)
	if err != nil {
		return nil, err
	}

	c := &Cache[T]{
		keys:              opts.keyHasher(),
		level1:            level1,
		level2:            level2,
		compress:          !opts.DisableCompression,
		thresholds:        []int{opts.CompressionThreshold, opts.Level1MaxItemSize, opts.Level2MaxItemSize},
		level1MaxItemSize: opts.Level1MaxItemSize,
		level2MaxItemSize: opts.Level2MaxItemSize,
		newBackOff:        opts.RetryBackOff,
		log:               opts.Log.WithField("cache", "composite"),
	}
	if opts.NegativeTTL > 0 {
		if c.negative, err = newLevel1[struct{}](&opts, opts.NegativeTTL); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func newLevel1[V any](opts *Options, ttl time.Duration) (*cache.ShardedCache[string, V], error) {
	eng := engine.NewCacheEngine[string, V](&expiration.ExpireAfterWrite{TTL: ttl}, nil, nil, nil, nil)
	eng.Clock = opts.level1Clock()
	eng.Log = opts.Log.WithField("level", 1)
	return cache.NewShardedCache(cache.Options[string]{Capacity: opts.Level1MaxItems}, eng)
}

/*
Put encodes doc and stores it in every level whose size limit it fits.
Records that reach a compression threshold are compressed first.
*/
func (c *Cache[T]) Put(ctx context.Context, key string, doc T) error {
	record, err := encodeRecord(doc, c.compress, c.thresholds...)
	if err != nil {
		return err
	}
	c.store(ctx, c.keys.hash(key), record)
	return nil
}

// Get returns the document stored under key. Only decoding problems are errors.
func (c *Cache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var doc T
	record, ok := c.lookup(ctx, c.keys.hash(key))
	if !ok {
		return doc, false, nil
	}
	if err := decodeRecord(record, &doc); err != nil {
		return doc, false, fmt.Errorf("get %q: %w", key, err)
	}
	return doc, true, nil
}

// PutInt64 stores a number as a base-10 string, readable by GetInt64 and by
// any level 2 that increments counters in place.
func (c *Cache[T]) PutInt64(ctx context.Context, key string, n int64) {
	c.store(ctx, c.keys.hash(key), []byte(strconv.FormatInt(n, 10)))
}

func (c *Cache[T]) GetInt64(ctx context.Context, key string) (int64, bool) {
	record, ok := c.lookup(ctx, c.keys.hash(key))
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(string(record), 10, 64)
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("Cached item is not an int64")
		return 0, false
	}
	return n, true
}

// Close releases level 1.
func (c *Cache[T]) Close() {
	c.level1.Close()
	if c.negative != nil {
		c.negative.Close()
	}
}

func (c *Cache[T]) store(ctx context.Context, hk string, record []byte) {
	if len(record) <= c.level1MaxItemSize {
		c.level1.Put(hk, record)
	} else {
		c.level1.Delete(hk)
	}

	if len(record) <= c.level2MaxItemSize {
		_, err := retry(ctx, c.newBackOff, func() (struct{}, error) {
			return struct{}{}, c.level2.W.Set(ctx, hk, record)
		})
		if err != nil {
			c.log.WithError(err).Warn("Error while putting item into the L2 cache")
		}
	}

	if c.negative != nil {
		c.negative.Delete(hk)
	}
}

func (c *Cache[T]) lookup(ctx context.Context, hk string) ([]byte, bool) {
	if c.negative != nil && c.negative.Contains(hk) {
		return nil, false
	}

	record, ok := c.level1.Get(hk)
	if !ok {
		var err error
		record, err = retry(ctx, c.newBackOff, func() ([]byte, error) {
			return c.level2.R.Get(ctx, hk)
		})
		switch {
		case err == nil:
			ok = true
			if len(record) <= c.level1MaxItemSize {
				c.level1.Put(hk, record)
			}
		case !errors.Is(err, types.ErrNotFound):
			c.log.WithError(err).Warn("Error while looking up item in the L2 cache")
		}
	}

	if !ok {
		if c.negative != nil {
			c.negative.Put(hk, struct{}{})
		}
		return nil, false
	}
	return record, true
}

// retry runs op up to maxTries times. A types.ErrNotFound answer is final.
func retry[R any](ctx context.Context, newBackOff func() backoff.BackOff, op func() (R, error)) (R, error) {
	b := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), maxTries-1), ctx)
	return backoff.RetryWithData(func() (R, error) {
		r, err := op()
		if errors.Is(err, types.ErrNotFound) {
			return r, backoff.Permanent(err)
		}
		return r, err
	}, b)
}
