package composite

import (
	"context"
	"errors"
	"strconv"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/krisalay/tlru/types"
)

/*
Counter keeps integers directly in a Level2Incr store, with the same key
derivation as Cache. Only Namespace, MaxTTL, Now, RetryBackOff and Log of
the options apply. Level 2 failures are logged, never returned.
*/
type Counter struct {
	keys       keyHasher
	level2     Level2Incr
	newBackOff func() backoff.BackOff
	log        logrus.FieldLogger
}

func NewCounter(opts Options, level2 Level2Incr) (*Counter, error) {
	opts.Level1MaxTTL = 0
	if err := opts.withDefaults(); err != nil {
		return nil, err
	}
	if level2 == nil {
		return nil, errors.New("composite: level2 is required")
	}
	return &Counter{
		keys:       opts.keyHasher(),
		level2:     level2,
		newBackOff: opts.RetryBackOff,
		log:        opts.Log.WithField("cache", "counter"),
	}, nil
}

func (c *Counter) Put(ctx context.Context, key string, n int64) {
	hk := c.keys.hash(key)
	_, err := retry(ctx, c.newBackOff, func() (struct{}, error) {
		return struct{}{}, c.level2.Set(ctx, hk, []byte(strconv.FormatInt(n, 10)))
	})
	if err != nil {
		c.log.WithError(err).Warn("Error while putting item into the L2 cache")
	}
}

func (c *Counter) Get(ctx context.Context, key string) (int64, bool) {
	hk := c.keys.hash(key)
	record, err := retry(ctx, c.newBackOff, func() ([]byte, error) {
		return c.level2.Get(ctx, hk)
	})
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			c.log.WithError(err).Warn("Error while looking up item in the L2 cache")
		}
		return 0, false
	}
	n, err := strconv.ParseInt(string(record), 10, 64)
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("Counter value is not an int64")
		return 0, false
	}
	return n, true
}

// Incr increments key and returns the new count, or 1 when level 2 fails.
func (c *Counter) Incr(ctx context.Context, key string) int64 {
	hk := c.keys.hash(key)
	n, err := retry(ctx, c.newBackOff, func() (int64, error) {
		return c.level2.Incr(ctx, hk)
	})
	if err != nil {
		c.log.WithError(err).Warn("Error while incrementing item in the L2 cache; returning default value (1).")
		return 1
	}
	return n
}
