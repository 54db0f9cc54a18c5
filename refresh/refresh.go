// This file defines the idea of a "refresh hook".
// This hook allows the cache to do something extra WHEN data is read from the cache.
// The goal of refresh is: "Keep data fresh without slowing down reads"

package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

/*
Hook is the interface for refresh behavior.
If a refresh hook is configured, it is called every time a cache entry is
successfully read, after the shard lock has been released.

This gives us a chance to:
- Check if the entry is about to expire
- Trigger a background refresh
- Log access patterns
*/
type Hook[K comparable, V any] interface {

	/*
		OnRead is called after a successful cache read with the time left
		before the entry expires (types.Forever when it never does).
		This method MUST be fast and non blocking because it runs on the hot read path.
	*/
	OnRead(key K, value V, remaining time.Duration)
}

/*
Ahead implements refresh-ahead: when a read finds an entry with less than
Threshold left to live, Reload is started in the background so the next
reader finds a fresh value instead of a miss.

Concurrent reads of the same key share one reload.
*/
type Ahead[K comparable, V any] struct {
	Threshold time.Duration
	Reload    func(ctx context.Context, key K) error
	Log       logrus.FieldLogger

	group singleflight.Group
}

// NewAhead creates a refresh-ahead hook.
func NewAhead[K comparable, V any](threshold time.Duration, reload func(ctx context.Context, key K) error, log logrus.FieldLogger) *Ahead[K, V] {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Ahead[K, V]{Threshold: threshold, Reload: reload, Log: log}
}

func (a *Ahead[K, V]) OnRead(key K, _ V, remaining time.Duration) {
	if remaining > a.Threshold {
		return
	}
	// DoChan starts at most one reload per key; the buffered result is dropped.
	a.group.DoChan(fmt.Sprint(key), func() (any, error) {
		err := a.Reload(context.Background(), key)
		if err != nil {
			a.Log.WithError(err).WithField("key", key).Warn("refresh-ahead reload failed")
		}
		return nil, err
	})
}
