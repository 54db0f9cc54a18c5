package cache

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

/*
Sweeper drives periodic sweeps of a ShardedCache.

The cache itself owns no goroutines; lazy expiration in Get keeps reads
correct without it. A Sweeper only bounds how long expired entries that
nobody reads keep occupying memory.
*/
type Sweeper[K comparable, V any] struct {
	cache    *ShardedCache[K, V]
	interval time.Duration

	// Parallelism limits how many shards are swept at once.
	Parallelism int

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a stopped sweeper that sweeps c every interval.
func NewSweeper[K comparable, V any](c *ShardedCache[K, V], interval time.Duration) *Sweeper[K, V] {
	return &Sweeper[K, V]{
		cache:       c,
		interval:    interval,
		Parallelism: runtime.GOMAXPROCS(0),
	}
}

/*
RunOnce sweeps every shard at the current engine time, up to Parallelism
shards concurrently. Each shard is still swept under its own lock only.
*/
func (s *Sweeper[K, V]) RunOnce(ctx context.Context) (int, error) {
	now := s.cache.engine.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.Parallelism, 1))

	var total atomic.Int64
	for i := range s.cache.shards {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			total.Add(int64(s.cache.sweepShard(i, now)))
			return nil
		})
	}
	err := g.Wait()
	return int(total.Load()), err
}

// Start launches the sweep loop. It stops when ctx is done or Stop is called.
// Starting a running sweeper does nothing.
func (s *Sweeper[K, V]) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

// Stop ends the sweep loop and waits for an in-flight sweep to finish.
func (s *Sweeper[K, V]) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Sweeper[K, V]) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	log := s.cache.engine.Log
	log.WithField("interval", s.interval).Info("sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("sweeper stopped")
			return
		case <-ticker.C:
			n, err := s.RunOnce(ctx)
			if err != nil {
				continue
			}
			log.WithFields(logrus.Fields{"reclaimed": n, "entries": s.cache.Len()}).Debug("sweep finished")
		}
	}
}
