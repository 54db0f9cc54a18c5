package writepolicy

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/krisalay/tlru/types"
	"github.com/sirupsen/logrus"
)

// This file implements the "write-back" policy.

// writeReq represents one pending write operation that needs to be sent to the backing store.
type writeReq[K comparable, V any] struct {
	ctx   context.Context
	key   K
	value V
}

// WriteBackPolicy manages asynchronous writes to the backing store.
type WriteBackPolicy[K comparable, V any] struct {

	// store is the backing store (DB, API, etc.)
	store types.Loader[K, V]
	log   logrus.FieldLogger

	// ch is a buffered channel that holds pending write requests.
	// Buffering lets bursts of writes through without blocking the cache.
	ch chan writeReq[K, V]

	mu     sync.RWMutex
	closed bool

	dropped atomic.Uint64

	// wg is used to wait for the worker to finish during shutdown.
	wg sync.WaitGroup
}

// NewWriteBackPolicy creates a new write-back policy and starts its worker.
func NewWriteBackPolicy[K comparable, V any](store types.Loader[K, V], buffer int, log logrus.FieldLogger) *WriteBackPolicy[K, V] {
	if log == nil {
		log = logrus.StandardLogger()
	}
	w := &WriteBackPolicy[K, V]{
		store: store,
		log:   log,
		ch:    make(chan writeReq[K, V], buffer),
	}

	w.wg.Add(1)
	go w.worker()

	return w
}

// OnWrite queues the write. If the queue is full or the policy is closed the
// write is dropped: blocking would slow down the cache and defeat the purpose
// of write-back.
func (w *WriteBackPolicy[K, V]) OnWrite(ctx context.Context, key K, value V) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		w.dropped.Add(1)
		return
	}
	select {
	case w.ch <- writeReq[K, V]{context.WithoutCancel(ctx), key, value}:
	default:
		w.dropped.Add(1)
		w.log.WithField("key", key).Debug("write-back queue full, dropping write")
	}
}

// Dropped returns how many writes were discarded.
func (w *WriteBackPolicy[K, V]) Dropped() uint64 {
	return w.dropped.Load()
}

// worker drains the queue into the backing store. This is where eventual consistency happens.
func (w *WriteBackPolicy[K, V]) worker() {
	defer w.wg.Done()

	for req := range w.ch {
		if err := w.store.Put(req.ctx, req.key, req.value); err != nil {
			w.log.WithError(err).WithField("key", req.key).Warn("write-back failed")
		}
	}
}

/*
Close shuts down the write-back policy gracefully.
1. Stop accepting writes and close the channel
2. Wait for the worker to finish processing queued writes

Close is safe to call more than once.
*/
func (w *WriteBackPolicy[K, V]) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.ch)
	w.mu.Unlock()

	w.wg.Wait()
}
