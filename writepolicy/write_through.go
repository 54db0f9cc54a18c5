package writepolicy

import (
	"context"

	"github.com/krisalay/tlru/types"
	"github.com/sirupsen/logrus"
)

/*
This file implements the "write-through" policy.

Whenever the cache writes data, it immediately writes the same data to the backing store.

So the flow is: Cache write → DB write (synchronous)
*/

// WriteThroughPolicy directly forwards every cache write to the backing store.
type WriteThroughPolicy[K comparable, V any] struct {

	// store is the backing store (DB, API, etc.) where data must be persisted immediately.
	store types.Loader[K, V]
	log   logrus.FieldLogger
}

// NewWriteThroughPolicy creates a new write-through policy.
func NewWriteThroughPolicy[K comparable, V any](store types.Loader[K, V], log logrus.FieldLogger) *WriteThroughPolicy[K, V] {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &WriteThroughPolicy[K, V]{store: store, log: log}
}

/*
OnWrite writes to the backing store before returning.
  - The cache write is not considered complete until the backing store write finishes
  - If the backing store is slow, cache writes become slow
  - Failures are logged; the cached value stays
*/
func (w *WriteThroughPolicy[K, V]) OnWrite(ctx context.Context, key K, value V) {
	if err := w.store.Put(ctx, key, value); err != nil {
		w.log.WithError(err).WithField("key", key).Warn("write-through failed")
	}
}

// Close has nothing to clean up; write-through runs no background workers.
func (w *WriteThroughPolicy[K, V]) Close() {}
