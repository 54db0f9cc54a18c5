// This file defines where the cache gets "now" from.

package clock

import (
	"sync/atomic"
	"time"
)

/*
Clock supplies timestamps to the cache.

Now returns nanoseconds on a monotonic timeline. The origin is arbitrary;
only differences matter. Every TTL computation and every expiration wheel
slot is derived from this value, so it must never go backwards.

The cache does NOT detect a clock that jumps backwards. If it happens,
entries expire no earlier than their true deadline, possibly later until
the expiration wheel catches up again.
*/
type Clock interface {
	Now() int64
}

// processStart anchors the system clock so readings carry the monotonic component.
var processStart = time.Now()

type systemClock struct{}

// Now returns the nanoseconds elapsed since the process started.
func (systemClock) Now() int64 {
	return int64(time.Since(processStart))
}

// System returns the wall-independent, monotonic clock used in production.
func System() Clock {
	return systemClock{}
}

/*
Manual is a clock that only moves when told to.
Tests use it to call Sweep and Get with synthetic timestamps
instead of sleeping.
*/
type Manual struct {
	now atomic.Int64
}

// NewManual creates a manual clock positioned at start.
func NewManual(start time.Duration) *Manual {
	m := &Manual{}
	m.now.Store(int64(start))
	return m
}

// Now returns the current manual time.
func (m *Manual) Now() int64 {
	return m.now.Load()
}

// Advance moves the clock forward by d and returns the new time.
func (m *Manual) Advance(d time.Duration) int64 {
	return m.now.Add(int64(d))
}

// Set positions the clock at t.
func (m *Manual) Set(t time.Duration) {
	m.now.Store(int64(t))
}
