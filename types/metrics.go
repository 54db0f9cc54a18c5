package types

import "sync/atomic"

// This file defines how the cache reports what it is doing.

/*
Metrics is an interface that defines what the cache wants to measure.
Each method represents an event in the cache lifecycle. The cache calls these
methods outside of shard locks, so implementations may block briefly but
should stay cheap.
*/
type Metrics interface {

	// Hit is called when the cache successfully returns a value.
	Hit()

	// Miss is called when the cache does NOT find a live value for a key.
	Miss()

	// Eviction is called when a key is removed because its shard is full and needs space.
	Eviction()

	// Expire is called when a key is removed because it has passed its TTL,
	// either lazily on access, by a sweep, or while making room for a new key.
	Expire()

	// Refresh is called when a refresh hook is triggered.
	Refresh()
}

/*
NoopMetrics is a "do nothing" implementation of Metrics.
It lets the cache call metrics unconditionally without nil checks.
*/
type NoopMetrics struct{}

func (NoopMetrics) Hit()      {}
func (NoopMetrics) Miss()     {}
func (NoopMetrics) Eviction() {}
func (NoopMetrics) Expire()   {}
func (NoopMetrics) Refresh()  {}

// Stats counts cache events with atomic counters.
type Stats struct {
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
	expired   atomic.Uint64
	refreshes atomic.Uint64
}

func (s *Stats) Hit()      { s.hits.Add(1) }
func (s *Stats) Miss()     { s.misses.Add(1) }
func (s *Stats) Eviction() { s.evictions.Add(1) }
func (s *Stats) Expire()   { s.expired.Add(1) }
func (s *Stats) Refresh()  { s.refreshes.Add(1) }

// StatsSnapshot is a copy of the counters at one moment.
type StatsSnapshot struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Expired   uint64 `json:"expired"`
	Refreshes uint64 `json:"refreshes"`
}

// Snapshot reads every counter. Counters are read independently, so a snapshot
// taken under load is not a single atomic cut.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Evictions: s.evictions.Load(),
		Expired:   s.expired.Load(),
		Refreshes: s.refreshes.Load(),
	}
}

// HitRatio returns hits / (hits + misses), or 0 before any lookup.
func (s StatsSnapshot) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
