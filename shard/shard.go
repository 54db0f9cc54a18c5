package shard

import (
	"fmt"
	"sync"
	"time"

	"github.com/krisalay/tlru/eviction"
	"github.com/krisalay/tlru/expiration"
	"github.com/krisalay/tlru/types"
)

/*
This file defines what a "Shard" is. A shard is a small, independent piece of the cache.
Instead of having one big cache and one big lock, we split the cache into many shards.

Each shard is a complete eviction engine:
  - a hash index   (key → handle)
  - a recency list (handles, most → least recently used)
  - an expiration wheel (handles grouped by deadline)

all three addressing the same dense arena of entries, and all three guarded
by one mutex. A put touches both the recency list and the wheel, so they are
never locked separately.
*/
type Shard[K comparable, V any] struct {
	mu sync.Mutex

	capacity int

	index  map[K]types.Handle
	keys   []K
	values []V
	ttls   []time.Duration // the TTL each entry was written with, for sliding refresh
	free   []types.Handle

	recency *eviction.List
	wheel   *expiration.Wheel
}

// WheelConfig sizes a shard's expiration wheel.
type WheelConfig struct {
	Slots       int
	Granularity time.Duration
}

// Status tells the caller what a lookup found.
type Status uint8

const (
	// Miss means no entry exists for the key.
	Miss Status = iota
	// Hit means a live entry was found.
	Hit
	// Expired means an entry existed but its deadline had passed.
	Expired
)

// PutResult describes what a write replaced and reclaimed.
type PutResult[V any] struct {
	// Previous is the value that was replaced, valid when Replaced is true.
	Previous V
	Replaced bool

	// Evicted counts live entries removed for capacity.
	Evicted int
	// Expired counts expired entries reclaimed during the write.
	Expired int
}

// NewShard creates a shard holding at most capacity entries, with its wheel cursor at now.
func NewShard[K comparable, V any](capacity int, policy eviction.PolicyType, wc WheelConfig, now int64) *Shard[K, V] {
	if capacity <= 0 {
		panic("shard: capacity must be positive")
	}

	s := &Shard[K, V]{
		capacity: capacity,
		index:    make(map[K]types.Handle, capacity),
		keys:     make([]K, capacity),
		values:   make([]V, capacity),
		ttls:     make([]time.Duration, capacity),
		free:     make([]types.Handle, capacity),
		recency:  eviction.NewList(capacity, policy),
		wheel:    expiration.NewWheel(capacity, wc.Slots, wc.Granularity, now),
	}
	s.resetFree()
	return s
}

// Capacity returns the maximum number of entries.
func (s *Shard[K, V]) Capacity() int { return s.capacity }

/*
Get looks up key at time now.

  - Missing key: Miss.
  - Deadline reached (now >= expires_at): the entry is removed from the index,
    the recency list and the wheel, and Expired is returned as if the key was
    never found.
  - Otherwise the entry is touched in the recency list and Hit is returned with
    the value and its deadline. When refresh is set the deadline restarts from
    now using the entry's own TTL.
*/
func (s *Shard[K, V]) Get(key K, now int64, refresh bool) (V, int64, Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero V
	h, ok := s.index[key]
	if !ok {
		return zero, 0, Miss
	}
	if s.expired(h, now) {
		s.remove(h)
		return zero, 0, Expired
	}

	s.recency.Touch(h)
	if refresh && s.ttls[h] != types.Forever {
		s.wheel.Reschedule(h, types.Deadline(now, s.ttls[h]))
	}
	return s.values[h], s.wheel.Deadline(h), Hit
}

// Peek reads key without touching recency and without reclaiming an expired entry.
func (s *Shard[K, V]) Peek(key K, now int64) (V, int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero V
	h, ok := s.index[key]
	if !ok || s.expired(h, now) {
		return zero, 0, false
	}
	return s.values[h], s.wheel.Deadline(h), true
}

/*
Put stores value under key with the given TTL.

  - ttl == types.Forever: the entry goes to the never-expires bucket.
  - ttl <= 0: the value would never be observable, so nothing is stored and any
    existing entry for key is removed.
  - Hit: value replaced, deadline recomputed from now, wheel slot recomputed,
    entry touched.
  - Miss at capacity: expired entries are swept first; if the shard is still
    full the recency tail is removed, counted as expired if its deadline has
    passed and as an eviction otherwise.
*/
func (s *Shard[K, V]) Put(key K, value V, ttl time.Duration, now int64) PutResult[V] {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.put(key, value, ttl, now)
}

/*
Compute replaces the value of key with fn(old, found) in one critical section.
A live entry keeps its deadline; a new entry gets ttl.
*/
func (s *Shard[K, V]) Compute(key K, ttl time.Duration, now int64, fn func(old V, found bool) V) (V, PutResult[V]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res PutResult[V]
	if h, ok := s.index[key]; ok {
		if !s.expired(h, now) {
			v := fn(s.values[h], true)
			res.Previous, res.Replaced = s.values[h], true
			s.values[h] = v
			s.recency.Touch(h)
			return v, res
		}
		s.remove(h)
		res.Expired++
	}

	var zero V
	v := fn(zero, false)
	inner := s.put(key, v, ttl, now)
	res.Evicted += inner.Evicted
	res.Expired += inner.Expired
	return v, res
}

// Delete removes key. It returns Hit when a live entry was removed, Expired
// when only an expired one was, and Miss when nothing was there.
func (s *Shard[K, V]) Delete(key K, now int64) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.index[key]
	if !ok {
		return Miss
	}
	st := Hit
	if s.expired(h, now) {
		st = Expired
	}
	s.remove(h)
	return st
}

// Expire gives a live entry a new TTL measured from now. A ttl <= 0 removes it.
func (s *Shard[K, V]) Expire(key K, ttl time.Duration, now int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.index[key]
	if !ok || s.expired(h, now) {
		return false
	}
	if ttl <= 0 {
		s.remove(h)
		return true
	}
	s.ttls[h] = ttl
	s.wheel.Reschedule(h, types.Deadline(now, ttl))
	return true
}

// Sweep reclaims every entry whose deadline is <= now and returns how many.
func (s *Shard[K, V]) Sweep(now int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sweep(now)
}

// Len returns the number of indexed entries, including expired ones not yet swept.
func (s *Shard[K, V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.index)
}

// Items returns live entries from most to least recently used without touching them.
func (s *Shard[K, V]) Items(now int64) []types.Entry[K, V] {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.Entry[K, V], 0, len(s.index))
	s.recency.Walk(func(h types.Handle) bool {
		if !s.expired(h, now) {
			out = append(out, types.Entry[K, V]{Key: s.keys[h], Value: s.values[h], ExpiresAt: s.wheel.Deadline(h)})
		}
		return true
	})
	return out
}

// Purge drops every entry and returns how many there were.
func (s *Shard[K, V]) Purge(now int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.index)
	clear(s.index)
	clear(s.keys)
	clear(s.values)
	s.recency.Reset()
	s.wheel.Reset(now)
	s.resetFree()
	return n
}

/*
Verify checks the structural invariants: every indexed entry is linked in the
recency list and scheduled in exactly one wheel bucket, nothing else is, and
the free list accounts for every other handle.
*/
func (s *Shard[K, V]) Verify() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.index) > s.capacity {
		return fmt.Errorf("shard holds %d entries over capacity %d", len(s.index), s.capacity)
	}
	if n := s.recency.Len(); n != len(s.index) {
		return fmt.Errorf("recency list holds %d handles, index %d", n, len(s.index))
	}
	if n := s.wheel.Len(); n != len(s.index) {
		return fmt.Errorf("wheel holds %d handles, index %d", n, len(s.index))
	}
	if len(s.free)+len(s.index) != s.capacity {
		return fmt.Errorf("free list %d + index %d != capacity %d", len(s.free), len(s.index), s.capacity)
	}
	for k, h := range s.index {
		if s.keys[h] != k {
			return fmt.Errorf("handle %d indexed under a different key", h)
		}
		if !s.recency.Contains(h) {
			return fmt.Errorf("handle %d missing from recency list", h)
		}
		if s.wheel.Bucket(h) < 0 {
			return fmt.Errorf("handle %d missing from wheel", h)
		}
	}
	var err error
	s.recency.Walk(func(h types.Handle) bool {
		if idx, ok := s.index[s.keys[h]]; !ok || idx != h {
			err = fmt.Errorf("recency list links unindexed handle %d", h)
		}
		return err == nil
	})
	if err != nil {
		return err
	}
	return s.wheel.Verify()
}

func (s *Shard[K, V]) put(key K, value V, ttl time.Duration, now int64) PutResult[V] {
	var res PutResult[V]

	h, ok := s.index[key]
	if ok && s.expired(h, now) {
		s.remove(h)
		res.Expired++
		ok = false
	}

	if ttl <= 0 {
		if ok {
			res.Previous, res.Replaced = s.values[h], true
			s.remove(h)
		}
		return res
	}
	deadline := types.Deadline(now, ttl)

	if ok {
		res.Previous, res.Replaced = s.values[h], true
		s.values[h] = value
		s.ttls[h] = ttl
		s.wheel.Reschedule(h, deadline)
		s.recency.Touch(h)
		return res
	}

	if len(s.index) >= s.capacity {
		res.Expired += s.sweep(now)
	}
	if len(s.index) >= s.capacity {
		tail := s.recency.Back()
		if s.expired(tail, now) {
			res.Expired++
		} else {
			res.Evicted++
		}
		s.remove(tail)
	}

	h = s.free[len(s.free)-1]
	s.free = s.free[:len(s.free)-1]

	s.keys[h] = key
	s.values[h] = value
	s.ttls[h] = ttl
	s.index[key] = h
	s.wheel.Schedule(h, deadline)
	s.recency.PushFront(h)
	return res
}

func (s *Shard[K, V]) sweep(now int64) int {
	return s.wheel.DrainExpired(now, func(h types.Handle) {
		delete(s.index, s.keys[h])
		s.recency.Unlink(h)
		s.release(h)
	})
}

func (s *Shard[K, V]) expired(h types.Handle, now int64) bool {
	return now >= s.wheel.Deadline(h)
}

// remove unlinks h from all three structures and frees its slot.
func (s *Shard[K, V]) remove(h types.Handle) {
	delete(s.index, s.keys[h])
	s.recency.Unlink(h)
	s.wheel.Unschedule(h)
	s.release(h)
}

func (s *Shard[K, V]) release(h types.Handle) {
	var zk K
	var zv V
	s.keys[h] = zk
	s.values[h] = zv
	s.free = append(s.free, h)
}

func (s *Shard[K, V]) resetFree() {
	s.free = s.free[:0]
	for i := s.capacity - 1; i >= 0; i-- {
		s.free = append(s.free, types.Handle(i))
	}
}
