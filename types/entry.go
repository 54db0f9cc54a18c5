package types

import (
	"math"
	"time"
)

/*
Handle addresses one entry inside a shard's arena.

Every structure of a shard (hash index, recency list, expiration wheel)
refers to an entry by its handle, never by key. Handles are dense indices
in [0, capacity) and are recycled through the shard's free list.
*/
type Handle int32

// Nil is the handle that points at nothing.
const Nil Handle = -1

// Never is the deadline of an entry that does not expire.
const Never int64 = math.MaxInt64

// Forever is the TTL that schedules an entry into the never-expires bucket.
const Forever time.Duration = math.MaxInt64

// Entry is a point-in-time copy of one live cache entry.
type Entry[K comparable, V any] struct {
	Key   K
	Value V

	// ExpiresAt is the deadline on the cache clock, or Never.
	ExpiresAt int64
}

// Deadline converts a TTL into an absolute deadline relative to now.
// Forever and overflowing sums map to Never.
func Deadline(now int64, ttl time.Duration) int64 {
	if ttl == Forever || int64(ttl) > Never-now {
		return Never
	}
	return now + int64(ttl)
}
