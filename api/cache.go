package api

import (
	"context"
	"time"

	"github.com/krisalay/tlru/types"
)

/*
Cache defines the PUBLIC API of the TLRU cache.
This is a contract that guarantees certain behaviors, without exposing internals.
All of the details like (sharding, the recency list, the expiration wheel, locking,
data loading, and data writing) are hidden behind this interface.
*/
type Cache[K comparable, V any] interface {

	/*
		Get retrieves the value associated with the given key.

		BEHAVIOR:
		-------------------
		1. If the key exists in cache and its deadline has not been reached:
		   - Return the value and mark the entry most recently used

		2. If the key does NOT exist or its deadline has passed:
		   - An expired entry is removed on the spot
		   - Return false
	*/
	Get(key K) (V, bool)

	/*
		GetOrLoad is Get with read-through: on a miss the configured Loader is
		called once per key, however many callers are waiting, and the result is
		stored with the default TTL.
	*/
	GetOrLoad(ctx context.Context, key K) (V, error)

	/*
		Put stores a key-value pair with the default TTL.
		It returns the value it replaced, if a live one existed.

		BEHAVIOR:
		---------
		- If the shard is full, expired entries are swept first
		- If it is still full, the least recently used entry is evicted
		- Applies write policy (write-through or write-back)
	*/
	Put(key K, value V) (V, bool)

	/*
		PutWithTTL stores a key-value pair with an explicit time-to-live (TTL).

		TTL (Time-To-Live):
		-------------------
		- ttl > 0        : the key expires ttl after this write
		- types.Forever  : the key never expires
		- ttl <= 0       : nothing is stored and any existing key is removed
	*/
	PutWithTTL(key K, value V, ttl time.Duration) (V, bool)

	/*
		Delete removes a key from the cache immediately.
		It returns true when a live entry was removed.

		This operation is idempotent:
		- Removing a non-existing key is safe
	*/
	Delete(key K) bool

	/*
		Expire sets or updates the TTL for an existing key.

		- If the key exists: its deadline becomes now + ttl and true is returned
		- If the key does NOT exist: nothing happens and false is returned
	*/
	Expire(key K, ttl time.Duration) bool

	/*
		TTL returns the remaining time-to-live for a key.

		RETURN VALUES (Redis-compatible semantics):
		-------------------------------------------
		> 0   : Duration remaining before expiration
		-1    : Key exists but has no TTL
		-2    : Key does not exist or is already expired
	*/
	TTL(key K) time.Duration

	// Sweep removes every expired entry and returns how many were removed.
	Sweep() int

	// Len returns the number of stored entries, including expired ones not yet swept.
	Len() int

	// Items returns a copy of the live entries.
	Items() []types.Entry[K, V]

	/*
		Close gracefully shuts down the cache.

		BEHAVIOR:
		---------
		- Closes the write policy, flushing any pending write-back operations
		- Does not stop a Sweeper; the Sweeper is stopped with its own Stop

		WHEN TO CALL:
		-------------
		- Application shutdown
		- Tests cleanup
	*/
	Close()
}
