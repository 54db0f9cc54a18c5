package types

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a Loader when the backing store has no value for a key.
var ErrNotFound = errors.New("key not found")

// Loader is the contract between the cache and the backing store.
type Loader[K comparable, V any] interface {

	/*
		Load is called when the cache misses. The key was not found in memory, so the cache asks the Loader to fetch it.
		1. Cache checks memory → key not found
		2. Cache calls Load(key)
		3. Loader fetches from DB/API
		4. Cache stores the result in memory
		5. Cache returns the value

		A Loader reports a missing key with ErrNotFound.
	*/
	Load(ctx context.Context, key K) (V, error)

	/*
		Put is called when the cache needs to write data back to the backing store.
		Write policies use it: write-through writes immediately, write-back writes later.
		This does NOT store data in the cache.
	*/
	Put(ctx context.Context, key K, value V) error
}
