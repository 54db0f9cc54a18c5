package shard

import (
	"hash/maphash"

	"github.com/cespare/xxhash/v2"
)

/*
This file decides HOW a cache key is assigned to a shard.
If every request went to the same shard, that shard would become a bottleneck.
Shard selection is about:
- Load balancing
- Avoiding hot spots
- Scaling under concurrency
*/

/*
Hasher turns a key into a uniformly distributed number.
It must return the same value for equal keys within one cache instance;
nothing else about it matters for correctness.
*/
type Hasher[K comparable] func(K) uint64

// NewMapHasher hashes any comparable key with hash/maphash under a fresh random seed.
func NewMapHasher[K comparable]() Hasher[K] {
	seed := maphash.MakeSeed()
	return func(k K) uint64 {
		return maphash.Comparable(seed, k)
	}
}

// XXHashString hashes string keys with xxHash64. Unlike NewMapHasher it is
// stable across processes.
func XXHashString(s string) uint64 {
	return xxhash.Sum64String(s)
}

/*
Selector is the interface that decides which shard should handle a given key hash.
The cache does not care HOW this decision is made. Different strategies can be plugged in.
*/
type Selector interface {
	Select(hash uint64, shards int) int
}

// MaskSelector picks a shard from the low bits of the hash. shards must be a power of two.
type MaskSelector struct{}

func (MaskSelector) Select(hash uint64, shards int) int {
	return int(hash & uint64(shards-1))
}
