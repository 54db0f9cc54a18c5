package eviction

/*
This file defines how a shard decides what to remove when it runs out of space.

A shard always evicts from the tail of its recency List. The policy only
decides what moves an entry to the head of that list.
*/

// PolicyType is a simple identifier for supported eviction strategies.
type PolicyType string

const (
	// LRU (Least Recently Used): evicts the key that has NOT been read or written for the longest time.
	LRU PolicyType = "LRU"

	// FIFO (First In First Out): evicts the oldest inserted key, regardless of access.
	// Reads and updates leave the entry where it is.
	FIFO PolicyType = "FIFO"
)

// Valid reports whether t names a supported policy.
func (t PolicyType) Valid() bool {
	return t == LRU || t == FIFO
}

// promotes reports whether an access moves the entry to the head.
func (t PolicyType) promotes() bool {
	return t != FIFO
}
