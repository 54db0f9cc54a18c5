// This file implements the recency list.

package eviction

import "github.com/krisalay/tlru/types"

/*
List is an intrusive doubly-linked list of entry handles, ordered from most
recently used (head) to least recently used (tail).

Links live in two dense arrays indexed by handle, so the list never
allocates after construction and never looks anything up by key. One extra
slot at index capacity is the sentinel: sentinel.next is the head and
sentinel.prev is the tail, which removes every nil check from link and unlink.

A handle that is not in the list has next == types.Nil.
*/
type List struct {
	policy PolicyType

	prev []types.Handle
	next []types.Handle

	// sentinel is the index of the dummy node closing the ring.
	sentinel types.Handle
	len      int
}

// NewList creates a list able to hold handles in [0, capacity).
func NewList(capacity int, policy PolicyType) *List {
	if capacity <= 0 {
		panic("eviction: capacity must be positive")
	}
	if !policy.Valid() {
		panic("unknown eviction policy")
	}

	l := &List{
		policy:   policy,
		prev:     make([]types.Handle, capacity+1),
		next:     make([]types.Handle, capacity+1),
		sentinel: types.Handle(capacity),
	}
	for i := range l.next {
		l.prev[i] = types.Nil
		l.next[i] = types.Nil
	}
	l.prev[l.sentinel] = l.sentinel
	l.next[l.sentinel] = l.sentinel
	return l
}

// Policy returns the policy the list was built with.
func (l *List) Policy() PolicyType { return l.policy }

// Len returns the number of linked handles.
func (l *List) Len() int { return l.len }

// Contains reports whether h is linked.
func (l *List) Contains(h types.Handle) bool {
	return l.next[h] != types.Nil
}

// PushFront unlinks h if it is linked and places it at the head.
func (l *List) PushFront(h types.Handle) {
	if l.Contains(h) {
		if l.next[l.sentinel] == h {
			return
		}
		l.unlink(h)
	}
	first := l.next[l.sentinel]
	l.prev[h] = l.sentinel
	l.next[h] = first
	l.prev[first] = h
	l.next[l.sentinel] = h
	l.len++
}

// Touch records an access to h: LRU promotes it, FIFO leaves it in place.
func (l *List) Touch(h types.Handle) {
	if l.policy.promotes() {
		l.PushFront(h)
	}
}

// Back returns the least recently used handle, or types.Nil when empty.
func (l *List) Back() types.Handle {
	if l.len == 0 {
		return types.Nil
	}
	return l.prev[l.sentinel]
}

// PopBack removes and returns the least recently used handle.
func (l *List) PopBack() (types.Handle, bool) {
	h := l.Back()
	if h == types.Nil {
		return types.Nil, false
	}
	l.unlink(h)
	return h, true
}

// Unlink removes h from wherever it sits. Unlinking an unlinked handle is a no-op.
func (l *List) Unlink(h types.Handle) {
	if l.Contains(h) {
		l.unlink(h)
	}
}

// Walk visits handles from head to tail until fn returns false.
func (l *List) Walk(fn func(types.Handle) bool) {
	for h := l.next[l.sentinel]; h != l.sentinel; h = l.next[h] {
		if !fn(h) {
			return
		}
	}
}

// Reset unlinks every handle.
func (l *List) Reset() {
	for h := l.next[l.sentinel]; h != l.sentinel; {
		nxt := l.next[h]
		l.prev[h] = types.Nil
		l.next[h] = types.Nil
		h = nxt
	}
	l.prev[l.sentinel] = l.sentinel
	l.next[l.sentinel] = l.sentinel
	l.len = 0
}

func (l *List) unlink(h types.Handle) {
	p, n := l.prev[h], l.next[h]
	l.next[p] = n
	l.prev[n] = p
	l.prev[h] = types.Nil
	l.next[h] = types.Nil
	l.len--
}
