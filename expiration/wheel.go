// This file implements the expiration wheel.

package expiration

import (
	"fmt"
	"time"

	"github.com/krisalay/tlru/types"
)

/*
Wheel groups entry handles by approximate deadline so that finding every
entry expired as of "now" costs the number of slots passed plus the number
of entries found, never the size of the cache.

Layout
------
  - slots: W buckets, each covering g nanoseconds of deadlines. A deadline d
    lands in slot floor(d/g) mod W.
  - overflow: deadlines at or beyond the horizon (cursor + W ticks). They are
    cascaded into the slots when the cursor crosses a revolution boundary, so
    they reach their slot in time.
  - never: entries without a deadline. Draining never looks here.

cursor is the tick (floor(now/g)) of the oldest slot that may still hold
entries. Every slot entry has a tick in [cursor, cursor+W), except entries
scheduled with a deadline already behind the cursor: those are parked in
the cursor slot.

Each bucket is an unordered doubly-linked list threaded through prev/next,
indexed by handle. The wheel never allocates after construction.

Precision: an entry is reported by DrainExpired as soon as its deadline is
<= now. The cost of that precision is a scan of the single slot holding
"now"; entries there that are not yet due stay put.
*/
type Wheel struct {
	granularity int64
	slots       int64
	mask        int64

	heads    []types.Handle // one list head per bucket: slots, overflow, never
	prev     []types.Handle
	next     []types.Handle
	bucket   []int32 // bucket of each handle, unscheduled when < 0
	deadline []int64

	cursor   int64
	inSlots  int
	overflow int
	total    int
}

const unscheduled int32 = -1

// NewWheel creates a wheel for handles in [0, capacity) with the given
// number of slots (a power of two) and slot width, starting at now.
func NewWheel(capacity, slots int, granularity time.Duration, now int64) *Wheel {
	if capacity <= 0 {
		panic("expiration: capacity must be positive")
	}
	if slots <= 0 || slots&(slots-1) != 0 {
		panic("expiration: slots must be a positive power of two")
	}
	if granularity <= 0 {
		panic("expiration: granularity must be positive")
	}

	w := &Wheel{
		granularity: int64(granularity),
		slots:       int64(slots),
		mask:        int64(slots - 1),
		heads:       make([]types.Handle, slots+2),
		prev:        make([]types.Handle, capacity),
		next:        make([]types.Handle, capacity),
		bucket:      make([]int32, capacity),
		deadline:    make([]int64, capacity),
	}
	for i := range w.heads {
		w.heads[i] = types.Nil
	}
	for i := range w.bucket {
		w.bucket[i] = unscheduled
		w.prev[i] = types.Nil
		w.next[i] = types.Nil
	}
	w.cursor = w.tick(now)
	return w
}

// OverflowBucket is the bucket id of entries beyond the horizon.
func (w *Wheel) OverflowBucket() int { return int(w.slots) }

// NeverBucket is the bucket id of entries that never expire.
func (w *Wheel) NeverBucket() int { return int(w.slots) + 1 }

// Len returns the number of scheduled handles, including never-expiring ones.
func (w *Wheel) Len() int { return w.total }

// Granularity returns the slot width.
func (w *Wheel) Granularity() time.Duration { return time.Duration(w.granularity) }

// Deadline returns the deadline h was last scheduled with.
func (w *Wheel) Deadline(h types.Handle) int64 { return w.deadline[h] }

// Bucket returns the bucket holding h, or -1 if h is not scheduled.
func (w *Wheel) Bucket(h types.Handle) int { return int(w.bucket[h]) }

// Schedule places h in the bucket matching expiresAt.
func (w *Wheel) Schedule(h types.Handle, expiresAt int64) {
	if w.bucket[h] != unscheduled {
		w.unlink(h)
	}
	w.deadline[h] = expiresAt
	w.link(h, w.bucketFor(expiresAt))
}

// Reschedule moves h to the bucket matching its new deadline. It is always a
// full recompute from expiresAt.
func (w *Wheel) Reschedule(h types.Handle, expiresAt int64) {
	w.Schedule(h, expiresAt)
}

// Unschedule removes h from its bucket. Unscheduling twice is a no-op.
func (w *Wheel) Unschedule(h types.Handle) {
	if w.bucket[h] != unscheduled {
		w.unlink(h)
	}
}

/*
DrainExpired removes every handle whose deadline is <= now and passes each
one to yield, already unscheduled. It returns how many were yielded.

Steps:
 1. Fully drain every slot whose time span ended before the tick of now,
    cascading overflow entries at each revolution boundary.
 2. If the cursor is a full revolution or more behind, drain the whole wheel
    and re-bucket the overflow list once instead of stepping tick by tick.
 3. Scan the slot containing now and yield only the entries already due.

Calling it again with the same or an earlier now yields nothing new.
yield must not schedule or unschedule other handles.
*/
func (w *Wheel) DrainExpired(now int64, yield func(types.Handle)) int {
	drained := 0
	target := w.tick(now)

	switch {
	case target <= w.cursor:
		// Nothing elapsed beyond the cursor slot.
	case w.inSlots == 0 && w.overflow == 0:
		w.cursor = target
	case target-w.cursor >= w.slots:
		drained += w.jump(target, now, yield)
	default:
		for w.cursor < target {
			drained += w.drainSlot(w.cursor&w.mask, yield)
			w.cursor++
			if w.cursor&w.mask == 0 {
				w.cascade()
			}
		}
	}

	return drained + w.drainDue(w.cursor&w.mask, now, yield)
}

// Walk visits every scheduled handle with its bucket until fn returns false.
func (w *Wheel) Walk(fn func(bucket int, h types.Handle) bool) {
	for b, head := range w.heads {
		for h := head; h != types.Nil; h = w.next[h] {
			if !fn(b, h) {
				return
			}
		}
	}
}

// Reset unschedules every handle and moves the cursor to now.
func (w *Wheel) Reset(now int64) {
	for b, head := range w.heads {
		for h := head; h != types.Nil; {
			nxt := w.next[h]
			w.prev[h] = types.Nil
			w.next[h] = types.Nil
			w.bucket[h] = unscheduled
			h = nxt
		}
		w.heads[b] = types.Nil
	}
	w.inSlots, w.overflow, w.total = 0, 0, 0
	w.cursor = w.tick(now)
}

// Verify checks that every handle sits in the bucket its deadline maps to.
func (w *Wheel) Verify() error {
	count := 0
	horizon := w.cursor + w.slots
	blockEnd := (w.cursor &^ w.mask) + w.slots

	for b, head := range w.heads {
		prev := types.Nil
		for h := head; h != types.Nil; h = w.next[h] {
			count++
			if int(w.bucket[h]) != b {
				return fmt.Errorf("handle %d linked in bucket %d but records bucket %d", h, b, w.bucket[h])
			}
			if w.prev[h] != prev {
				return fmt.Errorf("handle %d has broken back link", h)
			}
			prev = h

			d := w.deadline[h]
			switch {
			case b == w.NeverBucket():
				if d != types.Never {
					return fmt.Errorf("handle %d with deadline %d in never bucket", h, d)
				}
			case b == w.OverflowBucket():
				if d == types.Never || w.tick(d) < blockEnd {
					return fmt.Errorf("handle %d with deadline %d should not be in overflow", h, d)
				}
			default:
				t := max(w.tick(d), w.cursor)
				if d == types.Never || t >= horizon || int(t&w.mask) != b {
					return fmt.Errorf("handle %d with deadline %d misplaced in slot %d", h, d, b)
				}
			}
		}
	}
	if count != w.total {
		return fmt.Errorf("wheel holds %d handles but counts %d", count, w.total)
	}
	return nil
}

// tick maps a timestamp to its slot number, flooring negative values.
func (w *Wheel) tick(t int64) int64 {
	if t < 0 {
		return (t - w.granularity + 1) / w.granularity
	}
	return t / w.granularity
}

func (w *Wheel) bucketFor(expiresAt int64) int32 {
	if expiresAt == types.Never {
		return int32(w.NeverBucket())
	}
	t := max(w.tick(expiresAt), w.cursor)
	if t-w.cursor >= w.slots {
		return int32(w.OverflowBucket())
	}
	return int32(t & w.mask)
}

func (w *Wheel) link(h types.Handle, b int32) {
	first := w.heads[b]
	w.prev[h] = types.Nil
	w.next[h] = first
	if first != types.Nil {
		w.prev[first] = h
	}
	w.heads[b] = h
	w.bucket[h] = b

	w.total++
	switch {
	case int64(b) < w.slots:
		w.inSlots++
	case int(b) == w.OverflowBucket():
		w.overflow++
	}
}

func (w *Wheel) unlink(h types.Handle) {
	b := w.bucket[h]
	p, n := w.prev[h], w.next[h]
	if p != types.Nil {
		w.next[p] = n
	} else {
		w.heads[b] = n
	}
	if n != types.Nil {
		w.prev[n] = p
	}
	w.prev[h] = types.Nil
	w.next[h] = types.Nil
	w.bucket[h] = unscheduled

	w.total--
	switch {
	case int64(b) < w.slots:
		w.inSlots--
	case int(b) == w.OverflowBucket():
		w.overflow--
	}
}

// drainSlot yields every handle in slot s.
func (w *Wheel) drainSlot(s int64, yield func(types.Handle)) int {
	n := 0
	for h := w.heads[s]; h != types.Nil; h = w.heads[s] {
		w.unlink(h)
		yield(h)
		n++
	}
	return n
}

// drainDue yields the handles of bucket b whose deadline is <= now.
func (w *Wheel) drainDue(b int64, now int64, yield func(types.Handle)) int {
	n := 0
	for h := w.heads[b]; h != types.Nil; {
		nxt := w.next[h]
		if w.deadline[h] <= now {
			w.unlink(h)
			yield(h)
			n++
		}
		h = nxt
	}
	return n
}

// cascade moves overflow handles that came within the horizon into their slots.
func (w *Wheel) cascade() {
	ob := int64(w.OverflowBucket())
	horizon := w.cursor + w.slots
	for h := w.heads[ob]; h != types.Nil; {
		nxt := w.next[h]
		if w.tick(w.deadline[h]) < horizon {
			w.unlink(h)
			w.link(h, w.bucketFor(w.deadline[h]))
		}
		h = nxt
	}
}

// jump handles a cursor that fell a full revolution or more behind target.
// Every slot entry is due by then, and the overflow list is re-bucketed
// against the new cursor.
func (w *Wheel) jump(target, now int64, yield func(types.Handle)) int {
	n := 0
	for s := int64(0); s < w.slots && w.inSlots > 0; s++ {
		n += w.drainSlot(s, yield)
	}
	w.cursor = target

	ob := int64(w.OverflowBucket())
	for h := w.heads[ob]; h != types.Nil; {
		nxt := w.next[h]
		d := w.deadline[h]
		if d <= now {
			w.unlink(h)
			yield(h)
			n++
		} else if b := w.bucketFor(d); int64(b) != ob {
			w.unlink(h)
			w.link(h, b)
		}
		h = nxt
	}
	return n
}
