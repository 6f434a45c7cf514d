// Package timer implements the reactor's relative-time timer service: a
// min-heap of callbacks ordered by milliseconds remaining, grounded on the
// timerHeap pattern from the retrieved event-loop reference
// (joeycumines-go-utilpkg's container/heap-backed timer queue) but adapted
// to a decrement-on-wake model: instead of storing absolute deadlines,
// every entry stores milliseconds remaining as of the last time the queue
// was touched, and each call to Advance subtracts the elapsed time from
// every entry before popping the ones that have reached (or nearly
// reached) zero.
//
// Near-simultaneous firings are coalesced: any timer within 3ms of the
// front entry's deadline is treated as firing together rather than waking
// the loop again 1-2ms later for each.
package timer

import "container/heap"

// Callback is invoked with the number of milliseconds the timer overshot
// its target by (0 in the common case).
type Callback func(overshootMS int64)

// slack is how close two remaining-time values must be to be treated as
// simultaneous.
const slack = 3

type entry struct {
	remainingMS int64
	seq         uint64
	cb          Callback
	canceled    bool
	index       int
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].remainingMS != h[j].remainingMS {
		return h[i].remainingMS < h[j].remainingMS
	}
	return h[i].seq < h[j].seq
}
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Queue is a min-heap of pending timers. It is not safe for concurrent use;
// the reactor that owns a Queue must only touch it from its own goroutine.
type Queue struct {
	h       entryHeap
	nextSeq uint64
}

// New returns an empty timer queue.
func New() *Queue {
	return &Queue{}
}

// Handle identifies a scheduled timer so it can be canceled before it fires.
type Handle struct {
	e *entry
}

// Schedule adds a callback to fire after delayMS milliseconds, relative to
// the last time the queue was advanced.
func (q *Queue) Schedule(delayMS int64, cb Callback) Handle {
	if delayMS < 0 {
		delayMS = 0
	}
	e := &entry{remainingMS: delayMS, seq: q.nextSeq, cb: cb}
	q.nextSeq++
	heap.Push(&q.h, e)
	return Handle{e: e}
}

// Cancel prevents a scheduled callback from firing. Canceling a timer that
// has already fired, or an empty Handle, is a no-op.
func (q *Queue) Cancel(h Handle) {
	if h.e != nil {
		h.e.canceled = true
	}
}

// Empty reports whether there are no pending timers.
func (q *Queue) Empty() bool { return q.h.Len() == 0 }

// NextDeadlineMS returns the remaining milliseconds until the nearest
// pending timer, or -1 if the queue is empty — the value this module feeds
// directly into epoll_wait's timeout argument.
func (q *Queue) NextDeadlineMS() int64 {
	if q.h.Len() == 0 {
		return -1
	}
	return q.h[0].remainingMS
}

// Advance accounts for elapsedMS milliseconds having passed since the last
// Advance call, firing every timer that is now due. Timers within `slack`
// milliseconds of each other at the front of the queue fire in the same
// Advance call, so a handful of timers set for "now" don't each cost their
// own extra epoll_wait wake.
func (q *Queue) Advance(elapsedMS int64) {
	if q.h.Len() == 0 {
		return
	}
	for i := range q.h {
		q.h[i].remainingMS -= elapsedMS
	}
	heap.Init(&q.h)

	for q.h.Len() > 0 {
		front := q.h[0]
		if front.remainingMS > slack {
			break
		}
		heap.Pop(&q.h)
		if front.canceled {
			continue
		}
		overshoot := -front.remainingMS
		if overshoot < 0 {
			overshoot = 0
		}
		front.cb(overshoot)
	}
}
