package gofiber

import (
	"container/heap"
	"time"
)

// timerEntry is one entry in the Driver's timer min-heap. seq is an
// insertion sequence number, used only to break ties between two entries
// sharing the same deadline in FIFO order.
type timerEntry struct {
	deadline time.Time
	seq      uint64
	fiber    *Fiber
	index    int // heap.Interface bookkeeping
}

// timerHeap orders timerEntry by deadline, earliest first, with ties
// broken by insertion order (seq) so two timers sharing a deadline fire
// in the order they were scheduled.
type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if !h[i].deadline.Equal(h[j].deadline) {
		return h[i].deadline.Before(h[j].deadline)
	}
	return h[i].seq < h[j].seq
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// peekDeadline returns the earliest deadline in the heap, if any.
func (h timerHeap) peekDeadline() (time.Time, bool) {
	if len(h) == 0 {
		return time.Time{}, false
	}
	return h[0].deadline, true
}

var _ = heap.Interface(&timerHeap{})
