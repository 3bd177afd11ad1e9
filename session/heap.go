package session

import (
	"container/heap"
	"time"
)

// keyHeapEntry is the (session id, expiry) pair ordered into the priority
// queue. Earlier expiries sort first.
type keyHeapEntry struct {
	id     string
	expiry time.Time
}

// expiryHeap implements container/heap.Interface over keyHeapEntry.
// container/heap is the idiomatic Go equivalent of a hand-rolled binary
// heap and needs no third-party replacement.
type expiryHeap []keyHeapEntry

func (h expiryHeap) Len() int { return len(h) }
func (h expiryHeap) Less(i, j int) bool { return h[i].expiry.Before(h[j].expiry) }
func (h expiryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *expiryHeap) Push(x any) { *h = append(*h, x.(keyHeapEntry)) }

func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

var _ heap.Interface = (*expiryHeap)(nil)

// shrinkIfSparse reallocates the heap's backing array when it has grown far
// larger than its live contents (capacity more than 8x the live length,
// once past a 256-entry floor).
func (h *expiryHeap) shrinkIfSparse() {
	const minShrinkSize = 256
	if len(*h) > minShrinkSize && cap(*h) > len(*h)*8 {
		fresh := make(expiryHeap, len(*h))
		copy(fresh, *h)
		*h = fresh
	}
}
