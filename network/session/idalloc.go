package session

import "container/heap"

// idHeap is a min-heap of released client ids.
type idHeap []uint32

func (h idHeap) Len() int           { return len(h) }
func (h idHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h idHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *idHeap) Push(x any)        { *h = append(*h, x.(uint32)) }
func (h *idHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// idAllocator hands out the smallest client id not in use, starting at 1. Every released
// id is below next, so the heap minimum is the smallest free id. Not safe for concurrent use.
type idAllocator struct {
	next uint32
	free idHeap
}

func (a *idAllocator) alloc() uint32 {
	if a.free.Len() > 0 {
		return heap.Pop(&a.free).(uint32)
	}
	a.next++
	return a.next
}

func (a *idAllocator) release(id uint32) {
	if id == 0 || id > a.next {
		return
	}
	heap.Push(&a.free, id)
}
