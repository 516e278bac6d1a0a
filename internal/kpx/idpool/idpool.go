// Package idpool allocates small, reusable, non-repeating integer ids:
// a min-heap of released ids plus a high-water counter for ids never yet
// handed out, so Allocate always returns the least currently-free id.
package idpool

import "container/heap"

// Pool dispenses ids starting at 0, always returning the least currently
// free id, and accepts released ids back into the free set.
type Pool struct {
	free freeHeap
	next int
}

// New returns an empty pool. capacity is advisory only (Pool grows without
// bound); an entry needs one id per live connection (both of a
// connection's tokens derive from that id, see engine.PipelineToken), plus
// any ids it reserves.
func New(capacity int) *Pool {
	p := &Pool{}
	if capacity > 0 {
		p.free = make(freeHeap, 0, capacity)
	}
	return p
}

// Allocate returns the least free id.
func (p *Pool) Allocate() int {
	if len(p.free) > 0 {
		return heap.Pop(&p.free).(int)
	}
	id := p.next
	p.next++
	return id
}

// Release returns id to the free set, making it eligible for reuse by a
// later Allocate call.
func (p *Pool) Release(id int) {
	heap.Push(&p.free, id)
}

// Len reports how many ids have been allocated and not yet released.
func (p *Pool) Len() int {
	return p.next - len(p.free)
}

type freeHeap []int

func (h freeHeap) Len() int            { return len(h) }
func (h freeHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h freeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *freeHeap) Push(x interface{}) { *h = append(*h, x.(int)) }
func (h *freeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
