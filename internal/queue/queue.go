package queue

import "container/heap"

// Compile time check to ensure PriorityQueue satisfies the heap interface.
var _ heap.Interface = (*PriorityQueue)(nil)

// PriorityQueueItem represents an item in the priority queue.
// Value-based (no pointers); the Index field of container/heap examples is
// not needed here.
type PriorityQueueItem struct {
	Item       uint32  // Item is the local id the entry refers to.
	Similarity float32 // Similarity is the priority of the entry in the queue.
}

// PriorityQueue implements heap.Interface and holds PriorityQueueItems.
// Value-based storage for cache locality and zero allocations on the hot path.
type PriorityQueue struct {
	isMaxHeap bool
	items     []PriorityQueueItem
}

// NewMin initializes a priority queue whose top is the lowest similarity.
// This is the shape used for keeping "best k" sets: the root is the entry
// to evict when something better arrives.
func NewMin(capacity int) *PriorityQueue {
	return &PriorityQueue{
		isMaxHeap: false,
		items:     make([]PriorityQueueItem, 0, capacity),
	}
}

// NewMax initializes a priority queue whose top is the highest similarity.
func NewMax(capacity int) *PriorityQueue {
	return &PriorityQueue{
		isMaxHeap: true,
		items:     make([]PriorityQueueItem, 0, capacity),
	}
}

// TopItem returns the top element of the heap.
func (pq *PriorityQueue) TopItem() (PriorityQueueItem, bool) {
	if len(pq.items) == 0 {
		return PriorityQueueItem{}, false
	}
	return pq.items[0], true
}

// PushItem inserts an item while maintaining the heap invariant.
func (pq *PriorityQueue) PushItem(item PriorityQueueItem) {
	pq.items = append(pq.items, item)
	pq.siftUp(len(pq.items) - 1)
}

// PopItem removes and returns the top element while maintaining the heap invariant.
func (pq *PriorityQueue) PopItem() (PriorityQueueItem, bool) {
	n := len(pq.items)
	if n == 0 {
		return PriorityQueueItem{}, false
	}
	root := pq.items[0]
	last := pq.items[n-1]
	pq.items[n-1] = PriorityQueueItem{}
	pq.items = pq.items[:n-1]
	if n-1 > 0 {
		pq.items[0] = last
		pq.siftDown(0)
	}
	return root, true
}

// ReplaceTop swaps the root for item and restores the heap invariant.
// It is the O(log n) path for bounded top-k maintenance.
func (pq *PriorityQueue) ReplaceTop(item PriorityQueueItem) {
	if len(pq.items) == 0 {
		pq.PushItem(item)
		return
	}
	pq.items[0] = item
	pq.siftDown(0)
}

func (pq *PriorityQueue) less(i, j int) bool {
	if pq.isMaxHeap {
		return pq.items[i].Similarity > pq.items[j].Similarity
	}
	return pq.items[i].Similarity < pq.items[j].Similarity
}

func (pq *PriorityQueue) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !pq.less(i, p) {
			return
		}
		pq.items[i], pq.items[p] = pq.items[p], pq.items[i]
		i = p
	}
}

func (pq *PriorityQueue) siftDown(i int) {
	n := len(pq.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		best := l
		r := l + 1
		if r < n && pq.less(r, l) {
			best = r
		}
		if !pq.less(best, i) {
			return
		}
		pq.items[i], pq.items[best] = pq.items[best], pq.items[i]
		i = best
	}
}

// Len returns the number of elements in the priority queue.
func (pq *PriorityQueue) Len() int { return len(pq.items) }

// Less reports whether the element with index i should sort before the element with index j.
func (pq *PriorityQueue) Less(i, j int) bool {
	return pq.less(i, j)
}

// Swap swaps the elements with indexes i and j.
func (pq *PriorityQueue) Swap(i, j int) {
	pq.items[i], pq.items[j] = pq.items[j], pq.items[i]
}

// Push adds x to the priority queue. Prefer PushItem on hot paths.
func (pq *PriorityQueue) Push(x any) {
	item := x.(PriorityQueueItem)
	pq.items = append(pq.items, item)
}

// Pop removes and returns the last element. Used by container/heap.
func (pq *PriorityQueue) Pop() any {
	n := len(pq.items)
	if n == 0 {
		return PriorityQueueItem{}
	}

	item := pq.items[n-1]
	pq.items[n-1] = PriorityQueueItem{}
	pq.items = pq.items[:n-1]

	return item
}

// Items returns the backing slice in heap order (not sorted).
func (pq *PriorityQueue) Items() []PriorityQueueItem {
	return pq.items
}

// Reset clears the priority queue for reuse.
func (pq *PriorityQueue) Reset() {
	pq.items = pq.items[:0]
}
