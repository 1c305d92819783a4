package confirmworker

import "container/heap"

// Priority orders queued tasks; smaller values are processed first
// (high < medium < low).
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityMedium
	PriorityLow
)

// pendingTask is one queue entry: the task payload plus scheduling state.
type pendingTask struct {
	task       Task
	priority   Priority
	seq        uint64 // insertion order, breaks priority ties (stable FIFO)
	retryCount int
}

// taskHeap is a container/heap priority queue ordered by (priority, seq),
// giving strict priority order and FIFO within a priority.
type taskHeap []*pendingTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) {
	*h = append(*h, x.(*pendingTask))
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// popN removes and returns up to n tasks in priority order. h must satisfy
// the heap invariant, which holds as long as every insertion goes through
// heapPush.
func popN(h *taskHeap, n int) []*pendingTask {
	out := make([]*pendingTask, 0, n)
	for i := 0; i < n && h.Len() > 0; i++ {
		out = append(out, heap.Pop(h).(*pendingTask))
	}
	return out
}

// heapPush inserts t into h, maintaining the heap invariant. An empty slice
// is trivially a valid heap, so no heap.Init call is needed before the
// first push.
func heapPush(h *taskHeap, t *pendingTask) {
	heap.Push(h, t)
}
