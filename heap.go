package arbor

import "container/heap"

// readyEdge is a candidate (child, parent, counter) reattachment, ordered
// for the priority queue used in materialization stage 3: larger counter
// first, ties broken by smaller parent id, then smaller child id.
type readyEdge struct {
	childID  string
	parentID string
	counter  int64
}

// edgeQueue is a binary heap over readyEdge, following the
// Len/Less/Swap/Push/Pop wiring of container/heap rather than re-sorting on
// every insert.
type edgeQueue []readyEdge

func (q edgeQueue) Len() int { return len(q) }

func (q edgeQueue) Less(i, j int) bool {
	a, b := q[i], q[j]
	if a.counter != b.counter {
		return a.counter > b.counter // larger counter first
	}
	if a.parentID != b.parentID {
		return a.parentID < b.parentID // smaller parent id first
	}
	return a.childID < b.childID // smaller child id first
}

func (q edgeQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *edgeQueue) Push(x any) {
	*q = append(*q, x.(readyEdge))
}

func (q *edgeQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// newEdgeQueue returns an initialized, empty priority queue.
func newEdgeQueue() *edgeQueue {
	q := &edgeQueue{}
	heap.Init(q)
	return q
}

func (q *edgeQueue) push(e readyEdge) { heap.Push(q, e) }

func (q *edgeQueue) pop() readyEdge { return heap.Pop(q).(readyEdge) }
