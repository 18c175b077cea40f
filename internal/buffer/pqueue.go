package buffer

import "container/heap"

// queueItem is one entry in the priority queue: a project key pair, the
// stack it owns, and the Priority it currently sorts by. Equality and
// lookup are defined purely on key, mirroring the original QueueItem
// wrapper, which borrows only the key for Hash/PartialEq so that updating
// a stack's priority never requires rehashing the value.
type queueItem[S EnvelopeStack] struct {
	key      ProjectKeyPair
	value    S
	priority Priority
	index    int
}

// priorityQueue is a container/heap-backed max-heap over Priority (items[0]
// is the greatest priority, the next stack to serve per spec.md §4.3) with
// an auxiliary index map, giving O(log n) change-priority and remove-by-key
// on top of the standard library's push/pop. The shape follows the
// offset-tracking heap in the corpus's ingest queue engine and the k-way
// merge heap in services/storage/internal/timeseries/writer.go: a slice
// heap plus a side index for direct lookup instead of scanning.
type priorityQueue[S EnvelopeStack] struct {
	items []*queueItem[S]
	index map[ProjectKeyPair]*queueItem[S]
}

func newPriorityQueue[S EnvelopeStack]() *priorityQueue[S] {
	return &priorityQueue[S]{
		index: make(map[ProjectKeyPair]*queueItem[S]),
	}
}

// heap.Interface implementation. Not called directly; use the wrapper
// methods below.

func (q *priorityQueue[S]) Len() int { return len(q.items) }

// Less is inverted relative to Priority.Less so that container/heap's
// min-heap puts the greatest priority at items[0]: Priority.Less(p, other)
// means p sorts below other (priority.go), but Top/Pop need the highest
// priority on top, not the lowest.
func (q *priorityQueue[S]) Less(i, j int) bool {
	return q.items[j].priority.Less(q.items[i].priority)
}

func (q *priorityQueue[S]) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}

func (q *priorityQueue[S]) Push(x any) {
	item := x.(*queueItem[S])
	item.index = len(q.items)
	q.items = append(q.items, item)
}

func (q *priorityQueue[S]) Pop() any {
	n := len(q.items)
	item := q.items[n-1]
	q.items[n-1] = nil
	q.items = q.items[:n-1]
	item.index = -1
	return item
}

// Insert adds a new stack under key with the given priority. It panics if
// key is already present; callers must check Get first.
func (q *priorityQueue[S]) Insert(key ProjectKeyPair, value S, priority Priority) {
	if _, ok := q.index[key]; ok {
		panic("buffer: priority queue already contains key")
	}
	item := &queueItem[S]{key: key, value: value, priority: priority}
	heap.Push(q, item)
	q.index[key] = item
}

// Get returns the item for key without touching heap order.
func (q *priorityQueue[S]) Get(key ProjectKeyPair) (*queueItem[S], bool) {
	item, ok := q.index[key]
	return item, ok
}

// Top returns the item sorting first in the queue's total order, or false
// if the queue is empty.
func (q *priorityQueue[S]) Top() (*queueItem[S], bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	return q.items[0], true
}

// UpdatePriority replaces key's priority and restores heap order.
func (q *priorityQueue[S]) UpdatePriority(key ProjectKeyPair, priority Priority) bool {
	item, ok := q.index[key]
	if !ok {
		return false
	}
	item.priority = priority
	heap.Fix(q, item.index)
	return true
}

// Remove deletes key from the queue, returning its stack.
func (q *priorityQueue[S]) Remove(key ProjectKeyPair) (S, bool) {
	var zero S
	item, ok := q.index[key]
	if !ok {
		return zero, false
	}
	heap.Remove(q, item.index)
	delete(q.index, key)
	return item.value, true
}

// Count reports the number of stacks currently queued.
func (q *priorityQueue[S]) Count() int { return len(q.items) }

// Drain empties the queue, returning every stack keyed by its pair. Used
// by EnvelopeBuffer.Flush.
func (q *priorityQueue[S]) Drain() map[ProjectKeyPair]S {
	values := make(map[ProjectKeyPair]S, len(q.items))
	for _, item := range q.items {
		values[item.key] = item.value
	}
	q.items = nil
	q.index = make(map[ProjectKeyPair]*queueItem[S])
	return values
}
