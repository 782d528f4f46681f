package pipeline

import "sync"

// Queue is an unbounded multi-producer multi-consumer FIFO of work items.
// Push and Pop never block on other items.
type Queue struct {
	mu    sync.Mutex
	items []WorkItem
	head  int
}

func NewQueue() *Queue {
	return &Queue{}
}

func (q *Queue) Push(item WorkItem) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
}

// Pop removes the oldest item. It reports false when the queue is empty.
func (q *Queue) Pop() (WorkItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head == len(q.items) {
		return WorkItem{}, false
	}
	item := q.items[q.head]
	q.items[q.head] = WorkItem{}
	q.head++

	switch {
	case q.head == len(q.items):
		q.items = q.items[:0]
		q.head = 0
	case q.head >= 1024 && q.head*2 >= len(q.items):
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return item, true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}
