package worker

import (
	"errors"
	"sync"
)

// ErrQueueClosed indicates a push after Close.
var ErrQueueClosed = errors.New("queue closed")

// Queue is an unbounded FIFO of job ids safe for concurrent use.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []string
	closed bool
}

// NewQueue returns an empty open queue.
func NewQueue() *Queue {
	queue := &Queue{
		mu:     sync.Mutex{},
		cond:   nil,
		items:  nil,
		closed: false,
	}
	queue.cond = sync.NewCond(&queue.mu)

	return queue
}

// Push appends id and wakes one waiting consumer.
func (q *Queue) Push(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.items = append(q.items, id)
	q.cond.Signal()

	return nil
}

// Pop blocks until an id is available. It returns false once the queue is
// closed and drained.
func (q *Queue) Pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}

	if len(q.items) == 0 {
		return "", false
	}

	id := q.items[0]
	q.items[0] = ""
	q.items = q.items[1:]

	return id, true
}

// Len returns the number of waiting ids.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

// Close rejects further pushes and releases all blocked consumers once the
// backlog is drained. Closing twice is a no-op.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}
