// Package persist records session activity on a background path that never
// blocks the interactive path.
package persist

import (
	"sync"

	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/domain"
)

// Queue is an unbounded FIFO safe for many producers and one consumer.
type Queue struct {
	mu    sync.Mutex
	items []domain.Job
	ready chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Push appends job and wakes the consumer. It never blocks on the consumer.
func (q *Queue) Push(job domain.Job) int {
	q.mu.Lock()
	q.items = append(q.items, job)
	n := len(q.items)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return n
}

// Pop removes and returns the head of the queue.
func (q *Queue) Pop() (domain.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return domain.Job{}, false
	}
	job := q.items[0]
	q.items[0] = domain.Job{}
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return job, true
}

// Len returns the number of queued jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Ready is signalled after a push.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}
