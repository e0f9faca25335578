package jobserver

import (
	"context"
	"sync"
	"time"
)

// WorkItem is one unit of work: scrape Target for job JobID.
type WorkItem struct {
	JobID  string
	Target string
}

// WorkQueue is a FIFO of work items shared by all workers. Each item is
// handed to exactly one Dequeue call.
type WorkQueue struct {
	mu     sync.Mutex
	items  []WorkItem
	ready  chan struct{}
	closed bool
	max    int
	stats  QueueStats
}

// QueueStats is a snapshot of queue activity.
type QueueStats struct {
	Depth          int       `json:"depth"`
	Enqueued       int64     `json:"enqueued"`
	Dequeued       int64     `json:"dequeued"`
	LastUpdateTime time.Time `json:"last_update_time"`
}

// NewWorkQueue creates a queue. max bounds the number of waiting items; zero
// means unbounded.
func NewWorkQueue(max int) *WorkQueue {
	return &WorkQueue{
		ready: make(chan struct{}, 1),
		max:   max,
		stats: QueueStats{LastUpdateTime: time.Now()},
	}
}

// Enqueue appends an item without blocking.
//
// Returns ErrQueueFull if the queue is at its high-water mark.
// Returns ErrQueueClosed if the queue has been closed.
func (q *WorkQueue) Enqueue(item WorkItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if q.max > 0 && len(q.items) >= q.max {
		return ErrQueueFull
	}
	q.items = append(q.items, item)
	q.stats.Enqueued++
	q.stats.LastUpdateTime = time.Now()
	q.signal()
	return nil
}

// Dequeue removes the oldest item, blocking until one is available, the
// context ends or the queue is closed and drained.
func (q *WorkQueue) Dequeue(ctx context.Context) (WorkItem, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = WorkItem{}
			q.items = q.items[1:]
			q.stats.Dequeued++
			q.stats.LastUpdateTime = time.Now()
			if len(q.items) > 0 {
				q.signal()
			}
			q.mu.Unlock()
			return item, nil
		}
		if q.closed {
			q.mu.Unlock()
			return WorkItem{}, ErrQueueClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return WorkItem{}, ctx.Err()
		case <-q.ready:
		}
	}
}

// signal wakes one waiter. Callers hold q.mu.
func (q *WorkQueue) signal() {
	if q.closed {
		return
	}
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Len is the number of waiting items.
func (q *WorkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// GetStats returns a snapshot of current queue statistics.
func (q *WorkQueue) GetStats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.stats
	s.Depth = len(q.items)
	return s
}

// Close rejects further enqueues. Waiting items can still be dequeued.
//
// This method is idempotent and can be called multiple times safely.
func (q *WorkQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.ready)
	}
}
