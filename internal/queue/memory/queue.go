// Package memory provides the bounded in-process audit job queue.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Blackwoodproductions/webstack-services/internal/audit"
)

// ErrClosed is returned once the queue has been shut down.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan audit.QueueItem
	closeMu sync.RWMutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan audit.QueueItem, capacity),
	}
}

// Enqueue pushes a job into the queue or returns if the context ends.
// After Close it returns ErrClosed instead of panicking on the closed
// channel; the read lock is held across the send so Close cannot slip
// in between the check and the send.
func (q *Queue) Enqueue(ctx context.Context, job audit.QueueItem) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- job:
		return nil
	}
}

// Dequeue pops the next job, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (audit.QueueItem, error) {
	select {
	case <-ctx.Done():
		return audit.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case job, ok := <-q.ch:
		if !ok {
			return audit.QueueItem{}, ErrClosed
		}
		return job, nil
	}
}

// Depth reports how many jobs are waiting. The readiness endpoint
// surfaces it so operators can see a backed-up audit queue.
func (q *Queue) Depth() int {
	return len(q.ch)
}

// Close closes the underlying channel for shutdown. It waits for
// in-flight Enqueue calls, which are bounded by their contexts.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
