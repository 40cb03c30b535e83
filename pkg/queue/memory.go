package queue

import (
	"context"
	"sync"

	"github.com/octopus-bim/octopus/pkg/metrics"
)

// MemoryQueue is a bounded in-memory FIFO queue.
type MemoryQueue struct {
	ch chan *JobEnvelope

	closeOnce sync.Once
	closed    chan struct{}
}

// NewMemoryQueue creates a queue holding at most size envelopes.
func NewMemoryQueue(size int) *MemoryQueue {
	if size < 1 {
		size = 1
	}
	return &MemoryQueue{
		ch:     make(chan *JobEnvelope, size),
		closed: make(chan struct{}),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, env *JobEnvelope) error {
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}
	select {
	case q.ch <- env:
		metrics.QueueDepth.Inc()
		return nil
	case <-q.closed:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (*JobEnvelope, error) {
	select {
	case env := <-q.ch:
		metrics.QueueDepth.Dec()
		return env, nil
	case <-q.closed:
		// Drain remaining envelopes before reporting closed.
		select {
		case env := <-q.ch:
			metrics.QueueDepth.Dec()
			return env, nil
		default:
			return nil, ErrQueueClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}

// Len returns the number of queued envelopes. Test helper.
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}

var _ Queue = (*MemoryQueue)(nil)
