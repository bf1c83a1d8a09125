package queue

import (
	"context"
	"sync"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/entities"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/providers"
)

// MemoryQueue is an in-process notification queue for single-binary
// deployments and tests. Jobs do not survive a restart.
type MemoryQueue struct {
	jobs      chan *entities.NotificationJob
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryQueue creates a queue holding up to buffer pending jobs
func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer < 1 {
		buffer = 1
	}
	return &MemoryQueue{
		jobs: make(chan *entities.NotificationJob, buffer),
		done: make(chan struct{}),
	}
}

// Enqueue blocks only while the buffer is full
func (q *MemoryQueue) Enqueue(ctx context.Context, job *entities.NotificationJob) error {
	select {
	case <-q.done:
		return providers.ErrQueueClosed
	default:
	}

	select {
	case q.jobs <- job:
		return nil
	case <-q.done:
		return providers.ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue returns the next job. After Close, buffered jobs are still drained
// before ErrQueueClosed is returned.
func (q *MemoryQueue) Dequeue(ctx context.Context) (*entities.NotificationJob, error) {
	select {
	case job := <-q.jobs:
		return job, nil
	case <-q.done:
		select {
		case job := <-q.jobs:
			return job, nil
		default:
			return nil, providers.ErrQueueClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting jobs
func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}

// Len reports the number of pending jobs
func (q *MemoryQueue) Len() int {
	return len(q.jobs)
}
