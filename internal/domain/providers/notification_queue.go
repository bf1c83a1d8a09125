package providers

import (
	"context"
	"errors"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/entities"
)

// ErrQueueClosed is returned by Dequeue once the queue has been closed.
var ErrQueueClosed = errors.New("notification queue closed")

// NotificationQueue carries notification jobs from request paths to workers.
type NotificationQueue interface {
	// Enqueue publishes a job without waiting for it to be processed
	Enqueue(ctx context.Context, job *entities.NotificationJob) error

	// Dequeue blocks until a job is available, ctx is done, or the queue closes
	Dequeue(ctx context.Context) (*entities.NotificationJob, error)

	// Close releases the underlying connection
	Close() error
}
