package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/entities"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/providers"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/infrastructure/observability"
)

const dequeueErrorBackoff = time.Second

// JobDispatcher dispatches one queued notification
type JobDispatcher interface {
	DispatchByID(ctx context.Context, bookingID string, kind entities.NotificationKind)
}

// NotificationWorker drains the notification queue with a fixed pool
type NotificationWorker struct {
	queue      providers.NotificationQueue
	dispatcher JobDispatcher
	workers    int
}

// NewNotificationWorker creates a worker pool of the given size
func NewNotificationWorker(queue providers.NotificationQueue, dispatcher JobDispatcher, workers int) *NotificationWorker {
	if workers < 1 {
		workers = 1
	}
	return &NotificationWorker{queue: queue, dispatcher: dispatcher, workers: workers}
}

// Run blocks until the queue is closed and drained, or until ctx is done.
// Cancelling ctx abandons whatever is still buffered, so graceful shutdown
// goes through Drain instead.
func (w *NotificationWorker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.loop(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (w *NotificationWorker) loop(ctx context.Context, id int) {
	logger := observability.ComponentLogger(ctx, "notification_worker").With().Int("worker", id).Logger()

	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, providers.ErrQueueClosed) || ctx.Err() != nil {
				logger.Debug().Msg("notification worker stopping")
				return
			}
			logger.Error().Err(err).Msg("failed to dequeue notification job")
			select {
			case <-ctx.Done():
				return
			case <-time.After(dequeueErrorBackoff):
			}
			continue
		}

		logger.Debug().
			Str("job_id", job.ID).
			Str("booking_id", job.BookingID).
			Str("kind", string(job.Kind)).
			Dur("queued_for", time.Since(job.EnqueuedAt)).
			Msg("dispatching notification job")
		w.dispatcher.DispatchByID(ctx, job.BookingID, job.Kind)
	}
}

// Drain closes the queue so a running pool finishes the buffered jobs, then
// waits for stopped to close. It gives up with ctx's error once ctx is done.
func (w *NotificationWorker) Drain(ctx context.Context, stopped <-chan struct{}) error {
	if err := w.queue.Close(); err != nil {
		return err
	}
	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
