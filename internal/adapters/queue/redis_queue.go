package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/entities"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/providers"
	redisclient "github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/infrastructure/clients/redis"
)

const redisPollTimeout = 5 * time.Second

// RedisQueue implements NotificationQueue as a Redis list (LPUSH / BRPOP).
// Each job is delivered to exactly one worker across all processes.
type RedisQueue struct {
	client *redisclient.Client
	key    string
	closed atomic.Bool
}

// NewRedisQueue creates a queue on the given list key
func NewRedisQueue(client *redisclient.Client, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key}
}

// Enqueue pushes the job onto the list
func (q *RedisQueue) Enqueue(ctx context.Context, job *entities.NotificationJob) error {
	if q.closed.Load() {
		return providers.ErrQueueClosed
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := q.client.Client().LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Dequeue blocks on BRPOP, polling so that Close and ctx are observed
func (q *RedisQueue) Dequeue(ctx context.Context) (*entities.NotificationJob, error) {
	for {
		if q.closed.Load() {
			return nil, providers.ErrQueueClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := q.client.Client().BRPop(ctx, redisPollTimeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to dequeue job: %w", err)
		}

		// BRPOP returns [key, value]
		if len(result) != 2 {
			continue
		}

		var job entities.NotificationJob
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job: %w", err)
		}
		return &job, nil
	}
}

// Close stops the queue. The Redis client is owned by the caller.
func (q *RedisQueue) Close() error {
	q.closed.Store(true)
	return nil
}
