package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/entities"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/providers"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/infrastructure/observability"
)

const notificationRoutingKey = "booking.notification"

// RabbitMQQueue implements NotificationQueue over a durable RabbitMQ queue
// bound to a topic exchange.
type RabbitMQQueue struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	queue    string

	mu         sync.Mutex
	deliveries <-chan amqp.Delivery
	closeOnce  sync.Once
	done       chan struct{}
}

// NewRabbitMQQueue dials the broker and declares the exchange, queue and binding
func NewRabbitMQQueue(url, exchange, queue string) (*RabbitMQQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	q, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, notificationRoutingKey, exchange, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("bind %s: %w", notificationRoutingKey, err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	return &RabbitMQQueue{
		conn:     conn,
		ch:       ch,
		exchange: exchange,
		queue:    q.Name,
		done:     make(chan struct{}),
	}, nil
}

// Enqueue publishes the job as a persistent message
func (q *RabbitMQQueue) Enqueue(ctx context.Context, job *entities.NotificationJob) error {
	select {
	case <-q.done:
		return providers.ErrQueueClosed
	default:
	}

	body, err := json.Marshal(job)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ch.PublishWithContext(ctx, q.exchange, notificationRoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Body:         body,
	})
}

// Dequeue waits for the next delivery. Messages are acked on receipt: the
// dispatcher never fails a job, so redelivery would only duplicate sends.
func (q *RabbitMQQueue) Dequeue(ctx context.Context) (*entities.NotificationJob, error) {
	deliveries, err := q.consume()
	if err != nil {
		return nil, err
	}

	for {
		select {
		case <-q.done:
			return nil, providers.ErrQueueClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil, providers.ErrQueueClosed
			}
			_ = d.Ack(false)

			job, ok := decodeDelivery(ctx, d)
			if !ok {
				continue
			}
			return job, nil
		}
	}
}

// decodeDelivery parses a job body. Unparseable bodies are already acked and
// are logged so they can be traced back to the publisher.
func decodeDelivery(ctx context.Context, d amqp.Delivery) (*entities.NotificationJob, bool) {
	var job entities.NotificationJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		observability.ComponentLogger(ctx, "rabbitmq_queue").Warn().
			Err(err).
			Str("message_id", d.MessageId).
			Str("routing_key", d.RoutingKey).
			Int("body_bytes", len(d.Body)).
			Msg("dropping malformed notification job")
		return nil, false
	}
	return &job, true
}

func (q *RabbitMQQueue) consume() (<-chan amqp.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deliveries != nil {
		return q.deliveries, nil
	}

	deliveries, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", q.queue, err)
	}
	q.deliveries = deliveries
	return deliveries, nil
}

// Close closes the channel and connection
func (q *RabbitMQQueue) Close() error {
	var err error
	q.closeOnce.Do(func() {
		close(q.done)
		if q.ch != nil {
			_ = q.ch.Close()
		}
		if q.conn != nil {
			err = q.conn.Close()
		}
	})
	return err
}
