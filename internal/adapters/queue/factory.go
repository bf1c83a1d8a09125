package queue

import (
	"fmt"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/providers"
	redisclient "github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/infrastructure/clients/redis"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/pkg/config"
)

const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverRabbitMQ = "rabbitmq"
)

// New builds the configured notification queue. redis may be nil unless the
// redis driver is selected.
func New(cfg *config.Config, redis *redisclient.Client) (providers.NotificationQueue, error) {
	switch cfg.Queue.Driver {
	case DriverMemory:
		return NewMemoryQueue(cfg.Queue.Buffer), nil
	case DriverRedis, "":
		if redis == nil {
			return nil, fmt.Errorf("redis queue driver requires a redis client")
		}
		return NewRedisQueue(redis, cfg.Queue.Key), nil
	case DriverRabbitMQ:
		return NewRabbitMQQueue(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.Queue)
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Queue.Driver)
	}
}
