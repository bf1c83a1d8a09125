package providers

import (
	"context"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/entities"
)

// NotificationGateway sends a rendered message over its channel.
// Email and SMS transports are interchangeable implementations.
type NotificationGateway interface {
	Send(ctx context.Context, msg *entities.Message) error
}
