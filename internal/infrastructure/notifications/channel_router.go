package notifications

import (
	"context"
	"fmt"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/entities"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/providers"
	apperrors "github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/pkg/errors"
)

// ChannelRouter sends each message through the gateway registered for its channel
type ChannelRouter struct {
	gateways map[entities.NotificationChannel]providers.NotificationGateway
}

// NewChannelRouter creates a router over the given channel gateways
func NewChannelRouter(gateways map[entities.NotificationChannel]providers.NotificationGateway) *ChannelRouter {
	return &ChannelRouter{gateways: gateways}
}

// Send implements providers.NotificationGateway
func (r *ChannelRouter) Send(ctx context.Context, msg *entities.Message) error {
	gw, ok := r.gateways[msg.Channel]
	if !ok || gw == nil {
		return apperrors.NewInternalError(fmt.Sprintf("no gateway for channel %q", msg.Channel), nil)
	}
	return gw.Send(ctx, msg)
}
