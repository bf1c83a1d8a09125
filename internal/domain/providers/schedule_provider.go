package providers

import (
	"context"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/entities"
)

// ScheduleProvider defines the interface for external scheduling services (Calendly, Cal.com, etc.)
type ScheduleProvider interface {
	// CreateEvent books the slot on the provider calendar and returns its references
	CreateEvent(ctx context.Context, center *entities.Center, service *entities.Service, invitee *entities.User, slot entities.Slot) (*entities.ExternalEventRef, error)

	// CancelEvent cancels a previously created event
	CancelEvent(ctx context.Context, ref *entities.ExternalEventRef, reason string) error

	// VerifySignature checks a webhook signature header against the raw body in constant time
	VerifySignature(rawPayload []byte, signatureHeader string) bool
}
