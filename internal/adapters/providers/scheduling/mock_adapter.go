package scheduling

import (
	"context"

	"github.com/google/uuid"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/entities"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/providers"
)

// MockAdapter provides a local scheduling provider for development.
type MockAdapter struct {
	webhookSecret string
}

// NewMockAdapter creates a mock scheduling provider. Webhooks are verified
// with the same HMAC scheme as Calendly.
func NewMockAdapter(webhookSecret string) providers.ScheduleProvider {
	return &MockAdapter{webhookSecret: webhookSecret}
}

// CreateEvent returns a fresh mock event reference.
func (m *MockAdapter) CreateEvent(ctx context.Context, center *entities.Center, service *entities.Service, invitee *entities.User, slot entities.Slot) (*entities.ExternalEventRef, error) {
	id := uuid.NewString()
	return &entities.ExternalEventRef{
		EventID:       id,
		EventURI:      "https://example.com/scheduled_events/" + id,
		CancelURL:     "https://example.com/cancellations/" + id,
		RescheduleURL: "https://example.com/reschedulings/" + id,
	}, nil
}

// CancelEvent is a no-op for the mock provider.
func (m *MockAdapter) CancelEvent(ctx context.Context, ref *entities.ExternalEventRef, reason string) error {
	return nil
}

// VerifySignature checks the HMAC header against the configured secret.
func (m *MockAdapter) VerifySignature(rawPayload []byte, signatureHeader string) bool {
	return VerifyHMACSignature(m.webhookSecret, rawPayload, signatureHeader)
}
