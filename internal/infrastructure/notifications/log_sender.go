package notifications

import (
	"context"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/entities"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/infrastructure/observability"
)

// LogSender writes messages to the log instead of delivering them. Used in development.
type LogSender struct{}

// NewLogSender creates a log-only sender
func NewLogSender() *LogSender {
	return &LogSender{}
}

// Send logs the message
func (s *LogSender) Send(ctx context.Context, msg *entities.Message) error {
	logger := observability.ComponentLogger(ctx, "notifications")
	logger.Info().
		Str("booking_id", msg.BookingID).
		Str("channel", string(msg.Channel)).
		Str("kind", string(msg.Kind)).
		Str("subject", msg.Subject).
		Int("body_length", len(msg.Body)).
		Msg("notification (log driver)")
	return nil
}
