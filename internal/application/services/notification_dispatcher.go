package services

import (
	"context"
	"time"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/entities"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/providers"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/repositories"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/infrastructure/observability"
)

// NotificationDispatcher renders and sends booking notifications over every
// applicable channel. It never returns an error: channel failures are logged
// and counted, and one channel failing never stops another.
type NotificationDispatcher struct {
	bookings   repositories.BookingRepository
	directory  repositories.DirectoryRepository
	gateway    providers.NotificationGateway
	timeout    time.Duration
	defaultLoc *time.Location
	metrics    *observability.Metrics
	now        func() time.Time
}

// NewNotificationDispatcher creates a new dispatcher. timeout bounds each channel send.
func NewNotificationDispatcher(
	bookings repositories.BookingRepository,
	directory repositories.DirectoryRepository,
	gateway providers.NotificationGateway,
	timeout time.Duration,
	defaultLoc *time.Location,
	metrics *observability.Metrics,
) *NotificationDispatcher {
	if defaultLoc == nil {
		defaultLoc = time.UTC
	}
	return &NotificationDispatcher{
		bookings:   bookings,
		directory:  directory,
		gateway:    gateway,
		timeout:    timeout,
		defaultLoc: defaultLoc,
		metrics:    metrics,
		now:        time.Now,
	}
}

// DispatchByID loads the booking and dispatches. Used by queue workers.
func (d *NotificationDispatcher) DispatchByID(ctx context.Context, bookingID string, kind entities.NotificationKind) {
	booking, err := d.bookings.GetByID(ctx, bookingID)
	if err != nil {
		logger := observability.ComponentLogger(ctx, "notification_dispatcher")
		logger.Error().Err(err).
			Str("booking_id", bookingID).
			Str("kind", string(kind)).
			Msg("failed to load booking for notification")
		return
	}
	d.Dispatch(ctx, booking, kind)
}

// Dispatch sends the email (always) and the SMS (when the user has a phone)
func (d *NotificationDispatcher) Dispatch(ctx context.Context, booking *entities.Booking, kind entities.NotificationKind) []entities.NotificationAttempt {
	logger := observability.ComponentLogger(ctx, "notification_dispatcher")

	user, err := d.directory.GetUser(ctx, booking.UserID)
	if err != nil {
		logger.Error().Err(err).Str("booking_id", booking.ID).Str("kind", string(kind)).Msg("failed to load user for notification")
		return nil
	}
	center, err := d.directory.GetCenter(ctx, booking.CenterID)
	if err != nil {
		logger.Error().Err(err).Str("booking_id", booking.ID).Str("kind", string(kind)).Msg("failed to load center for notification")
		return nil
	}
	var service *entities.Service
	if booking.ServiceID != nil {
		if service, err = d.directory.GetService(ctx, *booking.ServiceID); err != nil {
			logger.Warn().Err(err).Str("booking_id", booking.ID).Msg("service not loaded, rendering without it")
			service = nil
		}
	}

	data := NewNotificationData(booking, user, center, service, d.locationFor(center))
	attempts := make([]entities.NotificationAttempt, 0, 2)

	attempts = append(attempts, d.send(ctx, booking, kind, entities.ChannelEmail, user.Email, data))

	if kind == entities.NotificationConfirmation {
		stamped, err := d.bookings.StampConfirmationSent(ctx, booking.ID, d.now().UTC())
		if err != nil {
			logger.Error().Err(err).Str("booking_id", booking.ID).Msg("failed to stamp confirmation_sent_at")
		} else if !stamped {
			logger.Debug().Str("booking_id", booking.ID).Msg("confirmation_sent_at already set")
		}
	}

	if user.HasPhone() {
		attempts = append(attempts, d.send(ctx, booking, kind, entities.ChannelSMS, *user.Phone, data))
	}

	return attempts
}

func (d *NotificationDispatcher) send(
	ctx context.Context,
	booking *entities.Booking,
	kind entities.NotificationKind,
	channel entities.NotificationChannel,
	recipient string,
	data NotificationData,
) entities.NotificationAttempt {
	attempt := entities.NotificationAttempt{
		BookingID: booking.ID,
		Channel:   channel,
		Kind:      kind,
		Outcome:   entities.NotificationSent,
	}

	subject, body, err := RenderNotification(channel, kind, data)
	if err == nil {
		sendCtx, cancel := d.sendContext(ctx)
		err = d.gateway.Send(sendCtx, &entities.Message{
			BookingID: booking.ID,
			Channel:   channel,
			Kind:      kind,
			Recipient: recipient,
			Subject:   subject,
			Body:      body,
		})
		cancel()
	}

	if err != nil {
		attempt.Outcome = entities.NotificationFailed
		attempt.Error = err.Error()

		logger := observability.ComponentLogger(ctx, "notification_dispatcher")
		logger.Error().Err(err).
			Str("booking_id", booking.ID).
			Str("channel", string(channel)).
			Str("kind", string(kind)).
			Msg("notification send failed")
	}

	d.metrics.RecordNotificationAttempt(ctx, string(channel), string(kind), string(attempt.Outcome))
	return attempt
}

func (d *NotificationDispatcher) sendContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.timeout)
}

func (d *NotificationDispatcher) locationFor(center *entities.Center) *time.Location {
	if center.Timezone != "" {
		if loc, err := time.LoadLocation(center.Timezone); err == nil {
			return loc
		}
	}
	return d.defaultLoc
}
