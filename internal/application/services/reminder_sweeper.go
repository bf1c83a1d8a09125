package services

import (
	"context"
	"time"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/entities"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/repositories"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/infrastructure/observability"
)

// ReminderSender sends the reminder for a claimed booking
type ReminderSender interface {
	SendReminder(ctx context.Context, booking *entities.Booking)
}

// ReminderSweeperConfig configures the reminder window
type ReminderSweeperConfig struct {
	Lookahead    time.Duration
	IncludeUpper bool
	BatchSize    int
}

// ReminderSweeper sends one reminder per confirmed booking ahead of its slot
type ReminderSweeper struct {
	bookings repositories.BookingRepository
	sender   ReminderSender
	cfg      ReminderSweeperConfig
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewReminderSweeper creates a new reminder sweeper
func NewReminderSweeper(bookings repositories.BookingRepository, sender ReminderSender, cfg ReminderSweeperConfig, metrics *observability.Metrics) *ReminderSweeper {
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = 24 * time.Hour
	}
	return &ReminderSweeper{
		bookings: bookings,
		sender:   sender,
		cfg:      cfg,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Window returns the scheduled-time window reminders are due for at now
func (s *ReminderSweeper) Window(now time.Time) repositories.ReminderWindow {
	return repositories.ReminderWindow{
		From:         now,
		To:           now.Add(s.cfg.Lookahead),
		IncludeUpper: s.cfg.IncludeUpper,
		Limit:        s.cfg.BatchSize,
	}
}

// FindBookingsNeedingReminder lists confirmed bookings in the window whose
// reminder has not been sent
func (s *ReminderSweeper) FindBookingsNeedingReminder(ctx context.Context, now time.Time) ([]*entities.Booking, error) {
	return s.bookings.FindReminderCandidates(ctx, s.Window(now.UTC()))
}

// Sweep claims and sends due reminders and returns how many this run sent.
// Concurrent sweeps are safe: only the run whose claim succeeds sends.
func (s *ReminderSweeper) Sweep(ctx context.Context) (int, error) {
	logger := observability.ComponentLogger(ctx, "reminder_sweeper")

	now := s.now().UTC()
	candidates, err := s.FindBookingsNeedingReminder(ctx, now)
	if err != nil {
		logger.Error().Err(err).Msg("failed to find reminder candidates")
		return 0, err
	}

	sent := 0
	for _, booking := range candidates {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		claimed, err := s.bookings.ClaimReminder(ctx, booking.ID, now)
		if err != nil {
			logger.Error().Err(err).Str("booking_id", booking.ID).Msg("failed to claim reminder")
			continue
		}
		if !claimed {
			continue
		}
		s.metrics.RecordReminderDispatched(ctx)
		s.sender.SendReminder(ctx, booking)
		sent++
	}

	logger.Info().
		Int("candidates", len(candidates)).
		Int("sent", sent).
		Msg("reminder sweep finished")
	return sent, nil
}
