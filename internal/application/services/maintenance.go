package services

import (
	"context"
	"time"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/entities"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/repositories"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/infrastructure/observability"
	apperrors "github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/pkg/errors"
)

// WebhookLedgerPurger deletes processed ledger entries past retention
type WebhookLedgerPurger struct {
	ledger    repositories.WebhookEventRepository
	retention time.Duration
	now       func() time.Time
}

// NewWebhookLedgerPurger creates a new purger
func NewWebhookLedgerPurger(ledger repositories.WebhookEventRepository, retention time.Duration) *WebhookLedgerPurger {
	return &WebhookLedgerPurger{ledger: ledger, retention: retention, now: time.Now}
}

// Purge removes processed entries received before now minus retention
func (p *WebhookLedgerPurger) Purge(ctx context.Context) (int64, error) {
	cutoff := p.now().UTC().Add(-p.retention)
	n, err := p.ledger.PurgeProcessedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	observability.ComponentLogger(ctx, "webhook_purge").Info().
		Int64("deleted", n).
		Time("cutoff", cutoff).
		Msg("webhook ledger purged")
	return n, nil
}

// CompletionSweeper completes confirmed bookings whose slot ended more than
// grace ago
type CompletionSweeper struct {
	bookings  repositories.BookingRepository
	machine   *BookingStateMachine
	grace     time.Duration
	batchSize int
	now       func() time.Time
}

// NewCompletionSweeper creates a new completion sweeper
func NewCompletionSweeper(bookings repositories.BookingRepository, machine *BookingStateMachine, grace time.Duration, batchSize int) *CompletionSweeper {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &CompletionSweeper{
		bookings:  bookings,
		machine:   machine,
		grace:     grace,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// Sweep returns how many bookings it completed
func (s *CompletionSweeper) Sweep(ctx context.Context) (int, error) {
	logger := observability.ComponentLogger(ctx, "completion_sweeper")

	cutoff := s.now().UTC().Add(-s.grace)
	candidates, err := s.bookings.FindCompletionCandidates(ctx, cutoff, s.batchSize)
	if err != nil {
		return 0, err
	}

	completed := 0
	for _, booking := range candidates {
		_, err := s.machine.Transition(ctx, booking, entities.BookingStatusCompleted, TransitionInput{
			Actor: entities.SystemActor(),
		})
		switch {
		case err == nil:
			completed++
		case apperrors.IsType(err, apperrors.ErrorTypeInvalidTransition):
			// cancelled or marked no-show since it was listed
		default:
			logger.Error().Err(err).Str("booking_id", booking.ID).Msg("failed to complete booking")
		}
	}

	logger.Info().Int("candidates", len(candidates)).Int("completed", completed).Msg("completion sweep finished")
	return completed, nil
}
