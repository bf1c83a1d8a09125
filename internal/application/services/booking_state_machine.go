package services

import (
	"context"
	"strings"
	"time"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/entities"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/repositories"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/infrastructure/observability"
	apperrors "github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/pkg/errors"
)

var allowedTransitions = map[entities.BookingStatus][]entities.BookingStatus{
	entities.BookingStatusPending: {
		entities.BookingStatusConfirmed,
		entities.BookingStatusCancelled,
	},
	entities.BookingStatusConfirmed: {
		entities.BookingStatusCompleted,
		entities.BookingStatusCancelled,
		entities.BookingStatusNoShow,
	},
}

// CanTransition reports whether the graph allows from -> to
func CanTransition(from, to entities.BookingStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionInput carries the data a transition may require
type TransitionInput struct {
	// ExternalRef is required to confirm a booking that has none yet
	ExternalRef *entities.ExternalEventRef
	// Reason is required to cancel
	Reason string
	Actor  entities.Actor
}

// BookingStateMachine is the only writer of booking status
type BookingStateMachine struct {
	repo    repositories.BookingRepository
	audit   *AuditRecorder
	metrics *observability.Metrics
	now     func() time.Time
}

// NewBookingStateMachine creates a new state machine
func NewBookingStateMachine(repo repositories.BookingRepository, audit *AuditRecorder, metrics *observability.Metrics) *BookingStateMachine {
	return &BookingStateMachine{
		repo:    repo,
		audit:   audit,
		metrics: metrics,
		now:     time.Now,
	}
}

// Transition moves booking to status to and returns the updated copy. The
// caller's booking is never modified. The write is conditional on the stored
// status still being booking.Status; losing that race is reported as an
// invalid transition.
func (m *BookingStateMachine) Transition(ctx context.Context, booking *entities.Booking, to entities.BookingStatus, in TransitionInput) (*entities.Booking, error) {
	from := booking.Status
	if !CanTransition(from, to) {
		return nil, apperrors.NewInvalidTransitionError(string(from), string(to))
	}

	now := m.now().UTC()
	next := booking.Clone()
	next.Status = to
	next.UpdatedAt = now

	switch to {
	case entities.BookingStatusConfirmed:
		if in.ExternalRef != nil {
			ref := *in.ExternalRef
			next.ExternalRef = &ref
		}
		if next.ExternalRef == nil || next.ExternalRef.EventURI == "" {
			return nil, apperrors.NewInvalidTransitionError(string(from), string(to)).
				WithDetail("external_event_ref", "required to confirm")
		}

	case entities.BookingStatusCancelled:
		reason := strings.TrimSpace(in.Reason)
		if len([]rune(reason)) < entities.MinCancellationReasonLength {
			return nil, apperrors.NewValidationError("cancellation reason must be at least 10 characters").
				WithDetail("reason", "min")
		}
		next.CancellationReason = &reason
		next.CancelledAt = &now

	case entities.BookingStatusCompleted, entities.BookingStatusNoShow:
		if now.Before(booking.ScheduledAt) {
			return nil, apperrors.NewInvalidTransitionError(string(from), string(to)).
				WithDetail("scheduled_at", "slot has not started yet")
		}
	}

	applied, err := m.repo.ApplyTransition(ctx, next, from)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, apperrors.NewInvalidTransitionError(string(from), string(to)).
			WithDetail("status", "booking changed concurrently")
	}

	m.metrics.RecordTransition(ctx, string(from), string(to))

	logger := observability.ComponentLogger(ctx, "booking_state_machine")
	logger.Info().
		Str("booking_id", booking.ID).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("booking transitioned")

	// The transition is committed; an audit sink failure is logged by the recorder.
	_, _ = m.audit.Record(ctx, in.Actor, entities.AuditSubjectBooking, booking.ID,
		auditActionFor(to), booking.Snapshot(), next.Snapshot())

	return next, nil
}

func auditActionFor(to entities.BookingStatus) entities.AuditAction {
	switch to {
	case entities.BookingStatusConfirmed:
		return entities.AuditActionConfirmed
	case entities.BookingStatusCancelled:
		return entities.AuditActionCancelled
	default:
		return entities.AuditActionUpdated
	}
}
