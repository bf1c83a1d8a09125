package repositories

import (
	"context"
	"time"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/entities"
)

// BookingRepository defines the persistence operations for bookings.
// Every mutation is a single conditional update keyed by booking id.
type BookingRepository interface {
	// Create inserts a new booking. A duplicate booking number yields a CONFLICT error.
	Create(ctx context.Context, booking *entities.Booking) error

	// GetByID retrieves a booking by ID
	GetByID(ctx context.Context, id string) (*entities.Booking, error)

	// GetByExternalEvent finds the booking holding the given provider event uri or id.
	GetByExternalEvent(ctx context.Context, eventURI, eventID string) (*entities.Booking, error)

	// ListByUser retrieves bookings for a user
	ListByUser(ctx context.Context, userID string, filter BookingFilter) ([]*entities.Booking, error)

	// ApplyTransition writes the booking's status, external ref and cancellation
	// fields only if the stored status still equals from. It reports whether a
	// row was updated.
	ApplyTransition(ctx context.Context, booking *entities.Booking, from entities.BookingStatus) (bool, error)

	// SetExternalRef stores the provider reference of a booking that has none yet.
	SetExternalRef(ctx context.Context, id string, ref *entities.ExternalEventRef) (bool, error)

	// StampConfirmationSent sets confirmation_sent_at if it is still NULL.
	StampConfirmationSent(ctx context.Context, id string, at time.Time) (bool, error)

	// FindReminderCandidates lists confirmed bookings in the window whose reminder is unsent.
	FindReminderCandidates(ctx context.Context, window ReminderWindow) ([]*entities.Booking, error)

	// ClaimReminder sets reminder_sent_at if it is still NULL and the booking is
	// confirmed. Success of the write is the claim.
	ClaimReminder(ctx context.Context, id string, at time.Time) (bool, error)

	// FindCompletionCandidates lists confirmed bookings scheduled before cutoff.
	FindCompletionCandidates(ctx context.Context, cutoff time.Time, limit int) ([]*entities.Booking, error)
}

// BookingFilter defines filters for listing bookings
type BookingFilter struct {
	Status entities.BookingStatus
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// ReminderWindow bounds the scheduled time of reminder candidates.
// From is inclusive; To is exclusive unless IncludeUpper is set.
type ReminderWindow struct {
	From         time.Time
	To           time.Time
	IncludeUpper bool
	Limit        int
}

// Contains reports whether t falls inside the window.
func (w ReminderWindow) Contains(t time.Time) bool {
	if t.Before(w.From) {
		return false
	}
	if w.IncludeUpper {
		return !t.After(w.To)
	}
	return t.Before(w.To)
}
