package entities

import (
	"fmt"
	"time"
)

// BookingStatus represents the lifecycle status of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusNoShow    BookingStatus = "no_show"
)

// IsValid reports whether s is one of the known statuses
func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled,
		BookingStatusCompleted, BookingStatusNoShow:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed out of s.
func (s BookingStatus) IsTerminal() bool {
	switch s {
	case BookingStatusCancelled, BookingStatusCompleted, BookingStatusNoShow:
		return true
	}
	return false
}

// BookingTimeLayout is the wall-clock layout of Booking.BookingTime.
const BookingTimeLayout = "15:04"

// BookingDateLayout is the layout of Booking.BookingDate on the wire.
const BookingDateLayout = "2006-01-02"

// MinCancellationReasonLength is the shortest cancellation reason accepted.
const MinCancellationReasonLength = 10

// ExternalEventRef holds the opaque identifiers the scheduling provider
// returns once an event exists on its calendar.
type ExternalEventRef struct {
	EventID       string `json:"event_id"`
	EventURI      string `json:"event_uri"`
	CancelURL     string `json:"cancel_url,omitempty"`
	RescheduleURL string `json:"reschedule_url,omitempty"`
}

// Booking represents a time-slot appointment at a center
type Booking struct {
	ID                 string            `json:"id"`
	BookingNumber      string            `json:"booking_number"`
	UserID             string            `json:"user_id"`
	CenterID           string            `json:"center_id"`
	ServiceID          *string           `json:"service_id,omitempty"`
	BookingDate        time.Time         `json:"booking_date"`
	BookingTime        string            `json:"booking_time"`
	ScheduledAt        time.Time         `json:"scheduled_at"`
	Status             BookingStatus     `json:"status"`
	ExternalRef        *ExternalEventRef `json:"external_event_ref,omitempty"`
	Notes              string            `json:"notes,omitempty"`
	ConfirmationSentAt *time.Time        `json:"confirmation_sent_at,omitempty"`
	ReminderSentAt     *time.Time        `json:"reminder_sent_at,omitempty"`
	CancelledAt        *time.Time        `json:"cancelled_at,omitempty"`
	CancellationReason *string           `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// CombineSlot joins a calendar date and an HH:MM wall-clock time in loc.
func CombineSlot(date time.Time, clock string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse(BookingTimeLayout, clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid booking time %q: %w", clock, err)
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, loc), nil
}

// Snapshot returns the audited view of the booking.
func (b *Booking) Snapshot() map[string]interface{} {
	snap := map[string]interface{}{
		"booking_number": b.BookingNumber,
		"user_id":        b.UserID,
		"center_id":      b.CenterID,
		"booking_date":   b.BookingDate.Format(BookingDateLayout),
		"booking_time":   b.BookingTime,
		"status":         string(b.Status),
	}
	if b.ServiceID != nil {
		snap["service_id"] = *b.ServiceID
	}
	if b.ExternalRef != nil {
		snap["external_event_uri"] = b.ExternalRef.EventURI
	}
	if b.CancelledAt != nil {
		snap["cancelled_at"] = b.CancelledAt.UTC().Format(time.RFC3339)
	}
	if b.CancellationReason != nil {
		snap["cancellation_reason"] = *b.CancellationReason
	}
	if b.Notes != "" {
		snap["notes"] = b.Notes
	}
	return snap
}

// Clone returns a deep copy so transitions never mutate a caller's booking.
func (b *Booking) Clone() *Booking {
	c := *b
	if b.ServiceID != nil {
		v := *b.ServiceID
		c.ServiceID = &v
	}
	if b.ExternalRef != nil {
		ref := *b.ExternalRef
		c.ExternalRef = &ref
	}
	c.ConfirmationSentAt = cloneTime(b.ConfirmationSentAt)
	c.ReminderSentAt = cloneTime(b.ReminderSentAt)
	c.CancelledAt = cloneTime(b.CancelledAt)
	if b.CancellationReason != nil {
		v := *b.CancellationReason
		c.CancellationReason = &v
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
