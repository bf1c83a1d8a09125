package entities

import "time"

// NotificationChannel represents the delivery channel
type NotificationChannel string

const (
	ChannelEmail NotificationChannel = "email"
	ChannelSMS   NotificationChannel = "sms"
)

// NotificationKind represents the notification purpose
type NotificationKind string

const (
	NotificationConfirmation NotificationKind = "confirmation"
	NotificationReminder     NotificationKind = "reminder"
	NotificationCancellation NotificationKind = "cancellation"
)

// NotificationOutcome is the result of one channel attempt
type NotificationOutcome string

const (
	NotificationSent   NotificationOutcome = "sent"
	NotificationFailed NotificationOutcome = "failed"
)

// NotificationAttempt records one channel send for logs and metrics.
type NotificationAttempt struct {
	BookingID string
	Channel   NotificationChannel
	Kind      NotificationKind
	Outcome   NotificationOutcome
	Error     string
}

// NotificationJob is the queued unit of asynchronous dispatch.
type NotificationJob struct {
	ID         string           `json:"id"`
	BookingID  string           `json:"booking_id"`
	Kind       NotificationKind `json:"kind"`
	EnqueuedAt time.Time        `json:"enqueued_at"`
}

// Message is a rendered notification ready for a gateway.
type Message struct {
	BookingID string
	Channel   NotificationChannel
	Kind      NotificationKind
	Recipient string
	Subject   string
	Body      string
}
