package entities

import "time"

// AuditAction is the kind of change an audit entry records
type AuditAction string

const (
	AuditActionCreated   AuditAction = "created"
	AuditActionUpdated   AuditAction = "updated"
	AuditActionDeleted   AuditAction = "deleted"
	AuditActionCancelled AuditAction = "cancelled"
	AuditActionConfirmed AuditAction = "confirmed"
)

// AuditSubjectBooking is the subject type used for booking entries.
const AuditSubjectBooking = "booking"

// AuditLogEntry is an immutable, redacted record of a change.
type AuditLogEntry struct {
	ID          string                 `json:"id"`
	ActorUserID *string                `json:"actor_user_id,omitempty"`
	SubjectType string                 `json:"subject_type"`
	SubjectID   string                 `json:"subject_id"`
	Action      AuditAction            `json:"action"`
	OldValues   map[string]interface{} `json:"old_values,omitempty"`
	NewValues   map[string]interface{} `json:"new_values,omitempty"`
	IPAddress   string                 `json:"ip_address,omitempty"`
	UserAgent   string                 `json:"user_agent,omitempty"`
	OccurredAt  time.Time              `json:"occurred_at"`
}

// Actor identifies who initiated a change. A nil UserID marks a system action.
type Actor struct {
	UserID    *string
	IPAddress string
	UserAgent string
}

// SystemActor is the actor for webhook-driven and scheduled changes.
func SystemActor() Actor {
	return Actor{}
}

// UserActor returns an actor for a user-initiated request.
func UserActor(userID, ip, userAgent string) Actor {
	return Actor{UserID: &userID, IPAddress: ip, UserAgent: userAgent}
}
