package entities

import "time"

// User is the booking owner as exposed by the account subsystem.
type User struct {
	ID     string  `json:"id" db:"id"`
	Name   string  `json:"name" db:"name"`
	Email  string  `json:"email" db:"email"`
	Phone  *string `json:"phone,omitempty" db:"phone"`
	Locale string  `json:"locale" db:"locale"`
}

// HasPhone reports whether the user can receive SMS.
func (u *User) HasPhone() bool {
	return u.Phone != nil && *u.Phone != ""
}

// Center is a physical daycare center.
type Center struct {
	ID                   string `json:"id" db:"id"`
	Name                 string `json:"name" db:"name"`
	Address              string `json:"address" db:"address"`
	Phone                string `json:"phone" db:"phone"`
	Timezone             string `json:"timezone" db:"timezone"`
	SchedulingExternalID string `json:"scheduling_external_id" db:"scheduling_external_id"`
}

// Service is an offering at a center.
type Service struct {
	ID              string `json:"id" db:"id"`
	CenterID        string `json:"center_id" db:"center_id"`
	Name            string `json:"name" db:"name"`
	DurationMinutes int    `json:"duration_minutes" db:"duration_minutes"`
}

// Slot is the requested time window sent to the scheduling provider.
type Slot struct {
	Start time.Time
	End   time.Time
}
