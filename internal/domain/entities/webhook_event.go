package entities

import (
	"encoding/json"
	"time"
)

// WebhookProviderCalendly names the Calendly provider in the ledger.
const WebhookProviderCalendly = "calendly"

// WebhookEvent is an idempotency ledger entry for one provider event.
// ProviderEventURI is unique across the ledger.
type WebhookEvent struct {
	ProviderEventURI string          `json:"provider_event_uri"`
	Provider         string          `json:"provider"`
	EventType        string          `json:"event_type"`
	Payload          json.RawMessage `json:"payload"`
	ReceivedAt       time.Time       `json:"received_at"`
	ProcessedAt      *time.Time      `json:"processed_at,omitempty"`
	ErrorMessage     *string         `json:"error_message,omitempty"`
}
