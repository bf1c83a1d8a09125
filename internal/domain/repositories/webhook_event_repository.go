package repositories

import (
	"context"
	"time"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/entities"
)

// WebhookEventRepository is the idempotency ledger for provider webhooks.
type WebhookEventRepository interface {
	// Record inserts the event unless its provider event uri already exists.
	// It reports whether this call inserted the row.
	Record(ctx context.Context, event *entities.WebhookEvent) (bool, error)

	// MarkProcessed stamps processed_at.
	MarkProcessed(ctx context.Context, providerEventURI string, at time.Time) error

	// MarkFailed stores the processing error for observability.
	MarkFailed(ctx context.Context, providerEventURI string, message string) error

	// PurgeProcessedBefore deletes processed events received before cutoff.
	PurgeProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
