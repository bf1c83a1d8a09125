package database

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/entities"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/repositories"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/infrastructure/clients/postgres"
	apperrors "github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/pkg/errors"
)

const webhookEventsTable = "webhook_events"

// WebhookEventAdapter implements the WebhookEventRepository interface
type WebhookEventAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewWebhookEventAdapter creates a new webhook ledger adapter
func NewWebhookEventAdapter(client *postgres.Client) repositories.WebhookEventRepository {
	return &WebhookEventAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Record inserts the event, doing nothing when the provider event uri is known.
// Concurrent deliveries of the same event insert exactly one row.
func (a *WebhookEventAdapter) Record(ctx context.Context, event *entities.WebhookEvent) (bool, error) {
	payload := string(event.Payload)
	if payload == "" {
		payload = "{}"
	}

	record := goqu.Record{
		"provider_event_uri": event.ProviderEventURI,
		"provider":           event.Provider,
		"event_type":         event.EventType,
		"payload":            payload,
		"received_at":        event.ReceivedAt,
	}

	query, args, err := a.db.Insert(webhookEventsTable).Prepared(true).
		Rows(record).
		OnConflict(goqu.DoNothing()).
		ToSQL()
	if err != nil {
		return false, apperrors.NewInternalError("failed to build insert query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return false, apperrors.NewInternalError("failed to record webhook event", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.NewInternalError("failed to read affected rows", err)
	}
	return affected == 1, nil
}

// MarkProcessed stamps processed_at and clears any earlier error
func (a *WebhookEventAdapter) MarkProcessed(ctx context.Context, providerEventURI string, at time.Time) error {
	query, args, err := a.db.Update(webhookEventsTable).Prepared(true).
		Set(goqu.Record{"processed_at": at, "error_message": nil}).
		Where(goqu.Ex{"provider_event_uri": providerEventURI}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to mark webhook event processed", err)
	}
	return nil
}

// MarkFailed stores the processing error
func (a *WebhookEventAdapter) MarkFailed(ctx context.Context, providerEventURI string, message string) error {
	query, args, err := a.db.Update(webhookEventsTable).Prepared(true).
		Set(goqu.Record{"error_message": message}).
		Where(goqu.Ex{"provider_event_uri": providerEventURI}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to mark webhook event failed", err)
	}
	return nil
}

// PurgeProcessedBefore deletes processed events received before cutoff.
// Unprocessed rows are kept so failures stay visible.
func (a *WebhookEventAdapter) PurgeProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := a.db.Delete(webhookEventsTable).Prepared(true).
		Where(
			goqu.C("processed_at").IsNotNull(),
			goqu.C("received_at").Lt(cutoff),
		).
		ToSQL()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to build delete query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperrors.NewInternalError("failed to purge webhook events", err)
	}
	return result.RowsAffected()
}
