package services

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/entities"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/providers"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/repositories"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/infrastructure/observability"
)

// IngestOutcome is the result of one webhook delivery
type IngestOutcome string

const (
	IngestAccepted  IngestOutcome = "accepted"
	IngestDuplicate IngestOutcome = "duplicate"
	IngestRejected  IngestOutcome = "rejected"
	IngestMalformed IngestOutcome = "malformed"
	IngestFailed    IngestOutcome = "failed"
	// IngestUnavailable means the ledger could not be written; the provider should retry.
	IngestUnavailable IngestOutcome = "unavailable"
)

// HTTPStatus maps the outcome to the response status sent to the provider
func (o IngestOutcome) HTTPStatus() int {
	switch o {
	case IngestRejected:
		return http.StatusUnauthorized
	case IngestUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusOK
	}
}

// ProviderEventApplier applies a verified, first-seen provider event
type ProviderEventApplier interface {
	ApplyProviderEvent(ctx context.Context, eventType string, payload []byte) error
}

// WebhookIngestor authenticates, deduplicates and applies provider webhooks
type WebhookIngestor struct {
	provider     providers.ScheduleProvider
	ledger       repositories.WebhookEventRepository
	applier      ProviderEventApplier
	providerName string
	metrics      *observability.Metrics
	now          func() time.Time
}

// NewWebhookIngestor creates a new webhook ingestor
func NewWebhookIngestor(
	provider providers.ScheduleProvider,
	ledger repositories.WebhookEventRepository,
	applier ProviderEventApplier,
	metrics *observability.Metrics,
) *WebhookIngestor {
	return &WebhookIngestor{
		provider:     provider,
		ledger:       ledger,
		applier:      applier,
		providerName: entities.WebhookProviderCalendly,
		metrics:      metrics,
		now:          time.Now,
	}
}

// Ingest handles one delivery. Nothing is read or written before the
// signature is verified, and an event already in the ledger is never
// applied twice.
func (w *WebhookIngestor) Ingest(ctx context.Context, rawBody []byte, signatureHeader string) IngestOutcome {
	ctx, span := observability.StartSpan(ctx, "WebhookIngestor.Ingest")
	defer span.End()

	logger := observability.ComponentLogger(ctx, "webhook_ingestor")

	if !w.provider.VerifySignature(rawBody, signatureHeader) {
		logger.Warn().Int("body_bytes", len(rawBody)).Msg("webhook signature rejected")
		return w.finish(ctx, "", IngestRejected)
	}

	if !gjson.ValidBytes(rawBody) {
		logger.Warn().Msg("webhook body is not valid JSON")
		return w.finish(ctx, "", IngestMalformed)
	}
	root := gjson.ParseBytes(rawBody)
	eventType := root.Get("event").String()
	payload := root.Get("payload")
	eventURI := ledgerEventURI(payload)
	if eventType == "" || eventURI == "" {
		logger.Warn().
			Str("event_type", eventType).
			Msg("webhook missing event type or event uri")
		return w.finish(ctx, eventType, IngestMalformed)
	}

	key := LedgerKey(eventURI, eventType)
	inserted, err := w.ledger.Record(ctx, &entities.WebhookEvent{
		ProviderEventURI: key,
		Provider:         w.providerName,
		EventType:        eventType,
		Payload:          json.RawMessage(rawBody),
		ReceivedAt:       w.now().UTC(),
	})
	if err != nil {
		logger.Error().Err(err).Str("event_key", key).Msg("failed to record webhook event")
		return w.finish(ctx, eventType, IngestUnavailable)
	}
	if !inserted {
		logger.Info().Str("event_key", key).Msg("duplicate webhook event")
		return w.finish(ctx, eventType, IngestDuplicate)
	}

	if err := w.applier.ApplyProviderEvent(ctx, eventType, []byte(payload.Raw)); err != nil {
		observability.RecordError(span, err)
		logger.Error().Err(err).
			Str("event_key", key).
			Str("event_type", eventType).
			Msg("failed to apply webhook event")
		if markErr := w.ledger.MarkFailed(ctx, key, err.Error()); markErr != nil {
			logger.Error().Err(markErr).Str("event_key", key).Msg("failed to store webhook error")
		}
		return w.finish(ctx, eventType, IngestFailed)
	}

	if err := w.ledger.MarkProcessed(ctx, key, w.now().UTC()); err != nil {
		logger.Error().Err(err).Str("event_key", key).Msg("failed to mark webhook processed")
	}
	return w.finish(ctx, eventType, IngestAccepted)
}

func (w *WebhookIngestor) finish(ctx context.Context, eventType string, outcome IngestOutcome) IngestOutcome {
	w.metrics.RecordWebhookEvent(ctx, eventType, string(outcome))
	return outcome
}

// LedgerKey identifies one provider event. Created and canceled events for
// the same invitee share a uri, so the type is part of the key.
func LedgerKey(eventURI, eventType string) string {
	return eventURI + "#" + eventType
}

func ledgerEventURI(payload gjson.Result) string {
	if uri := payload.Get("uri").String(); uri != "" {
		return uri
	}
	if uri := payload.Get("event.uri").String(); uri != "" {
		return uri
	}
	if ev := payload.Get("event"); ev.Type == gjson.String {
		return ev.String()
	}
	return ""
}
