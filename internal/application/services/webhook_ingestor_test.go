package services_test

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/adapters/providers/scheduling"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/application/services"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/entities"
)

func inviteeWebhook(eventType, eventURI, reason string) []byte {
	cancellation := ""
	if reason != "" {
		cancellation = fmt.Sprintf(`, "cancellation": {"canceled_by": "Tan Mei Ling", "reason": %q}`, reason)
	}
	return []byte(fmt.Sprintf(`{
  "event": %q,
  "created_at": "2025-05-20T08:05:00.000000Z",
  "payload": {
    "uri": "%s/invitees/inv-1",
    "email": "meiling@example.com",
    "name": "Tan Mei Ling",
    "event": %q,
    "cancel_url": "https://calendly.com/cancellations/inv-1",
    "reschedule_url": "https://calendly.com/reschedulings/inv-1"%s
  }
}`, eventType, eventURI, eventURI, cancellation))
}

func sign(raw []byte) string {
	return scheduling.SignPayload(webhookSecret, raw, "1748160000")
}

func TestIngestOutcome_HTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, services.IngestRejected.HTTPStatus())
	assert.Equal(t, http.StatusServiceUnavailable, services.IngestUnavailable.HTTPStatus())
	for _, o := range []services.IngestOutcome{services.IngestAccepted, services.IngestDuplicate, services.IngestMalformed, services.IngestFailed} {
		assert.Equal(t, http.StatusOK, o.HTTPStatus(), string(o))
	}
}

func TestWebhookIngestor_RejectsBadSignature(t *testing.T) {
	h := newHarness(t, new(MockScheduleProvider))
	b := confirmedBooking("b-1", sgtSlot(t))
	h.bookings.put(b)
	raw := inviteeWebhook("invitee.canceled", b.ExternalRef.EventURI, "Family emergency, rescheduling")

	outcome := h.ingestor.Ingest(context.Background(), raw, "t=1748160000,v1=deadbeef")
	assert.Equal(t, services.IngestRejected, outcome)

	assert.Equal(t, services.IngestRejected, h.ingestor.Ingest(context.Background(), raw, ""))
	assert.Empty(t, h.ledger.events)
	assert.Equal(t, entities.BookingStatusConfirmed, h.bookings.get(t, "b-1").Status)
}

func TestWebhookIngestor_Malformed(t *testing.T) {
	h := newHarness(t, new(MockScheduleProvider))

	for _, raw := range [][]byte{
		[]byte(`not json`),
		[]byte(`{"event": "invitee.created", "payload": {}}`),
		[]byte(`{"payload": {"uri": "https://api.calendly.com/scheduled_events/x/invitees/y"}}`),
	} {
		assert.Equal(t, services.IngestMalformed, h.ingestor.Ingest(context.Background(), raw, sign(raw)), string(raw))
	}
	assert.Empty(t, h.ledger.events)
}

func TestWebhookIngestor_ReplayIsIgnored(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, new(MockScheduleProvider))
	b := confirmedBooking("b-1", sgtSlot(t))
	b.Status = entities.BookingStatusPending
	h.bookings.put(b)
	raw := inviteeWebhook("invitee.created", b.ExternalRef.EventURI, "")

	assert.Equal(t, services.IngestAccepted, h.ingestor.Ingest(ctx, raw, sign(raw)))
	assert.Equal(t, services.IngestDuplicate, h.ingestor.Ingest(ctx, raw, sign(raw)))

	assert.Equal(t, entities.BookingStatusConfirmed, h.bookings.get(t, "b-1").Status)
	assert.Equal(t, []entities.AuditAction{entities.AuditActionConfirmed}, h.audit.actions("b-1"))

	ev := h.ledger.get(services.LedgerKey(b.ExternalRef.EventURI+"/invitees/inv-1", "invitee.created"))
	require.NotNil(t, ev)
	assert.NotNil(t, ev.ProcessedAt)
	assert.Equal(t, entities.WebhookProviderCalendly, ev.Provider)
}

func TestWebhookIngestor_CreatedAndCanceledShareInviteeURI(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, new(MockScheduleProvider))
	b := confirmedBooking("b-1", sgtSlot(t))
	b.Status = entities.BookingStatusPending
	h.bookings.put(b)

	created := inviteeWebhook("invitee.created", b.ExternalRef.EventURI, "")
	canceled := inviteeWebhook("invitee.canceled", b.ExternalRef.EventURI, "Family emergency, rescheduling")

	assert.Equal(t, services.IngestAccepted, h.ingestor.Ingest(ctx, created, sign(created)))
	assert.Equal(t, services.IngestAccepted, h.ingestor.Ingest(ctx, canceled, sign(canceled)))
	assert.Equal(t, entities.BookingStatusCancelled, h.bookings.get(t, "b-1").Status)
}

func TestWebhookIngestor_ConcurrentDeliveriesApplyOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, new(MockScheduleProvider))
	b := confirmedBooking("b-1", sgtSlot(t))
	h.bookings.put(b)
	raw := inviteeWebhook("invitee.canceled", b.ExternalRef.EventURI, "Family emergency, rescheduling")
	header := sign(raw)

	const n = 16
	outcomes := make([]services.IngestOutcome, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = h.ingestor.Ingest(ctx, raw, header)
		}(i)
	}
	wg.Wait()

	counts := map[services.IngestOutcome]int{}
	for _, o := range outcomes {
		counts[o]++
	}
	assert.Equal(t, 1, counts[services.IngestAccepted])
	assert.Equal(t, n-1, counts[services.IngestDuplicate])
	assert.Equal(t, []entities.AuditAction{entities.AuditActionCancelled}, h.audit.actions("b-1"))
	assert.Equal(t, 1, h.queue.Len(), "one cancellation notice")
}

func TestWebhookIngestor_ApplyFailureIsAcknowledgedAndStored(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, new(MockScheduleProvider))
	raw := inviteeWebhook("invitee.canceled", "https://api.calendly.com/scheduled_events/unknown", "")

	assert.Equal(t, services.IngestFailed, h.ingestor.Ingest(ctx, raw, sign(raw)))

	ev := h.ledger.get(services.LedgerKey("https://api.calendly.com/scheduled_events/unknown/invitees/inv-1", "invitee.canceled"))
	require.NotNil(t, ev)
	assert.Nil(t, ev.ProcessedAt)
	require.NotNil(t, ev.ErrorMessage)
	assert.Contains(t, *ev.ErrorMessage, "NOT_FOUND")

	assert.Equal(t, services.IngestDuplicate, h.ingestor.Ingest(ctx, raw, sign(raw)))
}

func TestWebhookIngestor_LedgerUnavailable(t *testing.T) {
	h := newHarness(t, new(MockScheduleProvider))
	h.ledger.recordErr = errBoom
	b := confirmedBooking("b-1", sgtSlot(t))
	h.bookings.put(b)
	raw := inviteeWebhook("invitee.canceled", b.ExternalRef.EventURI, "Family emergency, rescheduling")

	outcome := h.ingestor.Ingest(context.Background(), raw, sign(raw))
	assert.Equal(t, services.IngestUnavailable, outcome)
	assert.Equal(t, http.StatusServiceUnavailable, outcome.HTTPStatus())
	assert.Equal(t, entities.BookingStatusConfirmed, h.bookings.get(t, "b-1").Status)
}
