package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/application/services"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/infrastructure/observability"
)

// CalendlySignatureHeader is the header Calendly signs webhook bodies in
const CalendlySignatureHeader = "Calendly-Webhook-Signature"

const maxWebhookBodyBytes = 1 << 20

// WebhookIngestor processes one raw provider delivery
type WebhookIngestor interface {
	Ingest(ctx context.Context, rawBody []byte, signatureHeader string) services.IngestOutcome
}

// CalendlyWebhookHandler handles Calendly webhook events
type CalendlyWebhookHandler struct {
	ingestor WebhookIngestor
}

// NewCalendlyWebhookHandler creates a new webhook handler
func NewCalendlyWebhookHandler(ingestor WebhookIngestor) *CalendlyWebhookHandler {
	return &CalendlyWebhookHandler{ingestor: ingestor}
}

// HandleWebhook handles POST /webhooks/calendly. The raw body is passed on
// untouched so the signature can be checked over the exact bytes sent.
func (h *CalendlyWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		observability.LoggerFromContext(r.Context()).Warn().Err(err).Msg("failed to read webhook body")
		respondWithError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	outcome := h.ingestor.Ingest(r.Context(), body, r.Header.Get(CalendlySignatureHeader))

	status := outcome.HTTPStatus()
	if status == http.StatusUnauthorized {
		respondWithError(w, status, "invalid signature")
		return
	}
	respondWithJSON(w, status, map[string]string{"status": string(outcome)})
}
