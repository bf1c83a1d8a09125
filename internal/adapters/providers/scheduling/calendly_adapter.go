package scheduling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/entities"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/providers"
	apperrors "github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/pkg/errors"
)

const defaultCalendlyBaseURL = "https://api.calendly.com"

// CalendlyConfig configures the Calendly adapter
type CalendlyConfig struct {
	APIKey        string
	BaseURL       string
	EventType     string
	WebhookSecret string
	Timeout       time.Duration
}

// CalendlyAdapter implements ScheduleProvider for Calendly
type CalendlyAdapter struct {
	apiKey        string
	baseURL       string
	eventType     string
	webhookSecret string
	client        *http.Client
}

// NewCalendlyAdapter creates a new Calendly adapter
func NewCalendlyAdapter(cfg CalendlyConfig) providers.ScheduleProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultCalendlyBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CalendlyAdapter{
		apiKey:        cfg.APIKey,
		baseURL:       baseURL,
		eventType:     cfg.EventType,
		webhookSecret: cfg.WebhookSecret,
		client:        &http.Client{Timeout: timeout},
	}
}

type calendlyInvitee struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Timezone string `json:"timezone,omitempty"`
}

type createInviteeRequest struct {
	EventType string          `json:"event_type"`
	StartTime string          `json:"start_time"`
	Invitee   calendlyInvitee `json:"invitee"`
}

type createInviteeResponse struct {
	Resource struct {
		URI           string `json:"uri"`
		Event         string `json:"event"`
		CancelURL     string `json:"cancel_url"`
		RescheduleURL string `json:"reschedule_url"`
	} `json:"resource"`
}

// CreateEvent books the slot by creating an invitee on the center's event type.
// The center's scheduling external id overrides the configured event type.
func (a *CalendlyAdapter) CreateEvent(ctx context.Context, center *entities.Center, service *entities.Service, invitee *entities.User, slot entities.Slot) (*entities.ExternalEventRef, error) {
	eventType := a.eventType
	if center != nil && center.SchedulingExternalID != "" {
		eventType = center.SchedulingExternalID
	}
	if eventType == "" {
		return nil, ErrMissingExternalID
	}
	if invitee == nil {
		return nil, apperrors.NewValidationError("invitee is required")
	}

	reqBody := createInviteeRequest{
		EventType: a.eventTypeURI(eventType),
		StartTime: slot.Start.UTC().Format(time.RFC3339),
		Invitee: calendlyInvitee{
			Name:  invitee.Name,
			Email: invitee.Email,
		},
	}
	if center != nil {
		reqBody.Invitee.Timezone = center.Timezone
	}

	var result createInviteeResponse
	if err := a.do(ctx, http.MethodPost, "/invitees", reqBody, &result, http.StatusCreated, http.StatusOK); err != nil {
		return nil, err
	}

	if result.Resource.Event == "" {
		return nil, apperrors.NewExternalError("calendly response missing event uri", nil)
	}

	return &entities.ExternalEventRef{
		EventID:       lastPathSegment(result.Resource.Event),
		EventURI:      result.Resource.Event,
		CancelURL:     result.Resource.CancelURL,
		RescheduleURL: result.Resource.RescheduleURL,
	}, nil
}

// CancelEvent cancels a scheduled event
func (a *CalendlyAdapter) CancelEvent(ctx context.Context, ref *entities.ExternalEventRef, reason string) error {
	if ref == nil {
		return apperrors.NewValidationError("external event reference is required")
	}
	eventID := ref.EventID
	if eventID == "" {
		eventID = lastPathSegment(ref.EventURI)
	}
	if eventID == "" {
		return ErrMissingExternalID
	}

	path := fmt.Sprintf("/scheduled_events/%s/cancellation", eventID)
	return a.do(ctx, http.MethodPost, path, map[string]string{"reason": reason}, nil, http.StatusCreated, http.StatusOK)
}

// VerifySignature checks the Calendly-Webhook-Signature header
func (a *CalendlyAdapter) VerifySignature(rawPayload []byte, signatureHeader string) bool {
	return VerifyHMACSignature(a.webhookSecret, rawPayload, signatureHeader)
}

func (a *CalendlyAdapter) do(ctx context.Context, method, path string, in, out interface{}, okStatus ...int) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return apperrors.NewInternalError("failed to encode calendly request", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return apperrors.NewInternalError("failed to build calendly request", err)
	}
	a.addHeaders(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return apperrors.NewExternalError("calendly request failed", err)
	}
	defer resp.Body.Close()

	if !statusIn(resp.StatusCode, okStatus) {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperrors.NewExternalError(
			fmt.Sprintf("calendly api error: status %d", resp.StatusCode),
			fmt.Errorf("%s %s: %s", method, path, strings.TrimSpace(string(snippet))),
		)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.NewExternalError("failed to decode calendly response", err)
	}
	return nil
}

func (a *CalendlyAdapter) eventTypeURI(eventType string) string {
	if strings.HasPrefix(eventType, "http") {
		return eventType
	}
	return a.baseURL + "/event_types/" + eventType
}

func (a *CalendlyAdapter) addHeaders(req *http.Request) {
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", a.apiKey))
	req.Header.Set("Content-Type", "application/json")
}

func statusIn(status int, accepted []int) bool {
	for _, s := range accepted {
		if status == s {
			return true
		}
	}
	return false
}

func lastPathSegment(uri string) string {
	uri = strings.TrimRight(uri, "/")
	if i := strings.LastIndex(uri, "/"); i >= 0 {
		return uri[i+1:]
	}
	return uri
}
