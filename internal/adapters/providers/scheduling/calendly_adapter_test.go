package scheduling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/entities"
	apperrors "github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/pkg/errors"
)

func TestCalendlyAdapter_CreateEvent(t *testing.T) {
	var got createInviteeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/invitees", r.URL.Path)
		assert.Equal(t, "Bearer pat-123", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"resource":{
			"uri":"https://api.calendly.com/scheduled_events/evt-1/invitees/inv-1",
			"event":"https://api.calendly.com/scheduled_events/evt-1",
			"cancel_url":"https://calendly.com/cancellations/inv-1",
			"reschedule_url":"https://calendly.com/reschedulings/inv-1"}}`))
	}))
	defer server.Close()

	adapter := NewCalendlyAdapter(CalendlyConfig{APIKey: "pat-123", BaseURL: server.URL, EventType: "et-default"})
	center := &entities.Center{ID: "c-1", Timezone: "Asia/Singapore", SchedulingExternalID: "et-center"}
	user := &entities.User{ID: "u-1", Name: "Mei Ling", Email: "mei@example.com"}
	start := time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC)

	ref, err := adapter.CreateEvent(context.Background(), center, nil, user, entities.Slot{Start: start, End: start.Add(time.Hour)})
	require.NoError(t, err)

	assert.Equal(t, server.URL+"/event_types/et-center", got.EventType)
	assert.Equal(t, "2025-06-01T02:00:00Z", got.StartTime)
	assert.Equal(t, "mei@example.com", got.Invitee.Email)
	assert.Equal(t, "Asia/Singapore", got.Invitee.Timezone)

	assert.Equal(t, "evt-1", ref.EventID)
	assert.Equal(t, "https://api.calendly.com/scheduled_events/evt-1", ref.EventURI)
	assert.Equal(t, "https://calendly.com/cancellations/inv-1", ref.CancelURL)
}

func TestCalendlyAdapter_CreateEvent_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"title":"Service Unavailable"}`))
	}))
	defer server.Close()

	adapter := NewCalendlyAdapter(CalendlyConfig{APIKey: "pat-123", BaseURL: server.URL, EventType: "et-default"})
	_, err := adapter.CreateEvent(context.Background(), &entities.Center{}, nil, &entities.User{}, entities.Slot{Start: time.Now()})

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeExternal))
	assert.Contains(t, err.Error(), "status 503")
}

func TestCalendlyAdapter_CreateEvent_MissingEventType(t *testing.T) {
	adapter := NewCalendlyAdapter(CalendlyConfig{APIKey: "pat-123"})
	_, err := adapter.CreateEvent(context.Background(), &entities.Center{}, nil, &entities.User{}, entities.Slot{})
	assert.ErrorIs(t, err, ErrMissingExternalID)
}

func TestCalendlyAdapter_CancelEvent(t *testing.T) {
	var reason string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/scheduled_events/evt-1/cancellation", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		reason = body["reason"]
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"resource":{}}`))
	}))
	defer server.Close()

	adapter := NewCalendlyAdapter(CalendlyConfig{APIKey: "pat-123", BaseURL: server.URL})
	err := adapter.CancelEvent(context.Background(),
		&entities.ExternalEventRef{EventURI: "https://api.calendly.com/scheduled_events/evt-1"},
		"Family emergency, will rebook")

	require.NoError(t, err)
	assert.Equal(t, "Family emergency, will rebook", reason)
}

func TestCalendlyAdapter_VerifySignature(t *testing.T) {
	body := []byte(`{"event":"invitee.canceled"}`)
	adapter := NewCalendlyAdapter(CalendlyConfig{WebhookSecret: "whsec"})

	assert.True(t, adapter.VerifySignature(body, SignPayload("whsec", body, "1717200000")))
	assert.False(t, adapter.VerifySignature(body, SignPayload("nope", body, "1717200000")))
}
