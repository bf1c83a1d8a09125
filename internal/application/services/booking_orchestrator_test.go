package services_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/application/services"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/entities"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/repositories"
	apperrors "github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/pkg/errors"
)

var testEventRef = &entities.ExternalEventRef{
	EventID:       "evt-1",
	EventURI:      "https://api.calendly.com/scheduled_events/evt-1",
	CancelURL:     "https://calendly.com/cancellations/inv-1",
	RescheduleURL: "https://calendly.com/reschedulings/inv-1",
}

func TestBookingOrchestrator_CreateBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("persists a pending booking with the provider reference", func(t *testing.T) {
		provider := new(MockScheduleProvider)
		h := newHarness(t, provider)
		provider.On("CreateEvent", mock.Anything, mock.Anything, (*entities.Service)(nil), mock.Anything,
			entities.Slot{Start: sgtSlot(t), End: sgtSlot(t).Add(time.Hour)}).
			Return(testEventRef, nil).Once()

		booking, err := h.orchestrator.CreateBooking(ctx, h.createInput())
		require.NoError(t, err)

		assert.True(t, entities.IsValidBookingNumber(booking.BookingNumber))
		assert.Equal(t, entities.BookingStatusPending, booking.Status)
		assert.Equal(t, sgtSlot(t), booking.ScheduledAt)
		assert.Equal(t, testEventRef, booking.ExternalRef)

		stored := h.bookings.get(t, booking.ID)
		assert.Equal(t, "evt-1", stored.ExternalRef.EventID)
		assert.Equal(t, []entities.AuditAction{entities.AuditActionCreated}, h.audit.actions(booking.ID))
		assert.Equal(t, 1, h.queue.Len())
		provider.AssertExpectations(t)
	})

	t.Run("uses the service duration for the slot", func(t *testing.T) {
		provider := new(MockScheduleProvider)
		h := newHarness(t, provider)
		provider.On("CreateEvent", mock.Anything, mock.Anything, mock.AnythingOfType("*entities.Service"), mock.Anything,
			entities.Slot{Start: sgtSlot(t), End: sgtSlot(t).Add(45 * time.Minute)}).
			Return(testEventRef, nil).Once()

		in := h.createInput()
		serviceID := testServiceID
		in.ServiceID = &serviceID
		_, err := h.orchestrator.CreateBooking(ctx, in)
		require.NoError(t, err)
		provider.AssertExpectations(t)
	})

	t.Run("keeps the booking when the provider fails", func(t *testing.T) {
		provider := new(MockScheduleProvider)
		h := newHarness(t, provider)
		provider.On("CreateEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, apperrors.NewExternalError("calendly unavailable", errBoom)).Once()

		booking, err := h.orchestrator.CreateBooking(ctx, h.createInput())
		require.NoError(t, err)

		assert.Nil(t, booking.ExternalRef)
		stored := h.bookings.get(t, booking.ID)
		assert.Equal(t, entities.BookingStatusPending, stored.Status)
		assert.Nil(t, stored.ExternalRef)
		assert.Equal(t, 1, h.queue.Len(), "confirmation is still queued")
	})
}

func TestBookingOrchestrator_CreateBookingValidation(t *testing.T) {
	ctx := context.Background()
	provider := new(MockScheduleProvider)
	h := newHarness(t, provider)

	foreignService := "9a8b7c6d-5e4f-4a3b-8c2d-1e0f9a8b7c6d"
	h.directory.services[foreignService] = &entities.Service{ID: foreignService, CenterID: otherCenterID, Name: "Day programme"}
	missingService := "9a8b7c6d-5e4f-4a3b-8c2d-000000000000"

	cases := map[string]struct {
		mutate func(in *services.CreateBookingInput)
		field  string
	}{
		"bad user id":               {func(in *services.CreateBookingInput) { in.UserID = "not-a-uuid" }, "user_id"},
		"missing center id":         {func(in *services.CreateBookingInput) { in.CenterID = "" }, "center_id"},
		"bad date":                  {func(in *services.CreateBookingInput) { in.BookingDate = "01/06/2025" }, "booking_date"},
		"bad time":                  {func(in *services.CreateBookingInput) { in.BookingTime = "10am" }, "booking_time"},
		"past slot":                 {func(in *services.CreateBookingInput) { in.BookingDate, in.BookingTime = "2025-05-20", "15:59" }, "booking_date"},
		"unknown user":              {func(in *services.CreateBookingInput) { in.UserID = "7d0f3c3e-8a4b-4c1e-9f2a-000000000000" }, "user_id"},
		"unknown center":            {func(in *services.CreateBookingInput) { in.CenterID = "c0a80101-0000-4000-8000-0000000000ff" }, "center_id"},
		"unknown service":           {func(in *services.CreateBookingInput) { in.ServiceID = &missingService }, "service_id"},
		"service at another center": {func(in *services.CreateBookingInput) { in.ServiceID = &foreignService }, "service_id"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			in := h.createInput()
			tc.mutate(&in)

			_, err := h.orchestrator.CreateBooking(ctx, in)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation), err.Error())
			var appErr *apperrors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Contains(t, appErr.Details, tc.field)
		})
	}

	assert.Empty(t, h.bookings.byID)
	provider.AssertNotCalled(t, "CreateEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBookingOrchestrator_CreateBookingRetriesNumberCollisions(t *testing.T) {
	ctx := context.Background()
	conflict := apperrors.NewConflictError("booking number already exists", nil)

	t.Run("succeeds after collisions", func(t *testing.T) {
		provider := new(MockScheduleProvider)
		h := newHarness(t, provider)
		provider.On("CreateEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(testEventRef, nil)
		h.bookings.createErrs = []error{conflict, conflict}

		booking, err := h.orchestrator.CreateBooking(ctx, h.createInput())
		require.NoError(t, err)
		assert.Len(t, h.bookings.byID, 1)
		assert.NotEmpty(t, booking.BookingNumber)
	})

	t.Run("gives up after three collisions", func(t *testing.T) {
		provider := new(MockScheduleProvider)
		h := newHarness(t, provider)
		h.bookings.createErrs = []error{conflict, conflict, conflict}

		_, err := h.orchestrator.CreateBooking(ctx, h.createInput())
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))
		assert.Empty(t, h.bookings.byID)
		assert.Equal(t, 0, h.queue.Len())
	})

	t.Run("does not retry other failures", func(t *testing.T) {
		provider := new(MockScheduleProvider)
		h := newHarness(t, provider)
		h.bookings.createErrs = []error{apperrors.NewInternalError("db down", errBoom)}

		_, err := h.orchestrator.CreateBooking(ctx, h.createInput())
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInternal))
	})
}

func TestBookingOrchestrator_CancelBooking(t *testing.T) {
	ctx := context.Background()
	reason := "Family emergency, rescheduling"
	actor := entities.UserActor(testUserID, "203.0.113.7", "test")

	t.Run("cancels locally and remotely", func(t *testing.T) {
		provider := new(MockScheduleProvider)
		h := newHarness(t, provider)
		b := confirmedBooking("b-1", sgtSlot(t))
		h.bookings.put(b)
		provider.On("CancelEvent", mock.Anything, b.ExternalRef, reason).Return(nil).Once()

		got, err := h.orchestrator.CancelBooking(ctx, "b-1", reason, actor)
		require.NoError(t, err)

		assert.Equal(t, entities.BookingStatusCancelled, got.Status)
		assert.Equal(t, 1, h.queue.Len())
		entries, _ := h.audit.ListBySubject(ctx, entities.AuditSubjectBooking, "b-1")
		require.Len(t, entries, 1)
		assert.Equal(t, testUserID, *entries[0].ActorUserID)
		provider.AssertExpectations(t)
	})

	t.Run("remote failure does not undo the cancellation", func(t *testing.T) {
		provider := new(MockScheduleProvider)
		h := newHarness(t, provider)
		h.bookings.put(confirmedBooking("b-1", sgtSlot(t)))
		provider.On("CancelEvent", mock.Anything, mock.Anything, mock.Anything).Return(errBoom).Once()

		got, err := h.orchestrator.CancelBooking(ctx, "b-1", reason, actor)
		require.NoError(t, err)
		assert.Equal(t, entities.BookingStatusCancelled, got.Status)
	})

	t.Run("skips the provider without a reference", func(t *testing.T) {
		provider := new(MockScheduleProvider)
		h := newHarness(t, provider)
		b := confirmedBooking("b-1", sgtSlot(t))
		b.Status = entities.BookingStatusPending
		b.ExternalRef = nil
		h.bookings.put(b)

		_, err := h.orchestrator.CancelBooking(ctx, "b-1", reason, actor)
		require.NoError(t, err)
		provider.AssertNotCalled(t, "CancelEvent", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rejects a short reason", func(t *testing.T) {
		h := newHarness(t, new(MockScheduleProvider))
		h.bookings.put(confirmedBooking("b-1", sgtSlot(t)))

		_, err := h.orchestrator.CancelBooking(ctx, "b-1", "nope", actor)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
		var appErr *apperrors.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "min", appErr.Details["reason"])
		assert.Equal(t, entities.BookingStatusConfirmed, h.bookings.get(t, "b-1").Status)
		assert.Equal(t, 0, h.queue.Len())
	})

	t.Run("unknown booking", func(t *testing.T) {
		h := newHarness(t, new(MockScheduleProvider))

		_, err := h.orchestrator.CancelBooking(ctx, "missing", reason, actor)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
	})
}

// captureLogs redirects the global logger for the rest of the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	prev := log.Logger
	buf := &bytes.Buffer{}
	log.Logger = zerolog.New(buf)
	t.Cleanup(func() { log.Logger = prev })
	return buf
}

func TestBookingOrchestrator_ApplyProviderEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("invitee.created confirms by scheduled event uri", func(t *testing.T) {
		h := newHarness(t, new(MockScheduleProvider))
		b := confirmedBooking("b-1", sgtSlot(t))
		b.Status = entities.BookingStatusPending
		h.bookings.put(b)

		payload := []byte(`{
			"uri": "https://api.calendly.com/scheduled_events/evt-b-1/invitees/inv-1",
			"scheduled_event": {"uri": "https://api.calendly.com/scheduled_events/evt-b-1"},
			"cancel_url": "https://calendly.com/cancellations/inv-1"
		}`)
		require.NoError(t, h.orchestrator.ApplyProviderEvent(ctx, "invitee.created", payload))

		stored := h.bookings.get(t, "b-1")
		assert.Equal(t, entities.BookingStatusConfirmed, stored.Status)
		assert.Equal(t, "https://calendly.com/cancellations/inv-1", stored.ExternalRef.CancelURL)
		assert.Equal(t, "evt-b-1", stored.ExternalRef.EventID)
	})

	t.Run("invitee.canceled pads a short provider reason", func(t *testing.T) {
		h := newHarness(t, new(MockScheduleProvider))
		h.bookings.put(confirmedBooking("b-1", sgtSlot(t)))

		payload := []byte(`{"event": "https://api.calendly.com/scheduled_events/evt-b-1", "cancellation": {"reason": "sick"}}`)
		require.NoError(t, h.orchestrator.ApplyProviderEvent(ctx, "invitee.canceled", payload))

		stored := h.bookings.get(t, "b-1")
		assert.Equal(t, entities.BookingStatusCancelled, stored.Status)
		assert.Equal(t, "Cancelled via scheduling provider: sick", *stored.CancellationReason)
		assert.Equal(t, 1, h.queue.Len())
	})

	t.Run("invalid transitions are swallowed", func(t *testing.T) {
		h := newHarness(t, new(MockScheduleProvider))
		h.bookings.put(confirmedBooking("b-1", sgtSlot(t)))

		payload := []byte(`{"event": "https://api.calendly.com/scheduled_events/evt-b-1"}`)
		assert.NoError(t, h.orchestrator.ApplyProviderEvent(ctx, "invitee.created", payload))
		assert.Empty(t, h.audit.actions("b-1"))
	})

	t.Run("unknown event types are ignored", func(t *testing.T) {
		h := newHarness(t, new(MockScheduleProvider))
		assert.NoError(t, h.orchestrator.ApplyProviderEvent(ctx, "routing_form_submission.created", []byte(`{}`)))
	})

	t.Run("unknown booking is flagged for reconciliation", func(t *testing.T) {
		logs := captureLogs(t)
		h := newHarness(t, new(MockScheduleProvider))
		payload := []byte(`{"event": "https://api.calendly.com/scheduled_events/nope"}`)
		err := h.orchestrator.ApplyProviderEvent(ctx, "invitee.created", payload)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))

		out := logs.String()
		assert.Contains(t, out, `"reconcile":true`)
		assert.Contains(t, out, `"event_uri":"https://api.calendly.com/scheduled_events/nope"`)
		assert.Contains(t, out, "provider event matches no booking")
	})
}

func TestBookingOrchestrator_PolicyTransitionsAndReads(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, new(MockScheduleProvider))
	past := h.clock.Now().Add(-2 * time.Hour)
	h.bookings.put(confirmedBooking("b-1", past))
	h.bookings.put(confirmedBooking("b-2", past.Add(-24*time.Hour)))

	got, err := h.orchestrator.CompleteBooking(ctx, "b-1", entities.SystemActor())
	require.NoError(t, err)
	assert.Equal(t, entities.BookingStatusCompleted, got.Status)

	got, err = h.orchestrator.MarkNoShow(ctx, "b-2", entities.SystemActor())
	require.NoError(t, err)
	assert.Equal(t, entities.BookingStatusNoShow, got.Status)

	one, err := h.orchestrator.GetBooking(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, entities.BookingStatusCompleted, one.Status)

	list, err := h.orchestrator.ListUserBookings(ctx, testUserID, repositories.BookingFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b-1", list[0].ID)
}
