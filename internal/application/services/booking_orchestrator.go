package services

import (
	"context"
	"errors"
	"path"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/entities"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/providers"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/repositories"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/infrastructure/observability"
	apperrors "github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/pkg/errors"
)

// Calendly webhook event types
const (
	ProviderEventInviteeCreated  = "invitee.created"
	ProviderEventInviteeCanceled = "invitee.canceled"
)

const (
	bookingNumberAttempts       = 3
	defaultSlotDuration         = time.Hour
	defaultEnqueueTimeout       = 5 * time.Second
	defaultProviderCancelReason = "Cancelled via scheduling provider"
)

// CreateBookingInput is the request to book a slot at a center
type CreateBookingInput struct {
	UserID      string         `json:"user_id" validate:"required,uuid"`
	CenterID    string         `json:"center_id" validate:"required,uuid"`
	ServiceID   *string        `json:"service_id,omitempty" validate:"omitempty,uuid"`
	BookingDate string         `json:"booking_date" validate:"required,datetime=2006-01-02"`
	BookingTime string         `json:"booking_time" validate:"required,datetime=15:04"`
	Notes       string         `json:"notes,omitempty" validate:"max=2000"`
	Actor       entities.Actor `json:"-" validate:"-"`
}

// OrchestratorConfig holds booking policy settings
type OrchestratorConfig struct {
	// Location interprets booking date/time when the center has no timezone
	Location       *time.Location
	EnqueueTimeout time.Duration
}

// BookingOrchestrator coordinates booking persistence, the scheduling
// provider, audit and notifications
type BookingOrchestrator struct {
	bookings   repositories.BookingRepository
	directory  repositories.DirectoryRepository
	provider   providers.ScheduleProvider
	queue      providers.NotificationQueue
	machine    *BookingStateMachine
	audit      *AuditRecorder
	dispatcher *NotificationDispatcher
	metrics    *observability.Metrics
	validate   *validator.Validate
	cfg        OrchestratorConfig
	now        func() time.Time
}

// NewBookingOrchestrator creates a new booking orchestrator
func NewBookingOrchestrator(
	bookings repositories.BookingRepository,
	directory repositories.DirectoryRepository,
	provider providers.ScheduleProvider,
	queue providers.NotificationQueue,
	machine *BookingStateMachine,
	audit *AuditRecorder,
	dispatcher *NotificationDispatcher,
	metrics *observability.Metrics,
	cfg OrchestratorConfig,
) *BookingOrchestrator {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = defaultEnqueueTimeout
	}
	return &BookingOrchestrator{
		bookings:   bookings,
		directory:  directory,
		provider:   provider,
		queue:      queue,
		machine:    machine,
		audit:      audit,
		dispatcher: dispatcher,
		metrics:    metrics,
		validate:   newInputValidator(),
		cfg:        cfg,
		now:        time.Now,
	}
}

func newInputValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// CreateBooking persists a pending booking, books it on the provider calendar
// and queues the confirmation. A provider failure leaves the booking pending
// without an external reference.
func (o *BookingOrchestrator) CreateBooking(ctx context.Context, in CreateBookingInput) (*entities.Booking, error) {
	ctx, span := observability.StartSpan(ctx, "BookingOrchestrator.CreateBooking")
	defer span.End()

	logger := observability.ComponentLogger(ctx, "booking_orchestrator")

	if err := o.validateInput(in); err != nil {
		return nil, err
	}

	user, err := o.directory.GetUser(ctx, in.UserID)
	if err != nil {
		return nil, asValidation(err, "user_id", "user not found")
	}
	center, err := o.directory.GetCenter(ctx, in.CenterID)
	if err != nil {
		return nil, asValidation(err, "center_id", "center not found")
	}
	var service *entities.Service
	if in.ServiceID != nil {
		service, err = o.directory.GetService(ctx, *in.ServiceID)
		if err != nil {
			return nil, asValidation(err, "service_id", "service not found")
		}
		if service.CenterID != center.ID {
			return nil, apperrors.NewValidationError("service is not offered at this center").
				WithDetail("service_id", "center_mismatch")
		}
	}

	date, err := time.Parse(entities.BookingDateLayout, in.BookingDate)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid booking date").WithDetail("booking_date", "datetime")
	}
	scheduledAt, err := entities.CombineSlot(date, in.BookingTime, o.locationFor(center))
	if err != nil {
		return nil, apperrors.NewValidationError("invalid booking time").WithDetail("booking_time", "datetime")
	}
	now := o.now().UTC()
	if !scheduledAt.After(now) {
		return nil, apperrors.NewValidationError("booking must be in the future").
			WithDetail("booking_date", "future")
	}

	booking := &entities.Booking{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		CenterID:    center.ID,
		ServiceID:   in.ServiceID,
		BookingDate: date,
		BookingTime: in.BookingTime,
		ScheduledAt: scheduledAt.UTC(),
		Status:      entities.BookingStatusPending,
		Notes:       strings.TrimSpace(in.Notes),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := o.insertWithUniqueNumber(ctx, booking); err != nil {
		return nil, err
	}

	logger.Info().
		Str("booking_id", booking.ID).
		Str("booking_number", booking.BookingNumber).
		Time("scheduled_at", booking.ScheduledAt).
		Msg("booking created")

	o.bookOnProvider(ctx, booking, center, service, user)

	_, _ = o.audit.Record(ctx, in.Actor, entities.AuditSubjectBooking, booking.ID,
		entities.AuditActionCreated, nil, booking.Snapshot())

	o.enqueue(ctx, booking.ID, entities.NotificationConfirmation)

	return booking, nil
}

func (o *BookingOrchestrator) validateInput(in CreateBookingInput) error {
	err := o.validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.NewValidationError(err.Error())
	}
	appErr := apperrors.NewValidationError("invalid booking request")
	for _, fe := range fieldErrs {
		appErr.WithDetail(fe.Field(), fe.Tag())
	}
	return appErr
}

func (o *BookingOrchestrator) insertWithUniqueNumber(ctx context.Context, booking *entities.Booking) error {
	var err error
	for attempt := 0; attempt < bookingNumberAttempts; attempt++ {
		booking.BookingNumber = entities.NewBookingNumber()
		err = o.bookings.Create(ctx, booking)
		if err == nil {
			return nil
		}
		if !apperrors.IsType(err, apperrors.ErrorTypeConflict) {
			return err
		}
		observability.ComponentLogger(ctx, "booking_orchestrator").Warn().
			Str("booking_number", booking.BookingNumber).
			Int("attempt", attempt+1).
			Msg("booking number collision, regenerating")
	}
	return apperrors.NewConflictError("could not allocate a unique booking number", err)
}

func (o *BookingOrchestrator) bookOnProvider(ctx context.Context, booking *entities.Booking, center *entities.Center, service *entities.Service, user *entities.User) {
	logger := observability.ComponentLogger(ctx, "booking_orchestrator")

	duration := defaultSlotDuration
	if service != nil && service.DurationMinutes > 0 {
		duration = time.Duration(service.DurationMinutes) * time.Minute
	}
	slot := entities.Slot{Start: booking.ScheduledAt, End: booking.ScheduledAt.Add(duration)}

	ref, err := o.provider.CreateEvent(ctx, center, service, user, slot)
	if err != nil {
		o.metrics.RecordProviderFailure(ctx, "create_event")
		logger.Warn().Err(err).
			Str("booking_id", booking.ID).
			Str("center_id", center.ID).
			Bool("reconcile", true).
			Msg("provider event not created, booking kept without external reference")
		return
	}

	stored, err := o.bookings.SetExternalRef(ctx, booking.ID, ref)
	if err != nil {
		logger.Error().Err(err).
			Str("booking_id", booking.ID).
			Str("event_uri", ref.EventURI).
			Bool("reconcile", true).
			Msg("failed to store provider event reference")
		return
	}
	if stored {
		booking.ExternalRef = ref
	}
}

// CancelBooking cancels a booking on behalf of actor, then cancels the
// provider event and queues the cancellation notice
func (o *BookingOrchestrator) CancelBooking(ctx context.Context, bookingID, reason string, actor entities.Actor) (*entities.Booking, error) {
	ctx, span := observability.StartSpan(ctx, "BookingOrchestrator.CancelBooking")
	defer span.End()

	booking, err := o.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	cancelled, err := o.machine.Transition(ctx, booking, entities.BookingStatusCancelled, TransitionInput{
		Reason: reason,
		Actor:  actor,
	})
	if err != nil {
		return nil, err
	}

	if cancelled.ExternalRef != nil {
		if err := o.provider.CancelEvent(ctx, cancelled.ExternalRef, *cancelled.CancellationReason); err != nil {
			o.metrics.RecordProviderFailure(ctx, "cancel_event")
			observability.ComponentLogger(ctx, "booking_orchestrator").Warn().Err(err).
				Str("booking_id", cancelled.ID).
				Str("event_uri", cancelled.ExternalRef.EventURI).
				Bool("reconcile", true).
				Msg("provider event not cancelled")
		}
	}

	o.enqueue(ctx, cancelled.ID, entities.NotificationCancellation)
	return cancelled, nil
}

// CompleteBooking marks a confirmed booking as attended
func (o *BookingOrchestrator) CompleteBooking(ctx context.Context, bookingID string, actor entities.Actor) (*entities.Booking, error) {
	return o.transitionByID(ctx, bookingID, entities.BookingStatusCompleted, actor)
}

// MarkNoShow marks a confirmed booking whose slot passed without attendance
func (o *BookingOrchestrator) MarkNoShow(ctx context.Context, bookingID string, actor entities.Actor) (*entities.Booking, error) {
	return o.transitionByID(ctx, bookingID, entities.BookingStatusNoShow, actor)
}

func (o *BookingOrchestrator) transitionByID(ctx context.Context, bookingID string, to entities.BookingStatus, actor entities.Actor) (*entities.Booking, error) {
	booking, err := o.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return o.machine.Transition(ctx, booking, to, TransitionInput{Actor: actor})
}

// GetBooking retrieves a booking by ID
func (o *BookingOrchestrator) GetBooking(ctx context.Context, bookingID string) (*entities.Booking, error) {
	return o.bookings.GetByID(ctx, bookingID)
}

// ListUserBookings lists a user's bookings, newest slot first
func (o *BookingOrchestrator) ListUserBookings(ctx context.Context, userID string, filter repositories.BookingFilter) ([]*entities.Booking, error) {
	return o.bookings.ListByUser(ctx, userID, filter)
}

// SendReminder dispatches the reminder for a booking whose reminder was claimed
func (o *BookingOrchestrator) SendReminder(ctx context.Context, booking *entities.Booking) {
	o.dispatcher.Dispatch(ctx, booking, entities.NotificationReminder)
}

// ApplyProviderEvent applies a provider webhook to the booking it refers to.
// payload is the provider's "payload" object. Unknown event types are
// ignored and transitions the booking no longer allows are logged and
// dropped.
func (o *BookingOrchestrator) ApplyProviderEvent(ctx context.Context, eventType string, payload []byte) error {
	logger := observability.ComponentLogger(ctx, "booking_orchestrator")

	var to entities.BookingStatus
	switch eventType {
	case ProviderEventInviteeCreated:
		to = entities.BookingStatusConfirmed
	case ProviderEventInviteeCanceled:
		to = entities.BookingStatusCancelled
	default:
		logger.Debug().Str("event_type", eventType).Msg("ignoring provider event type")
		return nil
	}

	ev := parseInviteePayload(payload)
	if ev.EventURI == "" && ev.EventID == "" {
		return apperrors.NewValidationError("provider payload carries no scheduled event reference")
	}

	booking, err := o.bookings.GetByExternalEvent(ctx, ev.EventURI, ev.EventID)
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
			// The ledger marks this delivery failed and redeliveries are
			// duplicates, so the booking needs reconciling by hand.
			o.metrics.RecordProviderFailure(ctx, "unmatched_event")
			logger.Warn().Err(err).
				Str("event_type", eventType).
				Str("event_uri", ev.EventURI).
				Str("event_id", ev.EventID).
				Bool("reconcile", true).
				Msg("provider event matches no booking")
		}
		return err
	}

	in := TransitionInput{Actor: entities.SystemActor()}
	if to == entities.BookingStatusConfirmed {
		in.ExternalRef = mergeExternalRef(booking.ExternalRef, ev)
	} else {
		in.Reason = providerCancelReason(ev.CancelReason)
	}

	updated, err := o.machine.Transition(ctx, booking, to, in)
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeInvalidTransition) {
			logger.Info().
				Str("booking_id", booking.ID).
				Str("status", string(booking.Status)).
				Str("event_type", eventType).
				Msg("provider event does not apply to booking state, ignoring")
			return nil
		}
		return err
	}

	if updated.Status == entities.BookingStatusCancelled {
		o.enqueue(ctx, updated.ID, entities.NotificationCancellation)
	}
	return nil
}

func (o *BookingOrchestrator) enqueue(ctx context.Context, bookingID string, kind entities.NotificationKind) {
	// The job must outlive the request that produced it.
	enqueueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.EnqueueTimeout)
	defer cancel()

	job := &entities.NotificationJob{
		ID:         uuid.NewString(),
		BookingID:  bookingID,
		Kind:       kind,
		EnqueuedAt: o.now().UTC(),
	}
	if err := o.queue.Enqueue(enqueueCtx, job); err != nil {
		observability.ComponentLogger(ctx, "booking_orchestrator").Error().Err(err).
			Str("booking_id", bookingID).
			Str("kind", string(kind)).
			Msg("failed to enqueue notification")
	}
}

func (o *BookingOrchestrator) locationFor(center *entities.Center) *time.Location {
	if center.Timezone != "" {
		if loc, err := time.LoadLocation(center.Timezone); err == nil {
			return loc
		}
	}
	return o.cfg.Location
}

// inviteePayload is what the orchestrator reads from a Calendly invitee payload
type inviteePayload struct {
	InviteeURI    string
	EventURI      string
	EventID       string
	CancelURL     string
	RescheduleURL string
	CancelReason  string
}

func parseInviteePayload(payload []byte) inviteePayload {
	p := gjson.ParseBytes(payload)
	ev := inviteePayload{
		InviteeURI:    p.Get("uri").String(),
		EventURI:      scheduledEventURI(p),
		CancelURL:     p.Get("cancel_url").String(),
		RescheduleURL: p.Get("reschedule_url").String(),
		CancelReason:  p.Get("cancellation.reason").String(),
	}
	if ev.EventURI != "" {
		ev.EventID = path.Base(strings.TrimRight(ev.EventURI, "/"))
	}
	return ev
}

// scheduledEventURI reads the event reference in either the flat ("event":
// "<uri>") or nested ("scheduled_event": {"uri": ...}) payload form.
func scheduledEventURI(p gjson.Result) string {
	if uri := p.Get("scheduled_event.uri").String(); uri != "" {
		return uri
	}
	if ev := p.Get("event"); ev.Type == gjson.String {
		return ev.String()
	}
	return p.Get("event.uri").String()
}

func mergeExternalRef(current *entities.ExternalEventRef, ev inviteePayload) *entities.ExternalEventRef {
	ref := &entities.ExternalEventRef{}
	if current != nil {
		*ref = *current
	}
	if ev.EventURI != "" {
		ref.EventURI = ev.EventURI
		ref.EventID = ev.EventID
	}
	if ev.CancelURL != "" {
		ref.CancelURL = ev.CancelURL
	}
	if ev.RescheduleURL != "" {
		ref.RescheduleURL = ev.RescheduleURL
	}
	return ref
}

func providerCancelReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return defaultProviderCancelReason
	}
	if len([]rune(reason)) < entities.MinCancellationReasonLength {
		return defaultProviderCancelReason + ": " + reason
	}
	return reason
}

func asValidation(err error, field, message string) error {
	if apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
		return apperrors.NewValidationError(message).WithDetail(field, "not_found")
	}
	return err
}
