package services_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/adapters/providers/scheduling"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/adapters/queue"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/application/services"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/entities"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/providers"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/repositories"
	apperrors "github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/pkg/errors"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/pkg/retry"
)

const (
	testUserID    = "7d0f3c3e-8a4b-4c1e-9f2a-1b2c3d4e5f60"
	testCenterID  = "c0a80101-0000-4000-8000-000000000001"
	testServiceID = "5e1f2a3b-4c5d-4e6f-8a7b-9c0d1e2f3a4b"
	otherCenterID = "c0a80101-0000-4000-8000-000000000002"
	webhookSecret = "whsec-test"
)

// Fake booking store with the same conditional-update semantics as the SQL adapter.
type memBookingRepo struct {
	mu         sync.Mutex
	byID       map[string]*entities.Booking
	createErrs []error
	claimCalls int
}

func newMemBookingRepo() *memBookingRepo {
	return &memBookingRepo{byID: make(map[string]*entities.Booking)}
}

func (r *memBookingRepo) Create(ctx context.Context, b *entities.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.createErrs) > 0 {
		err := r.createErrs[0]
		r.createErrs = r.createErrs[1:]
		return err
	}
	for _, existing := range r.byID {
		if existing.BookingNumber == b.BookingNumber {
			return apperrors.NewConflictError("booking number already exists", nil)
		}
	}
	r.byID[b.ID] = b.Clone()
	return nil
}

func (r *memBookingRepo) GetByID(ctx context.Context, id string) (*entities.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byID[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("booking with id " + id + " not found")
	}
	return b.Clone(), nil
}

func (r *memBookingRepo) GetByExternalEvent(ctx context.Context, eventURI, eventID string) (*entities.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.byID {
		if b.ExternalRef == nil {
			continue
		}
		if (eventURI != "" && b.ExternalRef.EventURI == eventURI) || (eventID != "" && b.ExternalRef.EventID == eventID) {
			return b.Clone(), nil
		}
	}
	return nil, apperrors.NewNotFoundError("booking for external event not found")
}

func (r *memBookingRepo) ListByUser(ctx context.Context, userID string, filter repositories.BookingFilter) ([]*entities.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Booking
	for _, b := range r.byID {
		if b.UserID == userID && (filter.Status == "" || b.Status == filter.Status) {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.After(out[j].ScheduledAt) })
	return out, nil
}

func (r *memBookingRepo) ApplyTransition(ctx context.Context, b *entities.Booking, from entities.BookingStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byID[b.ID]
	if !ok || stored.Status != from {
		return false, nil
	}
	next := b.Clone()
	stored.Status = next.Status
	stored.ExternalRef = next.ExternalRef
	stored.CancelledAt = next.CancelledAt
	stored.CancellationReason = next.CancellationReason
	stored.UpdatedAt = next.UpdatedAt
	return true, nil
}

func (r *memBookingRepo) SetExternalRef(ctx context.Context, id string, ref *entities.ExternalEventRef) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byID[id]
	if !ok || stored.ExternalRef != nil {
		return false, nil
	}
	c := *ref
	stored.ExternalRef = &c
	return true, nil
}

func (r *memBookingRepo) StampConfirmationSent(ctx context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byID[id]
	if !ok || stored.ConfirmationSentAt != nil {
		return false, nil
	}
	stored.ConfirmationSentAt = &at
	return true, nil
}

func (r *memBookingRepo) FindReminderCandidates(ctx context.Context, w repositories.ReminderWindow) ([]*entities.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Booking
	for _, b := range r.byID {
		if b.Status == entities.BookingStatusConfirmed && b.ReminderSentAt == nil && w.Contains(b.ScheduledAt) {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (r *memBookingRepo) ClaimReminder(ctx context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.claimCalls++
	stored, ok := r.byID[id]
	if !ok || stored.ReminderSentAt != nil || stored.Status != entities.BookingStatusConfirmed {
		return false, nil
	}
	stored.ReminderSentAt = &at
	return true, nil
}

func (r *memBookingRepo) FindCompletionCandidates(ctx context.Context, cutoff time.Time, limit int) ([]*entities.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Booking
	for _, b := range r.byID {
		if b.Status == entities.BookingStatusConfirmed && b.ScheduledAt.Before(cutoff) {
			out = append(out, b.Clone())
		}
	}
	return out, nil
}

func (r *memBookingRepo) put(b *entities.Booking) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[b.ID] = b.Clone()
}

func (r *memBookingRepo) get(t *testing.T, id string) *entities.Booking {
	t.Helper()
	b, err := r.GetByID(context.Background(), id)
	require.NoError(t, err)
	return b
}

type memDirectory struct {
	users    map[string]*entities.User
	centers  map[string]*entities.Center
	services map[string]*entities.Service
}

func newMemDirectory() *memDirectory {
	phone := "+6591234567"
	return &memDirectory{
		users: map[string]*entities.User{
			testUserID: {ID: testUserID, Name: "Tan Mei Ling", Email: "meiling@example.com", Phone: &phone, Locale: "en"},
		},
		centers: map[string]*entities.Center{
			testCenterID: {
				ID:       testCenterID,
				Name:     "Sunrise Day Care",
				Address:  "10 Bishan Street 13, Singapore 579795",
				Phone:    "+6561234567",
				Timezone: "Asia/Singapore",
			},
			otherCenterID: {ID: otherCenterID, Name: "Harbour Day Care", Timezone: "Asia/Singapore"},
		},
		services: map[string]*entities.Service{
			testServiceID: {ID: testServiceID, CenterID: testCenterID, Name: "Facility tour", DurationMinutes: 45},
		},
	}
}

func (d *memDirectory) GetUser(ctx context.Context, id string) (*entities.User, error) {
	if u, ok := d.users[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, apperrors.NewNotFoundError("user with id " + id + " not found")
}

func (d *memDirectory) GetCenter(ctx context.Context, id string) (*entities.Center, error) {
	if c, ok := d.centers[id]; ok {
		cc := *c
		return &cc, nil
	}
	return nil, apperrors.NewNotFoundError("center with id " + id + " not found")
}

func (d *memDirectory) GetService(ctx context.Context, id string) (*entities.Service, error) {
	if s, ok := d.services[id]; ok {
		c := *s
		return &c, nil
	}
	return nil, apperrors.NewNotFoundError("service with id " + id + " not found")
}

type memAuditRepo struct {
	mu      sync.Mutex
	entries []*entities.AuditLogEntry
	err     error
}

func (r *memAuditRepo) Append(ctx context.Context, entry *entities.AuditLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, entry)
	return nil
}

func (r *memAuditRepo) ListBySubject(ctx context.Context, subjectType, subjectID string) ([]*entities.AuditLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.AuditLogEntry
	for _, e := range r.entries {
		if e.SubjectType == subjectType && e.SubjectID == subjectID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memAuditRepo) actions(subjectID string) []entities.AuditAction {
	entries, _ := r.ListBySubject(context.Background(), entities.AuditSubjectBooking, subjectID)
	out := make([]entities.AuditAction, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Action)
	}
	return out
}

type memLedger struct {
	mu        sync.Mutex
	events    map[string]*entities.WebhookEvent
	recordErr error
}

func newMemLedger() *memLedger {
	return &memLedger{events: make(map[string]*entities.WebhookEvent)}
}

func (l *memLedger) Record(ctx context.Context, ev *entities.WebhookEvent) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.recordErr != nil {
		return false, l.recordErr
	}
	if _, ok := l.events[ev.ProviderEventURI]; ok {
		return false, nil
	}
	c := *ev
	l.events[ev.ProviderEventURI] = &c
	return true, nil
}

func (l *memLedger) MarkProcessed(ctx context.Context, key string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ev, ok := l.events[key]; ok {
		ev.ProcessedAt = &at
		ev.ErrorMessage = nil
	}
	return nil
}

func (l *memLedger) MarkFailed(ctx context.Context, key, message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ev, ok := l.events[key]; ok {
		ev.ErrorMessage = &message
	}
	return nil
}

func (l *memLedger) PurgeProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for k, ev := range l.events {
		if ev.ProcessedAt != nil && ev.ReceivedAt.Before(cutoff) {
			delete(l.events, k)
			n++
		}
	}
	return n, nil
}

func (l *memLedger) get(key string) *entities.WebhookEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[key]
}

type recordingGateway struct {
	mu       sync.Mutex
	sent     []*entities.Message
	failures map[entities.NotificationChannel]error
}

func (g *recordingGateway) Send(ctx context.Context, msg *entities.Message) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failures[msg.Channel]; err != nil {
		return err
	}
	g.sent = append(g.sent, msg)
	return nil
}

func (g *recordingGateway) messages(kind entities.NotificationKind, channel entities.NotificationChannel) []*entities.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*entities.Message
	for _, m := range g.sent {
		if m.Kind == kind && m.Channel == channel {
			out = append(out, m)
		}
	}
	return out
}

type MockScheduleProvider struct {
	mock.Mock
}

func (m *MockScheduleProvider) CreateEvent(ctx context.Context, center *entities.Center, service *entities.Service, invitee *entities.User, slot entities.Slot) (*entities.ExternalEventRef, error) {
	args := m.Called(ctx, center, service, invitee, slot)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.ExternalEventRef), args.Error(1)
}

func (m *MockScheduleProvider) CancelEvent(ctx context.Context, ref *entities.ExternalEventRef, reason string) error {
	args := m.Called(ctx, ref, reason)
	return args.Error(0)
}

func (m *MockScheduleProvider) VerifySignature(raw []byte, header string) bool {
	return scheduling.VerifyHMACSignature(webhookSecret, raw, header)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type harness struct {
	clock        *testClock
	bookings     *memBookingRepo
	directory    *memDirectory
	audit        *memAuditRepo
	ledger       *memLedger
	gateway      *recordingGateway
	queue        *queue.MemoryQueue
	recorder     *services.AuditRecorder
	machine      *services.BookingStateMachine
	dispatcher   *services.NotificationDispatcher
	orchestrator *services.BookingOrchestrator
	ingestor     *services.WebhookIngestor
	sweeper      *services.ReminderSweeper
}

// newHarness wires the services over in-memory fakes. The clock starts at
// 2025-05-20 08:00 UTC.
func newHarness(t *testing.T, provider providers.ScheduleProvider) *harness {
	t.Helper()

	h := &harness{
		clock:     &testClock{now: time.Date(2025, 5, 20, 8, 0, 0, 0, time.UTC)},
		bookings:  newMemBookingRepo(),
		directory: newMemDirectory(),
		audit:     &memAuditRepo{},
		ledger:    newMemLedger(),
		gateway:   &recordingGateway{failures: map[entities.NotificationChannel]error{}},
		queue:     queue.NewMemoryQueue(64),
	}
	t.Cleanup(func() { h.queue.Close() })

	loc, err := time.LoadLocation("Asia/Singapore")
	require.NoError(t, err)

	h.recorder = services.NewAuditRecorder(h.audit)
	h.recorder.SetClock(h.clock.Now)
	h.recorder.SetRetryConfig(retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1})

	h.machine = services.NewBookingStateMachine(h.bookings, h.recorder, nil)
	h.machine.SetClock(h.clock.Now)

	h.dispatcher = services.NewNotificationDispatcher(h.bookings, h.directory, h.gateway, time.Second, loc, nil)
	h.dispatcher.SetClock(h.clock.Now)

	h.orchestrator = services.NewBookingOrchestrator(
		h.bookings, h.directory, provider, h.queue, h.machine, h.recorder, h.dispatcher, nil,
		services.OrchestratorConfig{Location: loc, EnqueueTimeout: time.Second},
	)
	h.orchestrator.SetClock(h.clock.Now)

	h.ingestor = services.NewWebhookIngestor(provider, h.ledger, h.orchestrator, nil)
	h.ingestor.SetClock(h.clock.Now)

	h.sweeper = services.NewReminderSweeper(h.bookings, h.orchestrator, services.ReminderSweeperConfig{Lookahead: 24 * time.Hour}, nil)
	h.sweeper.SetClock(h.clock.Now)

	return h
}

// drain dispatches every queued notification job
func (h *harness) drain(t *testing.T) {
	t.Helper()
	for h.queue.Len() > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		job, err := h.queue.Dequeue(ctx)
		cancel()
		require.NoError(t, err)
		h.dispatcher.DispatchByID(context.Background(), job.BookingID, job.Kind)
	}
}

func (h *harness) createInput() services.CreateBookingInput {
	return services.CreateBookingInput{
		UserID:      testUserID,
		CenterID:    testCenterID,
		BookingDate: "2025-06-01",
		BookingTime: "10:00",
		Actor:       entities.UserActor(testUserID, "203.0.113.7", "test"),
	}
}

func confirmedBooking(id string, scheduledAt time.Time) *entities.Booking {
	return &entities.Booking{
		ID:            id,
		BookingNumber: entities.NewBookingNumber(),
		UserID:        testUserID,
		CenterID:      testCenterID,
		BookingDate:   time.Date(scheduledAt.Year(), scheduledAt.Month(), scheduledAt.Day(), 0, 0, 0, 0, time.UTC),
		BookingTime:   scheduledAt.Format(entities.BookingTimeLayout),
		ScheduledAt:   scheduledAt,
		Status:        entities.BookingStatusConfirmed,
		ExternalRef: &entities.ExternalEventRef{
			EventID:  "evt-" + id,
			EventURI: "https://api.calendly.com/scheduled_events/evt-" + id,
		},
	}
}

var errBoom = errors.New("boom")
