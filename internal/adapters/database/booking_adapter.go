package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/lib/pq"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/entities"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/repositories"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/infrastructure/clients/postgres"
	apperrors "github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/pkg/errors"
)

const bookingsTable = "bookings"

const pqUniqueViolation = "23505"

var bookingColumns = []interface{}{
	"id", "booking_number", "user_id", "center_id", "service_id",
	"booking_date", "booking_time", "scheduled_at", "status",
	"external_event_id", "external_event_uri", "external_cancel_url", "external_reschedule_url",
	"notes", "confirmation_sent_at", "reminder_sent_at", "cancelled_at", "cancellation_reason",
	"created_at", "updated_at",
}

type bookingRow struct {
	ID                    string         `db:"id"`
	BookingNumber         string         `db:"booking_number"`
	UserID                string         `db:"user_id"`
	CenterID              string         `db:"center_id"`
	ServiceID             sql.NullString `db:"service_id"`
	BookingDate           time.Time      `db:"booking_date"`
	BookingTime           string         `db:"booking_time"`
	ScheduledAt           time.Time      `db:"scheduled_at"`
	Status                string         `db:"status"`
	ExternalEventID       sql.NullString `db:"external_event_id"`
	ExternalEventURI      sql.NullString `db:"external_event_uri"`
	ExternalCancelURL     sql.NullString `db:"external_cancel_url"`
	ExternalRescheduleURL sql.NullString `db:"external_reschedule_url"`
	Notes                 sql.NullString `db:"notes"`
	ConfirmationSentAt    sql.NullTime   `db:"confirmation_sent_at"`
	ReminderSentAt        sql.NullTime   `db:"reminder_sent_at"`
	CancelledAt           sql.NullTime   `db:"cancelled_at"`
	CancellationReason    sql.NullString `db:"cancellation_reason"`
	CreatedAt             time.Time      `db:"created_at"`
	UpdatedAt             time.Time      `db:"updated_at"`
}

func (r *bookingRow) toEntity() *entities.Booking {
	b := &entities.Booking{
		ID:                 r.ID,
		BookingNumber:      r.BookingNumber,
		UserID:             r.UserID,
		CenterID:           r.CenterID,
		ServiceID:          nullStringPtr(r.ServiceID),
		BookingDate:        r.BookingDate,
		BookingTime:        r.BookingTime,
		ScheduledAt:        r.ScheduledAt,
		Status:             entities.BookingStatus(r.Status),
		Notes:              r.Notes.String,
		ConfirmationSentAt: nullTimePtr(r.ConfirmationSentAt),
		ReminderSentAt:     nullTimePtr(r.ReminderSentAt),
		CancelledAt:        nullTimePtr(r.CancelledAt),
		CancellationReason: nullStringPtr(r.CancellationReason),
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
	if r.ExternalEventURI.Valid || r.ExternalEventID.Valid {
		b.ExternalRef = &entities.ExternalEventRef{
			EventID:       r.ExternalEventID.String,
			EventURI:      r.ExternalEventURI.String,
			CancelURL:     r.ExternalCancelURL.String,
			RescheduleURL: r.ExternalRescheduleURL.String,
		}
	}
	return b
}

// BookingAdapter implements the BookingRepository interface
type BookingAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewBookingAdapter creates a new booking adapter
func NewBookingAdapter(client *postgres.Client) repositories.BookingRepository {
	return &BookingAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Create inserts a new booking
func (a *BookingAdapter) Create(ctx context.Context, booking *entities.Booking) error {
	record := goqu.Record{
		"id":                   booking.ID,
		"booking_number":       booking.BookingNumber,
		"user_id":              booking.UserID,
		"center_id":            booking.CenterID,
		"service_id":           stringPtrValue(booking.ServiceID),
		"booking_date":         booking.BookingDate.Format(entities.BookingDateLayout),
		"booking_time":         booking.BookingTime,
		"scheduled_at":         booking.ScheduledAt,
		"status":               string(booking.Status),
		"notes":                booking.Notes,
		"confirmation_sent_at": timePtrValue(booking.ConfirmationSentAt),
		"reminder_sent_at":     timePtrValue(booking.ReminderSentAt),
		"cancelled_at":         timePtrValue(booking.CancelledAt),
		"cancellation_reason":  stringPtrValue(booking.CancellationReason),
		"created_at":           booking.CreatedAt,
		"updated_at":           booking.UpdatedAt,
	}
	for k, v := range externalRefRecord(booking.ExternalRef) {
		record[k] = v
	}

	query, args, err := a.db.Insert(bookingsTable).Prepared(true).Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewConflictError("booking number already exists", err)
		}
		return apperrors.NewInternalError("failed to create booking", err)
	}

	return nil
}

// GetByID retrieves a booking by ID
func (a *BookingAdapter) GetByID(ctx context.Context, id string) (*entities.Booking, error) {
	query, args, err := a.db.From(bookingsTable).Prepared(true).
		Select(bookingColumns...).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	return a.getOne(ctx, fmt.Sprintf("booking with id %s not found", id), query, args)
}

// GetByExternalEvent finds the booking holding the provider event uri, falling
// back to the provider event id.
func (a *BookingAdapter) GetByExternalEvent(ctx context.Context, eventURI, eventID string) (*entities.Booking, error) {
	var conds []exp.Expression
	if eventURI != "" {
		conds = append(conds, goqu.C("external_event_uri").Eq(eventURI))
	}
	if eventID != "" {
		conds = append(conds, goqu.C("external_event_id").Eq(eventID))
	}
	if len(conds) == 0 {
		return nil, apperrors.NewValidationError("external event uri or id is required")
	}

	query, args, err := a.db.From(bookingsTable).Prepared(true).
		Select(bookingColumns...).
		Where(goqu.Or(conds...)).
		Order(goqu.C("created_at").Desc()).
		Limit(1).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	return a.getOne(ctx, fmt.Sprintf("booking for external event %s not found", firstNonEmpty(eventURI, eventID)), query, args)
}

// ListByUser retrieves bookings for a user, newest slot first
func (a *BookingAdapter) ListByUser(ctx context.Context, userID string, filter repositories.BookingFilter) ([]*entities.Booking, error) {
	ds := a.db.From(bookingsTable).Prepared(true).
		Select(bookingColumns...).
		Where(goqu.Ex{"user_id": userID})

	if filter.Status != "" {
		ds = ds.Where(goqu.Ex{"status": string(filter.Status)})
	}
	if filter.From != nil {
		ds = ds.Where(goqu.C("scheduled_at").Gte(*filter.From))
	}
	if filter.To != nil {
		ds = ds.Where(goqu.C("scheduled_at").Lt(*filter.To))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	ds = ds.Order(goqu.C("scheduled_at").Desc()).Limit(uint(limit))
	if filter.Offset > 0 {
		ds = ds.Offset(uint(filter.Offset))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	return a.getMany(ctx, "failed to list bookings", query, args)
}

// ApplyTransition writes the transitioned booking guarded by its previous status
func (a *BookingAdapter) ApplyTransition(ctx context.Context, booking *entities.Booking, from entities.BookingStatus) (bool, error) {
	record := goqu.Record{
		"status":              string(booking.Status),
		"cancelled_at":        timePtrValue(booking.CancelledAt),
		"cancellation_reason": stringPtrValue(booking.CancellationReason),
		"updated_at":          booking.UpdatedAt,
	}
	if booking.ExternalRef != nil {
		for k, v := range externalRefRecord(booking.ExternalRef) {
			record[k] = v
		}
	}

	query, args, err := a.db.Update(bookingsTable).Prepared(true).
		Set(record).
		Where(goqu.Ex{"id": booking.ID, "status": string(from)}).
		ToSQL()
	if err != nil {
		return false, apperrors.NewInternalError("failed to build update query", err)
	}

	return a.execConditional(ctx, "failed to update booking status", query, args)
}

// SetExternalRef stores the provider reference once
func (a *BookingAdapter) SetExternalRef(ctx context.Context, id string, ref *entities.ExternalEventRef) (bool, error) {
	if ref == nil {
		return false, apperrors.NewValidationError("external reference is required")
	}

	record := externalRefRecord(ref)
	record["updated_at"] = time.Now().UTC()

	query, args, err := a.db.Update(bookingsTable).Prepared(true).
		Set(record).
		Where(goqu.Ex{"id": id, "external_event_uri": nil}).
		ToSQL()
	if err != nil {
		return false, apperrors.NewInternalError("failed to build update query", err)
	}

	return a.execConditional(ctx, "failed to store external reference", query, args)
}

// StampConfirmationSent sets confirmation_sent_at once
func (a *BookingAdapter) StampConfirmationSent(ctx context.Context, id string, at time.Time) (bool, error) {
	query, args, err := a.db.Update(bookingsTable).Prepared(true).
		Set(goqu.Record{"confirmation_sent_at": at, "updated_at": at}).
		Where(goqu.Ex{"id": id, "confirmation_sent_at": nil}).
		ToSQL()
	if err != nil {
		return false, apperrors.NewInternalError("failed to build update query", err)
	}

	return a.execConditional(ctx, "failed to stamp confirmation", query, args)
}

// FindReminderCandidates lists confirmed, unreminded bookings inside the window
func (a *BookingAdapter) FindReminderCandidates(ctx context.Context, window repositories.ReminderWindow) ([]*entities.Booking, error) {
	upper := goqu.C("scheduled_at").Lt(window.To)
	if window.IncludeUpper {
		upper = goqu.C("scheduled_at").Lte(window.To)
	}

	ds := a.db.From(bookingsTable).Prepared(true).
		Select(bookingColumns...).
		Where(
			goqu.Ex{
				"status":           string(entities.BookingStatusConfirmed),
				"reminder_sent_at": nil,
			},
			goqu.C("scheduled_at").Gte(window.From),
			upper,
		).
		Order(goqu.C("scheduled_at").Asc())
	if window.Limit > 0 {
		ds = ds.Limit(uint(window.Limit))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	return a.getMany(ctx, "failed to find reminder candidates", query, args)
}

// ClaimReminder stamps reminder_sent_at on a confirmed booking that has none.
// The caller that updates the row owns the reminder.
func (a *BookingAdapter) ClaimReminder(ctx context.Context, id string, at time.Time) (bool, error) {
	query, args, err := a.db.Update(bookingsTable).Prepared(true).
		Set(goqu.Record{"reminder_sent_at": at, "updated_at": at}).
		Where(goqu.Ex{
			"id":               id,
			"reminder_sent_at": nil,
			"status":           string(entities.BookingStatusConfirmed),
		}).
		ToSQL()
	if err != nil {
		return false, apperrors.NewInternalError("failed to build update query", err)
	}

	return a.execConditional(ctx, "failed to claim reminder", query, args)
}

// FindCompletionCandidates lists confirmed bookings whose slot started before cutoff
func (a *BookingAdapter) FindCompletionCandidates(ctx context.Context, cutoff time.Time, limit int) ([]*entities.Booking, error) {
	ds := a.db.From(bookingsTable).Prepared(true).
		Select(bookingColumns...).
		Where(
			goqu.Ex{"status": string(entities.BookingStatusConfirmed)},
			goqu.C("scheduled_at").Lt(cutoff),
		).
		Order(goqu.C("scheduled_at").Asc())
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	return a.getMany(ctx, "failed to find completion candidates", query, args)
}

func (a *BookingAdapter) getOne(ctx context.Context, notFound, query string, args []interface{}) (*entities.Booking, error) {
	var row bookingRow
	err := a.client.DB().GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(notFound)
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get booking", err)
	}
	return row.toEntity(), nil
}

func (a *BookingAdapter) getMany(ctx context.Context, msg, query string, args []interface{}) ([]*entities.Booking, error) {
	var rows []bookingRow
	if err := a.client.DB().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperrors.NewInternalError(msg, err)
	}

	bookings := make([]*entities.Booking, 0, len(rows))
	for i := range rows {
		bookings = append(bookings, rows[i].toEntity())
	}
	return bookings, nil
}

func (a *BookingAdapter) execConditional(ctx context.Context, msg, query string, args []interface{}) (bool, error) {
	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return false, apperrors.NewConflictError(msg, err)
		}
		return false, apperrors.NewInternalError(msg, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.NewInternalError("failed to read affected rows", err)
	}
	return affected == 1, nil
}

func externalRefRecord(ref *entities.ExternalEventRef) goqu.Record {
	if ref == nil {
		return goqu.Record{
			"external_event_id":       nil,
			"external_event_uri":      nil,
			"external_cancel_url":     nil,
			"external_reschedule_url": nil,
		}
	}
	return goqu.Record{
		"external_event_id":       nullIfEmpty(ref.EventID),
		"external_event_uri":      nullIfEmpty(ref.EventURI),
		"external_cancel_url":     nullIfEmpty(ref.CancelURL),
		"external_reschedule_url": nullIfEmpty(ref.RescheduleURL),
	}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time
	return &v
}

func stringPtrValue(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func timePtrValue(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
