package handlers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/application/services"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/entities"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/repositories"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/infrastructure/observability"
)

// UserIDHeader carries the authenticated user id set by the upstream gateway
const UserIDHeader = "X-User-ID"

const maxBookingBodyBytes = 64 << 10

// BookingService defines the booking operations exposed over HTTP
type BookingService interface {
	CreateBooking(ctx context.Context, in services.CreateBookingInput) (*entities.Booking, error)
	GetBooking(ctx context.Context, bookingID string) (*entities.Booking, error)
	CancelBooking(ctx context.Context, bookingID, reason string, actor entities.Actor) (*entities.Booking, error)
	CompleteBooking(ctx context.Context, bookingID string, actor entities.Actor) (*entities.Booking, error)
	MarkNoShow(ctx context.Context, bookingID string, actor entities.Actor) (*entities.Booking, error)
	ListUserBookings(ctx context.Context, userID string, filter repositories.BookingFilter) ([]*entities.Booking, error)
}

// BookingHandler handles booking requests
type BookingHandler struct {
	service BookingService
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(service BookingService) *BookingHandler {
	return &BookingHandler{service: service}
}

type cancelBookingRequest struct {
	Reason string `json:"reason"`
}

// CreateBooking handles POST /api/bookings
func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var in services.CreateBookingInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBookingBodyBytes)).Decode(&in); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if uid := r.Header.Get(UserIDHeader); uid != "" {
		in.UserID = uid
	}
	in.Actor = actorFromRequest(r, in.UserID)

	booking, err := h.service.CreateBooking(r.Context(), in)
	if err != nil {
		h.logFailure(r, err, "create booking failed")
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, booking)
}

// GetBooking handles GET /api/bookings/{id}
func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := h.service.GetBooking(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, booking)
}

// CancelBooking handles POST /api/bookings/{id}/cancel
func (h *BookingHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	var req cancelBookingRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBookingBodyBytes)).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	booking, err := h.service.CancelBooking(r.Context(), r.PathValue("id"), req.Reason,
		actorFromRequest(r, r.Header.Get(UserIDHeader)))
	if err != nil {
		h.logFailure(r, err, "cancel booking failed")
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, booking)
}

// CompleteBooking handles POST /api/bookings/{id}/complete
func (h *BookingHandler) CompleteBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := h.service.CompleteBooking(r.Context(), r.PathValue("id"), actorFromRequest(r, r.Header.Get(UserIDHeader)))
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, booking)
}

// MarkNoShow handles POST /api/bookings/{id}/no-show
func (h *BookingHandler) MarkNoShow(w http.ResponseWriter, r *http.Request) {
	booking, err := h.service.MarkNoShow(r.Context(), r.PathValue("id"), actorFromRequest(r, r.Header.Get(UserIDHeader)))
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, booking)
}

// ListUserBookings handles GET /api/users/{id}/bookings
func (h *BookingHandler) ListUserBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repositories.BookingFilter{
		Status: entities.BookingStatus(q.Get("status")),
		Limit:  50,
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		respondWithError(w, http.StatusBadRequest, "status must be one of pending, confirmed, cancelled, completed, no_show")
		return
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > 200 {
			respondWithError(w, http.StatusBadRequest, "limit must be between 1 and 200")
			return
		}
		filter.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			respondWithError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		filter.Offset = offset
	}

	bookings, err := h.service.ListUserBookings(r.Context(), r.PathValue("id"), filter)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	if bookings == nil {
		bookings = []*entities.Booking{}
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"bookings": bookings,
		"count":    len(bookings),
	})
}

func (h *BookingHandler) logFailure(r *http.Request, err error, msg string) {
	observability.LoggerFromContext(r.Context()).Warn().Err(err).
		Str("path", r.URL.Path).
		Msg(msg)
}

func actorFromRequest(r *http.Request, userID string) entities.Actor {
	ip := clientIP(r)
	if userID == "" {
		return entities.Actor{IPAddress: ip, UserAgent: r.UserAgent()}
	}
	return entities.UserActor(userID, ip, r.UserAgent())
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
