package routes

import (
	"net/http"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/api/handlers"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/api/middleware"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	bookingHandler         *handlers.BookingHandler
	calendlyWebhookHandler *handlers.CalendlyWebhookHandler

	allowedOrigins []string
	metrics        *observability.Metrics
}

// NewRouter creates a new router
func NewRouter(
	bookingHandler *handlers.BookingHandler,
	calendlyWebhookHandler *handlers.CalendlyWebhookHandler,
	allowedOrigins []string,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:                    http.NewServeMux(),
		bookingHandler:         bookingHandler,
		calendlyWebhookHandler: calendlyWebhookHandler,
		allowedOrigins:         allowedOrigins,
		metrics:                metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	r.mux.HandleFunc("GET /health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Booking endpoints
	r.mux.HandleFunc("POST /api/bookings", r.bookingHandler.CreateBooking)
	r.mux.HandleFunc("GET /api/bookings/{id}", r.bookingHandler.GetBooking)
	r.mux.HandleFunc("POST /api/bookings/{id}/cancel", r.bookingHandler.CancelBooking)
	r.mux.HandleFunc("POST /api/bookings/{id}/complete", r.bookingHandler.CompleteBooking)
	r.mux.HandleFunc("POST /api/bookings/{id}/no-show", r.bookingHandler.MarkNoShow)
	r.mux.HandleFunc("GET /api/users/{id}/bookings", r.bookingHandler.ListUserBookings)

	if r.calendlyWebhookHandler != nil {
		r.mux.HandleFunc("POST /webhooks/calendly", r.calendlyWebhookHandler.HandleWebhook)
	}

	// Last wrap runs first.
	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)
	handler = middleware.CORSMiddleware(r.allowedOrigins)(handler)

	return handler
}
