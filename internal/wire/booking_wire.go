package wire

import (
	"bus-booking/internal/adaptor"
	"bus-booking/pkg/middleware"
	"bus-booking/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func wireBooking(
	r chi.Router,
	bookingHandler *adaptor.BookingHandler,
	credentialHandler *adaptor.CredentialHandler,
	log *zap.Logger,
) {
	passenger := middleware.RequireRole(log, utils.RolePassenger)

	// ==================== PASSENGER ROUTES ====================
	r.Route("/api/bookings", func(r chi.Router) {
		r.With(passenger).Post("/", bookingHandler.CreateBooking)            // POST /api/bookings
		r.With(passenger).Get("/", bookingHandler.GetMyBookings)             // GET /api/bookings
		r.With(passenger).Post("/{id}/cancel", bookingHandler.CancelBooking) // POST /api/bookings/{id}/cancel
		r.With(passenger).Post("/{id}/credential", credentialHandler.Issue)  // POST /api/bookings/{id}/credential

		// company staff may look up bookings on their own trips
		r.With(middleware.RequireRole(log, utils.RolePassenger, utils.RoleCompany)).
			Get("/{id}", bookingHandler.GetBooking)
	})

	// ==================== CONDUCTOR ROUTES ====================
	r.With(middleware.RequireRole(log, utils.RoleConductor)).
		Post("/api/boarding/validate", credentialHandler.Validate)
}
