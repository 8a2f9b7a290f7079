package wire

import (
	"bus-booking/internal/adaptor"
	"bus-booking/pkg/middleware"
	"bus-booking/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func wireSchedule(r chi.Router, scheduleHandler *adaptor.ScheduleHandler, log *zap.Logger) {
	// ==================== PUBLIC ROUTES ====================
	// GET /api/schedules/{id} - seats left and fare
	r.Get("/api/schedules/{id}", scheduleHandler.GetSchedule)

	// ==================== ADMIN ROUTES ====================
	r.Route("/api/admin/schedules", func(r chi.Router) {
		r.Use(middleware.RequireRole(log, utils.RoleAdmin))

		r.Post("/", scheduleHandler.CreateSchedule)            // POST /api/admin/schedules
		r.Post("/{id}/cancel", scheduleHandler.CancelSchedule) // POST /api/admin/schedules/{id}/cancel
	})
}
