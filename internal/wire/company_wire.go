package wire

import (
	"bus-booking/internal/adaptor"
	"bus-booking/pkg/middleware"
	"bus-booking/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func wireCompany(
	r chi.Router,
	accountHandler *adaptor.AccountHandler,
	payoutHandler *adaptor.PayoutHandler,
	log *zap.Logger,
) {
	// ==================== COMPANY ROUTES ====================
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(log, utils.RoleCompany))

		r.Get("/api/companies/{id}/account", accountHandler.GetAccount)
		r.Get("/api/companies/{id}/payouts", payoutHandler.ListPayouts)
		r.Post("/api/payouts", payoutHandler.RequestPayout)
		r.Post("/api/payouts/{id}/cancel", payoutHandler.CancelPayout)
	})

	// POST /api/payouts/webhook - signed by the gateway
	r.Post("/api/payouts/webhook", payoutHandler.Webhook)

	// ==================== ADMIN ROUTES ====================
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(log, utils.RoleAdmin))

		r.Put("/api/admin/companies/{id}/status", accountHandler.SetStatus)
		r.Post("/api/admin/payouts/{id}/process", payoutHandler.ProcessPayout)
		r.Post("/api/admin/payouts/{id}/verify", payoutHandler.VerifyPayout)
	})
}
