package wire

import (
	"bus-booking/internal/adaptor"

	"github.com/go-chi/chi/v5"
)

// wirePayment mounts the gateway-facing routes. They carry no actor; the
// handlers verify with the gateway or check the webhook signature.
func wirePayment(r chi.Router, paymentHandler *adaptor.PaymentHandler) {
	r.Route("/api/payments", func(r chi.Router) {
		r.Get("/callback", paymentHandler.Callback)
		r.Post("/callback", paymentHandler.Callback)
		r.Get("/failed", paymentHandler.FailedRedirect)
		r.Post("/webhook", paymentHandler.Webhook)
		r.Get("/verify/{ref}", paymentHandler.Verify)
	})
}
