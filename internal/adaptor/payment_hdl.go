package adaptor

import (
	"io"
	"net/http"

	"bus-booking/internal/usecase"
	"bus-booking/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// HeaderSignature carries the HMAC-SHA256 of a webhook body.
const HeaderSignature = "Signature"

// PaymentHandler serves the endpoints the payment gateway calls. None of
// them trust the caller; outcomes are verified or signed.
type PaymentHandler struct {
	service usecase.ReconciliationService
	log     *zap.Logger
}

func NewPaymentHandler(service usecase.ReconciliationService, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		service: service,
		log:     log.With(zap.String("handler", "payment")),
	}
}

// Callback handles GET|POST /api/payments/callback?tx_ref=...
func (h *PaymentHandler) Callback(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.HandleCallback(r.Context(), r.URL.Query().Get("tx_ref"))
	if err != nil {
		writeError(w, h.log, err, "payment callback")
		return
	}

	utils.ResponseSuccess(w, "success", result)
}

// FailedRedirect handles GET /api/payments/failed?tx_ref=...&status=...
func (h *PaymentHandler) FailedRedirect(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	result, err := h.service.HandleFailedRedirect(r.Context(), query.Get("tx_ref"), query.Get("status"))
	if err != nil {
		writeError(w, h.log, err, "payment failed redirect")
		return
	}

	utils.ResponseSuccess(w, "success", result)
}

// Webhook handles POST /api/payments/webhook
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	result, err := h.service.HandleWebhook(r.Context(), body, r.Header.Get(HeaderSignature))
	if err != nil {
		writeError(w, h.log, err, "payment webhook")
		return
	}

	utils.ResponseSuccess(w, "success", result)
}

// Verify handles GET /api/payments/verify/{ref}
func (h *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.VerifyAndReconcile(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, h.log, err, "verify payment")
		return
	}

	utils.ResponseSuccess(w, "success", result)
}
