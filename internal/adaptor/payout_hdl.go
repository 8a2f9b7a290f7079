package adaptor

import (
	"io"
	"net/http"

	"bus-booking/internal/dto/request"
	"bus-booking/internal/usecase"
	"bus-booking/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type PayoutHandler struct {
	service usecase.PayoutService
	log     *zap.Logger
}

func NewPayoutHandler(service usecase.PayoutService, log *zap.Logger) *PayoutHandler {
	return &PayoutHandler{
		service: service,
		log:     log.With(zap.String("handler", "payout")),
	}
}

// RequestPayout handles POST /api/payouts (company)
func (h *PayoutHandler) RequestPayout(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req request.CreatePayoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	payout, err := h.service.RequestPayout(r.Context(), actor, &req)
	if err != nil {
		writeError(w, h.log, err, "request payout")
		return
	}

	utils.ResponseCreated(w, "success", payout)
}

// ListPayouts handles GET /api/companies/{id}/payouts
func (h *PayoutHandler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	req := &request.PaginatedRequest{
		Page:    utils.ParseInt(query.Get("page"), 1),
		PerPage: utils.ParseInt(query.Get("per_page"), request.DefaultPerPage),
	}

	payouts, err := h.service.ListPayouts(r.Context(), actor, chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, h.log, err, "list payouts")
		return
	}

	utils.ResponseSuccess(w, "success", payouts)
}

// CancelPayout handles POST /api/payouts/{id}/cancel (company)
func (h *PayoutHandler) CancelPayout(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	payout, err := h.service.CancelPayout(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, err, "cancel payout")
		return
	}

	utils.ResponseSuccess(w, "Payout cancelled", payout)
}

// ==================== ADMIN METHODS ====================

// ProcessPayout handles POST /api/admin/payouts/{id}/process
func (h *PayoutHandler) ProcessPayout(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req request.ProcessPayoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	payout, err := h.service.ProcessPayout(r.Context(), actor, chi.URLParam(r, "id"), &req)
	if err != nil {
		writeError(w, h.log, err, "process payout")
		return
	}

	utils.ResponseSuccess(w, "success", payout)
}

// VerifyPayout handles POST /api/admin/payouts/{id}/verify
func (h *PayoutHandler) VerifyPayout(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.VerifyPayout(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, err, "verify payout")
		return
	}

	utils.ResponseSuccess(w, "success", result)
}

// Webhook handles POST /api/payouts/webhook (gateway)
func (h *PayoutHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	result, err := h.service.HandleWebhook(r.Context(), body, r.Header.Get(HeaderSignature))
	if err != nil {
		writeError(w, h.log, err, "payout webhook")
		return
	}

	utils.ResponseSuccess(w, "success", result)
}
