package adaptor

import (
	"net/http"

	"bus-booking/internal/dto/request"
	"bus-booking/internal/usecase"
	"bus-booking/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type AccountHandler struct {
	service usecase.LedgerService
	log     *zap.Logger
}

func NewAccountHandler(service usecase.LedgerService, log *zap.Logger) *AccountHandler {
	return &AccountHandler{
		service: service,
		log:     log.With(zap.String("handler", "account")),
	}
}

// GetAccount handles GET /api/companies/{id}/account
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	account, err := h.service.GetAccount(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, err, "get account")
		return
	}

	utils.ResponseSuccess(w, "success", account)
}

// SetStatus handles PUT /api/admin/companies/{id}/status
func (h *AccountHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req request.SetAccountStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	account, err := h.service.SetAccountStatus(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		writeError(w, h.log, err, "set account status")
		return
	}

	utils.ResponseSuccess(w, "success", account)
}
