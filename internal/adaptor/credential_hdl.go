package adaptor

import (
	"net/http"

	"bus-booking/internal/dto/request"
	"bus-booking/internal/usecase"
	"bus-booking/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CredentialHandler struct {
	service usecase.CredentialService
	log     *zap.Logger
}

func NewCredentialHandler(service usecase.CredentialService, log *zap.Logger) *CredentialHandler {
	return &CredentialHandler{
		service: service,
		log:     log.With(zap.String("handler", "credential")),
	}
}

// Issue handles POST /api/bookings/{id}/credential (passenger)
func (h *CredentialHandler) Issue(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	credential, err := h.service.Issue(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, err, "issue credential")
		return
	}

	utils.ResponseSuccess(w, "success", credential)
}

// Validate handles POST /api/boarding/validate (conductor)
func (h *CredentialHandler) Validate(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req request.ValidateCredentialRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	boarding, err := h.service.Validate(r.Context(), actor, &req)
	if err != nil {
		writeError(w, h.log, err, "validate credential")
		return
	}

	utils.ResponseSuccess(w, "Boarding confirmed", boarding)
}
