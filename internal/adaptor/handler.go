package adaptor

import (
	"encoding/json"
	"errors"
	"net/http"

	"bus-booking/internal/domain"
	"bus-booking/internal/usecase"
	"bus-booking/pkg/utils"

	"go.uber.org/zap"
)

type Handler struct {
	Schedule   *ScheduleHandler
	Booking    *BookingHandler
	Payment    *PaymentHandler
	Credential *CredentialHandler
	Account    *AccountHandler
	Payout     *PayoutHandler
}

func NewHandler(service *usecase.Service, log *zap.Logger) *Handler {
	return &Handler{
		Schedule:   NewScheduleHandler(service.Schedule, log),
		Booking:    NewBookingHandler(service.Booking, log),
		Payment:    NewPaymentHandler(service.Reconcile, log),
		Credential: NewCredentialHandler(service.Credential, log),
		Account:    NewAccountHandler(service.Ledger, log),
		Payout:     NewPayoutHandler(service.Payout, log),
	}
}

// maxBodyBytes caps JSON and webhook bodies.
const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return false
	}
	return true
}

func actorFrom(w http.ResponseWriter, r *http.Request) (utils.Actor, bool) {
	actor, ok := utils.GetActorFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
	}
	return actor, ok
}

// writeError maps engine errors onto HTTP statuses. Callers expecting a
// retry get 502 with the retryable flag set.
func writeError(w http.ResponseWriter, log *zap.Logger, err error, operation string) {
	var (
		validationErr *domain.ValidationError
		stateErr      *domain.InvalidStateTransitionError
		credentialErr *domain.CredentialInvalidError
	)

	switch {
	case errors.As(err, &validationErr):
		log.Warn(operation+" validation failed", zap.Error(err))
		utils.ResponseBadRequest(w, validationErr.Error(), nil)

	case errors.Is(err, domain.ErrInvalidReference), errors.Is(err, domain.ErrUnknownStatus):
		log.Warn(operation+" failed - bad reference", zap.Error(err))
		utils.ResponseBadRequest(w, err.Error(), nil)

	case errors.Is(err, domain.ErrInvalidSignature):
		log.Warn(operation+" failed - signature rejected")
		utils.ResponseUnauthorized(w, "Invalid signature")

	case errors.Is(err, domain.ErrForbidden):
		log.Warn(operation+" failed - forbidden", zap.Error(err))
		utils.ResponseForbidden(w, "Access denied")

	case domain.IsNotFound(err):
		log.Info(operation+" failed - not found", zap.Error(err))
		utils.ResponseNotFound(w, err.Error())

	case errors.As(err, &stateErr):
		log.Info(operation+" failed - invalid state", zap.Error(err))
		utils.ResponseConflict(w, stateErr.Error(), map[string]string{
			"current_state":  stateErr.Current,
			"expected_state": stateErr.Expected,
		})

	case errors.As(err, &credentialErr):
		utils.ResponseUnprocessable(w, "Credential invalid", map[string]string{"reason": credentialErr.Reason})

	case errors.Is(err, domain.ErrNoSeatsAvailable),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrScheduleCancelled),
		errors.Is(err, domain.ErrScheduleDeparted),
		errors.Is(err, domain.ErrCancellationWindowClosed),
		errors.Is(err, domain.ErrAccountSuspended),
		errors.Is(err, domain.ErrInvalidAmount):
		log.Info(operation+" refused", zap.Error(err))
		utils.ResponseConflict(w, err.Error(), nil)

	case domain.IsRetryable(err):
		log.Warn(operation+" failed - gateway unavailable", zap.Error(err))
		utils.ResponseBadGateway(w, "Payment gateway unavailable, please retry")

	default:
		log.Error("Failed to "+operation, zap.Error(err))
		utils.ResponseInternalError(w, "Internal server error")
	}
}
