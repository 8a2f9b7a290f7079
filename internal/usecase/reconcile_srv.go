package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"bus-booking/internal/data/entity"
	"bus-booking/internal/data/repository"
	"bus-booking/internal/domain"
	"bus-booking/internal/dto/request"
	"bus-booking/internal/dto/response"
	"bus-booking/internal/events"
	"bus-booking/internal/gateway"
	"bus-booking/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReconcileResult says what a gateway signal did. It is not an error:
// a duplicate delivery is a normal outcome.
type ReconcileResult string

const (
	ResultApplied        ReconcileResult = "applied"
	ResultAlreadyApplied ReconcileResult = "already_applied"
	ResultPending        ReconcileResult = "pending"
	// ResultRefundRequired: the gateway took money for a booking that had
	// already left pending. The payment is recorded and flagged for refund.
	ResultRefundRequired ReconcileResult = "refund_required"
)

// Signal sources, used for logging only.
const (
	SourceCallback = "callback"
	SourceRedirect = "failed_redirect"
	SourceWebhook  = "webhook"
	SourcePoll     = "poll"
	SourceSweep    = "sweep"
)

type ReconcileOutcome struct {
	Result        ReconcileResult
	Reference     string
	BookingID     uuid.UUID
	BookingStatus entity.BookingStatus
}

type ReconciliationService interface {
	Reconcile(ctx context.Context, reference string, reported gateway.Status, source string) (*ReconcileOutcome, error)

	// Gateway-facing entry points
	HandleCallback(ctx context.Context, reference string) (*response.ReconcileResponse, error)
	HandleFailedRedirect(ctx context.Context, reference, rawStatus string) (*response.ReconcileResponse, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) (*response.ReconcileResponse, error)
	VerifyAndReconcile(ctx context.Context, reference string) (*response.VerifyPaymentResponse, error)
}

type reconciliationService struct {
	repo   *repository.Repository
	ledger LedgerService
	config *utils.Config
	deps   Deps
	log    *zap.Logger
}

func NewReconciliationService(repo *repository.Repository, ledger LedgerService, config *utils.Config, deps Deps, log *zap.Logger) ReconciliationService {
	return &reconciliationService{
		repo:   repo,
		ledger: ledger,
		config: config,
		deps:   deps,
		log:    log.With(zap.String("service", "reconciliation")),
	}
}

// Reconcile applies one gateway outcome to the booking behind reference.
// The transaction row is created or locked first; once it is terminal every
// later signal for the same reference is answered with AlreadyApplied.
func (s *reconciliationService) Reconcile(ctx context.Context, reference string, reported gateway.Status, source string) (*ReconcileOutcome, error) {
	bookingID, err := utils.ParseTxRef(reference)
	if err != nil {
		s.log.Warn("Unparseable payment reference", zap.String("reference", reference), zap.String("source", source))
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidReference, reference)
	}

	outcome := &ReconcileOutcome{Reference: reference, BookingID: bookingID}
	var evs []events.Event

	if !reported.IsTerminal() {
		booking, err := s.repo.Booking.FindByID(ctx, bookingID)
		if err != nil {
			return nil, fmt.Errorf("find booking: %w", err)
		}
		if booking == nil {
			return nil, domain.ErrBookingNotFound
		}
		outcome.Result = ResultPending
		outcome.BookingStatus = booking.Status
		return outcome, nil
	}

	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		evs = nil
		now := s.deps.Clock()

		booking, err := tx.Booking.FindByID(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking == nil {
			return domain.ErrBookingNotFound
		}
		if booking.TxRef == nil || *booking.TxRef != reference {
			return fmt.Errorf("%w: %q does not belong to booking %s", domain.ErrInvalidReference, reference, bookingID)
		}

		schedule, err := tx.Schedule.FindByID(ctx, booking.ScheduleID)
		if err != nil {
			return err
		}
		if schedule == nil {
			return domain.ErrScheduleNotFound
		}

		err = tx.Transaction.Ensure(ctx, &entity.Transaction{
			Base:      entity.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
			BookingID: bookingID,
			Reference: reference,
			Amount:    schedule.Price,
			Method:    entity.PaymentMethodPayChangu,
			Status:    entity.TransactionStatusPending,
		})
		if err != nil {
			return err
		}
		transaction, err := tx.Transaction.LockByReference(ctx, reference)
		if err != nil {
			return err
		}
		if transaction == nil {
			return domain.ErrTransactionNotFound
		}

		outcome.BookingStatus = booking.Status
		if transaction.IsTerminal() {
			outcome.Result = ResultAlreadyApplied
			if reported == gateway.StatusSuccess && transaction.Status == entity.TransactionStatusFailed {
				// money arrived after the booking was given up
				s.log.Warn("Payment succeeded after it was recorded as failed",
					zap.String("booking_id", booking.ID.String()),
					zap.String("reference", reference),
				)
				evs = append(evs, newEvent(events.PaymentRefundRequired, booking.ID, now, map[string]any{
					"tx_ref":         reference,
					"amount":         transaction.Amount,
					"booking_status": string(booking.Status),
				}))
			}
			return nil
		}

		if reported == gateway.StatusSuccess {
			return s.applySuccess(ctx, tx, booking, schedule, transaction, outcome, &evs)
		}
		return s.applyFailure(ctx, tx, booking, transaction, reported, outcome, &evs)
	})
	if err != nil {
		if errors.Is(err, domain.ErrBookingNotFound) || errors.Is(err, domain.ErrInvalidReference) {
			s.log.Warn("Reconciliation refused", zap.Error(err), zap.String("reference", reference), zap.String("source", source))
		} else {
			s.log.Error("Reconciliation failed", zap.Error(err), zap.String("reference", reference), zap.String("source", source))
		}
		return nil, err
	}

	publish(s.deps.Events, evs)

	s.log.Info("Payment reconciled",
		zap.String("reference", reference),
		zap.String("reported", string(reported)),
		zap.String("source", source),
		zap.String("result", string(outcome.Result)),
		zap.String("booking_status", string(outcome.BookingStatus)),
	)
	return outcome, nil
}

func (s *reconciliationService) applySuccess(
	ctx context.Context,
	tx *repository.Repository,
	booking *entity.Booking,
	schedule *entity.Schedule,
	transaction *entity.Transaction,
	outcome *ReconcileOutcome,
	evs *[]events.Event,
) error {
	now := s.deps.Clock()

	if err := tx.Transaction.MarkTerminal(ctx, transaction.ID, entity.TransactionStatusCompleted, string(gateway.StatusSuccess), now); err != nil {
		return err
	}

	if booking.Status != entity.BookingStatusPending {
		s.log.Warn("Payment succeeded for a booking that is no longer pending",
			zap.String("booking_id", booking.ID.String()),
			zap.String("booking_status", string(booking.Status)),
			zap.String("reference", transaction.Reference),
		)
		outcome.Result = ResultRefundRequired
		*evs = append(*evs, newEvent(events.PaymentRefundRequired, booking.ID, now, map[string]any{
			"tx_ref":         transaction.Reference,
			"amount":         transaction.Amount,
			"booking_status": string(booking.Status),
		}))
		return nil
	}

	if err := tx.Booking.Transition(ctx, booking.ID, entity.BookingStatusPending, entity.BookingStatusConfirmed, now); err != nil {
		return err
	}

	net := s.ledger.NetEarnings(schedule.Price)
	if err := s.ledger.Credit(ctx, tx, schedule.CompanyID, net, transaction.Reference, now); err != nil {
		return err
	}

	outcome.Result = ResultApplied
	outcome.BookingStatus = entity.BookingStatusConfirmed
	*evs = append(*evs, newEvent(events.BookingConfirmed, booking.ID, now, map[string]any{
		"tx_ref":      transaction.Reference,
		"schedule_id": schedule.ID.String(),
		"company_id":  schedule.CompanyID.String(),
		"amount":      schedule.Price,
		"net":         net,
	}))
	return nil
}

func (s *reconciliationService) applyFailure(
	ctx context.Context,
	tx *repository.Repository,
	booking *entity.Booking,
	transaction *entity.Transaction,
	reported gateway.Status,
	outcome *ReconcileOutcome,
	evs *[]events.Event,
) error {
	now := s.deps.Clock()

	if err := tx.Transaction.MarkTerminal(ctx, transaction.ID, entity.TransactionStatusFailed, string(reported), now); err != nil {
		return err
	}
	outcome.Result = ResultApplied

	// a booking cancelled with its schedule already gave its seat back
	if booking.Status != entity.BookingStatusPending {
		return nil
	}

	if err := tx.Booking.Transition(ctx, booking.ID, entity.BookingStatusPending, entity.BookingStatusPaymentFailed, now); err != nil {
		return err
	}
	if err := tx.Schedule.Release(ctx, booking.ScheduleID); err != nil {
		return err
	}

	outcome.BookingStatus = entity.BookingStatusPaymentFailed
	*evs = append(*evs, newEvent(events.BookingPaymentFailed, booking.ID, now, map[string]any{
		"tx_ref": transaction.Reference,
		"status": string(reported),
	}))
	return nil
}

// HandleCallback handles the success redirect. The query string is not
// trusted; the outcome is re-read from the gateway.
func (s *reconciliationService) HandleCallback(ctx context.Context, reference string) (*response.ReconcileResponse, error) {
	if reference == "" {
		return nil, fmt.Errorf("%w: tx_ref is required", domain.ErrInvalidReference)
	}

	status, err := s.deps.Payments.VerifyPayment(ctx, reference)
	if err != nil {
		s.log.Warn("Payment verification failed", zap.Error(err), zap.String("reference", reference))
		return nil, gatewayError(err)
	}

	outcome, err := s.Reconcile(ctx, reference, status, SourceCallback)
	if err != nil {
		return nil, err
	}
	return outcomeToResponse(outcome), nil
}

// HandleFailedRedirect handles the return URL the gateway sends the payer to
// when checkout is abandoned. The gateway has the final word: a payment it
// reports as successful is still confirmed.
func (s *reconciliationService) HandleFailedRedirect(ctx context.Context, reference, rawStatus string) (*response.ReconcileResponse, error) {
	if reference == "" {
		return nil, fmt.Errorf("%w: tx_ref is required", domain.ErrInvalidReference)
	}

	reported := gateway.StatusFailed
	if rawStatus != "" {
		if parsed, err := gateway.ParseStatus(rawStatus); err == nil && parsed.IsTerminal() {
			reported = parsed
		}
	}

	status, err := s.deps.Payments.VerifyPayment(ctx, reference)
	if err != nil {
		s.log.Warn("Payment verification failed", zap.Error(err), zap.String("reference", reference))
		return nil, gatewayError(err)
	}
	if status == gateway.StatusPending {
		status = reported
	}

	outcome, err := s.Reconcile(ctx, reference, status, SourceRedirect)
	if err != nil {
		return nil, err
	}
	return outcomeToResponse(outcome), nil
}

// HandleWebhook verifies the HMAC signature of the raw body before any
// state is touched.
func (s *reconciliationService) HandleWebhook(ctx context.Context, body []byte, signature string) (*response.ReconcileResponse, error) {
	if !utils.VerifySignature(s.config.Gateway.WebhookSecret, body, signature) {
		s.log.Warn("Payment webhook signature rejected")
		return nil, domain.ErrInvalidSignature
	}

	var req request.PaymentWebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, &domain.ValidationError{Msg: "invalid webhook body"}
	}
	if err := validate(&req); err != nil {
		return nil, err
	}

	status, err := gateway.ParseStatus(req.Status)
	if err != nil {
		return nil, &domain.ValidationError{Field: "status", Msg: err.Error()}
	}

	outcome, err := s.Reconcile(ctx, req.TxRef, status, SourceWebhook)
	if err != nil {
		return nil, err
	}
	return outcomeToResponse(outcome), nil
}

// VerifyAndReconcile polls the gateway for reference and applies whatever it
// reports.
func (s *reconciliationService) VerifyAndReconcile(ctx context.Context, reference string) (*response.VerifyPaymentResponse, error) {
	status, err := s.deps.Payments.VerifyPayment(ctx, reference)
	if err != nil {
		return nil, gatewayError(err)
	}

	outcome, err := s.Reconcile(ctx, reference, status, SourcePoll)
	if err != nil {
		return nil, err
	}
	return &response.VerifyPaymentResponse{
		Reference:     reference,
		GatewayStatus: string(status),
		Result:        string(outcome.Result),
	}, nil
}

func outcomeToResponse(o *ReconcileOutcome) *response.ReconcileResponse {
	return &response.ReconcileResponse{
		Reference: o.Reference,
		BookingID: o.BookingID.String(),
		Result:    string(o.Result),
		Status:    string(o.BookingStatus),
	}
}

func gatewayError(err error) error {
	if errors.Is(err, domain.ErrGatewayUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrGatewayUnavailable, err)
}
