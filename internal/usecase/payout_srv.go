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

type PayoutService interface {
	// Company endpoints
	RequestPayout(ctx context.Context, actor utils.Actor, req *request.CreatePayoutRequest) (*response.PayoutResponse, error)
	ListPayouts(ctx context.Context, actor utils.Actor, companyID string, req *request.PaginatedRequest) (*response.PaginatedResponse[response.PayoutResponse], error)
	CancelPayout(ctx context.Context, actor utils.Actor, payoutID string) (*response.PayoutResponse, error)

	// Admin endpoints
	ProcessPayout(ctx context.Context, actor utils.Actor, payoutID string, req *request.ProcessPayoutRequest) (*response.PayoutResponse, error)
	VerifyPayout(ctx context.Context, payoutID string) (*response.PayoutResolutionResponse, error)

	// Gateway endpoints
	ResolvePayout(ctx context.Context, reference string, status gateway.Status) (*response.PayoutResolutionResponse, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) (*response.PayoutResolutionResponse, error)
}

type payoutService struct {
	repo   *repository.Repository
	ledger LedgerService
	config *utils.Config
	deps   Deps
	log    *zap.Logger
}

func NewPayoutService(repo *repository.Repository, ledger LedgerService, config *utils.Config, deps Deps, log *zap.Logger) PayoutService {
	return &payoutService{
		repo:   repo,
		ledger: ledger,
		config: config,
		deps:   deps,
		log:    log.With(zap.String("service", "payout")),
	}
}

// RequestPayout records a withdrawal request. The balance is only checked
// here; the debit itself happens when an admin approves the payout.
func (s *payoutService) RequestPayout(ctx context.Context, actor utils.Actor, req *request.CreatePayoutRequest) (*response.PayoutResponse, error) {
	if err := validate(req); err != nil {
		s.log.Warn("Payout request validation failed", zap.Error(err))
		return nil, err
	}
	if actor.CompanyID == uuid.Nil {
		return nil, domain.ErrForbidden
	}

	account, err := s.repo.Account.FindByCompanyID(ctx, actor.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	if account == nil {
		return nil, domain.ErrAccountNotFound
	}
	if account.Status != entity.AccountStatusActive {
		return nil, domain.ErrAccountSuspended
	}
	if req.Amount > account.Balance {
		s.log.Info("Payout exceeds balance",
			zap.String("company_id", actor.CompanyID.String()),
			zap.Int64("amount", req.Amount),
			zap.Int64("balance", account.Balance),
		)
		return nil, domain.ErrInsufficientBalance
	}

	plain, err := json.Marshal(entity.PayoutDestination{
		BankUUID:      req.BankUUID,
		AccountName:   req.AccountName,
		AccountNumber: req.AccountNumber,
		MobileNumber:  req.MobileNumber,
		Operator:      req.Operator,
	})
	if err != nil {
		return nil, fmt.Errorf("encode destination: %w", err)
	}
	sealed, err := s.deps.Sealer.Seal(plain)
	if err != nil {
		return nil, fmt.Errorf("seal destination: %w", err)
	}

	now := s.deps.Clock()
	payout := &entity.Payout{
		ID:                uuid.New(),
		CompanyID:         actor.CompanyID,
		Amount:            req.Amount,
		Status:            entity.PayoutStatusPending,
		Method:            entity.PayoutMethod(req.Method),
		ChargeID:          utils.GenerateChargeID(),
		SealedDestination: sealed,
		RequestedAt:       now,
		UpdatedAt:         now,
	}
	if err := s.repo.Payout.Create(ctx, payout); err != nil {
		s.log.Error("Failed to create payout", zap.Error(err), zap.String("company_id", actor.CompanyID.String()))
		return nil, fmt.Errorf("create payout: %w", err)
	}

	s.deps.Events.Publish(newEvent(events.PayoutRequested, payout.ID, now, map[string]any{
		"company_id": payout.CompanyID.String(),
		"amount":     payout.Amount,
		"charge_id":  payout.ChargeID,
	}))
	s.log.Info("Payout requested",
		zap.String("payout_id", payout.ID.String()),
		zap.String("company_id", payout.CompanyID.String()),
		zap.Int64("amount", payout.Amount),
	)

	resp := response.PayoutToResponse(payout)
	return &resp, nil
}

func (s *payoutService) ListPayouts(ctx context.Context, actor utils.Actor, companyID string, req *request.PaginatedRequest) (*response.PaginatedResponse[response.PayoutResponse], error) {
	id, err := parseID("company_id", companyID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.CompanyID != id {
		return nil, domain.ErrForbidden
	}

	limit := req.Limit()
	payouts, err := s.repo.Payout.FindByCompany(ctx, id, limit, req.Offset())
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	total, err := s.repo.Payout.CountByCompany(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("count payouts: %w", err)
	}

	items := make([]response.PayoutResponse, len(payouts))
	for i, p := range payouts {
		items[i] = response.PayoutToResponse(p)
	}

	return response.NewPaginatedResponse(items, req.PageNumber(), limit, total), nil
}

func (s *payoutService) CancelPayout(ctx context.Context, actor utils.Actor, payoutID string) (*response.PayoutResponse, error) {
	id, err := parseID("payout_id", payoutID)
	if err != nil {
		return nil, err
	}

	payout, err := s.repo.Payout.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find payout: %w", err)
	}
	if payout == nil {
		return nil, domain.ErrPayoutNotFound
	}
	if payout.CompanyID != actor.CompanyID && !actor.IsAdmin() {
		return nil, domain.ErrForbidden
	}

	now := s.deps.Clock()
	if err := s.repo.Payout.Transition(ctx, id, entity.PayoutStatusPending, entity.PayoutStatusCancelled, nil, now); err != nil {
		return nil, fmt.Errorf("cancel payout: %w", err)
	}

	s.deps.Events.Publish(newEvent(events.PayoutCancelled, id, now, map[string]any{
		"company_id": payout.CompanyID.String(),
		"charge_id":  payout.ChargeID,
	}))
	s.log.Info("Payout cancelled", zap.String("payout_id", payoutID))

	return s.reload(ctx, id)
}

// ProcessPayout approves or rejects a pending payout. Approval debits the
// balance before the transfer is sent; a transfer the gateway refuses is
// credited back straight away.
func (s *payoutService) ProcessPayout(ctx context.Context, actor utils.Actor, payoutID string, req *request.ProcessPayoutRequest) (*response.PayoutResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	id, err := parseID("payout_id", payoutID)
	if err != nil {
		return nil, err
	}

	if req.Action == "reject" {
		return s.reject(ctx, actor, id, req.Reason)
	}
	return s.approve(ctx, actor, id)
}

func (s *payoutService) reject(ctx context.Context, actor utils.Actor, id uuid.UUID, reason string) (*response.PayoutResponse, error) {
	payout, err := s.repo.Payout.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find payout: %w", err)
	}
	if payout == nil {
		return nil, domain.ErrPayoutNotFound
	}

	now := s.deps.Clock()
	if err := s.repo.Payout.Transition(ctx, id, entity.PayoutStatusPending, entity.PayoutStatusRejected, &reason, now); err != nil {
		return nil, fmt.Errorf("reject payout: %w", err)
	}

	s.deps.Events.Publish(newEvent(events.PayoutRejected, id, now, map[string]any{
		"company_id": payout.CompanyID.String(),
		"reason":     reason,
	}))
	s.log.Info("Payout rejected",
		zap.String("payout_id", id.String()),
		zap.String("admin_id", actor.ID.String()),
	)
	return s.reload(ctx, id)
}

func (s *payoutService) approve(ctx context.Context, actor utils.Actor, id uuid.UUID) (*response.PayoutResponse, error) {
	payout, err := s.repo.Payout.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find payout: %w", err)
	}
	if payout == nil {
		return nil, domain.ErrPayoutNotFound
	}

	// Open the destination before anything changes, so a bad box never
	// leaves a debited payout behind.
	destination, err := s.openDestination(payout)
	if err != nil {
		return nil, err
	}

	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		now := s.deps.Clock()
		if _, err := tx.Payout.LockByID(ctx, id); err != nil {
			return err
		}
		if err := tx.Payout.Transition(ctx, id, entity.PayoutStatusPending, entity.PayoutStatusProcessing, nil, now); err != nil {
			return err
		}

		account, err := tx.Account.FindByCompanyID(ctx, payout.CompanyID)
		if err != nil {
			return err
		}
		if account == nil {
			return domain.ErrAccountNotFound
		}
		if account.Status != entity.AccountStatusActive {
			return domain.ErrAccountSuspended
		}
		return s.ledger.Debit(ctx, tx, payout.CompanyID, payout.Amount, payout.ChargeID, now)
	})
	if err != nil {
		s.log.Warn("Payout approval refused", zap.Error(err), zap.String("payout_id", id.String()))
		return nil, fmt.Errorf("approve payout: %w", err)
	}

	refID, err := s.deps.Payouts.InitiatePayout(ctx, gateway.PayoutRequest{
		Amount:      payout.Amount,
		ChargeID:    payout.ChargeID,
		Method:      payout.Method,
		Destination: *destination,
	})
	if err != nil {
		s.log.Warn("Payout transfer failed, crediting balance back",
			zap.Error(err),
			zap.String("payout_id", id.String()),
		)
		s.failTransfer(ctx, payout, err)
		return nil, gatewayError(err)
	}

	now := s.deps.Clock()
	if err := s.repo.Payout.SetGatewayRef(ctx, id, refID, now); err != nil {
		// the webhook can still match on the charge id
		s.log.Error("Failed to store payout reference", zap.Error(err), zap.String("payout_id", id.String()))
	}

	s.deps.Events.Publish(newEvent(events.PayoutProcessing, id, now, map[string]any{
		"company_id":  payout.CompanyID.String(),
		"amount":      payout.Amount,
		"charge_id":   payout.ChargeID,
		"gateway_ref": refID,
	}))
	s.log.Info("Payout approved",
		zap.String("payout_id", id.String()),
		zap.String("admin_id", actor.ID.String()),
		zap.String("gateway_ref", refID),
	)
	return s.reload(ctx, id)
}

func (s *payoutService) failTransfer(ctx context.Context, payout *entity.Payout, cause error) {
	reason := cause.Error()
	err := s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		now := s.deps.Clock()
		if err := tx.Payout.Transition(ctx, payout.ID, entity.PayoutStatusProcessing, entity.PayoutStatusFailed, &reason, now); err != nil {
			return err
		}
		return s.ledger.RefundCredit(ctx, tx, payout.CompanyID, payout.Amount, payout.ChargeID, now)
	})
	if err != nil {
		// the payout stays processing; a webhook or manual verify resolves it
		s.log.Error("Failed to roll back payout", zap.Error(err), zap.String("payout_id", payout.ID.String()))
		return
	}

	s.deps.Events.Publish(newEvent(events.PayoutFailed, payout.ID, s.deps.Clock(), map[string]any{
		"company_id": payout.CompanyID.String(),
		"charge_id":  payout.ChargeID,
		"reason":     reason,
	}))
}

func (s *payoutService) openDestination(payout *entity.Payout) (*entity.PayoutDestination, error) {
	plain, err := s.deps.Sealer.Open(payout.SealedDestination)
	if err != nil {
		s.log.Error("Failed to open payout destination", zap.Error(err), zap.String("payout_id", payout.ID.String()))
		return nil, fmt.Errorf("open destination: %w", err)
	}

	var destination entity.PayoutDestination
	if err := json.Unmarshal(plain, &destination); err != nil {
		return nil, fmt.Errorf("decode destination: %w", err)
	}
	return &destination, nil
}

// ResolvePayout applies the final gateway outcome of a transfer. Only a
// processing payout moves; anything else is reported as already applied.
func (s *payoutService) ResolvePayout(ctx context.Context, reference string, status gateway.Status) (*response.PayoutResolutionResponse, error) {
	var (
		resp   *response.PayoutResolutionResponse
		evType events.Type
		payout *entity.Payout
	)

	err := s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		evType = ""
		now := s.deps.Clock()

		var err error
		payout, err = tx.Payout.LockByReference(ctx, reference)
		if err != nil {
			return err
		}
		if payout == nil {
			return domain.ErrPayoutNotFound
		}

		resp = &response.PayoutResolutionResponse{
			PayoutID: payout.ID.String(),
			ChargeID: payout.ChargeID,
			Status:   payout.Status,
		}
		switch {
		case payout.Status != entity.PayoutStatusProcessing:
			resp.Result = string(ResultAlreadyApplied)
			return nil
		case status == gateway.StatusPending:
			resp.Result = string(ResultPending)
			return nil
		}

		var next entity.PayoutStatus
		switch status {
		case gateway.StatusSuccess:
			next, evType = entity.PayoutStatusCompleted, events.PayoutCompleted
		case gateway.StatusCancelled:
			next, evType = entity.PayoutStatusCancelled, events.PayoutCancelled
		default:
			next, evType = entity.PayoutStatusFailed, events.PayoutFailed
		}

		var reason *string
		if next != entity.PayoutStatusCompleted {
			r := "gateway reported " + string(status)
			reason = &r
		}
		if err := tx.Payout.Transition(ctx, payout.ID, entity.PayoutStatusProcessing, next, reason, now); err != nil {
			return err
		}
		if next != entity.PayoutStatusCompleted {
			if err := s.ledger.RefundCredit(ctx, tx, payout.CompanyID, payout.Amount, payout.ChargeID, now); err != nil {
				return err
			}
		}

		resp.Result = string(ResultApplied)
		resp.Status = next
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrPayoutNotFound) {
			s.log.Error("Payout resolution failed", zap.Error(err), zap.String("reference", reference))
		}
		return nil, err
	}

	if evType != "" {
		s.deps.Events.Publish(newEvent(evType, payout.ID, s.deps.Clock(), map[string]any{
			"company_id": payout.CompanyID.String(),
			"charge_id":  payout.ChargeID,
			"amount":     payout.Amount,
		}))
	}
	s.log.Info("Payout resolved",
		zap.String("reference", reference),
		zap.String("reported", string(status)),
		zap.String("result", resp.Result),
		zap.String("status", string(resp.Status)),
	)
	return resp, nil
}

func (s *payoutService) HandleWebhook(ctx context.Context, body []byte, signature string) (*response.PayoutResolutionResponse, error) {
	if !utils.VerifySignature(s.config.Gateway.WebhookSecret, body, signature) {
		s.log.Warn("Payout webhook signature rejected")
		return nil, domain.ErrInvalidSignature
	}

	var req request.PayoutWebhookRequest
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

	reference := req.RefID
	if reference == "" {
		reference = req.ChargeID
	}
	return s.ResolvePayout(ctx, reference, status)
}

// VerifyPayout asks the gateway for the state of a sent transfer.
func (s *payoutService) VerifyPayout(ctx context.Context, payoutID string) (*response.PayoutResolutionResponse, error) {
	id, err := parseID("payout_id", payoutID)
	if err != nil {
		return nil, err
	}

	payout, err := s.repo.Payout.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find payout: %w", err)
	}
	if payout == nil {
		return nil, domain.ErrPayoutNotFound
	}
	if payout.GatewayRef == nil {
		return nil, fmt.Errorf("%w: payout %s was never sent", domain.ErrInvalidReference, payoutID)
	}

	status, err := s.deps.Payouts.VerifyPayout(ctx, *payout.GatewayRef)
	if err != nil {
		return nil, gatewayError(err)
	}
	return s.ResolvePayout(ctx, *payout.GatewayRef, status)
}

func (s *payoutService) reload(ctx context.Context, id uuid.UUID) (*response.PayoutResponse, error) {
	payout, err := s.repo.Payout.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload payout: %w", err)
	}
	if payout == nil {
		return nil, domain.ErrPayoutNotFound
	}
	resp := response.PayoutToResponse(payout)
	return &resp, nil
}
