package usecase

import (
	"context"
	"fmt"
	"time"

	"bus-booking/internal/data/entity"
	"bus-booking/internal/data/repository"
	"bus-booking/internal/domain"
	"bus-booking/internal/dto/request"
	"bus-booking/internal/dto/response"
	"bus-booking/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LedgerService is the single entry point for company balance changes.
// The mutating methods take the repository to write through, so callers
// can fold a ledger movement into their own transaction.
type LedgerService interface {
	NetEarnings(price int64) int64
	Credit(ctx context.Context, repo *repository.Repository, companyID uuid.UUID, amount int64, reference string, at time.Time) error
	Debit(ctx context.Context, repo *repository.Repository, companyID uuid.UUID, amount int64, reference string, at time.Time) error
	RefundCredit(ctx context.Context, repo *repository.Repository, companyID uuid.UUID, amount int64, reference string, at time.Time) error

	GetAccount(ctx context.Context, actor utils.Actor, companyID string) (*response.AccountResponse, error)
	SetAccountStatus(ctx context.Context, companyID string, req *request.SetAccountStatusRequest) (*response.AccountResponse, error)
}

type ledgerService struct {
	repo   *repository.Repository
	config utils.BookingConfig
	deps   Deps
	log    *zap.Logger
}

func NewLedgerService(repo *repository.Repository, config utils.BookingConfig, deps Deps, log *zap.Logger) LedgerService {
	return &ledgerService{
		repo:   repo,
		config: config,
		deps:   deps,
		log:    log.With(zap.String("service", "ledger")),
	}
}

// NetEarnings is what the company keeps from one ticket. A fee above the
// price never drives the balance down.
func (s *ledgerService) NetEarnings(price int64) int64 {
	net := price - s.config.PlatformFee
	if net < 0 {
		s.log.Warn("Platform fee exceeds ticket price",
			zap.Int64("price", price),
			zap.Int64("platform_fee", s.config.PlatformFee),
		)
		return 0
	}
	return net
}

func (s *ledgerService) write(ctx context.Context, repo *repository.Repository, kind entity.LedgerKind, companyID uuid.UUID, amount int64, reference string, at time.Time) error {
	if amount < 0 || (kind == entity.LedgerKindDebit && amount == 0) {
		return domain.ErrInvalidAmount
	}

	entry := &entity.LedgerEntry{
		ID:        uuid.New(),
		CompanyID: companyID,
		Kind:      kind,
		Amount:    amount,
		Reference: reference,
		CreatedAt: at,
	}

	var err error
	if kind == entity.LedgerKindDebit {
		err = repo.Account.Debit(ctx, entry)
	} else {
		err = repo.Account.Credit(ctx, entry)
	}
	if err != nil {
		return fmt.Errorf("%s company %s: %w", kind, companyID.String(), err)
	}

	s.log.Info("Ledger entry written",
		zap.String("kind", string(kind)),
		zap.String("company_id", companyID.String()),
		zap.Int64("amount", amount),
		zap.String("reference", reference),
	)
	return nil
}

func (s *ledgerService) Credit(ctx context.Context, repo *repository.Repository, companyID uuid.UUID, amount int64, reference string, at time.Time) error {
	return s.write(ctx, repo, entity.LedgerKindCredit, companyID, amount, reference, at)
}

func (s *ledgerService) Debit(ctx context.Context, repo *repository.Repository, companyID uuid.UUID, amount int64, reference string, at time.Time) error {
	return s.write(ctx, repo, entity.LedgerKindDebit, companyID, amount, reference, at)
}

func (s *ledgerService) RefundCredit(ctx context.Context, repo *repository.Repository, companyID uuid.UUID, amount int64, reference string, at time.Time) error {
	return s.write(ctx, repo, entity.LedgerKindRefundCredit, companyID, amount, reference, at)
}

func (s *ledgerService) GetAccount(ctx context.Context, actor utils.Actor, companyID string) (*response.AccountResponse, error) {
	id, err := parseID("company_id", companyID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.CompanyID != id {
		return nil, domain.ErrForbidden
	}

	account, err := s.repo.Account.FindByCompanyID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if account == nil {
		return nil, domain.ErrAccountNotFound
	}

	entries, err := s.repo.Account.Entries(ctx, id, 20, 0)
	if err != nil {
		return nil, fmt.Errorf("get ledger entries: %w", err)
	}

	return s.toResponse(account, entries), nil
}

func (s *ledgerService) SetAccountStatus(ctx context.Context, companyID string, req *request.SetAccountStatusRequest) (*response.AccountResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	id, err := parseID("company_id", companyID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Account.SetStatus(ctx, id, entity.AccountStatus(req.Status), s.deps.Clock()); err != nil {
		return nil, fmt.Errorf("set account status: %w", err)
	}
	s.log.Info("Company account status changed",
		zap.String("company_id", companyID),
		zap.String("status", req.Status),
	)

	account, err := s.repo.Account.FindByCompanyID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return s.toResponse(account, nil), nil
}

func (s *ledgerService) toResponse(account *entity.CompanyAccount, entries []*entity.LedgerEntry) *response.AccountResponse {
	resp := &response.AccountResponse{
		CompanyID: account.CompanyID.String(),
		Balance:   account.Balance,
		Currency:  s.config.Currency,
		Status:    account.Status,
		Entries:   make([]response.LedgerEntryResult, len(entries)),
	}
	for i, e := range entries {
		resp.Entries[i] = response.LedgerEntryResult{
			Kind:      e.Kind,
			Amount:    e.Amount,
			Reference: e.Reference,
			CreatedAt: e.CreatedAt,
		}
	}
	return resp
}
