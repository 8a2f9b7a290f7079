package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bus-booking/internal/data/entity"
	"bus-booking/internal/domain"
	"bus-booking/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// AccountRepository owns company balances. Every balance change writes a
// ledger entry in the same transaction, so balance always equals the sum of
// the company's entries.
type AccountRepository interface {
	FindByCompanyID(ctx context.Context, companyID uuid.UUID) (*entity.CompanyAccount, error)
	Open(ctx context.Context, companyID uuid.UUID, at time.Time) error
	SetStatus(ctx context.Context, companyID uuid.UUID, status entity.AccountStatus, at time.Time) error

	Credit(ctx context.Context, entry *entity.LedgerEntry) error
	Debit(ctx context.Context, entry *entity.LedgerEntry) error
	Entries(ctx context.Context, companyID uuid.UUID, limit, offset int) ([]*entity.LedgerEntry, error)
}

type accountRepository struct {
	db  database.DBTX
	log *zap.Logger
}

func NewAccountRepository(db database.DBTX, log *zap.Logger) AccountRepository {
	return &accountRepository{
		db:  db,
		log: log.With(zap.String("repository", "account")),
	}
}

func (r *accountRepository) FindByCompanyID(ctx context.Context, companyID uuid.UUID) (*entity.CompanyAccount, error) {
	query := `
		SELECT company_id, balance, status, created_at, updated_at
		FROM company_accounts
		WHERE company_id = $1
	`

	var account entity.CompanyAccount
	err := r.db.QueryRow(ctx, query, companyID).Scan(
		&account.CompanyID,
		&account.Balance,
		&account.Status,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find company account",
			zap.Error(err),
			zap.String("company_id", companyID.String()),
		)
		return nil, fmt.Errorf("find account for company %s: %w", companyID.String(), err)
	}

	return &account, nil
}

// Open creates an empty active account if the company has none.
func (r *accountRepository) Open(ctx context.Context, companyID uuid.UUID, at time.Time) error {
	query := `
		INSERT INTO company_accounts (company_id, balance, status, created_at, updated_at)
		VALUES ($1, 0, 'active', $2, $2)
		ON CONFLICT (company_id) DO NOTHING
	`

	if _, err := r.db.Exec(ctx, query, companyID, at); err != nil {
		r.log.Error("Failed to open company account", zap.Error(err), zap.String("company_id", companyID.String()))
		return fmt.Errorf("open account for company %s: %w", companyID.String(), err)
	}
	return nil
}

func (r *accountRepository) SetStatus(ctx context.Context, companyID uuid.UUID, status entity.AccountStatus, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE company_accounts SET status = $2, updated_at = $3 WHERE company_id = $1`,
		companyID, string(status), at)
	if err != nil {
		r.log.Error("Failed to set account status", zap.Error(err), zap.String("company_id", companyID.String()))
		return fmt.Errorf("set status for company %s: %w", companyID.String(), err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// Credit adds entry.Amount to the company balance, opening the account on
// first credit. A second entry with the same kind and reference is refused.
func (r *accountRepository) Credit(ctx context.Context, entry *entity.LedgerEntry) error {
	if err := r.Open(ctx, entry.CompanyID, entry.CreatedAt); err != nil {
		return err
	}
	if err := r.insertEntry(ctx, entry); err != nil {
		return err
	}

	query := `
		UPDATE company_accounts
		SET balance = balance + $2, updated_at = $3
		WHERE company_id = $1
	`

	if _, err := r.db.Exec(ctx, query, entry.CompanyID, entry.Amount, entry.CreatedAt); err != nil {
		r.log.Error("Failed to credit company account",
			zap.Error(err),
			zap.String("company_id", entry.CompanyID.String()),
			zap.Int64("amount", entry.Amount),
		)
		return fmt.Errorf("credit company %s: %w", entry.CompanyID.String(), err)
	}

	return nil
}

// Debit subtracts entry.Amount only if the balance covers it; the check and
// the subtraction are one statement.
func (r *accountRepository) Debit(ctx context.Context, entry *entity.LedgerEntry) error {
	query := `
		UPDATE company_accounts
		SET balance = balance - $2, updated_at = $3
		WHERE company_id = $1 AND balance >= $2
	`

	tag, err := r.db.Exec(ctx, query, entry.CompanyID, entry.Amount, entry.CreatedAt)
	if err != nil {
		r.log.Error("Failed to debit company account",
			zap.Error(err),
			zap.String("company_id", entry.CompanyID.String()),
			zap.Int64("amount", entry.Amount),
		)
		return fmt.Errorf("debit company %s: %w", entry.CompanyID.String(), err)
	}
	if tag.RowsAffected() == 0 {
		account, err := r.FindByCompanyID(ctx, entry.CompanyID)
		if err != nil {
			return err
		}
		if account == nil {
			return domain.ErrAccountNotFound
		}
		return domain.ErrInsufficientBalance
	}

	return r.insertEntry(ctx, entry)
}

func (r *accountRepository) insertEntry(ctx context.Context, entry *entity.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (id, company_id, kind, amount, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (kind, reference) DO NOTHING
	`

	tag, err := r.db.Exec(ctx, query,
		entry.ID,
		entry.CompanyID,
		string(entry.Kind),
		entry.Amount,
		entry.Reference,
		entry.CreatedAt,
	)
	if err != nil {
		r.log.Error("Failed to write ledger entry",
			zap.Error(err),
			zap.String("company_id", entry.CompanyID.String()),
			zap.String("reference", entry.Reference),
		)
		return fmt.Errorf("write ledger entry %s: %w", entry.Reference, err)
	}
	if tag.RowsAffected() == 0 {
		r.log.Error("Duplicate ledger entry refused",
			zap.String("invariant", "one ledger entry per kind and reference"),
			zap.String("company_id", entry.CompanyID.String()),
			zap.String("kind", string(entry.Kind)),
			zap.String("reference", entry.Reference),
		)
		return fmt.Errorf("%s entry %s: %w", entry.Kind, entry.Reference, domain.ErrInvariantViolation)
	}
	return nil
}

func (r *accountRepository) Entries(ctx context.Context, companyID uuid.UUID, limit, offset int) ([]*entity.LedgerEntry, error) {
	query := `
		SELECT id, company_id, kind, amount, reference, created_at
		FROM ledger_entries
		WHERE company_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, companyID, limit, offset)
	if err != nil {
		r.log.Error("Failed to list ledger entries", zap.Error(err), zap.String("company_id", companyID.String()))
		return nil, fmt.Errorf("list ledger entries for company %s: %w", companyID.String(), err)
	}
	defer rows.Close()

	var entries []*entity.LedgerEntry
	for rows.Next() {
		var e entity.LedgerEntry
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.Kind, &e.Amount, &e.Reference, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
