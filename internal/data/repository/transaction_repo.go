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

type TransactionRepository interface {
	Create(ctx context.Context, tx *entity.Transaction) error
	// Ensure inserts tx unless a row with the same reference already exists.
	Ensure(ctx context.Context, tx *entity.Transaction) error
	FindByReference(ctx context.Context, reference string) (*entity.Transaction, error)
	LockByReference(ctx context.Context, reference string) (*entity.Transaction, error)
	FindByBookingID(ctx context.Context, bookingID uuid.UUID) ([]*entity.Transaction, error)
	MarkTerminal(ctx context.Context, id uuid.UUID, status entity.TransactionStatus, gatewayStatus string, at time.Time) error
	SetCheckoutURL(ctx context.Context, id uuid.UUID, url string, at time.Time) error
}

type transactionRepository struct {
	db  database.DBTX
	log *zap.Logger
}

func NewTransactionRepository(db database.DBTX, log *zap.Logger) TransactionRepository {
	return &transactionRepository{
		db:  db,
		log: log.With(zap.String("repository", "transaction")),
	}
}

const transactionColumns = `id, booking_id, reference, amount, method, status, gateway_status, checkout_url,
		       created_at, updated_at`

func scanTransaction(row pgx.Row) (*entity.Transaction, error) {
	var t entity.Transaction
	err := row.Scan(
		&t.ID,
		&t.BookingID,
		&t.Reference,
		&t.Amount,
		&t.Method,
		&t.Status,
		&t.GatewayStatus,
		&t.CheckoutURL,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *transactionRepository) insert(ctx context.Context, query string, tx *entity.Transaction) error {
	_, err := r.db.Exec(ctx, query,
		tx.ID,
		tx.BookingID,
		tx.Reference,
		tx.Amount,
		tx.Method,
		string(tx.Status),
		tx.CreatedAt,
		tx.UpdatedAt,
	)
	if err != nil {
		r.log.Error("Failed to insert transaction",
			zap.Error(err),
			zap.String("reference", tx.Reference),
			zap.String("booking_id", tx.BookingID.String()),
		)
		return fmt.Errorf("insert transaction %s: %w", tx.Reference, err)
	}
	return nil
}

func (r *transactionRepository) Create(ctx context.Context, tx *entity.Transaction) error {
	return r.insert(ctx, `
		INSERT INTO transactions (id, booking_id, reference, amount, method, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, tx)
}

func (r *transactionRepository) Ensure(ctx context.Context, tx *entity.Transaction) error {
	return r.insert(ctx, `
		INSERT INTO transactions (id, booking_id, reference, amount, method, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (reference) DO NOTHING
	`, tx)
}

func (r *transactionRepository) FindByReference(ctx context.Context, reference string) (*entity.Transaction, error) {
	return r.findOne(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE reference = $1`, reference)
}

// LockByReference reads the row with FOR UPDATE. Must run inside WithTx.
func (r *transactionRepository) LockByReference(ctx context.Context, reference string) (*entity.Transaction, error) {
	return r.findOne(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE reference = $1 FOR UPDATE`, reference)
}

func (r *transactionRepository) findOne(ctx context.Context, query, reference string) (*entity.Transaction, error) {
	tx, err := scanTransaction(r.db.QueryRow(ctx, query, reference))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find transaction by reference",
			zap.Error(err),
			zap.String("reference", reference),
		)
		return nil, fmt.Errorf("find transaction %s: %w", reference, err)
	}
	return tx, nil
}

func (r *transactionRepository) FindByBookingID(ctx context.Context, bookingID uuid.UUID) ([]*entity.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE booking_id = $1 ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, bookingID)
	if err != nil {
		r.log.Error("Failed to find transactions by booking", zap.Error(err), zap.String("booking_id", bookingID.String()))
		return nil, fmt.Errorf("find transactions for booking %s: %w", bookingID.String(), err)
	}
	defer rows.Close()

	var txs []*entity.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// MarkTerminal moves a pending transaction to completed or failed. A
// transaction that is already terminal is never rewritten.
func (r *transactionRepository) MarkTerminal(ctx context.Context, id uuid.UUID, status entity.TransactionStatus, gatewayStatus string, at time.Time) error {
	query := `
		UPDATE transactions
		SET status = $2, gateway_status = $3, updated_at = $4
		WHERE id = $1 AND status = 'pending'
	`

	tag, err := r.db.Exec(ctx, query, id, string(status), gatewayStatus, at)
	if err != nil {
		r.log.Error("Failed to mark transaction",
			zap.Error(err),
			zap.String("transaction_id", id.String()),
			zap.String("status", string(status)),
		)
		return fmt.Errorf("mark transaction %s %s: %w", id.String(), status, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.InvalidStateTransitionError{
			Entity: "transaction", ID: id.String(), Current: "terminal", Expected: string(entity.TransactionStatusPending),
		}
	}
	return nil
}

func (r *transactionRepository) SetCheckoutURL(ctx context.Context, id uuid.UUID, url string, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE transactions SET checkout_url = $2, updated_at = $3 WHERE id = $1`, id, url, at)
	if err != nil {
		r.log.Error("Failed to store checkout URL", zap.Error(err), zap.String("transaction_id", id.String()))
		return fmt.Errorf("store checkout url for transaction %s: %w", id.String(), err)
	}
	return nil
}
