package repository

import (
	"context"

	"bus-booking/pkg/database"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// TxFunc runs fn against a Repository whose members all share one
// transaction. The transaction commits when fn returns nil.
type TxFunc func(ctx context.Context, fn func(tx *Repository) error) error

type Repository struct {
	Schedule    ScheduleRepository
	Booking     BookingRepository
	Transaction TransactionRepository
	Account     AccountRepository
	Payout      PayoutRepository

	withTx TxFunc
}

// New assembles a Repository from any implementation of the member
// interfaces. withTx must give fn a Repository bound to one atomic unit.
func New(
	schedule ScheduleRepository,
	booking BookingRepository,
	transaction TransactionRepository,
	account AccountRepository,
	payout PayoutRepository,
	withTx TxFunc,
) *Repository {
	return &Repository{
		Schedule:    schedule,
		Booking:     booking,
		Transaction: transaction,
		Account:     account,
		Payout:      payout,
		withTx:      withTx,
	}
}

// WithTx runs fn atomically. Calling WithTx on a Repository that is already
// bound to a transaction runs fn in that same transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(tx *Repository) error) error {
	return r.withTx(ctx, fn)
}

func NewRepository(db database.PgxIface, log *zap.Logger) *Repository {
	repo := bind(db, log)
	repo.withTx = func(ctx context.Context, fn func(tx *Repository) error) error {
		return database.WithTx(ctx, db, func(tx pgx.Tx) error {
			txRepo := bind(tx, log)
			txRepo.withTx = func(_ context.Context, nested func(tx *Repository) error) error {
				return nested(txRepo)
			}
			return fn(txRepo)
		})
	}
	return repo
}

func bind(db database.DBTX, log *zap.Logger) *Repository {
	return &Repository{
		Schedule:    NewScheduleRepository(db, log),
		Booking:     NewBookingRepository(db, log),
		Transaction: NewTransactionRepository(db, log),
		Account:     NewAccountRepository(db, log),
		Payout:      NewPayoutRepository(db, log),
	}
}
