package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"bus-booking/internal/data/entity"
	"bus-booking/internal/domain"

	"github.com/google/uuid"
)

type transactionRepo struct{ handle }

func (r *transactionRepo) byReference(reference string) *entity.Transaction {
	for _, tx := range r.data().transactions {
		if tx.Reference == reference {
			return tx
		}
	}
	return nil
}

func (r *transactionRepo) insert(tx *entity.Transaction) error {
	d := r.data()
	if _, ok := d.bookings[tx.BookingID]; !ok {
		return fmt.Errorf("insert transaction %s: unknown booking %s", tx.Reference, tx.BookingID)
	}
	d.transactions[tx.ID] = copyTransaction(tx)
	return nil
}

func (r *transactionRepo) Create(_ context.Context, tx *entity.Transaction) error {
	defer r.lock()()

	if r.byReference(tx.Reference) != nil {
		return fmt.Errorf("insert transaction %s: duplicate reference", tx.Reference)
	}
	return r.insert(tx)
}

func (r *transactionRepo) Ensure(_ context.Context, tx *entity.Transaction) error {
	defer r.lock()()

	if r.byReference(tx.Reference) != nil {
		return nil
	}
	return r.insert(tx)
}

func (r *transactionRepo) FindByReference(_ context.Context, reference string) (*entity.Transaction, error) {
	defer r.lock()()

	if tx := r.byReference(reference); tx != nil {
		return copyTransaction(tx), nil
	}
	return nil, nil
}

func (r *transactionRepo) LockByReference(ctx context.Context, reference string) (*entity.Transaction, error) {
	return r.FindByReference(ctx, reference)
}

func (r *transactionRepo) FindByBookingID(_ context.Context, bookingID uuid.UUID) ([]*entity.Transaction, error) {
	defer r.lock()()

	var out []*entity.Transaction
	for _, tx := range r.data().transactions {
		if tx.BookingID == bookingID {
			out = append(out, copyTransaction(tx))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *transactionRepo) MarkTerminal(_ context.Context, id uuid.UUID, status entity.TransactionStatus, gatewayStatus string, at time.Time) error {
	defer r.lock()()

	d := r.data()
	tx, ok := d.transactions[id]
	if !ok || tx.Status != entity.TransactionStatusPending {
		return &domain.InvalidStateTransitionError{
			Entity: "transaction", ID: id.String(), Current: "terminal", Expected: string(entity.TransactionStatusPending),
		}
	}
	if status == entity.TransactionStatusCompleted {
		for _, other := range d.transactions {
			if other.BookingID == tx.BookingID && other.Status == entity.TransactionStatusCompleted {
				return fmt.Errorf("mark transaction %s: booking %s already has a completed transaction", id, tx.BookingID)
			}
		}
	}

	tx.Status = status
	tx.GatewayStatus = &gatewayStatus
	tx.UpdatedAt = at
	return nil
}

func (r *transactionRepo) SetCheckoutURL(_ context.Context, id uuid.UUID, url string, at time.Time) error {
	defer r.lock()()

	if tx, ok := r.data().transactions[id]; ok {
		tx.CheckoutURL = &url
		tx.UpdatedAt = at
	}
	return nil
}
