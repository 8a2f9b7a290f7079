package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"bus-booking/internal/data/entity"
	"bus-booking/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type accountRepo struct{ handle }

func (r *accountRepo) FindByCompanyID(_ context.Context, companyID uuid.UUID) (*entity.CompanyAccount, error) {
	defer r.lock()()

	a, ok := r.data().accounts[companyID]
	if !ok {
		return nil, nil
	}
	return copyAccount(a), nil
}

func (r *accountRepo) open(companyID uuid.UUID, at time.Time) *entity.CompanyAccount {
	d := r.data()
	a, ok := d.accounts[companyID]
	if !ok {
		a = &entity.CompanyAccount{
			CompanyID: companyID,
			Status:    entity.AccountStatusActive,
			CreatedAt: at,
			UpdatedAt: at,
		}
		d.accounts[companyID] = a
	}
	return a
}

func (r *accountRepo) Open(_ context.Context, companyID uuid.UUID, at time.Time) error {
	defer r.lock()()

	r.open(companyID, at)
	return nil
}

func (r *accountRepo) SetStatus(_ context.Context, companyID uuid.UUID, status entity.AccountStatus, at time.Time) error {
	defer r.lock()()

	a, ok := r.data().accounts[companyID]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a.Status = status
	a.UpdatedAt = at
	return nil
}

func (r *accountRepo) appendEntry(entry *entity.LedgerEntry) error {
	d := r.data()
	for _, e := range d.entries {
		if e.Kind == entry.Kind && e.Reference == entry.Reference {
			r.s.log.Error("Duplicate ledger entry refused",
				zap.String("invariant", "one ledger entry per kind and reference"),
				zap.String("kind", string(entry.Kind)),
				zap.String("reference", entry.Reference),
			)
			return fmt.Errorf("%s entry %s: %w", entry.Kind, entry.Reference, domain.ErrInvariantViolation)
		}
	}
	d.entries = append(d.entries, copyEntry(entry))
	return nil
}

func (r *accountRepo) Credit(_ context.Context, entry *entity.LedgerEntry) error {
	defer r.lock()()

	a := r.open(entry.CompanyID, entry.CreatedAt)
	if err := r.appendEntry(entry); err != nil {
		return err
	}
	a.Balance += entry.Amount
	a.UpdatedAt = entry.CreatedAt
	return nil
}

func (r *accountRepo) Debit(_ context.Context, entry *entity.LedgerEntry) error {
	defer r.lock()()

	a, ok := r.data().accounts[entry.CompanyID]
	if !ok {
		return domain.ErrAccountNotFound
	}
	if a.Balance < entry.Amount {
		return domain.ErrInsufficientBalance
	}
	if err := r.appendEntry(entry); err != nil {
		return err
	}
	a.Balance -= entry.Amount
	a.UpdatedAt = entry.CreatedAt
	return nil
}

func (r *accountRepo) Entries(_ context.Context, companyID uuid.UUID, limit, offset int) ([]*entity.LedgerEntry, error) {
	defer r.lock()()

	var out []*entity.LedgerEntry
	for _, e := range r.data().entries {
		if e.CompanyID == companyID {
			out = append(out, copyEntry(e))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}
