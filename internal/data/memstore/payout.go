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

type payoutRepo struct{ handle }

func (r *payoutRepo) Create(_ context.Context, payout *entity.Payout) error {
	defer r.lock()()

	d := r.data()
	if _, ok := d.accounts[payout.CompanyID]; !ok {
		return fmt.Errorf("create payout %s: unknown company %s", payout.ChargeID, payout.CompanyID)
	}
	for _, p := range d.payouts {
		if p.ChargeID == payout.ChargeID {
			return fmt.Errorf("create payout %s: duplicate charge id", payout.ChargeID)
		}
	}
	d.payouts[payout.ID] = copyPayout(payout)
	return nil
}

func (r *payoutRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Payout, error) {
	defer r.lock()()

	p, ok := r.data().payouts[id]
	if !ok {
		return nil, nil
	}
	return copyPayout(p), nil
}

func (r *payoutRepo) LockByID(ctx context.Context, id uuid.UUID) (*entity.Payout, error) {
	return r.FindByID(ctx, id)
}

func (r *payoutRepo) LockByReference(_ context.Context, reference string) (*entity.Payout, error) {
	defer r.lock()()

	for _, p := range r.data().payouts {
		if p.ChargeID == reference || (p.GatewayRef != nil && *p.GatewayRef == reference) {
			return copyPayout(p), nil
		}
	}
	return nil, nil
}

func (r *payoutRepo) byCompany(companyID uuid.UUID) []*entity.Payout {
	var out []*entity.Payout
	for _, p := range r.data().payouts {
		if p.CompanyID == companyID {
			out = append(out, copyPayout(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	return out
}

func (r *payoutRepo) FindByCompany(_ context.Context, companyID uuid.UUID, limit, offset int) ([]*entity.Payout, error) {
	defer r.lock()()

	return page(r.byCompany(companyID), limit, offset), nil
}

func (r *payoutRepo) CountByCompany(_ context.Context, companyID uuid.UUID) (int64, error) {
	defer r.lock()()

	return int64(len(r.byCompany(companyID))), nil
}

func (r *payoutRepo) Transition(_ context.Context, id uuid.UUID, from, to entity.PayoutStatus, reason *string, at time.Time) error {
	if !from.CanTransitionTo(to) {
		return &domain.InvalidStateTransitionError{
			Entity: "payout", ID: id.String(), Current: string(from), Expected: "a status that allows " + string(to),
		}
	}

	defer r.lock()()

	p, ok := r.data().payouts[id]
	if !ok {
		return domain.ErrPayoutNotFound
	}
	if p.Status != from {
		return &domain.InvalidStateTransitionError{
			Entity: "payout", ID: id.String(), Current: string(p.Status), Expected: string(from),
		}
	}

	p.Status = to
	p.UpdatedAt = at
	if reason != nil {
		p.Reason = reason
	}
	if to == entity.PayoutStatusProcessing {
		p.ProcessedAt = &at
	}
	if to.IsTerminal() {
		p.ResolvedAt = &at
	}
	return nil
}

func (r *payoutRepo) SetGatewayRef(_ context.Context, id uuid.UUID, ref string, at time.Time) error {
	defer r.lock()()

	if p, ok := r.data().payouts[id]; ok {
		p.GatewayRef = &ref
		p.UpdatedAt = at
	}
	return nil
}
