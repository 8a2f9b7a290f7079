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

type PayoutRepository interface {
	Create(ctx context.Context, payout *entity.Payout) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Payout, error)
	LockByID(ctx context.Context, id uuid.UUID) (*entity.Payout, error)
	// LockByReference matches either the charge id or the gateway ref id.
	LockByReference(ctx context.Context, reference string) (*entity.Payout, error)
	FindByCompany(ctx context.Context, companyID uuid.UUID, limit, offset int) ([]*entity.Payout, error)
	CountByCompany(ctx context.Context, companyID uuid.UUID) (int64, error)

	Transition(ctx context.Context, id uuid.UUID, from, to entity.PayoutStatus, reason *string, at time.Time) error
	SetGatewayRef(ctx context.Context, id uuid.UUID, ref string, at time.Time) error
}

type payoutRepository struct {
	db  database.DBTX
	log *zap.Logger
}

func NewPayoutRepository(db database.DBTX, log *zap.Logger) PayoutRepository {
	return &payoutRepository{
		db:  db,
		log: log.With(zap.String("repository", "payout")),
	}
}

const payoutColumns = `id, company_id, amount, status, method, charge_id, gateway_ref, sealed_destination,
		       reason, requested_at, processed_at, resolved_at, updated_at`

func scanPayout(row pgx.Row) (*entity.Payout, error) {
	var p entity.Payout
	err := row.Scan(
		&p.ID,
		&p.CompanyID,
		&p.Amount,
		&p.Status,
		&p.Method,
		&p.ChargeID,
		&p.GatewayRef,
		&p.SealedDestination,
		&p.Reason,
		&p.RequestedAt,
		&p.ProcessedAt,
		&p.ResolvedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *payoutRepository) Create(ctx context.Context, payout *entity.Payout) error {
	query := `
		INSERT INTO payouts (id, company_id, amount, status, method, charge_id, sealed_destination,
		                     requested_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Exec(ctx, query,
		payout.ID,
		payout.CompanyID,
		payout.Amount,
		string(payout.Status),
		string(payout.Method),
		payout.ChargeID,
		payout.SealedDestination,
		payout.RequestedAt,
		payout.UpdatedAt,
	)
	if err != nil {
		r.log.Error("Failed to create payout",
			zap.Error(err),
			zap.String("company_id", payout.CompanyID.String()),
			zap.String("charge_id", payout.ChargeID),
		)
		return fmt.Errorf("create payout %s: %w", payout.ChargeID, err)
	}

	return nil
}

func (r *payoutRepository) findOne(ctx context.Context, query string, arg any) (*entity.Payout, error) {
	payout, err := scanPayout(r.db.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find payout", zap.Error(err), zap.Any("key", arg))
		return nil, fmt.Errorf("find payout %v: %w", arg, err)
	}
	return payout, nil
}

func (r *payoutRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Payout, error) {
	return r.findOne(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE id = $1`, id)
}

func (r *payoutRepository) LockByID(ctx context.Context, id uuid.UUID) (*entity.Payout, error) {
	return r.findOne(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE id = $1 FOR UPDATE`, id)
}

func (r *payoutRepository) LockByReference(ctx context.Context, reference string) (*entity.Payout, error) {
	return r.findOne(ctx,
		`SELECT `+payoutColumns+` FROM payouts WHERE charge_id = $1 OR gateway_ref = $1 FOR UPDATE`,
		reference)
}

func (r *payoutRepository) FindByCompany(ctx context.Context, companyID uuid.UUID, limit, offset int) ([]*entity.Payout, error) {
	query := `
		SELECT ` + payoutColumns + `
		FROM payouts
		WHERE company_id = $1
		ORDER BY requested_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, companyID, limit, offset)
	if err != nil {
		r.log.Error("Failed to list payouts", zap.Error(err), zap.String("company_id", companyID.String()))
		return nil, fmt.Errorf("list payouts for company %s: %w", companyID.String(), err)
	}
	defer rows.Close()

	var payouts []*entity.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payout: %w", err)
		}
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}

func (r *payoutRepository) CountByCompany(ctx context.Context, companyID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM payouts WHERE company_id = $1`, companyID).Scan(&count); err != nil {
		r.log.Error("Failed to count payouts", zap.Error(err), zap.String("company_id", companyID.String()))
		return 0, fmt.Errorf("count payouts for company %s: %w", companyID.String(), err)
	}
	return count, nil
}

// Transition is conditional on the current status, like the booking one.
// processed_at is stamped when the payout enters processing and
// resolved_at when it reaches a terminal status.
func (r *payoutRepository) Transition(ctx context.Context, id uuid.UUID, from, to entity.PayoutStatus, reason *string, at time.Time) error {
	if !from.CanTransitionTo(to) {
		return &domain.InvalidStateTransitionError{
			Entity: "payout", ID: id.String(), Current: string(from), Expected: "a status that allows " + string(to),
		}
	}

	query := `
		UPDATE payouts
		SET status = $3,
		    reason = COALESCE($4, reason),
		    processed_at = CASE WHEN $3 = 'processing' THEN $5 ELSE processed_at END,
		    resolved_at = CASE WHEN $3 IN ('completed', 'failed', 'cancelled', 'rejected') THEN $5 ELSE resolved_at END,
		    updated_at = $5
		WHERE id = $1 AND status = $2
	`

	tag, err := r.db.Exec(ctx, query, id, string(from), string(to), reason, at)
	if err != nil {
		r.log.Error("Failed to transition payout",
			zap.Error(err),
			zap.String("payout_id", id.String()),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
		)
		return fmt.Errorf("transition payout %s: %w", id.String(), err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	current, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return domain.ErrPayoutNotFound
	}
	return &domain.InvalidStateTransitionError{
		Entity: "payout", ID: id.String(), Current: string(current.Status), Expected: string(from),
	}
}

func (r *payoutRepository) SetGatewayRef(ctx context.Context, id uuid.UUID, ref string, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE payouts SET gateway_ref = $2, updated_at = $3 WHERE id = $1`, id, ref, at)
	if err != nil {
		r.log.Error("Failed to store payout gateway ref", zap.Error(err), zap.String("payout_id", id.String()))
		return fmt.Errorf("store gateway ref for payout %s: %w", id.String(), err)
	}
	return nil
}
