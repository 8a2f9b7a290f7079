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

// ScheduleRepository is the only writer of schedules.available_seats.
type ScheduleRepository interface {
	Create(ctx context.Context, schedule *entity.Schedule) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Schedule, error)

	// Inventory
	Reserve(ctx context.Context, id uuid.UUID) error
	Release(ctx context.Context, id uuid.UUID) error

	MarkCancelled(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

type scheduleRepository struct {
	db  database.DBTX
	log *zap.Logger
}

func NewScheduleRepository(db database.DBTX, log *zap.Logger) ScheduleRepository {
	return &scheduleRepository{
		db:  db,
		log: log.With(zap.String("repository", "schedule")),
	}
}

const scheduleColumns = `id, company_id, bus_id, route_id, departure_time, arrival_time, price,
		       total_seats, available_seats, status, created_at, updated_at`

func scanSchedule(row pgx.Row) (*entity.Schedule, error) {
	var s entity.Schedule
	err := row.Scan(
		&s.ID,
		&s.CompanyID,
		&s.BusID,
		&s.RouteID,
		&s.DepartureTime,
		&s.ArrivalTime,
		&s.Price,
		&s.TotalSeats,
		&s.AvailableSeats,
		&s.Status,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *scheduleRepository) Create(ctx context.Context, schedule *entity.Schedule) error {
	query := `
		INSERT INTO schedules (id, company_id, bus_id, route_id, departure_time, arrival_time, price,
		                       total_seats, available_seats, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.Exec(ctx, query,
		schedule.ID,
		schedule.CompanyID,
		schedule.BusID,
		schedule.RouteID,
		schedule.DepartureTime,
		schedule.ArrivalTime,
		schedule.Price,
		schedule.TotalSeats,
		schedule.AvailableSeats,
		string(schedule.Status),
		schedule.CreatedAt,
		schedule.UpdatedAt,
	)
	if err != nil {
		r.log.Error("Failed to create schedule",
			zap.Error(err),
			zap.String("schedule_id", schedule.ID.String()),
			zap.String("company_id", schedule.CompanyID.String()),
		)
		return fmt.Errorf("create schedule %s: %w", schedule.ID.String(), err)
	}

	return nil
}

func (r *scheduleRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = $1`

	schedule, err := scanSchedule(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find schedule by ID",
			zap.Error(err),
			zap.String("schedule_id", id.String()),
		)
		return nil, fmt.Errorf("find schedule by ID %s: %w", id.String(), err)
	}

	return schedule, nil
}

// Reserve takes one seat. The availability check and the decrement are a
// single statement, so concurrent callers can never oversell.
func (r *scheduleRepository) Reserve(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE schedules
		SET available_seats = available_seats - 1, updated_at = NOW()
		WHERE id = $1 AND status = 'active' AND available_seats > 0
	`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		r.log.Error("Failed to reserve seat",
			zap.Error(err),
			zap.String("schedule_id", id.String()),
		)
		return fmt.Errorf("reserve seat on schedule %s: %w", id.String(), err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	schedule, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case schedule == nil:
		return domain.ErrScheduleNotFound
	case schedule.Status != entity.ScheduleStatusActive:
		return domain.ErrScheduleCancelled
	default:
		return domain.ErrNoSeatsAvailable
	}
}

// Release returns one seat. Releasing beyond capacity means a seat was
// released twice somewhere; it is reported and never clamped.
func (r *scheduleRepository) Release(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE schedules
		SET available_seats = available_seats + 1, updated_at = NOW()
		WHERE id = $1 AND available_seats < total_seats
	`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		r.log.Error("Failed to release seat",
			zap.Error(err),
			zap.String("schedule_id", id.String()),
		)
		return fmt.Errorf("release seat on schedule %s: %w", id.String(), err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	schedule, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if schedule == nil {
		return domain.ErrScheduleNotFound
	}

	r.log.Error("Seat release would exceed capacity",
		zap.String("invariant", "available_seats<=total_seats"),
		zap.String("schedule_id", id.String()),
		zap.Int("total_seats", schedule.TotalSeats),
		zap.Int("available_seats", schedule.AvailableSeats),
	)
	return fmt.Errorf("release seat on schedule %s: %w", id.String(), domain.ErrInvariantViolation)
}

func (r *scheduleRepository) MarkCancelled(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	query := `
		UPDATE schedules
		SET status = 'cancelled', updated_at = $2
		WHERE id = $1 AND status = 'active'
	`

	tag, err := r.db.Exec(ctx, query, id, at)
	if err != nil {
		r.log.Error("Failed to cancel schedule",
			zap.Error(err),
			zap.String("schedule_id", id.String()),
		)
		return false, fmt.Errorf("cancel schedule %s: %w", id.String(), err)
	}

	return tag.RowsAffected() == 1, nil
}
