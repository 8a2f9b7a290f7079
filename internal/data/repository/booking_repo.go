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

type BookingRepository interface {
	Create(ctx context.Context, booking *entity.Booking) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error)
	FindByCredential(ctx context.Context, credential string) (*entity.Booking, error)
	FindByPassenger(ctx context.Context, passengerID uuid.UUID, limit, offset int) ([]*entity.Booking, error)
	CountByPassenger(ctx context.Context, passengerID uuid.UUID) (int64, error)

	// Business queries
	FindStalePending(ctx context.Context, before time.Time, limit int) ([]*entity.Booking, error)
	FindActiveBySchedule(ctx context.Context, scheduleID uuid.UUID) ([]*entity.Booking, error)
	CountHeldBySchedule(ctx context.Context, scheduleID uuid.UUID) (int, error)

	// State machine
	Transition(ctx context.Context, id uuid.UUID, from, to entity.BookingStatus, at time.Time) error
	DeletePending(ctx context.Context, id uuid.UUID) (bool, error)

	// Boarding credential
	IssueCredential(ctx context.Context, id uuid.UUID, credential string, at time.Time) (bool, error)
	ExpireCredential(ctx context.Context, id uuid.UUID, at time.Time) error
	ConsumeCredential(ctx context.Context, credential string, scheduleID *uuid.UUID, now time.Time, grace time.Duration) (*entity.Booking, error)
}

type bookingRepository struct {
	db  database.DBTX
	log *zap.Logger
}

func NewBookingRepository(db database.DBTX, log *zap.Logger) BookingRepository {
	return &bookingRepository{
		db:  db,
		log: log.With(zap.String("repository", "booking")),
	}
}

const bookingColumns = `id, schedule_id, passenger_id, status, tx_ref, credential, credential_status,
		       created_at, updated_at, cancelled_at, boarded_at`

const bookingColumnsB = `b.id, b.schedule_id, b.passenger_id, b.status, b.tx_ref, b.credential, b.credential_status,
		          b.created_at, b.updated_at, b.cancelled_at, b.boarded_at`

func scanBooking(row pgx.Row) (*entity.Booking, error) {
	var b entity.Booking
	err := row.Scan(
		&b.ID,
		&b.ScheduleID,
		&b.PassengerID,
		&b.Status,
		&b.TxRef,
		&b.Credential,
		&b.CredentialStatus,
		&b.CreatedAt,
		&b.UpdatedAt,
		&b.CancelledAt,
		&b.BoardedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func collectBookings(rows pgx.Rows) ([]*entity.Booking, error) {
	defer rows.Close()

	var bookings []*entity.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func (r *bookingRepository) Create(ctx context.Context, booking *entity.Booking) error {
	query := `
		INSERT INTO bookings (id, schedule_id, passenger_id, status, tx_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Exec(ctx, query,
		booking.ID,
		booking.ScheduleID,
		booking.PassengerID,
		string(booking.Status),
		booking.TxRef,
		booking.CreatedAt,
		booking.UpdatedAt,
	)
	if err != nil {
		r.log.Error("Failed to create booking",
			zap.Error(err),
			zap.String("booking_id", booking.ID.String()),
			zap.String("schedule_id", booking.ScheduleID.String()),
		)
		return fmt.Errorf("create booking %s: %w", booking.ID.String(), err)
	}

	return nil
}

func (r *bookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	booking, err := scanBooking(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find booking by ID",
			zap.Error(err),
			zap.String("booking_id", id.String()),
		)
		return nil, fmt.Errorf("find booking by ID %s: %w", id.String(), err)
	}

	return booking, nil
}

func (r *bookingRepository) FindByCredential(ctx context.Context, credential string) (*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE credential = $1`

	booking, err := scanBooking(r.db.QueryRow(ctx, query, credential))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find booking by credential", zap.Error(err))
		return nil, fmt.Errorf("find booking by credential: %w", err)
	}

	return booking, nil
}

func (r *bookingRepository) FindByPassenger(ctx context.Context, passengerID uuid.UUID, limit, offset int) ([]*entity.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE passenger_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, passengerID, limit, offset)
	if err != nil {
		r.log.Error("Failed to find bookings by passenger",
			zap.Error(err),
			zap.String("passenger_id", passengerID.String()),
		)
		return nil, fmt.Errorf("find bookings by passenger %s: %w", passengerID.String(), err)
	}

	bookings, err := collectBookings(rows)
	if err != nil {
		return nil, fmt.Errorf("scan bookings: %w", err)
	}
	return bookings, nil
}

func (r *bookingRepository) CountByPassenger(ctx context.Context, passengerID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM bookings WHERE passenger_id = $1`, passengerID).Scan(&count)
	if err != nil {
		r.log.Error("Failed to count bookings by passenger", zap.Error(err))
		return 0, fmt.Errorf("count bookings by passenger %s: %w", passengerID.String(), err)
	}
	return count, nil
}

func (r *bookingRepository) FindStalePending(ctx context.Context, before time.Time, limit int) ([]*entity.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, before, limit)
	if err != nil {
		r.log.Error("Failed to find stale pending bookings", zap.Error(err), zap.Time("before", before))
		return nil, fmt.Errorf("find stale pending bookings: %w", err)
	}

	bookings, err := collectBookings(rows)
	if err != nil {
		return nil, fmt.Errorf("scan stale bookings: %w", err)
	}
	return bookings, nil
}

func (r *bookingRepository) FindActiveBySchedule(ctx context.Context, scheduleID uuid.UUID) ([]*entity.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE schedule_id = $1 AND status IN ('pending', 'confirmed')
		ORDER BY created_at
	`

	rows, err := r.db.Query(ctx, query, scheduleID)
	if err != nil {
		r.log.Error("Failed to find active bookings by schedule",
			zap.Error(err),
			zap.String("schedule_id", scheduleID.String()),
		)
		return nil, fmt.Errorf("find active bookings by schedule %s: %w", scheduleID.String(), err)
	}

	bookings, err := collectBookings(rows)
	if err != nil {
		return nil, fmt.Errorf("scan schedule bookings: %w", err)
	}
	return bookings, nil
}

func (r *bookingRepository) CountHeldBySchedule(ctx context.Context, scheduleID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*) FROM bookings
		WHERE schedule_id = $1 AND status IN ('pending', 'confirmed', 'boarded')
	`

	var count int
	if err := r.db.QueryRow(ctx, query, scheduleID).Scan(&count); err != nil {
		r.log.Error("Failed to count held seats", zap.Error(err), zap.String("schedule_id", scheduleID.String()))
		return 0, fmt.Errorf("count held seats on schedule %s: %w", scheduleID.String(), err)
	}
	return count, nil
}

// Transition moves a booking from one status to the next. The update is
// conditional on the current status, so of two racing callers only one wins;
// the loser gets an InvalidStateTransitionError carrying the actual status.
func (r *bookingRepository) Transition(ctx context.Context, id uuid.UUID, from, to entity.BookingStatus, at time.Time) error {
	if !from.CanTransitionTo(to) {
		return &domain.InvalidStateTransitionError{
			Entity: "booking", ID: id.String(), Current: string(from), Expected: "a status that allows " + string(to),
		}
	}

	query := `
		UPDATE bookings
		SET status = $3,
		    updated_at = $4,
		    cancelled_at = CASE WHEN $3 = 'cancelled' THEN $4 ELSE cancelled_at END
		WHERE id = $1 AND status = $2
	`

	tag, err := r.db.Exec(ctx, query, id, string(from), string(to), at)
	if err != nil {
		r.log.Error("Failed to transition booking",
			zap.Error(err),
			zap.String("booking_id", id.String()),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
		)
		return fmt.Errorf("transition booking %s: %w", id.String(), err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	current, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return domain.ErrBookingNotFound
	}
	return &domain.InvalidStateTransitionError{
		Entity: "booking", ID: id.String(), Current: string(current.Status), Expected: string(from),
	}
}

// DeletePending removes a booking that never got past pending, together
// with its transaction rows. Used to undo a booking whose checkout failed.
func (r *bookingRepository) DeletePending(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM bookings WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		r.log.Error("Failed to delete pending booking", zap.Error(err), zap.String("booking_id", id.String()))
		return false, fmt.Errorf("delete pending booking %s: %w", id.String(), err)
	}
	return tag.RowsAffected() == 1, nil
}

// IssueCredential stores credential only if the booking is confirmed and has
// none yet. It reports whether this call issued it.
func (r *bookingRepository) IssueCredential(ctx context.Context, id uuid.UUID, credential string, at time.Time) (bool, error) {
	query := `
		UPDATE bookings
		SET credential = $2, credential_status = 'unused', updated_at = $3
		WHERE id = $1 AND status = 'confirmed' AND credential IS NULL
	`

	tag, err := r.db.Exec(ctx, query, id, credential, at)
	if err != nil {
		r.log.Error("Failed to issue credential", zap.Error(err), zap.String("booking_id", id.String()))
		return false, fmt.Errorf("issue credential for booking %s: %w", id.String(), err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *bookingRepository) ExpireCredential(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE bookings
		SET credential_status = 'expired', updated_at = $2
		WHERE id = $1 AND credential_status = 'unused'
	`

	if _, err := r.db.Exec(ctx, query, id, at); err != nil {
		r.log.Error("Failed to expire credential", zap.Error(err), zap.String("booking_id", id.String()))
		return fmt.Errorf("expire credential for booking %s: %w", id.String(), err)
	}
	return nil
}

// ConsumeCredential validates and consumes a boarding credential in one
// statement. It returns nil when any guard fails; the caller diagnoses why.
func (r *bookingRepository) ConsumeCredential(ctx context.Context, credential string, scheduleID *uuid.UUID, now time.Time, grace time.Duration) (*entity.Booking, error) {
	query := `
		UPDATE bookings b
		SET status = 'boarded', credential_status = 'used', boarded_at = $2, updated_at = $2
		FROM schedules s
		WHERE b.schedule_id = s.id
		  AND b.credential = $1
		  AND b.status = 'confirmed'
		  AND b.credential_status = 'unused'
		  AND s.departure_time <= $2
		  AND $2 <= s.departure_time + make_interval(secs => $3)
		  AND ($4::uuid IS NULL OR b.schedule_id = $4)
		RETURNING ` + bookingColumnsB

	booking, err := scanBooking(r.db.QueryRow(ctx, query, credential, now, grace.Seconds(), scheduleID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to consume credential", zap.Error(err))
		return nil, fmt.Errorf("consume credential: %w", err)
	}

	return booking, nil
}
