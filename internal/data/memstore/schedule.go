package memstore

import (
	"context"
	"fmt"
	"time"

	"bus-booking/internal/data/entity"
	"bus-booking/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type scheduleRepo struct{ handle }

func (r *scheduleRepo) Create(_ context.Context, schedule *entity.Schedule) error {
	defer r.lock()()

	if _, ok := r.data().schedules[schedule.ID]; ok {
		return fmt.Errorf("create schedule %s: duplicate id", schedule.ID)
	}
	r.data().schedules[schedule.ID] = copySchedule(schedule)
	return nil
}

func (r *scheduleRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Schedule, error) {
	defer r.lock()()

	s, ok := r.data().schedules[id]
	if !ok {
		return nil, nil
	}
	return copySchedule(s), nil
}

func (r *scheduleRepo) Reserve(_ context.Context, id uuid.UUID) error {
	defer r.lock()()

	s, ok := r.data().schedules[id]
	switch {
	case !ok:
		return domain.ErrScheduleNotFound
	case s.Status != entity.ScheduleStatusActive:
		return domain.ErrScheduleCancelled
	case s.AvailableSeats <= 0:
		return domain.ErrNoSeatsAvailable
	}

	s.AvailableSeats--
	s.UpdatedAt = time.Now()
	return nil
}

func (r *scheduleRepo) Release(_ context.Context, id uuid.UUID) error {
	defer r.lock()()

	s, ok := r.data().schedules[id]
	if !ok {
		return domain.ErrScheduleNotFound
	}
	if s.AvailableSeats >= s.TotalSeats {
		r.s.log.Error("Seat release would exceed capacity",
			zap.String("invariant", "available_seats<=total_seats"),
			zap.String("schedule_id", id.String()),
			zap.Int("total_seats", s.TotalSeats),
		)
		return fmt.Errorf("release seat on schedule %s: %w", id.String(), domain.ErrInvariantViolation)
	}

	s.AvailableSeats++
	s.UpdatedAt = time.Now()
	return nil
}

func (r *scheduleRepo) MarkCancelled(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	defer r.lock()()

	s, ok := r.data().schedules[id]
	if !ok || s.Status != entity.ScheduleStatusActive {
		return false, nil
	}
	s.Status = entity.ScheduleStatusCancelled
	s.UpdatedAt = at
	return true, nil
}
