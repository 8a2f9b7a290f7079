package usecase

import (
	"context"
	"errors"
	"fmt"

	"bus-booking/internal/data/entity"
	"bus-booking/internal/data/repository"
	"bus-booking/internal/domain"
	"bus-booking/internal/dto/request"
	"bus-booking/internal/dto/response"
	"bus-booking/internal/events"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ScheduleService interface {
	CreateSchedule(ctx context.Context, req *request.CreateScheduleRequest) (*response.ScheduleResponse, error)
	GetSchedule(ctx context.Context, scheduleID string) (*response.ScheduleResponse, error)
	CancelSchedule(ctx context.Context, scheduleID string) (*response.ScheduleCancellationResponse, error)
}

type scheduleService struct {
	repo *repository.Repository
	deps Deps
	log  *zap.Logger
}

func NewScheduleService(repo *repository.Repository, deps Deps, log *zap.Logger) ScheduleService {
	return &scheduleService{
		repo: repo,
		deps: deps,
		log:  log.With(zap.String("service", "schedule")),
	}
}

func (s *scheduleService) CreateSchedule(ctx context.Context, req *request.CreateScheduleRequest) (*response.ScheduleResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	companyID, err := parseID("company_id", req.CompanyID)
	if err != nil {
		return nil, err
	}
	busID, err := parseID("bus_id", req.BusID)
	if err != nil {
		return nil, err
	}
	routeID, err := parseID("route_id", req.RouteID)
	if err != nil {
		return nil, err
	}

	now := s.deps.Clock()
	if !req.DepartureTime.After(now) {
		return nil, &domain.ValidationError{Field: "departure_time", Msg: "must be in the future"}
	}

	schedule := &entity.Schedule{
		Base:           entity.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		CompanyID:      companyID,
		BusID:          busID,
		RouteID:        routeID,
		DepartureTime:  req.DepartureTime,
		ArrivalTime:    req.ArrivalTime,
		Price:          req.Price,
		TotalSeats:     req.TotalSeats,
		AvailableSeats: req.TotalSeats,
		Status:         entity.ScheduleStatusActive,
	}

	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		if err := tx.Account.Open(ctx, companyID, now); err != nil {
			return err
		}
		return tx.Schedule.Create(ctx, schedule)
	})
	if err != nil {
		s.log.Error("Failed to create schedule", zap.Error(err), zap.String("company_id", req.CompanyID))
		return nil, fmt.Errorf("create schedule: %w", err)
	}

	s.log.Info("Schedule created",
		zap.String("schedule_id", schedule.ID.String()),
		zap.String("company_id", req.CompanyID),
		zap.Int("total_seats", schedule.TotalSeats),
		zap.Int64("price", schedule.Price),
	)

	resp := response.ScheduleToResponse(schedule)
	return &resp, nil
}

func (s *scheduleService) GetSchedule(ctx context.Context, scheduleID string) (*response.ScheduleResponse, error) {
	id, err := parseID("schedule_id", scheduleID)
	if err != nil {
		return nil, err
	}

	schedule, err := s.repo.Schedule.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	if schedule == nil {
		return nil, domain.ErrScheduleNotFound
	}

	resp := response.ScheduleToResponse(schedule)
	return &resp, nil
}

// CancelSchedule closes a schedule for sale and cancels every booking still
// holding a seat on it, returning each seat through the inventory.
func (s *scheduleService) CancelSchedule(ctx context.Context, scheduleID string) (*response.ScheduleCancellationResponse, error) {
	id, err := parseID("schedule_id", scheduleID)
	if err != nil {
		return nil, err
	}

	now := s.deps.Clock()
	result := &response.ScheduleCancellationResponse{ScheduleID: scheduleID}
	var evs []events.Event

	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		result.Cancelled, result.Released, evs = 0, 0, nil

		schedule, err := tx.Schedule.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if schedule == nil {
			return domain.ErrScheduleNotFound
		}
		if _, err := tx.Schedule.MarkCancelled(ctx, id, now); err != nil {
			return err
		}

		bookings, err := tx.Booking.FindActiveBySchedule(ctx, id)
		if err != nil {
			return err
		}

		for _, b := range bookings {
			from, err := s.cancelHeld(ctx, tx, b)
			if err != nil {
				return err
			}
			if from == "" {
				continue
			}

			result.Cancelled++
			result.Released++
			evs = append(evs, newEvent(events.BookingCancelled, b.ID, now, map[string]any{
				"schedule_id": scheduleID,
				"reason":      "schedule_cancelled",
				"from":        string(from),
			}))
			if from == entity.BookingStatusConfirmed {
				evs = append(evs, newEvent(events.PaymentRefundRequired, b.ID, now, map[string]any{
					"schedule_id": scheduleID,
					"reason":      "schedule_cancelled",
					"amount":      schedule.Price,
				}))
			}
		}
		return nil
	})
	if err != nil {
		s.log.Error("Failed to cancel schedule", zap.Error(err), zap.String("schedule_id", scheduleID))
		return nil, fmt.Errorf("cancel schedule: %w", err)
	}

	evs = append(evs, newEvent(events.ScheduleCancelled, id, now, map[string]any{"cancelled_bookings": result.Cancelled}))
	publish(s.deps.Events, evs)

	s.log.Info("Schedule cancelled",
		zap.String("schedule_id", scheduleID),
		zap.Int("cancelled_bookings", result.Cancelled),
	)
	return result, nil
}

// cancelHeld cancels one booking and releases its seat. A booking that a
// concurrent reconciliation moved on is retried from its new status; one
// that already left the seat-holding statuses is skipped.
func (s *scheduleService) cancelHeld(ctx context.Context, tx *repository.Repository, b *entity.Booking) (entity.BookingStatus, error) {
	now := s.deps.Clock()
	from := b.Status

	for attempt := 0; attempt < 2; attempt++ {
		err := tx.Booking.Transition(ctx, b.ID, from, entity.BookingStatusCancelled, now)
		if err == nil {
			if err := tx.Booking.ExpireCredential(ctx, b.ID, now); err != nil {
				return "", err
			}
			if err := tx.Schedule.Release(ctx, b.ScheduleID); err != nil {
				return "", err
			}
			return from, nil
		}

		var stateErr *domain.InvalidStateTransitionError
		if !errors.As(err, &stateErr) {
			return "", err
		}
		next := entity.BookingStatus(stateErr.Current)
		if next != entity.BookingStatusPending && next != entity.BookingStatusConfirmed {
			return "", nil
		}
		from = next
	}
	return "", nil
}
