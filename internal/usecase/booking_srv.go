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
	"bus-booking/internal/gateway"
	"bus-booking/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type BookingService interface {
	// Passenger endpoints
	CreateBooking(ctx context.Context, actor utils.Actor, req *request.CreateBookingRequest) (*response.BookingResponse, error)
	GetBooking(ctx context.Context, actor utils.Actor, bookingID string) (*response.BookingResponse, error)
	GetPassengerBookings(ctx context.Context, actor utils.Actor, req *request.PaginatedRequest) (*response.PaginatedResponse[response.BookingResponse], error)
	CancelBooking(ctx context.Context, actor utils.Actor, bookingID string) (*response.BookingResponse, error)
}

type bookingService struct {
	repo   *repository.Repository
	config utils.BookingConfig
	deps   Deps
	log    *zap.Logger
}

func NewBookingService(repo *repository.Repository, config utils.BookingConfig, deps Deps, log *zap.Logger) BookingService {
	return &bookingService{
		repo:   repo,
		config: config,
		deps:   deps,
		log:    log.With(zap.String("service", "booking")),
	}
}

// CreateBooking reserves a seat and opens a checkout session for it. The
// reservation is committed before the gateway is called; if the gateway
// fails the booking is deleted and the seat released again.
func (s *bookingService) CreateBooking(ctx context.Context, actor utils.Actor, req *request.CreateBookingRequest) (*response.BookingResponse, error) {
	if err := validate(req); err != nil {
		s.log.Warn("Create booking validation failed", zap.Error(err))
		return nil, err
	}

	scheduleID, err := parseID("schedule_id", req.ScheduleID)
	if err != nil {
		return nil, err
	}

	schedule, err := s.repo.Schedule.FindByID(ctx, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("find schedule: %w", err)
	}
	if schedule == nil {
		return nil, domain.ErrScheduleNotFound
	}

	now := s.deps.Clock()
	switch {
	case schedule.Status != entity.ScheduleStatusActive:
		return nil, domain.ErrScheduleCancelled
	case schedule.HasDeparted(now):
		return nil, domain.ErrScheduleDeparted
	}

	bookingID := uuid.New()
	txRef := utils.GenerateTxRef(bookingID, now)
	booking := &entity.Booking{
		Base:        entity.Base{ID: bookingID, CreatedAt: now, UpdatedAt: now},
		ScheduleID:  scheduleID,
		PassengerID: actor.ID,
		Status:      entity.BookingStatusPending,
		TxRef:       &txRef,
	}
	transaction := &entity.Transaction{
		Base:      entity.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		BookingID: bookingID,
		Reference: txRef,
		Amount:    schedule.Price,
		Method:    entity.PaymentMethodPayChangu,
		Status:    entity.TransactionStatusPending,
	}

	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		if err := tx.Schedule.Reserve(ctx, scheduleID); err != nil {
			return err
		}
		if err := tx.Booking.Create(ctx, booking); err != nil {
			return err
		}
		return tx.Transaction.Create(ctx, transaction)
	})
	if err != nil {
		if errors.Is(err, domain.ErrNoSeatsAvailable) || errors.Is(err, domain.ErrScheduleCancelled) {
			s.log.Info("Seat reservation refused", zap.Error(err), zap.String("schedule_id", req.ScheduleID))
			return nil, err
		}
		s.log.Error("Failed to reserve booking", zap.Error(err), zap.String("schedule_id", req.ScheduleID))
		return nil, fmt.Errorf("create booking: %w", err)
	}

	session, err := s.deps.Payments.InitiateCheckout(ctx, gateway.CheckoutRequest{
		Amount:    schedule.Price,
		Currency:  s.config.Currency,
		Reference: txRef,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		s.log.Warn("Checkout initiation failed, rolling back reservation",
			zap.Error(err),
			zap.String("booking_id", bookingID.String()),
		)
		s.undoReservation(ctx, booking)
		if !errors.Is(err, domain.ErrGatewayUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrGatewayUnavailable, err)
		}
		return nil, err
	}

	if err := s.repo.Transaction.SetCheckoutURL(ctx, transaction.ID, session.CheckoutURL, s.deps.Clock()); err != nil {
		// the booking stays valid; the passenger already has the URL
		s.log.Warn("Failed to store checkout URL", zap.Error(err), zap.String("booking_id", bookingID.String()))
	}

	s.deps.Events.Publish(newEvent(events.BookingCreated, bookingID, now, map[string]any{
		"schedule_id":  req.ScheduleID,
		"passenger_id": actor.ID.String(),
		"tx_ref":       txRef,
		"amount":       schedule.Price,
	}))

	s.log.Info("Booking created",
		zap.String("booking_id", bookingID.String()),
		zap.String("schedule_id", req.ScheduleID),
		zap.String("passenger_id", actor.ID.String()),
		zap.String("tx_ref", txRef),
	)

	resp := response.BookingToResponse(booking)
	resp.CheckoutURL = session.CheckoutURL
	resp.Price = schedule.Price
	resp.DepartureTime = &schedule.DepartureTime
	return &resp, nil
}

// undoReservation deletes a booking whose checkout never started. If the
// booking already moved on (a reconciliation raced us) nothing is undone.
func (s *bookingService) undoReservation(ctx context.Context, booking *entity.Booking) {
	err := s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		deleted, err := tx.Booking.DeletePending(ctx, booking.ID)
		if err != nil || !deleted {
			return err
		}
		return tx.Schedule.Release(ctx, booking.ScheduleID)
	})
	if err != nil {
		// the abandoned-booking sweep reclaims the seat later
		s.log.Error("Failed to roll back reservation",
			zap.Error(err),
			zap.String("booking_id", booking.ID.String()),
			zap.String("schedule_id", booking.ScheduleID.String()),
		)
	}
}

func (s *bookingService) GetBooking(ctx context.Context, actor utils.Actor, bookingID string) (*response.BookingResponse, error) {
	id, err := parseID("booking_id", bookingID)
	if err != nil {
		return nil, err
	}

	booking, err := s.repo.Booking.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	if booking == nil {
		return nil, domain.ErrBookingNotFound
	}

	schedule, err := s.repo.Schedule.FindByID(ctx, booking.ScheduleID)
	if err != nil {
		return nil, fmt.Errorf("get booking schedule: %w", err)
	}
	if !canView(actor, booking, schedule) {
		return nil, domain.ErrForbidden
	}

	resp := response.BookingToResponse(booking)
	if schedule != nil {
		resp.Price = schedule.Price
		resp.DepartureTime = &schedule.DepartureTime
	}
	return &resp, nil
}

func canView(actor utils.Actor, booking *entity.Booking, schedule *entity.Schedule) bool {
	switch {
	case actor.IsAdmin():
		return true
	case booking.PassengerID == actor.ID:
		return true
	case actor.CompanyID != uuid.Nil && schedule != nil && schedule.CompanyID == actor.CompanyID:
		return true
	}
	return false
}

func (s *bookingService) GetPassengerBookings(ctx context.Context, actor utils.Actor, req *request.PaginatedRequest) (*response.PaginatedResponse[response.BookingResponse], error) {
	limit := req.Limit()
	offset := req.Offset()

	bookings, err := s.repo.Booking.FindByPassenger(ctx, actor.ID, limit, offset)
	if err != nil {
		s.log.Error("Failed to get passenger bookings", zap.Error(err), zap.String("passenger_id", actor.ID.String()))
		return nil, fmt.Errorf("get passenger bookings: %w", err)
	}

	total, err := s.repo.Booking.CountByPassenger(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("count passenger bookings: %w", err)
	}

	items := make([]response.BookingResponse, len(bookings))
	for i, b := range bookings {
		items[i] = response.BookingToResponse(b)
	}

	return response.NewPaginatedResponse(items, req.PageNumber(), limit, total), nil
}

// CancelBooking cancels a confirmed booking before the cancellation window
// closes. The seat goes back to inventory and the credential is voided.
// Refunding the fare is handled outside the engine.
func (s *bookingService) CancelBooking(ctx context.Context, actor utils.Actor, bookingID string) (*response.BookingResponse, error) {
	id, err := parseID("booking_id", bookingID)
	if err != nil {
		return nil, err
	}

	booking, err := s.repo.Booking.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find booking: %w", err)
	}
	if booking == nil {
		return nil, domain.ErrBookingNotFound
	}
	if booking.PassengerID != actor.ID && !actor.IsAdmin() {
		return nil, domain.ErrForbidden
	}

	schedule, err := s.repo.Schedule.FindByID(ctx, booking.ScheduleID)
	if err != nil {
		return nil, fmt.Errorf("find schedule: %w", err)
	}
	if schedule == nil {
		return nil, domain.ErrScheduleNotFound
	}

	now := s.deps.Clock()
	if !now.Before(schedule.DepartureTime.Add(-s.config.CancellationWindow)) {
		return nil, domain.ErrCancellationWindowClosed
	}

	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		if err := tx.Booking.Transition(ctx, id, entity.BookingStatusConfirmed, entity.BookingStatusCancelled, now); err != nil {
			return err
		}
		if err := tx.Booking.ExpireCredential(ctx, id, now); err != nil {
			return err
		}
		return tx.Schedule.Release(ctx, booking.ScheduleID)
	})
	if err != nil {
		s.log.Warn("Cancel booking failed", zap.Error(err), zap.String("booking_id", bookingID))
		return nil, fmt.Errorf("cancel booking: %w", err)
	}

	s.deps.Events.Publish(newEvent(events.BookingCancelled, id, now, map[string]any{
		"schedule_id": booking.ScheduleID.String(),
		"reason":      "passenger_cancelled",
	}))
	s.log.Info("Booking cancelled", zap.String("booking_id", bookingID))

	updated, err := s.repo.Booking.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload booking: %w", err)
	}
	if updated == nil {
		return nil, domain.ErrBookingNotFound
	}
	resp := response.BookingToResponse(updated)
	return &resp, nil
}
