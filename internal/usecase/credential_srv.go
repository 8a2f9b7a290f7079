package usecase

import (
	"context"
	"fmt"
	"time"

	"bus-booking/internal/data/entity"
	"bus-booking/internal/data/repository"
	"bus-booking/internal/domain"
	"bus-booking/internal/dto/request"
	"bus-booking/internal/dto/response"
	"bus-booking/internal/events"
	"bus-booking/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CredentialService interface {
	Issue(ctx context.Context, actor utils.Actor, bookingID string) (*response.CredentialResponse, error)
	Validate(ctx context.Context, actor utils.Actor, req *request.ValidateCredentialRequest) (*response.BoardingResponse, error)
}

type credentialService struct {
	repo   *repository.Repository
	config utils.BookingConfig
	deps   Deps
	log    *zap.Logger
}

func NewCredentialService(repo *repository.Repository, config utils.BookingConfig, deps Deps, log *zap.Logger) CredentialService {
	return &credentialService{
		repo:   repo,
		config: config,
		deps:   deps,
		log:    log.With(zap.String("service", "credential")),
	}
}

// Issue returns the boarding credential of a confirmed booking, minting it
// on first use. Repeated calls return the same token.
func (s *credentialService) Issue(ctx context.Context, actor utils.Actor, bookingID string) (*response.CredentialResponse, error) {
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

	if booking.Credential != nil {
		return credentialToResponse(booking), nil
	}
	if booking.Status != entity.BookingStatusConfirmed {
		return nil, &domain.InvalidStateTransitionError{
			Entity:   "booking",
			ID:       bookingID,
			Current:  string(booking.Status),
			Expected: string(entity.BookingStatusConfirmed),
		}
	}

	issued, err := s.repo.Booking.IssueCredential(ctx, id, utils.GenerateCredential(), s.deps.Clock())
	if err != nil {
		return nil, fmt.Errorf("issue credential: %w", err)
	}

	// Either we minted it, or a concurrent call did, or the booking moved on.
	// The stored row is the answer in every case.
	booking, err = s.repo.Booking.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload booking: %w", err)
	}
	if booking == nil {
		return nil, domain.ErrBookingNotFound
	}
	if booking.Credential == nil {
		return nil, &domain.InvalidStateTransitionError{
			Entity:   "booking",
			ID:       bookingID,
			Current:  string(booking.Status),
			Expected: string(entity.BookingStatusConfirmed),
		}
	}

	if issued {
		s.log.Info("Boarding credential issued", zap.String("booking_id", bookingID))
	}
	return credentialToResponse(booking), nil
}

// Validate consumes a credential at boarding. The consume is a single
// check-and-set; only when it misses is the booking read again to explain
// the refusal.
func (s *credentialService) Validate(ctx context.Context, actor utils.Actor, req *request.ValidateCredentialRequest) (*response.BoardingResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	var scheduleID *uuid.UUID
	if req.ScheduleID != "" {
		id, err := parseID("schedule_id", req.ScheduleID)
		if err != nil {
			return nil, err
		}
		scheduleID = &id
	}

	if actor.CompanyID != uuid.Nil {
		if err := s.checkCompany(ctx, actor, req.Credential); err != nil {
			return nil, err
		}
	}

	now := s.deps.Clock()
	booking, err := s.repo.Booking.ConsumeCredential(ctx, req.Credential, scheduleID, now, s.config.BoardingGrace)
	if err != nil {
		return nil, fmt.Errorf("consume credential: %w", err)
	}

	if booking == nil {
		reason, err := s.diagnose(ctx, req.Credential, scheduleID, now)
		if err != nil {
			return nil, err
		}
		s.log.Info("Boarding refused",
			zap.String("reason", reason),
			zap.String("conductor_id", actor.ID.String()),
		)
		return nil, &domain.CredentialInvalidError{Reason: reason}
	}

	s.deps.Events.Publish(newEvent(events.BookingBoarded, booking.ID, now, map[string]any{
		"schedule_id":  booking.ScheduleID.String(),
		"conductor_id": actor.ID.String(),
	}))
	s.log.Info("Passenger boarded",
		zap.String("booking_id", booking.ID.String()),
		zap.String("schedule_id", booking.ScheduleID.String()),
	)

	return &response.BoardingResponse{
		BookingID:   booking.ID.String(),
		ScheduleID:  booking.ScheduleID.String(),
		PassengerID: booking.PassengerID.String(),
		BoardedAt:   *booking.BoardedAt,
	}, nil
}

// checkCompany keeps conductors to their own company's trips.
func (s *credentialService) checkCompany(ctx context.Context, actor utils.Actor, credential string) error {
	booking, err := s.repo.Booking.FindByCredential(ctx, credential)
	if err != nil {
		return fmt.Errorf("find credential: %w", err)
	}
	if booking == nil {
		return &domain.CredentialInvalidError{Reason: domain.CredentialUnknown}
	}

	schedule, err := s.repo.Schedule.FindByID(ctx, booking.ScheduleID)
	if err != nil {
		return fmt.Errorf("find schedule: %w", err)
	}
	if schedule == nil || schedule.CompanyID != actor.CompanyID {
		s.log.Warn("Conductor scanned another company's credential",
			zap.String("conductor_id", actor.ID.String()),
			zap.String("booking_id", booking.ID.String()),
		)
		return domain.ErrForbidden
	}
	return nil
}

func (s *credentialService) diagnose(ctx context.Context, credential string, scheduleID *uuid.UUID, now time.Time) (string, error) {
	booking, err := s.repo.Booking.FindByCredential(ctx, credential)
	if err != nil {
		return "", fmt.Errorf("find credential: %w", err)
	}
	if booking == nil {
		return domain.CredentialUnknown, nil
	}

	switch {
	case booking.Status == entity.BookingStatusBoarded,
		booking.CredentialStatus != nil && *booking.CredentialStatus == entity.CredentialStatusUsed:
		return domain.CredentialUsed, nil
	case booking.Status != entity.BookingStatusConfirmed:
		return domain.CredentialWrongState, nil
	case booking.CredentialStatus != nil && *booking.CredentialStatus == entity.CredentialStatusExpired:
		return domain.CredentialExpired, nil
	case scheduleID != nil && *scheduleID != booking.ScheduleID:
		return domain.CredentialWrongTrip, nil
	}

	schedule, err := s.repo.Schedule.FindByID(ctx, booking.ScheduleID)
	if err != nil {
		return "", fmt.Errorf("find schedule: %w", err)
	}
	if schedule == nil {
		return domain.CredentialWrongState, nil
	}

	switch {
	case now.Before(schedule.DepartureTime):
		return domain.CredentialNotYetValid, nil
	case now.After(schedule.DepartureTime.Add(s.config.BoardingGrace)):
		return domain.CredentialExpired, nil
	}
	// everything checks out now, so a concurrent scan consumed it first
	return domain.CredentialUsed, nil
}

func credentialToResponse(b *entity.Booking) *response.CredentialResponse {
	resp := &response.CredentialResponse{
		BookingID:  b.ID.String(),
		Credential: *b.Credential,
		Status:     entity.CredentialStatusUnused,
	}
	if b.CredentialStatus != nil {
		resp.Status = *b.CredentialStatus
	}
	return resp
}
