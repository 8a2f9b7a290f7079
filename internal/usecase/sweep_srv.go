package usecase

import (
	"context"
	"errors"
	"time"

	"bus-booking/internal/data/repository"
	"bus-booking/internal/domain"
	"bus-booking/internal/gateway"
	"bus-booking/pkg/utils"

	"go.uber.org/zap"
)

const sweepLockKey = "bus-booking:sweep"

type SweepReport struct {
	Scanned   int
	Confirmed int
	Expired   int
	Skipped   int
	Failed    int
}

// SweepService reclaims seats held by bookings whose payment never
// resolved.
type SweepService interface {
	Sweep(ctx context.Context) (*SweepReport, error)
	Run(ctx context.Context)
}

type sweepService struct {
	repo           *repository.Repository
	reconcile      ReconciliationService
	config         utils.BookingConfig
	gatewayTimeout time.Duration
	deps           Deps
	log            *zap.Logger
}

func NewSweepService(repo *repository.Repository, reconcile ReconciliationService, config *utils.Config, deps Deps, log *zap.Logger) SweepService {
	return &sweepService{
		repo:           repo,
		reconcile:      reconcile,
		config:         config.Booking,
		gatewayTimeout: config.Gateway.Timeout,
		deps:           deps,
		log:            log.With(zap.String("service", "sweep")),
	}
}

// Sweep runs one pass over stale pending bookings. The gateway is asked
// first so a payment that did go through is still honoured; every other
// answer expires the booking through the normal failure path.
func (s *sweepService) Sweep(ctx context.Context) (*SweepReport, error) {
	before := s.deps.Clock().Add(-s.config.PendingTimeout)
	stale, err := s.repo.Booking.FindStalePending(ctx, before, s.config.SweepBatchSize)
	if err != nil {
		return nil, err
	}

	report := &SweepReport{Scanned: len(stale)}
	for _, booking := range stale {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if booking.TxRef == nil {
			report.Skipped++
			continue
		}
		ref := *booking.TxRef

		status, err := s.deps.Payments.VerifyPayment(ctx, ref)
		if err != nil {
			s.log.Warn("Sweep could not verify payment, expiring",
				zap.Error(err),
				zap.String("booking_id", booking.ID.String()),
			)
		}
		if err != nil || status != gateway.StatusSuccess {
			status = gateway.StatusExpired
		}

		outcome, err := s.reconcile.Reconcile(ctx, ref, status, SourceSweep)
		if err != nil {
			report.Failed++
			if !errors.Is(err, domain.ErrBookingNotFound) {
				s.log.Error("Sweep failed to settle booking", zap.Error(err), zap.String("booking_id", booking.ID.String()))
			}
			continue
		}

		switch {
		case outcome.Result != ResultApplied:
			report.Skipped++
		case status == gateway.StatusSuccess:
			report.Confirmed++
		default:
			report.Expired++
		}
	}

	if report.Scanned > 0 {
		s.log.Info("Sweep finished",
			zap.Int("scanned", report.Scanned),
			zap.Int("confirmed", report.Confirmed),
			zap.Int("expired", report.Expired),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed),
		)
	}
	return report, nil
}

// Run sweeps every SweepInterval until ctx is done. Only the instance
// holding the sweep lock does the work on a given tick.
func (s *sweepService) Run(ctx context.Context) {
	interval := s.config.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("Sweep worker started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Sweep worker stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// lockTTL covers the tick interval plus a full batch of gateway verifications
// at their timeout, so the lock cannot lapse while a pass is still running.
func (s *sweepService) lockTTL() time.Duration {
	interval := s.config.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	batch := s.config.SweepBatchSize
	if batch < 1 {
		batch = 1
	}
	return interval + time.Duration(batch)*s.gatewayTimeout
}

func (s *sweepService) tick(ctx context.Context) {
	release, ok, err := s.deps.Locker.TryLock(ctx, sweepLockKey, s.lockTTL())
	if err != nil {
		s.log.Warn("Sweep lock unavailable", zap.Error(err))
		return
	}
	if !ok {
		s.log.Debug("Sweep lock held elsewhere")
		return
	}
	defer release()

	if _, err := s.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Error("Sweep failed", zap.Error(err))
	}
}
