package usecase

import (
	"time"

	"bus-booking/internal/data/repository"
	"bus-booking/internal/domain"
	"bus-booking/internal/events"
	"bus-booking/internal/gateway"
	"bus-booking/pkg/lock"
	"bus-booking/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Deps are the collaborators outside the database.
type Deps struct {
	Payments gateway.PaymentGateway
	Payouts  gateway.PayoutGateway
	Events   events.Publisher
	Sealer   *utils.Sealer
	Locker   lock.Locker
	Clock    func() time.Time
}

type Service struct {
	Schedule   ScheduleService
	Booking    BookingService
	Reconcile  ReconciliationService
	Credential CredentialService
	Ledger     LedgerService
	Payout     PayoutService
	Sweep      SweepService
}

func NewService(repo *repository.Repository, config *utils.Config, deps Deps, log *zap.Logger) *Service {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Events == nil {
		deps.Events = events.Discard{}
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewLocal()
	}

	ledger := NewLedgerService(repo, config.Booking, deps, log)
	reconcile := NewReconciliationService(repo, ledger, config, deps, log)

	return &Service{
		Schedule:   NewScheduleService(repo, deps, log),
		Booking:    NewBookingService(repo, config.Booking, deps, log),
		Reconcile:  reconcile,
		Credential: NewCredentialService(repo, config.Booking, deps, log),
		Ledger:     ledger,
		Payout:     NewPayoutService(repo, ledger, config, deps, log),
		Sweep:      NewSweepService(repo, reconcile, config, deps, log),
	}
}

// ==================== HELPERS ====================

func parseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, &domain.ValidationError{Field: field, Msg: "must be a valid UUID"}
	}
	return id, nil
}

func validate(req any) error {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		return &domain.ValidationError{Msg: "validation failed: " + utils.FormatValidationErrors(errs)}
	}
	return nil
}

func publish(p events.Publisher, evs []events.Event) {
	for _, e := range evs {
		p.Publish(e)
	}
}

func newEvent(t events.Type, key uuid.UUID, at time.Time, payload map[string]any) events.Event {
	return events.Event{Type: t, Key: key.String(), OccurredAt: at, Payload: payload}
}
