package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bus-booking/internal/data/entity"
	"bus-booking/internal/data/repository"
	"bus-booking/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func seedSchedule(t *testing.T, repo *repository.Repository, seats int) *entity.Schedule {
	t.Helper()
	now := time.Now()
	s := &entity.Schedule{
		Base:           entity.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		CompanyID:      uuid.New(),
		DepartureTime:  now.Add(48 * time.Hour),
		ArrivalTime:    now.Add(52 * time.Hour),
		Price:          15000,
		TotalSeats:     seats,
		AvailableSeats: seats,
		Status:         entity.ScheduleStatusActive,
	}
	if err := repo.Schedule.Create(context.Background(), s); err != nil {
		t.Fatalf("seed schedule: %v", err)
	}
	return s
}

func TestWithTxRestoresSnapshotOnError(t *testing.T) {
	repo := New(zap.NewNop()).Repository()
	s := seedSchedule(t, repo, 3)
	ctx := context.Background()

	boom := errors.New("boom")
	err := repo.WithTx(ctx, func(tx *repository.Repository) error {
		if err := tx.Schedule.Reserve(ctx, s.ID); err != nil {
			return err
		}
		if err := tx.Schedule.Reserve(ctx, s.ID); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}

	got, _ := repo.Schedule.FindByID(ctx, s.ID)
	if got.AvailableSeats != 3 {
		t.Fatalf("available = %d, want 3 after rollback", got.AvailableSeats)
	}
}

func TestConcurrentReserveNeverOversells(t *testing.T) {
	repo := New(zap.NewNop()).Repository()
	s := seedSchedule(t, repo, 5)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		soldOut int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Schedule.Reserve(ctx, s.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrNoSeatsAvailable):
				soldOut++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 5 || soldOut != 45 {
		t.Fatalf("ok=%d soldOut=%d, want 5/45", ok, soldOut)
	}
	got, _ := repo.Schedule.FindByID(ctx, s.ID)
	if got.AvailableSeats != 0 {
		t.Fatalf("available = %d, want 0", got.AvailableSeats)
	}
}

func TestReleaseAtCapacityIsInvariantViolation(t *testing.T) {
	repo := New(zap.NewNop()).Repository()
	s := seedSchedule(t, repo, 2)

	err := repo.Schedule.Release(context.Background(), s.ID)
	if !errors.Is(err, domain.ErrInvariantViolation) {
		t.Fatalf("err = %v, want ErrInvariantViolation", err)
	}
}

func TestReturnedEntitiesAreCopies(t *testing.T) {
	repo := New(zap.NewNop()).Repository()
	s := seedSchedule(t, repo, 2)
	ctx := context.Background()

	got, _ := repo.Schedule.FindByID(ctx, s.ID)
	got.AvailableSeats = 99

	again, _ := repo.Schedule.FindByID(ctx, s.ID)
	if again.AvailableSeats != 2 {
		t.Fatalf("store mutated through returned pointer")
	}
}

func TestDebitAndCreditKeepLedgerInSync(t *testing.T) {
	repo := New(zap.NewNop()).Repository()
	ctx := context.Background()
	companyID := uuid.New()
	now := time.Now()

	credit := &entity.LedgerEntry{ID: uuid.New(), CompanyID: companyID, Kind: entity.LedgerKindCredit, Amount: 9000, Reference: "BOOKING-a", CreatedAt: now}
	if err := repo.Account.Credit(ctx, credit); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := repo.Account.Credit(ctx, credit); !errors.Is(err, domain.ErrInvariantViolation) {
		t.Fatalf("duplicate credit err = %v", err)
	}

	debit := &entity.LedgerEntry{ID: uuid.New(), CompanyID: companyID, Kind: entity.LedgerKindDebit, Amount: 10000, Reference: "PAYOUT-a", CreatedAt: now}
	if err := repo.Account.Debit(ctx, debit); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("overdraft err = %v", err)
	}
	debit.Amount = 4000
	if err := repo.Account.Debit(ctx, debit); err != nil {
		t.Fatalf("debit: %v", err)
	}

	account, _ := repo.Account.FindByCompanyID(ctx, companyID)
	entries, _ := repo.Account.Entries(ctx, companyID, 100, 0)
	var sum int64
	for _, e := range entries {
		sum += e.Signed()
	}
	if account.Balance != 5000 || sum != account.Balance {
		t.Fatalf("balance = %d, ledger sum = %d, want 5000", account.Balance, sum)
	}
}
