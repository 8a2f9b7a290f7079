// Package memstore keeps the booking engine state in process memory behind
// the repository interfaces. It backs STORE=memory and the service tests.
package memstore

import (
	"context"
	"sync"

	"bus-booking/internal/data/entity"
	"bus-booking/internal/data/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type state struct {
	schedules    map[uuid.UUID]*entity.Schedule
	bookings     map[uuid.UUID]*entity.Booking
	transactions map[uuid.UUID]*entity.Transaction
	accounts     map[uuid.UUID]*entity.CompanyAccount
	entries      []*entity.LedgerEntry
	payouts      map[uuid.UUID]*entity.Payout
}

func newState() *state {
	return &state{
		schedules:    make(map[uuid.UUID]*entity.Schedule),
		bookings:     make(map[uuid.UUID]*entity.Booking),
		transactions: make(map[uuid.UUID]*entity.Transaction),
		accounts:     make(map[uuid.UUID]*entity.CompanyAccount),
		payouts:      make(map[uuid.UUID]*entity.Payout),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.schedules {
		c.schedules[k] = copySchedule(v)
	}
	for k, v := range s.bookings {
		c.bookings[k] = copyBooking(v)
	}
	for k, v := range s.transactions {
		c.transactions[k] = copyTransaction(v)
	}
	for k, v := range s.accounts {
		c.accounts[k] = copyAccount(v)
	}
	for _, e := range s.entries {
		c.entries = append(c.entries, copyEntry(e))
	}
	for k, v := range s.payouts {
		c.payouts[k] = copyPayout(v)
	}
	return c
}

// Store serialises every operation on one mutex. WithTx holds the mutex for
// the whole callback and restores a snapshot when the callback fails, which
// gives the same all-or-nothing behaviour as a database transaction.
type Store struct {
	mu   sync.Mutex
	data *state
	log  *zap.Logger
}

func New(log *zap.Logger) *Store {
	return &Store{
		data: newState(),
		log:  log.With(zap.String("repository", "memstore")),
	}
}

// Repository returns the store behind the repository interfaces.
func (s *Store) Repository() *repository.Repository {
	return s.bind(false)
}

func (s *Store) bind(locked bool) *repository.Repository {
	h := handle{s: s, locked: locked}
	var repo *repository.Repository

	withTx := func(ctx context.Context, fn func(tx *repository.Repository) error) error {
		if locked {
			return fn(repo)
		}
		return s.withTx(ctx, fn)
	}

	repo = repository.New(
		&scheduleRepo{h},
		&bookingRepo{h},
		&transactionRepo{h},
		&accountRepo{h},
		&payoutRepo{h},
		withTx,
	)
	return repo
}

func (s *Store) withTx(ctx context.Context, fn func(tx *repository.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := s.data.clone()
	if err := fn(s.bind(true)); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

// handle is embedded by every repository. Inside WithTx the mutex is already
// held, so lock becomes a no-op.
type handle struct {
	s      *Store
	locked bool
}

func (h handle) lock() func() {
	if h.locked {
		return func() {}
	}
	h.s.mu.Lock()
	return h.s.mu.Unlock
}

func (h handle) data() *state {
	return h.s.data
}

func copySchedule(v *entity.Schedule) *entity.Schedule {
	c := *v
	return &c
}

func copyBooking(v *entity.Booking) *entity.Booking {
	c := *v
	return &c
}

func copyTransaction(v *entity.Transaction) *entity.Transaction {
	c := *v
	return &c
}

func copyAccount(v *entity.CompanyAccount) *entity.CompanyAccount {
	c := *v
	return &c
}

func copyEntry(v *entity.LedgerEntry) *entity.LedgerEntry {
	c := *v
	return &c
}

func copyPayout(v *entity.Payout) *entity.Payout {
	c := *v
	c.SealedDestination = append([]byte(nil), v.SealedDestination...)
	return &c
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
