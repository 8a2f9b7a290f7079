package usecase

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"bus-booking/internal/data/entity"
	"bus-booking/internal/data/memstore"
	"bus-booking/internal/data/repository"
	"bus-booking/internal/dto/request"
	"bus-booking/internal/dto/response"
	"bus-booking/internal/events"
	"bus-booking/internal/gateway"
	"bus-booking/pkg/lock"
	"bus-booking/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	testPrice         = int64(15000)
	testFee           = int64(3000)
	testWebhookSecret = "whsec_test"
)

// ==================== FAKES ====================

type fakePayments struct {
	mu          sync.Mutex
	checkoutErr error
	verifyErr   error
	statuses    map[string]gateway.Status
	checkouts   int
}

func (f *fakePayments) InitiateCheckout(_ context.Context, req gateway.CheckoutRequest) (*gateway.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.checkoutErr != nil {
		return nil, f.checkoutErr
	}
	f.checkouts++
	return &gateway.CheckoutSession{
		CheckoutURL: "https://checkout.test/" + req.Reference,
		Reference:   req.Reference,
	}, nil
}

func (f *fakePayments) VerifyPayment(_ context.Context, ref string) (gateway.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.verifyErr != nil {
		return "", f.verifyErr
	}
	if st, ok := f.statuses[ref]; ok {
		return st, nil
	}
	return gateway.StatusPending, nil
}

func (f *fakePayments) set(ref string, st gateway.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statuses == nil {
		f.statuses = make(map[string]gateway.Status)
	}
	f.statuses[ref] = st
}

type fakePayouts struct {
	mu        sync.Mutex
	initErr   error
	status    gateway.Status
	sent      []gateway.PayoutRequest
	verifyErr error
}

func (f *fakePayouts) InitiatePayout(_ context.Context, req gateway.PayoutRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.initErr != nil {
		return "", f.initErr
	}
	f.sent = append(f.sent, req)
	return "REF-" + req.ChargeID, nil
}

func (f *fakePayouts) VerifyPayout(_ context.Context, _ string) (gateway.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.verifyErr != nil {
		return "", f.verifyErr
	}
	if f.status == "" {
		return gateway.StatusPending, nil
	}
	return f.status, nil
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) count(t events.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *testClock) Set(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = at
}

// ==================== HARNESS ====================

type harness struct {
	svc      *Service
	repo     *repository.Repository
	config   *utils.Config
	payments *fakePayments
	payouts  *fakePayouts
	events   *recorder
	clock    *testClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithFee(t, testFee)
}

func newHarnessWithFee(t *testing.T, fee int64) *harness {
	t.Helper()

	sealer, err := utils.NewSealer(strings.Repeat("5a", 32))
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}

	config := &utils.Config{
		Booking: utils.BookingConfig{
			PlatformFee:        fee,
			Currency:           "MWK",
			CancellationWindow: 24 * time.Hour,
			BoardingGrace:      time.Hour,
			PendingTimeout:     15 * time.Minute,
			SweepInterval:      time.Minute,
			SweepBatchSize:     100,
		},
		Gateway: utils.GatewayConfig{WebhookSecret: testWebhookSecret},
	}

	h := &harness{
		repo:     memstore.New(zap.NewNop()).Repository(),
		config:   config,
		payments: &fakePayments{},
		payouts:  &fakePayouts{},
		events:   &recorder{},
		clock:    &testClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)},
	}
	h.svc = NewService(h.repo, config, Deps{
		Payments: h.payments,
		Payouts:  h.payouts,
		Events:   h.events,
		Sealer:   sealer,
		Locker:   lock.NewLocal(),
		Clock:    h.clock.Now,
	}, zap.NewNop())
	return h
}

func passenger() utils.Actor {
	return utils.Actor{ID: uuid.New(), Role: utils.RolePassenger}
}

func admin() utils.Actor {
	return utils.Actor{ID: uuid.New(), Role: utils.RoleAdmin}
}

func companyStaff(companyID uuid.UUID) utils.Actor {
	return utils.Actor{ID: uuid.New(), Role: utils.RoleCompany, CompanyID: companyID}
}

// schedule creates an active schedule departing in 48 hours.
func (h *harness) schedule(t *testing.T, seats int) *entity.Schedule {
	t.Helper()
	return h.scheduleFor(t, uuid.New(), seats)
}

func (h *harness) scheduleFor(t *testing.T, companyID uuid.UUID, seats int) *entity.Schedule {
	t.Helper()
	dep := h.clock.Now().Add(48 * time.Hour)
	resp, err := h.svc.Schedule.CreateSchedule(context.Background(), &request.CreateScheduleRequest{
		CompanyID:     companyID.String(),
		BusID:         uuid.NewString(),
		RouteID:       uuid.NewString(),
		DepartureTime: dep,
		ArrivalTime:   dep.Add(5 * time.Hour),
		Price:         testPrice,
		TotalSeats:    seats,
	})
	if err != nil {
		t.Fatalf("create schedule: %v", err)
	}
	return h.loadSchedule(t, resp.ID)
}

func (h *harness) loadSchedule(t *testing.T, id string) *entity.Schedule {
	t.Helper()
	s, err := h.repo.Schedule.FindByID(context.Background(), uuid.MustParse(id))
	if err != nil || s == nil {
		t.Fatalf("find schedule %s: %v", id, err)
	}
	return s
}

func (h *harness) loadBooking(t *testing.T, id string) *entity.Booking {
	t.Helper()
	b, err := h.repo.Booking.FindByID(context.Background(), uuid.MustParse(id))
	if err != nil || b == nil {
		t.Fatalf("find booking %s: %v", id, err)
	}
	return b
}

func (h *harness) book(t *testing.T, s *entity.Schedule, actor utils.Actor) *response.BookingResponse {
	t.Helper()
	resp, err := h.svc.Booking.CreateBooking(context.Background(), actor, &request.CreateBookingRequest{
		ScheduleID: s.ID.String(),
		Email:      "rider@example.com",
	})
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	return resp
}

func (h *harness) confirm(t *testing.T, b *response.BookingResponse) {
	t.Helper()
	out, err := h.svc.Reconcile.Reconcile(context.Background(), b.TxRef, gateway.StatusSuccess, SourceWebhook)
	if err != nil {
		t.Fatalf("reconcile success: %v", err)
	}
	if out.Result != ResultApplied {
		t.Fatalf("reconcile result = %s, want applied", out.Result)
	}
}

func (h *harness) confirmedBooking(t *testing.T, s *entity.Schedule) (utils.Actor, *response.BookingResponse) {
	t.Helper()
	actor := passenger()
	b := h.book(t, s, actor)
	h.confirm(t, b)
	return actor, b
}

func (h *harness) balance(t *testing.T, companyID uuid.UUID) int64 {
	t.Helper()
	acc, err := h.repo.Account.FindByCompanyID(context.Background(), companyID)
	if err != nil || acc == nil {
		t.Fatalf("find account: %v", err)
	}
	return acc.Balance
}

// assertLedgerConsistent checks that the balance equals the sum of entries.
func (h *harness) assertLedgerConsistent(t *testing.T, companyID uuid.UUID) {
	t.Helper()
	entries, err := h.repo.Account.Entries(context.Background(), companyID, 1000, 0)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	var sum int64
	for _, e := range entries {
		sum += e.Signed()
	}
	if got := h.balance(t, companyID); got != sum {
		t.Fatalf("balance = %d, ledger sum = %d", got, sum)
	}
	if sum < 0 {
		t.Fatalf("balance went negative: %d", sum)
	}
}

// assertSeatsConserved checks available + held == total.
func (h *harness) assertSeatsConserved(t *testing.T, scheduleID uuid.UUID) {
	t.Helper()
	s := h.loadSchedule(t, scheduleID.String())
	held, err := h.repo.Booking.CountHeldBySchedule(context.Background(), scheduleID)
	if err != nil {
		t.Fatalf("count held: %v", err)
	}
	if s.AvailableSeats+held != s.TotalSeats {
		t.Fatalf("available %d + held %d != total %d", s.AvailableSeats, held, s.TotalSeats)
	}
	if s.AvailableSeats < 0 || s.AvailableSeats > s.TotalSeats {
		t.Fatalf("available seats out of range: %d", s.AvailableSeats)
	}
}
