package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"bus-booking/internal/data/entity"
	"bus-booking/internal/domain"
	"bus-booking/internal/events"
	"bus-booking/internal/gateway"
	"bus-booking/pkg/utils"

	"github.com/google/uuid"
)

func signedWebhook(t *testing.T, ref, status string) ([]byte, string) {
	t.Helper()
	body, err := json.Marshal(map[string]string{"tx_ref": ref, "status": status})
	if err != nil {
		t.Fatalf("marshal webhook: %v", err)
	}
	return body, utils.SignPayload(testWebhookSecret, body)
}

func TestReconcileSuccessCreditsOnce(t *testing.T) {
	h := newHarness(t)
	s := h.schedule(t, 2)
	b := h.book(t, s, passenger())
	ctx := context.Background()

	first, err := h.svc.Reconcile.Reconcile(ctx, b.TxRef, gateway.StatusSuccess, SourceWebhook)
	if err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	second, err := h.svc.Reconcile.Reconcile(ctx, b.TxRef, gateway.StatusSuccess, SourceCallback)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}

	if first.Result != ResultApplied || second.Result != ResultAlreadyApplied {
		t.Fatalf("results = %s, %s", first.Result, second.Result)
	}
	if first.BookingStatus != entity.BookingStatusConfirmed {
		t.Fatalf("booking status = %s", first.BookingStatus)
	}
	if got := h.balance(t, s.CompanyID); got != testPrice-testFee {
		t.Fatalf("balance = %d, want %d", got, testPrice-testFee)
	}
	if h.events.count(events.BookingConfirmed) != 1 {
		t.Fatalf("booking.confirmed published %d times", h.events.count(events.BookingConfirmed))
	}
	h.assertLedgerConsistent(t, s.CompanyID)
}

func TestCallbackAndWebhookRaceAppliesOnce(t *testing.T) {
	h := newHarness(t)
	s := h.schedule(t, 2)
	b := h.book(t, s, passenger())
	h.payments.set(b.TxRef, gateway.StatusSuccess)
	body, sig := signedWebhook(t, b.TxRef, "successful")
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			resp, err := h.svc.Reconcile.HandleCallback(ctx, b.TxRef)
			if err != nil {
				t.Errorf("callback: %v", err)
				return
			}
			mu.Lock()
			if resp.Result == string(ResultApplied) {
				applied++
			}
			mu.Unlock()
		}()
		go func() {
			defer wg.Done()
			resp, err := h.svc.Reconcile.HandleWebhook(ctx, body, sig)
			if err != nil {
				t.Errorf("webhook: %v", err)
				return
			}
			mu.Lock()
			if resp.Result == string(ResultApplied) {
				applied++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if applied != 1 {
		t.Fatalf("applied %d times, want 1", applied)
	}
	entries, _ := h.repo.Account.Entries(ctx, s.CompanyID, 100, 0)
	if len(entries) != 1 {
		t.Fatalf("ledger entries = %d, want 1", len(entries))
	}
	h.assertLedgerConsistent(t, s.CompanyID)
}

func TestReconcileFailureReleasesSeatOnce(t *testing.T) {
	h := newHarness(t)
	s := h.schedule(t, 2)
	b := h.book(t, s, passenger())
	ctx := context.Background()

	out, err := h.svc.Reconcile.Reconcile(ctx, b.TxRef, gateway.StatusCancelled, SourceWebhook)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if out.Result != ResultApplied || out.BookingStatus != entity.BookingStatusPaymentFailed {
		t.Fatalf("outcome = %+v", out)
	}
	if got := h.loadSchedule(t, s.ID.String()).AvailableSeats; got != 2 {
		t.Fatalf("available = %d, want 2", got)
	}

	again, err := h.svc.Reconcile.Reconcile(ctx, b.TxRef, gateway.StatusFailed, SourcePoll)
	if err != nil {
		t.Fatalf("repeat reconcile: %v", err)
	}
	if again.Result != ResultAlreadyApplied {
		t.Fatalf("repeat result = %s", again.Result)
	}
	if got := h.loadSchedule(t, s.ID.String()).AvailableSeats; got != 2 {
		t.Fatalf("repeat failure released again: available = %d", got)
	}
	h.assertSeatsConserved(t, s.ID)
}

func TestReconcilePendingChangesNothing(t *testing.T) {
	h := newHarness(t)
	s := h.schedule(t, 2)
	b := h.book(t, s, passenger())

	out, err := h.svc.Reconcile.Reconcile(context.Background(), b.TxRef, gateway.StatusPending, SourcePoll)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if out.Result != ResultPending || out.BookingStatus != entity.BookingStatusPending {
		t.Fatalf("outcome = %+v", out)
	}
	tx, _ := h.repo.Transaction.FindByReference(context.Background(), b.TxRef)
	if tx == nil || tx.Status != entity.TransactionStatusPending {
		t.Fatalf("transaction = %+v", tx)
	}
}

func TestReconcileRejectsUnknownReferences(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Reconcile.Reconcile(ctx, "garbage", gateway.StatusSuccess, SourceWebhook)
	if !errors.Is(err, domain.ErrInvalidReference) {
		t.Fatalf("err = %v, want ErrInvalidReference", err)
	}

	ref := utils.GenerateTxRef(uuid.New(), h.clock.Now())
	_, err = h.svc.Reconcile.Reconcile(ctx, ref, gateway.StatusSuccess, SourceWebhook)
	if !errors.Is(err, domain.ErrBookingNotFound) {
		t.Fatalf("err = %v, want ErrBookingNotFound", err)
	}

	// right booking, wrong reference
	s := h.schedule(t, 1)
	b := h.book(t, s, passenger())
	_, err = h.svc.Reconcile.Reconcile(ctx, b.TxRef+"9", gateway.StatusSuccess, SourceWebhook)
	if !errors.Is(err, domain.ErrInvalidReference) {
		t.Fatalf("err = %v, want ErrInvalidReference", err)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	h := newHarness(t)
	s := h.schedule(t, 1)
	b := h.book(t, s, passenger())
	body, _ := signedWebhook(t, b.TxRef, "success")

	_, err := h.svc.Reconcile.HandleWebhook(context.Background(), body, "deadbeef")
	if !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
	if h.loadBooking(t, b.ID).Status != entity.BookingStatusPending {
		t.Fatalf("unsigned webhook changed the booking")
	}
}

func TestFailedRedirectDefersToGateway(t *testing.T) {
	h := newHarness(t)
	s := h.schedule(t, 2)
	ctx := context.Background()

	paid := h.book(t, s, passenger())
	h.payments.set(paid.TxRef, gateway.StatusSuccess)
	resp, err := h.svc.Reconcile.HandleFailedRedirect(ctx, paid.TxRef, "failed")
	if err != nil {
		t.Fatalf("redirect: %v", err)
	}
	if resp.Status != string(entity.BookingStatusConfirmed) {
		t.Fatalf("paid booking status = %s, want confirmed", resp.Status)
	}

	abandoned := h.book(t, s, passenger())
	resp, err = h.svc.Reconcile.HandleFailedRedirect(ctx, abandoned.TxRef, "")
	if err != nil {
		t.Fatalf("redirect: %v", err)
	}
	if resp.Status != string(entity.BookingStatusPaymentFailed) {
		t.Fatalf("abandoned booking status = %s, want payment_failed", resp.Status)
	}
}

func TestCallbackGatewayDownIsRetryable(t *testing.T) {
	h := newHarness(t)
	s := h.schedule(t, 1)
	b := h.book(t, s, passenger())
	h.payments.verifyErr = errors.New("timeout")

	_, err := h.svc.Reconcile.HandleCallback(context.Background(), b.TxRef)
	if !domain.IsRetryable(err) {
		t.Fatalf("err = %v, want retryable", err)
	}
	if h.loadBooking(t, b.ID).Status != entity.BookingStatusPending {
		t.Fatalf("booking changed without a verified status")
	}
}

func TestLateSuccessAfterFailureFlagsRefund(t *testing.T) {
	h := newHarness(t)
	s := h.schedule(t, 1)
	b := h.book(t, s, passenger())
	ctx := context.Background()

	if _, err := h.svc.Reconcile.Reconcile(ctx, b.TxRef, gateway.StatusExpired, SourceSweep); err != nil {
		t.Fatalf("expire: %v", err)
	}
	out, err := h.svc.Reconcile.Reconcile(ctx, b.TxRef, gateway.StatusSuccess, SourceWebhook)
	if err != nil {
		t.Fatalf("late success: %v", err)
	}
	if out.Result != ResultAlreadyApplied {
		t.Fatalf("result = %s", out.Result)
	}
	if h.events.count(events.PaymentRefundRequired) != 1 {
		t.Fatalf("refund not flagged")
	}
	if got := h.balance(t, s.CompanyID); got != 0 {
		t.Fatalf("balance = %d, want 0", got)
	}
}

func TestVerifyAndReconcile(t *testing.T) {
	h := newHarness(t)
	s := h.schedule(t, 1)
	b := h.book(t, s, passenger())
	h.payments.set(b.TxRef, gateway.StatusSuccess)

	resp, err := h.svc.Reconcile.VerifyAndReconcile(context.Background(), b.TxRef)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if resp.GatewayStatus != string(gateway.StatusSuccess) || resp.Result != string(ResultApplied) {
		t.Fatalf("resp = %+v", resp)
	}
}
