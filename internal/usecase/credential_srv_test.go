package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"bus-booking/internal/data/entity"
	"bus-booking/internal/domain"
	"bus-booking/internal/dto/request"
	"bus-booking/pkg/utils"

	"github.com/google/uuid"
)

func conductor(companyID uuid.UUID) utils.Actor {
	return utils.Actor{ID: uuid.New(), Role: utils.RoleConductor, CompanyID: companyID}
}

func credentialReason(t *testing.T, err error) string {
	t.Helper()
	var credErr *domain.CredentialInvalidError
	if !errors.As(err, &credErr) {
		t.Fatalf("err = %v, want CredentialInvalidError", err)
	}
	return credErr.Reason
}

func TestIssueCredentialIsIdempotent(t *testing.T) {
	h := newHarness(t)
	s := h.schedule(t, 2)
	actor, b := h.confirmedBooking(t, s)
	ctx := context.Background()

	first, err := h.svc.Credential.Issue(ctx, actor, b.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	second, err := h.svc.Credential.Issue(ctx, actor, b.ID)
	if err != nil {
		t.Fatalf("reissue: %v", err)
	}

	if first.Credential != second.Credential {
		t.Fatalf("reissue minted a new credential: %s vs %s", first.Credential, second.Credential)
	}
	if !strings.HasPrefix(first.Credential, "UTK-") || first.Status != entity.CredentialStatusUnused {
		t.Fatalf("credential = %+v", first)
	}
	if strings.Contains(first.Credential, strings.ReplaceAll(strings.ToUpper(b.ID), "-", "")) {
		t.Fatalf("credential leaks the booking id")
	}
}

func TestIssueCredentialConcurrentCallsAgree(t *testing.T) {
	h := newHarness(t)
	s := h.schedule(t, 2)
	actor, b := h.confirmedBooking(t, s)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]bool)
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := h.svc.Credential.Issue(context.Background(), actor, b.ID)
			if err != nil {
				t.Errorf("issue: %v", err)
				return
			}
			mu.Lock()
			seen[resp.Credential] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != 1 {
		t.Fatalf("issued %d distinct credentials", len(seen))
	}
}

func TestIssueCredentialRequiresConfirmed(t *testing.T) {
	h := newHarness(t)
	s := h.schedule(t, 2)
	actor := passenger()
	b := h.book(t, s, actor)

	_, err := h.svc.Credential.Issue(context.Background(), actor, b.ID)
	var stateErr *domain.InvalidStateTransitionError
	if !errors.As(err, &stateErr) {
		t.Fatalf("err = %v, want InvalidStateTransitionError", err)
	}

	if _, err := h.svc.Credential.Issue(context.Background(), passenger(), b.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("stranger issue err = %v, want ErrForbidden", err)
	}
}

func TestValidateCredentialSingleUse(t *testing.T) {
	h := newHarness(t)
	s := h.schedule(t, 2)
	actor, b := h.confirmedBooking(t, s)
	ctx := context.Background()

	cred, err := h.svc.Credential.Issue(ctx, actor, b.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	h.clock.Set(s.DepartureTime.Add(10 * time.Minute))

	const scanners = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		boarded int
		used    int
	)
	for i := 0; i < scanners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Credential.Validate(ctx, conductor(s.CompanyID), &request.ValidateCredentialRequest{Credential: cred.Credential})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				boarded++
				return
			}
			var credErr *domain.CredentialInvalidError
			if errors.As(err, &credErr) && credErr.Reason == domain.CredentialUsed {
				used++
				return
			}
			t.Errorf("unexpected error: %v", err)
		}()
	}
	wg.Wait()

	if boarded != 1 || used != scanners-1 {
		t.Fatalf("boarded = %d, used = %d", boarded, used)
	}

	stored := h.loadBooking(t, b.ID)
	if stored.Status != entity.BookingStatusBoarded || stored.BoardedAt == nil {
		t.Fatalf("booking = %+v", stored)
	}
	if *stored.CredentialStatus != entity.CredentialStatusUsed {
		t.Fatalf("credential status = %s", *stored.CredentialStatus)
	}

	_, err = h.svc.Credential.Validate(ctx, conductor(s.CompanyID), &request.ValidateCredentialRequest{Credential: cred.Credential})
	if reason := credentialReason(t, err); reason != domain.CredentialUsed {
		t.Fatalf("rescan reason = %s, want used", reason)
	}
}

func TestValidateCredentialWindow(t *testing.T) {
	h := newHarness(t)
	s := h.schedule(t, 2)
	actor, b := h.confirmedBooking(t, s)
	ctx := context.Background()

	cred, err := h.svc.Credential.Issue(ctx, actor, b.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	req := &request.ValidateCredentialRequest{Credential: cred.Credential}

	h.clock.Set(s.DepartureTime.Add(-time.Minute))
	_, err = h.svc.Credential.Validate(ctx, conductor(s.CompanyID), req)
	if reason := credentialReason(t, err); reason != domain.CredentialNotYetValid {
		t.Fatalf("early reason = %s", reason)
	}

	h.clock.Set(s.DepartureTime.Add(h.config.Booking.BoardingGrace + time.Second))
	_, err = h.svc.Credential.Validate(ctx, conductor(s.CompanyID), req)
	if reason := credentialReason(t, err); reason != domain.CredentialExpired {
		t.Fatalf("late reason = %s", reason)
	}

	stored := h.loadBooking(t, b.ID)
	if stored.Status != entity.BookingStatusConfirmed || *stored.CredentialStatus != entity.CredentialStatusUnused {
		t.Fatalf("refused scan mutated booking: %+v", stored)
	}
}

func TestValidateCredentialRefusals(t *testing.T) {
	h := newHarness(t)
	s := h.schedule(t, 3)
	other := h.scheduleFor(t, s.CompanyID, 3)
	ctx := context.Background()
	h.clock.Set(s.DepartureTime)

	_, err := h.svc.Credential.Validate(ctx, conductor(uuid.Nil), &request.ValidateCredentialRequest{Credential: "UTK-NOPE"})
	if reason := credentialReason(t, err); reason != domain.CredentialUnknown {
		t.Fatalf("unknown reason = %s", reason)
	}

	h.clock.Set(s.DepartureTime.Add(-48 * time.Hour))
	actor, b := h.confirmedBooking(t, s)
	cred, err := h.svc.Credential.Issue(ctx, actor, b.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	h.clock.Set(s.DepartureTime)

	_, err = h.svc.Credential.Validate(ctx, conductor(s.CompanyID), &request.ValidateCredentialRequest{
		Credential: cred.Credential,
		ScheduleID: other.ID.String(),
	})
	if reason := credentialReason(t, err); reason != domain.CredentialWrongTrip {
		t.Fatalf("wrong trip reason = %s", reason)
	}

	_, err = h.svc.Credential.Validate(ctx, conductor(uuid.New()), &request.ValidateCredentialRequest{Credential: cred.Credential})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("foreign conductor err = %v, want ErrForbidden", err)
	}

	resp, err := h.svc.Credential.Validate(ctx, conductor(s.CompanyID), &request.ValidateCredentialRequest{
		Credential: cred.Credential,
		ScheduleID: s.ID.String(),
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if resp.BookingID != b.ID {
		t.Fatalf("boarded booking = %s", resp.BookingID)
	}
}

func TestCancelledBookingCredentialIsWrongState(t *testing.T) {
	h := newHarness(t)
	s := h.schedule(t, 2)
	actor, b := h.confirmedBooking(t, s)
	ctx := context.Background()

	cred, err := h.svc.Credential.Issue(ctx, actor, b.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := h.svc.Booking.CancelBooking(ctx, actor, b.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	h.clock.Set(s.DepartureTime)
	_, err = h.svc.Credential.Validate(ctx, conductor(s.CompanyID), &request.ValidateCredentialRequest{Credential: cred.Credential})
	if reason := credentialReason(t, err); reason != domain.CredentialWrongState {
		t.Fatalf("reason = %s, want wrong_state", reason)
	}
	if got := h.loadBooking(t, b.ID); got.CredentialStatus == nil || *got.CredentialStatus != entity.CredentialStatusExpired {
		t.Fatalf("credential status = %v, want expired", got.CredentialStatus)
	}
}
