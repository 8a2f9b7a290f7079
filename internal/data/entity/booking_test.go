package entity

import (
	"testing"
	"time"
)

func TestBookingTransitions(t *testing.T) {
	cases := []struct {
		from, to BookingStatus
		want     bool
	}{
		{BookingStatusPending, BookingStatusConfirmed, true},
		{BookingStatusPending, BookingStatusPaymentFailed, true},
		{BookingStatusPending, BookingStatusCancelled, true},
		{BookingStatusPending, BookingStatusBoarded, false},
		{BookingStatusConfirmed, BookingStatusCancelled, true},
		{BookingStatusConfirmed, BookingStatusBoarded, true},
		{BookingStatusConfirmed, BookingStatusPending, false},
		{BookingStatusConfirmed, BookingStatusPaymentFailed, false},
		{BookingStatusPaymentFailed, BookingStatusConfirmed, false},
		{BookingStatusCancelled, BookingStatusConfirmed, false},
		{BookingStatusBoarded, BookingStatusCancelled, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Fatalf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestBookingTerminalAndSeat(t *testing.T) {
	for _, s := range []BookingStatus{BookingStatusPaymentFailed, BookingStatusCancelled, BookingStatusBoarded} {
		if !s.IsTerminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	if BookingStatusPaymentFailed.HoldsSeat() || BookingStatusCancelled.HoldsSeat() {
		t.Fatalf("released statuses must not hold a seat")
	}
	if !BookingStatusPending.HoldsSeat() || !BookingStatusBoarded.HoldsSeat() {
		t.Fatalf("pending and boarded bookings hold a seat")
	}
}

func TestPayoutTransitions(t *testing.T) {
	if !PayoutStatusPending.CanTransitionTo(PayoutStatusProcessing) {
		t.Fatalf("pending -> processing must be allowed")
	}
	if PayoutStatusPending.CanTransitionTo(PayoutStatusCompleted) {
		t.Fatalf("pending -> completed must go through processing")
	}
	if PayoutStatusProcessing.CanTransitionTo(PayoutStatusRejected) {
		t.Fatalf("processing payouts cannot be rejected")
	}
	if !PayoutStatusCompleted.IsTerminal() {
		t.Fatalf("completed is terminal")
	}
}

func TestScheduleDeparture(t *testing.T) {
	dep := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	s := &Schedule{DepartureTime: dep, Status: ScheduleStatusActive}

	if !s.IsBookable(dep.Add(-time.Minute)) {
		t.Fatalf("schedule should be bookable before departure")
	}
	if s.IsBookable(dep) {
		t.Fatalf("schedule must not be bookable at departure")
	}
	s.Status = ScheduleStatusCancelled
	if s.IsBookable(dep.Add(-time.Hour)) {
		t.Fatalf("cancelled schedule must not be bookable")
	}
}
