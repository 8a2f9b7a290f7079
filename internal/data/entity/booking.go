package entity

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingStatusPending       BookingStatus = "pending"
	BookingStatusConfirmed     BookingStatus = "confirmed"
	BookingStatusPaymentFailed BookingStatus = "payment_failed"
	BookingStatusCancelled     BookingStatus = "cancelled"
	BookingStatusBoarded       BookingStatus = "boarded"
)

// bookingTransitions lists every legal edge of the booking lifecycle.
// pending -> cancelled is only taken when the whole schedule is cancelled.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusPaymentFailed, BookingStatusCancelled},
	BookingStatusConfirmed: {BookingStatusCancelled, BookingStatusBoarded},
}

func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// HoldsSeat reports whether a booking in this status occupies a seat.
func (s BookingStatus) HoldsSeat() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusBoarded:
		return true
	}
	return false
}

func (s BookingStatus) IsTerminal() bool {
	return len(bookingTransitions[s]) == 0
}

type CredentialStatus string

const (
	CredentialStatusUnused  CredentialStatus = "unused"
	CredentialStatusUsed    CredentialStatus = "used"
	CredentialStatusExpired CredentialStatus = "expired"
)

type Booking struct {
	Base
	ScheduleID       uuid.UUID         `db:"schedule_id"`
	PassengerID      uuid.UUID         `db:"passenger_id"`
	Status           BookingStatus     `db:"status"`
	TxRef            *string           `db:"tx_ref"`
	Credential       *string           `db:"credential"`
	CredentialStatus *CredentialStatus `db:"credential_status"`
	CancelledAt      *time.Time        `db:"cancelled_at"`
	BoardedAt        *time.Time        `db:"boarded_at"`
}
