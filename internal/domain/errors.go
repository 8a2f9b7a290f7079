package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNoSeatsAvailable         = errors.New("no seats available")
	ErrInsufficientBalance      = errors.New("insufficient balance")
	ErrGatewayUnavailable       = errors.New("payment gateway unavailable")
	ErrBookingNotFound          = errors.New("booking not found")
	ErrScheduleNotFound         = errors.New("schedule not found")
	ErrScheduleCancelled        = errors.New("schedule cancelled")
	ErrPayoutNotFound           = errors.New("payout not found")
	ErrTransactionNotFound      = errors.New("transaction not found")
	ErrAccountNotFound          = errors.New("company account not found")
	ErrCancellationWindowClosed = errors.New("cancellation window closed")
	ErrScheduleDeparted         = errors.New("schedule already departed")
	ErrInvariantViolation       = errors.New("invariant violation")
	ErrInvalidAmount            = errors.New("invalid amount")
	ErrAccountSuspended         = errors.New("company account suspended")
	ErrForbidden                = errors.New("forbidden")
	ErrInvalidReference         = errors.New("invalid payment reference")
	ErrInvalidSignature         = errors.New("invalid signature")
	ErrUnknownStatus            = errors.New("unknown gateway status")
)

// InvalidStateTransitionError reports a transition attempted from a state
// other than the one the caller expected.
type InvalidStateTransitionError struct {
	Entity   string
	ID       string
	Current  string
	Expected string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("%s %s is %s, expected %s", e.Entity, e.ID, e.Current, e.Expected)
}

// Reasons reported by CredentialInvalidError.
const (
	CredentialUsed        = "used"
	CredentialExpired     = "expired"
	CredentialWrongState  = "wrong_state"
	CredentialNotYetValid = "not_yet_valid"
	CredentialUnknown     = "unknown"
	CredentialWrongTrip   = "wrong_trip"
)

type CredentialInvalidError struct {
	Reason string
}

func (e *CredentialInvalidError) Error() string {
	return "credential invalid: " + e.Reason
}

// ValidationError carries a request field that failed a business rule.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func IsRetryable(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrScheduleNotFound) ||
		errors.Is(err, ErrPayoutNotFound) ||
		errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrAccountNotFound)
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}
