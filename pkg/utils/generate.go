package utils

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	txRefPrefix      = "BOOKING-"
	credentialPrefix = "UTK-"
	chargeIDPrefix   = "PAYOUT-"
)

var ErrMalformedReference = errors.New("malformed reference")

// ==================== PAYMENT REFERENCE ====================

// GenerateTxRef builds the gateway reference for a booking.
// Format: BOOKING-{booking uuid}-{unix seconds}
func GenerateTxRef(bookingID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("%s%s-%d", txRefPrefix, bookingID.String(), at.Unix())
}

// ParseTxRef extracts the booking id from a reference built by GenerateTxRef.
func ParseTxRef(ref string) (uuid.UUID, error) {
	rest, ok := strings.CutPrefix(ref, txRefPrefix)
	if !ok || len(rest) < 38 || rest[36] != '-' {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrMalformedReference, ref)
	}

	bookingID, err := uuid.Parse(rest[:36])
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrMalformedReference, ref)
	}
	if _, err := strconv.ParseInt(rest[37:], 10, 64); err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrMalformedReference, ref)
	}

	return bookingID, nil
}

// ==================== BOARDING CREDENTIAL ====================

// GenerateCredential returns an opaque boarding token. It carries 122 random
// bits and nothing derived from the booking.
func GenerateCredential() string {
	id := uuid.New()
	return credentialPrefix + strings.ToUpper(strings.ReplaceAll(id.String(), "-", ""))
}

// ==================== PAYOUT ====================

func GenerateChargeID() string {
	return chargeIDPrefix + uuid.NewString()
}
