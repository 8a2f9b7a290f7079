// Package gateway is the boundary to the external payment provider. The
// engine only sees the two interfaces below; Client is the HTTP adapter.
package gateway

import (
	"context"
	"fmt"
	"strings"

	"bus-booking/internal/data/entity"
	"bus-booking/internal/domain"
)

// Status is a gateway outcome normalised to the engine vocabulary.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
	StatusPending   Status = "pending"
)

// ParseStatus maps the spellings providers use onto Status.
func ParseStatus(raw string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "success", "successful", "completed", "paid":
		return StatusSuccess, nil
	case "failed", "failure", "declined", "error":
		return StatusFailed, nil
	case "cancelled", "canceled":
		return StatusCancelled, nil
	case "expired", "abandoned", "timeout":
		return StatusExpired, nil
	case "pending", "processing", "initiated":
		return StatusPending, nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnknownStatus, raw)
}

func (s Status) IsTerminal() bool {
	return s != StatusPending
}

type CheckoutRequest struct {
	Amount    int64
	Currency  string
	Reference string
	Email     string
	FirstName string
	LastName  string
}

type CheckoutSession struct {
	CheckoutURL string
	Reference   string
}

type PaymentGateway interface {
	InitiateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	VerifyPayment(ctx context.Context, reference string) (Status, error)
}

type PayoutRequest struct {
	Amount      int64
	ChargeID    string
	Method      entity.PayoutMethod
	Destination entity.PayoutDestination
}

type PayoutGateway interface {
	// InitiatePayout returns the provider reference of the transfer.
	InitiatePayout(ctx context.Context, req PayoutRequest) (string, error)
	VerifyPayout(ctx context.Context, refID string) (Status, error)
}
