package entity

import (
	"github.com/google/uuid"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

const PaymentMethodPayChangu = "paychangu"

// Transaction is the payment attempt for a booking, keyed by the gateway
// reference. Once terminal it is never reconciled again.
type Transaction struct {
	Base
	BookingID     uuid.UUID         `db:"booking_id"`
	Reference     string            `db:"reference"`
	Amount        int64             `db:"amount"`
	Method        string            `db:"method"`
	Status        TransactionStatus `db:"status"`
	GatewayStatus *string           `db:"gateway_status"`
	CheckoutURL   *string           `db:"checkout_url"`
}

func (t *Transaction) IsTerminal() bool {
	return t.Status == TransactionStatusCompleted || t.Status == TransactionStatusFailed
}
