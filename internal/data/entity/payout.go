package entity

import (
	"time"

	"github.com/google/uuid"
)

type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusCompleted  PayoutStatus = "completed"
	PayoutStatusFailed     PayoutStatus = "failed"
	PayoutStatusCancelled  PayoutStatus = "cancelled"
	PayoutStatusRejected   PayoutStatus = "rejected"
)

var payoutTransitions = map[PayoutStatus][]PayoutStatus{
	PayoutStatusPending:    {PayoutStatusProcessing, PayoutStatusRejected, PayoutStatusCancelled},
	PayoutStatusProcessing: {PayoutStatusCompleted, PayoutStatusFailed, PayoutStatusCancelled},
}

func (s PayoutStatus) CanTransitionTo(next PayoutStatus) bool {
	for _, allowed := range payoutTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s PayoutStatus) IsTerminal() bool {
	return len(payoutTransitions[s]) == 0
}

type PayoutMethod string

const (
	PayoutMethodBankTransfer PayoutMethod = "bank_transfer"
	PayoutMethodMobileMoney  PayoutMethod = "mobile_money"
)

// Payout is a company withdrawal. The destination account details are kept
// sealed and only opened when the transfer is sent to the gateway.
type Payout struct {
	ID                uuid.UUID    `db:"id"`
	CompanyID         uuid.UUID    `db:"company_id"`
	Amount            int64        `db:"amount"`
	Status            PayoutStatus `db:"status"`
	Method            PayoutMethod `db:"method"`
	ChargeID          string       `db:"charge_id"`
	GatewayRef        *string      `db:"gateway_ref"`
	SealedDestination []byte       `db:"sealed_destination"`
	Reason            *string      `db:"reason"`
	RequestedAt       time.Time    `db:"requested_at"`
	ProcessedAt       *time.Time   `db:"processed_at"`
	ResolvedAt        *time.Time   `db:"resolved_at"`
	UpdatedAt         time.Time    `db:"updated_at"`
}

// PayoutDestination is the plaintext form of Payout.SealedDestination.
type PayoutDestination struct {
	BankUUID      string `json:"bank_uuid,omitempty"`
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
	MobileNumber  string `json:"mobile_number,omitempty"`
	Operator      string `json:"mobile_money_operator_ref_id,omitempty"`
}
