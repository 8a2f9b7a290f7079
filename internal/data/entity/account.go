package entity

import (
	"time"

	"github.com/google/uuid"
)

type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusSuspended AccountStatus = "suspended"
)

// CompanyAccount holds the withdrawable balance of a bus company.
type CompanyAccount struct {
	CompanyID uuid.UUID     `db:"company_id"`
	Balance   int64         `db:"balance"`
	Status    AccountStatus `db:"status"`
	CreatedAt time.Time     `db:"created_at"`
	UpdatedAt time.Time     `db:"updated_at"`
}

type LedgerKind string

const (
	LedgerKindCredit       LedgerKind = "credit"
	LedgerKindDebit        LedgerKind = "debit"
	LedgerKindRefundCredit LedgerKind = "refund_credit"
)

// LedgerEntry records one balance movement. (Kind, Reference) is unique.
type LedgerEntry struct {
	ID        uuid.UUID  `db:"id"`
	CompanyID uuid.UUID  `db:"company_id"`
	Kind      LedgerKind `db:"kind"`
	Amount    int64      `db:"amount"`
	Reference string     `db:"reference"`
	CreatedAt time.Time  `db:"created_at"`
}

// Signed returns the amount with the sign it applies to the balance.
func (e *LedgerEntry) Signed() int64 {
	if e.Kind == LedgerKindDebit {
		return -e.Amount
	}
	return e.Amount
}
