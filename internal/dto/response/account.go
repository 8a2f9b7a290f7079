package response

import (
	"time"

	"bus-booking/internal/data/entity"
)

type AccountResponse struct {
	CompanyID string               `json:"company_id"`
	Balance   int64                `json:"balance"`
	Currency  string               `json:"currency"`
	Status    entity.AccountStatus `json:"status"`
	Entries   []LedgerEntryResult  `json:"recent_entries"`
}

type LedgerEntryResult struct {
	Kind      entity.LedgerKind `json:"kind"`
	Amount    int64             `json:"amount"`
	Reference string            `json:"reference"`
	CreatedAt time.Time         `json:"created_at"`
}

type PayoutResponse struct {
	ID          string              `json:"id"`
	CompanyID   string              `json:"company_id"`
	Amount      int64               `json:"amount"`
	Status      entity.PayoutStatus `json:"status"`
	Method      entity.PayoutMethod `json:"method"`
	ChargeID    string              `json:"charge_id"`
	GatewayRef  *string             `json:"gateway_ref,omitempty"`
	Reason      *string             `json:"reason,omitempty"`
	RequestedAt time.Time           `json:"requested_at"`
	ProcessedAt *time.Time          `json:"processed_at,omitempty"`
	ResolvedAt  *time.Time          `json:"resolved_at,omitempty"`
}

func PayoutToResponse(p *entity.Payout) PayoutResponse {
	return PayoutResponse{
		ID:          p.ID.String(),
		CompanyID:   p.CompanyID.String(),
		Amount:      p.Amount,
		Status:      p.Status,
		Method:      p.Method,
		ChargeID:    p.ChargeID,
		GatewayRef:  p.GatewayRef,
		Reason:      p.Reason,
		RequestedAt: p.RequestedAt,
		ProcessedAt: p.ProcessedAt,
		ResolvedAt:  p.ResolvedAt,
	}
}

type PayoutResolutionResponse struct {
	PayoutID string              `json:"payout_id"`
	ChargeID string              `json:"charge_id"`
	Result   string              `json:"result"`
	Status   entity.PayoutStatus `json:"status"`
}
