package request

// PaymentWebhookRequest is the body PayChangu posts to the payment webhook.
type PaymentWebhookRequest struct {
	TxRef  string `json:"tx_ref" validate:"required"`
	Status string `json:"status" validate:"required"`
}

type PayoutWebhookRequest struct {
	RefID    string `json:"ref_id"`
	ChargeID string `json:"charge_id" validate:"required_without=RefID"`
	Status   string `json:"status" validate:"required"`
}
