package response

type ReconcileResponse struct {
	Reference string `json:"tx_ref"`
	BookingID string `json:"booking_id"`
	Result    string `json:"result"`
	Status    string `json:"booking_status"`
}

type VerifyPaymentResponse struct {
	Reference     string `json:"tx_ref"`
	GatewayStatus string `json:"gateway_status"`
	Result        string `json:"result"`
}
