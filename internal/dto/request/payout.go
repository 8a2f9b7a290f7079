package request

type CreatePayoutRequest struct {
	Amount        int64  `json:"amount" validate:"required,gt=0"`
	Method        string `json:"method" validate:"required,oneof=bank_transfer mobile_money"`
	BankUUID      string `json:"bank_uuid" validate:"required_if=Method bank_transfer"`
	AccountName   string `json:"account_name" validate:"required,max=150"`
	AccountNumber string `json:"account_number" validate:"required_if=Method bank_transfer"`
	MobileNumber  string `json:"mobile_number" validate:"required_if=Method mobile_money"`
	Operator      string `json:"operator"`
}

type ProcessPayoutRequest struct {
	Action string `json:"action" validate:"required,oneof=approve reject"`
	Reason string `json:"reason" validate:"required_if=Action reject"`
}
