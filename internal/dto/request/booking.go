package request

type CreateBookingRequest struct {
	ScheduleID string `json:"schedule_id" validate:"required,uuid"`
	Email      string `json:"email" validate:"omitempty,email"`
	FirstName  string `json:"first_name" validate:"omitempty,max=100"`
	LastName   string `json:"last_name" validate:"omitempty,max=100"`
}

type ValidateCredentialRequest struct {
	Credential string `json:"credential" validate:"required,max=64"`
	ScheduleID string `json:"schedule_id" validate:"omitempty,uuid"`
}
