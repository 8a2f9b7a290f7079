package response

import (
	"time"

	"bus-booking/internal/data/entity"
)

type BookingResponse struct {
	ID               string                   `json:"id"`
	ScheduleID       string                   `json:"schedule_id"`
	PassengerID      string                   `json:"passenger_id"`
	Status           entity.BookingStatus     `json:"status"`
	TxRef            string                   `json:"tx_ref,omitempty"`
	CredentialStatus *entity.CredentialStatus `json:"credential_status,omitempty"`
	CheckoutURL      string                   `json:"checkout_url,omitempty"`
	Price            int64                    `json:"price,omitempty"`
	DepartureTime    *time.Time               `json:"departure_time,omitempty"`
	CreatedAt        time.Time                `json:"created_at"`
	CancelledAt      *time.Time               `json:"cancelled_at,omitempty"`
	BoardedAt        *time.Time               `json:"boarded_at,omitempty"`
}

type CredentialResponse struct {
	BookingID  string                  `json:"booking_id"`
	Credential string                  `json:"credential"`
	Status     entity.CredentialStatus `json:"status"`
}

type BoardingResponse struct {
	BookingID   string    `json:"booking_id"`
	ScheduleID  string    `json:"schedule_id"`
	PassengerID string    `json:"passenger_id"`
	BoardedAt   time.Time `json:"boarded_at"`
}

type ScheduleResponse struct {
	ID             string                `json:"id"`
	CompanyID      string                `json:"company_id"`
	BusID          string                `json:"bus_id"`
	RouteID        string                `json:"route_id"`
	DepartureTime  time.Time             `json:"departure_time"`
	ArrivalTime    time.Time             `json:"arrival_time"`
	Price          int64                 `json:"price"`
	TotalSeats     int                   `json:"total_seats"`
	AvailableSeats int                   `json:"available_seats"`
	Status         entity.ScheduleStatus `json:"status"`
}

type ScheduleCancellationResponse struct {
	ScheduleID string `json:"schedule_id"`
	Cancelled  int    `json:"cancelled_bookings"`
	Released   int    `json:"released_seats"`
}

// Helper converters
func BookingToResponse(b *entity.Booking) BookingResponse {
	resp := BookingResponse{
		ID:               b.ID.String(),
		ScheduleID:       b.ScheduleID.String(),
		PassengerID:      b.PassengerID.String(),
		Status:           b.Status,
		CredentialStatus: b.CredentialStatus,
		CreatedAt:        b.CreatedAt,
		CancelledAt:      b.CancelledAt,
		BoardedAt:        b.BoardedAt,
	}
	if b.TxRef != nil {
		resp.TxRef = *b.TxRef
	}
	return resp
}

func ScheduleToResponse(s *entity.Schedule) ScheduleResponse {
	return ScheduleResponse{
		ID:             s.ID.String(),
		CompanyID:      s.CompanyID.String(),
		BusID:          s.BusID.String(),
		RouteID:        s.RouteID.String(),
		DepartureTime:  s.DepartureTime,
		ArrivalTime:    s.ArrivalTime,
		Price:          s.Price,
		TotalSeats:     s.TotalSeats,
		AvailableSeats: s.AvailableSeats,
		Status:         s.Status,
	}
}
