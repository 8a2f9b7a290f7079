package request

import "time"

type CreateScheduleRequest struct {
	CompanyID     string    `json:"company_id" validate:"required,uuid"`
	BusID         string    `json:"bus_id" validate:"required,uuid"`
	RouteID       string    `json:"route_id" validate:"required,uuid"`
	DepartureTime time.Time `json:"departure_time" validate:"required"`
	ArrivalTime   time.Time `json:"arrival_time" validate:"required,gtfield=DepartureTime"`
	Price         int64     `json:"price" validate:"gte=0"`
	TotalSeats    int       `json:"total_seats" validate:"required,gt=0"`
}

type SetAccountStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active suspended"`
}
