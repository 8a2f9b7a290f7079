package entity

import (
	"time"

	"github.com/google/uuid"
)

type ScheduleStatus string

const (
	ScheduleStatusActive    ScheduleStatus = "active"
	ScheduleStatusCancelled ScheduleStatus = "cancelled"
)

// Schedule is one departure of a bus on a route. AvailableSeats is only
// written through the inventory operations of the schedule repository.
type Schedule struct {
	Base
	CompanyID      uuid.UUID      `db:"company_id"`
	BusID          uuid.UUID      `db:"bus_id"`
	RouteID        uuid.UUID      `db:"route_id"`
	DepartureTime  time.Time      `db:"departure_time"`
	ArrivalTime    time.Time      `db:"arrival_time"`
	Price          int64          `db:"price"`
	TotalSeats     int            `db:"total_seats"`
	AvailableSeats int            `db:"available_seats"`
	Status         ScheduleStatus `db:"status"`
}

func (s *Schedule) HasDeparted(now time.Time) bool {
	return !now.Before(s.DepartureTime)
}

func (s *Schedule) IsBookable(now time.Time) bool {
	return s.Status == ScheduleStatusActive && !s.HasDeparted(now)
}
