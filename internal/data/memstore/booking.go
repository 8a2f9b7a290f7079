package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"bus-booking/internal/data/entity"
	"bus-booking/internal/domain"

	"github.com/google/uuid"
)

type bookingRepo struct{ handle }

func (r *bookingRepo) Create(_ context.Context, booking *entity.Booking) error {
	defer r.lock()()

	d := r.data()
	if _, ok := d.bookings[booking.ID]; ok {
		return fmt.Errorf("create booking %s: duplicate id", booking.ID)
	}
	if _, ok := d.schedules[booking.ScheduleID]; !ok {
		return fmt.Errorf("create booking %s: unknown schedule %s", booking.ID, booking.ScheduleID)
	}
	if booking.TxRef != nil {
		for _, b := range d.bookings {
			if b.TxRef != nil && *b.TxRef == *booking.TxRef {
				return fmt.Errorf("create booking %s: duplicate tx_ref", booking.ID)
			}
		}
	}

	c := copyBooking(booking)
	c.Credential = nil
	c.CredentialStatus = nil
	d.bookings[booking.ID] = c
	return nil
}

func (r *bookingRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Booking, error) {
	defer r.lock()()

	b, ok := r.data().bookings[id]
	if !ok {
		return nil, nil
	}
	return copyBooking(b), nil
}

func (r *bookingRepo) findByCredential(credential string) *entity.Booking {
	for _, b := range r.data().bookings {
		if b.Credential != nil && *b.Credential == credential {
			return b
		}
	}
	return nil
}

func (r *bookingRepo) FindByCredential(_ context.Context, credential string) (*entity.Booking, error) {
	defer r.lock()()

	if b := r.findByCredential(credential); b != nil {
		return copyBooking(b), nil
	}
	return nil, nil
}

func (r *bookingRepo) filter(keep func(b *entity.Booking) bool) []*entity.Booking {
	var out []*entity.Booking
	for _, b := range r.data().bookings {
		if keep(b) {
			out = append(out, copyBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *bookingRepo) FindByPassenger(_ context.Context, passengerID uuid.UUID, limit, offset int) ([]*entity.Booking, error) {
	defer r.lock()()

	out := r.filter(func(b *entity.Booking) bool { return b.PassengerID == passengerID })
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

func (r *bookingRepo) CountByPassenger(_ context.Context, passengerID uuid.UUID) (int64, error) {
	defer r.lock()()

	return int64(len(r.filter(func(b *entity.Booking) bool { return b.PassengerID == passengerID }))), nil
}

func (r *bookingRepo) FindStalePending(_ context.Context, before time.Time, limit int) ([]*entity.Booking, error) {
	defer r.lock()()

	out := r.filter(func(b *entity.Booking) bool {
		return b.Status == entity.BookingStatusPending && b.CreatedAt.Before(before)
	})
	return page(out, limit, 0), nil
}

func (r *bookingRepo) FindActiveBySchedule(_ context.Context, scheduleID uuid.UUID) ([]*entity.Booking, error) {
	defer r.lock()()

	return r.filter(func(b *entity.Booking) bool {
		return b.ScheduleID == scheduleID &&
			(b.Status == entity.BookingStatusPending || b.Status == entity.BookingStatusConfirmed)
	}), nil
}

func (r *bookingRepo) CountHeldBySchedule(_ context.Context, scheduleID uuid.UUID) (int, error) {
	defer r.lock()()

	return len(r.filter(func(b *entity.Booking) bool {
		return b.ScheduleID == scheduleID && b.Status.HoldsSeat()
	})), nil
}

func (r *bookingRepo) Transition(_ context.Context, id uuid.UUID, from, to entity.BookingStatus, at time.Time) error {
	if !from.CanTransitionTo(to) {
		return &domain.InvalidStateTransitionError{
			Entity: "booking", ID: id.String(), Current: string(from), Expected: "a status that allows " + string(to),
		}
	}

	defer r.lock()()

	b, ok := r.data().bookings[id]
	if !ok {
		return domain.ErrBookingNotFound
	}
	if b.Status != from {
		return &domain.InvalidStateTransitionError{
			Entity: "booking", ID: id.String(), Current: string(b.Status), Expected: string(from),
		}
	}

	b.Status = to
	b.UpdatedAt = at
	if to == entity.BookingStatusCancelled {
		b.CancelledAt = &at
	}
	return nil
}

func (r *bookingRepo) DeletePending(_ context.Context, id uuid.UUID) (bool, error) {
	defer r.lock()()

	d := r.data()
	b, ok := d.bookings[id]
	if !ok || b.Status != entity.BookingStatusPending {
		return false, nil
	}

	delete(d.bookings, id)
	for txID, tx := range d.transactions {
		if tx.BookingID == id {
			delete(d.transactions, txID)
		}
	}
	return true, nil
}

func (r *bookingRepo) IssueCredential(_ context.Context, id uuid.UUID, credential string, at time.Time) (bool, error) {
	defer r.lock()()

	b, ok := r.data().bookings[id]
	if !ok || b.Status != entity.BookingStatusConfirmed || b.Credential != nil {
		return false, nil
	}
	if r.findByCredential(credential) != nil {
		return false, fmt.Errorf("issue credential for booking %s: duplicate credential", id)
	}

	unused := entity.CredentialStatusUnused
	b.Credential = &credential
	b.CredentialStatus = &unused
	b.UpdatedAt = at
	return true, nil
}

func (r *bookingRepo) ExpireCredential(_ context.Context, id uuid.UUID, at time.Time) error {
	defer r.lock()()

	b, ok := r.data().bookings[id]
	if !ok || b.CredentialStatus == nil || *b.CredentialStatus != entity.CredentialStatusUnused {
		return nil
	}

	expired := entity.CredentialStatusExpired
	b.CredentialStatus = &expired
	b.UpdatedAt = at
	return nil
}

func (r *bookingRepo) ConsumeCredential(_ context.Context, credential string, scheduleID *uuid.UUID, now time.Time, grace time.Duration) (*entity.Booking, error) {
	defer r.lock()()

	b := r.findByCredential(credential)
	if b == nil || b.Status != entity.BookingStatusConfirmed ||
		b.CredentialStatus == nil || *b.CredentialStatus != entity.CredentialStatusUnused {
		return nil, nil
	}
	if scheduleID != nil && *scheduleID != b.ScheduleID {
		return nil, nil
	}

	s, ok := r.data().schedules[b.ScheduleID]
	if !ok || now.Before(s.DepartureTime) || now.After(s.DepartureTime.Add(grace)) {
		return nil, nil
	}

	used := entity.CredentialStatusUsed
	b.Status = entity.BookingStatusBoarded
	b.CredentialStatus = &used
	b.BoardedAt = &now
	b.UpdatedAt = now
	return copyBooking(b), nil
}
