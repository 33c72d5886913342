package bridge

import (
	"context"

	"github.com/example/room-reservation/internal/application"
	"github.com/example/room-reservation/internal/persistence"
)

// BookingStore implements application.BookingStore.
type BookingStore struct {
	repo persistence.BookingRepository
}

// NewBookingStore wraps a booking repository.
func NewBookingStore(repo persistence.BookingRepository) *BookingStore {
	return &BookingStore{repo: repo}
}

func (s *BookingStore) CreateBooking(ctx context.Context, booking application.Booking) (application.Booking, error) {
	if err := s.repo.CreateBooking(ctx, toPersistenceBooking(booking)); err != nil {
		return application.Booking{}, err
	}
	stored, err := s.repo.GetBooking(ctx, booking.ID)
	if err != nil {
		return application.Booking{}, err
	}
	return toApplicationBooking(stored), nil
}

func (s *BookingStore) GetBooking(ctx context.Context, id string) (application.Booking, error) {
	stored, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return application.Booking{}, err
	}
	return toApplicationBooking(stored), nil
}

func (s *BookingStore) ListBookings(ctx context.Context, query application.BookingQuery) ([]application.Booking, error) {
	models, err := s.repo.ListBookings(ctx, toPersistenceFilter(query))
	if err != nil {
		return nil, err
	}
	return toApplicationBookings(models), nil
}

func (s *BookingStore) DeleteBooking(ctx context.Context, id string) error {
	return s.repo.DeleteBooking(ctx, id)
}

func (s *BookingStore) WithinRoom(ctx context.Context, roomID string, fn func(tx application.BookingTx) error) error {
	return s.repo.WithinRoom(ctx, roomID, func(tx persistence.BookingTx) error {
		return fn(bookingTx{tx: tx})
	})
}

type bookingTx struct {
	tx persistence.BookingTx
}

func (t bookingTx) GetBooking(ctx context.Context, id string) (application.Booking, error) {
	stored, err := t.tx.GetBooking(ctx, id)
	if err != nil {
		return application.Booking{}, err
	}
	return toApplicationBooking(stored), nil
}

func (t bookingTx) ListRoomBookings(ctx context.Context, roomID string, statuses ...application.BookingStatus) ([]application.Booking, error) {
	models, err := t.tx.ListRoomBookings(ctx, roomID, toPersistenceStatuses(statuses)...)
	if err != nil {
		return nil, err
	}
	return toApplicationBookings(models), nil
}

func (t bookingTx) UpdateBooking(ctx context.Context, booking application.Booking) error {
	return t.tx.UpdateBooking(ctx, toPersistenceBooking(booking))
}

func (t bookingTx) CompareAndSetStatus(ctx context.Context, change application.StatusChange) error {
	return t.tx.CompareAndSetStatus(ctx, toPersistenceStatusChange(change))
}
