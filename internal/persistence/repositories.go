package persistence

import (
	"context"
	"time"
)

// UserRepository exposes CRUD operations for users.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	UpdateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	DeleteUser(ctx context.Context, id string) error
}

// RoomRepository exposes CRUD operations for rooms.
type RoomRepository interface {
	CreateRoom(ctx context.Context, room Room) error
	UpdateRoom(ctx context.Context, room Room) error
	GetRoom(ctx context.Context, id string) (Room, error)
	ListRooms(ctx context.Context) ([]Room, error)
	DeleteRoom(ctx context.Context, id string) error
}

// BookingFilter narrows booking queries. Zero values do not constrain.
// StartsBefore and EndsAfter together select bookings intersecting a window.
type BookingFilter struct {
	UserID       string
	RoomID       string
	Statuses     []BookingStatus
	StartsBefore *time.Time
	EndsAfter    *time.Time
}

// BookingRepository stores bookings and serializes work per room.
type BookingRepository interface {
	CreateBooking(ctx context.Context, booking Booking) error
	GetBooking(ctx context.Context, id string) (Booking, error)
	ListBookings(ctx context.Context, filter BookingFilter) ([]Booking, error)
	// UpdateBooking rewrites the non-status fields of a booking.
	UpdateBooking(ctx context.Context, booking Booking) error
	DeleteBooking(ctx context.Context, id string) error

	// WithinRoom runs fn atomically with respect to every other WithinRoom
	// call on the same room. When fn returns an error nothing it wrote is
	// kept.
	WithinRoom(ctx context.Context, roomID string, fn func(tx BookingTx) error) error
}

// BookingTx is the view of the store available inside WithinRoom.
type BookingTx interface {
	GetBooking(ctx context.Context, id string) (Booking, error)
	ListRoomBookings(ctx context.Context, roomID string, statuses ...BookingStatus) ([]Booking, error)
	UpdateBooking(ctx context.Context, booking Booking) error
	CompareAndSetStatus(ctx context.Context, change StatusChange) error
}

// MatchesFilter reports whether booking satisfies filter. Store
// implementations that cannot express a filter in their query language use it
// to post-filter rows.
func MatchesFilter(booking Booking, filter BookingFilter) bool {
	if filter.UserID != "" && booking.UserID != filter.UserID {
		return false
	}
	if filter.RoomID != "" && booking.RoomID != filter.RoomID {
		return false
	}
	if len(filter.Statuses) > 0 && !hasStatus(filter.Statuses, booking.Status) {
		return false
	}
	if filter.StartsBefore != nil && !booking.Start.Before(*filter.StartsBefore) {
		return false
	}
	if filter.EndsAfter != nil && !booking.End.After(*filter.EndsAfter) {
		return false
	}
	return true
}

func hasStatus(statuses []BookingStatus, status BookingStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
