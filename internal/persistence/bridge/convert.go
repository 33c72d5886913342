// Package bridge adapts persistence repositories to the ports declared by
// the application services.
package bridge

import (
	"github.com/example/room-reservation/internal/application"
	"github.com/example/room-reservation/internal/persistence"
)

func toApplicationUser(model persistence.User) application.User {
	return application.User{
		ID:        model.ID,
		Email:     model.Email,
		Name:      model.Name,
		IsAdmin:   model.IsAdmin,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}

func toPersistenceUser(user application.User, passwordHash string) persistence.User {
	return persistence.User{
		ID:           user.ID,
		Email:        user.Email,
		Name:         user.Name,
		PasswordHash: passwordHash,
		IsAdmin:      user.IsAdmin,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}
}

func toApplicationRoom(model persistence.Room) application.Room {
	return application.Room{
		ID:        model.ID,
		Name:      model.Name,
		Location:  model.Location,
		Capacity:  model.Capacity,
		ImageURL:  cloneString(model.ImageURL),
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}

func toPersistenceRoom(room application.Room) persistence.Room {
	return persistence.Room{
		ID:        room.ID,
		Name:      room.Name,
		Location:  room.Location,
		Capacity:  room.Capacity,
		ImageURL:  cloneString(room.ImageURL),
		CreatedAt: room.CreatedAt,
		UpdatedAt: room.UpdatedAt,
	}
}

func toApplicationBooking(model persistence.Booking) application.Booking {
	return application.Booking{
		ID:         model.ID,
		UserID:     model.UserID,
		RoomID:     model.RoomID,
		Start:      model.Start,
		End:        model.End,
		Purpose:    deref(model.Purpose),
		Status:     application.BookingStatus(model.Status),
		ApprovedBy: deref(model.ApprovedBy),
		Reason:     deref(model.Reason),
		CreatedAt:  model.CreatedAt,
		UpdatedAt:  model.UpdatedAt,
	}
}

func toApplicationBookings(models []persistence.Booking) []application.Booking {
	bookings := make([]application.Booking, 0, len(models))
	for _, model := range models {
		bookings = append(bookings, toApplicationBooking(model))
	}
	return bookings
}

func toPersistenceBooking(booking application.Booking) persistence.Booking {
	return persistence.Booking{
		ID:         booking.ID,
		UserID:     booking.UserID,
		RoomID:     booking.RoomID,
		Start:      booking.Start,
		End:        booking.End,
		Purpose:    optional(booking.Purpose),
		Status:     persistence.BookingStatus(booking.Status),
		ApprovedBy: optional(booking.ApprovedBy),
		Reason:     optional(booking.Reason),
		CreatedAt:  booking.CreatedAt,
		UpdatedAt:  booking.UpdatedAt,
	}
}

func toPersistenceStatusChange(change application.StatusChange) persistence.StatusChange {
	return persistence.StatusChange{
		ID:         change.BookingID,
		From:       persistence.BookingStatus(change.From),
		To:         persistence.BookingStatus(change.To),
		ApprovedBy: optional(change.ApprovedBy),
		Reason:     optional(change.Reason),
		UpdatedAt:  change.At,
	}
}

func toPersistenceFilter(query application.BookingQuery) persistence.BookingFilter {
	return persistence.BookingFilter{
		UserID:       query.UserID,
		RoomID:       query.RoomID,
		Statuses:     toPersistenceStatuses(query.Statuses),
		StartsBefore: query.StartsBefore,
		EndsAfter:    query.EndsAfter,
	}
}

func toPersistenceStatuses(statuses []application.BookingStatus) []persistence.BookingStatus {
	if len(statuses) == 0 {
		return nil
	}
	converted := make([]persistence.BookingStatus, len(statuses))
	for i, status := range statuses {
		converted[i] = persistence.BookingStatus(status)
	}
	return converted
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
