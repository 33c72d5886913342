package testfixtures

import (
	"context"
	"testing"

	"github.com/example/room-reservation/internal/application"
)

func TestServiceFactoryNewMemoryServices(t *testing.T) {
	factory := NewServiceFactory()
	services := factory.NewMemoryServices(t)

	admin := application.Principal{UserID: "admin", IsAdmin: true}
	room, err := services.Rooms.CreateRoom(context.Background(), application.CreateRoomParams{
		Principal: admin,
		Input:     NewRoomFixture().Input(),
	})
	if err != nil {
		t.Fatalf("CreateRoom returned error: %v", err)
	}
	if room.ID != IDFor("id", 1) {
		t.Fatalf("expected generated ID %s, got %q", IDFor("id", 1), room.ID)
	}
	if !room.CreatedAt.Equal(factory.Clock.Now()) {
		t.Fatalf("expected timestamp %v, got %v", factory.Clock.Now(), room.CreatedAt)
	}

	booking, err := services.Bookings.CreateBooking(context.Background(), application.CreateBookingParams{
		Principal: application.Principal{UserID: "member"},
		Input:     NewBookingFixture(WithBookingRoom(room.ID), WithBookingOwner("member")).Input(),
	})
	if err != nil {
		t.Fatalf("CreateBooking returned error: %v", err)
	}
	if booking.UserID != "member" {
		t.Fatalf("expected booking owned by member, got %q", booking.UserID)
	}
	if booking.Status != application.BookingStatusPending {
		t.Fatalf("expected pending booking, got %s", booking.Status)
	}
}
