package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/room-reservation/internal/persistence"
)

const (
	bookingID = "2f1c6a52-5b7e-4a0f-9d8a-3c1e7b6d4a10"
	roomID    = "room-1"
)

func TestBookingService_CreateBooking(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	now := start.Add(-24 * time.Hour)

	t.Run("creates pending bookings owned by the principal", func(t *testing.T) {
		t.Parallel()

		store := newBookingStoreStub()
		svc := NewBookingService(store, roomCatalogStub{roomID: true}, nil, nil, func() string { return bookingID }, func() time.Time { return now })

		booking, err := svc.CreateBooking(context.Background(), CreateBookingParams{
			Principal: Principal{UserID: "member"},
			Input:     BookingInput{RoomID: roomID, Start: start, End: end, Purpose: "  planning "},
		})
		if err != nil {
			t.Fatalf("CreateBooking failed: %v", err)
		}
		if booking.Status != BookingStatusPending || booking.UserID != "member" || booking.Purpose != "planning" {
			t.Fatalf("unexpected booking: %#v", booking)
		}
		if !booking.CreatedAt.Equal(now) {
			t.Fatalf("expected created_at %v, got %v", now, booking.CreatedAt)
		}
	})

	t.Run("forbids members booking for someone else", func(t *testing.T) {
		t.Parallel()

		svc := NewBookingService(newBookingStoreStub(), roomCatalogStub{roomID: true}, nil, nil, nil, nil)
		_, err := svc.CreateBooking(context.Background(), CreateBookingParams{
			Principal: Principal{UserID: "member"},
			Input:     BookingInput{OwnerID: "someone", RoomID: roomID, Start: start, End: end},
		})
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("reports unknown rooms as validation errors", func(t *testing.T) {
		t.Parallel()

		store := newBookingStoreStub()
		svc := NewBookingService(store, roomCatalogStub{}, nil, nil, nil, nil)
		_, err := svc.CreateBooking(context.Background(), CreateBookingParams{
			Principal: Principal{UserID: "member"},
			Input:     BookingInput{RoomID: roomID, Start: start, End: end},
		})
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.FieldErrors["room_id"] == "" {
			t.Fatalf("expected room_id validation error, got %v", err)
		}
		if store.creates != 0 {
			t.Fatal("expected no store write")
		}
	})

	t.Run("collects every field error", func(t *testing.T) {
		t.Parallel()

		svc := NewBookingService(newBookingStoreStub(), nil, nil, nil, nil, nil)
		_, err := svc.CreateBooking(context.Background(), CreateBookingParams{Principal: Principal{UserID: "member"}})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		for _, field := range []string{"room_id", "start", "end"} {
			if vErr.FieldErrors[field] == "" {
				t.Fatalf("expected %s error, got %#v", field, vErr.FieldErrors)
			}
		}
	})

	t.Run("maps storage constraint errors", func(t *testing.T) {
		t.Parallel()

		store := newBookingStoreStub()
		store.createErr = persistence.ErrForeignKeyViolation
		svc := NewBookingService(store, nil, nil, nil, nil, nil)
		_, err := svc.CreateBooking(context.Background(), CreateBookingParams{
			Principal: Principal{UserID: "member"},
			Input:     BookingInput{RoomID: roomID, Start: start, End: end},
		})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})
}

func TestBookingService_ListBookingsRestrictsMembers(t *testing.T) {
	t.Parallel()

	store := newBookingStoreStub()
	svc := NewBookingService(store, nil, directoryStub{}, nil, nil, nil)

	if _, err := svc.ListBookings(context.Background(), ListBookingsParams{
		Principal: Principal{UserID: "member"},
		UserID:    "someone-else",
		RoomID:    roomID,
	}); err != nil {
		t.Fatalf("ListBookings failed: %v", err)
	}
	if store.lastQuery.UserID != "member" || store.lastQuery.RoomID != roomID {
		t.Fatalf("expected query scoped to member, got %#v", store.lastQuery)
	}

	if _, err := svc.ListBookings(context.Background(), ListBookingsParams{
		Principal: Principal{UserID: "admin", IsAdmin: true},
		UserID:    "someone-else",
	}); err != nil {
		t.Fatalf("ListBookings failed: %v", err)
	}
	if store.lastQuery.UserID != "someone-else" {
		t.Fatalf("expected admin filter to pass through, got %#v", store.lastQuery)
	}

	if _, err := svc.ListPendingBookings(context.Background(), Principal{UserID: "member"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestBookingService_GetBookingEnrichesView(t *testing.T) {
	t.Parallel()

	store := newBookingStoreStub()
	store.bookings[bookingID] = Booking{ID: bookingID, UserID: "member", RoomID: roomID, Status: BookingStatusPending}
	svc := NewBookingService(store, nil, directoryStub{
		users: map[string]User{"member": {ID: "member", Name: "Mia", Email: "mia@example.com"}},
		rooms: map[string]Room{roomID: {ID: roomID, Name: "Aurora", Location: "3F"}},
	}, nil, nil, nil)

	view, err := svc.GetBooking(context.Background(), Principal{UserID: "member"}, bookingID)
	if err != nil {
		t.Fatalf("GetBooking failed: %v", err)
	}
	if view.RoomName != "Aurora" || view.RoomLocation != "3F" || view.UserName != "Mia" || view.UserEmail != "mia@example.com" {
		t.Fatalf("unexpected view: %#v", view)
	}

	if _, err := svc.GetBooking(context.Background(), Principal{UserID: "stranger"}, bookingID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestBookingService_DeleteBooking(t *testing.T) {
	t.Parallel()

	store := newBookingStoreStub()
	store.bookings[bookingID] = Booking{ID: bookingID, UserID: "member", RoomID: roomID}
	svc := NewBookingService(store, nil, nil, nil, nil, nil)

	if err := svc.DeleteBooking(context.Background(), Principal{UserID: "stranger"}, bookingID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := svc.DeleteBooking(context.Background(), Principal{UserID: "member"}, bookingID); err != nil {
		t.Fatalf("DeleteBooking failed: %v", err)
	}
	if err := svc.DeleteBooking(context.Background(), Principal{UserID: "member"}, bookingID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBookingService_DispatchContinuesAfterFailure(t *testing.T) {
	t.Parallel()

	notifier := &notifierStub{failFor: "first"}
	svc := NewBookingService(nil, nil, nil, notifier, nil, nil)

	svc.dispatch(context.Background(), svc.logger, []Notification{{BookingID: "first"}, {BookingID: "second"}})

	if len(notifier.seen) != 2 || notifier.seen[1] != "second" {
		t.Fatalf("expected both notifications to be attempted, got %v", notifier.seen)
	}
}

func TestBookingStatusTransitions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from, to BookingStatus
		allowed  bool
	}{
		{BookingStatusPending, BookingStatusApproved, true},
		{BookingStatusPending, BookingStatusRejected, true},
		{BookingStatusApproved, BookingStatusRejected, true},
		{BookingStatusApproved, BookingStatusPending, false},
		{BookingStatusRejected, BookingStatusApproved, false},
		{BookingStatusRejected, BookingStatusPending, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.allowed, got)
		}
	}
	if !BookingStatusRejected.IsTerminal() || BookingStatusApproved.IsTerminal() {
		t.Fatal("expected only rejected to be terminal")
	}
	if _, ok := ParseBookingStatus("cancelled"); ok {
		t.Fatal("expected unknown status to be rejected")
	}
}

// bookingStoreStub implements BookingStore without transactions.
type bookingStoreStub struct {
	bookings  map[string]Booking
	createErr error
	creates   int
	lastQuery BookingQuery
}

func newBookingStoreStub() *bookingStoreStub {
	return &bookingStoreStub{bookings: make(map[string]Booking)}
}

func (s *bookingStoreStub) CreateBooking(ctx context.Context, booking Booking) (Booking, error) {
	if s.createErr != nil {
		return Booking{}, s.createErr
	}
	s.creates++
	s.bookings[booking.ID] = booking
	return booking, nil
}

func (s *bookingStoreStub) GetBooking(ctx context.Context, id string) (Booking, error) {
	booking, ok := s.bookings[id]
	if !ok {
		return Booking{}, persistence.ErrNotFound
	}
	return booking, nil
}

func (s *bookingStoreStub) ListBookings(ctx context.Context, query BookingQuery) ([]Booking, error) {
	s.lastQuery = query
	return nil, nil
}

func (s *bookingStoreStub) DeleteBooking(ctx context.Context, id string) error {
	if _, ok := s.bookings[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.bookings, id)
	return nil
}

func (s *bookingStoreStub) WithinRoom(ctx context.Context, roomID string, fn func(tx BookingTx) error) error {
	return errors.New("transactions not supported by stub")
}

type roomCatalogStub map[string]bool

func (s roomCatalogStub) RoomExists(ctx context.Context, id string) (bool, error) {
	return s[id], nil
}

type directoryStub struct {
	users map[string]User
	rooms map[string]Room
}

func (d directoryStub) LookupUsers(ctx context.Context, ids []string) (map[string]User, error) {
	return d.users, nil
}

func (d directoryStub) LookupRooms(ctx context.Context, ids []string) (map[string]Room, error) {
	return d.rooms, nil
}

type notifierStub struct {
	failFor string
	seen    []string
}

func (n *notifierStub) Notify(ctx context.Context, notification Notification) error {
	n.seen = append(n.seen, notification.BookingID)
	if notification.BookingID == n.failFor {
		return errors.New("queue full")
	}
	return nil
}
