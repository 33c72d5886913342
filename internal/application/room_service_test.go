package application

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/example/room-reservation/internal/persistence"
)

// roomRepoStub keeps rooms in a map so name uniqueness and deletes can be
// observed across calls.
type roomRepoStub struct {
	rooms     map[string]Room
	deleted   []string
	createErr error
}

func newRoomRepoStub(rooms ...Room) *roomRepoStub {
	stub := &roomRepoStub{rooms: make(map[string]Room)}
	for _, room := range rooms {
		stub.rooms[room.ID] = room
	}
	return stub
}

func (r *roomRepoStub) CreateRoom(ctx context.Context, room Room) (Room, error) {
	if r.createErr != nil {
		return Room{}, r.createErr
	}
	r.rooms[room.ID] = room
	return room, nil
}

func (r *roomRepoStub) GetRoom(ctx context.Context, id string) (Room, error) {
	room, ok := r.rooms[id]
	if !ok {
		return Room{}, persistence.ErrNotFound
	}
	return room, nil
}

func (r *roomRepoStub) UpdateRoom(ctx context.Context, room Room) (Room, error) {
	if _, ok := r.rooms[room.ID]; !ok {
		return Room{}, persistence.ErrNotFound
	}
	r.rooms[room.ID] = room
	return room, nil
}

func (r *roomRepoStub) DeleteRoom(ctx context.Context, id string) error {
	if _, ok := r.rooms[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(r.rooms, id)
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *roomRepoStub) ListRooms(ctx context.Context) ([]Room, error) {
	out := make([]Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, room)
	}
	return out, nil
}

// bookingListerStub applies BookingQuery the way the stores do.
type bookingListerStub struct {
	bookings []Booking
	err      error
}

func (s *bookingListerStub) ListBookings(ctx context.Context, query BookingQuery) ([]Booking, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []Booking
	for _, booking := range s.bookings {
		if query.RoomID != "" && booking.RoomID != query.RoomID {
			continue
		}
		if len(query.Statuses) > 0 && !containsStatus(query.Statuses, booking.Status) {
			continue
		}
		if query.StartsBefore != nil && !booking.Start.Before(*query.StartsBefore) {
			continue
		}
		if query.EndsAfter != nil && !booking.End.After(*query.EndsAfter) {
			continue
		}
		out = append(out, booking)
	}
	return out, nil
}

func containsStatus(statuses []BookingStatus, status BookingStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

var (
	roomTestNow = time.Date(2024, time.January, 8, 12, 0, 0, 0, time.UTC)
	roomAdmin   = Principal{UserID: "admin", IsAdmin: true}
	roomMember  = Principal{UserID: "member"}
)

func roomAt(hour int) time.Time {
	return roomTestNow.Truncate(24 * time.Hour).Add(time.Duration(hour) * time.Hour)
}

func newTestRoomService(rooms *roomRepoStub, bookings BookingLister) *RoomService {
	return NewRoomService(rooms, bookings, func() string { return "room-new" }, func() time.Time { return roomTestNow })
}

func TestRoomService_CreateRoom(t *testing.T) {
	ctx := context.Background()

	t.Run("members cannot add rooms", func(t *testing.T) {
		svc := newTestRoomService(newRoomRepoStub(), nil)
		_, err := svc.CreateRoom(ctx, CreateRoomParams{
			Principal: roomMember,
			Input:     RoomInput{Name: "Sakura", Location: "10F", Capacity: 6},
		})
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("trims input and stamps timestamps", func(t *testing.T) {
		repo := newRoomRepoStub()
		svc := newTestRoomService(repo, nil)
		blank := "   "
		room, err := svc.CreateRoom(ctx, CreateRoomParams{
			Principal: roomAdmin,
			Input:     RoomInput{Name: "  Sakura ", Location: " 10F", Capacity: 6, ImageURL: &blank},
		})
		if err != nil {
			t.Fatalf("CreateRoom returned error: %v", err)
		}
		if room.ID != "room-new" || room.Name != "Sakura" || room.Location != "10F" {
			t.Fatalf("unexpected room: %+v", room)
		}
		if room.ImageURL != nil {
			t.Fatalf("expected blank image URL to be dropped, got %q", *room.ImageURL)
		}
		if !room.CreatedAt.Equal(roomTestNow) || !room.UpdatedAt.Equal(roomTestNow) {
			t.Fatalf("expected timestamps at %v, got %+v", roomTestNow, room)
		}
		if _, ok := repo.rooms["room-new"]; !ok {
			t.Fatal("expected room to be stored")
		}
	})

	t.Run("names are unique ignoring case", func(t *testing.T) {
		repo := newRoomRepoStub(Room{ID: "r1", Name: "Sakura", Location: "10F", Capacity: 4})
		svc := newTestRoomService(repo, nil)
		_, err := svc.CreateRoom(ctx, CreateRoomParams{
			Principal: roomAdmin,
			Input:     RoomInput{Name: "SAKURA", Location: "11F", Capacity: 8},
		})
		if !errors.Is(err, ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
		if len(repo.rooms) != 1 {
			t.Fatalf("expected no new room, have %d", len(repo.rooms))
		}
	})

	t.Run("reports every invalid field", func(t *testing.T) {
		svc := newTestRoomService(newRoomRepoStub(), nil)
		image := "ftp://example.com/room.png"
		_, err := svc.CreateRoom(ctx, CreateRoomParams{
			Principal: roomAdmin,
			Input:     RoomInput{Capacity: 0, ImageURL: &image},
		})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		for _, field := range []string{"name", "location", "capacity", "image_url"} {
			if _, ok := vErr.FieldErrors[field]; !ok {
				t.Fatalf("expected %s error, got %+v", field, vErr.FieldErrors)
			}
		}
	})

	t.Run("store duplicates map to ErrAlreadyExists", func(t *testing.T) {
		repo := newRoomRepoStub()
		repo.createErr = persistence.ErrDuplicate
		svc := newTestRoomService(repo, nil)
		_, err := svc.CreateRoom(ctx, CreateRoomParams{
			Principal: roomAdmin,
			Input:     RoomInput{Name: "Sakura", Location: "10F", Capacity: 6},
		})
		if !errors.Is(err, ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
	})
}

func TestRoomService_UpdateRoom(t *testing.T) {
	ctx := context.Background()
	image := "https://example.com/sakura.png"
	existing := Room{ID: "r1", Name: "Sakura", Location: "10F", Capacity: 4, ImageURL: &image, CreatedAt: roomAt(0)}

	t.Run("applies only the fields that are set", func(t *testing.T) {
		repo := newRoomRepoStub(existing)
		svc := newTestRoomService(repo, nil)
		capacity := 10
		room, err := svc.UpdateRoom(ctx, UpdateRoomParams{
			Principal: roomAdmin,
			RoomID:    "r1",
			Patch:     RoomPatch{Capacity: &capacity},
		})
		if err != nil {
			t.Fatalf("UpdateRoom returned error: %v", err)
		}
		if room.Capacity != 10 || room.Name != "Sakura" || room.Location != "10F" {
			t.Fatalf("unexpected room: %+v", room)
		}
		if room.ImageURL == nil || *room.ImageURL != image {
			t.Fatalf("expected image URL to be kept, got %v", room.ImageURL)
		}
		if !room.UpdatedAt.Equal(roomTestNow) {
			t.Fatalf("expected UpdatedAt %v, got %v", roomTestNow, room.UpdatedAt)
		}
	})

	t.Run("empty image URL clears it", func(t *testing.T) {
		repo := newRoomRepoStub(existing)
		svc := newTestRoomService(repo, nil)
		empty := ""
		room, err := svc.UpdateRoom(ctx, UpdateRoomParams{Principal: roomAdmin, RoomID: "r1", Patch: RoomPatch{ImageURL: &empty}})
		if err != nil {
			t.Fatalf("UpdateRoom returned error: %v", err)
		}
		if room.ImageURL != nil {
			t.Fatalf("expected image URL to be cleared, got %q", *room.ImageURL)
		}
	})

	t.Run("empty patch returns the stored room", func(t *testing.T) {
		repo := newRoomRepoStub(existing)
		svc := newTestRoomService(repo, nil)
		room, err := svc.UpdateRoom(ctx, UpdateRoomParams{Principal: roomAdmin, RoomID: "r1"})
		if err != nil {
			t.Fatalf("UpdateRoom returned error: %v", err)
		}
		if !reflect.DeepEqual(room, existing) {
			t.Fatalf("expected %+v, got %+v", existing, room)
		}
	})

	t.Run("renaming onto another room is refused", func(t *testing.T) {
		repo := newRoomRepoStub(existing, Room{ID: "r2", Name: "Momiji", Location: "11F", Capacity: 4})
		svc := newTestRoomService(repo, nil)
		name := "momiji"
		_, err := svc.UpdateRoom(ctx, UpdateRoomParams{Principal: roomAdmin, RoomID: "r1", Patch: RoomPatch{Name: &name}})
		if !errors.Is(err, ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("changing only the case of a name is allowed", func(t *testing.T) {
		repo := newRoomRepoStub(existing)
		svc := newTestRoomService(repo, nil)
		name := "SAKURA"
		room, err := svc.UpdateRoom(ctx, UpdateRoomParams{Principal: roomAdmin, RoomID: "r1", Patch: RoomPatch{Name: &name}})
		if err != nil {
			t.Fatalf("UpdateRoom returned error: %v", err)
		}
		if room.Name != "SAKURA" {
			t.Fatalf("expected renamed room, got %q", room.Name)
		}
	})

	t.Run("non positive capacity is rejected", func(t *testing.T) {
		repo := newRoomRepoStub(existing)
		svc := newTestRoomService(repo, nil)
		capacity := 0
		_, err := svc.UpdateRoom(ctx, UpdateRoomParams{Principal: roomAdmin, RoomID: "r1", Patch: RoomPatch{Capacity: &capacity}})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if repo.rooms["r1"].Capacity != 4 {
			t.Fatal("expected stored room to stay unchanged")
		}
	})

	t.Run("unknown room", func(t *testing.T) {
		svc := newTestRoomService(newRoomRepoStub(), nil)
		name := "x"
		_, err := svc.UpdateRoom(ctx, UpdateRoomParams{Principal: roomAdmin, RoomID: "missing", Patch: RoomPatch{Name: &name}})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("members cannot edit rooms", func(t *testing.T) {
		svc := newTestRoomService(newRoomRepoStub(existing), nil)
		_, err := svc.UpdateRoom(ctx, UpdateRoomParams{Principal: roomMember, RoomID: "r1"})
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})
}

func TestRoomService_DeleteRoom(t *testing.T) {
	ctx := context.Background()
	room := Room{ID: "r1", Name: "Sakura", Location: "10F", Capacity: 4}

	t.Run("refuses while approved or pending bookings are ahead", func(t *testing.T) {
		repo := newRoomRepoStub(room)
		bookings := &bookingListerStub{bookings: []Booking{
			{ID: "b-pending", RoomID: "r1", Start: roomAt(14), End: roomAt(15), Status: BookingStatusPending},
			{ID: "b-approved", RoomID: "r1", Start: roomAt(11), End: roomAt(13), Status: BookingStatusApproved},
			{ID: "b-rejected", RoomID: "r1", Start: roomAt(16), End: roomAt(17), Status: BookingStatusRejected},
			{ID: "b-other-room", RoomID: "r2", Start: roomAt(16), End: roomAt(17), Status: BookingStatusApproved},
		}}
		svc := newTestRoomService(repo, bookings)

		err := svc.DeleteRoom(ctx, roomAdmin, "r1")
		var inUse *RoomInUseError
		if !errors.As(err, &inUse) {
			t.Fatalf("expected RoomInUseError, got %v", err)
		}
		if !errors.Is(err, ErrRoomInUse) {
			t.Fatalf("expected error to wrap ErrRoomInUse, got %v", err)
		}
		if want := []string{"b-approved", "b-pending"}; !reflect.DeepEqual(inUse.BookingIDs, want) {
			t.Fatalf("expected blocking bookings %v, got %v", want, inUse.BookingIDs)
		}
		if _, ok := repo.rooms["r1"]; !ok {
			t.Fatal("expected room to survive")
		}
	})

	t.Run("past and rejected bookings do not block", func(t *testing.T) {
		repo := newRoomRepoStub(room)
		bookings := &bookingListerStub{bookings: []Booking{
			{ID: "b-past", RoomID: "r1", Start: roomAt(9), End: roomAt(10), Status: BookingStatusApproved},
			{ID: "b-ended-now", RoomID: "r1", Start: roomAt(11), End: roomAt(12), Status: BookingStatusPending},
			{ID: "b-rejected", RoomID: "r1", Start: roomAt(16), End: roomAt(17), Status: BookingStatusRejected},
		}}
		svc := newTestRoomService(repo, bookings)

		if err := svc.DeleteRoom(ctx, roomAdmin, "r1"); err != nil {
			t.Fatalf("DeleteRoom returned error: %v", err)
		}
		if !reflect.DeepEqual(repo.deleted, []string{"r1"}) {
			t.Fatalf("expected r1 deleted, got %v", repo.deleted)
		}
	})

	t.Run("booking lookup failures abort the delete", func(t *testing.T) {
		repo := newRoomRepoStub(room)
		boom := errors.New("db down")
		svc := newTestRoomService(repo, &bookingListerStub{err: boom})

		if err := svc.DeleteRoom(ctx, roomAdmin, "r1"); !errors.Is(err, boom) {
			t.Fatalf("expected %v, got %v", boom, err)
		}
		if len(repo.deleted) != 0 {
			t.Fatal("expected room to survive")
		}
	})

	t.Run("unknown room", func(t *testing.T) {
		svc := newTestRoomService(newRoomRepoStub(), &bookingListerStub{})
		if err := svc.DeleteRoom(ctx, roomAdmin, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("members cannot delete rooms", func(t *testing.T) {
		repo := newRoomRepoStub(room)
		svc := newTestRoomService(repo, &bookingListerStub{})
		if err := svc.DeleteRoom(ctx, roomMember, "r1"); !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})
}

func TestRoomService_ListRooms(t *testing.T) {
	ctx := context.Background()
	repo := newRoomRepoStub(
		Room{ID: "r3", Name: "momiji", Capacity: 12},
		Room{ID: "r1", Name: "Sakura", Capacity: 4},
		Room{ID: "r2", Name: "Kaede", Capacity: 8},
	)
	bookings := &bookingListerStub{bookings: []Booking{
		{ID: "b1", RoomID: "r2", Start: roomAt(10), End: roomAt(11), Status: BookingStatusApproved},
		{ID: "b2", RoomID: "r3", Start: roomAt(10), End: roomAt(11), Status: BookingStatusPending},
		{ID: "b3", RoomID: "r1", Start: roomAt(9), End: roomAt(10), Status: BookingStatusApproved},
	}}
	svc := newTestRoomService(repo, bookings)

	ids := func(rooms []Room) []string {
		out := make([]string, len(rooms))
		for i, room := range rooms {
			out[i] = room.ID
		}
		return out
	}
	window := func(from, until int) RoomQuery {
		start, end := roomAt(from), roomAt(until)
		return RoomQuery{FreeFrom: &start, FreeUntil: &end}
	}

	cases := []struct {
		name  string
		query RoomQuery
		want  []string
	}{
		{name: "ordered by name ignoring case", want: []string{"r2", "r3", "r1"}},
		{name: "minimum capacity", query: RoomQuery{MinCapacity: 8}, want: []string{"r2", "r3"}},
		{name: "approved overlap hides a room", query: window(10, 12), want: []string{"r3", "r1"}},
		{name: "touching window keeps the room", query: window(11, 12), want: []string{"r2", "r3", "r1"}},
		{name: "filters combine", query: RoomQuery{MinCapacity: 5, FreeFrom: window(9, 11).FreeFrom, FreeUntil: window(9, 11).FreeUntil}, want: []string{"r3"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rooms, err := svc.ListRooms(ctx, ListRoomsParams{Principal: roomMember, Query: tc.query})
			if err != nil {
				t.Fatalf("ListRooms returned error: %v", err)
			}
			if got := ids(rooms); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}

	t.Run("window bounds come together", func(t *testing.T) {
		from := roomAt(9)
		_, err := svc.ListRooms(ctx, ListRoomsParams{Query: RoomQuery{FreeFrom: &from}})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("empty window is rejected", func(t *testing.T) {
		_, err := svc.ListRooms(ctx, ListRoomsParams{Query: window(10, 10)})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if _, ok := vErr.FieldErrors["time"]; !ok {
			t.Fatalf("expected time error, got %+v", vErr.FieldErrors)
		}
	})

	t.Run("negative capacity is rejected", func(t *testing.T) {
		_, err := svc.ListRooms(ctx, ListRoomsParams{Query: RoomQuery{MinCapacity: -1}})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})
}

func TestRoomService_RoomExists(t *testing.T) {
	svc := newTestRoomService(newRoomRepoStub(Room{ID: "r1", Name: "Sakura"}), nil)

	ok, err := svc.RoomExists(context.Background(), "r1")
	if err != nil || !ok {
		t.Fatalf("expected r1 to exist, got %v %v", ok, err)
	}
	ok, err = svc.RoomExists(context.Background(), "missing")
	if err != nil || ok {
		t.Fatalf("expected missing room to be reported absent, got %v %v", ok, err)
	}
}

func TestRoomService_NotConfigured(t *testing.T) {
	var svc *RoomService
	if _, err := svc.GetRoom(context.Background(), "r1"); err == nil {
		t.Fatal("expected error from nil service")
	}
	if _, err := NewRoomService(nil, nil, nil, nil).ListRooms(context.Background(), ListRoomsParams{}); err == nil {
		t.Fatal("expected error without repository")
	}
}
