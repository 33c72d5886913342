package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/room-reservation/internal/persistence"
)

// RoomRepository captures the persistence operations needed by the service.
type RoomRepository interface {
	CreateRoom(ctx context.Context, room Room) (Room, error)
	GetRoom(ctx context.Context, id string) (Room, error)
	UpdateRoom(ctx context.Context, room Room) (Room, error)
	DeleteRoom(ctx context.Context, id string) error
	ListRooms(ctx context.Context) ([]Room, error)
}

// BookingLister is the read side of the booking store.
type BookingLister interface {
	ListBookings(ctx context.Context, query BookingQuery) ([]Booking, error)
}

// RoomService manages the bookable room catalog. Rooms that still carry
// live bookings cannot be removed.
type RoomService struct {
	rooms       RoomRepository
	bookings    BookingLister
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewRoomService constructs a room service. bookings may be nil, in which
// case rooms are deleted without checking for live bookings and
// availability filters are ignored.
func NewRoomService(rooms RoomRepository, bookings BookingLister, idGenerator func() string, now func() time.Time) *RoomService {
	return NewRoomServiceWithLogger(rooms, bookings, idGenerator, now, nil)
}

// NewRoomServiceWithLogger constructs a room service with a specified logger.
func NewRoomServiceWithLogger(rooms RoomRepository, bookings BookingLister, idGenerator func() string, now func() time.Time, logger *slog.Logger) *RoomService {
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	if now == nil {
		now = time.Now
	}
	return &RoomService{
		rooms:       rooms,
		bookings:    bookings,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *RoomService) ready() error {
	if s == nil {
		return fmt.Errorf("RoomService is nil")
	}
	if s.rooms == nil {
		return fmt.Errorf("room repository not configured")
	}
	return nil
}

// CreateRoom adds a room to the catalog. Names are unique ignoring case.
func (s *RoomService) CreateRoom(ctx context.Context, params CreateRoomParams) (room Room, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := serviceLogger(ctx, s.logger, "RoomService", "CreateRoom", "principal_id", params.Principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create room", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("room_id", room.ID).InfoContext(ctx, "room created")
	}()

	if !params.Principal.IsAdmin {
		err = ErrForbidden
		return
	}

	candidate := Room{
		ID:       s.idGenerator(),
		Name:     strings.TrimSpace(params.Input.Name),
		Location: strings.TrimSpace(params.Input.Location),
		Capacity: params.Input.Capacity,
		ImageURL: normalizeOptionalString(params.Input.ImageURL),
	}
	if vErr := validateRoom(candidate); vErr.HasErrors() {
		err = vErr
		return
	}
	if err = s.ensureNameFree(ctx, candidate); err != nil {
		return
	}

	candidate.CreatedAt = s.now()
	candidate.UpdatedAt = candidate.CreatedAt
	room, err = s.rooms.CreateRoom(ctx, candidate)
	err = mapRoomRepoError(err)
	return
}

// UpdateRoom applies the fields set in the patch. An empty image URL clears
// the stored one.
func (s *RoomService) UpdateRoom(ctx context.Context, params UpdateRoomParams) (room Room, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := serviceLogger(ctx, s.logger, "RoomService", "UpdateRoom",
		"principal_id", params.Principal.UserID,
		"room_id", params.RoomID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update room", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "room updated")
	}()

	if !params.Principal.IsAdmin {
		err = ErrForbidden
		return
	}

	var current Room
	if current, err = s.rooms.GetRoom(ctx, params.RoomID); err != nil {
		err = mapRoomRepoError(err)
		return
	}
	if params.Patch.isEmpty() {
		room = current
		return
	}

	updated := params.Patch.apply(current)
	if vErr := validateRoom(updated); vErr.HasErrors() {
		err = vErr
		return
	}
	if !strings.EqualFold(updated.Name, current.Name) {
		if err = s.ensureNameFree(ctx, updated); err != nil {
			return
		}
	}

	updated.UpdatedAt = s.now()
	room, err = s.rooms.UpdateRoom(ctx, updated)
	err = mapRoomRepoError(err)
	return
}

// DeleteRoom removes a room. It fails with a RoomInUseError while pending or
// approved bookings on the room have not ended yet; past and rejected
// bookings are removed together with the room.
func (s *RoomService) DeleteRoom(ctx context.Context, principal Principal, roomID string) (err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := serviceLogger(ctx, s.logger, "RoomService", "DeleteRoom",
		"principal_id", principal.UserID,
		"room_id", roomID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete room", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "room deleted")
	}()

	if !principal.IsAdmin {
		err = ErrForbidden
		return
	}
	if _, err = s.rooms.GetRoom(ctx, roomID); err != nil {
		err = mapRoomRepoError(err)
		return
	}

	if s.bookings != nil {
		now := s.now()
		var live []Booking
		live, err = s.bookings.ListBookings(ctx, BookingQuery{
			RoomID:    roomID,
			Statuses:  []BookingStatus{BookingStatusPending, BookingStatusApproved},
			EndsAfter: &now,
		})
		if err != nil {
			err = mapBookingRepoError(err)
			return
		}
		if len(live) > 0 {
			inUse := &RoomInUseError{RoomID: roomID}
			for _, booking := range live {
				inUse.BookingIDs = append(inUse.BookingIDs, booking.ID)
			}
			sort.Strings(inUse.BookingIDs)
			err = inUse
			return
		}
	}

	err = mapRoomRepoError(s.rooms.DeleteRoom(ctx, roomID))
	return
}

// ListRooms returns the catalog ordered by name. The query can require a
// minimum capacity and a window in which the room has no approved booking.
func (s *RoomService) ListRooms(ctx context.Context, params ListRoomsParams) (rooms []Room, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := serviceLogger(ctx, s.logger, "RoomService", "ListRooms", "principal_id", params.Principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list rooms", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(rooms)).InfoContext(ctx, "rooms listed")
	}()

	query := params.Query
	if query.FreeFrom != nil || query.FreeUntil != nil {
		if query.FreeFrom == nil || query.FreeUntil == nil {
			err = newValidationError("free_from", "free_from and free_until must be given together")
			return
		}
		if vErr := validateInterval(*query.FreeFrom, *query.FreeUntil); vErr.HasErrors() {
			err = vErr
			return
		}
	}
	if query.MinCapacity < 0 {
		err = newValidationError("min_capacity", "min_capacity must not be negative")
		return
	}

	var all []Room
	if all, err = s.rooms.ListRooms(ctx); err != nil {
		return
	}

	busy := map[string]struct{}{}
	if query.FreeFrom != nil && s.bookings != nil {
		var approved []Booking
		approved, err = s.bookings.ListBookings(ctx, BookingQuery{
			Statuses:     []BookingStatus{BookingStatusApproved},
			StartsBefore: query.FreeUntil,
			EndsAfter:    query.FreeFrom,
		})
		if err != nil {
			err = mapBookingRepoError(err)
			return
		}
		for _, booking := range approved {
			if toSlot(booking).Intersects(*query.FreeFrom, *query.FreeUntil) {
				busy[booking.RoomID] = struct{}{}
			}
		}
	}

	rooms = make([]Room, 0, len(all))
	for _, room := range all {
		if room.Capacity < query.MinCapacity {
			continue
		}
		if _, taken := busy[room.ID]; taken {
			continue
		}
		rooms = append(rooms, room)
	}
	sort.SliceStable(rooms, func(i, j int) bool {
		a, b := strings.ToLower(rooms[i].Name), strings.ToLower(rooms[j].Name)
		if a != b {
			return a < b
		}
		return rooms[i].ID < rooms[j].ID
	})
	return
}

// GetRoom returns a single room.
func (s *RoomService) GetRoom(ctx context.Context, roomID string) (Room, error) {
	if err := s.ready(); err != nil {
		return Room{}, err
	}
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return Room{}, mapRoomRepoError(err)
	}
	return room, nil
}

// RoomExists reports whether roomID names a catalog entry, so the service
// can act as the booking service's RoomCatalog.
func (s *RoomService) RoomExists(ctx context.Context, roomID string) (bool, error) {
	_, err := s.GetRoom(ctx, roomID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (s *RoomService) ensureNameFree(ctx context.Context, candidate Room) error {
	existing, err := s.rooms.ListRooms(ctx)
	if err != nil {
		return err
	}
	for _, room := range existing {
		if room.ID != candidate.ID && strings.EqualFold(room.Name, candidate.Name) {
			return fmt.Errorf("room %q: %w", candidate.Name, ErrAlreadyExists)
		}
	}
	return nil
}

func validateRoom(room Room) *ValidationError {
	vErr := &ValidationError{}
	if room.Name == "" {
		vErr.add("name", "name is required")
	}
	if room.Location == "" {
		vErr.add("location", "location is required")
	}
	if room.Capacity <= 0 {
		vErr.add("capacity", "capacity must be positive")
	}
	if room.ImageURL != nil {
		if u, err := url.ParseRequestURI(*room.ImageURL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			vErr.add("image_url", "must be an http or https URL")
		}
	}
	return vErr
}

func mapRoomRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, persistence.ErrConstraintViolation):
		return newValidationError("capacity", "capacity must be positive")
	}
	return err
}

func normalizeOptionalString(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
