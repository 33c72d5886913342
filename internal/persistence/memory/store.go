// Package memory provides a process-local implementation of the persistence
// repositories. It backs tests and the "memory" storage mode.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/example/room-reservation/internal/persistence"
)

// Store keeps users, rooms and bookings in maps guarded by a single RWMutex.
// Room-scoped transactions additionally hold a per-room mutex for their whole
// duration and stage their writes until commit.
type Store struct {
	mu       sync.RWMutex
	users    map[string]persistence.User
	rooms    map[string]persistence.Room
	bookings map[string]persistence.Booking

	locksMu   sync.Mutex
	roomLocks map[string]*sync.Mutex
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:     make(map[string]persistence.User),
		rooms:     make(map[string]persistence.Room),
		bookings:  make(map[string]persistence.Booking),
		roomLocks: make(map[string]*sync.Mutex),
	}
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

// --- UserRepository implementation ---

// CreateUser stores a new user.
func (s *Store) CreateUser(ctx context.Context, user persistence.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return fmt.Errorf("memory: user %s: %w", user.ID, persistence.ErrDuplicate)
	}
	if err := s.ensureUniqueEmailLocked(user.ID, user.Email); err != nil {
		return err
	}

	s.users[user.ID] = user
	return nil
}

// UpdateUser updates an existing user.
func (s *Store) UpdateUser(ctx context.Context, user persistence.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; !ok {
		return persistence.ErrNotFound
	}
	if err := s.ensureUniqueEmailLocked(user.ID, user.Email); err != nil {
		return err
	}

	s.users[user.ID] = user
	return nil
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (persistence.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return persistence.User{}, persistence.ErrNotFound
	}
	return user, nil
}

// GetUserByEmail retrieves a user by case-insensitive email address.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return persistence.User{}, persistence.ErrNotFound
}

// ListUsers returns all users ordered by CreatedAt ascending.
func (s *Store) ListUsers(ctx context.Context) ([]persistence.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]persistence.User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

// DeleteUser removes a user and every booking they own.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.users, id)
	for bookingID, booking := range s.bookings {
		if booking.UserID == id {
			delete(s.bookings, bookingID)
		}
	}
	return nil
}

func (s *Store) ensureUniqueEmailLocked(id, email string) error {
	for existingID, user := range s.users {
		if existingID == id {
			continue
		}
		if strings.EqualFold(user.Email, email) {
			return fmt.Errorf("memory: email %s: %w", email, persistence.ErrDuplicate)
		}
	}
	return nil
}

// --- RoomRepository implementation ---

// CreateRoom stores a new room.
func (s *Store) CreateRoom(ctx context.Context, room persistence.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[room.ID]; ok {
		return fmt.Errorf("memory: room %s: %w", room.ID, persistence.ErrDuplicate)
	}
	if room.Capacity <= 0 {
		return persistence.ErrConstraintViolation
	}
	s.rooms[room.ID] = cloneRoom(room)
	return nil
}

// UpdateRoom updates an existing room.
func (s *Store) UpdateRoom(ctx context.Context, room persistence.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[room.ID]; !ok {
		return persistence.ErrNotFound
	}
	if room.Capacity <= 0 {
		return persistence.ErrConstraintViolation
	}
	s.rooms[room.ID] = cloneRoom(room)
	return nil
}

// GetRoom retrieves a room by ID.
func (s *Store) GetRoom(ctx context.Context, id string) (persistence.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[id]
	if !ok {
		return persistence.Room{}, persistence.ErrNotFound
	}
	return cloneRoom(room), nil
}

// ListRooms returns all rooms ordered by name.
func (s *Store) ListRooms(ctx context.Context) ([]persistence.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]persistence.Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		rooms = append(rooms, cloneRoom(room))
	}
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].Name == rooms[j].Name {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].Name < rooms[j].Name
	})
	return rooms, nil
}

// DeleteRoom removes a room and every booking on it.
func (s *Store) DeleteRoom(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.rooms, id)
	for bookingID, booking := range s.bookings {
		if booking.RoomID == id {
			delete(s.bookings, bookingID)
		}
	}
	return nil
}

// --- BookingRepository implementation ---

// CreateBooking stores a new booking.
func (s *Store) CreateBooking(ctx context.Context, booking persistence.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bookings[booking.ID]; ok {
		return fmt.Errorf("memory: booking %s: %w", booking.ID, persistence.ErrDuplicate)
	}
	if !booking.Start.Before(booking.End) {
		return persistence.ErrConstraintViolation
	}
	s.bookings[booking.ID] = cloneBooking(booking)
	return nil
}

// GetBooking retrieves a booking by ID.
func (s *Store) GetBooking(ctx context.Context, id string) (persistence.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	booking, ok := s.bookings[id]
	if !ok {
		return persistence.Booking{}, persistence.ErrNotFound
	}
	return cloneBooking(booking), nil
}

// ListBookings returns bookings matching filter ordered by start time.
func (s *Store) ListBookings(ctx context.Context, filter persistence.BookingFilter) ([]persistence.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bookings := make([]persistence.Booking, 0)
	for _, booking := range s.bookings {
		if persistence.MatchesFilter(booking, filter) {
			bookings = append(bookings, cloneBooking(booking))
		}
	}
	sortBookings(bookings)
	return bookings, nil
}

// UpdateBooking rewrites the non-status fields of a booking. The stored
// status, approver and reason are preserved.
func (s *Store) UpdateBooking(ctx context.Context, booking persistence.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.bookings[booking.ID]
	if !ok {
		return persistence.ErrNotFound
	}
	if !booking.Start.Before(booking.End) {
		return persistence.ErrConstraintViolation
	}
	s.bookings[booking.ID] = mergeFields(current, booking)
	return nil
}

// DeleteBooking removes a booking by ID.
func (s *Store) DeleteBooking(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bookings[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.bookings, id)
	return nil
}

// WithinRoom runs fn while holding the room's lock. Writes made through the
// transaction are staged and applied under the store lock only when fn
// returns nil.
func (s *Store) WithinRoom(ctx context.Context, roomID string, fn func(tx persistence.BookingTx) error) error {
	if fn == nil {
		return fmt.Errorf("memory: transaction function is nil")
	}

	lock := s.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &roomTx{
		store:    s,
		staged:   make(map[string]persistence.Booking),
		expected: make(map[string]persistence.BookingStatus),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *Store) roomLock(roomID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	lock, ok := s.roomLocks[roomID]
	if !ok {
		lock = &sync.Mutex{}
		s.roomLocks[roomID] = lock
	}
	return lock
}

// commit validates that every staged booking still exists with the status it
// had when first touched, then applies all writes together.
func (s *Store) commit(tx *roomTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, status := range tx.expected {
		current, ok := s.bookings[id]
		if !ok {
			return fmt.Errorf("memory: booking %s: %w", id, persistence.ErrNotFound)
		}
		if current.Status != status {
			return fmt.Errorf("memory: booking %s: %w", id, persistence.ErrStatusMismatch)
		}
	}
	for id, booking := range tx.staged {
		s.bookings[id] = booking
	}
	return nil
}

type roomTx struct {
	store    *Store
	staged   map[string]persistence.Booking
	expected map[string]persistence.BookingStatus
}

func (tx *roomTx) GetBooking(ctx context.Context, id string) (persistence.Booking, error) {
	if booking, ok := tx.staged[id]; ok {
		return cloneBooking(booking), nil
	}
	return tx.store.GetBooking(ctx, id)
}

func (tx *roomTx) ListRoomBookings(ctx context.Context, roomID string, statuses ...persistence.BookingStatus) ([]persistence.Booking, error) {
	stored, err := tx.store.ListBookings(ctx, persistence.BookingFilter{RoomID: roomID})
	if err != nil {
		return nil, err
	}

	filter := persistence.BookingFilter{RoomID: roomID, Statuses: statuses}
	bookings := make([]persistence.Booking, 0, len(stored))
	for _, booking := range stored {
		if staged, ok := tx.staged[booking.ID]; ok {
			booking = cloneBooking(staged)
		}
		if persistence.MatchesFilter(booking, filter) {
			bookings = append(bookings, booking)
		}
	}
	sortBookings(bookings)
	return bookings, nil
}

func (tx *roomTx) UpdateBooking(ctx context.Context, booking persistence.Booking) error {
	current, err := tx.load(ctx, booking.ID)
	if err != nil {
		return err
	}
	if !booking.Start.Before(booking.End) {
		return persistence.ErrConstraintViolation
	}
	tx.staged[booking.ID] = mergeFields(current, booking)
	return nil
}

func (tx *roomTx) CompareAndSetStatus(ctx context.Context, change persistence.StatusChange) error {
	current, err := tx.load(ctx, change.ID)
	if err != nil {
		return err
	}
	if current.Status != change.From {
		return persistence.ErrStatusMismatch
	}

	current.Status = change.To
	current.ApprovedBy = cloneString(change.ApprovedBy)
	current.Reason = cloneString(change.Reason)
	if !change.UpdatedAt.IsZero() {
		current.UpdatedAt = change.UpdatedAt
	}
	tx.staged[change.ID] = current
	return nil
}

// load returns the transaction's view of a booking and records the stored
// status the first time a booking is touched.
func (tx *roomTx) load(ctx context.Context, id string) (persistence.Booking, error) {
	if booking, ok := tx.staged[id]; ok {
		return booking, nil
	}
	booking, err := tx.store.GetBooking(ctx, id)
	if err != nil {
		return persistence.Booking{}, err
	}
	tx.expected[id] = booking.Status
	return booking, nil
}

func mergeFields(current, update persistence.Booking) persistence.Booking {
	merged := current
	merged.Start = update.Start
	merged.End = update.End
	merged.Purpose = cloneString(update.Purpose)
	if !update.UpdatedAt.IsZero() {
		merged.UpdatedAt = update.UpdatedAt
	}
	return merged
}

func sortBookings(bookings []persistence.Booking) {
	sort.Slice(bookings, func(i, j int) bool {
		if bookings[i].Start.Equal(bookings[j].Start) {
			return bookings[i].ID < bookings[j].ID
		}
		return bookings[i].Start.Before(bookings[j].Start)
	})
}

func cloneRoom(room persistence.Room) persistence.Room {
	room.ImageURL = cloneString(room.ImageURL)
	return room
}

func cloneBooking(booking persistence.Booking) persistence.Booking {
	booking.Purpose = cloneString(booking.Purpose)
	booking.ApprovedBy = cloneString(booking.ApprovedBy)
	booking.Reason = cloneString(booking.Reason)
	return booking
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}
