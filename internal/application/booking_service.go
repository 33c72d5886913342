package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/room-reservation/internal/persistence"
	"github.com/example/room-reservation/internal/scheduler"
)

// BookingStore captures the persistence interactions needed by the booking service.
type BookingStore interface {
	CreateBooking(ctx context.Context, booking Booking) (Booking, error)
	GetBooking(ctx context.Context, id string) (Booking, error)
	ListBookings(ctx context.Context, query BookingQuery) ([]Booking, error)
	DeleteBooking(ctx context.Context, id string) error
	// WithinRoom runs fn atomically with respect to every other WithinRoom
	// call on the same room. Nothing fn wrote is kept when it returns an error.
	WithinRoom(ctx context.Context, roomID string, fn func(tx BookingTx) error) error
}

// BookingTx is the transactional view used by the status transition engine.
type BookingTx interface {
	GetBooking(ctx context.Context, id string) (Booking, error)
	ListRoomBookings(ctx context.Context, roomID string, statuses ...BookingStatus) ([]Booking, error)
	UpdateBooking(ctx context.Context, booking Booking) error
	CompareAndSetStatus(ctx context.Context, change StatusChange) error
}

// RoomCatalog exposes room lookup operations.
type RoomCatalog interface {
	RoomExists(ctx context.Context, id string) (bool, error)
}

// Directory resolves users and rooms for display.
type Directory interface {
	LookupUsers(ctx context.Context, ids []string) (map[string]User, error)
	LookupRooms(ctx context.Context, ids []string) (map[string]Room, error)
}

// Notifier accepts committed status changes for delivery. Implementations
// must not block on delivery.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// BookingService admits booking requests and drives their status lifecycle.
type BookingService struct {
	bookings    BookingStore
	rooms       RoomCatalog
	directory   Directory
	notifier    Notifier
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewBookingService wires dependencies for booking operations.
func NewBookingService(bookings BookingStore, rooms RoomCatalog, directory Directory, notifier Notifier, idGenerator func() string, now func() time.Time) *BookingService {
	return NewBookingServiceWithLogger(bookings, rooms, directory, notifier, idGenerator, now, nil)
}

// NewBookingServiceWithLogger wires dependencies with a specific logger.
func NewBookingServiceWithLogger(bookings BookingStore, rooms RoomCatalog, directory Directory, notifier Notifier, idGenerator func() string, now func() time.Time, logger *slog.Logger) *BookingService {
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	if now == nil {
		now = time.Now
	}
	return &BookingService{
		bookings:    bookings,
		rooms:       rooms,
		directory:   directory,
		notifier:    notifier,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *BookingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "BookingService", operation, attrs...)
}

// CreateBooking admits a new pending booking unless it overlaps an approved
// booking on the same room.
func (s *BookingService) CreateBooking(ctx context.Context, params CreateBookingParams) (booking Booking, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}
	if s.bookings == nil {
		err = fmt.Errorf("booking store not configured")
		return
	}

	input := params.Input
	principal := params.Principal

	logger := s.loggerWith(ctx, "CreateBooking",
		"principal_id", principal.UserID,
		"room_id", input.RoomID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create booking", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("booking_id", booking.ID).InfoContext(ctx, "booking created")
	}()

	vErr := &ValidationError{}
	if strings.TrimSpace(input.RoomID) == "" {
		vErr.add("room_id", "room_id is required")
	}
	vErr.merge(validateInterval(input.Start, input.End))
	if vErr.HasErrors() {
		err = vErr
		return
	}

	if input.OwnerID == "" {
		input.OwnerID = principal.UserID
	}
	if input.OwnerID != principal.UserID && !principal.IsAdmin {
		err = ErrForbidden
		return
	}

	if err = s.ensureRoomExists(ctx, input.RoomID); err != nil {
		return
	}

	candidate := Booking{
		ID:      s.idGenerator(),
		UserID:  input.OwnerID,
		RoomID:  input.RoomID,
		Start:   input.Start,
		End:     input.End,
		Purpose: strings.TrimSpace(input.Purpose),
		Status:  BookingStatusPending,
	}

	var approved []Booking
	approved, err = s.bookings.ListBookings(ctx, BookingQuery{
		RoomID:       candidate.RoomID,
		Statuses:     []BookingStatus{BookingStatusApproved},
		StartsBefore: &candidate.End,
		EndsAfter:    &candidate.Start,
	})
	if err != nil {
		err = mapBookingRepoError(err)
		return
	}
	if conflicts := scheduler.DetectRoomConflicts(toSlots(approved), toSlot(candidate)); len(conflicts) > 0 {
		err = &ConflictError{BookingID: conflicts[0].WithBookingID}
		return
	}

	candidate.CreatedAt = s.now()
	candidate.UpdatedAt = candidate.CreatedAt

	booking, err = s.bookings.CreateBooking(ctx, candidate)
	if err != nil {
		err = mapBookingRepoError(err)
		return
	}
	return
}

// GetBooking returns a booking visible to the principal.
func (s *BookingService) GetBooking(ctx context.Context, principal Principal, bookingID string) (view BookingView, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}
	if err = validateBookingID(bookingID); err != nil {
		return
	}

	var booking Booking
	booking, err = s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		err = mapBookingRepoError(err)
		return
	}
	if booking.UserID != principal.UserID && !principal.IsAdmin {
		err = ErrForbidden
		return
	}

	var views []BookingView
	views, err = s.enrich(ctx, []Booking{booking})
	if err != nil {
		return
	}
	view = views[0]
	return
}

// ListBookings returns bookings matching params ordered by start time.
// Non-admin principals are restricted to their own bookings.
func (s *BookingService) ListBookings(ctx context.Context, params ListBookingsParams) (views []BookingView, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ListBookings",
		"principal_id", params.Principal.UserID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list bookings", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(views)).InfoContext(ctx, "bookings listed")
	}()

	query := BookingQuery{
		UserID:   params.UserID,
		RoomID:   params.RoomID,
		Statuses: params.Statuses,
	}
	if !params.Principal.IsAdmin {
		query.UserID = params.Principal.UserID
	}

	var bookings []Booking
	bookings, err = s.bookings.ListBookings(ctx, query)
	if err != nil {
		err = mapBookingRepoError(err)
		return
	}
	views, err = s.enrich(ctx, bookings)
	return
}

// ListPendingBookings returns every pending booking for administrators.
func (s *BookingService) ListPendingBookings(ctx context.Context, principal Principal) ([]BookingView, error) {
	if !principal.IsAdmin {
		return nil, ErrForbidden
	}
	return s.ListBookings(ctx, ListBookingsParams{
		Principal: principal,
		Statuses:  []BookingStatus{BookingStatusPending},
	})
}

// DeleteBooking removes a booking owned by the principal, or any booking for
// administrators. Deletion does not notify.
func (s *BookingService) DeleteBooking(ctx context.Context, principal Principal, bookingID string) (err error) {
	if s == nil {
		return fmt.Errorf("BookingService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteBooking",
		"principal_id", principal.UserID,
		"booking_id", bookingID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete booking", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "booking deleted")
	}()

	if err = validateBookingID(bookingID); err != nil {
		return
	}

	var existing Booking
	existing, err = s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		err = mapBookingRepoError(err)
		return
	}
	if existing.UserID != principal.UserID && !principal.IsAdmin {
		err = ErrForbidden
		return
	}

	if err = s.bookings.DeleteBooking(ctx, bookingID); err != nil {
		err = mapBookingRepoError(err)
	}
	return
}

func (s *BookingService) ensureRoomExists(ctx context.Context, roomID string) error {
	if s.rooms == nil {
		return nil
	}
	exists, err := s.rooms.RoomExists(ctx, roomID)
	if err != nil {
		return err
	}
	if !exists {
		return newValidationError("room_id", "room does not exist")
	}
	return nil
}

func (s *BookingService) enrich(ctx context.Context, bookings []Booking) ([]BookingView, error) {
	return enrichBookings(ctx, s.directory, bookings)
}

// enrichBookings joins room and user details onto bookings. Missing
// directory entries leave the display fields empty.
func enrichBookings(ctx context.Context, directory Directory, bookings []Booking) ([]BookingView, error) {
	views := make([]BookingView, len(bookings))
	for i, booking := range bookings {
		views[i] = BookingView{Booking: booking}
	}
	if directory == nil || len(bookings) == 0 {
		return views, nil
	}

	userIDs := make([]string, 0, len(bookings))
	roomIDs := make([]string, 0, len(bookings))
	for _, booking := range bookings {
		userIDs = append(userIDs, booking.UserID)
		roomIDs = append(roomIDs, booking.RoomID)
	}

	users, err := directory.LookupUsers(ctx, uniqueStrings(userIDs))
	if err != nil {
		return nil, err
	}
	rooms, err := directory.LookupRooms(ctx, uniqueStrings(roomIDs))
	if err != nil {
		return nil, err
	}

	for i := range views {
		if user, ok := users[views[i].UserID]; ok {
			views[i].UserName = user.Name
			views[i].UserEmail = user.Email
		}
		if room, ok := rooms[views[i].RoomID]; ok {
			views[i].RoomName = room.Name
			views[i].RoomLocation = room.Location
		}
	}
	return views, nil
}

func validateInterval(start, end time.Time) *ValidationError {
	vErr := &ValidationError{}
	if start.IsZero() {
		vErr.add("start", "start is required")
	}
	if end.IsZero() {
		vErr.add("end", "end is required")
	}
	if !start.IsZero() && !end.IsZero() && !start.Before(end) {
		vErr.add("time", "start must be before end")
	}
	return vErr
}

func validateBookingID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return newValidationError("id", "booking id must be a valid UUID")
	}
	return nil
}

func toSlot(booking Booking) scheduler.Slot {
	return scheduler.Slot{
		BookingID: booking.ID,
		RoomID:    booking.RoomID,
		Start:     booking.Start,
		End:       booking.End,
	}
}

func toSlots(bookings []Booking) []scheduler.Slot {
	slots := make([]scheduler.Slot, len(bookings))
	for i, booking := range bookings {
		slots[i] = toSlot(booking)
	}
	return slots
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, value := range values {
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		result = append(result, value)
	}
	return result
}

func mapBookingRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, persistence.ErrConstraintViolation):
		return newValidationError("time", "start must be before end")
	case errors.Is(err, persistence.ErrStatusMismatch):
		return fmt.Errorf("%w: booking status changed concurrently", ErrInvalidTransition)
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		return newValidationError("room_id", "room or user does not exist")
	}
	return err
}
