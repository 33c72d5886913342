package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RoomLister lists the room catalog.
type RoomLister interface {
	ListRooms(ctx context.Context) ([]Room, error)
}

// StatsService builds the administrator dashboard summary.
type StatsService struct {
	bookings  BookingStore
	rooms     RoomLister
	directory Directory
	now       func() time.Time
	logger    *slog.Logger
}

// NewStatsService constructs a stats service.
func NewStatsService(bookings BookingStore, rooms RoomLister, directory Directory, now func() time.Time) *StatsService {
	return NewStatsServiceWithLogger(bookings, rooms, directory, now, nil)
}

// NewStatsServiceWithLogger constructs a stats service with a specified logger.
func NewStatsServiceWithLogger(bookings BookingStore, rooms RoomLister, directory Directory, now func() time.Time, logger *slog.Logger) *StatsService {
	if now == nil {
		now = time.Now
	}
	return &StatsService{
		bookings:  bookings,
		rooms:     rooms,
		directory: directory,
		now:       now,
		logger:    defaultLogger(logger),
	}
}

// AdminStats counts bookings by status, counts rooms with no approved
// booking covering the current instant, and lists today's approved bookings.
// Today is the calendar day of the service clock in its own location.
func (s *StatsService) AdminStats(ctx context.Context, principal Principal) (stats AdminStats, err error) {
	if s == nil {
		err = fmt.Errorf("StatsService is nil")
		return
	}
	if s.bookings == nil || s.rooms == nil {
		err = fmt.Errorf("stats dependencies not configured")
		return
	}

	logger := serviceLogger(ctx, s.logger, "StatsService", "AdminStats",
		"principal_id", principal.UserID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to build admin stats", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("total_bookings", stats.TotalBookings).InfoContext(ctx, "admin stats built")
	}()

	if !principal.IsAdmin {
		err = ErrForbidden
		return
	}

	var bookings []Booking
	bookings, err = s.bookings.ListBookings(ctx, BookingQuery{})
	if err != nil {
		err = mapBookingRepoError(err)
		return
	}
	var rooms []Room
	rooms, err = s.rooms.ListRooms(ctx)
	if err != nil {
		return
	}

	now := s.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	stats.StatusCounts = map[BookingStatus]int{
		BookingStatusPending:  0,
		BookingStatusApproved: 0,
		BookingStatusRejected: 0,
	}
	occupied := make(map[string]struct{})
	var today []Booking
	for _, booking := range bookings {
		stats.TotalBookings++
		stats.StatusCounts[booking.Status]++
		if booking.Status != BookingStatusApproved {
			continue
		}
		slot := toSlot(booking)
		if slot.Contains(now) {
			occupied[booking.RoomID] = struct{}{}
		}
		if slot.Intersects(dayStart, dayEnd) {
			today = append(today, booking)
		}
	}
	stats.PendingCount = stats.StatusCounts[BookingStatusPending]

	stats.TotalRooms = len(rooms)
	for _, room := range rooms {
		if _, busy := occupied[room.ID]; !busy {
			stats.AvailableRooms++
		}
	}

	stats.TodayApproved, err = enrichBookings(ctx, s.directory, today)
	return
}
