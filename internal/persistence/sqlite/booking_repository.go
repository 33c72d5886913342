package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/room-reservation/internal/persistence"
)

// BookingRepository implements persistence.BookingRepository using SQLite.
type BookingRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewBookingRepository creates a new SQLite booking repository.
func NewBookingRepository(pool *ConnectionPool) *BookingRepository {
	return &BookingRepository{pool: pool, mapper: NewErrorMapper()}
}

const bookingColumns = `id, user_id, room_id, start_time, end_time, purpose, status, approved_by, reason, created_at, updated_at`

// CreateBooking inserts a new booking.
func (r *BookingRepository) CreateBooking(ctx context.Context, booking persistence.Booking) error {
	if booking.ID == "" || !booking.Start.Before(booking.End) {
		return persistence.ErrConstraintViolation
	}
	if booking.Status == "" {
		booking.Status = persistence.BookingStatusPending
	}
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = time.Now().UTC()
	}
	if booking.UpdatedAt.IsZero() {
		booking.UpdatedAt = booking.CreatedAt
	}

	_, err := r.pool.db.ExecContext(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		booking.ID,
		booking.UserID,
		booking.RoomID,
		formatTime(booking.Start),
		formatTime(booking.End),
		nullableString(booking.Purpose),
		string(booking.Status),
		nullableString(booking.ApprovedBy),
		nullableString(booking.Reason),
		formatTime(booking.CreatedAt),
		formatTime(booking.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// GetBooking retrieves a booking by ID.
func (r *BookingRepository) GetBooking(ctx context.Context, id string) (persistence.Booking, error) {
	return getBooking(ctx, r.pool.db, r.mapper, id)
}

// ListBookings returns bookings matching filter ordered by start time.
func (r *BookingRepository) ListBookings(ctx context.Context, filter persistence.BookingFilter) ([]persistence.Booking, error) {
	return listBookings(ctx, r.pool.db, r.mapper, filter)
}

// UpdateBooking rewrites the interval and purpose of a booking.
func (r *BookingRepository) UpdateBooking(ctx context.Context, booking persistence.Booking) error {
	return updateBooking(ctx, r.pool.db, r.mapper, booking)
}

// DeleteBooking removes a booking by ID.
func (r *BookingRepository) DeleteBooking(ctx context.Context, id string) error {
	result, err := r.pool.db.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

// WithinRoom runs fn inside an immediate transaction. SQLite holds one
// write lock for the whole database, so transactions on any room are
// serialized, which is stricter than required.
func (r *BookingRepository) WithinRoom(ctx context.Context, roomID string, fn func(tx persistence.BookingTx) error) error {
	if fn == nil {
		return fmt.Errorf("sqlite: transaction function is nil")
	}
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		return fn(&bookingTx{tx: tx, mapper: r.mapper})
	})
}

type bookingTx struct {
	tx     *sql.Tx
	mapper *ErrorMapper
}

func (t *bookingTx) GetBooking(ctx context.Context, id string) (persistence.Booking, error) {
	return getBooking(ctx, t.tx, t.mapper, id)
}

func (t *bookingTx) ListRoomBookings(ctx context.Context, roomID string, statuses ...persistence.BookingStatus) ([]persistence.Booking, error) {
	return listBookings(ctx, t.tx, t.mapper, persistence.BookingFilter{RoomID: roomID, Statuses: statuses})
}

func (t *bookingTx) UpdateBooking(ctx context.Context, booking persistence.Booking) error {
	return updateBooking(ctx, t.tx, t.mapper, booking)
}

func (t *bookingTx) CompareAndSetStatus(ctx context.Context, change persistence.StatusChange) error {
	updatedAt := change.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	result, err := t.tx.ExecContext(ctx, `
		UPDATE bookings
		SET status = ?, approved_by = ?, reason = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(change.To),
		nullableString(change.ApprovedBy),
		nullableString(change.Reason),
		formatTime(updatedAt),
		change.ID,
		string(change.From),
	)
	if err != nil {
		return t.mapper.MapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	// Distinguish a missing row from a stale expected status.
	if _, err := getBooking(ctx, t.tx, t.mapper, change.ID); err != nil {
		return err
	}
	return persistence.ErrStatusMismatch
}

func getBooking(ctx context.Context, q querier, mapper *ErrorMapper, id string) (persistence.Booking, error) {
	row := q.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	booking, err := scanBooking(row)
	if err != nil {
		return persistence.Booking{}, mapper.MapError(err)
	}
	return booking, nil
}

func listBookings(ctx context.Context, q querier, mapper *ErrorMapper, filter persistence.BookingFilter) ([]persistence.Booking, error) {
	query, args := buildBookingQuery(filter)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapper.MapError(err)
	}
	defer rows.Close()

	bookings := make([]persistence.Booking, 0)
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, mapper.MapError(err)
		}
		bookings = append(bookings, booking)
	}
	if err := rows.Err(); err != nil {
		return nil, mapper.MapError(err)
	}
	return bookings, nil
}

func updateBooking(ctx context.Context, q querier, mapper *ErrorMapper, booking persistence.Booking) error {
	if !booking.Start.Before(booking.End) {
		return persistence.ErrConstraintViolation
	}
	updatedAt := booking.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	result, err := q.ExecContext(ctx, `
		UPDATE bookings
		SET start_time = ?, end_time = ?, purpose = ?, updated_at = ?
		WHERE id = ?`,
		formatTime(booking.Start),
		formatTime(booking.End),
		nullableString(booking.Purpose),
		formatTime(updatedAt),
		booking.ID,
	)
	if err != nil {
		return mapper.MapError(err)
	}
	return requireAffected(result)
}

func buildBookingQuery(filter persistence.BookingFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if filter.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.RoomID != "" {
		clauses = append(clauses, "room_id = ?")
		args = append(args, filter.RoomID)
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		clauses = append(clauses, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.StartsBefore != nil {
		clauses = append(clauses, "start_time < ?")
		args = append(args, formatTime(*filter.StartsBefore))
	}
	if filter.EndsAfter != nil {
		clauses = append(clauses, "end_time > ?")
		args = append(args, formatTime(*filter.EndsAfter))
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY start_time ASC, id ASC"
	return query, args
}

func scanBooking(row rowScanner) (persistence.Booking, error) {
	var (
		booking                     persistence.Booking
		start, end                  string
		status                      string
		purpose, approvedBy, reason sql.NullString
		createdAt, updatedAt        string
	)
	if err := row.Scan(
		&booking.ID,
		&booking.UserID,
		&booking.RoomID,
		&start,
		&end,
		&purpose,
		&status,
		&approvedBy,
		&reason,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.Booking{}, err
	}

	booking.Status = persistence.BookingStatus(status)
	booking.Purpose = stringPtr(purpose)
	booking.ApprovedBy = stringPtr(approvedBy)
	booking.Reason = stringPtr(reason)

	var err error
	for _, field := range []struct {
		dst *time.Time
		src string
	}{
		{&booking.Start, start},
		{&booking.End, end},
		{&booking.CreatedAt, createdAt},
		{&booking.UpdatedAt, updatedAt},
	} {
		if *field.dst, err = parseTime(field.src); err != nil {
			return persistence.Booking{}, err
		}
	}
	return booking, nil
}
