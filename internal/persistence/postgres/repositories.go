package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/room-reservation/internal/persistence"
)

// UserRepository implements persistence.UserRepository on PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a user repository backed by pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `id::text, email, name, password_hash, is_admin, created_at, updated_at`

func (r *UserRepository) CreateUser(ctx context.Context, user persistence.User) error {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, email, name, password_hash, is_admin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, strings.ToLower(strings.TrimSpace(user.Email)), user.Name, user.PasswordHash, user.IsAdmin, user.CreatedAt, user.UpdatedAt,
	)
	return mapError(err)
}

func (r *UserRepository) UpdateUser(ctx context.Context, user persistence.User) error {
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = time.Now().UTC()
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET email = $1, name = $2, password_hash = $3, is_admin = $4, updated_at = $5
		WHERE id = $6`,
		strings.ToLower(strings.TrimSpace(user.Email)), user.Name, user.PasswordHash, user.IsAdmin, user.UpdatedAt, user.ID,
	)
	if err != nil {
		return mapError(err)
	}
	return requireAffected(tag)
}

func (r *UserRepository) GetUser(ctx context.Context, id string) (persistence.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, strings.TrimSpace(email)))
}

func (r *UserRepository) ListUsers(ctx context.Context) ([]persistence.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var users []persistence.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, mapError(rows.Err())
}

func (r *UserRepository) DeleteUser(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	return requireAffected(tag)
}

func scanUser(row pgx.Row) (persistence.User, error) {
	var user persistence.User
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.IsAdmin, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return persistence.User{}, mapError(err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return user, nil
}

// RoomRepository implements persistence.RoomRepository on PostgreSQL.
type RoomRepository struct {
	pool *pgxpool.Pool
}

// NewRoomRepository creates a room repository backed by pool.
func NewRoomRepository(pool *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{pool: pool}
}

const roomColumns = `id::text, name, location, capacity, image_url, created_at, updated_at`

func (r *RoomRepository) CreateRoom(ctx context.Context, room persistence.Room) error {
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}
	if room.UpdatedAt.IsZero() {
		room.UpdatedAt = room.CreatedAt
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO rooms (id, name, location, capacity, image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		room.ID, room.Name, room.Location, room.Capacity, room.ImageURL, room.CreatedAt, room.UpdatedAt,
	)
	return mapError(err)
}

func (r *RoomRepository) UpdateRoom(ctx context.Context, room persistence.Room) error {
	if room.UpdatedAt.IsZero() {
		room.UpdatedAt = time.Now().UTC()
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE rooms SET name = $1, location = $2, capacity = $3, image_url = $4, updated_at = $5
		WHERE id = $6`,
		room.Name, room.Location, room.Capacity, room.ImageURL, room.UpdatedAt, room.ID,
	)
	if err != nil {
		return mapError(err)
	}
	return requireAffected(tag)
}

func (r *RoomRepository) GetRoom(ctx context.Context, id string) (persistence.Room, error) {
	return scanRoom(r.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id))
}

func (r *RoomRepository) ListRooms(ctx context.Context) ([]persistence.Room, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roomColumns+` FROM rooms ORDER BY name, id`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var rooms []persistence.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, mapError(rows.Err())
}

func (r *RoomRepository) DeleteRoom(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	return requireAffected(tag)
}

func scanRoom(row pgx.Row) (persistence.Room, error) {
	var room persistence.Room
	if err := row.Scan(&room.ID, &room.Name, &room.Location, &room.Capacity, &room.ImageURL, &room.CreatedAt, &room.UpdatedAt); err != nil {
		return persistence.Room{}, mapError(err)
	}
	room.CreatedAt = room.CreatedAt.UTC()
	room.UpdatedAt = room.UpdatedAt.UTC()
	return room, nil
}

// BookingRepository implements persistence.BookingRepository on PostgreSQL.
type BookingRepository struct {
	pool *pgxpool.Pool
}

// NewBookingRepository creates a booking repository backed by pool.
func NewBookingRepository(pool *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

const bookingColumns = `id::text, user_id::text, room_id::text, start_time, end_time, purpose, status, approved_by::text, reason, created_at, updated_at`

func (r *BookingRepository) CreateBooking(ctx context.Context, booking persistence.Booking) error {
	if booking.Status == "" {
		booking.Status = persistence.BookingStatusPending
	}
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = time.Now().UTC()
	}
	if booking.UpdatedAt.IsZero() {
		booking.UpdatedAt = booking.CreatedAt
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO bookings (id, user_id, room_id, start_time, end_time, purpose, status, approved_by, reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		booking.ID, booking.UserID, booking.RoomID, booking.Start, booking.End, booking.Purpose,
		string(booking.Status), booking.ApprovedBy, booking.Reason, booking.CreatedAt, booking.UpdatedAt,
	)
	return mapError(err)
}

func (r *BookingRepository) GetBooking(ctx context.Context, id string) (persistence.Booking, error) {
	return getBooking(ctx, r.pool, id)
}

func (r *BookingRepository) ListBookings(ctx context.Context, filter persistence.BookingFilter) ([]persistence.Booking, error) {
	return listBookings(ctx, r.pool, filter)
}

func (r *BookingRepository) UpdateBooking(ctx context.Context, booking persistence.Booking) error {
	return updateBooking(ctx, r.pool, booking)
}

func (r *BookingRepository) DeleteBooking(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	return requireAffected(tag)
}

// WithinRoom runs fn in a transaction holding an advisory lock derived from
// the room ID. Transactions on different rooms proceed in parallel.
func (r *BookingRepository) WithinRoom(ctx context.Context, roomID string, fn func(tx persistence.BookingTx) error) error {
	if fn == nil {
		return fmt.Errorf("postgres: transaction function is nil")
	}
	return WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, roomID); err != nil {
			return fmt.Errorf("lock room %s: %w", roomID, err)
		}
		return fn(&bookingTx{tx: tx})
	})
}

type bookingTx struct {
	tx pgx.Tx
}

func (t *bookingTx) GetBooking(ctx context.Context, id string) (persistence.Booking, error) {
	return getBooking(ctx, t.tx, id)
}

func (t *bookingTx) ListRoomBookings(ctx context.Context, roomID string, statuses ...persistence.BookingStatus) ([]persistence.Booking, error) {
	return listBookings(ctx, t.tx, persistence.BookingFilter{RoomID: roomID, Statuses: statuses})
}

func (t *bookingTx) UpdateBooking(ctx context.Context, booking persistence.Booking) error {
	return updateBooking(ctx, t.tx, booking)
}

func (t *bookingTx) CompareAndSetStatus(ctx context.Context, change persistence.StatusChange) error {
	updatedAt := change.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE bookings SET status = $1, approved_by = $2, reason = $3, updated_at = $4
		WHERE id = $5 AND status = $6`,
		string(change.To), change.ApprovedBy, change.Reason, updatedAt, change.ID, string(change.From),
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := getBooking(ctx, t.tx, change.ID); err != nil {
		return err
	}
	return persistence.ErrStatusMismatch
}

func getBooking(ctx context.Context, q querier, id string) (persistence.Booking, error) {
	return scanBooking(q.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
}

func listBookings(ctx context.Context, q querier, filter persistence.BookingFilter) ([]persistence.Booking, error) {
	var (
		clauses []string
		args    []any
	)
	arg := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.UserID != "" {
		clauses = append(clauses, "user_id = "+arg(filter.UserID))
	}
	if filter.RoomID != "" {
		clauses = append(clauses, "room_id = "+arg(filter.RoomID))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			statuses[i] = string(status)
		}
		clauses = append(clauses, "status = ANY("+arg(statuses)+")")
	}
	if filter.StartsBefore != nil {
		clauses = append(clauses, "start_time < "+arg(*filter.StartsBefore))
	}
	if filter.EndsAfter != nil {
		clauses = append(clauses, "end_time > "+arg(*filter.EndsAfter))
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY start_time, id"

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	bookings := make([]persistence.Booking, 0)
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, booking)
	}
	return bookings, mapError(rows.Err())
}

func updateBooking(ctx context.Context, q querier, booking persistence.Booking) error {
	updatedAt := booking.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	tag, err := q.Exec(ctx, `
		UPDATE bookings SET start_time = $1, end_time = $2, purpose = $3, updated_at = $4
		WHERE id = $5`,
		booking.Start, booking.End, booking.Purpose, updatedAt, booking.ID,
	)
	if err != nil {
		return mapError(err)
	}
	return requireAffected(tag)
}

func scanBooking(row pgx.Row) (persistence.Booking, error) {
	var (
		booking persistence.Booking
		status  string
	)
	if err := row.Scan(
		&booking.ID,
		&booking.UserID,
		&booking.RoomID,
		&booking.Start,
		&booking.End,
		&booking.Purpose,
		&status,
		&booking.ApprovedBy,
		&booking.Reason,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	); err != nil {
		return persistence.Booking{}, mapError(err)
	}
	booking.Status = persistence.BookingStatus(status)
	booking.Start = booking.Start.UTC()
	booking.End = booking.End.UTC()
	booking.CreatedAt = booking.CreatedAt.UTC()
	booking.UpdatedAt = booking.UpdatedAt.UTC()
	return booking, nil
}
