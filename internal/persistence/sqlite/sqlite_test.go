package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/room-reservation/internal/persistence"
)

func setupTestPool(t *testing.T) *ConnectionPool {
	t.Helper()

	pool, err := Open("file:" + filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = pool.Close() })

	if err := pool.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return pool
}

var testStart = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

func seedUserAndRoom(t *testing.T, pool *ConnectionPool) (persistence.User, persistence.Room) {
	t.Helper()
	ctx := context.Background()

	user := persistence.User{
		ID: "c5a3e0b4-1111-4c4c-8c8c-000000000001", Email: "ann@example.com", Name: "Ann",
		PasswordHash: "hash", CreatedAt: testStart, UpdatedAt: testStart,
	}
	room := persistence.Room{
		ID: "c5a3e0b4-2222-4c4c-8c8c-000000000001", Name: "Aurora", Location: "3F",
		Capacity: 6, CreatedAt: testStart, UpdatedAt: testStart,
	}
	if err := NewUserRepository(pool).CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if err := NewRoomRepository(pool).CreateRoom(ctx, room); err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	return user, room
}

func TestWithPragmas(t *testing.T) {
	got := withPragmas("file:test.db")
	for _, want := range []string{"_txlock=immediate", "busy_timeout", "foreign_keys"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in %q", want, got)
		}
	}
	if !strings.HasPrefix(got, "file:test.db?") {
		t.Errorf("expected query to be appended, got %q", got)
	}

	explicit := "file:test.db?_txlock=deferred&_pragma=busy_timeout(100)&_pragma=foreign_keys(1)"
	if got := withPragmas(explicit); got != explicit {
		t.Errorf("expected explicit settings to be kept, got %q", got)
	}
}

func TestBookingRepository_RejectsUnknownOwner(t *testing.T) {
	pool := setupTestPool(t)
	_, room := seedUserAndRoom(t, pool)

	err := NewBookingRepository(pool).CreateBooking(context.Background(), persistence.Booking{
		ID:     "c5a3e0b4-3333-4c4c-8c8c-000000000001",
		UserID: "c5a3e0b4-1111-4c4c-8c8c-00000000dead",
		RoomID: room.ID,
		Start:  testStart,
		End:    testStart.Add(time.Hour),
	})
	if !errors.Is(err, persistence.ErrForeignKeyViolation) {
		t.Fatalf("expected ErrForeignKeyViolation, got %v", err)
	}
}

func TestBookingRepository_RejectsEmptyInterval(t *testing.T) {
	pool := setupTestPool(t)
	user, room := seedUserAndRoom(t, pool)

	err := NewBookingRepository(pool).CreateBooking(context.Background(), persistence.Booking{
		ID:     "c5a3e0b4-3333-4c4c-8c8c-000000000002",
		UserID: user.ID,
		RoomID: room.ID,
		Start:  testStart,
		End:    testStart,
	})
	if !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation, got %v", err)
	}
}

func TestRoomRepository_RejectsZeroCapacity(t *testing.T) {
	pool := setupTestPool(t)

	err := NewRoomRepository(pool).CreateRoom(context.Background(), persistence.Room{
		ID: "c5a3e0b4-2222-4c4c-8c8c-000000000009", Name: "Closet", Location: "B1", Capacity: 0,
	})
	if !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation, got %v", err)
	}
}

func TestUserRepository_EmailIsCaseInsensitive(t *testing.T) {
	pool := setupTestPool(t)
	user, _ := seedUserAndRoom(t, pool)

	got, err := NewUserRepository(pool).GetUserByEmail(context.Background(), strings.ToUpper(user.Email))
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("expected %s, got %s", user.ID, got.ID)
	}
}

// Concurrent approvals of overlapping bookings must not both commit.
func TestBookingRepository_WithinRoomSerializesWriters(t *testing.T) {
	pool := setupTestPool(t)
	user, room := seedUserAndRoom(t, pool)
	repo := NewBookingRepository(pool)
	ctx := context.Background()

	ids := []string{"c5a3e0b4-3333-4c4c-8c8c-00000000000a", "c5a3e0b4-3333-4c4c-8c8c-00000000000b"}
	for i, id := range ids {
		start := testStart.Add(time.Duration(i) * 30 * time.Minute)
		if err := repo.CreateBooking(ctx, persistence.Booking{
			ID: id, UserID: user.ID, RoomID: room.ID, Start: start, End: start.Add(time.Hour),
			Status: persistence.BookingStatusPending, CreatedAt: testStart, UpdatedAt: testStart,
		}); err != nil {
			t.Fatalf("CreateBooking failed: %v", err)
		}
	}

	approve := func(id string) error {
		return repo.WithinRoom(ctx, room.ID, func(tx persistence.BookingTx) error {
			approved, err := tx.ListRoomBookings(ctx, room.ID, persistence.BookingStatusApproved)
			if err != nil {
				return err
			}
			if len(approved) > 0 {
				return errors.New("slot taken")
			}
			return tx.CompareAndSetStatus(ctx, persistence.StatusChange{
				ID: id, From: persistence.BookingStatusPending, To: persistence.BookingStatusApproved, UpdatedAt: testStart,
			})
		})
	}

	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			errs[i] = approve(id)
		}(i, id)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one approval to commit, got errors %v", errs)
	}

	approved, err := repo.ListBookings(ctx, persistence.BookingFilter{RoomID: room.ID, Statuses: []persistence.BookingStatus{persistence.BookingStatusApproved}})
	if err != nil {
		t.Fatalf("ListBookings failed: %v", err)
	}
	if len(approved) != 1 {
		t.Fatalf("expected one approved booking, got %d", len(approved))
	}
}

func TestRetryHelper_RetriesBusyErrors(t *testing.T) {
	helper := NewRetryHelper(RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2})

	attempts := 0
	err := helper.WithRetry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil || attempts != 3 {
		t.Fatalf("expected success on third attempt, got %v after %d", err, attempts)
	}

	attempts = 0
	permanent := errors.New("syntax error")
	err = helper.WithRetry(context.Background(), func() error {
		attempts++
		return permanent
	})
	if !errors.Is(err, permanent) || attempts != 1 {
		t.Fatalf("expected no retry for permanent errors, got %v after %d", err, attempts)
	}
}

func TestTimeLayoutSortsAsText(t *testing.T) {
	early := formatTime(time.Date(2025, time.March, 10, 9, 0, 0, 5, time.FixedZone("JST", 9*3600)))
	late := formatTime(time.Date(2025, time.March, 10, 1, 0, 0, 0, time.UTC))
	if !(early < late) {
		t.Fatalf("expected %q < %q", early, late)
	}
	parsed, err := parseTime(early)
	if err != nil {
		t.Fatalf("parseTime failed: %v", err)
	}
	if parsed.Nanosecond() != 5 || parsed.Location() != time.UTC {
		t.Fatalf("unexpected parsed time %v", parsed)
	}
}
