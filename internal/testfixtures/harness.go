package testfixtures

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/example/room-reservation/internal/persistence"
	"github.com/example/room-reservation/internal/persistence/memory"
	"github.com/example/room-reservation/internal/persistence/postgres"
	"github.com/example/room-reservation/internal/persistence/sqlite"
)

// PostgresURLEnv names the variable that enables PostgreSQL backed tests.
const PostgresURLEnv = "ROOMBOOKING_TEST_DATABASE_URL"

// Harness bundles the repositories of one storage backend.
type Harness struct {
	Users    persistence.UserRepository
	Rooms    persistence.RoomRepository
	Bookings persistence.BookingRepository
}

// Backend names a storage implementation and opens a fresh, empty harness
// for it.
type Backend struct {
	Name string
	Open func(tb testing.TB) *Harness
}

// Backends lists every storage implementation. The PostgreSQL backend skips
// unless PostgresURLEnv is set.
func Backends() []Backend {
	return []Backend{
		{Name: "memory", Open: NewMemoryHarness},
		{Name: "sqlite", Open: NewSQLiteHarness},
		{Name: "postgres", Open: NewPostgresHarness},
	}
}

// NewMemoryHarness returns a harness over a fresh in-memory store.
func NewMemoryHarness(tb testing.TB) *Harness {
	tb.Helper()
	store := memory.New()
	tb.Cleanup(func() { _ = store.Close() })
	return &Harness{Users: store, Rooms: store, Bookings: store}
}

// NewSQLiteHarness opens a migrated SQLite database in a temporary
// directory. The database is closed when the test ends.
func NewSQLiteHarness(tb testing.TB) *Harness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "reservations.db")
	pool, err := sqlite.Open("file:" + path)
	if err != nil {
		tb.Fatalf("failed to open sqlite: %v", err)
	}
	tb.Cleanup(func() { _ = pool.Close() })

	if err := pool.Migrate(context.Background()); err != nil {
		tb.Fatalf("failed to migrate sqlite: %v", err)
	}

	return &Harness{
		Users:    sqlite.NewUserRepository(pool),
		Rooms:    sqlite.NewRoomRepository(pool),
		Bookings: sqlite.NewBookingRepository(pool),
	}
}

// NewPostgresHarness migrates the database named by PostgresURLEnv and
// empties every table. Tests sharing the database must not run in parallel.
func NewPostgresHarness(tb testing.TB) *Harness {
	tb.Helper()

	url := os.Getenv(PostgresURLEnv)
	if url == "" {
		tb.Skipf("%s not set", PostgresURLEnv)
	}
	if err := postgres.Migrate(url); err != nil {
		tb.Fatalf("failed to migrate postgres: %v", err)
	}

	ctx := context.Background()
	pool, err := postgres.Open(ctx, url)
	if err != nil {
		tb.Fatalf("failed to open postgres: %v", err)
	}
	tb.Cleanup(pool.Close)

	if _, err := pool.Exec(ctx, `TRUNCATE bookings, rooms, users CASCADE`); err != nil {
		tb.Fatalf("failed to reset postgres: %v", err)
	}

	return &Harness{
		Users:    postgres.NewUserRepository(pool),
		Rooms:    postgres.NewRoomRepository(pool),
		Bookings: postgres.NewBookingRepository(pool),
	}
}

// Seed stores users and rooms, failing the test on error.
func (h *Harness) Seed(tb testing.TB, users []UserFixture, rooms []RoomFixture) {
	tb.Helper()
	ctx := context.Background()
	for _, user := range users {
		if err := h.Users.CreateUser(ctx, user.Persistence()); err != nil {
			tb.Fatalf("seed user %s: %v", user.ID, err)
		}
	}
	for _, room := range rooms {
		if err := h.Rooms.CreateRoom(ctx, room.Persistence()); err != nil {
			tb.Fatalf("seed room %s: %v", room.ID, err)
		}
	}
}
