// Package backend opens the storage implementation named in configuration.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/room-reservation/internal/config"
	"github.com/example/room-reservation/internal/persistence"
	"github.com/example/room-reservation/internal/persistence/memory"
	"github.com/example/room-reservation/internal/persistence/postgres"
	"github.com/example/room-reservation/internal/persistence/sqlite"
)

// Repositories bundles the repositories of one open backend.
type Repositories struct {
	Kind     string
	Users    persistence.UserRepository
	Rooms    persistence.RoomRepository
	Bookings persistence.BookingRepository

	close func() error
}

// Close releases the underlying connections.
func (r *Repositories) Close() error {
	if r == nil || r.close == nil {
		return nil
	}
	return r.close()
}

// Options selects and locates a backend.
type Options struct {
	Kind        string
	SQLiteDSN   string
	DatabaseURL string
	// SkipMigrations leaves the schema untouched; used by processes that
	// only read what the API server has migrated.
	SkipMigrations bool
}

// FromConfig derives Options from the loaded configuration.
func FromConfig(cfg config.Config) Options {
	return Options{Kind: cfg.Storage, SQLiteDSN: cfg.SQLiteDSN, DatabaseURL: cfg.DatabaseURL}
}

// Open connects to the backend named by opts.Kind and applies pending
// migrations.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*Repositories, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("storage", opts.Kind)

	switch opts.Kind {
	case config.StorageMemory:
		store := memory.New()
		logger.WarnContext(ctx, "using in-memory storage, data is lost on exit")
		return &Repositories{Kind: opts.Kind, Users: store, Rooms: store, Bookings: store, close: store.Close}, nil

	case config.StorageSQLite, "":
		pool, err := sqlite.Open(opts.SQLiteDSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		if !opts.SkipMigrations {
			if err := pool.Migrate(ctx); err != nil {
				_ = pool.Close()
				return nil, fmt.Errorf("migrate sqlite: %w", err)
			}
		}
		logger.InfoContext(ctx, "storage ready", "dsn", opts.SQLiteDSN)
		return &Repositories{
			Kind:     config.StorageSQLite,
			Users:    sqlite.NewUserRepository(pool),
			Rooms:    sqlite.NewRoomRepository(pool),
			Bookings: sqlite.NewBookingRepository(pool),
			close:    pool.Close,
		}, nil

	case config.StoragePostgres:
		if !opts.SkipMigrations {
			if err := postgres.Migrate(opts.DatabaseURL); err != nil {
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
		}
		pool, err := postgres.Open(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		logger.InfoContext(ctx, "storage ready")
		return &Repositories{
			Kind:     opts.Kind,
			Users:    postgres.NewUserRepository(pool),
			Rooms:    postgres.NewRoomRepository(pool),
			Bookings: postgres.NewBookingRepository(pool),
			close: func() error {
				pool.Close()
				return nil
			},
		}, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", opts.Kind)
}
