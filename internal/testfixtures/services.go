package testfixtures

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/example/room-reservation/internal/application"
	"github.com/example/room-reservation/internal/persistence/bridge"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithLogger sets the logger handed to every service.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Logger = logger
	}
}

// Services is a full set of application services over one storage backend.
type Services struct {
	Harness  *Harness
	Bookings *application.BookingService
	Rooms    *application.RoomService
	Users    *application.UserService
	Stats    *application.StatsService
	Notifier *RecordingNotifier
}

// ProtectedAdminEmail is the account the fixture user service treats as the
// bootstrap administrator.
const ProtectedAdminEmail = "root@example.com"

// NewServices wires every service over harness with a recording notifier.
func (f *ServiceFactory) NewServices(harness *Harness) *Services {
	rooms := bridge.NewRoomRepository(harness.Rooms)
	bookings := bridge.NewBookingStore(harness.Bookings)
	directory := bridge.NewDirectory(harness.Users, harness.Rooms)
	notifier := &RecordingNotifier{}

	roomService := application.NewRoomServiceWithLogger(rooms, bookings, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), f.Logger)
	return &Services{
		Harness:  harness,
		Bookings: application.NewBookingServiceWithLogger(bookings, roomService, directory, notifier, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), f.Logger),
		Rooms:    roomService,
		Users:    application.NewUserServiceWithLogger(bridge.NewUserStore(harness.Users), f.Clock.NowFunc(), f.Logger, ProtectedAdminEmail),
		Stats:    application.NewStatsServiceWithLogger(bookings, rooms, directory, f.Clock.NowFunc(), f.Logger),
		Notifier: notifier,
	}
}

// NewMemoryServices wires every service over a fresh in-memory store.
func (f *ServiceFactory) NewMemoryServices(tb testing.TB) *Services {
	tb.Helper()
	return f.NewServices(NewMemoryHarness(tb))
}

// RecordingNotifier captures notifications in dispatch order.
type RecordingNotifier struct {
	mu            sync.Mutex
	notifications []application.Notification
	err           error
}

// Notify records n and returns the configured error.
func (r *RecordingNotifier) Notify(ctx context.Context, n application.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
	return r.err
}

// FailWith makes every later Notify call return err after recording.
func (r *RecordingNotifier) FailWith(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// Notifications returns a copy of everything recorded so far.
func (r *RecordingNotifier) Notifications() []application.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]application.Notification(nil), r.notifications...)
}

// Reset discards recorded notifications.
func (r *RecordingNotifier) Reset() {
	r.mu.Lock()
	r.notifications = nil
	r.mu.Unlock()
}
