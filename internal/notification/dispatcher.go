package notification

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/example/room-reservation/internal/application"
	"github.com/example/room-reservation/internal/logging"
)

var (
	// ErrQueueFull is returned by Notify when the buffer has no room.
	ErrQueueFull = errors.New("notification: queue full")
	// ErrClosed is returned by Notify after Close.
	ErrClosed = errors.New("notification: dispatcher closed")
)

// DispatcherOptions tunes a Dispatcher.
type DispatcherOptions struct {
	Workers         int
	QueueSize       int
	DeliveryTimeout time.Duration
}

func (o DispatcherOptions) withDefaults() DispatcherOptions {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.DeliveryTimeout <= 0 {
		o.DeliveryTimeout = 30 * time.Second
	}
	return o
}

// Dispatcher implements application.Notifier with a bounded queue drained
// by a fixed set of worker goroutines.
type Dispatcher struct {
	sink    Sink
	opts    DispatcherOptions
	logger  *slog.Logger
	queue   chan application.Notification
	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// NewDispatcher returns a dispatcher delivering to sink. Call Start before
// notifications can be delivered.
func NewDispatcher(sink Sink, opts DispatcherOptions, logger *slog.Logger) *Dispatcher {
	opts = opts.withDefaults()
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		sink:   sink,
		opts:   opts,
		logger: logger.With("component", "notification_dispatcher"),
		queue:  make(chan application.Notification, opts.QueueSize),
	}
}

// Start launches the workers. Calling it twice has no effect.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
}

// Notify enqueues n without waiting for delivery.
func (d *Dispatcher) Notify(ctx context.Context, n application.Notification) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting notifications and waits for queued ones to be
// delivered or for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for n := range d.queue {
		d.deliver(n)
	}
}

func (d *Dispatcher) deliver(n application.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.DeliveryTimeout)
	defer cancel()

	logger := d.logger.With(
		"booking_id", n.BookingID,
		"status", string(n.Status),
		"recipient_id", n.RecipientUserID,
	)
	if err := d.sink.Deliver(ctx, n); err != nil {
		logger.ErrorContext(ctx, "failed to deliver booking notification", "error", err)
		return
	}
	logger.InfoContext(ctx, "booking notification delivered")
}
