package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/room-reservation/internal/application"
)

// Sink delivers one notification synchronously.
type Sink interface {
	Deliver(ctx context.Context, n application.Notification) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n application.Notification) error

func (f SinkFunc) Deliver(ctx context.Context, n application.Notification) error {
	return f(ctx, n)
}

// Fanout delivers to every sink. A failing sink does not stop the others;
// their errors are joined.
type Fanout []Sink

func (f Fanout) Deliver(ctx context.Context, n application.Notification) error {
	var errs []error
	for i, sink := range f {
		if sink == nil {
			continue
		}
		if err := sink.Deliver(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Permanent marks err as a failure that retrying cannot fix, such as a
// recipient without an email address.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// IsPermanent reports whether err was marked by Permanent. A joined error,
// as returned by Fanout, is permanent only when every part is.
func IsPermanent(err error) bool {
	switch e := err.(type) {
	case nil:
		return false
	case *permanentError:
		return true
	case interface{ Unwrap() []error }:
		parts := e.Unwrap()
		for _, part := range parts {
			if !IsPermanent(part) {
				return false
			}
		}
		return len(parts) > 0
	case interface{ Unwrap() error }:
		return IsPermanent(e.Unwrap())
	}
	return false
}
