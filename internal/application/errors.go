package application

import (
	"errors"
	"fmt"
)

var (
	// ErrForbidden is returned when the acting principal lacks permission for an operation.
	ErrForbidden = errors.New("application: forbidden")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrConflict is returned when approving or admitting a booking would
	// overlap an approved booking on the same room.
	ErrConflict = errors.New("application: booking conflict")
	// ErrInvalidTransition is returned for status changes the lifecycle does not allow.
	ErrInvalidTransition = errors.New("application: invalid status transition")
	// ErrAlreadyExists is returned when a unique resource already exists.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrInvalidCredentials is returned when login credentials do not match.
	ErrInvalidCredentials = errors.New("application: invalid credentials")
	// ErrRoomInUse is returned when deleting a room that has live bookings.
	ErrRoomInUse = errors.New("application: room has live bookings")
	// ErrProtectedAccount is returned when removing or demoting the
	// bootstrap administrator.
	ErrProtectedAccount = errors.New("application: account is protected")
)

// ConflictError identifies the approved booking that blocks an operation.
type ConflictError struct {
	BookingID string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e == nil || e.BookingID == "" {
		return ErrConflict.Error()
	}
	return fmt.Sprintf("%s with booking %s", ErrConflict.Error(), e.BookingID)
}

// Unwrap allows errors.Is(err, ErrConflict).
func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// RoomInUseError lists the pending or approved bookings that keep a room
// from being deleted.
type RoomInUseError struct {
	RoomID     string
	BookingIDs []string
}

func (e *RoomInUseError) Error() string {
	return fmt.Sprintf("%s: room %s has %d live bookings", ErrRoomInUse.Error(), e.RoomID, len(e.BookingIDs))
}

func (e *RoomInUseError) Unwrap() error {
	return ErrRoomInUse
}

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

func newValidationError(field, message string) *ValidationError {
	vErr := &ValidationError{}
	vErr.add(field, message)
	return vErr
}
