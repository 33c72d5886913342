package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/room-reservation/internal/scheduler"
)

const (
	// CascadeRejectionReason is recorded on pending bookings rejected because
	// an overlapping booking was approved.
	CascadeRejectionReason = "another booking was approved for the same room and time slot"
	// DefaultRejectionReason is recorded when an administrator rejects without a reason.
	DefaultRejectionReason = "Rejected by admin."
)

// RequestTransition moves a booking to a new status on behalf of an
// administrator. Requesting the current status only applies the patch.
// Approval checks the room for overlapping approved bookings and rejects
// every overlapping pending booking in the same transaction. Owners are
// notified of every committed status change after the transaction ends.
func (s *BookingService) RequestTransition(ctx context.Context, params TransitionParams) (booking Booking, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}
	if s.bookings == nil {
		err = fmt.Errorf("booking store not configured")
		return
	}

	logger := s.loggerWith(ctx, "RequestTransition",
		"principal_id", params.Principal.UserID,
		"booking_id", params.BookingID,
		"target_status", string(params.Status),
	)
	var notifications []Notification
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to transition booking", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("status", string(booking.Status), "status_changes", len(notifications)).InfoContext(ctx, "booking transition applied")
	}()

	vErr := &ValidationError{}
	if validateBookingID(params.BookingID) != nil {
		vErr.add("id", "booking id must be a valid UUID")
	}
	if _, ok := ParseBookingStatus(string(params.Status)); !ok {
		vErr.add("status", "status must be pending, approved or rejected")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}
	if !params.Principal.IsAdmin {
		err = ErrForbidden
		return
	}

	var existing Booking
	existing, err = s.bookings.GetBooking(ctx, params.BookingID)
	if err != nil {
		err = mapBookingRepoError(err)
		return
	}
	if err = validatePatchInterval(existing, params.Patch); err != nil {
		return
	}

	err = s.bookings.WithinRoom(ctx, existing.RoomID, func(tx BookingTx) error {
		current, err := tx.GetBooking(ctx, params.BookingID)
		if err != nil {
			return err
		}

		var txErr error
		booking, notifications, txErr = s.transitionLocked(ctx, tx, current, params)
		return txErr
	})
	if err != nil {
		booking = Booking{}
		notifications = nil
		err = mapBookingRepoError(err)
		return
	}

	s.dispatch(ctx, logger, notifications)
	return
}

// UpdateBooking applies a typed partial update. Owners may edit the purpose
// at any time and the interval only while the booking is pending;
// administrators may edit any field. A status in the patch is routed through
// RequestTransition.
func (s *BookingService) UpdateBooking(ctx context.Context, params UpdateBookingParams) (booking Booking, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}
	if s.bookings == nil {
		err = fmt.Errorf("booking store not configured")
		return
	}
	if err = validateBookingID(params.BookingID); err != nil {
		return
	}

	principal := params.Principal
	patch := params.Patch

	var existing Booking
	existing, err = s.bookings.GetBooking(ctx, params.BookingID)
	if err != nil {
		err = mapBookingRepoError(err)
		return
	}
	if existing.UserID != principal.UserID && !principal.IsAdmin {
		err = ErrForbidden
		return
	}

	if patch.Status != nil {
		if !principal.IsAdmin {
			err = ErrForbidden
			return
		}
		reason := ""
		if patch.Reason != nil {
			reason = *patch.Reason
		}
		fields := patch
		fields.Status = nil
		return s.RequestTransition(ctx, TransitionParams{
			Principal: principal,
			BookingID: params.BookingID,
			Status:    *patch.Status,
			Reason:    reason,
			Patch:     fields,
		})
	}

	logger := s.loggerWith(ctx, "UpdateBooking",
		"principal_id", principal.UserID,
		"booking_id", params.BookingID,
	)
	var notifications []Notification
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update booking", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("status_changes", len(notifications)).InfoContext(ctx, "booking updated")
	}()

	if err = validatePatchInterval(existing, patch); err != nil {
		return
	}
	if patch.isEmpty() {
		booking = existing
		return
	}

	err = s.bookings.WithinRoom(ctx, existing.RoomID, func(tx BookingTx) error {
		current, err := tx.GetBooking(ctx, params.BookingID)
		if err != nil {
			return err
		}
		if patch.changesInterval() && !principal.IsAdmin && current.Status != BookingStatusPending {
			return newValidationError("time", "the interval can only be changed while the booking is pending")
		}

		updated := applyPatch(current, patch)
		updated.UpdatedAt = s.now()

		var txErr error
		notifications, txErr = s.writeFieldsLocked(ctx, tx, current, updated)
		booking = updated
		return txErr
	})
	if err != nil {
		booking = Booking{}
		notifications = nil
		err = mapBookingRepoError(err)
		return
	}

	s.dispatch(ctx, logger, notifications)
	return
}

// transitionLocked runs inside the room transaction. It returns the resulting
// booking and one notification per status change it wrote.
func (s *BookingService) transitionLocked(ctx context.Context, tx BookingTx, current Booking, params TransitionParams) (Booking, []Notification, error) {
	now := s.now()
	updated := applyPatch(current, params.Patch)
	updated.UpdatedAt = now

	if current.Status == params.Status {
		cascaded, err := s.writeFieldsLocked(ctx, tx, current, updated)
		if err != nil {
			return Booking{}, nil, err
		}
		return updated, cascaded, nil
	}
	if !current.Status.CanTransitionTo(params.Status) {
		return Booking{}, nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current.Status, params.Status)
	}

	if fieldsChanged(current, updated) {
		if err := tx.UpdateBooking(ctx, updated); err != nil {
			return Booking{}, nil, err
		}
	}

	change := StatusChange{
		BookingID: current.ID,
		From:      current.Status,
		To:        params.Status,
		At:        now,
	}
	var cascaded []Notification

	switch params.Status {
	case BookingStatusApproved:
		if err := ensureNoApprovedOverlap(ctx, tx, updated); err != nil {
			return Booking{}, nil, err
		}
		change.ApprovedBy = params.Principal.UserID
		if err := tx.CompareAndSetStatus(ctx, change); err != nil {
			return Booking{}, nil, err
		}
		var err error
		cascaded, err = s.cascadeLocked(ctx, tx, updated, now)
		if err != nil {
			return Booking{}, nil, err
		}
	case BookingStatusRejected:
		change.Reason = strings.TrimSpace(params.Reason)
		if change.Reason == "" {
			change.Reason = DefaultRejectionReason
		}
		if err := tx.CompareAndSetStatus(ctx, change); err != nil {
			return Booking{}, nil, err
		}
	}

	updated.Status = change.To
	updated.ApprovedBy = change.ApprovedBy
	updated.Reason = change.Reason

	notifications := make([]Notification, 0, 1+len(cascaded))
	notifications = append(notifications, notificationFor(updated, now))
	notifications = append(notifications, cascaded...)
	return updated, notifications, nil
}

// writeFieldsLocked persists field edits without a status change. Moving the
// interval of an approved booking re-checks approved overlaps and cascades
// over newly overlapping pending bookings; moving a pending booking onto an
// approved one is refused like a new admission.
func (s *BookingService) writeFieldsLocked(ctx context.Context, tx BookingTx, current, updated Booking) ([]Notification, error) {
	if !fieldsChanged(current, updated) {
		return nil, nil
	}

	intervalMoved := !current.Start.Equal(updated.Start) || !current.End.Equal(updated.End)
	if intervalMoved && updated.Status != BookingStatusRejected {
		if err := ensureNoApprovedOverlap(ctx, tx, updated); err != nil {
			return nil, err
		}
	}

	if err := tx.UpdateBooking(ctx, updated); err != nil {
		return nil, err
	}

	if intervalMoved && updated.Status == BookingStatusApproved {
		return s.cascadeLocked(ctx, tx, updated, updated.UpdatedAt)
	}
	return nil, nil
}

// cascadeLocked rejects every pending booking on the room that overlaps the
// approved booking. Any failed write aborts the surrounding transaction.
func (s *BookingService) cascadeLocked(ctx context.Context, tx BookingTx, approved Booking, at time.Time) ([]Notification, error) {
	pending, err := tx.ListRoomBookings(ctx, approved.RoomID, BookingStatusPending)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]Booking, len(pending))
	for _, booking := range pending {
		byID[booking.ID] = booking
	}

	conflicts := scheduler.DetectRoomConflicts(toSlots(pending), toSlot(approved))
	notifications := make([]Notification, 0, len(conflicts))
	for _, conflict := range conflicts {
		if err := tx.CompareAndSetStatus(ctx, StatusChange{
			BookingID: conflict.WithBookingID,
			From:      BookingStatusPending,
			To:        BookingStatusRejected,
			Reason:    CascadeRejectionReason,
			At:        at,
		}); err != nil {
			return nil, fmt.Errorf("reject overlapping booking %s: %w", conflict.WithBookingID, err)
		}

		rejected := byID[conflict.WithBookingID]
		rejected.Status = BookingStatusRejected
		rejected.ApprovedBy = ""
		rejected.Reason = CascadeRejectionReason
		notifications = append(notifications, notificationFor(rejected, at))
	}
	return notifications, nil
}

func ensureNoApprovedOverlap(ctx context.Context, tx BookingTx, candidate Booking) error {
	approved, err := tx.ListRoomBookings(ctx, candidate.RoomID, BookingStatusApproved)
	if err != nil {
		return err
	}
	if conflicts := scheduler.DetectRoomConflicts(toSlots(approved), toSlot(candidate)); len(conflicts) > 0 {
		return &ConflictError{BookingID: conflicts[0].WithBookingID}
	}
	return nil
}

// dispatch hands each notification to the notifier independently. Failures
// are logged and never affect the committed state.
func (s *BookingService) dispatch(ctx context.Context, logger *slog.Logger, notifications []Notification) {
	if s.notifier == nil || len(notifications) == 0 {
		return
	}
	detached := context.WithoutCancel(ctx)
	for _, notification := range notifications {
		if err := s.notifier.Notify(detached, notification); err != nil {
			logger.WarnContext(ctx, "failed to dispatch booking notification",
				"error", err,
				"notified_booking_id", notification.BookingID,
				"notified_status", string(notification.Status),
			)
		}
	}
}

func notificationFor(booking Booking, at time.Time) Notification {
	return Notification{
		BookingID:       booking.ID,
		RecipientUserID: booking.UserID,
		RoomID:          booking.RoomID,
		Start:           booking.Start,
		End:             booking.End,
		Status:          booking.Status,
		Reason:          booking.Reason,
		OccurredAt:      at,
	}
}

func applyPatch(booking Booking, patch BookingPatch) Booking {
	if patch.Purpose != nil {
		booking.Purpose = strings.TrimSpace(*patch.Purpose)
	}
	if patch.Start != nil {
		booking.Start = *patch.Start
	}
	if patch.End != nil {
		booking.End = *patch.End
	}
	return booking
}

func validatePatchInterval(existing Booking, patch BookingPatch) error {
	if !patch.changesInterval() {
		return nil
	}
	next := applyPatch(existing, patch)
	if vErr := validateInterval(next.Start, next.End); vErr.HasErrors() {
		return vErr
	}
	return nil
}

func fieldsChanged(before, after Booking) bool {
	return before.Purpose != after.Purpose ||
		!before.Start.Equal(after.Start) ||
		!before.End.Equal(after.End)
}
