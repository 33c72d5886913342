// Package notification delivers committed booking status changes to users
// and administrators.
package notification

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/room-reservation/internal/application"
)

// Routing keys published on the booking events exchange.
const (
	RKBookingApproved = "booking.approved"
	RKBookingRejected = "booking.rejected"
	RKBookingPending  = "booking.pending"
)

// Event is the wire form of an application.Notification.
type Event struct {
	BookingID  string    `json:"booking_id"`
	UserID     string    `json:"user_id"`
	RoomID     string    `json:"room_id"`
	Start      time.Time `json:"start_time"`
	End        time.Time `json:"end_time"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventFrom converts a notification into its wire form.
func EventFrom(n application.Notification) Event {
	return Event{
		BookingID:  n.BookingID,
		UserID:     n.RecipientUserID,
		RoomID:     n.RoomID,
		Start:      n.Start.UTC(),
		End:        n.End.UTC(),
		Status:     string(n.Status),
		Reason:     n.Reason,
		OccurredAt: n.OccurredAt.UTC(),
	}
}

// Notification converts the event back. Unknown statuses are an error.
func (e Event) Notification() (application.Notification, error) {
	status, ok := application.ParseBookingStatus(e.Status)
	if !ok {
		return application.Notification{}, fmt.Errorf("notification: unknown status %q", e.Status)
	}
	return application.Notification{
		BookingID:       e.BookingID,
		RecipientUserID: e.UserID,
		RoomID:          e.RoomID,
		Start:           e.Start,
		End:             e.End,
		Status:          status,
		Reason:          e.Reason,
		OccurredAt:      e.OccurredAt,
	}, nil
}

// RoutingKey returns the routing key for a booking status.
func RoutingKey(status application.BookingStatus) string {
	switch status {
	case application.BookingStatusApproved:
		return RKBookingApproved
	case application.BookingStatusRejected:
		return RKBookingRejected
	default:
		return RKBookingPending
	}
}

// DecodeEvent parses a JSON event body.
func DecodeEvent(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("notification: decode event: %w", err)
	}
	if ev.BookingID == "" {
		return Event{}, fmt.Errorf("notification: event without booking_id")
	}
	return ev, nil
}
