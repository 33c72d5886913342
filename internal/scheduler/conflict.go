package scheduler

import "time"

// Slot is the portion of a booking the conflict rules look at: a half-open
// interval [Start, End) on a single room.
type Slot struct {
	BookingID string
	RoomID    string
	Start     time.Time
	End       time.Time
}

// Conflict names an existing slot that overlaps a candidate.
type Conflict struct {
	WithBookingID string
	RoomID        string
	Start         time.Time
	End           time.Time
}

// Overlaps reports whether a and b occupy the same room for a non-empty
// stretch of time. Touching endpoints do not overlap.
func Overlaps(a, b Slot) bool {
	if a.RoomID != b.RoomID {
		return false
	}
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// DetectRoomConflicts returns every slot in existing that overlaps candidate,
// in input order. A slot carrying the candidate's own booking ID is skipped so
// callers can pass an unfiltered room listing when re-checking a booking.
func DetectRoomConflicts(existing []Slot, candidate Slot) []Conflict {
	var conflicts []Conflict
	for _, slot := range existing {
		if candidate.BookingID != "" && slot.BookingID == candidate.BookingID {
			continue
		}
		if !Overlaps(slot, candidate) {
			continue
		}
		conflicts = append(conflicts, Conflict{
			WithBookingID: slot.BookingID,
			RoomID:        slot.RoomID,
			Start:         slot.Start,
			End:           slot.End,
		})
	}
	return conflicts
}

// Intersects reports whether [start, end) intersects the slot regardless of
// room. Availability reporting uses it to test a point or window in time.
func (s Slot) Intersects(start, end time.Time) bool {
	return s.Start.Before(end) && start.Before(s.End)
}

// Contains reports whether the instant t falls inside [Start, End).
func (s Slot) Contains(t time.Time) bool {
	return s.Intersects(t, t.Add(time.Nanosecond))
}
