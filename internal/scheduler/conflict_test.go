package scheduler

import (
	"testing"
	"time"
)

func at(hour, minute int) time.Time {
	return time.Date(2025, time.March, 10, hour, minute, 0, 0, time.UTC)
}

func TestOverlaps(t *testing.T) {
	base := Slot{BookingID: "a", RoomID: "room-1", Start: at(10, 0), End: at(11, 0)}

	cases := []struct {
		name  string
		other Slot
		want  bool
	}{
		{"identical interval", Slot{RoomID: "room-1", Start: at(10, 0), End: at(11, 0)}, true},
		{"partial overlap at start", Slot{RoomID: "room-1", Start: at(9, 30), End: at(10, 30)}, true},
		{"partial overlap at end", Slot{RoomID: "room-1", Start: at(10, 59), End: at(12, 0)}, true},
		{"contained", Slot{RoomID: "room-1", Start: at(10, 15), End: at(10, 45)}, true},
		{"containing", Slot{RoomID: "room-1", Start: at(9, 0), End: at(12, 0)}, true},
		{"touching end", Slot{RoomID: "room-1", Start: at(11, 0), End: at(12, 0)}, false},
		{"touching start", Slot{RoomID: "room-1", Start: at(9, 0), End: at(10, 0)}, false},
		{"disjoint", Slot{RoomID: "room-1", Start: at(13, 0), End: at(14, 0)}, false},
		{"different room", Slot{RoomID: "room-2", Start: at(10, 0), End: at(11, 0)}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Overlaps(base, tc.other); got != tc.want {
				t.Fatalf("Overlaps(base, other) = %v, want %v", got, tc.want)
			}
			if got := Overlaps(tc.other, base); got != tc.want {
				t.Fatalf("Overlaps(other, base) = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDetectRoomConflicts(t *testing.T) {
	existing := []Slot{
		{BookingID: "b1", RoomID: "room-1", Start: at(9, 0), End: at(10, 0)},
		{BookingID: "b2", RoomID: "room-1", Start: at(10, 30), End: at(11, 30)},
		{BookingID: "b3", RoomID: "room-2", Start: at(10, 0), End: at(11, 0)},
		{BookingID: "self", RoomID: "room-1", Start: at(10, 0), End: at(11, 0)},
		{BookingID: "b4", RoomID: "room-1", Start: at(10, 59), End: at(12, 0)},
	}

	t.Run("returns overlapping slots in order and skips the candidate", func(t *testing.T) {
		candidate := Slot{BookingID: "self", RoomID: "room-1", Start: at(10, 0), End: at(11, 0)}

		conflicts := DetectRoomConflicts(existing, candidate)
		if len(conflicts) != 2 {
			t.Fatalf("expected 2 conflicts, got %d: %#v", len(conflicts), conflicts)
		}
		if conflicts[0].WithBookingID != "b2" || conflicts[1].WithBookingID != "b4" {
			t.Fatalf("unexpected conflicts: %#v", conflicts)
		}
	})

	t.Run("new candidate without id sees every overlap", func(t *testing.T) {
		candidate := Slot{RoomID: "room-1", Start: at(10, 0), End: at(11, 0)}

		conflicts := DetectRoomConflicts(existing, candidate)
		if len(conflicts) != 3 {
			t.Fatalf("expected 3 conflicts, got %d", len(conflicts))
		}
	})

	t.Run("no conflicts yields nil", func(t *testing.T) {
		candidate := Slot{RoomID: "room-1", Start: at(12, 0), End: at(13, 0)}
		if conflicts := DetectRoomConflicts(existing, candidate); conflicts != nil {
			t.Fatalf("expected nil, got %#v", conflicts)
		}
	})
}

func TestSlotIntersects(t *testing.T) {
	slot := Slot{Start: at(10, 0), End: at(11, 0)}
	if !slot.Intersects(at(10, 30), at(10, 30).Add(time.Nanosecond)) {
		t.Fatalf("expected instant inside slot to intersect")
	}
	if slot.Intersects(at(11, 0), at(11, 0).Add(time.Nanosecond)) {
		t.Fatalf("expected end instant to be outside slot")
	}
}

func TestSlotContains(t *testing.T) {
	slot := Slot{Start: at(10, 0), End: at(11, 0)}
	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{name: "start is inside", at: at(10, 0), want: true},
		{name: "middle", at: at(10, 30), want: true},
		{name: "last nanosecond", at: at(11, 0).Add(-time.Nanosecond), want: true},
		{name: "end is outside", at: at(11, 0)},
		{name: "before", at: at(9, 59)},
	}
	for _, tc := range cases {
		if got := slot.Contains(tc.at); got != tc.want {
			t.Fatalf("%s: Contains(%v) = %v, want %v", tc.name, tc.at, got, tc.want)
		}
	}
}
