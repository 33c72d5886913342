package persistence

import "time"

// User represents an account that can request or approve bookings.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Room represents a bookable room catalog entry.
type Room struct {
	ID        string
	Name      string
	Location  string
	Capacity  int
	ImageURL  *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BookingStatus is the lifecycle state stored with every booking.
type BookingStatus string

const (
	BookingStatusPending  BookingStatus = "pending"
	BookingStatusApproved BookingStatus = "approved"
	BookingStatusRejected BookingStatus = "rejected"
)

// Booking represents a room reservation request stored in persistence.
type Booking struct {
	ID         string
	UserID     string
	RoomID     string
	Start      time.Time
	End        time.Time
	Purpose    *string
	Status     BookingStatus
	ApprovedBy *string
	Reason     *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// StatusChange describes a compare-and-set status write. The write applies
// only while the stored status equals From. ApprovedBy and Reason replace the
// stored values; nil clears them.
type StatusChange struct {
	ID         string
	From       BookingStatus
	To         BookingStatus
	ApprovedBy *string
	Reason     *string
	UpdatedAt  time.Time
}
