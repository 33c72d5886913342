package application

import (
	"strings"
	"time"
)

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID  string
	IsAdmin bool
}

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingStatusPending  BookingStatus = "pending"
	BookingStatusApproved BookingStatus = "approved"
	BookingStatusRejected BookingStatus = "rejected"
)

// allowedTransitions lists every status change the engine performs.
// Rejected is terminal and approved never returns to pending.
var allowedTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:  {BookingStatusApproved, BookingStatusRejected},
	BookingStatusApproved: {BookingStatusRejected},
}

// ParseBookingStatus converts a raw string into a known status.
func ParseBookingStatus(raw string) (BookingStatus, bool) {
	switch status := BookingStatus(raw); status {
	case BookingStatusPending, BookingStatusApproved, BookingStatusRejected:
		return status, true
	}
	return "", false
}

// CanTransitionTo reports whether the lifecycle allows moving to next.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s BookingStatus) IsTerminal() bool {
	return len(allowedTransitions[s]) == 0
}

// Booking is a request to occupy a room for the half-open interval [Start, End).
type Booking struct {
	ID         string
	UserID     string
	RoomID     string
	Start      time.Time
	End        time.Time
	Purpose    string
	Status     BookingStatus
	ApprovedBy string
	Reason     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// BookingView is a booking joined with its room and requester details for display.
type BookingView struct {
	Booking
	RoomName     string
	RoomLocation string
	UserName     string
	UserEmail    string
}

// BookingInput captures caller provided booking fields.
type BookingInput struct {
	OwnerID string
	RoomID  string
	Start   time.Time
	End     time.Time
	Purpose string
}

// CreateBookingParams wraps the data required to create a booking.
type CreateBookingParams struct {
	Principal Principal
	Input     BookingInput
}

// BookingPatch is a typed partial update. Nil fields are left unchanged.
type BookingPatch struct {
	Purpose *string
	Start   *time.Time
	End     *time.Time
	Status  *BookingStatus
	Reason  *string
}

func (p BookingPatch) changesInterval() bool {
	return p.Start != nil || p.End != nil
}

func (p BookingPatch) isEmpty() bool {
	return p.Purpose == nil && !p.changesInterval() && p.Status == nil
}

// UpdateBookingParams wraps the data required to update a booking.
type UpdateBookingParams struct {
	Principal Principal
	BookingID string
	Patch     BookingPatch
}

// TransitionParams requests a status change, optionally carrying field edits
// applied in the same write.
type TransitionParams struct {
	Principal Principal
	BookingID string
	Status    BookingStatus
	Reason    string
	Patch     BookingPatch
}

// ListBookingsParams narrows a booking listing. Non-admin principals only
// ever see their own bookings.
type ListBookingsParams struct {
	Principal Principal
	UserID    string
	RoomID    string
	Statuses  []BookingStatus
}

// BookingQuery is the store level filter used by the services.
type BookingQuery struct {
	UserID       string
	RoomID       string
	Statuses     []BookingStatus
	StartsBefore *time.Time
	EndsAfter    *time.Time
}

// StatusChange is a compare-and-set status write issued inside a room transaction.
type StatusChange struct {
	BookingID  string
	From       BookingStatus
	To         BookingStatus
	ApprovedBy string
	Reason     string
	At         time.Time
}

// Notification reports one committed status change to the booking owner.
type Notification struct {
	BookingID       string
	RecipientUserID string
	RoomID          string
	Start           time.Time
	End             time.Time
	Status          BookingStatus
	Reason          string
	OccurredAt      time.Time
}

// RoomInput captures caller provided room fields.
type RoomInput struct {
	Name     string
	Location string
	Capacity int
	ImageURL *string
}

// Room represents a catalog entry for a physical room.
type Room struct {
	ID        string
	Name      string
	Location  string
	Capacity  int
	ImageURL  *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateRoomParams wraps the data required to create a room.
type CreateRoomParams struct {
	Principal Principal
	Input     RoomInput
}

// RoomPatch is a partial room update. Nil fields are left unchanged and an
// empty ImageURL clears the stored one.
type RoomPatch struct {
	Name     *string
	Location *string
	Capacity *int
	ImageURL *string
}

func (p RoomPatch) isEmpty() bool {
	return p.Name == nil && p.Location == nil && p.Capacity == nil && p.ImageURL == nil
}

func (p RoomPatch) apply(room Room) Room {
	if p.Name != nil {
		room.Name = strings.TrimSpace(*p.Name)
	}
	if p.Location != nil {
		room.Location = strings.TrimSpace(*p.Location)
	}
	if p.Capacity != nil {
		room.Capacity = *p.Capacity
	}
	if p.ImageURL != nil {
		room.ImageURL = normalizeOptionalString(p.ImageURL)
	}
	return room
}

// UpdateRoomParams wraps the data required to update a room.
type UpdateRoomParams struct {
	Principal Principal
	RoomID    string
	Patch     RoomPatch
}

// RoomQuery narrows a room listing. FreeFrom and FreeUntil are set together
// and keep only rooms without an approved booking overlapping the window.
type RoomQuery struct {
	MinCapacity int
	FreeFrom    *time.Time
	FreeUntil   *time.Time
}

// ListRoomsParams wraps a room listing request.
type ListRoomsParams struct {
	Principal Principal
	Query     RoomQuery
}

// User represents an account exposed by the application services.
type User struct {
	ID        string
	Email     string
	Name      string
	IsAdmin   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserPatch is a partial account update. IsAdmin may only be set by an
// administrator.
type UserPatch struct {
	Name    *string
	Email   *string
	IsAdmin *bool
}

func (p UserPatch) isEmpty() bool {
	return p.Name == nil && p.Email == nil && p.IsAdmin == nil
}

// UpdateUserParams wraps the data required to update an account.
type UpdateUserParams struct {
	Principal Principal
	UserID    string
	Patch     UserPatch
}

// ChangePasswordParams replaces the password of an account.
type ChangePasswordParams struct {
	Principal Principal
	UserID    string
	Password  string
}

// UserCredentials models the authentication attributes persisted for a user.
type UserCredentials struct {
	User         User
	PasswordHash string
}

// LoginParams captures the data required to authenticate a user.
type LoginParams struct {
	Email    string
	Password string
}

// SignupParams captures the data required to register a user.
type SignupParams struct {
	Name     string
	Email    string
	Password string
}

// AuthResult is returned by a successful login or signup.
type AuthResult struct {
	User      User
	Token     string
	ExpiresAt time.Time
}

// AdminStats summarizes bookings and rooms for the admin dashboard.
type AdminStats struct {
	TotalBookings  int
	PendingCount   int
	StatusCounts   map[BookingStatus]int
	TotalRooms     int
	AvailableRooms int
	TodayApproved  []BookingView
}
