package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/room-reservation/internal/application"
)

type bookingService interface {
	CreateBooking(ctx context.Context, params application.CreateBookingParams) (application.Booking, error)
	GetBooking(ctx context.Context, principal application.Principal, bookingID string) (application.BookingView, error)
	ListBookings(ctx context.Context, params application.ListBookingsParams) ([]application.BookingView, error)
	ListPendingBookings(ctx context.Context, principal application.Principal) ([]application.BookingView, error)
	UpdateBooking(ctx context.Context, params application.UpdateBookingParams) (application.Booking, error)
	RequestTransition(ctx context.Context, params application.TransitionParams) (application.Booking, error)
	DeleteBooking(ctx context.Context, principal application.Principal, bookingID string) error
}

// BookingHandler exposes booking admission and the approval workflow.
type BookingHandler struct {
	service   bookingService
	responder responder
	logger    *slog.Logger
}

func NewBookingHandler(service bookingService, logger *slog.Logger) *BookingHandler {
	base := defaultLogger(logger)
	return &BookingHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *BookingHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "BookingHandler", operation, attrs...)
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req createBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode booking request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	booking, err := h.service.CreateBooking(r.Context(), application.CreateBookingParams{
		Principal: principal,
		Input: application.BookingInput{
			OwnerID: strings.TrimSpace(req.UserID),
			RoomID:  strings.TrimSpace(req.RoomID),
			Start:   req.Start,
			End:     req.End,
			Purpose: req.Purpose,
		},
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, bookingResponse{Booking: toBookingDTO(booking)})
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	params, err := buildListParams(r.URL.Query(), principal)
	if err != nil {
		h.responder.writeJSON(r.Context(), w, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: "VALIDATION_FAILED",
			Message:   statusMessage(http.StatusUnprocessableEntity),
			Errors:    map[string]string{"status": err.Error()},
		})
		return
	}

	views, err := h.service.ListBookings(r.Context(), params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listBookingsResponse{Bookings: toBookingViewDTOs(views)})
}

func (h *BookingHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	views, err := h.service.ListPendingBookings(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listBookingsResponse{Bookings: toBookingViewDTOs(views)})
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	view, err := h.service.GetBooking(r.Context(), principal, chi.URLParam(r, "id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, bookingViewResponse{Booking: toBookingViewDTO(view)})
}

func (h *BookingHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	bookingID := chi.URLParam(r, "id")

	var req updateBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Update", "booking_id", bookingID, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode booking update", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		h.responder.writeJSON(r.Context(), w, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: "VALIDATION_FAILED",
			Message:   statusMessage(http.StatusUnprocessableEntity),
			Errors:    map[string]string{"status": err.Error()},
		})
		return
	}

	booking, err := h.service.UpdateBooking(r.Context(), application.UpdateBookingParams{
		Principal: principal,
		BookingID: bookingID,
		Patch:     patch,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, bookingResponse{Booking: toBookingDTO(booking)})
}

func (h *BookingHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, application.BookingStatusApproved, "")
}

func (h *BookingHandler) Reject(w http.ResponseWriter, r *http.Request) {
	// The body is optional; an empty one, chunked or not, means no reason.
	var req rejectRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	h.transition(w, r, application.BookingStatusRejected, req.Reason)
}

func (h *BookingHandler) transition(w http.ResponseWriter, r *http.Request, status application.BookingStatus, reason string) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	booking, err := h.service.RequestTransition(r.Context(), application.TransitionParams{
		Principal: principal,
		BookingID: chi.URLParam(r, "id"),
		Status:    status,
		Reason:    reason,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, bookingResponse{Booking: toBookingDTO(booking)})
}

func (h *BookingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := h.service.DeleteBooking(r.Context(), principal, chi.URLParam(r, "id")); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// buildListParams reads room_id, user_id and a comma separated status list.
func buildListParams(values url.Values, principal application.Principal) (application.ListBookingsParams, error) {
	params := application.ListBookingsParams{
		Principal: principal,
		UserID:    strings.TrimSpace(values.Get("user_id")),
		RoomID:    strings.TrimSpace(values.Get("room_id")),
	}
	for _, raw := range values["status"] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(strings.ToLower(part))
			if part == "" {
				continue
			}
			status, ok := application.ParseBookingStatus(part)
			if !ok {
				return application.ListBookingsParams{}, errInvalidStatus
			}
			params.Statuses = append(params.Statuses, status)
		}
	}
	return params, nil
}

type createBookingRequest struct {
	UserID  string    `json:"user_id"`
	RoomID  string    `json:"room_id"`
	Start   time.Time `json:"start_time"`
	End     time.Time `json:"end_time"`
	Purpose string    `json:"purpose"`
}

type updateBookingRequest struct {
	Purpose *string    `json:"purpose"`
	Start   *time.Time `json:"start_time"`
	End     *time.Time `json:"end_time"`
	Status  *string    `json:"status"`
	Reason  *string    `json:"reason"`
}

func (r updateBookingRequest) toPatch() (application.BookingPatch, error) {
	patch := application.BookingPatch{
		Purpose: r.Purpose,
		Start:   r.Start,
		End:     r.End,
		Reason:  r.Reason,
	}
	if r.Status != nil {
		status, ok := application.ParseBookingStatus(strings.TrimSpace(strings.ToLower(*r.Status)))
		if !ok {
			return application.BookingPatch{}, errInvalidStatus
		}
		patch.Status = &status
	}
	return patch, nil
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type bookingResponse struct {
	Booking bookingDTO `json:"booking"`
}

type bookingViewResponse struct {
	Booking bookingViewDTO `json:"booking"`
}

type listBookingsResponse struct {
	Bookings []bookingViewDTO `json:"bookings"`
}

type bookingDTO struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	RoomID     string `json:"room_id"`
	Start      string `json:"start_time"`
	End        string `json:"end_time"`
	Purpose    string `json:"purpose,omitempty"`
	Status     string `json:"status"`
	ApprovedBy string `json:"approved_by,omitempty"`
	Reason     string `json:"reason,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

type bookingViewDTO struct {
	bookingDTO
	Room bookingRoomDTO `json:"room"`
	User bookingUserDTO `json:"user"`
}

type bookingRoomDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Location string `json:"location,omitempty"`
}

type bookingUserDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

func toBookingDTO(b application.Booking) bookingDTO {
	return bookingDTO{
		ID:         b.ID,
		UserID:     b.UserID,
		RoomID:     b.RoomID,
		Start:      b.Start.UTC().Format(time.RFC3339),
		End:        b.End.UTC().Format(time.RFC3339),
		Purpose:    b.Purpose,
		Status:     string(b.Status),
		ApprovedBy: b.ApprovedBy,
		Reason:     b.Reason,
		CreatedAt:  b.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:  b.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toBookingViewDTO(v application.BookingView) bookingViewDTO {
	return bookingViewDTO{
		bookingDTO: toBookingDTO(v.Booking),
		Room:       bookingRoomDTO{ID: v.RoomID, Name: v.RoomName, Location: v.RoomLocation},
		User:       bookingUserDTO{ID: v.UserID, Name: v.UserName, Email: v.UserEmail},
	}
}

func toBookingViewDTOs(views []application.BookingView) []bookingViewDTO {
	out := make([]bookingViewDTO, 0, len(views))
	for _, v := range views {
		out = append(out, toBookingViewDTO(v))
	}
	return out
}
