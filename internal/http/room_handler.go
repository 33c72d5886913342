package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/room-reservation/internal/application"
)

type roomService interface {
	CreateRoom(ctx context.Context, params application.CreateRoomParams) (application.Room, error)
	UpdateRoom(ctx context.Context, params application.UpdateRoomParams) (application.Room, error)
	DeleteRoom(ctx context.Context, principal application.Principal, roomID string) error
	ListRooms(ctx context.Context, params application.ListRoomsParams) ([]application.Room, error)
	GetRoom(ctx context.Context, roomID string) (application.Room, error)
}

// RoomHandler serves the room catalog. The router restricts mutations to
// administrators and the service checks again.
type RoomHandler struct {
	service   roomService
	responder responder
	logger    *slog.Logger
}

func NewRoomHandler(service roomService, logger *slog.Logger) *RoomHandler {
	base := defaultLogger(logger)
	return &RoomHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *RoomHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "RoomHandler", operation, attrs...)
}

// List handles GET /api/rooms. Optional query parameters: min_capacity, and
// free_from with free_until (RFC 3339) to keep rooms that are free for the
// whole window.
func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)

	query, fieldErrors := parseRoomQuery(r)
	if len(fieldErrors) > 0 {
		h.responder.handleServiceError(ctx, w, &application.ValidationError{FieldErrors: fieldErrors})
		return
	}

	rooms, err := h.service.ListRooms(ctx, application.ListRoomsParams{Principal: principal, Query: query})
	if err != nil {
		h.log(ctx, "List", "principal_id", principal.UserID).
			ErrorContext(ctx, "room list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, listRoomsResponse{Rooms: toRoomDTOs(rooms)})
}

func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	room, err := h.service.GetRoom(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, roomResponse{Room: toRoomDTO(room)})
}

// Create handles POST /api/rooms.
func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)
	logger := h.log(ctx, "Create", "principal_id", principal.UserID)

	var req createRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		logger.WarnContext(ctx, "failed to decode room request", "error", err, "error_kind", "bad_request")
		h.responder.writeError(ctx, w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	room, err := h.service.CreateRoom(ctx, application.CreateRoomParams{
		Principal: principal,
		Input: application.RoomInput{
			Name:     req.Name,
			Location: req.Location,
			Capacity: req.Capacity,
			ImageURL: req.ImageURL,
		},
	})
	if err != nil {
		logger.ErrorContext(ctx, "room creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusCreated, roomResponse{Room: toRoomDTO(room)})
}

// Update handles PUT /api/rooms/{id}. Omitted fields are left unchanged.
func (h *RoomHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)
	roomID := chi.URLParam(r, "id")
	logger := h.log(ctx, "Update", "principal_id", principal.UserID, "room_id", roomID)

	var req updateRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		logger.WarnContext(ctx, "failed to decode room update", "error", err, "error_kind", "bad_request")
		h.responder.writeError(ctx, w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	room, err := h.service.UpdateRoom(ctx, application.UpdateRoomParams{
		Principal: principal,
		RoomID:    roomID,
		Patch:     application.RoomPatch(req),
	})
	if err != nil {
		logger.ErrorContext(ctx, "room update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, roomResponse{Room: toRoomDTO(room)})
}

// Delete handles DELETE /api/rooms/{id}. Rooms with live bookings answer
// 409 ROOM_IN_USE listing the blocking bookings.
func (h *RoomHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)
	roomID := chi.URLParam(r, "id")

	if err := h.service.DeleteRoom(ctx, principal, roomID); err != nil {
		h.log(ctx, "Delete", "principal_id", principal.UserID, "room_id", roomID).
			ErrorContext(ctx, "room delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusNoContent, nil)
}

func parseRoomQuery(r *http.Request) (application.RoomQuery, map[string]string) {
	var (
		query       application.RoomQuery
		fieldErrors = map[string]string{}
		values      = r.URL.Query()
	)
	if raw := strings.TrimSpace(values.Get("min_capacity")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			fieldErrors["min_capacity"] = "min_capacity must be an integer"
		}
		query.MinCapacity = n
	}
	for key, target := range map[string]**time.Time{"free_from": &query.FreeFrom, "free_until": &query.FreeUntil} {
		raw := strings.TrimSpace(values.Get(key))
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			fieldErrors[key] = key + " must be an RFC 3339 timestamp"
			continue
		}
		*target = &t
	}
	return query, fieldErrors
}

type createRoomRequest struct {
	Name     string  `json:"name"`
	Location string  `json:"location"`
	Capacity int     `json:"capacity"`
	ImageURL *string `json:"image_url"`
}

// updateRoomRequest mirrors application.RoomPatch field for field.
type updateRoomRequest struct {
	Name     *string `json:"name"`
	Location *string `json:"location"`
	Capacity *int    `json:"capacity"`
	ImageURL *string `json:"image_url"`
}

type roomResponse struct {
	Room roomDTO `json:"room"`
}

type listRoomsResponse struct {
	Rooms []roomDTO `json:"rooms"`
}

type roomDTO struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Location  string  `json:"location"`
	Capacity  int     `json:"capacity"`
	ImageURL  *string `json:"image_url,omitempty"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

func toRoomDTO(room application.Room) roomDTO {
	return roomDTO{
		ID:        room.ID,
		Name:      room.Name,
		Location:  room.Location,
		Capacity:  room.Capacity,
		ImageURL:  room.ImageURL,
		CreatedAt: room.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: room.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toRoomDTOs(rooms []application.Room) []roomDTO {
	out := make([]roomDTO, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, toRoomDTO(room))
	}
	return out
}
