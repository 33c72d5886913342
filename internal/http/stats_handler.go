package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/room-reservation/internal/application"
)

type statsService interface {
	AdminStats(ctx context.Context, principal application.Principal) (application.AdminStats, error)
}

// StatsHandler serves the administrator dashboard summary.
type StatsHandler struct {
	service   statsService
	responder responder
}

func NewStatsHandler(service statsService, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{service: service, responder: newResponder(defaultLogger(logger))}
}

func (h *StatsHandler) Admin(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	stats, err := h.service.AdminStats(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	counts := make(map[string]int, len(stats.StatusCounts))
	for status, n := range stats.StatusCounts {
		counts[string(status)] = n
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, adminStatsResponse{
		TotalBookings:         stats.TotalBookings,
		PendingApprovals:      stats.PendingCount,
		BookingStatusCounts:   counts,
		TotalRooms:            stats.TotalRooms,
		AvailableRooms:        stats.AvailableRooms,
		TodayApprovedBookings: toBookingViewDTOs(stats.TodayApproved),
	})
}

type adminStatsResponse struct {
	TotalBookings         int              `json:"total_bookings"`
	PendingApprovals      int              `json:"pending_approvals"`
	BookingStatusCounts   map[string]int   `json:"booking_status_counts"`
	TotalRooms            int              `json:"total_rooms"`
	AvailableRooms        int              `json:"available_rooms"`
	TodayApprovedBookings []bookingViewDTO `json:"today_approved_bookings"`
}
