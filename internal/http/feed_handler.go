package http

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// FeedHub accepts websocket connections for the live booking feed.
type FeedHub interface {
	Serve(conn *websocket.Conn, userID string)
}

// FeedHandler upgrades administrator connections and hands them to the hub.
type FeedHandler struct {
	hub      FeedHub
	upgrader *websocket.Upgrader
	logger   *slog.Logger
}

func NewFeedHandler(hub FeedHub, upgrader *websocket.Upgrader, logger *slog.Logger) *FeedHandler {
	if upgrader == nil {
		upgrader = &websocket.Upgrader{}
	}
	return &FeedHandler{hub: hub, upgrader: upgrader, logger: defaultLogger(logger)}
}

func (h *FeedHandler) Serve(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.hub == nil {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		handlerLogger(r.Context(), h.logger, "FeedHandler", "Serve").WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	handlerLogger(r.Context(), h.logger, "FeedHandler", "Serve", "principal_id", principal.UserID).InfoContext(r.Context(), "feed client connected")
	h.hub.Serve(conn, principal.UserID)
}
