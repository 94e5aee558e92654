package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/capstonehub/projectchat/internal/api/middleware"
)

// Chat handles GET /ws/chat/{projectID}: upgrades to a WebSocket and hands
// the connection to the hub. Auth ran in middleware; the token arrives as a
// query parameter on the handshake.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	if _, err := uuid.Parse(projectID); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid project id")
		return
	}

	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.Error(w, http.StatusUnauthorized, "missing identity")
		return
	}

	h.hub.ServeWS(w, r, projectID, user)
}
