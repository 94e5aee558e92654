package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/capstonehub/projectchat/internal/api/middleware"
	"github.com/capstonehub/projectchat/internal/models"
)

// History handles GET /api/chats/{projectID}/messages.
// Returns every message of the project channel in ascending order; the
// client calls this once at channel open before trusting live frames.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	if _, err := uuid.Parse(projectID); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid project id")
		return
	}

	messages, err := h.messages.ListMessages(r.Context(), projectID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}
	if messages == nil {
		messages = []models.ChatMessage{}
	}
	h.JSON(w, http.StatusOK, messages)
}

// MarkRead handles PATCH /api/chats/{projectID}/read.
// Marks every message of the channel not authored by the caller as read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.Error(w, http.StatusUnauthorized, "missing identity")
		return
	}

	count, err := h.messages.MarkRead(r.Context(), projectID, user.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to mark messages as read")
		return
	}

	h.JSON(w, http.StatusOK, map[string]interface{}{
		"message": "messages marked as read",
		"count":   count,
	})
}

// UnreadCount handles GET /api/chats/unread?projects=id1,id2.
// The project list comes from the caller because project membership lives
// in the main application, not in this service.
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.Error(w, http.StatusUnauthorized, "missing identity")
		return
	}

	var projectIDs []string
	for _, id := range strings.Split(r.URL.Query().Get("projects"), ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, err := uuid.Parse(id); err != nil {
			h.Error(w, http.StatusBadRequest, "invalid project id "+id)
			return
		}
		projectIDs = append(projectIDs, id)
	}

	count, err := h.messages.UnreadCount(r.Context(), projectIDs, user.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count unread messages")
		return
	}

	h.JSON(w, http.StatusOK, map[string]int64{"count": count})
}

// Presence handles GET /api/chats/{projectID}/presence.
func (h *Handler) Presence(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	users, err := h.hub.OnlineUsers(r.Context(), projectID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to read presence")
		return
	}
	if users == nil {
		users = []string{}
	}
	h.JSON(w, http.StatusOK, map[string][]string{"online": users})
}
