package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/capstonehub/projectchat/internal/hub"
	"github.com/capstonehub/projectchat/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	messages store.MessageStore
	redis    *store.RedisStore
	hub      *hub.Hub
}

// NewHandler creates a new Handler with the given stores and hub.
func NewHandler(messages store.MessageStore, redis *store.RedisStore, h *hub.Hub) *Handler {
	return &Handler{messages: messages, redis: redis, hub: h}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
