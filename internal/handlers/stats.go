package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/capstonehub/projectchat/internal/store"
)

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	TotalMessages  int64                   `json:"total_messages"`
	ActiveChannels int64                   `json:"active_channels"`
	LastActivity   string                  `json:"last_activity"`
	TopChannels    []store.ChannelActivity `json:"top_channels"`
}

// Stats handles GET /api/chats/stats. Aggregate message activity across
// all project channels, for the admin dashboard.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.messages.Stats(r.Context(), 5)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to aggregate stats")
		return
	}

	lastActivity := "no activity yet"
	if stats.LastActivity != nil {
		lastActivity = formatTimeAgo(*stats.LastActivity)
	}
	if stats.TopChannels == nil {
		stats.TopChannels = []store.ChannelActivity{}
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		TotalMessages:  stats.TotalMessages,
		ActiveChannels: stats.ActiveChannels,
		LastActivity:   lastActivity,
		TopChannels:    stats.TopChannels,
	})
}

// formatTimeAgo formats a time as a human-readable "X ago" string.
func formatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return strconv.Itoa(mins) + " minutes ago"
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return strconv.Itoa(hours) + " hours ago"
	default:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return strconv.Itoa(days) + " days ago"
	}
}
