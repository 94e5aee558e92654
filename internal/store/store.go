package store

import (
	"context"
	"time"

	"github.com/capstonehub/projectchat/internal/models"
)

// ChannelActivity summarizes one project channel for the stats endpoint.
type ChannelActivity struct {
	ProjectID     string    `json:"project_id"`
	MessageCount  int64     `json:"message_count"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// ServiceStats aggregates message activity across all channels.
type ServiceStats struct {
	TotalMessages  int64             `json:"total_messages"`
	ActiveChannels int64             `json:"active_channels"`
	LastActivity   *time.Time        `json:"last_activity,omitempty"`
	TopChannels    []ChannelActivity `json:"top_channels"`
}

// MessageStore defines the interface for persistent chat message storage.
// Both PostgresStore and SQLiteStore implement this interface.
type MessageStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Message operations
	AppendMessage(ctx context.Context, msg *models.ChatMessage) error
	ListMessages(ctx context.Context, projectID string) ([]models.ChatMessage, error)
	MarkRead(ctx context.Context, projectID, readerID string) (int64, error)
	UnreadCount(ctx context.Context, projectIDs []string, userID string) (int64, error)
	Stats(ctx context.Context, topN int) (*ServiceStats, error)
}
