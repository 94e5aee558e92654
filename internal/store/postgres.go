package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/capstonehub/projectchat/internal/metrics"
	"github.com/capstonehub/projectchat/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// ensureSchema creates the chat_messages table if it does not exist.
func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS chat_messages (
			id UUID PRIMARY KEY,
			project_id UUID NOT NULL,
			sender_id UUID NOT NULL,
			sender_name TEXT NOT NULL DEFAULT '',
			sender_role VARCHAR(20) NOT NULL CHECK (sender_role IN ('student', 'advisor')),
			message TEXT NOT NULL,
			client_ref TEXT NOT NULL DEFAULT '',
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_chat_messages_project_created
			ON chat_messages (project_id, created_at);
	`)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// AppendMessage persists a confirmed chat message.
func (s *PostgresStore) AppendMessage(ctx context.Context, msg *models.ChatMessage) error {
	start := time.Now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO chat_messages (id, project_id, sender_id, sender_name, sender_role, message, client_ref, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, msg.ID, msg.ProjectID, msg.SenderID, msg.SenderName, msg.SenderRole, msg.Body, msg.ClientRef, msg.IsRead, msg.CreatedAt)
	metrics.StoreLatency.WithLabelValues("append").Observe(time.Since(start).Seconds())
	return err
}

// ListMessages returns all messages of a project channel in ascending
// (created_at, id) order.
func (s *PostgresStore) ListMessages(ctx context.Context, projectID string) ([]models.ChatMessage, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, `
		SELECT id, project_id, sender_id, sender_name, sender_role, message, client_ref, is_read, created_at
		FROM chat_messages
		WHERE project_id = $1
		ORDER BY created_at ASC, id ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.SenderID, &m.SenderName, &m.SenderRole,
			&m.Body, &m.ClientRef, &m.IsRead, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	metrics.StoreLatency.WithLabelValues("list").Observe(time.Since(start).Seconds())
	return messages, rows.Err()
}

// MarkRead marks every message in the project not authored by the reader as
// read and returns the number of rows updated.
func (s *PostgresStore) MarkRead(ctx context.Context, projectID, readerID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE chat_messages SET is_read = TRUE
		WHERE project_id = $1 AND sender_id != $2 AND is_read = FALSE
	`, projectID, readerID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// UnreadCount counts unread messages addressed to the user across projects.
func (s *PostgresStore) UnreadCount(ctx context.Context, projectIDs []string, userID string) (int64, error) {
	if len(projectIDs) == 0 {
		return 0, nil
	}
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM chat_messages
		WHERE project_id = ANY($1) AND sender_id != $2 AND is_read = FALSE
	`, projectIDs, userID).Scan(&count)
	return count, err
}

// Stats aggregates message activity across all channels.
func (s *PostgresStore) Stats(ctx context.Context, topN int) (*ServiceStats, error) {
	var stats ServiceStats
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT project_id), MAX(created_at)
		FROM chat_messages
	`).Scan(&stats.TotalMessages, &stats.ActiveChannels, &stats.LastActivity)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT project_id, COUNT(*), MAX(created_at)
		FROM chat_messages
		GROUP BY project_id
		ORDER BY COUNT(*) DESC
		LIMIT $1
	`, topN)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats.TopChannels = make([]ChannelActivity, 0, topN)
	for rows.Next() {
		var ch ChannelActivity
		if err := rows.Scan(&ch.ProjectID, &ch.MessageCount, &ch.LastMessageAt); err != nil {
			return nil, err
		}
		stats.TopChannels = append(stats.TopChannels, ch)
	}
	return &stats, rows.Err()
}
