package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/capstonehub/projectchat/internal/models"
)

// SQLiteStore handles SQLite database operations. It exists so the service
// runs locally without a PostgreSQL instance.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/projectchat.db".
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/projectchat.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS chat_messages (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		sender_name TEXT NOT NULL DEFAULT '',
		sender_role TEXT NOT NULL CHECK (sender_role IN ('student', 'advisor')),
		message TEXT NOT NULL,
		client_ref TEXT NOT NULL DEFAULT '',
		is_read INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_chat_messages_project_created
		ON chat_messages (project_id, created_at);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// AppendMessage persists a confirmed chat message.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *models.ChatMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_messages (id, project_id, sender_id, sender_name, sender_role, message, client_ref, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.ProjectID, msg.SenderID, msg.SenderName, msg.SenderRole, msg.Body, msg.ClientRef, msg.IsRead, msg.CreatedAt)
	return err
}

// ListMessages returns all messages of a project channel in ascending
// (created_at, id) order.
func (s *SQLiteStore) ListMessages(ctx context.Context, projectID string) ([]models.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, sender_id, sender_name, sender_role, message, client_ref, is_read, created_at
		FROM chat_messages
		WHERE project_id = ?
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
	return messages, rows.Err()
}

// MarkRead marks every message in the project not authored by the reader as
// read and returns the number of rows updated.
func (s *SQLiteStore) MarkRead(ctx context.Context, projectID, readerID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE chat_messages SET is_read = 1
		WHERE project_id = ? AND sender_id != ? AND is_read = 0
	`, projectID, readerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UnreadCount counts unread messages addressed to the user across projects.
func (s *SQLiteStore) UnreadCount(ctx context.Context, projectIDs []string, userID string) (int64, error) {
	if len(projectIDs) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimRight(strings.Repeat("?,", len(projectIDs)), ",")
	args := make([]interface{}, 0, len(projectIDs)+1)
	for _, id := range projectIDs {
		args = append(args, id)
	}
	args = append(args, userID)

	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM chat_messages
		WHERE project_id IN (`+placeholders+`) AND sender_id != ? AND is_read = 0
	`, args...).Scan(&count)
	return count, err
}

// Stats aggregates message activity across all channels.
func (s *SQLiteStore) Stats(ctx context.Context, topN int) (*ServiceStats, error) {
	// MAX() over a DATETIME column comes back as text, not time.Time, so
	// the timestamps are parsed by hand.
	var stats ServiceStats
	var last sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT project_id), MAX(created_at)
		FROM chat_messages
	`).Scan(&stats.TotalMessages, &stats.ActiveChannels, &last)
	if err != nil {
		return nil, err
	}
	if last.Valid {
		if t, err := parseSQLiteTime(last.String); err == nil {
			stats.LastActivity = &t
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT project_id, COUNT(*), MAX(created_at)
		FROM chat_messages
		GROUP BY project_id
		ORDER BY COUNT(*) DESC
		LIMIT ?
	`, topN)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats.TopChannels = make([]ChannelActivity, 0, topN)
	for rows.Next() {
		var ch ChannelActivity
		var lastMsg sql.NullString
		if err := rows.Scan(&ch.ProjectID, &ch.MessageCount, &lastMsg); err != nil {
			return nil, err
		}
		if lastMsg.Valid {
			if t, err := parseSQLiteTime(lastMsg.String); err == nil {
				ch.LastMessageAt = t
			}
		}
		stats.TopChannels = append(stats.TopChannels, ch)
	}
	return &stats, rows.Err()
}

var sqliteTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
}

func parseSQLiteTime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range sqliteTimeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
