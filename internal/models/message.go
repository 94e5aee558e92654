package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Sender roles within a project channel.
const (
	RoleStudent = "student"
	RoleAdvisor = "advisor"
)

// ChatMessage is one message in a project chat channel.
// An optimistic (not yet server-confirmed) message has an empty ID; once the
// server assigns an ID the message is immutable for the session.
type ChatMessage struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	SenderRole string    `json:"sender_role"` // "student" or "advisor"
	Body       string    `json:"message"`
	ClientRef  string    `json:"client_ref,omitempty"` // ULID set by the sender, echoed back on confirm
	CreatedAt  time.Time `json:"created_at"`
	IsRead     bool      `json:"is_read"`
}

// chatMessageWire mirrors ChatMessage on the wire plus the legacy nested
// sender object older clients still send.
type chatMessageWire struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	SenderRole string    `json:"sender_role"`
	Body       string    `json:"message"`
	ClientRef  string    `json:"client_ref,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	IsRead     bool      `json:"is_read"`

	Sender *struct {
		ID       string `json:"id"`
		FullName string `json:"full_name"`
	} `json:"sender,omitempty"`
}

// UnmarshalJSON normalizes the legacy sender.full_name shape into the
// canonical flat fields so downstream code never sees both variants.
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	var w chatMessageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = ChatMessage{
		ID:         w.ID,
		ProjectID:  w.ProjectID,
		SenderID:   w.SenderID,
		SenderName: w.SenderName,
		SenderRole: w.SenderRole,
		Body:       w.Body,
		ClientRef:  w.ClientRef,
		CreatedAt:  w.CreatedAt,
		IsRead:     w.IsRead,
	}
	if w.Sender != nil {
		if m.SenderName == "" {
			m.SenderName = w.Sender.FullName
		}
		if m.SenderID == "" {
			m.SenderID = w.Sender.ID
		}
	}
	return nil
}

// Validate reports whether the message is acceptable for persistence.
func (m *ChatMessage) Validate() bool {
	return m.ProjectID != "" &&
		m.SenderID != "" &&
		strings.TrimSpace(m.Body) != "" &&
		(m.SenderRole == RoleStudent || m.SenderRole == RoleAdvisor)
}

// Key identifies a message for de-duplication: the server ID when assigned,
// otherwise the (sender, timestamp, body) tuple of the optimistic copy.
func (m *ChatMessage) Key() string {
	if m.ID != "" {
		return m.ID
	}
	return m.SenderID + "|" + m.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + m.Body
}
