// Package protocol defines the wire envelope exchanged over a project chat
// connection and the codec shared by the server and the Go client.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/capstonehub/projectchat/internal/models"
)

// Envelope kinds. One JSON object per frame, tagged by "type".
const (
	KindConnected = "connected"
	KindMessage   = "message"
	KindTyping    = "typing"
	KindPing      = "ping"
	KindPong      = "pong"
	KindRead      = "read"
)

// Envelope is one discrete unit of wire protocol data.
type Envelope struct {
	Type      string              `json:"type"`
	ProjectID string              `json:"project_id,omitempty"`
	Message   *models.ChatMessage `json:"message,omitempty"`
	UserID    string              `json:"user_id,omitempty"`
	UserName  string              `json:"user_name,omitempty"`
	Timestamp time.Time           `json:"timestamp,omitempty"`
}

// DecodeError reports a frame that could not be decoded or failed shape
// validation. Callers drop the frame and keep the channel open.
type DecodeError struct {
	Reason string
	Cause  error
}

func (e *DecodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("decode frame: %s: %v", e.Reason, e.Cause)
	}
	return "decode frame: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// Decode parses a raw frame into a validated Envelope. A malformed or
// unknown frame yields a *DecodeError; it never panics.
func Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &DecodeError{Reason: "invalid JSON", Cause: err}
	}
	if err := env.validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

// Encode serializes an envelope for transmission. It validates first so the
// round trip Decode(Encode(e)) holds for every envelope it accepts.
func Encode(env *Envelope) ([]byte, error) {
	if err := env.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

func (env *Envelope) validate() error {
	switch env.Type {
	case KindConnected, KindPing, KindPong:
		return nil
	case KindMessage:
		if env.Message == nil {
			return &DecodeError{Reason: "message envelope without message payload"}
		}
		return nil
	case KindTyping:
		if env.UserID == "" {
			return &DecodeError{Reason: "typing envelope without user_id"}
		}
		return nil
	case KindRead:
		if env.UserID == "" {
			return &DecodeError{Reason: "read envelope without user_id"}
		}
		return nil
	case "":
		return &DecodeError{Reason: "envelope without type"}
	default:
		return &DecodeError{Reason: "unknown envelope type " + env.Type}
	}
}

// Ping returns a keepalive envelope.
func Ping() *Envelope { return &Envelope{Type: KindPing} }

// Pong returns the keepalive reply envelope.
func Pong() *Envelope { return &Envelope{Type: KindPong} }
