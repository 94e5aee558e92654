package chatclient

import (
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/capstonehub/projectchat/internal/models"
	"github.com/capstonehub/projectchat/internal/protocol"
)

// SendTimeout bounds how long a submitted message may wait for its
// confirming envelope.
const SendTimeout = 5 * time.Second

var (
	// ErrEmptyMessage is returned by Submit for whitespace-only text.
	ErrEmptyMessage = errors.New("chatclient: empty message")
	// ErrSendInFlight is returned by Submit while a previous send awaits
	// confirmation. Concurrent submits are rejected, not queued; callers
	// disable input while a send is in flight.
	ErrSendInFlight = errors.New("chatclient: send already in flight")
	// ErrSendTimeout reports a send whose confirmation did not arrive in
	// time. The text travels back in the SendResult so it is never lost.
	ErrSendTimeout = errors.New("chatclient: send not confirmed in time")
)

// SendResult reports the outcome of a submit to the UI layer. Text carries
// the original input back on failure so it can be restored.
type SendResult struct {
	Ref       string
	Confirmed *models.ChatMessage
	Text      string
	Err       error
}

type pendingSend struct {
	ref         string
	text        string
	submittedAt time.Time
}

// sendCoordinator turns a submit into exactly one delivered message: one
// optimistic echo, one transmission, and recovery on timeout or transport
// failure without losing or duplicating the user's text.
type sendCoordinator struct {
	self      models.User
	projectID string
	conv      *Conversation
	send      func(frame []byte) error
	now       func() time.Time

	pending *pendingSend
}

func newSendCoordinator(self models.User, projectID string, conv *Conversation, send func([]byte) error) *sendCoordinator {
	return &sendCoordinator{
		self:      self,
		projectID: projectID,
		conv:      conv,
		send:      send,
		now:       time.Now,
	}
}

// InFlight reports whether a send awaits confirmation.
func (sc *sendCoordinator) InFlight() bool { return sc.pending != nil }

// Submit validates the text, appends the optimistic echo and transmits the
// message envelope. The returned ref identifies the send for HandleTimeout.
// A transport failure is detected before the optimistic append, so a failed
// fast send leaves no trace in the log.
func (sc *sendCoordinator) Submit(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}
	if sc.pending != nil {
		return "", ErrSendInFlight
	}

	msg := models.ChatMessage{
		ProjectID:  sc.projectID,
		SenderID:   sc.self.ID,
		SenderName: sc.self.FullName,
		SenderRole: sc.self.Role,
		Body:       text,
		ClientRef:  ulid.Make().String(),
		CreatedAt:  sc.now().UTC(),
	}

	frame, err := protocol.Encode(&protocol.Envelope{
		Type:      protocol.KindMessage,
		ProjectID: sc.projectID,
		Message:   &msg,
	})
	if err != nil {
		return "", err
	}
	if err := sc.send(frame); err != nil {
		return "", err
	}

	sc.conv.AppendOptimistic(msg)
	sc.pending = &pendingSend{ref: msg.ClientRef, text: text, submittedAt: msg.CreatedAt}
	return msg.ClientRef, nil
}

// HandleInbound merges an inbound message into the conversation. When it
// confirms the outstanding send, the optimistic entry is replaced in place
// and a confirmed SendResult is returned; otherwise the result is nil.
func (sc *sendCoordinator) HandleInbound(msg models.ChatMessage) *SendResult {
	if sc.pending != nil && sc.matches(msg) {
		ref := sc.pending.ref
		sc.pending = nil
		sc.conv.Confirm(ref, msg)
		return &SendResult{Ref: ref, Confirmed: &msg}
	}

	sc.conv.AppendInbound(msg)
	return nil
}

// matches correlates an inbound message with the outstanding send: by the
// echoed client_ref when the server preserves it, else by sender and body.
// The server may not preserve send order under concurrent senders, so
// content matching is the documented fallback, not timing.
func (sc *sendCoordinator) matches(msg models.ChatMessage) bool {
	if msg.ClientRef != "" {
		return msg.ClientRef == sc.pending.ref
	}
	return msg.SenderID == sc.self.ID && msg.Body == sc.pending.text
}

// HandleTimeout resolves the send identified by ref as timed out: the
// optimistic entry stays visible but flagged failed, and the user's text is
// returned for restore. Stale refs (already confirmed) are ignored.
func (sc *sendCoordinator) HandleTimeout(ref string) *SendResult {
	if sc.pending == nil || sc.pending.ref != ref {
		return nil
	}
	text := sc.pending.text
	sc.pending = nil
	sc.conv.SetFailed(ref)
	return &SendResult{Ref: ref, Text: text, Err: ErrSendTimeout}
}

// HandleDisconnect fails the outstanding send, if any, when the transport
// drops before confirmation arrives.
func (sc *sendCoordinator) HandleDisconnect() *SendResult {
	if sc.pending == nil {
		return nil
	}
	ref := sc.pending.ref
	text := sc.pending.text
	sc.pending = nil
	sc.conv.SetFailed(ref)
	return &SendResult{Ref: ref, Text: text, Err: ErrNotConnected}
}
