package chatclient

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/capstonehub/projectchat/internal/models"
	"github.com/capstonehub/projectchat/internal/protocol"
)

const eventBuffer = 256

// Channel is one open project chat: a connection, the send coordinator,
// the typing signaler and the conversation log, bound to a single event
// loop. All state mutations run on that loop, so no component needs a
// lock. A Channel belongs to exactly one view and is closed when the view
// goes away.
type Channel struct {
	projectID string
	logger    zerolog.Logger

	conn   *Conn
	conv   *Conversation
	coord  *sendCoordinator
	typing *typingSignaler

	loop      chan func()
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once

	sendTimer   *time.Timer
	typingTimer *time.Timer
}

func newChannel(projectID string, self models.User, history []models.ChatMessage, wsURL string, logger zerolog.Logger) *Channel {
	ch := &Channel{
		projectID: projectID,
		logger:    logger.With().Str("project_id", projectID).Logger(),
		conv:      NewConversation(),
		typing:    newTypingSignaler(self.ID),
		loop:      make(chan func(), 64),
		events:    make(chan Event, eventBuffer),
		done:      make(chan struct{}),
	}
	ch.conv.Load(history)

	ch.conn = NewConn(wsURL, logger, ConnHandlers{
		OnFrame: func(raw []byte) { ch.post(func() { ch.handleFrame(raw) }) },
		OnClose: func(code int, reason string) { ch.post(ch.handleDisconnect) },
		OnState: func(s ConnState) { ch.post(func() { ch.emit(StateEvent{State: s}) }) },
		OnError: func(err error) {
			if errors.Is(err, ErrReconnectExhausted) {
				ch.post(ch.handleDisconnect)
			}
		},
	})
	ch.coord = newSendCoordinator(self, projectID, ch.conv, ch.conn.Send)
	return ch
}

// open starts the event loop and the connection.
func (ch *Channel) open(ctx context.Context) {
	go ch.run()
	ch.conn.Open(ctx)
}

func (ch *Channel) run() {
	// Closing events here, not in Close, guarantees no emit can race the
	// close: every emit runs on this goroutine.
	defer close(ch.events)
	for {
		select {
		case fn := <-ch.loop:
			fn()
		case <-ch.done:
			return
		}
	}
}

// post schedules fn on the event loop. After Close it is a no-op, which is
// what guards late timer callbacks against mutating a torn-down channel.
func (ch *Channel) post(fn func()) {
	select {
	case ch.loop <- fn:
	case <-ch.done:
	}
}

// call runs fn on the event loop and waits for it.
func (ch *Channel) call(fn func()) {
	doneFn := make(chan struct{})
	ch.post(func() {
		fn()
		close(doneFn)
	})
	select {
	case <-doneFn:
	case <-ch.done:
	}
}

func (ch *Channel) emit(ev Event) {
	select {
	case ch.events <- ev:
	default:
		// Consumer is not draining; drop rather than stall the loop. The
		// conversation snapshot still has everything.
		ch.logger.Warn().Msg("event buffer full, dropping event")
	}
}

// Events delivers conversation, typing and connection-state events. The
// channel is closed by Close.
func (ch *Channel) Events() <-chan Event { return ch.events }

// State returns the connection state.
func (ch *Channel) State() ConnState { return ch.conn.State() }

// Entries returns a snapshot of the conversation in render order.
func (ch *Channel) Entries() []Entry {
	var out []Entry
	ch.call(func() { out = ch.conv.Entries() })
	return out
}

// Submit sends the text as one message. It returns ErrEmptyMessage,
// ErrSendInFlight or ErrNotConnected immediately; otherwise the outcome
// arrives later as a SendResultEvent (confirmed, or timed out with the
// text carried back).
func (ch *Channel) Submit(text string) error {
	var err error
	ch.call(func() {
		var ref string
		ref, err = ch.coord.Submit(text)
		if err != nil {
			return
		}
		if e := ch.entryByRef(ref); e != nil {
			ch.emit(MessageEvent{Message: e.ChatMessage})
		}
		ch.sendTimer = time.AfterFunc(SendTimeout, func() {
			ch.post(func() { ch.resolveTimeout(ref) })
		})
	})
	return err
}

// NotifyTyping signals the peer that the user is typing. Debounced; safe
// to call on every keystroke.
func (ch *Channel) NotifyTyping() {
	ch.post(func() {
		if !ch.typing.ShouldSend() {
			return
		}
		frame, err := protocol.Encode(&protocol.Envelope{
			Type:     protocol.KindTyping,
			UserID:   ch.coord.self.ID,
			UserName: ch.coord.self.FullName,
		})
		if err != nil {
			return
		}
		// Best-effort: a typing signal that misses the wire is simply gone.
		if err := ch.conn.Send(frame); err != nil {
			ch.logger.Debug().Err(err).Msg("typing signal dropped")
		}
	})
}

// MarkRead tells the server the user has seen the channel.
func (ch *Channel) MarkRead() {
	ch.post(func() {
		frame, err := protocol.Encode(&protocol.Envelope{
			Type:      protocol.KindRead,
			ProjectID: ch.projectID,
			UserID:    ch.coord.self.ID,
		})
		if err != nil {
			return
		}
		if err := ch.conn.Send(frame); err != nil {
			ch.logger.Debug().Err(err).Msg("read signal dropped")
		}
	})
}

// Close tears the channel down: cancels the send-timeout and typing
// timers, closes the transport with a normal-closure code so no reconnect
// fires, and closes the event stream. Idempotent.
func (ch *Channel) Close() {
	ch.call(func() {
		if ch.sendTimer != nil {
			ch.sendTimer.Stop()
			ch.sendTimer = nil
		}
		if ch.typingTimer != nil {
			ch.typingTimer.Stop()
			ch.typingTimer = nil
		}
	})

	ch.conn.Close("channel closed")

	ch.closeOnce.Do(func() { close(ch.done) })
}

// handleFrame decodes one inbound frame and dispatches it. A frame that
// fails to decode is dropped and logged; the channel stays up.
func (ch *Channel) handleFrame(raw []byte) {
	env, err := protocol.Decode(raw)
	if err != nil {
		ch.logger.Warn().Err(err).Msg("dropping malformed frame")
		return
	}

	switch env.Type {
	case protocol.KindConnected:
		ch.logger.Debug().Msg("session acknowledged")

	case protocol.KindMessage:
		if env.Message == nil {
			return
		}
		before := ch.conv.Len()
		result := ch.coord.HandleInbound(*env.Message)
		if result != nil {
			if ch.sendTimer != nil {
				ch.sendTimer.Stop()
				ch.sendTimer = nil
			}
			ch.emit(SendResultEvent{Result: *result})
			ch.emit(MessageEvent{Message: *env.Message})
			return
		}
		// Emit only when the merge actually added something new.
		if ch.conv.Len() != before {
			ch.emit(MessageEvent{Message: *env.Message})
		}

	case protocol.KindTyping:
		if ch.typing.HandleTyping(env.UserID, env.UserName) {
			ch.emit(TypingEvent{Typing: true, UserName: env.UserName})
			if ch.typingTimer != nil {
				ch.typingTimer.Stop()
			}
			ch.typingTimer = time.AfterFunc(TypingExpiry, func() {
				ch.post(ch.expireTyping)
			})
		}

	case protocol.KindRead:
		if env.UserID != ch.coord.self.ID {
			ch.conv.MarkReadBy(env.UserID)
			ch.emit(ReadEvent{UserID: env.UserID})
		}

	case protocol.KindPong:
		// Keepalive answer; nothing to do.

	default:
		ch.logger.Debug().Str("type", env.Type).Msg("ignoring envelope")
	}
}

func (ch *Channel) resolveTimeout(ref string) {
	ch.sendTimer = nil
	if result := ch.coord.HandleTimeout(ref); result != nil {
		ch.emit(SendResultEvent{Result: *result})
	}
}

func (ch *Channel) handleDisconnect() {
	if result := ch.coord.HandleDisconnect(); result != nil {
		if ch.sendTimer != nil {
			ch.sendTimer.Stop()
			ch.sendTimer = nil
		}
		ch.emit(SendResultEvent{Result: *result})
	}
}

func (ch *Channel) expireTyping() {
	ch.typingTimer = nil
	if ch.typing.Expire() {
		ch.emit(TypingEvent{Typing: false})
	}
}

func (ch *Channel) entryByRef(ref string) *Entry {
	entries := ch.conv.Entries()
	for i := range entries {
		if entries[i].ClientRef == ref {
			return &entries[i]
		}
	}
	return nil
}
