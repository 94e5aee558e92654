package chatclient

import "github.com/capstonehub/projectchat/internal/models"

// Event is delivered on Channel.Events(). Consumers switch on the concrete
// type.
type Event interface{ isEvent() }

// MessageEvent reports a message merged into the conversation: a peer
// message, a history replay, or the confirmation of an own send.
type MessageEvent struct {
	Message models.ChatMessage
}

// TypingEvent reports a change of the peer-is-typing flag.
type TypingEvent struct {
	Typing   bool
	UserName string
}

// StateEvent reports a connection state transition.
type StateEvent struct {
	State ConnState
}

// SendResultEvent reports the outcome of a previously accepted Submit.
type SendResultEvent struct {
	Result SendResult
}

// ReadEvent reports that the peer marked the channel read.
type ReadEvent struct {
	UserID string
}

func (MessageEvent) isEvent()    {}
func (TypingEvent) isEvent()     {}
func (StateEvent) isEvent()      {}
func (SendResultEvent) isEvent() {}
func (ReadEvent) isEvent()       {}
