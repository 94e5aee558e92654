package chatclient

import (
	"sort"

	"github.com/capstonehub/projectchat/internal/models"
)

// Entry is one rendered line of the conversation: a chat message plus its
// local delivery status.
type Entry struct {
	models.ChatMessage

	// Pending marks an optimistic message awaiting server confirmation.
	Pending bool
	// Failed marks an optimistic message whose confirmation timed out. The
	// entry stays visible so the user sees what did not go through; a late
	// confirmation upgrades it in place.
	Failed bool
}

// Conversation is the ordered, de-duplicated message log of one channel.
// It is not safe for concurrent use; the owning Channel serializes access.
type Conversation struct {
	entries []Entry
}

// NewConversation returns an empty conversation log.
func NewConversation() *Conversation {
	return &Conversation{}
}

// Load seeds the log from the history store, replacing any prior content.
// Called once per channel open, before live events are trusted.
func (c *Conversation) Load(history []models.ChatMessage) {
	c.entries = c.entries[:0]
	for _, msg := range history {
		c.AppendInbound(msg)
	}
}

// AppendOptimistic appends a locally-echoed message that has no server ID
// yet.
func (c *Conversation) AppendOptimistic(msg models.ChatMessage) {
	c.insert(Entry{ChatMessage: msg, Pending: true})
}

// Confirm replaces the optimistic entry identified by ref with the
// server-confirmed copy. A server that does not echo client_ref strips the
// ref from the confirmed copy, so it is restored here; without it the merge
// below cannot find the optimistic entry (the canonical created_at differs
// from the provisional one) and would append a duplicate. If the optimistic
// entry is gone (e.g. history reload), the confirmed message is appended
// instead; either way exactly one entry remains.
func (c *Conversation) Confirm(ref string, confirmed models.ChatMessage) {
	if confirmed.ClientRef == "" {
		confirmed.ClientRef = ref
	}
	c.AppendInbound(confirmed)
}

// AppendInbound merges a server-originated message into the log. A message
// whose identity already exists is merged in place, never duplicated:
// matched by client_ref first (confirmation of an optimistic entry), then
// by id, then by the (sender, created_at, body) tuple.
func (c *Conversation) AppendInbound(msg models.ChatMessage) {
	if msg.ClientRef != "" {
		for i := range c.entries {
			if c.entries[i].ClientRef == msg.ClientRef {
				c.entries[i] = Entry{ChatMessage: msg}
				c.sort()
				return
			}
		}
	}
	key := msg.Key()
	for i := range c.entries {
		if c.entries[i].Key() == key {
			// Already present; adopt read state, keep everything else.
			c.entries[i].IsRead = c.entries[i].IsRead || msg.IsRead
			return
		}
	}
	c.insert(Entry{ChatMessage: msg})
}

// SetFailed marks the optimistic entry identified by ref as failed.
func (c *Conversation) SetFailed(ref string) {
	for i := range c.entries {
		if c.entries[i].ClientRef == ref && c.entries[i].Pending {
			c.entries[i].Pending = false
			c.entries[i].Failed = true
			return
		}
	}
}

// MarkReadBy records that the given reader has seen the channel: every
// message authored by someone else becomes read.
func (c *Conversation) MarkReadBy(readerID string) {
	for i := range c.entries {
		if c.entries[i].SenderID != readerID {
			c.entries[i].IsRead = true
		}
	}
}

// Entries returns a copy of the log in render order.
func (c *Conversation) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of entries.
func (c *Conversation) Len() int { return len(c.entries) }

func (c *Conversation) insert(e Entry) {
	c.entries = append(c.entries, e)
	c.sort()
}

// sort orders entries by (created_at, id) ascending. The sort is stable so
// a confirmation that moves one entry leaves the relative order of all
// others untouched.
func (c *Conversation) sort() {
	sort.SliceStable(c.entries, func(i, j int) bool {
		a, b := &c.entries[i], &c.entries[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
