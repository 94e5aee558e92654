package chatclient

import "time"

const (
	// TypingDebounce caps outbound typing signals to one per window,
	// however fast the user types.
	TypingDebounce = 300 * time.Millisecond
	// TypingExpiry clears the peer-is-typing flag when no fresh signal
	// arrives.
	TypingExpiry = 2 * time.Second
)

// typingSignaler tracks best-effort typing state in both directions. Loss
// or duplication of a typing signal has no correctness impact, unlike
// message delivery; nothing here retries or confirms.
// Not safe for concurrent use; the owning Channel serializes access.
type typingSignaler struct {
	selfID string
	now    func() time.Time

	lastSent  time.Time
	peerName  string
	peerUntil time.Time
}

func newTypingSignaler(selfID string) *typingSignaler {
	return &typingSignaler{selfID: selfID, now: time.Now}
}

// ShouldSend reports whether an outbound typing envelope is due, and if so
// starts a new debounce window.
func (t *typingSignaler) ShouldSend() bool {
	now := t.now()
	if now.Sub(t.lastSent) < TypingDebounce {
		return false
	}
	t.lastSent = now
	return true
}

// HandleTyping processes an inbound typing envelope. Signals echoed back
// for the user's own typing are ignored. Returns true when the peer flag
// turned on or was refreshed.
func (t *typingSignaler) HandleTyping(userID, userName string) bool {
	if userID == t.selfID {
		return false
	}
	t.peerName = userName
	t.peerUntil = t.now().Add(TypingExpiry)
	return true
}

// Expire clears a stale peer-typing flag. Returns true when the flag
// actually turned off.
func (t *typingSignaler) Expire() bool {
	if t.peerUntil.IsZero() || t.now().Before(t.peerUntil) {
		return false
	}
	t.peerUntil = time.Time{}
	t.peerName = ""
	return true
}

// PeerTyping reports whether the peer is currently typing, and their name.
func (t *typingSignaler) PeerTyping() (bool, string) {
	if !t.peerUntil.IsZero() && t.now().Before(t.peerUntil) {
		return true, t.peerName
	}
	return false, ""
}
