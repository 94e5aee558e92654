package chatclient

import (
	"testing"
	"time"
)

func TestTypingDebounceOnePerWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sig := newTypingSignaler("u1")
	sig.now = func() time.Time { return now }

	if !sig.ShouldSend() {
		t.Fatal("first signal should send")
	}
	now = now.Add(100 * time.Millisecond)
	if sig.ShouldSend() {
		t.Error("signal inside debounce window should be suppressed")
	}
	now = now.Add(TypingDebounce)
	if !sig.ShouldSend() {
		t.Error("signal after debounce window should send")
	}
}

func TestTypingIgnoresSelfEcho(t *testing.T) {
	sig := newTypingSignaler("u1")
	if sig.HandleTyping("u1", "Me") {
		t.Error("own typing echo should be ignored")
	}
	if typing, _ := sig.PeerTyping(); typing {
		t.Error("self echo must not set the peer flag")
	}
}

func TestTypingPeerFlagExpires(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sig := newTypingSignaler("u1")
	sig.now = func() time.Time { return now }

	if !sig.HandleTyping("u2", "Dr. Lee") {
		t.Fatal("peer typing should set the flag")
	}
	typing, name := sig.PeerTyping()
	if !typing || name != "Dr. Lee" {
		t.Fatalf("PeerTyping() = %v, %q", typing, name)
	}

	now = now.Add(TypingExpiry - time.Millisecond)
	if sig.Expire() {
		t.Error("flag expired before the window elapsed")
	}

	now = now.Add(2 * time.Millisecond)
	if !sig.Expire() {
		t.Error("flag should expire after the window")
	}
	if typing, _ := sig.PeerTyping(); typing {
		t.Error("peer still typing after expiry")
	}
}

func TestTypingRefreshExtendsWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sig := newTypingSignaler("u1")
	sig.now = func() time.Time { return now }

	sig.HandleTyping("u2", "Dr. Lee")
	now = now.Add(TypingExpiry - 100*time.Millisecond)
	sig.HandleTyping("u2", "Dr. Lee")

	now = now.Add(TypingExpiry - 100*time.Millisecond)
	if typing, _ := sig.PeerTyping(); !typing {
		t.Error("refreshed flag should still be live")
	}
	if sig.Expire() {
		t.Error("refreshed flag expired early")
	}
}

func TestTypingExpireIdempotent(t *testing.T) {
	sig := newTypingSignaler("u1")
	if sig.Expire() {
		t.Error("expiring an unset flag should report no change")
	}
}
