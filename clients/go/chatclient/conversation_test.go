package chatclient

import (
	"testing"
	"time"

	"github.com/capstonehub/projectchat/internal/models"
)

func msgAt(id, sender, body string, at time.Time) models.ChatMessage {
	return models.ChatMessage{
		ID:         id,
		ProjectID:  "proj-1",
		SenderID:   sender,
		SenderName: "Sender " + sender,
		SenderRole: models.RoleStudent,
		Body:       body,
		CreatedAt:  at,
	}
}

func TestConversationOrdersByTimestamp(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	conv := NewConversation()
	conv.AppendInbound(msgAt("m2", "u1", "second", base.Add(2*time.Second)))
	conv.AppendInbound(msgAt("m1", "u2", "first", base.Add(time.Second)))
	conv.AppendInbound(msgAt("m3", "u1", "third", base.Add(3*time.Second)))

	entries := conv.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, want := range []string{"m1", "m2", "m3"} {
		if entries[i].ID != want {
			t.Errorf("entry %d: got %s, want %s", i, entries[i].ID, want)
		}
	}
}

func TestConversationTiesBreakOnID(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	conv := NewConversation()
	conv.AppendInbound(msgAt("mb", "u1", "b", at))
	conv.AppendInbound(msgAt("ma", "u2", "a", at))

	entries := conv.Entries()
	if entries[0].ID != "ma" || entries[1].ID != "mb" {
		t.Errorf("tie not broken on id: got %s, %s", entries[0].ID, entries[1].ID)
	}
}

func TestConversationReplayDoesNotDuplicate(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	conv := NewConversation()
	msg := msgAt("m1", "u1", "hello", at)

	conv.AppendInbound(msg)
	conv.AppendInbound(msg)
	conv.AppendInbound(msg)

	if conv.Len() != 1 {
		t.Fatalf("expected 1 entry after replay, got %d", conv.Len())
	}
}

func TestConversationReplayMergesReadState(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	conv := NewConversation()
	conv.AppendInbound(msgAt("m1", "u1", "hello", at))

	read := msgAt("m1", "u1", "hello", at)
	read.IsRead = true
	conv.AppendInbound(read)

	entries := conv.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if !entries[0].IsRead {
		t.Error("read state not adopted on merge")
	}
}

func TestConversationLoadReplacesPriorContent(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	conv := NewConversation()
	conv.AppendInbound(msgAt("old", "u1", "stale", base))

	conv.Load([]models.ChatMessage{
		msgAt("m1", "u1", "one", base.Add(time.Second)),
		msgAt("m2", "u2", "two", base.Add(2*time.Second)),
	})

	entries := conv.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries after load, got %d", len(entries))
	}
	if entries[0].ID != "m1" || entries[1].ID != "m2" {
		t.Errorf("unexpected entries after load: %s, %s", entries[0].ID, entries[1].ID)
	}
}

func TestConversationConfirmReplacesOptimisticInPlace(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	conv := NewConversation()
	conv.AppendInbound(msgAt("m1", "u2", "earlier", base))

	optimistic := msgAt("", "u1", "sending now", base.Add(time.Second))
	optimistic.ClientRef = "ref-1"
	conv.AppendOptimistic(optimistic)

	if !conv.Entries()[1].Pending {
		t.Fatal("optimistic entry should be pending")
	}

	confirmed := msgAt("m2", "u1", "sending now", base.Add(time.Second))
	confirmed.ClientRef = "ref-1"
	conv.Confirm("ref-1", confirmed)

	entries := conv.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries after confirm, got %d", len(entries))
	}
	got := entries[1]
	if got.ID != "m2" {
		t.Errorf("confirmed entry id = %q, want m2", got.ID)
	}
	if got.Pending || got.Failed {
		t.Error("confirmed entry should carry no pending or failed flag")
	}
}

func TestConversationConfirmWithoutEchoedRef(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	conv := NewConversation()

	optimistic := msgAt("", "u1", "hello", base)
	optimistic.ClientRef = "ref-1"
	conv.AppendOptimistic(optimistic)

	// An older server build strips client_ref and assigns its own
	// created_at, so neither the ref nor the identity tuple matches.
	confirmed := msgAt("m1", "u1", "hello", base.Add(2*time.Second))
	conv.Confirm("ref-1", confirmed)

	entries := conv.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry after confirm, got %d", len(entries))
	}
	if entries[0].ID != "m1" || entries[0].Pending {
		t.Errorf("optimistic entry not replaced in place: %+v", entries[0])
	}
	if !entries[0].CreatedAt.Equal(confirmed.CreatedAt) {
		t.Errorf("entry kept provisional timestamp %v", entries[0].CreatedAt)
	}
}

func TestConversationSetFailedKeepsEntryVisible(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	conv := NewConversation()
	optimistic := msgAt("", "u1", "lost", at)
	optimistic.ClientRef = "ref-1"
	conv.AppendOptimistic(optimistic)

	conv.SetFailed("ref-1")

	entries := conv.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected entry to remain, got %d", len(entries))
	}
	if entries[0].Pending {
		t.Error("failed entry still pending")
	}
	if !entries[0].Failed {
		t.Error("entry not flagged failed")
	}
}

func TestConversationMarkReadBy(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	conv := NewConversation()
	conv.AppendInbound(msgAt("m1", "u1", "mine", base))
	conv.AppendInbound(msgAt("m2", "u2", "theirs", base.Add(time.Second)))

	conv.MarkReadBy("u1")

	entries := conv.Entries()
	if entries[0].IsRead {
		t.Error("reader's own message should not flip to read")
	}
	if !entries[1].IsRead {
		t.Error("peer message should be read")
	}
}

func TestConversationEntriesReturnsCopy(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	conv := NewConversation()
	conv.AppendInbound(msgAt("m1", "u1", "hello", at))

	entries := conv.Entries()
	entries[0].Body = "mutated"

	if conv.Entries()[0].Body != "hello" {
		t.Error("mutating the returned slice leaked into the log")
	}
}
