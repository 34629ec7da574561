package ranking

import (
	"testing"

	"github.com/involvex/warelay/internal/model"
)

func chat(id, name string, unread int, ts int64) model.ChatSummary {
	return model.ChatSummary{ID: id, Name: name, UnreadCount: unread, Timestamp: ts}
}

func ids(chats []model.ChatSummary) []string {
	out := make([]string, len(chats))
	for i, c := range chats {
		out[i] = c.ID
	}
	return out
}

func TestUnreadSortsFirstRegardlessOfTimestamp(t *testing.T) {
	got := Sort([]model.ChatSummary{
		chat("old-unread", "A", 1, 100),
		chat("new-read", "B", 0, 9999),
	})
	if got[0].ID != "old-unread" {
		t.Errorf("order = %v, want unread chat first", ids(got))
	}
}

func TestUnreadCountDescendingAmongUnread(t *testing.T) {
	got := Sort([]model.ChatSummary{
		chat("few", "A", 2, 500),
		chat("many", "B", 9, 100),
	})
	if got[0].ID != "many" {
		t.Errorf("order = %v, want higher unread count first", ids(got))
	}
}

func TestEffectiveTimestampPrefersLastMessage(t *testing.T) {
	a := chat("a", "A", 0, 50)
	a.LastMessage = &model.LastMessage{Timestamp: 900}
	b := chat("b", "B", 0, 800)

	got := Sort([]model.ChatSummary{b, a})
	if got[0].ID != "a" {
		t.Errorf("order = %v, want last-message timestamp to win", ids(got))
	}
}

func TestNameTieBreakIsCaseSensitive(t *testing.T) {
	// Byte-wise compare: "Bob" < "alice" because 'B' < 'a'.
	got := Sort([]model.ChatSummary{
		chat("alice", "alice", 0, 100),
		chat("bob", "Bob", 0, 100),
	})
	if got[0].ID != "bob" || got[1].ID != "alice" {
		t.Errorf("order = %v, want [bob alice]", ids(got))
	}
}

func TestMissingNamesSortAsEmptyString(t *testing.T) {
	got := Sort([]model.ChatSummary{
		chat("named", "Zed", 0, 100),
		chat("anon", "", 0, 100),
	})
	if got[0].ID != "anon" {
		t.Errorf("order = %v, want empty name first", ids(got))
	}
}

func TestChatIDBreaksFullTies(t *testing.T) {
	// Chats equal on every display key still sort the same way no matter
	// the input order.
	a := chat("a@s", "Same", 0, 100)
	b := chat("b@s", "Same", 0, 100)

	forward := Sort([]model.ChatSummary{a, b})
	reversed := Sort([]model.ChatSummary{b, a})
	for _, got := range [][]model.ChatSummary{forward, reversed} {
		if got[0].ID != "a@s" || got[1].ID != "b@s" {
			t.Errorf("order = %v, want [a@s b@s] regardless of input order", ids(got))
		}
	}
}

func TestInputNotMutated(t *testing.T) {
	in := []model.ChatSummary{
		chat("b", "B", 0, 1),
		chat("a", "A", 5, 2),
	}
	Sort(in)
	if in[0].ID != "b" {
		t.Error("Sort mutated its input")
	}
}

func TestFullOrdering(t *testing.T) {
	got := Sort([]model.ChatSummary{
		chat("read-old", "M", 0, 10),
		chat("unread-small", "N", 1, 5),
		chat("read-new", "O", 0, 99),
		chat("unread-big", "P", 7, 1),
	})
	want := []string{"unread-big", "unread-small", "read-new", "read-old"}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("order = %v, want %v", ids(got), want)
		}
	}
}
