// Package ranking orders chat list snapshots for display.
package ranking

import (
	"slices"
	"strings"

	"github.com/involvex/warelay/internal/model"
)

// Sort returns a new slice ordered for display. Ordering, most significant
// key first: chats with unread messages, then unread count descending, then
// effective timestamp descending, then name ascending (case-sensitive), then
// chat id ascending so the order is total regardless of input order.
func Sort(chats []model.ChatSummary) []model.ChatSummary {
	out := slices.Clone(chats)
	slices.SortStableFunc(out, Compare)
	return out
}

// Compare is the ranking comparator: negative when a sorts before b.
func Compare(a, b model.ChatSummary) int {
	aUnread := a.UnreadCount > 0
	bUnread := b.UnreadCount > 0
	if aUnread != bUnread {
		if aUnread {
			return -1
		}
		return 1
	}

	if aUnread && bUnread && a.UnreadCount != b.UnreadCount {
		if a.UnreadCount > b.UnreadCount {
			return -1
		}
		return 1
	}

	if at, bt := a.EffectiveTimestamp(), b.EffectiveTimestamp(); at != bt {
		if at > bt {
			return -1
		}
		return 1
	}

	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}
