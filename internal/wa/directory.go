package wa

import (
	"sync"

	"go.mau.fi/whatsmeow/proto/waE2E"

	"github.com/involvex/warelay/internal/model"
)

// historyLimit caps per-chat message retention. Older records fall off the
// front; clients needing deeper history must keep their own archive.
const historyLimit = 500

type chatEntry struct {
	summary  model.ChatSummary
	messages []model.MessageRecord
	raw      map[string]*waE2E.Message
}

// Directory is the in-memory chat mirror fed by session events. The
// upstream library exposes no "list chats" call, so the adapter rebuilds
// the chat list from history sync batches and live messages.
type Directory struct {
	mu    sync.RWMutex
	chats map[string]*chatEntry
	names map[string]string
}

func NewDirectory() *Directory {
	return &Directory{
		chats: make(map[string]*chatEntry),
		names: make(map[string]string),
	}
}

// SetName records a display name for a chat or contact jid.
func (d *Directory) SetName(jid, name string) {
	if name == "" {
		return
	}
	d.mu.Lock()
	d.names[jid] = name
	d.mu.Unlock()
}

// Record ingests one parsed message, updating the chat summary and history.
// Duplicate ids (live event overlapping a history batch) replace in place.
func (d *Directory) Record(p *ParsedMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(p)
}

// RecordBatch ingests a history sync batch under one lock acquisition.
func (d *Directory) RecordBatch(batch []*ParsedMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range batch {
		d.record(p)
	}
}

func (d *Directory) record(p *ParsedMessage) {
	rec := p.Record
	entry, ok := d.chats[rec.ChatID]
	if !ok {
		entry = &chatEntry{
			summary: model.ChatSummary{
				ID:      rec.ChatID,
				IsGroup: isGroupJID(rec.ChatID),
			},
			raw: make(map[string]*waE2E.Message),
		}
		d.chats[rec.ChatID] = entry
	}

	replaced := false
	for i := range entry.messages {
		if entry.messages[i].ID == rec.ID {
			entry.messages[i] = *rec
			replaced = true
			break
		}
	}
	if !replaced {
		entry.messages = insertByTimestamp(entry.messages, *rec)
		if len(entry.messages) > historyLimit {
			drop := entry.messages[0]
			delete(entry.raw, drop.ID)
			entry.messages = entry.messages[1:]
		}
		if !rec.FromMe {
			entry.summary.UnreadCount++
		}
	}
	if p.Raw != nil {
		entry.raw[rec.ID] = p.Raw
	}

	last := entry.messages[len(entry.messages)-1]
	entry.summary.LastMessage = &model.LastMessage{
		Body:      last.Body,
		Timestamp: last.Timestamp,
		FromMe:    last.FromMe,
		Type:      last.Type,
	}
	if last.Timestamp > entry.summary.Timestamp {
		entry.summary.Timestamp = last.Timestamp
	}
}

func insertByTimestamp(msgs []model.MessageRecord, rec model.MessageRecord) []model.MessageRecord {
	i := len(msgs)
	for i > 0 && msgs[i-1].Timestamp > rec.Timestamp {
		i--
	}
	msgs = append(msgs, model.MessageRecord{})
	copy(msgs[i+1:], msgs[i:])
	msgs[i] = rec
	return msgs
}

// SetState updates the state of one message if the transition is a legal
// forward advance. Returns the updated record, or nil when the message is
// unknown or the advance was rejected.
func (d *Directory) SetState(chatID, msgID string, next model.State) *model.MessageRecord {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.chats[chatID]
	if !ok {
		return nil
	}
	for i := range entry.messages {
		if entry.messages[i].ID == msgID {
			if !entry.messages[i].State.CanAdvance(next) {
				return nil
			}
			entry.messages[i].State = next
			rec := entry.messages[i]
			return &rec
		}
	}
	return nil
}

// Chats returns a snapshot of all known chat summaries, names resolved.
func (d *Directory) Chats() []model.ChatSummary {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]model.ChatSummary, 0, len(d.chats))
	for jid, entry := range d.chats {
		s := entry.summary
		s.Name = d.resolveName(jid)
		out = append(out, s)
	}
	return out
}

// Messages returns up to limit most recent messages for a chat, oldest
// first, and clears the chat's unread count: fetching history is viewing.
func (d *Directory) Messages(chatID string, limit int) []model.MessageRecord {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.chats[chatID]
	if !ok {
		return nil
	}
	entry.summary.UnreadCount = 0

	msgs := entry.messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]model.MessageRecord, len(msgs))
	copy(out, msgs)
	return out
}

// MessageCount returns the retained history length for a chat.
func (d *Directory) MessageCount(chatID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if entry, ok := d.chats[chatID]; ok {
		return len(entry.messages)
	}
	return 0
}

// Raw returns the retained wire message for a media record, if any.
func (d *Directory) Raw(chatID, msgID string) (*waE2E.Message, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	entry, ok := d.chats[chatID]
	if !ok {
		return nil, false
	}
	raw, ok := entry.raw[msgID]
	return raw, ok
}

func (d *Directory) resolveName(jid string) string {
	if name, ok := d.names[jid]; ok {
		return name
	}
	return ""
}

func isGroupJID(jid string) bool {
	const groupSuffix = "@g.us"
	return len(jid) > len(groupSuffix) && jid[len(jid)-len(groupSuffix):] == groupSuffix
}
