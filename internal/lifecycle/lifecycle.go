// Package lifecycle tracks outbound messages from optimistic draft to
// server-confirmed outcome and folds upstream events into the cached
// history. The cache is always updated before the bus hears about a
// change, so a client reacting to a broadcast by re-reading sees the
// state the broadcast described.
package lifecycle

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/involvex/warelay/internal/bus"
	"github.com/involvex/warelay/internal/cache"
	"github.com/involvex/warelay/internal/model"
	"github.com/involvex/warelay/internal/ranking"
	"github.com/involvex/warelay/internal/wa"
)

// chatsKey mirrors the read path's whole-list cache key.
const chatsKey = "all"

// historyCap bounds cached per-chat history. Appends past the cap drop
// the oldest record.
const historyCap = 500

// StateChange is the message.state_changed bus payload.
type StateChange struct {
	ChatID    string      `json:"chatId"`
	MessageID string      `json:"messageId"`
	State     model.State `json:"state"`
}

// InboundObserver is notified of each ingested inbound message after the
// cache and bus have seen it. Used to arm the AI auto reply.
type InboundObserver interface {
	Consider(rec *model.MessageRecord)
}

// Manager owns outbound message state.
type Manager struct {
	cache    *cache.Cache
	session  wa.Session
	bus      *bus.Bus
	logger   *zap.Logger
	observer InboundObserver

	mu        sync.Mutex
	tempChats map[string]string
}

// New creates a lifecycle manager. observer may be nil.
func New(c *cache.Cache, session wa.Session, b *bus.Bus, observer InboundObserver, logger *zap.Logger) *Manager {
	return &Manager{
		cache:     c,
		session:   session,
		bus:       b,
		logger:    logger,
		observer:  observer,
		tempChats: make(map[string]string),
	}
}

// SetObserver installs the inbound observer. The observer and the manager
// reference each other, so one of them has to be attached after both are
// constructed. Must be called before Run.
func (m *Manager) SetObserver(o InboundObserver) {
	m.observer = o
}

// CreateOptimistic allocates a tempId and appends a Pending record to the
// chat's cached history for immediate display. The record's id is the
// tempId until confirmation replaces it.
func (m *Manager) CreateOptimistic(chatID, body, msgType string, media *model.MediaRef) *model.MessageRecord {
	tempID := uuid.NewString()
	rec := &model.MessageRecord{
		ID:        tempID,
		ChatID:    chatID,
		Body:      body,
		FromMe:    true,
		Timestamp: time.Now().UnixMilli(),
		Type:      msgType,
		Media:     media,
		State:     model.StatePending,
		TempID:    tempID,
	}

	m.mu.Lock()
	m.tempChats[tempID] = chatID
	m.mu.Unlock()

	m.appendRecord(rec)
	m.bus.Publish(bus.Now(bus.KindMessagePending, rec))
	return rec
}

// ConfirmSend reconciles an optimistic record with the send outcome. On
// success the record moves Pending to Sent under its authoritative id and
// the tempId is cleared; future lookups by the server id succeed and the
// history holds exactly one row for the message. On failure the record
// moves to Failed and stays visible so the user can retry by hand.
func (m *Manager) ConfirmSend(tempID, serverID string, sendErr error) *model.MessageRecord {
	m.mu.Lock()
	chatID, ok := m.tempChats[tempID]
	delete(m.tempChats, tempID)
	m.mu.Unlock()
	if !ok {
		m.logger.Warn("confirm for unknown tempId", zap.String("temp_id", tempID))
		return nil
	}

	var updated *model.MessageRecord
	m.cache.Update(cache.Messages, chatID, func(value any) any {
		msgs, ok := value.([]model.MessageRecord)
		if !ok {
			return value
		}
		for i := range msgs {
			if msgs[i].TempID != tempID {
				continue
			}
			if sendErr != nil {
				msgs[i].State = model.StateFailed
			} else {
				msgs[i].ID = serverID
				msgs[i].State = model.StateSent
			}
			msgs[i].TempID = ""
			rec := msgs[i]
			updated = &rec
			break
		}
		return msgs
	})
	if updated == nil {
		return nil
	}

	if sendErr != nil {
		m.bus.Publish(bus.Now(bus.KindMessageFailed, updated))
	} else {
		m.bus.Publish(bus.Now(bus.KindMessageState, &StateChange{
			ChatID:    chatID,
			MessageID: updated.ID,
			State:     updated.State,
		}))
	}
	return updated
}

// Advance moves a message's state forward. A regression or an unknown
// transition is logged and left as a no-op; the record keeps the state it
// had.
func (m *Manager) Advance(chatID, messageID string, next model.State) *model.MessageRecord {
	var updated *model.MessageRecord
	m.cache.Update(cache.Messages, chatID, func(value any) any {
		msgs, ok := value.([]model.MessageRecord)
		if !ok {
			return value
		}
		for i := range msgs {
			if msgs[i].ID != messageID {
				continue
			}
			if !msgs[i].State.CanAdvance(next) {
				m.logger.Warn("rejected state regression",
					zap.String("message_id", messageID),
					zap.String("from", string(msgs[i].State)),
					zap.String("to", string(next)))
				return msgs
			}
			msgs[i].State = next
			rec := msgs[i]
			updated = &rec
			return msgs
		}
		return msgs
	})
	if updated == nil {
		return nil
	}

	m.bus.Publish(bus.Now(bus.KindMessageState, &StateChange{
		ChatID:    chatID,
		MessageID: messageID,
		State:     next,
	}))
	return updated
}

// IngestIncoming folds an inbound record into the cached history and
// announces it. Inbound records carry no outbound lifecycle; they arrive
// Delivered and only ever advance to Read.
func (m *Manager) IngestIncoming(rec *model.MessageRecord) {
	m.appendRecord(rec)
	m.bus.Publish(bus.Now(bus.KindMessageReceived, rec))
	if m.observer != nil && !rec.FromMe {
		m.observer.Consider(rec)
	}
}

// SendText runs the full optimistic send: insert Pending, call the
// collaborator, reconcile. The returned record reflects the outcome; err
// is non-nil when the send failed and the record is Failed.
func (m *Manager) SendText(ctx context.Context, chatID, body string) (*model.MessageRecord, error) {
	rec := m.CreateOptimistic(chatID, body, "text", nil)
	serverID, err := m.session.SendText(ctx, chatID, body)
	if confirmed := m.ConfirmSend(rec.TempID, serverID, err); confirmed != nil {
		rec = confirmed
	}
	return rec, err
}

// SendMedia is SendText for a media payload; the message type is derived
// from the payload mimetype.
func (m *Manager) SendMedia(ctx context.Context, chatID string, media *model.MediaRef, caption string) (*model.MessageRecord, error) {
	rec := m.CreateOptimistic(chatID, caption, mediaType(media), media)
	serverID, err := m.session.SendMedia(ctx, chatID, media, caption)
	if confirmed := m.ConfirmSend(rec.TempID, serverID, err); confirmed != nil {
		rec = confirmed
	}
	return rec, err
}

// Run consumes raw upstream events until ctx is done: new messages are
// ingested, receipts advance states.
func (m *Manager) Run(ctx context.Context) {
	events, unsubscribe := m.bus.Subscribe("wa.", 256)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-events:
			switch evt.Kind {
			case bus.KindUpstreamMessage:
				if rec, ok := evt.Payload.(*model.MessageRecord); ok {
					m.ingestUpstream(rec)
				}
			case bus.KindUpstreamReceipt:
				if receipt, ok := evt.Payload.(*wa.Receipt); ok {
					for _, id := range receipt.MessageIDs {
						m.Advance(receipt.ChatID, id, receipt.State)
					}
				}
			}
		}
	}
}

// ingestUpstream routes a live upstream record. Our own messages echoed
// back from the phone are already in the history from the optimistic
// path; records we don't know yet are appended either way.
func (m *Manager) ingestUpstream(rec *model.MessageRecord) {
	if rec.FromMe && m.knownMessage(rec.ChatID, rec.ID) {
		return
	}
	m.IngestIncoming(rec)
}

func (m *Manager) knownMessage(chatID, messageID string) bool {
	msgs, ok := cache.Lookup[[]model.MessageRecord](m.cache, cache.Messages, chatID)
	if !ok {
		return false
	}
	for i := range msgs {
		if msgs[i].ID == messageID {
			return true
		}
	}
	return false
}

// appendRecord appends rec to the chat's cached history, creating the
// entry if the chat has never been read, and refreshes the cached chat
// summary. Appends never reorder existing rows.
func (m *Manager) appendRecord(rec *model.MessageRecord) {
	ok := m.cache.Update(cache.Messages, rec.ChatID, func(value any) any {
		msgs, ok := value.([]model.MessageRecord)
		if !ok {
			return value
		}
		msgs = append(msgs, *rec)
		if len(msgs) > historyCap {
			msgs = msgs[len(msgs)-historyCap:]
		}
		return msgs
	})
	if !ok {
		m.cache.Set(cache.Messages, rec.ChatID, []model.MessageRecord{*rec})
	}

	m.refreshChatSummary(rec)
}

// refreshChatSummary patches the cached chat list in place so list reads
// inside the freshness window see the new message. The entry's freshness
// stamp is deliberately untouched.
func (m *Manager) refreshChatSummary(rec *model.MessageRecord) {
	m.cache.Update(cache.Chats, chatsKey, func(value any) any {
		chats, ok := value.([]model.ChatSummary)
		if !ok {
			return value
		}
		out := make([]model.ChatSummary, len(chats))
		copy(out, chats)

		found := false
		for i := range out {
			if out[i].ID != rec.ChatID {
				continue
			}
			out[i].LastMessage = &model.LastMessage{
				Body:      rec.Body,
				Timestamp: rec.Timestamp,
				FromMe:    rec.FromMe,
				Type:      rec.Type,
			}
			if rec.Timestamp > out[i].Timestamp {
				out[i].Timestamp = rec.Timestamp
			}
			if !rec.FromMe {
				out[i].UnreadCount++
			}
			found = true
			break
		}
		if !found {
			summary := model.ChatSummary{
				ID:        rec.ChatID,
				IsGroup:   strings.HasSuffix(rec.ChatID, "@g.us"),
				Timestamp: rec.Timestamp,
				LastMessage: &model.LastMessage{
					Body:      rec.Body,
					Timestamp: rec.Timestamp,
					FromMe:    rec.FromMe,
					Type:      rec.Type,
				},
			}
			if !rec.FromMe {
				summary.UnreadCount = 1
			}
			out = append(out, summary)
		}
		return ranking.Sort(out)
	})
}

func mediaType(media *model.MediaRef) string {
	switch {
	case media == nil:
		return "text"
	case strings.HasPrefix(media.Mimetype, "image/"):
		return "image"
	case strings.HasPrefix(media.Mimetype, "audio/"):
		return "audio"
	case strings.HasPrefix(media.Mimetype, "video/"):
		return "video"
	default:
		return "document"
	}
}
