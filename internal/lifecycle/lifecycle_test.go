package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/involvex/warelay/internal/bus"
	"github.com/involvex/warelay/internal/cache"
	"github.com/involvex/warelay/internal/model"
	"github.com/involvex/warelay/internal/wa"
)

type fakeSession struct {
	serverID string
	sendErr  error
	sent     []string
}

func (f *fakeSession) IsReady() bool { return true }

func (f *fakeSession) GetChats(_ context.Context) ([]model.ChatSummary, error) { return nil, nil }

func (f *fakeSession) GetContacts(_ context.Context) ([]model.Contact, error) { return nil, nil }

func (f *fakeSession) FetchMessages(_ context.Context, _ string, _ int) ([]model.MessageRecord, error) {
	return nil, nil
}

func (f *fakeSession) SendText(_ context.Context, chatID, body string) (string, error) {
	f.sent = append(f.sent, chatID+"|"+body)
	return f.serverID, f.sendErr
}

func (f *fakeSession) SendMedia(_ context.Context, chatID string, _ *model.MediaRef, caption string) (string, error) {
	f.sent = append(f.sent, chatID+"|"+caption)
	return f.serverID, f.sendErr
}

func (f *fakeSession) DownloadMedia(_ context.Context, _, _ string) (*model.MediaRef, error) {
	return nil, errors.New("no media")
}

func (f *fakeSession) ChatDetails(_ context.Context, chatID string) (*model.ChatDetails, error) {
	return &model.ChatDetails{ID: chatID}, nil
}

func (f *fakeSession) ContactGroups(_ context.Context, _ string) ([]model.GroupSummary, error) {
	return nil, nil
}

var _ wa.Session = (*fakeSession)(nil)

func testManager(session wa.Session) (*Manager, *cache.Cache, *bus.Bus) {
	c := cache.New()
	b := bus.New()
	m := New(c, session, b, nil, zap.NewNop())
	return m, c, b
}

func history(t *testing.T, c *cache.Cache, chatID string) []model.MessageRecord {
	t.Helper()
	msgs, _ := cache.Lookup[[]model.MessageRecord](c, cache.Messages, chatID)
	return msgs
}

func TestOptimisticSendReconciliation(t *testing.T) {
	m, c, _ := testManager(&fakeSession{serverID: "SRV1"})

	rec, err := m.SendText(context.Background(), "a@s", "hello")
	if err != nil {
		t.Fatal(err)
	}

	msgs := history(t, c, "a@s")
	if len(msgs) != 1 {
		t.Fatalf("history holds %d records, want exactly 1", len(msgs))
	}
	got := msgs[0]
	if got.ID != "SRV1" {
		t.Errorf("ID = %q, want authoritative SRV1", got.ID)
	}
	if got.TempID != "" {
		t.Errorf("TempID = %q, want cleared after confirmation", got.TempID)
	}
	if got.State != model.StateSent {
		t.Errorf("State = %q, want sent", got.State)
	}
	if !got.FromMe {
		t.Error("outbound record must have FromMe=true")
	}
	if rec.ID != "SRV1" || rec.State != model.StateSent {
		t.Errorf("returned record = %+v, want confirmed view", rec)
	}
}

func TestSendFailurePreservesRecordAsFailed(t *testing.T) {
	m, c, b := testManager(&fakeSession{sendErr: errors.New("upstream rejected")})

	events, unsub := b.Subscribe("message.", 8)
	defer unsub()

	rec, err := m.SendText(context.Background(), "a@s", "hello")
	if err == nil {
		t.Fatal("want send error")
	}

	msgs := history(t, c, "a@s")
	if len(msgs) != 1 {
		t.Fatalf("history holds %d records, want the failed record preserved", len(msgs))
	}
	if msgs[0].State != model.StateFailed {
		t.Errorf("State = %q, want failed", msgs[0].State)
	}
	if rec.State != model.StateFailed {
		t.Errorf("returned State = %q, want failed", rec.State)
	}

	var kinds []string
	for len(events) > 0 {
		kinds = append(kinds, (<-events).Kind)
	}
	if len(kinds) != 2 || kinds[0] != bus.KindMessagePending || kinds[1] != bus.KindMessageFailed {
		t.Errorf("event kinds = %v, want [pending, send_failed]", kinds)
	}
}

func TestAdvanceIsMonotonic(t *testing.T) {
	m, c, _ := testManager(&fakeSession{serverID: "SRV1"})
	if _, err := m.SendText(context.Background(), "a@s", "hi"); err != nil {
		t.Fatal(err)
	}

	if rec := m.Advance("a@s", "SRV1", model.StateDelivered); rec == nil || rec.State != model.StateDelivered {
		t.Fatalf("Advance to delivered = %+v", rec)
	}
	if rec := m.Advance("a@s", "SRV1", model.StateRead); rec == nil || rec.State != model.StateRead {
		t.Fatalf("Advance to read = %+v", rec)
	}

	// Regression is a no-op: nil return, state untouched.
	if rec := m.Advance("a@s", "SRV1", model.StateSent); rec != nil {
		t.Errorf("regression accepted: %+v", rec)
	}
	if got := history(t, c, "a@s")[0].State; got != model.StateRead {
		t.Errorf("State after rejected regression = %q, want read", got)
	}
}

func TestAdvanceUnknownMessage(t *testing.T) {
	m, _, b := testManager(&fakeSession{})
	events, unsub := b.Subscribe("message.", 4)
	defer unsub()

	if rec := m.Advance("a@s", "nope", model.StateRead); rec != nil {
		t.Errorf("unknown message advanced: %+v", rec)
	}
	if len(events) != 0 {
		t.Error("no event should be published for an unknown message")
	}
}

type considerSpy struct {
	seen []string
}

func (s *considerSpy) Consider(rec *model.MessageRecord) { s.seen = append(s.seen, rec.ID) }

func TestIngestIncoming(t *testing.T) {
	c := cache.New()
	b := bus.New()
	spy := &considerSpy{}
	m := New(c, &fakeSession{}, b, spy, zap.NewNop())

	events, unsub := b.Subscribe("message.", 4)
	defer unsub()

	m.IngestIncoming(&model.MessageRecord{
		ID: "IN1", ChatID: "a@s", Body: "hey", Timestamp: 100, State: model.StateDelivered,
	})

	msgs := history(t, c, "a@s")
	if len(msgs) != 1 || msgs[0].State != model.StateDelivered || msgs[0].FromMe {
		t.Errorf("history = %+v, want one delivered inbound record", msgs)
	}

	evt := <-events
	if evt.Kind != bus.KindMessageReceived {
		t.Errorf("kind = %q, want message.received", evt.Kind)
	}
	// Cache was updated before the broadcast went out.
	if len(history(t, c, "a@s")) != 1 {
		t.Error("cache must be updated before the event is published")
	}

	if len(spy.seen) != 1 || spy.seen[0] != "IN1" {
		t.Errorf("observer saw %v, want [IN1]", spy.seen)
	}
}

func TestIngestRefreshesChatSummary(t *testing.T) {
	m, c, _ := testManager(&fakeSession{})
	c.Set(cache.Chats, chatsKey, []model.ChatSummary{
		{ID: "a@s", Name: "A", Timestamp: 100},
		{ID: "b@s", Name: "B", Timestamp: 200},
	})

	m.IngestIncoming(&model.MessageRecord{
		ID: "IN1", ChatID: "a@s", Body: "ping", Timestamp: 300, State: model.StateDelivered,
	})

	chats, _ := cache.Lookup[[]model.ChatSummary](c, cache.Chats, chatsKey)
	if chats[0].ID != "a@s" {
		t.Fatalf("chats[0].ID = %q, want a@s promoted to front", chats[0].ID)
	}
	if chats[0].UnreadCount != 1 {
		t.Errorf("UnreadCount = %d, want 1", chats[0].UnreadCount)
	}
	if chats[0].LastMessage == nil || chats[0].LastMessage.Body != "ping" {
		t.Errorf("LastMessage = %+v", chats[0].LastMessage)
	}
}

func TestIngestUnknownChatAddsSummary(t *testing.T) {
	m, c, _ := testManager(&fakeSession{})
	c.Set(cache.Chats, chatsKey, []model.ChatSummary{{ID: "b@s", Name: "B"}})

	m.IngestIncoming(&model.MessageRecord{
		ID: "IN1", ChatID: "new@g.us", Body: "hi", Timestamp: 50, State: model.StateDelivered,
	})

	chats, _ := cache.Lookup[[]model.ChatSummary](c, cache.Chats, chatsKey)
	if len(chats) != 2 {
		t.Fatalf("got %d chats, want 2", len(chats))
	}
	if chats[0].ID != "new@g.us" || !chats[0].IsGroup {
		t.Errorf("chats[0] = %+v, want the new group chat first (unread)", chats[0])
	}
}

func TestHistoryCapped(t *testing.T) {
	m, c, _ := testManager(&fakeSession{})
	for i := 0; i < historyCap+10; i++ {
		m.IngestIncoming(&model.MessageRecord{
			ID: fmt.Sprintf("m%d", i), ChatID: "a@s", Timestamp: int64(i), State: model.StateDelivered,
		})
	}

	msgs := history(t, c, "a@s")
	if len(msgs) != historyCap {
		t.Fatalf("history holds %d records, want capped at %d", len(msgs), historyCap)
	}
	if msgs[0].ID != "m10" {
		t.Errorf("oldest retained = %q, want m10", msgs[0].ID)
	}
}

func TestOwnEchoNotDuplicated(t *testing.T) {
	m, c, _ := testManager(&fakeSession{serverID: "SRV1"})
	if _, err := m.SendText(context.Background(), "a@s", "hi"); err != nil {
		t.Fatal(err)
	}

	// The phone echoes our sent message back as an upstream event.
	m.ingestUpstream(&model.MessageRecord{
		ID: "SRV1", ChatID: "a@s", Body: "hi", FromMe: true, State: model.StateSent,
	})

	if msgs := history(t, c, "a@s"); len(msgs) != 1 {
		t.Errorf("history holds %d records, want 1 (echo deduplicated)", len(msgs))
	}
}

func TestConfirmUnknownTempID(t *testing.T) {
	m, _, _ := testManager(&fakeSession{})
	if rec := m.ConfirmSend("not-a-temp-id", "SRV1", nil); rec != nil {
		t.Errorf("ConfirmSend for unknown tempId = %+v, want nil", rec)
	}
}
