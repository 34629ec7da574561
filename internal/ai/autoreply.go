package ai

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/involvex/warelay/internal/bus"
	"github.com/involvex/warelay/internal/model"
)

// replyDelay is how long an inbound message sits before the auto reply
// fires. A follow-up message in the same chat restarts the clock so we
// answer the latest thing said, not the first.
const replyDelay = 2 * time.Second

// commandPrefix marks messages addressed to the assistant explicitly;
// those are handled by their own request path, never auto-replied.
const commandPrefix = "/ai"

// Sender is the outbound path an auto reply goes through.
type Sender interface {
	SendText(ctx context.Context, chatID, body string) error
}

// HistorySource supplies recent chat history for prompt context.
type HistorySource interface {
	History(ctx context.Context, chatID string) []model.MessageRecord
}

// ResponsesEvent is the ai.responses bus payload.
type ResponsesEvent struct {
	ChatID          string   `json:"chatId"`
	Responses       []string `json:"responses"`
	OriginalMessage string   `json:"originalMessage"`
}

// ErrorEvent is the ai.error bus payload.
type ErrorEvent struct {
	ChatID  string `json:"chatId"`
	Message string `json:"message"`
}

// AutoReplier answers inbound messages with the first generated
// suggestion after a short delay. Disabled unless configured on.
type AutoReplier struct {
	generator Generator
	sender    Sender
	history   HistorySource
	bus       *bus.Bus
	logger    *zap.Logger
	enabled   bool
	delay     time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// NewAutoReplier creates an auto replier.
func NewAutoReplier(g Generator, sender Sender, history HistorySource, b *bus.Bus, enabled bool, logger *zap.Logger) *AutoReplier {
	return &AutoReplier{
		generator: g,
		sender:    sender,
		history:   history,
		bus:       b,
		logger:    logger,
		enabled:   enabled,
		delay:     replyDelay,
		timers:    make(map[string]*time.Timer),
	}
}

// Consider inspects an inbound message and, when eligible, arms the
// deferred reply for its chat. Our own messages and explicit assistant
// commands never trigger a reply.
func (r *AutoReplier) Consider(rec *model.MessageRecord) {
	if !r.enabled || rec.FromMe || rec.Body == "" || strings.HasPrefix(rec.Body, commandPrefix) {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if prev, ok := r.timers[rec.ChatID]; ok {
		prev.Stop()
	}
	chatID, body := rec.ChatID, rec.Body
	r.timers[rec.ChatID] = time.AfterFunc(r.delay, func() {
		r.reply(chatID, body)
	})
}

// Close stops all armed replies.
func (r *AutoReplier) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for _, t := range r.timers {
		t.Stop()
	}
	r.timers = make(map[string]*time.Timer)
}

func (r *AutoReplier) reply(chatID, body string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	r.mu.Lock()
	delete(r.timers, chatID)
	r.mu.Unlock()

	suggestions, err := Suggest(ctx, r.generator, SuggestRequest{
		Message: body,
		History: r.history.History(ctx, chatID),
	})
	if err != nil {
		r.logger.Warn("auto reply generation failed",
			zap.String("chat_id", chatID), zap.Error(err))
		r.bus.Publish(bus.Now(bus.KindAIError, &ErrorEvent{
			ChatID:  chatID,
			Message: "Failed to generate AI responses",
		}))
		return
	}

	if err := r.sender.SendText(ctx, chatID, suggestions.Options[0]); err != nil {
		r.logger.Warn("auto reply send failed",
			zap.String("chat_id", chatID), zap.Error(err))
		return
	}

	r.bus.Publish(bus.Now(bus.KindAIResponses, &ResponsesEvent{
		ChatID:          chatID,
		Responses:       suggestions.Options,
		OriginalMessage: body,
	}))
}
