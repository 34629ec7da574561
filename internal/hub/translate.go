package hub

import (
	"context"
	"encoding/base64"

	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/involvex/warelay/internal/ai"
	"github.com/involvex/warelay/internal/bus"
	"github.com/involvex/warelay/internal/lifecycle"
	"github.com/involvex/warelay/internal/mirror"
	"github.com/involvex/warelay/internal/model"
	"github.com/involvex/warelay/internal/status"
)

// Push event names on the client-facing channel.
const (
	EventStatus        = "status"
	EventQR            = "qr"
	EventReady         = "ready"
	EventAuthenticated = "authenticated"
	EventAuthFailure   = "auth_failure"
	EventNewMessage    = "new-message"
	EventMessageStatus = "message-status"
	EventAIResponses   = "ai-responses"
	EventAIError       = "ai-error"
	EventChatsLoaded   = "chats-loaded"
	EventDisconnected  = "disconnected"
)

// qrImageSize is the rendered QR PNG edge length in pixels.
const qrImageSize = 256

// Broadcaster is the outward half of the hub the translator needs.
type Broadcaster interface {
	Broadcast(event string, data any)
}

// NewMessagePayload is the new-message push frame.
type NewMessagePayload struct {
	ChatID  string               `json:"chatId"`
	Message *model.MessageRecord `json:"message"`
}

// Translator turns bus events into push broadcasts, 1:1 with no
// batching, and answers the two client-to-server requests.
type Translator struct {
	broadcaster Broadcaster
	machine     *status.Machine
	mirror      *mirror.Service
	generator   ai.Generator
	logger      *zap.Logger
}

// NewTranslator creates a translator.
func NewTranslator(b Broadcaster, machine *status.Machine, m *mirror.Service, g ai.Generator, logger *zap.Logger) *Translator {
	return &Translator{
		broadcaster: b,
		machine:     machine,
		mirror:      m,
		generator:   g,
		logger:      logger,
	}
}

// Run consumes every bus event until ctx is done.
func (t *Translator) Run(ctx context.Context, b *bus.Bus) {
	events, unsubscribe := b.Subscribe("", 256)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-events:
			t.translate(ctx, evt)
		}
	}
}

func (t *Translator) translate(ctx context.Context, evt bus.Event) {
	switch evt.Kind {
	case bus.KindSessionStatus:
		t.broadcaster.Broadcast(EventStatus, evt.Payload)
	case bus.KindSessionQR:
		code, ok := evt.Payload.(string)
		if !ok {
			return
		}
		dataURL, err := renderQR(code)
		if err != nil {
			t.logger.Error("failed to render QR code", zap.Error(err))
			return
		}
		t.broadcaster.Broadcast(EventQR, map[string]string{"qr": dataURL})
	case bus.KindSessionAuth:
		t.broadcaster.Broadcast(EventAuthenticated, nil)
	case bus.KindSessionAuthFailed:
		t.broadcaster.Broadcast(EventAuthFailure, map[string]any{"message": evt.Payload})
	case bus.KindSessionReady:
		t.broadcaster.Broadcast(EventReady, nil)
		// Warm the chat cache so the first read after ready is a hit,
		// then hand connected clients the fresh list.
		chats := t.mirror.WarmChats(ctx)
		t.broadcaster.Broadcast(EventChatsLoaded, chats)
	case bus.KindSessionGone:
		t.broadcaster.Broadcast(EventDisconnected, map[string]any{"reason": evt.Payload})
	case bus.KindMessageReceived, bus.KindMessagePending:
		if rec, ok := evt.Payload.(*model.MessageRecord); ok {
			t.broadcaster.Broadcast(EventNewMessage, &NewMessagePayload{ChatID: rec.ChatID, Message: rec})
		}
	case bus.KindMessageState:
		t.broadcaster.Broadcast(EventMessageStatus, evt.Payload)
	case bus.KindMessageFailed:
		if rec, ok := evt.Payload.(*model.MessageRecord); ok {
			t.broadcaster.Broadcast(EventMessageStatus, &lifecycle.StateChange{
				ChatID:    rec.ChatID,
				MessageID: rec.ID,
				State:     rec.State,
			})
		}
	case bus.KindAIResponses:
		t.broadcaster.Broadcast(EventAIResponses, evt.Payload)
	case bus.KindAIError:
		t.broadcaster.Broadcast(EventAIError, evt.Payload)
	}
}

// HandleRequest answers client-to-server frames. Replies go only to the
// asking client.
func (t *Translator) HandleRequest(ctx context.Context, req Request, reply func(event string, data any)) {
	switch req.Type {
	case "get-status":
		reply(EventStatus, map[string]any{"status": t.machine.Current()})
	case "generate-more-ai":
		t.generateMore(ctx, req, reply)
	default:
		t.logger.Debug("unsupported push request", zap.String("type", req.Type))
	}
}

func (t *Translator) generateMore(ctx context.Context, req Request, reply func(event string, data any)) {
	history, err := t.mirror.Messages(ctx, req.ChatID)
	if err != nil {
		t.logger.Warn("history read failed for suggestion request", zap.Error(err))
	}

	suggestions, err := ai.Suggest(ctx, t.generator, ai.SuggestRequest{
		Message:  req.Message,
		Context:  req.Context,
		Language: req.Language,
		History:  history,
	})
	if err != nil {
		t.logger.Warn("suggestion generation failed",
			zap.String("chat_id", req.ChatID), zap.Error(err))
		reply(EventAIError, &ai.ErrorEvent{ChatID: req.ChatID, Message: "Failed to generate AI responses"})
		return
	}

	reply(EventAIResponses, &ai.ResponsesEvent{
		ChatID:          req.ChatID,
		Responses:       suggestions.Options,
		OriginalMessage: req.Message,
	})
}

func renderQR(code string) (string, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, qrImageSize)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
