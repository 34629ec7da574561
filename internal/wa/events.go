package wa

import (
	"time"

	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"

	"github.com/involvex/warelay/internal/bus"
	"github.com/involvex/warelay/internal/model"
	"github.com/involvex/warelay/internal/status"
)

// EventHandler processes whatsmeow events, drives the state machine, feeds
// the directory, and publishes parsed domain events on the bus. Downstream
// consumers (lifecycle manager, push hub) subscribe to the bus independently.
type EventHandler struct {
	bus       *bus.Bus
	machine   *status.Machine
	directory *Directory
	logger    *zap.Logger
}

// NewEventHandler creates a new event handler.
func NewEventHandler(b *bus.Bus, machine *status.Machine, directory *Directory, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		bus:       b,
		machine:   machine,
		directory: directory,
		logger:    logger,
	}
}

// Handle is the main whatsmeow event handler function.
func (h *EventHandler) Handle(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		h.handleMessage(evt)
	case *events.Receipt:
		h.handleReceipt(evt)
	case *events.HistorySync:
		h.handleHistorySync(evt)
	case *events.Connected:
		h.logger.Info("WhatsApp connected")
		current := h.machine.Current()
		if current == status.AuthRequired || current == status.Reconnecting {
			_ = h.machine.Transition(status.Connecting)
		}
		_ = h.machine.Transition(status.Ready)
		h.bus.Publish(bus.Now(bus.KindSessionReady, nil))
	case *events.Disconnected:
		h.logger.Warn("WhatsApp disconnected")
		_ = h.machine.Transition(status.Reconnecting)
		h.bus.Publish(bus.Now(bus.KindSessionGone, "connection lost"))
	case *events.LoggedOut:
		h.logger.Warn("WhatsApp logged out", zap.String("reason", evt.Reason.String()))
		_ = h.machine.Transition(status.AuthRequired)
		h.bus.Publish(bus.Now(bus.KindSessionAuthFailed, evt.Reason.String()))
	case *events.PushName:
		h.directory.SetName(evt.JID.ToNonAD().String(), evt.NewPushName)
	}
}

func (h *EventHandler) handleMessage(evt *events.Message) {
	parsed := ParseLiveMessage(evt)
	if evt.Info.PushName != "" && !evt.Info.IsFromMe {
		h.directory.SetName(evt.Info.Sender.ToNonAD().String(), evt.Info.PushName)
	}
	h.directory.Record(parsed)
	h.bus.Publish(bus.Now(bus.KindUpstreamMessage, parsed.Record))
}

// handleReceipt translates delivery and read receipts into state advances.
// The directory applies the advance; the bus event carries what the
// upstream asserted so the lifecycle manager can reconcile its own view.
func (h *EventHandler) handleReceipt(evt *events.Receipt) {
	var next model.State
	switch evt.Type {
	case types.ReceiptTypeDelivered:
		next = model.StateDelivered
	case types.ReceiptTypeRead, types.ReceiptTypeReadSelf:
		next = model.StateRead
	default:
		return
	}

	chatID := evt.Chat.ToNonAD().String()
	for _, id := range evt.MessageIDs {
		h.directory.SetState(chatID, id, next)
	}
	h.bus.Publish(bus.Now(bus.KindUpstreamReceipt, &Receipt{
		ChatID:     chatID,
		MessageIDs: evt.MessageIDs,
		State:      next,
	}))
}

func (h *EventHandler) handleHistorySync(evt *events.HistorySync) {
	data := evt.Data
	if data == nil {
		return
	}

	var batch []*ParsedMessage
	for _, conv := range data.GetConversations() {
		chatJID, err := types.ParseJID(conv.GetID())
		if err != nil {
			continue
		}
		for _, hm := range conv.GetMessages() {
			wmsg := hm.GetMessage()
			if wmsg == nil || wmsg.GetMessage() == nil {
				continue
			}
			info := types.MessageInfo{
				MessageSource: types.MessageSource{
					Chat:     chatJID,
					IsFromMe: wmsg.GetKey().GetFromMe(),
				},
				ID:        wmsg.GetKey().GetID(),
				Timestamp: timestampFromSeconds(int64(wmsg.GetMessageTimestamp())),
			}
			batch = append(batch, ParseHistoryMessage(wmsg.GetMessage(), info))
		}
	}

	if len(batch) > 0 {
		h.directory.RecordBatch(batch)
		h.logger.Info("history sync batch ingested", zap.Int("messages", len(batch)))
	}
}

func timestampFromSeconds(secs int64) time.Time {
	return time.Unix(secs, 0)
}
