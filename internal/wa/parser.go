package wa

import (
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/involvex/warelay/internal/model"
)

// ParsedMessage is a normalized message ready for ingestion. Raw keeps the
// wire message around when it carries downloadable media.
type ParsedMessage struct {
	Record *model.MessageRecord
	Raw    *waE2E.Message
}

// ParseLiveMessage normalizes a live whatsmeow message event. Inbound
// records are born Delivered; our own messages echoed back from other
// devices are Sent.
func ParseLiveMessage(evt *events.Message) *ParsedMessage {
	return parse(evt.Message, evt.Info.Chat.ToNonAD().String(), evt.Info.ID,
		evt.Info.IsFromMe, evt.Info.Timestamp.UnixMilli())
}

// ParseHistoryMessage normalizes a history sync message.
func ParseHistoryMessage(msg *waE2E.Message, info types.MessageInfo) *ParsedMessage {
	return parse(msg, info.Chat.ToNonAD().String(), info.ID,
		info.IsFromMe, info.Timestamp.UnixMilli())
}

func parse(msg *waE2E.Message, chatID, msgID string, fromMe bool, ts int64) *ParsedMessage {
	state := model.StateDelivered
	if fromMe {
		state = model.StateSent
	}

	rec := &model.MessageRecord{
		ID:        msgID,
		ChatID:    chatID,
		Body:      extractTextBody(msg),
		FromMe:    fromMe,
		Timestamp: ts,
		Type:      detectMessageType(msg),
		Media:     extractMediaRef(msg),
		State:     state,
	}

	p := &ParsedMessage{Record: rec}
	if rec.Media != nil {
		p.Raw = msg
	}
	return p
}

func extractTextBody(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if c := msg.GetConversation(); c != "" {
		return c
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	if img := msg.GetImageMessage(); img != nil {
		return img.GetCaption()
	}
	if vid := msg.GetVideoMessage(); vid != nil {
		return vid.GetCaption()
	}
	if doc := msg.GetDocumentMessage(); doc != nil {
		return doc.GetCaption()
	}
	return ""
}

func detectMessageType(msg *waE2E.Message) string {
	if msg == nil {
		return "unknown"
	}
	switch {
	case msg.GetConversation() != "" || msg.GetExtendedTextMessage() != nil:
		return "text"
	case msg.GetImageMessage() != nil:
		return "image"
	case msg.GetVideoMessage() != nil:
		return "video"
	case msg.GetAudioMessage() != nil:
		return "audio"
	case msg.GetDocumentMessage() != nil:
		return "document"
	case msg.GetStickerMessage() != nil:
		return "sticker"
	case msg.GetContactMessage() != nil:
		return "contact"
	case msg.GetLocationMessage() != nil:
		return "location"
	default:
		return "unknown"
	}
}

// extractMediaRef pulls mimetype and filename out of media messages. The
// payload itself is only fetched on an explicit download request.
func extractMediaRef(msg *waE2E.Message) *model.MediaRef {
	if msg == nil {
		return nil
	}
	switch {
	case msg.GetImageMessage() != nil:
		return &model.MediaRef{Mimetype: msg.GetImageMessage().GetMimetype()}
	case msg.GetVideoMessage() != nil:
		return &model.MediaRef{Mimetype: msg.GetVideoMessage().GetMimetype()}
	case msg.GetAudioMessage() != nil:
		return &model.MediaRef{Mimetype: msg.GetAudioMessage().GetMimetype()}
	case msg.GetStickerMessage() != nil:
		return &model.MediaRef{Mimetype: msg.GetStickerMessage().GetMimetype()}
	case msg.GetDocumentMessage() != nil:
		doc := msg.GetDocumentMessage()
		return &model.MediaRef{
			Mimetype: doc.GetMimetype(),
			Filename: doc.GetFileName(),
		}
	default:
		return nil
	}
}
