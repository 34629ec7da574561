package wa

import (
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/involvex/warelay/internal/model"
)

func TestExtractTextBody(t *testing.T) {
	tests := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{"nil message", nil, ""},
		{"conversation", &waE2E.Message{Conversation: proto.String("hello")}, "hello"},
		{"extended text", &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("extended")}}, "extended"},
		{"image caption", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{Caption: proto.String("look")}}, "look"},
		{"image without caption", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{}}, ""},
		{"empty conversation", &waE2E.Message{Conversation: proto.String("")}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractTextBody(tt.msg)
			if got != tt.want {
				t.Errorf("extractTextBody() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectMessageType(t *testing.T) {
	tests := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{"nil", nil, "unknown"},
		{"text conversation", &waE2E.Message{Conversation: proto.String("hi")}, "text"},
		{"extended text", &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("hi")}}, "text"},
		{"image", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{}}, "image"},
		{"video", &waE2E.Message{VideoMessage: &waE2E.VideoMessage{}}, "video"},
		{"audio", &waE2E.Message{AudioMessage: &waE2E.AudioMessage{}}, "audio"},
		{"document", &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{}}, "document"},
		{"sticker", &waE2E.Message{StickerMessage: &waE2E.StickerMessage{}}, "sticker"},
		{"empty message", &waE2E.Message{}, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := detectMessageType(tt.msg)
			if got != tt.want {
				t.Errorf("detectMessageType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseLiveMessage(t *testing.T) {
	ts := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	evt := &events.Message{
		Info: types.MessageInfo{
			PushName:  "Alice",
			Timestamp: ts,
			MessageSource: types.MessageSource{
				Chat:     types.JID{User: "chat", Server: "s.whatsapp.net"},
				Sender:   types.JID{User: "sender", Server: "s.whatsapp.net"},
				IsFromMe: false,
			},
			ID: "MSG123",
		},
		Message: &waE2E.Message{Conversation: proto.String("hello world")},
	}

	parsed := ParseLiveMessage(evt)
	rec := parsed.Record

	if rec.ChatID != "chat@s.whatsapp.net" {
		t.Errorf("ChatID = %q, want chat@s.whatsapp.net", rec.ChatID)
	}
	if rec.ID != "MSG123" {
		t.Errorf("ID = %q, want MSG123", rec.ID)
	}
	if rec.Body != "hello world" {
		t.Errorf("Body = %q, want hello world", rec.Body)
	}
	if rec.Type != "text" {
		t.Errorf("Type = %q, want text", rec.Type)
	}
	if rec.FromMe {
		t.Error("FromMe = true, want false")
	}
	if rec.Timestamp != ts.UnixMilli() {
		t.Errorf("Timestamp = %d, want %d", rec.Timestamp, ts.UnixMilli())
	}
	if rec.State != model.StateDelivered {
		t.Errorf("State = %q, want delivered for inbound", rec.State)
	}
	if rec.TempID != "" {
		t.Errorf("TempID = %q, want empty for server-confirmed record", rec.TempID)
	}
	if parsed.Raw != nil {
		t.Error("text message should not retain a raw wire message")
	}
}

func TestParseLiveMessageFromMeIsSent(t *testing.T) {
	evt := &events.Message{
		Info: types.MessageInfo{
			ID:        "M1",
			Timestamp: time.Now(),
			MessageSource: types.MessageSource{
				Chat:     types.JID{User: "c", Server: "s.whatsapp.net"},
				IsFromMe: true,
			},
		},
		Message: &waE2E.Message{Conversation: proto.String("from my phone")},
	}

	rec := ParseLiveMessage(evt).Record
	if rec.State != model.StateSent {
		t.Errorf("State = %q, want sent for own echoed message", rec.State)
	}
}

// Device-suffixed chat JIDs must normalize to the canonical user JID, or the
// same contact shows up as two chats.
func TestParseLiveMessageStripsDeviceSuffix(t *testing.T) {
	evt := &events.Message{
		Info: types.MessageInfo{
			ID:        "M1",
			Timestamp: time.Now(),
			MessageSource: types.MessageSource{
				Chat: types.JID{User: "558592403672", Server: "s.whatsapp.net", Device: 3},
			},
		},
		Message: &waE2E.Message{Conversation: proto.String("hi")},
	}

	rec := ParseLiveMessage(evt).Record
	if rec.ChatID != "558592403672@s.whatsapp.net" {
		t.Errorf("ChatID = %q, device suffix not stripped", rec.ChatID)
	}
}

func TestParseLiveMessageMedia(t *testing.T) {
	evt := &events.Message{
		Info: types.MessageInfo{
			ID:        "IMG1",
			Timestamp: time.Now(),
			MessageSource: types.MessageSource{
				Chat: types.JID{User: "c", Server: "s.whatsapp.net"},
			},
		},
		Message: &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			Mimetype: proto.String("image/jpeg"),
		}},
	}

	parsed := ParseLiveMessage(evt)
	if parsed.Record.Type != "image" {
		t.Errorf("Type = %q, want image", parsed.Record.Type)
	}
	if parsed.Record.Media == nil || parsed.Record.Media.Mimetype != "image/jpeg" {
		t.Errorf("Media = %+v, want mimetype image/jpeg", parsed.Record.Media)
	}
	if parsed.Record.Media.Data != "" {
		t.Error("Media.Data should stay empty until an explicit download")
	}
	if parsed.Raw == nil {
		t.Error("media message must retain the raw wire message for download")
	}
}

func TestExtractMediaRefDocument(t *testing.T) {
	msg := &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
		Mimetype: proto.String("application/pdf"),
		FileName: proto.String("report.pdf"),
	}}

	ref := extractMediaRef(msg)
	if ref == nil {
		t.Fatal("expected a media ref for document")
	}
	if ref.Mimetype != "application/pdf" || ref.Filename != "report.pdf" {
		t.Errorf("ref = %+v", ref)
	}

	if extractMediaRef(&waE2E.Message{Conversation: proto.String("hi")}) != nil {
		t.Error("text message should have no media ref")
	}
}

func TestMediaRecordType(t *testing.T) {
	tests := []struct {
		mimetype string
		want     string
	}{
		{"image/jpeg", "image"},
		{"audio/ogg; codecs=opus", "audio"},
		{"application/pdf", "document"},
		{"", "document"},
	}
	for _, tt := range tests {
		if got := mediaRecordType(tt.mimetype); got != tt.want {
			t.Errorf("mediaRecordType(%q) = %q, want %q", tt.mimetype, got, tt.want)
		}
	}
}
