// Package wa adapts the WhatsApp messaging session. The core of the daemon
// consumes the Session interface only; the whatsmeow-backed Adapter is the
// production implementation.
package wa

import (
	"context"
	"errors"

	"github.com/involvex/warelay/internal/model"
)

// ErrNotReady is returned by operations that need a connected session.
// Read paths catch it and degrade to an empty result instead of failing.
var ErrNotReady = errors.New("messaging session not ready")

// Session is the messaging-session collaborator: the expensive upstream the
// cache fronts and the sink every send ultimately goes through.
type Session interface {
	// IsReady reports whether the session is authenticated and connected.
	IsReady() bool

	// GetChats returns a snapshot of every known chat.
	GetChats(ctx context.Context) ([]model.ChatSummary, error)

	// GetContacts returns the address book.
	GetContacts(ctx context.Context) ([]model.Contact, error)

	// FetchMessages returns up to limit most recent messages for a chat,
	// oldest first.
	FetchMessages(ctx context.Context, chatID string, limit int) ([]model.MessageRecord, error)

	// SendText sends a text message and returns the server message id.
	SendText(ctx context.Context, chatID, body string) (string, error)

	// SendMedia sends a media message and returns the server message id.
	SendMedia(ctx context.Context, chatID string, media *model.MediaRef, caption string) (string, error)

	// DownloadMedia fetches the payload of a received media message.
	DownloadMedia(ctx context.Context, chatID, messageID string) (*model.MediaRef, error)

	// ChatDetails returns the expanded view of one chat.
	ChatDetails(ctx context.Context, chatID string) (*model.ChatDetails, error)

	// ContactGroups returns the groups a contact participates in.
	ContactGroups(ctx context.Context, contactID string) ([]model.GroupSummary, error)
}

// Receipt is the payload of a wa.receipt bus event: the upstream confirmed
// delivery or reading of previously sent messages.
type Receipt struct {
	ChatID     string
	MessageIDs []string
	State      model.State
}
