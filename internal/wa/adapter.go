package wa

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/involvex/warelay/internal/bus"
	"github.com/involvex/warelay/internal/model"
	"github.com/involvex/warelay/internal/session"

	_ "github.com/mattn/go-sqlite3"
)

// Adapter wraps the whatsmeow client and manages the WhatsApp connection.
// It implements Session on top of the client plus an event-fed Directory.
type Adapter struct {
	client    *whatsmeow.Client
	container *sqlstore.Container
	directory *Directory
	bus       *bus.Bus
	logger    *zap.Logger
	session   string
}

var _ Session = (*Adapter)(nil)

// NewAdapter creates a new WhatsApp adapter for the given session.
func NewAdapter(ctx context.Context, sessionName string, b *bus.Bus, logger *zap.Logger) (*Adapter, error) {
	// Set device name shown on the phone's linked devices list.
	wastore.SetOSInfo("Warelay", [3]uint32{0, 1, 0})

	dbPath := session.SessionDBPath(sessionName)

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", dbPath),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create session store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device store: %w", err)
	}

	client := whatsmeow.NewClient(deviceStore, nil)

	return &Adapter{
		client:    client,
		container: container,
		directory: NewDirectory(),
		bus:       b,
		logger:    logger,
		session:   sessionName,
	}, nil
}

// Client returns the underlying whatsmeow client.
func (a *Adapter) Client() *whatsmeow.Client {
	return a.client
}

// Directory returns the event-fed chat mirror.
func (a *Adapter) Directory() *Directory {
	return a.directory
}

// IsLoggedIn returns whether the adapter has valid credentials.
func (a *Adapter) IsLoggedIn() bool {
	return a.client.Store.ID != nil
}

// IsReady reports whether the session is authenticated and connected.
func (a *Adapter) IsReady() bool {
	return a.IsLoggedIn() && a.client.IsConnected()
}

// Connect initiates the WhatsApp connection.
func (a *Adapter) Connect() error {
	a.logger.Info("connecting to WhatsApp")
	return a.client.Connect()
}

// Disconnect terminates the WhatsApp connection.
func (a *Adapter) Disconnect() {
	a.logger.Info("disconnecting from WhatsApp")
	a.client.Disconnect()
}

// Logout invalidates the session and removes credentials.
func (a *Adapter) Logout(ctx context.Context) error {
	return a.client.Logout(ctx)
}

// RegisterEventHandler adds a handler for whatsmeow events.
func (a *Adapter) RegisterEventHandler(handler whatsmeow.EventHandler) {
	a.client.AddEventHandler(handler)
}

// PhoneNumber returns the phone number from the device store, or empty string.
func (a *Adapter) PhoneNumber() string {
	if a.client.Store.ID == nil {
		return ""
	}
	return a.client.Store.ID.User
}

// GetChats returns a snapshot of every chat the directory has seen.
func (a *Adapter) GetChats(ctx context.Context) ([]model.ChatSummary, error) {
	if !a.IsReady() {
		return nil, ErrNotReady
	}
	a.refreshNames(ctx)
	return a.directory.Chats(), nil
}

// GetContacts returns the address book from the whatsmeow device store.
func (a *Adapter) GetContacts(ctx context.Context) ([]model.Contact, error) {
	if !a.IsReady() {
		return nil, ErrNotReady
	}
	allContacts, err := a.client.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("get contacts: %w", err)
	}

	contacts := make([]model.Contact, 0, len(allContacts))
	for jid, info := range allContacts {
		normalized := jid.ToNonAD()
		contacts = append(contacts, model.Contact{
			ID:          normalized.String(),
			Name:        info.FullName,
			PushName:    info.PushName,
			Number:      normalized.User,
			IsWAContact: true,
		})
	}
	return contacts, nil
}

// FetchMessages returns the retained history for a chat, oldest first.
func (a *Adapter) FetchMessages(ctx context.Context, chatID string, limit int) ([]model.MessageRecord, error) {
	if !a.IsReady() {
		return nil, ErrNotReady
	}
	return a.directory.Messages(chatID, limit), nil
}

// SendText sends a text message to the given JID. Returns the server message ID.
func (a *Adapter) SendText(ctx context.Context, chatID, body string) (string, error) {
	if !a.IsReady() {
		return "", ErrNotReady
	}
	to, err := types.ParseJID(chatID)
	if err != nil {
		return "", fmt.Errorf("parse JID: %w", err)
	}
	msg := &waE2E.Message{Conversation: proto.String(body)}
	resp, err := a.client.SendMessage(ctx, to, msg)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}

	// whatsmeow emits no echo event for sends from this device, so the
	// directory must learn about them here or history refreshes would
	// lose every outbound message.
	a.directory.Record(&ParsedMessage{Record: &model.MessageRecord{
		ID:        resp.ID,
		ChatID:    to.ToNonAD().String(),
		Body:      body,
		FromMe:    true,
		Timestamp: resp.Timestamp.UnixMilli(),
		Type:      "text",
		State:     model.StateSent,
	}})
	return resp.ID, nil
}

// SendMedia uploads the payload and sends it as an image, audio or document
// message depending on mimetype. Returns the server message ID.
func (a *Adapter) SendMedia(ctx context.Context, chatID string, media *model.MediaRef, caption string) (string, error) {
	if !a.IsReady() {
		return "", ErrNotReady
	}
	to, err := types.ParseJID(chatID)
	if err != nil {
		return "", fmt.Errorf("parse JID: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(media.Data)
	if err != nil {
		return "", fmt.Errorf("decode media payload: %w", err)
	}

	msg, err := a.buildMediaMessage(ctx, media, data, caption)
	if err != nil {
		return "", err
	}
	resp, err := a.client.SendMessage(ctx, to, msg)
	if err != nil {
		return "", fmt.Errorf("send media: %w", err)
	}

	// Retaining msg keeps our own sent media downloadable through Raw.
	a.directory.Record(&ParsedMessage{
		Record: &model.MessageRecord{
			ID:        resp.ID,
			ChatID:    to.ToNonAD().String(),
			Body:      caption,
			FromMe:    true,
			Timestamp: resp.Timestamp.UnixMilli(),
			Type:      mediaRecordType(media.Mimetype),
			Media:     &model.MediaRef{Mimetype: media.Mimetype, Filename: media.Filename},
			State:     model.StateSent,
		},
		Raw: msg,
	})
	return resp.ID, nil
}

func mediaRecordType(mimetype string) string {
	switch {
	case strings.HasPrefix(mimetype, "image/"):
		return "image"
	case strings.HasPrefix(mimetype, "audio/"):
		return "audio"
	default:
		return "document"
	}
}

func (a *Adapter) buildMediaMessage(ctx context.Context, media *model.MediaRef, data []byte, caption string) (*waE2E.Message, error) {
	kind := whatsmeow.MediaDocument
	switch {
	case strings.HasPrefix(media.Mimetype, "image/"):
		kind = whatsmeow.MediaImage
	case strings.HasPrefix(media.Mimetype, "audio/"):
		kind = whatsmeow.MediaAudio
	}

	uploaded, err := a.client.Upload(ctx, data, kind)
	if err != nil {
		return nil, fmt.Errorf("upload media: %w", err)
	}

	switch kind {
	case whatsmeow.MediaImage:
		return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			Caption:       proto.String(caption),
			Mimetype:      proto.String(media.Mimetype),
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uploaded.FileLength),
		}}, nil
	case whatsmeow.MediaAudio:
		return &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
			Mimetype:      proto.String(media.Mimetype),
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uploaded.FileLength),
		}}, nil
	default:
		return &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
			Caption:       proto.String(caption),
			FileName:      proto.String(media.Filename),
			Mimetype:      proto.String(media.Mimetype),
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uploaded.FileLength),
		}}, nil
	}
}

// DownloadMedia fetches the payload of a previously received media message.
// Payloads are fetched on demand only, never as part of a list refresh.
func (a *Adapter) DownloadMedia(ctx context.Context, chatID, messageID string) (*model.MediaRef, error) {
	if !a.IsReady() {
		return nil, ErrNotReady
	}
	raw, ok := a.directory.Raw(chatID, messageID)
	if !ok {
		return nil, fmt.Errorf("message %s has no downloadable media", messageID)
	}

	data, err := a.client.DownloadAny(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("download media: %w", err)
	}

	ref := extractMediaRef(raw)
	if ref == nil {
		ref = &model.MediaRef{}
	}
	ref.ID = messageID
	ref.Data = base64.StdEncoding.EncodeToString(data)
	return ref, nil
}

// ChatDetails returns the expanded view of one chat.
func (a *Adapter) ChatDetails(ctx context.Context, chatID string) (*model.ChatDetails, error) {
	if !a.IsReady() {
		return nil, ErrNotReady
	}
	jid, err := types.ParseJID(chatID)
	if err != nil {
		return nil, fmt.Errorf("parse JID: %w", err)
	}

	details := &model.ChatDetails{
		ID:           chatID,
		IsGroup:      jid.Server == types.GroupServer,
		MessageCount: a.directory.MessageCount(chatID),
	}

	if details.IsGroup {
		info, err := a.client.GetGroupInfo(ctx, jid)
		if err != nil {
			return nil, fmt.Errorf("get group info: %w", err)
		}
		details.Name = info.Name
		details.Participants = len(info.Participants)
		return details, nil
	}

	details.Number = jid.User
	contact, err := a.client.Store.Contacts.GetContact(ctx, jid)
	if err == nil && contact.Found {
		if contact.FullName != "" {
			details.Name = contact.FullName
		} else {
			details.Name = contact.PushName
		}
	}
	return details, nil
}

// ContactGroups returns the groups a contact participates in.
func (a *Adapter) ContactGroups(ctx context.Context, contactID string) ([]model.GroupSummary, error) {
	if !a.IsReady() {
		return nil, ErrNotReady
	}
	target, err := types.ParseJID(contactID)
	if err != nil {
		return nil, fmt.Errorf("parse JID: %w", err)
	}
	target = target.ToNonAD()

	joined, err := a.client.GetJoinedGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("get joined groups: %w", err)
	}

	var out []model.GroupSummary
	for _, g := range joined {
		for _, p := range g.Participants {
			if p.JID.ToNonAD() == target {
				out = append(out, model.GroupSummary{
					ID:           g.JID.String(),
					Name:         g.Name,
					Participants: len(g.Participants),
				})
				break
			}
		}
	}
	return out, nil
}

// refreshNames pushes device-store contact names into the directory so
// chat summaries carry display names.
func (a *Adapter) refreshNames(ctx context.Context) {
	allContacts, err := a.client.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		a.logger.Warn("failed to get contacts from device store", zap.Error(err))
		return
	}
	for jid, info := range allContacts {
		name := info.FullName
		if name == "" {
			name = info.PushName
		}
		a.directory.SetName(jid.ToNonAD().String(), name)
	}

	joined, err := a.client.GetJoinedGroups(ctx)
	if err != nil {
		return
	}
	for _, g := range joined {
		a.directory.SetName(g.JID.String(), g.Name)
	}
}
