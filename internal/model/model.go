package model

// ChatSummary is an immutable snapshot of one chat as reported by the
// messaging session. The full list is regenerated wholesale on every
// refresh; individual summaries are never patched in place.
type ChatSummary struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	IsGroup     bool         `json:"isGroup"`
	UnreadCount int          `json:"unreadCount"`
	LastMessage *LastMessage `json:"lastMessage"`
	Timestamp   int64        `json:"timestamp"`
}

// LastMessage is the preview of the most recent message in a chat.
type LastMessage struct {
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
	FromMe    bool   `json:"fromMe"`
	Type      string `json:"type"`
}

// EffectiveTimestamp returns the last message timestamp when present,
// falling back to the chat's own timestamp.
func (c *ChatSummary) EffectiveTimestamp() int64 {
	if c.LastMessage != nil {
		return c.LastMessage.Timestamp
	}
	return c.Timestamp
}

// MessageRecord is one message in a chat's history. Outbound records start
// with a TempID and a Pending state; inbound records are created directly in
// Delivered with FromMe=false.
type MessageRecord struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	Body      string    `json:"body"`
	FromMe    bool      `json:"fromMe"`
	Timestamp int64     `json:"timestamp"`
	Type      string    `json:"type"`
	Media     *MediaRef `json:"media"`
	State     State     `json:"state"`
	TempID    string    `json:"tempId,omitempty"`
}

// MediaRef describes media attached to a message. Data is base64-encoded.
type MediaRef struct {
	ID       string `json:"id,omitempty"`
	Mimetype string `json:"mimetype"`
	Filename string `json:"filename,omitempty"`
	Data     string `json:"data,omitempty"`
}

// Contact is a single address-book entry from the messaging session.
type Contact struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PushName    string `json:"pushname"`
	Number      string `json:"number"`
	IsGroup     bool   `json:"isGroup"`
	IsWAContact bool   `json:"isWAContact"`
}

// DisplayName resolves the best human-readable name for a contact.
func (c *Contact) DisplayName() string {
	switch {
	case c.Name != "":
		return c.Name
	case c.PushName != "":
		return c.PushName
	default:
		return c.Number
	}
}

// ChatDetails is the expanded view of a single chat.
type ChatDetails struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Number       string `json:"number"`
	IsGroup      bool   `json:"isGroup"`
	Participants int    `json:"participants"`
	MessageCount int    `json:"messageCount"`
}

// GroupSummary is a group a contact participates in.
type GroupSummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Participants int    `json:"participants"`
}

// ScheduledMessage is one entry in the deferred-send queue. It is removed
// from the queue before the dispatch attempt, so delivery is at-most-once.
type ScheduledMessage struct {
	ID           string `json:"id"`
	ChatID       string `json:"chatId"`
	Body         string `json:"body"`
	ScheduledFor int64  `json:"scheduledFor"`
	CreatedAt    int64  `json:"createdAt"`
}
