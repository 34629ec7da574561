package bus

import "time"

// Event is a domain event published on the bus. Kind uses dotted
// namespaces so subscribers can filter by prefix.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds published across the daemon. Session events track the
// upstream connection, message events track individual records, and ai
// events carry generated suggestions.
const (
	KindSessionStatus     = "session.status_changed"
	KindSessionQR         = "session.qr_generated"
	KindSessionAuth       = "session.authenticated"
	KindSessionAuthFailed = "session.auth_failed"
	KindSessionReady      = "session.ready"
	KindSessionGone       = "session.disconnected"

	KindMessageReceived = "message.received"
	KindMessagePending  = "message.pending"
	KindMessageState    = "message.state_changed"
	KindMessageFailed   = "message.send_failed"

	KindAIResponses = "ai.responses"
	KindAIError     = "ai.error"

	// Raw upstream events from the messaging session, consumed by the
	// lifecycle manager before being re-announced as message.* events.
	KindUpstreamMessage = "wa.message"
	KindUpstreamReceipt = "wa.receipt"
)

// Now stamps an event with the current time.
func Now(kind string, payload any) Event {
	return Event{Kind: kind, Timestamp: time.Now(), Payload: payload}
}
