package model

// State is a message delivery state. Outbound messages progress
// Pending -> Sent -> Delivered -> Read; Failed is absorbing and reachable
// only from Pending or Sent.
type State string

const (
	StatePending   State = "PENDING"
	StateSent      State = "SENT"
	StateDelivered State = "DELIVERED"
	StateRead      State = "READ"
	StateFailed    State = "FAILED"
)

// stateRank orders the normal progression. Failed sits outside the ladder.
var stateRank = map[State]int{
	StatePending:   0,
	StateSent:      1,
	StateDelivered: 2,
	StateRead:      3,
}

// Valid reports whether s is a known delivery state.
func (s State) Valid() bool {
	_, ok := stateRank[s]
	return ok || s == StateFailed
}

// CanAdvance reports whether a transition from s to next is a legal forward
// move. Regressions and transitions out of Failed are rejected.
func (s State) CanAdvance(next State) bool {
	if s == StateFailed {
		return false
	}
	if next == StateFailed {
		return s == StatePending || s == StateSent
	}
	from, ok := stateRank[s]
	if !ok {
		return false
	}
	to, ok := stateRank[next]
	if !ok {
		return false
	}
	return to > from
}
