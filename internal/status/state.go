package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/involvex/warelay/internal/bus"
)

// State represents the upstream session's connection state as seen by
// connected clients.
type State string

const (
	Booting      State = "BOOTING"
	AuthRequired State = "AUTH_REQUIRED"
	Connecting   State = "CONNECTING"
	Ready        State = "READY"
	Reconnecting State = "RECONNECTING"
	Error        State = "ERROR"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:      {AuthRequired, Connecting, Error},
	AuthRequired: {Connecting, Ready, Error},
	Connecting:   {Ready, AuthRequired, Reconnecting, Error},
	Ready:        {Reconnecting, AuthRequired, Error},
	Reconnecting: {Connecting, Ready, AuthRequired, Error},
	Error:        {Booting},
}

// Machine tracks and enforces connection state transitions, announcing
// each change on the bus.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a state machine starting in Booting.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{current: Booting, bus: b}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// IsReady reports whether the session can serve reads and sends.
func (m *Machine) IsReady() bool {
	return m.Current() == Ready
}

// Transition attempts to move to a new state. Returns error if the
// transition is invalid; a self-transition is a silent no-op.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if to == m.current {
		return nil
	}
	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Now(bus.KindSessionStatus, Change{From: from, To: to}))
	}
	return nil
}

// Change is the payload for status change events.
type Change struct {
	From State `json:"from"`
	To   State `json:"to"`
}
