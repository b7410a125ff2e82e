// Package pairing tracks one authentication attempt: its state machine and
// the single-assignment cells its results are delivered through.
package pairing

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/wpphub/internal/bus"
)

// State represents the state of a pairing attempt.
type State string

const (
	Idle               State = "idle"
	Starting           State = "starting"
	QRNeeded           State = "qr_needed"
	PhoneCodeRequested State = "phone_code_requested"
	Paired             State = "paired"
	Expired            State = "expired"
	Failed             State = "failed"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Idle:               {Starting, Expired},
	Starting:           {QRNeeded, PhoneCodeRequested, Paired, Expired, Failed},
	QRNeeded:           {QRNeeded, Paired, Expired, Failed},
	PhoneCodeRequested: {Paired, Expired, Failed},
	Paired:             {},
	Expired:            {},
	Failed:             {},
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == Paired || s == Expired || s == Failed
}

// Machine tracks and enforces pairing state transitions for one client.
type Machine struct {
	mu       sync.RWMutex
	clientID string
	current  State
	bus      *bus.Bus
}

// NewMachine creates a machine in the Idle state.
func NewMachine(clientID string, b *bus.Bus) *Machine {
	return &Machine{
		clientID: clientID,
		current:  Idle,
		bus:      b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid pairing transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil && from != to {
		m.bus.Publish(bus.Event{
			Kind:      "pairing.state_changed",
			ClientID:  m.clientID,
			Timestamp: time.Now(),
			Payload: StateChange{
				ClientID: m.clientID,
				From:     from,
				To:       to,
			},
		})
	}
	return nil
}

// StateChange is the payload for pairing state events.
type StateChange struct {
	ClientID string `json:"clientId"`
	From     State  `json:"from"`
	To       State  `json:"to"`
}
