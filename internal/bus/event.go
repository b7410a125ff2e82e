package bus

import "time"

// Event is a hub event: session lifecycle, pairing progress, ingestion and
// send outcomes. Kind is dot-namespaced, e.g. "session.connected". ClientID
// is empty for daemon-wide events.
type Event struct {
	Kind      string    `json:"kind"`
	ClientID  string    `json:"clientId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}
