// Package conn defines the contract between the session hub and a protocol
// connection. The whatsmeow-backed implementation lives in package wa; tests
// use in-memory fakes.
package conn

import (
	"context"
	"time"
)

// Method selects how a pairing attempt authenticates.
type Method string

const (
	MethodQR    Method = "qr"
	MethodPhone Method = "phone"
)

// Reason is the disconnect reason code carried by a close event.
type Reason int

const (
	ReasonUnknown Reason = iota
	// ReasonClosed is reported when End was called on the adapter.
	ReasonClosed
	ReasonConnectionLost
	ReasonConnectFailed
	ReasonRestartRequired
	ReasonLoggedOut
	ReasonConnectionReplaced
	ReasonTimedOut
	ReasonTempBanned
	ReasonClientOutdated
)

func (r Reason) String() string {
	switch r {
	case ReasonClosed:
		return "closed"
	case ReasonConnectionLost:
		return "connection_lost"
	case ReasonConnectFailed:
		return "connect_failed"
	case ReasonRestartRequired:
		return "restart_required"
	case ReasonLoggedOut:
		return "logged_out"
	case ReasonConnectionReplaced:
		return "connection_replaced"
	case ReasonTimedOut:
		return "timed_out"
	case ReasonTempBanned:
		return "temp_banned"
	case ReasonClientOutdated:
		return "client_outdated"
	default:
		return "unknown"
	}
}

// State is the connection state reported by a ConnectionUpdate.
type State string

const (
	StateOpen  State = "open"
	StateClose State = "close"
)

// Event is implemented by every value delivered on Adapter.Events.
type Event interface {
	isEvent()
}

// Artifact carries a pairing artifact (a QR payload). For phone pairing it
// only signals that the socket is ready for a pairing-code request.
type Artifact struct {
	Code string
}

// ConnectionUpdate reports an open or close transition.
type ConnectionUpdate struct {
	State  State
	Reason Reason
	Err    error
}

// Upsert is an incremental batch of live messages.
type Upsert struct {
	Messages []Message
}

// HistorySet is a bulk history-sync batch.
type HistorySet struct {
	Chats    []Chat
	Contacts []Contact
	Messages []Message
	Progress int
	IsLatest bool
}

// ContactUpdate is a single contact change outside of history sync.
type ContactUpdate struct {
	Contact Contact
}

func (Artifact) isEvent()         {}
func (ConnectionUpdate) isEvent() {}
func (Upsert) isEvent()           {}
func (HistorySet) isEvent()       {}
func (ContactUpdate) isEvent()    {}

// Content holds the text-bearing shapes of a protocol message, in the order
// they are consulted when extracting plain text.
type Content struct {
	Conversation string
	ExtendedText string
	ImageCaption string
	VideoCaption string
}

// Message is a protocol message normalized for ingestion.
type Message struct {
	ID        string
	RemoteJID string
	Sender    string
	FromMe    bool
	Content   Content
	// Payload is the encoded protocol message, stored opaquely.
	Payload   []byte
	Timestamp time.Time
}

// HasContent reports whether the message carried a protocol body at all.
func (m Message) HasContent() bool {
	return len(m.Payload) > 0 || m.Content != (Content{})
}

// Chat is a conversation record from history sync.
type Chat struct {
	ID          string
	Name        string
	UnreadCount int
	Attrs       map[string]any
}

// Contact is an address-book record.
type Contact struct {
	ID     string
	Name   string
	Notify string
	Attrs  map[string]any
}

// Identity describes the account a connection is logged in as.
type Identity struct {
	JID   string
	Phone string
	Name  string
}

// Sent describes a message accepted by the network.
type Sent struct {
	ID        string
	Payload   []byte
	Timestamp time.Time
}

// LookupFunc resolves a previously stored message payload by id.
type LookupFunc func(ctx context.Context, id string) ([]byte, error)

// Options configures a new connection.
type Options struct {
	Method      Method
	PhoneNumber string
	Lookup      LookupFunc
}

// Adapter wraps one protocol connection.
type Adapter interface {
	// Events delivers lifecycle and message events in emission order. The
	// channel is closed after the adapter has been ended and drained.
	Events() <-chan Event
	// Start begins connecting. Connection failures surface as close events.
	Start(ctx context.Context) error
	Send(ctx context.Context, to, text string) (Sent, error)
	RequestPairingCode(ctx context.Context, phone string) (string, error)
	Identity() Identity
	AvatarURL(ctx context.Context, jid string) (string, error)
	SetUnavailable(ctx context.Context) error
	// End closes the connection and reports a ReasonClosed close event.
	End()
	Logout(ctx context.Context) error
}

// Dialer creates adapters for clients.
type Dialer interface {
	Dial(ctx context.Context, clientID string, opts Options) (Adapter, error)
}

// Forgetter is implemented by dialers that keep per-client key material
// outside the hub's credential rows.
type Forgetter interface {
	Forget(ctx context.Context, clientID string) error
}
