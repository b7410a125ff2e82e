package store

import "encoding/json"

// Status is the lifecycle status of a tenant client.
type Status string

const (
	StatusPendingSetup Status = "PENDING_SETUP"
	StatusStarting     Status = "STARTING"
	StatusQRNeeded     Status = "QR_NEEDED"
	StatusRunning      Status = "RUNNING"
	StatusStopping     Status = "STOPPING"
	StatusStopped      Status = "STOPPED"
	StatusFailed       Status = "FAILED"
)

// Client is one tenant account.
type Client struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Phone       string `json:"phone,omitempty"`
	ConnectedAt int64  `json:"connectedAt,omitempty"`
	Status      Status `json:"status"`
	CreatedAt   int64  `json:"createdAt"`
	UpdatedAt   int64  `json:"updatedAt"`
}

// Message is a stored conversation message, keyed by (SessionID, ID).
type Message struct {
	SessionID string
	ID        string
	RemoteJID string
	Sender    string
	FromMe    bool
	Payload   []byte
	Text      string
	Timestamp int64
}

// Chat is a synced chat. Attrs carries protocol fields the hub does not model.
type Chat struct {
	SessionID   string
	ID          string
	Name        string
	UnreadCount int
	Attrs       json.RawMessage
}

// Contact is a synced contact.
type Contact struct {
	SessionID string
	ID        string
	Name      string
	Notify    string
	Attrs     json.RawMessage
}

// attrsOrEmpty keeps the attrs column valid JSON.
func attrsOrEmpty(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}
