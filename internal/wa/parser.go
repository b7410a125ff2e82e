package wa

import (
	"strings"
	"time"

	"github.com/matheus3301/wpphub/internal/conn"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waHistorySync"
	"go.mau.fi/whatsmeow/proto/waWeb"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

// NormalizeJID strips the device suffix from a JID string so that the same
// contact maps to one key regardless of which device sent the message.
func NormalizeJID(jid string) string {
	if jid == "" {
		return ""
	}
	parsed, err := types.ParseJID(jid)
	if err != nil || parsed.Server == "" {
		return jid
	}
	return parsed.ToNonAD().String()
}

// ParseLiveMessage normalizes a live whatsmeow message event.
func ParseLiveMessage(evt *events.Message) conn.Message {
	return conn.Message{
		ID:        evt.Info.ID,
		RemoteJID: evt.Info.Chat.ToNonAD().String(),
		Sender:    evt.Info.Sender.ToNonAD().String(),
		FromMe:    evt.Info.IsFromMe,
		Content:   extractContent(evt.Message),
		Payload:   encodePayload(evt.Message),
		Timestamp: evt.Info.Timestamp,
	}
}

// ParseHistory converts a history sync blob into chats, contacts and
// messages keyed the same way live events are.
func ParseHistory(data *waHistorySync.HistorySync) conn.HistorySet {
	set := conn.HistorySet{
		Progress: int(data.GetProgress()),
		IsLatest: data.GetProgress() >= 100,
	}

	for _, conv := range data.GetConversations() {
		chatJID := NormalizeJID(conv.GetID())
		if chatJID == "" {
			continue
		}
		name := conv.GetName()
		if name == "" {
			name = conv.GetDisplayName()
		}
		set.Chats = append(set.Chats, conn.Chat{
			ID:          chatJID,
			Name:        name,
			UnreadCount: int(conv.GetUnreadCount()),
			Attrs: map[string]any{
				"archived":              conv.GetArchived(),
				"pinned":                conv.GetPinned(),
				"muteEndTime":           conv.GetMuteEndTime(),
				"ephemeralExpiration":   conv.GetEphemeralExpiration(),
				"conversationTimestamp": conv.GetConversationTimestamp(),
			},
		})
		if name != "" && isUserJID(chatJID) {
			set.Contacts = append(set.Contacts, conn.Contact{ID: chatJID, Name: name})
		}

		for _, hm := range conv.GetMessages() {
			if m, ok := parseHistoryMessage(chatJID, hm.GetMessage()); ok {
				set.Messages = append(set.Messages, m)
			}
		}
	}

	for _, pn := range data.GetPushnames() {
		jid := NormalizeJID(pn.GetID())
		if jid == "" || pn.GetPushname() == "" {
			continue
		}
		set.Contacts = append(set.Contacts, conn.Contact{ID: jid, Notify: pn.GetPushname()})
	}
	return set
}

func parseHistoryMessage(chatJID string, wmi *waWeb.WebMessageInfo) (conn.Message, bool) {
	if wmi == nil || wmi.GetKey().GetID() == "" {
		return conn.Message{}, false
	}
	key := wmi.GetKey()

	sender := key.GetParticipant()
	if sender == "" {
		sender = wmi.GetParticipant()
	}
	if sender == "" && !key.GetFromMe() {
		sender = chatJID
	}

	return conn.Message{
		ID:        key.GetID(),
		RemoteJID: chatJID,
		Sender:    NormalizeJID(sender),
		FromMe:    key.GetFromMe(),
		Content:   extractContent(wmi.GetMessage()),
		Payload:   encodePayload(wmi.GetMessage()),
		Timestamp: time.Unix(int64(wmi.GetMessageTimestamp()), 0),
	}, true
}

func extractContent(msg *waE2E.Message) conn.Content {
	if msg == nil {
		return conn.Content{}
	}
	return conn.Content{
		Conversation: msg.GetConversation(),
		ExtendedText: msg.GetExtendedTextMessage().GetText(),
		ImageCaption: msg.GetImageMessage().GetCaption(),
		VideoCaption: msg.GetVideoMessage().GetCaption(),
	}
}

func encodePayload(msg *waE2E.Message) []byte {
	if msg == nil {
		return nil
	}
	payload, err := proto.Marshal(msg)
	if err != nil {
		return nil
	}
	return payload
}

// decodePayload restores a stored message for retry receipts.
func decodePayload(payload []byte) (*waE2E.Message, error) {
	var msg waE2E.Message
	if err := proto.Unmarshal(payload, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func isUserJID(jid string) bool {
	return strings.HasSuffix(jid, "@"+types.DefaultUserServer)
}
