package wa

import (
	"errors"
	"fmt"

	"github.com/matheus3301/wpphub/internal/conn"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types/events"
)

// streamRestartRequired is the stream error code asking the client to
// reconnect with the same credentials.
const streamRestartRequired = "515"

func closeEvent(reason conn.Reason, err error) conn.ConnectionUpdate {
	return conn.ConnectionUpdate{State: conn.StateClose, Reason: reason, Err: err}
}

// translate maps a whatsmeow event to the connection contract. It returns
// nil for events the hub does not consume.
func translate(raw any) conn.Event {
	switch evt := raw.(type) {
	case *events.Connected:
		return conn.ConnectionUpdate{State: conn.StateOpen}
	case *events.LoggedOut:
		return closeEvent(conn.ReasonLoggedOut, fmt.Errorf("logged out: %s", evt.Reason.String()))
	case *events.StreamReplaced:
		return closeEvent(conn.ReasonConnectionReplaced, errors.New("stream replaced"))
	case *events.Disconnected:
		return closeEvent(conn.ReasonConnectionLost, nil)
	case *events.StreamError:
		// whatsmeow usually reconnects on 515 itself; other codes are
		// followed by Disconnected.
		if evt.Code != streamRestartRequired {
			return nil
		}
		return closeEvent(conn.ReasonRestartRequired, errors.New("stream error 515: restart required"))
	case *events.TemporaryBan:
		return closeEvent(conn.ReasonTempBanned, errors.New(evt.String()))
	case *events.ClientOutdated:
		return closeEvent(conn.ReasonClientOutdated, errors.New("client outdated"))
	case *events.ConnectFailure:
		return closeEvent(conn.ReasonConnectFailed, fmt.Errorf("connect failure %d: %s", evt.Reason, evt.Message))
	case *events.Message:
		return conn.Upsert{Messages: []conn.Message{ParseLiveMessage(evt)}}
	case *events.HistorySync:
		if evt.Data == nil {
			return nil
		}
		return ParseHistory(evt.Data)
	case *events.PushName:
		if evt.NewPushName == "" {
			return nil
		}
		return conn.ContactUpdate{Contact: conn.Contact{
			ID:     evt.JID.ToNonAD().String(),
			Notify: evt.NewPushName,
		}}
	case *events.Contact:
		if evt.Action == nil {
			return nil
		}
		return conn.ContactUpdate{Contact: conn.Contact{
			ID:    evt.JID.ToNonAD().String(),
			Name:  evt.Action.GetFullName(),
			Attrs: map[string]any{"firstName": evt.Action.GetFirstName()},
		}}
	}
	return nil
}

// translateQR maps a QR channel item. Successful pairing is reported by the
// Connected event, so "success" yields nothing.
func translateQR(item whatsmeow.QRChannelItem) conn.Event {
	switch item.Event {
	case "code":
		return conn.Artifact{Code: item.Code}
	case "success":
		return nil
	case "timeout":
		return closeEvent(conn.ReasonTimedOut, errors.New("pairing artifacts expired"))
	case "err-client-outdated":
		return closeEvent(conn.ReasonClientOutdated, errors.New("client outdated"))
	default:
		err := item.Error
		if err == nil {
			err = fmt.Errorf("pairing failed: %s", item.Event)
		}
		return closeEvent(conn.ReasonConnectFailed, err)
	}
}
