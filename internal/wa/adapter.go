// Package wa implements the connection contract on top of whatsmeow.
package wa

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matheus3301/wpphub/internal/conn"
	"github.com/matheus3301/wpphub/internal/store"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

const pairingClientName = "Chrome (Linux)"

// Adapter wraps one whatsmeow client and delivers its events through a
// mailbox.
type Adapter struct {
	clientID string
	client   *whatsmeow.Client
	creds    Credentials
	opts     conn.Options
	logger   *zap.Logger

	mailbox   *conn.Mailbox
	closeOnce sync.Once
	ended     atomic.Bool
	handlerID uint32
	stopQR    context.CancelFunc
}

var _ conn.Adapter = (*Adapter)(nil)

func newAdapter(clientID string, client *whatsmeow.Client, creds Credentials, opts conn.Options, logger *zap.Logger) *Adapter {
	a := &Adapter{
		clientID: clientID,
		client:   client,
		creds:    creds,
		opts:     opts,
		logger:   logger,
		mailbox:  conn.NewMailbox(),
		stopQR:   func() {},
	}
	client.EnableAutoReconnect = false
	if opts.Lookup != nil {
		client.GetMessageForRetry = a.lookupForRetry
	}
	a.handlerID = client.AddEventHandler(a.handle)
	return a
}

// Events delivers the translated event stream.
func (a *Adapter) Events() <-chan conn.Event {
	return a.mailbox.Events()
}

// Start connects in the background. Unpaired devices get a QR channel first,
// which also gates phone pairing.
func (a *Adapter) Start(ctx context.Context) error {
	if a.client.Store.ID == nil {
		qrCtx, cancel := context.WithCancel(context.Background())
		qrChan, err := a.client.GetQRChannel(qrCtx)
		if err != nil {
			cancel()
			return fmt.Errorf("get QR channel: %w", err)
		}
		a.stopQR = cancel
		go a.watchQR(qrChan)
	}

	go func() {
		a.logger.Info("connecting to WhatsApp")
		if err := a.client.Connect(); err != nil {
			a.pushClose(conn.ReasonConnectFailed, fmt.Errorf("connect: %w", err))
		}
	}()
	return nil
}

func (a *Adapter) watchQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		if a.ended.Load() {
			return
		}
		evt := translateQR(item)
		if evt == nil {
			continue
		}
		a.dispatch(evt)
	}
}

func (a *Adapter) handle(raw any) {
	if a.ended.Load() {
		return
	}
	switch evt := raw.(type) {
	case *events.PairSuccess:
		a.rememberDevice(evt.ID)
		return
	case *events.StreamError:
		a.logger.Warn("stream error", zap.String("code", evt.Code))
		return
	case *events.KeepAliveTimeout:
		a.logger.Debug("keepalive timeout", zap.Int("error_count", evt.ErrorCount))
		return
	}
	if evt := translate(raw); evt != nil {
		a.dispatch(evt)
	}
}

func (a *Adapter) dispatch(evt conn.Event) {
	if cu, ok := evt.(conn.ConnectionUpdate); ok && cu.State == conn.StateClose {
		a.pushClose(cu.Reason, cu.Err)
		return
	}
	a.mailbox.Push(evt)
}

// pushClose forwards the first close event only and seals the mailbox.
func (a *Adapter) pushClose(reason conn.Reason, err error) {
	a.closeOnce.Do(func() {
		a.mailbox.Push(closeEvent(reason, err))
		a.mailbox.Close()
	})
}

func (a *Adapter) rememberDevice(jid types.JID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	key := store.CredentialKey(a.clientID, deviceCredential)
	if err := a.creds.PutCredential(ctx, key, []byte(jid.String())); err != nil {
		a.logger.Error("failed to persist device link", zap.Error(err))
		return
	}
	a.logger.Info("paired", zap.String("jid", jid.String()))
}

func (a *Adapter) lookupForRetry(requester, to types.JID, id types.MessageID) *waE2E.Message {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	payload, err := a.opts.Lookup(ctx, id)
	if err != nil || len(payload) == 0 {
		a.logger.Debug("retry lookup missed", zap.String("message_id", id), zap.Error(err))
		return nil
	}
	msg, err := decodePayload(payload)
	if err != nil {
		a.logger.Warn("stored payload is not decodable", zap.String("message_id", id), zap.Error(err))
		return nil
	}
	return msg
}

// Send sends a plain text message.
func (a *Adapter) Send(ctx context.Context, to, text string) (conn.Sent, error) {
	jid, err := types.ParseJID(to)
	if err != nil {
		return conn.Sent{}, fmt.Errorf("parse JID: %w", err)
	}
	msg := &waE2E.Message{Conversation: proto.String(text)}
	resp, err := a.client.SendMessage(ctx, jid, msg)
	if err != nil {
		return conn.Sent{}, fmt.Errorf("send message: %w", err)
	}
	return conn.Sent{ID: resp.ID, Payload: encodePayload(msg), Timestamp: resp.Timestamp}, nil
}

// RequestPairingCode asks the server for a phone pairing code.
func (a *Adapter) RequestPairingCode(ctx context.Context, phone string) (string, error) {
	code, err := a.client.PairPhone(ctx, phone, true, whatsmeow.PairClientChrome, pairingClientName)
	if err != nil {
		return "", fmt.Errorf("pair phone: %w", err)
	}
	return code, nil
}

// Identity returns the logged-in account, or a zero value before pairing.
func (a *Adapter) Identity() conn.Identity {
	id := a.client.Store.ID
	if id == nil {
		return conn.Identity{}
	}
	return conn.Identity{
		JID:   id.ToNonAD().String(),
		Phone: id.User,
		Name:  a.client.Store.PushName,
	}
}

// AvatarURL returns the profile picture URL for jid, empty if none is set.
func (a *Adapter) AvatarURL(ctx context.Context, jid string) (string, error) {
	parsed, err := types.ParseJID(jid)
	if err != nil {
		return "", fmt.Errorf("parse JID: %w", err)
	}
	info, err := a.client.GetProfilePictureInfo(ctx, parsed, &whatsmeow.GetProfilePictureParams{})
	if err != nil {
		return "", fmt.Errorf("profile picture: %w", err)
	}
	if info == nil {
		return "", nil
	}
	return info.URL, nil
}

// SetUnavailable marks the account as offline so the phone keeps
// receiving notifications.
func (a *Adapter) SetUnavailable(ctx context.Context) error {
	return a.client.SendPresence(ctx, types.PresenceUnavailable)
}

// End closes the connection. The event stream reports ReasonClosed unless a
// close was already delivered.
func (a *Adapter) End() {
	if !a.ended.CompareAndSwap(false, true) {
		return
	}
	a.client.RemoveEventHandler(a.handlerID)
	a.stopQR()
	a.client.Disconnect()
	a.pushClose(conn.ReasonClosed, nil)
}

// Logout unlinks the device from the account.
func (a *Adapter) Logout(ctx context.Context) error {
	if !a.client.IsConnected() {
		return errors.New("logout: not connected")
	}
	return a.client.Logout(ctx)
}
