package hub

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/matheus3301/wpphub/internal/conn"
	"github.com/matheus3301/wpphub/internal/pairing"
	"github.com/matheus3301/wpphub/internal/store"
	"go.uber.org/zap"
)

// onArtifact handles a pairing artifact. For QR sessions every artifact is
// a fresh QR; for phone sessions the first one triggers the code request.
func (h *Hub) onArtifact(sess *Session, a conn.Artifact) {
	switch sess.Auth.Method {
	case conn.MethodPhone:
		h.requestPhoneCode(sess)
	default:
		sess.setLatestQR(a.Code)
		sess.transition(pairing.QRNeeded)
		if err := h.db.SetClientStatus(h.ctx, sess.ID, store.StatusQRNeeded); err != nil {
			sess.logger.Error("failed to persist status", zap.String("status", string(store.StatusQRNeeded)), zap.Error(err))
		}
		if sess.qr.Resolve(a.Code) {
			sess.logger.Info("qr code ready")
		} else {
			sess.logger.Debug("qr code rotated")
		}
		h.publish(sess.ID, "session.qr", map[string]string{"qr": a.Code})
	}
}

func (h *Hub) requestPhoneCode(sess *Session) {
	if sess.Auth.PhoneNumber == "" || !sess.codeRequested.CompareAndSwap(false, true) {
		return
	}
	sess.transition(pairing.PhoneCodeRequested)

	code, err := sess.adapter.RequestPairingCode(h.ctx, digitsOnly(sess.Auth.PhoneNumber))
	if err != nil {
		sess.logger.Error("failed to request pairing code", zap.Error(err))
		sess.transition(pairing.Failed)
		h.markFailed(h.ctx, sess.ID, sess.logger)
		sess.code.Resolve("")
		h.spawn(func() { h.destroyIfCurrent(sess, false) })
		return
	}

	code = strings.NewReplacer("-", "", " ", "").Replace(code)
	sess.code.Resolve(code)
	sess.logger.Info("pairing code ready")
	h.publish(sess.ID, "session.pairing_code", map[string]string{"code": code})
}

// onOpen finalizes a successful connection.
func (h *Hub) onOpen(sess *Session) {
	ctx := h.ctx
	id := sess.adapter.Identity()

	if err := sess.adapter.SetUnavailable(ctx); err != nil {
		sess.logger.Warn("failed to set presence", zap.Error(err))
	}

	name := id.Name
	if name == "" {
		name = "Client " + id.Phone
	}
	avatar, err := sess.adapter.AvatarURL(ctx, id.JID)
	if err != nil {
		sess.logger.Debug("no profile picture", zap.Error(err))
	}

	if err := h.db.MarkClientRunning(ctx, sess.ID, name, id.Phone, avatar, time.Now()); err != nil {
		sess.logger.Error("failed to persist running client", zap.Error(err))
	}

	sess.transition(pairing.Paired)
	sess.closeSlots()
	h.resetAttempts(sess.ID)

	sess.logger.Info("connection open", zap.String("jid", id.JID), zap.String("name", name))
	h.publish(sess.ID, "session.connected", map[string]string{"phone": id.Phone, "name": name})
}

// AwaitQR waits for the first QR of the client's current attempt. If the
// attempt is replaced by a reconnect, the wait follows the new session.
func (h *Hub) AwaitQR(ctx context.Context, clientID string) (string, error) {
	return h.await(ctx, clientID, (*Session).QR)
}

// AwaitPhoneCode waits for the phone pairing code of the client's current
// attempt. An empty code with a nil error means the request failed.
func (h *Hub) AwaitPhoneCode(ctx context.Context, clientID string) (string, error) {
	return h.await(ctx, clientID, (*Session).PhoneCode)
}

func (h *Hub) await(ctx context.Context, clientID string, slot func(*Session) *pairing.Slot[string]) (string, error) {
	sess := h.Get(clientID)
	for sess != nil {
		v, err := slot(sess).Wait(ctx)
		if !errors.Is(err, pairing.ErrSlotClosed) {
			return v, err
		}
		next := h.Get(clientID)
		if next == sess {
			break
		}
		sess = next
	}
	return "", pairing.ErrSlotClosed
}

// Cancel abandons a pending pairing attempt. The client is marked STOPPED
// only if it had not paired yet.
func (h *Hub) Cancel(ctx context.Context, clientID string) error {
	unlock := h.lockClient(clientID)
	defer unlock()

	h.destroyLocked(ctx, clientID, false)
	changed, err := h.db.SetClientStatusIf(ctx, clientID, store.StatusStopped, store.StatusStarting, store.StatusQRNeeded)
	if err != nil {
		return err
	}
	h.logger.Info("pairing cancelled", zap.String("client", clientID), zap.Bool("stopped", changed))
	return nil
}

// Stop ends the client's session and marks it STOPPED. Credentials are kept
// so the client can be started again without pairing.
func (h *Hub) Stop(ctx context.Context, clientID string) error {
	unlock := h.lockClient(clientID)
	defer unlock()

	h.destroyLocked(ctx, clientID, false)
	if err := h.db.SetClientStatus(ctx, clientID, store.StatusStopped); err != nil {
		return err
	}
	h.logger.Info("client stopped", zap.String("client", clientID))
	h.publish(clientID, "session.stopped", nil)
	return nil
}

// Send delivers a text message through the client's live session.
func (h *Hub) Send(ctx context.Context, clientID, to, text string) (*store.Message, error) {
	sess := h.Get(clientID)
	if sess == nil {
		return nil, ErrNoSession
	}
	return h.sender.Send(ctx, clientID, sess.adapter, to, text)
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}
