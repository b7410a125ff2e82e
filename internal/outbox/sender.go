// Package outbox sends text messages on a session and records them in the
// store as outgoing messages.
package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/wpphub/internal/bus"
	"github.com/matheus3301/wpphub/internal/conn"
	"github.com/matheus3301/wpphub/internal/reply"
	"github.com/matheus3301/wpphub/internal/store"
	"go.uber.org/zap"
)

// TextSender is the part of a connection the sender drives.
type TextSender interface {
	Send(ctx context.Context, to, text string) (conn.Sent, error)
	SetUnavailable(ctx context.Context) error
}

// Writer persists outgoing messages.
type Writer interface {
	UpsertMessage(ctx context.Context, m *store.Message) error
}

// Sender sends and persists replies.
type Sender struct {
	db     Writer
	bus    *bus.Bus
	logger *zap.Logger
}

// NewSender creates a new sender.
func NewSender(db Writer, b *bus.Bus, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		db:     db,
		bus:    b,
		logger: logger,
	}
}

// Send delivers text to the network, stores it as a from-me message keyed by
// the server id, then marks the account unavailable. Presence failures are
// logged only.
func (s *Sender) Send(ctx context.Context, sessionID string, via TextSender, to, text string) (*store.Message, error) {
	logger := s.logger.With(zap.String("client", sessionID), zap.String("to", to))

	sent, err := via.Send(ctx, to, text)
	if err != nil {
		logger.Error("failed to send message", zap.Error(err))
		s.publish(sessionID, "message.send_failed", map[string]string{
			"to":    to,
			"error": err.Error(),
		})
		return nil, err
	}

	ts := sent.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	msg := &store.Message{
		SessionID: sessionID,
		ID:        sent.ID,
		RemoteJID: to,
		FromMe:    true,
		Payload:   sent.Payload,
		Text:      text,
		Timestamp: ts.UnixMilli(),
	}
	if err := s.db.UpsertMessage(ctx, msg); err != nil {
		logger.Error("message sent but not saved", zap.String("msg_id", sent.ID), zap.Error(err))
		return nil, fmt.Errorf("save sent message: %w", err)
	}

	if err := via.SetUnavailable(ctx); err != nil {
		logger.Warn("failed to set presence unavailable", zap.Error(err))
	}

	logger.Info("message sent", zap.String("msg_id", sent.ID))
	s.publish(sessionID, "message.send_ack", map[string]string{
		"to": to,
		"id": sent.ID,
	})
	return msg, nil
}

// Responder binds the sender to one session for the reply handler.
func (s *Sender) Responder(sessionID string, via TextSender) reply.Responder {
	return responder{sender: s, sessionID: sessionID, via: via}
}

type responder struct {
	sender    *Sender
	sessionID string
	via       TextSender
}

func (r responder) Reply(ctx context.Context, to, text string) error {
	_, err := r.sender.Send(ctx, r.sessionID, r.via, to, text)
	return err
}

func (s *Sender) publish(sessionID, kind string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{Kind: kind, ClientID: sessionID, Timestamp: time.Now(), Payload: payload})
}
