// Package sync ingests connection events into the store: live message
// batches with per-session dedup and reply dispatch, and bulk history sets.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/wpphub/internal/bus"
	"github.com/matheus3301/wpphub/internal/conn"
	"github.com/matheus3301/wpphub/internal/dedup"
	"github.com/matheus3301/wpphub/internal/reply"
	"github.com/matheus3301/wpphub/internal/store"
	"go.uber.org/zap"
)

// Gateway is the subset of the store the engine writes through.
type Gateway interface {
	UpsertMessage(ctx context.Context, m *store.Message) error
	BulkUpsertMessages(ctx context.Context, msgs []store.Message) error
	BulkUpsertChats(ctx context.Context, chats []store.Chat) error
	BulkUpsertContacts(ctx context.Context, contacts []store.Contact) error
	UpsertContact(ctx context.Context, c *store.Contact) error
}

// Engine handles idempotent ingestion of messages into the store.
type Engine struct {
	db      Gateway
	bus     *bus.Bus
	handler reply.Handler
	logger  *zap.Logger
}

// NewEngine creates a new sync engine. A nil handler disables replies.
func NewEngine(db Gateway, b *bus.Bus, handler reply.Handler, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if handler == nil {
		handler = reply.Nop{}
	}
	return &Engine{
		db:      db,
		bus:     b,
		handler: handler,
		logger:  logger,
	}
}

// UpsertResult counts what happened to one batch.
type UpsertResult struct {
	Stored     int
	Duplicates int
	Failed     int
	Dispatched int
}

// IngestUpsert processes a live batch. Each message is checked against the
// session's dedup cache, persisted, and, when it is an inbound direct text,
// handed to the reply handler. A duplicate or a failed write skips only
// that message.
func (e *Engine) IngestUpsert(ctx context.Context, sessionID string, cache *dedup.Cache, msgs []conn.Message, responder reply.Responder) UpsertResult {
	var res UpsertResult
	logger := e.logger.With(zap.String("client", sessionID))

	for _, m := range msgs {
		if m.ID == "" {
			continue
		}
		if cache.Seen(m.ID) {
			res.Duplicates++
			logger.Debug("duplicate message skipped", zap.String("msg_id", m.ID))
			continue
		}

		text := ExtractText(m.Content)
		if m.HasContent() && m.RemoteJID != "" {
			if err := e.db.UpsertMessage(ctx, toStoreMessage(sessionID, m, text)); err != nil {
				res.Failed++
				if store.IsConstraint(err) {
					logger.Debug("message write raced", zap.String("msg_id", m.ID), zap.Error(err))
				} else {
					// Not stored: a redelivery must be processed again.
					cache.Forget(m.ID)
					logger.Error("failed to save message", zap.String("msg_id", m.ID), zap.Error(err))
				}
				continue
			}
			res.Stored++
			e.publish(sessionID, "message.upserted", map[string]any{
				"id":        m.ID,
				"remoteJid": m.RemoteJID,
				"fromMe":    m.FromMe,
			})
		}

		if !shouldDispatch(m, text) {
			continue
		}
		logger.Info("processing message", zap.String("from", m.RemoteJID))
		req := reply.Request{SessionID: sessionID, From: m.RemoteJID, Text: text}
		if err := e.handler.Handle(ctx, req, responder); err != nil {
			logger.Error("reply handler failed", zap.String("from", m.RemoteJID), zap.Error(err))
			continue
		}
		res.Dispatched++
	}
	return res
}

// IngestHistory stores a history set. Chats, contacts and messages are
// written in independent transactions; a failure in one does not roll back
// the others. History bypasses the dedup cache.
func (e *Engine) IngestHistory(ctx context.Context, sessionID string, set conn.HistorySet) error {
	logger := e.logger.With(zap.String("client", sessionID))
	logger.Info("history set received",
		zap.Int("progress", set.Progress),
		zap.Bool("latest", set.IsLatest),
		zap.Int("chats", len(set.Chats)),
		zap.Int("contacts", len(set.Contacts)),
		zap.Int("messages", len(set.Messages)))

	var errs []error

	chats := make([]store.Chat, 0, len(set.Chats))
	for _, c := range set.Chats {
		chats = append(chats, store.Chat{
			SessionID:   sessionID,
			ID:          c.ID,
			Name:        c.Name,
			UnreadCount: c.UnreadCount,
			Attrs:       encodeAttrs(c.Attrs),
		})
	}
	if err := e.db.BulkUpsertChats(ctx, chats); err != nil {
		logger.Error("failed to save history chats", zap.Error(err))
		errs = append(errs, fmt.Errorf("chats: %w", err))
	}

	contacts := make([]store.Contact, 0, len(set.Contacts))
	for _, c := range set.Contacts {
		contacts = append(contacts, toStoreContact(sessionID, c))
	}
	if err := e.db.BulkUpsertContacts(ctx, contacts); err != nil {
		logger.Error("failed to save history contacts", zap.Error(err))
		errs = append(errs, fmt.Errorf("contacts: %w", err))
	}

	msgs := make([]store.Message, 0, len(set.Messages))
	for _, m := range set.Messages {
		msgs = append(msgs, *toStoreMessage(sessionID, m, ExtractText(m.Content)))
	}
	if err := e.db.BulkUpsertMessages(ctx, msgs); err != nil {
		logger.Error("failed to save history messages", zap.Error(err))
		errs = append(errs, fmt.Errorf("messages: %w", err))
	}

	e.publish(sessionID, "sync.history_set", map[string]any{
		"progress": set.Progress,
		"chats":    len(chats),
		"contacts": len(contacts),
		"messages": len(msgs),
	})

	if len(errs) > 0 {
		return fmt.Errorf("history set partially stored: %v", errs)
	}
	return nil
}

// IngestContact stores a single contact update.
func (e *Engine) IngestContact(ctx context.Context, sessionID string, c conn.Contact) error {
	if c.ID == "" {
		return nil
	}
	contact := toStoreContact(sessionID, c)
	return e.db.UpsertContact(ctx, &contact)
}

// ExtractText returns the first non-empty text in fallback order:
// conversation, extended text, image caption, video caption.
func ExtractText(c conn.Content) string {
	for _, s := range []string{c.Conversation, c.ExtendedText, c.ImageCaption, c.VideoCaption} {
		if s != "" {
			return s
		}
	}
	return ""
}

func shouldDispatch(m conn.Message, text string) bool {
	if m.FromMe || text == "" || m.RemoteJID == "" {
		return false
	}
	return !strings.Contains(m.RemoteJID, "@broadcast") && !strings.Contains(m.RemoteJID, "@g.us")
}

func toStoreMessage(sessionID string, m conn.Message, text string) *store.Message {
	return &store.Message{
		SessionID: sessionID,
		ID:        m.ID,
		RemoteJID: m.RemoteJID,
		Sender:    m.Sender,
		FromMe:    m.FromMe,
		Payload:   m.Payload,
		Text:      text,
		Timestamp: unixMilli(m.Timestamp),
	}
}

func toStoreContact(sessionID string, c conn.Contact) store.Contact {
	return store.Contact{
		SessionID: sessionID,
		ID:        c.ID,
		Name:      c.Name,
		Notify:    c.Notify,
		Attrs:     encodeAttrs(c.Attrs),
	}
}

func encodeAttrs(attrs map[string]any) json.RawMessage {
	if len(attrs) == 0 {
		return nil
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return nil
	}
	return raw
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func (e *Engine) publish(sessionID, kind string, payload any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(bus.Event{Kind: kind, ClientID: sessionID, Timestamp: time.Now(), Payload: payload})
}
