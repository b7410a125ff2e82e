package hub

import (
	"context"
	"time"

	"github.com/matheus3301/wpphub/internal/conn"
	"github.com/matheus3301/wpphub/internal/pairing"
	"github.com/matheus3301/wpphub/internal/reconnect"
	"github.com/matheus3301/wpphub/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// resumeConcurrency bounds parallel dials at startup.
const resumeConcurrency = 4

// run consumes one session's events until the adapter closes its channel.
func (h *Hub) run(sess *Session) {
	defer h.wg.Done()
	defer close(sess.done)

	for evt := range sess.adapter.Events() {
		switch e := evt.(type) {
		case conn.Artifact:
			h.onArtifact(sess, e)
		case conn.ConnectionUpdate:
			if e.State == conn.StateOpen {
				h.onOpen(sess)
				continue
			}
			h.onClose(sess, e)
		case conn.Upsert:
			res := h.engine.IngestUpsert(h.ctx, sess.ID, sess.cache, e.Messages, h.sender.Responder(sess.ID, sess.adapter))
			sess.logger.Debug("upsert batch",
				zap.Int("stored", res.Stored),
				zap.Int("duplicates", res.Duplicates),
				zap.Int("failed", res.Failed),
				zap.Int("dispatched", res.Dispatched))
		case conn.HistorySet:
			// Failures are logged per collection by the engine.
			_ = h.engine.IngestHistory(h.ctx, sess.ID, e)
		case conn.ContactUpdate:
			if err := h.engine.IngestContact(h.ctx, sess.ID, e.Contact); err != nil {
				sess.logger.Error("failed to save contact", zap.String("contact", e.Contact.ID), zap.Error(err))
			}
		}
	}
}

func (h *Hub) onClose(sess *Session, e conn.ConnectionUpdate) {
	action := reconnect.Decide(reconnect.Signal{Reason: e.Reason, StopRequested: sess.stop.Load()})

	fields := []zap.Field{zap.Stringer("reason", e.Reason), zap.Stringer("action", action)}
	if e.Err != nil {
		fields = append(fields, zap.Error(e.Err))
	}
	sess.logger.Info("connection closed", fields...)

	if !sess.machine.Current().Terminal() {
		sess.transition(pairing.Expired)
	}
	h.publish(sess.ID, "session.closed", map[string]string{
		"reason": e.Reason.String(),
		"action": action.String(),
	})

	if action == reconnect.Noop {
		return
	}
	h.spawn(func() { h.apply(sess, action, e.Reason) })
}

// apply carries out a policy action for a closed session. Actions for a
// session that is no longer the registered one are dropped, except that a
// logout still wipes a client left without any session.
func (h *Hub) apply(sess *Session, action reconnect.Action, reason conn.Reason) {
	switch action {
	case reconnect.Retry:
		h.retry(sess, reason)
	case reconnect.Destroy:
		h.destroyIfCurrent(sess, false)
	case reconnect.DestroyAndWipe:
		h.destroyIfCurrent(sess, true)
	}
}

func (h *Hub) retry(sess *Session, reason conn.Reason) {
	var delay time.Duration
	if !reconnect.Immediate(reason) {
		delay = h.nextDelay(sess.ID)
	}
	if delay > 0 {
		sess.logger.Info("reconnecting", zap.Duration("delay", delay))
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-h.ctx.Done():
			return
		}
	}

	unlock := h.lockClient(sess.ID)
	defer unlock()
	if h.Get(sess.ID) != sess {
		sess.logger.Debug("skipping reconnect for replaced session")
		return
	}
	if _, err := h.create(h.ctx, sess.ID, sess.Auth); err != nil {
		sess.logger.Error("reconnect failed", zap.Error(err))
	}
}

func (h *Hub) destroyIfCurrent(sess *Session, wipe bool) {
	if h.ctx.Err() != nil {
		return
	}
	unlock := h.lockClient(sess.ID)
	defer unlock()

	cur := h.Get(sess.ID)
	if cur != sess && !(wipe && cur == nil) {
		sess.logger.Debug("skipping teardown for replaced session")
		return
	}
	h.destroyLocked(h.ctx, sess.ID, wipe)
}

func (h *Hub) resumeAll(ctx context.Context, clients []store.Client) {
	var g errgroup.Group
	g.SetLimit(resumeConcurrency)
	for _, c := range clients {
		g.Go(func() error {
			if _, err := h.Create(ctx, c.ID, AuthDetails{Method: conn.MethodQR}); err != nil {
				h.logger.Error("failed to resume client", zap.String("client", c.ID), zap.Error(err))
				return nil
			}
			h.logger.Info("client resumed", zap.String("client", c.ID), zap.String("previous_status", string(c.Status)))
			return nil
		})
	}
	_ = g.Wait()
}
