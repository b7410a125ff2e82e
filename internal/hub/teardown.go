package hub

import (
	"context"
	"errors"
	"fmt"

	"github.com/matheus3301/wpphub/internal/conn"
	"github.com/matheus3301/wpphub/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// WipeResult is the outcome of deleting one collection.
type WipeResult struct {
	Name    string `json:"name"`
	Deleted int64  `json:"deleted"`
	Error   string `json:"error,omitempty"`
	Err     error  `json:"-"`
}

// WipeReport collects the per-collection outcomes of a wipe.
type WipeReport struct {
	Wiped   bool         `json:"wiped"`
	Results []WipeResult `json:"results,omitempty"`
}

// Err joins the failures of the wipe, if any.
func (r WipeReport) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Name, res.Err))
		}
	}
	return errors.Join(errs...)
}

// Destroy ends the client's live session, if any. With wipe set it also
// deletes the client row, its messages, chats, contacts and credentials.
// Wipe failures are reported and logged, never returned.
func (h *Hub) Destroy(ctx context.Context, clientID string, wipe bool) WipeReport {
	unlock := h.lockClient(clientID)
	defer unlock()
	return h.destroyLocked(ctx, clientID, wipe)
}

// destroyLocked requires the client lock.
func (h *Hub) destroyLocked(ctx context.Context, clientID string, wipe bool) WipeReport {
	if sess := h.take(clientID); sess != nil {
		h.end(ctx, sess, true)
		sess.closeSlots()
		h.resetAttempts(clientID)
	}
	if !wipe {
		return WipeReport{}
	}
	return h.wipe(ctx, clientID)
}

// end stops a session's connection. The stop flag is raised first so the
// resulting close event is a no-op for the policy.
func (h *Hub) end(ctx context.Context, sess *Session, logout bool) {
	sess.stop.Store(true)
	sess.adapter.End()
	if !logout {
		return
	}
	if err := sess.adapter.Logout(ctx); err != nil {
		sess.logger.Debug("logout skipped", zap.Error(err))
	}
}

func (h *Hub) wipe(ctx context.Context, clientID string) WipeReport {
	steps := []struct {
		name string
		fn   func(context.Context) (int64, error)
	}{
		{"client", func(ctx context.Context) (int64, error) { return h.db.DeleteClient(ctx, clientID) }},
		{"messages", func(ctx context.Context) (int64, error) { return h.db.DeleteMessages(ctx, clientID) }},
		{"chats", func(ctx context.Context) (int64, error) { return h.db.DeleteChats(ctx, clientID) }},
		{"contacts", func(ctx context.Context) (int64, error) { return h.db.DeleteContacts(ctx, clientID) }},
		{"credentials", func(ctx context.Context) (int64, error) { return h.wipeCredentials(ctx, clientID) }},
	}

	report := WipeReport{Wiped: true, Results: make([]WipeResult, len(steps))}
	// Steps are independent: one failing does not cancel the others.
	var g errgroup.Group
	for i, step := range steps {
		g.Go(func() error {
			n, err := step.fn(ctx)
			res := WipeResult{Name: step.name, Deleted: n, Err: err}
			if err != nil {
				res.Error = err.Error()
			}
			report.Results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	logger := h.logger.With(zap.String("client", clientID))
	for _, res := range report.Results {
		if res.Err != nil {
			logger.Error("wipe step failed", zap.String("step", res.Name), zap.Error(res.Err))
			continue
		}
		logger.Debug("wipe step done", zap.String("step", res.Name), zap.Int64("deleted", res.Deleted))
	}
	logger.Info("client wiped")
	h.publish(clientID, "session.wiped", report)
	return report
}

// wipeCredentials drops device keys first, since the dialer locates them
// through a credential the prefix delete removes.
func (h *Hub) wipeCredentials(ctx context.Context, clientID string) (int64, error) {
	var forgetErr error
	if f, ok := h.dialer.(conn.Forgetter); ok {
		forgetErr = f.Forget(ctx, clientID)
	}
	n, err := h.db.DeleteCredentialsWithPrefix(ctx, store.CredentialKey(clientID, ""))
	return n, errors.Join(forgetErr, err)
}
