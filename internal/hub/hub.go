// Package hub owns the live sessions: one protocol connection per tenant
// client, its authentication attempt, and the policy applied when the
// connection closes.
package hub

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/wpphub/internal/bus"
	"github.com/matheus3301/wpphub/internal/conn"
	"github.com/matheus3301/wpphub/internal/dedup"
	"github.com/matheus3301/wpphub/internal/outbox"
	"github.com/matheus3301/wpphub/internal/pairing"
	"github.com/matheus3301/wpphub/internal/reconnect"
	"github.com/matheus3301/wpphub/internal/store"
	intsync "github.com/matheus3301/wpphub/internal/sync"
	"go.uber.org/zap"
)

var (
	// ErrUnknownClient is returned for ids with no client row.
	ErrUnknownClient = errors.New("unknown client")
	// ErrNoSession is returned when a client has no live session.
	ErrNoSession = errors.New("client has no live session")
	// ErrClosed is returned once the hub has shut down.
	ErrClosed = errors.New("hub is shut down")
)

// Store is the persistence the hub drives.
type Store interface {
	GetClient(ctx context.Context, id string) (*store.Client, error)
	ListClientsByStatus(ctx context.Context, statuses ...store.Status) ([]store.Client, error)
	SetClientStatus(ctx context.Context, id string, status store.Status) error
	SetClientStatusIf(ctx context.Context, id string, to store.Status, from ...store.Status) (bool, error)
	MarkClientRunning(ctx context.Context, id, name, phone, avatarURL string, connectedAt time.Time) error
	FindMessage(ctx context.Context, sessionID, id string) (*store.Message, error)

	DeleteClient(ctx context.Context, id string) (int64, error)
	DeleteMessages(ctx context.Context, sessionID string) (int64, error)
	DeleteChats(ctx context.Context, sessionID string) (int64, error)
	DeleteContacts(ctx context.Context, sessionID string) (int64, error)
	DeleteCredentialsWithPrefix(ctx context.Context, prefix string) (int64, error)
}

// Options tunes the hub.
type Options struct {
	Backoff       reconnect.BackoffConfig
	DedupCapacity int
}

// AuthDetails selects how a session authenticates.
type AuthDetails struct {
	Method      conn.Method
	PhoneNumber string
}

// Hub is the session registry.
type Hub struct {
	db     Store
	dialer conn.Dialer
	engine *intsync.Engine
	sender *outbox.Sender
	bus    *bus.Bus
	logger *zap.Logger
	opts   Options

	// ctx scopes event loops and policy actions; cancelled by Shutdown.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	locks sync.Map // client id -> *sync.Mutex

	mu       sync.Mutex
	sessions map[string]*Session
	retries  map[string]*reconnect.Backoff
	closed   bool
}

// New creates an empty hub.
func New(db Store, dialer conn.Dialer, engine *intsync.Engine, sender *outbox.Sender, b *bus.Bus, opts Options, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DedupCapacity <= 0 {
		opts.DedupCapacity = dedup.DefaultCapacity
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		db:       db,
		dialer:   dialer,
		engine:   engine,
		sender:   sender,
		bus:      b,
		logger:   logger,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
		retries:  make(map[string]*reconnect.Backoff),
	}
}

// Get returns the live session for id, or nil.
func (h *Hub) Get(clientID string) *Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessions[clientID]
}

// Sessions lists the ids with a live session.
func (h *Hub) Sessions() []string {
	h.mu.Lock()
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	h.mu.Unlock()
	slices.Sort(ids)
	return ids
}

// Create starts a new session for a client, replacing any live one. It
// returns once the connection is dialing; pairing results arrive on the
// session's slots.
func (h *Hub) Create(ctx context.Context, clientID string, auth AuthDetails) (*Session, error) {
	unlock := h.lockClient(clientID)
	defer unlock()
	return h.create(ctx, clientID, auth)
}

// create requires the client lock.
func (h *Hub) create(ctx context.Context, clientID string, auth AuthDetails) (*Session, error) {
	if h.isClosed() {
		return nil, ErrClosed
	}
	if _, err := h.db.GetClient(ctx, clientID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnknownClient
		}
		return nil, fmt.Errorf("load client: %w", err)
	}
	if auth.Method == "" {
		auth.Method = conn.MethodQR
	}
	logger := h.logger.With(zap.String("client", clientID))

	// The replaced session stays registered until its successor is, so
	// waiters on its slots always find the live attempt.
	old := h.Get(clientID)
	if old != nil {
		logger.Info("replacing live session")
		h.end(ctx, old, true)
		defer func() {
			h.mu.Lock()
			if h.sessions[clientID] == old {
				delete(h.sessions, clientID)
			}
			h.mu.Unlock()
			old.closeSlots()
		}()
	}

	if err := h.db.SetClientStatus(ctx, clientID, store.StatusStarting); err != nil {
		return nil, err
	}

	adapter, err := h.dialer.Dial(ctx, clientID, conn.Options{
		Method:      auth.Method,
		PhoneNumber: auth.PhoneNumber,
		Lookup:      h.lookup(clientID),
	})
	if err != nil {
		h.markFailed(ctx, clientID, logger)
		return nil, fmt.Errorf("dial: %w", err)
	}

	sess := newSession(clientID, auth, adapter, h.bus, h.opts.DedupCapacity, logger)
	sess.transition(pairing.Starting)

	h.mu.Lock()
	h.sessions[clientID] = sess
	h.mu.Unlock()

	h.wg.Add(1)
	go h.run(sess)

	if err := adapter.Start(h.ctx); err != nil {
		logger.Error("failed to start connection", zap.Error(err))
		h.take(clientID)
		h.end(ctx, sess, false)
		sess.closeSlots()
		h.markFailed(ctx, clientID, logger)
		return nil, fmt.Errorf("start: %w", err)
	}

	logger.Info("session created", zap.String("method", string(auth.Method)))
	h.publish(clientID, "session.created", map[string]string{"method": string(auth.Method)})
	return sess, nil
}

// Resume re-creates sessions for clients left RUNNING or STARTING by a
// previous process.
func (h *Hub) Resume(ctx context.Context) error {
	clients, err := h.db.ListClientsByStatus(ctx, store.StatusRunning, store.StatusStarting)
	if err != nil {
		return fmt.Errorf("list clients to resume: %w", err)
	}
	if len(clients) == 0 {
		h.logger.Info("no running clients to resume")
		return nil
	}
	h.resumeAll(ctx, clients)
	return nil
}

// Shutdown ends every live session without touching client status, so the
// next start resumes them, and waits for event loops to drain.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	sessions := make([]*Session, 0, len(h.sessions))
	for id, s := range h.sessions {
		sessions = append(sessions, s)
		delete(h.sessions, id)
	}
	h.mu.Unlock()
	h.cancel()

	for _, s := range sessions {
		h.end(ctx, s, false)
		s.closeSlots()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		h.logger.Info("hub stopped", zap.Int("sessions", len(sessions)))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("hub shutdown: %w", ctx.Err())
	}
}

func (h *Hub) lockClient(clientID string) func() {
	v, _ := h.locks.LoadOrStore(clientID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// take removes and returns the registered session.
func (h *Hub) take(clientID string) *Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.sessions[clientID]
	delete(h.sessions, clientID)
	return s
}

func (h *Hub) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *Hub) markFailed(ctx context.Context, clientID string, logger *zap.Logger) {
	if err := h.db.SetClientStatus(ctx, clientID, store.StatusFailed); err != nil {
		logger.Error("failed to persist status", zap.String("status", string(store.StatusFailed)), zap.Error(err))
	}
}

func (h *Hub) lookup(clientID string) conn.LookupFunc {
	return func(ctx context.Context, id string) ([]byte, error) {
		m, err := h.db.FindMessage(ctx, clientID, id)
		if err != nil {
			return nil, err
		}
		return m.Payload, nil
	}
}

// nextDelay advances the client's backoff and returns the wait before the
// next retry.
func (h *Hub) nextDelay(clientID string) time.Duration {
	h.mu.Lock()
	b, ok := h.retries[clientID]
	if !ok {
		b = reconnect.NewBackoff(h.opts.Backoff)
		h.retries[clientID] = b
	}
	h.mu.Unlock()
	return b.Next()
}

func (h *Hub) resetAttempts(clientID string) {
	h.mu.Lock()
	delete(h.retries, clientID)
	h.mu.Unlock()
}

// spawn runs fn on a tracked goroutine.
func (h *Hub) spawn(fn func()) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		fn()
	}()
}

func (h *Hub) publish(clientID, kind string, payload any) {
	if h.bus == nil {
		return
	}
	h.bus.Publish(bus.Event{Kind: kind, ClientID: clientID, Timestamp: time.Now(), Payload: payload})
}
