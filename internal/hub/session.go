package hub

import (
	"sync"
	"sync/atomic"

	"github.com/matheus3301/wpphub/internal/bus"
	"github.com/matheus3301/wpphub/internal/conn"
	"github.com/matheus3301/wpphub/internal/dedup"
	"github.com/matheus3301/wpphub/internal/pairing"
	"go.uber.org/zap"
)

// Session is one live connection for a client.
type Session struct {
	ID   string
	Auth AuthDetails

	adapter conn.Adapter
	machine *pairing.Machine
	cache   *dedup.Cache
	logger  *zap.Logger

	// stop is set before a deliberate End so the close it causes is not
	// mistaken for a failure.
	stop          atomic.Bool
	codeRequested atomic.Bool

	qr   *pairing.Slot[string]
	code *pairing.Slot[string]

	mu       sync.Mutex
	latestQR string

	done chan struct{}
}

func newSession(clientID string, auth AuthDetails, adapter conn.Adapter, b *bus.Bus, dedupCapacity int, logger *zap.Logger) *Session {
	return &Session{
		ID:      clientID,
		Auth:    auth,
		adapter: adapter,
		machine: pairing.NewMachine(clientID, b),
		cache:   dedup.New(dedupCapacity),
		logger:  logger,
		qr:      pairing.NewSlot[string](),
		code:    pairing.NewSlot[string](),
		done:    make(chan struct{}),
	}
}

// QR holds the first QR payload of the attempt.
func (s *Session) QR() *pairing.Slot[string] { return s.qr }

// PhoneCode holds the phone pairing code. An empty value means the request
// failed.
func (s *Session) PhoneCode() *pairing.Slot[string] { return s.code }

// LatestQR returns the most recent QR payload, which rotates while the
// attempt is pending.
func (s *Session) LatestQR() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latestQR
}

func (s *Session) setLatestQR(code string) {
	s.mu.Lock()
	s.latestQR = code
	s.mu.Unlock()
}

// transition moves the pairing machine. A rejected transition is an
// out-of-order adapter event and is only logged.
func (s *Session) transition(to pairing.State) {
	if err := s.machine.Transition(to); err != nil {
		s.logger.Debug("pairing transition ignored", zap.String("to", string(to)), zap.Error(err))
	}
}

// State returns the pairing state of the attempt.
func (s *Session) State() pairing.State { return s.machine.Current() }

// StopRequested reports whether the session was ended on purpose.
func (s *Session) StopRequested() bool { return s.stop.Load() }

// Done is closed when the event loop exits.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) closeSlots() {
	s.qr.Close()
	s.code.Close()
}
