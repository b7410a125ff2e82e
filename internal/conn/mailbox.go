package conn

import "sync"

// Mailbox is an unbounded FIFO of events. Push never blocks, so protocol
// callbacks and teardown can enqueue while the consumer is busy.
type Mailbox struct {
	mu     sync.Mutex
	queue  []Event
	closed bool
	wake   chan struct{}
	out    chan Event
}

// NewMailbox creates a mailbox and starts its delivery goroutine.
func NewMailbox() *Mailbox {
	m := &Mailbox{
		wake: make(chan struct{}, 1),
		out:  make(chan Event),
	}
	go m.pump()
	return m
}

// Events returns the delivery channel. It is closed once the mailbox is
// closed and every queued event has been delivered.
func (m *Mailbox) Events() <-chan Event {
	return m.out
}

// Push enqueues an event. Returns false if the mailbox is already closed.
func (m *Mailbox) Push(evt Event) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, evt)
	m.mu.Unlock()
	m.signal()
	return true
}

// Close stops accepting events. Queued events are still delivered.
func (m *Mailbox) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()
	m.signal()
}

func (m *Mailbox) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Mailbox) pump() {
	defer close(m.out)
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			closed := m.closed
			m.mu.Unlock()
			if closed {
				return
			}
			<-m.wake
			continue
		}
		evt := m.queue[0]
		m.queue[0] = nil
		m.queue = m.queue[1:]
		m.mu.Unlock()
		m.out <- evt
	}
}
