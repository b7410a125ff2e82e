package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/wpphub/internal/conn"
)

type fakeAdapter struct {
	clientID string
	opts     conn.Options
	mb       *conn.Mailbox
	identity conn.Identity
	code     string
	codeErr  error

	mu         sync.Mutex
	started    bool
	ended      int
	logouts    int
	pairPhones []string
	sent       []string
	closeOnce  sync.Once
}

func (a *fakeAdapter) Events() <-chan conn.Event { return a.mb.Events() }

func (a *fakeAdapter) Start(context.Context) error {
	a.mu.Lock()
	a.started = true
	a.mu.Unlock()
	return nil
}

func (a *fakeAdapter) Send(_ context.Context, to, text string) (conn.Sent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, to+"|"+text)
	return conn.Sent{ID: fmt.Sprintf("OUT-%d", len(a.sent)), Payload: []byte(text), Timestamp: time.Now()}, nil
}

func (a *fakeAdapter) RequestPairingCode(_ context.Context, phone string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pairPhones = append(a.pairPhones, phone)
	return a.code, a.codeErr
}

func (a *fakeAdapter) Identity() conn.Identity { return a.identity }

func (a *fakeAdapter) AvatarURL(context.Context, string) (string, error) {
	return "", errors.New("no profile picture")
}

func (a *fakeAdapter) SetUnavailable(context.Context) error { return nil }

func (a *fakeAdapter) End() {
	a.mu.Lock()
	a.ended++
	a.mu.Unlock()
	a.close(conn.ReasonClosed)
}

func (a *fakeAdapter) Logout(context.Context) error {
	a.mu.Lock()
	a.logouts++
	a.mu.Unlock()
	return errors.New("not connected")
}

func (a *fakeAdapter) emit(evt conn.Event) { a.mb.Push(evt) }

func (a *fakeAdapter) close(reason conn.Reason) {
	a.closeOnce.Do(func() {
		a.mb.Push(conn.ConnectionUpdate{State: conn.StateClose, Reason: reason})
		a.mb.Close()
	})
}

func (a *fakeAdapter) counts() (ended, logouts int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ended, a.logouts
}

func (a *fakeAdapter) phones() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.pairPhones...)
}

func (a *fakeAdapter) sentTexts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.sent...)
}

type fakeDialer struct {
	mu        sync.Mutex
	adapters  []*fakeAdapter
	forgotten []string
	code      string
	codeErr   error
	dialErr   error
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{code: "ABCD-1234"}
}

func (d *fakeDialer) Dial(_ context.Context, clientID string, opts conn.Options) (conn.Adapter, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	a := &fakeAdapter{
		clientID: clientID,
		opts:     opts,
		mb:       conn.NewMailbox(),
		identity: conn.Identity{JID: "5511999999999@s.whatsapp.net", Phone: "5511999999999"},
		code:     d.code,
		codeErr:  d.codeErr,
	}
	d.adapters = append(d.adapters, a)
	return a, nil
}

func (d *fakeDialer) Forget(_ context.Context, clientID string) error {
	d.mu.Lock()
	d.forgotten = append(d.forgotten, clientID)
	d.mu.Unlock()
	return nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.adapters)
}

func (d *fakeDialer) at(i int) *fakeAdapter {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.adapters[i]
}

func (d *fakeDialer) last() *fakeAdapter {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.adapters[len(d.adapters)-1]
}

func (d *fakeDialer) forgottenIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.forgotten...)
}
