package outbox

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/wpphub/internal/bus"
	"github.com/matheus3301/wpphub/internal/conn"
	"github.com/matheus3301/wpphub/internal/store"
	"go.uber.org/zap"
)

// mockSender records calls and returns configurable results.
type mockSender struct {
	calls       []sendCall
	err         error
	presenceErr error
	presence    int
}

type sendCall struct {
	To   string
	Text string
}

func (m *mockSender) Send(_ context.Context, to, text string) (conn.Sent, error) {
	m.calls = append(m.calls, sendCall{To: to, Text: text})
	if m.err != nil {
		return conn.Sent{}, m.err
	}
	return conn.Sent{ID: "server-" + to, Payload: []byte(text), Timestamp: time.UnixMilli(42_000)}, nil
}

func (m *mockSender) SetUnavailable(context.Context) error {
	m.presence++
	return m.presenceErr
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSendPersistsOutgoingMessage(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	mock := &mockSender{}
	s := NewSender(db, b, zap.NewNop())

	ch, unsub := b.Subscribe("message.send_ack", 10)
	defer unsub()

	msg, err := s.Send(context.Background(), "client-1", mock, "a@s.whatsapp.net", "hello")
	if err != nil {
		t.Fatal(err)
	}
	if msg.ID != "server-a@s.whatsapp.net" || !msg.FromMe {
		t.Errorf("msg = %+v", msg)
	}

	stored, err := db.FindMessage(context.Background(), "client-1", "server-a@s.whatsapp.net")
	if err != nil {
		t.Fatal(err)
	}
	if !stored.FromMe || stored.Text != "hello" || stored.Timestamp != 42_000 {
		t.Errorf("stored = %+v", stored)
	}
	if mock.presence != 1 {
		t.Errorf("presence updates = %d, want 1", mock.presence)
	}

	select {
	case evt := <-ch:
		if evt.Kind != "message.send_ack" {
			t.Errorf("event kind = %q", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message.send_ack")
	}
}

func TestSendFailureStoresNothing(t *testing.T) {
	db := testDB(t)
	mock := &mockSender{err: errors.New("not connected")}
	s := NewSender(db, bus.New(), zap.NewNop())

	if _, err := s.Send(context.Background(), "client-1", mock, "a@s.whatsapp.net", "hello"); err == nil {
		t.Fatal("expected send error")
	}
	n, err := db.CountMessages(context.Background(), "client-1", "", true)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("stored %d messages after failed send, want 0", n)
	}
	if mock.presence != 0 {
		t.Errorf("presence should not be touched after a failed send")
	}
}

func TestPresenceFailureIsNotFatal(t *testing.T) {
	db := testDB(t)
	mock := &mockSender{presenceErr: errors.New("presence rejected")}
	s := NewSender(db, nil, nil)

	if err := s.Responder("client-1", mock).Reply(context.Background(), "a@s.whatsapp.net", "hi"); err != nil {
		t.Fatalf("Reply() err = %v, want nil", err)
	}
	if len(mock.calls) != 1 {
		t.Errorf("calls = %d, want 1", len(mock.calls))
	}
}
