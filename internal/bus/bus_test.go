package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	b.Publish(Event{Kind: "session.connected", Timestamp: time.Now(), Payload: "test"})

	select {
	case evt := <-ch:
		if evt.Kind != "session.connected" {
			t.Errorf("got kind %q, want session.connected", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("sync.", 10)
	defer unsub()

	b.Publish(Event{Kind: "session.connected"})
	b.Publish(Event{Kind: "sync.history_set"})

	select {
	case evt := <-ch:
		if evt.Kind != "sync.history_set" {
			t.Errorf("got kind %q, want sync.history_set", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// Ensure session event was not delivered.
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected: no more events.
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("session.", 10)
	unsub()

	b.Publish(Event{Kind: "session.connected"})

	if evt, ok := <-ch; ok {
		t.Errorf("received event after unsubscribe: %v", evt)
	}
	if n := b.Subscribers(); n != 0 {
		t.Errorf("Subscribers() = %d, want 0", n)
	}
	// Second call is a no-op.
	unsub()
}

func TestEmptyNamespaceMatchesAll(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("", 10)
	defer unsub()

	b.Publish(Event{Kind: "session.qr"})
	b.Publish(Event{Kind: "message.upserted"})

	for _, want := range []string{"session.qr", "message.upserted"} {
		select {
		case evt := <-ch:
			if evt.Kind != want {
				t.Errorf("got %q, want %q", evt.Kind, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %s", want)
		}
	}
}

func TestSubscribeClientFiltersByClient(t *testing.T) {
	b := New()
	ch, unsub := b.SubscribeClient("session.", "client-a", 10)
	defer unsub()

	b.Publish(Event{Kind: "session.qr", ClientID: "client-b"})
	b.Publish(Event{Kind: "session.qr"})
	b.Publish(Event{Kind: "message.upserted", ClientID: "client-a"})
	b.Publish(Event{Kind: "session.connected", ClientID: "client-a"})

	select {
	case evt := <-ch:
		if evt.Kind != "session.connected" || evt.ClientID != "client-a" {
			t.Errorf("got %+v, want session.connected for client-a", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for client-a event")
	}
	select {
	case evt := <-ch:
		t.Errorf("unexpected event %+v", evt)
	default:
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("test.", 1)
	defer unsub()

	// Fill buffer.
	b.Publish(Event{Kind: "test.one"})
	// This should be dropped (non-blocking).
	b.Publish(Event{Kind: "test.two"})

	evt := <-ch
	if evt.Kind != "test.one" {
		t.Errorf("got %q, want test.one", evt.Kind)
	}
	if n := b.Dropped(); n != 1 {
		t.Errorf("Dropped() = %d, want 1", n)
	}
}
