package sync

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/wpphub/internal/bus"
	"github.com/matheus3301/wpphub/internal/conn"
	"github.com/matheus3301/wpphub/internal/dedup"
	"github.com/matheus3301/wpphub/internal/reply"
	"github.com/matheus3301/wpphub/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

// recordingHandler captures dispatched requests.
type recordingHandler struct {
	reqs []reply.Request
}

func (h *recordingHandler) Handle(_ context.Context, req reply.Request, _ reply.Responder) error {
	h.reqs = append(h.reqs, req)
	return nil
}

func textMsg(id, remote, text string) conn.Message {
	return conn.Message{
		ID:        id,
		RemoteJID: remote,
		Sender:    remote,
		Content:   conn.Content{Conversation: text},
		Payload:   []byte(text),
		Timestamp: time.UnixMilli(1000),
	}
}

func TestExtractTextFallbackOrder(t *testing.T) {
	tests := []struct {
		name string
		c    conn.Content
		want string
	}{
		{"empty", conn.Content{}, ""},
		{"conversation wins", conn.Content{Conversation: "a", ExtendedText: "b", ImageCaption: "c"}, "a"},
		{"extended text", conn.Content{ExtendedText: "b", ImageCaption: "c"}, "b"},
		{"image caption", conn.Content{ImageCaption: "c", VideoCaption: "d"}, "c"},
		{"video caption", conn.Content{VideoCaption: "d"}, "d"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractText(tt.c))
		})
	}
}

func TestIngestUpsertStoresAndDispatches(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	h := &recordingHandler{}
	e := NewEngine(db, b, h, nil)
	ctx := context.Background()

	ch, unsub := b.Subscribe("message.", 10)
	defer unsub()

	res := e.IngestUpsert(ctx, "s1", dedup.New(10), []conn.Message{textMsg("m1", "a@s.whatsapp.net", "hello")}, nil)
	assert.Equal(t, UpsertResult{Stored: 1, Dispatched: 1}, res)

	stored, err := db.FindMessage(ctx, "s1", "m1")
	require.NoError(t, err)
	assert.Equal(t, "hello", stored.Text)
	assert.Equal(t, int64(1000), stored.Timestamp)

	require.Len(t, h.reqs, 1)
	assert.Equal(t, reply.Request{SessionID: "s1", From: "a@s.whatsapp.net", Text: "hello"}, h.reqs[0])

	select {
	case evt := <-ch:
		assert.Equal(t, "message.upserted", evt.Kind)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message.upserted event")
	}
}

func TestIngestUpsertDuplicateShortCircuit(t *testing.T) {
	db := testDB(t)
	h := &recordingHandler{}
	e := NewEngine(db, nil, h, nil)
	ctx := context.Background()
	cache := dedup.New(10)

	msg := textMsg("m1", "a@s.whatsapp.net", "hello")
	e.IngestUpsert(ctx, "s1", cache, []conn.Message{msg}, nil)

	// A later write to the same key must survive a redelivery.
	require.NoError(t, db.UpsertMessage(ctx, &store.Message{SessionID: "s1", ID: "m1", RemoteJID: "a@s.whatsapp.net", Text: "edited"}))

	res := e.IngestUpsert(ctx, "s1", cache, []conn.Message{msg}, nil)
	assert.Equal(t, 1, res.Duplicates)
	assert.Zero(t, res.Stored)

	stored, err := db.FindMessage(ctx, "s1", "m1")
	require.NoError(t, err)
	assert.Equal(t, "edited", stored.Text, "duplicate should not touch the store")
	assert.Len(t, h.reqs, 1, "duplicate should not reach the handler")
}

func TestIngestUpsertDuplicateInBatchSkipsOnlyDuplicate(t *testing.T) {
	db := testDB(t)
	h := &recordingHandler{}
	e := NewEngine(db, nil, h, nil)
	ctx := context.Background()
	cache := dedup.New(10)

	e.IngestUpsert(ctx, "s1", cache, []conn.Message{textMsg("A", "a@s.whatsapp.net", "first")}, nil)

	res := e.IngestUpsert(ctx, "s1", cache, []conn.Message{
		textMsg("A", "a@s.whatsapp.net", "first"),
		textMsg("B", "b@s.whatsapp.net", "second"),
	}, nil)

	assert.Equal(t, UpsertResult{Stored: 1, Duplicates: 1, Dispatched: 1}, res)
	_, err := db.FindMessage(ctx, "s1", "B")
	require.NoError(t, err)
	require.Len(t, h.reqs, 2)
	assert.Equal(t, "b@s.whatsapp.net", h.reqs[1].From)
}

func TestIngestUpsertDispatchFilters(t *testing.T) {
	db := testDB(t)
	h := &recordingHandler{}
	e := NewEngine(db, nil, h, nil)
	ctx := context.Background()

	fromMe := textMsg("m1", "a@s.whatsapp.net", "mine")
	fromMe.FromMe = true
	empty := textMsg("m4", "a@s.whatsapp.net", "")
	empty.Payload = []byte{0x01}

	res := e.IngestUpsert(ctx, "s1", dedup.New(10), []conn.Message{
		fromMe,
		textMsg("m2", "120363@g.us", "group"),
		textMsg("m3", "status@broadcast", "status"),
		empty,
	}, nil)

	assert.Equal(t, 4, res.Stored, "every message is persisted before filtering")
	assert.Zero(t, res.Dispatched)
	assert.Empty(t, h.reqs)
}

// failingGateway fails message writes for selected ids.
type failingGateway struct {
	Gateway
	fail map[string]error
}

func (f failingGateway) UpsertMessage(ctx context.Context, m *store.Message) error {
	if err, ok := f.fail[m.ID]; ok {
		return err
	}
	return f.Gateway.UpsertMessage(ctx, m)
}

func TestIngestUpsertWriteFailureSkipsMessage(t *testing.T) {
	db := testDB(t)
	h := &recordingHandler{}
	gw := failingGateway{Gateway: db, fail: map[string]error{"bad": errors.New("disk full")}}
	e := NewEngine(gw, nil, h, nil)

	res := e.IngestUpsert(context.Background(), "s1", dedup.New(10), []conn.Message{
		textMsg("bad", "a@s.whatsapp.net", "one"),
		textMsg("good", "a@s.whatsapp.net", "two"),
	}, nil)

	assert.Equal(t, UpsertResult{Stored: 1, Failed: 1, Dispatched: 1}, res)
	require.Len(t, h.reqs, 1)
	assert.Equal(t, "two", h.reqs[0].Text)
}

func TestIngestUpsertRedeliveryAfterWriteFailureIsStored(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	cache := dedup.New(10)

	failing := NewEngine(failingGateway{Gateway: db, fail: map[string]error{"m1": errors.New("database is locked")}}, nil, nil, nil)
	res := failing.IngestUpsert(ctx, "s1", cache, []conn.Message{textMsg("m1", "a@s.whatsapp.net", "one")}, nil)
	require.Equal(t, 1, res.Failed)

	e := NewEngine(db, nil, nil, nil)
	res = e.IngestUpsert(ctx, "s1", cache, []conn.Message{textMsg("m1", "a@s.whatsapp.net", "one")}, nil)
	assert.Equal(t, 1, res.Stored)
	assert.Zero(t, res.Duplicates)

	got, err := db.FindMessage(ctx, "s1", "m1")
	require.NoError(t, err)
	assert.Equal(t, "one", got.Text)
}

func TestIngestUpsertHandlerErrorContinues(t *testing.T) {
	db := testDB(t)
	calls := 0
	h := reply.HandlerFunc(func(context.Context, reply.Request, reply.Responder) error {
		calls++
		return errors.New("send failed")
	})
	e := NewEngine(db, nil, h, nil)

	res := e.IngestUpsert(context.Background(), "s1", dedup.New(10), []conn.Message{
		textMsg("m1", "a@s.whatsapp.net", "one"),
		textMsg("m2", "a@s.whatsapp.net", "two"),
	}, nil)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, res.Stored)
	assert.Zero(t, res.Dispatched)
}

func TestIngestHistory(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	e := NewEngine(db, b, nil, nil)
	ctx := context.Background()
	cache := dedup.New(10)

	ch, unsub := b.Subscribe("sync.", 10)
	defer unsub()

	set := conn.HistorySet{
		Chats:    []conn.Chat{{ID: "a@s.whatsapp.net", Name: "Alice", Attrs: map[string]any{"pinned": 1}}},
		Contacts: []conn.Contact{{ID: "a@s.whatsapp.net", Notify: "Ali"}},
		Messages: []conn.Message{textMsg("h1", "a@s.whatsapp.net", "old"), textMsg("h2", "a@s.whatsapp.net", "older")},
		Progress: 100,
	}
	require.NoError(t, e.IngestHistory(ctx, "s1", set))
	// Idempotent on replay.
	require.NoError(t, e.IngestHistory(ctx, "s1", set))

	n, err := db.CountMessages(ctx, "s1", "a@s.whatsapp.net", false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	chats, err := db.ListChats(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.JSONEq(t, `{"pinned":1}`, string(chats[0].Attrs))

	contact, err := db.GetContact(ctx, "s1", "a@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, "Ali", contact.Notify)

	// History does not feed the dedup cache.
	assert.Zero(t, cache.Len())

	select {
	case evt := <-ch:
		assert.Equal(t, "sync.history_set", evt.Kind)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for sync.history_set event")
	}
}

// failingBulk fails only the chats transaction.
type failingBulk struct {
	Gateway
}

func (failingBulk) BulkUpsertChats(context.Context, []store.Chat) error {
	return errors.New("locked")
}

func TestIngestHistoryCollectionsAreIndependent(t *testing.T) {
	db := testDB(t)
	e := NewEngine(failingBulk{Gateway: db}, nil, nil, nil)
	ctx := context.Background()

	err := e.IngestHistory(ctx, "s1", conn.HistorySet{
		Chats:    []conn.Chat{{ID: "a@s.whatsapp.net"}},
		Messages: []conn.Message{textMsg("h1", "a@s.whatsapp.net", "old")},
	})
	require.Error(t, err)

	_, err = db.FindMessage(ctx, "s1", "h1")
	assert.NoError(t, err, "messages should be stored even though chats failed")
}

func TestIngestContact(t *testing.T) {
	db := testDB(t)
	e := NewEngine(db, nil, nil, nil)
	ctx := context.Background()

	require.NoError(t, e.IngestContact(ctx, "s1", conn.Contact{ID: "a@s.whatsapp.net", Name: "Alice"}))
	require.NoError(t, e.IngestContact(ctx, "s1", conn.Contact{}))

	c, err := db.GetContact(ctx, "s1", "a@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, "Alice", c.Name)
}
