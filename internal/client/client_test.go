package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", 2*time.Second)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func TestListAndCreateClients(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/clients", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{{"id": "client-1", "status": "RUNNING"}})
	})
	mux.HandleFunc("POST /api/clients", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]any{"id": "client-2", "status": "PENDING_SETUP"})
	})
	c := newTestClient(t, mux)

	list, err := c.ListClients(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "client-1", list[0].ID)

	created, err := c.CreateClient(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "client-2", created.ID)
	assert.EqualValues(t, "PENDING_SETUP", created.Status)
}

func TestGeneratePhoneCodeSendsNumber(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/clients/{id}/generate-phone-code", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["phoneNumber"] != "5511999999999" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Phone number is required."})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"code": "ABCD1234", "sessionId": r.PathValue("id")})
	})
	c := newTestClient(t, mux)

	code, err := c.GeneratePhoneCode(context.Background(), "client-1", "5511999999999")
	require.NoError(t, err)
	assert.Equal(t, "ABCD1234", code.Code)
	assert.Equal(t, "client-1", code.SessionID)

	_, err = c.GeneratePhoneCode(context.Background(), "client-1", "")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "Phone number is required.", apiErr.Message)
}

func TestAuthStatusExpiredIsNotAnError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/status/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("id") {
		case "gone":
			writeJSON(w, http.StatusGone, map[string]string{"status": "error", "message": "EXPIRED"})
		case "missing":
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Client session not found."})
		default:
			writeJSON(w, http.StatusOK, map[string]any{"status": "paired", "client": map[string]any{"id": "ok", "name": "Shop"}})
		}
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	st, err := c.AuthStatus(ctx, "gone")
	require.NoError(t, err)
	assert.Equal(t, "error", st.Status)
	assert.Equal(t, "EXPIRED", st.Message)

	_, err = c.AuthStatus(ctx, "missing")
	require.Error(t, err)

	st, err = c.AuthStatus(ctx, "ok")
	require.NoError(t, err)
	assert.Equal(t, "paired", st.Status)
	require.NotNil(t, st.Client)
	assert.Equal(t, "Shop", st.Client.Name)
}

func TestErrorWithoutBodyUsesStatusText(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/clients/{id}/stop", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	c := newTestClient(t, mux)

	err := c.Stop(context.Background(), "client-1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Internal Server Error", apiErr.Message)
}

func TestEventsStream(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/events", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "session.", r.URL.Query().Get("kind"))
		assert.Equal(t, "client-1", r.URL.Query().Get("client"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": connected\n\n")
		fmt.Fprint(w, "event: session.qr\ndata: {\"kind\":\"session.qr\",\"timestamp\":\"2026-01-01T00:00:00Z\",\"payload\":{\"qr\":\"Q1\"}}\n\n")
		fmt.Fprint(w, "event: session.connected\ndata: {\"kind\":\"session.connected\",\"timestamp\":\"2026-01-01T00:00:01Z\"}\n\n")
	})
	c := newTestClient(t, mux)

	var kinds []string
	err := c.Events(context.Background(), "session.", "client-1", func(e Event) error {
		kinds = append(kinds, e.Kind)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"session.qr", "session.connected"}, kinds)
}

func TestEventsStopsOnCallbackError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"kind\":\"a\"}\n\ndata: {\"kind\":\"b\"}\n\n")
	})
	c := newTestClient(t, mux)

	stop := errors.New("stop")
	var n int
	err := c.Events(context.Background(), "", "", func(Event) error {
		n++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, n)
}
