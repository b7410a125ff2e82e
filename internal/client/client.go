// Package client talks to a running daemon over its HTTP façade.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/matheus3301/wpphub/internal/store"
)

// APIError is a non-2xx answer from the daemon.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daemon returned %d: %s", e.Status, e.Message)
}

// Client wraps HTTP calls to the daemon.
type Client struct {
	base string
	http *http.Client
}

// New returns a client for the daemon at baseURL. Event streams are not
// bound by timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// QR is a QR pairing artifact.
type QR struct {
	QR        string `json:"qr"`
	QRCodeURL string `json:"qrCodeUrl"`
	SessionID string `json:"sessionId"`
}

// PhoneCode is a phone pairing code.
type PhoneCode struct {
	Code      string `json:"code"`
	SessionID string `json:"sessionId"`
}

// AuthStatus is the pairing status of a client. Status is "pending",
// "paired" or "error"; Message is "EXPIRED" for a failed attempt.
type AuthStatus struct {
	Status  string        `json:"status"`
	Message string        `json:"message,omitempty"`
	Client  *store.Client `json:"client,omitempty"`
}

// Health is the daemon liveness report.
type Health struct {
	Status      string `json:"status"`
	Sessions    int    `json:"sessions"`
	Subscribers int    `json:"subscribers"`
}

// Sent acknowledges an outbound message.
type Sent struct {
	ID        string `json:"id"`
	To        string `json:"to"`
	Timestamp int64  `json:"timestamp"`
}

// Event is one entry of the daemon event stream.
type Event struct {
	Kind      string          `json:"kind"`
	ClientID  string          `json:"clientId,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	return &out, c.do(ctx, http.MethodGet, "/healthz", nil, &out)
}

func (c *Client) ListClients(ctx context.Context) ([]store.Client, error) {
	var out []store.Client
	return out, c.do(ctx, http.MethodGet, "/api/clients", nil, &out)
}

func (c *Client) CreateClient(ctx context.Context) (*store.Client, error) {
	var out store.Client
	return &out, c.do(ctx, http.MethodPost, "/api/clients", nil, &out)
}

func (c *Client) Start(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/clients/"+url.PathEscape(id)+"/start", nil, nil)
}

func (c *Client) Stop(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/clients/"+url.PathEscape(id)+"/stop", nil, nil)
}

// Delete stops the client and wipes its data.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/clients/"+url.PathEscape(id), nil, nil)
}

func (c *Client) Cancel(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/cancel/"+url.PathEscape(id), nil, nil)
}

func (c *Client) GenerateQR(ctx context.Context, id string) (*QR, error) {
	var out QR
	return &out, c.do(ctx, http.MethodPost, "/api/clients/"+url.PathEscape(id)+"/generate-qr", nil, &out)
}

// LatestQR returns the current QR of a pending attempt; QR is empty while
// none has been issued yet.
func (c *Client) LatestQR(ctx context.Context, id string) (*QR, error) {
	var out QR
	return &out, c.do(ctx, http.MethodGet, "/api/auth/qr/"+url.PathEscape(id), nil, &out)
}

func (c *Client) GeneratePhoneCode(ctx context.Context, id, phone string) (*PhoneCode, error) {
	var out PhoneCode
	body := map[string]string{"phoneNumber": phone}
	return &out, c.do(ctx, http.MethodPost, "/api/clients/"+url.PathEscape(id)+"/generate-phone-code", body, &out)
}

// AuthStatus reports pairing status. An expired attempt is returned as a
// status, not an error.
func (c *Client) AuthStatus(ctx context.Context, id string) (*AuthStatus, error) {
	var out AuthStatus
	err := c.do(ctx, http.MethodGet, "/api/auth/status/"+url.PathEscape(id), nil, &out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusGone {
		return &AuthStatus{Status: "error", Message: apiErr.Message}, nil
	}
	return &out, err
}

func (c *Client) Send(ctx context.Context, id, to, text string) (*Sent, error) {
	var out Sent
	body := map[string]string{"to": to, "text": text}
	return &out, c.do(ctx, http.MethodPost, "/api/clients/"+url.PathEscape(id)+"/messages", body, &out)
}

// Events streams daemon events whose kind starts with prefix until ctx is
// done, fn returns an error or the daemon closes the stream. A non-empty
// clientID limits the stream to that client.
func (c *Client) Events(ctx context.Context, prefix, clientID string, fn func(Event) error) error {
	q := url.Values{}
	if prefix != "" {
		q.Set("kind", prefix)
	}
	if clientID != "" {
		q.Set("client", clientID)
	}
	u := c.base + "/api/events"
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream is long-lived; only ctx bounds it.
	stream := &http.Client{Transport: c.http.Transport}
	resp, err := stream.Do(req)
	if err != nil {
		return fmt.Errorf("connect to daemon: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		var evt Event
		if err := json.Unmarshal([]byte(data), &evt); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if err := fn(evt); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connect to daemon: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body struct {
		Message string `json:"message"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body.Message == "" {
		body.Message = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Message: body.Message}
}
