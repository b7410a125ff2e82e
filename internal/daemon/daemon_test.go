package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/wpphub/internal/config"
	"github.com/matheus3301/wpphub/internal/conn"
	"github.com/matheus3301/wpphub/internal/datadir"
	"github.com/matheus3301/wpphub/internal/lock"
	"github.com/matheus3301/wpphub/internal/store"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

type idleAdapter struct {
	mb   *conn.Mailbox
	once sync.Once
}

func (a *idleAdapter) Events() <-chan conn.Event                         { return a.mb.Events() }
func (a *idleAdapter) Start(context.Context) error                       { return nil }
func (a *idleAdapter) Identity() conn.Identity                           { return conn.Identity{} }
func (a *idleAdapter) SetUnavailable(context.Context) error              { return nil }
func (a *idleAdapter) Logout(context.Context) error                      { return errors.New("not connected") }
func (a *idleAdapter) AvatarURL(context.Context, string) (string, error) { return "", nil }
func (a *idleAdapter) RequestPairingCode(context.Context, string) (string, error) {
	return "", errors.New("unsupported")
}
func (a *idleAdapter) Send(context.Context, string, string) (conn.Sent, error) {
	return conn.Sent{}, errors.New("offline")
}
func (a *idleAdapter) End() {
	a.once.Do(func() {
		a.mb.Push(conn.ConnectionUpdate{State: conn.StateClose, Reason: conn.ReasonClosed})
		a.mb.Close()
	})
}

type recordingDialer struct {
	mu  sync.Mutex
	ids []string
}

func (d *recordingDialer) Dial(_ context.Context, clientID string, _ conn.Options) (conn.Adapter, error) {
	d.mu.Lock()
	d.ids = append(d.ids, clientID)
	d.mu.Unlock()
	return &idleAdapter{mb: conn.NewMailbox()}, nil
}

func (d *recordingDialer) dialed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.ids...)
}

func testParams(t *testing.T, dialer conn.Dialer) Params {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	return Params{
		Config:     cfg,
		ListenAddr: "127.0.0.1:0",
		Dialer:     dialer,
		Logger:     zap.NewNop(),
	}
}

// TestFxModuleWiring verifies the fx dependency graph resolves without errors.
func TestFxModuleWiring(t *testing.T) {
	if err := fx.ValidateApp(Module(testParams(t, &recordingDialer{}))); err != nil {
		t.Fatalf("fx graph invalid: %v", err)
	}
}

func TestDaemonLifecycle(t *testing.T) {
	p := testParams(t, &recordingDialer{})

	var srv *Server
	app := fxtest.New(t, Module(p), fx.Populate(&srv))
	app.RequireStart()

	base := fmt.Sprintf("http://%s", srv.Addr())
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	var health map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if health["status"] != "ok" {
		t.Errorf("health = %v", health)
	}

	resp, err = client.Post(base+"/api/clients", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("create client status = %d, want 201", resp.StatusCode)
	}

	app.RequireStop()

	// The lock is released on stop.
	lk, err := lock.Acquire(p.Config.DataDir)
	if err != nil {
		t.Fatalf("lock not released: %v", err)
	}
	_ = lk.Release()
}

func TestResumeOnStart(t *testing.T) {
	dialer := &recordingDialer{}
	p := testParams(t, dialer)
	layout := datadir.New(p.Config.DataDir)
	if err := layout.Ensure(); err != nil {
		t.Fatal(err)
	}

	db, err := store.Open(layout.HubDBPath())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for id, status := range map[string]store.Status{"live": store.StatusRunning, "off": store.StatusStopped} {
		if _, err := db.CreateClient(ctx, id, id); err != nil {
			t.Fatal(err)
		}
		if err := db.SetClientStatus(ctx, id, status); err != nil {
			t.Fatal(err)
		}
	}
	_ = db.Close()

	app := fxtest.New(t, Module(p))
	app.RequireStart()
	defer app.RequireStop()

	got := dialer.dialed()
	if len(got) != 1 || got[0] != "live" {
		t.Errorf("dialed = %v, want [live]", got)
	}
}

func TestSecondDaemonFailsOnLock(t *testing.T) {
	p := testParams(t, &recordingDialer{})
	lk, err := lock.Acquire(p.Config.DataDir)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lk.Release() }()

	app := fx.New(Module(p), fx.NopLogger)
	if app.Err() == nil {
		t.Fatal("expected startup error while the data directory is locked")
	}
	var held *lock.LockHeldError
	if !errors.As(app.Err(), &held) {
		t.Errorf("err = %v, want LockHeldError", app.Err())
	}
}
