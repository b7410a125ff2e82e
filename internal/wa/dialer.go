package wa

import (
	"context"
	"errors"
	"fmt"

	"github.com/matheus3301/wpphub/internal/conn"
	"github.com/matheus3301/wpphub/internal/store"
	"go.mau.fi/whatsmeow"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3"
)

// deviceCredential names the credential row linking a client to its device JID.
const deviceCredential = "device"

// Credentials is the namespaced credential storage the dialer relies on.
type Credentials interface {
	PutCredential(ctx context.Context, key string, value []byte) error
	GetCredential(ctx context.Context, key string) ([]byte, error)
}

// DialerConfig configures the shared device container.
type DialerConfig struct {
	// DevicesPath is the sqlite file holding whatsmeow device keys.
	DevicesPath string
	// OSName is shown on the phone's linked devices list.
	OSName string
}

// Dialer creates one whatsmeow client per tenant over a shared device store.
type Dialer struct {
	container *sqlstore.Container
	creds     Credentials
	logger    *zap.Logger
}

var (
	_ conn.Dialer    = (*Dialer)(nil)
	_ conn.Forgetter = (*Dialer)(nil)
)

// NewDialer opens the device container and applies device properties.
func NewDialer(ctx context.Context, cfg DialerConfig, creds Credentials, logger *zap.Logger) (*Dialer, error) {
	if cfg.OSName != "" {
		wastore.SetOSInfo(cfg.OSName, [3]uint32{0, 1, 0})
	}
	// Ask the phone for the full history on first pairing.
	wastore.DeviceProps.RequireFullSync = proto.Bool(true)

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", cfg.DevicesPath),
		NewLogger(logger.Named("sqlstore")),
	)
	if err != nil {
		return nil, fmt.Errorf("create device store: %w", err)
	}
	return &Dialer{container: container, creds: creds, logger: logger}, nil
}

// Dial returns an adapter bound to the client's device, creating a fresh
// device when the client has never paired.
func (d *Dialer) Dial(ctx context.Context, clientID string, opts conn.Options) (conn.Adapter, error) {
	device, err := d.device(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if device == nil {
		device = d.container.NewDevice()
	}

	logger := d.logger.With(zap.String("client", clientID))
	client := whatsmeow.NewClient(device, NewLogger(logger.Named("whatsmeow")))
	return newAdapter(clientID, client, d.creds, opts, logger), nil
}

// Forget deletes the client's device keys from the shared container.
func (d *Dialer) Forget(ctx context.Context, clientID string) error {
	device, err := d.device(ctx, clientID)
	if err != nil {
		return err
	}
	if device == nil {
		return nil
	}
	if err := d.container.DeleteDevice(ctx, device); err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	return nil
}

// Close releases the device container.
func (d *Dialer) Close() error {
	return d.container.Close()
}

func (d *Dialer) device(ctx context.Context, clientID string) (*wastore.Device, error) {
	raw, err := d.creds.GetCredential(ctx, store.CredentialKey(clientID, deviceCredential))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read device link: %w", err)
	}
	jid, err := types.ParseJID(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse device JID: %w", err)
	}
	device, err := d.container.GetDevice(ctx, jid)
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}
	return device, nil
}
