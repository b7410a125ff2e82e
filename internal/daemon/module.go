package daemon

import (
	"context"
	"io"

	"github.com/matheus3301/wpphub/internal/api"
	"github.com/matheus3301/wpphub/internal/bus"
	"github.com/matheus3301/wpphub/internal/config"
	"github.com/matheus3301/wpphub/internal/conn"
	"github.com/matheus3301/wpphub/internal/datadir"
	"github.com/matheus3301/wpphub/internal/hub"
	"github.com/matheus3301/wpphub/internal/lock"
	"github.com/matheus3301/wpphub/internal/logging"
	"github.com/matheus3301/wpphub/internal/outbox"
	"github.com/matheus3301/wpphub/internal/reconnect"
	"github.com/matheus3301/wpphub/internal/reply"
	"github.com/matheus3301/wpphub/internal/store"
	intsync "github.com/matheus3301/wpphub/internal/sync"
	"github.com/matheus3301/wpphub/internal/wa"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved configuration passed to the fx module.
type Params struct {
	Config     *config.Config
	ListenAddr string // overrides Config.ListenAddr when set

	// Dialer replaces the whatsmeow dialer; used by tests.
	Dialer conn.Dialer
	// Logger replaces the file logger; used by tests.
	Logger *zap.Logger
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	if p.Config == nil {
		p.Config = config.Default()
	}
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLayout,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideDialer,
			provideReplyHandler,
			provideSyncEngine,
			provideSender,
			provideHub,
			provideHandler,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLayout(p Params) datadir.Layout {
	return datadir.New(p.Config.DataDir)
}

func provideLogger(p Params, layout datadir.Layout) (*zap.Logger, error) {
	if p.Logger != nil {
		return p.Logger, nil
	}
	if err := layout.Ensure(); err != nil {
		return nil, err
	}
	return logging.New(layout.LogPath(), p.Config.LogLevel)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(layout datadir.Layout, logger *zap.Logger) (*lock.Lock, error) {
	if err := layout.Ensure(); err != nil {
		return nil, err
	}
	logger.Info("acquiring data directory lock", zap.String("dir", layout.Root))
	l, err := lock.Acquire(layout.Root)
	if err != nil {
		return nil, err
	}
	logger.Info("data directory lock acquired")
	return l, nil
}

// provideStore depends on the lock so the database is never opened by a
// second daemon.
func provideStore(_ *lock.Lock, layout datadir.Layout, logger *zap.Logger) (*store.DB, error) {
	dbPath := layout.HubDBPath()
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideDialer(p Params, layout datadir.Layout, db *store.DB, logger *zap.Logger) (conn.Dialer, error) {
	if p.Dialer != nil {
		return p.Dialer, nil
	}
	d, err := wa.NewDialer(context.Background(), wa.DialerConfig{
		DevicesPath: layout.DevicesDBPath(),
		OSName:      p.Config.Device.OSName,
	}, db, logger.Named("wa"))
	if err != nil {
		return nil, err
	}
	logger.Info("device store opened", zap.String("path", layout.DevicesDBPath()))
	return d, nil
}

func provideReplyHandler(p Params, db *store.DB, logger *zap.Logger) reply.Handler {
	cfg := p.Config.Reply
	if !cfg.Enabled {
		logger.Info("auto reply disabled")
		return reply.Nop{}
	}
	return reply.NewKeywordHandler(reply.KeywordConfig{
		Keywords:  cfg.Keywords,
		ReplyText: cfg.ReplyText,
		Commands:  cfg.Commands,
	}, db, logger.Named("reply"))
}

func provideSyncEngine(db *store.DB, b *bus.Bus, handler reply.Handler, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, b, handler, logger.Named("sync"))
}

func provideSender(db *store.DB, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, b, logger.Named("outbox"))
}

func provideHub(p Params, db *store.DB, dialer conn.Dialer, engine *intsync.Engine, sender *outbox.Sender, b *bus.Bus, logger *zap.Logger) *hub.Hub {
	rc := p.Config.Reconnect
	return hub.New(db, dialer, engine, sender, b, hub.Options{
		Backoff: reconnect.BackoffConfig{
			InitialDelay: rc.InitialDelay.Duration,
			MaxDelay:     rc.MaxDelay.Duration,
			Multiplier:   rc.Multiplier,
			Jitter:       true,
		},
		DedupCapacity: p.Config.Dedup.Capacity,
	}, logger.Named("hub"))
}

func provideHandler(p Params, db *store.DB, h *hub.Hub, b *bus.Bus, logger *zap.Logger) *api.Handler {
	return api.NewHandler(db, h, b, api.Options{
		QRTimeout:   p.Config.Pairing.QRTimeout.Duration,
		CodeTimeout: p.Config.Pairing.CodeTimeout.Duration,
		Debug:       p.Config.LogLevel == "debug",
	}, logger.Named("http"))
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, h *hub.Hub, dialer conn.Dialer, db *store.DB, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()

			// Bring back clients that were connected when the last process
			// exited.
			if err := h.Resume(ctx); err != nil {
				logger.Error("failed to resume clients", zap.Error(err))
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil {
				logger.Warn("http server shutdown", zap.Error(err))
			}
			if err := h.Shutdown(ctx); err != nil {
				logger.Warn("hub shutdown", zap.Error(err))
			}
			if c, ok := dialer.(io.Closer); ok {
				if err := c.Close(); err != nil {
					logger.Warn("error closing device store", zap.Error(err))
				}
			}
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
