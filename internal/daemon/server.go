package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/matheus3301/wpphub/internal/api"
	"go.uber.org/zap"
)

// Server manages the HTTP server lifecycle for the daemon.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	cancel     context.CancelFunc
	logger     *zap.Logger
}

// NewServer creates an HTTP server bound to the configured listen address.
// Binding happens here so a busy port fails startup.
func NewServer(p Params, handler *api.Handler, logger *zap.Logger) (*Server, error) {
	addr := p.ListenAddr
	if addr == "" {
		addr = p.Config.ListenAddr
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	// Cancelled on Stop so long-lived event streams end with the daemon.
	baseCtx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	return &Server{
		httpServer: srv,
		listener:   listener,
		cancel:     cancel,
		logger:     logger,
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Start begins serving HTTP requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("http server starting", zap.String("addr", s.Addr().String()))
	if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop performs a graceful shutdown.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("http server stopping")
	s.cancel()
	return s.httpServer.Shutdown(ctx)
}
