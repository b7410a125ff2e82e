// Package api is the HTTP façade the dashboard polls: client CRUD, pairing
// flows, status checks and a server-sent event feed.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/matheus3301/wpphub/internal/bus"
	"github.com/matheus3301/wpphub/internal/datadir"
	"github.com/matheus3301/wpphub/internal/hub"
	"github.com/matheus3301/wpphub/internal/store"
	"go.uber.org/zap"
)

// Clients is the client catalogue the façade reads and writes.
type Clients interface {
	ListClients(ctx context.Context) ([]store.Client, error)
	CreateClient(ctx context.Context, id, name string) (*store.Client, error)
	GetClient(ctx context.Context, id string) (*store.Client, error)
	ListChats(ctx context.Context, sessionID string, limit int) ([]store.Chat, error)
}

// Sessions is the live-session surface, implemented by *hub.Hub.
type Sessions interface {
	Create(ctx context.Context, clientID string, auth hub.AuthDetails) (*hub.Session, error)
	Get(clientID string) *hub.Session
	Sessions() []string
	AwaitQR(ctx context.Context, clientID string) (string, error)
	AwaitPhoneCode(ctx context.Context, clientID string) (string, error)
	Cancel(ctx context.Context, clientID string) error
	Stop(ctx context.Context, clientID string) error
	Destroy(ctx context.Context, clientID string, wipe bool) hub.WipeReport
	Send(ctx context.Context, clientID, to, text string) (*store.Message, error)
}

// Options tunes the façade.
type Options struct {
	QRTimeout   time.Duration
	CodeTimeout time.Duration
	Debug       bool
}

// Handler serves the façade routes.
type Handler struct {
	clients  Clients
	sessions Sessions
	bus      *bus.Bus
	opts     Options
	logger   *zap.Logger
}

// NewHandler creates the façade handler.
func NewHandler(clients Clients, sessions Sessions, b *bus.Bus, opts Options, logger *zap.Logger) *Handler {
	if opts.QRTimeout <= 0 {
		opts.QRTimeout = 60 * time.Second
	}
	if opts.CodeTimeout <= 0 {
		opts.CodeTimeout = 60 * time.Second
	}
	return &Handler{
		clients:  clients,
		sessions: sessions,
		bus:      b,
		opts:     opts,
		logger:   logger,
	}
}

// Router builds the gin engine with recovery, access logging and CORS.
func (h *Handler) Router() *gin.Engine {
	if h.opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(loggingMiddleware(h.logger))
	engine.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	engine.GET("/healthz", h.health)

	api := engine.Group("/api")
	api.Use(validateClientID)
	api.GET("/clients", h.listClients)
	api.POST("/clients", h.createClient)
	api.POST("/clients/:id/start", h.startClient)
	api.POST("/clients/:id/stop", h.stopClient)
	api.DELETE("/clients/:id", h.deleteClient)
	api.POST("/clients/:id/generate-qr", h.generateQR)
	api.POST("/clients/:id/generate-phone-code", h.generatePhoneCode)
	api.GET("/clients/:id/chats", h.listChats)
	api.POST("/clients/:id/messages", h.sendMessage)

	api.GET("/auth/status/:sessionId", h.authStatus)
	api.GET("/auth/qr/:sessionId", h.latestQR)
	api.POST("/auth/cancel/:sessionId", h.cancelAuth)

	api.GET("/events", h.events)
	return engine
}

func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("http request", fields...)
			return
		}
		logger.Debug("http request", fields...)
	}
}

// validateClientID rejects malformed client ids before they reach the hub.
func validateClientID(c *gin.Context) {
	for _, key := range []string{"id", "sessionId"} {
		if id := c.Param(key); id != "" {
			if err := datadir.ValidateClientID(id); err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": err.Error()})
				return
			}
		}
	}
	c.Next()
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"sessions":    len(h.sessions.Sessions()),
		"subscribers": h.bus.Subscribers(),
	})
}
