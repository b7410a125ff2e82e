package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/matheus3301/wpphub/internal/conn"
	"github.com/matheus3301/wpphub/internal/hub"
	"github.com/matheus3301/wpphub/internal/store"
	"go.uber.org/zap"
)

const newClientName = "Awaiting setup"

func (h *Handler) listClients(c *gin.Context) {
	clients, err := h.clients.ListClients(c.Request.Context())
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to fetch clients", err)
		return
	}
	if clients == nil {
		clients = []store.Client{}
	}
	c.JSON(http.StatusOK, clients)
}

func (h *Handler) createClient(c *gin.Context) {
	client, err := h.clients.CreateClient(c.Request.Context(), "client-"+uuid.NewString(), newClientName)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to create client", err)
		return
	}
	h.logger.Info("client created", zap.String("client", client.ID))
	c.JSON(http.StatusCreated, client)
}

func (h *Handler) startClient(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.sessions.Create(c.Request.Context(), id, hub.AuthDetails{Method: conn.MethodQR}); err != nil {
		h.sessionError(c, "Failed to start client", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Client initialization started."})
}

func (h *Handler) stopClient(c *gin.Context) {
	if err := h.sessions.Stop(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to stop client", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Client stopped."})
}

func (h *Handler) deleteClient(c *gin.Context) {
	report := h.sessions.Destroy(c.Request.Context(), c.Param("id"), true)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Client disconnected and data deleted.",
		"report":  report,
	})
}

func (h *Handler) listChats(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "limit must be a positive integer"})
		return
	}
	chats, err := h.clients.ListChats(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to fetch chats", err)
		return
	}
	out := make([]gin.H, 0, len(chats))
	for _, ch := range chats {
		out = append(out, gin.H{
			"id":          ch.ID,
			"name":        ch.Name,
			"unreadCount": ch.UnreadCount,
			"attrs":       ch.Attrs,
		})
	}
	c.JSON(http.StatusOK, out)
}

type sendRequest struct {
	To   string `json:"to" binding:"required"`
	Text string `json:"text" binding:"required"`
}

func (h *Handler) sendMessage(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Fields 'to' and 'text' are required."})
		return
	}
	msg, err := h.sessions.Send(c.Request.Context(), c.Param("id"), req.To, req.Text)
	if err != nil {
		if errors.Is(err, hub.ErrNoSession) {
			c.JSON(http.StatusConflict, gin.H{"message": "Client is not running."})
			return
		}
		h.fail(c, http.StatusInternalServerError, "Failed to send message", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": msg.ID, "to": msg.RemoteJID, "timestamp": msg.Timestamp})
}

// sessionError maps hub errors from session creation.
func (h *Handler) sessionError(c *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, hub.ErrUnknownClient):
		c.JSON(http.StatusNotFound, gin.H{"message": "Client not found."})
	case errors.Is(err, hub.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Server is shutting down."})
	default:
		h.fail(c, http.StatusInternalServerError, message, err)
	}
}

func (h *Handler) fail(c *gin.Context, code int, message string, err error) {
	_ = c.Error(err)
	c.JSON(code, gin.H{"message": message, "error": err.Error()})
}
