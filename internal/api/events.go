package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/wpphub/internal/datadir"
)

const (
	eventBuffer    = 64
	eventKeepAlive = 20 * time.Second
)

// events streams bus events as server-sent events. The optional "kind"
// query parameter filters by kind prefix, e.g. "session.", and "client"
// restricts the stream to one client.
func (h *Handler) events(c *gin.Context) {
	clientID := c.Query("client")
	if clientID != "" {
		if err := datadir.ValidateClientID(clientID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}
	}
	ch, unsubscribe := h.bus.SubscribeClient(c.Query("kind"), clientID, eventBuffer)
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	fmt.Fprint(c.Writer, ": connected\n\n")
	c.Writer.Flush()

	ticker := time.NewTicker(eventKeepAlive)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case evt, ok := <-ch:
			if !ok {
				return false
			}
			data, err := json.Marshal(evt)
			if err != nil {
				return true
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Kind, data)
			return true
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
