package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// StreamEvents pushes pipeline broadcasts to the client using Server-Sent
// Events. Only events emitted while the client is connected are delivered.
func (h *Handler) StreamEvents(c *gin.Context) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	sub := h.events.Subscribe()
	defer h.events.Unsubscribe(sub)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // nginx: disable buffering
	c.Status(http.StatusOK)

	hello, _ := json.Marshal(gin.H{"subscriber_id": sub.ID})
	fmt.Fprintf(c.Writer, "event: connected\ndata: %s\n\n", hello)
	flusher.Flush()

	ctx := c.Request.Context()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			fmt.Fprint(c.Writer, ": keep-alive\n\n")
			flusher.Flush()

		case ev, open := <-sub.Events:
			if !open {
				return
			}
			data, err := json.Marshal(ev.Data)
			if err != nil {
				h.logger.Error("failed to encode broadcast", "event", ev.Name, "error", err)
				continue
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", ev.Name, data)
			flusher.Flush()
		}
	}
}
