package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"hama/estate/internal/api/middleware"
	"hama/estate/internal/services"
)

const defaultSessionKeepAlive = 15 * time.Second

// PresenceHandler handles online presence endpoints.
type PresenceHandler struct {
	presence  services.IPresenceService
	keepAlive time.Duration
	now       func() time.Time
}

// NewPresenceHandler creates a new PresenceHandler.
func NewPresenceHandler(presence services.IPresenceService) *PresenceHandler {
	return &PresenceHandler{presence: presence, keepAlive: defaultSessionKeepAlive, now: time.Now}
}

// MarkOnline handles PUT /v1/presence. Presence writes never fail the request.
func (h *PresenceHandler) MarkOnline(c *gin.Context) {
	h.presence.MarkOnline(c.Request.Context(), middleware.UserIDFrom(c))
	c.Status(http.StatusNoContent)
}

// MarkOffline handles DELETE /v1/presence.
func (h *PresenceHandler) MarkOffline(c *gin.Context) {
	h.presence.MarkOffline(c.Request.Context(), middleware.UserIDFrom(c))
	c.Status(http.StatusNoContent)
}

// GetPresence handles GET /v1/presence/:id
func (h *PresenceHandler) GetPresence(c *gin.Context) {
	c.JSON(http.StatusOK, h.presence.Get(c.Request.Context(), c.Param("id"), h.now()))
}

// Session handles GET /v1/presence/session. The caller stays online for as
// long as the event stream is open and goes offline when it closes.
func (h *PresenceHandler) Session(c *gin.Context) {
	userID := middleware.UserIDFrom(c)
	ctx := c.Request.Context()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.presence.Heartbeat(ctx, userID)
	}()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.SSEvent("presence", gin.H{"userId": userID, "online": true})
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			<-done
			return
		case <-ticker.C:
			c.SSEvent("ping", h.now().UTC().Format(time.RFC3339))
			c.Writer.Flush()
		}
	}
}
