package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chorus/services/presence-service/services"
	"chorus/services/presence-service/utils"
)

type DebugHandler struct {
	presence   *services.Presence
	reconciler *services.Reconciler
	logger     *utils.Logger
}

func NewDebugHandler(presence *services.Presence, reconciler *services.Reconciler, logger *utils.Logger) *DebugHandler {
	return &DebugHandler{
		presence:   presence,
		reconciler: reconciler,
		logger:     logger,
	}
}

// OnlineUsers handles GET /debug/online-users. It re-asserts every connected
// user online, reports both presence sources and broadcasts the union.
func (h *DebugHandler) OnlineUsers(c *gin.Context) {
	ctx := c.Request.Context()

	if _, err := h.reconciler.Reassert(ctx); err != nil {
		h.logger.Warn("Failed to re-assert online users", "error", err)
	}

	resp, err := h.presence.OnlineUsers(ctx)
	if err != nil {
		h.logger.Error("Failed to list online users", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list online users"})
		return
	}

	h.presence.PublishOnline(ctx)
	c.JSON(http.StatusOK, resp)
}

// CleanupOnlineStatus handles POST /debug/cleanup-online-status[?threshold=10m]
func (h *DebugHandler) CleanupOnlineStatus(c *gin.Context) {
	var threshold time.Duration
	if raw := c.Query("threshold"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "threshold must be a positive duration"})
			return
		}
		threshold = d
	}

	resp, err := h.reconciler.Cleanup(c.Request.Context(), threshold)
	if err != nil {
		h.logger.Error("Failed to clean up online status", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clean up online status"})
		return
	}

	c.JSON(http.StatusOK, resp)
}
