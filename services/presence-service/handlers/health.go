package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chorus/services/presence-service/signaling"
)

type HealthResponse struct {
	Status      string    `json:"status"`
	Service     string    `json:"service"`
	ActiveCalls int       `json:"activeCalls"`
	Timestamp   time.Time `json:"timestamp"`
}

type HealthHandler struct {
	coordinator *signaling.Coordinator
}

func NewHealthHandler(coordinator *signaling.Coordinator) *HealthHandler {
	return &HealthHandler{coordinator: coordinator}
}

// Check handles GET /health
func (h *HealthHandler) Check(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:      "healthy",
		Service:     "presence-service",
		ActiveCalls: h.coordinator.ActiveCalls(),
		Timestamp:   time.Now().UTC(),
	})
}
