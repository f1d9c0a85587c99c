package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chorus/services/presence-service/middleware"
	"chorus/services/presence-service/models"
	"chorus/services/presence-service/services"
	"chorus/services/presence-service/utils"
)

type MessageHandler struct {
	relay  *services.Relay
	logger *utils.Logger
}

func NewMessageHandler(relay *services.Relay, logger *utils.Logger) *MessageHandler {
	return &MessageHandler{
		relay:  relay,
		logger: logger,
	}
}

// SendMessage handles POST /api/v1/messages
func (h *MessageHandler) SendMessage(c *gin.Context) {
	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	msg, err := h.relay.Send(c.Request.Context(), middleware.UserID(c), req.ReceiverID, req.Body)
	if err != nil {
		h.respondError(c, "Failed to send message", err)
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// ListMessages handles GET /api/v1/messages?with={userId}
func (h *MessageHandler) ListMessages(c *gin.Context) {
	with := c.Query("with")
	if with == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "with parameter is required",
		})
		return
	}

	msgs, err := h.relay.History(c.Request.Context(), middleware.UserID(c), with)
	if err != nil {
		h.respondError(c, "Failed to fetch messages", err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  msgs,
		"total": len(msgs),
	})
}

// DeleteMessage handles DELETE /api/v1/messages/:id
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	err := h.relay.DeleteAs(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		h.respondError(c, "Failed to delete message", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Message deleted",
	})
}

func (h *MessageHandler) respondError(c *gin.Context, msg string, err error) {
	switch {
	case errors.Is(err, services.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
	case errors.Is(err, services.ErrInvalidMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrNotMessageOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		h.logger.Error(msg, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}
