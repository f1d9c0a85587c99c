package handlers

import (
	"github.com/gin-gonic/gin"

	"chorus/services/presence-service/middleware"
)

// Handlers bundles everything mounted on the router.
type Handlers struct {
	Health    *HealthHandler
	Messages  *MessageHandler
	Calls     *CallHandler
	Debug     *DebugHandler
	Websocket *WebsocketHandler
}

// RegisterRoutes mounts the HTTP surface. Everything except /health requires
// a client token.
func RegisterRoutes(router *gin.Engine, h Handlers, jwtSecret string) {
	router.GET("/health", h.Health.Check)

	auth := middleware.Auth(jwtSecret)

	router.GET("/ws", auth, h.Websocket.Serve)

	v1 := router.Group("/api/v1")
	v1.Use(auth)
	{
		messages := v1.Group("/messages")
		{
			messages.GET("", h.Messages.ListMessages)
			messages.POST("", h.Messages.SendMessage)
			messages.DELETE("/:id", h.Messages.DeleteMessage)
		}

		calls := v1.Group("/calls")
		{
			calls.GET("/:roomId", h.Calls.GetCall)
			calls.POST("/:roomId/token", h.Calls.IssueToken)
		}
	}

	debug := router.Group("/debug")
	debug.Use(auth)
	{
		debug.GET("/online-users", h.Debug.OnlineUsers)
		debug.POST("/cleanup-online-status", h.Debug.CleanupOnlineStatus)
	}
}
