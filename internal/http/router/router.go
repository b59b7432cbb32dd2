package router

import (
	"github.com/gin-gonic/gin"

	"callyard.app/switchboard/internal/http/handler"
	"callyard.app/switchboard/internal/http/middleware"
)

type RouterConfig struct {
	AdminAPIKey string
}

type Handlers struct {
	Events        *handler.EventIngestHandler
	Conversations *handler.ConversationHandler
	Chains        *handler.ChainHandler
}

func SetupRoutes(router *gin.Engine, h Handlers, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	EventRouter(router.Group("/events"), h.Events)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.AdminAuth(cfg.AdminAPIKey))
	{
		ConversationRouter(v1.Group("/conversations"), h.Conversations)
		ChainRouter(v1.Group("/chains"), h.Chains)
	}
}
