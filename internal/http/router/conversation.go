package router

import (
	"github.com/gin-gonic/gin"

	"callyard.app/switchboard/internal/http/handler"
)

func ConversationRouter(router *gin.RouterGroup, handler *handler.ConversationHandler) {
	router.GET("", handler.List)
	router.GET("/:id", handler.Get)
	router.DELETE("/:id", handler.Delete)
	router.POST("/:id/replay", handler.Replay)
}

func ChainRouter(router *gin.RouterGroup, handler *handler.ChainHandler) {
	router.GET("", handler.List)
}
