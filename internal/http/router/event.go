package router

import (
	"github.com/gin-gonic/gin"

	"callyard.app/switchboard/internal/http/handler"
)

func EventRouter(router *gin.RouterGroup, handler *handler.EventIngestHandler) {
	router.POST("/ingest", handler.Ingest)
}
