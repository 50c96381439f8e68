package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler, metrics http.Handler) {
	api := router.Group("/api/v1")
	{
		api.GET("/instruments", handler.ListInstruments)
		api.GET("/instruments/:name", handler.GetInstrument)
		api.GET("/instruments/:name/series", handler.GetSeries)
		api.POST("/instruments/:name/refresh", handler.RefreshInstrument)
		api.POST("/refresh", handler.RefreshAll)

		api.GET("/indices", handler.ListIndices)
		api.POST("/indices/sync", handler.SyncIndices)
	}

	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
}
