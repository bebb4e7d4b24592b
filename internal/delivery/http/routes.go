package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pricepilot/backend/config"
)

// SetupRouter creates and configures the Gin router.
// metricsHandler is mounted at /metrics when non-nil.
func SetupRouter(cfg *config.Config, handler *Handler, metricsHandler http.Handler) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(RecoveryMiddleware())
	router.Use(RequestIDMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	router.GET("/health", handler.HealthCheck)
	if metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		v1.GET("/countries", handler.Countries)
		v1.GET("/stats", handler.Stats)

		search := v1.Group("/search")
		{
			search.POST("", handler.Search)
			search.POST("/basic", handler.SearchBasic)
			if cfg.Server.Environment != "production" {
				search.POST("/debug", handler.SearchDebug)
			}
		}
	}

	return router
}
