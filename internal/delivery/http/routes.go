package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/creatorpulse/backend/config"
	"github.com/creatorpulse/backend/internal/platform/logger"
)

// SetupRouter creates and configures the Gin router. gatherer backs /metrics and may be nil.
func SetupRouter(cfg *config.Config, handler *Handler, gatherer prometheus.Gatherer, log *logger.Logger) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if log == nil {
		log = logger.NewNop()
	}

	router := gin.New()

	// Global middleware
	router.Use(RecoveryMiddleware(log))
	router.Use(LoggerMiddleware(log))
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	router.GET("/health", handler.HealthCheck)
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		products := v1.Group("/products")
		{
			products.POST("", handler.IngestProduct)
			products.GET("/:id", handler.GetProduct)
			products.DELETE("/:id", handler.DeleteProduct)
			products.GET("/:id/matches", handler.ListMatches)
			products.GET("/:id/confirmed", handler.ListConfirmed)
		}

		v1.POST("/matching/runs", handler.RunMatching)

		matches := v1.Group("/matches")
		{
			matches.POST("/expire", handler.ExpireMatches)
			matches.POST("/:id/confirm", handler.ConfirmMatch)
			matches.POST("/:id/reject", handler.RejectMatch)
			matches.POST("/:id/revoke", handler.RevokeMatch)
			matches.POST("/:id/unavailable", handler.MarkMatchUnavailable)
		}
	}

	return router
}
