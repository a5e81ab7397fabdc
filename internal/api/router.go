package api

import (
	"github.com/Conceptual-Machines/melodygen-api/internal/api/handlers"
	apimiddleware "github.com/Conceptual-Machines/melodygen-api/internal/api/middleware"
	"github.com/Conceptual-Machines/melodygen-api/internal/config"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupRouter wires every route. db may be nil when the audit log is disabled.
func SetupRouter(cfg *config.Config, deps handlers.GenerationDeps, db *gorm.DB, version string) *gin.Engine {
	router := gin.New()

	// Recovery middleware (must be first)
	router.Use(apimiddleware.RecoverWithSentry())

	// Sentry middleware for error tracking
	router.Use(apimiddleware.SentryMiddleware())

	// Request tracking and structured logging
	router.Use(apimiddleware.RequestTracking())

	// CORS middleware
	router.Use(apimiddleware.CORS(cfg.AllowedOrigins))

	// Health check
	healthHandler := handlers.NewHealthHandler(deps.Registry, db)
	router.GET("/health", healthHandler.HealthCheck)

	// Metrics endpoint
	metricsHandler := handlers.NewMetricsHandler(version, deps.Pool, deps.Registry)
	router.GET("/api/metrics", metricsHandler.GetMetrics)

	api := router.Group("/api")
	{
		// Generation: /api/v0/lstm/generate, /api/v1/lstm/generate, /api/v2/lstm/generate
		generationHandler := handlers.NewGenerationHandler(cfg, deps)
		api.POST("/:variant/lstm/generate", generationHandler.Generate)

		// Four-voice harmonization of an uploaded melody
		harmonizeHandler := handlers.NewHarmonizeHandler(cfg, deps)
		api.GET("/harmonize/:filename", harmonizeHandler.Harmonize)

		// Seed upload and generated file access
		fileHandler := handlers.NewFileHandler(deps.Store)
		api.POST("/upload_midi", fileHandler.Upload)
		api.GET("/download/:filename", fileHandler.Download)
		api.GET("/preview/:filename", fileHandler.Preview)

		// Generation audit log
		historyHandler := handlers.NewHistoryHandler(deps.Logs)
		api.GET("/generations", historyHandler.ListGenerations)
	}

	return router
}
