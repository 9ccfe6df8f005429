package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/maukemana/catalog/internal/catalog"
	"github.com/maukemana/catalog/internal/config"
	"github.com/maukemana/catalog/internal/database"
	"github.com/maukemana/catalog/internal/handlers"
	"github.com/maukemana/catalog/internal/metrics"
	"github.com/maukemana/catalog/internal/middleware"
)

// Setup builds the Gin router over the catalog orchestrator.
func Setup(db *database.DB, cfg *config.Config, cat *catalog.Catalog) *gin.Engine {
	photoHandler := handlers.NewPhotoHandler(cat)
	folderHandler := handlers.NewFolderHandler(cat)
	eventHandler := handlers.NewEventHandler(cat)

	router := setupBaseRouter(cfg)

	router.GET("/health", healthCheck(db))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/api", apiDocumentation())
	router.GET("/api/v1/events", eventHandler.Stream)

	v1 := router.Group("/api/v1")
	{
		folders := v1.Group("/folders")
		{
			folders.POST("", folderHandler.SelectFolder)
			folders.GET("", folderHandler.ListFolders)
			folders.GET("/:id", folderHandler.GetFolder)
			folders.POST("/:id/scan", folderHandler.Scan)
			folders.POST("/:id/rescan", folderHandler.Rescan)
			folders.POST("/:id/cancel-scan", folderHandler.CancelScan)
		}

		photos := v1.Group("/photos")
		{
			photos.GET("", photoHandler.ListPhotos)
			photos.GET("/:id", photoHandler.GetPhoto)
			photos.POST("/flag", photoHandler.SetFlagBatch)
			photos.POST("/:id/flag", photoHandler.SetFlag)
			photos.POST("/remove", photoHandler.RemovePhotos)
			photos.POST("/:id/thumbnail", photoHandler.RequestThumbnail)
			photos.POST("/:id/preview", photoHandler.RequestPreview)
			photos.PATCH("/:id/priority/:kind", photoHandler.UpdatePriority)
			photos.POST("/:id/regenerate-thumbnail", photoHandler.RegenerateThumbnail)
		}

		queues := v1.Group("/queues")
		{
			queues.POST("/cancel-background", photoHandler.CancelBackgroundRequests)
		}
	}

	return router
}

func setupBaseRouter(cfg *config.Config) *gin.Engine {
	router := gin.New()

	router.Use(otelgin.Middleware("catalog"))
	router.Use(middleware.Observability())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RateLimit())
	router.SetTrustedProxies(nil)

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins
	corsConfig.AllowHeaders = []string{
		"Origin", "Content-Type", "Authorization", "Accept", "User-Agent",
		"Cache-Control", "Pragma", "X-Session-ID",
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	return router
}

func healthCheck(db *database.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"database":  "postgresql",
				"timestamp": time.Now().Unix(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "postgresql",
			"timestamp": time.Now().Unix(),
		})
	}
}

func apiDocumentation() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":        "catalog",
			"description": "derived-artifact scheduler for a local photo catalog",
			"endpoints": map[string]interface{}{
				"health":  "GET /health",
				"events":  "GET /api/v1/events",
				"folders": "GET/POST /api/v1/folders",
				"photos":  "GET /api/v1/photos/:id",
			},
		})
	}
}
