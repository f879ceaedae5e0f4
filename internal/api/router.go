package api

import (
	"github.com/engelke/fashion-hack-2024/internal/api/handler"
	"github.com/engelke/fashion-hack-2024/internal/api/middleware"
	"github.com/engelke/fashion-hack-2024/internal/config"
	"github.com/engelke/fashion-hack-2024/internal/logger"
	"github.com/engelke/fashion-hack-2024/internal/service"
	"github.com/gin-gonic/gin"
)

// Services are the application services exposed over HTTP.
type Services struct {
	Ingest *service.IngestService
	Search *service.SearchService
	Outfit *service.OutfitService

	AnalysisEnabled bool
}

// RouterConfig holds HTTP-level settings.
type RouterConfig struct {
	Mode           string // debug, release, test
	CORS           config.CORSConfig
	MaxUploadBytes int64
}

// SetupRouter configures the Gin router with all routes.
// Parameters:
//   - svc: services backing the handlers.
//   - cfg: Gin mode, CORS and upload limits.
//   - log: base logger for the request middleware.
// Returns:
//   - *gin.Engine: configured router.
func SetupRouter(svc *Services, cfg RouterConfig, log *logger.Logger) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(cfg.CORS))

	healthHandler := handler.NewHealthHandler(svc.AnalysisEnabled, svc.Search.SearchEnabled())
	imageHandler := handler.NewImageHandler(svc.Ingest, svc.Search, cfg.MaxUploadBytes)
	searchHandler := handler.NewSearchHandler(svc.Search)
	outfitHandler := handler.NewOutfitHandler(svc.Outfit)
	adminHandler := handler.NewAdminHandler(svc.Ingest)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		// Images
		v1.POST("/images", imageHandler.Upload)
		v1.GET("/images", imageHandler.List)
		v1.GET("/images/:id", imageHandler.Get)
		v1.POST("/images/:id/analyze", imageHandler.Analyze)
		v1.GET("/images/:id/signed-url", imageHandler.SignedURL)

		v1.GET("/outfits/suggestions", outfitHandler.Suggest)

		v1.POST("/search", searchHandler.Search)
		v1.GET("/stats", searchHandler.GetStats)

		admin := v1.Group("/admin")
		admin.POST("/retry-failed", adminHandler.RetryFailed)
		admin.POST("/reindex", adminHandler.Reindex)
		admin.GET("/status", adminHandler.GetStatus)
	}

	return r
}
