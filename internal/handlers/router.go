package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/Gresham24/invite-ai/internal/imagestore"
	"github.com/Gresham24/invite-ai/internal/invite"
	"github.com/Gresham24/invite-ai/internal/middleware"
	"github.com/Gresham24/invite-ai/internal/render"
)

// RouterConfig holds everything the HTTP surface needs
type RouterConfig struct {
	Service  *invite.Service
	Renderer *render.Renderer
	Uploader *imagestore.Uploader
	Bucket   imagestore.Bucket
	Health   map[string]Pinger
	Logger   *zap.Logger

	JWTSecret      string
	CORSOrigins    []string
	PublicURL      func(path string) string
	UploadMaxBytes int64
	CleanupDaysOld int

	DefaultLimiter *middleware.RateLimiter
	StrictLimiter  *middleware.RateLimiter
	Breaker        *middleware.CircuitBreaker
}

// NewRouter builds the gin engine with every route of the service.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.DefaultLimiter == nil {
		cfg.DefaultLimiter = middleware.NewDefaultRateLimiter()
	}
	if cfg.StrictLimiter == nil {
		cfg.StrictLimiter = middleware.NewStrictRateLimiter()
	}
	if cfg.Breaker == nil {
		cfg.Breaker = middleware.NewCircuitBreaker()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.Metrics())
	router.Use(middleware.CORS(cfg.CORSOrigins))

	healthHandler := NewHealthHandler(cfg.Health)
	router.GET("/health", healthHandler.Health)
	router.GET("/health/deep", healthHandler.DeepHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	pageHandler := NewPageHandler(cfg.Service, cfg.Renderer, logger)
	router.GET("/invite/:id", pageHandler.Page)
	router.GET("/invite/:id/frame", pageHandler.Frame)

	if cfg.Bucket != nil {
		assetHandler := NewAssetHandler(cfg.Bucket, logger)
		router.GET("/assets/*path", assetHandler.Serve)
	}

	inviteHandler := NewInviteHandler(cfg.Service, func(id string) string {
		return cfg.PublicURL("/invite/" + id)
	}, logger)
	auth := middleware.Auth(cfg.JWTSecret, logger)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RateLimitMiddleware(cfg.DefaultLimiter))
	{
		invites := v1.Group("/invites")
		{
			invites.GET("/:id", inviteHandler.Get)
			invites.GET("/:id/analytics", inviteHandler.Analytics)
			invites.DELETE("/:id", auth, inviteHandler.Delete)
		}

		// Generation routes - stricter rate limit + circuit breaker
		generation := v1.Group("")
		generation.Use(middleware.RateLimitMiddleware(cfg.StrictLimiter))
		{
			guarded := generation.Group("", middleware.CircuitBreakerMiddleware(cfg.Breaker))
			guarded.POST("/invites", inviteHandler.Create)
			guarded.POST("/invites/:id/regenerate", inviteHandler.Regenerate)

			if cfg.Uploader != nil {
				uploadHandler := NewUploadHandler(cfg.Service, cfg.Uploader, cfg.UploadMaxBytes, logger)
				generation.POST("/uploads", uploadHandler.Upload)
			}
		}

		users := v1.Group("/users", auth)
		users.GET("/:email/invites", middleware.RequireSelfOrAdmin("email", logger), inviteHandler.ListForOwner)

		admin := v1.Group("/admin", auth, middleware.RequireRole(middleware.RoleAdmin, logger))
		admin.POST("/cleanup", inviteHandler.Cleanup(cfg.CleanupDaysOld))
	}

	return router
}
