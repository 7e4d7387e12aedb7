package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Gresham24/invite-ai/internal/app"
	"github.com/Gresham24/invite-ai/internal/config"
	"github.com/Gresham24/invite-ai/internal/generation"
	"github.com/Gresham24/invite-ai/internal/handlers"
	"github.com/Gresham24/invite-ai/internal/logging"
	"github.com/Gresham24/invite-ai/internal/middleware"
	"github.com/Gresham24/invite-ai/internal/telemetry"
)

func main() {
	ctx := context.Background()

	// .env is optional; real environment variables win
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Environment)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Invite API starting...",
		zap.String("environment", cfg.Environment),
		zap.String("database_driver", cfg.DatabaseDriver),
		zap.String("generation_provider", cfg.GenerationProvider),
	)

	shutdownTelemetry, err := telemetry.InitTracer(ctx, "invite-ai", cfg.OTLPEndpoint)
	if err != nil {
		// Log but don't fail, as collector might be down
		logger.Error("failed to initialize telemetry", zap.Error(err))
	} else {
		defer func() {
			if err := shutdownTelemetry(ctx); err != nil {
				logger.Error("failed to shutdown telemetry", zap.Error(err))
			}
		}()
	}

	client, err := generation.NewFromConfig(cfg)
	if err != nil {
		logger.Fatal("failed to create generation client", zap.Error(err))
	}
	breaker := middleware.NewCircuitBreaker()
	breaker.OnStateChange = func(from, to middleware.CircuitState) {
		logger.Warn("generation circuit changed state",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}

	a, err := app.New(ctx, cfg, generation.WithBreaker(client, breaker), logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}
	defer a.Close()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		Service:  a.Service,
		Renderer: a.Renderer,
		Uploader: a.Uploader,
		Bucket:   a.Bucket,
		Health:   a.Health,
		Logger:   logger,

		JWTSecret:      cfg.JWTSecret,
		CORSOrigins:    cfg.CORSOrigins,
		PublicURL:      cfg.PublicURL,
		UploadMaxBytes: cfg.UploadMaxBytes,
		CleanupDaysOld: cfg.CleanupDaysOld,

		DefaultLimiter: middleware.NewDefaultRateLimiter(),
		StrictLimiter:  middleware.NewStrictRateLimiter(),
		Breaker:        breaker,
	})

	// Generation can take up to the provider timeout
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.GenerationTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited gracefully")
}
