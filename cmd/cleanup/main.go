package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Gresham24/invite-ai/internal/app"
	"github.com/Gresham24/invite-ai/internal/config"
	"github.com/Gresham24/invite-ai/internal/logging"
	"github.com/Gresham24/invite-ai/internal/models"
	"github.com/Gresham24/invite-ai/internal/orchestration"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	daysOld := flag.Int("days", cfg.CleanupDaysOld, "expire invites created more than this many days ago")
	viaTemporal := flag.Bool("temporal", false, "run the retention workflow on the Temporal worker instead of in-process")
	flag.Parse()

	logger, err := logging.New(cfg.Environment)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if *daysOld <= 0 {
		logger.Fatal("days must be positive", zap.Int("days", *daysOld))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var report *models.CleanupReport
	if *viaTemporal {
		report, err = runWorkflow(ctx, cfg, *daysOld, logger)
	} else {
		report, err = runLocal(ctx, cfg, *daysOld, logger)
	}
	if err != nil {
		logger.Fatal("cleanup failed", zap.Error(err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		logger.Error("failed to write report", zap.Error(err))
	}
	if len(report.Errors) > 0 {
		os.Exit(1)
	}
}

func runLocal(ctx context.Context, cfg *config.Config, daysOld int, logger *zap.Logger) (*models.CleanupReport, error) {
	a, err := app.New(ctx, cfg, nil, logger)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	return a.Service.Cleanup(ctx, daysOld, time.Now())
}

func runWorkflow(ctx context.Context, cfg *config.Config, daysOld int, logger *zap.Logger) (*models.CleanupReport, error) {
	c, err := orchestration.Dial(cfg.TemporalAddress, logger)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	return orchestration.RunRetention(ctx, c, cfg.TemporalTaskQueue, daysOld)
}
