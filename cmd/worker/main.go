package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/Gresham24/invite-ai/internal/app"
	"github.com/Gresham24/invite-ai/internal/config"
	"github.com/Gresham24/invite-ai/internal/logging"
	"github.com/Gresham24/invite-ai/internal/orchestration"
)

func main() {
	ctx := context.Background()
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

	a, err := app.New(ctx, cfg, nil, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}
	defer a.Close()

	c, err := orchestration.Dial(cfg.TemporalAddress, logger)
	if err != nil {
		logger.Fatal("failed to connect to temporal", zap.Error(err))
	}
	defer c.Close()
	logger.Info("connected to temporal", zap.String("address", cfg.TemporalAddress))

	if err := orchestration.EnsureSchedule(ctx, c, cfg.TemporalTaskQueue, cfg.CleanupDaysOld); err != nil {
		logger.Fatal("failed to create retention schedule", zap.Error(err))
	}

	w := orchestration.NewWorker(c, cfg.TemporalTaskQueue, orchestration.NewActivities(a.Service))
	logger.Info("retention worker started",
		zap.String("task_queue", cfg.TemporalTaskQueue),
		zap.Int("days_old", cfg.CleanupDaysOld),
	)
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Fatal("worker stopped", zap.Error(err))
	}
}
