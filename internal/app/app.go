// Package app wires the invite service from configuration. The server, the
// retention worker and the cleanup command share it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Gresham24/invite-ai/internal/config"
	"github.com/Gresham24/invite-ai/internal/database"
	"github.com/Gresham24/invite-ai/internal/economics"
	"github.com/Gresham24/invite-ai/internal/eventbus"
	"github.com/Gresham24/invite-ai/internal/generation"
	"github.com/Gresham24/invite-ai/internal/handlers"
	"github.com/Gresham24/invite-ai/internal/imagestore"
	"github.com/Gresham24/invite-ai/internal/invite"
	"github.com/Gresham24/invite-ai/internal/render"
	"github.com/Gresham24/invite-ai/internal/sanitize"
	"github.com/Gresham24/invite-ai/internal/store"
	"github.com/Gresham24/invite-ai/internal/verification"
)

// App holds the wired components and the resources to release on shutdown
type App struct {
	Store    store.Store
	Service  *invite.Service
	Renderer *render.Renderer
	Uploader *imagestore.Uploader
	Bucket   imagestore.Bucket
	Health   map[string]handlers.Pinger

	logger  *zap.Logger
	closers []func()
}

// New connects to the configured backends and builds the invite service.
// gen may be nil for processes that never generate, such as the retention
// worker. Outside production, unreachable Redis and NATS degrade to running
// without a cache and with in-memory images.
func New(ctx context.Context, cfg *config.Config, gen generation.Client, logger *zap.Logger) (*App, error) {
	a := &App{logger: logger, Health: map[string]handlers.Pinger{}}

	st, err := a.openStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	rdb, err := database.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		if cfg.IsProduction() {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		logger.Warn("Redis unavailable, running without cache", zap.Error(err))
		a.Health["redis"] = nil
	} else {
		a.closers = append(a.closers, func() { rdb.Close() })
		a.Health["redis"] = rdb
		st = store.NewCachedStore(st, store.NewRedisCache(rdb.Client()), cfg.CacheTTL, logger)
	}
	a.Store = st

	events, bucket, err := a.openNATS(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Bucket = bucket
	a.Uploader = imagestore.NewUploader(bucket, cfg.UploadMaxBytes, logger)

	rules, err := sanitize.CompileRules(cfg.SanitizeExtraPatterns)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("sanitize rules: %w", err)
	}
	filter := sanitize.New(sanitize.WithMaxLength(cfg.SanitizeMaxLength), sanitize.WithRules(rules...))

	renderOpts := []render.Option{
		render.WithFilter(filter),
		render.WithReadyTimeout(cfg.RenderReadyTimeout),
		render.WithLogger(logger),
	}
	if len(cfg.RenderRuntimeScripts) > 0 {
		renderOpts = append(renderOpts, render.WithRuntimeScripts(cfg.RenderRuntimeScripts))
	}
	a.Renderer = render.New(renderOpts...)

	a.Service = invite.NewService(invite.Deps{
		Store:           st,
		Generator:       gen,
		Filter:          filter,
		Sealer:          verification.NewSealService(cfg.ArtifactSealKey),
		Renderer:        a.Renderer,
		Usage:           economics.NewService(st, logger),
		Uploader:        a.Uploader,
		Events:          events,
		Logger:          logger,
		MaxOutputTokens: cfg.GenerationMaxTokens,
	})
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.DatabaseDriver {
	case "sqlite":
		db, err := database.OpenSQLite(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := database.RunSQLiteMigrations(db, a.logger); err != nil {
			db.Close()
			return nil, err
		}
		s := store.NewSQLiteStore(db)
		a.closers = append(a.closers, func() { s.Close() })
		a.Health["database"] = s
		return s, nil
	default:
		if err := database.RunMigrations(cfg.DatabaseURL, a.logger); err != nil {
			return nil, err
		}
		pg, err := database.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		s := store.NewPostgresStore(pg.Pool())
		a.Health["database"] = s
		return s, nil
	}
}

func (a *App) openNATS(ctx context.Context, cfg *config.Config) (eventbus.Publisher, imagestore.Bucket, error) {
	urls := imagestore.AssetURL(cfg.PublicBaseURL)

	nc, err := eventbus.Connect(cfg.NATSURL, "invite-ai", a.logger)
	if err != nil {
		if cfg.IsProduction() {
			return nil, nil, err
		}
		a.logger.Warn("NATS unavailable, keeping images in memory and dropping events", zap.Error(err))
		bucket := imagestore.NewMemoryBucket(urls)
		a.Health["images"] = bucket
		return eventbus.Nop{}, bucket, nil
	}
	a.closers = append(a.closers, func() { drain(nc, a.logger) })

	publisher, err := eventbus.NewJetStreamPublisher(nc, a.logger)
	if err != nil {
		return nil, nil, err
	}
	bucket, err := imagestore.NewJetStreamBucket(ctx, nc, cfg.ImageBucket, urls, a.logger)
	if err != nil {
		return nil, nil, err
	}
	a.Health["images"] = bucket
	return publisher, bucket, nil
}

func drain(nc *nats.Conn, logger *zap.Logger) {
	if err := nc.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		logger.Warn("NATS drain failed", zap.Error(err))
	}
}

// Close waits for background work and releases connections in reverse order.
func (a *App) Close() {
	if a.Service != nil {
		a.Service.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
