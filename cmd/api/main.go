// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

// Command api is the entry point for the Storyforge HTTP API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis.
//  5. Run database migrations (idempotent).
//  6. Wire providers, the job orchestrator, and domain services.
//  7. Start the generation worker and the HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fablemint/storyforge/internal/api"
	"github.com/fablemint/storyforge/internal/asset"
	"github.com/fablemint/storyforge/internal/core/image"
	"github.com/fablemint/storyforge/internal/core/page"
	"github.com/fablemint/storyforge/internal/core/project"
	"github.com/fablemint/storyforge/internal/core/reference"
	"github.com/fablemint/storyforge/internal/export"
	"github.com/fablemint/storyforge/internal/job"
	"github.com/fablemint/storyforge/internal/orchestrator"
	"github.com/fablemint/storyforge/internal/platform/config"
	"github.com/fablemint/storyforge/internal/platform/constants"
	"github.com/fablemint/storyforge/internal/platform/migration"
	pgstore "github.com/fablemint/storyforge/internal/platform/postgres"
	redisstore "github.com/fablemint/storyforge/internal/platform/redis"
	"github.com/fablemint/storyforge/internal/provider"
	"github.com/fablemint/storyforge/internal/selection"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", "storyforge"))
	slog.SetDefault(log)

	log.Info("[Storyforge] service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", "storyforge"))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Asset Storage ──────────────────────────────────────────────────
	assets, err := asset.NewStore(cfg.StoragePath)
	must(log, err, "initialize asset storage")

	// ── 7. Providers & Orchestrator ───────────────────────────────────────
	registry := provider.NewRegistry(
		provider.NewJimeng(cfg.JimengBaseURL, cfg.JimengAPIKey),
		provider.NewVolcano(cfg.VolcanoBaseURL, cfg.VolcanoAPIKey),
		provider.NewMidjourney(cfg.MJBaseURL, cfg.MJAPIKey),
		provider.NewDify(cfg.DifyBaseURL, cfg.DifyAPIKey, provider.DifyWorkflows{
			ReferencePrompts: cfg.DifyWorkflowStage1,
			PagePrompt:       cfg.DifyWorkflowStage2,
			StyleReverse:     cfg.DifyWorkflowStyle,
			Judge:            cfg.DifyWorkflowSelector,
		}),
	)

	ledger := job.NewLedger(job.NewPostgresStore(pool), log)
	queue := job.NewQueue(rdb)
	orch := orchestrator.NewEngine(ledger, queue, cfg.MaxJobAttempts, log)
	worker := orchestrator.NewWorker(ledger, queue, registry, orchestrator.WorkerConfig{
		Concurrency: int64(cfg.ProviderConcurrency),
		RPS:         cfg.ProviderRPS,
		PollBase:    cfg.PollBaseInterval,
		PollMax:     cfg.PollMaxInterval,
	}, log)

	// ── 8. Domain Wiring ──────────────────────────────────────────────────
	projectRepository := project.NewRepository(pool)
	referenceRepository := reference.NewRepository(pool)
	pageRepository := page.NewRepository(pool)
	candidateRepository := image.NewRepository(pool)

	selector := selection.NewEngine(candidateRepository, orch, log)

	imageService := image.NewService(candidateRepository, orch, worker, selector, assets, log)
	projectService := project.NewService(projectRepository, orch, assets, log)
	referenceService := reference.NewService(referenceRepository, projectRepository, orch, imageService, log)
	pageService := page.NewService(pageRepository, projectRepository, referenceRepository, orch, imageService, log)
	exportService := export.NewService(projectRepository, pageRepository, referenceRepository, assets, log)

	// Terminal-status handlers: each job kind lands back in the domain
	// service that enqueued it.
	worker.Register(job.KindStyleReverse, projectService.HandleStyleReverse)
	worker.Register(job.KindReferencePrompts, referenceService.HandleReferencePrompts)
	worker.Register(job.KindPagePrompt, pageService.HandlePagePrompt)
	worker.Register(job.KindImage, imageService.HandleImageJob)
	worker.Register(job.KindJudge, selector.HandleJudgeResult)

	// ── 9. Health handlers (wired with real dependency checkers) ──────────
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func() error {
			return pgstore.Ping(context.Background(), pool)
		},
		CheckCache: func() error {
			return redisstore.Ping(context.Background(), rdb)
		},
	}, log)

	// ── 10. HTTP Server ───────────────────────────────────────────────────
	handlers := api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Project:   project.NewHandler(projectService),
		Reference: reference.NewHandler(referenceService),
		Page:      page.NewHandler(pageService),
		Image:     image.NewHandler(imageService),
		Jobs:      orchestrator.NewHandler(orch),
		Export:    export.NewHandler(exportService),
	}

	// runCtx ends the worker loops and the rate-limit janitor at shutdown.
	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	server := api.NewServer(runCtx, cfg, log, handlers)

	worker.Run(runCtx, 0)

	// ── 11. Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}

	// Give in-flight requests enough time to complete.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	// Stop the worker loops after the HTTP surface is closed so in-flight
	// requests can still enqueue, then drain provider calls in progress.
	runCancel()
	worker.Wait()

	log.Info("server stopped cleanly")
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
