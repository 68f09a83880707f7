// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/tracelane/internal/api"
	"github.com/tomtom215/tracelane/internal/cache"
	"github.com/tomtom215/tracelane/internal/config"
	"github.com/tomtom215/tracelane/internal/correlation"
	"github.com/tomtom215/tracelane/internal/database"
	"github.com/tomtom215/tracelane/internal/ingest"
	"github.com/tomtom215/tracelane/internal/logging"
	"github.com/tomtom215/tracelane/internal/supervisor"
	"github.com/tomtom215/tracelane/internal/supervisor/services"
	"github.com/tomtom215/tracelane/internal/tasks"
)

const httpShutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Format = cfg.Logging.Format
	logCfg.Caller = cfg.Logging.Caller
	logging.Init(logCfg)

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("upload_dir", cfg.Ingest.UploadDir).
		Str("cache_backend", cfg.Correlation.CacheBackend).
		Msg("Starting Tracelane")

	if err := os.MkdirAll(cfg.Ingest.TempDir, 0o750); err != nil {
		logging.Fatal().Err(err).Str("dir", cfg.Ingest.TempDir).Msg("Failed to create ingest temp dir")
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized successfully")

	resultCache, err := cache.Open(cfg.Correlation)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open result cache")
	}
	defer func() {
		if err := resultCache.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing result cache")
		}
	}()

	registry := tasks.NewRegistry()
	pipeline := ingest.NewPipeline(db, registry, cfg.Ingest, cfg.Tasks.StuckTimeout)
	engine := correlation.NewEngine(db, registry, cfg.Correlation, cfg.Tasks.StuckTimeout)
	shadows := correlation.NewCachedShadowDetector(engine, resultCache, cfg.Correlation.ShadowCacheTTL)

	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (DISABLE_RATE_LIMIT=true)")
	}
	if cfg.ShouldWarnAboutCORS() {
		logging.Warn().Msg("CORS is configured with wildcard origin (CORS_ORIGINS=*); set explicit origins in production")
	}

	handler := api.NewHandler(api.Deps{
		Ingestor:   pipeline,
		Files:      db,
		Readers:    db,
		Tasks:      registry,
		Correlator: engine,
		Shadows:    shadows,
		DB:         db,
	}, cfg)

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.NewRouter(handler).SetupChi(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddDataService(tasks.NewSweeper(registry, tasks.SweeperConfig{
		Interval:     cfg.Tasks.SweepInterval,
		Retention:    cfg.Tasks.Retention,
		StuckTimeout: cfg.Tasks.StuckTimeout,
	}))
	if collector, ok := resultCache.(cache.Collector); ok {
		tree.AddDataService(services.NewCacheGCService(collector, 0))
		logging.Info().Msg("Result cache GC added to supervisor tree")
	}
	tree.AddAPIService(services.NewHTTPServerService(server, httpShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Received shutdown signal, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
		stop()
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Application stopped gracefully")
}
