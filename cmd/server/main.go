// Package main is the entrypoint for the finintel ingestion and analysis
// platform: a scheduler-driven pipeline that pulls market news, RSS feeds,
// social sentiment, and congressional trading disclosures, normalizes and
// enriches them via an LLM, and persists the result across a dual-store
// architecture (Postgres+pgvector research store, sqlite meta store).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/finintel/internal/config"
	"github.com/aristath/finintel/internal/di"
	"github.com/aristath/finintel/internal/scheduler"
	"github.com/aristath/finintel/internal/server"
	"github.com/aristath/finintel/pkg/logger"
)

func main() {
	log := logger.New(logger.Config{Level: "info", Pretty: true})
	log.Info().Msg("starting finintel")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	log = logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})

	container, err := di.Build(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build dependency container")
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close stores")
		}
	}()

	if cfg.DisableScheduler {
		log.Info().Msg("DISABLE_SCHEDULER set, scheduler not started")
	} else {
		started, err := container.Scheduler.StartScheduler(scheduler.StartOptions{
			HealthCheck:     container.HealthCheckJob(),
			StartupBackfill: container.StartupBackfill,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to start scheduler")
		}
		if !started {
			log.Info().Msg("scheduler already owned by another process")
		}
	}

	srv := server.New(server.Config{
		Port:      cfg.Port,
		Log:       log,
		Scheduler: container.Scheduler,
		DevMode:   cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil && err.Error() != "http: Server closed" {
			log.Fatal().Err(err).Msg("failed to start HTTP server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("finintel started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server forced to shutdown")
	}
	container.Scheduler.ShutdownScheduler()

	log.Info().Msg("finintel stopped")
}
