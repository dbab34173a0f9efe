// Package main is the scheduler daemon. It runs the scraper on a fixed
// weekly schedule, keeps the store healthy and serves /health, /status
// and /metrics.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trinistocks/pipeline/internal/config"
	"github.com/trinistocks/pipeline/internal/database"
	"github.com/trinistocks/pipeline/internal/metrics"
	"github.com/trinistocks/pipeline/internal/reliability"
	"github.com/trinistocks/pipeline/internal/scheduler"
	"github.com/trinistocks/pipeline/internal/server"
	"github.com/trinistocks/pipeline/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logCfg := logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty}
	if cfg.LogFile != "" {
		logCfg.File = &logger.FileConfig{Path: cfg.LogFile}
	}
	log := logger.New(logCfg)
	logger.SetGlobalLogger(log)

	log.Info().Str("scraper", cfg.ScraperBinary).Msg("Starting scheduler")

	db, err := database.New(database.Config{Driver: cfg.DBDriver, DSN: cfg.DBDSN})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	rec := metrics.New()
	sched := scheduler.New(log, scheduler.WithObserver(rec))

	entries := scheduler.ScraperEntries(cfg.ScraperBinary)
	entries = append(entries,
		scheduler.Entry{Schedule: "0 0 3 * * *", Job: reliability.NewDailyMaintenance(db, cfg.CacheDir, log)},
		scheduler.Entry{Schedule: "0 0 3 * * SUN", Job: reliability.NewWeeklyMaintenance(db, log)},
	)
	for _, e := range entries {
		if err := sched.AddJob(e.Schedule, e.Job); err != nil {
			log.Fatal().Err(err).Str("job", e.Job.Name()).Msg("Failed to schedule job")
		}
	}

	srv := server.New(server.Config{
		Log:     log,
		Port:    cfg.StatusPort,
		Tracker: sched.Tracker(),
		Metrics: rec.Handler(),
		DB:      db,
	})
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	sched.Start()
	log.Info().Int("jobs", len(entries)).Int("port", cfg.StatusPort).Msg("Scheduler started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")

	// running scraper processes are cancelled with the scheduler
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Scheduler stopped")
}
