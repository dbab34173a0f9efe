// Package main is the scraper: one run loads one source and refreshes
// the derivations that depend on it. The daily summary backfill re-executes
// this binary once per partition with the worker flags set.
//
// Examples:
//
//	scraper --full_history --listed_equities
//	scraper --days_from 7 --daily_summary_data
//	scraper --intradaily_data
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/trinistocks/pipeline/internal/config"
	"github.com/trinistocks/pipeline/internal/metrics"
	"github.com/trinistocks/pipeline/internal/orchestrator"
	"github.com/trinistocks/pipeline/internal/reliability"
	"github.com/trinistocks/pipeline/pkg/logger"
)

const (
	exitOK    = 0
	exitFatal = -1

	lockName = "trinistocks-scraper"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, err := orchestrator.ParseArgs(args, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		return exitFatal
	}

	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Error().Err(err).Msg("Failed to load configuration")
		return exitFatal
	}

	errs := logger.NewErrorBuffer(0)
	logCfg := logger.Config{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		Capture: errs,
	}
	if cfg.LogFile != "" {
		logCfg.File = &logger.FileConfig{Path: cfg.LogFile}
	}
	log := logger.New(logCfg)
	if opts.IsWorker() {
		log = log.With().Int("pid", os.Getpid()).Str("run_id", opts.RunID).Logger()
	}
	logger.SetGlobalLogger(log)

	// Workers report back to the parent, which mails once for the run.
	if !opts.IsWorker() {
		defer flushErrors(cfg, errs, log)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !opts.IsWorker() {
		lock := reliability.NewPIDLock(reliability.DefaultLockPath(lockName))
		if err := lock.Acquire(); err != nil {
			log.Error().Err(err).Str("lock", lock.Path()).Msg("Could not lock")
			return exitFatal
		}
		defer func() {
			if err := lock.Release(); err != nil {
				log.Warn().Err(err).Msg("Failed to release lock")
			}
		}()
	}

	rec := metrics.New()
	orch, closeAll, err := orchestrator.Build(ctx, cfg, rec, log)
	if err != nil {
		log.Error().Err(err).Msg("Failed to start")
		return exitFatal
	}
	defer func() {
		if err := closeAll(); err != nil {
			log.Warn().Err(err).Msg("Failed to release resources")
		}
	}()

	start := time.Now()
	runErr := orch.Run(ctx, opts)
	rec.RunFinished(jobName(opts), runErr)

	if !opts.IsWorker() && cfg.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := rec.Push(pushCtx, cfg.PushgatewayURL, "scraper"); err != nil {
			log.Warn().Err(err).Msg("Failed to push metrics")
		}
		cancel()
	}

	if runErr != nil {
		log.Error().Err(runErr).Dur("elapsed", time.Since(start)).Msg("Run failed")
		return exitFatal
	}
	log.Info().Dur("elapsed", time.Since(start)).Msg("Run complete")
	return exitOK
}

func jobName(opts orchestrator.Options) string {
	switch {
	case opts.IsWorker():
		return "daily_summary_worker"
	case opts.Range == orchestrator.RangeIntradaily:
		return "intradaily"
	}
	return string(opts.Source)
}

func flushErrors(cfg *config.Config, errs *logger.ErrorBuffer, log zerolog.Logger) {
	sent, err := logger.FlushErrors(logger.MailConfig{
		Host:      cfg.SMTP.Host,
		Port:      cfg.SMTP.Port,
		Username:  cfg.SMTP.Username,
		Password:  cfg.SMTP.Password,
		From:      cfg.SMTP.From,
		To:        cfg.SMTP.To,
		Subject:   "trinistocks scraper errors",
		Threshold: cfg.LogMailThreshold,
	}, errs)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to mail error report")
		return
	}
	if sent {
		log.Info().Int("lines", errs.Count()).Msg("Mailed error report")
	}
}
