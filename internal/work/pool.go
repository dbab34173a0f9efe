package work

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/trinistocks/pipeline/internal/domain"
)

// Result is the outcome of one worker process.
type Result struct {
	Worker   int
	Dates    []domain.Date
	ExitCode int
	Duration time.Duration
	Report   *WorkerReport
	Err      error
}

// OK reports whether the worker exited cleanly.
func (r Result) OK() bool {
	return r.Err == nil && r.ExitCode == 0
}

// Pool runs partitions in parallel worker processes.
type Pool struct {
	binary    string
	args      []string
	reportDir string
	log       zerolog.Logger

	command func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewPool creates a pool that starts binary with args plus the worker
// flags. Reports are written under reportDir.
func NewPool(binary string, args []string, reportDir string, log zerolog.Logger) *Pool {
	return &Pool{
		binary:    binary,
		args:      args,
		reportDir: reportDir,
		log:       log.With().Str("component", "worker_pool").Logger(),
		command:   exec.CommandContext,
	}
}

// Run starts one worker per non-empty partition and waits for all of
// them. Results are in partition order; empty partitions are left out.
func (p *Pool) Run(ctx context.Context, runID string, partitions [][]domain.Date) []Result {
	if err := os.MkdirAll(p.reportDir, 0o755); err != nil {
		p.log.Error().Err(err).Str("dir", p.reportDir).Msg("Failed to create report directory")
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []Result
	)
	for i, dates := range partitions {
		if len(dates) == 0 {
			continue
		}
		wg.Add(1)
		go func(worker int, dates []domain.Date) {
			defer wg.Done()
			res := p.runWorker(ctx, runID, worker, dates)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}(i, dates)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Worker < results[j].Worker })
	return results
}

func (p *Pool) runWorker(ctx context.Context, runID string, worker int, dates []domain.Date) Result {
	res := Result{Worker: worker, Dates: dates}
	reportPath := filepath.Join(p.reportDir, fmt.Sprintf("%s-%d.msgpack", runID, worker))
	defer os.Remove(reportPath)

	args := append(append([]string{}, p.args...),
		FlagWorkerDates, FormatDates(dates),
		FlagReportFile, reportPath,
		FlagRunID, runID,
	)
	cmd := p.command(ctx, p.binary, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	log := p.log.With().Int("worker", worker).Str("first", dates[0].String()).Str("last", dates[len(dates)-1].String()).Logger()
	log.Info().Int("dates", len(dates)).Msg("Starting worker")

	start := time.Now()
	err := cmd.Run()
	res.Duration = time.Since(start)

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = -1
		res.Err = fmt.Errorf("failed to start worker %d: %w", worker, err)
	}

	if report, rerr := ReadReport(reportPath); rerr == nil {
		res.Report = report
	} else if res.Err == nil {
		log.Warn().Err(rerr).Msg("Worker left no report")
	}

	if !res.OK() {
		log.Error().Err(res.Err).Int("exit_code", res.ExitCode).Dur("duration", res.Duration).Msg("Worker failed")
	} else {
		log.Info().Dur("duration", res.Duration).Msg("Worker finished")
	}
	return res
}

// Summary totals a set of worker results.
type Summary struct {
	Workers int
	Failed  int
	Rows    int
	Fetched int
	Skipped int
}

// Summarize totals results.
func Summarize(results []Result) Summary {
	s := Summary{Workers: len(results)}
	for _, r := range results {
		if !r.OK() {
			s.Failed++
		}
		if r.Report != nil {
			s.Rows += r.Report.Rows
			s.Fetched += len(r.Report.Fetched)
			s.Skipped += len(r.Report.Skipped)
		}
	}
	return s
}
