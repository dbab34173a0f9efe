// Package orchestrator dispatches a scraper run: it plans the dates a
// source is missing, loads them in-process or through worker processes,
// and reruns the derivations that depend on what was loaded.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/trinistocks/pipeline/internal/derivation"
	"github.com/trinistocks/pipeline/internal/domain"
	"github.com/trinistocks/pipeline/internal/modules/marketsummary"
	"github.com/trinistocks/pipeline/internal/utils"
	"github.com/trinistocks/pipeline/internal/work"
)

// ErrPartialLoad marks a load that stored some of its input. Dependent
// derivations still run.
var ErrPartialLoad = errors.New("partial load")

// ErrWorkersFailed is returned when at least one worker process failed.
// Siblings always run to completion.
var ErrWorkersFailed = errors.New("worker processes failed")

// ErrWorkerFailed makes a worker process exit non-zero.
var ErrWorkerFailed = errors.New("worker failed")

// Runner loads a source in one call.
type Runner interface {
	Run(ctx context.Context) (int, error)
}

// SummaryLoader fetches daily summary pages.
type SummaryLoader interface {
	Run(ctx context.Context, dates []domain.Date) (marketsummary.Result, error)
}

// DateStore lists the dates a table already holds.
type DateStore interface {
	Dates(ctx context.Context, from domain.Date) (map[domain.Date]struct{}, error)
}

// CovidLoader loads case reports and aggregator files.
type CovidLoader interface {
	RunReports(ctx context.Context) (int, error)
	RunAggregator(ctx context.Context, dates []domain.Date) (int, error)
	StoredAggregatorDates(ctx context.Context, from domain.Date) (map[domain.Date]struct{}, error)
}

// BrokerLoader loads broker reports over a date range.
type BrokerLoader interface {
	Run(ctx context.Context, from, to domain.Date) (int, error)
}

// StatementImporter imports financial statements.
type StatementImporter interface {
	Import(ctx context.Context) (int, error)
}

// Deriver runs derivation steps.
type Deriver interface {
	Run(ctx context.Context, names ...string) ([]derivation.StepResult, error)
}

// WorkerPool runs date partitions in worker processes.
type WorkerPool interface {
	Run(ctx context.Context, runID string, partitions [][]domain.Date) []work.Result
}

// Observer is notified of worker exits.
type Observer interface {
	WorkerExited(code int)
}

// Orchestrator routes a parsed command line to the services that serve it.
type Orchestrator struct {
	Universe     Runner
	News         Runner
	Dividends    Runner
	Summary      SummaryLoader
	SummaryDates DateStore
	Covid        CovidLoader
	Broker       BrokerLoader
	Statements   StatementImporter
	Engine       Deriver
	Pool         WorkerPool
	Workers      int
	Observer     Observer

	log   zerolog.Logger
	today func() domain.Date
}

// New creates an orchestrator. Services are assigned by the caller.
func New(log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		Workers: 1,
		log:     log.With().Str("component", "orchestrator").Logger(),
		today:   domain.Today,
	}
}

// derivations that follow each source
var followUps = map[Source][]string{
	SourceDailySummary: {
		derivation.StepDividendYields,
		derivation.StepFundamentalRatios,
		derivation.StepPortfolio,
		derivation.StepSimulator,
	},
	SourceDividends: {
		derivation.StepDividendYields,
		derivation.StepFundamentalRatios,
	},
	SourceTechnical: {derivation.StepTechnical},
	SourceCovid:     {derivation.StepCovidDaily},
	SourceFinancial: {derivation.StepFundamentalRatios},
}

// Run executes one run.
func (o *Orchestrator) Run(ctx context.Context, opts Options) error {
	if opts.IsWorker() {
		return o.runWorker(ctx, opts)
	}

	today := o.today()
	if opts.Range == RangeIntradaily {
		return o.runIntradaily(ctx, today)
	}

	start := opts.Start(today)
	log := o.log.With().Str("source", string(opts.Source)).Str("from", start.String()).Logger()
	log.Info().Msg("Starting run")

	done := utils.OperationTimer(string(opts.Source), log)
	loadErr := o.load(ctx, opts.Source, start, today)
	done()
	if loadErr != nil && !errors.Is(loadErr, ErrPartialLoad) {
		// nothing new to derive from
		return loadErr
	}

	var deriveErr error
	switch opts.Source {
	case SourceDerived:
		deriveErr = o.derive(ctx)
	default:
		if steps := followUps[opts.Source]; len(steps) > 0 {
			deriveErr = o.derive(ctx, steps...)
		}
	}
	return errors.Join(loadErr, deriveErr)
}

func (o *Orchestrator) load(ctx context.Context, source Source, start, today domain.Date) error {
	switch source {
	case SourceListedEquities:
		return o.runOne(ctx, "listed equities", o.Universe)
	case SourceNews:
		return o.runOne(ctx, "news", o.News)
	case SourceDividends:
		return o.runOne(ctx, "dividends", o.Dividends)
	case SourceDailySummary:
		return o.runDailySummary(ctx, start, today)
	case SourceCovid:
		return o.runCovid(ctx, start, today)
	case SourceBroker:
		n, err := o.Broker.Run(ctx, start, today)
		if err != nil {
			return fmt.Errorf("failed to load broker reports: %w", err)
		}
		o.log.Info().Int("rows", n).Msg("Broker reports loaded")
		return nil
	case SourceFinancial:
		n, err := o.Statements.Import(ctx)
		if err != nil {
			return fmt.Errorf("failed to import statements: %w", err)
		}
		o.log.Info().Int("rows", n).Msg("Statements imported")
		return nil
	case SourceTechnical, SourceDerived:
		return nil
	}
	return fmt.Errorf("%w: unknown source %q", ErrUsage, source)
}

func (o *Orchestrator) runOne(ctx context.Context, name string, r Runner) error {
	n, err := r.Run(ctx)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", name, err)
	}
	o.log.Info().Str("what", name).Int("rows", n).Msg("Load complete")
	return nil
}

// runDailySummary plans the missing business days and fans them out to
// worker processes, one per partition.
func (o *Orchestrator) runDailySummary(ctx context.Context, start, today domain.Date) error {
	stored, err := o.SummaryDates.Dates(ctx, start)
	if err != nil {
		return fmt.Errorf("failed to list stored summary dates: %w", err)
	}

	plan := work.NewPlan(string(SourceDailySummary), start, today, dateKeys(stored), o.Workers)
	if len(plan.Dates) == 0 {
		o.log.Info().Msg("Daily summary is up to date")
		return nil
	}

	runID := work.NewRunID()
	o.log.Info().
		Str("run_id", runID).
		Int("dates", len(plan.Dates)).
		Int("workers", o.Workers).
		Msg("Starting daily summary backfill")

	results := o.Pool.Run(ctx, runID, plan.Partitions)
	for _, r := range results {
		if o.Observer != nil {
			o.Observer.WorkerExited(r.ExitCode)
		}
	}

	sum := work.Summarize(results)
	o.log.Info().
		Int("workers", sum.Workers).
		Int("failed", sum.Failed).
		Int("fetched", sum.Fetched).
		Int("skipped", sum.Skipped).
		Int("rows", sum.Rows).
		Msg("Daily summary backfill complete")

	if sum.Failed > 0 {
		return fmt.Errorf("%w: %w: %d of %d", ErrPartialLoad, ErrWorkersFailed, sum.Failed, sum.Workers)
	}
	return nil
}

// runWorker loads the partition assigned by the parent and leaves a
// report at opts.ReportFile.
func (o *Orchestrator) runWorker(ctx context.Context, opts Options) error {
	report := work.NewReport(opts.RunID, string(SourceDailySummary), opts.WorkerDates)

	res, err := o.Summary.Run(ctx, opts.WorkerDates)
	for _, d := range res.Fetched {
		report.Fetch(d)
	}
	for _, d := range res.Skipped {
		report.Skip(d)
	}
	for _, d := range res.Failed {
		report.Fail(fmt.Errorf("failed to load %s", d))
	}
	report.Rows = res.Rows
	if err != nil {
		report.Fail(err)
	}

	if werr := report.Write(opts.ReportFile); werr != nil {
		o.log.Error().Err(werr).Str("path", opts.ReportFile).Msg("Failed to write worker report")
		return errors.Join(ErrWorkerFailed, werr)
	}
	if report.Failed() {
		return fmt.Errorf("%w: %d errors", ErrWorkerFailed, len(report.Errors))
	}
	return nil
}

func (o *Orchestrator) runIntradaily(ctx context.Context, today domain.Date) error {
	if !today.IsBusinessDay() {
		o.log.Info().Str("date", today.String()).Msg("Market closed today")
		return nil
	}
	res, err := o.Summary.Run(ctx, []domain.Date{today})
	if err != nil {
		return fmt.Errorf("failed to load today's summary: %w", err)
	}
	if len(res.Fetched) == 0 {
		o.log.Info().Str("date", today.String()).Msg("No intraday data yet")
		return nil
	}
	return o.derive(ctx, derivation.StepPortfolio, derivation.StepSimulator)
}

func (o *Orchestrator) runCovid(ctx context.Context, start, today domain.Date) error {
	var errs []error
	if n, err := o.Covid.RunReports(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to load case reports: %w", err))
	} else {
		o.log.Info().Int("rows", n).Msg("Case reports loaded")
	}

	stored, err := o.Covid.StoredAggregatorDates(ctx, start)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to list aggregator dates: %w", err))
		return fmt.Errorf("%w: %w", ErrPartialLoad, errors.Join(errs...))
	}
	// aggregator files are published for every calendar day
	var missing []domain.Date
	for d := start; !d.After(today); d = d.AddDays(1) {
		if _, ok := stored[d]; !ok {
			missing = append(missing, d)
		}
	}
	if n, err := o.Covid.RunAggregator(ctx, missing); err != nil {
		errs = append(errs, fmt.Errorf("failed to load aggregator files: %w", err))
	} else {
		o.log.Info().Int("dates", len(missing)).Int("rows", n).Msg("Aggregator files loaded")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrPartialLoad, errors.Join(errs...))
	}
	return nil
}

func (o *Orchestrator) derive(ctx context.Context, steps ...string) error {
	results, err := o.Engine.Run(ctx, steps...)
	rows := 0
	for _, r := range results {
		rows += r.Rows
	}
	if err != nil {
		return fmt.Errorf("derivation failed: %w", err)
	}
	o.log.Info().Int("steps", len(results)).Int("rows", rows).Msg("Derivations complete")
	return nil
}

func dateKeys(set map[domain.Date]struct{}) []domain.Date {
	out := make([]domain.Date, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	return out
}
