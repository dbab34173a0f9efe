package orchestrator

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/trinistocks/pipeline/internal/domain"
	"github.com/trinistocks/pipeline/internal/work"
)

// ErrUsage wraps every command-line validation failure.
var ErrUsage = errors.New("invalid arguments")

// TimeRange selects how far back a run reaches.
type TimeRange int

const (
	RangeNone TimeRange = iota
	RangeFullHistory
	RangeDaysFrom
	RangeIntradaily
)

// Source selects the upstream a run loads.
type Source string

const (
	SourceListedEquities Source = "listed_equities"
	SourceNews           Source = "news"
	SourceDailySummary   Source = "daily_summary_data"
	SourceDividends      Source = "dividends"
	SourceTechnical      Source = "technical_analysis_data"
	SourceCovid          Source = "covid_data"
	SourceBroker         Source = "broker_reports"
	SourceFinancial      Source = "financial_reports"
	SourceDerived        Source = "derived_data"
)

// Sources lists every source flag in help order.
var Sources = []Source{
	SourceListedEquities,
	SourceNews,
	SourceDailySummary,
	SourceDividends,
	SourceTechnical,
	SourceCovid,
	SourceBroker,
	SourceFinancial,
	SourceDerived,
}

var sourceHelp = map[Source]string{
	SourceListedEquities: "scrape the listed equities and their news ids",
	SourceNews:           "scrape news articles per symbol",
	SourceDailySummary:   "backfill the daily trading summary with worker processes",
	SourceDividends:      "scrape dividends and derive yields",
	SourceTechnical:      "recompute the technical analysis summary",
	SourceCovid:          "load case reports and derive the daily series",
	SourceBroker:         "load broker daily market reports",
	SourceFinancial:      "import financial statements and derive ratios",
	SourceDerived:        "rerun every derivation",
}

// Options is a parsed command line.
type Options struct {
	Range    TimeRange
	DaysFrom int
	Source   Source

	// Set only on worker processes.
	WorkerDates []domain.Date
	ReportFile  string
	RunID       string
}

// IsWorker reports whether the process was started by the worker pool.
func (o Options) IsWorker() bool {
	return len(o.WorkerDates) > 0
}

// Start returns the first date a run covers.
func (o Options) Start(today domain.Date) domain.Date {
	switch o.Range {
	case RangeDaysFrom:
		return work.DaysFrom(today, o.DaysFrom)
	case RangeIntradaily:
		return today
	}
	return work.HistoryStart
}

// ParseArgs parses the scraper command line. Usage goes to out.
func ParseArgs(args []string, out io.Writer) (Options, error) {
	fs := flag.NewFlagSet("scraper", flag.ContinueOnError)
	fs.SetOutput(out)

	fullHistory := fs.Bool("full_history", false, "cover every date since "+work.HistoryStart.String())
	daysFrom := fs.Int("days_from", 0, "cover the last `N` days")
	intradaily := fs.Bool("intradaily_data", false, "fetch today's summary and refresh standings")

	sources := make(map[Source]*bool, len(Sources))
	for _, src := range Sources {
		sources[src] = fs.Bool(string(src), false, sourceHelp[src])
	}

	workerDates := fs.String(flagName(work.FlagWorkerDates), "", "comma separated dates (worker processes only)")
	reportFile := fs.String(flagName(work.FlagReportFile), "", "worker report path (worker processes only)")
	runID := fs.String(flagName(work.FlagRunID), "", "run id (worker processes only)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return Options{}, err
		}
		return Options{}, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if fs.NArg() > 0 {
		return Options{}, fmt.Errorf("%w: unexpected argument %q", ErrUsage, fs.Arg(0))
	}

	var opts Options
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	var ranges []string
	if *fullHistory {
		ranges = append(ranges, "full_history")
		opts.Range = RangeFullHistory
	}
	if set["days_from"] {
		if *daysFrom < 0 {
			return Options{}, fmt.Errorf("%w: days_from must not be negative", ErrUsage)
		}
		ranges = append(ranges, "days_from")
		opts.Range = RangeDaysFrom
		opts.DaysFrom = *daysFrom
	}
	if *intradaily {
		ranges = append(ranges, "intradaily_data")
		opts.Range = RangeIntradaily
	}
	if len(ranges) > 1 {
		return Options{}, fmt.Errorf("%w: --%s are mutually exclusive", ErrUsage, strings.Join(ranges, ", --"))
	}

	var chosen []string
	for _, src := range Sources {
		if *sources[src] {
			chosen = append(chosen, string(src))
			opts.Source = src
		}
	}
	if len(chosen) > 1 {
		return Options{}, fmt.Errorf("%w: --%s are mutually exclusive", ErrUsage, strings.Join(chosen, ", --"))
	}

	if *workerDates != "" {
		return parseWorker(opts, *workerDates, *reportFile, *runID)
	}
	if *reportFile != "" {
		return Options{}, fmt.Errorf("%w: %s requires %s", ErrUsage, work.FlagReportFile, work.FlagWorkerDates)
	}

	switch {
	case opts.Range == RangeIntradaily && opts.Source != "":
		return Options{}, fmt.Errorf("%w: --intradaily_data takes no source flag", ErrUsage)
	case opts.Range == RangeIntradaily:
	case opts.Range == RangeNone:
		return Options{}, fmt.Errorf("%w: one of --full_history, --days_from or --intradaily_data is required", ErrUsage)
	case opts.Source == "":
		return Options{}, fmt.Errorf("%w: a source flag is required", ErrUsage)
	}
	return opts, nil
}

func parseWorker(opts Options, dates, reportFile, runID string) (Options, error) {
	if opts.Source != "" && opts.Source != SourceDailySummary {
		return Options{}, fmt.Errorf("%w: worker processes only load --%s", ErrUsage, SourceDailySummary)
	}
	if reportFile == "" {
		return Options{}, fmt.Errorf("%w: %s requires %s", ErrUsage, work.FlagWorkerDates, work.FlagReportFile)
	}
	parsed, err := work.ParseDates(dates)
	if err != nil {
		return Options{}, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if len(parsed) == 0 {
		return Options{}, fmt.Errorf("%w: %s is empty", ErrUsage, work.FlagWorkerDates)
	}
	opts.Source = SourceDailySummary
	opts.WorkerDates = parsed
	opts.ReportFile = reportFile
	opts.RunID = runID
	return opts, nil
}

func flagName(name string) string {
	return strings.TrimLeft(name, "-")
}
