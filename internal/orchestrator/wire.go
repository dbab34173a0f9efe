package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/trinistocks/pipeline/internal/clients/exchangerate"
	"github.com/trinistocks/pipeline/internal/clients/fetch"
	"github.com/trinistocks/pipeline/internal/config"
	"github.com/trinistocks/pipeline/internal/database"
	"github.com/trinistocks/pipeline/internal/derivation"
	"github.com/trinistocks/pipeline/internal/metrics"
	"github.com/trinistocks/pipeline/internal/modules/broker"
	"github.com/trinistocks/pipeline/internal/modules/covid"
	"github.com/trinistocks/pipeline/internal/modules/dividends"
	"github.com/trinistocks/pipeline/internal/modules/fundamentals"
	"github.com/trinistocks/pipeline/internal/modules/marketsummary"
	"github.com/trinistocks/pipeline/internal/modules/news"
	"github.com/trinistocks/pipeline/internal/modules/portfolio"
	"github.com/trinistocks/pipeline/internal/modules/simulator"
	"github.com/trinistocks/pipeline/internal/modules/technical"
	"github.com/trinistocks/pipeline/internal/modules/universe"
	"github.com/trinistocks/pipeline/internal/refdata"
	"github.com/trinistocks/pipeline/internal/reliability"
	"github.com/trinistocks/pipeline/internal/sink"
	"github.com/trinistocks/pipeline/internal/work"
)

// benchmark is the market index technical beta is measured against.
const benchmark = "Composite"

// Build opens the store and wires every service a run can reach. The
// returned close function releases the database and the browser.
func Build(ctx context.Context, cfg *config.Config, rec *metrics.Recorder, log zerolog.Logger) (*Orchestrator, func() error, error) {
	db, err := database.New(database.Config{Driver: cfg.DBDriver, DSN: cfg.DBDSN})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	closers := []func() error{db.Close}
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	ref := refdata.Default()
	fetcher, closeFetcher, err := newFetcher(ctx, cfg, ref, rec, log)
	if err != nil {
		_ = closeAll()
		return nil, nil, err
	}
	if closeFetcher != nil {
		closers = append(closers, closeFetcher)
	}

	var sinkOpts []sink.Option
	var engineOpts []derivation.Option
	if rec != nil {
		sinkOpts = append(sinkOpts, sink.WithObserver(rec))
		engineOpts = append(engineOpts, derivation.WithObserver(rec))
	}
	s := sink.New(db, log, sinkOpts...)
	rates := exchangerate.NewService(cfg.FXBaseURL, nil, time.Hour, log)

	var (
		covidOpts      []covid.Option
		brokerArchiver broker.Archiver
	)
	if cfg.Archive.Enabled() {
		archiver, err := reliability.NewArchiver(ctx, reliability.ArchiveConfig{
			Bucket:    cfg.Archive.Bucket,
			Endpoint:  cfg.Archive.Endpoint,
			Region:    cfg.Archive.Region,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			Prefix:    cfg.Archive.Prefix,
			Root:      cfg.CacheDir,
		}, log)
		if err != nil {
			// archiving is best effort
			log.Warn().Err(err).Msg("Report archive disabled")
		} else {
			covidOpts = append(covidOpts, covid.WithArchiver(archiver))
			brokerArchiver = archiver
		}
	}

	symbols := universe.NewSecurityRepository(db, log)
	prices := marketsummary.NewRepository(db)

	dividendSvc := dividends.NewService(
		dividends.NewScraper(fetcher, cfg.ExchangeBaseURL, ref, log),
		symbols,
		dividends.NewRepository(db),
		prices,
		ref,
		s,
		log,
	)
	fundamentalSvc := fundamentals.NewService(cfg.ReportsDir, fundamentals.NewRepository(db), prices, s, log)
	covidSvc := covid.NewService(fetcher, covid.Config{
		ReportIndexURL:    cfg.PahoIndexURL,
		AggregatorBaseURL: cfg.AggregatorBaseURL,
		PDFDir:            cfg.PDFCacheDir(),
		CSVDir:            cfg.CSVCacheDir(),
		JSONDir:           cfg.JSONCacheDir(),
		Country:           cfg.CovidCountry,
	}, covid.NewRepository(db), s, log, covidOpts...)
	technicalSvc := technical.NewService(db, benchmark, s, log)
	portfolioSvc := portfolio.NewService(portfolio.NewRepository(db), prices, s, log)
	simulatorSvc := simulator.NewService(db, portfolioSvc, s, log)

	engine := derivation.New(rates, log, engineOpts...)
	engine.Register(
		derivation.Converting(derivation.StepDividendYields, dividendSvc.DeriveYields),
		derivation.Converting(derivation.StepFundamentalRatios, fundamentalSvc.DeriveRatios),
		derivation.Plain(derivation.StepCovidDaily, covidSvc.DeriveDaily),
		derivation.Plain(derivation.StepTechnical, technicalSvc.Run),
		derivation.Plain(derivation.StepPortfolio, portfolioSvc.Run),
		derivation.Plain(derivation.StepSimulator, simulatorSvc.Run),
	)

	binary, err := os.Executable()
	if err != nil {
		_ = closeAll()
		return nil, nil, fmt.Errorf("failed to locate own binary: %w", err)
	}

	o := New(log)
	o.Universe = universe.NewService(universe.NewScraper(fetcher, cfg.ExchangeBaseURL, ref, log), s, log)
	o.News = news.NewService(fetcher, cfg.ExchangeBaseURL, symbols, s, log)
	o.Dividends = dividendSvc
	o.Summary = marketsummary.NewService(fetcher, cfg.ExchangeBaseURL, ref, symbols, s, log)
	o.SummaryDates = prices
	o.Covid = covidSvc
	o.Broker = broker.NewService(fetcher, cfg.BrokerIndexURL, filepath.Join(cfg.PDFCacheDir(), "broker"), db, symbols, rates, s, brokerArchiver, log)
	o.Statements = fundamentalSvc
	o.Engine = engine
	o.Pool = work.NewPool(binary, []string{"--" + string(SourceDailySummary)}, filepath.Join(cfg.CacheDir, "workers"), log)
	o.Workers = cfg.Workers
	if o.Workers <= 0 {
		o.Workers = work.CPUCount()
	}
	if rec != nil {
		o.Observer = rec
	}
	return o, closeAll, nil
}

func newFetcher(ctx context.Context, cfg *config.Config, ref *refdata.Data, rec *metrics.Recorder, log zerolog.Logger) (fetch.Fetcher, func() error, error) {
	opts := fetch.Options{
		Timeout:       cfg.FetchTimeout,
		Attempts:      cfg.FetchAttempts,
		RatePerSecond: cfg.FetchRatePerSecond,
		UserAgents:    fetch.NewUserAgents(ref.UserAgents),
		Proxies:       fetch.NewProxyPool(nil),
		Validator:     fetch.DefaultValidator(ref),
	}
	if rec != nil {
		opts.Observer = rec
	}

	client := fetch.NewClient(opts, log)
	if cfg.ProxyListURL != "" {
		if err := opts.Proxies.Refresh(ctx, client.HTTPClient(), cfg.ProxyListURL, log); err != nil {
			log.Warn().Err(err).Msg("Fetching without proxies")
		}
	}
	if !cfg.UseBrowser {
		return client, nil, nil
	}

	renderer, err := fetch.NewRenderer(opts, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start browser: %w", err)
	}
	static := append([]string{hostOf(cfg.AggregatorBaseURL)}, cfg.StaticHosts...)
	return fetch.NewRouter(renderer, client, static...), renderer.Close, nil
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}
