// Package covid loads regional case reports: situation-report PDFs, the
// aggregator's daily JSON files, and the day-over-day series derived from
// them.
package covid

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/trinistocks/pipeline/internal/clients/fetch"
	"github.com/trinistocks/pipeline/internal/domain"
	"github.com/trinistocks/pipeline/internal/pdftable"
	"github.com/trinistocks/pipeline/internal/sink"
)

// Archiver mirrors a cached file to long-term storage.
type Archiver interface {
	Archive(ctx context.Context, localPath string) error
}

// Config locates the upstreams and the local cache.
type Config struct {
	ReportIndexURL    string
	AggregatorBaseURL string
	PDFDir            string
	CSVDir            string
	JSONDir           string
	Country           string
}

// Service downloads, parses and stores case reports.
type Service struct {
	fetcher  fetch.Fetcher
	cfg      Config
	repo     *Repository
	sink     *sink.Sink
	archiver Archiver
	log      zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithArchiver mirrors every newly cached file through a.
func WithArchiver(a Archiver) Option {
	return func(s *Service) { s.archiver = a }
}

// NewService creates the case-report service.
func NewService(fetcher fetch.Fetcher, cfg Config, repo *Repository, s *sink.Sink, log zerolog.Logger, opts ...Option) *Service {
	svc := &Service{
		fetcher: fetcher,
		cfg:     cfg,
		repo:    repo,
		sink:    s,
		log:     log.With().Str("adapter", "covid").Logger(),
	}
	for _, o := range opts {
		o(svc)
	}
	return svc
}

// RunReports downloads every report linked from the index page that is
// not cached yet, parses it once into a CSV cache and stores the rows of
// every cached report.
func (s *Service) RunReports(ctx context.Context) (int, error) {
	doc, _, err := fetch.GetDocument(ctx, s.fetcher, fetch.Request{URL: s.cfg.ReportIndexURL, Kind: fetch.KindHTML})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch report index: %w", err)
	}
	links := reportLinks(doc, s.cfg.ReportIndexURL)
	s.log.Info().Int("reports", len(links)).Msg("Found report links")

	var records []domain.PahoRecord
	for _, link := range links {
		recs, err := s.loadReport(ctx, link)
		if err != nil {
			s.log.Warn().Err(err).Str("url", link).Msg("Skipping report")
			continue
		}
		records = append(records, recs...)
	}

	n, err := sink.Upsert(ctx, s.sink, records)
	if err != nil {
		return n, fmt.Errorf("failed to store report rows: %w", err)
	}
	s.log.Info().Int("rows", n).Msg("Reports updated")
	return n, nil
}

func (s *Service) loadReport(ctx context.Context, link string) ([]domain.PahoRecord, error) {
	u, err := url.Parse(link)
	if err != nil {
		return nil, err
	}
	name := path.Base(u.Path)
	pdfPath := filepath.Join(s.cfg.PDFDir, "paho", name)
	csvPath := filepath.Join(s.cfg.CSVDir, "paho", strings.TrimSuffix(name, path.Ext(name))+".csv")

	saved, err := fetch.SaveIfAbsent(ctx, s.fetcher, fetch.Request{URL: link, Kind: fetch.KindPDF}, pdfPath)
	if err != nil {
		return nil, err
	}
	if saved {
		s.archive(ctx, pdfPath)
	}

	if !pdftable.Exists(csvPath) {
		pages, err := pdftable.Open(pdfPath, pdftable.DefaultGap)
		if err != nil {
			return nil, err
		}
		parsed, err := ParseReport(pages, s.log.With().Str("report", name).Logger())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		written, err := WriteCSV(csvPath, parsed)
		if err != nil {
			return nil, err
		}
		if written {
			s.archive(ctx, csvPath)
		}
	}
	return ReadCSV(csvPath)
}

// reportLinks returns the absolute URLs of the PDFs linked from the index
// page, deduplicated and sorted.
func reportLinks(doc *goquery.Document, pageURL string) []string {
	base, _ := url.Parse(pageURL)
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil || !strings.HasSuffix(strings.ToLower(ref.Path), ".pdf") {
			return
		}
		if base != nil {
			ref = base.ResolveReference(ref)
		}
		seen[ref.String()] = struct{}{}
	})
	out := make([]string, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// AggregatorURL is the aggregator file of date.
func (s *Service) AggregatorURL(date domain.Date) string {
	return strings.TrimRight(s.cfg.AggregatorBaseURL, "/") + "/" + date.Time.Format(AggregatorFileLayout) + ".json"
}

// RunAggregator loads the aggregator files of dates. Unpublished dates are
// skipped.
func (s *Service) RunAggregator(ctx context.Context, dates []domain.Date) (int, error) {
	var records []domain.WorldwideRecord
	for _, date := range dates {
		recs, err := s.loadAggregator(ctx, date)
		switch {
		case errors.Is(err, fetch.ErrNotFound):
			s.log.Debug().Str("date", date.String()).Msg("Aggregator file not published")
			continue
		case err != nil:
			s.log.Warn().Err(err).Str("date", date.String()).Msg("Skipping aggregator file")
			continue
		}
		records = append(records, recs...)
	}

	n, err := sink.Upsert(ctx, s.sink, records)
	if err != nil {
		return n, fmt.Errorf("failed to store aggregator rows: %w", err)
	}
	s.log.Info().Int("dates", len(dates)).Int("rows", n).Msg("Aggregator data updated")
	return n, nil
}

func (s *Service) loadAggregator(ctx context.Context, date domain.Date) ([]domain.WorldwideRecord, error) {
	local := filepath.Join(s.cfg.JSONDir, "aggregator", date.Time.Format(AggregatorFileLayout)+".json")
	saved, err := fetch.SaveIfAbsent(ctx, s.fetcher, fetch.Request{URL: s.AggregatorURL(date), Kind: fetch.KindJSON}, local)
	if err != nil {
		return nil, err
	}
	if saved {
		s.archive(ctx, local)
	}
	body, err := os.ReadFile(local)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", local, err)
	}
	return ParseAggregator(body, date)
}

// StoredAggregatorDates returns the dates since from that are already
// loaded.
func (s *Service) StoredAggregatorDates(ctx context.Context, from domain.Date) (map[domain.Date]struct{}, error) {
	return s.repo.WorldwideDates(ctx, from)
}

// DeriveDaily rewrites the day-over-day series of the configured country.
func (s *Service) DeriveDaily(ctx context.Context) (int, error) {
	series, err := s.repo.CountrySeries(ctx, s.cfg.Country)
	if err != nil {
		return 0, err
	}
	n, err := sink.Upsert(ctx, s.sink, DailyDiff(series))
	if err != nil {
		return n, fmt.Errorf("failed to store daily series: %w", err)
	}
	s.log.Info().Str("country", s.cfg.Country).Int("rows", n).Msg("Daily series derived")
	return n, nil
}

func (s *Service) archive(ctx context.Context, localPath string) {
	if s.archiver == nil {
		return
	}
	if err := s.archiver.Archive(ctx, localPath); err != nil {
		s.log.Warn().Err(err).Str("path", localPath).Msg("Failed to archive cached file")
	}
}
