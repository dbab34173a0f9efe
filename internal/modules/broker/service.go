// Package broker loads a broker's daily market reports: PDFs listed on
// monthly index pages, cached on disk and parsed into quotes.
package broker

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/trinistocks/pipeline/internal/clients/fetch"
	"github.com/trinistocks/pipeline/internal/database"
	"github.com/trinistocks/pipeline/internal/domain"
	"github.com/trinistocks/pipeline/internal/pdftable"
	"github.com/trinistocks/pipeline/internal/sink"
)

// SymbolSource lists the symbols quote rows are matched against.
type SymbolSource interface {
	Codes(ctx context.Context) (map[string]struct{}, error)
}

// RateSource provides the TTD exchange rates.
type RateSource interface {
	Rates(ctx context.Context) (domain.FxRates, error)
}

// Archiver mirrors a cached file to long-term storage.
type Archiver interface {
	Archive(ctx context.Context, localPath string) error
}

// Service walks the report index and stores the quotes.
type Service struct {
	fetcher  fetch.Fetcher
	indexURL string
	pdfDir   string
	db       *database.DB
	symbols  SymbolSource
	rates    RateSource
	sink     *sink.Sink
	archiver Archiver
	log      zerolog.Logger

	open func(path string) ([]pdftable.Page, error)
}

// NewService creates the broker-report service. archiver may be nil.
func NewService(fetcher fetch.Fetcher, indexURL, pdfDir string, db *database.DB, symbols SymbolSource, rates RateSource, s *sink.Sink, archiver Archiver, log zerolog.Logger) *Service {
	return &Service{
		fetcher:  fetcher,
		indexURL: strings.TrimRight(indexURL, "/"),
		pdfDir:   pdfDir,
		db:       db,
		symbols:  symbols,
		rates:    rates,
		sink:     s,
		archiver: archiver,
		log:      log.With().Str("adapter", "broker").Logger(),
		open: func(path string) ([]pdftable.Page, error) {
			return pdftable.Open(path, pdftable.DefaultGap)
		},
	}
}

// MonthURL is the index page of the month containing t.
func (s *Service) MonthURL(t time.Time) string {
	return fmt.Sprintf("%s/%04d/%02d/", s.indexURL, t.Year(), int(t.Month()))
}

// ReportPath is where the report of date is cached.
func (s *Service) ReportPath(date domain.Date) string {
	return filepath.Join(s.pdfDir, "broker", date.String()+".pdf")
}

// Run loads every report dated within [from, to] that is not stored yet.
func (s *Service) Run(ctx context.Context, from, to domain.Date) (int, error) {
	if from.After(to) {
		return 0, nil
	}
	known, err := s.symbols.Codes(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load listed symbols: %w", err)
	}
	stored, err := s.storedDates(ctx, from)
	if err != nil {
		return 0, err
	}

	var quotes []domain.BrokerQuote
	for _, link := range s.links(ctx, from, to) {
		if _, ok := stored[link.Date]; ok {
			continue
		}
		path := s.ReportPath(link.Date)
		saved, err := fetch.SaveIfAbsent(ctx, s.fetcher, fetch.Request{URL: link.URL, Kind: fetch.KindPDF}, path)
		if err != nil {
			s.log.Warn().Err(err).Str("url", link.URL).Msg("Skipping report")
			continue
		}
		if saved && s.archiver != nil {
			if err := s.archiver.Archive(ctx, path); err != nil {
				s.log.Warn().Err(err).Str("path", path).Msg("Failed to archive report")
			}
		}
		pages, err := s.open(path)
		if err != nil {
			s.log.Warn().Err(err).Str("path", path).Msg("Unreadable report")
			continue
		}
		day := ParseQuotes(pages, link.Date, known)
		s.log.Debug().Str("date", link.Date.String()).Int("quotes", len(day)).Msg("Parsed report")
		quotes = append(quotes, day...)
	}

	if err := s.convert(ctx, quotes); err != nil {
		return 0, err
	}
	n, err := sink.Upsert(ctx, s.sink, quotes)
	if err != nil {
		return n, fmt.Errorf("failed to store broker quotes: %w", err)
	}
	s.log.Info().Int("rows", n).Msg("Broker reports updated")
	return n, nil
}

// links walks the monthly index pages covering [from, to].
func (s *Service) links(ctx context.Context, from, to domain.Date) []Link {
	var out []Link
	month := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !month.After(to.Time) {
		pageURL := s.MonthURL(month)
		month = month.AddDate(0, 1, 0)

		doc, _, err := fetch.GetDocument(ctx, s.fetcher, fetch.Request{URL: pageURL, Kind: fetch.KindHTML})
		if err != nil {
			s.log.Warn().Err(err).Str("url", pageURL).Msg("Skipping index page")
			continue
		}
		base, _ := url.Parse(pageURL)
		resolve := func(href string) string {
			ref, err := url.Parse(href)
			if err != nil || base == nil {
				return href
			}
			return base.ResolveReference(ref).String()
		}
		for _, l := range reportLinks(doc, resolve) {
			if l.Date.Before(from) || l.Date.After(to) {
				continue
			}
			out = append(out, l)
		}
	}
	return out
}

// convert fills close_price_ttd. Rates are only requested when a quote is
// in a foreign currency.
func (s *Service) convert(ctx context.Context, quotes []domain.BrokerQuote) error {
	var rates *domain.FxRates
	for i := range quotes {
		q := &quotes[i]
		if !q.ClosePrice.Valid {
			continue
		}
		if q.Currency == domain.CurrencyTTD {
			q.ClosePriceTTD = q.ClosePrice
			continue
		}
		if rates == nil {
			r, err := s.rates.Rates(ctx)
			if err != nil {
				return fmt.Errorf("failed to convert broker quotes: %w", err)
			}
			rates = &r
		}
		q.ClosePriceTTD = domain.Finite(rates.ToTTD(q.ClosePrice.Float64, q.Currency))
	}
	return nil
}

func (s *Service) storedDates(ctx context.Context, from domain.Date) (map[domain.Date]struct{}, error) {
	var dates []domain.Date
	err := s.db.Conn().SelectContext(ctx, &dates,
		`SELECT DISTINCT date FROM broker_daily_quotes WHERE date >= ?`, from)
	if err != nil {
		return nil, fmt.Errorf("failed to query stored broker dates: %w", err)
	}
	out := make(map[domain.Date]struct{}, len(dates))
	for _, d := range dates {
		out[d] = struct{}{}
	}
	return out, nil
}
