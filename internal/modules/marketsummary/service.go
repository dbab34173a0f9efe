// Package marketsummary scrapes the exchange's daily trading summary:
// one row per market index and one bar per listed equity.
package marketsummary

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/trinistocks/pipeline/internal/clients/fetch"
	"github.com/trinistocks/pipeline/internal/domain"
	"github.com/trinistocks/pipeline/internal/refdata"
	"github.com/trinistocks/pipeline/internal/sink"
)

// SymbolSource lists the symbols equity rows are validated against.
type SymbolSource interface {
	Codes(ctx context.Context) (map[string]struct{}, error)
}

// Result summarises one run over a set of dates.
type Result struct {
	Fetched []domain.Date
	Skipped []domain.Date // no data published
	Failed  []domain.Date
	Rows    int
}

// Service fetches summary pages and stores what they hold.
type Service struct {
	fetcher fetch.Fetcher
	baseURL string
	parser  *Parser
	symbols SymbolSource
	sink    *sink.Sink
	log     zerolog.Logger
}

// NewService creates the daily-summary service.
func NewService(fetcher fetch.Fetcher, baseURL string, ref *refdata.Data, symbols SymbolSource, s *sink.Sink, log zerolog.Logger) *Service {
	log = log.With().Str("adapter", "daily_summary").Logger()
	return &Service{
		fetcher: fetcher,
		baseURL: strings.TrimRight(baseURL, "/"),
		parser:  NewParser(ref, log),
		symbols: symbols,
		sink:    s,
		log:     log,
	}
}

// PageURL is the summary page of date.
func (s *Service) PageURL(date domain.Date) string {
	return fmt.Sprintf("%s/market-quote/?TradeDate=%s", s.baseURL, date)
}

// Run fetches dates in ascending order and writes everything in one flush
// at the end. A date that cannot be fetched or parsed is logged and
// skipped; only a failed write is returned as an error.
func (s *Service) Run(ctx context.Context, dates []domain.Date) (Result, error) {
	var res Result
	if len(dates) == 0 {
		return res, nil
	}

	known, err := s.symbols.Codes(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to load listed symbols: %w", err)
	}

	var indices []domain.MarketSummary
	var bars []domain.DailyStockBar
	for _, date := range dates {
		day, err := s.fetchDay(ctx, date, known)
		switch {
		case errors.Is(err, ErrNoData):
			s.log.Info().Str("date", date.String()).Msg("No data published")
			res.Skipped = append(res.Skipped, date)
			continue
		case err != nil:
			s.log.Warn().Err(err).Str("date", date.String()).Msg("Skipping date")
			res.Failed = append(res.Failed, date)
			continue
		}
		s.log.Debug().Str("date", date.String()).Int("bars", len(day.Bars)).Msg("Parsed summary page")
		indices = append(indices, day.Indices...)
		bars = append(bars, day.Bars...)
		res.Fetched = append(res.Fetched, date)
	}

	n, err := sink.Upsert(ctx, s.sink, indices)
	res.Rows += n
	if err != nil {
		return res, fmt.Errorf("failed to store market summaries: %w", err)
	}
	n, err = sink.Upsert(ctx, s.sink, bars)
	res.Rows += n
	if err != nil {
		return res, fmt.Errorf("failed to store daily bars: %w", err)
	}

	closed := make([]domain.MarketClosedDay, 0, len(res.Skipped))
	today := domain.Today()
	for _, d := range res.Skipped {
		closed = append(closed, domain.MarketClosedDay{Date: d, CheckedOn: today})
	}
	if _, err := sink.Upsert(ctx, s.sink, closed); err != nil {
		return res, fmt.Errorf("failed to store closed days: %w", err)
	}

	s.log.Info().
		Int("fetched", len(res.Fetched)).
		Int("skipped", len(res.Skipped)).
		Int("failed", len(res.Failed)).
		Int("rows", res.Rows).
		Msg("Daily summary run complete")
	return res, nil
}

func (s *Service) fetchDay(ctx context.Context, date domain.Date, known map[string]struct{}) (Day, error) {
	resp, err := s.fetcher.Fetch(ctx, fetch.Request{
		URL:     s.PageURL(date),
		Kind:    fetch.KindHTML,
		WaitFor: "table",
	})
	if err != nil {
		return Day{}, err
	}
	return s.parser.Parse(resp.Body, date, known)
}
