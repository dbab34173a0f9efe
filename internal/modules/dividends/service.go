package dividends

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/trinistocks/pipeline/internal/domain"
	"github.com/trinistocks/pipeline/internal/modules/marketsummary"
	"github.com/trinistocks/pipeline/internal/refdata"
	"github.com/trinistocks/pipeline/internal/sink"
)

// SymbolLister lists the symbols to scrape.
type SymbolLister interface {
	Active(ctx context.Context) ([]domain.Symbol, error)
}

// Service scrapes dividends and derives yields.
type Service struct {
	scraper *Scraper
	symbols SymbolLister
	repo    *Repository
	prices  *marketsummary.Repository
	ref     *refdata.Data
	sink    *sink.Sink
	today   func() domain.Date
	log     zerolog.Logger
}

// NewService creates the dividend service.
func NewService(
	scraper *Scraper,
	symbols SymbolLister,
	repo *Repository,
	prices *marketsummary.Repository,
	ref *refdata.Data,
	s *sink.Sink,
	log zerolog.Logger,
) *Service {
	return &Service{
		scraper: scraper,
		symbols: symbols,
		repo:    repo,
		prices:  prices,
		ref:     ref,
		sink:    s,
		today:   domain.Today,
		log:     log.With().Str("service", "dividends").Logger(),
	}
}

// Run scrapes the dividends of every active symbol and stores them.
func (s *Service) Run(ctx context.Context) (int, error) {
	symbols, err := s.symbols.Active(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list symbols: %w", err)
	}
	codes := make([]string, len(symbols))
	for i, sym := range symbols {
		codes[i] = sym.Symbol
	}

	divs := s.scraper.Scrape(ctx, codes, s.today())
	n, err := sink.Upsert(ctx, s.sink, divs)
	if err != nil {
		return n, fmt.Errorf("failed to store dividends: %w", err)
	}
	s.log.Info().Int("symbols", len(codes)).Int("rows", n).Msg("Dividends updated")
	return n, nil
}

// DeriveYields recomputes historical_dividend_yield and
// summarized_dividend_yield from stored dividends and closes.
func (s *Service) DeriveYields(ctx context.Context, rates domain.FxRates) (int, error) {
	divs, err := s.repo.BySymbol(ctx)
	if err != nil {
		return 0, err
	}
	closes, err := s.prices.ClosesBySymbol(ctx)
	if err != nil {
		return 0, err
	}

	today := s.today()
	var events []domain.DividendYield
	var summaries []domain.DividendYieldSummary
	for symbol, series := range closes {
		factor := rates.DividendFactor(s.ref.DividendCurrency(symbol))
		events = append(events, EventYields(symbol, divs[symbol], series, factor)...)
		summaries = append(summaries, Summarize(symbol, divs[symbol], series, factor, today))
	}

	written := 0
	n, err := sink.Upsert(ctx, s.sink, events)
	written += n
	if err != nil {
		return written, fmt.Errorf("failed to store dividend yields: %w", err)
	}
	n, err = sink.Upsert(ctx, s.sink, summaries)
	written += n
	if err != nil {
		return written, fmt.Errorf("failed to store dividend yield summaries: %w", err)
	}
	s.log.Info().Int("events", len(events)).Int("symbols", len(summaries)).Msg("Dividend yields derived")
	return written, nil
}
