// Package technical derives each symbol's technical-analysis snapshot
// from its stored closing prices.
package technical

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/trinistocks/pipeline/internal/database"
	"github.com/trinistocks/pipeline/internal/domain"
	"github.com/trinistocks/pipeline/internal/sink"
)

// Service computes and stores technical summaries.
type Service struct {
	db        *database.DB
	benchmark string
	sink      *sink.Sink
	log       zerolog.Logger
}

// NewService creates the technical-analysis service. benchmark is the
// index name beta is measured against.
func NewService(db *database.DB, benchmark string, s *sink.Sink, log zerolog.Logger) *Service {
	return &Service{
		db:        db,
		benchmark: benchmark,
		sink:      s,
		log:       log.With().Str("service", "technical").Logger(),
	}
}

// Run rewrites the summary of every symbol with stored closes.
func (s *Service) Run(ctx context.Context) (int, error) {
	bars, err := s.bars(ctx)
	if err != nil {
		return 0, err
	}
	benchmark, err := s.index(ctx)
	if err != nil {
		return 0, err
	}
	if len(benchmark) == 0 {
		s.log.Warn().Str("index", s.benchmark).Msg("No benchmark values, beta will be null")
	}

	var out []domain.TechnicalSummary
	start := 0
	for i := 1; i <= len(bars); i++ {
		if i < len(bars) && bars[i].Symbol == bars[start].Symbol {
			continue
		}
		if summary, ok := Summarize(bars[start].Symbol, bars[start:i], benchmark); ok {
			out = append(out, summary)
		}
		start = i
	}

	n, err := sink.Upsert(ctx, s.sink, out)
	if err != nil {
		return n, fmt.Errorf("failed to store technical summaries: %w", err)
	}
	s.log.Info().Int("rows", n).Msg("Technical summaries derived")
	return n, nil
}

func (s *Service) bars(ctx context.Context) ([]Bar, error) {
	var bars []Bar
	err := s.db.Conn().SelectContext(ctx, &bars, `
		SELECT e.symbol, d.date, d.close_price, d.volume_traded
		FROM daily_stock_summary d
		JOIN listed_equities e ON e.symbol_id = d.symbol_id
		WHERE d.close_price IS NOT NULL
		ORDER BY e.symbol, d.date`)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily bars: %w", err)
	}
	return bars, nil
}

func (s *Service) index(ctx context.Context) (map[domain.Date]float64, error) {
	var points []IndexPoint
	err := s.db.Conn().SelectContext(ctx, &points, `
		SELECT date, index_value FROM historical_market_summary
		WHERE index_name = ? AND index_value IS NOT NULL
		ORDER BY date`, s.benchmark)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s index: %w", s.benchmark, err)
	}
	out := make(map[domain.Date]float64, len(points))
	for _, p := range points {
		out[p.Date] = p.Value
	}
	return out, nil
}
