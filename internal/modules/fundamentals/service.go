// Package fundamentals imports financial statements and derives the
// fundamental ratios from them.
package fundamentals

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/trinistocks/pipeline/internal/domain"
	"github.com/trinistocks/pipeline/internal/modules/marketsummary"
	"github.com/trinistocks/pipeline/internal/sink"
)

// Service imports statement files and derives ratios.
type Service struct {
	dir    string
	repo   *Repository
	prices *marketsummary.Repository
	sink   *sink.Sink
	log    zerolog.Logger
}

// NewService creates the fundamentals service. dir holds the statement
// CSV files.
func NewService(dir string, repo *Repository, prices *marketsummary.Repository, s *sink.Sink, log zerolog.Logger) *Service {
	return &Service{
		dir:    dir,
		repo:   repo,
		prices: prices,
		sink:   s,
		log:    log.With().Str("service", "fundamentals").Logger(),
	}
}

// Import loads every *.csv file of the statement directory. A file that
// cannot be decoded is skipped.
func (s *Service) Import(ctx context.Context) (int, error) {
	files, err := filepath.Glob(filepath.Join(s.dir, "*.csv"))
	if err != nil {
		return 0, fmt.Errorf("failed to list statement files: %w", err)
	}
	sort.Strings(files)

	var all Statements
	for _, f := range files {
		st, err := ReadStatements(f)
		if err != nil {
			s.log.Warn().Err(err).Str("file", f).Msg("Skipping statement file")
			continue
		}
		all.merge(st)
	}
	if all.Rejected > 0 {
		s.log.Warn().Int("rows", all.Rejected).Msg("Rejected statement rows")
	}

	total := 0
	n, err := sink.Upsert(ctx, s.sink, all.Annual)
	total += n
	if err != nil {
		return total, fmt.Errorf("failed to store annual reports: %w", err)
	}
	n, err = sink.Upsert(ctx, s.sink, all.Quarterly)
	total += n
	if err != nil {
		return total, fmt.Errorf("failed to store quarterly reports: %w", err)
	}
	s.log.Info().Int("files", len(files)).Int("rows", total).Msg("Statements imported")
	return total, nil
}

// DeriveRatios recomputes every ratio row from the stored reports and the
// latest close of each symbol.
func (s *Service) DeriveRatios(ctx context.Context, rates domain.FxRates) (int, error) {
	reports, err := s.repo.Reports(ctx)
	if err != nil {
		return 0, err
	}
	series, err := s.prices.ClosesBySymbol(ctx)
	if err != nil {
		return 0, err
	}
	closes := make(map[string]float64, len(series))
	for sym, cs := range series {
		if c, ok := marketsummary.LatestPositive(cs); ok {
			closes[sym] = c
		}
	}

	n, err := sink.Upsert(ctx, s.sink, Ratios(reports, closes, rates))
	if err != nil {
		return n, fmt.Errorf("failed to store fundamental ratios: %w", err)
	}
	s.log.Info().Int("rows", n).Msg("Fundamental ratios derived")
	return n, nil
}
