// Package portfolio values users' holdings: book cost from their
// transactions, market value from the latest quoted closes, and the
// per-sector rollup of both.
package portfolio

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/trinistocks/pipeline/internal/domain"
	"github.com/trinistocks/pipeline/internal/sink"
)

// PriceSource provides the current market price of each symbol.
type PriceSource interface {
	MarketPrices(ctx context.Context) (map[string]float64, error)
}

// Service rewrites portfolio_summary and portfolio_sectors.
type Service struct {
	repo   *Repository
	prices PriceSource
	sink   *sink.Sink
	log    zerolog.Logger
}

// NewService creates the portfolio service.
func NewService(repo *Repository, prices PriceSource, s *sink.Sink, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		prices: prices,
		sink:   s,
		log:    log.With().Str("service", "portfolio").Logger(),
	}
}

// Valuation is everything a valuation pass needs, loaded once.
type Valuation struct {
	Positions []Position
	Sectors   []SectorTotal
}

// Evaluate values the transactions of one table.
func (s *Service) Evaluate(ctx context.Context, table, ownerColumn string) (Valuation, error) {
	txs, err := s.repo.Transactions(ctx, table, ownerColumn)
	if err != nil {
		return Valuation{}, err
	}
	prices, err := s.prices.MarketPrices(ctx)
	if err != nil {
		return Valuation{}, err
	}
	sectors, err := s.repo.Sectors(ctx)
	if err != nil {
		return Valuation{}, err
	}
	positions := Value(txs, prices)
	return Valuation{Positions: positions, Sectors: Rollup(positions, sectors)}, nil
}

// Run values every user's portfolio.
func (s *Service) Run(ctx context.Context) (int, error) {
	v, err := s.Evaluate(ctx, "portfolio_transactions", "user_id")
	if err != nil {
		return 0, err
	}

	holdings := make([]domain.Holding, len(v.Positions))
	for i, p := range v.Positions {
		holdings[i] = domain.Holding{UserID: p.Owner, HoldingValues: p.HoldingValues}
		holdings[i].Symbol = p.Symbol
	}
	rollups := make([]domain.SectorRollup, len(v.Sectors))
	for i, st := range v.Sectors {
		rollups[i] = domain.SectorRollup{UserID: st.Owner, Sector: st.Sector, RollupValues: st.RollupValues}
	}

	total := 0
	n, err := sink.Upsert(ctx, s.sink, holdings)
	total += n
	if err != nil {
		return total, fmt.Errorf("failed to store portfolio holdings: %w", err)
	}
	n, err = sink.Upsert(ctx, s.sink, rollups)
	total += n
	if err != nil {
		return total, fmt.Errorf("failed to store portfolio sectors: %w", err)
	}
	s.log.Info().Int("holdings", len(holdings)).Int("sectors", len(rollups)).Msg("Portfolios valued")
	return total, nil
}
