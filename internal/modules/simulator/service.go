// Package simulator values the trading-game portfolios and ranks their
// players.
package simulator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/trinistocks/pipeline/internal/database"
	"github.com/trinistocks/pipeline/internal/domain"
	"github.com/trinistocks/pipeline/internal/modules/portfolio"
	"github.com/trinistocks/pipeline/internal/sink"
)

// Service rewrites the simulator's derived tables.
type Service struct {
	db        *database.DB
	portfolio *portfolio.Service
	sink      *sink.Sink
	log       zerolog.Logger
	today     func() domain.Date
}

// NewService creates the simulator service. Holdings are valued by the
// portfolio service.
func NewService(db *database.DB, valuer *portfolio.Service, s *sink.Sink, log zerolog.Logger) *Service {
	return &Service{
		db:        db,
		portfolio: valuer,
		sink:      s,
		log:       log.With().Str("service", "simulator").Logger(),
		today:     domain.Today,
	}
}

// Run values every player's holdings, then updates standings and games.
func (s *Service) Run(ctx context.Context) (int, error) {
	games, err := s.games(ctx)
	if err != nil {
		return 0, err
	}
	players, err := s.players(ctx)
	if err != nil {
		return 0, err
	}
	v, err := s.portfolio.Evaluate(ctx, "simulator_transactions", "player_id")
	if err != nil {
		return 0, err
	}

	holdings := make([]domain.SimulatorHolding, len(v.Positions))
	for i, p := range v.Positions {
		holdings[i] = domain.SimulatorHolding{PlayerID: p.Owner, HoldingValues: p.HoldingValues}
		holdings[i].Symbol = p.Symbol
	}
	sectors := make([]domain.SimulatorSector, len(v.Sectors))
	for i, st := range v.Sectors {
		sectors[i] = domain.SimulatorSector{PlayerID: st.Owner, Sector: st.Sector, RollupValues: st.RollupValues}
	}

	total := 0
	for _, step := range []struct {
		name  string
		write func() (int, error)
	}{
		{"holdings", func() (int, error) { return sink.Upsert(ctx, s.sink, holdings) }},
		{"sectors", func() (int, error) { return sink.Upsert(ctx, s.sink, sectors) }},
		{"standings", func() (int, error) {
			return sink.Upsert(ctx, s.sink, Standings(games, players, v.Positions))
		}},
		{"games", func() (int, error) {
			return sink.Upsert(ctx, s.sink, GameStatuses(games, players, s.today()))
		}},
	} {
		n, err := step.write()
		total += n
		if err != nil {
			return total, fmt.Errorf("failed to store simulator %s: %w", step.name, err)
		}
	}
	s.log.Info().Int("games", len(games)).Int("players", len(players)).Int("rows", total).Msg("Simulator standings updated")
	return total, nil
}

func (s *Service) games(ctx context.Context) ([]domain.SimulatorGame, error) {
	var out []domain.SimulatorGame
	err := s.db.Conn().SelectContext(ctx, &out, `
		SELECT game_id, game_name, date_created, date_ended, starting_cash, is_active, num_players
		FROM simulator_games ORDER BY game_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query simulator games: %w", err)
	}
	return out, nil
}

func (s *Service) players(ctx context.Context) ([]domain.SimulatorPlayer, error) {
	var out []domain.SimulatorPlayer
	err := s.db.Conn().SelectContext(ctx, &out, `
		SELECT player_id, game_id, user_id, liquid_cash, current_portfolio_value, overall_gain_loss,
		       overall_gain_loss_percent, current_position
		FROM simulator_players ORDER BY game_id, player_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query simulator players: %w", err)
	}
	return out, nil
}
