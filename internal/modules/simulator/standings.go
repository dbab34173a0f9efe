package simulator

import (
	"sort"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"

	"github.com/trinistocks/pipeline/internal/domain"
	"github.com/trinistocks/pipeline/internal/modules/portfolio"
)

// Standings derives every player's standing from their positions.
//
// A player's overall gain is the sum of their holdings' gains, null when
// none of them has one, in which case the player is worth their liquid cash
// alone. Within a game the players are dense-ranked by portfolio value,
// highest first.
func Standings(games []domain.SimulatorGame, players []domain.SimulatorPlayer, positions []portfolio.Position) []domain.SimulatorStanding {
	gains := make(map[int64]null.Float)
	for _, p := range positions {
		if !p.TotalGainLoss.Valid {
			continue
		}
		sum := decimal.NewFromFloat(gains[p.Owner].Float64).Add(decimal.NewFromFloat(p.TotalGainLoss.Float64))
		gains[p.Owner] = null.FloatFrom(sum.InexactFloat64())
	}
	startingCash := make(map[int64]float64, len(games))
	for _, g := range games {
		startingCash[g.GameID] = g.StartingCash
	}

	out := make([]domain.SimulatorStanding, 0, len(players))
	for _, pl := range players {
		st := domain.SimulatorStanding{GameID: pl.GameID, UserID: pl.UserID}
		gain := gains[pl.PlayerID]
		st.OverallGainLoss = gain

		value := decimal.NewFromFloat(pl.LiquidCash)
		if gain.Valid {
			value = value.Add(decimal.NewFromFloat(gain.Float64))
		}
		st.CurrentPortfolioValue = null.FloatFrom(value.InexactFloat64())

		if start := decimal.NewFromFloat(startingCash[pl.GameID]); !start.IsZero() {
			pct := value.Sub(start).Mul(decimal.NewFromInt(100)).Div(start)
			st.OverallGainLossPercent = null.FloatFrom(pct.InexactFloat64())
		}
		out = append(out, st)
	}
	rank(out)
	return out
}

// rank assigns dense positions per game by portfolio value, descending.
func rank(standings []domain.SimulatorStanding) {
	byGame := make(map[int64][]int)
	for i, st := range standings {
		byGame[st.GameID] = append(byGame[st.GameID], i)
	}
	for _, idx := range byGame {
		sort.SliceStable(idx, func(a, b int) bool {
			return standings[idx[a]].CurrentPortfolioValue.Float64 > standings[idx[b]].CurrentPortfolioValue.Float64
		})
		position := int64(0)
		for n, i := range idx {
			if n == 0 || standings[i].CurrentPortfolioValue.Float64 != standings[idx[n-1]].CurrentPortfolioValue.Float64 {
				position++
			}
			standings[i].CurrentPosition = position
		}
	}
}

// GameStatuses flags games whose end date has passed and counts their
// players. A game without an end date stays active.
func GameStatuses(games []domain.SimulatorGame, players []domain.SimulatorPlayer, today domain.Date) []domain.SimulatorGameStatus {
	counts := make(map[int64]int)
	for _, p := range players {
		counts[p.GameID]++
	}
	out := make([]domain.SimulatorGameStatus, len(games))
	for i, g := range games {
		out[i] = domain.SimulatorGameStatus{
			GameID:     g.GameID,
			IsActive:   g.EndDate.IsZero() || !g.EndDate.Before(today),
			NumPlayers: counts[g.GameID],
		}
	}
	return out
}
