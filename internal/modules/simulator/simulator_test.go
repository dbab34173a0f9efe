package simulator

import (
	"context"
	"testing"

	"github.com/guregu/null/v6"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trinistocks/pipeline/internal/domain"
	"github.com/trinistocks/pipeline/internal/modules/marketsummary"
	"github.com/trinistocks/pipeline/internal/modules/portfolio"
	"github.com/trinistocks/pipeline/internal/sink"
	testingpkg "github.com/trinistocks/pipeline/internal/testing"
)

func holding(player int64, symbol string, gain null.Float) portfolio.Position {
	p := portfolio.Position{Owner: player, Symbol: symbol}
	p.TotalGainLoss = gain
	return p
}

func TestStandings_RanksByPortfolioValue(t *testing.T) {
	games := []domain.SimulatorGame{{GameID: 1, StartingCash: 10000}}
	players := []domain.SimulatorPlayer{
		{PlayerID: 10, GameID: 1, UserID: 100, LiquidCash: 10000},
		{PlayerID: 11, GameID: 1, UserID: 101, LiquidCash: 10000},
	}
	positions := []portfolio.Position{
		holding(10, "RFHL", null.FloatFrom(6000)),
		holding(10, "WCO", null.FloatFrom(-1000)),
		holding(11, "RFHL", null.FloatFrom(2000)),
	}

	got := Standings(games, players, positions)
	require.Len(t, got, 2)

	a, b := got[0], got[1]
	assert.Equal(t, int64(100), a.UserID)
	assert.InDelta(t, 15000, a.CurrentPortfolioValue.Float64, 1e-9)
	assert.InDelta(t, 5000, a.OverallGainLoss.Float64, 1e-9)
	assert.InDelta(t, 50, a.OverallGainLossPercent.Float64, 1e-9)
	assert.Equal(t, int64(1), a.CurrentPosition)

	assert.InDelta(t, 12000, b.CurrentPortfolioValue.Float64, 1e-9)
	assert.InDelta(t, 2000, b.OverallGainLoss.Float64, 1e-9)
	assert.InDelta(t, 20, b.OverallGainLossPercent.Float64, 1e-9)
	assert.Equal(t, int64(2), b.CurrentPosition)
}

func TestStandings_NoHoldingsIsCashOnly(t *testing.T) {
	games := []domain.SimulatorGame{{GameID: 1, StartingCash: 10000}}
	players := []domain.SimulatorPlayer{{PlayerID: 10, GameID: 1, UserID: 100, LiquidCash: 9000}}

	got := Standings(games, players, []portfolio.Position{holding(10, "RFHL", null.Float{})})
	require.Len(t, got, 1)
	assert.False(t, got[0].OverallGainLoss.Valid)
	assert.Equal(t, 9000.0, got[0].CurrentPortfolioValue.Float64)
	assert.InDelta(t, -10, got[0].OverallGainLossPercent.Float64, 1e-9)
}

func TestStandings_DenseRankPerGame(t *testing.T) {
	games := []domain.SimulatorGame{{GameID: 1, StartingCash: 100}, {GameID: 2}}
	players := []domain.SimulatorPlayer{
		{PlayerID: 1, GameID: 1, UserID: 1, LiquidCash: 200},
		{PlayerID: 2, GameID: 1, UserID: 2, LiquidCash: 200},
		{PlayerID: 3, GameID: 1, UserID: 3, LiquidCash: 50},
		{PlayerID: 4, GameID: 2, UserID: 1, LiquidCash: 10},
	}

	got := Standings(games, players, nil)
	positions := make(map[[2]int64]int64)
	for _, st := range got {
		positions[[2]int64{st.GameID, st.UserID}] = st.CurrentPosition
	}
	assert.Equal(t, int64(1), positions[[2]int64{1, 1}])
	assert.Equal(t, int64(1), positions[[2]int64{1, 2}])
	assert.Equal(t, int64(2), positions[[2]int64{1, 3}])
	assert.Equal(t, int64(1), positions[[2]int64{2, 1}])

	// no starting cash, no percentage
	assert.False(t, got[3].OverallGainLossPercent.Valid)
}

func TestGameStatuses(t *testing.T) {
	today := domain.NewDate(2021, 6, 15)
	games := []domain.SimulatorGame{
		{GameID: 1, EndDate: domain.NewDate(2021, 6, 14)},
		{GameID: 2, EndDate: today},
		{GameID: 3},
	}
	players := []domain.SimulatorPlayer{{GameID: 1}, {GameID: 1}, {GameID: 3}}

	got := GameStatuses(games, players, today)
	assert.Equal(t, []domain.SimulatorGameStatus{
		{GameID: 1, IsActive: false, NumPlayers: 2},
		{GameID: 2, IsActive: true, NumPlayers: 0},
		{GameID: 3, IsActive: true, NumPlayers: 1},
	}, got)
}

func TestService_Run(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "simulator")
	defer cleanup()

	ids := testingpkg.SeedSymbols(t, db, testingpkg.NewSymbolFixtures())
	testingpkg.SeedCloses(t, db, ids, "RFHL", map[string]float64{"2021-06-14": 100})
	testingpkg.MustExec(t, db, `INSERT INTO simulator_games (game_id, game_name, date_ended, starting_cash, is_active)
		VALUES (1, 'Open', NULL, 10000, 1), (2, 'Closed', '2021-01-31', 10000, 1)`)
	testingpkg.MustExec(t, db, `INSERT INTO simulator_players (player_id, game_id, user_id, liquid_cash)
		VALUES (10, 1, 100, 10000), (11, 1, 101, 12000)`)
	testingpkg.MustExec(t, db, `INSERT INTO simulator_transactions
		(player_id, symbol_id, date, bought_or_sold, share_price, num_shares)
		VALUES (10, ?, '2021-06-01', 'buy', 50, 100)`, ids["RFHL"])

	s := sink.New(db, zerolog.Nop())
	valuer := portfolio.NewService(portfolio.NewRepository(db), marketsummary.NewRepository(db), s, zerolog.Nop())
	svc := NewService(db, valuer, s, zerolog.Nop())
	svc.today = func() domain.Date { return domain.NewDate(2021, 6, 15) }

	_, err := svc.Run(context.Background())
	require.NoError(t, err)

	var players []domain.SimulatorPlayer
	require.NoError(t, db.Conn().Select(&players, `SELECT player_id, game_id, user_id, liquid_cash,
		current_portfolio_value, overall_gain_loss, overall_gain_loss_percent, current_position
		FROM simulator_players ORDER BY player_id`))
	require.Len(t, players, 2)
	assert.Equal(t, null.FloatFrom(15000), players[0].CurrentPortfolioValue)
	assert.Equal(t, null.IntFrom(1), players[0].CurrentPosition)
	assert.Equal(t, null.FloatFrom(12000), players[1].CurrentPortfolioValue)
	assert.False(t, players[1].OverallGainLoss.Valid)
	assert.Equal(t, null.IntFrom(2), players[1].CurrentPosition)

	var games []domain.SimulatorGameStatus
	require.NoError(t, db.Conn().Select(&games, `SELECT game_id, is_active, num_players FROM simulator_games ORDER BY game_id`))
	assert.Equal(t, []domain.SimulatorGameStatus{
		{GameID: 1, IsActive: true, NumPlayers: 2},
		{GameID: 2, IsActive: false, NumPlayers: 0},
	}, games)

	assert.Equal(t, 1, testingpkg.CountRows(t, db, "simulator_portfolio_summary"))
	assert.Equal(t, 1, testingpkg.CountRows(t, db, "simulator_portfolio_sectors"))
}
