package technical

import (
	"context"
	"testing"

	"github.com/guregu/null/v6"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trinistocks/pipeline/internal/domain"
	"github.com/trinistocks/pipeline/internal/sink"
	testingpkg "github.com/trinistocks/pipeline/internal/testing"
)

// sessions builds one bar per business day ending on end, with closes
// produced by price(i) for the i-th session.
func sessions(symbol string, end domain.Date, n int, price func(i int) float64) []Bar {
	var dates []domain.Date
	for d := end; len(dates) < n; d = d.AddDays(-1) {
		if d.IsBusinessDay() {
			dates = append([]domain.Date{d}, dates...)
		}
	}
	bars := make([]Bar, n)
	for i, d := range dates {
		bars[i] = Bar{Symbol: symbol, Date: d, Close: price(i), Volume: null.IntFrom(int64(100 * (i%2 + 1)))}
	}
	return bars
}

func TestSummarize(t *testing.T) {
	end := domain.NewDate(2021, 3, 10) // Wednesday
	bars := sessions("RFHL", end, 260, func(i int) float64 { return 10 + float64(i)/10 })

	s, ok := Summarize("RFHL", bars, nil)
	require.True(t, ok)

	last := bars[len(bars)-1].Close
	assert.Equal(t, "RFHL", s.Symbol)
	assert.Equal(t, end, s.Date)
	assert.Equal(t, null.FloatFrom(last), s.LastClosePrice)
	assert.InDelta(t, last-0.95, s.SMA20.Float64, 1e-9)
	assert.True(t, s.SMA200.Valid)
	assert.True(t, s.EMA20.Valid)
	assert.InDelta(t, 100, s.RSI14.Float64, 1e-9)
	assert.False(t, s.Beta.Valid, "no benchmark")
	assert.InDelta(t, 150, s.ADTV.Float64, 1e-9)
	assert.Equal(t, null.FloatFrom(last), s.High52w)

	// the week started Monday 8 March; the base is Friday 5 March, three
	// sessions before the last
	prevFriday := bars[len(bars)-4].Close
	assert.Equal(t, domain.NewDate(2021, 3, 5), bars[len(bars)-4].Date)
	assert.InDelta(t, 100*(last-prevFriday)/prevFriday, s.WTD.Float64, 1e-9)
	assert.True(t, s.MTD.Valid)
	assert.True(t, s.YTD.Valid)
}

func TestSummarize_ShortHistory(t *testing.T) {
	bars := sessions("WCO", domain.NewDate(2021, 1, 6), 3, func(int) float64 { return 5 })
	s, ok := Summarize("WCO", bars, nil)
	require.True(t, ok)
	assert.False(t, s.SMA20.Valid)
	assert.False(t, s.SMA200.Valid)
	assert.False(t, s.RSI14.Valid)
	assert.False(t, s.YTD.Valid, "no session before the year started")
	assert.Equal(t, null.FloatFrom(5), s.Low52w)

	_, ok = Summarize("WCO", nil, nil)
	assert.False(t, ok)
}

func TestBeta(t *testing.T) {
	end := domain.NewDate(2021, 3, 10)
	market := sessions("", end, 60, func(i int) float64 { return 1000 * (1 + float64(i%3)/100) })
	benchmark := make(map[domain.Date]float64, len(market))
	for _, m := range market {
		benchmark[m.Date] = m.Close
	}
	// the asset tracks the index exactly
	bars := sessions("RFHL", end, 60, func(i int) float64 { return market[i].Close / 100 })

	got := beta(bars, benchmark)
	require.True(t, got.Valid)
	assert.InDelta(t, 1.0, got.Float64, 1e-9)
}

func TestService_Run(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "technical")
	defer cleanup()
	ids := testingpkg.SeedSymbols(t, db, testingpkg.NewSymbolFixtures())
	testingpkg.SeedCloses(t, db, ids, "RFHL", map[string]float64{"2021-03-08": 10, "2021-03-09": 11, "2021-03-10": 12})
	testingpkg.SeedCloses(t, db, ids, "WCO", map[string]float64{"2021-03-10": 40})
	testingpkg.MustExec(t, db, `INSERT INTO historical_market_summary (date, index_name, index_value) VALUES ('2021-03-10', 'Composite', 1400)`)

	svc := NewService(db, "Composite", sink.New(db, zerolog.Nop()), zerolog.Nop())
	n, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var lastClose float64
	require.NoError(t, db.Conn().Get(&lastClose, `SELECT last_close_price FROM technical_analysis_summary WHERE symbol_id = ?`, ids["RFHL"]))
	assert.Equal(t, 12.0, lastClose)

	_, err = svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, testingpkg.CountRows(t, db, "technical_analysis_summary"))
}
