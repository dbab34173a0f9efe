package fundamentals

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/guregu/null/v6"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trinistocks/pipeline/internal/domain"
	"github.com/trinistocks/pipeline/internal/modules/marketsummary"
	"github.com/trinistocks/pipeline/internal/sink"
	testingpkg "github.com/trinistocks/pipeline/internal/testing"
)

func lines(netIncome, assets, liabilities, equity, eps, dps, shares, cash float64) domain.ReportLines {
	return domain.ReportLines{
		NetIncome:               null.FloatFrom(netIncome),
		ProfitAfterTax:          null.FloatFrom(netIncome),
		TotalAssets:             null.FloatFrom(assets),
		TotalLiabilities:        null.FloatFrom(liabilities),
		TotalShareholdersEquity: null.FloatFrom(equity),
		BasicEPS:                null.FloatFrom(eps),
		DividendsPerShare:       null.FloatFrom(dps),
		SharesOutstanding:       null.FloatFrom(shares),
		CashAndEquivalents:      null.FloatFrom(cash),
	}
}

func TestRatios(t *testing.T) {
	reports := []domain.Report{
		{Symbol: "RFHL", Currency: domain.CurrencyTTD, PeriodEnd: domain.NewDate(2020, 9, 30), Type: domain.ReportAnnual,
			ReportLines: lines(200, 1000, 600, 400, 2.5, 1.0, 100, 50)},
		{Symbol: "RFHL", Currency: domain.CurrencyTTD, PeriodEnd: domain.NewDate(2019, 9, 30), Type: domain.ReportAnnual,
			ReportLines: lines(150, 900, 550, 350, 2.0, 1.0, 100, 40)},
	}
	out := Ratios(reports, map[string]float64{"RFHL": 25}, domain.FxRates{USD: 0.15, JMD: 22, BBD: 0.3})
	require.Len(t, out, 2)

	first, latest := out[0], out[1]
	assert.Equal(t, domain.NewDate(2019, 9, 30), first.Date)
	assert.False(t, first.EPSGrowthRate.Valid, "no earlier period")
	assert.False(t, first.PEG.Valid)

	assert.Equal(t, "RFHL", latest.Symbol)
	assert.Equal(t, domain.ReportAnnual, latest.ReportType)
	assert.InDelta(t, 0.5, latest.RoE.Float64, 1e-9)
	assert.InDelta(t, 0.5, latest.RoIC.Float64, 1e-9)
	assert.InDelta(t, 400, latest.WorkingCapital.Float64, 1e-9)
	assert.InDelta(t, 1000.0/600, latest.CurrentRatio.Float64, 1e-9)
	assert.InDelta(t, 10, latest.PriceToEarnings.Float64, 1e-9)
	assert.InDelta(t, 0.5, latest.CashPerShare.Float64, 1e-9)
	assert.InDelta(t, 50, latest.EPSGrowthRate.Float64, 1e-9)
	assert.InDelta(t, 0.2, latest.PEG.Float64, 1e-9)
	assert.InDelta(t, 4, latest.BookValuePerShare.Float64, 1e-9)
	assert.InDelta(t, 6.25, latest.PriceToBook.Float64, 1e-9)
	assert.InDelta(t, 4, latest.DividendYield.Float64, 1e-9)
	assert.InDelta(t, 40, latest.DividendPayoutRatio.Float64, 1e-9)
}

func TestRatios_ConvertsPriceIntoListingCurrency(t *testing.T) {
	reports := []domain.Report{{Symbol: "MPCCEL", Currency: domain.CurrencyUSD, PeriodEnd: domain.NewDate(2020, 12, 31),
		Type: domain.ReportAnnual, ReportLines: lines(10, 100, 50, 50, 0.1, 0, 100, 10)}}
	out := Ratios(reports, map[string]float64{"MPCCEL": 10}, domain.FxRates{USD: 0.15, JMD: 22, BBD: 0.3})
	require.Len(t, out, 1)
	assert.InDelta(t, 15, out[0].PriceToEarnings.Float64, 1e-9)
	assert.InDelta(t, 10/(100*0.15), out[0].CashPerShare.Float64, 1e-9)
}

func TestRatios_NullOnZeroOrMissing(t *testing.T) {
	reports := []domain.Report{{Symbol: "WCO", Currency: domain.CurrencyTTD, PeriodEnd: domain.NewDate(2020, 12, 31),
		Type: domain.ReportQuarterly, ReportLines: lines(10, 100, 0, 0, 0, 1, 0, 10)}}
	out := Ratios(reports, map[string]float64{}, domain.FxRates{})
	require.Len(t, out, 1)
	r := out[0]
	assert.False(t, r.RoE.Valid)
	assert.False(t, r.CurrentRatio.Valid)
	assert.False(t, r.PriceToEarnings.Valid)
	assert.False(t, r.CashPerShare.Valid)
	assert.False(t, r.BookValuePerShare.Valid)
	assert.False(t, r.PriceToBook.Valid)
	assert.False(t, r.DividendYield.Valid)
	assert.Equal(t, domain.ReportQuarterly, r.ReportType)
}

const statementCSV = `symbol,report_type,period_end,total_revenue,net_income,profit_after_tax,total_assets,total_liabilities,total_shareholders_equity,basic_earnings_per_share,dividends_per_share,total_shares_outstanding,cash_cash_equivalents
RFHL,annual,2020-09-30,900,200,200,1000,600,400,2.5,1.0,100,50
rfhl,Quarterly,2020-12-31,250,60,60,1010,605,405,0.6,,100,55
RFHL,monthly,2020-10-31,1,1,1,1,1,1,1,1,1,1
,annual,2020-09-30,1,1,1,1,1,1,1,1,1,1
`

func TestReadStatements(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rfhl.csv")
	require.NoError(t, os.WriteFile(path, []byte(statementCSV), 0o644))

	st, err := ReadStatements(path)
	require.NoError(t, err)
	require.Len(t, st.Annual, 1)
	require.Len(t, st.Quarterly, 1)
	assert.Equal(t, 2, st.Rejected)

	assert.Equal(t, "RFHL", st.Annual[0].Symbol)
	assert.Equal(t, domain.NewDate(2020, 9, 30), st.Annual[0].YearEndDate)
	assert.Equal(t, null.FloatFrom(200), st.Annual[0].NetIncome)
	assert.Equal(t, "RFHL", st.Quarterly[0].Symbol)
	assert.False(t, st.Quarterly[0].DividendsPerShare.Valid)
}

func TestService_ImportAndDerive(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "fundamentals")
	defer cleanup()
	ids := testingpkg.SeedSymbols(t, db, testingpkg.NewSymbolFixtures())
	testingpkg.SeedCloses(t, db, ids, "RFHL", map[string]float64{"2021-01-04": 24, "2021-01-05": 25})

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rfhl.csv"), []byte(statementCSV), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.csv"), []byte("symbol,report_type,period_end\nRFHL,annual,not-a-date\n"), 0o644))

	svc := NewService(dir, NewRepository(db), marketsummary.NewRepository(db), sink.New(db, zerolog.Nop()), zerolog.Nop())
	n, err := svc.Import(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = svc.DeriveRatios(context.Background(), domain.FxRates{USD: 0.15, JMD: 22, BBD: 0.3})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var pe float64
	require.NoError(t, db.Conn().Get(&pe, `SELECT price_to_earnings_ratio FROM calculated_fundamental_ratios
		WHERE report_type = 'annual' AND date = '2020-09-30'`))
	assert.InDelta(t, 10, pe, 1e-9)

	// derivation is a fixed point
	_, err = svc.DeriveRatios(context.Background(), domain.FxRates{USD: 0.15, JMD: 22, BBD: 0.3})
	require.NoError(t, err)
	assert.Equal(t, 2, testingpkg.CountRows(t, db, "calculated_fundamental_ratios"))
}
