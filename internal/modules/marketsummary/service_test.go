package marketsummary

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trinistocks/pipeline/internal/domain"
	"github.com/trinistocks/pipeline/internal/modules/universe"
	"github.com/trinistocks/pipeline/internal/refdata"
	"github.com/trinistocks/pipeline/internal/sink"
	testingpkg "github.com/trinistocks/pipeline/internal/testing"
)

func summaryPage(date string) string {
	return fmt.Sprintf(`<html><body>
<table>
<tr><td>Composite Totals</td><td>1,423.55</td><td>-2.10</td><td>-0.15</td><td>512,300</td><td>4,210,554.20</td><td>143</td></tr>
<tr><td>All T&amp;T Totals</td><td>1,871.02</td><td></td><td>1.20</td><td>0.06</td><td>400,100</td><td>3,100,000.00</td><td>99</td></tr>
</table>
<table>
<tr><th>*</th><th>Symbol</th><th>Open</th><th>High</th><th>Low</th><th>Bid</th><th>Bid Vol</th><th>Offer</th><th>Offer Vol</th><th>Sale</th><th>Sale Date</th><th>Volume</th><th>Close</th><th>Change</th></tr>
<tr><td>x</td><td>RFHL</td><td>130.00</td><td>131.00</td><td>129.50</td><td>130.50</td><td>1,000</td><td>131.00</td><td>500</td><td>130.75</td><td>%[1]s</td><td>2,000</td><td>130.75</td><td>0.75</td></tr>
<tr><td>x</td><td>WCO</td><td> </td><td> </td><td> </td><td>20.00</td><td>100</td><td>21.00</td><td>50</td><td> </td><td>%[1]s</td><td>0</td><td>20.50</td><td>0.00</td></tr>
<tr><td>x</td><td>ZZZ</td><td>1</td><td>1</td><td>1</td><td>1</td><td>1</td><td>1</td><td>1</td><td>1</td><td>%[1]s</td><td>1</td><td>1</td><td>0</td></tr>
<tr><td>x</td><td>NCBFG</td><td>1</td><td>1</td><td>1</td><td>1</td><td>1</td><td>1</td><td>1</td><td>1</td><td>01/01/2019</td><td>1</td><td>1</td><td>0</td></tr>
</table></body></html>`, date)
}

func TestParser_Parse(t *testing.T) {
	date := domain.MustParseDate("2020-01-06")
	known := map[string]struct{}{"RFHL": {}, "WCO": {}, "NCBFG": {}}

	day, err := NewParser(refdata.Default(), zerolog.Nop()).Parse([]byte(summaryPage("06/01/2020")), date, known)
	require.NoError(t, err)

	require.Len(t, day.Indices, len(refdata.Default().Indices))
	composite := day.Indices[0]
	assert.Equal(t, "Composite", composite.IndexName)
	assert.Equal(t, 1423.55, composite.IndexValue.Float64)
	assert.Equal(t, -2.10, composite.IndexChange.Float64)
	assert.Equal(t, -0.15, composite.ChangePercent.Float64)
	assert.Equal(t, int64(512300), composite.VolumeTraded.Int64)
	assert.Equal(t, 4210554.20, composite.ValueTraded.Float64)
	assert.Equal(t, int64(143), composite.NumTrades.Int64)

	// blank cells between figures are skipped
	allTT := day.Indices[1]
	assert.Equal(t, 1.20, allTT.IndexChange.Float64)
	assert.Equal(t, int64(99), allTT.NumTrades.Int64)

	// labels absent from the page give null rows
	sme := day.Indices[3]
	assert.Equal(t, "SME", sme.IndexName)
	assert.False(t, sme.IndexValue.Valid)

	require.Len(t, day.Bars, 2)
	rfhl := day.Bars[0]
	assert.Equal(t, "RFHL", rfhl.Symbol)
	assert.True(t, rfhl.WasTraded)
	assert.Equal(t, int64(1000), rfhl.OsBidVol.Int64)
	assert.Equal(t, int64(2000), rfhl.VolumeTraded.Int64)
	assert.InDelta(t, 261500.0, rfhl.ValueTraded.Float64, 1e-9)

	wco := day.Bars[1]
	assert.False(t, wco.WasTraded)
	assert.False(t, wco.Open.Valid)
	assert.False(t, wco.ValueTraded.Valid)
	assert.Equal(t, 20.50, wco.ClosePrice.Float64)
}

func TestParser_NoData(t *testing.T) {
	body := []byte(`<html><body><p>There is no data for the date selected</p></body></html>`)
	_, err := NewParser(refdata.Default(), zerolog.Nop()).Parse(body, domain.MustParseDate("2020-01-01"), nil)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestFollowingValues(t *testing.T) {
	cells := []string{"x", "SME Totals", "1", "", "2"}
	assert.Equal(t, []string{"1", "2", "", "", "", ""}, followingValues(cells, "sme totals", 6))
	assert.Nil(t, followingValues(cells, "Composite Totals", 6))
}

func TestService_Run(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "marketsummary")
	defer cleanup()
	testingpkg.SeedSymbols(t, db, testingpkg.NewSymbolFixtures())

	ref := refdata.Default()
	s := sink.New(db, zerolog.Nop())
	svc := NewService(nil, "https://exchange.test", ref, universe.NewSecurityRepository(db, zerolog.Nop()), s, zerolog.Nop())

	d1 := domain.MustParseDate("2020-01-06")
	d2 := domain.MustParseDate("2020-01-07")
	d3 := domain.MustParseDate("2020-01-08")
	fetcher := testingpkg.NewPageFetcher(map[string]string{
		svc.PageURL(d1): summaryPage("2020-01-06"),
		svc.PageURL(d2): `<p>There is no data for the date selected</p>`,
	})
	svc.fetcher = fetcher

	res, err := svc.Run(context.Background(), []domain.Date{d1, d2, d3})
	require.NoError(t, err)
	assert.Equal(t, []domain.Date{d1}, res.Fetched)
	assert.Equal(t, []domain.Date{d2}, res.Skipped)
	assert.Equal(t, []domain.Date{d3}, res.Failed)
	assert.Equal(t, len(ref.Indices)+2, res.Rows)
	assert.Equal(t, []string{svc.PageURL(d1), svc.PageURL(d2), svc.PageURL(d3)}, fetcher.URLs())

	assert.Equal(t, 2, testingpkg.CountRows(t, db, "daily_stock_summary"))
	assert.Equal(t, len(ref.Indices), testingpkg.CountRows(t, db, "historical_market_summary"))

	repo := NewRepository(db)
	dates, err := repo.Dates(context.Background(), domain.MustParseDate("2020-01-01"))
	require.NoError(t, err)
	assert.Contains(t, dates, d1)
	assert.Contains(t, dates, d2, "closed days are not planned again")
	assert.NotContains(t, dates, d3)
	assert.Len(t, dates, 2)
	assert.Equal(t, 1, testingpkg.CountRows(t, db, "market_closed_days"))

	latest, err := repo.LatestDate(context.Background())
	require.NoError(t, err)
	assert.True(t, latest.Equal(d1))
}

func TestRepository_DatesRecheckSameDayClosures(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "marketsummary_closed")
	defer cleanup()
	s := sink.New(db, zerolog.Nop())

	holiday := domain.MustParseDate("2020-01-01")
	pending := domain.MustParseDate("2020-01-02")
	indexOnly := domain.MustParseDate("2020-01-03")
	_, err := sink.Upsert(context.Background(), s, []domain.MarketClosedDay{
		{Date: holiday, CheckedOn: holiday.AddDays(3)},
		// looked at on the day itself, before the page was published
		{Date: pending, CheckedOn: pending},
	})
	require.NoError(t, err)
	_, err = sink.Upsert(context.Background(), s, []domain.MarketSummary{{Date: indexOnly, IndexName: "Composite Totals"}})
	require.NoError(t, err)

	dates, err := NewRepository(db).Dates(context.Background(), holiday)
	require.NoError(t, err)
	assert.Contains(t, dates, holiday)
	assert.NotContains(t, dates, pending)
	assert.Contains(t, dates, indexOnly)
}

func TestService_RunEmpty(t *testing.T) {
	svc := NewService(nil, "https://exchange.test", refdata.Default(), nil, nil, zerolog.Nop())
	res, err := svc.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, res.Rows)
}
