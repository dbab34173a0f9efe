package dividends

import (
	"context"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trinistocks/pipeline/internal/domain"
	"github.com/trinistocks/pipeline/internal/modules/marketsummary"
	"github.com/trinistocks/pipeline/internal/modules/universe"
	"github.com/trinistocks/pipeline/internal/refdata"
	"github.com/trinistocks/pipeline/internal/sink"
	testingpkg "github.com/trinistocks/pipeline/internal/testing"
)

const actionsPage = `<html><body><table>
<tr><th>Record Date</th><th>Ex-Date</th><th>Payment Date</th><th>Amount</th><th>Currency</th></tr>
<tr><td>2019-11-29</td><td>2019-11-27</td><td>2019-12-13</td><td>0.40</td><td>TTD</td></tr>
<tr><td>2019-11-29</td><td>2019-11-27</td><td>2019-12-13</td><td>0.10</td><td>TTD</td></tr>
<tr><td>TBA</td><td></td><td></td><td>0.20</td><td>TTD</td></tr>
<tr><td>31/05/2019</td><td>29/05/2019</td><td>14/06/2019</td><td>1.35</td><td></td></tr>
<tr><td>2018-05-31</td><td></td><td></td><td>n/a</td><td>TTD</td></tr>
</table></body></html>`

func doc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	d, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return d
}

func TestParseDividends(t *testing.T) {
	divs, dropped := parseDividends(doc(t, actionsPage), "NCBFG", refdata.Default())
	assert.Equal(t, 2, dropped)
	require.Len(t, divs, 2)

	assert.Equal(t, "2019-05-31", divs[0].RecordDate.String())
	assert.Equal(t, 1.35, divs[0].Amount)
	// blank currency falls back to the symbol's dividend currency
	assert.Equal(t, domain.CurrencyJMD, divs[0].Currency)

	assert.Equal(t, "2019-11-29", divs[1].RecordDate.String())
	assert.InDelta(t, 0.50, divs[1].Amount, 1e-9)
	assert.Equal(t, domain.CurrencyTTD, divs[1].Currency)
	assert.Equal(t, "NCBFG", divs[1].Symbol)
}

func TestParseDividends_NoHeader(t *testing.T) {
	divs, dropped := parseDividends(doc(t, "<table><tr><td>nothing</td></tr></table>"), "X", refdata.Default())
	assert.Empty(t, divs)
	assert.Zero(t, dropped)
}

func closesOf(prices map[string]float64) []marketsummary.Close {
	var out []marketsummary.Close
	for d, p := range prices {
		out = append(out, marketsummary.Close{Date: domain.MustParseDate(d), Price: p})
	}
	// ascending
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Date.Before(out[j-1].Date); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func div(date string, amount float64) domain.DividendPayment {
	return domain.DividendPayment{RecordDate: domain.MustParseDate(date), Amount: amount}
}

func TestSummarize_TTMAndMultiYear(t *testing.T) {
	closes := closesOf(map[string]float64{
		"2018-03-01": 10, "2018-09-01": 10,
		"2019-03-01": 10, "2019-09-01": 10,
		"2020-03-01": 10, "2020-09-01": 10,
		"2021-03-01": 0, "2021-06-01": 10,
	})
	divs := []domain.DividendPayment{
		div("2018-06-01", 0.40),
		div("2019-06-01", 0.60),
		div("2020-03-01", 0.20),
		div("2020-09-01", 0.30),
		div("2021-03-01", 0.20),
	}

	s := Summarize("X", divs, closes, 1, domain.MustParseDate("2021-06-15"))
	assert.InDelta(t, 5.0, s.TTMYield.Float64, 1e-9)
	assert.InDelta(t, 5.0, s.ThreeYearYield.Float64, 1e-9)
	assert.InDelta(t, 3.0, s.FiveYearYield.Float64, 1e-9)
	assert.InDelta(t, 1.5, s.TenYearYield.Float64, 1e-9)
}

func TestSummarize_AppliesCurrencyFactor(t *testing.T) {
	closes := closesOf(map[string]float64{"2021-06-01": 10})
	divs := []domain.DividendPayment{div("2021-03-01", 0.10)}

	s := Summarize("MPCCEL", divs, closes, 1/0.147, domain.MustParseDate("2021-06-15"))
	assert.InDelta(t, 0.10/0.147/10*100, s.TTMYield.Float64, 1e-9)
}

func TestSummarize_NoPositiveClose(t *testing.T) {
	s := Summarize("X", []domain.DividendPayment{div("2021-03-01", 1)}, closesOf(map[string]float64{"2021-01-04": 0}), 1, domain.MustParseDate("2021-06-15"))
	assert.False(t, s.TTMYield.Valid)
	assert.True(t, s.ThreeYearYield.Valid)
	assert.Zero(t, s.ThreeYearYield.Float64)
}

func TestEventYields(t *testing.T) {
	closes := closesOf(map[string]float64{"2020-01-02": 20, "2020-02-03": 25})
	divs := []domain.DividendPayment{
		div("2019-12-31", 1),
		div("2020-01-15", 1),
		div("2020-02-03", 1),
	}

	ys := EventYields("X", divs, closes, 1)
	require.Len(t, ys, 3)
	assert.False(t, ys[0].DividendYield.Valid)
	assert.InDelta(t, 5.0, ys[1].DividendYield.Float64, 1e-9)
	assert.InDelta(t, 4.0, ys[2].DividendYield.Float64, 1e-9)
}

func TestService_RunAndDerive(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "dividends")
	defer cleanup()
	ids := testingpkg.SeedSymbols(t, db, testingpkg.NewSymbolFixtures())
	testingpkg.SeedCloses(t, db, ids, "RFHL", map[string]float64{"2019-11-29": 100, "2021-06-01": 125})

	ref := refdata.Default()
	scraper := NewScraper(nil, "https://exchange.test", ref, zerolog.Nop())
	today := domain.MustParseDate("2021-06-15")
	scraper.fetcher = testingpkg.NewPageFetcher(map[string]string{
		scraper.PageURL("RFHL", today): actionsPage,
	})

	s := sink.New(db, zerolog.Nop())
	svc := NewService(scraper, universe.NewSecurityRepository(db, zerolog.Nop()), NewRepository(db),
		marketsummary.NewRepository(db), ref, s, zerolog.Nop())
	svc.today = func() domain.Date { return today }

	n, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// idempotent
	_, err = svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, testingpkg.CountRows(t, db, "historical_dividend_info"))

	_, err = svc.DeriveYields(context.Background(), domain.FxRates{USD: 0.147, JMD: 23.1, BBD: 0.295})
	require.NoError(t, err)

	var yield float64
	require.NoError(t, db.Conn().Get(&yield,
		`SELECT dividend_yield FROM historical_dividend_yield WHERE symbol_id = ? AND date = '2019-11-29'`, ids["RFHL"]))
	assert.InDelta(t, 0.5, yield, 1e-9)

	assert.Equal(t, 1, testingpkg.CountRows(t, db, "summarized_dividend_yield"))
}
