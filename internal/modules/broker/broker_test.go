package broker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/guregu/null/v6"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/trinistocks/pipeline/internal/domain"
	"github.com/trinistocks/pipeline/internal/modules/universe"
	"github.com/trinistocks/pipeline/internal/pdftable"
	"github.com/trinistocks/pipeline/internal/sink"
	testingpkg "github.com/trinistocks/pipeline/internal/testing"
)

type mockRates struct {
	mock.Mock
}

func (m *mockRates) Rates(ctx context.Context) (domain.FxRates, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.FxRates), args.Error(1)
}

var known = map[string]struct{}{"RFHL": {}, "NCBFG": {}, "MPCCEL": {}}

func TestReportLinks(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<ul>
		<li><a href="/wp-content/uploads/DMR-2020-05-05.pdf">Daily Market Report</a></li>
		<li><a href="/wp-content/uploads/dmr_06-05-2020.pdf">Daily Market Report</a></li>
		<li><a href="/wp-content/uploads/report.pdf">May 7, 2020</a></li>
		<li><a href="/wp-content/uploads/brochure.pdf">Brochure</a></li>
		<li><a href="/wp-content/uploads/DMR-2020-05-05-v2.pdf">Daily Market Report</a></li>
		<li><a href="/contact">Contact</a></li>
	</ul>`))
	require.NoError(t, err)

	links := reportLinks(doc, func(h string) string { return "https://broker.example" + h })
	require.Len(t, links, 3)
	assert.Equal(t, Link{URL: "https://broker.example/wp-content/uploads/DMR-2020-05-05.pdf", Date: domain.NewDate(2020, 5, 5)}, links[0])
	assert.Equal(t, domain.NewDate(2020, 5, 6), links[1].Date)
	assert.Equal(t, domain.NewDate(2020, 5, 7), links[2].Date)
}

func TestParseQuotes(t *testing.T) {
	pages := []pdftable.Page{{Rows: []pdftable.Row{
		{"Daily Market Report"},
		{"Symbol", "Currency", "Close", "Change", "Volume", "Bid", "Offer"},
		{"RFHL", "TT$", "25.10", "(0.15)", "1,200", "25.00", "25.10"},
		{"MPCCEL", "US$", "1.95", "0.00", "0"},
		{"NCBFG", "??", "7.00", "0.00", "10"},
		{"WCO", "TTD", "10.00", "0.00", "10"},
		{"RFHL", "TTD", "99.00", "0.00", "10"},
	}}}
	date := domain.NewDate(2020, 5, 5)

	quotes := ParseQuotes(pages, date, known)
	require.Len(t, quotes, 2)

	rf := quotes[0]
	assert.Equal(t, "RFHL", rf.Symbol)
	assert.Equal(t, date, rf.Date)
	assert.Equal(t, domain.CurrencyTTD, rf.Currency)
	assert.Equal(t, null.FloatFrom(25.10), rf.ClosePrice)
	assert.Equal(t, null.FloatFrom(-0.15), rf.ChangeDollars)
	assert.Equal(t, null.IntFrom(1200), rf.VolumeTraded)
	assert.Equal(t, null.FloatFrom(25.00), rf.Bid)

	mp := quotes[1]
	assert.Equal(t, domain.CurrencyUSD, mp.Currency)
	assert.False(t, mp.Bid.Valid)
	assert.False(t, mp.Offer.Valid)
}

func newTestService(t *testing.T, pages map[string]string, rates RateSource) (*Service, *testingpkg.PageFetcher, func()) {
	db, cleanup := testingpkg.NewTestDB(t, "broker")
	testingpkg.SeedSymbols(t, db, testingpkg.NewSymbolFixtures())

	fetcher := testingpkg.NewPageFetcher(pages)
	svc := NewService(fetcher, "https://broker.example/reports/", t.TempDir(), db,
		universe.NewSecurityRepository(db, zerolog.Nop()), rates, sink.New(db, zerolog.Nop()), nil, zerolog.Nop())
	svc.open = func(string) ([]pdftable.Page, error) {
		return []pdftable.Page{{Rows: []pdftable.Row{
			{"RFHL", "TTD", "25.00", "0.10", "100", "24.90", "25.00"},
			{"MPCCEL", "USD", "2.00", "0.00", "0"},
		}}}, nil
	}
	return svc, fetcher, cleanup
}

func TestService_Run(t *testing.T) {
	rates := &mockRates{}
	rates.On("Rates", mock.Anything).Return(domain.FxRates{USD: 0.148, JMD: 21.5, BBD: 0.296, FetchedAt: time.Now()}, nil).Once()

	svc, fetcher, cleanup := newTestService(t, map[string]string{
		"https://broker.example/reports/2020/05/":         `<a href="/files/DMR-2020-05-05.pdf">x</a><a href="/files/DMR-2020-04-30.pdf">x</a>`,
		"https://broker.example/files/DMR-2020-05-05.pdf": "%PDF-1.4",
	}, rates)
	defer cleanup()

	from, to := domain.NewDate(2020, 5, 1), domain.NewDate(2020, 5, 31)
	n, err := svc.Run(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.FileExists(t, svc.ReportPath(domain.NewDate(2020, 5, 5)))
	rates.AssertExpectations(t)

	var ttd float64
	require.NoError(t, svc.db.Conn().Get(&ttd, `
		SELECT q.close_price_ttd FROM broker_daily_quotes q
		JOIN listed_equities e ON e.symbol_id = q.symbol_id WHERE e.symbol = 'MPCCEL'`))
	assert.InDelta(t, 2.00/0.148, ttd, 1e-9)

	// stored dates are not fetched again
	before := len(fetcher.URLs())
	n, err = svc.Run(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, fetcher.URLs(), before+1, "only the index page")
}

func TestService_RunFailsWithoutRates(t *testing.T) {
	rates := &mockRates{}
	rates.On("Rates", mock.Anything).Return(domain.FxRates{}, errors.New("down"))

	svc, _, cleanup := newTestService(t, map[string]string{
		"https://broker.example/reports/2020/05/":         `<a href="/files/DMR-2020-05-05.pdf">x</a>`,
		"https://broker.example/files/DMR-2020-05-05.pdf": "%PDF-1.4",
	}, rates)
	defer cleanup()

	_, err := svc.Run(context.Background(), domain.NewDate(2020, 5, 1), domain.NewDate(2020, 5, 31))
	assert.Error(t, err)
	assert.Equal(t, 0, testingpkg.CountRows(t, svc.db, "broker_daily_quotes"))
}

func TestService_MonthURL(t *testing.T) {
	svc := &Service{indexURL: "https://broker.example/reports"}
	assert.Equal(t, "https://broker.example/reports/2021/01/", svc.MonthURL(time.Date(2021, 1, 15, 0, 0, 0, 0, time.UTC)))
}
