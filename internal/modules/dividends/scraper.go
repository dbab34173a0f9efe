// Package dividends scrapes declared dividends from the exchange's
// corporate-actions pages and derives dividend yields from them.
package dividends

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/trinistocks/pipeline/internal/clients/fetch"
	"github.com/trinistocks/pipeline/internal/domain"
	"github.com/trinistocks/pipeline/internal/refdata"
)

// HistoryStart is the first day requested from the corporate-actions page.
var HistoryStart = domain.NewDate(2010, 1, 1)

// cells per dividend after the header: record date, ex-date, payment
// date, amount, currency
const stride = 5

// Scraper reads the corporate-actions page of each symbol.
type Scraper struct {
	fetcher fetch.Fetcher
	baseURL string
	ref     *refdata.Data
	log     zerolog.Logger
}

// NewScraper creates a dividend scraper for the exchange at baseURL.
func NewScraper(fetcher fetch.Fetcher, baseURL string, ref *refdata.Data, log zerolog.Logger) *Scraper {
	return &Scraper{
		fetcher: fetcher,
		baseURL: strings.TrimRight(baseURL, "/"),
		ref:     ref,
		log:     log.With().Str("adapter", "dividends").Logger(),
	}
}

// PageURL is the corporate-actions page of symbol up to end.
func (s *Scraper) PageURL(symbol string, end domain.Date) string {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("StartDate", HistoryStart.String())
	q.Set("EndDate", end.String())
	return s.baseURL + "/corporate-actions/?" + q.Encode()
}

// Scrape returns the dividends of every symbol. A symbol whose page
// cannot be read is skipped with a warning.
func (s *Scraper) Scrape(ctx context.Context, symbols []string, today domain.Date) []domain.DividendPayment {
	var out []domain.DividendPayment
	for _, sym := range symbols {
		doc, _, err := fetch.GetDocument(ctx, s.fetcher, fetch.Request{
			URL: s.PageURL(sym, today), Kind: fetch.KindHTML, WaitFor: "table",
		})
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", sym).Msg("Skipping symbol")
			continue
		}
		divs, dropped := parseDividends(doc, sym, s.ref)
		if dropped > 0 {
			s.log.Warn().Str("symbol", sym).Int("rows", dropped).Msg("Dropped unparseable dividend rows")
		}
		out = append(out, divs...)
	}
	return out
}

// parseDividends reads the cells after the first "Currency" header in
// groups of five. Rows with an unparseable record date or amount are
// dropped and counted. Payments sharing a record date are summed.
func parseDividends(doc *goquery.Document, symbol string, ref *refdata.Data) ([]domain.DividendPayment, int) {
	var cells []string
	doc.Find("td, th").Each(func(_ int, c *goquery.Selection) {
		cells = append(cells, strings.TrimSpace(c.Text()))
	})

	anchor := -1
	for i, c := range cells {
		if strings.EqualFold(c, "Currency") {
			anchor = i
			break
		}
	}
	if anchor < 0 {
		return nil, 0
	}

	byDate := make(map[domain.Date]*domain.DividendPayment)
	dropped := 0
	data := cells[anchor+1:]
	for i := 0; i+stride <= len(data); i += stride {
		row := data[i : i+stride]
		recordDate, err := domain.ParseDateLayouts(row[0], domain.PageDateLayouts...)
		if err != nil {
			dropped++
			continue
		}
		amount := domain.ParseFloat(row[3])
		if !amount.Valid || amount.Float64 < 0 {
			dropped++
			continue
		}
		if d, ok := byDate[recordDate]; ok {
			d.Amount += amount.Float64
			continue
		}
		byDate[recordDate] = &domain.DividendPayment{
			SymbolRef:  domain.SymbolRef{Symbol: symbol},
			RecordDate: recordDate,
			Amount:     amount.Float64,
			Currency:   currencyOf(row[4], symbol, ref),
		}
	}

	out := make([]domain.DividendPayment, 0, len(byDate))
	for _, d := range byDate {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordDate.Before(out[j].RecordDate) })
	return out, dropped
}

func currencyOf(cell, symbol string, ref *refdata.Data) domain.Currency {
	c := domain.Currency(strings.ToUpper(strings.TrimSpace(cell)))
	switch c {
	case domain.CurrencyTTD, domain.CurrencyUSD, domain.CurrencyJMD, domain.CurrencyBBD:
		return c
	}
	return ref.DividendCurrency(symbol)
}
