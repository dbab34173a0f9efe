package marketsummary

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/guregu/null/v6"
	"github.com/rs/zerolog"

	"github.com/trinistocks/pipeline/internal/domain"
	"github.com/trinistocks/pipeline/internal/refdata"
)

// ErrNoData means the exchange published nothing for the requested day.
var ErrNoData = errors.New("no market data for date")

// equityRowCells is the width of an equity row of the summary table.
const equityRowCells = 14

// index block layout after the label
const indexFields = 6

// Day is everything parsed from one summary page.
type Day struct {
	Date    domain.Date
	Indices []domain.MarketSummary
	Bars    []domain.DailyStockBar
}

// Parser turns a summary page into records.
type Parser struct {
	ref *refdata.Data
	log zerolog.Logger
}

// NewParser creates a parser.
func NewParser(ref *refdata.Data, log zerolog.Logger) *Parser {
	return &Parser{ref: ref, log: log}
}

// Parse reads the page of date. known is the set of listed symbols; rows
// for anything else are dropped.
func (p *Parser) Parse(body []byte, date domain.Date, known map[string]struct{}) (Day, error) {
	if p.ref.IsNoData(string(body)) {
		return Day{}, fmt.Errorf("%s: %w", date, ErrNoData)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return Day{}, fmt.Errorf("failed to parse summary page of %s: %w", date, err)
	}

	day := Day{Date: date, Indices: p.indices(doc, date)}
	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.ChildrenFiltered("td")
		if cells.Length() != equityRowCells {
			return
		}
		texts := make([]string, equityRowCells)
		cells.Each(func(i int, td *goquery.Selection) {
			texts[i] = strings.TrimSpace(td.Text())
		})
		if bar, ok := p.equityRow(texts, date, known); ok {
			day.Bars = append(day.Bars, bar)
		}
	})
	return day, nil
}

// indices locates each index label among the page's cells and reads the
// figures that follow it. A missing label yields a row of nulls.
func (p *Parser) indices(doc *goquery.Document, date domain.Date) []domain.MarketSummary {
	var cells []string
	doc.Find("td, th").Each(func(_ int, s *goquery.Selection) {
		cells = append(cells, strings.Join(strings.Fields(s.Text()), " "))
	})

	out := make([]domain.MarketSummary, 0, len(p.ref.Indices))
	for _, idx := range p.ref.Indices {
		row := domain.MarketSummary{Date: date, IndexName: idx.Name}
		values := followingValues(cells, idx.Label, indexFields)
		if values == nil {
			p.log.Warn().Str("date", date.String()).Str("index", idx.Name).Msg("Index label not found, storing nulls")
			out = append(out, row)
			continue
		}
		row.IndexValue = domain.ParseFloat(values[0])
		row.IndexChange = domain.ParseFloat(values[1])
		row.ChangePercent = domain.ParseFloat(values[2])
		row.VolumeTraded = domain.ParseInt(values[3])
		row.ValueTraded = domain.ParseFloat(values[4])
		row.NumTrades = domain.ParseInt(values[5])
		out = append(out, row)
	}
	return out
}

// followingValues returns the n non-empty cells after the cell equal to
// label, padded with blanks when the table ends early.
func followingValues(cells []string, label string, n int) []string {
	for i, c := range cells {
		if !strings.EqualFold(c, label) {
			continue
		}
		values := make([]string, 0, n)
		for _, v := range cells[i+1:] {
			if len(values) == n {
				break
			}
			if v != "" {
				values = append(values, v)
			}
		}
		for len(values) < n {
			values = append(values, "")
		}
		return values
	}
	return nil
}

func (p *Parser) equityRow(c []string, date domain.Date, known map[string]struct{}) (domain.DailyStockBar, bool) {
	symbol := strings.ToUpper(c[1])
	if _, ok := known[symbol]; !ok {
		return domain.DailyStockBar{}, false
	}
	saleDate, err := domain.ParseDateLayouts(c[10], domain.PageDateLayouts...)
	if err != nil || !saleDate.Equal(date) {
		return domain.DailyStockBar{}, false
	}

	bar := domain.DailyStockBar{
		SymbolRef:     domain.SymbolRef{Symbol: symbol},
		Date:          date,
		Open:          domain.ParseFloat(c[2]),
		High:          domain.ParseFloat(c[3]),
		Low:           domain.ParseFloat(c[4]),
		OsBid:         domain.ParseFloat(c[5]),
		OsBidVol:      domain.ParseInt(c[6]),
		OsOffer:       domain.ParseFloat(c[7]),
		OsOfferVol:    domain.ParseInt(c[8]),
		LastSalePrice: domain.ParseFloat(c[9]),
		VolumeTraded:  domain.ParseInt(c[11]),
		ClosePrice:    domain.ParseFloat(c[12]),
		ChangeDollars: domain.ParseFloat(c[13]),
	}
	if bar.VolumeTraded.Valid && bar.LastSalePrice.Valid {
		bar.ValueTraded = domain.Finite(float64(bar.VolumeTraded.Int64) * bar.LastSalePrice.Float64)
	}
	bar.WasTraded = bar.VolumeTraded.Valid && bar.VolumeTraded.Int64 > 0 && complete(bar)
	return bar, true
}

func complete(b domain.DailyStockBar) bool {
	for _, f := range []null.Float{b.Open, b.High, b.Low, b.OsBid, b.OsOffer, b.LastSalePrice, b.ClosePrice, b.ChangeDollars, b.ValueTraded} {
		if !f.Valid {
			return false
		}
	}
	return b.OsBidVol.Valid && b.OsOfferVol.Valid
}
