package broker

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/trinistocks/pipeline/internal/domain"
	"github.com/trinistocks/pipeline/internal/pdftable"
)

// minQuoteCells is symbol, currency, close, change and volume; bid and
// offer are often blank and dropped by the text extraction.
const minQuoteCells = 5

// Link is one report found on a monthly index page.
type Link struct {
	URL  string
	Date domain.Date
}

var (
	isoInName = regexp.MustCompile(`(\d{4})[-_.]?(\d{2})[-_.]?(\d{2})`)
	dmyInName = regexp.MustCompile(`(\d{1,2})[-_.](\d{1,2})[-_.](\d{4})`)
)

// reportLinks extracts the dated PDF links of an index page. The date is
// read from the link text, else from the file name.
func reportLinks(doc *goquery.Document, resolve func(string) string) []Link {
	seen := make(map[domain.Date]struct{})
	var out []Link
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if !strings.HasSuffix(strings.ToLower(href), ".pdf") {
			return
		}
		date, ok := linkDate(strings.TrimSpace(a.Text()), href)
		if !ok {
			return
		}
		if _, dup := seen[date]; dup {
			return
		}
		seen[date] = struct{}{}
		out = append(out, Link{URL: resolve(href), Date: date})
	})
	return out
}

func linkDate(text, href string) (domain.Date, bool) {
	if d, err := domain.ParseDateLayouts(text, domain.PageDateLayouts...); err == nil {
		return d, true
	}
	name := href[strings.LastIndex(href, "/")+1:]
	if m := isoInName.FindStringSubmatch(name); m != nil {
		if d, err := domain.ParseDateLayouts(m[1]+"-"+m[2]+"-"+m[3], domain.DateLayout); err == nil {
			return d, true
		}
	}
	if m := dmyInName.FindStringSubmatch(name); m != nil {
		if t, err := time.Parse("2-1-2006", m[1]+"-"+m[2]+"-"+m[3]); err == nil {
			return domain.DateOf(t), true
		}
	}
	return domain.Date{}, false
}

// ParseQuotes reads the quote rows of one report. A quote row starts with
// a listed symbol; everything else on the pages is ignored.
func ParseQuotes(pages []pdftable.Page, date domain.Date, known map[string]struct{}) []domain.BrokerQuote {
	var out []domain.BrokerQuote
	seen := make(map[string]struct{})
	for _, page := range pages {
		for _, row := range page.Rows {
			if len(row) < minQuoteCells {
				continue
			}
			symbol := strings.ToUpper(strings.TrimSpace(row.Cell(0)))
			if _, ok := known[symbol]; !ok {
				continue
			}
			if _, dup := seen[symbol]; dup {
				continue
			}
			currency, ok := parseCurrency(row.Cell(1))
			if !ok {
				continue
			}
			closePrice := domain.ParseFloat(row.Cell(2))
			if !closePrice.Valid {
				continue
			}
			seen[symbol] = struct{}{}
			q := domain.BrokerQuote{
				Date:          date,
				Currency:      currency,
				ClosePrice:    closePrice,
				ChangeDollars: domain.ParseFloat(row.Cell(3)),
				VolumeTraded:  domain.ParseInt(row.Cell(4)),
				Bid:           domain.ParseFloat(row.Cell(5)),
				Offer:         domain.ParseFloat(row.Cell(6)),
			}
			q.Symbol = symbol
			out = append(out, q)
		}
	}
	return out
}

func parseCurrency(s string) (domain.Currency, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TTD", "TT$", "TT":
		return domain.CurrencyTTD, true
	case "USD", "US$", "US":
		return domain.CurrencyUSD, true
	case "JMD", "J$", "JA$":
		return domain.CurrencyJMD, true
	case "BBD", "BDS$", "BB$":
		return domain.CurrencyBBD, true
	}
	return "", false
}
