package universe

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/guregu/null/v6"
	"github.com/rs/zerolog"

	"github.com/trinistocks/pipeline/internal/clients/fetch"
	"github.com/trinistocks/pipeline/internal/domain"
	"github.com/trinistocks/pipeline/internal/refdata"
)

// Scraper reads the exchange's listings index, the per-symbol profile
// pages and the news symbol dropdown.
type Scraper struct {
	fetcher fetch.Fetcher
	baseURL string
	ref     *refdata.Data
	log     zerolog.Logger
}

// NewScraper creates a listed-equities scraper for the exchange at baseURL.
func NewScraper(fetcher fetch.Fetcher, baseURL string, ref *refdata.Data, log zerolog.Logger) *Scraper {
	return &Scraper{
		fetcher: fetcher,
		baseURL: strings.TrimRight(baseURL, "/"),
		ref:     ref,
		log:     log.With().Str("adapter", "listed_equities").Logger(),
	}
}

// ListingsURL is the index of every listed security.
func (s *Scraper) ListingsURL() string { return s.baseURL + "/listed-securities/" }

// ProfileURL is a symbol's profile page.
func (s *Scraper) ProfileURL(symbol string) string {
	return s.baseURL + "/manage-stock/" + url.PathEscape(symbol) + "/"
}

// NewsURL is the news page whose symbol dropdown carries external ids.
func (s *Scraper) NewsURL() string { return s.baseURL + "/news/" }

// Scrape returns the full listing. Symbols whose profile cannot be read
// are skipped with a warning.
func (s *Scraper) Scrape(ctx context.Context) ([]domain.Symbol, error) {
	codes, err := s.Symbols(ctx)
	if err != nil {
		return nil, err
	}
	s.log.Info().Int("symbols", len(codes)).Msg("Read listings index")

	newsIDs, err := s.NewsIDs(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to read news symbol ids, continuing without them")
	}

	var out []domain.Symbol
	for _, code := range codes {
		sym, err := s.Profile(ctx, code)
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", code).Msg("Skipping symbol")
			continue
		}
		if id, ok := newsIDs[code]; ok {
			sym.ExternalID = null.IntFrom(id)
		}
		out = append(out, sym)
	}
	return out, nil
}

// Symbols returns the symbol codes on the listings index.
func (s *Scraper) Symbols(ctx context.Context) ([]string, error) {
	doc, _, err := fetch.GetDocument(ctx, s.fetcher, fetch.Request{
		URL: s.ListingsURL(), Kind: fetch.KindHTML, WaitFor: "a[href*='/manage-stock/']",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listings index: %w", err)
	}
	codes := parseListings(doc, s.ref)
	if len(codes) == 0 {
		return nil, fmt.Errorf("listings index at %s holds no symbols", s.ListingsURL())
	}
	return codes, nil
}

// Profile reads one symbol's profile page.
func (s *Scraper) Profile(ctx context.Context, code string) (domain.Symbol, error) {
	doc, _, err := fetch.GetDocument(ctx, s.fetcher, fetch.Request{
		URL: s.ProfileURL(code), Kind: fetch.KindHTML, WaitFor: "table, dl",
	})
	if err != nil {
		return domain.Symbol{}, fmt.Errorf("failed to fetch profile: %w", err)
	}
	return parseProfile(doc, code, s.ref)
}

// NewsIDs maps symbol codes to the ids the news page filters by.
func (s *Scraper) NewsIDs(ctx context.Context) (map[string]int64, error) {
	doc, _, err := fetch.GetDocument(ctx, s.fetcher, fetch.Request{
		URL: s.NewsURL(), Kind: fetch.KindHTML, WaitFor: "select option",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch news page: %w", err)
	}
	return parseNewsDropdown(doc), nil
}

func parseListings(doc *goquery.Document, ref *refdata.Data) []string {
	seen := make(map[string]struct{})
	doc.Find("a[href*='/manage-stock/']").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		code := symbolFromHref(href)
		if code == "" {
			code = strings.TrimSpace(a.Text())
		}
		code = strings.ToUpper(code)
		if code == "" || ref.IsBlacklisted(code) || strings.ContainsAny(code, " \t\n") {
			return
		}
		seen[code] = struct{}{}
	})

	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func symbolFromHref(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, p := range parts {
		if p == "manage-stock" && i+1 < len(parts) {
			code, err := url.PathUnescape(parts[i+1])
			if err != nil {
				return ""
			}
			return code
		}
	}
	return ""
}

// profileFields reads label/value pairs from two-cell table rows and from
// definition lists. Labels are lower-cased without a trailing colon.
func profileFields(doc *goquery.Document) map[string]*goquery.Selection {
	fields := make(map[string]*goquery.Selection)
	add := func(label string, value *goquery.Selection) {
		label = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(label), ":"))
		if label == "" {
			return
		}
		if _, ok := fields[label]; !ok {
			fields[label] = value
		}
	}
	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.ChildrenFiltered("th, td")
		if cells.Length() == 2 {
			add(cells.First().Text(), cells.Last())
		}
	})
	doc.Find("dt").Each(func(_ int, dt *goquery.Selection) {
		if dd := dt.NextFiltered("dd"); dd.Length() > 0 {
			add(dt.Text(), dd)
		}
	})
	return fields
}

func parseProfile(doc *goquery.Document, code string, ref *refdata.Data) (domain.Symbol, error) {
	fields := profileFields(doc)
	text := func(labels ...string) string {
		for _, l := range labels {
			if sel, ok := fields[l]; ok {
				if v := strings.TrimSpace(sel.Text()); v != "" {
					return v
				}
			}
		}
		return ""
	}
	optional := func(labels ...string) null.String {
		if v := text(labels...); v != "" {
			return null.StringFrom(v)
		}
		return null.String{}
	}

	name := text("security name", "company name", "name")
	if name == "" {
		return domain.Symbol{}, fmt.Errorf("profile of %s has no security name", code)
	}

	sym := domain.Symbol{
		Symbol:               code,
		SecurityName:         ref.CanonicalName(name),
		Status:               parseStatus(text("status")),
		Sector:               optional("sector"),
		IssuedShareCapital:   domain.ParseFloat(text("issued share capital")),
		MarketCapitalization: domain.ParseFloat(text("market capitalization", "market capitalisation")),
		Currency:             parseCurrency(text("currency", "trading currency")),
		FinancialYearEnd:     optional("financial year end", "financial year-end"),
	}

	if sel, ok := fields["website"]; ok {
		href, _ := sel.Find("a").Attr("href")
		if href = strings.TrimSpace(href); href == "" {
			href = strings.TrimSpace(sel.Text())
		}
		if href != "" {
			sym.WebsiteURL = null.StringFrom(href)
		}
	}
	return sym, nil
}

func parseStatus(s string) string {
	if strings.Contains(strings.ToLower(s), "suspend") {
		return domain.StatusSuspended
	}
	return domain.StatusActive
}

func parseCurrency(s string) domain.Currency {
	switch c := domain.Currency(strings.ToUpper(strings.TrimSpace(s))); c {
	case domain.CurrencyUSD, domain.CurrencyJMD, domain.CurrencyBBD:
		return c
	default:
		return domain.CurrencyTTD
	}
}

func parseNewsDropdown(doc *goquery.Document) map[string]int64 {
	out := make(map[string]int64)
	doc.Find("select option").Each(func(_ int, opt *goquery.Selection) {
		value, _ := opt.Attr("value")
		id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || id <= 0 {
			return
		}
		fields := strings.Fields(opt.Text())
		if len(fields) == 0 {
			return
		}
		out[strings.ToUpper(fields[0])] = id
	})
	return out
}
