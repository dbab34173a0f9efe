// Package news scrapes each listed symbol's news listing from the
// exchange.
package news

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/guregu/null/v6"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/trinistocks/pipeline/internal/clients/fetch"
	"github.com/trinistocks/pipeline/internal/domain"
	"github.com/trinistocks/pipeline/internal/sink"
)

var strictPolicy = bluemonday.StrictPolicy()

// SymbolLister lists the symbols to scrape.
type SymbolLister interface {
	All(ctx context.Context) ([]domain.Symbol, error)
}

// Service scrapes news listings and stores the articles.
type Service struct {
	fetcher fetch.Fetcher
	baseURL string
	symbols SymbolLister
	sink    *sink.Sink
	log     zerolog.Logger
}

// NewService creates the news service.
func NewService(fetcher fetch.Fetcher, baseURL string, symbols SymbolLister, s *sink.Sink, log zerolog.Logger) *Service {
	return &Service{
		fetcher: fetcher,
		baseURL: strings.TrimRight(baseURL, "/"),
		symbols: symbols,
		sink:    s,
		log:     log.With().Str("adapter", "news").Logger(),
	}
}

// PageURL is the news listing filtered to one external symbol id.
func (s *Service) PageURL(externalID int64) string {
	return s.baseURL + "/news/?symbol=" + strconv.FormatInt(externalID, 10)
}

// Run scrapes the news of every symbol that has an external id.
func (s *Service) Run(ctx context.Context) (int, error) {
	symbols, err := s.symbols.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list symbols: %w", err)
	}

	var articles []domain.NewsArticle
	for _, sym := range symbols {
		if !sym.ExternalID.Valid {
			continue
		}
		pageURL := s.PageURL(sym.ExternalID.Int64)
		doc, _, err := fetch.GetDocument(ctx, s.fetcher, fetch.Request{URL: pageURL, Kind: fetch.KindHTML, WaitFor: "table"})
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", sym.Symbol).Msg("Skipping symbol")
			continue
		}
		articles = append(articles, parseListing(doc, sym.Symbol, pageURL)...)
	}

	n, err := sink.Upsert(ctx, s.sink, articles)
	if err != nil {
		return n, fmt.Errorf("failed to store news: %w", err)
	}
	s.log.Info().Int("rows", n).Msg("News updated")
	return n, nil
}

// parseListing reads rows of date, linked title and optional category.
// Rows without a parseable date or a link are dropped.
func parseListing(doc *goquery.Document, symbol, pageURL string) []domain.NewsArticle {
	base, _ := url.Parse(pageURL)
	seen := make(map[string]struct{})

	var out []domain.NewsArticle
	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.ChildrenFiltered("td")
		if cells.Length() < 2 {
			return
		}
		date, err := domain.ParseDateLayouts(cells.Eq(0).Text(), domain.PageDateLayouts...)
		if err != nil {
			return
		}
		a := cells.Eq(1).Find("a[href]").First()
		href, _ := a.Attr("href")
		link := resolve(base, href)
		if link == "" {
			return
		}
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}

		inner, _ := a.Html()
		article := domain.NewsArticle{
			SymbolRef: domain.SymbolRef{Symbol: symbol},
			Link:      link,
			Date:      date,
			Title:     cleanText(inner),
		}
		if cells.Length() > 2 {
			if c := cleanText(cells.Eq(2).Text()); c != "" {
				article.Category = null.StringFrom(c)
			}
		}
		out = append(out, article)
	})
	return out
}

// cleanText strips markup and collapses whitespace.
func cleanText(s string) string {
	s = html.UnescapeString(strictPolicy.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	return u.String()
}
