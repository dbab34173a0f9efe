package fundamentals

import (
	"sort"

	"github.com/guregu/null/v6"

	"github.com/trinistocks/pipeline/internal/domain"
)

// Ratios derives one ratio row per report. closes holds each symbol's
// latest close in TTD; it is converted into the listing currency so it can
// be compared with the statement figures. A ratio whose inputs are missing
// or whose denominator is zero is null.
func Ratios(reports []domain.Report, closes map[string]float64, rates domain.FxRates) []domain.FundamentalRatio {
	sorted := make([]domain.Report, len(reports))
	copy(sorted, reports)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.PeriodEnd.Before(b.PeriodEnd)
	})

	out := make([]domain.FundamentalRatio, 0, len(sorted))
	for i, rep := range sorted {
		var prev *domain.Report
		if i > 0 && sorted[i-1].Symbol == rep.Symbol && sorted[i-1].Type == rep.Type {
			prev = &sorted[i-1]
		}
		out = append(out, ratio(rep, prev, closes, rates))
	}
	return out
}

func ratio(rep domain.Report, prev *domain.Report, closes map[string]float64, rates domain.FxRates) domain.FundamentalRatio {
	factor := rates.PriceFactor(rep.Currency)
	var price null.Float
	if c, ok := closes[rep.Symbol]; ok {
		price = domain.Finite(c * factor)
	}

	equity := domain.Sub(rep.TotalAssets, rep.TotalLiabilities)
	bvps := domain.Div(equity, rep.SharesOutstanding)
	pe := domain.Div(price, rep.BasicEPS)

	r := domain.FundamentalRatio{
		Date:                rep.PeriodEnd,
		ReportType:          rep.Type,
		RoE:                 domain.Div(rep.NetIncome, rep.TotalShareholdersEquity),
		RoIC:                domain.Div(rep.ProfitAfterTax, rep.TotalShareholdersEquity),
		EPS:                 rep.BasicEPS,
		WorkingCapital:      equity,
		CurrentRatio:        domain.Div(rep.TotalAssets, rep.TotalLiabilities),
		PriceToEarnings:     pe,
		CashPerShare:        domain.Div(rep.CashAndEquivalents, domain.Scale(rep.SharesOutstanding, factor)),
		DividendYield:       domain.Scale(domain.Div(rep.DividendsPerShare, price), 100),
		DividendPayoutRatio: domain.Scale(domain.Div(rep.DividendsPerShare, rep.BasicEPS), 100),
		BookValuePerShare:   bvps,
		PriceToBook:         domain.Div(price, bvps),
	}
	r.Symbol = rep.Symbol
	if prev != nil {
		r.EPSGrowthRate = domain.Scale(domain.Sub(rep.BasicEPS, prev.BasicEPS), 100)
		r.PEG = domain.Div(pe, r.EPSGrowthRate)
	}
	return r
}
