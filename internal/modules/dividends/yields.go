package dividends

import (
	"github.com/guregu/null/v6"
	"gonum.org/v1/gonum/stat"

	"github.com/trinistocks/pipeline/internal/domain"
	"github.com/trinistocks/pipeline/internal/modules/marketsummary"
)

// YieldWindows are the multi-year averages reported in the summary.
var YieldWindows = []int{3, 5, 10}

// EventYields computes the yield of each dividend against the close on
// its record date, or the latest close before it. factor converts the
// dividend into TTD.
func EventYields(symbol string, divs []domain.DividendPayment, closes []marketsummary.Close, factor float64) []domain.DividendYield {
	out := make([]domain.DividendYield, 0, len(divs))
	for _, d := range divs {
		y := domain.DividendYield{SymbolRef: domain.SymbolRef{Symbol: symbol}, Date: d.RecordDate}
		if price, ok := marketsummary.CloseOnOrBefore(closes, d.RecordDate); ok {
			y.DividendYield = domain.Div(null.FloatFrom(d.Amount*factor*100), null.FloatFrom(price))
		}
		out = append(out, y)
	}
	return out
}

// Summarize computes the trailing-twelve-month and multi-year yields of a
// symbol as of today.
//
// TTM divides the last 52 weeks of dividends by the latest positive
// close. A k-year yield is the mean of the k calendar years before the
// current one, each year being its dividends over its mean close; a year
// without prices counts as zero and the divisor stays k.
func Summarize(symbol string, divs []domain.DividendPayment, closes []marketsummary.Close, factor float64, today domain.Date) domain.DividendYieldSummary {
	out := domain.DividendYieldSummary{SymbolRef: domain.SymbolRef{Symbol: symbol}}

	if latest, ok := marketsummary.LatestPositive(closes); ok {
		from := today.AddDays(-7 * 52)
		total := 0.0
		for _, d := range divs {
			if d.RecordDate.After(from) && !d.RecordDate.After(today) {
				total += d.Amount * factor
			}
		}
		out.TTMYield = domain.Finite(total / latest * 100)
	}

	yearly := yearlyYields(divs, closes, factor)
	windows := []*null.Float{&out.ThreeYearYield, &out.FiveYearYield, &out.TenYearYield}
	for i, k := range YieldWindows {
		values := make([]float64, k)
		for j := 0; j < k; j++ {
			values[j] = yearly[today.Year()-k+j]
		}
		*windows[i] = domain.Finite(stat.Mean(values, nil))
	}
	return out
}

// yearlyYields maps calendar years to dividends over mean close, as a
// percentage. Years without prices are absent.
func yearlyYields(divs []domain.DividendPayment, closes []marketsummary.Close, factor float64) map[int]float64 {
	prices := make(map[int][]float64)
	for _, c := range closes {
		prices[c.Date.Year()] = append(prices[c.Date.Year()], c.Price)
	}
	paid := make(map[int]float64)
	for _, d := range divs {
		paid[d.RecordDate.Year()] += d.Amount * factor
	}

	out := make(map[int]float64, len(prices))
	for year, p := range prices {
		mean := stat.Mean(p, nil)
		if mean <= 0 {
			continue
		}
		out[year] = paid[year] / mean * 100
	}
	return out
}
