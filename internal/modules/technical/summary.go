package technical

import (
	"time"

	"github.com/guregu/null/v6"

	"github.com/trinistocks/pipeline/internal/domain"
	"github.com/trinistocks/pipeline/pkg/formulas"
)

// Indicator windows.
const (
	ShortWindow = 20
	LongWindow  = 200
	RSIWindow   = 14
	ADTVWindow  = 30  // sessions
	BetaWindow  = 365 // calendar days of paired returns
	YearWindow  = 364 // calendar days behind the last close for the 52-week range
)

// Bar is one stored session of a symbol.
type Bar struct {
	Symbol string      `db:"symbol"`
	Date   domain.Date `db:"date"`
	Close  float64     `db:"close_price"`
	Volume null.Int    `db:"volume_traded"`
}

// IndexPoint is one stored value of the benchmark index.
type IndexPoint struct {
	Date  domain.Date `db:"date"`
	Value float64     `db:"index_value"`
}

// Summarize computes a symbol's indicator snapshot at its last session.
// bars must be ascending by date. benchmark maps each session to the
// index value used for beta.
func Summarize(symbol string, bars []Bar, benchmark map[domain.Date]float64) (domain.TechnicalSummary, bool) {
	if len(bars) == 0 {
		return domain.TechnicalSummary{}, false
	}
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	lastBar := bars[len(bars)-1]

	s := domain.TechnicalSummary{
		Date:           lastBar.Date,
		LastClosePrice: null.FloatFrom(lastBar.Close),
		SMA20:          formulas.SMA(closes, ShortWindow),
		SMA200:         formulas.SMA(closes, LongWindow),
		EMA20:          formulas.EMA(closes, ShortWindow),
		RSI14:          formulas.RSI(closes, RSIWindow),
		Beta:           beta(bars, benchmark),
		ADTV:           adtv(bars),
	}
	s.Symbol = symbol
	s.High52w, s.Low52w = yearRange(bars)

	t := lastBar.Date.Time
	weekday := (int(t.Weekday()) + 6) % 7 // Monday = 0
	s.WTD = changeSince(bars, domain.DateOf(t.AddDate(0, 0, -weekday)))
	s.MTD = changeSince(bars, domain.NewDate(t.Year(), t.Month(), 1))
	s.YTD = changeSince(bars, domain.NewDate(t.Year(), time.January, 1))
	return s, true
}

// adtv is the mean volume of the last sessions; sessions without a volume
// count as zero.
func adtv(bars []Bar) null.Float {
	start := len(bars) - ADTVWindow
	if start < 0 {
		start = 0
	}
	vols := make([]float64, 0, len(bars)-start)
	for _, b := range bars[start:] {
		vols = append(vols, float64(b.Volume.Int64))
	}
	return formulas.Mean(vols)
}

func yearRange(bars []Bar) (high, low null.Float) {
	from := bars[len(bars)-1].Date.AddDays(-YearWindow)
	for _, b := range bars {
		if b.Date.Before(from) {
			continue
		}
		if !high.Valid || b.Close > high.Float64 {
			high = null.FloatFrom(b.Close)
		}
		if !low.Valid || b.Close < low.Float64 {
			low = null.FloatFrom(b.Close)
		}
	}
	return high, low
}

// changeSince is the percent change of the last close against the last
// close before start. Null when there is no earlier session.
func changeSince(bars []Bar, start domain.Date) null.Float {
	for i := len(bars) - 1; i >= 0; i-- {
		if bars[i].Date.Before(start) {
			return formulas.PercentChange(bars[i].Close, bars[len(bars)-1].Close)
		}
	}
	return null.Float{}
}

// beta pairs the symbol's day-over-day returns with the benchmark's over
// the trailing window, using only sessions present in both series.
func beta(bars []Bar, benchmark map[domain.Date]float64) null.Float {
	from := bars[len(bars)-1].Date.AddDays(-BetaWindow)
	var asset, market []float64
	for _, b := range bars {
		if b.Date.Before(from) {
			continue
		}
		if v, ok := benchmark[b.Date]; ok {
			asset = append(asset, b.Close)
			market = append(market, v)
		}
	}
	return formulas.Beta(formulas.Returns(asset), formulas.Returns(market))
}
