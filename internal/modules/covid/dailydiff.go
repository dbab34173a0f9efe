package covid

import (
	"sort"

	"github.com/guregu/null/v6"

	"github.com/trinistocks/pipeline/internal/domain"
)

// DailyDiff turns a country's cumulative report series into day-over-day
// changes. The first day's changes are zero. A day missing a count, as in
// the six-column report layout, changes nothing for it, and the next
// published count is diffed against the last one seen; a count not yet
// published counts from zero. Gaps between report dates are not filled.
func DailyDiff(series []domain.PahoRecord) []domain.CovidDailyRecord {
	sorted := make([]domain.PahoRecord, len(series))
	copy(sorted, series)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	var confirmed, probable, deaths, recovered counter
	out := make([]domain.CovidDailyRecord, 0, len(sorted))
	for i, cur := range sorted {
		rec := domain.CovidDailyRecord{
			Date:           cur.Date,
			Country:        cur.Country,
			DailyConfirmed: confirmed.next(cur.Confirmed),
			DailyProbable:  probable.next(cur.Probable),
			DailyDeaths:    deaths.next(cur.ConfirmedDeaths),
			DailyRecovered: recovered.next(cur.Recovered),
		}
		if i == 0 {
			rec = domain.CovidDailyRecord{Date: cur.Date, Country: cur.Country}
		}
		out = append(out, rec)
	}
	return out
}

// counter remembers the last published value of one cumulative count.
type counter struct {
	last int64
}

func (c *counter) next(v null.Int) int64 {
	if !v.Valid {
		return 0
	}
	d := v.Int64 - c.last
	c.last = v.Int64
	return d
}
