package work

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/trinistocks/pipeline/internal/domain"
)

// HistoryStart is the first date of a full-history backfill.
var HistoryStart = domain.NewDate(2010, 1, 1)

// Plan is a backfill of one source.
type Plan struct {
	Kind       string
	Start      domain.Date
	End        domain.Date
	Dates      []domain.Date
	Partitions [][]domain.Date
}

// NewPlan lists the missing business days of [start, today] and splits
// them into n partitions.
func NewPlan(kind string, start, today domain.Date, present []domain.Date, n int) Plan {
	dates := Missing(start, today, present)
	return Plan{
		Kind:       kind,
		Start:      start,
		End:        today,
		Dates:      dates,
		Partitions: Split(dates, n),
	}
}

// StartAfter returns the day after the latest stored date, or HistoryStart
// when nothing is stored.
func StartAfter(latest domain.Date) domain.Date {
	if latest.IsZero() {
		return HistoryStart
	}
	return latest.AddDays(1)
}

// DaysFrom returns the start of a backfill reaching n days back.
func DaysFrom(today domain.Date, n int) domain.Date {
	return today.AddDays(-n)
}

// Missing returns the business days from start to today, both included,
// that are not in present. A start after today yields nothing.
func Missing(start, today domain.Date, present []domain.Date) []domain.Date {
	if start.After(today) {
		return nil
	}
	have := make(map[string]bool, len(present))
	for _, d := range present {
		have[d.String()] = true
	}
	var out []domain.Date
	for d := start; !d.After(today); d = d.AddDays(1) {
		if d.IsBusinessDay() && !have[d.String()] {
			out = append(out, d)
		}
	}
	return out
}

// Split cuts dates into n contiguous partitions in order. Each partition
// holds len/n dates and the last len%n partitions one more, so some may be
// empty when there are fewer dates than partitions.
func Split(dates []domain.Date, n int) [][]domain.Date {
	if n < 1 {
		n = 1
	}
	size, extra := len(dates)/n, len(dates)%n
	out := make([][]domain.Date, n)
	pos := 0
	for i := range out {
		count := size
		if i >= n-extra {
			count++
		}
		out[i] = append([]domain.Date{}, dates[pos:pos+count]...)
		pos += count
	}
	return out
}

// CPUCount returns the number of logical CPUs of the host.
func CPUCount() int {
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		return runtime.NumCPU()
	}
	return n
}
