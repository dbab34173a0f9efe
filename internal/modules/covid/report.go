package covid

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/guregu/null/v6"
	"github.com/rs/zerolog"

	"github.com/trinistocks/pipeline/internal/domain"
	"github.com/trinistocks/pipeline/internal/pdftable"
)

var (
	// ErrUnknownLayout means the report's first table has an unsupported
	// column count.
	ErrUnknownLayout = errors.New("unsupported report layout")
	// ErrNoReportDate means no "as of" header was found.
	ErrNoReportDate = errors.New("report date not found")
)

const (
	dateMarker  = "as of "
	allAmericas = "All Americas"
)

// column positions of one report layout; -1 means absent
type layout struct {
	region, country, confirmed, probable, deaths, probableDeaths, recovered, increase, transmission int
}

var layouts = map[int]layout{
	6:  {0, 1, 2, -1, 3, -1, -1, 4, 5},
	9:  {0, 1, 2, 3, 4, 5, 6, 7, 8},
	10: {0, 1, 2, 3, 4, 5, 6, 7, 8},
}

var headerDateLayouts = append([]string{"2 January 2006", "January 2 2006", "2 Jan 2006", "Jan 2 2006"}, domain.PageDateLayouts...)

// ParseReport reads a regional situation report. The layout is chosen by
// the column count of the first table. Short rows are aligned to the
// columns of a complete row when cell positions are known, so blank
// figures load as nulls; data rows that still do not fit are logged and
// skipped.
func ParseReport(pages []pdftable.Page, log zerolog.Logger) ([]domain.PahoRecord, error) {
	date, err := reportDate(pages)
	if err != nil {
		return nil, err
	}

	tables := pdftable.Tables(pages, 6)
	if len(tables) == 0 {
		return nil, fmt.Errorf("%w: no table found", ErrUnknownLayout)
	}
	columns := tables[0].Columns
	lay, ok := layouts[columns]
	if !ok {
		return nil, fmt.Errorf("%w: %d columns", ErrUnknownLayout, columns)
	}

	anchors := columnAnchors(pages, columns, lay)

	var out []domain.PahoRecord
	region := ""
	for _, page := range pages {
		for i, raw := range page.Rows {
			row, ok := normalizeRow(raw, columns)
			if !ok && anchors != nil {
				row, ok = pdftable.Align(raw, page.StartsOf(i), anchors)
			}
			if !ok {
				if looksLikeData(raw) {
					log.Warn().Int("page", page.Number).Int("cells", len(raw)).Str("row", raw.Text()).Msg("Report row does not fit layout, skipped")
				}
				continue
			}
			confirmed := domain.ParseInt(row.Cell(lay.confirmed))
			if !confirmed.Valid {
				continue // header
			}

			regionCell := cleanName(row.Cell(lay.region))
			country := cleanName(row.Cell(lay.country))
			if strings.EqualFold(regionCell, "Total") || strings.EqualFold(country, "Total") {
				regionCell, country = allAmericas, allAmericas
			} else if regionCell != "" {
				region = regionCell
			}
			rowRegion := region
			switch {
			case country == allAmericas:
				rowRegion = allAmericas
			case strings.EqualFold(country, "Subtotal"):
				country = region
			}
			if country == "" {
				continue
			}

			rec := domain.PahoRecord{
				Date:                        date,
				Country:                     country,
				Region:                      rowRegion,
				Confirmed:                   confirmed,
				ConfirmedDeaths:             domain.ParseInt(row.Cell(lay.deaths)),
				PercentageIncreaseConfirmed: domain.ParseFloat(row.Cell(lay.increase)),
			}
			if lay.probable >= 0 {
				rec.Probable = domain.ParseInt(row.Cell(lay.probable))
				rec.ProbableDeaths = domain.ParseInt(row.Cell(lay.probableDeaths))
				rec.Recovered = domain.ParseInt(row.Cell(lay.recovered))
			}
			if t := strings.TrimSpace(row.Cell(lay.transmission)); t != "" {
				rec.TransmissionType = null.StringFrom(t)
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

// normalizeRow fits a row to the layout width. Cells holding several
// newline-separated figures are split back into their columns, and a row
// one cell short is taken to have an empty region column.
func normalizeRow(row pdftable.Row, columns int) (pdftable.Row, bool) {
	if len(row) == columns {
		return row, true
	}
	var flat pdftable.Row
	for _, c := range row {
		for _, part := range strings.Split(c, "\n") {
			if part = strings.TrimSpace(part); part != "" {
				flat = append(flat, part)
			}
		}
	}
	switch len(flat) {
	case columns:
		return flat, true
	case columns - 1:
		return append(pdftable.Row{""}, flat...), true
	}
	return nil, false
}

// columnAnchors returns the cell edges of the first complete data row, or
// nil when the pages carry no positions.
func columnAnchors(pages []pdftable.Page, columns int, lay layout) []float64 {
	for _, page := range pages {
		for i, row := range page.Rows {
			starts := page.StartsOf(i)
			if len(row) != columns || starts == nil {
				continue
			}
			if domain.ParseInt(row.Cell(lay.confirmed)).Valid {
				return starts
			}
		}
	}
	return nil
}

// looksLikeData reports whether a row carries a figure, so prose lines of
// the report are not logged as rejects.
func looksLikeData(row pdftable.Row) bool {
	if len(row) < 3 {
		return false
	}
	for _, c := range row[1:] {
		if domain.ParseInt(c).Valid {
			return true
		}
	}
	return false
}

func reportDate(pages []pdftable.Page) (domain.Date, error) {
	for _, line := range pdftable.Lines(pages) {
		idx := strings.Index(strings.ToLower(line), dateMarker)
		if idx < 0 {
			continue
		}
		if d, ok := parseHeaderDate(line[idx+len(dateMarker):]); ok {
			return d, nil
		}
	}
	return domain.Date{}, ErrNoReportDate
}

// parseHeaderDate tries the longest leading run of words that forms a
// date, so trailing text such as a time of day is ignored.
func parseHeaderDate(s string) (domain.Date, bool) {
	fields := strings.Fields(strings.ReplaceAll(s, ",", " "))
	for n := len(fields); n > 0; n-- {
		candidate := strings.TrimRight(strings.Join(fields[:n], " "), ".;:")
		if d, err := domain.ParseDateLayouts(candidate, headerDateLayouts...); err == nil {
			return d, true
		}
	}
	return domain.Date{}, false
}

// cleanName drops everything but letters, digits, spaces and ,()[] and
// collapses whitespace.
func cleanName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), strings.ContainsRune(",()[]", r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
