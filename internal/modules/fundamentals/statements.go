package fundamentals

import (
	"fmt"
	"os"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/trinistocks/pipeline/internal/domain"
)

// statementRow is one line of a statement file. Files carry a header row
// with these column names; line items are plain decimals and may be blank.
type statementRow struct {
	domain.SymbolRef
	ReportType string      `csv:"report_type"`
	PeriodEnd  domain.Date `csv:"period_end"`
	domain.ReportLines
}

// Statements are the rows of one or more files split by period kind.
type Statements struct {
	Annual    []domain.AnnualReport
	Quarterly []domain.QuarterlyReport
	Rejected  int
}

// ReadStatements parses one statement file.
func ReadStatements(path string) (Statements, error) {
	f, err := os.Open(path)
	if err != nil {
		return Statements{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var rows []statementRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return Statements{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return splitStatements(rows), nil
}

func splitStatements(rows []statementRow) Statements {
	var out Statements
	for _, r := range rows {
		symbol := strings.ToUpper(strings.TrimSpace(r.Symbol))
		if symbol == "" || r.PeriodEnd.IsZero() {
			out.Rejected++
			continue
		}
		switch domain.ReportType(strings.ToLower(strings.TrimSpace(r.ReportType))) {
		case domain.ReportAnnual:
			rep := domain.AnnualReport{YearEndDate: r.PeriodEnd, ReportLines: r.ReportLines}
			rep.Symbol = symbol
			out.Annual = append(out.Annual, rep)
		case domain.ReportQuarterly:
			rep := domain.QuarterlyReport{QuarterEndDate: r.PeriodEnd, ReportLines: r.ReportLines}
			rep.Symbol = symbol
			out.Quarterly = append(out.Quarterly, rep)
		default:
			out.Rejected++
		}
	}
	return out
}

func (s *Statements) merge(o Statements) {
	s.Annual = append(s.Annual, o.Annual...)
	s.Quarterly = append(s.Quarterly, o.Quarterly...)
	s.Rejected += o.Rejected
}
