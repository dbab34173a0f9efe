package fundamentals

import (
	"context"
	"fmt"

	"github.com/trinistocks/pipeline/internal/database"
	"github.com/trinistocks/pipeline/internal/domain"
)

// Repository reads stored statements.
type Repository struct {
	db *database.DB
}

// NewRepository creates a repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

type reportRow struct {
	Symbol    string          `db:"symbol"`
	Currency  domain.Currency `db:"currency"`
	PeriodEnd domain.Date     `db:"period_end"`
	domain.ReportLines
}

const lineColumns = `r.total_revenue, r.net_income, r.profit_after_tax, r.total_assets, r.total_liabilities,
	r.total_shareholders_equity, r.basic_earnings_per_share, r.dividends_per_share,
	r.total_shares_outstanding, r.cash_cash_equivalents`

// Reports returns every annual and quarterly report with the listing
// currency of its symbol.
func (r *Repository) Reports(ctx context.Context) ([]domain.Report, error) {
	var out []domain.Report
	for _, src := range []struct {
		table, dateColumn string
		kind              domain.ReportType
	}{
		{"raw_annual_data", "year_end_date", domain.ReportAnnual},
		{"raw_quarterly_data", "quarter_end_date", domain.ReportQuarterly},
	} {
		var rows []reportRow
		query := fmt.Sprintf(`
			SELECT e.symbol, e.currency, r.%s AS period_end, %s
			FROM %s r
			JOIN listed_equities e ON e.symbol_id = r.symbol_id
			ORDER BY e.symbol, r.%s`, src.dateColumn, lineColumns, src.table, src.dateColumn)
		if err := r.db.Conn().SelectContext(ctx, &rows, query); err != nil {
			return nil, fmt.Errorf("failed to query %s: %w", src.table, err)
		}
		for _, row := range rows {
			out = append(out, domain.Report{
				Symbol:      row.Symbol,
				Currency:    row.Currency,
				PeriodEnd:   row.PeriodEnd,
				Type:        src.kind,
				ReportLines: row.ReportLines,
			})
		}
	}
	return out, nil
}
