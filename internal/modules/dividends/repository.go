package dividends

import (
	"context"
	"fmt"

	"github.com/trinistocks/pipeline/internal/database"
	"github.com/trinistocks/pipeline/internal/domain"
)

// Repository reads stored dividends.
type Repository struct {
	db *database.DB
}

// NewRepository creates a repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

type dividendRow struct {
	Symbol     string          `db:"symbol"`
	RecordDate domain.Date     `db:"record_date"`
	Amount     float64         `db:"dividend_amount"`
	Currency   domain.Currency `db:"currency"`
}

// BySymbol returns every stored dividend grouped by symbol, ascending by
// record date.
func (r *Repository) BySymbol(ctx context.Context) (map[string][]domain.DividendPayment, error) {
	var rows []dividendRow
	err := r.db.Conn().SelectContext(ctx, &rows, `
		SELECT e.symbol, h.record_date, h.dividend_amount, h.currency
		FROM historical_dividend_info h
		JOIN listed_equities e ON e.symbol_id = h.symbol_id
		ORDER BY e.symbol, h.record_date`)
	if err != nil {
		return nil, fmt.Errorf("failed to query dividends: %w", err)
	}
	out := make(map[string][]domain.DividendPayment)
	for _, row := range rows {
		out[row.Symbol] = append(out[row.Symbol], domain.DividendPayment{
			SymbolRef:  domain.SymbolRef{Symbol: row.Symbol},
			RecordDate: row.RecordDate,
			Amount:     row.Amount,
			Currency:   row.Currency,
		})
	}
	return out, nil
}
