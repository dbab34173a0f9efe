package portfolio

import (
	"context"
	"fmt"

	"github.com/trinistocks/pipeline/internal/database"
	"github.com/trinistocks/pipeline/internal/domain"
)

// Repository reads transactions and symbol sectors.
type Repository struct {
	db *database.DB
}

// NewRepository creates a repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// Transactions returns every row of a transaction table. ownerColumn names
// the column carrying the owner id: user_id for portfolios, player_id for
// the simulator.
func (r *Repository) Transactions(ctx context.Context, table, ownerColumn string) ([]domain.Transaction, error) {
	var out []domain.Transaction
	query := fmt.Sprintf(`
		SELECT t.%s AS owner_id, e.symbol, t.date, t.bought_or_sold, t.share_price, t.num_shares
		FROM %s t
		JOIN listed_equities e ON e.symbol_id = t.symbol_id
		ORDER BY t.%s, e.symbol, t.date`, ownerColumn, table, ownerColumn)
	if err := r.db.Conn().SelectContext(ctx, &out, query); err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	return out, nil
}

// Sectors maps each symbol to its sector. Symbols without one are absent.
func (r *Repository) Sectors(ctx context.Context) (map[string]string, error) {
	var rows []struct {
		Symbol string `db:"symbol"`
		Sector string `db:"sector"`
	}
	err := r.db.Conn().SelectContext(ctx, &rows,
		`SELECT symbol, sector FROM listed_equities WHERE sector IS NOT NULL AND sector <> ''`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sectors: %w", err)
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Symbol] = row.Sector
	}
	return out, nil
}
