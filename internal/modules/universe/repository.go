// Package universe maintains the listing of securities traded on the
// exchange: the listed-equities scraper and the repository every other
// module reads symbols from.
package universe

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/trinistocks/pipeline/internal/database"
	"github.com/trinistocks/pipeline/internal/domain"
)

const securityColumns = `symbol_id, symbol, security_name, status, sector, issued_share_capital,
market_capitalization, currency, financial_year_end, website_url, external_id`

// SecurityRepository reads listed_equities.
type SecurityRepository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewSecurityRepository creates a security repository.
func NewSecurityRepository(db *database.DB, log zerolog.Logger) *SecurityRepository {
	return &SecurityRepository{
		db:  db,
		log: log.With().Str("repo", "security").Logger(),
	}
}

// All returns every listed security ordered by symbol.
func (r *SecurityRepository) All(ctx context.Context) ([]domain.Symbol, error) {
	var out []domain.Symbol
	query := "SELECT " + securityColumns + " FROM listed_equities ORDER BY symbol"
	if err := r.db.Conn().SelectContext(ctx, &out, query); err != nil {
		return nil, fmt.Errorf("failed to query listed equities: %w", err)
	}
	return out, nil
}

// Active returns the securities whose status is active.
func (r *SecurityRepository) Active(ctx context.Context) ([]domain.Symbol, error) {
	var out []domain.Symbol
	query := "SELECT " + securityColumns + " FROM listed_equities WHERE status = ? ORDER BY symbol"
	if err := r.db.Conn().SelectContext(ctx, &out, query, domain.StatusActive); err != nil {
		return nil, fmt.Errorf("failed to query active equities: %w", err)
	}
	return out, nil
}

// BySymbol returns one security, or nil when it is not listed.
func (r *SecurityRepository) BySymbol(ctx context.Context, symbol string) (*domain.Symbol, error) {
	var out []domain.Symbol
	query := "SELECT " + securityColumns + " FROM listed_equities WHERE symbol = ?"
	if err := r.db.Conn().SelectContext(ctx, &out, query, symbol); err != nil {
		return nil, fmt.Errorf("failed to query security %s: %w", symbol, err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

// Codes returns the set of listed symbol codes.
func (r *SecurityRepository) Codes(ctx context.Context) (map[string]struct{}, error) {
	var codes []string
	if err := r.db.Conn().SelectContext(ctx, &codes, "SELECT symbol FROM listed_equities"); err != nil {
		return nil, fmt.Errorf("failed to query symbol codes: %w", err)
	}
	out := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		out[c] = struct{}{}
	}
	return out, nil
}
