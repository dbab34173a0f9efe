package marketsummary

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/trinistocks/pipeline/internal/database"
	"github.com/trinistocks/pipeline/internal/domain"
)

// Repository reads which trading days are already stored.
type Repository struct {
	db *database.DB
}

// NewRepository creates a repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// Dates returns the days on or after from that need no fetch: days with an
// equity bar or an index row, and days found closed after they had passed.
func (r *Repository) Dates(ctx context.Context, from domain.Date) (map[domain.Date]struct{}, error) {
	var dates []domain.Date
	err := r.db.Conn().SelectContext(ctx, &dates, `
		SELECT date FROM daily_stock_summary WHERE date >= ?
		UNION SELECT date FROM historical_market_summary WHERE date >= ?
		UNION SELECT date FROM market_closed_days WHERE date >= ? AND checked_on > date`,
		from, from, from)
	if err != nil {
		return nil, fmt.Errorf("failed to query stored summary dates: %w", err)
	}
	out := make(map[domain.Date]struct{}, len(dates))
	for _, d := range dates {
		out[d] = struct{}{}
	}
	return out, nil
}

// LatestDate returns the most recent stored day, or the zero Date when
// the table is empty.
func (r *Repository) LatestDate(ctx context.Context) (domain.Date, error) {
	var latest domain.Date
	err := r.db.Conn().GetContext(ctx, &latest, `SELECT MAX(date) FROM daily_stock_summary`)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return domain.Date{}, fmt.Errorf("failed to query latest summary date: %w", err)
	}
	return latest, nil
}

// Close is one stored closing price.
type Close struct {
	Symbol string      `db:"symbol"`
	Date   domain.Date `db:"date"`
	Price  float64     `db:"close_price"`
}

// ClosesBySymbol returns every stored close, ascending by date, grouped by
// symbol.
func (r *Repository) ClosesBySymbol(ctx context.Context) (map[string][]Close, error) {
	var rows []Close
	err := r.db.Conn().SelectContext(ctx, &rows, `
		SELECT e.symbol, d.date, d.close_price
		FROM daily_stock_summary d
		JOIN listed_equities e ON e.symbol_id = d.symbol_id
		WHERE d.close_price IS NOT NULL
		ORDER BY e.symbol, d.date`)
	if err != nil {
		return nil, fmt.Errorf("failed to query close prices: %w", err)
	}
	out := make(map[string][]Close)
	for _, c := range rows {
		out[c.Symbol] = append(out[c.Symbol], c)
	}
	return out, nil
}

// MarketPrices returns each symbol's current market price: its close on
// the latest day on which any bar shows outstanding bid volume, or, for a
// symbol absent that day, its latest close on or before it.
func (r *Repository) MarketPrices(ctx context.Context) (map[string]float64, error) {
	var ref domain.Date
	err := r.db.Conn().GetContext(ctx, &ref, `SELECT MAX(date) FROM daily_stock_summary WHERE os_bid_vol > 0`)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest quoted date: %w", err)
	}
	out := make(map[string]float64)
	if ref.IsZero() {
		return out, nil
	}

	var rows []Close
	err = r.db.Conn().SelectContext(ctx, &rows, `
		SELECT e.symbol, d.date, d.close_price
		FROM daily_stock_summary d
		JOIN listed_equities e ON e.symbol_id = d.symbol_id
		WHERE d.close_price IS NOT NULL AND d.date <= ?
		ORDER BY e.symbol, d.date`, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to query market prices: %w", err)
	}
	for _, c := range rows {
		out[c.Symbol] = c.Price // ascending, so the last one wins
	}
	return out, nil
}

// CloseOnOrBefore returns the latest close of series at or before date.
func CloseOnOrBefore(series []Close, date domain.Date) (float64, bool) {
	price, found := 0.0, false
	for _, c := range series {
		if c.Date.After(date) {
			break
		}
		price, found = c.Price, true
	}
	return price, found
}

// LatestPositive returns the most recent positive close of series.
func LatestPositive(series []Close) (float64, bool) {
	for i := len(series) - 1; i >= 0; i-- {
		if series[i].Price > 0 {
			return series[i].Price, true
		}
	}
	return 0, false
}
