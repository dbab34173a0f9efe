package testing

import (
	"testing"

	"github.com/guregu/null/v6"

	"github.com/trinistocks/pipeline/internal/database"
	"github.com/trinistocks/pipeline/internal/domain"
)

// NewSymbolFixtures returns a small listing covering each dividend currency.
func NewSymbolFixtures() []domain.Symbol {
	return []domain.Symbol{
		{Symbol: "RFHL", SecurityName: "Republic Financial Holdings Limited", Status: domain.StatusActive, Sector: null.StringFrom("Banking"), Currency: domain.CurrencyTTD},
		{Symbol: "NCBFG", SecurityName: "NCB Financial Group Limited", Status: domain.StatusActive, Sector: null.StringFrom("Banking"), Currency: domain.CurrencyTTD},
		{Symbol: "MPCCEL", SecurityName: "MPC Caribbean Clean Energy Limited", Status: domain.StatusActive, Sector: null.StringFrom("Energy"), Currency: domain.CurrencyUSD},
		{Symbol: "WCO", SecurityName: "The West Indian Tobacco Company Limited", Status: domain.StatusActive, Sector: null.StringFrom("Manufacturing"), Currency: domain.CurrencyTTD},
	}
}

// SeedSymbols inserts symbols and returns their ids keyed by code.
func SeedSymbols(t *testing.T, db *database.DB, symbols []domain.Symbol) map[string]int64 {
	t.Helper()

	ids := make(map[string]int64, len(symbols))
	for _, s := range symbols {
		res, err := db.Conn().NamedExec(`INSERT INTO listed_equities
			(symbol, security_name, status, sector, issued_share_capital, market_capitalization,
			 currency, financial_year_end, website_url, external_id)
			VALUES (:symbol, :security_name, :status, :sector, :issued_share_capital, :market_capitalization,
			 :currency, :financial_year_end, :website_url, :external_id)`, s)
		if err != nil {
			t.Fatalf("Failed to seed symbol %s: %v", s.Symbol, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			t.Fatalf("Failed to read id of symbol %s: %v", s.Symbol, err)
		}
		ids[s.Symbol] = id
	}
	return ids
}

// SeedCloses writes one traded bar per (symbol, date, close) triple.
func SeedCloses(t *testing.T, db *database.DB, ids map[string]int64, symbol string, closes map[string]float64) {
	t.Helper()

	for date, closePrice := range closes {
		_, err := db.Conn().Exec(`INSERT INTO daily_stock_summary
			(date, symbol_id, close_price, os_bid_vol, volume_traded, was_traded_today)
			VALUES (?, ?, ?, 100, 100, 1)`, date, ids[symbol], closePrice)
		if err != nil {
			t.Fatalf("Failed to seed close for %s on %s: %v", symbol, date, err)
		}
	}
}

// MustExec runs a statement and fails the test on error.
func MustExec(t *testing.T, db *database.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.Conn().Exec(query, args...); err != nil {
		t.Fatalf("Failed to execute %q: %v", query, err)
	}
}

// CountRows returns the row count of a table.
func CountRows(t *testing.T, db *database.DB, table string) int {
	t.Helper()
	var n int
	if err := db.Conn().Get(&n, "SELECT COUNT(*) FROM "+table); err != nil {
		t.Fatalf("Failed to count rows of %s: %v", table, err)
	}
	return n
}
