package domain

// TableSpec describes how records of one kind are written: the destination
// table, the natural key used as the upsert conflict target, and the full
// list of written columns (keys included).
type TableSpec struct {
	Name    string
	Key     []string
	Columns []string
	// SymbolKeyed tables carry symbol_id, resolved from the record's symbol
	// code by the sink before the write.
	SymbolKeyed bool
}

// UpdateColumns returns the non-key columns, the ones rewritten on conflict.
func (t TableSpec) UpdateColumns() []string {
	keys := make(map[string]bool, len(t.Key))
	for _, k := range t.Key {
		keys[k] = true
	}
	var out []string
	for _, c := range t.Columns {
		if !keys[c] {
			out = append(out, c)
		}
	}
	return out
}

// Record is anything the sink can write.
type Record interface {
	Table() TableSpec
}

// SymbolBound records carry a symbol code that must be translated to a
// symbol id before writing.
type SymbolBound interface {
	SymbolCode() string
	BindSymbolID(id int64)
}

// SymbolRef is embedded by every symbol-keyed record.
type SymbolRef struct {
	Symbol   string `db:"-" json:"symbol" csv:"symbol"`
	SymbolID int64  `db:"symbol_id" json:"symbol_id" csv:"-"`
}

// SymbolCode returns the upstream symbol code.
func (r *SymbolRef) SymbolCode() string { return r.Symbol }

// BindSymbolID stores the resolved listing id.
func (r *SymbolRef) BindSymbolID(id int64) { r.SymbolID = id }

// Table definitions. Column order is the insert order.
var (
	TableListedEquities = TableSpec{
		Name: "listed_equities",
		Key:  []string{"symbol"},
		Columns: []string{"symbol", "security_name", "status", "sector", "issued_share_capital",
			"market_capitalization", "currency", "financial_year_end", "website_url", "external_id"},
	}

	TableDailyStockSummary = TableSpec{
		Name: "daily_stock_summary",
		Key:  []string{"date", "symbol_id"},
		Columns: []string{"date", "symbol_id", "open", "high", "low", "os_bid", "os_bid_vol",
			"os_offer", "os_offer_vol", "last_sale_price", "was_traded_today", "volume_traded",
			"close_price", "change_dollars", "value_traded"},
		SymbolKeyed: true,
	}

	TableMarketSummary = TableSpec{
		Name: "historical_market_summary",
		Key:  []string{"date", "index_name"},
		Columns: []string{"date", "index_name", "index_value", "index_change", "change_percent",
			"volume_traded", "value_traded", "num_trades"},
	}

	TableMarketClosedDays = TableSpec{
		Name:    "market_closed_days",
		Key:     []string{"date"},
		Columns: []string{"date", "checked_on"},
	}
	TableDividends = TableSpec{
		Name:        "historical_dividend_info",
		Key:         []string{"symbol_id", "record_date"},
		Columns:     []string{"symbol_id", "record_date", "dividend_amount", "currency"},
		SymbolKeyed: true,
	}

	TableNews = TableSpec{
		Name:        "stock_news_data",
		Key:         []string{"symbol_id", "link"},
		Columns:     []string{"symbol_id", "link", "date", "title", "category"},
		SymbolKeyed: true,
	}

	TableAnnualReports = TableSpec{
		Name:        "raw_annual_data",
		Key:         []string{"symbol_id", "year_end_date"},
		Columns:     append([]string{"symbol_id", "year_end_date"}, reportLineColumns...),
		SymbolKeyed: true,
	}

	TableQuarterlyReports = TableSpec{
		Name:        "raw_quarterly_data",
		Key:         []string{"symbol_id", "quarter_end_date"},
		Columns:     append([]string{"symbol_id", "quarter_end_date"}, reportLineColumns...),
		SymbolKeyed: true,
	}

	TableFundamentalRatios = TableSpec{
		Name: "calculated_fundamental_ratios",
		Key:  []string{"symbol_id", "date", "report_type"},
		Columns: []string{"symbol_id", "date", "report_type", "roe", "eps", "eps_growth_rate", "peg",
			"roic", "working_capital", "current_ratio", "price_to_earnings_ratio", "cash_per_share",
			"dividend_yield", "dividend_payout_ratio", "book_value_per_share", "price_to_book_ratio"},
		SymbolKeyed: true,
	}

	TableDividendYield = TableSpec{
		Name:        "historical_dividend_yield",
		Key:         []string{"symbol_id", "date"},
		Columns:     []string{"symbol_id", "date", "dividend_yield"},
		SymbolKeyed: true,
	}

	TableDividendYieldSummary = TableSpec{
		Name:        "summarized_dividend_yield",
		Key:         []string{"symbol_id"},
		Columns:     []string{"symbol_id", "ttm_yield", "three_year_yield", "five_year_yield", "ten_year_yield"},
		SymbolKeyed: true,
	}

	TableTechnicalSummary = TableSpec{
		Name: "technical_analysis_summary",
		Key:  []string{"symbol_id"},
		Columns: []string{"symbol_id", "date", "last_close_price", "sma_20", "sma_200", "ema_20",
			"rsi_14", "beta", "adtv", "high_52w", "low_52w", "wtd", "mtd", "ytd"},
		SymbolKeyed: true,
	}

	TablePortfolioSummary = TableSpec{
		Name:        "portfolio_summary",
		Key:         []string{"user_id", "symbol_id"},
		Columns:     append([]string{"user_id", "symbol_id"}, holdingColumns...),
		SymbolKeyed: true,
	}

	TablePortfolioSectors = TableSpec{
		Name:    "portfolio_sectors",
		Key:     []string{"user_id", "sector"},
		Columns: append([]string{"user_id", "sector"}, rollupColumns...),
	}

	TableSimulatorSummary = TableSpec{
		Name:        "simulator_portfolio_summary",
		Key:         []string{"player_id", "symbol_id"},
		Columns:     append([]string{"player_id", "symbol_id"}, holdingColumns...),
		SymbolKeyed: true,
	}

	TableSimulatorSectors = TableSpec{
		Name:    "simulator_portfolio_sectors",
		Key:     []string{"player_id", "sector"},
		Columns: append([]string{"player_id", "sector"}, rollupColumns...),
	}

	TableSimulatorStandings = TableSpec{
		Name: "simulator_players",
		Key:  []string{"game_id", "user_id"},
		Columns: []string{"game_id", "user_id", "current_portfolio_value", "overall_gain_loss",
			"overall_gain_loss_percent", "current_position"},
	}

	TableSimulatorGameStatus = TableSpec{
		Name:    "simulator_games",
		Key:     []string{"game_id"},
		Columns: []string{"game_id", "is_active", "num_players"},
	}

	TablePahoReports = TableSpec{
		Name: "covid19_paho_data",
		Key:  []string{"date", "country"},
		Columns: []string{"date", "country", "region", "confirmed", "probable", "confirmed_deaths",
			"probable_deaths", "recovered", "percentage_increase_confirmed", "transmission_type"},
	}

	TableWorldwideCases = TableSpec{
		Name: "covid19_worldwide_data",
		Key:  []string{"date", "country_region", "province_state"},
		Columns: []string{"date", "country_region", "province_state", "last_update", "lat", "long",
			"confirmed", "deaths", "recovered", "active"},
	}

	TableCovidDaily = TableSpec{
		Name: "covid19_daily_data",
		Key:  []string{"date", "country"},
		Columns: []string{"date", "country", "daily_confirmed", "daily_probable", "daily_deaths",
			"daily_recovered"},
	}

	TableBrokerQuotes = TableSpec{
		Name: "broker_daily_quotes",
		Key:  []string{"date", "symbol_id"},
		Columns: []string{"date", "symbol_id", "currency", "close_price", "close_price_ttd",
			"change_dollars", "volume_traded", "bid", "offer"},
		SymbolKeyed: true,
	}
)

var reportLineColumns = []string{"total_revenue", "net_income", "profit_after_tax", "total_assets",
	"total_liabilities", "total_shareholders_equity", "basic_earnings_per_share",
	"dividends_per_share", "total_shares_outstanding", "cash_cash_equivalents"}

var holdingColumns = []string{"shares_remaining", "average_cost", "book_cost", "current_market_price",
	"market_value", "total_gain_loss", "gain_loss_percent"}

var rollupColumns = []string{"book_cost", "market_value", "total_gain_loss", "gain_loss_percent"}
