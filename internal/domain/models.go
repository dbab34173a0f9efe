// Package domain provides the canonical records written by the pipeline
// and the value types they are built from.
package domain

import (
	"github.com/guregu/null/v6"
)

// Currency represents an ISO currency code
type Currency string

const (
	CurrencyTTD Currency = "TTD"
	CurrencyUSD Currency = "USD"
	CurrencyJMD Currency = "JMD"
	CurrencyBBD Currency = "BBD"
)

// Listing statuses reported by the exchange.
const (
	StatusActive    = "Active"
	StatusSuspended = "Suspended"
)

// ReportType distinguishes annual from quarterly statements.
type ReportType string

const (
	ReportAnnual    ReportType = "annual"
	ReportQuarterly ReportType = "quarterly"
)

// Symbol is one listed security.
type Symbol struct {
	SymbolID             int64       `db:"symbol_id" json:"symbol_id"`
	Symbol               string      `db:"symbol" json:"symbol"`
	SecurityName         string      `db:"security_name" json:"security_name"`
	Status               string      `db:"status" json:"status"`
	Sector               null.String `db:"sector" json:"sector"`
	IssuedShareCapital   null.Float  `db:"issued_share_capital" json:"issued_share_capital"`
	MarketCapitalization null.Float  `db:"market_capitalization" json:"market_capitalization"`
	Currency             Currency    `db:"currency" json:"currency"`
	FinancialYearEnd     null.String `db:"financial_year_end" json:"financial_year_end"`
	WebsiteURL           null.String `db:"website_url" json:"website_url"`
	ExternalID           null.Int    `db:"external_id" json:"external_id"`
}

func (Symbol) Table() TableSpec { return TableListedEquities }

// DailyStockBar is one symbol's trading summary for one day.
type DailyStockBar struct {
	SymbolRef
	Date          Date       `db:"date" json:"date"`
	Open          null.Float `db:"open" json:"open"`
	High          null.Float `db:"high" json:"high"`
	Low           null.Float `db:"low" json:"low"`
	OsBid         null.Float `db:"os_bid" json:"os_bid"`
	OsBidVol      null.Int   `db:"os_bid_vol" json:"os_bid_vol"`
	OsOffer       null.Float `db:"os_offer" json:"os_offer"`
	OsOfferVol    null.Int   `db:"os_offer_vol" json:"os_offer_vol"`
	LastSalePrice null.Float `db:"last_sale_price" json:"last_sale_price"`
	WasTraded     bool       `db:"was_traded_today" json:"was_traded_today"`
	VolumeTraded  null.Int   `db:"volume_traded" json:"volume_traded"`
	ClosePrice    null.Float `db:"close_price" json:"close_price"`
	ChangeDollars null.Float `db:"change_dollars" json:"change_dollars"`
	ValueTraded   null.Float `db:"value_traded" json:"value_traded"`
}

func (DailyStockBar) Table() TableSpec { return TableDailyStockSummary }

// MarketSummary is one index's daily figures.
type MarketSummary struct {
	Date          Date       `db:"date" json:"date"`
	IndexName     string     `db:"index_name" json:"index_name"`
	IndexValue    null.Float `db:"index_value" json:"index_value"`
	IndexChange   null.Float `db:"index_change" json:"index_change"`
	ChangePercent null.Float `db:"change_percent" json:"change_percent"`
	VolumeTraded  null.Int   `db:"volume_traded" json:"volume_traded"`
	ValueTraded   null.Float `db:"value_traded" json:"value_traded"`
	NumTrades     null.Int   `db:"num_trades" json:"num_trades"`
}

func (MarketSummary) Table() TableSpec { return TableMarketSummary }

// MarketClosedDay is a date the exchange published nothing for, and the
// day that was seen.
type MarketClosedDay struct {
	Date      Date `db:"date"`
	CheckedOn Date `db:"checked_on"`
}

func (MarketClosedDay) Table() TableSpec { return TableMarketClosedDays }

// DividendPayment is a declared dividend keyed by its record date.
type DividendPayment struct {
	SymbolRef
	RecordDate Date     `db:"record_date" json:"record_date"`
	Amount     float64  `db:"dividend_amount" json:"dividend_amount"`
	Currency   Currency `db:"currency" json:"currency"`
}

func (DividendPayment) Table() TableSpec { return TableDividends }

// ReportLines are the statement line items shared by annual and quarterly
// reports.
type ReportLines struct {
	TotalRevenue            null.Float `db:"total_revenue" json:"total_revenue" csv:"total_revenue"`
	NetIncome               null.Float `db:"net_income" json:"net_income" csv:"net_income"`
	ProfitAfterTax          null.Float `db:"profit_after_tax" json:"profit_after_tax" csv:"profit_after_tax"`
	TotalAssets             null.Float `db:"total_assets" json:"total_assets" csv:"total_assets"`
	TotalLiabilities        null.Float `db:"total_liabilities" json:"total_liabilities" csv:"total_liabilities"`
	TotalShareholdersEquity null.Float `db:"total_shareholders_equity" json:"total_shareholders_equity" csv:"total_shareholders_equity"`
	BasicEPS                null.Float `db:"basic_earnings_per_share" json:"basic_earnings_per_share" csv:"basic_earnings_per_share"`
	DividendsPerShare       null.Float `db:"dividends_per_share" json:"dividends_per_share" csv:"dividends_per_share"`
	SharesOutstanding       null.Float `db:"total_shares_outstanding" json:"total_shares_outstanding" csv:"total_shares_outstanding"`
	CashAndEquivalents      null.Float `db:"cash_cash_equivalents" json:"cash_cash_equivalents" csv:"cash_cash_equivalents"`
}

// AnnualReport holds one fiscal year's statement lines.
type AnnualReport struct {
	SymbolRef
	YearEndDate Date `db:"year_end_date" json:"year_end_date"`
	ReportLines
}

func (AnnualReport) Table() TableSpec { return TableAnnualReports }

// QuarterlyReport holds one quarter's statement lines.
type QuarterlyReport struct {
	SymbolRef
	QuarterEndDate Date `db:"quarter_end_date" json:"quarter_end_date"`
	ReportLines
}

func (QuarterlyReport) Table() TableSpec { return TableQuarterlyReports }

// Report is the period-neutral view the ratio derivation works on.
type Report struct {
	Symbol    string
	Currency  Currency
	PeriodEnd Date
	Type      ReportType
	ReportLines
}

// FundamentalRatio is derived from a Report and the latest close.
type FundamentalRatio struct {
	SymbolRef
	Date                Date       `db:"date" json:"date"`
	ReportType          ReportType `db:"report_type" json:"report_type"`
	RoE                 null.Float `db:"roe" json:"roe"`
	EPS                 null.Float `db:"eps" json:"eps"`
	EPSGrowthRate       null.Float `db:"eps_growth_rate" json:"eps_growth_rate"`
	PEG                 null.Float `db:"peg" json:"peg"`
	RoIC                null.Float `db:"roic" json:"roic"`
	WorkingCapital      null.Float `db:"working_capital" json:"working_capital"`
	CurrentRatio        null.Float `db:"current_ratio" json:"current_ratio"`
	PriceToEarnings     null.Float `db:"price_to_earnings_ratio" json:"price_to_earnings_ratio"`
	CashPerShare        null.Float `db:"cash_per_share" json:"cash_per_share"`
	DividendYield       null.Float `db:"dividend_yield" json:"dividend_yield"`
	DividendPayoutRatio null.Float `db:"dividend_payout_ratio" json:"dividend_payout_ratio"`
	BookValuePerShare   null.Float `db:"book_value_per_share" json:"book_value_per_share"`
	PriceToBook         null.Float `db:"price_to_book_ratio" json:"price_to_book_ratio"`
}

func (FundamentalRatio) Table() TableSpec { return TableFundamentalRatios }

// DividendYield is the yield of a single dividend event.
type DividendYield struct {
	SymbolRef
	Date          Date       `db:"date" json:"date"`
	DividendYield null.Float `db:"dividend_yield" json:"dividend_yield"`
}

func (DividendYield) Table() TableSpec { return TableDividendYield }

// DividendYieldSummary holds trailing and multi-year average yields.
type DividendYieldSummary struct {
	SymbolRef
	TTMYield       null.Float `db:"ttm_yield" json:"ttm_yield"`
	ThreeYearYield null.Float `db:"three_year_yield" json:"three_year_yield"`
	FiveYearYield  null.Float `db:"five_year_yield" json:"five_year_yield"`
	TenYearYield   null.Float `db:"ten_year_yield" json:"ten_year_yield"`
}

func (DividendYieldSummary) Table() TableSpec { return TableDividendYieldSummary }

// NewsArticle is one entry from a symbol's news listing.
type NewsArticle struct {
	SymbolRef
	Link     string      `db:"link" json:"link"`
	Date     Date        `db:"date" json:"date"`
	Title    string      `db:"title" json:"title"`
	Category null.String `db:"category" json:"category"`
}

func (NewsArticle) Table() TableSpec { return TableNews }

// TechnicalSummary is the latest indicator snapshot for a symbol.
type TechnicalSummary struct {
	SymbolRef
	Date           Date       `db:"date" json:"date"`
	LastClosePrice null.Float `db:"last_close_price" json:"last_close_price"`
	SMA20          null.Float `db:"sma_20" json:"sma_20"`
	SMA200         null.Float `db:"sma_200" json:"sma_200"`
	EMA20          null.Float `db:"ema_20" json:"ema_20"`
	RSI14          null.Float `db:"rsi_14" json:"rsi_14"`
	Beta           null.Float `db:"beta" json:"beta"`
	ADTV           null.Float `db:"adtv" json:"adtv"`
	High52w        null.Float `db:"high_52w" json:"high_52w"`
	Low52w         null.Float `db:"low_52w" json:"low_52w"`
	WTD            null.Float `db:"wtd" json:"wtd"`
	MTD            null.Float `db:"mtd" json:"mtd"`
	YTD            null.Float `db:"ytd" json:"ytd"`
}

func (TechnicalSummary) Table() TableSpec { return TableTechnicalSummary }

// TransactionSide is buy or sell.
type TransactionSide string

const (
	SideBuy  TransactionSide = "buy"
	SideSell TransactionSide = "sell"
)

// Transaction is a buy or sell recorded by a portfolio owner. Portfolio
// and simulator transactions share this shape; OwnerID is the user id or
// the simulator player id respectively.
type Transaction struct {
	OwnerID  int64           `db:"owner_id"`
	Symbol   string          `db:"symbol"`
	Date     Date            `db:"date"`
	Side     TransactionSide `db:"bought_or_sold"`
	Price    float64         `db:"share_price"`
	Quantity float64         `db:"num_shares"`
}

// HoldingValues are the derived per-symbol columns of a portfolio.
type HoldingValues struct {
	SharesRemaining    float64    `db:"shares_remaining" json:"shares_remaining"`
	AverageCost        null.Float `db:"average_cost" json:"average_cost"`
	BookCost           null.Float `db:"book_cost" json:"book_cost"`
	CurrentMarketPrice null.Float `db:"current_market_price" json:"current_market_price"`
	MarketValue        null.Float `db:"market_value" json:"market_value"`
	TotalGainLoss      null.Float `db:"total_gain_loss" json:"total_gain_loss"`
	GainLossPercent    null.Float `db:"gain_loss_percent" json:"gain_loss_percent"`
}

// RollupValues are the derived per-sector columns of a portfolio.
type RollupValues struct {
	BookCost        null.Float `db:"book_cost" json:"book_cost"`
	MarketValue     null.Float `db:"market_value" json:"market_value"`
	TotalGainLoss   null.Float `db:"total_gain_loss" json:"total_gain_loss"`
	GainLossPercent null.Float `db:"gain_loss_percent" json:"gain_loss_percent"`
}

// Holding is a user's derived position in one symbol.
type Holding struct {
	UserID int64 `db:"user_id" json:"user_id"`
	SymbolRef
	HoldingValues
}

func (Holding) Table() TableSpec { return TablePortfolioSummary }

// SectorRollup aggregates a user's holdings by sector.
type SectorRollup struct {
	UserID int64  `db:"user_id" json:"user_id"`
	Sector string `db:"sector" json:"sector"`
	RollupValues
}

func (SectorRollup) Table() TableSpec { return TablePortfolioSectors }

// SimulatorGame is a trading game.
type SimulatorGame struct {
	GameID       int64       `db:"game_id"`
	Name         string      `db:"game_name"`
	CreatedAt    null.String `db:"date_created"`
	EndDate      Date        `db:"date_ended"`
	StartingCash float64     `db:"starting_cash"`
	IsActive     bool        `db:"is_active"`
	NumPlayers   int         `db:"num_players"`
}

// SimulatorPlayer is a user's seat in a game.
type SimulatorPlayer struct {
	PlayerID               int64      `db:"player_id"`
	GameID                 int64      `db:"game_id"`
	UserID                 int64      `db:"user_id"`
	LiquidCash             float64    `db:"liquid_cash"`
	CurrentPortfolioValue  null.Float `db:"current_portfolio_value"`
	OverallGainLoss        null.Float `db:"overall_gain_loss"`
	OverallGainLossPercent null.Float `db:"overall_gain_loss_percent"`
	CurrentPosition        null.Int   `db:"current_position"`
}

// SimulatorHolding is a player's derived position in one symbol.
type SimulatorHolding struct {
	PlayerID int64 `db:"player_id" json:"player_id"`
	SymbolRef
	HoldingValues
}

func (SimulatorHolding) Table() TableSpec { return TableSimulatorSummary }

// SimulatorSector aggregates a player's holdings by sector.
type SimulatorSector struct {
	PlayerID int64  `db:"player_id" json:"player_id"`
	Sector   string `db:"sector" json:"sector"`
	RollupValues
}

func (SimulatorSector) Table() TableSpec { return TableSimulatorSectors }

// SimulatorStanding carries the derived columns of a player row.
type SimulatorStanding struct {
	GameID                 int64      `db:"game_id" json:"game_id"`
	UserID                 int64      `db:"user_id" json:"user_id"`
	CurrentPortfolioValue  null.Float `db:"current_portfolio_value" json:"current_portfolio_value"`
	OverallGainLoss        null.Float `db:"overall_gain_loss" json:"overall_gain_loss"`
	OverallGainLossPercent null.Float `db:"overall_gain_loss_percent" json:"overall_gain_loss_percent"`
	CurrentPosition        int64      `db:"current_position" json:"current_position"`
}

func (SimulatorStanding) Table() TableSpec { return TableSimulatorStandings }

// SimulatorGameStatus carries the derived columns of a game row.
type SimulatorGameStatus struct {
	GameID     int64 `db:"game_id" json:"game_id"`
	IsActive   bool  `db:"is_active" json:"is_active"`
	NumPlayers int   `db:"num_players" json:"num_players"`
}

func (SimulatorGameStatus) Table() TableSpec { return TableSimulatorGameStatus }

// PahoRecord is one country row of a regional situation report.
type PahoRecord struct {
	Date                        Date        `db:"date" csv:"date"`
	Country                     string      `db:"country" csv:"country"`
	Region                      string      `db:"region" csv:"region"`
	Confirmed                   null.Int    `db:"confirmed" csv:"confirmed"`
	Probable                    null.Int    `db:"probable" csv:"probable"`
	ConfirmedDeaths             null.Int    `db:"confirmed_deaths" csv:"confirmed_deaths"`
	ProbableDeaths              null.Int    `db:"probable_deaths" csv:"probable_deaths"`
	Recovered                   null.Int    `db:"recovered" csv:"recovered"`
	PercentageIncreaseConfirmed null.Float  `db:"percentage_increase_confirmed" csv:"percentage_increase_confirmed"`
	TransmissionType            null.String `db:"transmission_type" csv:"transmission_type"`
}

func (PahoRecord) Table() TableSpec { return TablePahoReports }

// WorldwideRecord is one row of an aggregator daily report.
type WorldwideRecord struct {
	Date          Date        `db:"date" csv:"date"`
	CountryRegion string      `db:"country_region" csv:"country_region"`
	ProvinceState string      `db:"province_state" csv:"province_state"`
	LastUpdate    null.String `db:"last_update" csv:"last_update"`
	Lat           null.Float  `db:"lat" csv:"lat"`
	Long          null.Float  `db:"long" csv:"long"`
	Confirmed     null.Int    `db:"confirmed" csv:"confirmed"`
	Deaths        null.Int    `db:"deaths" csv:"deaths"`
	Recovered     null.Int    `db:"recovered" csv:"recovered"`
	Active        null.Int    `db:"active" csv:"active"`
}

func (WorldwideRecord) Table() TableSpec { return TableWorldwideCases }

// CovidDailyRecord holds day-over-day changes of a cumulative series.
type CovidDailyRecord struct {
	Date           Date   `db:"date"`
	Country        string `db:"country"`
	DailyConfirmed int64  `db:"daily_confirmed"`
	DailyProbable  int64  `db:"daily_probable"`
	DailyDeaths    int64  `db:"daily_deaths"`
	DailyRecovered int64  `db:"daily_recovered"`
}

func (CovidDailyRecord) Table() TableSpec { return TableCovidDaily }

// BrokerQuote is one row of a broker's daily market report.
type BrokerQuote struct {
	SymbolRef
	Date          Date       `db:"date" json:"date"`
	Currency      Currency   `db:"currency" json:"currency"`
	ClosePrice    null.Float `db:"close_price" json:"close_price"`
	ClosePriceTTD null.Float `db:"close_price_ttd" json:"close_price_ttd"`
	ChangeDollars null.Float `db:"change_dollars" json:"change_dollars"`
	VolumeTraded  null.Int   `db:"volume_traded" json:"volume_traded"`
	Bid           null.Float `db:"bid" json:"bid"`
	Offer         null.Float `db:"offer" json:"offer"`
}

func (BrokerQuote) Table() TableSpec { return TableBrokerQuotes }
