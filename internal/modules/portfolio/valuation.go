package portfolio

import (
	"sort"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"

	"github.com/trinistocks/pipeline/internal/domain"
)

// UnknownSector groups holdings of symbols without a sector.
const UnknownSector = "Other"

var hundred = decimal.NewFromInt(100)

// Position is one owner's derived holding in one symbol.
type Position struct {
	Owner  int64
	Symbol string
	domain.HoldingValues
}

// SectorTotal is one owner's holdings summed over a sector.
type SectorTotal struct {
	Owner  int64
	Sector string
	domain.RollupValues
}

type ledger struct {
	bought, sold, cost decimal.Decimal
}

type positionKey struct {
	owner  int64
	symbol string
}

// Value derives every position from the owner's transactions and the
// current market prices. Sold shares do not keep any cost: book cost is
// the remaining shares at the average buy price.
func Value(txs []domain.Transaction, prices map[string]float64) []Position {
	ledgers := make(map[positionKey]*ledger)
	for _, tx := range txs {
		k := positionKey{tx.OwnerID, tx.Symbol}
		l, ok := ledgers[k]
		if !ok {
			l = &ledger{}
			ledgers[k] = l
		}
		qty := decimal.NewFromFloat(tx.Quantity)
		switch tx.Side {
		case domain.SideBuy:
			l.bought = l.bought.Add(qty)
			l.cost = l.cost.Add(qty.Mul(decimal.NewFromFloat(tx.Price)))
		case domain.SideSell:
			l.sold = l.sold.Add(qty)
		}
	}

	out := make([]Position, 0, len(ledgers))
	for k, l := range ledgers {
		p := Position{Owner: k.owner, Symbol: k.symbol}
		remaining := l.bought.Sub(l.sold)
		p.SharesRemaining = remaining.InexactFloat64()

		var book, market *decimal.Decimal
		if l.bought.IsPositive() {
			avg := l.cost.Div(l.bought)
			b := remaining.Mul(l.cost).Div(l.bought)
			p.AverageCost = null.FloatFrom(avg.InexactFloat64())
			p.BookCost = null.FloatFrom(b.InexactFloat64())
			book = &b
		}
		if price, ok := prices[k.symbol]; ok {
			m := remaining.Mul(decimal.NewFromFloat(price))
			p.CurrentMarketPrice = null.FloatFrom(price)
			p.MarketValue = null.FloatFrom(m.InexactFloat64())
			market = &m
		}
		if book != nil && market != nil {
			gain := market.Sub(*book)
			p.TotalGainLoss = null.FloatFrom(gain.InexactFloat64())
			p.GainLossPercent = null.FloatFrom(percentOf(gain, *book).InexactFloat64())
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Owner != out[j].Owner {
			return out[i].Owner < out[j].Owner
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// percentOf is 100 × part / whole, zero when whole is zero.
func percentOf(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return hundred.Mul(part).Div(whole)
}

// Rollup sums each owner's positions by the sector of their symbol. Every
// column, the gain percentage included, is a plain sum of the positions'
// non-null values; a column with no values stays null.
func Rollup(positions []Position, sectors map[string]string) []SectorTotal {
	type key struct {
		owner  int64
		sector string
	}
	type sums struct {
		book, market, gain, percent null.Float
	}
	acc := make(map[key]*sums)
	for _, p := range positions {
		sector := sectors[p.Symbol]
		if sector == "" {
			sector = UnknownSector
		}
		k := key{p.Owner, sector}
		s, ok := acc[k]
		if !ok {
			s = &sums{}
			acc[k] = s
		}
		s.book = add(s.book, p.BookCost)
		s.market = add(s.market, p.MarketValue)
		s.gain = add(s.gain, p.TotalGainLoss)
		s.percent = add(s.percent, p.GainLossPercent)
	}

	out := make([]SectorTotal, 0, len(acc))
	for k, s := range acc {
		out = append(out, SectorTotal{
			Owner:  k.owner,
			Sector: k.sector,
			RollupValues: domain.RollupValues{
				BookCost:        s.book,
				MarketValue:     s.market,
				TotalGainLoss:   s.gain,
				GainLossPercent: s.percent,
			},
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Owner != out[j].Owner {
			return out[i].Owner < out[j].Owner
		}
		return out[i].Sector < out[j].Sector
	})
	return out
}

func add(sum, v null.Float) null.Float {
	if !v.Valid {
		return sum
	}
	return null.FloatFrom(decimal.NewFromFloat(sum.Float64).Add(decimal.NewFromFloat(v.Float64)).InexactFloat64())
}
