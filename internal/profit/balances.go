package profit

import (
	"lv-risk/internal/model"
	"lv-risk/internal/types"

	"github.com/shopspring/decimal"
)

type Balances struct {
	Balance       decimal.Decimal `json:"balance"`
	Equity        decimal.Decimal `json:"equity"`
	FreeMargin    decimal.Decimal `json:"free_margin"`
	TotalMargin   decimal.Decimal `json:"total_margin"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	// Pending lists open positions that could not be marked: no price, no
	// pair config, or no lot size. Their P&L is unknown, not zero.
	Pending []string `json:"pending,omitempty"`
	// Marks holds the P&L of every position that could be marked, by ID.
	Marks map[string]decimal.Decimal `json:"-"`
}

// Complete reports whether every open position was marked.
func (b Balances) Complete() bool {
	return len(b.Pending) == 0
}

// PriceLookup returns the mark price of one position. Positions on the same
// pair may be marked differently when an override targets a single trade.
type PriceLookup func(pos model.Position) (decimal.Decimal, bool)

// AccountBalances aggregates equity and margin. Pair configs are keyed by
// normalized pair; margin is the amount already held on each position.
func AccountBalances(acc model.Account, open []model.Position, prices PriceLookup, pairs map[string]model.PairConfig) Balances {
	b := Balances{
		Balance: acc.Balance,
		Marks:   make(map[string]decimal.Decimal, len(open)),
	}
	for _, pos := range open {
		if !pos.IsOpen() {
			continue
		}
		b.TotalMargin = b.TotalMargin.Add(pos.Margin)
		price, ok := prices(pos)
		if !ok {
			b.Pending = append(b.Pending, pos.ID)
			continue
		}
		pair, ok := pairs[model.NormalizePair(pos.Pair)]
		if !ok || !Priceable(pair) {
			b.Pending = append(b.Pending, pos.ID)
			continue
		}
		pnl := Profit(pos, price, pair).Amount
		b.Marks[pos.ID] = pnl
		b.UnrealizedPnL = b.UnrealizedPnL.Add(pnl)
	}
	b.Equity = b.Balance.Add(b.UnrealizedPnL)
	b.FreeMargin = b.Equity.Sub(b.TotalMargin)
	return b
}

type MarginCheck struct {
	Action types.MarginAction `json:"action"`
	Level  decimal.Decimal    `json:"level"`
}

// MarginLevel is equity/margin in percent; zero when no margin is held.
func MarginLevel(equity, margin decimal.Decimal) decimal.Decimal {
	if !margin.IsPositive() {
		return decimal.Zero
	}
	return equity.Div(margin).Mul(hundred)
}

// CheckMarginLevel classifies the account. Both thresholds are inclusive.
func CheckMarginLevel(b Balances, marginCallPct, stopOutPct decimal.Decimal) MarginCheck {
	if !b.TotalMargin.IsPositive() {
		return MarginCheck{Action: types.MarginActionNone}
	}
	level := MarginLevel(b.Equity, b.TotalMargin)
	switch {
	case level.LessThanOrEqual(stopOutPct):
		return MarginCheck{Action: types.MarginActionStopOut, Level: level}
	case level.LessThanOrEqual(marginCallPct):
		return MarginCheck{Action: types.MarginActionMarginCall, Level: level}
	}
	return MarginCheck{Action: types.MarginActionNone, Level: level}
}
