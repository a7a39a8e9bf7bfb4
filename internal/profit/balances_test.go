package profit

import (
	"testing"

	"lv-risk/internal/model"
	"lv-risk/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func byPair(prices map[string]decimal.Decimal) PriceLookup {
	return func(pos model.Position) (decimal.Decimal, bool) {
		p, ok := prices[model.NormalizePair(pos.Pair)]
		return p, ok
	}
}

func TestAccountBalances(t *testing.T) {
	t.Parallel()

	acc := model.Account{ID: "acc-1", Balance: d("1000")}
	open := []model.Position{
		{ID: "p1", Pair: "EUR/USD", Side: types.SideBuy, EntryPrice: d("100"), Lot: d("1"), Margin: d("10")},
		{ID: "p2", Pair: "XAU/USD", Side: types.SideSell, EntryPrice: d("2000"), Lot: d("1"), Margin: d("0")},
		{ID: "p3", Pair: "GBP/JPY", Side: types.SideBuy, EntryPrice: d("190"), Lot: d("1"), Margin: d("5")},
	}
	prices := map[string]decimal.Decimal{
		"eur": d("125"),
		"xau": d("1990"),
	}
	pairs := map[string]model.PairConfig{
		"eur":    unitPair(),
		"xau":    unitPair(),
		"gbpjpy": unitPair(),
	}

	b := AccountBalances(acc, open, byPair(prices), pairs)
	assert.True(t, b.UnrealizedPnL.Equal(d("35")), "unrealized %s", b.UnrealizedPnL)
	assert.True(t, b.Equity.Equal(d("1035")))
	assert.True(t, b.TotalMargin.Equal(d("15")))
	assert.True(t, b.FreeMargin.Equal(d("1020")))
	assert.Equal(t, []string{"p3"}, b.Pending)
	assert.False(t, b.Complete())
	assert.True(t, b.Marks["p1"].Equal(d("25")))
	_, marked := b.Marks["p3"]
	assert.False(t, marked)
}

func TestAccountBalancesMissingPairConfigIsPending(t *testing.T) {
	t.Parallel()

	acc := model.Account{Balance: d("100")}
	open := []model.Position{{ID: "p1", Pair: "EURUSD", Side: types.SideBuy, EntryPrice: d("1"), Lot: d("1"), Margin: d("1")}}
	b := AccountBalances(acc, open, byPair(map[string]decimal.Decimal{"eur": d("2")}), nil)
	assert.Equal(t, []string{"p1"}, b.Pending)
	assert.True(t, b.Equity.Equal(d("100")))
}

func TestAccountBalancesPairWithoutLotSizeIsPending(t *testing.T) {
	t.Parallel()

	acc := model.Account{Balance: d("100")}
	open := []model.Position{{ID: "p1", Pair: "EURUSD", Side: types.SideBuy, EntryPrice: d("1"), Lot: d("1"), Margin: d("1")}}
	pair := unitPair()
	pair.LotSize = decimal.Zero
	b := AccountBalances(acc, open, byPair(map[string]decimal.Decimal{"eur": d("2")}), map[string]model.PairConfig{"eur": pair})
	assert.Equal(t, []string{"p1"}, b.Pending)
	assert.True(t, b.UnrealizedPnL.IsZero())
	assert.False(t, Priceable(pair))
	assert.True(t, Priceable(unitPair()))
}

func TestCheckMarginLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		equity string
		margin string
		action types.MarginAction
		level  string
	}{
		{name: "no_margin", equity: "50", margin: "0", action: types.MarginActionNone, level: "0"},
		{name: "healthy", equity: "500", margin: "100", action: types.MarginActionNone, level: "500"},
		{name: "exactly_margin_call", equity: "50", margin: "100", action: types.MarginActionMarginCall, level: "50"},
		{name: "between", equity: "30", margin: "100", action: types.MarginActionMarginCall, level: "30"},
		{name: "exactly_stop_out", equity: "20", margin: "100", action: types.MarginActionStopOut, level: "20"},
		{name: "negative_equity", equity: "-5", margin: "100", action: types.MarginActionStopOut, level: "-5"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := Balances{Equity: d(tt.equity), TotalMargin: d(tt.margin)}
			got := CheckMarginLevel(b, d("50"), d("20"))
			assert.Equal(t, tt.action, got.Action)
			assert.True(t, got.Level.Equal(d(tt.level)), "level %s", got.Level)
		})
	}
}

func TestAccountBalancesPerPositionPrices(t *testing.T) {
	t.Parallel()

	acc := model.Account{Balance: d("100")}
	open := []model.Position{
		{ID: "p1", Pair: "EURUSD", Side: types.SideBuy, EntryPrice: d("1"), Lot: d("1"), Margin: d("1")},
		{ID: "p2", Pair: "EURUSD", Side: types.SideBuy, EntryPrice: d("1"), Lot: d("1"), Margin: d("1")},
	}
	lookup := func(pos model.Position) (decimal.Decimal, bool) {
		if pos.ID == "p1" {
			return d("3"), true
		}
		return d("2"), true
	}
	b := AccountBalances(acc, open, lookup, map[string]model.PairConfig{"eur": unitPair()})
	assert.True(t, b.Marks["p1"].Equal(d("2")))
	assert.True(t, b.Marks["p2"].Equal(d("1")))
	assert.True(t, b.Equity.Equal(d("103")))
}
