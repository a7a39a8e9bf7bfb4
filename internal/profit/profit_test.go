package profit

import (
	"testing"

	"lv-risk/internal/model"
	"lv-risk/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func nd(v string) decimal.NullDecimal {
	return decimal.NewNullDecimal(d(v))
}

func digits(v int32) *int32 {
	return &v
}

func unitPair() model.PairConfig {
	return model.PairConfig{
		Name:          "EUR/USD",
		LotSize:       d("1"),
		Digits:        digits(5),
		Spread:        nd("2"),
		PipValue:      nd("0.0001"),
		MarginPercent: d("10"),
	}
}

func TestQuoteFor(t *testing.T) {
	t.Parallel()

	q, ok := QuoteFor(unitPair(), d("1.10000"))
	require.True(t, ok)
	assert.Equal(t, "1.1002", q.Buy.String())
	assert.Equal(t, "1.0998", q.Sell.String())
	assert.Equal(t, "1.1", q.Mid.String())
}

func TestQuoteForMissingParameters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(p *model.PairConfig)
	}{
		{name: "no_spread", mutate: func(p *model.PairConfig) { p.Spread = decimal.NullDecimal{} }},
		{name: "no_pip_value", mutate: func(p *model.PairConfig) { p.PipValue = decimal.NullDecimal{} }},
		{name: "no_digits", mutate: func(p *model.PairConfig) { p.Digits = nil }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pair := unitPair()
			tt.mutate(&pair)
			_, ok := QuoteFor(pair, d("1.1"))
			assert.False(t, ok)
		})
	}
}

func TestProfitSignConvention(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		side      types.Side
		price     string
		amount    string
		formatted string
		status    types.ProfitStatus
	}{
		{name: "buy_price_up", side: types.SideBuy, price: "110", amount: "10", formatted: "+10.00", status: types.ProfitStatusProfit},
		{name: "buy_price_down", side: types.SideBuy, price: "95", amount: "-5", formatted: "-5.00", status: types.ProfitStatusLoss},
		{name: "sell_price_up", side: types.SideSell, price: "110", amount: "-10", formatted: "-10.00", status: types.ProfitStatusLoss},
		{name: "sell_price_down", side: types.SideSell, price: "95", amount: "5", formatted: "+5.00", status: types.ProfitStatusProfit},
		{name: "flat", side: types.SideBuy, price: "100", amount: "0", formatted: "+0.00", status: types.ProfitStatusNeutral},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pos := model.Position{Side: tt.side, EntryPrice: d("100"), Lot: d("1")}
			res := Profit(pos, d(tt.price), unitPair())
			assert.True(t, res.Amount.Equal(d(tt.amount)), "amount %s", res.Amount)
			assert.Equal(t, tt.formatted, res.Formatted)
			assert.Equal(t, tt.status, res.Status)
		})
	}
}

func TestProfitScalesWithLotSize(t *testing.T) {
	t.Parallel()

	pair := unitPair()
	pair.LotSize = d("100000")
	pos := model.Position{Side: types.SideBuy, EntryPrice: d("1.1000"), Lot: d("0.5")}
	res := Profit(pos, d("1.1010"), pair)
	assert.True(t, res.Amount.Equal(d("50")), "amount %s", res.Amount)
}

func TestRequiredMargin(t *testing.T) {
	t.Parallel()

	buy := model.Position{Side: types.SideBuy, Lot: d("1")}
	assert.True(t, RequiredMargin(buy, unitPair(), 10, d("100")).Equal(d("1")))

	sell := model.Position{Side: types.SideSell, Lot: d("1")}
	assert.True(t, RequiredMargin(sell, unitPair(), 10, d("100")).IsZero())
}

func TestCheckTriggers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		side   types.Side
		sl     decimal.NullDecimal
		tp     decimal.NullDecimal
		price  string
		reason types.CloseReason
	}{
		{name: "buy_tp_hit", side: types.SideBuy, tp: nd("110"), price: "110", reason: types.CloseReasonTakeProfit},
		{name: "buy_sl_hit", side: types.SideBuy, sl: nd("90"), price: "89.5", reason: types.CloseReasonStopLoss},
		{name: "buy_between", side: types.SideBuy, sl: nd("90"), tp: nd("110"), price: "100", reason: types.CloseReasonNone},
		{name: "sell_tp_hit", side: types.SideSell, tp: nd("90"), price: "90", reason: types.CloseReasonTakeProfit},
		{name: "sell_sl_hit", side: types.SideSell, sl: nd("110"), price: "111", reason: types.CloseReasonStopLoss},
		{name: "sell_tp_not_hit_on_rise", side: types.SideSell, tp: nd("90"), price: "95", reason: types.CloseReasonNone},
		{name: "zero_stop_loss_is_a_price", side: types.SideSell, sl: nd("0"), price: "1", reason: types.CloseReasonStopLoss},
		{name: "unset_levels", side: types.SideBuy, price: "1000", reason: types.CloseReasonNone},
		// Pathological levels where both fire: take-profit wins.
		{name: "both_fire_tp_first", side: types.SideBuy, sl: nd("120"), tp: nd("100"), price: "110", reason: types.CloseReasonTakeProfit},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pos := model.Position{Side: tt.side, EntryPrice: d("100"), Lot: d("1"), StopLoss: tt.sl, TakeProfit: tt.tp}
			trig := CheckTriggers(pos, d(tt.price))
			assert.Equal(t, tt.reason, trig.Reason)
			assert.Equal(t, tt.reason != types.CloseReasonNone, trig.ShouldClose)
		})
	}
}
