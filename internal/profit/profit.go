// Package profit computes position P&L, spread-adjusted quotes, margin
// requirements and account-level balances. Nothing here performs I/O; callers
// resolve the effective price (live or altered) before calling in.
package profit

import (
	"lv-risk/internal/model"
	"lv-risk/internal/types"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type Quote struct {
	Mid  decimal.Decimal `json:"mid"`
	Buy  decimal.Decimal `json:"buy"`
	Sell decimal.Decimal `json:"sell"`
}

// QuoteFor derives buy/sell quotes around mid. It returns false when the pair
// lacks spread, pip value or digits.
func QuoteFor(pair model.PairConfig, mid decimal.Decimal) (Quote, bool) {
	if !pair.Spread.Valid || !pair.PipValue.Valid || pair.Digits == nil {
		return Quote{}, false
	}
	offset := pair.Spread.Decimal.Mul(pair.PipValue.Decimal)
	digits := *pair.Digits
	return Quote{
		Mid:  mid,
		Buy:  mid.Add(offset).Round(digits),
		Sell: mid.Sub(offset).Round(digits),
	}, true
}

type Result struct {
	Amount    decimal.Decimal    `json:"amount"`
	Formatted string             `json:"formatted"`
	Status    types.ProfitStatus `json:"status"`
}

// Profit is the P&L of pos marked at price. Callers check Priceable first.
func Profit(pos model.Position, price decimal.Decimal, pair model.PairConfig) Result {
	amount := price.Sub(pos.EntryPrice).Mul(pair.LotSize).Mul(pos.Lot)
	if pos.Side == types.SideSell {
		amount = amount.Neg()
	}
	return Result{Amount: amount, Formatted: FormatSigned(amount), Status: statusOf(amount)}
}

// FormatSigned renders amount with two decimals and an explicit sign.
func FormatSigned(amount decimal.Decimal) string {
	if amount.IsNegative() {
		return "-" + amount.Abs().StringFixed(2)
	}
	return "+" + amount.StringFixed(2)
}

func statusOf(amount decimal.Decimal) types.ProfitStatus {
	switch amount.Sign() {
	case 1:
		return types.ProfitStatusProfit
	case -1:
		return types.ProfitStatusLoss
	}
	return types.ProfitStatusNeutral
}

// RequiredMargin is the margin a position needs at mid. Sell positions carry
// no required margin.
func RequiredMargin(pos model.Position, pair model.PairConfig, leverage int, mid decimal.Decimal) decimal.Decimal {
	if pos.Side != types.SideBuy {
		return decimal.Zero
	}
	if leverage <= 0 {
		leverage = 1
	}
	notional := pos.Lot.Mul(pair.LotSize).Mul(mid)
	return notional.Div(decimal.NewFromInt(int64(leverage))).Mul(pair.MarginPercent.Div(hundred))
}

// Priceable reports whether pair carries a usable contract size. Positions on
// a pair that is not priceable are never marked or closed.
func Priceable(pair model.PairConfig) bool {
	return pair.LotSize.IsPositive()
}

type Trigger struct {
	ShouldClose bool              `json:"should_close"`
	Reason      types.CloseReason `json:"reason"`
}

// CheckTriggers evaluates take-profit before stop-loss.
func CheckTriggers(pos model.Position, price decimal.Decimal) Trigger {
	buy := pos.Side == types.SideBuy
	if pos.TakeProfit.Valid {
		tp := pos.TakeProfit.Decimal
		if (buy && price.GreaterThanOrEqual(tp)) || (!buy && price.LessThanOrEqual(tp)) {
			return Trigger{ShouldClose: true, Reason: types.CloseReasonTakeProfit}
		}
	}
	if pos.StopLoss.Valid {
		sl := pos.StopLoss.Decimal
		if (buy && price.LessThanOrEqual(sl)) || (!buy && price.GreaterThanOrEqual(sl)) {
			return Trigger{ShouldClose: true, Reason: types.CloseReasonStopLoss}
		}
	}
	return Trigger{Reason: types.CloseReasonNone}
}
