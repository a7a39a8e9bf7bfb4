package model

import (
	"time"

	"lv-risk/internal/types"

	"github.com/shopspring/decimal"
)

type Position struct {
	ID          string              `json:"id"`
	Reference   string              `json:"reference"`
	AccountID   string              `json:"account_id"`
	UserID      string              `json:"user_id"`
	AccountType string              `json:"account_type"`
	Pair        string              `json:"pair"`
	Side        types.Side          `json:"side"`
	EntryPrice  decimal.Decimal     `json:"entry_price"`
	Lot         decimal.Decimal     `json:"lot"`
	Leverage    int                 `json:"leverage"`
	StopLoss    decimal.NullDecimal `json:"stop_loss"`
	TakeProfit  decimal.NullDecimal `json:"take_profit"`
	Margin      decimal.Decimal     `json:"margin"`
	OpenedAt    time.Time           `json:"opened_at"`
	ClosedAt    *time.Time          `json:"closed_at"`
	ClosePrice  *decimal.Decimal    `json:"close_price"`
	CloseReason types.CloseReason   `json:"close_reason"`
	Profit      *decimal.Decimal    `json:"profit"`
}

// IsOpen reports whether the position has not been closed yet.
func (p Position) IsOpen() bool {
	return p.ClosedAt == nil
}

// HasTriggers reports whether a stop-loss or take-profit level is set.
func (p Position) HasTriggers() bool {
	return p.StopLoss.Valid || p.TakeProfit.Valid
}

type Account struct {
	ID       string          `json:"id"`
	UserID   string          `json:"user_id"`
	Type     string          `json:"type"`
	Balance  decimal.Decimal `json:"balance"`
	Leverage int             `json:"leverage"`
	Currency string          `json:"currency"`
}

// PairConfig holds the contract parameters of a tradable pair. Spread, PipValue
// and Digits are optional; quoting is refused when any of them is missing.
type PairConfig struct {
	Name          string              `json:"name"`
	LotSize       decimal.Decimal     `json:"lot_size"`
	Digits        *int32              `json:"digits"`
	Spread        decimal.NullDecimal `json:"spread"`
	PipValue      decimal.NullDecimal `json:"pip_value"`
	MarginPercent decimal.Decimal     `json:"margin_percent"`
	MinVolume     decimal.Decimal     `json:"min_volume"`
	MaxVolume     decimal.Decimal     `json:"max_volume"`
}
