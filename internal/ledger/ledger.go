// Package ledger owns position close state and account balances. Closing a
// position is the only operation that mutates either, and it is idempotent:
// a second close of the same position reports Closed=false and changes
// nothing.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"lv-risk/internal/model"
	"lv-risk/internal/profit"
	"lv-risk/internal/types"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound     = errors.New("position not found")
	ErrInvalidClose = errors.New("invalid close request")
)

// TxPositionClose is the transaction-log kind written on every close.
const TxPositionClose = "position_close"

type CloseRequest struct {
	PositionID string
	Price      decimal.Decimal
	Reason     types.CloseReason
	Pair       model.PairConfig
	At         time.Time
}

type CloseResult struct {
	Position model.Position
	Profit   profit.Result
	// Balance is the account balance after the close.
	Balance decimal.Decimal
	// Closed is false when the position was already closed before this call.
	Closed bool
}

// Transaction is one row of the account transaction log.
type Transaction struct {
	ID           string          `json:"id"`
	AccountID    string          `json:"account_id"`
	PositionID   string          `json:"position_id"`
	Kind         string          `json:"kind"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	CreatedAt    time.Time       `json:"created_at"`
}

func validateClose(req CloseRequest) error {
	if req.PositionID == "" {
		return fmt.Errorf("%w: position id is required", ErrInvalidClose)
	}
	if !req.Price.IsPositive() {
		return fmt.Errorf("%w: close price must be positive", ErrInvalidClose)
	}
	if req.Reason == "" || req.Reason == types.CloseReasonNone {
		return fmt.Errorf("%w: close reason is required", ErrInvalidClose)
	}
	if !profit.Priceable(req.Pair) {
		return fmt.Errorf("%w: pair %q has no lot size", ErrInvalidClose, req.Pair.Name)
	}
	return nil
}

func closeAt(req CloseRequest) time.Time {
	if req.At.IsZero() {
		return time.Now().UTC()
	}
	return req.At.UTC()
}

// applyClose stamps the close fields on pos and returns the realized P&L.
func applyClose(pos *model.Position, req CloseRequest) profit.Result {
	res := profit.Profit(*pos, req.Price, req.Pair)
	at := closeAt(req)
	price := req.Price
	amount := res.Amount
	pos.ClosedAt = &at
	pos.ClosePrice = &price
	pos.CloseReason = req.Reason
	pos.Profit = &amount
	return res
}
