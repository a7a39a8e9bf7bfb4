// Package risk watches open positions and closes them when a stop-loss or
// take-profit is reached, when an account falls below its margin thresholds,
// or when a price alteration completes with force-close enabled.
package risk

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"lv-risk/internal/alteration"
	"lv-risk/internal/ledger"
	"lv-risk/internal/marketdata"
	"lv-risk/internal/metrics"
	"lv-risk/internal/model"
	"lv-risk/internal/notify"
	"lv-risk/internal/profit"
	"lv-risk/internal/types"

	"github.com/shopspring/decimal"
)

// Ledger is the position store the engine reads from and closes through.
type Ledger interface {
	ListOpenWithTriggers(ctx context.Context) ([]model.Position, error)
	ListOpenByAccount(ctx context.Context, accountID string) ([]model.Position, error)
	ListOpenInScope(ctx context.Context, a model.Alteration) ([]model.Position, error)
	ListAccountsWithOpenPositions(ctx context.Context) ([]model.Account, error)
	GetAccount(ctx context.Context, id string) (model.Account, error)
	ClosePosition(ctx context.Context, req ledger.CloseRequest) (ledger.CloseResult, error)
}

type PriceSource interface {
	Price(pair string) (decimal.Decimal, bool)
}

type Resolver interface {
	Resolve(pos model.Position, now time.Time) (alteration.Override, bool)
}

var errNoLotSize = errors.New("pair config has no lot size")

// lookupPair fetches the contract parameters of a pair and refuses a config
// that cannot price a position.
func lookupPair(ctx context.Context, c marketdata.Catalog, name string) (model.PairConfig, error) {
	pair, err := c.Pair(ctx, name)
	if err != nil {
		return pair, err
	}
	if !profit.Priceable(pair) {
		return pair, errNoLotSize
	}
	return pair, nil
}

const (
	sourceTrigger    = "trigger"
	sourceMargin     = "margin"
	sourceAlteration = "alteration"
)

// pricer picks the effective price of a position: an active alteration
// first, the live feed otherwise.
type pricer struct {
	alts Resolver
	feed PriceSource
}

func (p pricer) price(pos model.Position, now time.Time) (decimal.Decimal, bool) {
	if p.alts != nil {
		if o, ok := p.alts.Resolve(pos, now); ok {
			return o.Price, true
		}
	}
	return p.feed.Price(pos.Pair)
}

type closer struct {
	ledger  Ledger
	sink    notify.Sink
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// close runs one close through the ledger and notifies only when this call
// performed the close.
func (c closer) close(ctx context.Context, source string, pos model.Position, pair model.PairConfig, price decimal.Decimal, reason types.CloseReason, at time.Time) (ledger.CloseResult, error) {
	res, err := c.ledger.ClosePosition(ctx, ledger.CloseRequest{
		PositionID: pos.ID,
		Price:      price,
		Reason:     reason,
		Pair:       pair,
		At:         at,
	})
	if err != nil {
		c.metrics.CloseFailed(source)
		c.logger.Warn("close failed", "position_id", pos.ID, "reason", reason, "error", err)
		return res, err
	}
	if !res.Closed {
		c.logger.Debug("position already closed", "position_id", pos.ID)
		return res, nil
	}
	c.metrics.Closed(source, reason)
	c.logger.Info("position closed",
		"position_id", pos.ID,
		"account_id", pos.AccountID,
		"pair", pos.Pair,
		"reason", reason,
		"price", price.String(),
		"profit", res.Profit.Formatted,
	)
	if c.sink != nil {
		if err := c.sink.PositionClosed(ctx, notify.FromClose(res.Position, res.Profit)); err != nil {
			c.logger.Warn("close notification failed", "position_id", pos.ID, "error", err)
		}
	}
	return res, nil
}
