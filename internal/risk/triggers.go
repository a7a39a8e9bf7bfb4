package risk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"lv-risk/internal/marketdata"
	"lv-risk/internal/metrics"
	"lv-risk/internal/profit"
)

type SweepStats struct {
	Checked int
	Closed  int
	Skipped int
	Failed  int
}

type TriggerMonitor struct {
	ledger  Ledger
	catalog marketdata.Catalog
	pricer  pricer
	closer  closer
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Sweep evaluates stop-loss and take-profit on every open position that has
// one. A position without a fresh price or pair config is skipped this tick.
func (m *TriggerMonitor) Sweep(ctx context.Context, now time.Time) (SweepStats, error) {
	defer m.metrics.ObserveStage("triggers", time.Now())
	var st SweepStats
	open, err := m.ledger.ListOpenWithTriggers(ctx)
	if err != nil {
		return st, fmt.Errorf("list trigger positions: %w", err)
	}
	for _, pos := range open {
		if ctx.Err() != nil {
			return st, ctx.Err()
		}
		st.Checked++
		pair, err := lookupPair(ctx, m.catalog, pos.Pair)
		if err != nil {
			st.Skipped++
			m.metrics.Skip("missing_pair")
			m.logger.Warn("trigger check skipped: pair config", "position_id", pos.ID, "pair", pos.Pair, "error", err)
			continue
		}
		price, ok := m.pricer.price(pos, now)
		if !ok {
			st.Skipped++
			m.metrics.Skip("stale_price")
			m.logger.Debug("trigger check skipped: no fresh price", "position_id", pos.ID, "pair", pos.Pair)
			continue
		}
		trig := profit.CheckTriggers(pos, price)
		if !trig.ShouldClose {
			continue
		}
		res, err := m.closer.close(ctx, sourceTrigger, pos, pair, price, trig.Reason, now)
		switch {
		case err != nil:
			st.Failed++
		case res.Closed:
			st.Closed++
		}
	}
	return st, nil
}
