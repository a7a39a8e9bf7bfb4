package risk

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"lv-risk/internal/alteration"
	"lv-risk/internal/marketdata"
	"lv-risk/internal/metrics"
	"lv-risk/internal/notify"
	"lv-risk/internal/types"

	"github.com/shopspring/decimal"
)

// Alterations is the part of the alteration engine the driver needs.
type Alterations interface {
	Resolver
	Refresh(ctx context.Context, now time.Time) []alteration.Completion
}

type Deps struct {
	Ledger      Ledger
	Catalog     marketdata.Catalog
	Feed        PriceSource
	Alterations Alterations
	Sink        notify.Sink
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

type Config struct {
	Interval      time.Duration
	MarginCallPct decimal.Decimal
	StopOutPct    decimal.Decimal
	Now           func() time.Time
}

// Driver runs the periodic evaluation. Stages run in a fixed order within a
// tick: alteration completions, then triggers, then margin.
type Driver struct {
	ledger   Ledger
	catalog  marketdata.Catalog
	alts     Alterations
	closer   closer
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics

	// retryMu guards retry: force closes that left positions open, replayed
	// on the next tick for those positions only.
	retryMu sync.Mutex
	retry   []expiry

	Triggers *TriggerMonitor
	Margin   *MarginSupervisor
}

func New(deps Deps, cfg Config) *Driver {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "risk")
	if deps.Sink == nil {
		deps.Sink = notify.Discard{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	p := pricer{feed: deps.Feed, alts: deps.Alterations}
	c := closer{ledger: deps.Ledger, sink: deps.Sink, logger: logger, metrics: deps.Metrics}
	return &Driver{
		ledger:   deps.Ledger,
		catalog:  deps.Catalog,
		alts:     deps.Alterations,
		closer:   c,
		interval: cfg.Interval,
		now:      cfg.Now,
		logger:   logger,
		metrics:  deps.Metrics,
		Triggers: &TriggerMonitor{
			ledger:  deps.Ledger,
			catalog: deps.Catalog,
			pricer:  p,
			closer:  c,
			logger:  logger,
			metrics: deps.Metrics,
		},
		Margin: &MarginSupervisor{
			ledger:        deps.Ledger,
			catalog:       deps.Catalog,
			pricer:        p,
			closer:        c,
			marginCallPct: cfg.MarginCallPct,
			stopOutPct:    cfg.StopOutPct,
			logger:        logger,
			metrics:       deps.Metrics,
		},
	}
}

type TickReport struct {
	Completed int
	Expired   SweepStats
	Triggers  SweepStats
	Margin    SweepStats
}

// Tick runs one evaluation at now. A failing stage is logged and the next
// stage still runs.
func (d *Driver) Tick(ctx context.Context, now time.Time) TickReport {
	var rep TickReport
	if d.alts != nil {
		started := time.Now()
		done := d.alts.Refresh(ctx, now)
		rep.Completed = len(done)
		d.retryMu.Lock()
		pending := d.retry
		d.retry = nil
		d.retryMu.Unlock()
		for _, c := range done {
			if c.ForceClose {
				pending = append(pending, expiry{Completion: c})
			}
		}
		var again []expiry
		for _, x := range pending {
			st, left, err := d.forceClose(ctx, x, now)
			if err != nil {
				d.logger.Error("alteration force close failed", "alteration_id", x.Alteration.ID, "error", err)
			}
			if len(left) > 0 || (err != nil && x.positions == nil) {
				x.positions = left
				again = append(again, x)
			}
			rep.Expired.Checked += st.Checked
			rep.Expired.Closed += st.Closed
			rep.Expired.Skipped += st.Skipped
			rep.Expired.Failed += st.Failed
		}
		if len(again) > 0 {
			d.retryMu.Lock()
			d.retry = append(d.retry, again...)
			d.retryMu.Unlock()
		}
		d.metrics.ObserveStage("alterations", started)
	}

	var err error
	if rep.Triggers, err = d.Triggers.Sweep(ctx, now); err != nil {
		d.logger.Error("trigger sweep failed", "error", err)
	}
	if rep.Margin, err = d.Margin.Sweep(ctx, now); err != nil {
		d.logger.Error("margin sweep failed", "error", err)
	}
	return rep
}

// expiry is a completed alteration whose positions are being force-closed.
// positions is nil until the scope has been listed once; after that only
// those positions are retried, so anything opened later is left alone.
type expiry struct {
	alteration.Completion
	positions map[string]struct{}
}

// forceClose closes the open positions the completed alteration covered at
// its target price. It returns the IDs that are still open and should be
// retried.
func (d *Driver) forceClose(ctx context.Context, x expiry, now time.Time) (SweepStats, map[string]struct{}, error) {
	var st SweepStats
	open, err := d.ledger.ListOpenInScope(ctx, x.Alteration)
	if err != nil {
		return st, x.positions, fmt.Errorf("list positions in scope: %w", err)
	}
	left := map[string]struct{}{}
	endsAt := x.Alteration.EndsAt()
	for _, pos := range open {
		if x.positions != nil {
			if _, ok := x.positions[pos.ID]; !ok {
				continue
			}
		} else if pos.OpenedAt.After(endsAt) {
			continue
		}
		st.Checked++
		pair, err := lookupPair(ctx, d.catalog, pos.Pair)
		if err != nil {
			st.Skipped++
			d.metrics.Skip("missing_pair")
			d.logger.Warn("force close skipped: pair config", "position_id", pos.ID, "pair", pos.Pair, "error", err)
			continue
		}
		res, err := d.closer.close(ctx, sourceAlteration, pos, pair, x.ClosePrice, types.CloseReasonExpire, now)
		switch {
		case err != nil:
			st.Failed++
			left[pos.ID] = struct{}{}
		case res.Closed:
			st.Closed++
		}
	}
	return st, left, nil
}

// Run ticks until ctx is cancelled.
func (d *Driver) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	d.logger.Info("risk driver started", "interval", d.interval.String())
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("risk driver stopped")
			return nil
		case <-ticker.C:
			d.Tick(ctx, d.now())
		}
	}
}
