package risk

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"lv-risk/internal/marketdata"
	"lv-risk/internal/metrics"
	"lv-risk/internal/model"
	"lv-risk/internal/profit"
	"lv-risk/internal/types"

	"github.com/shopspring/decimal"
)

type MarginSupervisor struct {
	ledger        Ledger
	catalog       marketdata.Catalog
	pricer        pricer
	closer        closer
	marginCallPct decimal.Decimal
	stopOutPct    decimal.Decimal
	logger        *slog.Logger
	metrics       *metrics.Metrics
}

// AccountState is a marked snapshot of one account.
type AccountState struct {
	Account  model.Account
	Open     []model.Position
	Balances profit.Balances
	Check    profit.MarginCheck
	prices   map[string]decimal.Decimal
	pairs    map[string]model.PairConfig
}

// State marks every open position of the account at its effective price.
func (s *MarginSupervisor) State(ctx context.Context, accountID string, now time.Time) (AccountState, error) {
	acc, err := s.ledger.GetAccount(ctx, accountID)
	if err != nil {
		return AccountState{}, err
	}
	return s.state(ctx, acc, now)
}

func (s *MarginSupervisor) state(ctx context.Context, acc model.Account, now time.Time) (AccountState, error) {
	open, err := s.ledger.ListOpenByAccount(ctx, acc.ID)
	if err != nil {
		return AccountState{}, fmt.Errorf("list positions of %s: %w", acc.ID, err)
	}
	st := AccountState{
		Account: acc,
		Open:    open,
		prices:  make(map[string]decimal.Decimal, len(open)),
		pairs:   map[string]model.PairConfig{},
	}
	for _, pos := range open {
		key := model.NormalizePair(pos.Pair)
		if _, ok := st.pairs[key]; !ok {
			pair, err := lookupPair(ctx, s.catalog, pos.Pair)
			if err != nil {
				s.logger.Warn("pair config unavailable", "account_id", acc.ID, "pair", pos.Pair, "error", err)
			} else {
				st.pairs[key] = pair
			}
		}
		if price, ok := s.pricer.price(pos, now); ok {
			st.prices[pos.ID] = price
		}
	}
	st.Balances = profit.AccountBalances(acc, open, func(pos model.Position) (decimal.Decimal, bool) {
		p, ok := st.prices[pos.ID]
		return p, ok
	}, st.pairs)
	st.Check = profit.CheckMarginLevel(st.Balances, s.marginCallPct, s.stopOutPct)
	return st, nil
}

// PositionMark is one open position as the supervisor marks it.
type PositionMark struct {
	Position model.Position
	// Priced is false for pending positions; the fields below are then zero.
	Priced         bool
	Price          decimal.Decimal
	Profit         profit.Result
	RequiredMargin decimal.Decimal
	// Quote is set when the pair defines spread, pip value and digits.
	Quote  profit.Quote
	Quoted bool
}

// Marks lists every open position with its effective price, P&L, spread
// quote and the margin it would require at that price.
func (st AccountState) Marks() []PositionMark {
	out := make([]PositionMark, 0, len(st.Open))
	for _, pos := range st.Open {
		m := PositionMark{Position: pos}
		price, ok := st.prices[pos.ID]
		pair, known := st.pairs[model.NormalizePair(pos.Pair)]
		if ok && known {
			leverage := pos.Leverage
			if leverage <= 0 {
				leverage = st.Account.Leverage
			}
			m.Priced = true
			m.Price = price
			m.Profit = profit.Profit(pos, price, pair)
			m.RequiredMargin = profit.RequiredMargin(pos, pair, leverage, price)
			m.Quote, m.Quoted = profit.QuoteFor(pair, price)
		}
		out = append(out, m)
	}
	return out
}

// Sweep checks every account holding open positions. Failures on one
// account are logged and do not stop the others.
func (s *MarginSupervisor) Sweep(ctx context.Context, now time.Time) (SweepStats, error) {
	defer s.metrics.ObserveStage("margin", time.Now())
	var st SweepStats
	accounts, err := s.ledger.ListAccountsWithOpenPositions(ctx)
	if err != nil {
		return st, fmt.Errorf("list accounts: %w", err)
	}
	for _, acc := range accounts {
		if ctx.Err() != nil {
			return st, ctx.Err()
		}
		st.Checked++
		res, err := s.SweepAccount(ctx, acc, now)
		if err != nil {
			st.Failed++
			s.logger.Error("margin check failed", "account_id", acc.ID, "error", err)
			continue
		}
		st.Closed += res.Closed
		st.Failed += res.Failed
		if res.Skipped {
			st.Skipped++
		}
	}
	return st, nil
}

type AccountResult struct {
	Action  types.MarginAction
	Level   decimal.Decimal
	Closed  int
	Failed  int
	Skipped bool
}

// SweepAccount classifies the account and closes positions as needed. On
// stop out every open position is closed. On margin call positions are
// closed worst first until the projected margin level is back above the
// margin-call threshold. Accounts with unmarked positions are left alone.
func (s *MarginSupervisor) SweepAccount(ctx context.Context, acc model.Account, now time.Time) (AccountResult, error) {
	st, err := s.state(ctx, acc, now)
	if err != nil {
		return AccountResult{}, err
	}
	if !st.Balances.Complete() {
		s.metrics.Skip("pending_positions")
		s.logger.Warn("margin check skipped: unpriced positions", "account_id", acc.ID, "pending", st.Balances.Pending)
		return AccountResult{Action: types.MarginActionNone, Skipped: true}, nil
	}
	res := AccountResult{Action: st.Check.Action, Level: st.Check.Level}
	if st.Check.Action == types.MarginActionNone {
		return res, nil
	}
	s.metrics.MarginAction(st.Check.Action)
	s.logger.Warn("margin threshold reached",
		"account_id", acc.ID,
		"action", st.Check.Action,
		"level", st.Check.Level.StringFixed(2),
		"equity", st.Balances.Equity.String(),
		"margin", st.Balances.TotalMargin.String(),
	)

	worst := append([]model.Position(nil), st.Open...)
	sort.SliceStable(worst, func(i, j int) bool {
		return st.Balances.Marks[worst[i].ID].LessThan(st.Balances.Marks[worst[j].ID])
	})

	balance := st.Balances.Balance
	unrealized := st.Balances.UnrealizedPnL
	margin := st.Balances.TotalMargin
	for _, pos := range worst {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		pair := st.pairs[model.NormalizePair(pos.Pair)]
		out, err := s.closer.close(ctx, sourceMargin, pos, pair, st.prices[pos.ID], types.CloseReasonMarginCall, now)
		if err != nil {
			res.Failed++
			continue
		}
		if out.Closed {
			res.Closed++
		}
		if st.Check.Action == types.MarginActionStopOut {
			continue
		}
		// Project the account as if this position's mark had been realized.
		// Realizing moves pnl from unrealized into balance, so equity stays
		// the same; only the released margin lifts the level. Do not add pnl
		// to equity a second time.
		pnl := st.Balances.Marks[pos.ID]
		balance = balance.Add(pnl)
		unrealized = unrealized.Sub(pnl)
		margin = margin.Sub(pos.Margin)
		if !margin.IsPositive() {
			break
		}
		level := profit.MarginLevel(balance.Add(unrealized), margin)
		if level.GreaterThan(s.marginCallPct) {
			break
		}
	}
	return res, nil
}
