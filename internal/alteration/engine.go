// Package alteration runs time-bounded price overrides. An alteration moves
// the effective price of its scope linearly from a start to a target price
// and, when it completes, can force-close the positions it covered.
package alteration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"lv-risk/internal/idgen"
	"lv-risk/internal/marketdata"
	"lv-risk/internal/metrics"
	"lv-risk/internal/model"
	"lv-risk/internal/types"

	"github.com/shopspring/decimal"
)

var (
	ErrDuplicateScope    = errors.New("an alteration is already active for this scope")
	ErrInvalidAlteration = errors.New("invalid alteration")
	ErrProtected         = errors.New("alteration is protected")
	ErrNotFound          = errors.New("alteration not found")
)

type Options struct {
	Now              func() time.Time
	Logger           *slog.Logger
	Metrics          *metrics.Metrics
	CandleVolatility float64
}

type Engine struct {
	store      Store
	now        func() time.Time
	logger     *slog.Logger
	metrics    *metrics.Metrics
	volatility float64

	// createMu serializes mutations so the duplicate check and the insert
	// observe the same state. mu guards idx and is never held across I/O.
	createMu sync.Mutex
	mu       sync.RWMutex
	idx      *index
	// backlog holds completions found outside Refresh.
	backlog  []Completion
}

func NewEngine(store Store, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.CandleVolatility <= 0 {
		opts.CandleVolatility = marketdata.DefaultCandleVolatility
	}
	return &Engine{
		store:      store,
		now:        opts.Now,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		volatility: opts.CandleVolatility,
		idx:        newIndex(),
	}
}

// Load replaces the in-memory index with what the store holds.
func (e *Engine) Load(ctx context.Context) error {
	recs, err := e.store.List(ctx)
	if err != nil {
		return fmt.Errorf("load alterations: %w", err)
	}
	idx := newIndex()
	for _, a := range recs {
		if !idx.Put(a) {
			e.logger.Warn("duplicate alteration scope in storage", "id", a.ID, "scope", a.ScopeKey())
		}
	}
	e.mu.Lock()
	e.idx = idx
	n := idx.Len()
	e.mu.Unlock()
	e.metrics.SetActiveAlterations(n)
	e.logger.Info("alterations loaded", "count", n)
	return nil
}

// Create validates a, fills ID and timestamps, and registers it. A second
// alteration for an occupied scope key fails with ErrDuplicateScope.
func (e *Engine) Create(ctx context.Context, a model.Alteration) (model.Alteration, error) {
	now := e.now()
	a = normalize(a)
	if err := validate(a); err != nil {
		return model.Alteration{}, err
	}
	if a.ID == "" {
		a.ID = idgen.New()
	}
	if a.StartedAt == 0 {
		a.StartedAt = now.Unix()
	}
	a.CreatedAt = now.UTC()

	e.createMu.Lock()
	defer e.createMu.Unlock()

	// A record whose time has run out no longer holds its scope, even if
	// Refresh has not collected it yet. It is completed here and its
	// completion handed to the next Refresh.
	e.mu.Lock()
	cur, taken := e.idx.Get(a.ScopeKey())
	if taken && !Interpolate(cur, now).Completed {
		e.mu.Unlock()
		return model.Alteration{}, ErrDuplicateScope
	}
	if taken {
		e.idx.Remove(cur.ID)
	}
	e.mu.Unlock()
	if taken {
		done := e.complete(ctx, []model.Alteration{cur})
		e.mu.Lock()
		e.backlog = append(e.backlog, done...)
		e.mu.Unlock()
	}
	if err := e.store.Insert(ctx, a); err != nil {
		return model.Alteration{}, err
	}

	e.mu.Lock()
	e.idx.Put(a)
	n := e.idx.Len()
	e.mu.Unlock()
	e.metrics.SetActiveAlterations(n)
	e.logger.Info("alteration created", "id", a.ID, "mode", a.Mode, "scope", a.ScopeKey(),
		"start", a.StartPrice.String(), "target", a.TargetPrice.String(), "duration_sec", a.DurationSec)
	return a, nil
}

// Delete removes an active alteration. Tutorial alterations are refused.
func (e *Engine) Delete(ctx context.Context, id string) error {
	e.createMu.Lock()
	defer e.createMu.Unlock()

	e.mu.RLock()
	a, ok := e.idx.ByID(id)
	e.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	if a.Protected() {
		return ErrProtected
	}
	if err := e.store.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	e.mu.Lock()
	e.idx.Remove(id)
	n := e.idx.Len()
	e.mu.Unlock()
	e.metrics.SetActiveAlterations(n)
	e.logger.Info("alteration deleted", "id", id)
	return nil
}

// List returns active alterations, soonest to complete first.
func (e *Engine) List() []model.Alteration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.idx.All()
}

// Override is an effective price produced by an alteration.
type Override struct {
	Alteration model.Alteration
	Price      decimal.Decimal
	Fraction   decimal.Decimal
}

// Resolve finds the alteration governing pos at now. The most specific scope
// wins: single trade, then account and pair, then pair and account type.
// Completed alterations are skipped; Refresh collects them.
func (e *Engine) Resolve(pos model.Position, now time.Time) (Override, bool) {
	keys := make([]model.ScopeKey, 0, 3)
	if pos.Reference != "" {
		keys = append(keys, model.TradeScope(pos.Reference))
	}
	if pos.AccountID != "" {
		keys = append(keys, model.AccountPairScope(pos.AccountID, pos.Pair))
	}
	if pos.AccountType != "" {
		keys = append(keys, model.PairTypeScope(pos.Pair, pos.AccountType))
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, key := range keys {
		a, ok := e.idx.Get(key)
		if !ok {
			continue
		}
		p := Interpolate(a, now)
		if p.Completed {
			continue
		}
		return Override{Alteration: a, Price: p.Price, Fraction: p.Fraction}, true
	}
	return Override{}, false
}

// Completion is an alteration that reached its end during Refresh.
type Completion struct {
	Alteration model.Alteration
	// ClosePrice is the target price; positions covered by the alteration
	// are force-closed at it when ForceClose is set.
	ClosePrice decimal.Decimal
	ForceClose bool
}

// Refresh removes every alteration that has completed by now and reports it.
// Storage failures are logged; the record is still dropped from the index so
// a completion is reported once per process.
func (e *Engine) Refresh(ctx context.Context, now time.Time) []Completion {
	e.mu.Lock()
	expired := e.idx.PopExpired(now)
	backlog := e.backlog
	e.backlog = nil
	n := e.idx.Len()
	e.mu.Unlock()
	if len(expired) == 0 && len(backlog) == 0 {
		return nil
	}
	e.metrics.SetActiveAlterations(n)
	return append(backlog, e.complete(ctx, expired)...)
}

// complete deletes records that are already out of the index and builds their
// completions.
func (e *Engine) complete(ctx context.Context, expired []model.Alteration) []Completion {
	out := make([]Completion, 0, len(expired))
	for _, a := range expired {
		if err := e.store.Delete(ctx, a.ID); err != nil && !errors.Is(err, ErrNotFound) {
			e.logger.Error("alteration cleanup failed", "id", a.ID, "error", err)
		}
		degenerate := Degenerate(a)
		if degenerate {
			e.logger.Warn("degenerate alteration discarded", "id", a.ID, "duration_sec", a.DurationSec)
		}
		out = append(out, Completion{
			Alteration: a,
			ClosePrice: a.TargetPrice,
			ForceClose: a.CloseOnComplete && !degenerate,
		})
	}
	return out
}

type CandleRequest struct {
	AccountID   string
	AccountType string
	Pair        string
	Interval    time.Duration
	PrevClose   *float64
}

// Candle builds a synthetic bar when a chart-visible alteration is running
// for the account's view of the pair. The account-scoped alteration is
// consulted before the pair and account-type one; single-trade alterations
// never drive charts. ok is false when the real feed should be used.
func (e *Engine) Candle(req CandleRequest, now time.Time) (marketdata.Candle, bool, error) {
	keys := make([]model.ScopeKey, 0, 2)
	if req.AccountID != "" {
		keys = append(keys, model.AccountPairScope(req.AccountID, req.Pair))
	}
	if req.AccountType != "" {
		keys = append(keys, model.PairTypeScope(req.Pair, req.AccountType))
	}

	e.mu.RLock()
	var (
		price float64
		found bool
	)
	for _, key := range keys {
		a, ok := e.idx.Get(key)
		if !ok || !a.ShowOnChart || a.Mode == types.AlterationSingleTrade {
			continue
		}
		p := Interpolate(a, now)
		if p.Completed {
			continue
		}
		price = p.Price.InexactFloat64()
		found = true
		break
	}
	e.mu.RUnlock()
	if !found {
		return marketdata.Candle{}, false, nil
	}

	c, err := marketdata.SyntheticCandle(marketdata.SyntheticParams{
		Pair:       model.NormalizePair(req.Pair),
		Interval:   req.Interval,
		Now:        now,
		Price:      price,
		PrevClose:  req.PrevClose,
		Volatility: e.volatility,
	})
	if err != nil {
		return marketdata.Candle{}, false, err
	}
	return c, true, nil
}

func normalize(a model.Alteration) model.Alteration {
	a.TradeRef = strings.TrimSpace(a.TradeRef)
	a.Pair = strings.TrimSpace(a.Pair)
	a.AccountType = strings.ToLower(strings.TrimSpace(a.AccountType))
	a.AccountID = strings.TrimSpace(a.AccountID)
	a.Reason = strings.TrimSpace(a.Reason)
	return a
}

func validate(a model.Alteration) error {
	switch a.Mode {
	case types.AlterationSingleTrade:
		if a.TradeRef == "" {
			return fmt.Errorf("%w: trade_ref is required", ErrInvalidAlteration)
		}
	case types.AlterationAccountPair:
		if a.AccountID == "" || a.Pair == "" {
			return fmt.Errorf("%w: account_id and pair are required", ErrInvalidAlteration)
		}
	case types.AlterationPairAccountType:
		if a.Pair == "" || a.AccountType == "" {
			return fmt.Errorf("%w: pair and account_type are required", ErrInvalidAlteration)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidAlteration, a.Mode)
	}
	if a.DurationSec <= 0 {
		return fmt.Errorf("%w: duration_sec must be positive", ErrInvalidAlteration)
	}
	if !a.StartPrice.IsPositive() || !a.TargetPrice.IsPositive() {
		return fmt.Errorf("%w: start_price and target_price must be positive", ErrInvalidAlteration)
	}
	return nil
}
