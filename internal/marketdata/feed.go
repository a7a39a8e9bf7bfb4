package marketdata

import (
	"sync"
	"time"

	"lv-risk/internal/model"

	"github.com/shopspring/decimal"
)

// DefaultMaxAge is how old a price may be before the feed refuses it.
const DefaultMaxAge = 10 * time.Second

type quoteSnapshot struct {
	Price decimal.Decimal
	At    time.Time
}

// Feed is the live price source. Keys are normalized pair names and every
// price carries the time it was observed.
type Feed struct {
	mu     sync.RWMutex
	data   map[string]quoteSnapshot
	maxAge time.Duration
	now    func() time.Time
}

func NewFeed(maxAge time.Duration, now func() time.Time) *Feed {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if now == nil {
		now = time.Now
	}
	return &Feed{data: map[string]quoteSnapshot{}, maxAge: maxAge, now: now}
}

func (f *Feed) Set(pair string, price decimal.Decimal, at time.Time) {
	key := model.NormalizePair(pair)
	if key == "" || !price.IsPositive() {
		return
	}
	if at.IsZero() {
		at = f.now()
	}
	f.mu.Lock()
	if cur, ok := f.data[key]; !ok || !at.Before(cur.At) {
		f.data[key] = quoteSnapshot{Price: price, At: at}
	}
	f.mu.Unlock()
}

// Price returns the latest price for pair if it is fresh enough.
func (f *Feed) Price(pair string) (decimal.Decimal, bool) {
	f.mu.RLock()
	q, ok := f.data[model.NormalizePair(pair)]
	f.mu.RUnlock()
	if !ok || f.stale(q.At) {
		return decimal.Zero, false
	}
	return q.Price, true
}

// Snapshot copies every fresh price. Stale entries are left out so that
// callers treat them as missing.
func (f *Feed) Snapshot() map[string]decimal.Decimal {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(f.data))
	for k, q := range f.data {
		if f.stale(q.At) {
			continue
		}
		out[k] = q.Price
	}
	return out
}

func (f *Feed) stale(at time.Time) bool {
	return f.now().Sub(at) > f.maxAge
}
