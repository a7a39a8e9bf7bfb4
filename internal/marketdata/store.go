package marketdata

import (
	"context"
	"errors"
	"sync"
	"time"

	"lv-risk/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrPairNotFound = errors.New("pair not found")

// Catalog supplies read-only contract parameters per pair.
type Catalog interface {
	Pair(ctx context.Context, name string) (model.PairConfig, error)
}

const pairCacheTTL = time.Minute

type cachedPair struct {
	pair     model.PairConfig
	loadedAt time.Time
}

// Store reads pair configs from trading_pairs and caches them briefly.
type Store struct {
	pool *pgxpool.Pool

	mu    sync.Mutex
	cache map[string]cachedPair
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, cache: map[string]cachedPair{}}
}

func (s *Store) Pair(ctx context.Context, name string) (model.PairConfig, error) {
	key := model.NormalizePair(name)
	s.mu.Lock()
	c, ok := s.cache[key]
	s.mu.Unlock()
	if ok && time.Since(c.loadedAt) < pairCacheTTL {
		return c.pair, nil
	}
	var p model.PairConfig
	err := s.pool.QueryRow(ctx, `
		select name, lot_size, digits, spread, pip_value, margin_percent, min_volume, max_volume
		from trading_pairs
		where pair_key = $1
	`, key).Scan(&p.Name, &p.LotSize, &p.Digits, &p.Spread, &p.PipValue, &p.MarginPercent, &p.MinVolume, &p.MaxVolume)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PairConfig{}, ErrPairNotFound
		}
		return model.PairConfig{}, err
	}
	s.mu.Lock()
	s.cache[key] = cachedPair{pair: p, loadedAt: time.Now()}
	s.mu.Unlock()
	return p, nil
}

// StaticCatalog is a fixed in-memory catalog keyed by normalized pair.
type StaticCatalog map[string]model.PairConfig

func NewStaticCatalog(pairs ...model.PairConfig) StaticCatalog {
	c := make(StaticCatalog, len(pairs))
	for _, p := range pairs {
		c[model.NormalizePair(p.Name)] = p
	}
	return c
}

func (c StaticCatalog) Pair(_ context.Context, name string) (model.PairConfig, error) {
	p, ok := c[model.NormalizePair(name)]
	if !ok {
		return model.PairConfig{}, ErrPairNotFound
	}
	return p, nil
}
