package alteration

import (
	"context"
	"sort"
	"sync"
	"time"

	"lv-risk/internal/model"
	"lv-risk/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists alteration records. Insert must refuse a second record with
// the same scope key even when called concurrently from several processes.
type Store interface {
	Insert(ctx context.Context, a model.Alteration) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]model.Alteration, error)
}

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) Insert(ctx context.Context, a model.Alteration) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	key := string(a.ScopeKey())
	if _, err := tx.Exec(ctx, "select pg_advisory_xact_lock(hashtext($1))", key); err != nil {
		return err
	}
	var exists bool
	if err := tx.QueryRow(ctx, "select exists(select 1 from price_alterations where scope_key = $1)", key).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrDuplicateScope
	}
	_, err = tx.Exec(ctx, `
		insert into price_alterations (
			id, scope_key, mode, trade_ref, pair, account_type, account_id,
			start_price, target_price, duration_sec, started_at,
			close_on_complete, show_on_chart, reason, created_at
		) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, a.ID, key, string(a.Mode), a.TradeRef, a.Pair, a.AccountType, a.AccountID,
		a.StartPrice, a.TargetPrice, a.DurationSec, a.StartedAt,
		a.CloseOnComplete, a.ShowOnChart, a.Reason, a.CreatedAt)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PgStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "delete from price_alterations where id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PgStore) List(ctx context.Context) ([]model.Alteration, error) {
	rows, err := s.pool.Query(ctx, `
		select id, mode, trade_ref, pair, account_type, account_id,
			start_price, target_price, duration_sec, started_at,
			close_on_complete, show_on_chart, reason, created_at
		from price_alterations
		order by created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Alteration
	for rows.Next() {
		var a model.Alteration
		var mode string
		if err := rows.Scan(&a.ID, &mode, &a.TradeRef, &a.Pair, &a.AccountType, &a.AccountID,
			&a.StartPrice, &a.TargetPrice, &a.DurationSec, &a.StartedAt,
			&a.CloseOnComplete, &a.ShowOnChart, &a.Reason, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Mode = types.AlterationMode(mode)
		out = append(out, a)
	}
	return out, rows.Err()
}

// MemoryStore keeps records in process. Used by tests and when no database
// is configured.
type MemoryStore struct {
	mu   sync.Mutex
	recs map[string]model.Alteration
	// Delay, when set, is slept inside Insert after the uniqueness check to
	// widen race windows in tests.
	Delay time.Duration
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: map[string]model.Alteration{}}
}

func (s *MemoryStore) Insert(ctx context.Context, a model.Alteration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := a.ScopeKey()
	for _, r := range s.recs {
		if r.ScopeKey() == key {
			return ErrDuplicateScope
		}
	}
	if s.Delay > 0 {
		time.Sleep(s.Delay)
	}
	s.recs[a.ID] = a
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[id]; !ok {
		return ErrNotFound
	}
	delete(s.recs, id)
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]model.Alteration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Alteration, 0, len(s.recs))
	for _, r := range s.recs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
