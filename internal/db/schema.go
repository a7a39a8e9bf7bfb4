package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is idempotent; it creates what the risk engine reads and writes.
var schema = []string{
	`create table if not exists trading_accounts (
		id text primary key,
		user_id text not null,
		type text not null,
		balance numeric not null default 0,
		leverage integer not null default 100,
		currency text not null default 'USD'
	)`,
	`create table if not exists trading_pairs (
		pair_key text primary key,
		name text not null,
		lot_size numeric not null default 1,
		digits integer,
		spread numeric,
		pip_value numeric,
		margin_percent numeric not null default 100,
		min_volume numeric not null default 0.01,
		max_volume numeric not null default 100
	)`,
	`create table if not exists positions (
		id text primary key,
		reference text not null,
		account_id text not null references trading_accounts(id),
		pair text not null,
		side text not null check (side in ('buy', 'sell')),
		entry_price numeric not null,
		lot numeric not null,
		leverage integer not null default 100,
		stop_loss numeric,
		take_profit numeric,
		margin numeric not null default 0,
		opened_at timestamptz not null default now(),
		closed_at timestamptz,
		close_price numeric,
		close_reason text,
		profit numeric
	)`,
	`create index if not exists positions_open_account_idx on positions (account_id) where closed_at is null`,
	`create index if not exists positions_reference_idx on positions (reference)`,
	`create table if not exists price_alterations (
		id text primary key,
		scope_key text not null unique,
		mode text not null,
		trade_ref text not null default '',
		pair text not null default '',
		account_type text not null default '',
		account_id text not null default '',
		start_price numeric not null,
		target_price numeric not null,
		duration_sec bigint not null,
		started_at bigint not null,
		close_on_complete boolean not null default false,
		show_on_chart boolean not null default false,
		reason text not null default '',
		created_at timestamptz not null default now()
	)`,
	`create table if not exists account_transactions (
		id text primary key,
		account_id text not null references trading_accounts(id),
		position_id text references positions(id),
		kind text not null,
		amount numeric not null,
		balance_after numeric not null,
		created_at timestamptz not null
	)`,
}

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
