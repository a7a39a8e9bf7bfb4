package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lv-risk/internal/idgen"
	"lv-risk/internal/model"
	"lv-risk/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

const positionColumns = `
	p.id, p.reference, p.account_id, a.user_id, a.type, p.pair, p.side,
	p.entry_price, p.lot, p.leverage, p.stop_loss, p.take_profit, p.margin,
	p.opened_at, p.closed_at, p.close_price, p.close_reason, p.profit`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (model.Position, error) {
	var p model.Position
	var side string
	var reason *string
	err := row.Scan(&p.ID, &p.Reference, &p.AccountID, &p.UserID, &p.AccountType, &p.Pair, &side,
		&p.EntryPrice, &p.Lot, &p.Leverage, &p.StopLoss, &p.TakeProfit, &p.Margin,
		&p.OpenedAt, &p.ClosedAt, &p.ClosePrice, &reason, &p.Profit)
	if err != nil {
		return p, err
	}
	p.Side = types.Side(side)
	p.CloseReason = types.CloseReasonNone
	if reason != nil {
		p.CloseReason = types.CloseReason(*reason)
	}
	return p, nil
}

func (s *Service) queryPositions(ctx context.Context, where string, args ...any) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx, "select "+positionColumns+`
		from positions p
		join trading_accounts a on a.id = p.account_id
		where p.closed_at is null and `+where+`
		order by p.opened_at, p.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListOpenWithTriggers returns open positions with a stop-loss or take-profit.
func (s *Service) ListOpenWithTriggers(ctx context.Context) ([]model.Position, error) {
	return s.queryPositions(ctx, "(p.stop_loss is not null or p.take_profit is not null)")
}

func (s *Service) ListOpenByAccount(ctx context.Context, accountID string) ([]model.Position, error) {
	return s.queryPositions(ctx, "p.account_id = $1", accountID)
}

// ListOpenInScope returns open positions covered by a. Pair names are stored
// in display form, so the pair match is done after loading.
func (s *Service) ListOpenInScope(ctx context.Context, a model.Alteration) ([]model.Position, error) {
	var (
		candidates []model.Position
		err        error
	)
	switch a.Mode {
	case types.AlterationSingleTrade:
		candidates, err = s.queryPositions(ctx, "p.reference = $1", a.TradeRef)
	case types.AlterationAccountPair:
		candidates, err = s.queryPositions(ctx, "p.account_id = $1", a.AccountID)
	case types.AlterationPairAccountType:
		candidates, err = s.queryPositions(ctx, "lower(a.type) = $1", strings.ToLower(a.AccountType))
	default:
		return nil, fmt.Errorf("unknown alteration mode %q", a.Mode)
	}
	if err != nil {
		return nil, err
	}
	out := candidates[:0]
	for _, p := range candidates {
		if a.Covers(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Service) ListAccountsWithOpenPositions(ctx context.Context) ([]model.Account, error) {
	rows, err := s.pool.Query(ctx, `
		select a.id, a.user_id, a.type, a.balance, a.leverage, a.currency
		from trading_accounts a
		where exists (select 1 from positions p where p.account_id = a.id and p.closed_at is null)
		order by a.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Account
	for rows.Next() {
		var acc model.Account
		if err := rows.Scan(&acc.ID, &acc.UserID, &acc.Type, &acc.Balance, &acc.Leverage, &acc.Currency); err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}

func (s *Service) GetAccount(ctx context.Context, id string) (model.Account, error) {
	var acc model.Account
	err := s.pool.QueryRow(ctx, "select id, user_id, type, balance, leverage, currency from trading_accounts where id = $1", id).
		Scan(&acc.ID, &acc.UserID, &acc.Type, &acc.Balance, &acc.Leverage, &acc.Currency)
	if errors.Is(err, pgx.ErrNoRows) {
		return acc, ErrNotFound
	}
	return acc, err
}

// ClosePosition closes one position in a serializable transaction: the row is
// locked, its open state re-checked, and the realized P&L credited to the
// account with a matching transaction-log entry. Any failure rolls back all
// three writes.
func (s *Service) ClosePosition(ctx context.Context, req CloseRequest) (CloseResult, error) {
	if err := validateClose(req); err != nil {
		return CloseResult{}, err
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return CloseResult{}, err
	}
	defer tx.Rollback(ctx)

	pos, err := scanPosition(tx.QueryRow(ctx, "select "+positionColumns+`
		from positions p
		join trading_accounts a on a.id = p.account_id
		where p.id = $1
		for update of p`, req.PositionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CloseResult{}, ErrNotFound
		}
		return CloseResult{}, fmt.Errorf("lock position: %w", err)
	}
	if !pos.IsOpen() {
		return CloseResult{Position: pos}, nil
	}

	res := applyClose(&pos, req)

	var balance decimal.Decimal
	if err := tx.QueryRow(ctx, "update trading_accounts set balance = balance + $1 where id = $2 returning balance", res.Amount, pos.AccountID).Scan(&balance); err != nil {
		return CloseResult{}, fmt.Errorf("credit account: %w", err)
	}
	if _, err := tx.Exec(ctx, "update positions set closed_at = $1, close_price = $2, close_reason = $3, profit = $4 where id = $5",
		*pos.ClosedAt, *pos.ClosePrice, string(pos.CloseReason), res.Amount, pos.ID); err != nil {
		return CloseResult{}, fmt.Errorf("close position: %w", err)
	}
	if _, err := tx.Exec(ctx, "insert into account_transactions (id, account_id, position_id, kind, amount, balance_after, created_at) values ($1,$2,$3,$4,$5,$6,$7)",
		idgen.New(), pos.AccountID, pos.ID, TxPositionClose, res.Amount, balance, *pos.ClosedAt); err != nil {
		return CloseResult{}, fmt.Errorf("record transaction: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return CloseResult{}, err
	}
	return CloseResult{Position: pos, Profit: res, Balance: balance, Closed: true}, nil
}
