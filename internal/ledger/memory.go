package ledger

import (
	"context"
	"sort"
	"sync"

	"lv-risk/internal/idgen"
	"lv-risk/internal/model"
	"lv-risk/internal/types"
)

// Memory is an in-process ledger with the same close semantics as Service.
type Memory struct {
	mu        sync.Mutex
	accounts  map[string]model.Account
	positions map[string]model.Position
	txs       []Transaction

	// FailClose, when set, is consulted before each close; a non-nil error
	// aborts the close with nothing written.
	FailClose func(positionID string) error
}

func NewMemory() *Memory {
	return &Memory{
		accounts:  map[string]model.Account{},
		positions: map[string]model.Position{},
	}
}

func (m *Memory) PutAccount(acc model.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[acc.ID] = acc
}

// PutPosition stores pos, filling UserID and AccountType from its account.
func (m *Memory) PutPosition(pos model.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if acc, ok := m.accounts[pos.AccountID]; ok {
		pos.UserID = acc.UserID
		pos.AccountType = acc.Type
	}
	if pos.CloseReason == "" {
		pos.CloseReason = types.CloseReasonNone
	}
	m.positions[pos.ID] = pos
}

func (m *Memory) Position(id string) (model.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[id]
	return p, ok
}

func (m *Memory) GetAccount(ctx context.Context, id string) (model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[id]
	if !ok {
		return model.Account{}, ErrNotFound
	}
	return acc, nil
}

func (m *Memory) Transactions() []Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Transaction(nil), m.txs...)
}

func (m *Memory) openWhere(keep func(model.Position) bool) []model.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Position
	for _, p := range m.positions {
		if p.IsOpen() && keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out
}

func (m *Memory) ListOpenWithTriggers(ctx context.Context) ([]model.Position, error) {
	return m.openWhere(model.Position.HasTriggers), nil
}

func (m *Memory) ListOpenByAccount(ctx context.Context, accountID string) ([]model.Position, error) {
	return m.openWhere(func(p model.Position) bool { return p.AccountID == accountID }), nil
}

func (m *Memory) ListOpenInScope(ctx context.Context, a model.Alteration) ([]model.Position, error) {
	return m.openWhere(a.Covers), nil
}

func (m *Memory) ListAccountsWithOpenPositions(ctx context.Context) ([]model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]struct{}{}
	var out []model.Account
	for _, p := range m.positions {
		if !p.IsOpen() {
			continue
		}
		if _, ok := seen[p.AccountID]; ok {
			continue
		}
		acc, ok := m.accounts[p.AccountID]
		if !ok {
			continue
		}
		seen[p.AccountID] = struct{}{}
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ClosePosition(ctx context.Context, req CloseRequest) (CloseResult, error) {
	if err := validateClose(req); err != nil {
		return CloseResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[req.PositionID]
	if !ok {
		return CloseResult{}, ErrNotFound
	}
	if !pos.IsOpen() {
		return CloseResult{Position: pos}, nil
	}
	if m.FailClose != nil {
		if err := m.FailClose(pos.ID); err != nil {
			return CloseResult{}, err
		}
	}
	acc, ok := m.accounts[pos.AccountID]
	if !ok {
		return CloseResult{}, ErrNotFound
	}

	res := applyClose(&pos, req)
	acc.Balance = acc.Balance.Add(res.Amount)
	m.accounts[acc.ID] = acc
	m.positions[pos.ID] = pos
	m.txs = append(m.txs, Transaction{
		ID:           idgen.New(),
		AccountID:    acc.ID,
		PositionID:   pos.ID,
		Kind:         TxPositionClose,
		Amount:       res.Amount,
		BalanceAfter: acc.Balance,
		CreatedAt:    *pos.ClosedAt,
	})
	return CloseResult{Position: pos, Profit: res, Balance: acc.Balance, Closed: true}, nil
}
