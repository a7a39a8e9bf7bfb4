package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lv-risk/internal/model"
	"lv-risk/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

var unitPair = model.PairConfig{Name: "EUR/USD", LotSize: decimal.NewFromInt(1)}

func seeded() *Memory {
	m := NewMemory()
	m.PutAccount(model.Account{ID: "acc-1", UserID: "u-1", Type: "demo", Balance: d("1000"), Leverage: 100})
	m.PutPosition(model.Position{ID: "p1", Reference: "T1", AccountID: "acc-1", Pair: "EUR/USD", Side: types.SideBuy, EntryPrice: d("100"), Lot: d("1"), Margin: d("10")})
	m.PutPosition(model.Position{ID: "p2", Reference: "T2", AccountID: "acc-1", Pair: "XAUUSD", Side: types.SideSell, EntryPrice: d("2000"), Lot: d("1"), TakeProfit: decimal.NewNullDecimal(d("1900"))})
	return m
}

func TestClosePositionCreditsBalance(t *testing.T) {
	t.Parallel()

	m := seeded()
	ctx := context.Background()
	at := time.Unix(1_700_000_000, 0)

	res, err := m.ClosePosition(ctx, CloseRequest{PositionID: "p1", Price: d("150"), Reason: types.CloseReasonExpire, Pair: unitPair, At: at})
	require.NoError(t, err)
	assert.True(t, res.Closed)
	assert.Equal(t, "+50.00", res.Profit.Formatted)
	assert.True(t, res.Balance.Equal(d("1050")))
	assert.Equal(t, types.CloseReasonExpire, res.Position.CloseReason)
	assert.Equal(t, "u-1", res.Position.UserID)
	require.NotNil(t, res.Position.ClosedAt)
	assert.True(t, res.Position.ClosedAt.Equal(at))

	acc, err := m.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(d("1050")))

	txs := m.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, TxPositionClose, txs[0].Kind)
	assert.True(t, txs[0].BalanceAfter.Equal(d("1050")))
}

func TestClosePositionIsIdempotent(t *testing.T) {
	t.Parallel()

	m := seeded()
	ctx := context.Background()
	req := CloseRequest{PositionID: "p1", Price: d("90"), Reason: types.CloseReasonStopLoss, Pair: unitPair}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		closed int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := m.ClosePosition(ctx, req)
			if !assert.NoError(t, err) {
				return
			}
			if res.Closed {
				mu.Lock()
				closed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, closed)

	acc, err := m.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(d("990")))
	assert.Len(t, m.Transactions(), 1)
}

func TestClosePositionFailureWritesNothing(t *testing.T) {
	t.Parallel()

	m := seeded()
	boom := errors.New("serialization failure")
	m.FailClose = func(string) error { return boom }

	_, err := m.ClosePosition(context.Background(), CloseRequest{PositionID: "p1", Price: d("150"), Reason: types.CloseReasonManual, Pair: unitPair})
	assert.ErrorIs(t, err, boom)
	p, _ := m.Position("p1")
	assert.True(t, p.IsOpen())
	assert.Empty(t, m.Transactions())
}

func TestClosePositionValidates(t *testing.T) {
	t.Parallel()

	m := seeded()
	ctx := context.Background()
	_, err := m.ClosePosition(ctx, CloseRequest{PositionID: "p1", Price: d("0"), Reason: types.CloseReasonManual})
	assert.ErrorIs(t, err, ErrInvalidClose)
	_, err = m.ClosePosition(ctx, CloseRequest{PositionID: "p1", Price: d("1"), Reason: types.CloseReasonNone})
	assert.ErrorIs(t, err, ErrInvalidClose)
	_, err = m.ClosePosition(ctx, CloseRequest{PositionID: "p1", Price: d("1"), Reason: types.CloseReasonManual, Pair: model.PairConfig{Name: "EUR/USD"}})
	assert.ErrorIs(t, err, ErrInvalidClose)
	_, err = m.ClosePosition(ctx, CloseRequest{PositionID: "nope", Price: d("1"), Reason: types.CloseReasonManual, Pair: unitPair})
	assert.ErrorIs(t, err, ErrNotFound)

	p, _ := m.Position("p1")
	assert.True(t, p.IsOpen())
}

func TestListings(t *testing.T) {
	t.Parallel()

	m := seeded()
	ctx := context.Background()

	trig, err := m.ListOpenWithTriggers(ctx)
	require.NoError(t, err)
	require.Len(t, trig, 1)
	assert.Equal(t, "p2", trig[0].ID)

	scope, err := m.ListOpenInScope(ctx, model.Alteration{Mode: types.AlterationPairAccountType, Pair: "eurusd", AccountType: "DEMO"})
	require.NoError(t, err)
	require.Len(t, scope, 1)
	assert.Equal(t, "p1", scope[0].ID)

	accs, err := m.ListAccountsWithOpenPositions(ctx)
	require.NoError(t, err)
	assert.Len(t, accs, 1)

	_, err = m.ClosePosition(ctx, CloseRequest{PositionID: "p1", Price: d("100"), Reason: types.CloseReasonManual, Pair: unitPair})
	require.NoError(t, err)
	_, err = m.ClosePosition(ctx, CloseRequest{PositionID: "p2", Price: d("100"), Reason: types.CloseReasonManual, Pair: unitPair})
	require.NoError(t, err)
	accs, err = m.ListAccountsWithOpenPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, accs)
}
