package ledger

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedUser(t *testing.T, s *Store, id string) {
	t.Helper()
	require.NoError(t, s.EnsureUser(context.Background(), id, id+"@example.com"))
}

func TestAccountLazyCreation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "u1")

	a, err := s.GetOrCreateAccount(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, a.Balance.Equal(DefaultInitialBalance))
	assert.True(t, a.InitialBalance.Equal(DefaultInitialBalance))

	// Second call returns the same account.
	b, err := s.GetOrCreateAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
}

func TestAccountConcurrentFirstAccess(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "u1")

	// Both losers of the insert race must still get the one account row.
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.GetOrCreateAccount(ctx, "u1")
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	var count int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM paper_accounts WHERE user_id = ?`, "u1")
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 1, count)
}

func TestEnsureUserIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureUser(ctx, "u1", "first@example.com"))
	require.NoError(t, s.EnsureUser(ctx, "u1", "second@example.com"))

	u, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "first@example.com", u.Email)
}

func TestAlgorithmCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "u1")

	algo, err := s.CreateAlgorithm(ctx, "u1", "Momentum", "buy strength")
	require.NoError(t, err)
	require.NotEmpty(t, algo.ID)
	assert.False(t, algo.IsActive)

	got, err := s.GetAlgorithm(ctx, algo.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Momentum", got.Name)

	// Ownership check: another user sees nothing.
	_, err = s.GetAlgorithm(ctx, algo.ID, "u2")
	assert.ErrorIs(t, err, ErrNotFound)

	updated, err := s.UpdateAlgorithm(ctx, algo.ID, "u1", "Momentum v2", "tweaked")
	require.NoError(t, err)
	assert.Equal(t, "Momentum v2", updated.Name)

	toggled, err := s.ToggleAlgorithm(ctx, algo.ID, "u1")
	require.NoError(t, err)
	assert.True(t, toggled.IsActive)

	list, err := s.ListAlgorithms(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, s.DeleteAlgorithm(ctx, algo.ID, "u1"))
	_, err = s.GetAlgorithm(ctx, algo.ID, "u1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRuleOrderingAndCascade(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "u1")

	algo, err := s.CreateAlgorithm(ctx, "u1", "Ordered", "")
	require.NoError(t, err)

	// Explicit index first, then two auto-appended ones.
	_, err = s.CreateRule(ctx, &Rule{
		AlgorithmID: algo.ID, RuleType: RuleTypeEntry,
		ConditionField: "price", ConditionOperator: ">", ConditionValue: "100",
		Action: "buy:10", OrderIndex: 5,
	})
	require.NoError(t, err)

	for _, action := range []string{"sell:all", "buy:max"} {
		_, err = s.CreateRule(ctx, &Rule{
			AlgorithmID: algo.ID, RuleType: RuleTypeExit,
			ConditionField: "price", ConditionOperator: "<", ConditionValue: "90",
			Action: action, OrderIndex: -1,
		})
		require.NoError(t, err)
	}

	rules, err := s.ListRules(ctx, algo.ID)
	require.NoError(t, err)
	require.Len(t, rules, 3)
	assert.Equal(t, 5, rules[0].OrderIndex)
	assert.Equal(t, 6, rules[1].OrderIndex)
	assert.Equal(t, 7, rules[2].OrderIndex)
	assert.Equal(t, "sell:all", rules[1].Action)

	// Deleting the algorithm cascades to its rules.
	require.NoError(t, s.DeleteAlgorithm(ctx, algo.ID, "u1"))
	rules, err = s.ListRules(ctx, algo.ID)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestRuleUpdateAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "u1")

	algo, err := s.CreateAlgorithm(ctx, "u1", "A", "")
	require.NoError(t, err)

	r, err := s.CreateRule(ctx, &Rule{
		AlgorithmID: algo.ID, RuleType: RuleTypeEntry,
		ConditionField: "rsi", ConditionOperator: "<", ConditionValue: "30",
		Action: "buy:10", OrderIndex: -1,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, r.OrderIndex)

	r.ConditionValue = "25"
	r.Action = "buy:20"
	updated, err := s.UpdateRule(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, "25", updated.ConditionValue)
	assert.Equal(t, "buy:20", updated.Action)

	require.NoError(t, s.DeleteRule(ctx, r.ID, algo.ID))
	assert.ErrorIs(t, s.DeleteRule(ctx, r.ID, algo.ID), ErrNotFound)
}

func TestPositionUpsertKeepsOneRowPerSymbol(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "u1")

	a, err := s.GetOrCreateAccount(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := UpsertPositionTx(ctx, tx, a.ID, "AAPL", 10, decimal.NewFromInt(150)); err != nil {
			return err
		}
		return UpsertPositionTx(ctx, tx, a.ID, "AAPL", 16, decimal.NewFromInt(155))
	}))

	positions, err := s.ListPositions(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, int64(16), positions[0].Quantity)
	assert.Equal(t, "155.00", positions[0].AveragePrice.StringFixed(2))

	require.NoError(t, s.WithTx(ctx, func(tx *sql.Tx) error {
		return DeletePositionTx(ctx, tx, a.ID, "AAPL")
	}))
	_, err = s.GetPosition(ctx, a.ID, "AAPL")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBacktestPersistence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "u1")

	algo, err := s.CreateAlgorithm(ctx, "u1", "BT", "")
	require.NoError(t, err)

	bt := &Backtest{
		UserID:             "u1",
		AlgorithmID:        algo.ID,
		Symbol:             "AAPL",
		StartDate:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:            time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		InitialCapital:     decimal.NewFromInt(100000),
		FinalCapital:       decimal.NewFromInt(105000),
		TotalReturn:        decimal.NewFromInt(5000),
		TotalReturnPercent: decimal.NewFromInt(5),
		TotalTrades:        3,
		WinningTrades:      2,
		LosingTrades:       1,
		WinRate:            66.7,
		MaxDrawdown:        4.2,
		SharpeRatio:        1.1,
		ResultsJSON:        `{"trades":[]}`,
	}
	id, err := s.InsertBacktest(ctx, bt)
	require.NoError(t, err)

	got, err := s.GetBacktest(ctx, id, "u1")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", got.Symbol)
	assert.Equal(t, 3, got.TotalTrades)
	assert.JSONEq(t, `{"trades":[]}`, got.ResultsJSON)

	_, err = s.GetBacktest(ctx, id, "intruder")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := s.ListBacktests(ctx, algo.ID, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].ResultsJSON)
}

func TestWatchlist(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "u1")

	require.NoError(t, s.AddToWatchlist(ctx, "u1", "AAPL"))
	require.NoError(t, s.AddToWatchlist(ctx, "u1", "AAPL")) // duplicate ignored
	require.NoError(t, s.AddToWatchlist(ctx, "u1", "TSLA"))

	entries, err := s.ListWatchlist(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "AAPL", entries[0].Symbol)

	require.NoError(t, s.RemoveFromWatchlist(ctx, "u1", "AAPL"))
	entries, err = s.ListWatchlist(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
