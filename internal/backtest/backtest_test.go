package backtest

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tconn93/Day-trader/internal/ledger"
	"github.com/tconn93/Day-trader/internal/marketdata"
)

type stubProvider struct {
	bars []marketdata.Bar
}

func (s *stubProvider) GetQuote(context.Context, string) (*marketdata.Quote, error) {
	return nil, marketdata.ErrUpstreamUnavailable
}

func (s *stubProvider) GetMultipleQuotes(context.Context, []string) map[string]*marketdata.Quote {
	return nil
}

func (s *stubProvider) GetHistorical(context.Context, string, string, string) ([]marketdata.Bar, error) {
	if s.bars == nil {
		return nil, marketdata.ErrUpstreamUnavailable
	}
	return s.bars, nil
}

// waveBars builds 60 daily bars oscillating around 100 so the close
// crosses its 20-bar SMA repeatedly.
func waveBars(start time.Time) []marketdata.Bar {
	bars := make([]marketdata.Bar, 60)
	for i := range bars {
		price := 100 + 10*math.Sin(float64(i)/6)
		bars[i] = marketdata.Bar{
			Timestamp: start.AddDate(0, 0, i),
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    1_000_000,
		}
	}
	return bars
}

func newTestEngine(t *testing.T, bars []marketdata.Bar) (*Engine, *ledger.Store, *ledger.Algorithm) {
	t.Helper()
	store, err := ledger.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.EnsureUser(ctx, "u1", "u1@example.com"))
	algo, err := store.CreateAlgorithm(ctx, "u1", "SMA cross", "")
	require.NoError(t, err)

	return NewEngine(store, &stubProvider{bars: bars}, nil), store, algo
}

func addRule(t *testing.T, store *ledger.Store, algoID, ruleType, field, op, value, action string) {
	t.Helper()
	_, err := store.CreateRule(context.Background(), &ledger.Rule{
		AlgorithmID: algoID, RuleType: ruleType,
		ConditionField: field, ConditionOperator: op, ConditionValue: value,
		Action: action, OrderIndex: -1,
	})
	require.NoError(t, err)
}

func smaCrossRequest(algoID string, start time.Time) Request {
	return Request{
		AlgorithmID:    algoID,
		UserID:         "u1",
		Symbol:         "AAPL",
		StartDate:      start,
		EndDate:        start.AddDate(0, 0, 59),
		InitialCapital: decimal.NewFromInt(100000),
		Interval:       "1d",
	}
}

func TestDateValidation(t *testing.T) {
	e, _, algo := newTestEngine(t, nil)
	ctx := context.Background()

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := e.Run(ctx, Request{
		AlgorithmID: algo.ID, UserID: "u1", Symbol: "AAPL",
		StartDate: start, EndDate: start.AddDate(0, 0, -10),
	})
	assert.ErrorIs(t, err, ErrBadDateRange)

	_, err = e.Run(ctx, Request{
		AlgorithmID: algo.ID, UserID: "u1", Symbol: "AAPL",
		StartDate: start, EndDate: time.Now().AddDate(0, 0, 7),
	})
	assert.ErrorIs(t, err, ErrBadDateRange)
}

func TestEmptyWindowFails(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	e, _, algo := newTestEngine(t, waveBars(start))
	ctx := context.Background()

	// A window before any bar yields no data.
	_, err := e.Run(ctx, Request{
		AlgorithmID: algo.ID, UserID: "u1", Symbol: "AAPL",
		StartDate: start.AddDate(-1, 0, 0), EndDate: start.AddDate(0, -6, 0),
		InitialCapital: decimal.NewFromInt(100000),
	})
	assert.ErrorIs(t, err, ErrNoBars)
}

func TestSMACrossStrategy(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	e, store, algo := newTestEngine(t, waveBars(start))
	ctx := context.Background()

	addRule(t, store, algo.ID, ledger.RuleTypeEntry, "price", ">", "sma_20", "buy:max")
	addRule(t, store, algo.ID, ledger.RuleTypeExit, "price", "<", "sma_20", "sell:all")

	record, err := e.Run(ctx, smaCrossRequest(algo.ID, start))
	require.NoError(t, err)
	require.NotZero(t, record.ID)

	var results Results
	require.NoError(t, json.Unmarshal([]byte(record.ResultsJSON), &results))

	assert.Len(t, results.EquityCurve, 60)
	assert.GreaterOrEqual(t, record.TotalTrades, 1)
	assert.LessOrEqual(t, record.TotalTrades, 30)
	assert.GreaterOrEqual(t, record.MaxDrawdown, 0.0)

	// Every sell pairs with a preceding buy and the ledger never goes
	// short.
	var open int64
	for _, tr := range results.Trades {
		switch tr.Type {
		case ledger.SideBuy:
			assert.Zero(t, open, "buy while position open")
			open = tr.Quantity
		case ledger.SideSell:
			assert.Equal(t, open, tr.Quantity)
			open = 0
		}
	}
	assert.Zero(t, open)

	// Metric columns match the blob.
	assert.Equal(t, results.Metrics.TotalTrades, record.TotalTrades)
	assert.Equal(t, record.FinalCapital.StringFixed(2), results.Metrics.FinalCapital.StringFixed(2))
}

func TestDeterminism(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	e, store, algo := newTestEngine(t, waveBars(start))
	ctx := context.Background()

	addRule(t, store, algo.ID, ledger.RuleTypeEntry, "price", ">", "sma_20", "buy:max")
	addRule(t, store, algo.ID, ledger.RuleTypeExit, "price", "<", "sma_20", "sell:all")

	first, err := e.Run(ctx, smaCrossRequest(algo.ID, start))
	require.NoError(t, err)
	second, err := e.Run(ctx, smaCrossRequest(algo.ID, start))
	require.NoError(t, err)

	assert.Equal(t, first.ResultsJSON, second.ResultsJSON)
	assert.Equal(t, first.TotalTrades, second.TotalTrades)
	assert.Equal(t, first.SharpeRatio, second.SharpeRatio)
	assert.Equal(t, first.MaxDrawdown, second.MaxDrawdown)
}

func TestOpenPositionClosedAtEnd(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// Steadily rising market: the entry fires and the exit never does.
	bars := make([]marketdata.Bar, 30)
	for i := range bars {
		price := 100 + float64(i)
		bars[i] = marketdata.Bar{
			Timestamp: start.AddDate(0, 0, i),
			Open:      price, High: price, Low: price, Close: price,
			Volume: 1_000_000,
		}
	}

	e, store, algo := newTestEngine(t, bars)
	ctx := context.Background()
	addRule(t, store, algo.ID, ledger.RuleTypeEntry, "price", ">", "50", "buy:10")
	addRule(t, store, algo.ID, ledger.RuleTypeExit, "price", "<", "0", "sell:all")

	record, err := e.Run(ctx, Request{
		AlgorithmID: algo.ID, UserID: "u1", Symbol: "AAPL",
		StartDate: start, EndDate: start.AddDate(0, 0, 29),
		InitialCapital: decimal.NewFromInt(100000),
	})
	require.NoError(t, err)

	var results Results
	require.NoError(t, json.Unmarshal([]byte(record.ResultsJSON), &results))
	require.Len(t, results.Trades, 2)

	last := results.Trades[1]
	assert.Equal(t, ledger.SideSell, last.Type)
	assert.Equal(t, "End of backtest period", last.Reason)

	// Bought 10 at 100 on the first bar, closed at 129: P/L = 290.
	assert.Equal(t, "290.00", last.PL.StringFixed(2))
	assert.Equal(t, "100290.00", record.FinalCapital.StringFixed(2))
	assert.Equal(t, "290.00", record.TotalReturn.StringFixed(2))
	assert.Equal(t, 1, record.TotalTrades)
	assert.Equal(t, 1, record.WinningTrades)
}

func TestPartialSellLeavesPositionOpen(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]marketdata.Bar, 10)
	for i := range bars {
		bars[i] = marketdata.Bar{
			Timestamp: start.AddDate(0, 0, i),
			Open:      100, High: 100, Low: 100, Close: 100,
			Volume: 1_000_000,
		}
	}

	e, store, algo := newTestEngine(t, bars)
	ctx := context.Background()
	addRule(t, store, algo.ID, ledger.RuleTypeEntry, "price", ">", "0", "buy:10")
	addRule(t, store, algo.ID, ledger.RuleTypeExit, "position.quantity", ">", "5", "sell:50%")

	record, err := e.Run(ctx, Request{
		AlgorithmID: algo.ID, UserID: "u1", Symbol: "AAPL",
		StartDate: start, EndDate: start.AddDate(0, 0, 9),
		InitialCapital: decimal.NewFromInt(100000),
	})
	require.NoError(t, err)

	var results Results
	require.NoError(t, json.Unmarshal([]byte(record.ResultsJSON), &results))
	require.Len(t, results.Trades, 3)

	// Buy 10, sell half, and the remaining 5 shares stay open until the
	// end-of-period close-out.
	assert.Equal(t, ledger.SideBuy, results.Trades[0].Type)
	assert.Equal(t, int64(10), results.Trades[0].Quantity)
	assert.Equal(t, ledger.SideSell, results.Trades[1].Type)
	assert.Equal(t, int64(5), results.Trades[1].Quantity)
	assert.Empty(t, results.Trades[1].Reason)
	assert.Equal(t, ledger.SideSell, results.Trades[2].Type)
	assert.Equal(t, int64(5), results.Trades[2].Quantity)
	assert.Equal(t, "End of backtest period", results.Trades[2].Reason)

	assert.Equal(t, "100000.00", record.FinalCapital.StringFixed(2))
}

func TestRepeatBuysIgnoredWhilePositionOpen(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]marketdata.Bar, 10)
	for i := range bars {
		bars[i] = marketdata.Bar{
			Timestamp: start.AddDate(0, 0, i),
			Open:      100, High: 100, Low: 100, Close: 100,
			Volume: 1_000_000,
		}
	}

	e, store, algo := newTestEngine(t, bars)
	ctx := context.Background()
	addRule(t, store, algo.ID, ledger.RuleTypeEntry, "price", ">", "0", "buy:10")

	record, err := e.Run(ctx, Request{
		AlgorithmID: algo.ID, UserID: "u1", Symbol: "AAPL",
		StartDate: start, EndDate: start.AddDate(0, 0, 9),
		InitialCapital: decimal.NewFromInt(100000),
	})
	require.NoError(t, err)

	var results Results
	require.NoError(t, json.Unmarshal([]byte(record.ResultsJSON), &results))

	// One entry on bar 0, one synthetic close at the end; the other nine
	// bars produce nothing.
	require.Len(t, results.Trades, 2)
	assert.Equal(t, ledger.SideBuy, results.Trades[0].Type)
}

func TestManagerBoundsConcurrency(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	e, store, algo := newTestEngine(t, waveBars(start))
	addRule(t, store, algo.ID, ledger.RuleTypeEntry, "price", ">", "sma_20", "buy:max")
	addRule(t, store, algo.ID, ledger.RuleTypeExit, "price", "<", "sma_20", "sell:all")

	m := NewManager(e, 2)
	done := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func() {
			_, err := m.Submit(context.Background(), smaCrossRequest(algo.ID, start))
			done <- err
		}()
	}
	for i := 0; i < 4; i++ {
		require.NoError(t, <-done)
	}
}
