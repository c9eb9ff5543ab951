// Package backtest replays an algorithm's rules over historical bars with
// the same evaluator and executor the live engine uses, against an
// in-memory single-position ledger.
package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/tconn93/Day-trader/internal/ledger"
	"github.com/tconn93/Day-trader/internal/marketdata"
	"github.com/tconn93/Day-trader/internal/marketdata/indicator"
	"github.com/tconn93/Day-trader/internal/rules"
	"github.com/tconn93/Day-trader/pkg/bus"
)

const closeOutReason = "End of backtest period"

// Engine runs backtests and persists the completed records.
type Engine struct {
	store  *ledger.Store
	md     marketdata.Provider
	bus    *bus.Publisher
	logger *logrus.Entry
}

func NewEngine(store *ledger.Store, md marketdata.Provider, publisher *bus.Publisher) *Engine {
	return &Engine{
		store:  store,
		md:     md,
		bus:    publisher,
		logger: logrus.WithField("component", "backtest"),
	}
}

// Run executes the backtest and persists the result row. Runs with the
// same inputs and the same historical data are deterministic.
func (e *Engine) Run(ctx context.Context, req Request) (*ledger.Backtest, error) {
	if !req.StartDate.Before(req.EndDate) || req.EndDate.After(time.Now()) {
		return nil, ErrBadDateRange
	}
	if req.InitialCapital.IsZero() {
		req.InitialCapital = ledger.DefaultInitialBalance
	}
	if req.Interval == "" {
		req.Interval = "1d"
	}

	algo, err := e.store.GetAlgorithm(ctx, req.AlgorithmID, req.UserID)
	if err != nil {
		return nil, err
	}
	algoRules, err := e.store.ListRules(ctx, req.AlgorithmID)
	if err != nil {
		return nil, err
	}

	rng := marketdata.RangeFor(req.EndDate.Sub(req.StartDate))
	bars, err := e.md.GetHistorical(ctx, req.Symbol, rng, req.Interval)
	if err != nil {
		return nil, err
	}

	window := filterBars(bars, req.StartDate, req.EndDate)
	if len(window) == 0 {
		return nil, fmt.Errorf("%w: %s %s to %s", ErrNoBars, req.Symbol,
			req.StartDate.Format("2006-01-02"), req.EndDate.Format("2006-01-02"))
	}

	results := e.simulate(algoRules, window, req)
	record, err := e.persist(ctx, req, results)
	if err != nil {
		return nil, err
	}

	e.logger.Infof("backtest %d for algorithm %s (%s): %d trades, return %s",
		record.ID, algo.ID, req.Symbol, results.Metrics.TotalTrades,
		results.Metrics.TotalReturn.StringFixed(2))

	e.bus.PublishBacktest(bus.BacktestEvent{
		BacktestID:  record.ID,
		AlgorithmID: req.AlgorithmID,
		Symbol:      req.Symbol,
		CompletedAt: time.Now().UTC(),
	})
	return record, nil
}

func filterBars(bars []marketdata.Bar, start, end time.Time) []marketdata.Bar {
	// end is inclusive through the whole final day.
	cutoff := end.AddDate(0, 0, 1)
	out := make([]marketdata.Bar, 0, len(bars))
	for _, b := range bars {
		if !b.Timestamp.Before(start) && b.Timestamp.Before(cutoff) {
			out = append(out, b)
		}
	}
	return out
}

// openPosition is the single slot of the backtest ledger.
type openPosition struct {
	quantity     int64
	averagePrice decimal.Decimal
}

func (e *Engine) simulate(algoRules []ledger.Rule, bars []marketdata.Bar, req Request) *Results {
	balance := req.InitialCapital
	var pos *openPosition

	trades := make([]Trade, 0)
	curve := make([]EquityPoint, 0, len(bars))

	for i, bar := range bars {
		price := decimal.NewFromFloat(bar.Close)

		var positionValue decimal.Decimal
		if pos != nil {
			positionValue = price.Mul(decimal.NewFromInt(pos.quantity))
		}
		curve = append(curve, EquityPoint{
			Timestamp:     bar.Timestamp,
			Balance:       balance,
			PositionValue: positionValue,
			TotalValue:    balance.Add(positionValue),
		})

		mctx := &rules.Context{
			Symbol:     req.Symbol,
			Price:      price,
			Open:       decimal.NewFromFloat(bar.Open),
			High:       decimal.NewFromFloat(bar.High),
			Low:        decimal.NewFromFloat(bar.Low),
			Volume:     bar.Volume,
			Balance:    balance,
			Indicators: rollingIndicators(bars, i),
		}
		if i > 0 {
			prev := decimal.NewFromFloat(bars[i-1].Close)
			mctx.Change = price.Sub(prev)
			if !prev.IsZero() {
				mctx.ChangePercent = mctx.Change.Div(prev).Mul(decimal.NewFromInt(100))
			}
		}

		for r := range algoRules {
			rule := &algoRules[r]

			mctx.Balance = balance
			mctx.Position = nil
			if pos != nil {
				mctx.Position = &ledger.Position{
					Symbol:       req.Symbol,
					Quantity:     pos.quantity,
					AveragePrice: pos.averagePrice,
					UnrealizedPL: price.Sub(pos.averagePrice).Mul(decimal.NewFromInt(pos.quantity)),
				}
				if !pos.averagePrice.IsZero() {
					mctx.Position.UnrealizedPLPercent = price.Sub(pos.averagePrice).
						Div(pos.averagePrice).Mul(decimal.NewFromInt(100))
				}
			}

			if !rules.Evaluate(rule, mctx) {
				continue
			}
			intent, err := rules.Execute(rule.Action, mctx)
			if err != nil || intent.Quantity == 0 {
				continue
			}

			switch intent.Side {
			case ledger.SideBuy:
				// One open position per symbol; repeat entries are ignored.
				if pos != nil {
					continue
				}
				cost := price.Mul(decimal.NewFromInt(intent.Quantity))
				if cost.GreaterThan(balance) {
					continue
				}
				balance = balance.Sub(cost)
				pos = &openPosition{quantity: intent.Quantity, averagePrice: price}
				trades = append(trades, Trade{
					Type: ledger.SideBuy, Timestamp: bar.Timestamp,
					Price: price, Quantity: intent.Quantity,
				})

			case ledger.SideSell:
				if pos == nil {
					continue
				}
				qty := intent.Quantity
				if qty > pos.quantity {
					qty = pos.quantity
				}
				proceeds := price.Mul(decimal.NewFromInt(qty))
				balance = balance.Add(proceeds)
				pl := proceeds.Sub(pos.averagePrice.Mul(decimal.NewFromInt(qty)))
				trades = append(trades, Trade{
					Type: ledger.SideSell, Timestamp: bar.Timestamp,
					Price: price, Quantity: qty, PL: pl,
				})
				pos.quantity -= qty
				if pos.quantity == 0 {
					pos = nil
				}
			}
		}
	}

	// Close any position left open at the final bar.
	if pos != nil {
		last := bars[len(bars)-1]
		price := decimal.NewFromFloat(last.Close)
		proceeds := price.Mul(decimal.NewFromInt(pos.quantity))
		balance = balance.Add(proceeds)
		trades = append(trades, Trade{
			Type: ledger.SideSell, Timestamp: last.Timestamp,
			Price: price, Quantity: pos.quantity,
			PL:     proceeds.Sub(pos.averagePrice.Mul(decimal.NewFromInt(pos.quantity))),
			Reason: closeOutReason,
		})
	}

	return &Results{
		Trades:      trades,
		EquityCurve: curve,
		Metrics:     computeMetrics(req.InitialCapital, balance, trades, curve),
	}
}

// rollingIndicators computes the indicator set over the trailing window of
// at most 51 bars ending at i. Indicators without enough history are left
// out.
func rollingIndicators(bars []marketdata.Bar, i int) map[string]float64 {
	lo := i - 50
	if lo < 0 {
		lo = 0
	}
	closes := make([]float64, 0, i-lo+1)
	for _, b := range bars[lo : i+1] {
		closes = append(closes, b.Close)
	}

	out := make(map[string]float64, 3)
	if len(closes) >= 20 {
		out["sma_20"] = indicator.Last(indicator.SMA(closes, 20))
	}
	if len(closes) >= 50 {
		out["sma_50"] = indicator.Last(indicator.SMA(closes, 50))
	}
	if len(closes) >= 15 {
		out["rsi"] = indicator.Last(indicator.RSI(closes, 14))
	}
	return out
}

func computeMetrics(initial, final decimal.Decimal, trades []Trade, curve []EquityPoint) Metrics {
	m := Metrics{
		FinalCapital: final,
		TotalReturn:  final.Sub(initial),
	}
	if !initial.IsZero() {
		m.TotalReturnPercent = m.TotalReturn.Div(initial).Mul(decimal.NewFromInt(100))
	}

	var sumWin, sumLoss float64
	for _, t := range trades {
		if t.Type != ledger.SideSell {
			continue
		}
		m.TotalTrades++
		pl, _ := t.PL.Float64()
		switch {
		case pl > 0:
			m.WinningTrades++
			sumWin += pl
		case pl < 0:
			m.LosingTrades++
			sumLoss += -pl
		}
	}
	if m.TotalTrades > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades) * 100
	}
	if m.WinningTrades > 0 {
		m.AvgWin = sumWin / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = sumLoss / float64(m.LosingTrades)
	}
	if m.AvgLoss > 0 {
		m.ProfitFactor = m.AvgWin / m.AvgLoss
	}

	m.MaxDrawdown = maxDrawdown(curve)
	m.SharpeRatio = sharpe(curve)
	return m
}

func maxDrawdown(curve []EquityPoint) float64 {
	var peak, worst float64
	for _, p := range curve {
		v, _ := p.TotalValue.Float64()
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst * 100
}

// sharpe annualizes the per-step simple returns of total value with a 2%
// yearly risk-free rate.
func sharpe(curve []EquityPoint) float64 {
	if len(curve) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev, _ := curve[i-1].TotalValue.Float64()
		cur, _ := curve[i].TotalValue.Float64()
		if prev == 0 {
			continue
		}
		returns = append(returns, cur/prev-1)
	}
	if len(returns) < 2 {
		return 0
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	if variance == 0 {
		return 0
	}

	rf := 0.02 / 252
	return (mean - rf) / math.Sqrt(variance) * math.Sqrt(252)
}

func (e *Engine) persist(ctx context.Context, req Request, results *Results) (*ledger.Backtest, error) {
	blob, err := json.Marshal(results)
	if err != nil {
		return nil, err
	}

	record := &ledger.Backtest{
		UserID:             req.UserID,
		AlgorithmID:        req.AlgorithmID,
		Symbol:             req.Symbol,
		StartDate:          req.StartDate,
		EndDate:            req.EndDate,
		InitialCapital:     req.InitialCapital,
		FinalCapital:       results.Metrics.FinalCapital,
		TotalReturn:        results.Metrics.TotalReturn,
		TotalReturnPercent: results.Metrics.TotalReturnPercent,
		TotalTrades:        results.Metrics.TotalTrades,
		WinningTrades:      results.Metrics.WinningTrades,
		LosingTrades:       results.Metrics.LosingTrades,
		WinRate:            results.Metrics.WinRate,
		MaxDrawdown:        results.Metrics.MaxDrawdown,
		SharpeRatio:        results.Metrics.SharpeRatio,
		ResultsJSON:        string(blob),
	}
	id, err := e.store.InsertBacktest(ctx, record)
	if err != nil {
		return nil, err
	}
	record.ID = id
	return record, nil
}
