package backtest

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrBadDateRange = errors.New("start date must precede end date and end date cannot be in the future")
	ErrNoBars       = errors.New("no historical bars in the requested window")
)

// Request describes one backtest run.
type Request struct {
	AlgorithmID    string
	UserID         string
	Symbol         string
	StartDate      time.Time
	EndDate        time.Time
	InitialCapital decimal.Decimal
	Interval       string
}

// Trade is one executed entry or exit during the replay. PL is set on
// sells only.
type Trade struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	PL        decimal.Decimal `json:"pl,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

// EquityPoint is one sample of the equity curve, taken at the top of each
// bar before that bar's trades.
type EquityPoint struct {
	Timestamp     time.Time       `json:"timestamp"`
	Balance       decimal.Decimal `json:"balance"`
	PositionValue decimal.Decimal `json:"position_value"`
	TotalValue    decimal.Decimal `json:"total_value"`
}

// Metrics is the full performance summary, a superset of the columns
// persisted on the backtest row.
type Metrics struct {
	FinalCapital       decimal.Decimal `json:"final_capital"`
	TotalReturn        decimal.Decimal `json:"total_return"`
	TotalReturnPercent decimal.Decimal `json:"total_return_percent"`
	TotalTrades        int             `json:"total_trades"`
	WinningTrades      int             `json:"winning_trades"`
	LosingTrades       int             `json:"losing_trades"`
	WinRate            float64         `json:"win_rate"`
	AvgWin             float64         `json:"avg_win"`
	AvgLoss            float64         `json:"avg_loss"`
	ProfitFactor       float64         `json:"profit_factor"`
	MaxDrawdown        float64         `json:"max_drawdown"`
	SharpeRatio        float64         `json:"sharpe_ratio"`
}

// Results is the opaque blob persisted alongside the metric columns.
type Results struct {
	Trades      []Trade       `json:"trades"`
	EquityCurve []EquityPoint `json:"equity_curve"`
	Metrics     Metrics       `json:"metrics"`
}
