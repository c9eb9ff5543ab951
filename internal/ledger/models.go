package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order sides and statuses.
const (
	SideBuy  = "buy"
	SideSell = "sell"

	OrderTypeMarket = "market"
	OrderTypeLimit  = "limit"

	OrderStatusPending   = "pending"
	OrderStatusFilled    = "filled"
	OrderStatusCancelled = "cancelled"
)

// Transaction types.
const (
	TxnBuy        = "buy"
	TxnSell       = "sell"
	TxnDeposit    = "deposit"
	TxnWithdrawal = "withdrawal"
)

// Rule types recognized by the evaluator.
const (
	RuleTypeEntry      = "entry"
	RuleTypeExit       = "exit"
	RuleTypeStopLoss   = "stop_loss"
	RuleTypeTakeProfit = "take_profit"
	RuleTypeCondition  = "condition"
)

type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// Account is the virtual cash account, one per user, lazily created with an
// initial balance of 100,000.00.
type Account struct {
	ID             int64           `json:"id"`
	UserID         string          `json:"user_id"`
	Balance        decimal.Decimal `json:"balance"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	TotalValue     decimal.Decimal `json:"total_value"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Position is a long holding keyed by (account, symbol). Quantity is always
// positive: a zero-quantity position has no row.
type Position struct {
	ID           int64           `json:"id"`
	AccountID    int64           `json:"account_id"`
	Symbol       string          `json:"symbol"`
	Quantity     int64           `json:"quantity"`
	AveragePrice decimal.Decimal `json:"average_price"`

	// Derived market-value fields, refreshed by the bookkeeper.
	CurrentPrice        decimal.Decimal `json:"current_price"`
	MarketValue         decimal.Decimal `json:"market_value"`
	UnrealizedPL        decimal.Decimal `json:"unrealized_pl"`
	UnrealizedPLPercent decimal.Decimal `json:"unrealized_pl_percent"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Order struct {
	ID          int64           `json:"id"`
	AccountID   int64           `json:"account_id"`
	Symbol      string          `json:"symbol"`
	Side        string          `json:"side"`
	Type        string          `json:"type"`
	Quantity    int64           `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Status      string          `json:"status"`
	AlgorithmID string          `json:"algorithm_id,omitempty"`
	FilledAt    *time.Time      `json:"filled_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Transaction is an append-only journal entry. Amount is signed: negative
// debits cash, positive credits it. BalanceAfter records the account balance
// immediately after the entry.
type Transaction struct {
	ID           int64           `json:"id"`
	AccountID    int64           `json:"account_id"`
	Type         string          `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Symbol       string          `json:"symbol,omitempty"`
	Quantity     int64           `json:"quantity,omitempty"`
	Price        decimal.Decimal `json:"price"`
	OrderID      int64           `json:"order_id,omitempty"`
	Description  string          `json:"description,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

type Algorithm struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Rules       []Rule    `json:"rules,omitempty"`
}

// Rule belongs to an algorithm and is cascade-deleted with it. Rules are
// evaluated in ascending OrderIndex within one tick.
type Rule struct {
	ID                int64     `json:"id"`
	AlgorithmID       string    `json:"algorithm_id"`
	RuleType          string    `json:"rule_type"`
	ConditionField    string    `json:"condition_field"`
	ConditionOperator string    `json:"condition_operator"`
	ConditionValue    string    `json:"condition_value"`
	Action            string    `json:"action"`
	OrderIndex        int       `json:"order_index"`
	CreatedAt         time.Time `json:"created_at"`
}

// Backtest is a write-once snapshot of a completed run. ResultsJSON carries
// the per-trade and equity-curve series.
type Backtest struct {
	ID                 int64           `json:"id"`
	UserID             string          `json:"user_id"`
	AlgorithmID        string          `json:"algorithm_id"`
	Symbol             string          `json:"symbol"`
	StartDate          time.Time       `json:"start_date"`
	EndDate            time.Time       `json:"end_date"`
	InitialCapital     decimal.Decimal `json:"initial_capital"`
	FinalCapital       decimal.Decimal `json:"final_capital"`
	TotalReturn        decimal.Decimal `json:"total_return"`
	TotalReturnPercent decimal.Decimal `json:"total_return_percent"`
	TotalTrades        int             `json:"total_trades"`
	WinningTrades      int             `json:"winning_trades"`
	LosingTrades       int             `json:"losing_trades"`
	WinRate            float64         `json:"win_rate"`
	MaxDrawdown        float64         `json:"max_drawdown"`
	SharpeRatio        float64         `json:"sharpe_ratio"`
	ResultsJSON        string          `json:"results_json,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

type WatchlistEntry struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Symbol    string    `json:"symbol"`
	CreatedAt time.Time `json:"created_at"`
}
