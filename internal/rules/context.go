// Package rules implements the condition evaluator and action executor
// shared by the live engine and the backtester. Both are pure: they read
// a market context and return a decision without touching the ledger.
package rules

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tconn93/Day-trader/internal/ledger"
)

// Context is the snapshot a rule is evaluated against: the latest quote
// fields, the caller's cash balance, the open position for the symbol if
// any, and whatever indicators the caller computed.
type Context struct {
	Symbol        string
	Price         decimal.Decimal
	Open          decimal.Decimal
	High          decimal.Decimal
	Low           decimal.Decimal
	Volume        int64
	Change        decimal.Decimal
	ChangePercent decimal.Decimal
	Balance       decimal.Decimal

	// Position is nil when the account holds no shares of Symbol.
	Position *ledger.Position

	// Indicators maps keys like sma_20, sma_50, rsi. NaN values are
	// treated as absent.
	Indicators map[string]float64
}

// Field resolves a condition field name to its value. The second return
// is false when the field is unknown or currently undefined.
func (c *Context) Field(name string) (decimal.Decimal, bool) {
	switch name {
	case "price":
		return c.Price, true
	case "open":
		return c.Open, true
	case "high":
		return c.High, true
	case "low":
		return c.Low, true
	case "volume":
		return decimal.NewFromInt(c.Volume), true
	case "change":
		return c.Change, true
	case "change_percent", "changePercent":
		return c.ChangePercent, true
	case "balance":
		return c.Balance, true
	}

	if strings.HasPrefix(name, "position.") {
		if c.Position == nil {
			return decimal.Zero, false
		}
		switch strings.TrimPrefix(name, "position.") {
		case "quantity":
			return decimal.NewFromInt(c.Position.Quantity), true
		case "averagePrice", "average_price":
			return c.Position.AveragePrice, true
		case "unrealizedPL", "unrealized_pl":
			return c.Position.UnrealizedPL, true
		case "unrealizedPLPercent", "unrealized_pl_percent":
			return c.Position.UnrealizedPLPercent, true
		}
		return decimal.Zero, false
	}

	if v, ok := c.Indicators[name]; ok && !math.IsNaN(v) {
		return decimal.NewFromFloat(v), true
	}
	return decimal.Zero, false
}
