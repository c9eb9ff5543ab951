package rules

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tconn93/Day-trader/internal/ledger"
)

func baseContext() *Context {
	return &Context{
		Symbol:        "AAPL",
		Price:         decimal.NewFromFloat(150),
		Open:          decimal.NewFromFloat(148),
		High:          decimal.NewFromFloat(151),
		Low:           decimal.NewFromFloat(147.5),
		Volume:        2_000_000,
		Change:        decimal.NewFromFloat(2),
		ChangePercent: decimal.NewFromFloat(1.35),
		Balance:       decimal.NewFromInt(100000),
		Indicators: map[string]float64{
			"sma_20": 145.5,
			"sma_50": 140.0,
			"rsi":    62.3,
		},
	}
}

func withPosition(ctx *Context, qty int64, avg float64) *Context {
	ctx.Position = &ledger.Position{
		Symbol:       ctx.Symbol,
		Quantity:     qty,
		AveragePrice: decimal.NewFromFloat(avg),
		UnrealizedPL: decimal.NewFromFloat(float64(qty) * (150 - avg)),
	}
	return ctx
}

func rule(field, op, value string) *ledger.Rule {
	return &ledger.Rule{
		RuleType:          ledger.RuleTypeEntry,
		ConditionField:    field,
		ConditionOperator: op,
		ConditionValue:    value,
	}
}

func TestEvaluateOperators(t *testing.T) {
	ctx := baseContext()

	assert.True(t, Evaluate(rule("price", ">", "100"), ctx))
	assert.False(t, Evaluate(rule("price", ">", "200"), ctx))
	assert.True(t, Evaluate(rule("price", "<", "200"), ctx))
	assert.True(t, Evaluate(rule("price", ">=", "150"), ctx))
	assert.True(t, Evaluate(rule("price", "<=", "150"), ctx))
	assert.True(t, Evaluate(rule("price", "==", "150"), ctx))
	assert.True(t, Evaluate(rule("price", "!=", "149.99"), ctx))
	assert.False(t, Evaluate(rule("price", "~", "150"), ctx))
}

func TestEvaluateFieldReferenceValue(t *testing.T) {
	ctx := baseContext()

	// price (150) > sma_20 (145.5)
	assert.True(t, Evaluate(rule("price", ">", "sma_20"), ctx))
	assert.False(t, Evaluate(rule("price", "<", "sma_50"), ctx))

	// Unknown reference resolves to zero.
	assert.True(t, Evaluate(rule("price", ">", "no_such_field"), ctx))
}

func TestEvaluatePositionFieldsRequirePosition(t *testing.T) {
	ctx := baseContext()

	assert.False(t, Evaluate(rule("position.quantity", ">", "0"), ctx))
	assert.False(t, Evaluate(rule("position.unrealizedPL", ">", "-1000000"), ctx))

	withPosition(ctx, 10, 140)
	assert.True(t, Evaluate(rule("position.quantity", ">", "5"), ctx))
	assert.True(t, Evaluate(rule("position.unrealizedPL", ">", "0"), ctx))
	assert.True(t, Evaluate(rule("price", ">", "position.averagePrice"), ctx))
}

func TestEvaluateValueSidePositionRefWhileFlat(t *testing.T) {
	ctx := baseContext()

	// The flat guard applies to the condition field only. A position.*
	// reference on the value side resolves to zero, so 100000 > 0 fires.
	assert.True(t, Evaluate(rule("balance", ">", "position.quantity"), ctx))
	assert.False(t, Evaluate(rule("price", "<", "position.averagePrice"), ctx))
}

func TestEvaluateMissingIndicator(t *testing.T) {
	ctx := baseContext()
	delete(ctx.Indicators, "rsi")
	assert.False(t, Evaluate(rule("rsi", "<", "30"), ctx))
}

func TestExecuteBuyFixed(t *testing.T) {
	ctx := baseContext()
	intent, err := Execute("buy:10", ctx)
	require.NoError(t, err)
	assert.Equal(t, Intent{Side: "buy", Quantity: 10}, intent)
}

func TestExecuteBuyPercent(t *testing.T) {
	ctx := baseContext()
	// 10% of 100000 = 10000; at 150 that is 66 shares.
	intent, err := Execute("buy:10%", ctx)
	require.NoError(t, err)
	assert.Equal(t, Intent{Side: "buy", Quantity: 66}, intent)
}

func TestExecuteBuyMax(t *testing.T) {
	ctx := baseContext()
	// floor(100000 / 150) = 666
	intent, err := Execute("buy:max", ctx)
	require.NoError(t, err)
	assert.Equal(t, Intent{Side: "buy", Quantity: 666}, intent)
}

func TestExecuteBuyZeroIsNoop(t *testing.T) {
	ctx := baseContext()
	ctx.Balance = decimal.NewFromInt(100) // less than one share at 150

	intent, err := Execute("buy:max", ctx)
	require.NoError(t, err)
	assert.Zero(t, intent.Quantity)

	intent, err = Execute("buy:0", ctx)
	require.NoError(t, err)
	assert.Zero(t, intent.Quantity)
}

func TestExecuteSellWithoutPositionIsNoop(t *testing.T) {
	ctx := baseContext()
	intent, err := Execute("sell:all", ctx)
	require.NoError(t, err)
	assert.Zero(t, intent.Quantity)
}

func TestExecuteSellVariants(t *testing.T) {
	ctx := withPosition(baseContext(), 10, 140)

	intent, err := Execute("sell:all", ctx)
	require.NoError(t, err)
	assert.Equal(t, Intent{Side: "sell", Quantity: 10}, intent)

	// Fixed count is capped at held quantity.
	intent, err = Execute("sell:25", ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), intent.Quantity)

	intent, err = Execute("sell:4", ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), intent.Quantity)

	// 50% of 10 shares.
	intent, err = Execute("sell:50%", ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), intent.Quantity)
}

func TestExecuteMalformedAction(t *testing.T) {
	ctx := withPosition(baseContext(), 10, 140)

	_, err := Execute("hold", ctx)
	assert.Error(t, err)

	_, err = Execute("buy:lots", ctx)
	assert.Error(t, err)

	_, err = Execute("short:10", ctx)
	assert.Error(t, err)
}
