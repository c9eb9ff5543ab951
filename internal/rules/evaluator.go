package rules

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tconn93/Day-trader/internal/ledger"
)

// Evaluate reports whether rule fires against ctx.
//
// A position.* condition field never fires when the account is flat. The
// condition value is a decimal literal when it parses as one, otherwise the
// name of another context field; an unresolvable value reference, position.*
// included, compares as zero. Any unresolvable left side or unknown operator
// yields false rather than an error.
func Evaluate(rule *ledger.Rule, ctx *Context) bool {
	if strings.HasPrefix(rule.ConditionField, "position.") && ctx.Position == nil {
		return false
	}

	lhs, ok := ctx.Field(rule.ConditionField)
	if !ok {
		return false
	}

	rhs, ok := resolveValue(rule.ConditionValue, ctx)
	if !ok {
		return false
	}

	return compare(lhs, rule.ConditionOperator, rhs)
}

func resolveValue(raw string, ctx *Context) (decimal.Decimal, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, false
	}
	if d, err := decimal.NewFromString(raw); err == nil {
		return d, true
	}
	// Field reference. Anything unresolvable, including position.* while
	// flat, compares as zero.
	if v, ok := ctx.Field(raw); ok {
		return v, true
	}
	return decimal.Zero, true
}

func compare(lhs decimal.Decimal, op string, rhs decimal.Decimal) bool {
	switch op {
	case ">":
		return lhs.GreaterThan(rhs)
	case "<":
		return lhs.LessThan(rhs)
	case ">=":
		return lhs.GreaterThanOrEqual(rhs)
	case "<=":
		return lhs.LessThanOrEqual(rhs)
	case "==":
		return lhs.Equal(rhs)
	case "!=":
		return !lhs.Equal(rhs)
	default:
		return false
	}
}
