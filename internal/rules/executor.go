package rules

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Intent is the order a fired rule wants placed. A zero Quantity means
// no order.
type Intent struct {
	Side     string
	Quantity int64
}

// Execute turns an action string into a trade intent against ctx.
//
// Actions take the form verb:qualifier. Buys accept an integer share
// count, a percentage of cash, or max (all cash). Sells accept an integer
// count capped at the position, a percentage of the position, or all.
// Intents that compute to zero shares, and sells with no open position,
// come back as (zero Intent, true). Malformed actions are an error.
func Execute(action string, ctx *Context) (Intent, error) {
	verb, qualifier, ok := strings.Cut(strings.TrimSpace(action), ":")
	if !ok {
		return Intent{}, fmt.Errorf("malformed action %q", action)
	}
	verb = strings.ToLower(strings.TrimSpace(verb))
	qualifier = strings.ToLower(strings.TrimSpace(qualifier))

	switch verb {
	case "buy":
		qty, err := buyQuantity(qualifier, ctx)
		if err != nil {
			return Intent{}, err
		}
		if qty <= 0 {
			return Intent{}, nil
		}
		return Intent{Side: "buy", Quantity: qty}, nil

	case "sell":
		if ctx.Position == nil || ctx.Position.Quantity <= 0 {
			return Intent{}, nil
		}
		qty, err := sellQuantity(qualifier, ctx.Position.Quantity)
		if err != nil {
			return Intent{}, err
		}
		if qty <= 0 {
			return Intent{}, nil
		}
		return Intent{Side: "sell", Quantity: qty}, nil

	default:
		return Intent{}, fmt.Errorf("unknown action verb %q", verb)
	}
}

func buyQuantity(qualifier string, ctx *Context) (int64, error) {
	if ctx.Price.IsZero() {
		return 0, nil
	}

	switch {
	case qualifier == "max":
		return ctx.Balance.Div(ctx.Price).Floor().IntPart(), nil

	case strings.HasSuffix(qualifier, "%"):
		pct, err := decimal.NewFromString(strings.TrimSuffix(qualifier, "%"))
		if err != nil {
			return 0, fmt.Errorf("malformed percentage %q", qualifier)
		}
		budget := ctx.Balance.Mul(pct).Div(hundred)
		return budget.Div(ctx.Price).Floor().IntPart(), nil

	default:
		n, err := decimal.NewFromString(qualifier)
		if err != nil {
			return 0, fmt.Errorf("malformed buy quantity %q", qualifier)
		}
		return n.Floor().IntPart(), nil
	}
}

func sellQuantity(qualifier string, held int64) (int64, error) {
	switch {
	case qualifier == "all":
		return held, nil

	case strings.HasSuffix(qualifier, "%"):
		pct, err := decimal.NewFromString(strings.TrimSuffix(qualifier, "%"))
		if err != nil {
			return 0, fmt.Errorf("malformed percentage %q", qualifier)
		}
		return decimal.NewFromInt(held).Mul(pct).Div(hundred).Floor().IntPart(), nil

	default:
		n, err := decimal.NewFromString(qualifier)
		if err != nil {
			return 0, fmt.Errorf("malformed sell quantity %q", qualifier)
		}
		qty := n.Floor().IntPart()
		if qty > held {
			qty = held
		}
		return qty, nil
	}
}
