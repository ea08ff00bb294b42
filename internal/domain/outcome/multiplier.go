package outcome

import (
	"errors"
	"fmt"
	"math"

	"github.com/Knetic/govaluate"
	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// Curve maps a step index to a payout multiplier. Exactly one of the three
// shapes is used, in precedence order: explicit per-step multipliers, a custom
// expression, or the base/growth formula. Step 0 is always 1.0 and the result
// never exceeds Cap.
type Curve struct {
	Base   decimal.Decimal   `json:"base"`
	Growth float64           `json:"growth"`
	Cap    decimal.Decimal   `json:"cap"`
	Steps  []decimal.Decimal `json:"steps,omitempty"`
	Expr   string            `json:"expr,omitempty"`
}

// Validate checks the curve is well formed and its output monotone.
func (c Curve) Validate() error {
	if c.Cap.LessThan(one) {
		return errors.New("curve cap below 1.0")
	}
	if len(c.Steps) > 0 {
		prev := one
		for i, m := range c.Steps {
			if m.LessThan(prev) {
				return fmt.Errorf("step multiplier %d breaks monotonicity", i)
			}
			prev = m
		}
		return nil
	}
	if c.Expr != "" {
		if _, err := govaluate.NewEvaluableExpression(c.Expr); err != nil {
			return fmt.Errorf("invalid curve expression: %w", err)
		}
		return nil
	}
	if c.Base.LessThan(one) {
		return errors.New("curve base below 1.0")
	}
	if c.Growth <= 0 || c.Growth > 1 {
		return errors.New("curve growth must be in (0, 1]")
	}
	return nil
}

// At returns the multiplier for the given step index, clamped to [1.0, Cap].
func (c Curve) At(step int) (decimal.Decimal, error) {
	if step <= 0 {
		return one, nil
	}
	var m decimal.Decimal
	switch {
	case len(c.Steps) > 0:
		i := step - 1
		if i >= len(c.Steps) {
			i = len(c.Steps) - 1
		}
		m = c.Steps[i]
	case c.Expr != "":
		v, err := c.evalExpr(step)
		if err != nil {
			return decimal.Zero, err
		}
		m = v
	default:
		// base ^ (step ^ growth): growth < 1 flattens the exponent so the
		// curve's expected value stays bounded.
		exp := math.Pow(float64(step), c.Growth)
		f := math.Pow(c.Base.InexactFloat64(), exp)
		m = decimal.NewFromFloat(f).Round(4)
	}
	if m.LessThan(one) {
		m = one
	}
	if m.GreaterThan(c.Cap) {
		m = c.Cap
	}
	return m, nil
}

func (c Curve) evalExpr(step int) (decimal.Decimal, error) {
	expr, err := govaluate.NewEvaluableExpression(c.Expr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid curve expression: %w", err)
	}
	result, err := expr.Evaluate(map[string]interface{}{"step": float64(step)})
	if err != nil {
		return decimal.Zero, fmt.Errorf("curve expression failed: %w", err)
	}
	f, ok := result.(float64)
	if !ok {
		return decimal.Zero, errors.New("curve expression did not evaluate to a number")
	}
	return decimal.NewFromFloat(f).Round(4), nil
}

// Payout converts stake x multiplier back to integer currency units, always
// rounding down.
func Payout(stake int64, multiplier decimal.Decimal) int64 {
	return decimal.NewFromInt(stake).Mul(multiplier).Floor().IntPart()
}
