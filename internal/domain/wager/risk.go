package wager

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/stake-engine/stake-engine/internal/domain/outcome"
)

// Kind separates single-player progressive families from pooled-round ones.
type Kind string

const (
	KindProgressive Kind = "progressive"
	KindPooled      Kind = "pooled"
)

// LossPolicy declares what a losing draw credits back. A zero fraction is a
// full loss; refunds always round down to the integer unit.
type LossPolicy struct {
	RefundFraction decimal.Decimal `json:"refundFraction"`
}

// Refund returns the amount credited on a losing draw.
func (p LossPolicy) Refund(stake int64) int64 {
	if p.RefundFraction.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	return outcome.Payout(stake, p.RefundFraction)
}

// RiskConfig is the declarative parameter set of one game family.
type RiskConfig struct {
	Family        string             `json:"family"`
	Kind          Kind               `json:"kind"`
	MinStake      int64              `json:"minStake"`
	MaxSteps      int                `json:"maxSteps"`
	RequireReveal bool               `json:"requireReveal"`
	Hazard        outcome.Hazard     `json:"hazard"`
	Curve         outcome.Curve      `json:"curve"`
	Loss          LossPolicy         `json:"loss"`
	Categories    []outcome.Category `json:"categories,omitempty"`
}

// Validate checks the configuration for its kind.
func (c RiskConfig) Validate() error {
	if c.MinStake <= 0 {
		return errors.New("min_stake must be positive")
	}
	switch c.Kind {
	case KindProgressive:
		if c.MaxSteps <= 0 {
			return errors.New("max_steps must be positive")
		}
		if err := c.Hazard.Validate(); err != nil {
			return fmt.Errorf("hazard: %w", err)
		}
		if err := c.Curve.Validate(); err != nil {
			return fmt.Errorf("curve: %w", err)
		}
		if c.Loss.RefundFraction.LessThan(decimal.Zero) || c.Loss.RefundFraction.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return errors.New("loss refund_fraction must be in [0, 1)")
		}
		if c.Hazard.Mode == outcome.HazardCells && c.MaxSteps > c.Hazard.Cells-c.Hazard.Unsafe {
			return errors.New("max_steps exceeds safe cells on the board")
		}
	case KindPooled:
		if err := outcome.ValidateCategories(c.Categories); err != nil {
			return fmt.Errorf("categories: %w", err)
		}
	default:
		return fmt.Errorf("unknown kind %q", c.Kind)
	}
	return nil
}

// Category returns the category table entry by name.
func (c RiskConfig) Category(name string) (outcome.Category, bool) {
	for _, cat := range c.Categories {
		if cat.Name == name {
			return cat, true
		}
	}
	return outcome.Category{}, false
}
