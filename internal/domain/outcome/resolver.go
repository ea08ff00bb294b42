package outcome

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// HazardMode selects how the per-step loss probability is derived.
type HazardMode string

const (
	// HazardCells draws against "unsafe cells remaining / cells remaining" on
	// a progressive board; every safe pick removes one safe cell.
	HazardCells HazardMode = "cells"
	// HazardRate draws against a fixed per-step loss probability.
	HazardRate HazardMode = "rate"
)

// Hazard is the loss-probability side of a risk configuration.
type Hazard struct {
	Mode   HazardMode `json:"mode"`
	Cells  int        `json:"cells,omitempty"`
	Unsafe int        `json:"unsafe,omitempty"`
	Rate   float64    `json:"rate,omitempty"`
}

// Validate checks the hazard parameters for the selected mode.
func (h Hazard) Validate() error {
	switch h.Mode {
	case HazardCells:
		if h.Cells <= 0 {
			return errors.New("hazard cells must be positive")
		}
		if h.Unsafe <= 0 || h.Unsafe >= h.Cells {
			return errors.New("hazard unsafe count must be in (0, cells)")
		}
	case HazardRate:
		if h.Rate <= 0 || h.Rate >= 1 {
			return errors.New("hazard rate must be in (0, 1)")
		}
	default:
		return fmt.Errorf("unknown hazard mode %q", h.Mode)
	}
	return nil
}

// LossProbability returns the chance the given step loses. For cell boards the
// board shrinks by one safe cell per completed step.
func (h Hazard) LossProbability(step int) float64 {
	switch h.Mode {
	case HazardCells:
		remaining := h.Cells - step
		if remaining <= h.Unsafe {
			return 1
		}
		return float64(h.Unsafe) / float64(remaining)
	default:
		return h.Rate
	}
}

// StepResult is one resolver draw for a progressive session.
type StepResult struct {
	Lost        bool
	Probability float64
	Roll        float64
}

// DrawStep resolves one step against the hazard. Deterministic for a fixed
// RNG stream.
func DrawStep(h Hazard, step int, rng RNG) StepResult {
	p := h.LossProbability(step)
	roll := rng.Float64()
	return StepResult{
		Lost:        roll < p,
		Probability: p,
		Roll:        roll,
	}
}

// Category is one named outcome of a pooled-round draw.
type Category struct {
	Name       string          `json:"name"`
	Weight     int             `json:"weight"`
	Multiplier decimal.Decimal `json:"multiplier"`
}

// ValidateCategories checks the category table of a pooled game family.
func ValidateCategories(cats []Category) error {
	if len(cats) < 2 {
		return errors.New("category table needs at least two entries")
	}
	seen := make(map[string]bool, len(cats))
	for _, c := range cats {
		if c.Name == "" {
			return errors.New("category name is required")
		}
		if seen[c.Name] {
			return fmt.Errorf("duplicate category %q", c.Name)
		}
		seen[c.Name] = true
		if c.Weight <= 0 {
			return fmt.Errorf("category %q has non-positive weight", c.Name)
		}
		if c.Multiplier.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("category %q has non-positive multiplier", c.Name)
		}
	}
	return nil
}

// DrawCategory performs one weighted categorical draw over the table.
func DrawCategory(cats []Category, rng RNG) (Category, error) {
	if err := ValidateCategories(cats); err != nil {
		return Category{}, err
	}
	total := 0
	for _, c := range cats {
		total += c.Weight
	}
	pick := rng.IntN(total)
	for _, c := range cats {
		pick -= c.Weight
		if pick < 0 {
			return c, nil
		}
	}
	// Unreachable with a well-formed table.
	return cats[len(cats)-1], nil
}
