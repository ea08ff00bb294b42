// Package riskbook loads the declarative risk tables governing each game
// family from a YAML file.
package riskbook

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/stake-engine/stake-engine/internal/domain/outcome"
	"github.com/stake-engine/stake-engine/internal/domain/wager"
)

// Book holds the validated risk configuration of every game family.
type Book struct {
	families map[string]wager.RiskConfig
}

// File DTOs: decimals are written as strings in YAML and parsed explicitly.
type fileFormat struct {
	Families map[string]familyFile `yaml:"families"`
}

type familyFile struct {
	Kind          string         `yaml:"kind"`
	MinStake      int64          `yaml:"min_stake"`
	MaxSteps      int            `yaml:"max_steps"`
	RequireReveal bool           `yaml:"require_reveal"`
	Hazard        hazardFile     `yaml:"hazard"`
	Curve         curveFile      `yaml:"curve"`
	Loss          lossFile       `yaml:"loss"`
	Categories    []categoryFile `yaml:"categories"`
}

type hazardFile struct {
	Mode   string  `yaml:"mode"`
	Cells  int     `yaml:"cells"`
	Unsafe int     `yaml:"unsafe"`
	Rate   float64 `yaml:"rate"`
}

type curveFile struct {
	Base   string   `yaml:"base"`
	Growth float64  `yaml:"growth"`
	Cap    string   `yaml:"cap"`
	Steps  []string `yaml:"steps"`
	Expr   string   `yaml:"expr"`
}

type lossFile struct {
	RefundFraction string `yaml:"refund_fraction"`
}

type categoryFile struct {
	Name       string `yaml:"name"`
	Weight     int    `yaml:"weight"`
	Multiplier string `yaml:"multiplier"`
}

// Load reads and validates a risk-table file.
func Load(path string) (*Book, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read risk tables: %w", err)
	}
	return Parse(data)
}

// Parse builds a Book from raw YAML.
func Parse(data []byte) (*Book, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse risk tables: %w", err)
	}
	if len(f.Families) == 0 {
		return nil, fmt.Errorf("risk tables declare no families")
	}
	book := &Book{families: make(map[string]wager.RiskConfig, len(f.Families))}
	for name, ff := range f.Families {
		cfg, err := ff.toConfig(name)
		if err != nil {
			return nil, fmt.Errorf("family %q: %w", name, err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("family %q: %w", name, err)
		}
		book.families[name] = cfg
	}
	return book, nil
}

func (ff familyFile) toConfig(name string) (wager.RiskConfig, error) {
	cfg := wager.RiskConfig{
		Family:        name,
		Kind:          wager.Kind(ff.Kind),
		MinStake:      ff.MinStake,
		MaxSteps:      ff.MaxSteps,
		RequireReveal: ff.RequireReveal,
		Hazard: outcome.Hazard{
			Mode:   outcome.HazardMode(ff.Hazard.Mode),
			Cells:  ff.Hazard.Cells,
			Unsafe: ff.Hazard.Unsafe,
			Rate:   ff.Hazard.Rate,
		},
	}

	var err error
	if cfg.Curve.Base, err = parseDec(ff.Curve.Base, "1"); err != nil {
		return cfg, fmt.Errorf("curve base: %w", err)
	}
	if cfg.Curve.Cap, err = parseDec(ff.Curve.Cap, "1"); err != nil {
		return cfg, fmt.Errorf("curve cap: %w", err)
	}
	cfg.Curve.Growth = ff.Curve.Growth
	cfg.Curve.Expr = ff.Curve.Expr
	for i, s := range ff.Curve.Steps {
		m, err := decimal.NewFromString(s)
		if err != nil {
			return cfg, fmt.Errorf("curve step %d: %w", i, err)
		}
		cfg.Curve.Steps = append(cfg.Curve.Steps, m)
	}

	if cfg.Loss.RefundFraction, err = parseDec(ff.Loss.RefundFraction, "0"); err != nil {
		return cfg, fmt.Errorf("loss refund_fraction: %w", err)
	}

	for _, cf := range ff.Categories {
		m, err := parseDec(cf.Multiplier, "0")
		if err != nil {
			return cfg, fmt.Errorf("category %q multiplier: %w", cf.Name, err)
		}
		cfg.Categories = append(cfg.Categories, outcome.Category{
			Name:       cf.Name,
			Weight:     cf.Weight,
			Multiplier: m,
		})
	}
	return cfg, nil
}

func parseDec(s, def string) (decimal.Decimal, error) {
	if s == "" {
		s = def
	}
	return decimal.NewFromString(s)
}

// Family returns the risk configuration for a game family.
func (b *Book) Family(name string) (wager.RiskConfig, bool) {
	cfg, ok := b.families[name]
	return cfg, ok
}

// Families lists the configured family names.
func (b *Book) Families() []string {
	out := make([]string, 0, len(b.families))
	for name := range b.families {
		out = append(out, name)
	}
	return out
}
