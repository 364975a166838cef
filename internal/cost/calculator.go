// Package cost attributes API spend to extraction passes.
package cost

import (
	"math"
	"sync"
)

// Rates holds per-provider pricing configuration.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	Vision    VisionRate           `yaml:"vision" mapstructure:"vision"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// VisionRate holds floor-plan vision pricing.
type VisionRate struct {
	PerPage float64 `yaml:"per_page" mapstructure:"per_page"`
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
			"claude-opus-4-6":            {Input: 15.00, Output: 75.00},
		},
		Vision: VisionRate{PerPage: 0.012},
	}
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Claude computes the cost in USD for a Claude API call. Unknown models
// cost 0.
func (c *Calculator) Claude(model string, input, output int) float64 {
	rate, ok := c.rates.Anthropic[model]
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// VisionPages computes the cost in USD for floor-plan vision extraction.
func (c *Calculator) VisionPages(pages int) float64 {
	return float64(pages) * c.rates.Vision.PerPage
}

// Tracker accumulates spend per extraction pass. Safe for concurrent use;
// one extraction job may fan out across goroutines.
type Tracker struct {
	calc *Calculator

	mu    sync.Mutex
	spend map[string]float64 // pass ID → USD
}

// NewTracker creates a Tracker over the given calculator.
func NewTracker(calc *Calculator) *Tracker {
	return &Tracker{calc: calc, spend: make(map[string]float64)}
}

// AddClaude records a Claude call against a pass.
func (t *Tracker) AddClaude(passID, model string, input, output int) {
	t.add(passID, t.calc.Claude(model, input, output))
}

// AddVision records vision page processing against a pass.
func (t *Tracker) AddVision(passID string, pages int) {
	t.add(passID, t.calc.VisionPages(pages))
}

func (t *Tracker) add(passID string, usd float64) {
	t.mu.Lock()
	t.spend[passID] += usd
	t.mu.Unlock()
}

// CostCents returns the accumulated spend for a pass, rounded up to whole
// cents, and clears the tally. Called once at pass finalization.
func (t *Tracker) CostCents(passID string) int {
	t.mu.Lock()
	usd := t.spend[passID]
	delete(t.spend, passID)
	t.mu.Unlock()
	return int(math.Ceil(usd * 100))
}
