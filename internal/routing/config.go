package routing

import (
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/petrijr/stepflow/pkg/api"
)

// weightTolerance is how far a weight set may deviate from 1.0.
const weightTolerance = 1e-6

// Dimension is one independently normalized complexity dimension.
type Dimension struct {
	Name   string  `yaml:"name"`
	Weight float64 `yaml:"weight"`
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max"`
}

// Strategy is a named agent/step weight pair used to blend the run-level
// score with the per-step score.
type Strategy struct {
	AgentWeight float64 `yaml:"agent_weight"`
	StepWeight  float64 `yaml:"step_weight"`
}

// Thresholds are the two cut points partitioning [0,10] into the three tier
// bands. A score exactly at a threshold resolves to the lower tier.
type Thresholds struct {
	Low    float64 `yaml:"low"`
	Medium float64 `yaml:"medium"`
}

// TierModel describes the model behind a tier, for the decision handed to
// the external invocation layer.
type TierModel struct {
	Model     string  `yaml:"model"`
	Provider  string  `yaml:"provider"`
	CostPer1K float64 `yaml:"cost_per_1k"`
	LatencyMs float64 `yaml:"latency_ms"`
}

// MaturityGate forces a conservative tier until a route has enough history.
type MaturityGate struct {
	MinExecutions int64 `yaml:"min_executions"`
	// FallbackTier is the conservative tier used under the gate.
	FallbackTier api.Tier `yaml:"fallback_tier"`
}

// QualityGate forces the top tier when historical success rate is poor.
type QualityGate struct {
	MinSuccessRate float64 `yaml:"min_success_rate"`
	MinSamples     int64   `yaml:"min_samples"`
}

// MemoryGate controls when a historical recommendation is trusted.
type MemoryGate struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// Config is the full routing configuration. Invalid configurations are
// rejected at load time and the last-known-good configuration stays in
// effect; routing never hard-fails on configuration.
type Config struct {
	Dimensions []Dimension             `yaml:"dimensions"`
	Strategies map[string]Strategy     `yaml:"strategies"`
	// Strategy names the default blend strategy.
	Strategy   string                  `yaml:"strategy"`
	Thresholds Thresholds              `yaml:"thresholds"`
	Maturity   MaturityGate            `yaml:"maturity"`
	Quality    QualityGate             `yaml:"quality"`
	Memory     MemoryGate              `yaml:"memory"`
	Tiers      map[api.Tier]TierModel  `yaml:"tiers"`
}

// DefaultConfig returns the built-in configuration. The tier catalog mirrors
// a typical fast/balanced/powerful model lineup and can be overridden via
// YAML.
func DefaultConfig() Config {
	return Config{
		Dimensions: []Dimension{
			{Name: "data_volume", Weight: 0.30, Min: 0, Max: 10000},
			{Name: "step_count", Weight: 0.25, Min: 1, Max: 50},
			{Name: "reasoning_depth", Weight: 0.25, Min: 0, Max: 10},
			{Name: "output_structure", Weight: 0.20, Min: 0, Max: 10},
		},
		Strategies: map[string]Strategy{
			"conservative": {AgentWeight: 0.6, StepWeight: 0.4},
			"balanced":     {AgentWeight: 0.4, StepWeight: 0.6},
			"aggressive":   {AgentWeight: 0.2, StepWeight: 0.8},
		},
		Strategy:   "balanced",
		Thresholds: Thresholds{Low: 3.9, Medium: 6.9},
		Maturity:   MaturityGate{MinExecutions: 3, FallbackTier: api.TierBalanced},
		Quality:    QualityGate{MinSuccessRate: 0.7, MinSamples: 5},
		Memory:     MemoryGate{ConfidenceThreshold: 0.6},
		Tiers: map[api.Tier]TierModel{
			api.TierFast:     {Model: "haiku-4", Provider: "anthropic", CostPer1K: 0.001, LatencyMs: 800},
			api.TierBalanced: {Model: "sonnet-4", Provider: "anthropic", CostPer1K: 0.015, LatencyMs: 2500},
			api.TierPowerful: {Model: "opus-4", Provider: "anthropic", CostPer1K: 0.075, LatencyMs: 6000},
		},
	}
}

// Validate checks the configuration invariants: dimension weights summing
// to 1.0 within tolerance, strategy pairs summing to 1.0, ordered
// thresholds inside [0,10], and a model for every tier.
func (c Config) Validate() error {
	sum := 0.0
	for _, d := range c.Dimensions {
		if d.Weight < 0 {
			return api.NewRoutingConfigError("dimension %q has negative weight %v", d.Name, d.Weight)
		}
		sum += d.Weight
	}
	if len(c.Dimensions) > 0 && math.Abs(sum-1.0) > weightTolerance {
		return api.NewRoutingConfigError("dimension weights sum to %v, want 1.0", sum)
	}

	for name, s := range c.Strategies {
		if math.Abs(s.AgentWeight+s.StepWeight-1.0) > weightTolerance {
			return api.NewRoutingConfigError("strategy %q weights sum to %v, want 1.0", name, s.AgentWeight+s.StepWeight)
		}
	}
	if _, ok := c.Strategies[c.Strategy]; c.Strategy != "" && !ok {
		return api.NewRoutingConfigError("unknown default strategy %q", c.Strategy)
	}

	t := c.Thresholds
	if t.Low < 0 || t.Medium > scoreMax || t.Low >= t.Medium {
		return api.NewRoutingConfigError("thresholds low=%v medium=%v must satisfy 0 <= low < medium <= 10", t.Low, t.Medium)
	}

	for _, tier := range []api.Tier{api.TierFast, api.TierBalanced, api.TierPowerful} {
		if _, ok := c.Tiers[tier]; !ok {
			return api.NewRoutingConfigError("no model configured for tier %q", tier)
		}
	}
	if c.Maturity.FallbackTier != "" && !c.Maturity.FallbackTier.Valid() {
		return api.NewRoutingConfigError("unknown maturity fallback tier %q", c.Maturity.FallbackTier)
	}
	return nil
}

// LoadConfig parses a YAML routing configuration. Fields omitted from the
// document keep their defaults.
func LoadConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, api.NewRoutingConfigError("parse routing config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigFile reads and parses a YAML routing configuration file.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, api.NewRoutingConfigError("read routing config: %v", err)
	}
	return LoadConfig(data)
}
