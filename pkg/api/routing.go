package api

// Tier is a discrete cost/quality bucket for AI-driven steps. The three
// tiers partition the combined complexity range [0,10] into contiguous,
// non-overlapping bands via two thresholds.
type Tier string

const (
	// TierFast is the cheap, low-latency tier for simple steps.
	TierFast Tier = "fast"
	// TierBalanced trades cost against quality for mid-range steps.
	TierBalanced Tier = "balanced"
	// TierPowerful is the top tier for complex or quality-sensitive steps.
	TierPowerful Tier = "powerful"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierFast, TierBalanced, TierPowerful:
		return true
	default:
		return false
	}
}

// Override identifies which precedence rule, if any, forced a routing
// decision away from the plain threshold lookup.
type Override string

const (
	// OverrideNone means the decision came from the score thresholds.
	OverrideNone Override = "none"
	// OverrideQuality means historical success rate was too low and the
	// top tier was forced.
	OverrideQuality Override = "quality"
	// OverrideMemory means a confident historical recommendation was used.
	OverrideMemory Override = "memory"
	// OverrideMaturity means too few historical runs existed and the
	// conservative tier was forced.
	OverrideMaturity Override = "maturity"
)

// ComplexityScore is the per-dimension breakdown behind a combined score.
// Every sub-score and the combined score are normalized to [0,10].
type ComplexityScore struct {
	// Dimensions maps dimension name to its normalized sub-score.
	Dimensions map[string]float64

	// Combined is the weighted blend of the sub-scores, clamped to [0,10].
	Combined float64
}

// RoutingDecision is handed to the external model-invocation layer; the
// engine never performs the model call itself.
type RoutingDecision struct {
	Tier               Tier     `json:"tier"`
	Model              string   `json:"model"`
	Provider           string   `json:"provider"`
	EstimatedCost      float64  `json:"estimated_cost"`
	EstimatedLatencyMs float64  `json:"estimated_latency_ms"`
	Reasoning          string   `json:"reasoning"`
	AppliedOverride    Override `json:"applied_override"`
}
