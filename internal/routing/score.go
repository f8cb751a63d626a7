// Package routing computes complexity scores and selects the model tier for
// AI-driven steps, blending configured thresholds with adaptive historical
// performance.
package routing

import "github.com/petrijr/stepflow/pkg/api"

// scoreMax is the upper bound of every normalized score.
const scoreMax = 10.0

// Normalize min-max scales x against [min,max] onto [0,10]. Out-of-range
// values clamp; a degenerate range (max <= min) maps everything to 0.
// The result is monotonic non-decreasing in x.
func Normalize(x, min, max float64) float64 {
	if max <= min {
		return 0
	}
	if x <= min {
		return 0
	}
	if x >= max {
		return scoreMax
	}
	return (x - min) / (max - min) * scoreMax
}

func clampScore(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > scoreMax {
		return scoreMax
	}
	return x
}

// Score normalizes each configured dimension's raw input and blends them by
// weight into a combined score. Missing inputs contribute their dimension's
// minimum (a normalized 0).
func (r *Router) Score(inputs map[string]float64) api.ComplexityScore {
	r.mu.RLock()
	cfg := r.cfg
	r.mu.RUnlock()

	score := api.ComplexityScore{
		Dimensions: make(map[string]float64, len(cfg.Dimensions)),
	}
	combined := 0.0
	for _, d := range cfg.Dimensions {
		sub := Normalize(inputs[d.Name], d.Min, d.Max)
		score.Dimensions[d.Name] = sub
		combined += d.Weight * sub
	}
	score.Combined = clampScore(combined)
	return score
}
