package routing

import "github.com/petrijr/stepflow/pkg/api"

// Key identifies one routing-memory record: an agent, a step type and a
// complexity bucket. Records are created lazily on first outcome and never
// deleted.
type Key struct {
	AgentID  string
	StepType api.StepType
	Bucket   string
}

// TierStats are the append-only counters tracked per (key, tier).
type TierStats struct {
	RunCount       int64
	SuccessCount   int64
	TotalCost      float64
	TotalLatencyMs float64
}

// SuccessRate returns the fraction of successful runs, 0 when empty.
func (s TierStats) SuccessRate() float64 {
	if s.RunCount == 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(s.RunCount)
}

// Recommendation is the adaptive memory's answer for a key.
type Recommendation struct {
	// Tier is the historically best-performing tier for the key.
	Tier api.Tier

	// Confidence grows with sample count and with how decisive the success
	// rate is; it is always in [0,1].
	Confidence float64

	// RunCount and SuccessRate aggregate across all tiers for the key and
	// feed the maturity and quality gates.
	RunCount    int64
	SuccessRate float64
}

// Store abstracts routing-memory persistence. The engine ships an in-memory
// store and a SQLite-backed one; embedding applications may provide their
// own.
//
// Implementations must treat outcomes as append-only: recording never
// rewrites history, and recommendations never change decisions already in
// flight.
type Store interface {
	// GetRecommendation returns the memory's recommendation for key, or
	// nil when no outcome has ever been recorded for it.
	GetRecommendation(key Key) (*Recommendation, error)

	// RecordOutcome appends one observed step outcome.
	RecordOutcome(key Key, tier api.Tier, success bool, cost float64, latencyMs float64) error
}

// tierOrder ranks tiers cheapest first, used to break recommendation ties.
var tierOrder = map[api.Tier]int{
	api.TierFast:     0,
	api.TierBalanced: 1,
	api.TierPowerful: 2,
}

// BuildRecommendation derives a Recommendation from per-tier counters.
// The recommended tier is the one with the highest success rate; ties go to
// the cheaper tier. Returns nil when no runs have been recorded. Store
// implementations share this so their answers agree.
func BuildRecommendation(stats map[api.Tier]TierStats) *Recommendation {
	var (
		total        TierStats
		best         api.Tier
		bestStats    TierStats
		haveBest     bool
	)
	for _, tier := range []api.Tier{api.TierFast, api.TierBalanced, api.TierPowerful} {
		s, ok := stats[tier]
		if !ok || s.RunCount == 0 {
			continue
		}
		total.RunCount += s.RunCount
		total.SuccessCount += s.SuccessCount
		total.TotalCost += s.TotalCost
		total.TotalLatencyMs += s.TotalLatencyMs

		if !haveBest {
			best, bestStats, haveBest = tier, s, true
			continue
		}
		switch {
		case s.SuccessRate() > bestStats.SuccessRate():
			best, bestStats = tier, s
		case s.SuccessRate() == bestStats.SuccessRate() && tierOrder[tier] < tierOrder[best]:
			best, bestStats = tier, s
		}
	}
	if !haveBest {
		return nil
	}
	return &Recommendation{
		Tier:        best,
		Confidence:  Confidence(bestStats.RunCount, bestStats.SuccessRate()),
		RunCount:    total.RunCount,
		SuccessRate: total.SuccessRate(),
	}
}

// Confidence combines sample size with success-rate stability. The sample
// factor saturates as n/(n+10); the stability factor is 0.5 for a coin-flip
// success rate and 1.0 for a fully decisive one.
func Confidence(runCount int64, successRate float64) float64 {
	if runCount <= 0 {
		return 0
	}
	sample := float64(runCount) / float64(runCount+10)
	decisiveness := successRate - 0.5
	if decisiveness < 0 {
		decisiveness = -decisiveness
	}
	return sample * (0.5 + decisiveness)
}
