package routing

import (
	"fmt"
	"sync"

	"github.com/petrijr/stepflow/pkg/api"
)

// Router selects the tier for AI-driven steps. It is safe for concurrent
// use; configuration swaps are atomic and an invalid new configuration
// leaves the last-known-good one in effect.
type Router struct {
	mu    sync.RWMutex
	cfg   Config
	store Store
}

// NewRouter creates a Router over the given memory store. An invalid cfg
// falls back to DefaultConfig; the returned error reports the rejection but
// the router is always usable.
func NewRouter(cfg Config, store Store) (*Router, error) {
	r := &Router{cfg: DefaultConfig(), store: store}
	if err := r.SetConfig(cfg); err != nil {
		return r, err
	}
	return r, nil
}

// SetConfig validates and installs a new configuration. On rejection the
// previous configuration stays in effect and the error (kind
// routing_config) describes why; this is never a hard failure.
func (r *Router) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()
	return nil
}

// Config returns the active configuration.
func (r *Router) Config() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// Blend computes the effective score for a step:
// agentWeight*agentScore + stepWeight*stepScore under the named strategy
// (or the configured default when name is empty), clamped to [0,10].
func (r *Router) Blend(strategy string, agentScore, stepScore float64) (float64, error) {
	cfg := r.Config()
	if strategy == "" {
		strategy = cfg.Strategy
	}
	s, ok := cfg.Strategies[strategy]
	if !ok {
		return 0, api.NewRoutingConfigError("unknown strategy %q", strategy)
	}
	return clampScore(s.AgentWeight*agentScore + s.StepWeight*stepScore), nil
}

// Bucket maps an effective score onto the coarse complexity bucket used as
// part of the memory key.
func (r *Router) Bucket(score float64) string {
	cfg := r.Config()
	switch {
	case score <= cfg.Thresholds.Low:
		return "low"
	case score <= cfg.Thresholds.Medium:
		return "medium"
	default:
		return "high"
	}
}

// tierForScore is the default threshold lookup. A score exactly at a
// threshold resolves to the lower tier.
func tierForScore(cfg Config, score float64) api.Tier {
	switch {
	case score <= cfg.Thresholds.Low:
		return api.TierFast
	case score <= cfg.Thresholds.Medium:
		return api.TierBalanced
	default:
		return api.TierPowerful
	}
}

// Decide selects the tier for one AI-driven step.
//
// Precedence, high to low:
//  1. maturity gate: too little history forces the conservative tier
//  2. quality override: poor historical success rate forces the top tier
//  3. memory override: a confident historical recommendation
//  4. score-based threshold lookup
//
// A store read failure degrades to the threshold path rather than failing
// the step.
func (r *Router) Decide(agentID string, stepType api.StepType, strategy string, agentScore, stepScore float64) (api.RoutingDecision, error) {
	effective, err := r.Blend(strategy, agentScore, stepScore)
	if err != nil {
		return api.RoutingDecision{}, err
	}
	cfg := r.Config()
	bucket := r.Bucket(effective)

	var rec *Recommendation
	var storeErr error
	if r.store != nil {
		rec, storeErr = r.store.GetRecommendation(Key{AgentID: agentID, StepType: stepType, Bucket: bucket})
	}

	tier := tierForScore(cfg, effective)
	override := api.OverrideNone
	reason := fmt.Sprintf("effective score %.2f in %s band", effective, bucket)

	runCount := int64(0)
	if rec != nil {
		runCount = rec.RunCount
	}

	switch {
	case cfg.Maturity.MinExecutions > 0 && runCount < cfg.Maturity.MinExecutions:
		tier = cfg.Maturity.FallbackTier
		if tier == "" {
			tier = api.TierBalanced
		}
		override = api.OverrideMaturity
		reason = fmt.Sprintf("maturity gate: %d of %d required runs", runCount, cfg.Maturity.MinExecutions)

	case rec != nil && rec.RunCount >= cfg.Quality.MinSamples && rec.SuccessRate < cfg.Quality.MinSuccessRate:
		tier = api.TierPowerful
		override = api.OverrideQuality
		reason = fmt.Sprintf("quality override: success rate %.2f below %.2f over %d runs",
			rec.SuccessRate, cfg.Quality.MinSuccessRate, rec.RunCount)

	case rec != nil && rec.Confidence >= cfg.Memory.ConfidenceThreshold:
		tier = rec.Tier
		override = api.OverrideMemory
		reason = fmt.Sprintf("memory override: tier %s recommended with confidence %.2f", rec.Tier, rec.Confidence)
	}

	if storeErr != nil {
		reason += fmt.Sprintf(" (memory unavailable: %v)", storeErr)
	}

	tm := cfg.Tiers[tier]
	return api.RoutingDecision{
		Tier:               tier,
		Model:              tm.Model,
		Provider:           tm.Provider,
		EstimatedCost:      tm.CostPer1K,
		EstimatedLatencyMs: tm.LatencyMs,
		Reasoning:          reason,
		AppliedOverride:    override,
	}, nil
}

// RecordOutcome appends one observed outcome to the memory store. It never
// changes decisions already in flight.
func (r *Router) RecordOutcome(agentID string, stepType api.StepType, effectiveScore float64, tier api.Tier, success bool, cost, latencyMs float64) error {
	if r.store == nil {
		return nil
	}
	key := Key{AgentID: agentID, StepType: stepType, Bucket: r.Bucket(effectiveScore)}
	return r.store.RecordOutcome(key, tier, success, cost, latencyMs)
}
