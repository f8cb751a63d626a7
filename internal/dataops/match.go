package dataops

import (
	"sort"

	"github.com/xrash/smetrics"

	"github.com/petrijr/stepflow/pkg/api"
)

// MatchConfig controls a key join between two record sets.
type MatchConfig struct {
	// LeftKey and RightKey are the join fields (dot paths). RightKey
	// defaults to LeftKey.
	LeftKey  string `mapstructure:"left_key"`
	RightKey string `mapstructure:"right_key"`

	// Type is "inner", "left", "right" or "full". Defaults to "inner".
	Type string `mapstructure:"type"`

	// Fuzzy enables Jaro-Winkler string similarity instead of exact key
	// equality.
	Fuzzy bool `mapstructure:"fuzzy"`

	// Threshold is the minimum similarity in [0,1] for a fuzzy match.
	Threshold float64 `mapstructure:"threshold"`
}

// Match joins left and right on their keys. Each left record pairs with the
// best-matching unconsumed right record; unmatched rows are preserved
// according to the join type with the counterpart's fields null-filled.
//
// Output order: left rows in input order, then (for right/full joins)
// unmatched right rows in input order. On a field-name collision the left
// value wins.
func (e *Engine) Match(left, right []Record, cfg MatchConfig) ([]Record, error) {
	joinType := cfg.Type
	if joinType == "" {
		joinType = "inner"
	}
	switch joinType {
	case "inner", "left", "right", "full":
	default:
		return nil, api.NewDataOperationError("", "unknown join type %q", joinType)
	}
	if cfg.Fuzzy && (cfg.Threshold < 0 || cfg.Threshold > 1) {
		return nil, api.NewDataOperationError("", "fuzzy threshold %v outside [0,1]", cfg.Threshold)
	}
	rightKey := cfg.RightKey
	if rightKey == "" {
		rightKey = cfg.LeftKey
	}

	leftCols := columns(left)
	rightCols := columns(right)

	matchedRight := make([]bool, len(right))
	var out []Record

	for _, lr := range left {
		ri := e.bestMatch(lr, right, cfg, rightKey)
		if ri >= 0 {
			matchedRight[ri] = true
			out = append(out, merge(lr, right[ri]))
			continue
		}
		if joinType == "left" || joinType == "full" {
			out = append(out, padded(lr, rightCols))
		}
	}

	if joinType == "right" || joinType == "full" {
		for i, rr := range right {
			if !matchedRight[i] {
				out = append(out, padded(rr, leftCols))
			}
		}
	}
	return out, nil
}

// bestMatch finds the index of the right record matching lr, or -1.
// Exact mode returns the first key-equal record; fuzzy mode returns the
// most similar record at or above the threshold, earliest on ties.
func (e *Engine) bestMatch(lr Record, right []Record, cfg MatchConfig, rightKey string) int {
	lv, ok := FieldValue(lr, cfg.LeftKey)
	if !ok || lv == nil {
		return -1
	}

	if !cfg.Fuzzy {
		for i, rr := range right {
			rv, ok := FieldValue(rr, rightKey)
			if ok && rv != nil && valuesEqual(lv, rv) {
				return i
			}
		}
		return -1
	}

	ls := stringify(lv)
	best := -1
	bestScore := 0.0
	for i, rr := range right {
		rv, ok := FieldValue(rr, rightKey)
		if !ok || rv == nil {
			continue
		}
		score := smetrics.JaroWinkler(ls, stringify(rv), 0.7, 4)
		if score >= cfg.Threshold && score > bestScore {
			best = i
			bestScore = score
		}
	}
	return best
}

// Join chains the datasets pairwise in input array order using exact key
// matching on the shared field.
func (e *Engine) Join(datasets [][]Record, joinType, on string) ([]Record, error) {
	if len(datasets) == 0 {
		return nil, nil
	}
	cur := datasets[0]
	for _, next := range datasets[1:] {
		joined, err := e.Match(cur, next, MatchConfig{
			LeftKey: on,
			Type:    joinType,
		})
		if err != nil {
			return nil, err
		}
		cur = joined
	}
	return cur, nil
}

// columns returns the sorted union of top-level field names across records.
func columns(data []Record) []string {
	set := make(map[string]bool)
	for _, r := range data {
		for k := range r {
			set[k] = true
		}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// merge combines a matched pair; the left value wins on collisions.
func merge(left, right Record) Record {
	out := make(Record, len(left)+len(right))
	for k, v := range right {
		out[k] = v
	}
	for k, v := range left {
		out[k] = v
	}
	return out
}

// padded copies a record and null-fills the counterpart's columns.
func padded(r Record, counterpart []string) Record {
	out := make(Record, len(r)+len(counterpart))
	for _, c := range counterpart {
		out[c] = nil
	}
	for k, v := range r {
		out[k] = v
	}
	return out
}
