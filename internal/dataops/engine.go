// Package dataops implements the deterministic data-operations engine:
// pure relational and statistical transforms over in-memory record sets.
// Nothing in this package ever invokes a language model; it is the
// pipeline's anti-hallucination boundary.
package dataops

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/petrijr/stepflow/pkg/api"
)

// Engine applies data operations. It never mutates its inputs; the only
// state it carries is the list of dirty-data warnings recorded while
// coercing values.
type Engine struct {
	warns []string
}

// New returns a fresh engine with an empty warning list. Use one engine per
// pipeline application so warnings stay attached to the step that caused
// them.
func New() *Engine {
	return &Engine{}
}

// Warnings returns the dirty-data warnings recorded so far.
func (e *Engine) Warnings() []string {
	return e.warns
}

func (e *Engine) warnf(format string, args ...any) {
	e.warns = append(e.warns, fmt.Sprintf(format, args...))
}

// Condition is one filter predicate. Conditions combine with AND semantics.
type Condition struct {
	Field    string `mapstructure:"field"`
	Operator string `mapstructure:"operator"`
	Value    any    `mapstructure:"value"`
}

// SortKey is one key of a multi-key sort.
type SortKey struct {
	Field string `mapstructure:"field"`
	// Direction is "asc" (default) or "desc".
	Direction string `mapstructure:"direction"`
}

// AggregateOp is a single aggregation: sum, avg, min, max, count or
// count_distinct over a field, stored under As (default: "<op>_<field>").
type AggregateOp struct {
	Op    string `mapstructure:"op"`
	Field string `mapstructure:"field"`
	As    string `mapstructure:"as"`
}

// Group is one bucket produced by GroupBy. Records keep their input order.
type Group struct {
	Key     any
	Records []Record
}

// Filter keeps records satisfying every condition. An empty condition list
// returns the input unchanged.
//
// Operators: ==, !=, >, <, >=, <=, contains, starts_with, ends_with, in,
// not_in, is_null, is_not_null. Field is a dot path.
func (e *Engine) Filter(data []Record, conds []Condition) ([]Record, error) {
	if len(conds) == 0 {
		return data, nil
	}
	for _, c := range conds {
		if !knownOperator(c.Operator) {
			return nil, api.NewDataOperationError("", "unknown filter operator %q", c.Operator)
		}
	}
	out := make([]Record, 0, len(data))
	for _, r := range data {
		keep := true
		for _, c := range conds {
			if !e.matchCondition(r, c) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, r)
		}
	}
	return out, nil
}

func knownOperator(op string) bool {
	switch op {
	case "==", "!=", ">", "<", ">=", "<=",
		"contains", "starts_with", "ends_with",
		"in", "not_in", "is_null", "is_not_null":
		return true
	default:
		return false
	}
}

func (e *Engine) matchCondition(r Record, c Condition) bool {
	switch c.Operator {
	case "is_null":
		return isNull(r, c.Field)
	case "is_not_null":
		return !isNull(r, c.Field)
	}

	v, ok := FieldValue(r, c.Field)
	if !ok || v == nil {
		// Null never satisfies a value comparison.
		return false
	}

	switch c.Operator {
	case "==":
		return valuesEqual(v, c.Value)
	case "!=":
		return !valuesEqual(v, c.Value)
	case ">":
		return compareValues(v, c.Value) > 0
	case "<":
		return compareValues(v, c.Value) < 0
	case ">=":
		return compareValues(v, c.Value) >= 0
	case "<=":
		return compareValues(v, c.Value) <= 0
	case "contains":
		if s, ok := v.(string); ok {
			return strings.Contains(s, stringify(c.Value))
		}
		for _, el := range AsList(v) {
			if valuesEqual(el, c.Value) {
				return true
			}
		}
		return false
	case "starts_with":
		return strings.HasPrefix(stringify(v), stringify(c.Value))
	case "ends_with":
		return strings.HasSuffix(stringify(v), stringify(c.Value))
	case "in":
		for _, el := range AsList(c.Value) {
			if valuesEqual(v, el) {
				return true
			}
		}
		return false
	case "not_in":
		for _, el := range AsList(c.Value) {
			if valuesEqual(v, el) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// AsList normalizes a value to a slice for the in/not_in/contains
// operators.
func AsList(v any) []any {
	switch tv := v.(type) {
	case []any:
		return tv
	case nil:
		return nil
	default:
		return []any{tv}
	}
}

// Sort returns a stably sorted copy of data. Null fields sort last
// regardless of direction. Sort is idempotent: re-applying the same keys
// leaves the order unchanged.
func (e *Engine) Sort(data []Record, keys []SortKey) []Record {
	if len(keys) == 0 {
		return data
	}
	out := append([]Record(nil), data...)
	sort.SliceStable(out, func(i, j int) bool {
		for _, k := range keys {
			vi, okI := FieldValue(out[i], k.Field)
			vj, okJ := FieldValue(out[j], k.Field)
			nullI := !okI || vi == nil
			nullJ := !okJ || vj == nil
			if nullI || nullJ {
				if nullI == nullJ {
					continue
				}
				// Nulls last regardless of direction.
				return nullJ
			}
			cmp := compareValues(vi, vj)
			if cmp == 0 {
				continue
			}
			if strings.EqualFold(k.Direction, "desc") {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	return out
}

// Limit returns at most n leading records.
func (e *Engine) Limit(data []Record, n int) []Record {
	if n < 0 {
		n = 0
	}
	if n >= len(data) {
		return data
	}
	return data[:n]
}

// Offset skips the first n records.
func (e *Engine) Offset(data []Record, n int) []Record {
	if n < 0 {
		n = 0
	}
	if n >= len(data) {
		return nil
	}
	return data[n:]
}

// GroupBy buckets records by a field. Groups appear in order of first key
// occurrence and records keep their input order within each group.
func (e *Engine) GroupBy(data []Record, field string) []Group {
	byKey := make(map[string]int)
	var groups []Group
	for _, r := range data {
		v, _ := FieldValue(r, field)
		key := canonical(v)
		idx, ok := byKey[key]
		if !ok {
			idx = len(groups)
			byKey[key] = idx
			groups = append(groups, Group{Key: v})
		}
		groups[idx].Records = append(groups[idx].Records, r)
	}
	return groups
}

// Aggregate computes the requested aggregations over data. Null fields are
// excluded. Aggregating an empty input yields 0 for every operation, never
// an error.
func (e *Engine) Aggregate(data []Record, ops []AggregateOp) (Record, error) {
	out := make(Record, len(ops))
	for _, op := range ops {
		name := op.As
		if name == "" {
			name = op.Op
			if op.Field != "" {
				name += "_" + op.Field
			}
		}
		switch op.Op {
		case "count":
			if op.Field == "" {
				out[name] = float64(len(data))
				continue
			}
			n := 0
			for _, r := range data {
				if !isNull(r, op.Field) {
					n++
				}
			}
			out[name] = float64(n)
		case "count_distinct":
			seen := make(map[string]bool)
			for _, r := range data {
				if v, ok := FieldValue(r, op.Field); ok && v != nil {
					seen[canonical(v)] = true
				}
			}
			out[name] = float64(len(seen))
		case "sum", "avg", "min", "max":
			vals := e.numericValues(data, op.Field)
			out[name] = foldNumeric(op.Op, vals)
		default:
			return nil, api.NewDataOperationError("", "unknown aggregate op %q", op.Op)
		}
	}
	return out, nil
}

// numericValues collects the field's non-null values as floats, applying the
// dirty-data coercion rule to non-numeric values.
func (e *Engine) numericValues(data []Record, field string) []float64 {
	vals := make([]float64, 0, len(data))
	for _, r := range data {
		v, ok := FieldValue(r, field)
		if !ok || v == nil {
			continue
		}
		vals = append(vals, e.coerceFloat(v, field))
	}
	return vals
}

func foldNumeric(op string, vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	switch op {
	case "sum", "avg":
		sum := 0.0
		for _, v := range vals {
			sum += v
		}
		if op == "avg" {
			return sum / float64(len(vals))
		}
		return sum
	case "min":
		min := vals[0]
		for _, v := range vals[1:] {
			if v < min {
				min = v
			}
		}
		return min
	case "max":
		max := vals[0]
		for _, v := range vals[1:] {
			if v > max {
				max = v
			}
		}
		return max
	default:
		return 0
	}
}

// Deduplicate removes duplicate records; the first occurrence wins. With no
// fields the whole record is compared structurally, otherwise records are
// keyed by the given fields.
func (e *Engine) Deduplicate(data []Record, fields []string) []Record {
	seen := make(map[string]bool, len(data))
	out := make([]Record, 0, len(data))
	for _, r := range data {
		var key string
		if len(fields) == 0 {
			key = canonical(r)
		} else {
			parts := make([]string, len(fields))
			for i, f := range fields {
				v, _ := FieldValue(r, f)
				parts[i] = canonical(v)
			}
			key = strings.Join(parts, "\x1f")
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

// opEnvelope peeks at the discriminating "op" key of a raw spec.
type opEnvelope struct {
	Op string `mapstructure:"op"`
}

// Apply runs a pipeline of raw operation specs against input. Each spec is
// a map carrying an "op" discriminator; an unknown op name is the only
// condition reported as a data-operation error.
func (e *Engine) Apply(input any, specs []map[string]any) (any, error) {
	cur := input
	for i, raw := range specs {
		var env opEnvelope
		if err := mapstructure.Decode(raw, &env); err != nil || env.Op == "" {
			return nil, api.NewDataOperationError("", "operation %d: missing op name", i)
		}
		next, err := e.applyOne(cur, env.Op, raw)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

func (e *Engine) applyOne(input any, op string, raw map[string]any) (any, error) {
	data := AsRecords(input)
	switch op {
	case "filter":
		var spec struct {
			Conditions []Condition `mapstructure:"conditions"`
		}
		if err := mapstructure.Decode(raw, &spec); err != nil {
			return nil, api.NewDataOperationError("", "filter: %v", err)
		}
		return e.Filter(data, spec.Conditions)
	case "sort":
		var spec struct {
			Keys []SortKey `mapstructure:"keys"`
		}
		if err := mapstructure.Decode(raw, &spec); err != nil {
			return nil, api.NewDataOperationError("", "sort: %v", err)
		}
		return e.Sort(data, spec.Keys), nil
	case "limit":
		var spec struct {
			Count int `mapstructure:"count"`
		}
		if err := mapstructure.Decode(raw, &spec); err != nil {
			return nil, api.NewDataOperationError("", "limit: %v", err)
		}
		return e.Limit(data, spec.Count), nil
	case "offset":
		var spec struct {
			Count int `mapstructure:"count"`
		}
		if err := mapstructure.Decode(raw, &spec); err != nil {
			return nil, api.NewDataOperationError("", "offset: %v", err)
		}
		return e.Offset(data, spec.Count), nil
	case "group_by":
		var spec struct {
			Field string `mapstructure:"field"`
		}
		if err := mapstructure.Decode(raw, &spec); err != nil {
			return nil, api.NewDataOperationError("", "group_by: %v", err)
		}
		groups := e.GroupBy(data, spec.Field)
		out := make([]Record, len(groups))
		for i, g := range groups {
			out[i] = Record{"key": g.Key, "records": g.Records}
		}
		return out, nil
	case "aggregate":
		var spec struct {
			Operations []AggregateOp `mapstructure:"operations"`
		}
		if err := mapstructure.Decode(raw, &spec); err != nil {
			return nil, api.NewDataOperationError("", "aggregate: %v", err)
		}
		return e.Aggregate(data, spec.Operations)
	case "deduplicate":
		var spec struct {
			Fields []string `mapstructure:"fields"`
		}
		if err := mapstructure.Decode(raw, &spec); err != nil {
			return nil, api.NewDataOperationError("", "deduplicate: %v", err)
		}
		return e.Deduplicate(data, spec.Fields), nil
	case "statistics":
		var spec struct {
			Field string `mapstructure:"field"`
		}
		if err := mapstructure.Decode(raw, &spec); err != nil {
			return nil, api.NewDataOperationError("", "statistics: %v", err)
		}
		return e.Statistics(data, spec.Field).AsRecord(), nil
	case "match":
		var spec struct {
			Right  any         `mapstructure:"right"`
			Config MatchConfig `mapstructure:",squash"`
		}
		if err := mapstructure.Decode(raw, &spec); err != nil {
			return nil, api.NewDataOperationError("", "match: %v", err)
		}
		return e.Match(data, AsRecords(spec.Right), spec.Config)
	case "join":
		var spec struct {
			Datasets []any  `mapstructure:"datasets"`
			Type     string `mapstructure:"type"`
			On       string `mapstructure:"on"`
		}
		if err := mapstructure.Decode(raw, &spec); err != nil {
			return nil, api.NewDataOperationError("", "join: %v", err)
		}
		sets := make([][]Record, 0, len(spec.Datasets)+1)
		sets = append(sets, data)
		for _, d := range spec.Datasets {
			sets = append(sets, AsRecords(d))
		}
		return e.Join(sets, spec.Type, spec.On)
	default:
		return nil, api.NewDataOperationError("", "unknown operation %q", op)
	}
}
