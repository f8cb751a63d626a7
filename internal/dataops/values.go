package dataops

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Record is one row of an in-memory record set.
type Record = map[string]any

// AsRecords normalizes an arbitrary step output into a record set.
// Accepted shapes: []Record, []map[string]any, []any of maps, a single map.
// Anything else yields an empty set; data operations keep running on dirty
// input rather than abort.
func AsRecords(v any) []Record {
	switch tv := v.(type) {
	case nil:
		return nil
	case []Record:
		return tv
	case []any:
		out := make([]Record, 0, len(tv))
		for _, e := range tv {
			if m, ok := e.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	case map[string]any:
		return []Record{tv}
	default:
		return nil
	}
}

// FieldValue resolves a dot path like "customer.address.city" against a
// record. The second return value is false when any path segment is absent.
func FieldValue(r Record, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	var cur any = r
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// isNull treats both an absent field and an explicit nil as null.
func isNull(r Record, path string) bool {
	v, ok := FieldValue(r, path)
	return !ok || v == nil
}

// toFloat converts numeric values (and numeric JSON decodings) to float64.
func toFloat(v any) (float64, bool) {
	switch tv := v.(type) {
	case float64:
		return tv, true
	case float32:
		return float64(tv), true
	case int:
		return float64(tv), true
	case int8:
		return float64(tv), true
	case int16:
		return float64(tv), true
	case int32:
		return float64(tv), true
	case int64:
		return float64(tv), true
	case uint:
		return float64(tv), true
	case uint8:
		return float64(tv), true
	case uint16:
		return float64(tv), true
	case uint32:
		return float64(tv), true
	case uint64:
		return float64(tv), true
	case json.Number:
		f, err := tv.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// coerceFloat is the dirty-data rule for arithmetic: a non-numeric value
// becomes 0 and the coercion is recorded as a warning on the engine.
func (e *Engine) coerceFloat(v any, field string) float64 {
	if v == nil {
		return 0
	}
	f, ok := toFloat(v)
	if !ok {
		e.warnf("field %q: non-numeric value %v coerced to 0", field, v)
		return 0
	}
	return f
}

// ValuesEqual reports exact-value equality as used by filters and switch
// cases. Numbers compare numerically across integer/float representations;
// other types compare structurally.
func ValuesEqual(a, b any) bool {
	return valuesEqual(a, b)
}

func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return canonical(a) == canonical(b)
}

// compareValues orders two non-null values: -1, 0 or +1. Numbers order
// numerically, everything else by string rendering.
func compareValues(a, b any) int {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	sa, sb := stringify(a), stringify(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	default:
		return 0
	}
}

// Stringify renders a value the way embedded reference tokens and string
// operators do: strings pass through, everything else via fmt.
func Stringify(v any) string {
	return stringify(v)
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// canonical returns a stable structural key for a value. encoding/json
// sorts map keys, so equal structures always render identically.
func canonical(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(b)
}
