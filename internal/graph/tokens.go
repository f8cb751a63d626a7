package graph

import "regexp"

// refPattern matches `{{stepId}}` and `{{stepId.path.to.field}}` reference
// tokens. The first capture group is the producing step's ID, the second the
// optional dot path into its output.
var refPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_\-]+)((?:\.[A-Za-z0-9_\-]+)*)\s*\}\}`)

// Ref is one parsed reference token.
type Ref struct {
	// Raw is the full token text, braces included.
	Raw string

	// StepID is the producing step.
	StepID string

	// Path is the dot path into the producer's output, without the leading
	// dot. Empty when the token references the whole output.
	Path string
}

// Refs extracts every reference token from s, in order of appearance.
func Refs(s string) []Ref {
	matches := refPattern.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return nil
	}
	refs := make([]Ref, 0, len(matches))
	for _, m := range matches {
		path := m[2]
		if path != "" {
			path = path[1:] // strip leading dot
		}
		refs = append(refs, Ref{Raw: m[0], StepID: m[1], Path: path})
	}
	return refs
}

// RefsInValue walks an arbitrary params value (maps, slices, strings) and
// collects every reference token found in string leaves.
func RefsInValue(v any) []Ref {
	var out []Ref
	walkStrings(v, func(s string) {
		out = append(out, Refs(s)...)
	})
	return out
}

// IsWholeRef reports whether s consists of exactly one reference token and
// nothing else. Whole-token params are substituted with the referenced value
// itself rather than a string rendering of it.
func IsWholeRef(s string) bool {
	loc := refPattern.FindStringIndex(s)
	return loc != nil && loc[0] == 0 && loc[1] == len(s)
}

func walkStrings(v any, fn func(string)) {
	switch tv := v.(type) {
	case string:
		fn(tv)
	case map[string]any:
		for _, e := range tv {
			walkStrings(e, fn)
		}
	case []any:
		for _, e := range tv {
			walkStrings(e, fn)
		}
	case []map[string]any:
		for _, e := range tv {
			walkStrings(e, fn)
		}
	}
}
