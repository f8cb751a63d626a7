package engine

import (
	"strings"

	"github.com/petrijr/stepflow/internal/dataops"
	"github.com/petrijr/stepflow/internal/graph"
	"github.com/petrijr/stepflow/pkg/api"
)

// bodyKeys are param subtrees that hold nested step bodies. They are
// resolved lazily, per branch invocation, against the branch's own context;
// resolving them at container time would see neither the loop item nor
// sibling body outputs.
var bodyKeys = map[string]bool{
	"steps":   true,
	"cases":   true,
	"default": true,
}

// resolveParams returns a copy of the step's params with every reference
// token substituted from vars. A param that is exactly one token takes the
// referenced value itself, preserving its type; tokens embedded in longer
// strings take the value's string rendering.
//
// An unresolved reference indicates a validator defect and is reported as a
// fatal invariant violation.
func resolveParams(step api.Step, vars map[string]any) (map[string]any, error) {
	if step.Params == nil {
		return nil, nil
	}
	skipBodies := step.Type == api.StepSwitch || step.Type == api.StepLoop || step.Type == api.StepScatter

	out := make(map[string]any, len(step.Params))
	for k, v := range step.Params {
		if skipBodies && bodyKeys[k] {
			out[k] = v
			continue
		}
		rv, err := resolveValue(step.ID, v, vars)
		if err != nil {
			return nil, err
		}
		out[k] = rv
	}
	return out, nil
}

func resolveValue(stepID string, v any, vars map[string]any) (any, error) {
	switch tv := v.(type) {
	case string:
		return resolveString(stepID, tv, vars)
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, e := range tv {
			rv, err := resolveValue(stepID, e, vars)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			rv, err := resolveValue(stepID, e, vars)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}

func resolveString(stepID, s string, vars map[string]any) (any, error) {
	refs := graph.Refs(s)
	if len(refs) == 0 {
		return s, nil
	}

	if graph.IsWholeRef(s) {
		return lookupRef(stepID, refs[0], vars)
	}

	resolved := s
	for _, ref := range refs {
		v, err := lookupRef(stepID, ref, vars)
		if err != nil {
			return nil, err
		}
		resolved = strings.Replace(resolved, ref.Raw, dataops.Stringify(v), 1)
	}
	return resolved, nil
}

func lookupRef(stepID string, ref graph.Ref, vars map[string]any) (any, error) {
	root, ok := vars[ref.StepID]
	if !ok {
		return nil, api.NewValidationError(stepID, "unresolved reference to %q: producer has no recorded output", ref.StepID)
	}
	if ref.Path == "" {
		return root, nil
	}
	m, ok := root.(map[string]any)
	if !ok {
		return nil, api.NewValidationError(stepID, "reference %q: output of %q is not addressable by path", ref.Raw, ref.StepID)
	}
	v, ok := dataops.FieldValue(m, ref.Path)
	if !ok {
		return nil, api.NewValidationError(stepID, "reference %q: path %q not found in output of %q", ref.Raw, ref.Path, ref.StepID)
	}
	return v, nil
}

// applyPreprocess applies the step's advisory preprocessing hints to its
// resolved params.
func applyPreprocess(params map[string]any, hints *api.PreprocessHints) map[string]any {
	if hints == nil || params == nil {
		return params
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		if hints.LowercaseKeys {
			k = strings.ToLower(k)
		}
		if hints.TrimStrings {
			if s, ok := v.(string); ok {
				v = strings.TrimSpace(s)
			}
		}
		out[k] = v
	}
	return out
}
