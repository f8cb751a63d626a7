package api

import "time"

// ExecutionContext is the mutable state of one in-flight run. It is owned
// exclusively by that run and written by exactly one step at a time; during
// a scatter phase each branch works on a private copy that is merged back
// only at gather time.
type ExecutionContext struct {
	// AgentID identifies the agent the run belongs to; it keys the
	// routing memory together with step type and complexity bucket.
	AgentID string

	// Variables maps a completed step's ID to its output value.
	Variables map[string]any

	// Completed is the set of step IDs that have finished successfully.
	Completed map[string]bool

	// Budget is the remaining spend available to this run, in USD.
	// The engine subtracts each routing decision's estimated cost.
	Budget float64

	// AgentComplexityScore is the run-level complexity score supplied by
	// the caller, blended with per-step scores by the router.
	AgentComplexityScore float64
}

// NewExecutionContext returns an empty context ready for a run.
func NewExecutionContext() *ExecutionContext {
	return &ExecutionContext{
		Variables: make(map[string]any),
		Completed: make(map[string]bool),
	}
}

// Clone returns a deep copy of the context. Branch sub-contexts and
// checkpoint snapshots are built from clones so later mutation of one side
// never leaks into the other.
func (ec *ExecutionContext) Clone() *ExecutionContext {
	if ec == nil {
		return NewExecutionContext()
	}
	out := &ExecutionContext{
		AgentID:              ec.AgentID,
		Variables:            DeepCopyMap(ec.Variables),
		Completed:            make(map[string]bool, len(ec.Completed)),
		Budget:               ec.Budget,
		AgentComplexityScore: ec.AgentComplexityScore,
	}
	for id := range ec.Completed {
		out.Completed[id] = true
	}
	return out
}

// Checkpoint is a point-in-time snapshot of a run's state, taken after a
// step boundary. Checkpoints live in a fixed-capacity ring buffer; the
// oldest is evicted first.
type Checkpoint struct {
	// ID uniquely identifies the checkpoint.
	ID string

	// StepID is the last step that completed before the snapshot was taken.
	StepID string

	// CreatedAt is the snapshot time.
	CreatedAt time.Time

	// Variables and Completed are deep copies of the context at snapshot
	// time.
	Variables map[string]any
	Completed map[string]bool
}

// DeepCopyMap returns a structural copy of m. Nested maps and slices are
// copied recursively; scalar values are shared (they are immutable from the
// engine's point of view).
func DeepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		return DeepCopyMap(tv)
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = deepCopyValue(e)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(tv))
		for i, e := range tv {
			out[i] = DeepCopyMap(e)
		}
		return out
	default:
		return v
	}
}
