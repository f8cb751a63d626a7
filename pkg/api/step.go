package api

// StepType discriminates which handler executes a step.
type StepType string

const (
	// StepTask is a generic handler-backed step. The handler is registered
	// by the embedding application (plugin call, HTTP call, and so on).
	StepTask StepType = "task"

	// StepAI is an AI-driven step. The engine computes a routing decision
	// for it before invoking the registered AI handler.
	StepAI StepType = "ai"

	// StepDataOps runs a deterministic data-operations pipeline. No handler
	// registration is needed; the engine executes it directly.
	StepDataOps StepType = "data_ops"

	// StepSwitch picks the first branch whose case value matches exactly,
	// falling back to the default branch (or a no-op).
	StepSwitch StepType = "switch"

	// StepLoop iterates a body sequentially over a list of items.
	StepLoop StepType = "loop"

	// StepScatter fans a body out over a list of items with bounded
	// concurrency and gathers the results.
	StepScatter StepType = "scatter"
)

// Valid reports whether t is a known step type.
func (t StepType) Valid() bool {
	switch t {
	case StepTask, StepAI, StepDataOps, StepSwitch, StepLoop, StepScatter:
		return true
	default:
		return false
	}
}

// Step is one node of a pipeline. Dependencies are never declared
// explicitly: every `{{stepId}}` or `{{stepId.path}}` token inside Params
// creates an edge from the producing step to this one.
type Step struct {
	// ID uniquely identifies the step within its pipeline.
	ID string `json:"id" mapstructure:"id"`

	// Name is a human-readable label used in logs and diagnostics.
	Name string `json:"name,omitempty" mapstructure:"name"`

	// Type selects the handler that executes this step.
	Type StepType `json:"type" mapstructure:"type"`

	// Params carries the handler-specific configuration. String values may
	// embed `{{stepId.path}}` reference tokens which are resolved against
	// the execution context immediately before the handler runs.
	Params map[string]any `json:"params,omitempty" mapstructure:"params"`

	// DataOps, when non-empty, is a pipeline of data operations applied to
	// the step's output before it is stored in the execution context. Each
	// spec is a map with at least an "op" key.
	DataOps []map[string]any `json:"data_ops,omitempty" mapstructure:"data_ops"`

	// Preprocess carries optional hints applied before the handler runs.
	Preprocess *PreprocessHints `json:"preprocess,omitempty" mapstructure:"preprocess"`
}

// PreprocessHints are optional, advisory transformations applied to a
// step's resolved params before handler invocation.
type PreprocessHints struct {
	// TrimStrings trims surrounding whitespace from every string param.
	TrimStrings bool `json:"trim_strings,omitempty" mapstructure:"trim_strings"`

	// LowercaseKeys normalizes top-level param keys to lower case.
	LowercaseKeys bool `json:"lowercase_keys,omitempty" mapstructure:"lowercase_keys"`
}

// StepStatus is the lifecycle state of a single step within a run.
type StepStatus string

const (
	StepPending   StepStatus = "PENDING"
	StepRunning   StepStatus = "RUNNING"
	StepCompleted StepStatus = "COMPLETED"
	StepFailed    StepStatus = "FAILED"
	// StepSkipped marks a step that was not executed because one of its
	// upstream dependencies failed.
	StepSkipped StepStatus = "SKIPPED"
)
