package api

import "time"

// RunStatus is the lifecycle state of a whole run.
type RunStatus string

const (
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
)

// StepResult records the outcome of one step within a run.
type StepResult struct {
	StepID string
	Name   string
	Type   StepType
	Status StepStatus

	// Output is the value the step produced, after any data operations.
	Output any

	// Err is non-nil when Status is StepFailed.
	Err error

	// Routing is set for AI-driven steps only.
	Routing *RoutingDecision

	// Warnings collects non-fatal issues (for example dirty-data coercions
	// inside a data-operations pipeline).
	Warnings []string

	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
}

// ExecutionResult is the outcome of a full run.
type ExecutionResult struct {
	// RunID uniquely identifies the run.
	RunID string

	Status RunStatus

	// Steps holds one result per step, in execution order. Skipped steps
	// are included with Status StepSkipped.
	Steps []StepResult

	// Context is the final execution context (variables of all completed
	// steps).
	Context *ExecutionContext

	// Err is the first fatal or step-level error encountered, if any.
	Err error

	StartedAt  time.Time
	FinishedAt time.Time
}

// StepResultByID returns the result for the given step, if present.
func (r *ExecutionResult) StepResultByID(id string) (StepResult, bool) {
	for _, sr := range r.Steps {
		if sr.StepID == id {
			return sr, true
		}
	}
	return StepResult{}, false
}

// ValidationIssue is one error or warning produced by graph validation.
type ValidationIssue struct {
	// Code is a machine-readable identifier such as "cycle",
	// "dangling_reference", "duplicate_id" or "unreachable".
	Code string

	// StepID names the offending step where applicable.
	StepID string

	// Message is the human-readable diagnostic.
	Message string

	// Path carries an ordered step-ID list for cycle diagnostics.
	Path []string
}

// GraphMetadata describes the validated dependency graph.
type GraphMetadata struct {
	// Order is the topological execution order. Ties are broken by the
	// original declaration order of the steps.
	Order []string

	// MergePoints lists steps with more than one inbound dependency, in
	// declaration order.
	MergePoints []string

	// CriticalPath is the longest dependency chain by step count. When
	// several chains tie, the lexicographically smallest step-ID sequence
	// is chosen so the result is deterministic.
	CriticalPath []string

	// Edges maps each producer step to its dependents, in declaration
	// order.
	Edges map[string][]string
}

// DAGValidationResult is returned by Validate. A run may only start after a
// successful validation; an invalid graph aborts with zero steps executed.
type DAGValidationResult struct {
	Valid    bool
	Errors   []ValidationIssue
	Warnings []ValidationIssue
	Metadata GraphMetadata
}
