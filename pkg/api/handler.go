package api

import "context"

// Invocation carries everything a handler needs to execute one step.
type Invocation struct {
	// RunID identifies the run the step belongs to.
	RunID string

	// Step is the step definition being executed.
	Step Step

	// Params are the step's params with all reference tokens resolved.
	Params map[string]any

	// Context is the run's execution context. Handlers must treat it as
	// read-only; the engine records outputs at step boundaries.
	Context *ExecutionContext

	// Routing is set for AI-driven steps: the decision for the external
	// model-invocation layer. The engine itself never performs the call.
	Routing *RoutingDecision
}

// Handler executes one step type. Handlers for "task" and "ai" steps are
// registered by the embedding application; control-flow and data-operation
// steps are handled by the engine itself.
//
// The engine treats a handler call as an opaque awaited operation: timeouts
// and retries belong to the handler boundary, the engine only records
// elapsed time.
type Handler interface {
	Execute(ctx context.Context, inv Invocation) (any, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, inv Invocation) (any, error)

func (f HandlerFunc) Execute(ctx context.Context, inv Invocation) (any, error) {
	return f(ctx, inv)
}

// ReduceFunc is the binary operator used by a scatter step's "reduce"
// gather mode. It folds outputs left to right in original input order.
type ReduceFunc func(acc, value any) (any, error)

// Engine is the orchestration entry point: validate a pipeline, execute it,
// and control in-flight runs.
type Engine interface {
	// Validate builds the dependency graph of steps and checks it without
	// executing anything.
	Validate(steps []Step) *DAGValidationResult

	// Execute validates and runs a pipeline to completion. A nil initial
	// context starts empty. The returned result is non-nil even on error.
	Execute(ctx context.Context, steps []Step, initial *ExecutionContext) (*ExecutionResult, error)

	// RegisterHandler installs the handler for a step type, replacing any
	// previous registration.
	RegisterHandler(t StepType, h Handler) error

	// RegisterReducer installs a named reduce operator for scatter gather.
	RegisterReducer(name string, fn ReduceFunc) error

	// Pause asks an in-flight run to halt at the next step boundary; the
	// current step always finishes first.
	Pause(runID string) error

	// Resume lets a paused run continue.
	Resume(runID string) error

	// Checkpoints lists an in-flight run's checkpoints, oldest first.
	Checkpoints(runID string) ([]Checkpoint, error)

	// Rollback restores an in-flight run from the latest checkpoint at or
	// before targetStepID (the newest checkpoint when empty), discarding
	// newer checkpoints.
	Rollback(runID, targetStepID string) error
}
