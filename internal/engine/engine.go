// Package engine implements pipeline execution: step dispatch, reference
// resolution, scatter/gather fan-out and run control.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/stepflow/internal/graph"
	"github.com/petrijr/stepflow/internal/routing"
	"github.com/petrijr/stepflow/pkg/api"
)

// Options configures an Engine.
type Options struct {
	// Router makes tier decisions for AI-driven steps. Required.
	Router *routing.Router

	// Observer receives lifecycle callbacks. Defaults to NoopObserver.
	Observer api.Observer

	// CheckpointCapacity bounds per-run checkpoint history. Defaults to 10.
	CheckpointCapacity int
}

// Engine validates and executes pipelines. Safe for concurrent use;
// each Execute call is an independent run.
type Engine struct {
	router     *routing.Router
	observer   api.Observer
	registry   *handlerRegistry
	checkpoint int

	mu   sync.Mutex
	runs map[string]*runController
}

var _ api.Engine = (*Engine)(nil)

func New(opts Options) (*Engine, error) {
	if opts.Router == nil {
		return nil, api.NewConfigurationError("", "engine requires a router")
	}
	obs := opts.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	return &Engine{
		router:     opts.Router,
		observer:   obs,
		registry:   newHandlerRegistry(),
		checkpoint: opts.CheckpointCapacity,
		runs:       make(map[string]*runController),
	}, nil
}

func (e *Engine) RegisterHandler(t api.StepType, h api.Handler) error {
	return e.registry.RegisterHandler(t, h)
}

func (e *Engine) RegisterReducer(name string, fn api.ReduceFunc) error {
	return e.registry.RegisterReducer(name, fn)
}

// Validate checks the pipeline graph without executing anything.
func (e *Engine) Validate(steps []api.Step) *api.DAGValidationResult {
	return graph.Validate(steps)
}

// Execute validates and runs a pipeline to completion. Steps run in
// topological order; a failed step marks its transitive dependents
// StepSkipped and the run finishes FAILED after independent steps have run.
func (e *Engine) Execute(ctx context.Context, steps []api.Step, initial *api.ExecutionContext) (*api.ExecutionResult, error) {
	runID := uuid.NewString()
	result := &api.ExecutionResult{
		RunID:     runID,
		Status:    api.RunRunning,
		StartedAt: time.Now(),
	}

	validation := graph.Validate(steps)
	if !validation.Valid {
		err := api.NewValidationError("", "invalid pipeline: %s", firstIssue(validation.Errors))
		return e.fail(ctx, result, initial, err)
	}
	if err := e.preflight(steps); err != nil {
		return e.fail(ctx, result, initial, err)
	}

	ec := initial
	if ec == nil {
		ec = api.NewExecutionContext()
	}
	result.Context = ec

	ctrl := newRunController(e.checkpoint, ec, validation.Metadata.Order)
	e.mu.Lock()
	e.runs[runID] = ctrl
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.runs, runID)
		e.mu.Unlock()
	}()

	exec := &stepExecutor{
		runID:    runID,
		registry: e.registry,
		router:   e.router,
		observer: e.observer,
	}
	byID := make(map[string]api.Step, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
	}
	failed := make(map[string]bool)
	var firstErr error

	e.observer.OnRunStart(ctx, runID, len(steps))

	for _, id := range validation.Metadata.Order {
		if err := ctrl.waitIfPaused(ctx); err != nil {
			return e.fail(ctx, result, ec, err)
		}

		step := byID[id]
		if skip, blocker := e.blocked(step, failed); skip {
			failed[id] = true
			result.Steps = append(result.Steps, api.StepResult{
				StepID:   id,
				Name:     step.Name,
				Type:     step.Type,
				Status:   api.StepSkipped,
				Warnings: []string{fmt.Sprintf("skipped: dependency %q did not complete", blocker)},
			})
			continue
		}

		sr := exec.executeStep(ctx, step, ec)
		result.Steps = append(result.Steps, sr)

		if sr.Err != nil {
			if api.IsFatal(sr.Err) {
				return e.fail(ctx, result, ec, sr.Err)
			}
			failed[id] = true
			if firstErr == nil {
				firstErr = sr.Err
			}
			continue
		}

		ec.Variables[id] = sr.Output
		ec.Completed[id] = true
		if sr.Routing != nil {
			ec.Budget -= sr.Routing.EstimatedCost
		}
		cp := ctrl.createCheckpoint(id, ec)
		e.observer.OnCheckpoint(ctx, runID, cp)
	}

	if firstErr != nil {
		return e.fail(ctx, result, ec, firstErr)
	}
	result.Status = api.RunCompleted
	result.FinishedAt = time.Now()
	e.observer.OnRunCompleted(ctx, result)
	return result, nil
}

// preflight rejects pipelines containing handler-backed step types with no
// registered handler, before any step runs.
func (e *Engine) preflight(steps []api.Step) error {
	return e.checkHandlers(steps)
}

func (e *Engine) checkHandlers(steps []api.Step) error {
	for _, s := range steps {
		switch s.Type {
		case api.StepTask, api.StepAI:
			if _, ok := e.registry.Handler(s.Type); !ok {
				return api.NewConfigurationError(s.ID, "no handler registered for step type %q", s.Type)
			}
		case api.StepSwitch, api.StepLoop, api.StepScatter:
			for _, body := range bodySteps(s) {
				if err := e.checkHandlers(body); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// blocked reports whether a step must be skipped because one of its
// dependencies failed or was skipped.
func (e *Engine) blocked(step api.Step, failed map[string]bool) (bool, string) {
	for _, ref := range graph.RefsInValue(step.Params) {
		if failed[ref.StepID] {
			return true, ref.StepID
		}
	}
	return false, ""
}

func (e *Engine) fail(ctx context.Context, result *api.ExecutionResult, ec *api.ExecutionContext, err error) (*api.ExecutionResult, error) {
	result.Status = api.RunFailed
	result.Err = err
	result.Context = ec
	result.FinishedAt = time.Now()
	e.observer.OnRunFailed(ctx, result, err)
	return result, err
}

// Pause asks a run to halt at the next step boundary.
func (e *Engine) Pause(runID string) error {
	ctrl, err := e.run(runID)
	if err != nil {
		return err
	}
	ctrl.pause()
	return nil
}

// Resume lets a paused run continue.
func (e *Engine) Resume(runID string) error {
	ctrl, err := e.run(runID)
	if err != nil {
		return err
	}
	ctrl.resume()
	return nil
}

// Checkpoints lists a run's retained checkpoints, oldest first.
func (e *Engine) Checkpoints(runID string) ([]api.Checkpoint, error) {
	ctrl, err := e.run(runID)
	if err != nil {
		return nil, err
	}
	return ctrl.list(), nil
}

// Rollback restores an in-flight run from the newest checkpoint at or
// before targetStepID, discarding newer checkpoints. The caller is responsible
// for pausing first; rolling back a running run races with it.
func (e *Engine) Rollback(runID, targetStepID string) error {
	ctrl, err := e.run(runID)
	if err != nil {
		return err
	}
	// The controller restores into the run's live context, which the run
	// loop shares. The caller should pause first.
	cp, err := ctrl.rollback(targetStepID)
	if err != nil {
		return err
	}
	e.observer.OnRollback(context.Background(), runID, cp)
	return nil
}

func (e *Engine) run(runID string) (*runController, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ctrl, ok := e.runs[runID]
	if !ok {
		return nil, api.NewValidationError("", "unknown run %q", runID)
	}
	return ctrl, nil
}

// bodySteps extracts nested step lists from a container step's raw params.
func bodySteps(s api.Step) [][]api.Step {
	var out [][]api.Step
	for _, key := range []string{"steps", "default"} {
		if body := decodeSteps(s.Params[key]); len(body) > 0 {
			out = append(out, body)
		}
	}
	if cases, ok := s.Params["cases"].([]any); ok {
		for _, c := range cases {
			if cm, ok := c.(map[string]any); ok {
				if body := decodeSteps(cm["steps"]); len(body) > 0 {
					out = append(out, body)
				}
			}
		}
	}
	return out
}

func decodeSteps(v any) []api.Step {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	var steps []api.Step
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, _ := m["id"].(string)
		t, _ := m["type"].(string)
		if id == "" || t == "" {
			continue
		}
		// Params are carried along so containers nested inside bodies get
		// their own bodies checked too.
		params, _ := m["params"].(map[string]any)
		steps = append(steps, api.Step{ID: id, Type: api.StepType(t), Params: params})
	}
	return steps
}

func firstIssue(issues []api.ValidationIssue) string {
	if len(issues) == 0 {
		return "unknown validation failure"
	}
	return issues[0].Message
}
