package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/petrijr/stepflow/internal/dataops"
	"github.com/petrijr/stepflow/internal/routing"
	"github.com/petrijr/stepflow/pkg/api"
)

// stepExecutor dispatches steps to their handlers for one run. Dispatch is
// a pure function of the step type; retries are an external wrapper's
// concern and never happen here.
type stepExecutor struct {
	runID    string
	registry *handlerRegistry
	router   *routing.Router
	observer api.Observer
}

// executeStep runs one step against ec and returns its result. It never
// writes to ec; the caller records outputs at the step boundary.
func (x *stepExecutor) executeStep(ctx context.Context, step api.Step, ec *api.ExecutionContext) api.StepResult {
	res := api.StepResult{
		StepID:    step.ID,
		Name:      step.Name,
		Type:      step.Type,
		Status:    api.StepRunning,
		StartedAt: time.Now(),
	}
	x.observer.OnStepStart(ctx, x.runID, step)

	output, warnings, err := x.dispatch(ctx, step, ec, &res)

	res.FinishedAt = time.Now()
	res.Duration = res.FinishedAt.Sub(res.StartedAt)
	res.Warnings = append(res.Warnings, warnings...)
	if err != nil {
		res.Status = api.StepFailed
		res.Err = err
		// Scatter fail-fast leaves a partial gather here; other step
		// types return nil output on error.
		res.Output = output
	} else {
		res.Status = api.StepCompleted
		res.Output = output
	}

	x.observer.OnStepCompleted(ctx, x.runID, step, res)
	return res
}

func (x *stepExecutor) dispatch(ctx context.Context, step api.Step, ec *api.ExecutionContext, res *api.StepResult) (any, []string, error) {
	if !step.Type.Valid() {
		return nil, nil, api.NewConfigurationError(step.ID, "unknown step type %q", step.Type)
	}

	params, err := resolveParams(step, ec.Variables)
	if err != nil {
		return nil, nil, err
	}
	params = applyPreprocess(params, step.Preprocess)

	var (
		output   any
		warnings []string
	)
	switch step.Type {
	case api.StepDataOps:
		output, warnings, err = x.runDataOps(step, params)
	case api.StepSwitch:
		output, warnings, err = x.runSwitch(ctx, step, params, ec)
	case api.StepLoop:
		output, warnings, err = x.runLoop(ctx, step, params, ec)
	case api.StepScatter:
		output, warnings, err = x.runScatter(ctx, step, params, ec)
	default: // task, ai
		output, err = x.runHandler(ctx, step, params, ec, res)
	}
	if err != nil {
		return output, warnings, err
	}

	// Step-level data operations post-process the output of any step type.
	if len(step.DataOps) > 0 {
		ops := dataops.New()
		output, err = ops.Apply(output, step.DataOps)
		warnings = append(warnings, ops.Warnings()...)
		if err != nil {
			return nil, warnings, withStepID(err, step.ID)
		}
	}
	return output, warnings, nil
}

// aiParams configures routing for an AI-driven step.
type aiParams struct {
	// Strategy overrides the router's default blend strategy.
	Strategy string `mapstructure:"strategy"`

	// Complexity is the step's pre-computed complexity score in [0,10].
	Complexity *float64 `mapstructure:"complexity"`

	// ComplexityInputs are raw per-dimension inputs scored by the router
	// when Complexity is absent.
	ComplexityInputs map[string]float64 `mapstructure:"complexity_inputs"`
}

// runHandler executes a registered task/ai handler. For AI steps the router
// decides the tier first and the outcome is recorded to routing memory
// afterwards.
func (x *stepExecutor) runHandler(ctx context.Context, step api.Step, params map[string]any, ec *api.ExecutionContext, res *api.StepResult) (any, error) {
	h, ok := x.registry.Handler(step.Type)
	if !ok {
		return nil, api.NewConfigurationError(step.ID, "no handler registered for step type %q", step.Type)
	}

	inv := api.Invocation{
		RunID:   x.runID,
		Step:    step,
		Params:  params,
		Context: ec,
	}

	var effective float64
	if step.Type == api.StepAI {
		var ap aiParams
		if err := mapstructure.Decode(params, &ap); err != nil {
			return nil, api.NewConfigurationError(step.ID, "decode ai params: %v", err)
		}
		stepScore := 0.0
		if ap.Complexity != nil {
			stepScore = *ap.Complexity
		} else if len(ap.ComplexityInputs) > 0 {
			stepScore = x.router.Score(ap.ComplexityInputs).Combined
		}

		decision, err := x.router.Decide(ec.AgentID, step.Type, ap.Strategy, ec.AgentComplexityScore, stepScore)
		if err != nil {
			return nil, withStepID(err, step.ID)
		}
		effective, _ = x.router.Blend(ap.Strategy, ec.AgentComplexityScore, stepScore)
		res.Routing = &decision
		inv.Routing = &decision
		x.observer.OnRoutingDecision(ctx, x.runID, step.ID, decision)
	}

	start := time.Now()
	out, err := h.Execute(ctx, inv)
	elapsed := time.Since(start)

	if step.Type == api.StepAI && inv.Routing != nil {
		// Outcomes are append-only; recording never changes the decision
		// already made for this step.
		recErr := x.router.RecordOutcome(ec.AgentID, step.Type, effective,
			inv.Routing.Tier, err == nil, inv.Routing.EstimatedCost,
			float64(elapsed.Milliseconds()))
		if recErr != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("routing memory: %v", recErr))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("step %q: %w", step.ID, err)
	}
	return out, nil
}

// runDataOps executes a data_ops step: its resolved "input" param flows
// through the "operations" pipeline.
func (x *stepExecutor) runDataOps(step api.Step, params map[string]any) (any, []string, error) {
	var spec struct {
		Input      any              `mapstructure:"input"`
		Operations []map[string]any `mapstructure:"operations"`
	}
	if err := mapstructure.Decode(params, &spec); err != nil {
		return nil, nil, api.NewConfigurationError(step.ID, "decode data_ops params: %v", err)
	}
	ops := dataops.New()
	out, err := ops.Apply(spec.Input, spec.Operations)
	if err != nil {
		return nil, ops.Warnings(), withStepID(err, step.ID)
	}
	return out, ops.Warnings(), nil
}

// switchParams configures a switch step. The branch bodies stay unresolved
// until the chosen branch executes.
type switchParams struct {
	Value any `mapstructure:"value"`
	Cases []struct {
		Match any        `mapstructure:"match"`
		Steps []api.Step `mapstructure:"steps"`
	} `mapstructure:"cases"`
	Default []api.Step `mapstructure:"default"`
}

// runSwitch executes the first case whose match value equals the resolved
// switch value exactly, else the default branch, else a no-op.
func (x *stepExecutor) runSwitch(ctx context.Context, step api.Step, params map[string]any, ec *api.ExecutionContext) (any, []string, error) {
	var sp switchParams
	if err := mapstructure.Decode(params, &sp); err != nil {
		return nil, nil, api.NewConfigurationError(step.ID, "decode switch params: %v", err)
	}

	branch := sp.Default
	for _, c := range sp.Cases {
		if dataops.ValuesEqual(sp.Value, c.Match) {
			branch = c.Steps
			break
		}
	}
	if len(branch) == 0 {
		return nil, nil, nil
	}
	return x.runBody(ctx, step, branch, ec.Clone())
}

// loopParams configures a loop step.
type loopParams struct {
	Items       any        `mapstructure:"items"`
	Steps       []api.Step `mapstructure:"steps"`
	StopOnError bool       `mapstructure:"stop_on_error"`
}

// runLoop iterates the body sequentially over items. A failed iteration is
// recorded as a warning and iteration continues, unless stop_on_error is
// set, in which case the step fails with that iteration's error.
func (x *stepExecutor) runLoop(ctx context.Context, step api.Step, params map[string]any, ec *api.ExecutionContext) (any, []string, error) {
	var lp loopParams
	if err := mapstructure.Decode(params, &lp); err != nil {
		return nil, nil, api.NewConfigurationError(step.ID, "decode loop params: %v", err)
	}

	items := dataops.AsList(lp.Items)
	outputs := make([]any, 0, len(items))
	var warnings []string

	for i, item := range items {
		select {
		case <-ctx.Done():
			return nil, warnings, ctx.Err()
		default:
		}

		branch := ec.Clone()
		branch.Variables["item"] = item
		branch.Variables["index"] = i

		out, ws, err := x.runBody(ctx, step, lp.Steps, branch)
		warnings = append(warnings, ws...)
		if err != nil {
			if lp.StopOnError {
				return nil, warnings, fmt.Errorf("iteration %d: %w", i, err)
			}
			warnings = append(warnings, fmt.Sprintf("iteration %d failed: %v", i, err))
			outputs = append(outputs, nil)
			continue
		}
		outputs = append(outputs, out)
	}
	return outputs, warnings, nil
}

// runBody executes nested body steps sequentially against a private branch
// context. Each body step's output becomes a branch variable; the body's
// output is the last step's output.
func (x *stepExecutor) runBody(ctx context.Context, container api.Step, body []api.Step, branch *api.ExecutionContext) (any, []string, error) {
	var (
		last     any
		warnings []string
	)
	for _, bs := range body {
		if bs.ID == "" {
			return nil, warnings, api.NewConfigurationError(container.ID, "body step of %q has no id", container.ID)
		}
		res := x.executeStep(ctx, bs, branch)
		warnings = append(warnings, res.Warnings...)
		if res.Err != nil {
			return nil, warnings, res.Err
		}
		branch.Variables[bs.ID] = res.Output
		branch.Completed[bs.ID] = true
		last = res.Output
	}
	return last, warnings, nil
}

// withStepID stamps the offending step onto an engine error that was
// constructed without one.
func withStepID(err error, stepID string) error {
	if e, ok := err.(*api.Error); ok && e.StepID == "" {
		return &api.Error{Kind: e.Kind, StepID: stepID, Msg: e.Msg, Cause: e.Cause}
	}
	return err
}
