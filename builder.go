package stepflow

import (
	"fmt"

	"github.com/petrijr/stepflow/pkg/api"
)

// PipelineBuilder provides a fluent API for defining pipelines:
//
//	steps := stepflow.NewPipeline().
//	    Task("fetch", map[string]any{"url": "https://example.com/orders"}).
//	    DataOps("clean", "{{fetch}}",
//	        map[string]any{"op": "filter", "conditions": []any{
//	            map[string]any{"field": "status", "operator": "!=", "value": "void"},
//	        }},
//	        map[string]any{"op": "deduplicate", "fields": []any{"order_id"}},
//	    ).
//	    AI("summarize", map[string]any{"prompt": "Summarize {{clean}}"}).
//	    Steps()
//
//	result, err := stepflow.Execute(ctx, engine, steps, nil)
type PipelineBuilder struct {
	steps []api.Step
}

// NewPipeline creates an empty pipeline builder.
func NewPipeline() *PipelineBuilder {
	return &PipelineBuilder{}
}

// Steps returns the built step list.
func (b *PipelineBuilder) Steps() []api.Step {
	return b.steps
}

func (b *PipelineBuilder) add(id string, t api.StepType, params map[string]any) *PipelineBuilder {
	if id == "" {
		panic("stepflow: step id must not be empty")
	}
	if params == nil {
		params = map[string]any{}
	}
	b.steps = append(b.steps, api.Step{ID: id, Type: t, Params: params})
	return b
}

// Task appends a task step handled by the registered task handler.
func (b *PipelineBuilder) Task(id string, params map[string]any) *PipelineBuilder {
	return b.add(id, api.StepTask, params)
}

// AI appends an AI-driven step routed through the complexity router.
func (b *PipelineBuilder) AI(id string, params map[string]any) *PipelineBuilder {
	return b.add(id, api.StepAI, params)
}

// DataOps appends a data-operations step running the given operation specs
// over input.
func (b *PipelineBuilder) DataOps(id string, input any, operations ...map[string]any) *PipelineBuilder {
	ops := make([]any, 0, len(operations))
	for _, op := range operations {
		ops = append(ops, op)
	}
	return b.add(id, api.StepDataOps, map[string]any{
		"input":      input,
		"operations": ops,
	})
}

// Switch appends a multi-branch step. Cases pair a match value with a
// branch body; a nil defaultSteps means no default branch.
func (b *PipelineBuilder) Switch(id string, value any, cases []SwitchCase, defaultSteps []api.Step) *PipelineBuilder {
	cs := make([]any, 0, len(cases))
	for i, c := range cases {
		if len(c.Steps) == 0 {
			panic(fmt.Sprintf("stepflow: switch %q case %d has no steps", id, i))
		}
		cs = append(cs, map[string]any{"match": c.Match, "steps": stepsToAny(c.Steps)})
	}
	params := map[string]any{"value": value, "cases": cs}
	if len(defaultSteps) > 0 {
		params["default"] = stepsToAny(defaultSteps)
	}
	return b.add(id, api.StepSwitch, params)
}

// SwitchCase is one branch of a Switch step.
type SwitchCase struct {
	Match any
	Steps []api.Step
}

// Loop appends a sequential iteration step over items.
func (b *PipelineBuilder) Loop(id string, items any, body []api.Step) *PipelineBuilder {
	return b.add(id, api.StepLoop, map[string]any{
		"items": items,
		"steps": stepsToAny(body),
	})
}

// Scatter appends a parallel fan-out step over items with the given gather
// mode. Extra options such as "max_concurrency", "fail_fast" and "reducer"
// go in opts.
func (b *PipelineBuilder) Scatter(id string, items any, body []api.Step, gather string, opts map[string]any) *PipelineBuilder {
	params := map[string]any{
		"items":  items,
		"steps":  stepsToAny(body),
		"gather": gather,
	}
	for k, v := range opts {
		params[k] = v
	}
	return b.add(id, api.StepScatter, params)
}

// stepsToAny converts body steps to the raw params representation the
// executor resolves lazily per branch.
func stepsToAny(steps []api.Step) []any {
	out := make([]any, 0, len(steps))
	for _, s := range steps {
		m := map[string]any{"id": s.ID, "type": string(s.Type)}
		if s.Name != "" {
			m["name"] = s.Name
		}
		if len(s.Params) > 0 {
			m["params"] = s.Params
		}
		out = append(out, m)
	}
	return out
}
