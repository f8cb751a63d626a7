package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/petrijr/stepflow/internal/memstore"
	"github.com/petrijr/stepflow/internal/routing"
	"github.com/petrijr/stepflow/pkg/api"
)

// echoHandler returns its resolved params, so tests can observe resolution.
var echoHandler = api.HandlerFunc(func(ctx context.Context, inv api.Invocation) (any, error) {
	return inv.Params, nil
})

func newTestEngine(t *testing.T, obs api.Observer) *Engine {
	t.Helper()
	cfg := routing.DefaultConfig()
	cfg.Maturity.MinExecutions = 0
	router, err := routing.NewRouter(cfg, memstore.NewInMemoryStore())
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}
	eng, err := New(Options{Router: router, Observer: obs})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := eng.RegisterHandler(api.StepTask, echoHandler); err != nil {
		t.Fatalf("RegisterHandler failed: %v", err)
	}
	if err := eng.RegisterHandler(api.StepAI, echoHandler); err != nil {
		t.Fatalf("RegisterHandler failed: %v", err)
	}
	return eng
}

func TestSequentialExecutionAndResolution(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, nil)
	eng.RegisterHandler(api.StepTask, api.HandlerFunc(func(ctx context.Context, inv api.Invocation) (any, error) {
		if inv.Step.ID == "produce" {
			return map[string]any{"value": 42.0, "label": "answer"}, nil
		}
		return inv.Params, nil
	}))

	steps := []api.Step{
		{ID: "produce", Type: api.StepTask},
		{ID: "consume", Type: api.StepTask, Params: map[string]any{
			"whole":    "{{produce.value}}",
			"embedded": "the {{produce.label}} is {{produce.value}}",
		}},
	}

	res, err := eng.Execute(context.Background(), steps, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Status != api.RunCompleted {
		t.Fatalf("status = %v", res.Status)
	}
	if res.RunID == "" || res.FinishedAt.Before(res.StartedAt) {
		t.Fatalf("run metadata incomplete: %+v", res)
	}

	sr, ok := res.StepResultByID("consume")
	if !ok {
		t.Fatal("consume result missing")
	}
	out := sr.Output.(map[string]any)
	// Whole-token params keep the referenced value's type.
	if out["whole"] != 42.0 {
		t.Fatalf("whole = %v (%T), want 42.0", out["whole"], out["whole"])
	}
	if out["embedded"] != "the answer is 42" {
		t.Fatalf("embedded = %v", out["embedded"])
	}
	if !res.Context.Completed["produce"] || !res.Context.Completed["consume"] {
		t.Fatalf("completed set = %v", res.Context.Completed)
	}
}

func TestExecutionFollowsTopologicalOrder(t *testing.T) {
	t.Parallel()

	var order []string
	eng := newTestEngine(t, nil)
	eng.RegisterHandler(api.StepTask, api.HandlerFunc(func(ctx context.Context, inv api.Invocation) (any, error) {
		order = append(order, inv.Step.ID)
		return inv.Step.ID, nil
	}))

	// Declared out of dependency order on purpose.
	steps := []api.Step{
		{ID: "c", Type: api.StepTask, Params: map[string]any{"in": "{{b}}"}},
		{ID: "b", Type: api.StepTask, Params: map[string]any{"in": "{{a}}"}},
		{ID: "a", Type: api.StepTask},
	}

	res, err := eng.Execute(context.Background(), steps, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Status != api.RunCompleted {
		t.Fatalf("status = %v", res.Status)
	}
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("execution order = %v", order)
	}
}

func TestInvalidGraphAbortsBeforeExecution(t *testing.T) {
	t.Parallel()

	invoked := false
	eng := newTestEngine(t, nil)
	eng.RegisterHandler(api.StepTask, api.HandlerFunc(func(ctx context.Context, inv api.Invocation) (any, error) {
		invoked = true
		return nil, nil
	}))

	steps := []api.Step{
		{ID: "a", Type: api.StepTask, Params: map[string]any{"in": "{{b}}"}},
		{ID: "b", Type: api.StepTask, Params: map[string]any{"in": "{{a}}"}},
	}

	res, err := eng.Execute(context.Background(), steps, nil)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if api.KindOf(err) != api.KindValidation {
		t.Fatalf("kind = %v", api.KindOf(err))
	}
	if res.Status != api.RunFailed || len(res.Steps) != 0 {
		t.Fatalf("invalid graph must abort with zero steps executed: %+v", res)
	}
	if invoked {
		t.Fatal("handler must not run for an invalid graph")
	}
}

func TestMissingHandlerFailsPreflight(t *testing.T) {
	t.Parallel()

	cfg := routing.DefaultConfig()
	router, err := routing.NewRouter(cfg, nil)
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}
	eng, err := New(Options{Router: router})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	res, err := eng.Execute(context.Background(), []api.Step{{ID: "x", Type: api.StepTask}}, nil)
	if err == nil {
		t.Fatal("expected configuration error")
	}
	if api.KindOf(err) != api.KindConfiguration {
		t.Fatalf("kind = %v", api.KindOf(err))
	}
	if len(res.Steps) != 0 {
		t.Fatal("no step may run without its handler")
	}
}

func TestUnknownStepTypeIsFatal(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, nil)
	_, err := eng.Execute(context.Background(), []api.Step{{ID: "x", Type: api.StepType("warp")}}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if api.KindOf(err) != api.KindConfiguration {
		t.Fatalf("kind = %v", api.KindOf(err))
	}
}

func TestFailedStepSkipsDependentsButNotIndependents(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, nil)
	eng.RegisterHandler(api.StepTask, api.HandlerFunc(func(ctx context.Context, inv api.Invocation) (any, error) {
		if inv.Step.ID == "flaky" {
			return nil, errors.New("upstream down")
		}
		return inv.Step.ID, nil
	}))

	steps := []api.Step{
		{ID: "flaky", Type: api.StepTask},
		{ID: "dependent", Type: api.StepTask, Params: map[string]any{"in": "{{flaky}}"}},
		{ID: "transitive", Type: api.StepTask, Params: map[string]any{"in": "{{dependent}}"}},
		{ID: "independent", Type: api.StepTask},
	}

	res, err := eng.Execute(context.Background(), steps, nil)
	if err == nil {
		t.Fatal("expected run failure")
	}
	if res.Status != api.RunFailed {
		t.Fatalf("status = %v", res.Status)
	}

	want := map[string]api.StepStatus{
		"flaky":       api.StepFailed,
		"dependent":   api.StepSkipped,
		"transitive":  api.StepSkipped,
		"independent": api.StepCompleted,
	}
	for id, status := range want {
		sr, ok := res.StepResultByID(id)
		if !ok {
			t.Fatalf("no result for %q", id)
		}
		if sr.Status != status {
			t.Fatalf("%s status = %v, want %v", id, sr.Status, status)
		}
	}
}

func TestDataOpsStep(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, nil)
	steps := []api.Step{
		{ID: "shape", Type: api.StepDataOps, Params: map[string]any{
			"input": []any{
				map[string]any{"region": "eu", "amount": 10.0},
				map[string]any{"region": "us", "amount": 20.0},
				map[string]any{"region": "eu", "amount": 30.0},
			},
			"operations": []any{
				map[string]any{"op": "filter", "conditions": []any{
					map[string]any{"field": "region", "operator": "==", "value": "eu"},
				}},
				map[string]any{"op": "aggregate", "operations": []any{
					map[string]any{"op": "sum", "field": "amount"},
				}},
			},
		}},
	}

	res, err := eng.Execute(context.Background(), steps, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	sr, _ := res.StepResultByID("shape")
	out := sr.Output.(map[string]any)
	if out["sum_amount"] != 40.0 {
		t.Fatalf("sum = %v, want 40", out["sum_amount"])
	}
}

func TestStepLevelDataOpsPostProcessOutput(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, nil)
	eng.RegisterHandler(api.StepTask, api.HandlerFunc(func(ctx context.Context, inv api.Invocation) (any, error) {
		return []any{
			map[string]any{"n": 3.0},
			map[string]any{"n": 1.0},
			map[string]any{"n": 2.0},
		}, nil
	}))

	steps := []api.Step{
		{ID: "src", Type: api.StepTask, DataOps: []map[string]any{
			{"op": "sort", "keys": []any{map[string]any{"field": "n"}}},
			{"op": "limit", "count": 1},
		}},
	}

	res, err := eng.Execute(context.Background(), steps, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	sr, _ := res.StepResultByID("src")
	recs, ok := sr.Output.([]map[string]any)
	if !ok {
		t.Fatalf("output type %T", sr.Output)
	}
	if len(recs) != 1 || recs[0]["n"] != 1.0 {
		t.Fatalf("output = %v", recs)
	}
}

func TestSwitchStep(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, nil)
	mkSwitch := func(value any) []api.Step {
		return []api.Step{
			{ID: "route", Type: api.StepSwitch, Params: map[string]any{
				"value": value,
				"cases": []any{
					map[string]any{"match": "eu", "steps": []any{
						map[string]any{"id": "eu_branch", "type": "task", "params": map[string]any{"region": "europe"}},
					}},
					map[string]any{"match": "us", "steps": []any{
						map[string]any{"id": "us_branch", "type": "task", "params": map[string]any{"region": "america"}},
					}},
				},
				"default": []any{
					map[string]any{"id": "other", "type": "task", "params": map[string]any{"region": "other"}},
				},
			}},
		}
	}

	cases := []struct {
		value any
		want  string
	}{
		{"eu", "europe"},
		{"us", "america"},
		{"apac", "other"},
	}
	for _, tc := range cases {
		res, err := eng.Execute(context.Background(), mkSwitch(tc.value), nil)
		if err != nil {
			t.Fatalf("Execute(%v) failed: %v", tc.value, err)
		}
		sr, _ := res.StepResultByID("route")
		out := sr.Output.(map[string]any)
		if out["region"] != tc.want {
			t.Fatalf("value %v routed to %v, want %v", tc.value, out["region"], tc.want)
		}
	}
}

func TestSwitchWithoutMatchOrDefaultIsNoop(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, nil)
	steps := []api.Step{
		{ID: "route", Type: api.StepSwitch, Params: map[string]any{
			"value": "nothing",
			"cases": []any{
				map[string]any{"match": "eu", "steps": []any{
					map[string]any{"id": "b", "type": "task"},
				}},
			},
		}},
	}
	res, err := eng.Execute(context.Background(), steps, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	sr, _ := res.StepResultByID("route")
	if sr.Status != api.StepCompleted || sr.Output != nil {
		t.Fatalf("no-op switch: status=%v output=%v", sr.Status, sr.Output)
	}
}

func TestLoopStep(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, nil)
	steps := []api.Step{
		{ID: "each", Type: api.StepLoop, Params: map[string]any{
			"items": []any{"a", "b", "c"},
			"steps": []any{
				map[string]any{"id": "tag", "type": "task", "params": map[string]any{
					"value": "{{item}}", "position": "{{index}}",
				}},
			},
		}},
	}

	res, err := eng.Execute(context.Background(), steps, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	sr, _ := res.StepResultByID("each")
	outs := sr.Output.([]any)
	if len(outs) != 3 {
		t.Fatalf("got %d iteration outputs", len(outs))
	}
	second := outs[1].(map[string]any)
	if second["value"] != "b" || second["position"] != 1 {
		t.Fatalf("iteration 1 = %v", second)
	}
}

func TestLoopContinuesPastFailures(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, nil)
	eng.RegisterHandler(api.StepTask, api.HandlerFunc(func(ctx context.Context, inv api.Invocation) (any, error) {
		if inv.Params["value"] == "bad" {
			return nil, errors.New("poison item")
		}
		return inv.Params["value"], nil
	}))

	mkLoop := func(stopOnError bool) []api.Step {
		return []api.Step{
			{ID: "each", Type: api.StepLoop, Params: map[string]any{
				"items":         []any{"ok", "bad", "fine"},
				"stop_on_error": stopOnError,
				"steps": []any{
					map[string]any{"id": "work", "type": "task", "params": map[string]any{"value": "{{item}}"}},
				},
			}},
		}
	}

	res, err := eng.Execute(context.Background(), mkLoop(false), nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	sr, _ := res.StepResultByID("each")
	outs := sr.Output.([]any)
	if len(outs) != 3 || outs[0] != "ok" || outs[1] != nil || outs[2] != "fine" {
		t.Fatalf("outputs = %v", outs)
	}
	if len(sr.Warnings) == 0 {
		t.Fatal("a failed iteration must leave a warning")
	}

	// stop_on_error turns the iteration failure into a step failure.
	res, err = eng.Execute(context.Background(), mkLoop(true), nil)
	if err == nil {
		t.Fatal("expected failure with stop_on_error")
	}
	if res.Status != api.RunFailed {
		t.Fatalf("status = %v", res.Status)
	}
}

func TestAIStepRoutingDecision(t *testing.T) {
	t.Parallel()

	store := memstore.NewInMemoryStore()
	cfg := routing.DefaultConfig()
	cfg.Maturity.MinExecutions = 0
	router, err := routing.NewRouter(cfg, store)
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}
	eng, err := New(Options{Router: router})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	var seen *api.RoutingDecision
	eng.RegisterHandler(api.StepAI, api.HandlerFunc(func(ctx context.Context, inv api.Invocation) (any, error) {
		seen = inv.Routing
		return "summary", nil
	}))

	ec := api.NewExecutionContext()
	ec.AgentID = "agent-7"
	ec.Budget = 1.0
	ec.AgentComplexityScore = 8.0

	steps := []api.Step{
		{ID: "think", Type: api.StepAI, Params: map[string]any{
			"complexity": 8.0,
			"strategy":   "balanced",
		}},
	}

	res, err := eng.Execute(context.Background(), steps, ec)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	sr, _ := res.StepResultByID("think")
	if sr.Routing == nil || seen == nil {
		t.Fatal("routing decision missing from result or invocation")
	}
	// 0.4*8 + 0.6*8 = 8.0, the powerful band.
	if sr.Routing.Tier != api.TierPowerful {
		t.Fatalf("tier = %v, want powerful", sr.Routing.Tier)
	}
	if res.Context.Budget != 1.0-sr.Routing.EstimatedCost {
		t.Fatalf("budget = %v, want decremented by %v", res.Context.Budget, sr.Routing.EstimatedCost)
	}

	// The outcome landed in routing memory under the agent's key.
	rec, err := store.GetRecommendation(routing.Key{AgentID: "agent-7", StepType: api.StepAI, Bucket: "high"})
	if err != nil {
		t.Fatalf("GetRecommendation failed: %v", err)
	}
	if rec == nil || rec.RunCount != 1 {
		t.Fatalf("recommendation = %+v, want one recorded run", rec)
	}
}

func TestObserverLifecycle(t *testing.T) {
	t.Parallel()

	metrics := &api.BasicMetrics{}
	eng := newTestEngine(t, metrics)

	steps := []api.Step{
		{ID: "a", Type: api.StepTask},
		{ID: "b", Type: api.StepTask, Params: map[string]any{"in": "{{a}}"}},
	}
	if _, err := eng.Execute(context.Background(), steps, nil); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	snap := metrics.Snapshot()
	if snap.RunsStarted != 1 || snap.RunsCompleted != 1 {
		t.Fatalf("run counters = %+v", snap)
	}
	if snap.StepsCompleted != 2 {
		t.Fatalf("step counter = %d, want 2", snap.StepsCompleted)
	}
}

func TestPauseBlocksAtStepBoundary(t *testing.T) {
	t.Parallel()

	runIDs := make(chan string, 1)
	obs := &runCapturingObserver{runIDs: runIDs}

	firstStarted := make(chan struct{})
	proceed := make(chan struct{})
	secondRan := make(chan struct{}, 1)

	eng := newTestEngine(t, obs)
	eng.RegisterHandler(api.StepTask, api.HandlerFunc(func(ctx context.Context, inv api.Invocation) (any, error) {
		switch inv.Step.ID {
		case "first":
			close(firstStarted)
			<-proceed
		case "second":
			secondRan <- struct{}{}
		}
		return inv.Step.ID, nil
	}))

	steps := []api.Step{
		{ID: "first", Type: api.StepTask},
		{ID: "second", Type: api.StepTask, Params: map[string]any{"in": "{{first}}"}},
	}

	done := make(chan *api.ExecutionResult, 1)
	go func() {
		res, _ := eng.Execute(context.Background(), steps, nil)
		done <- res
	}()

	<-firstStarted
	runID := <-runIDs
	if err := eng.Pause(runID); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	close(proceed) // first finishes; the run must now hold before second

	select {
	case <-secondRan:
		t.Fatal("second step ran while paused")
	case <-time.After(100 * time.Millisecond):
	}

	if err := eng.Resume(runID); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}

	select {
	case res := <-done:
		if res.Status != api.RunCompleted {
			t.Fatalf("status = %v", res.Status)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish after resume")
	}
	select {
	case <-secondRan:
	default:
		t.Fatal("second step never ran")
	}
}

func TestPauseUnknownRun(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, nil)
	if err := eng.Pause("no-such-run"); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

// runCapturingObserver forwards the run ID of each started run.
type runCapturingObserver struct {
	api.NoopObserver
	runIDs chan string
}

func (o *runCapturingObserver) OnRunStart(ctx context.Context, runID string, stepCount int) {
	select {
	case o.runIDs <- runID:
	default:
	}
}

func TestBodyStepWithoutIDFails(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, nil)
	steps := []api.Step{
		{ID: "each", Type: api.StepLoop, Params: map[string]any{
			"items": []any{"x"},
			"steps": []any{map[string]any{"type": "task"}},
		}},
	}
	_, err := eng.Execute(context.Background(), steps, nil)
	if err == nil {
		t.Fatal("expected error for body step without id")
	}
	if api.KindOf(err) != api.KindConfiguration {
		t.Fatalf("kind = %v", api.KindOf(err))
	}
}

func TestUnresolvedReferenceDuringResolution(t *testing.T) {
	t.Parallel()

	// resolveParams failing mid-run is an invariant violation surfaced as a
	// fatal validation error.
	x := &stepExecutor{
		runID:    "r",
		registry: newHandlerRegistry(),
		observer: api.NoopObserver{},
	}
	x.registry.RegisterHandler(api.StepTask, echoHandler)

	ec := api.NewExecutionContext()
	res := x.executeStep(context.Background(), api.Step{
		ID: "s", Type: api.StepTask,
		Params: map[string]any{"in": "{{ghost}}"},
	}, ec)
	if res.Status != api.StepFailed {
		t.Fatalf("status = %v", res.Status)
	}
	if api.KindOf(res.Err) != api.KindValidation {
		t.Fatalf("kind = %v", api.KindOf(res.Err))
	}
}

func TestPreprocessHints(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, nil)
	steps := []api.Step{
		{ID: "s", Type: api.StepTask,
			Params:     map[string]any{"Prompt": "  padded  "},
			Preprocess: &api.PreprocessHints{TrimStrings: true, LowercaseKeys: true}},
	}
	res, err := eng.Execute(context.Background(), steps, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	sr, _ := res.StepResultByID("s")
	out := sr.Output.(map[string]any)
	if out["prompt"] != "padded" {
		t.Fatalf("params = %v", out)
	}
}

func TestRegisterReducerValidation(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, nil)
	if err := eng.RegisterReducer("", func(a, v any) (any, error) { return v, nil }); err == nil {
		t.Fatal("expected error for empty reducer name")
	}
	if err := eng.RegisterReducer("last", nil); err == nil {
		t.Fatal("expected error for nil reducer")
	}
	if err := eng.RegisterReducer("last", func(a, v any) (any, error) { return v, nil }); err != nil {
		t.Fatalf("RegisterReducer failed: %v", err)
	}
}

func TestResolveIsolatesContainerBodies(t *testing.T) {
	t.Parallel()

	// The loop's own items param resolves at container time, but the body
	// subtree stays untouched until each iteration.
	vars := map[string]any{"src": []any{"x"}}
	step := api.Step{ID: "each", Type: api.StepLoop, Params: map[string]any{
		"items": "{{src}}",
		"steps": []any{
			map[string]any{"id": "b", "type": "task", "params": map[string]any{"v": "{{item}}"}},
		},
	}}

	params, err := resolveParams(step, vars)
	if err != nil {
		t.Fatalf("resolveParams failed: %v", err)
	}
	items, ok := params["items"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("items = %v", params["items"])
	}
	body := params["steps"].([]any)[0].(map[string]any)["params"].(map[string]any)
	if body["v"] != "{{item}}" {
		t.Fatalf("body token resolved early: %v", body["v"])
	}
}

func TestRunResultsIncludeTimings(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, nil)
	eng.RegisterHandler(api.StepTask, api.HandlerFunc(func(ctx context.Context, inv api.Invocation) (any, error) {
		time.Sleep(5 * time.Millisecond)
		return nil, nil
	}))

	res, err := eng.Execute(context.Background(), []api.Step{{ID: "slow", Type: api.StepTask}}, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	sr, _ := res.StepResultByID("slow")
	if sr.Duration < 5*time.Millisecond {
		t.Fatalf("duration = %v", sr.Duration)
	}
	if sr.FinishedAt.Before(sr.StartedAt) {
		t.Fatal("finished before started")
	}
}

func TestConcurrentIndependentRuns(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, nil)
	const runs = 8
	errs := make(chan error, runs)
	for i := 0; i < runs; i++ {
		i := i
		go func() {
			steps := []api.Step{
				{ID: "a", Type: api.StepTask, Params: map[string]any{"n": fmt.Sprintf("%d", i)}},
				{ID: "b", Type: api.StepTask, Params: map[string]any{"in": "{{a.n}}"}},
			}
			res, err := eng.Execute(context.Background(), steps, nil)
			if err != nil {
				errs <- err
				return
			}
			sr, _ := res.StepResultByID("b")
			got := sr.Output.(map[string]any)["in"]
			if got != fmt.Sprintf("%d", i) {
				errs <- fmt.Errorf("run %d saw %v", i, got)
				return
			}
			errs <- nil
		}()
	}
	for i := 0; i < runs; i++ {
		if err := <-errs; err != nil {
			t.Fatal(err)
		}
	}
}
