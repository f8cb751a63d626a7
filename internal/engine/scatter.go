package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/petrijr/stepflow/internal/dataops"
	"github.com/petrijr/stepflow/pkg/api"
	"github.com/petrijr/stepflow/pkg/worker"
)

// scatterParams configures a scatter step. The body stays unresolved until
// each branch executes with its own item.
type scatterParams struct {
	Items          any        `mapstructure:"items"`
	MaxConcurrency int        `mapstructure:"max_concurrency"`
	FailFast       bool       `mapstructure:"fail_fast"`
	Gather         string     `mapstructure:"gather"`
	Reducer        string     `mapstructure:"reducer"`
	Steps          []api.Step `mapstructure:"steps"`
}

// branchResult carries one branch's outcome back to the gather phase.
// Index is the item's position in the input, not completion order.
type branchResult struct {
	index  int
	output any
	warns  []string
	err    error
}

// runScatter fans the body out over items with a fixed worker pool and
// gathers the branch outputs. Results are positioned by input order
// regardless of completion order.
func (x *stepExecutor) runScatter(ctx context.Context, step api.Step, params map[string]any, ec *api.ExecutionContext) (any, []string, error) {
	var sp scatterParams
	if err := mapstructure.Decode(params, &sp); err != nil {
		return nil, nil, api.NewConfigurationError(step.ID, "decode scatter params: %v", err)
	}
	if sp.Gather == "" {
		sp.Gather = "collect"
	}

	items := dataops.AsList(sp.Items)
	if len(items) == 0 {
		return x.gather(step, sp, nil)
	}

	// Each index is written by exactly one branch; the pool's Map
	// establishes the happens-before for reading them afterwards.
	results := make([]*branchResult, len(items))
	pool := worker.New(sp.MaxConcurrency)
	err := pool.Map(ctx, len(items), sp.FailFast, func(branchCtx context.Context, i int) error {
		br := x.runBranch(branchCtx, step, sp, items[i], i, ec)
		results[i] = br
		return br.err
	})
	// Parent cancellation outranks branch errors.
	if err != nil {
		return nil, nil, err
	}

	var (
		warnings []string
		failures []error
		done     []*branchResult
	)
	for _, br := range results {
		if br == nil {
			continue // never started, fail-fast dropped it
		}
		warnings = append(warnings, br.warns...)
		if br.err != nil {
			failures = append(failures, &api.ItemError{Index: br.index, Item: items[br.index], Cause: br.err})
			continue
		}
		done = append(done, br)
	}

	if len(failures) > 0 && sp.FailFast {
		// Gather still runs over the branches that finished; the partial
		// result rides on the StepResult next to the triggering error.
		out, gatherWarns, gerr := x.gather(step, sp, done)
		warnings = append(warnings, gatherWarns...)
		if gerr != nil {
			warnings = append(warnings, gerr.Error())
		}
		return out, warnings, triggerFailure(failures)
	}
	for _, f := range failures {
		warnings = append(warnings, f.Error())
	}

	out, gatherWarns, err := x.gather(step, sp, done)
	warnings = append(warnings, gatherWarns...)
	return out, warnings, err
}

// triggerFailure picks the failure that tripped fail-fast. Lower-index
// branches still in flight when the pool cancelled report context
// cancellation; the trigger is the first failure that is not one of those
// casualties.
func triggerFailure(failures []error) error {
	for _, f := range failures {
		if !errors.Is(f, context.Canceled) && !errors.Is(f, context.DeadlineExceeded) {
			return f
		}
	}
	return failures[0]
}

func (x *stepExecutor) runBranch(ctx context.Context, step api.Step, sp scatterParams, item any, index int, ec *api.ExecutionContext) *branchResult {
	if ctx.Err() != nil {
		return &branchResult{index: index, err: ctx.Err()}
	}

	branch := ec.Clone()
	branch.Variables["item"] = item
	branch.Variables["index"] = index

	start := time.Now()
	out, warns, err := x.runBody(ctx, step, sp.Steps, branch)
	x.observer.OnScatterItem(ctx, x.runID, step.ID, index, err, time.Since(start))
	return &branchResult{index: index, output: out, warns: warns, err: err}
}

// gather combines completed branch outputs per the configured mode.
func (x *stepExecutor) gather(step api.Step, sp scatterParams, done []*branchResult) (any, []string, error) {
	switch sp.Gather {
	case "collect":
		outputs := make([]any, 0, len(done))
		for _, br := range done {
			outputs = append(outputs, br.output)
		}
		return outputs, nil, nil

	case "merge":
		merged := map[string]any{}
		var warnings []string
		for _, br := range done {
			rec, ok := br.output.(map[string]any)
			if !ok {
				warnings = append(warnings, fmt.Sprintf("merge: item %d output is not an object, skipped", br.index))
				continue
			}
			// Later branches win key collisions; branch order follows
			// input order.
			keys := make([]string, 0, len(rec))
			for k := range rec {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				merged[k] = rec[k]
			}
		}
		return merged, warnings, nil

	case "reduce":
		reduce, ok := x.registry.Reducer(sp.Reducer)
		if !ok {
			return nil, nil, api.NewConfigurationError(step.ID, "unknown reducer %q", sp.Reducer)
		}
		var acc any
		for _, br := range done {
			var err error
			acc, err = reduce(acc, br.output)
			if err != nil {
				return nil, nil, api.NewDataOperationError(step.ID, "reduce: %v", err)
			}
		}
		return acc, nil, nil

	default:
		return nil, nil, api.NewConfigurationError(step.ID, "unknown gather mode %q", sp.Gather)
	}
}
