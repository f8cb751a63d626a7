// Package graph derives a dependency DAG from step reference tokens and
// validates it before any execution begins.
package graph

import (
	"fmt"
	"sort"

	"github.com/petrijr/stepflow/pkg/api"
)

// dfs colors for cycle detection.
const (
	white = iota // unvisited
	gray         // on the current DFS stack
	black        // fully explored
)

// Validate builds the dependency graph of steps and checks it. It must
// succeed before a run starts; an invalid result aborts the whole run with
// zero steps executed.
//
// Checks, in order: unique IDs, known references, acyclicity. Topological
// order, merge points, critical path and reachability are reported through
// the metadata. Unreachable steps are warnings, never fatal.
func Validate(steps []api.Step) *api.DAGValidationResult {
	res := &api.DAGValidationResult{Valid: true}

	index := make(map[string]int, len(steps)) // step ID -> declaration index
	for i, s := range steps {
		if s.ID == "" {
			res.Errors = append(res.Errors, api.ValidationIssue{
				Code:    "missing_id",
				Message: fmt.Sprintf("step at position %d has no id", i),
			})
			continue
		}
		if _, dup := index[s.ID]; dup {
			res.Errors = append(res.Errors, api.ValidationIssue{
				Code:    "duplicate_id",
				StepID:  s.ID,
				Message: fmt.Sprintf("step id %q declared more than once", s.ID),
			})
			continue
		}
		index[s.ID] = i
	}

	declared := declaredIDs(steps)

	// Build edges: producer -> consumer, deduplicated, consumers in
	// declaration order because steps are scanned in declaration order.
	edges := make(map[string][]string, len(steps))
	preds := make(map[string][]string, len(steps))
	inDegree := make(map[string]int, len(steps))
	for _, s := range steps {
		edges[s.ID] = nil
		inDegree[s.ID] = 0
	}
	for _, s := range steps {
		seen := make(map[string]bool)
		for _, ref := range RefsInValue(s.Params) {
			producer := ref.StepID
			if _, ok := index[producer]; !ok {
				if declared[producer] {
					// Reference to a nested body step; resolved at branch
					// runtime, not part of the top-level graph.
					continue
				}
				res.Errors = append(res.Errors, api.ValidationIssue{
					Code:    "dangling_reference",
					StepID:  s.ID,
					Message: fmt.Sprintf("step %q references unknown step %q", s.ID, producer),
				})
				continue
			}
			if producer == s.ID {
				res.Errors = append(res.Errors, api.ValidationIssue{
					Code:    "cycle",
					StepID:  s.ID,
					Message: fmt.Sprintf("step %q references itself", s.ID),
					Path:    []string{s.ID, s.ID},
				})
				continue
			}
			if seen[producer] {
				continue
			}
			seen[producer] = true
			edges[producer] = append(edges[producer], s.ID)
			preds[s.ID] = append(preds[s.ID], producer)
			inDegree[s.ID]++
		}
	}

	if cycle := findCycle(steps, edges); cycle != nil {
		res.Errors = append(res.Errors, api.ValidationIssue{
			Code:    "cycle",
			StepID:  cycle[0],
			Message: fmt.Sprintf("dependency cycle: %v", cycle),
			Path:    cycle,
		})
	}

	res.Metadata = api.GraphMetadata{Edges: edges}
	res.Metadata.MergePoints = mergePoints(steps, inDegree)

	if len(res.Errors) == 0 {
		order := topoOrder(steps, index, edges, inDegree)
		res.Metadata.Order = order
		res.Metadata.CriticalPath = criticalPath(order, preds)
	}

	for _, id := range unreachable(steps, inDegree, edges) {
		res.Warnings = append(res.Warnings, api.ValidationIssue{
			Code:    "unreachable",
			StepID:  id,
			Message: fmt.Sprintf("step %q is not reachable from any entry step", id),
		})
	}

	res.Valid = len(res.Errors) == 0
	return res
}

// declaredIDs collects step IDs declared anywhere, including bodies nested
// inside switch/loop/scatter params. The loop and scatter branch variables
// "item" and "index" are implicitly declared; bodies reference them freely.
func declaredIDs(steps []api.Step) map[string]bool {
	ids := map[string]bool{"item": true, "index": true}
	var walk func(v any)
	walk = func(v any) {
		switch tv := v.(type) {
		case map[string]any:
			if id, ok := tv["id"].(string); ok {
				if _, hasType := tv["type"]; hasType {
					ids[id] = true
				}
			}
			for _, e := range tv {
				walk(e)
			}
		case []any:
			for _, e := range tv {
				walk(e)
			}
		case []map[string]any:
			for _, e := range tv {
				walk(e)
			}
		}
	}
	for _, s := range steps {
		ids[s.ID] = true
		walk(s.Params)
	}
	return ids
}

// findCycle runs a three-color DFS and returns the first cycle found as an
// ordered ID list whose first and last element are the same step. Roots are
// tried in declaration order so the result is deterministic.
func findCycle(steps []api.Step, edges map[string][]string) []string {
	color := make(map[string]int, len(steps))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		color[id] = gray
		stack = append(stack, id)
		for _, next := range edges[id] {
			switch color[next] {
			case gray:
				// Close the cycle from next's position on the stack.
				for i, sid := range stack {
					if sid == next {
						cycle := make([]string, 0, len(stack)-i+1)
						cycle = append(cycle, stack[i:]...)
						cycle = append(cycle, next)
						return cycle
					}
				}
			case white:
				if cycle := visit(next); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return nil
	}

	for _, s := range steps {
		if color[s.ID] == white {
			if cycle := visit(s.ID); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// topoOrder is Kahn's algorithm with ties broken by declaration order.
func topoOrder(steps []api.Step, index map[string]int, edges map[string][]string, inDegree map[string]int) []string {
	remaining := make(map[string]int, len(inDegree))
	for id, d := range inDegree {
		remaining[id] = d
	}

	var ready []string
	for _, s := range steps {
		if remaining[s.ID] == 0 {
			ready = append(ready, s.ID)
		}
	}

	order := make([]string, 0, len(steps))
	for len(ready) > 0 {
		// Pick the ready step declared earliest.
		best := 0
		for i := 1; i < len(ready); i++ {
			if index[ready[i]] < index[ready[best]] {
				best = i
			}
		}
		id := ready[best]
		ready = append(ready[:best], ready[best+1:]...)
		order = append(order, id)

		for _, next := range edges[id] {
			remaining[next]--
			if remaining[next] == 0 {
				ready = append(ready, next)
			}
		}
	}
	return order
}

// criticalPath computes the longest dependency chain by step count with a
// DP over the topological order. Among equally long chains the
// lexicographically smallest step-ID sequence wins, which keeps the result
// deterministic regardless of map iteration order.
func criticalPath(order []string, preds map[string][]string) []string {
	if len(order) == 0 {
		return nil
	}

	length := make(map[string]int, len(order))
	bestPred := make(map[string]string, len(order))
	for _, id := range order {
		length[id] = 1
		ps := append([]string(nil), preds[id]...)
		sort.Strings(ps)
		for _, p := range ps {
			if length[p]+1 > length[id] {
				length[id] = length[p] + 1
				bestPred[id] = p
			}
		}
	}

	end := ""
	for _, id := range order {
		if end == "" || length[id] > length[end] || (length[id] == length[end] && id < end) {
			end = id
		}
	}

	path := []string{end}
	for {
		p, ok := bestPred[path[0]]
		if !ok {
			break
		}
		path = append([]string{p}, path...)
	}
	return path
}

// mergePoints returns steps with more than one inbound dependency, in
// declaration order.
func mergePoints(steps []api.Step, inDegree map[string]int) []string {
	var out []string
	for _, s := range steps {
		if inDegree[s.ID] > 1 {
			out = append(out, s.ID)
		}
	}
	return out
}

// unreachable returns steps that BFS from all zero-in-degree steps never
// visits. In an acyclic graph every step is reachable; entries appear here
// only when a cycle cuts part of the graph off from the entry steps.
func unreachable(steps []api.Step, inDegree map[string]int, edges map[string][]string) []string {
	visited := make(map[string]bool, len(steps))
	var queue []string
	for _, s := range steps {
		if inDegree[s.ID] == 0 {
			visited[s.ID] = true
			queue = append(queue, s.ID)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range edges[id] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}

	var out []string
	for _, s := range steps {
		if !visited[s.ID] {
			out = append(out, s.ID)
		}
	}
	return out
}
