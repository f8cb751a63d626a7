package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/stepflow/pkg/api"
)

const defaultCheckpointCap = 10

// runController owns one run's checkpoint history and pause state.
// Checkpoints live in a ring buffer; the oldest is evicted once the
// capacity is reached.
type runController struct {
	mu          sync.Mutex
	ec          *api.ExecutionContext
	checkpoints []api.Checkpoint
	cap         int

	// order is the run's topological step order, used to resolve rollback
	// targets that never produced a checkpoint themselves.
	order []string

	paused   bool
	resumeCh chan struct{}
}

func newRunController(capacity int, ec *api.ExecutionContext, order []string) *runController {
	if capacity <= 0 {
		capacity = defaultCheckpointCap
	}
	return &runController{cap: capacity, ec: ec, order: order}
}

// createCheckpoint snapshots the context after a completed step. The
// snapshot is deep, so later mutations of ec never leak into history.
func (c *runController) createCheckpoint(stepID string, ec *api.ExecutionContext) api.Checkpoint {
	cp := api.Checkpoint{
		ID:        uuid.NewString(),
		StepID:    stepID,
		CreatedAt: time.Now(),
		Variables: api.DeepCopyMap(ec.Variables),
		Completed: make(map[string]bool, len(ec.Completed)),
	}
	for k, v := range ec.Completed {
		cp.Completed[k] = v
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkpoints = append(c.checkpoints, cp)
	if len(c.checkpoints) > c.cap {
		c.checkpoints = c.checkpoints[len(c.checkpoints)-c.cap:]
	}
	return cp
}

// list returns the retained checkpoints, oldest first.
func (c *runController) list() []api.Checkpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]api.Checkpoint, len(c.checkpoints))
	copy(out, c.checkpoints)
	return out
}

// rollback restores the run's context from the newest checkpoint taken at
// or before stepID, or the newest checkpoint overall when stepID is empty.
// Checkpoints newer than the restored one are discarded.
func (c *runController) rollback(stepID string) (api.Checkpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := -1
	for i := len(c.checkpoints) - 1; i >= 0; i-- {
		if stepID == "" || c.checkpoints[i].StepID == stepID {
			idx = i
			break
		}
	}
	if idx < 0 && stepID != "" {
		// The target never checkpointed, which is exactly the failed or
		// skipped step case. Restore the newest checkpoint preceding it.
		idx = c.newestBefore(stepID)
	}
	if idx < 0 {
		return api.Checkpoint{}, api.NewValidationError("", "no checkpoint at or before step %q", stepID)
	}

	cp := c.checkpoints[idx]
	c.ec.Variables = api.DeepCopyMap(cp.Variables)
	c.ec.Completed = make(map[string]bool, len(cp.Completed))
	for k, v := range cp.Completed {
		c.ec.Completed[k] = v
	}
	c.checkpoints = c.checkpoints[:idx+1]
	return cp, nil
}

// newestBefore returns the index of the newest checkpoint whose step runs
// strictly before stepID in the step order, or -1. Callers hold c.mu.
func (c *runController) newestBefore(stepID string) int {
	pos := make(map[string]int, len(c.order))
	for i, id := range c.order {
		pos[id] = i
	}
	target, ok := pos[stepID]
	if !ok {
		return -1
	}
	for i := len(c.checkpoints) - 1; i >= 0; i-- {
		if p, ok := pos[c.checkpoints[i].StepID]; ok && p < target {
			return i
		}
	}
	return -1
}

// pause requests a cooperative halt at the next step boundary. Pausing an
// already paused run is a no-op.
func (c *runController) pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return
	}
	c.paused = true
	c.resumeCh = make(chan struct{})
}

// resume releases a paused run. Resuming a running run is a no-op.
func (c *runController) resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	c.paused = false
	close(c.resumeCh)
	c.resumeCh = nil
}

// waitIfPaused blocks at a step boundary while the run is paused. It
// returns the context error if the run is cancelled while waiting.
func (c *runController) waitIfPaused(ctx context.Context) error {
	c.mu.Lock()
	ch := c.resumeCh
	c.mu.Unlock()
	if ch == nil {
		return ctx.Err()
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
