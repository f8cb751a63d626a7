package engine

import (
	"context"
	"testing"
	"time"

	"github.com/petrijr/stepflow/pkg/api"
)

func contextAfter(steps ...string) *api.ExecutionContext {
	ec := api.NewExecutionContext()
	for _, s := range steps {
		ec.Variables[s] = s + "-output"
		ec.Completed[s] = true
	}
	return ec
}

func TestCheckpointRingEvictsOldest(t *testing.T) {
	t.Parallel()

	ec := api.NewExecutionContext()
	ctrl := newRunController(3, ec, nil)

	for _, id := range []string{"s1", "s2", "s3", "s4", "s5"} {
		ec.Variables[id] = id
		ctrl.createCheckpoint(id, ec)
	}

	cps := ctrl.list()
	if len(cps) != 3 {
		t.Fatalf("retained %d checkpoints, want 3", len(cps))
	}
	if cps[0].StepID != "s3" || cps[2].StepID != "s5" {
		t.Fatalf("ring holds %v..%v, want s3..s5", cps[0].StepID, cps[2].StepID)
	}
	for _, cp := range cps {
		if cp.ID == "" {
			t.Fatal("checkpoint without id")
		}
	}
}

func TestCheckpointSnapshotsAreDeep(t *testing.T) {
	t.Parallel()

	ec := api.NewExecutionContext()
	ec.Variables["rec"] = map[string]any{"n": 1.0}
	ctrl := newRunController(0, ec, nil)
	ctrl.createCheckpoint("s1", ec)

	// Mutating the live context must not rewrite history.
	ec.Variables["rec"].(map[string]any)["n"] = 99.0

	cp := ctrl.list()[0]
	if got := cp.Variables["rec"].(map[string]any)["n"]; got != 1.0 {
		t.Fatalf("checkpoint saw later mutation: n = %v", got)
	}
}

func TestRollbackRestoresAndDiscardsNewer(t *testing.T) {
	t.Parallel()

	ec := contextAfter("s1")
	ctrl := newRunController(0, ec, nil)
	ctrl.createCheckpoint("s1", ec)

	ec.Variables["s2"] = "s2-output"
	ec.Completed["s2"] = true
	ctrl.createCheckpoint("s2", ec)

	ec.Variables["s3"] = "s3-output"
	ec.Completed["s3"] = true
	ctrl.createCheckpoint("s3", ec)

	cp, err := ctrl.rollback("s2")
	if err != nil {
		t.Fatalf("rollback failed: %v", err)
	}
	if cp.StepID != "s2" {
		t.Fatalf("restored %q, want s2", cp.StepID)
	}
	if _, ok := ec.Variables["s3"]; ok {
		t.Fatal("s3 output survived the rollback")
	}
	if ec.Variables["s2"] != "s2-output" || !ec.Completed["s2"] {
		t.Fatalf("restored context = %+v", ec)
	}

	cps := ctrl.list()
	if len(cps) != 2 || cps[len(cps)-1].StepID != "s2" {
		t.Fatalf("checkpoints after rollback = %v", cps)
	}
}

func TestRollbackEmptyTargetUsesNewest(t *testing.T) {
	t.Parallel()

	ec := contextAfter("s1")
	ctrl := newRunController(0, ec, nil)
	ctrl.createCheckpoint("s1", ec)
	ec.Variables["s2"] = "s2-output"
	ctrl.createCheckpoint("s2", ec)

	cp, err := ctrl.rollback("")
	if err != nil {
		t.Fatalf("rollback failed: %v", err)
	}
	if cp.StepID != "s2" {
		t.Fatalf("restored %q, want the newest checkpoint", cp.StepID)
	}
}

func TestRollbackUnknownStep(t *testing.T) {
	t.Parallel()

	ec := contextAfter("s1")
	ctrl := newRunController(0, ec, []string{"s1"})
	ctrl.createCheckpoint("s1", ec)

	if _, err := ctrl.rollback("never-ran"); err == nil {
		t.Fatal("expected error for unknown checkpoint step")
	}
}

func TestRollbackFailedStepRestoresPredecessor(t *testing.T) {
	t.Parallel()

	// s3 failed, so only s1 and s2 checkpointed. Targeting s3 must restore
	// the newest checkpoint that precedes it.
	ec := contextAfter("s1")
	ctrl := newRunController(0, ec, []string{"s1", "s2", "s3"})
	ctrl.createCheckpoint("s1", ec)

	ec.Variables["s2"] = "s2-output"
	ec.Completed["s2"] = true
	ctrl.createCheckpoint("s2", ec)

	ec.Variables["partial"] = "s3-leftovers"

	cp, err := ctrl.rollback("s3")
	if err != nil {
		t.Fatalf("rollback failed: %v", err)
	}
	if cp.StepID != "s2" {
		t.Fatalf("restored %q, want s2", cp.StepID)
	}
	if _, ok := ec.Variables["partial"]; ok {
		t.Fatal("post-checkpoint state survived the rollback")
	}
	if ec.Variables["s2"] != "s2-output" {
		t.Fatalf("restored context = %+v", ec)
	}
}

func TestRollbackFirstStepHasNoPredecessor(t *testing.T) {
	t.Parallel()

	ec := api.NewExecutionContext()
	ctrl := newRunController(0, ec, []string{"s1", "s2"})

	// No checkpoints exist yet; nothing precedes s1 either way.
	if _, err := ctrl.rollback("s1"); err == nil {
		t.Fatal("expected error when no checkpoint is at or before the target")
	}
}

func TestPauseResumeIdempotent(t *testing.T) {
	t.Parallel()

	ctrl := newRunController(0, api.NewExecutionContext(), nil)

	// Resuming a running controller and double pause/resume are no-ops.
	ctrl.resume()
	ctrl.pause()
	ctrl.pause()
	ctrl.resume()
	ctrl.resume()

	if err := ctrl.waitIfPaused(context.Background()); err != nil {
		t.Fatalf("waitIfPaused after resume: %v", err)
	}
}

func TestWaitIfPausedHonorsCancellation(t *testing.T) {
	t.Parallel()

	ctrl := newRunController(0, api.NewExecutionContext(), nil)
	ctrl.pause()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctrl.waitIfPaused(ctx) }()

	select {
	case err := <-done:
		t.Fatalf("returned while paused: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected context error")
		}
	case <-time.After(time.Second):
		t.Fatal("waitIfPaused ignored cancellation")
	}
}

func TestEngineRollbackDuringPause(t *testing.T) {
	t.Parallel()

	runIDs := make(chan string, 1)
	obs := &runCapturingObserver{runIDs: runIDs}

	firstStarted := make(chan struct{})
	proceed := make(chan struct{})

	eng := newTestEngine(t, obs)
	eng.RegisterHandler(api.StepTask, api.HandlerFunc(func(ctx context.Context, inv api.Invocation) (any, error) {
		if inv.Step.ID == "first" {
			close(firstStarted)
			<-proceed
		}
		return inv.Step.ID, nil
	}))

	steps := []api.Step{
		{ID: "first", Type: api.StepTask},
		{ID: "second", Type: api.StepTask, Params: map[string]any{"in": "{{first}}"}},
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = eng.Execute(context.Background(), steps, nil)
	}()

	<-firstStarted
	runID := <-runIDs
	if err := eng.Pause(runID); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	close(proceed)

	// Give the run a moment to finish "first" and hold at the boundary.
	deadline := time.Now().Add(time.Second)
	for {
		cps, err := eng.Checkpoints(runID)
		if err != nil {
			t.Fatalf("Checkpoints failed: %v", err)
		}
		if len(cps) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("checkpoint for first never appeared")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := eng.Rollback(runID, "first"); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	// "second" has not checkpointed yet; its rollback restores first's
	// snapshot instead of failing.
	if err := eng.Rollback(runID, "second"); err != nil {
		t.Fatalf("Rollback to a pending step failed: %v", err)
	}
	if err := eng.Rollback(runID, "nowhere"); err == nil {
		t.Fatal("expected error for a step outside the run")
	}

	if err := eng.Resume(runID); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run never finished")
	}
}
