package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the engine for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay execution.
type Observer interface {
	// OnRunStart is called once per run, after validation succeeds and
	// before the first step executes.
	OnRunStart(ctx context.Context, runID string, stepCount int)

	// OnRunCompleted is called when a run reaches RunCompleted.
	OnRunCompleted(ctx context.Context, result *ExecutionResult)

	// OnRunFailed is called when a run transitions to RunFailed.
	OnRunFailed(ctx context.Context, result *ExecutionResult, err error)

	// OnStepStart is called before a step handler is invoked.
	OnStepStart(ctx context.Context, runID string, step Step)

	// OnStepCompleted is called after a step finishes, for both successes
	// and failures (res.Err != nil).
	OnStepCompleted(ctx context.Context, runID string, step Step, res StepResult)

	// OnRoutingDecision is called for every AI-driven step once its tier
	// has been selected.
	OnRoutingDecision(ctx context.Context, runID, stepID string, decision RoutingDecision)

	// OnCheckpoint is called after a checkpoint has been appended to the
	// run's ring buffer.
	OnCheckpoint(ctx context.Context, runID string, cp Checkpoint)

	// OnRollback is called after a run's state has been restored from a
	// checkpoint.
	OnRollback(ctx context.Context, runID string, cp Checkpoint)

	// OnScatterItem is called once per scattered item when it finishes.
	// err is nil for successful items.
	OnScatterItem(ctx context.Context, runID, stepID string, index int, err error, d time.Duration)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnRunStart(ctx context.Context, runID string, stepCount int)         {}
func (NoopObserver) OnRunCompleted(ctx context.Context, result *ExecutionResult)         {}
func (NoopObserver) OnRunFailed(ctx context.Context, result *ExecutionResult, err error) {}
func (NoopObserver) OnStepStart(ctx context.Context, runID string, step Step)            {}
func (NoopObserver) OnStepCompleted(ctx context.Context, runID string, step Step, res StepResult) {
}
func (NoopObserver) OnRoutingDecision(ctx context.Context, runID, stepID string, d RoutingDecision) {
}
func (NoopObserver) OnCheckpoint(ctx context.Context, runID string, cp Checkpoint) {}
func (NoopObserver) OnRollback(ctx context.Context, runID string, cp Checkpoint)   {}
func (NoopObserver) OnScatterItem(ctx context.Context, runID, stepID string, index int, err error, d time.Duration) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnRunStart(ctx context.Context, runID string, stepCount int) {
	for _, o := range c.observers {
		o.OnRunStart(ctx, runID, stepCount)
	}
}

func (c *CompositeObserver) OnRunCompleted(ctx context.Context, result *ExecutionResult) {
	for _, o := range c.observers {
		o.OnRunCompleted(ctx, result)
	}
}

func (c *CompositeObserver) OnRunFailed(ctx context.Context, result *ExecutionResult, err error) {
	for _, o := range c.observers {
		o.OnRunFailed(ctx, result, err)
	}
}

func (c *CompositeObserver) OnStepStart(ctx context.Context, runID string, step Step) {
	for _, o := range c.observers {
		o.OnStepStart(ctx, runID, step)
	}
}

func (c *CompositeObserver) OnStepCompleted(ctx context.Context, runID string, step Step, res StepResult) {
	for _, o := range c.observers {
		o.OnStepCompleted(ctx, runID, step, res)
	}
}

func (c *CompositeObserver) OnRoutingDecision(ctx context.Context, runID, stepID string, d RoutingDecision) {
	for _, o := range c.observers {
		o.OnRoutingDecision(ctx, runID, stepID, d)
	}
}

func (c *CompositeObserver) OnCheckpoint(ctx context.Context, runID string, cp Checkpoint) {
	for _, o := range c.observers {
		o.OnCheckpoint(ctx, runID, cp)
	}
}

func (c *CompositeObserver) OnRollback(ctx context.Context, runID string, cp Checkpoint) {
	for _, o := range c.observers {
		o.OnRollback(ctx, runID, cp)
	}
}

func (c *CompositeObserver) OnScatterItem(ctx context.Context, runID, stepID string, index int, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnScatterItem(ctx, runID, stepID, index, err, d)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs run / step lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnRunStart(ctx context.Context, runID string, stepCount int) {
	o.Logger.InfoContext(ctx, "run_start",
		slog.String("run_id", runID),
		slog.Int("steps", stepCount),
	)
}

func (o *LoggingObserver) OnRunCompleted(ctx context.Context, result *ExecutionResult) {
	o.Logger.InfoContext(ctx, "run_completed",
		slog.String("run_id", result.RunID),
		slog.Duration("duration", result.FinishedAt.Sub(result.StartedAt)),
	)
}

func (o *LoggingObserver) OnRunFailed(ctx context.Context, result *ExecutionResult, err error) {
	o.Logger.ErrorContext(ctx, "run_failed",
		slog.String("run_id", result.RunID),
		slog.String("kind", string(KindOf(err))),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnStepStart(ctx context.Context, runID string, step Step) {
	o.Logger.DebugContext(ctx, "step_start",
		slog.String("run_id", runID),
		slog.String("step", step.ID),
		slog.String("type", string(step.Type)),
	)
}

func (o *LoggingObserver) OnStepCompleted(ctx context.Context, runID string, step Step, res StepResult) {
	level := slog.LevelDebug
	if res.Err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "step_completed",
		slog.String("run_id", runID),
		slog.String("step", step.ID),
		slog.String("status", string(res.Status)),
		slog.Duration("duration", res.Duration),
		slog.Any("error", res.Err),
	)
}

func (o *LoggingObserver) OnRoutingDecision(ctx context.Context, runID, stepID string, d RoutingDecision) {
	o.Logger.InfoContext(ctx, "routing_decision",
		slog.String("run_id", runID),
		slog.String("step", stepID),
		slog.String("tier", string(d.Tier)),
		slog.String("model", d.Model),
		slog.String("override", string(d.AppliedOverride)),
	)
}

func (o *LoggingObserver) OnCheckpoint(ctx context.Context, runID string, cp Checkpoint) {
	o.Logger.DebugContext(ctx, "checkpoint_created",
		slog.String("run_id", runID),
		slog.String("checkpoint_id", cp.ID),
		slog.String("step", cp.StepID),
	)
}

func (o *LoggingObserver) OnRollback(ctx context.Context, runID string, cp Checkpoint) {
	o.Logger.WarnContext(ctx, "rollback",
		slog.String("run_id", runID),
		slog.String("checkpoint_id", cp.ID),
		slog.String("step", cp.StepID),
	)
}

func (o *LoggingObserver) OnScatterItem(ctx context.Context, runID, stepID string, index int, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelWarn
	}
	o.Logger.Log(ctx, level, "scatter_item",
		slog.String("run_id", runID),
		slog.String("step", stepID),
		slog.Int("index", index),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters and aggregate step durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	runsStarted       atomic.Int64
	runsCompleted     atomic.Int64
	runsFailed        atomic.Int64
	stepsCompleted    atomic.Int64
	scatterItems      atomic.Int64
	routingOverrides  atomic.Int64
	totalStepDuration atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	RunsStarted   int64
	RunsCompleted int64
	RunsFailed    int64
	PendingRuns   int64

	StepsCompleted   int64
	ScatterItems     int64
	RoutingOverrides int64
	AvgStepDuration  time.Duration
}

func (m *BasicMetrics) OnRunStart(ctx context.Context, runID string, stepCount int) {
	m.runsStarted.Add(1)
}

func (m *BasicMetrics) OnRunCompleted(ctx context.Context, result *ExecutionResult) {
	m.runsCompleted.Add(1)
}

func (m *BasicMetrics) OnRunFailed(ctx context.Context, result *ExecutionResult, err error) {
	m.runsFailed.Add(1)
}

func (m *BasicMetrics) OnStepCompleted(ctx context.Context, runID string, step Step, res StepResult) {
	// Only count successful steps for average duration.
	if res.Err == nil && res.Status == StepCompleted {
		m.stepsCompleted.Add(1)
		m.totalStepDuration.Add(res.Duration.Nanoseconds())
	}
}

func (m *BasicMetrics) OnRoutingDecision(ctx context.Context, runID, stepID string, d RoutingDecision) {
	if d.AppliedOverride != OverrideNone {
		m.routingOverrides.Add(1)
	}
}

func (m *BasicMetrics) OnScatterItem(ctx context.Context, runID, stepID string, index int, err error, d time.Duration) {
	m.scatterItems.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.runsStarted.Load()
	completed := m.runsCompleted.Load()
	failed := m.runsFailed.Load()
	steps := m.stepsCompleted.Load()
	totalNs := m.totalStepDuration.Load()

	var avg time.Duration
	if steps > 0 {
		avg = time.Duration(totalNs / steps)
	}

	return BasicMetricsSnapshot{
		RunsStarted:      started,
		RunsCompleted:    completed,
		RunsFailed:       failed,
		PendingRuns:      started - completed - failed,
		StepsCompleted:   steps,
		ScatterItems:     m.scatterItems.Load(),
		RoutingOverrides: m.routingOverrides.Load(),
		AvgStepDuration:  avg,
	}
}
