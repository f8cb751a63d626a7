package stepflow

import (
	"context"
	"database/sql"

	"github.com/petrijr/stepflow/internal/engine"
	"github.com/petrijr/stepflow/internal/memstore"
	"github.com/petrijr/stepflow/internal/routing"
	"github.com/petrijr/stepflow/internal/schema"
	"github.com/petrijr/stepflow/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine               = api.Engine
	Step                 = api.Step
	StepType             = api.StepType
	StepStatus           = api.StepStatus
	StepResult           = api.StepResult
	ExecutionContext     = api.ExecutionContext
	ExecutionResult      = api.ExecutionResult
	Checkpoint           = api.Checkpoint
	DAGValidationResult  = api.DAGValidationResult
	GraphMetadata        = api.GraphMetadata
	ValidationIssue      = api.ValidationIssue
	RunStatus            = api.RunStatus
	Tier                 = api.Tier
	RoutingDecision      = api.RoutingDecision
	ComplexityScore      = api.ComplexityScore
	Handler              = api.Handler
	HandlerFunc          = api.HandlerFunc
	ReduceFunc           = api.ReduceFunc
	Invocation           = api.Invocation
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export common observer helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	NewExecutionContext  = api.NewExecutionContext
)

// Re-export step types and tiers for convenience.

const (
	StepTask    = api.StepTask
	StepAI      = api.StepAI
	StepDataOps = api.StepDataOps
	StepSwitch  = api.StepSwitch
	StepLoop    = api.StepLoop
	StepScatter = api.StepScatter

	TierFast     = api.TierFast
	TierBalanced = api.TierBalanced
	TierPowerful = api.TierPowerful

	RunRunning   = api.RunRunning
	RunCompleted = api.RunCompleted
	RunFailed    = api.RunFailed

	StepPending   = api.StepPending
	StepRunning   = api.StepRunning
	StepCompleted = api.StepCompleted
	StepFailed    = api.StepFailed
	StepSkipped   = api.StepSkipped
)

// RoutingConfig configures the complexity router. The zero value is not
// usable; start from DefaultRoutingConfig or a YAML file.
type RoutingConfig = routing.Config

// DefaultRoutingConfig returns the built-in routing configuration.
func DefaultRoutingConfig() RoutingConfig {
	return routing.DefaultConfig()
}

// LoadRoutingConfig parses a YAML routing configuration, layered over the
// defaults.
func LoadRoutingConfig(data []byte) (RoutingConfig, error) {
	return routing.LoadConfig(data)
}

// LoadRoutingConfigFile reads and parses a YAML routing configuration file.
func LoadRoutingConfigFile(path string) (RoutingConfig, error) {
	return routing.LoadConfigFile(path)
}

// Engine constructors
// These wrap the internal packages so external callers never need to
// import them.

// NewEngine returns an Engine with default routing configuration and
// in-memory routing memory.
func NewEngine() (Engine, error) {
	return newEngine(routing.DefaultConfig(), memstore.NewInMemoryStore(), nil)
}

// NewEngineWithObserver returns an in-memory Engine with the given Observer.
func NewEngineWithObserver(obs Observer) (Engine, error) {
	return newEngine(routing.DefaultConfig(), memstore.NewInMemoryStore(), obs)
}

// NewEngineWithConfig returns an in-memory Engine using the given routing
// configuration.
func NewEngineWithConfig(cfg RoutingConfig, obs Observer) (Engine, error) {
	return newEngine(cfg, memstore.NewInMemoryStore(), obs)
}

// NewSQLiteEngine returns an Engine whose routing memory persists in a
// SQLite database. All other state is in-memory.
func NewSQLiteEngine(db *sql.DB) (Engine, error) {
	store, err := memstore.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	return newEngine(routing.DefaultConfig(), store, nil)
}

// NewSQLiteEngineWithObserver returns a SQLite-backed Engine with the given
// Observer.
func NewSQLiteEngineWithObserver(db *sql.DB, obs Observer) (Engine, error) {
	store, err := memstore.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	return newEngine(routing.DefaultConfig(), store, obs)
}

// NewSQLiteEngineWithConfig returns a SQLite-backed Engine using the given
// routing configuration.
func NewSQLiteEngineWithConfig(db *sql.DB, cfg RoutingConfig, obs Observer) (Engine, error) {
	store, err := memstore.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	return newEngine(cfg, store, obs)
}

func newEngine(cfg RoutingConfig, store routing.Store, obs Observer) (Engine, error) {
	router, err := routing.NewRouter(cfg, store)
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(engine.Options{Router: router, Observer: obs})
	if err != nil {
		return nil, err
	}
	return eng, nil
}

// ParseSteps parses and schema-validates a JSON pipeline definition.
func ParseSteps(data []byte) ([]Step, error) {
	return schema.ParseSteps(data)
}

// Convenience helpers that just forward to the underlying Engine.

// Validate checks a pipeline's dependency graph without executing it.
func Validate(eng Engine, steps []Step) *DAGValidationResult {
	return eng.Validate(steps)
}

// Execute validates and runs a pipeline synchronously.
func Execute(ctx context.Context, eng Engine, steps []Step, initial *ExecutionContext) (*ExecutionResult, error) {
	return eng.Execute(ctx, steps, initial)
}
