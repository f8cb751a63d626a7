// Package stepflow is an embeddable pipeline orchestration engine for
// AI-agent workloads.
//
// A pipeline is a list of steps. Dependencies are implicit: any string
// param containing a {{stepId}} or {{stepId.path}} token depends on that
// step's output. Before execution the engine derives the dependency DAG,
// validates it (unique IDs, known references, acyclicity) and computes a
// deterministic topological order.
//
// Step types:
//
//   - task: a generic handler registered by the embedding application
//   - ai: like task, but the engine first decides a model tier for it
//     through a complexity router with persistent routing memory
//   - data_ops: a deterministic pipeline of filter/sort/aggregate/match
//     operations run by the engine itself
//   - switch, loop, scatter: control flow over nested step bodies
//
// The engine never calls a model itself. For AI steps it computes a
// RoutingDecision (tier, model, cost estimate) and hands it to the
// registered handler; the handler performs the call and the outcome feeds
// back into routing memory.
//
// Basic usage:
//
//	eng, err := stepflow.NewEngine()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	eng.RegisterHandler(stepflow.StepTask, stepflow.HandlerFunc(runTask))
//	eng.RegisterHandler(stepflow.StepAI, stepflow.HandlerFunc(callModel))
//
//	steps, err := stepflow.ParseSteps(pipelineJSON)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := eng.Execute(ctx, steps, nil)
//
// In-flight runs support cooperative pause/resume at step boundaries,
// checkpointing after every completed step and rollback to a checkpoint.
package stepflow
