package schema

import (
	"errors"
	"testing"

	"github.com/petrijr/stepflow/pkg/api"
)

func TestParseStepsValidDocument(t *testing.T) {
	t.Parallel()

	steps, err := ParseSteps([]byte(`[
		{"id": "fetch", "type": "task", "params": {"url": "https://example.com"}},
		{"id": "clean", "name": "Clean", "type": "data_ops",
		 "params": {"input": "{{fetch}}", "operations": [{"op": "deduplicate"}]},
		 "data_ops": [{"op": "limit", "count": 5}],
		 "preprocess": {"trim_strings": true}}
	]`))
	if err != nil {
		t.Fatalf("ParseSteps failed: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(steps))
	}
	if steps[0].ID != "fetch" || steps[0].Type != api.StepTask {
		t.Fatalf("first step = %+v", steps[0])
	}
	if steps[1].Preprocess == nil || !steps[1].Preprocess.TrimStrings {
		t.Fatalf("preprocess hints lost: %+v", steps[1].Preprocess)
	}
	if len(steps[1].DataOps) != 1 {
		t.Fatalf("data_ops lost: %+v", steps[1].DataOps)
	}
}

func TestParseStepsRejectsMalformedJSON(t *testing.T) {
	t.Parallel()

	_, err := ParseSteps([]byte(`[{`))
	if err == nil {
		t.Fatal("expected error")
	}
	if api.KindOf(err) != api.KindConfiguration {
		t.Fatalf("kind = %v, want configuration", api.KindOf(err))
	}
}

func TestParseStepsRejectsUnknownType(t *testing.T) {
	t.Parallel()

	_, err := ParseSteps([]byte(`[{"id": "x", "type": "teleport"}]`))
	if err == nil {
		t.Fatal("expected error for unknown step type")
	}
}

func TestParseStepsRejectsMissingID(t *testing.T) {
	t.Parallel()

	_, err := ParseSteps([]byte(`[{"type": "task"}]`))
	if err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestParseStepsRejectsUnknownField(t *testing.T) {
	t.Parallel()

	_, err := ParseSteps([]byte(`[{"id": "x", "type": "task", "retries": 3}]`))
	if err == nil {
		t.Fatal("expected error for unknown top-level field")
	}
}

func TestParseStepsNamesOffendingStep(t *testing.T) {
	t.Parallel()

	_, err := ParseSteps([]byte(`[
		{"id": "ok", "type": "task"},
		{"id": "bad", "type": "task", "data_ops": [{"count": 5}]}
	]`))
	if err == nil {
		t.Fatal("expected error for data_ops entry without op")
	}
	var engErr *api.Error
	if !errors.As(err, &engErr) {
		t.Fatalf("error %T is not an engine error", err)
	}
	if engErr.StepID != "bad" {
		t.Fatalf("step id = %q, want bad", engErr.StepID)
	}
}
