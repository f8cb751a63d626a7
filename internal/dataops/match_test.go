package dataops

import (
	"reflect"
	"testing"
)

func people() []Record {
	return []Record{
		{"name": "Alice", "dept": "eng"},
		{"name": "Bob", "dept": "ops"},
		{"name": "Carol", "dept": "eng"},
	}
}

func badges() []Record {
	return []Record{
		{"name": "Bob", "badge": 7.0},
		{"name": "Dave", "badge": 9.0},
	}
}

func TestMatchInner(t *testing.T) {
	t.Parallel()

	e := New()
	out, err := e.Match(people(), badges(), MatchConfig{LeftKey: "name"})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d rows, want 1", len(out))
	}
	if out[0]["name"] != "Bob" || out[0]["badge"] != 7.0 || out[0]["dept"] != "ops" {
		t.Fatalf("row = %v", out[0])
	}
}

func TestMatchLeftNullFills(t *testing.T) {
	t.Parallel()

	e := New()
	out, err := e.Match(people(), badges(), MatchConfig{LeftKey: "name", Type: "left"})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("got %d rows, want 3", len(out))
	}
	// Left rows keep input order; unmatched ones carry null right columns.
	if out[0]["name"] != "Alice" {
		t.Fatalf("first row = %v", out[0])
	}
	if v, present := out[0]["badge"]; !present || v != nil {
		t.Fatalf("unmatched row badge = %v (present=%v), want explicit null", v, present)
	}
	if out[1]["badge"] != 7.0 {
		t.Fatalf("matched row = %v", out[1])
	}
}

func TestMatchFullIncludesUnmatchedRight(t *testing.T) {
	t.Parallel()

	e := New()
	out, err := e.Match(people(), badges(), MatchConfig{LeftKey: "name", Type: "full"})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("got %d rows, want 4", len(out))
	}
	last := out[3]
	if last["name"] != "Dave" {
		t.Fatalf("unmatched right row = %v", last)
	}
	if v, present := last["dept"]; !present || v != nil {
		t.Fatalf("right row dept = %v (present=%v), want explicit null", v, present)
	}
}

func TestMatchLeftValueWinsCollision(t *testing.T) {
	t.Parallel()

	e := New()
	left := []Record{{"id": "x", "score": 1.0}}
	right := []Record{{"id": "x", "score": 2.0}}
	out, err := e.Match(left, right, MatchConfig{LeftKey: "id"})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if out[0]["score"] != 1.0 {
		t.Fatalf("score = %v, want left value", out[0]["score"])
	}
}

func TestMatchFuzzy(t *testing.T) {
	t.Parallel()

	e := New()
	left := []Record{{"name": "Jonathan"}}
	right := []Record{
		{"name": "Bertha", "id": 1.0},
		{"name": "Jonathon", "id": 2.0},
	}
	out, err := e.Match(left, right, MatchConfig{LeftKey: "name", Fuzzy: true, Threshold: 0.85})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(out) != 1 || out[0]["id"] != 2.0 {
		t.Fatalf("got %v, want fuzzy match on Jonathon", out)
	}

	// A high threshold filters the near-match out.
	none, err := e.Match(left, right, MatchConfig{LeftKey: "name", Fuzzy: true, Threshold: 0.99})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("got %v, want no matches at threshold 0.99", none)
	}
}

func TestMatchFuzzyThresholdValidation(t *testing.T) {
	t.Parallel()

	e := New()
	_, err := e.Match(people(), badges(), MatchConfig{LeftKey: "name", Fuzzy: true, Threshold: 1.5})
	if err == nil {
		t.Fatal("expected error for threshold outside [0,1]")
	}
}

func TestJoinChainsPairwise(t *testing.T) {
	t.Parallel()

	e := New()
	a := []Record{{"k": "1", "a": "A"}}
	b := []Record{{"k": "1", "b": "B"}}
	c := []Record{{"k": "1", "c": "C"}, {"k": "2", "c": "X"}}

	out, err := e.Join([][]Record{a, b, c}, "inner", "k")
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	want := []Record{{"k": "1", "a": "A", "b": "B", "c": "C"}}
	if !reflect.DeepEqual(out, want) {
		t.Fatalf("got %v, want %v", out, want)
	}
}
