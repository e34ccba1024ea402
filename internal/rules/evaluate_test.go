package rules

import (
	"errors"
	"testing"

	"github.com/solatis/verdict/internal/types"
)

// conditionMatches evaluates cond as the only condition of a root rule.
func conditionMatches(t *testing.T, cond types.ConditionDef, ctx any) (bool, error) {
	t.Helper()
	e, err := NewEngine([]types.RuleDef{{
		Conditions: []types.ConditionDef{cond},
		Outcomes:   []types.OutcomeDef{{Typ: "VALUE", Value: "hit"}},
	}}, ctx)
	if err != nil {
		t.Fatalf("NewEngine() error = %v, want nil", err)
	}
	records, err := Collect(e.Evaluate())
	return len(records) == 1, err
}

func TestEvaluate_Conditions(t *testing.T) {
	ctx := map[string]any{
		"status": "Active",
		"count":  7,
		"tags":   []string{"a", "b"},
		"items":  []any{map[string]any{"n": 1}, map[string]any{"n": 5}},
		"empty":  nil,
	}

	tests := []struct {
		name string
		cond types.ConditionDef
		want bool
	}{
		{name: "leaf eq", cond: leaf("$.count", "eq", 7), want: true},
		{name: "leaf eq cast", cond: leaf("$.count", "eq", "7"), want: true},
		{name: "leaf mismatch", cond: leaf("$.count", "gt", 7), want: false},
		{name: "any extracted value", cond: leaf("$.items[*].n", "gt", 3), want: true},
		{name: "no extracted value", cond: leaf("$.items[*].n", "gt", 10), want: false},
		{name: "missing path", cond: leaf("$.nope", "eq", 1), want: false},
		{name: "malformed path is no match", cond: leaf("nope", "eq", 1), want: false},
		{name: "null equality", cond: leaf("$.empty", "eq", nil), want: true},
		{name: "null equality against value", cond: leaf("$.count", "eq", nil), want: false},
		{name: "null equality on missing key", cond: leaf("$.nope", "eq", nil), want: false},
		{name: "in list", cond: leaf("$.status", "in", []any{"Active", "Idle"}), want: true},
		{name: "membership of list element", cond: leaf("$.tags[*]", "in", []any{"b"}), want: true},
		{name: "like", cond: leaf("$.status", "like", "ctiv"), want: true},
		{name: "regex anchored", cond: leaf("$.status", "regex", "tive"), want: false},
		{
			name: "not inverts leaf",
			cond: types.ConditionDef{Path: "$.count", Op: "eq", Value: 7, Comp: "not"},
			want: false,
		},
		{
			name: "not on empty extraction",
			cond: types.ConditionDef{Path: "$.nope", Op: "eq", Value: 1, Comp: "not"},
			want: true,
		},
		{
			name: "transform before compare",
			cond: types.ConditionDef{Path: "$.status", Op: "eq", Value: "active", Transform: "lower"},
			want: true,
		},
		{
			name: "transform failure uses raw value",
			cond: types.ConditionDef{Path: "$.count", Op: "eq", Value: 7, Transform: "upper"},
			want: true,
		},
		{
			name: "transform len",
			cond: types.ConditionDef{Path: "$.tags", Op: "eq", Value: 2, Transform: "len"},
			want: true,
		},
		{
			name: "composite and",
			cond: types.ConditionDef{Op: "and", Conditions: []types.ConditionDef{
				leaf("$.count", "ge", 7),
				leaf("$.status", "eq", "Active"),
			}},
			want: true,
		},
		{
			name: "composite and one false",
			cond: types.ConditionDef{Op: "and", Conditions: []types.ConditionDef{
				leaf("$.count", "ge", 7),
				leaf("$.status", "eq", "Idle"),
			}},
			want: false,
		},
		{
			name: "composite or",
			cond: types.ConditionDef{Op: "or", Conditions: []types.ConditionDef{
				leaf("$.count", "lt", 0),
				leaf("$.status", "eq", "Active"),
			}},
			want: true,
		},
		{
			name: "composite not",
			cond: types.ConditionDef{Op: "or", Comp: "not", Conditions: []types.ConditionDef{
				leaf("$.count", "lt", 0),
			}},
			want: true,
		},
		{name: "empty and", cond: types.ConditionDef{Op: "and"}, want: false},
		{name: "empty or", cond: types.ConditionDef{Op: "or"}, want: false},
		{name: "not empty and", cond: types.ConditionDef{Op: "and", Comp: "not"}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := conditionMatches(t, tt.cond, ctx)
			if err != nil {
				t.Fatalf("Evaluate() error = %v, want nil", err)
			}
			if got != tt.want {
				t.Errorf("matched = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluate_ComparisonError(t *testing.T) {
	ctx := map[string]any{"count": 7}

	_, err := conditionMatches(t, types.ConditionDef{ID: 9, Path: "$.count", Op: "gt", Value: "many"}, ctx)
	if !errors.Is(err, types.ErrIncompatibleTypes) {
		t.Fatalf("Evaluate() error = %v, want ErrIncompatibleTypes", err)
	}

	var ce *ComparisonError
	if !errors.As(err, &ce) {
		t.Fatalf("Evaluate() error = %T, want *ComparisonError", err)
	}
	if ce.RuleID != 1 || ce.ConditionID != 9 || ce.Path != "$.count" || ce.Operator != OpGt {
		t.Errorf("ComparisonError = %+v, want rule 1 condition 9 $.count gt", ce)
	}
}

func TestEvaluate_ComparisonErrorNotShortCircuited(t *testing.T) {
	ctx := map[string]any{"count": 7, "status": "x"}

	cond := types.ConditionDef{Op: "and", Conditions: []types.ConditionDef{
		leaf("$.status", "eq", "y"),
		leaf("$.count", "lt", "few"),
	}}
	if _, err := conditionMatches(t, cond, ctx); !errors.Is(err, types.ErrIncompatibleTypes) {
		t.Errorf("Evaluate() error = %v, want ErrIncompatibleTypes", err)
	}
}

type staticExtractor map[string][]Match

func (s staticExtractor) Extract(path string, _ any) ([]Match, error) {
	m, ok := s[path]
	if !ok {
		return nil, types.ErrMalformedPath
	}
	return m, nil
}

func TestEvaluate_CustomExtractor(t *testing.T) {
	x := staticExtractor{
		"user": {{Path: "user", Location: "user", Value: "ada"}},
	}

	e, err := NewEngine([]types.RuleDef{{
		Conditions: []types.ConditionDef{leaf("user", "eq", "ada")},
		Outcomes:   []types.OutcomeDef{{Typ: "DATA", Data: []any{"user", "unknown"}}},
	}}, nil, WithExtractor(x))
	if err != nil {
		t.Fatalf("NewEngine() error = %v, want nil", err)
	}

	records, err := Collect(e.Evaluate())
	if err != nil {
		t.Fatalf("Collect() error = %v, want nil", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
	if records[0].Data["user"] != "ada" {
		t.Errorf("Data[user] = %v, want ada", records[0].Data["user"])
	}
	if values, _ := records[0].Data["values"].([]any); len(values) != 1 || values[0] != "unknown" {
		t.Errorf("Data[values] = %v, want [unknown]", records[0].Data["values"])
	}
}
