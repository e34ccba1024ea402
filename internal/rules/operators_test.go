package rules

import (
	"errors"
	"regexp"
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/solatis/verdict/internal/types"
)

func TestParseOperator(t *testing.T) {
	tests := []struct {
		in      string
		want    Operator
		wantErr bool
	}{
		{in: "and", want: OpAnd},
		{in: "OR", want: OpOr},
		{in: " eq ", want: OpEq},
		{in: "ge", want: OpGe},
		{in: "in", want: OpIn},
		{in: "like", want: OpLike},
		{in: "lk", want: OpLike},
		{in: "regex", want: OpRegex},
		{in: "re", want: OpRegex},
		{in: "", wantErr: true},
		{in: "contains", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseOperator(tt.in)
		if tt.wantErr {
			if !errors.Is(err, types.ErrInvalidOperator) {
				t.Errorf("ParseOperator(%q) error = %v, want ErrInvalidOperator", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseOperator(%q) error = %v, want nil", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseOperator(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseComparator(t *testing.T) {
	tests := []struct {
		in      string
		want    Comparator
		wantErr bool
	}{
		{in: "", want: CompIs},
		{in: "is", want: CompIs},
		{in: "NOT", want: CompNot},
		{in: "isnt", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseComparator(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseComparator(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseComparator(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if !CompIs.Truth() || CompNot.Truth() {
		t.Errorf("Truth() = (%v, %v), want (true, false)", CompIs.Truth(), CompNot.Truth())
	}
}

func TestCombine(t *testing.T) {
	tests := []struct {
		name    string
		op      Operator
		results []bool
		want    bool
	}{
		{name: "and empty", op: OpAnd, results: nil, want: false},
		{name: "or empty", op: OpOr, results: []bool{}, want: false},
		{name: "and all true", op: OpAnd, results: []bool{true, true}, want: true},
		{name: "and one false", op: OpAnd, results: []bool{true, false}, want: false},
		{name: "or one true", op: OpOr, results: []bool{false, true}, want: true},
		{name: "or all false", op: OpOr, results: []bool{false, false}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Combine(tt.op, tt.results)
			if err != nil {
				t.Fatalf("Combine() error = %v, want nil", err)
			}
			if got != tt.want {
				t.Errorf("Combine() = %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := Combine(OpEq, []bool{true}); !errors.Is(err, types.ErrInvalidOperator) {
		t.Errorf("Combine(eq) error = %v, want ErrInvalidOperator", err)
	}
}

func TestApply(t *testing.T) {
	tests := []struct {
		name     string
		op       Operator
		actual   any
		expected any
		want     bool
		wantErr  error
	}{
		// comparison with casting of the configured value
		{name: "eq same number", op: OpEq, actual: 42.0, expected: 42.0, want: true},
		{name: "eq numeric string cast", op: OpEq, actual: 42.0, expected: "42", want: true},
		{name: "eq number cast to string", op: OpEq, actual: "1", expected: 1.0, want: true},
		{name: "eq uncastable is false", op: OpEq, actual: 1.0, expected: "abc", want: false},
		{name: "eq lists", op: OpEq, actual: []any{"a"}, expected: []any{"a"}, want: true},
		{name: "gt numbers", op: OpGt, actual: 10.0, expected: 5.0, want: true},
		{name: "gt cast string", op: OpGt, actual: 10.0, expected: "50", want: false},
		{name: "lt strings", op: OpLt, actual: "apple", expected: "banana", want: true},
		{name: "ge equal", op: OpGe, actual: 5.0, expected: 5.0, want: true},
		{name: "le greater", op: OpLe, actual: 6.0, expected: 5.0, want: false},
		{name: "gt uncastable", op: OpGt, actual: 1.0, expected: "abc", wantErr: types.ErrIncompatibleTypes},
		{name: "lt maps", op: OpLt, actual: map[string]any{}, expected: map[string]any{}, wantErr: types.ErrIncompatibleTypes},

		// null policy
		{name: "eq null null", op: OpEq, actual: nil, expected: nil, want: true},
		{name: "eq null value", op: OpEq, actual: nil, expected: 1.0, want: false},
		{name: "eq value null", op: OpEq, actual: "x", expected: nil, want: false},
		{name: "ge null null", op: OpGe, actual: nil, expected: nil, want: true},
		{name: "le null null", op: OpLe, actual: nil, expected: nil, want: true},
		{name: "le null value", op: OpLe, actual: nil, expected: 1.0, want: false},
		{name: "gt null value", op: OpGt, actual: nil, expected: 1.0, want: false},
		{name: "lt null null", op: OpLt, actual: nil, expected: nil, want: false},
		{name: "lt value null", op: OpLt, actual: 1.0, expected: nil, want: false},

		// in
		{name: "in list", op: OpIn, actual: "a", expected: []any{"a", "b"}, want: true},
		{name: "in list no cast", op: OpIn, actual: 1.0, expected: []any{"1"}, want: false},
		{name: "in map key", op: OpIn, actual: "k", expected: map[string]any{"k": 1.0}, want: true},
		{name: "in map non-string", op: OpIn, actual: 1.0, expected: map[string]any{"1": 1.0}, want: false},
		{name: "in substring", op: OpIn, actual: "ell", expected: "hello", want: true},
		{name: "in null", op: OpIn, actual: nil, expected: []any{nil}, want: false},
		{name: "in substring of number", op: OpIn, actual: 1.0, expected: "hello", wantErr: types.ErrIncompatibleTypes},
		{name: "in scalar container", op: OpIn, actual: "a", expected: 1.0, wantErr: types.ErrIncompatibleTypes},

		// like
		{name: "like substring", op: OpLike, actual: "hello world", expected: "world", want: true},
		{name: "like missing", op: OpLike, actual: "hello", expected: "xyz", want: false},
		{name: "like number needle", op: OpLike, actual: "v4", expected: 4.0, want: true},
		{name: "like list element", op: OpLike, actual: []any{"a", "b"}, expected: "b", want: true},
		{name: "like map key", op: OpLike, actual: map[string]any{"k": nil}, expected: "k", want: true},
		{name: "like null", op: OpLike, actual: nil, expected: "x", want: false},
		{name: "like number", op: OpLike, actual: 42.0, expected: "4", wantErr: types.ErrIncompatibleTypes},

		// regex
		{name: "regex match", op: OpRegex, actual: "abc123", expected: "[a-z]+", want: true},
		{name: "regex anchored at start", op: OpRegex, actual: "123abc", expected: "[a-z]+", want: false},
		{name: "regex alternation anchored", op: OpRegex, actual: "xyz", expected: "a|x", want: true},
		{name: "regex compiled", op: OpRegex, actual: "abc", expected: regexp.MustCompile("^b"), want: false},
		{name: "regex null", op: OpRegex, actual: nil, expected: ".*", want: false},
		{name: "regex number", op: OpRegex, actual: 1.0, expected: ".*", wantErr: types.ErrIncompatibleTypes},
		{name: "regex bad pattern", op: OpRegex, actual: "a", expected: "(", wantErr: types.ErrInvalidPattern},

		// logical operators have no leaf semantics
		{name: "and as leaf", op: OpAnd, actual: true, expected: true, wantErr: types.ErrInvalidOperator},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(tt.op, tt.actual, tt.expected)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Apply() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Apply() error = %v, want nil", err)
			}
			if got != tt.want {
				t.Errorf("Apply() = %v, want %v", got, tt.want)
			}
		})
	}
}

// Property-based test: ordering operators agree with each other on numbers
func TestApply_PropertyNumericOrdering(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("gt/lt/eq partition number pairs", prop.ForAll(
		func(a, b float64) bool {
			gt, _ := Apply(OpGt, a, b)
			lt, _ := Apply(OpLt, a, b)
			eq, _ := Apply(OpEq, a, b)
			ge, _ := Apply(OpGe, a, b)
			le, _ := Apply(OpLe, a, b)

			count := 0
			for _, r := range []bool{gt, lt, eq} {
				if r {
					count++
				}
			}
			return count == 1 && ge == (gt || eq) && le == (lt || eq)
		},
		gen.Float64Range(-1e6, 1e6),
		gen.Float64Range(-1e6, 1e6),
	))

	properties.Property("numeric strings compare like their numbers", prop.ForAll(
		func(a, b int) bool {
			want, _ := Apply(OpGt, float64(a), float64(b))
			got, err := Apply(OpGt, float64(a), strconv.Itoa(b))
			return err == nil && got == want
		},
		gen.IntRange(-1000, 1000),
		gen.IntRange(-1000, 1000),
	))

	properties.TestingRun(t)
}
