// internal/rules/operators.go
package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/solatis/verdict/internal/types"
)

/*
 * Operator semantics.
 *
 * Ten operators in a closed enum, applied through one total switch (Apply). Logical
 * operators reduce booleans (Combine); all others compare one extracted value against the
 * configured value.
 *
 * Null policy (applies when either operand is null):
 *   - eq, ge, le: true iff both operands are null
 *   - gt, lt:     always false
 *   - in, like, regex with a null extracted value: false
 * Null never produces an error.
 *
 * Everything else that cannot be compared returns ErrIncompatibleTypes so the caller sees
 * a misconfigured rule instead of a silent non-match.
 */

// Operator is the closed set of condition operators.
type Operator int

const (
	OpUnspecified Operator = iota
	OpAnd
	OpOr
	OpEq
	OpGt
	OpLt
	OpGe
	OpLe
	OpIn
	OpLike
	OpRegex
)

var operatorNames = map[Operator]string{
	OpAnd:   "and",
	OpOr:    "or",
	OpEq:    "eq",
	OpGt:    "gt",
	OpLt:    "lt",
	OpGe:    "ge",
	OpLe:    "le",
	OpIn:    "in",
	OpLike:  "like",
	OpRegex: "regex",
}

// operatorAliases holds spellings found in older rule data.
var operatorAliases = map[string]Operator{
	"re": OpRegex,
	"lk": OpLike,
}

func (op Operator) String() string {
	if name, ok := operatorNames[op]; ok {
		return name
	}
	return "unspecified"
}

// ParseOperator parses an operator name, case-insensitively, including aliases.
func ParseOperator(s string) (Operator, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for op, n := range operatorNames {
		if n == name {
			return op, nil
		}
	}
	if op, ok := operatorAliases[name]; ok {
		return op, nil
	}
	return OpUnspecified, fmt.Errorf("%w: %q", types.ErrInvalidOperator, s)
}

// Logical reports whether op reduces child results (and/or).
func (op Operator) Logical() bool {
	return op == OpAnd || op == OpOr
}

// Comparison reports whether op is one of eq/gt/lt/ge/le.
func (op Operator) Comparison() bool {
	switch op {
	case OpEq, OpGt, OpLt, OpGe, OpLe:
		return true
	default:
		return false
	}
}

// Comparator is the expected truth of a match. The zero value is CompIs.
type Comparator int

const (
	CompIs Comparator = iota
	CompNot
)

// Truth returns the boolean a match must produce to satisfy the comparator.
func (c Comparator) Truth() bool {
	return c == CompIs
}

func (c Comparator) String() string {
	if c == CompNot {
		return "not"
	}
	return "is"
}

// ParseComparator parses "is" / "not". The empty string means "is".
func ParseComparator(s string) (Comparator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "is":
		return CompIs, nil
	case "not":
		return CompNot, nil
	default:
		return CompIs, fmt.Errorf("%w: comparator %q", types.ErrInvalidField, s)
	}
}

// Combine reduces results with a logical operator. An empty result set is false for both
// and/or.
func Combine(op Operator, results []bool) (bool, error) {
	if len(results) == 0 {
		return false, nil
	}

	switch op {
	case OpAnd:
		for _, r := range results {
			if !r {
				return false, nil
			}
		}
		return true, nil
	case OpOr:
		for _, r := range results {
			if r {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("%w: %s is not logical", types.ErrInvalidOperator, op)
	}
}

// Apply evaluates a non-logical operator with actual taken from the context and expected
// from the rule. For OpRegex, expected may be a precompiled *regexp.Regexp or a pattern
// string.
func Apply(op Operator, actual, expected any) (bool, error) {
	switch op {
	case OpEq, OpGt, OpLt, OpGe, OpLe:
		return applyComparison(op, actual, expected)
	case OpIn:
		return applyIn(actual, expected)
	case OpLike:
		return applyLike(actual, expected)
	case OpRegex:
		return applyRegex(actual, expected)
	case OpAnd, OpOr:
		return false, fmt.Errorf("%w: %s needs child conditions", types.ErrInvalidOperator, op)
	default:
		return false, fmt.Errorf("%w: %d", types.ErrInvalidOperator, int(op))
	}
}

// applyComparison implements eq/gt/lt/ge/le including the null policy.
func applyComparison(op Operator, actual, expected any) (bool, error) {
	if actual == nil || expected == nil {
		bothNull := actual == nil && expected == nil
		switch op {
		case OpEq, OpGe, OpLe:
			return bothNull, nil
		default:
			return false, nil
		}
	}

	kind := KindOf(actual)
	target, ok := Cast(expected, kind)
	if !ok {
		if op == OpEq {
			return false, nil
		}
		return false, fmt.Errorf("%w: cannot cast %s to %s", types.ErrIncompatibleTypes, KindOf(expected), kind)
	}

	if op == OpEq {
		return equalValues(actual, target), nil
	}

	c, err := compareValues(actual, target)
	if err != nil {
		return false, err
	}

	switch op {
	case OpGt:
		return c > 0, nil
	case OpLt:
		return c < 0, nil
	case OpGe:
		return c >= 0, nil
	default:
		return c <= 0, nil
	}
}

// applyIn checks actual is an element of a list, a key of a map or a substring of a string.
// A null extracted value is never a member.
func applyIn(actual, container any) (bool, error) {
	if actual == nil {
		return false, nil
	}
	switch c := container.(type) {
	case []any:
		for _, el := range c {
			if equalValues(actual, el) {
				return true, nil
			}
		}
		return false, nil
	case map[string]any:
		key, ok := actual.(string)
		if !ok {
			return false, nil
		}
		_, found := c[key]
		return found, nil
	case string:
		s, ok := actual.(string)
		if !ok {
			return false, fmt.Errorf("%w: in string requires string, got %s", types.ErrIncompatibleTypes, KindOf(actual))
		}
		return strings.Contains(c, s), nil
	default:
		return false, fmt.Errorf("%w: in requires list, map or string, got %s", types.ErrIncompatibleTypes, KindOf(container))
	}
}

// applyLike checks the configured value occurs inside the extracted value.
func applyLike(actual, needle any) (bool, error) {
	switch a := actual.(type) {
	case nil:
		return false, nil
	case string:
		s, ok := Cast(needle, KindString)
		if !ok {
			return false, fmt.Errorf("%w: like on string requires string, got %s", types.ErrIncompatibleTypes, KindOf(needle))
		}
		return strings.Contains(a, s.(string)), nil
	case []any:
		for _, el := range a {
			if equalValues(el, needle) {
				return true, nil
			}
		}
		return false, nil
	case map[string]any:
		key, ok := needle.(string)
		if !ok {
			return false, nil
		}
		_, found := a[key]
		return found, nil
	default:
		return false, fmt.Errorf("%w: like cannot search %s", types.ErrIncompatibleTypes, KindOf(actual))
	}
}

// applyRegex matches actual against a pattern anchored at the start of the string.
func applyRegex(actual, pattern any) (bool, error) {
	if actual == nil {
		return false, nil
	}
	s, ok := actual.(string)
	if !ok {
		return false, fmt.Errorf("%w: regex requires string, got %s", types.ErrIncompatibleTypes, KindOf(actual))
	}

	var re *regexp.Regexp
	switch p := pattern.(type) {
	case *regexp.Regexp:
		re = p
	case string:
		compiled, err := CompilePattern(p)
		if err != nil {
			return false, err
		}
		re = compiled
	default:
		return false, fmt.Errorf("%w: pattern must be a string, got %s", types.ErrInvalidPattern, KindOf(pattern))
	}
	return re.MatchString(s), nil
}

// CompilePattern compiles a regex anchored at the start of the input.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(`^(?:` + pattern + `)`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidPattern, err)
	}
	return re, nil
}
