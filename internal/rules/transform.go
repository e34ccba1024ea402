// internal/rules/transform.go
package rules

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/solatis/verdict/internal/types"
)

// Transform preprocesses an extracted value before the operator runs.
// Returning an error makes the evaluator fall back to the untransformed value.
type Transform func(v any) (any, error)

var errTransform = errors.New("transform not applicable")

// transforms is the fixed set of named transforms rule definitions may reference.
var transforms = map[string]Transform{
	"lower":  stringTransform(strings.ToLower),
	"upper":  stringTransform(strings.ToUpper),
	"trim":   stringTransform(strings.TrimSpace),
	"len":    lengthTransform,
	"number": numberTransform,
	"int":    intTransform,
	"string": func(v any) (any, error) { return castOrFail(v, KindString) },
	"bool":   func(v any) (any, error) { return castOrFail(v, KindBool) },
}

// LookupTransform returns the named transform. The empty name returns nil, no error.
func LookupTransform(name string) (Transform, error) {
	if name == "" {
		return nil, nil
	}
	t, ok := transforms[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownTransform, name)
	}
	return t, nil
}

// applyTransform runs t and recovers the raw value on failure.
func applyTransform(t Transform, v any) any {
	if t == nil {
		return v
	}
	out, err := t(v)
	if err != nil {
		return v
	}
	return out
}

func stringTransform(fn func(string) string) Transform {
	return func(v any) (any, error) {
		s, ok := v.(string)
		if !ok {
			return nil, errTransform
		}
		return fn(s), nil
	}
}

// lengthTransform returns the rune count of strings and the size of lists and maps.
func lengthTransform(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return float64(utf8.RuneCountInString(x)), nil
	case []any:
		return float64(len(x)), nil
	case map[string]any:
		return float64(len(x)), nil
	default:
		return nil, errTransform
	}
}

func numberTransform(v any) (any, error) {
	return castOrFail(v, KindNumber)
}

// intTransform truncates towards zero after numeric conversion.
func intTransform(v any) (any, error) {
	n, err := castOrFail(v, KindNumber)
	if err != nil {
		return nil, err
	}
	return math.Trunc(n.(float64)), nil
}

func castOrFail(v any, kind Kind) (any, error) {
	if v == nil {
		return nil, errTransform
	}
	out, ok := Cast(v, kind)
	if !ok {
		return nil, errTransform
	}
	return out, nil
}
