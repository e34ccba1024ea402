// internal/rules/coercion.go
package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/solatis/verdict/internal/types"
)

/*
 * Type-aware casting for comparisons.
 *
 * The configured comparison value is cast to the kind of the extracted value before
 * eq/gt/lt/ge/le run, so a rule written as `value: "42"` still matches a numeric 42 in the
 * context. Casting never touches the extracted value.
 *
 * Cast table (configured -> extracted kind):
 *   - NUMBER: number as-is, numeric strings (trimmed), bool as 1/0
 *   - STRING: string as-is, number formatted shortest-form, bool as "true"/"false"
 *   - BOOL:   bool as-is, number != 0, strings accepted by strconv.ParseBool
 *   - LIST/MAP: same kind only
 *
 * Null never reaches Cast; the null policy in operators.go handles it first.
 */

// Cast converts value to kind. ok is false when no lossless-enough conversion exists.
func Cast(value any, kind Kind) (any, bool) {
	from := KindOf(value)
	if from == kind {
		return value, true
	}

	switch kind {
	case KindNumber:
		return castNumber(value, from)
	case KindString:
		return castString(value, from)
	case KindBool:
		return castBool(value, from)
	default:
		return nil, false
	}
}

// castNumber converts strings and booleans to float64.
// Whitespace-only strings are not numbers.
func castNumber(value any, from Kind) (any, bool) {
	switch from {
	case KindString:
		s := strings.TrimSpace(value.(string))
		if s == "" {
			return nil, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false
		}
		return f, true
	case KindBool:
		if value.(bool) {
			return float64(1), true
		}
		return float64(0), true
	default:
		return nil, false
	}
}

// castString renders scalars as strings.
func castString(value any, from Kind) (any, bool) {
	switch from {
	case KindNumber:
		return strconv.FormatFloat(value.(float64), 'f', -1, 64), true
	case KindBool:
		return strconv.FormatBool(value.(bool)), true
	default:
		return nil, false
	}
}

// castBool interprets numbers and boolean-like strings.
func castBool(value any, from Kind) (any, bool) {
	switch from {
	case KindNumber:
		return value.(float64) != 0, true
	case KindString:
		b, err := strconv.ParseBool(strings.TrimSpace(value.(string)))
		if err != nil {
			return nil, false
		}
		return b, true
	default:
		return nil, false
	}
}

// equalValues compares two normalized values structurally without casting.
// Numbers compare by value, so 1 and 1.0 are equal.
func equalValues(a, b any) bool {
	ka, kb := KindOf(a), KindOf(b)
	if ka != kb {
		return false
	}

	switch ka {
	case KindNull:
		return true
	case KindBool:
		return a.(bool) == b.(bool)
	case KindNumber:
		return a.(float64) == b.(float64)
	case KindString:
		return a.(string) == b.(string)
	case KindList:
		la, lb := a.([]any), b.([]any)
		if len(la) != len(lb) {
			return false
		}
		for i := range la {
			if !equalValues(la[i], lb[i]) {
				return false
			}
		}
		return true
	case KindMap:
		ma, mb := a.(map[string]any), b.(map[string]any)
		if len(ma) != len(mb) {
			return false
		}
		for k, va := range ma {
			vb, ok := mb[k]
			if !ok || !equalValues(va, vb) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// compareValues performs a three-way comparison (-1/0/1) of two values of the same kind.
// Returns ErrIncompatibleTypes for differing kinds and for maps, which have no order.
func compareValues(a, b any) (int, error) {
	ka, kb := KindOf(a), KindOf(b)
	if ka != kb {
		return 0, fmt.Errorf("%w: cannot order %s against %s", types.ErrIncompatibleTypes, ka, kb)
	}

	switch ka {
	case KindBool:
		x, y := a.(bool), b.(bool)
		switch {
		case x == y:
			return 0, nil
		case !x:
			return -1, nil
		default:
			return 1, nil
		}
	case KindNumber:
		x, y := a.(float64), b.(float64)
		switch {
		case x < y:
			return -1, nil
		case x > y:
			return 1, nil
		default:
			return 0, nil
		}
	case KindString:
		return strings.Compare(a.(string), b.(string)), nil
	case KindList:
		la, lb := a.([]any), b.([]any)
		for i := 0; i < len(la) && i < len(lb); i++ {
			c, err := compareValues(la[i], lb[i])
			if err != nil {
				return 0, err
			}
			if c != 0 {
				return c, nil
			}
		}
		switch {
		case len(la) < len(lb):
			return -1, nil
		case len(la) > len(lb):
			return 1, nil
		default:
			return 0, nil
		}
	default:
		return 0, fmt.Errorf("%w: %s values have no order", types.ErrIncompatibleTypes, ka)
	}
}
