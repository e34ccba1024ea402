// internal/rules/value.go
package rules

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/solatis/verdict/internal/types"
)

/*
 * Closed value model.
 *
 * Every value the engine compares is one of six kinds: null, bool, number, string, list,
 * map. Contexts and comparison values are normalized once (Normalize) so operators can be
 * exhaustive switches over Kind instead of type assertions on arbitrary Go values.
 *
 * Representation after normalization:
 *   - null   -> nil
 *   - bool   -> bool
 *   - number -> float64 (all Go integer/float types, json.Number)
 *   - string -> string (time.Time becomes RFC3339Nano)
 *   - list   -> []any
 *   - map    -> map[string]any
 */

// Kind is the closed set of value kinds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// KindOf reports the kind of a normalized value.
// Values that were not normalized report KindNull only when nil; anything unexpected is
// classified by reflection so callers never panic on foreign input.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBool
	case float64:
		return KindNumber
	case string:
		return KindString
	case []any:
		return KindList
	case map[string]any:
		return KindMap
	}
	n, err := Normalize(v)
	if err != nil || n == nil {
		return KindNull
	}
	return KindOf(n)
}

// Normalize converts a Go value into the closed value model.
// Returns ErrUnsupportedValue for channels, funcs, maps with non-string keys and similar.
func Normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil, types.NullValue:
		return nil, nil
	case bool, float64, string:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int8:
		return float64(x), nil
	case int16:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint:
		return float64(x), nil
	case uint8:
		return float64(x), nil
	case uint16:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: json.Number %q", types.ErrUnsupportedValue, x.String())
		}
		return f, nil
	case time.Time:
		return x.Format(time.RFC3339Nano), nil
	case []any:
		out := make([]any, len(x))
		for i, el := range x {
			n, err := Normalize(el)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, el := range x {
			n, err := Normalize(el)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	}
	return normalizeReflect(reflect.ValueOf(v))
}

// normalizeReflect handles typed slices, arrays, maps and pointers.
func normalizeReflect(rv reflect.Value) (any, error) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return Normalize(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return []any{}, nil
		}
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			n, err := Normalize(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("%w: map key %s", types.ErrUnsupportedValue, rv.Type().Key())
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			n, err := Normalize(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			out[iter.Key().String()] = n
		}
		return out, nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	default:
		return nil, fmt.Errorf("%w: %s", types.ErrUnsupportedValue, rv.Type())
	}
}
