package types

import (
	"fmt"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
)

// DecodeRuleDefs converts loosely typed records (decoded JSON/YAML, protobuf Structs) into
// rule definitions. Unknown keys and wrongly shaped fields are reported as ValidationErrors
// located at rules[i].
func DecodeRuleDefs(raw []map[string]any) ([]RuleDef, error) {
	defs := make([]RuleDef, 0, len(raw))
	for i, rec := range raw {
		def, err := DecodeRuleDef(rec)
		if err != nil {
			return nil, PrefixField(fmt.Sprintf("rules[%d]", i), err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// DecodeRuleDef converts one loosely typed record into a RuleDef.
func DecodeRuleDef(raw map[string]any) (RuleDef, error) {
	var def RuleDef
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &def,
		TagName:     "json",
		ErrorUnused: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339),
			anySliceHook,
		),
	})
	if err != nil {
		return RuleDef{}, err
	}
	if err := dec.Decode(markNullValues(raw)); err != nil {
		return RuleDef{}, &ValidationError{Err: fmt.Errorf("%w: %v", ErrInvalidField, err)}
	}
	return def, nil
}

// markNullValues replaces an explicit `value: null` on outcomes with Null, so it survives
// decoding as distinct from an absent value. raw is not modified.
func markNullValues(raw map[string]any) map[string]any {
	outcomes, ok := raw["outcomes"].([]any)
	if !ok {
		return raw
	}
	var copied []any
	for i, o := range outcomes {
		m, ok := o.(map[string]any)
		if !ok {
			continue
		}
		v, present := m["value"]
		if !present || v != nil {
			continue
		}
		if copied == nil {
			copied = append([]any(nil), outcomes...)
		}
		marked := make(map[string]any, len(m))
		for k, v := range m {
			marked[k] = v
		}
		marked["value"] = Null
		copied[i] = marked
	}
	if copied == nil {
		return raw
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	out["outcomes"] = copied
	return out
}

// anySliceHook lets a single scalar stand for a one-element data list, matching how
// hand-written YAML tends to spell `data: $.foo`.
func anySliceHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf([]any(nil)) {
		return data, nil
	}
	if from.Kind() == reflect.Slice || from.Kind() == reflect.Array {
		return data, nil
	}
	return []any{data}, nil
}
