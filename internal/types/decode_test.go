package types

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestDecodeRuleDef(t *testing.T) {
	raw := map[string]any{
		"id":    7,
		"name":  "vip",
		"since": "2024-01-01T00:00:00Z",
		"root":  false,
		"op":    "or",
		"conditions": []any{
			map[string]any{"path": "$.tier", "op": "eq", "value": "gold"},
			map[string]any{"op": "and", "comp": "not", "conditions": []any{
				map[string]any{"path": "$.age", "op": "lt", "value": 18, "transform": "int"},
			}},
		},
		"outcomes": []any{
			map[string]any{"typ": "RULE", "rule_id": 8},
			map[string]any{"typ": "DATA", "data": "$.tier"},
			map[string]any{"typ": "EVENT", "event_id": "vip.seen", "extra_paths": []any{"$.id"}},
		},
	}

	def, err := DecodeRuleDef(raw)
	if err != nil {
		t.Fatalf("DecodeRuleDef() error = %v, want nil", err)
	}

	if def.ID != 7 || def.Name != "vip" || def.Op != "or" {
		t.Errorf("DecodeRuleDef() = %+v, want id 7 name vip op or", def)
	}
	if want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC); !def.Since.Equal(want) {
		t.Errorf("Since = %v, want %v", def.Since, want)
	}
	if def.Root == nil || *def.Root {
		t.Errorf("Root = %v, want false", def.Root)
	}
	if def.Active != nil {
		t.Errorf("Active = %v, want nil", *def.Active)
	}
	if len(def.Conditions) != 2 || len(def.Conditions[1].Conditions) != 1 {
		t.Fatalf("Conditions = %+v, want two with one nested", def.Conditions)
	}
	if got := def.Conditions[1].Conditions[0].Transform; got != "int" {
		t.Errorf("nested Transform = %q, want int", got)
	}
	if def.Outcomes[0].RuleID != 8 {
		t.Errorf("Outcomes[0].RuleID = %d, want 8", def.Outcomes[0].RuleID)
	}
	if items := def.Outcomes[1].Items(); len(items) != 1 || items[0] != "$.tier" {
		t.Errorf("Outcomes[1].Items() = %v, want [$.tier]", items)
	}
	if items := def.Outcomes[2].Items(); len(items) != 1 || items[0] != "$.id" {
		t.Errorf("Outcomes[2].Items() = %v, want [$.id]", items)
	}
}

func TestDecodeRuleDef_ExplicitNullValue(t *testing.T) {
	outcome := map[string]any{"typ": "VALUE", "value": nil}
	raw := map[string]any{"outcomes": []any{
		outcome,
		map[string]any{"typ": "VALUE"},
	}}

	def, err := DecodeRuleDef(raw)
	if err != nil {
		t.Fatalf("DecodeRuleDef() error = %v, want nil", err)
	}
	if got := def.Outcomes[0].Value; got != Null {
		t.Errorf("Outcomes[0].Value = %#v, want Null", got)
	}
	if got := def.Outcomes[1].Value; got != nil {
		t.Errorf("Outcomes[1].Value = %#v, want nil", got)
	}
	if v, ok := outcome["value"]; !ok || v != nil {
		t.Errorf("input outcome value = %#v, want untouched nil", v)
	}
}

func TestNullValue_MarshalJSON(t *testing.T) {
	raw, err := json.Marshal(OutcomeDef{Typ: "VALUE", Value: Null})
	if err != nil {
		t.Fatalf("json.Marshal() error = %v, want nil", err)
	}
	if got, want := string(raw), `{"typ":"VALUE","value":null}`; got != want {
		t.Errorf("json.Marshal() = %s, want %s", got, want)
	}
}

func TestDecodeRuleDef_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
	}{
		{name: "unknown key", raw: map[string]any{"nme": "x"}},
		{name: "wrong shape", raw: map[string]any{"conditions": "nope"}},
		{name: "bad time", raw: map[string]any{"since": "yesterday"}},
		{name: "bad id", raw: map[string]any{"id": "seven"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRuleDef(tt.raw)
			if !errors.Is(err, ErrInvalidField) {
				t.Errorf("DecodeRuleDef() error = %v, want ErrInvalidField", err)
			}
		})
	}
}

func TestDecodeRuleDefs_PrefixesIndex(t *testing.T) {
	_, err := DecodeRuleDefs([]map[string]any{
		{"name": "ok"},
		{"bogus": true},
	})

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("DecodeRuleDefs() error = %v, want *ValidationError", err)
	}
	if ve.Field != "rules[1]" {
		t.Errorf("Field = %q, want rules[1]", ve.Field)
	}
}

func TestPrefixField(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		err    error
		want   string
	}{
		{name: "dotted", prefix: "rules[0]", err: Invalid("op", ErrRequiredField), want: "rules[0].op"},
		{name: "indexed", prefix: "outcomes", err: Invalid("[2].typ", ErrRequiredField), want: "outcomes[2].typ"},
		{name: "empty field", prefix: "rules[3]", err: &ValidationError{Err: ErrInvalidField}, want: "rules[3]"},
		{name: "plain error", prefix: "rules[4]", err: ErrInvalidField, want: "rules[4]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := PrefixField(tt.prefix, tt.err)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("PrefixField() = %T, want *ValidationError", err)
			}
			if ve.Field != tt.want {
				t.Errorf("Field = %q, want %q", ve.Field, tt.want)
			}
		})
	}

	if PrefixField("x", nil) != nil {
		t.Errorf("PrefixField(nil) != nil")
	}
}
