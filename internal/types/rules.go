package types

import "time"

/*
 * Definition types for rules.
 *
 * RuleDef, ConditionDef and OutcomeDef are the loosely validated input shape accepted by
 * rules.NewRegistry. They carry strings for enumerations (operator, comparator, outcome
 * type) so that every producer (decoder, store, file loader) stays free of engine types;
 * enumeration parsing and structural validation happen during hydration.
 *
 * Zero values mean "absent": ID 0 requests an auto-assigned id, a zero Since/Until is an
 * open bound, nil Active/Root default to true.
 */

// RuleID identifies a rule within a registry. Ids start at 1; 0 means unassigned.
type RuleID int

// RuleDef is a raw rule definition.
type RuleDef struct {
	ID          RuleID         `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string         `json:"name,omitempty" yaml:"name,omitempty"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Since       time.Time      `json:"since,omitempty" yaml:"since,omitempty"`
	Until       time.Time      `json:"until,omitempty" yaml:"until,omitempty"`
	Active      *bool          `json:"active,omitempty" yaml:"active,omitempty"`
	Root        *bool          `json:"root,omitempty" yaml:"root,omitempty"`
	Comp        string         `json:"comp,omitempty" yaml:"comp,omitempty"` // "is" (default) or "not"
	Op          string         `json:"op,omitempty" yaml:"op,omitempty"`     // "and" (default) or "or"
	Conditions  []ConditionDef `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Outcomes    []OutcomeDef   `json:"outcomes,omitempty" yaml:"outcomes,omitempty"`
}

// ConditionDef is a raw condition node. Leaf nodes carry Path/Op/Value, composite nodes
// carry a logical Op and Conditions.
type ConditionDef struct {
	ID          int            `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string         `json:"name,omitempty" yaml:"name,omitempty"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Path        string         `json:"path,omitempty" yaml:"path,omitempty"`
	Comp        string         `json:"comp,omitempty" yaml:"comp,omitempty"`
	Op          string         `json:"op" yaml:"op"`
	Value       any            `json:"value,omitempty" yaml:"value,omitempty"`
	Transform   string         `json:"transform,omitempty" yaml:"transform,omitempty"`
	Conditions  []ConditionDef `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// OutcomeDef is a raw outcome. Typ selects which of the remaining fields are meaningful:
//
//	RULE  -> RuleID
//	VALUE -> Value (required; Null for an explicit null)
//	DATA  -> Data or ExtraPaths, never both
//	EVENT -> EventID, Data or ExtraPaths, never both
type OutcomeDef struct {
	ID          int    `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Typ         string `json:"typ" yaml:"typ"`
	RuleID      RuleID `json:"rule_id,omitempty" yaml:"rule_id,omitempty"`
	Value       any    `json:"value,omitempty" yaml:"value,omitempty"`
	Data        []any  `json:"data,omitempty" yaml:"data,omitempty"`
	ExtraPaths  []any  `json:"extra_paths,omitempty" yaml:"extra_paths,omitempty"`
	EventID     string `json:"event_id,omitempty" yaml:"event_id,omitempty"`
}

// Items returns the data items of a DATA or EVENT outcome. Hydration rejects outcomes
// that set both Data and ExtraPaths.
func (o OutcomeDef) Items() []any {
	if len(o.Data) > 0 {
		return o.Data
	}
	return o.ExtraPaths
}

// NullValue marks an outcome value that was given explicitly as null, so a VALUE outcome
// without a value (nil) can be told apart from one whose value is null.
type NullValue struct{}

// Null is the explicit null outcome value.
var Null = NullValue{}

func (NullValue) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

func (NullValue) MarshalYAML() (any, error) { return nil, nil }

// Bool returns a pointer to b. Used to set RuleDef.Active/Root in literals.
func Bool(b bool) *bool {
	return &b
}
