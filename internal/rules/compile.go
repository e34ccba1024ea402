// internal/rules/compile.go
package rules

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/solatis/verdict/internal/types"
)

/*
 * Rule hydration and validation.
 *
 * Compiles types.RuleDef into CompiledRule: enumerations parsed, comparison values
 * normalized into the closed value model, regex patterns compiled, transforms resolved and
 * nesting limits enforced. All of this happens once at registry construction so evaluation
 * never meets a malformed definition.
 *
 * Field paths in validation errors are relative to the rule (conditions[0].conditions[1].op);
 * the registry prefixes them with rules[i].
 *
 * Condition paths are not validated here: a malformed path degrades to a
 * non-match at evaluation time, like any other extraction failure.
 */

// OutcomeType discriminates outcome variants.
type OutcomeType string

const (
	OutcomeRule  OutcomeType = "RULE"
	OutcomeValue OutcomeType = "VALUE"
	OutcomeData  OutcomeType = "DATA"
	OutcomeEvent OutcomeType = "EVENT"
)

// ParseOutcomeType parses an outcome discriminant. LOGIC is accepted for RULE.
func ParseOutcomeType(s string) (OutcomeType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return "", types.ErrRequiredField
	case "RULE", "LOGIC":
		return OutcomeRule, nil
	case "VALUE":
		return OutcomeValue, nil
	case "DATA":
		return OutcomeData, nil
	case "EVENT":
		return OutcomeEvent, nil
	default:
		return "", fmt.Errorf("%w: outcome type %q", types.ErrInvalidField, s)
	}
}

// CompiledCondition is a hydrated condition node.
type CompiledCondition struct {
	ID         int
	Name       string
	Path       string
	Comparator Comparator
	Operator   Operator
	Value      any            // normalized comparison value
	Pattern    *regexp.Regexp // OpRegex only
	Transform  Transform
	Children   []*CompiledCondition
}

// Composite reports whether the node combines children rather than testing a path.
func (c *CompiledCondition) Composite() bool {
	return c.Operator.Logical()
}

func (c *CompiledCondition) String() string {
	if c.Composite() {
		return fmt.Sprintf("Condition(%d)<%s %s>", c.ID, c.Comparator, c.Operator)
	}
	return fmt.Sprintf("Condition(%d)<%s %s %s %v>", c.ID, c.Path, c.Comparator, c.Operator, c.Value)
}

// CompiledOutcome is a hydrated outcome.
type CompiledOutcome struct {
	ID      int
	Name    string
	Type    OutcomeType
	RuleID  types.RuleID // RULE target
	Value   any          // VALUE payload
	Items   []any        // DATA/EVENT paths or literals
	EventID string
}

// CompiledRule is a hydrated rule ready for evaluation.
type CompiledRule struct {
	ID          types.RuleID
	Name        string
	Description string
	Since       time.Time
	Until       time.Time
	Active      bool
	Root        bool
	Comparator  Comparator
	Operator    Operator
	Conditions  []*CompiledCondition
	Outcomes    []CompiledOutcome
}

// Applicable reports whether the rule is active and now lies inside its validity window.
// Zero bounds are open.
func (r *CompiledRule) Applicable(now time.Time) bool {
	if !r.Active {
		return false
	}
	if !r.Since.IsZero() && now.Before(r.Since) {
		return false
	}
	if !r.Until.IsZero() && now.After(r.Until) {
		return false
	}
	return true
}

func (r *CompiledRule) String() string {
	if r.Name != "" {
		return fmt.Sprintf("Rule(%d %s)<%s %s>", r.ID, r.Name, r.Comparator, r.Operator)
	}
	return fmt.Sprintf("Rule(%d)<%s %s>", r.ID, r.Comparator, r.Operator)
}

// Compile validates and hydrates a rule definition.
func Compile(def types.RuleDef) (*CompiledRule, error) {
	compiled := &CompiledRule{
		ID:          def.ID,
		Name:        def.Name,
		Description: def.Description,
		Since:       def.Since,
		Until:       def.Until,
		Active:      def.Active == nil || *def.Active,
		Root:        def.Root == nil || *def.Root,
		Operator:    OpAnd,
		Conditions:  make([]*CompiledCondition, 0, len(def.Conditions)),
		Outcomes:    make([]CompiledOutcome, 0, len(def.Outcomes)),
	}

	if def.ID < 0 {
		return nil, types.Invalid("id", fmt.Errorf("%w: negative rule id %d", types.ErrInvalidField, def.ID))
	}

	comp, err := ParseComparator(def.Comp)
	if err != nil {
		return nil, types.Invalid("comp", err)
	}
	compiled.Comparator = comp

	if def.Op != "" {
		op, err := ParseOperator(def.Op)
		if err != nil {
			return nil, types.Invalid("op", err)
		}
		if !op.Logical() {
			return nil, types.Invalid("op", fmt.Errorf("%w: rule operator must be and/or, got %s", types.ErrInvalidOperator, op))
		}
		compiled.Operator = op
	}

	if !def.Since.IsZero() && !def.Until.IsZero() && def.Until.Before(def.Since) {
		return nil, types.Invalid("until", fmt.Errorf("%w: until precedes since", types.ErrInvalidField))
	}

	for i, cd := range def.Conditions {
		cc, err := compileCondition(cd, 1)
		if err != nil {
			return nil, types.PrefixField(fmt.Sprintf("conditions[%d]", i), err)
		}
		compiled.Conditions = append(compiled.Conditions, cc)
	}

	for i, od := range def.Outcomes {
		co, err := compileOutcome(od)
		if err != nil {
			return nil, types.PrefixField(fmt.Sprintf("outcomes[%d]", i), err)
		}
		compiled.Outcomes = append(compiled.Outcomes, co)
	}

	return compiled, nil
}

// compileCondition hydrates one condition node and its children.
// depth counts the node's own nesting level, starting at 1 for rule-level conditions.
func compileCondition(def types.ConditionDef, depth int) (*CompiledCondition, error) {
	if depth > types.MaxConditionDepth {
		return nil, types.Invalid("conditions", types.ErrConditionTooDeep)
	}

	if def.Op == "" {
		return nil, types.Invalid("op", types.ErrRequiredField)
	}
	op, err := ParseOperator(def.Op)
	if err != nil {
		return nil, types.Invalid("op", err)
	}
	comp, err := ParseComparator(def.Comp)
	if err != nil {
		return nil, types.Invalid("comp", err)
	}

	cc := &CompiledCondition{
		ID:         def.ID,
		Name:       def.Name,
		Path:       def.Path,
		Comparator: comp,
		Operator:   op,
	}

	if op.Logical() {
		cc.Children = make([]*CompiledCondition, 0, len(def.Conditions))
		for i, child := range def.Conditions {
			compiledChild, err := compileCondition(child, depth+1)
			if err != nil {
				return nil, types.PrefixField(fmt.Sprintf("conditions[%d]", i), err)
			}
			cc.Children = append(cc.Children, compiledChild)
		}
		return cc, nil
	}

	if len(def.Conditions) > 0 {
		return nil, types.Invalid("op", fmt.Errorf("%w: %s cannot combine child conditions", types.ErrInvalidOperator, op))
	}
	if strings.TrimSpace(def.Path) == "" {
		return nil, types.Invalid("path", types.ErrRequiredField)
	}

	value, err := Normalize(def.Value)
	if err != nil {
		return nil, types.Invalid("value", err)
	}
	cc.Value = value

	if op == OpIn {
		switch KindOf(value) {
		case KindList, KindMap, KindString:
		default:
			return nil, types.Invalid("value", fmt.Errorf("%w: in value must be a list, map or string", types.ErrInvalidField))
		}
	}

	if op == OpRegex {
		pattern, ok := value.(string)
		if !ok {
			return nil, types.Invalid("value", fmt.Errorf("%w: regex value must be a string", types.ErrInvalidPattern))
		}
		re, err := CompilePattern(pattern)
		if err != nil {
			return nil, types.Invalid("value", err)
		}
		cc.Pattern = re
	}

	t, err := LookupTransform(def.Transform)
	if err != nil {
		return nil, types.Invalid("transform", err)
	}
	cc.Transform = t

	return cc, nil
}

// compileOutcome hydrates one outcome, checking the fields its type requires.
func compileOutcome(def types.OutcomeDef) (CompiledOutcome, error) {
	typ, err := ParseOutcomeType(def.Typ)
	if err != nil {
		return CompiledOutcome{}, types.Invalid("typ", err)
	}

	co := CompiledOutcome{
		ID:   def.ID,
		Name: def.Name,
		Type: typ,
	}

	switch typ {
	case OutcomeRule:
		if def.RuleID <= 0 {
			return CompiledOutcome{}, types.Invalid("rule_id", types.ErrRequiredField)
		}
		co.RuleID = def.RuleID

	case OutcomeValue:
		if def.Value == nil {
			return CompiledOutcome{}, types.Invalid("value", types.ErrRequiredField)
		}
		value, err := Normalize(def.Value)
		if err != nil {
			return CompiledOutcome{}, types.Invalid("value", err)
		}
		co.Value = value

	case OutcomeEvent, OutcomeData:
		if typ == OutcomeEvent {
			if def.EventID == "" {
				return CompiledOutcome{}, types.Invalid("event_id", types.ErrRequiredField)
			}
			co.EventID = def.EventID
		}
		if len(def.Data) > 0 && len(def.ExtraPaths) > 0 {
			return CompiledOutcome{}, types.Invalid("extra_paths",
				fmt.Errorf("%w: data and extra_paths are mutually exclusive", types.ErrInvalidField))
		}
		items := def.Items()
		co.Items = make([]any, 0, len(items))
		for i, item := range items {
			n, err := Normalize(item)
			if err != nil {
				return CompiledOutcome{}, types.Invalid(fmt.Sprintf("data[%d]", i), err)
			}
			co.Items = append(co.Items, n)
		}
	}

	return co, nil
}
