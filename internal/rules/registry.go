// internal/rules/registry.go
package rules

import (
	"fmt"

	"github.com/solatis/verdict/internal/types"
)

// Registry is an ordered, immutable mapping from rule id to compiled rule.
// Safe for concurrent use once constructed.
type Registry struct {
	order []types.RuleID
	byID  map[types.RuleID]*CompiledRule
}

// NewRegistry compiles defs and indexes them by id, preserving input order.
//
// Explicit ids are reserved first; definitions without an id then receive the lowest
// unreserved id counting up from 1, so an auto-assigned id never collides with one
// written in a later definition.
func NewRegistry(defs []types.RuleDef) (*Registry, error) {
	reserved := make(map[types.RuleID]int, len(defs))
	for i, def := range defs {
		if def.ID == 0 {
			continue
		}
		if first, dup := reserved[def.ID]; dup {
			return nil, types.Invalid(fmt.Sprintf("rules[%d].id", i),
				fmt.Errorf("%w: %d already used by rules[%d]", types.ErrDuplicateRuleID, def.ID, first))
		}
		reserved[def.ID] = i
	}

	reg := &Registry{
		order: make([]types.RuleID, 0, len(defs)),
		byID:  make(map[types.RuleID]*CompiledRule, len(defs)),
	}

	next := types.RuleID(1)
	for i, def := range defs {
		compiled, err := Compile(def)
		if err != nil {
			return nil, types.PrefixField(fmt.Sprintf("rules[%d]", i), err)
		}
		if compiled.ID == 0 {
			for {
				if _, taken := reserved[next]; !taken {
					break
				}
				next++
			}
			compiled.ID = next
			next++
		}
		reg.order = append(reg.order, compiled.ID)
		reg.byID[compiled.ID] = compiled
	}

	return reg, nil
}

// Get returns the rule with the given id.
func (r *Registry) Get(id types.RuleID) (*CompiledRule, bool) {
	rule, ok := r.byID[id]
	return rule, ok
}

// Rules returns the rules in registry order. The slice is a copy; the rules are shared.
func (r *Registry) Rules() []*CompiledRule {
	out := make([]*CompiledRule, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Len returns the number of rules.
func (r *Registry) Len() int {
	return len(r.order)
}
