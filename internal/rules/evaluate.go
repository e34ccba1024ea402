// internal/rules/evaluate.go
package rules

import (
	"fmt"

	"github.com/solatis/verdict/internal/types"
)

/*
 * Condition evaluation.
 *
 * Leaf: extract every value at the path, transform each (falling back to the raw value),
 * apply the operator; the leaf matches if any value satisfies it. No values means no match.
 * Composite: evaluate all children, reduce with and/or; zero children is false for both.
 * Either way the node's result is (match == comparator.Truth()).
 *
 * Children are not short-circuited. Every leaf runs so an incompatible comparison is
 * reported regardless of sibling order.
 *
 * Extraction errors (malformed paths) count as "no values". Comparison errors are returned
 * as *ComparisonError and abort the run.
 */

// ComparisonError reports an operator applied to operands it cannot compare.
type ComparisonError struct {
	RuleID      types.RuleID
	ConditionID int
	Path        string
	Operator    Operator
	Err         error
}

func (e *ComparisonError) Error() string {
	return fmt.Sprintf("rule %d: condition %d (%s %s): %v", e.RuleID, e.ConditionID, e.Path, e.Operator, e.Err)
}

func (e *ComparisonError) Unwrap() error {
	return e.Err
}

// matcher evaluates conditions of one rule against one context.
type matcher struct {
	extractor Extractor
	ctx       any
	rule      *CompiledRule
	run       *run
}

// matchConditions evaluates conds and reduces them with op.
func (m *matcher) matchConditions(op Operator, conds []*CompiledCondition) (bool, error) {
	results := make([]bool, 0, len(conds))
	for _, cond := range conds {
		matched, err := m.matchCondition(cond)
		if err != nil {
			return false, err
		}
		results = append(results, matched)
	}
	return Combine(op, results)
}

// matchCondition evaluates a single node and applies its comparator.
func (m *matcher) matchCondition(cond *CompiledCondition) (bool, error) {
	var raw bool
	var err error
	if cond.Composite() {
		raw, err = m.matchConditions(cond.Operator, cond.Children)
	} else {
		raw, err = m.matchValue(cond)
	}
	if err != nil {
		return false, err
	}

	result := raw == cond.Comparator.Truth()
	m.run.debug("condition evaluated",
		"rule_id", m.rule.ID,
		"condition", cond.String(),
		"match", raw,
		"expects", cond.Comparator.Truth(),
	)
	return result, nil
}

// matchValue evaluates a leaf against every value its path extracts.
func (m *matcher) matchValue(cond *CompiledCondition) (bool, error) {
	found, err := m.extractor.Extract(cond.Path, m.ctx)
	if err != nil {
		m.run.debug("path extraction failed, treating as no match",
			"rule_id", m.rule.ID,
			"path", cond.Path,
			"error", err,
		)
		return false, nil
	}

	var expected any = cond.Value
	if cond.Pattern != nil {
		expected = cond.Pattern
	}

	matched := false
	for _, f := range found {
		value, err := Normalize(f.Value)
		if err != nil {
			return false, m.comparisonError(cond, err)
		}
		value = applyTransform(cond.Transform, value)

		ok, err := Apply(cond.Operator, value, expected)
		if err != nil {
			return false, m.comparisonError(cond, err)
		}
		if ok {
			matched = true
		}
	}
	return matched, nil
}

func (m *matcher) comparisonError(cond *CompiledCondition, err error) error {
	return &ComparisonError{
		RuleID:      m.rule.ID,
		ConditionID: cond.ID,
		Path:        cond.Path,
		Operator:    cond.Operator,
		Err:         err,
	}
}
